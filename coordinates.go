/*
Copyright © 2025 the gridslice authors.
This file is part of gridslice.

gridslice is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

gridslice is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with gridslice.  If not, see <http://www.gnu.org/licenses/>.
*/

package gridslice

import (
	"fmt"
	"math"

	"github.com/ctessum/geom/proj"
	"github.com/ctessum/sparse"

	"github.com/spatialgrid/gridslice/varinfo"
)

// ProjectedDimensionPaths returns the group-qualified synthetic dimension
// names used for scales derived from a variable's 2-D coordinates. The
// names live in the coordinate variables' group, so variables sharing
// coordinates share one derivation.
func ProjectedDimensionPaths(vi *varinfo.VarInfo, variablePath string) (y, x string, err error) {
	latitudes, longitudes := vi.CoordinateVariables([]string{variablePath})
	var group string
	switch {
	case len(latitudes) > 0 && len(longitudes) > 0:
		group = vi.Get(latitudes[0]).Group()
	default:
		v := vi.Get(variablePath)
		if v == nil || !(v.IsLatitude() || v.IsLongitude()) {
			return "", "", &DimensionDerivationError{
				Coordinate: variablePath,
				Reason:     "no latitude and longitude coordinate references",
			}
		}
		group = v.Group()
	}
	return group + "/projected_y", group + "/projected_x", nil
}

// derivedScales is a request-scoped cache of derived dimension scales,
// keyed by group-qualified synthetic dimension path. It must not outlive
// its request: scales derive from one granule's coordinate data.
type derivedScales struct {
	scales map[string][]float64
}

func newDerivedScales() *derivedScales {
	return &derivedScales{scales: make(map[string][]float64)}
}

// scalesFor returns the derived y and x dimension scales for a variable,
// deriving and caching them on first use.
func (dc *derivedScales) scalesFor(prefetch *Dataset, vi *varinfo.VarInfo, variablePath string, sr *proj.SR) (yScale, xScale []float64, err error) {
	yPath, xPath, err := ProjectedDimensionPaths(vi, variablePath)
	if err != nil {
		return nil, nil, err
	}
	if y, ok := dc.scales[yPath]; ok {
		return y, dc.scales[xPath], nil
	}
	latitudes, longitudes := vi.CoordinateVariables([]string{variablePath})
	if len(latitudes) == 0 || len(longitudes) == 0 {
		return nil, nil, &DimensionDerivationError{
			Coordinate: variablePath,
			Reason:     "no latitude and longitude coordinate references",
		}
	}
	yScale, xScale, err = DeriveDimensionScales(prefetch, vi, latitudes[0], longitudes[0], sr)
	if err != nil {
		return nil, nil, err
	}
	dc.scales[yPath] = yScale
	dc.scales[xPath] = xScale
	return yScale, xScale, nil
}

// DeriveDimensionScales builds 1-D projected dimension scales for a grid
// described only by 2-D latitude and longitude coordinate arrays. Two
// valid points along the row with the widest usable span fix the x scale,
// and two along the widest column fix the y scale: each pair is projected
// into the grid CRS and extended linearly across the full dimension size.
func DeriveDimensionScales(prefetch *Dataset, vi *varinfo.VarInfo, latitudePath, longitudePath string, sr *proj.SR) (yScale, xScale []float64, err error) {
	latVariable := prefetch.Variables[latitudePath]
	lonVariable := prefetch.Variables[longitudePath]
	if latVariable == nil || lonVariable == nil {
		return nil, nil, &DimensionDerivationError{
			Coordinate: latitudePath,
			Reason:     "coordinate variables absent from prefetch data",
		}
	}
	latArr, lonArr := latVariable.Data, lonVariable.Data
	if len(latArr.Shape) != 2 || len(lonArr.Shape) != 2 ||
		latArr.Shape[0] != lonArr.Shape[0] || latArr.Shape[1] != lonArr.Shape[1] {
		return nil, nil, &DimensionDerivationError{
			Coordinate: latitudePath,
			Reason:     fmt.Sprintf("incompatible coordinate shapes %v and %v", latArr.Shape, lonArr.Shape),
		}
	}
	rows, cols := latArr.Shape[0], latArr.Shape[1]
	latMeta, lonMeta := vi.Get(latitudePath), vi.Get(longitudePath)

	// Row with the widest span of indices valid in both coordinates.
	bestRow, rowFirst, rowLast := -1, 0, 0
	for row := 0; row < rows; row++ {
		first, last, ok := validSpan(latArr, lonArr, latMeta, lonMeta, row, -1)
		if ok && (bestRow < 0 || last-first > rowLast-rowFirst) {
			bestRow, rowFirst, rowLast = row, first, last
		}
	}
	if bestRow < 0 {
		return nil, nil, &DimensionDerivationError{
			Coordinate: latitudePath,
			Reason:     "no row contains two valid coordinate values",
		}
	}

	// Column with the widest valid span, scanned from the far edge.
	bestCol, colFirst, colLast := -1, 0, 0
	for col := cols - 1; col >= 0; col-- {
		first, last, ok := validSpan(latArr, lonArr, latMeta, lonMeta, -1, col)
		if ok && (bestCol < 0 || last-first > colLast-colFirst) {
			bestCol, colFirst, colLast = col, first, last
		}
	}
	if bestCol < 0 {
		return nil, nil, &DimensionDerivationError{
			Coordinate: longitudePath,
			Reason:     "no column contains two valid coordinate values",
		}
	}

	geographicSR, err := proj.Parse(geographicProj)
	if err != nil {
		return nil, nil, fmt.Errorf("gridslice: parsing geographic projection: %v", err)
	}
	fromGeographic, err := geographicSR.NewTransform(sr)
	if err != nil {
		return nil, nil, fmt.Errorf("gridslice: creating grid transform: %v", err)
	}
	project := func(row, col int) (x, y float64, err error) {
		x, y, err = fromGeographic(lonArr.Get(row, col), latArr.Get(row, col))
		if err != nil || math.IsNaN(x) || math.IsNaN(y) {
			return 0, 0, &DimensionDerivationError{
				Coordinate: longitudePath,
				Reason:     fmt.Sprintf("coordinate at (%d, %d) cannot be projected", row, col),
			}
		}
		return x, y, nil
	}

	// x varies along the chosen row; y varies along the chosen column.
	x0, _, err := project(bestRow, rowFirst)
	if err != nil {
		return nil, nil, err
	}
	x1, _, err := project(bestRow, rowLast)
	if err != nil {
		return nil, nil, err
	}
	_, y0, err := project(colFirst, bestCol)
	if err != nil {
		return nil, nil, err
	}
	_, y1, err := project(colLast, bestCol)
	if err != nil {
		return nil, nil, err
	}

	xScale, err = twoPointScale(longitudePath, [2]float64{x0, x1}, [2]int{rowFirst, rowLast}, cols)
	if err != nil {
		return nil, nil, err
	}
	yScale, err = twoPointScale(latitudePath, [2]float64{y0, y1}, [2]int{colFirst, colLast}, rows)
	if err != nil {
		return nil, nil, err
	}
	return yScale, xScale, nil
}

// validSpan returns the first and last index along one row (col == -1) or
// one column (row == -1) at which both coordinates hold valid values.
func validSpan(latArr, lonArr *sparse.DenseArray, latMeta, lonMeta *varinfo.Variable, row, col int) (first, last int, ok bool) {
	n := latArr.Shape[1]
	if row < 0 {
		n = latArr.Shape[0]
	}
	first, last = -1, -1
	for i := 0; i < n; i++ {
		r, c := row, i
		if row < 0 {
			r, c = i, col
		}
		if validCoordinate(latArr.Get(r, c), latMeta) && validCoordinate(lonArr.Get(r, c), lonMeta) {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	return first, last, first >= 0 && last > first
}

// validCoordinate reports whether a coordinate value is usable: not the
// fill value, and within the physically meaningful range for its type.
func validCoordinate(value float64, metadata *varinfo.Variable) bool {
	if metadata == nil {
		return !math.IsNaN(value)
	}
	if fill, ok := metadata.FillValue(); ok {
		if math.Abs(value-fill) <= 1e-8+1e-5*math.Abs(fill) {
			return false
		}
	}
	switch {
	case metadata.IsLatitude():
		return value >= -90 && value <= 90
	case metadata.IsLongitude():
		return value >= -180 && value <= 360
	}
	return !math.IsNaN(value)
}

// twoPointScale extends a linear scale fixed by two (index, value) anchor
// points across a full dimension.
func twoPointScale(coordinate string, values [2]float64, indices [2]int, size int) ([]float64, error) {
	if indices[0] == indices[1] || values[0] == values[1] {
		return nil, &DimensionDerivationError{
			Coordinate: coordinate,
			Reason:     "anchor points do not define a resolution",
		}
	}
	resolution := (values[1] - values[0]) / float64(indices[1]-indices[0])
	min := values[0] - resolution*float64(indices[0])
	max := values[1] + resolution*float64(size-1-indices[1])
	return linspace(min, max, size), nil
}

// linspace returns size evenly spaced values from start to stop inclusive.
func linspace(start, stop float64, size int) []float64 {
	out := make([]float64, size)
	if size == 1 {
		out[0] = start
		return out
	}
	step := (stop - start) / float64(size-1)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	out[size-1] = stop
	return out
}
