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
	"errors"
	"fmt"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"

	"github.com/spatialgrid/gridslice/varinfo"
)

// SpatialIndexRanges resolves a bounding box or shape into index ranges on
// every horizontal spatial dimension supporting the required variables.
// Grids with 1-D geographic dimensions resolve latitude and longitude
// directly; projected grids resolve x/y pairs through perimeter sampling;
// grids with neither fall back to scales derived from 2-D coordinates.
// When both a bounding box and a shape are supplied the bounding box wins.
func SpatialIndexRanges(prefetch *Dataset, vi *varinfo.VarInfo, requiredVariables []string, bbox *BoundingBox, shape geom.Geom, cache *derivedScales) (IndexRanges, error) {
	if bbox == nil && shape == nil {
		return nil, fmt.Errorf("gridslice: spatial subsetting requires a bounding box or shape")
	}
	indexRanges := make(IndexRanges)

	geographicDimensions := vi.GeographicDimensions(requiredVariables)
	projectedDimensions := vi.ProjectedDimensions(requiredVariables)
	nonSpatial := subtract(requiredVariables, vi.SpatialDimensions(requiredVariables))

	if len(geographicDimensions) > 0 {
		box := bbox
		if box == nil {
			encompassing, err := ShapeBBox(shape)
			if err != nil {
				return nil, err
			}
			box = &encompassing
		}
		for _, dimension := range geographicDimensions {
			indexRange, err := geographicIndexRange(dimension, vi, prefetch, *box)
			if err != nil {
				return nil, err
			}
			indexRanges[dimension] = indexRange
		}
	}
	if len(projectedDimensions) > 0 {
		for _, variablePath := range nonSpatial {
			if err := addProjectedIndexRanges(indexRanges, prefetch, vi, variablePath, bbox, shape, nil); err != nil {
				return nil, err
			}
		}
	}
	if len(geographicDimensions) == 0 && len(projectedDimensions) == 0 {
		// No dimension variables at all: derive scales from the 2-D
		// coordinate arrays.
		for _, variablePath := range nonSpatial {
			if err := addProjectedIndexRanges(indexRanges, prefetch, vi, variablePath, bbox, shape, cache); err != nil {
				return nil, err
			}
		}
	}
	return indexRanges, nil
}

func subtract(set, removed []string) []string {
	drop := make(map[string]bool, len(removed))
	for _, s := range removed {
		drop[s] = true
	}
	var out []string
	for _, s := range set {
		if !drop[s] {
			out = append(out, s)
		}
	}
	return out
}

// geographicIndexRange resolves one geographic dimension against the
// bounding box. Longitude extents are first moved into the valid range of
// the dimension data, which may place the western extent east of the
// eastern one: the resolver then yields a wrapped range (minimum index
// greater than maximum), identifying a grid-edge crossing.
func geographicIndexRange(dimension string, vi *varinfo.VarInfo, prefetch *Dataset, bbox BoundingBox) (IndexRange, error) {
	values, err := prefetch.Values1D(dimension)
	if err != nil {
		return IndexRange{}, err
	}
	bounds, err := dimensionBounds(vi, prefetch, dimension)
	if err != nil {
		return IndexRange{}, err
	}

	variable := vi.Get(dimension)
	var minimumExtent, maximumExtent float64
	if variable != nil && variable.IsLatitude() {
		minimumExtent, maximumExtent = bbox.South, bbox.North
	} else {
		gridMin, gridMax := DimensionExtents(values)
		minimumExtent = LongitudeInGrid(gridMin, gridMax, bbox.West)
		maximumExtent = LongitudeInGrid(gridMin, gridMax, bbox.East)
	}
	return DimensionIndexRange(dimension, values, &minimumExtent, &maximumExtent, bounds)
}

// addProjectedIndexRanges resolves the projected x and y dimensions of one
// variable, unless they are already resolved. With a non-nil cache the
// variable is assumed to lack real dimension variables, and derived scales
// stand in for them under synthetic dimension names. Variables without
// projected dimensions or 2-D coordinates are skipped: grid mapping
// metadata is looked up only once a variable is known to be gridded, so
// ungridded companions like time coordinates never need one.
func addProjectedIndexRanges(indexRanges IndexRanges, prefetch *Dataset, vi *varinfo.VarInfo, variablePath string, bbox *BoundingBox, shape geom.Geom, cache *derivedScales) error {
	var xPath, yPath string
	var xValues, yValues []float64
	var xBounds, yBounds [][2]float64
	var sr *proj.SR

	if cache != nil {
		var err error
		yPath, xPath, err = ProjectedDimensionPaths(vi, variablePath)
		var derivation *DimensionDerivationError
		if errors.As(err, &derivation) {
			// No 2-D coordinate references to derive scales from.
			return nil
		}
		if err != nil {
			return err
		}
		if indexRanges.has(xPath) && indexRanges.has(yPath) {
			return nil
		}
		if sr, err = VariableCRS(vi, variablePath); err != nil {
			return err
		}
		yValues, xValues, err = cache.scalesFor(prefetch, vi, variablePath, sr)
		if err != nil {
			return err
		}
	} else {
		variable := vi.Get(variablePath)
		if variable == nil {
			return fmt.Errorf("gridslice: variable %s not present in granule", variablePath)
		}
		for _, dimension := range variable.Dimensions {
			dimensionVariable := vi.Get(dimension)
			if dimensionVariable == nil {
				continue
			}
			if dimensionVariable.IsProjectionX() {
				xPath = dimension
			} else if dimensionVariable.IsProjectionY() {
				yPath = dimension
			}
		}
		if xPath == "" || yPath == "" {
			// Not a gridded spatial variable.
			return nil
		}
		if indexRanges.has(xPath) && indexRanges.has(yPath) {
			return nil
		}
		var err error
		if sr, err = VariableCRS(vi, variablePath); err != nil {
			return err
		}
		if xValues, err = prefetch.Values1D(xPath); err != nil {
			return err
		}
		if yValues, err = prefetch.Values1D(yPath); err != nil {
			return err
		}
		if xBounds, err = dimensionBounds(vi, prefetch, xPath); err != nil {
			return err
		}
		if yBounds, err = dimensionBounds(vi, prefetch, yPath); err != nil {
			return err
		}
	}

	var region geom.Polygon
	if bbox != nil {
		region = bbox.Polygon()
	} else {
		region = ShapePolygon(shape)
	}
	extents, err := projectedExtents(xValues, yValues, sr, region)
	if err != nil {
		return err
	}

	xRange, err := DimensionIndexRange(xPath, xValues, &extents.xMin, &extents.xMax, xBounds)
	if err != nil {
		return err
	}
	yRange, err := DimensionIndexRange(yPath, yValues, &extents.yMin, &extents.yMax, yBounds)
	if err != nil {
		return err
	}
	indexRanges[xPath] = xRange
	indexRanges[yPath] = yRange
	return nil
}

func (r IndexRanges) has(dimension string) bool {
	_, ok := r[dimension]
	return ok
}

// dimensionBounds returns the cell bounds for a dimension: the referenced
// bounds variable when the prefetch data holds one, or bounds synthesized
// from the scale for edge-aligned dimensions. Center-aligned dimensions
// without bounds return nil.
func dimensionBounds(vi *varinfo.VarInfo, prefetch *Dataset, dimension string) ([][2]float64, error) {
	variable := vi.Get(dimension)
	if variable == nil {
		return nil, nil
	}
	if references := variable.References("bounds"); len(references) > 0 {
		if _, ok := prefetch.Variables[references[0]]; ok {
			return prefetch.BoundsPairs(references[0])
		}
	}
	if variable.CellAlignment() == "edge" {
		values, err := prefetch.Values1D(dimension)
		if err != nil {
			return nil, err
		}
		return SyntheticBounds(values), nil
	}
	return nil, nil
}

// LongitudeInGrid moves a longitude into the native range of a grid by
// trying the value itself and the values 360 degrees either side. A value
// outside the grid under all three passes back unchanged: some requests
// legitimately extend past a grid whose longitudes span less than a full
// circle.
func LongitudeInGrid(gridMin, gridMax, longitude float64) float64 {
	for _, candidate := range []float64{longitude, longitude - 360, longitude + 360} {
		if gridMin <= candidate && candidate <= gridMax {
			return candidate
		}
	}
	return longitude
}
