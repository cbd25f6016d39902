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
	"strconv"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"

	"github.com/spatialgrid/gridslice/varinfo"
)

// geographicProj is the spatial reference for geographic lon/lat
// coordinates in degrees.
const geographicProj = "+proj=longlat"

// VariableCRS builds the spatial reference of a projected variable's grid
// from its grid_mapping metadata. When the referenced grid mapping variable
// is absent from the granule itself, attributes configured for its path in
// the override document are used instead.
func VariableCRS(vi *varinfo.VarInfo, variablePath string) (*proj.SR, error) {
	v := vi.Get(variablePath)
	if v == nil {
		return nil, &ConfigurationError{Subject: variablePath, Reason: "variable not present in granule"}
	}
	references := v.References("grid_mapping")
	if len(references) == 0 {
		return nil, &ConfigurationError{Subject: variablePath, Reason: "no grid_mapping metadata attribute"}
	}
	gridMapping := references[0]
	var attributes []varinfo.Attribute
	if gridMappingVariable := vi.Get(gridMapping); gridMappingVariable != nil {
		attributes = gridMappingVariable.Attributes
	} else if attributes = vi.MissingVariableAttributes(gridMapping); len(attributes) == 0 {
		return nil, &ConfigurationError{
			Subject: gridMapping,
			Reason:  fmt.Sprintf("grid mapping variable referred to by %s is absent from granule and overrides", variablePath),
		}
	}
	projString, err := proj4FromCF(attributes)
	if err != nil {
		return nil, err
	}
	sr, err := proj.Parse(projString)
	if err != nil {
		return nil, fmt.Errorf("gridslice: while parsing grid projection %q: %v", projString, err)
	}
	return sr, nil
}

// proj4FromCF converts CF grid mapping attributes into a proj4 string.
func proj4FromCF(attributes []varinfo.Attribute) (string, error) {
	attr := func(name string) (string, bool) {
		value, ok := "", false
		for _, a := range attributes {
			if a.Name == name {
				value, ok = a.Value, true
			}
		}
		return value, ok
	}
	addParam := func(tokens []string, projParam, cfName string) []string {
		if value, ok := attr(cfName); ok {
			return append(tokens, fmt.Sprintf("+%s=%s", projParam, strings.TrimSpace(value)))
		}
		return tokens
	}

	name, ok := attr("grid_mapping_name")
	if !ok {
		return "", &ConfigurationError{Subject: "grid mapping", Reason: "no grid_mapping_name attribute"}
	}

	var tokens []string
	switch name {
	case "latitude_longitude":
		tokens = []string{geographicProj}
	case "lambert_conformal_conic":
		tokens = []string{"+proj=lcc"}
		tokens = append(tokens, standardParallels(attr)...)
		tokens = addParam(tokens, "lat_0", "latitude_of_projection_origin")
		tokens = addParam(tokens, "lon_0", "longitude_of_central_meridian")
	case "mercator":
		tokens = []string{"+proj=merc"}
		if parallels := standardParallels(attr); len(parallels) > 0 {
			tokens = append(tokens, strings.Replace(parallels[0], "+lat_1=", "+lat_ts=", 1))
		}
		tokens = addParam(tokens, "lon_0", "longitude_of_projection_origin")
		tokens = addParam(tokens, "k", "scale_factor_at_projection_origin")
	case "transverse_mercator":
		tokens = []string{"+proj=tmerc"}
		tokens = addParam(tokens, "lat_0", "latitude_of_projection_origin")
		tokens = addParam(tokens, "lon_0", "longitude_of_central_meridian")
		tokens = addParam(tokens, "k", "scale_factor_at_central_meridian")
	case "albers_conical_equal_area":
		tokens = []string{"+proj=aea"}
		tokens = append(tokens, standardParallels(attr)...)
		tokens = addParam(tokens, "lat_0", "latitude_of_projection_origin")
		tokens = addParam(tokens, "lon_0", "longitude_of_central_meridian")
	default:
		return "", &ConfigurationError{
			Subject: "grid mapping",
			Reason:  fmt.Sprintf("unsupported grid_mapping_name %q", name),
		}
	}

	tokens = addParam(tokens, "x_0", "false_easting")
	tokens = addParam(tokens, "y_0", "false_northing")
	tokens = addParam(tokens, "a", "semi_major_axis")
	tokens = addParam(tokens, "b", "semi_minor_axis")
	tokens = addParam(tokens, "rf", "inverse_flattening")
	if name != "latitude_longitude" {
		tokens = append(tokens, "+units=m")
	}
	tokens = append(tokens, "+no_defs")
	return strings.Join(tokens, " "), nil
}

// standardParallels converts the CF standard_parallel attribute, which may
// hold one or two values, into +lat_1/+lat_2 tokens.
func standardParallels(attr func(string) (string, bool)) []string {
	value, ok := attr("standard_parallel")
	if !ok {
		return nil
	}
	fields := strings.Fields(value)
	var tokens []string
	for i, field := range fields {
		if i > 1 {
			break
		}
		if _, err := strconv.ParseFloat(field, 64); err == nil {
			tokens = append(tokens, fmt.Sprintf("+lat_%d=%s", i+1, field))
		}
	}
	return tokens
}

// xyExtents is the bounding rectangle of a request region in a grid's
// projected coordinates.
type xyExtents struct {
	xMin, xMax, yMin, yMax float64
}

// projectedExtents determines the minimum and maximum projected x and y
// values covered by a geographic region on the given grid. The full x/y
// grid is inverse-projected to geographic coordinates to determine the
// grid's approximate ground resolution; the region's perimeter is then
// densified at that resolution and projected into the grid CRS. The
// minimum or maximum value of a region midway along an exterior edge would
// otherwise be missed between vertices.
func projectedExtents(xValues, yValues []float64, sr *proj.SR, region geom.Polygon) (xyExtents, error) {
	geographicSR, err := proj.Parse(geographicProj)
	if err != nil {
		return xyExtents{}, fmt.Errorf("gridslice: parsing geographic projection: %v", err)
	}
	toGeographic, err := sr.NewTransform(geographicSR)
	if err != nil {
		return xyExtents{}, fmt.Errorf("gridslice: creating inverse grid transform: %v", err)
	}
	resolution, err := geographicResolution(xValues, yValues, toGeographic)
	if err != nil {
		return xyExtents{}, err
	}

	fromGeographic, err := geographicSR.NewTransform(sr)
	if err != nil {
		return xyExtents{}, fmt.Errorf("gridslice: creating grid transform: %v", err)
	}
	extents := xyExtents{
		xMin: math.Inf(1), xMax: math.Inf(-1),
		yMin: math.Inf(1), yMax: math.Inf(-1),
	}
	valid := false
	for _, ring := range region {
		for _, point := range densifyRing(ring, resolution) {
			x, y, err := fromGeographic(point.X, point.Y)
			if err != nil || math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
				// Point outside the valid domain of the projection.
				continue
			}
			extents.xMin = math.Min(extents.xMin, x)
			extents.xMax = math.Max(extents.xMax, x)
			extents.yMin = math.Min(extents.yMin, y)
			extents.yMax = math.Max(extents.yMax, y)
			valid = true
		}
	}
	if !valid {
		return xyExtents{}, &OutOfGridExtentError{Region: "spatial region"}
	}
	return extents, nil
}

// geographicResolution inverse-projects the grid defined by the x and y
// dimension scales and returns the minimum Euclidean distance in degrees
// between diagonally adjacent cells. Over single-cell distances the
// difference from the geodesic distance is negligible.
func geographicResolution(xValues, yValues []float64, toGeographic proj.Transformer) (float64, error) {
	nx, ny := len(xValues), len(yValues)
	if nx < 2 || ny < 2 {
		return 0, &ConfigurationError{Subject: "projected grid", Reason: "grid too small to derive a resolution"}
	}
	longitudes := make([]float64, nx*ny)
	latitudes := make([]float64, nx*ny)
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			lon, lat, err := toGeographic(xValues[i], yValues[j])
			if err != nil {
				lon, lat = math.NaN(), math.NaN()
			}
			longitudes[j*nx+i] = lon
			latitudes[j*nx+i] = lat
		}
	}
	resolution := math.Inf(1)
	for j := 1; j < ny; j++ {
		for i := 1; i < nx; i++ {
			dLon := longitudes[j*nx+i] - longitudes[(j-1)*nx+i-1]
			dLat := latitudes[j*nx+i] - latitudes[(j-1)*nx+i-1]
			distance := math.Sqrt(dLon*dLon + dLat*dLat)
			if !math.IsNaN(distance) && distance < resolution {
				resolution = distance
			}
		}
	}
	if math.IsInf(resolution, 1) {
		return 0, &OutOfGridExtentError{Region: "grid"}
	}
	return resolution, nil
}

// densifyRing places points along each segment of a ring at intervals no
// larger than the given resolution. Each segment keeps its original
// endpoints; the final point of each segment is dropped because it repeats
// the first point of the next. Open rings keep their last point.
func densifyRing(ring []geom.Point, resolution float64) []geom.Point {
	if len(ring) < 2 {
		return ring
	}
	closed := ring[0] == ring[len(ring)-1]
	var out []geom.Point
	for i := 0; i < len(ring)-1; i++ {
		out = append(out, densifySegment(ring[i], ring[i+1], resolution)...)
	}
	if !closed {
		out = append(out, ring[len(ring)-1])
	}
	return out
}

// densifySegment returns equally spaced points from one segment endpoint up
// to, but not including, the other.
func densifySegment(a, b geom.Point, resolution float64) []geom.Point {
	distance := math.Hypot(b.X-a.X, b.Y-a.Y)
	n := int(math.Ceil(distance/resolution)) + 1
	if n < 2 {
		return []geom.Point{a}
	}
	points := make([]geom.Point, 0, n-1)
	for i := 0; i < n-1; i++ {
		t := float64(i) / float64(n-1)
		points = append(points, geom.Point{X: a.X + t*(b.X-a.X), Y: a.Y + t*(b.Y-a.Y)})
	}
	return points
}
