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
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/geojson"
	"github.com/ctessum/geom/encoding/shp"
)

// BoundingBox is a geographic bounding box in degrees. West > East means
// the box crosses the antimeridian.
type BoundingBox struct {
	West, South, East, North float64
}

// Polygon returns the box as a closed rectangular ring.
func (b BoundingBox) Polygon() geom.Polygon {
	return geom.Polygon{{
		{X: b.West, Y: b.South},
		{X: b.East, Y: b.South},
		{X: b.East, Y: b.North},
		{X: b.West, Y: b.North},
		{X: b.West, Y: b.South},
	}}
}

// LoadShape reads a GeoJSON or ESRI shapefile from disk and returns its
// geometry. Shapefile rows are combined into a single geometry collection.
func LoadShape(path string) (geom.Geom, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		return loadShapefile(path)
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &InvalidShapeError{Path: path, Reason: err.Error()}
		}
		g, err := geojson.Decode(data)
		if err != nil {
			return nil, &InvalidShapeError{Path: path, Reason: err.Error()}
		}
		return g, nil
	}
}

func loadShapefile(path string) (geom.Geom, error) {
	decoder, err := shp.NewDecoder(path)
	if err != nil {
		return nil, &InvalidShapeError{Path: path, Reason: err.Error()}
	}
	defer decoder.Close()
	var collection geom.GeometryCollection
	for {
		var row struct{ geom.Geom }
		if ok := decoder.DecodeRow(&row); !ok {
			break
		}
		collection = append(collection, row.Geom)
	}
	if err := decoder.Error(); err != nil {
		return nil, &InvalidShapeError{Path: path, Reason: err.Error()}
	}
	if len(collection) == 0 {
		return nil, &InvalidShapeError{Path: path, Reason: "no geometry records"}
	}
	return collection, nil
}

// ShapeBBox computes the bounding box that minimally encompasses a
// geometry. Sub-geometries whose longitudes jump by more than 180 degrees
// are treated as crossing the antimeridian and grouped on either side of
// it, so the returned box may have West > East. Shape files are recommended
// to split geometries at the antimeridian, but user-supplied ones often do
// not.
func ShapeBBox(g geom.Geom) (BoundingBox, error) {
	groups := coordinateGroups(g)
	if len(groups) == 0 {
		return BoundingBox{}, &InvalidShapeError{Reason: "geometry contains no coordinates"}
	}

	contiguous, hasContiguous := contiguousBBox(groups)
	antimeridian, hasAntimeridian := antimeridianBBox(groups)

	south := math.Inf(1)
	north := math.Inf(-1)
	for _, box := range []struct {
		b  BoundingBox
		ok bool
	}{{contiguous, hasContiguous}, {antimeridian, hasAntimeridian}} {
		if box.ok {
			south = math.Min(south, box.b.South)
			north = math.Max(north, box.b.North)
		}
	}

	var west, east float64
	switch {
	case !hasAntimeridian:
		west, east = contiguous.West, contiguous.East
	case !hasContiguous:
		west, east = antimeridian.West, antimeridian.East
	case inLongitudeRange(contiguous, -180, antimeridian.East) ||
		inLongitudeRange(contiguous, antimeridian.West, 180):
		// The antimeridian-crossing box already encompasses the
		// contiguous one.
		west, east = antimeridian.West, antimeridian.East
	case antimeridian.East-contiguous.West < contiguous.East-antimeridian.West:
		west, east = contiguous.West, antimeridian.East
	default:
		west, east = antimeridian.West, contiguous.East
	}
	return BoundingBox{West: west, South: south, East: east, North: north}, nil
}

// ShapePolygon flattens a geometry into polygon rings and open paths
// suitable for perimeter densification on projected grids. Polygon holes
// are enclosed by their exteriors and cannot contain an extreme point, so
// only exterior rings are kept.
func ShapePolygon(g geom.Geom) geom.Polygon {
	var out geom.Polygon
	switch s := g.(type) {
	case geom.Point:
		out = append(out, []geom.Point{s})
	case geom.MultiPoint:
		for _, p := range s {
			out = append(out, []geom.Point{p})
		}
	case geom.LineString:
		out = append(out, geom.Path(s))
	case geom.MultiLineString:
		for _, line := range s {
			out = append(out, geom.Path(line))
		}
	case geom.Polygon:
		if len(s) > 0 {
			out = append(out, s[0])
		}
	case geom.MultiPolygon:
		for _, polygon := range s {
			if len(polygon) > 0 {
				out = append(out, polygon[0])
			}
		}
	case geom.GeometryCollection:
		for _, sub := range s {
			out = append(out, ShapePolygon(sub)...)
		}
	}
	return out
}

// coordinateGroup holds the ordered coordinates of one sub-geometry.
// Sub-geometries stay separate so that a multi-part shape spanning the
// globe is not spuriously identified as crossing the antimeridian.
type coordinateGroup struct {
	lons, lats []float64
}

func coordinateGroups(g geom.Geom) []coordinateGroup {
	var groups []coordinateGroup
	addPath := func(points []geom.Point) {
		group := coordinateGroup{}
		for _, p := range points {
			group.lons = append(group.lons, p.X)
			group.lats = append(group.lats, p.Y)
		}
		if len(group.lons) > 0 {
			groups = append(groups, group)
		}
	}
	switch s := g.(type) {
	case geom.Point:
		addPath([]geom.Point{s})
	case geom.MultiPoint:
		addPath(s)
	case geom.LineString:
		addPath(s)
	case geom.MultiLineString:
		for _, line := range s {
			addPath(line)
		}
	case geom.Polygon:
		for _, ring := range s {
			addPath(ring)
		}
	case geom.MultiPolygon:
		for _, polygon := range s {
			for _, ring := range polygon {
				addPath(ring)
			}
		}
	case geom.GeometryCollection:
		for _, sub := range s {
			groups = append(groups, coordinateGroups(sub)...)
		}
	}
	return groups
}

// crossesAntimeridian reports whether consecutive longitudes jump by more
// than 180 degrees, the usual indication that a path wraps rather than
// traverses the long way around.
func crossesAntimeridian(lons []float64) bool {
	for i := 1; i < len(lons); i++ {
		if math.Abs(lons[i]-lons[i-1]) > 180 {
			return true
		}
	}
	return false
}

// contiguousBBox encapsulates all sub-geometries that do not cross the
// antimeridian.
func contiguousBBox(groups []coordinateGroup) (BoundingBox, bool) {
	box := BoundingBox{West: math.Inf(1), South: math.Inf(1), East: math.Inf(-1), North: math.Inf(-1)}
	found := false
	for _, group := range groups {
		if len(group.lons) > 1 && crossesAntimeridian(group.lons) {
			continue
		}
		for i := range group.lons {
			box.West = math.Min(box.West, group.lons[i])
			box.East = math.Max(box.East, group.lons[i])
			box.South = math.Min(box.South, group.lats[i])
			box.North = math.Max(box.North, group.lats[i])
		}
		found = true
	}
	return box, found
}

// antimeridianBBox encapsulates all sub-geometries that cross the
// antimeridian. The returned box crosses it too (West > East).
func antimeridianBBox(groups []coordinateGroup) (BoundingBox, bool) {
	box := BoundingBox{West: math.Inf(1), South: math.Inf(1), East: math.Inf(-1), North: math.Inf(-1)}
	found := false
	for _, group := range groups {
		if len(group.lons) < 2 || !crossesAntimeridian(group.lons) {
			continue
		}
		sub := antimeridianGroupBBox(group)
		box.West = math.Min(box.West, sub.West)
		box.East = math.Max(box.East, sub.East)
		box.South = math.Min(box.South, sub.South)
		box.North = math.Max(box.North, sub.North)
		found = true
	}
	return box, found
}

// antimeridianGroupBBox splits one antimeridian-crossing sub-geometry's
// longitudes into the runs on either side of the seam. The run with the
// lower mean longitude is assumed to lie east of the antimeridian.
func antimeridianGroupBBox(group coordinateGroup) BoundingBox {
	groupOne := []float64{group.lons[0]}
	var groupTwo []float64
	inGroupOne := true
	for i := 1; i < len(group.lons); i++ {
		if math.Abs(group.lons[i]-group.lons[i-1]) > 180 {
			inGroupOne = !inGroupOne
		}
		if inGroupOne {
			groupOne = append(groupOne, group.lons[i])
		} else {
			groupTwo = append(groupTwo, group.lons[i])
		}
	}
	eastLons, westLons := groupOne, groupTwo
	if mean(groupOne) >= mean(groupTwo) {
		eastLons, westLons = groupTwo, groupOne
	}

	box := BoundingBox{West: math.Inf(1), South: math.Inf(1), East: math.Inf(-1), North: math.Inf(-1)}
	for _, lon := range westLons {
		box.West = math.Min(box.West, lon)
	}
	for _, lon := range eastLons {
		box.East = math.Max(box.East, lon)
	}
	for _, lat := range group.lats {
		box.South = math.Min(box.South, lat)
		box.North = math.Max(box.North, lat)
	}
	return box
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// inLongitudeRange reports whether the box lies entirely within the given
// longitude limits.
func inLongitudeRange(box BoundingBox, westLimit, eastLimit float64) bool {
	return westLimit <= box.West && box.West <= eastLimit &&
		westLimit <= box.East && box.East <= eastLimit
}
