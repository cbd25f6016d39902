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
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/ctessum/geom"
)

func TestShapeBBox(t *testing.T) {
	contiguous := geom.Polygon{{
		{X: 10, Y: 40}, {X: 20, Y: 40}, {X: 20, Y: 50}, {X: 10, Y: 50}, {X: 10, Y: 40},
	}}
	crossing := geom.Polygon{{
		{X: 170, Y: 0}, {X: -175, Y: 0}, {X: -175, Y: 10}, {X: 170, Y: 10}, {X: 170, Y: 0},
	}}

	tests := []struct {
		name  string
		shape geom.Geom
		want  BoundingBox
	}{
		{
			name:  "contiguous polygon",
			shape: contiguous,
			want:  BoundingBox{West: 10, South: 40, East: 20, North: 50},
		},
		{
			name:  "antimeridian-crossing polygon",
			shape: crossing,
			want:  BoundingBox{West: 170, South: 0, East: -175, North: 10},
		},
		{
			name: "crossing polygon plus point east of it",
			shape: geom.GeometryCollection{
				crossing,
				geom.Point{X: -170, Y: 5},
			},
			want: BoundingBox{West: 170, South: 0, East: -170, North: 10},
		},
		{
			name: "crossing polygon encompassing a point",
			shape: geom.GeometryCollection{
				crossing,
				geom.Point{X: 175, Y: 5},
			},
			want: BoundingBox{West: 170, South: 0, East: -175, North: 10},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := ShapeBBox(test.shape)
			if err != nil {
				t.Fatal(err)
			}
			if got != test.want {
				t.Errorf("got %+v, want %+v", got, test.want)
			}
		})
	}
}

func TestShapeBBoxEmpty(t *testing.T) {
	if _, err := ShapeBBox(geom.GeometryCollection{}); err == nil {
		t.Error("expected an error for an empty geometry")
	}
}

func TestShapePolygon(t *testing.T) {
	shape := geom.MultiPolygon{
		{
			{{X: 0, Y: 0}, {X: 4, Y: 0}, {X: 4, Y: 4}, {X: 0, Y: 4}, {X: 0, Y: 0}},
			{{X: 1, Y: 1}, {X: 2, Y: 1}, {X: 2, Y: 2}, {X: 1, Y: 2}, {X: 1, Y: 1}}, // hole
		},
		{
			{{X: 10, Y: 10}, {X: 12, Y: 10}, {X: 11, Y: 12}, {X: 10, Y: 10}},
		},
	}
	got := ShapePolygon(shape)
	if len(got) != 2 {
		t.Fatalf("got %d rings, want 2 (holes dropped)", len(got))
	}
	if !reflect.DeepEqual(got[0], shape[0][0]) {
		t.Errorf("first ring = %v, want exterior %v", got[0], shape[0][0])
	}
}

func TestShapePolygonLines(t *testing.T) {
	line := geom.LineString{{X: 0, Y: 0}, {X: 5, Y: 5}}
	got := ShapePolygon(line)
	if len(got) != 1 || !reflect.DeepEqual(got[0], geom.Path(line)) {
		t.Errorf("line rings = %v", got)
	}

	multi := geom.MultiLineString{
		{{X: 0, Y: 0}, {X: 1, Y: 0}},
		{{X: 2, Y: 2}, {X: 3, Y: 2}},
	}
	got = ShapePolygon(multi)
	if len(got) != 2 || !reflect.DeepEqual(got[1], geom.Path(multi[1])) {
		t.Errorf("multi-line rings = %v", got)
	}
}

func TestBoundingBoxPolygon(t *testing.T) {
	box := BoundingBox{West: -10, South: 20, East: 30, North: 40}
	ring := box.Polygon()[0]
	if len(ring) != 5 || ring[0] != ring[4] {
		t.Fatalf("expected a closed 5-point ring, got %v", ring)
	}
	if ring[2] != (geom.Point{X: 30, Y: 40}) {
		t.Errorf("northeast corner = %v", ring[2])
	}
}

func TestLoadShapeGeoJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "region.geojson")
	data := `{"type": "Polygon", "coordinates": [[[10, 40], [20, 40], [20, 50], [10, 50], [10, 40]]]}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	g, err := LoadShape(path)
	if err != nil {
		t.Fatal(err)
	}
	box, err := ShapeBBox(g)
	if err != nil {
		t.Fatal(err)
	}
	if box != (BoundingBox{West: 10, South: 40, East: 20, North: 50}) {
		t.Errorf("got %+v", box)
	}
}

func TestLoadShapeMissingFile(t *testing.T) {
	if _, err := LoadShape(filepath.Join(t.TempDir(), "missing.geojson")); err == nil {
		t.Error("expected an error for a missing file")
	}
}
