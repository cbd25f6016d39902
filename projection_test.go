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
	"testing"

	"github.com/ctessum/geom"

	"github.com/spatialgrid/gridslice/varinfo"
)

func TestProj4FromCF(t *testing.T) {
	tests := []struct {
		name       string
		attributes []varinfo.Attribute
		want       string
	}{
		{
			name: "lambert conformal conic",
			attributes: []varinfo.Attribute{
				{Name: "grid_mapping_name", Value: "lambert_conformal_conic"},
				{Name: "standard_parallel", Value: "33.0 45.0"},
				{Name: "latitude_of_projection_origin", Value: "40.0"},
				{Name: "longitude_of_central_meridian", Value: "-97.0"},
				{Name: "false_easting", Value: "0.0"},
				{Name: "false_northing", Value: "0.0"},
			},
			want: "+proj=lcc +lat_1=33.0 +lat_2=45.0 +lat_0=40.0 +lon_0=-97.0 +x_0=0.0 +y_0=0.0 +units=m +no_defs",
		},
		{
			name: "latitude longitude",
			attributes: []varinfo.Attribute{
				{Name: "grid_mapping_name", Value: "latitude_longitude"},
				{Name: "semi_major_axis", Value: "6378137.0"},
				{Name: "inverse_flattening", Value: "298.257223563"},
			},
			want: "+proj=longlat +a=6378137.0 +rf=298.257223563 +no_defs",
		},
		{
			name: "polar mercator",
			attributes: []varinfo.Attribute{
				{Name: "grid_mapping_name", Value: "mercator"},
				{Name: "standard_parallel", Value: "-70.0"},
				{Name: "longitude_of_projection_origin", Value: "0.0"},
			},
			want: "+proj=merc +lat_ts=-70.0 +lon_0=0.0 +units=m +no_defs",
		},
		{
			name: "transverse mercator",
			attributes: []varinfo.Attribute{
				{Name: "grid_mapping_name", Value: "transverse_mercator"},
				{Name: "latitude_of_projection_origin", Value: "0.0"},
				{Name: "longitude_of_central_meridian", Value: "9.0"},
				{Name: "scale_factor_at_central_meridian", Value: "0.9996"},
			},
			want: "+proj=tmerc +lat_0=0.0 +lon_0=9.0 +k=0.9996 +units=m +no_defs",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := proj4FromCF(test.attributes)
			if err != nil {
				t.Fatal(err)
			}
			if got != test.want {
				t.Errorf("got %q, want %q", got, test.want)
			}
		})
	}
}

func TestProj4FromCFUnsupported(t *testing.T) {
	var configErr *ConfigurationError
	_, err := proj4FromCF([]varinfo.Attribute{
		{Name: "grid_mapping_name", Value: "geostationary"},
	})
	if !errors.As(err, &configErr) {
		t.Errorf("got %v, want ConfigurationError", err)
	}
	if _, err := proj4FromCF(nil); !errors.As(err, &configErr) {
		t.Errorf("got %v, want ConfigurationError", err)
	}
}

func TestDensifySegment(t *testing.T) {
	a, b := geom.Point{X: 0, Y: 0}, geom.Point{X: 10, Y: 0}
	points := densifySegment(a, b, 2.5)
	// ceil(10/2.5)+1 = 5 points over the full segment; the endpoint is
	// dropped.
	if len(points) != 4 {
		t.Fatalf("got %d points, want 4", len(points))
	}
	if points[0] != a {
		t.Errorf("first point = %v, want %v", points[0], a)
	}
	if points[1] != (geom.Point{X: 2.5, Y: 0}) {
		t.Errorf("second point = %v", points[1])
	}

	// A segment shorter than the resolution keeps only its start point.
	if points := densifySegment(a, geom.Point{X: 1, Y: 0}, 5); len(points) != 1 || points[0] != a {
		t.Errorf("short segment: got %v", points)
	}
}

func TestDensifyRing(t *testing.T) {
	ring := []geom.Point{{X: 0, Y: 0}, {X: 4, Y: 0}, {X: 4, Y: 4}, {X: 0, Y: 4}, {X: 0, Y: 0}}
	points := densifyRing(ring, 1)
	// Each 4-unit edge yields ceil(4)+1-1 = 4 points, and the closing
	// point is never repeated.
	if len(points) != 16 {
		t.Fatalf("got %d points, want 16", len(points))
	}
	for i := 1; i < len(points); i++ {
		if points[i] == points[i-1] {
			t.Fatalf("repeated point at %d: %v", i, points[i])
		}
	}

	open := []geom.Point{{X: 0, Y: 0}, {X: 2, Y: 0}}
	points = densifyRing(open, 1)
	if points[len(points)-1] != (geom.Point{X: 2, Y: 0}) {
		t.Errorf("open path must keep its last point, got %v", points)
	}
}
