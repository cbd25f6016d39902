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
	"testing"

	"github.com/spatialgrid/gridslice/varinfo"
)

// projectedDMR describes a Lambert conformal granule whose temperature
// variable is gridded on projected y/x dimensions, alongside a time
// coordinate and a grid mapping variable that carry no grid_mapping
// metadata of their own.
const projectedDMR = `<?xml version="1.0" encoding="UTF-8"?>
<Dataset xmlns="http://xml.opendap.org/ns/DAP/4.0#" name="projected_granule">
  <Dimension name="time" size="2"/>
  <Dimension name="y" size="4"/>
  <Dimension name="x" size="6"/>
  <Float64 name="time">
    <Dim name="/time"/>
    <Attribute name="units" type="String">
      <Value>seconds since 2020-01-01T00:00:00</Value>
    </Attribute>
  </Float64>
  <Float64 name="y">
    <Dim name="/y"/>
    <Attribute name="standard_name" type="String">
      <Value>projection_y_coordinate</Value>
    </Attribute>
  </Float64>
  <Float64 name="x">
    <Dim name="/x"/>
    <Attribute name="standard_name" type="String">
      <Value>projection_x_coordinate</Value>
    </Attribute>
  </Float64>
  <Int32 name="crs">
    <Attribute name="grid_mapping_name" type="String">
      <Value>lambert_conformal_conic</Value>
    </Attribute>
    <Attribute name="standard_parallel" type="String">
      <Value>33.0 45.0</Value>
    </Attribute>
    <Attribute name="latitude_of_projection_origin" type="String">
      <Value>40.0</Value>
    </Attribute>
    <Attribute name="longitude_of_central_meridian" type="String">
      <Value>-97.0</Value>
    </Attribute>
  </Int32>
  <Float32 name="temperature">
    <Dim name="/time"/>
    <Dim name="/y"/>
    <Dim name="/x"/>
    <Attribute name="grid_mapping" type="String">
      <Value>crs</Value>
    </Attribute>
  </Float32>
</Dataset>`

// Variables without projected dimensions, such as the time coordinate and
// the grid mapping variable itself, must be passed over without consulting
// their (absent) grid mapping metadata.
func TestAddProjectedIndexRangesSkipsUngridded(t *testing.T) {
	vi, err := varinfo.New([]byte(projectedDMR), nil)
	if err != nil {
		t.Fatal(err)
	}

	indexRanges := make(IndexRanges)
	for _, path := range []string{"/time", "/crs"} {
		if err := addProjectedIndexRanges(indexRanges, NewDataset(), vi, path, &BoundingBox{West: -100, South: 35, East: -90, North: 45}, nil, nil); err != nil {
			t.Errorf("%s: %v", path, err)
		}
	}
	if len(indexRanges) != 0 {
		t.Errorf("index ranges = %v, want none", indexRanges)
	}
}
