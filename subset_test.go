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
	"bytes"
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/ctessum/sparse"

	"github.com/spatialgrid/gridslice/varinfo"
)

// testDMR describes a small geographic granule: a temperature array on a
// 2 x 4 x 6 time/lat/lon grid.
const testDMR = `<?xml version="1.0" encoding="UTF-8"?>
<Dataset xmlns="http://xml.opendap.org/ns/DAP/4.0#" name="test_granule">
  <Dimension name="time" size="2"/>
  <Dimension name="lat" size="4"/>
  <Dimension name="lon" size="6"/>
  <Float64 name="time">
    <Dim name="/time"/>
    <Attribute name="units" type="String">
      <Value>seconds since 2020-01-01T00:00:00</Value>
    </Attribute>
  </Float64>
  <Float64 name="lat">
    <Dim name="/lat"/>
    <Attribute name="units" type="String">
      <Value>degrees_north</Value>
    </Attribute>
  </Float64>
  <Float64 name="lon">
    <Dim name="/lon"/>
    <Attribute name="units" type="String">
      <Value>degrees_east</Value>
    </Attribute>
  </Float64>
  <Float32 name="temperature">
    <Dim name="/time"/>
    <Dim name="/lat"/>
    <Dim name="/lon"/>
    <Attribute name="coordinates" type="String">
      <Value>time lat lon</Value>
    </Attribute>
  </Float32>
</Dataset>`

func newTestVarInfo(t *testing.T) *varinfo.VarInfo {
	t.Helper()
	vi, err := varinfo.New([]byte(testDMR), nil)
	if err != nil {
		t.Fatal(err)
	}
	return vi
}

// writeTestGranule writes the full granule the test DMR describes.
func writeTestGranule(t *testing.T, path string) {
	t.Helper()
	ds := NewDataset()
	timeData := sparse.ZerosDense(2)
	copy(timeData.Elements, []float64{0, 3600})
	latData := sparse.ZerosDense(4)
	copy(latData.Elements, []float64{-30, -10, 10, 30})
	lonData := sparse.ZerosDense(6)
	copy(lonData.Elements, []float64{0, 60, 120, 180, 240, 300})
	temperature := sparse.ZerosDense(2, 4, 6)
	for i := range temperature.Elements {
		temperature.Elements[i] = float64(i)
	}
	for _, v := range []*DataVariable{
		{Path: "/time", Dimensions: []string{"/time"}, Data: timeData},
		{Path: "/lat", Dimensions: []string{"/lat"}, Data: latData},
		{Path: "/lon", Dimensions: []string{"/lon"}, Data: lonData},
		{Path: "/temperature", Dimensions: []string{"/time", "/lat", "/lon"}, Data: temperature},
	} {
		if err := ds.AddVariable(v); err != nil {
			t.Fatal(err)
		}
	}
	if err := ds.WriteFile(path); err != nil {
		t.Fatal(err)
	}
}

// fakeClient serves the test DMR and granule from disk, recording the
// constraint expressions it receives.
type fakeClient struct {
	dmr         []byte
	granulePath string
	constraints []string
}

func (c *fakeClient) FetchDMR(ctx context.Context, granuleURL string) ([]byte, error) {
	return c.dmr, nil
}

func (c *fakeClient) FetchData(ctx context.Context, granuleURL, constraintExpression string) (string, error) {
	c.constraints = append(c.constraints, constraintExpression)
	return c.granulePath, nil
}

func newTestSubsetter(t *testing.T) (*Subsetter, *fakeClient) {
	t.Helper()
	dir := t.TempDir()
	granulePath := filepath.Join(dir, "source.nc4")
	writeTestGranule(t, granulePath)
	client := &fakeClient{dmr: []byte(testDMR), granulePath: granulePath}
	return &Subsetter{Client: client, OutputDir: dir}, client
}

func TestSubsetBBox(t *testing.T) {
	s, client := newTestSubsetter(t)
	result, err := s.Subset(context.Background(), Request{
		GranuleURL: "https://example.com/granules/test_granule.nc4",
		BBox:       &BoundingBox{West: 100, South: -15, East: 200, North: 15},
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.EmptyRange {
		t.Fatal("unexpected empty range")
	}

	wantConstraints := []string{
		"/lat;/lon;/time",
		"/lat[1:2];/lon[2:3];/temperature[][1:2][2:3];/time",
	}
	if !reflect.DeepEqual(client.constraints, wantConstraints) {
		t.Errorf("constraints = %q, want %q", client.constraints, wantConstraints)
	}

	if filepath.Base(result.FilePath) != "test_granule_subsetted.nc4" {
		t.Errorf("output file = %s", result.FilePath)
	}
	if _, err := os.Stat(result.FilePath); err != nil {
		t.Errorf("output file not written: %v", err)
	}
}

func TestSubsetAntimeridian(t *testing.T) {
	s, client := newTestSubsetter(t)
	result, err := s.Subset(context.Background(), Request{
		GranuleURL: "https://example.com/granules/test_granule.nc4",
		BBox:       &BoundingBox{West: 170, South: -90, East: 10, North: 90},
	})
	if err != nil {
		t.Fatal(err)
	}

	// The longitude range wraps, so the full axis is fetched and the
	// output is reassembled into the contiguous window.
	dataConstraint := client.constraints[len(client.constraints)-1]
	want := "/lat[0:3];/lon;/temperature[][0:3][];/time"
	if dataConstraint != want {
		t.Errorf("constraint = %q, want %q", dataConstraint, want)
	}

	if got := result.Dataset.Dimensions["/lon"]; got != 4 {
		t.Errorf("/lon size = %d, want 4", got)
	}
	wantLon := []float64{180, 240, 300, 0}
	if !reflect.DeepEqual(result.Dataset.Variables["/lon"].Data.Elements, wantLon) {
		t.Errorf("lon = %v, want %v", result.Dataset.Variables["/lon"].Data.Elements, wantLon)
	}
	if !reflect.DeepEqual(result.Dataset.Variables["/temperature"].Data.Shape, []int{2, 4, 4}) {
		t.Errorf("temperature shape = %v", result.Dataset.Variables["/temperature"].Data.Shape)
	}
}

func TestSubsetEmptyRange(t *testing.T) {
	s, _ := newTestSubsetter(t)
	result, err := s.Subset(context.Background(), Request{
		GranuleURL: "https://example.com/granules/test_granule.nc4",
		BBox:       &BoundingBox{West: 0, South: 80, East: 90, North: 85},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !result.EmptyRange {
		t.Fatal("expected an empty-range result")
	}
	if result.EmptyDimension != "/lat" {
		t.Errorf("dimension = %q, want /lat", result.EmptyDimension)
	}
	if result.FilePath != "" || result.Dataset != nil {
		t.Error("empty-range results must not carry output")
	}
}

func TestSubsetTemporal(t *testing.T) {
	s, client := newTestSubsetter(t)
	_, err := s.Subset(context.Background(), Request{
		GranuleURL: "https://example.com/granules/test_granule.nc4",
		Temporal: &TemporalRange{
			Start: time.Date(2020, 1, 1, 0, 30, 0, 0, time.UTC),
			End:   time.Date(2020, 1, 1, 1, 30, 0, 0, time.UTC),
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	want := "/lat;/lon;/temperature[1:1][][];/time[1:1]"
	if got := client.constraints[len(client.constraints)-1]; got != want {
		t.Errorf("constraint = %q, want %q", got, want)
	}
}

func TestSubsetNamedDimension(t *testing.T) {
	s, client := newTestSubsetter(t)
	_, err := s.Subset(context.Background(), Request{
		GranuleURL: "https://example.com/granules/test_granule.nc4",
		Dimensions: map[string]DimensionRange{
			"lat": {Min: fp(-15), Max: fp(15)},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	want := "/lat[1:2];/lon;/temperature[][1:2][];/time"
	if got := client.constraints[len(client.constraints)-1]; got != want {
		t.Errorf("constraint = %q, want %q", got, want)
	}
}

func TestSubsetInvalidNamedDimension(t *testing.T) {
	s, _ := newTestSubsetter(t)
	_, err := s.Subset(context.Background(), Request{
		GranuleURL: "https://example.com/granules/test_granule.nc4",
		Dimensions: map[string]DimensionRange{
			"depth": {Min: fp(0), Max: fp(10)},
		},
	})
	if _, ok := err.(*InvalidNamedDimensionError); !ok {
		t.Errorf("got %v, want InvalidNamedDimensionError", err)
	}
}

func TestSubsetWholeGranule(t *testing.T) {
	s, client := newTestSubsetter(t)
	result, err := s.Subset(context.Background(), Request{
		GranuleURL: "https://example.com/granules/test_granule.nc4",
	})
	if err != nil {
		t.Fatal(err)
	}
	// No constraints at all: one unconstrained fetch, no prefetch.
	if !reflect.DeepEqual(client.constraints, []string{""}) {
		t.Errorf("constraints = %q", client.constraints)
	}
	if result.Dataset.Variables["/temperature"] == nil {
		t.Error("missing temperature data")
	}
}

func TestSubsetVariablesOnly(t *testing.T) {
	s, client := newTestSubsetter(t)
	_, err := s.Subset(context.Background(), Request{
		GranuleURL: "https://example.com/granules/test_granule.nc4",
		Variables:  []string{"/temperature"},
	})
	if err != nil {
		t.Fatal(err)
	}
	// Variable subsetting without index constraints needs no prefetch,
	// only a names-only constraint over the required set.
	want := []string{"/lat;/lon;/temperature;/time"}
	if !reflect.DeepEqual(client.constraints, want) {
		t.Errorf("constraints = %q, want %q", client.constraints, want)
	}
}

func TestSubsetCombinedConstraints(t *testing.T) {
	s, client := newTestSubsetter(t)
	_, err := s.Subset(context.Background(), Request{
		GranuleURL: "https://example.com/granules/test_granule.nc4",
		BBox:       &BoundingBox{West: 100, South: -15, East: 200, North: 15},
		Temporal: &TemporalRange{
			Start: time.Date(2020, 1, 1, 0, 30, 0, 0, time.UTC),
			End:   time.Date(2020, 1, 1, 1, 30, 0, 0, time.UTC),
		},
		Dimensions: map[string]DimensionRange{
			"time": {Min: fp(0), Max: fp(0)},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	// Named ranges resolve first, then spatial, then temporal, so the
	// temporal request supersedes the named range on the time dimension.
	want := "/lat[1:2];/lon[2:3];/temperature[1:1][1:2][2:3];/time[1:1]"
	if got := client.constraints[len(client.constraints)-1]; got != want {
		t.Errorf("constraint = %q, want %q", got, want)
	}
}

func TestSubsetIdempotent(t *testing.T) {
	s, _ := newTestSubsetter(t)
	req := Request{
		GranuleURL: "https://example.com/granules/test_granule.nc4",
		BBox:       &BoundingBox{West: 100, South: -15, East: 200, North: 15},
	}

	first, err := s.Subset(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	firstBytes, err := os.ReadFile(first.FilePath)
	if err != nil {
		t.Fatal(err)
	}

	second, err := s.Subset(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	secondBytes, err := os.ReadFile(second.FilePath)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(firstBytes, secondBytes) {
		t.Error("repeated identical requests must produce byte-identical output")
	}
}

// metadataDMR extends the test granule with a quality variable that has no
// coordinate references, making it a metadata variable.
const metadataDMR = `<?xml version="1.0" encoding="UTF-8"?>
<Dataset xmlns="http://xml.opendap.org/ns/DAP/4.0#" name="test_granule">
  <Dimension name="time" size="2"/>
  <Dimension name="lat" size="4"/>
  <Dimension name="lon" size="6"/>
  <Float64 name="time">
    <Dim name="/time"/>
    <Attribute name="units" type="String">
      <Value>seconds since 2020-01-01T00:00:00</Value>
    </Attribute>
  </Float64>
  <Float64 name="lat">
    <Dim name="/lat"/>
    <Attribute name="units" type="String">
      <Value>degrees_north</Value>
    </Attribute>
  </Float64>
  <Float64 name="lon">
    <Dim name="/lon"/>
    <Attribute name="units" type="String">
      <Value>degrees_east</Value>
    </Attribute>
  </Float64>
  <Float32 name="temperature">
    <Dim name="/time"/>
    <Dim name="/lat"/>
    <Dim name="/lon"/>
    <Attribute name="coordinates" type="String">
      <Value>time lat lon</Value>
    </Attribute>
  </Float32>
  <Float32 name="quality">
    <Dim name="/lat"/>
    <Dim name="/lon"/>
  </Float32>
</Dataset>`

func TestSubsetIncludesMetadataVariables(t *testing.T) {
	dir := t.TempDir()
	granulePath := filepath.Join(dir, "source.nc4")

	ds := NewDataset()
	timeData := sparse.ZerosDense(2)
	copy(timeData.Elements, []float64{0, 3600})
	latData := sparse.ZerosDense(4)
	copy(latData.Elements, []float64{-30, -10, 10, 30})
	lonData := sparse.ZerosDense(6)
	copy(lonData.Elements, []float64{0, 60, 120, 180, 240, 300})
	for _, v := range []*DataVariable{
		{Path: "/time", Dimensions: []string{"/time"}, Data: timeData},
		{Path: "/lat", Dimensions: []string{"/lat"}, Data: latData},
		{Path: "/lon", Dimensions: []string{"/lon"}, Data: lonData},
		{Path: "/temperature", Dimensions: []string{"/time", "/lat", "/lon"}, Data: sparse.ZerosDense(2, 4, 6)},
		{Path: "/quality", Dimensions: []string{"/lat", "/lon"}, Data: sparse.ZerosDense(4, 6)},
	} {
		if err := ds.AddVariable(v); err != nil {
			t.Fatal(err)
		}
	}
	if err := ds.WriteFile(granulePath); err != nil {
		t.Fatal(err)
	}

	client := &fakeClient{dmr: []byte(metadataDMR), granulePath: granulePath}
	s := &Subsetter{Client: client, OutputDir: dir}
	result, err := s.Subset(context.Background(), Request{
		GranuleURL: "https://example.com/granules/test_granule.nc4",
		BBox:       &BoundingBox{West: 100, South: -15, East: 200, North: 15},
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.EmptyRange {
		t.Fatal("unexpected empty range")
	}

	// With no variables named, an index subset covers the science
	// variables and the granule's metadata variables.
	want := "/lat[1:2];/lon[2:3];/quality[1:2][2:3];/temperature[][1:2][2:3];/time"
	if got := client.constraints[len(client.constraints)-1]; got != want {
		t.Errorf("constraint = %q, want %q", got, want)
	}
}

func TestOutputName(t *testing.T) {
	tests := []struct {
		url, want string
	}{
		{"https://example.com/granules/abc.nc4", "abc_subsetted.nc4"},
		{"https://example.com/granules/abc.nc4?extra=1", "abc_subsetted.nc4"},
		{"https://example.com/granules/abc", "abc_subsetted.nc4"},
	}
	for _, test := range tests {
		if got := outputName(test.url); got != test.want {
			t.Errorf("outputName(%q) = %q, want %q", test.url, got, test.want)
		}
	}
}
