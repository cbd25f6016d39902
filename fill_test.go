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
	"reflect"
	"testing"

	"github.com/ctessum/sparse"
)

func testWrappedDataset(t *testing.T) *Dataset {
	t.Helper()
	ds := NewDataset()
	lon := sparse.ZerosDense(6)
	copy(lon.Elements, []float64{0, 60, 120, 180, 240, 300})
	science := sparse.ZerosDense(2, 6)
	for i := 0; i < len(science.Elements); i++ {
		science.Elements[i] = float64(i)
	}
	for _, v := range []*DataVariable{
		{Path: "/lon", Dimensions: []string{"/lon"}, Data: lon},
		{Path: "/temperature", Dimensions: []string{"/lat", "/lon"}, Data: science},
	} {
		if err := ds.AddVariable(v); err != nil {
			t.Fatal(err)
		}
	}
	return ds
}

func TestReassembleWrapped(t *testing.T) {
	ds := testWrappedDataset(t)
	// Indices 4..5 then 0..1: a window crossing the grid edge.
	ranges := IndexRanges{"/lon": {Min: 4, Max: 1}}
	if err := ReassembleWrapped(ds, ranges); err != nil {
		t.Fatal(err)
	}

	if got := ds.Dimensions["/lon"]; got != 4 {
		t.Errorf("dimension size = %d, want 4", got)
	}
	wantLon := []float64{240, 300, 0, 60}
	if !reflect.DeepEqual(ds.Variables["/lon"].Data.Elements, wantLon) {
		t.Errorf("lon = %v, want %v", ds.Variables["/lon"].Data.Elements, wantLon)
	}

	science := ds.Variables["/temperature"].Data
	if !reflect.DeepEqual(science.Shape, []int{2, 4}) {
		t.Fatalf("shape = %v, want [2 4]", science.Shape)
	}
	want := []float64{4, 5, 0, 1, 10, 11, 6, 7}
	if !reflect.DeepEqual(science.Elements, want) {
		t.Errorf("data = %v, want %v", science.Elements, want)
	}
}

func TestReassembleWrappedNoWrap(t *testing.T) {
	ds := testWrappedDataset(t)
	before := append([]float64(nil), ds.Variables["/temperature"].Data.Elements...)
	if err := ReassembleWrapped(ds, IndexRanges{"/lon": {Min: 1, Max: 4}}); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(ds.Variables["/temperature"].Data.Elements, before) {
		t.Error("non-wrapping ranges must leave data untouched")
	}
	if ds.Dimensions["/lon"] != 6 {
		t.Errorf("dimension size = %d, want 6", ds.Dimensions["/lon"])
	}
}

func TestReassembleWrappedBadRange(t *testing.T) {
	ds := testWrappedDataset(t)
	if err := ReassembleWrapped(ds, IndexRanges{"/lon": {Min: 9, Max: 1}}); err == nil {
		t.Error("expected an error for an out-of-bounds wrapped range")
	}
}
