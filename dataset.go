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
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"

	"github.com/spatialgrid/gridslice/varinfo"
)

// DataVariable is one array of a dataset, keyed by its full slash-separated
// path.
type DataVariable struct {
	Path       string
	Dimensions []string
	Attributes []varinfo.Attribute
	Data       *sparse.DenseArray
}

// FillValue returns the variable's fill value, defaulting to NaN-free
// zero-value reporting via ok.
func (v *DataVariable) FillValue() (float64, bool) {
	for _, a := range v.Attributes {
		if a.Name == "_FillValue" {
			f, err := strconv.ParseFloat(strings.TrimSpace(a.Value), 64)
			if err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

// Dataset is an in-memory collection of variables sharing a dimension
// namespace, the decoded form of one NetCDF file.
type Dataset struct {
	Variables  map[string]*DataVariable
	Dimensions map[string]int
	Attributes []varinfo.Attribute
}

// NewDataset returns an empty dataset.
func NewDataset() *Dataset {
	return &Dataset{
		Variables:  make(map[string]*DataVariable),
		Dimensions: make(map[string]int),
	}
}

// AddVariable inserts a variable and registers its dimension sizes from the
// array shape.
func (ds *Dataset) AddVariable(v *DataVariable) error {
	if len(v.Dimensions) != len(v.Data.Shape) {
		return fmt.Errorf("gridslice: variable %s has %d dimension names for %d array axes",
			v.Path, len(v.Dimensions), len(v.Data.Shape))
	}
	for i, dim := range v.Dimensions {
		if size, ok := ds.Dimensions[dim]; ok && size != v.Data.Shape[i] {
			return fmt.Errorf("gridslice: variable %s redefines dimension %s from %d to %d",
				v.Path, dim, size, v.Data.Shape[i])
		}
		ds.Dimensions[dim] = v.Data.Shape[i]
	}
	ds.Variables[v.Path] = v
	return nil
}

// Values1D returns the variable's data as a flat slice, for dimension
// scales and bounds arrays.
func (ds *Dataset) Values1D(path string) ([]float64, error) {
	v, ok := ds.Variables[path]
	if !ok {
		return nil, fmt.Errorf("gridslice: variable %s not present in dataset", path)
	}
	return v.Data.Elements, nil
}

// BoundsPairs converts a (n, 2) bounds variable into index-aligned pairs.
func (ds *Dataset) BoundsPairs(path string) ([][2]float64, error) {
	v, ok := ds.Variables[path]
	if !ok {
		return nil, fmt.Errorf("gridslice: bounds variable %s not present in dataset", path)
	}
	if len(v.Data.Shape) != 2 || v.Data.Shape[1] != 2 {
		return nil, fmt.Errorf("gridslice: bounds variable %s has shape %v, want (n, 2)", path, v.Data.Shape)
	}
	pairs := make([][2]float64, v.Data.Shape[0])
	for i := range pairs {
		pairs[i] = [2]float64{v.Data.Get(i, 0), v.Data.Get(i, 1)}
	}
	return pairs, nil
}

// netcdfName maps a full variable path to its name in a flat NetCDF
// namespace.
func netcdfName(path string) string { return strings.TrimPrefix(path, "/") }

// ReadDataset decodes a NetCDF file into a dataset. Variable metadata is
// taken from the granule's parsed metadata graph when present there, since
// the subsetter's own requests always operate on known variables.
func ReadDataset(path string, vi *varinfo.VarInfo) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("gridslice: opening dataset %s: %v", path, err)
	}
	defer f.Close()
	ff, err := cdf.Open(f)
	if err != nil {
		return nil, fmt.Errorf("gridslice: reading dataset %s: %v", path, err)
	}

	ds := NewDataset()
	for _, name := range ff.Header.Variables() {
		lengths := ff.Header.Lengths(name)
		n := 1
		for _, l := range lengths {
			n *= l
		}
		r := ff.Reader(name, nil, nil)
		buf := r.Zero(n)
		if _, err := r.Read(buf); err != nil {
			return nil, fmt.Errorf("gridslice: reading variable %s from %s: %v", name, path, err)
		}
		elements, err := toFloat64(buf)
		if err != nil {
			return nil, fmt.Errorf("gridslice: variable %s in %s: %v", name, path, err)
		}
		data := sparse.ZerosDense(lengths...)
		copy(data.Elements, elements)

		fullPath := "/" + name
		dimensions := make([]string, len(lengths))
		for i, dim := range ff.Header.Dimensions(name) {
			dimensions[i] = "/" + dim
		}
		var attributes []varinfo.Attribute
		if vi != nil {
			if metadata := vi.Get(fullPath); metadata != nil {
				attributes = metadata.Attributes
			}
		}
		if err := ds.AddVariable(&DataVariable{
			Path:       fullPath,
			Dimensions: dimensions,
			Attributes: attributes,
			Data:       data,
		}); err != nil {
			return nil, err
		}
	}
	return ds, nil
}

func toFloat64(buf interface{}) ([]float64, error) {
	switch b := buf.(type) {
	case []float64:
		return b, nil
	case []float32:
		out := make([]float64, len(b))
		for i, v := range b {
			out[i] = float64(v)
		}
		return out, nil
	case []int32:
		out := make([]float64, len(b))
		for i, v := range b {
			out[i] = float64(v)
		}
		return out, nil
	case []int16:
		out := make([]float64, len(b))
		for i, v := range b {
			out[i] = float64(v)
		}
		return out, nil
	case []int8:
		out := make([]float64, len(b))
		for i, v := range b {
			out[i] = float64(v)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported array type %T", buf)
	}
}

// Write encodes the dataset to w. Variables and dimensions are written in
// sorted order so that identical datasets produce byte-identical files.
func (ds *Dataset) Write(w *os.File) error {
	dimNames := make([]string, 0, len(ds.Dimensions))
	for dim := range ds.Dimensions {
		dimNames = append(dimNames, dim)
	}
	sort.Strings(dimNames)
	dimLengths := make([]int, len(dimNames))
	flatDims := make([]string, len(dimNames))
	for i, dim := range dimNames {
		dimLengths[i] = ds.Dimensions[dim]
		flatDims[i] = netcdfName(dim)
	}

	h := cdf.NewHeader(flatDims, dimLengths)
	for _, a := range ds.Attributes {
		h.AddAttribute("", a.Name, a.Value)
	}

	names := make([]string, 0, len(ds.Variables))
	for name := range ds.Variables {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		v := ds.Variables[name]
		flat := netcdfName(name)
		varDims := make([]string, len(v.Dimensions))
		for i, dim := range v.Dimensions {
			varDims[i] = netcdfName(dim)
		}
		h.AddVariable(flat, varDims, []float64{0})
		for _, a := range v.Attributes {
			if fill, err := strconv.ParseFloat(strings.TrimSpace(a.Value), 64); err == nil && a.Name == "_FillValue" {
				h.AddAttribute(flat, a.Name, []float64{fill})
			} else {
				h.AddAttribute(flat, a.Name, a.Value)
			}
		}
	}
	h.Define()

	f, err := cdf.Create(w, h)
	if err != nil {
		return fmt.Errorf("gridslice: creating output file: %v", err)
	}
	for _, name := range names {
		v := ds.Variables[name]
		flat := netcdfName(name)
		end := f.Header.Lengths(flat)
		start := make([]int, len(end))
		wr := f.Writer(flat, start, end)
		if _, err := wr.Write(v.Data.Elements); err != nil {
			return fmt.Errorf("gridslice: writing variable %s: %v", name, err)
		}
	}
	return cdf.UpdateNumRecs(w)
}

// WriteFile encodes the dataset to the named file.
func (ds *Dataset) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("gridslice: creating output file %s: %v", path, err)
	}
	if err := ds.Write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
