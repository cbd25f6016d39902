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

// Package varinfo builds an in-memory graph of the variables, dimensions
// and metadata attributes described by a DAP4 DMR document, and applies
// collection-specific configuration overrides to it. The graph maps the
// dependencies between variables (CF coordinates, bounds, grid_mapping and
// similar references) so that a subset request for a set of science
// variables can be expanded to the full set of variables needed to produce
// a self-describing output file.
package varinfo

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// referenceAttributes are the CF (and subsetter-specific) metadata
// attributes whose values name other variables.
var referenceAttributes = []string{
	"ancillary_variables",
	"bounds",
	"cell_measures",
	"coordinates",
	"grid_mapping",
	"subset_control_variables",
}

// fakeDimPattern matches dimension placeholders invented by OPeNDAP for
// anonymous dimensions. These cannot be retrieved by name.
var fakeDimPattern = regexp.MustCompile(`.*/FakeDim\d+$`)

// Attribute is a single metadata name/value pair. Attribute order within a
// variable is preserved from the source document.
type Attribute struct {
	Name  string
	Value string
}

// Variable is one array within a granule, identified by its full
// slash-separated path.
type Variable struct {
	Path       string
	DataType   string
	Dimensions []string
	Attributes []Attribute
}

// Attr returns the value of the named attribute. When overrides have
// appended a second copy of an attribute the last value wins.
func (v *Variable) Attr(name string) (string, bool) {
	value, ok := "", false
	for _, a := range v.Attributes {
		if a.Name == name {
			value, ok = a.Value, true
		}
	}
	return value, ok
}

// SetAttr replaces the named attribute value, or appends it if absent.
func (v *Variable) SetAttr(name, value string) {
	for i := len(v.Attributes) - 1; i >= 0; i-- {
		if v.Attributes[i].Name == name {
			v.Attributes[i].Value = value
			return
		}
	}
	v.Attributes = append(v.Attributes, Attribute{Name: name, Value: value})
}

// FillValue returns the variable's _FillValue attribute as a float, if any.
func (v *Variable) FillValue() (float64, bool) {
	raw, ok := v.Attr("_FillValue")
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Group returns the group path containing the variable.
func (v *Variable) Group() string {
	i := strings.LastIndex(v.Path, "/")
	if i <= 0 {
		return ""
	}
	return v.Path[:i]
}

// References returns the qualified paths named by the given reference
// attribute, in attribute order.
func (v *Variable) References(attribute string) []string {
	raw, ok := v.Attr(attribute)
	if !ok || raw == "" {
		return nil
	}
	var out []string
	for _, field := range strings.Fields(raw) {
		out = append(out, qualifyPath(field, v.Group()))
	}
	return out
}

// IsLatitude reports whether the variable holds geographic latitudes.
func (v *Variable) IsLatitude() bool {
	if name, _ := v.Attr("standard_name"); name == "latitude" {
		return true
	}
	units, _ := v.Attr("units")
	switch units {
	case "degrees_north", "degree_north", "degrees_N", "degree_N":
		return true
	}
	return false
}

// IsLongitude reports whether the variable holds geographic longitudes.
func (v *Variable) IsLongitude() bool {
	if name, _ := v.Attr("standard_name"); name == "longitude" {
		return true
	}
	units, _ := v.Attr("units")
	switch units {
	case "degrees_east", "degree_east", "degrees_E", "degree_E":
		return true
	}
	return false
}

// IsTemporal reports whether the variable is a CF time coordinate, which
// declares units of the form "<unit> since <epoch>".
func (v *Variable) IsTemporal() bool {
	units, _ := v.Attr("units")
	return strings.Contains(units, " since ")
}

// IsProjectionX reports whether the variable is a projected x coordinate
// per its CF standard_name.
func (v *Variable) IsProjectionX() bool {
	name, _ := v.Attr("standard_name")
	return name == "projection_x_coordinate" || name == "projection_x_angular_coordinate"
}

// IsProjectionY reports whether the variable is a projected y coordinate
// per its CF standard_name.
func (v *Variable) IsProjectionY() bool {
	name, _ := v.Attr("standard_name")
	return name == "projection_y_coordinate" || name == "projection_y_angular_coordinate"
}

// CellAlignment returns the cell_alignment attribute ("center" when
// unspecified). Edge-aligned dimensions need synthesized bounds before
// index resolution.
func (v *Variable) CellAlignment() string {
	if alignment, ok := v.Attr("cell_alignment"); ok {
		return alignment
	}
	return "center"
}

// VarInfo is the parsed, override-patched representation of one granule.
type VarInfo struct {
	ShortName string
	Mission   string

	Variables        map[string]*Variable
	Dimensions       map[string]int
	GlobalAttributes []Attribute

	collection *CollectionConfig
	referenced map[string]bool

	anonymousDims int
}

// New parses a DMR document and applies any matching configuration
// overrides. A nil configuration applies no patches.
func New(document []byte, config *Config) (*VarInfo, error) {
	vi := &VarInfo{
		Variables:  make(map[string]*Variable),
		Dimensions: make(map[string]int),
		referenced: make(map[string]bool),
	}
	if err := vi.parseDMR(document); err != nil {
		return nil, err
	}
	vi.setMissionAndShortName(config)
	vi.collection = config.ForCollection(vi.Mission, vi.ShortName)
	vi.applyOverrides()
	vi.indexReferences()
	return vi, nil
}

// setMissionAndShortName locates the collection short name among the
// global attributes using the configured search paths, then maps it to a
// mission name.
func (vi *VarInfo) setMissionAndShortName(config *Config) {
	if config == nil {
		return
	}
	for _, path := range config.CollectionShortNamePath {
		for _, a := range vi.GlobalAttributes {
			if a.Name == path || "/"+a.Name == path || a.Name == strings.TrimPrefix(path, "/") {
				vi.ShortName = a.Value
				break
			}
		}
		if vi.ShortName != "" {
			break
		}
	}
	if vi.ShortName == "" {
		return
	}
	patterns := make([]string, 0, len(config.Mission))
	for pattern := range config.Mission {
		patterns = append(patterns, pattern)
	}
	sort.Strings(patterns)
	for _, pattern := range patterns {
		if matchesStart(pattern, vi.ShortName) {
			vi.Mission = config.Mission[pattern]
			return
		}
	}
}

// applyOverrides patches variable attributes with the collection's
// supplement and override rules. Supplements apply first so that
// overrides, which carry the strongest priority, win conflicts.
func (vi *VarInfo) applyOverrides() {
	if vi.collection == nil {
		return
	}
	for _, v := range vi.Variables {
		for _, a := range vi.collection.SupplementsFor(v.Path) {
			if _, exists := v.Attr(a.Name); !exists {
				v.SetAttr(a.Name, a.Value)
			}
		}
		for _, a := range vi.collection.OverridesFor(v.Path) {
			v.SetAttr(a.Name, a.Value)
		}
	}
	for _, a := range vi.collection.GlobalSupplements {
		vi.GlobalAttributes = append(vi.GlobalAttributes, a)
	}
	for _, a := range vi.collection.GlobalOverrides {
		vi.GlobalAttributes = append(vi.GlobalAttributes, a)
	}
}

func (vi *VarInfo) indexReferences() {
	for _, v := range vi.Variables {
		for _, attribute := range referenceAttributes {
			for _, ref := range v.References(attribute) {
				vi.referenced[ref] = true
			}
		}
	}
}

// Get returns the variable at the given full path, or nil.
func (vi *VarInfo) Get(path string) *Variable {
	return vi.Variables[path]
}

// Collection returns the collection-scoped configuration view applied to
// this granule.
func (vi *VarInfo) Collection() *CollectionConfig {
	return vi.collection
}

// MissingVariableAttributes returns override attributes configured for a
// variable path that is absent from the granule itself. Some collections
// define their grid mapping only in the override configuration.
func (vi *VarInfo) MissingVariableAttributes(path string) []Attribute {
	if vi.collection == nil {
		return nil
	}
	return vi.collection.OverridesFor(path)
}

// ScienceVariables returns all variables that have coordinate references,
// are not referenced by other variables, and are not excluded by the
// collection configuration.
func (vi *VarInfo) ScienceVariables() []string {
	var out []string
	for path, v := range vi.Variables {
		if _, ok := v.Attr("coordinates"); !ok {
			continue
		}
		if vi.referenced[path] || vi.excluded(path) {
			continue
		}
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

// MetadataVariables returns all variables without coordinate references
// (plus excluded science variables) that are not referenced by others.
func (vi *VarInfo) MetadataVariables() []string {
	var out []string
	for path, v := range vi.Variables {
		if vi.referenced[path] {
			continue
		}
		if _, hasCoords := v.Attr("coordinates"); hasCoords && !vi.excluded(path) {
			continue
		}
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

func (vi *VarInfo) excluded(path string) bool {
	if vi.collection == nil {
		return false
	}
	for _, pattern := range vi.collection.ExcludedScienceVariables {
		if matchesStart(pattern, path) {
			return true
		}
	}
	return false
}

// RequiredVariables expands the requested variable set to include every
// variable referenced, directly or transitively, through CF metadata
// attributes and dimension lists, plus any collection-required variables.
// Traversal uses an explicit worklist with a visited set, so
// self-referential metadata in malformed granules terminates.
func (vi *VarInfo) RequiredVariables(requested []string) []string {
	worklist := make([]string, 0, len(requested))
	seen := make(map[string]bool)
	enqueue := func(path string) {
		if !seen[path] {
			seen[path] = true
			worklist = append(worklist, path)
		}
	}
	for _, path := range requested {
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		enqueue(path)
	}
	if vi.collection != nil && len(vi.collection.RequiredVariables) > 0 {
		for path := range vi.Variables {
			for _, pattern := range vi.collection.RequiredVariables {
				if matchesStart(pattern, path) {
					enqueue(path)
					break
				}
			}
		}
	}

	required := make(map[string]bool)
	for len(worklist) > 0 {
		path := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		required[path] = true

		v := vi.Variables[path]
		if v == nil {
			continue
		}
		for _, attribute := range referenceAttributes {
			for _, ref := range v.References(attribute) {
				enqueue(ref)
			}
		}
		for _, dim := range v.Dimensions {
			if vi.Variables[dim] != nil {
				enqueue(dim)
			}
		}
	}

	out := make([]string, 0, len(required))
	for path := range required {
		if fakeDimPattern.MatchString(path) {
			continue
		}
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

// RequiredDimensions returns the dimension variables needed by the given
// variables. Dimensions without a backing variable are omitted.
func (vi *VarInfo) RequiredDimensions(variables []string) []string {
	dims := make(map[string]bool)
	for _, path := range variables {
		v := vi.Variables[path]
		if v == nil {
			continue
		}
		for _, dim := range v.Dimensions {
			if vi.Variables[dim] != nil {
				dims[dim] = true
			}
		}
	}
	out := make([]string, 0, len(dims))
	for dim := range dims {
		out = append(out, dim)
	}
	sort.Strings(out)
	return out
}

// ReferencesForAttribute collects the referenced paths of one attribute
// across a set of variables.
func (vi *VarInfo) ReferencesForAttribute(variables []string, attribute string) []string {
	refs := make(map[string]bool)
	for _, path := range variables {
		if v := vi.Variables[path]; v != nil {
			for _, ref := range v.References(attribute) {
				refs[ref] = true
			}
		}
	}
	out := make([]string, 0, len(refs))
	for ref := range refs {
		out = append(out, ref)
	}
	sort.Strings(out)
	return out
}

// GeographicDimensions returns the latitude/longitude dimension variables
// among the given variables' dimensions.
func (vi *VarInfo) GeographicDimensions(variables []string) []string {
	return vi.filterDimensions(variables, func(v *Variable) bool {
		return v.IsLatitude() || v.IsLongitude()
	})
}

// ProjectedDimensions returns the projected x/y dimension variables among
// the given variables' dimensions.
func (vi *VarInfo) ProjectedDimensions(variables []string) []string {
	return vi.filterDimensions(variables, func(v *Variable) bool {
		return v.IsProjectionX() || v.IsProjectionY()
	})
}

// TemporalDimensions returns the time dimension variables among the given
// variables' dimensions.
func (vi *VarInfo) TemporalDimensions(variables []string) []string {
	return vi.filterDimensions(variables, (*Variable).IsTemporal)
}

// SpatialDimensions returns all horizontal spatial dimension variables,
// geographic and projected, among the given variables' dimensions.
func (vi *VarInfo) SpatialDimensions(variables []string) []string {
	return vi.filterDimensions(variables, func(v *Variable) bool {
		return v.IsLatitude() || v.IsLongitude() || v.IsProjectionX() || v.IsProjectionY()
	})
}

func (vi *VarInfo) filterDimensions(variables []string, keep func(*Variable) bool) []string {
	dims := make(map[string]bool)
	for _, path := range variables {
		v := vi.Variables[path]
		if v == nil {
			continue
		}
		for _, dim := range v.Dimensions {
			if dv := vi.Variables[dim]; dv != nil && keep(dv) {
				dims[dim] = true
			}
		}
	}
	if len(dims) == 0 {
		return nil
	}
	out := make([]string, 0, len(dims))
	for dim := range dims {
		out = append(out, dim)
	}
	sort.Strings(out)
	return out
}

// CoordinateVariables returns the latitude and longitude coordinate
// variables referenced by the given variables' CF coordinates attributes.
func (vi *VarInfo) CoordinateVariables(variables []string) (latitudes, longitudes []string) {
	for _, ref := range vi.ReferencesForAttribute(variables, "coordinates") {
		v := vi.Variables[ref]
		if v == nil {
			continue
		}
		switch {
		case v.IsLatitude():
			latitudes = append(latitudes, ref)
		case v.IsLongitude():
			longitudes = append(longitudes, ref)
		}
	}
	return latitudes, longitudes
}

// AnonymousDimensions reports whether any dimension of the variable lacks
// a backing dimension variable, which means index ranges for it can only
// come from derived coordinate scales.
func (vi *VarInfo) AnonymousDimensions(path string) bool {
	v := vi.Variables[path]
	if v == nil {
		return false
	}
	if len(v.Dimensions) == 0 {
		return true
	}
	for _, dim := range v.Dimensions {
		if vi.Variables[dim] == nil {
			return true
		}
	}
	return false
}

// DimensionSize returns the declared size of a dimension.
func (vi *VarInfo) DimensionSize(name string) (int, error) {
	if size, ok := vi.Dimensions[name]; ok {
		return size, nil
	}
	return 0, fmt.Errorf("varinfo: unknown dimension %q", name)
}
