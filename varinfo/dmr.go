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

package varinfo

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

// dap4Types are the DAP4 atomic types that mark an XML element in a DMR
// document as a variable declaration.
var dap4Types = map[string]bool{
	"Byte":    true,
	"Char":    true,
	"Int8":    true,
	"UInt8":   true,
	"Int16":   true,
	"UInt16":  true,
	"Int32":   true,
	"UInt32":  true,
	"Int64":   true,
	"UInt64":  true,
	"Float32": true,
	"Float64": true,
	"String":  true,
	"URI":     true,
	"URL":     true,
}

// dmrElement is a single element within a DMR document. The Dim and
// Attribute children are decoded explicitly; every other child element
// (nested groups and variable declarations) lands in Children.
type dmrElement struct {
	XMLName    xml.Name
	Name       string         `xml:"name,attr"`
	Size       string         `xml:"size,attr"`
	Dims       []dmrDim       `xml:"Dim"`
	Attributes []dmrAttribute `xml:"Attribute"`
	Children   []dmrElement   `xml:",any"`
}

type dmrDim struct {
	Name string `xml:"name,attr"`
	Size string `xml:"size,attr"`
}

type dmrAttribute struct {
	Name     string         `xml:"name,attr"`
	Type     string         `xml:"type,attr"`
	Values   []string       `xml:"Value"`
	Children []dmrAttribute `xml:"Attribute"`
}

// parseDMR decodes a DMR document into the variable and dimension maps of
// a VarInfo. Group hierarchy is flattened into full slash-separated paths,
// the form used throughout the subsetter.
func (vi *VarInfo) parseDMR(document []byte) error {
	var root dmrElement
	if err := xml.Unmarshal(document, &root); err != nil {
		return fmt.Errorf("varinfo: parsing DMR document: %v", err)
	}
	if root.XMLName.Local != "Dataset" {
		return fmt.Errorf("varinfo: unexpected DMR root element %q", root.XMLName.Local)
	}
	vi.GlobalAttributes = flattenAttributes(root.Attributes, "")
	vi.parseGroup(&root, "")
	return nil
}

// parseGroup walks one group of a DMR document, registering dimension
// declarations and variables, then recursing into child groups.
func (vi *VarInfo) parseGroup(group *dmrElement, groupPath string) {
	for i := range group.Children {
		child := &group.Children[i]
		switch {
		case child.XMLName.Local == "Dimension":
			size, err := strconv.Atoi(child.Size)
			if err != nil {
				continue
			}
			vi.Dimensions[groupPath+"/"+child.Name] = size
		case child.XMLName.Local == "Group":
			vi.parseGroup(child, groupPath+"/"+child.Name)
		case dap4Types[child.XMLName.Local]:
			vi.addVariable(child, groupPath)
		}
	}
}

func (vi *VarInfo) addVariable(element *dmrElement, groupPath string) {
	v := &Variable{
		Path:       groupPath + "/" + element.Name,
		DataType:   element.XMLName.Local,
		Attributes: flattenAttributes(element.Attributes, ""),
	}
	for _, dim := range element.Dims {
		switch {
		case dim.Name != "":
			v.Dimensions = append(v.Dimensions, qualifyPath(dim.Name, groupPath))
		case dim.Size != "":
			// Anonymous dimension: OPeNDAP serves these as sized
			// placeholders with no backing variable.
			name := fmt.Sprintf("%s/FakeDim%d", groupPath, vi.anonymousDims)
			vi.anonymousDims++
			if size, err := strconv.Atoi(dim.Size); err == nil {
				vi.Dimensions[name] = size
			}
			v.Dimensions = append(v.Dimensions, name)
		}
	}
	vi.Variables[v.Path] = v
}

// flattenAttributes converts the nested DMR attribute tree into an ordered
// flat list. Container attributes contribute their children with
// dot-separated names; multi-valued attributes are joined with spaces, the
// separator CF reference lists use anyway.
func flattenAttributes(attrs []dmrAttribute, prefix string) []Attribute {
	var out []Attribute
	for _, a := range attrs {
		name := a.Name
		if prefix != "" {
			name = prefix + "." + a.Name
		}
		if a.Type == "Container" || len(a.Children) > 0 {
			out = append(out, flattenAttributes(a.Children, name)...)
			continue
		}
		out = append(out, Attribute{Name: name, Value: strings.Join(a.Values, " ")})
	}
	return out
}

// qualifyPath resolves a possibly-relative reference against the group of
// the referring variable. Absolute references pass through unchanged.
func qualifyPath(reference, groupPath string) string {
	if strings.HasPrefix(reference, "/") {
		return reference
	}
	return groupPath + "/" + reference
}
