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
	"sort"
	"strings"

	"github.com/spatialgrid/gridslice/varinfo"
)

// ConstraintExpression builds a DAP4 constraint expression naming the
// given variables with per-dimension index clauses. Dimensions with a
// resolved range get "[min:max]"; dimensions without one, and dimensions
// whose range crosses the grid edge, get the full axis "[]". A variable
// with no constrained dimension appears as its bare path. Variables whose
// dimensions are anonymous but whose scales were derived from 2-D
// coordinates constrain their trailing two axes with the derived y and x
// ranges.
func ConstraintExpression(vi *varinfo.VarInfo, variables []string, indexRanges IndexRanges) string {
	sorted := make([]string, len(variables))
	copy(sorted, variables)
	sort.Strings(sorted)

	clauses := make([]string, 0, len(sorted))
	for _, variablePath := range sorted {
		clauses = append(clauses, variableClause(vi, variablePath, indexRanges))
	}
	return strings.Join(clauses, ";")
}

func variableClause(vi *varinfo.VarInfo, variablePath string, indexRanges IndexRanges) string {
	variable := vi.Get(variablePath)
	if variable == nil || len(variable.Dimensions) == 0 {
		return variablePath
	}

	clauses := make([]string, len(variable.Dimensions))
	constrained := false
	for i, dimension := range variable.Dimensions {
		clauses[i] = dimensionClause(indexRanges, dimension)
		if clauses[i] != "[]" {
			constrained = true
		}
	}

	if !constrained {
		// Anonymous or unconstrained dimensions: derived scales may still
		// constrain the trailing y and x axes.
		if n := len(variable.Dimensions); n >= 2 {
			if yPath, xPath, err := ProjectedDimensionPaths(vi, variablePath); err == nil {
				yClause := dimensionClause(indexRanges, yPath)
				xClause := dimensionClause(indexRanges, xPath)
				if yClause != "[]" || xClause != "[]" {
					clauses[n-2], clauses[n-1] = yClause, xClause
					constrained = true
				}
			}
		}
	}
	if !constrained {
		return variablePath
	}
	return variablePath + strings.Join(clauses, "")
}

func dimensionClause(indexRanges IndexRanges, dimension string) string {
	indexRange, ok := indexRanges[dimension]
	if !ok || indexRange.Wraps() {
		return "[]"
	}
	return fmt.Sprintf("[%d:%d]", indexRange.Min, indexRange.Max)
}
