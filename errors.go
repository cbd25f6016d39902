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

import "fmt"

// ConfigurationError reports metadata that is required to process a request
// but is absent from both the granule and the override configuration, such
// as a missing grid mapping for a projected variable.
type ConfigurationError struct {
	Subject string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("gridslice: %s: %s", e.Subject, e.Reason)
}

// NonMonotonicDimensionError reports a dimension scale that neither ascends
// nor descends monotonically. Index resolution is undefined on such a
// scale.
type NonMonotonicDimensionError struct {
	Dimension string
}

func (e *NonMonotonicDimensionError) Error() string {
	return fmt.Sprintf("gridslice: dimension %s is not monotonic", e.Dimension)
}

// OutOfGridExtentError reports a spatial request whose every sampled point
// falls outside the valid domain of the grid's projection. The requested
// area cannot intersect the data.
type OutOfGridExtentError struct {
	Region string
}

func (e *OutOfGridExtentError) Error() string {
	return fmt.Sprintf("gridslice: requested %s lies entirely outside the grid projection domain", e.Region)
}

// EmptyRangeError reports that the resolved index range on a dimension
// contains no cells. It is recoverable: callers should produce an empty
// result rather than fail the request.
type EmptyRangeError struct {
	Dimension string
}

func (e *EmptyRangeError) Error() string {
	return fmt.Sprintf("gridslice: no data in requested range for dimension %s", e.Dimension)
}

// DimensionDerivationError reports a failure to derive a 1-D dimension
// scale from 2-D coordinate arrays, such as a fill-contaminated
// representative row or column.
type DimensionDerivationError struct {
	Coordinate string
	Reason     string
}

func (e *DimensionDerivationError) Error() string {
	return fmt.Sprintf("gridslice: cannot derive dimension scale from %s: %s", e.Coordinate, e.Reason)
}

// InvalidNamedDimensionError reports a named-dimension subset request for a
// dimension that does not belong to any requested variable.
type InvalidNamedDimensionError struct {
	Dimension string
}

func (e *InvalidNamedDimensionError) Error() string {
	return fmt.Sprintf("gridslice: %s is not a dimension of any requested variable", e.Dimension)
}

// InvalidShapeError reports a shape file that cannot be parsed, or that
// contains no usable geometry.
type InvalidShapeError struct {
	Path   string
	Reason string
}

func (e *InvalidShapeError) Error() string {
	return fmt.Sprintf("gridslice: shape file %s: %s", e.Path, e.Reason)
}
