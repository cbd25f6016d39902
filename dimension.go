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
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// IndexRange is a closed integer interval of dimension indices. Min > Max
// signals a range that wraps across the grid edge (an antimeridian-crossing
// longitude request).
type IndexRange struct {
	Min, Max int
}

// Wraps reports whether the range crosses the grid edge.
func (r IndexRange) Wraps() bool { return r.Min > r.Max }

// Count returns the number of cells selected from a dimension of the given
// size.
func (r IndexRange) Count(size int) int {
	if r.Wraps() {
		return (size - r.Min) + r.Max + 1
	}
	return r.Max - r.Min + 1
}

// IndexRanges maps full dimension paths to their resolved index ranges.
type IndexRanges map[string]IndexRange

// isDimensionAscending reports whether a dimension scale ascends from its
// zeroth element. Single-element scales count as ascending.
func isDimensionAscending(values []float64) bool {
	return len(values) == 1 || values[0] < values[len(values)-1]
}

// checkMonotonic returns a NonMonotonicDimensionError unless the scale is
// strictly monotonic.
func checkMonotonic(dimension string, values []float64) error {
	if len(values) < 2 {
		return nil
	}
	ascending := values[0] < values[len(values)-1]
	for i := 1; i < len(values); i++ {
		if ascending && values[i] <= values[i-1] {
			return &NonMonotonicDimensionError{Dimension: dimension}
		}
		if !ascending && values[i] >= values[i-1] {
			return &NonMonotonicDimensionError{Dimension: dimension}
		}
	}
	return nil
}

func valueOrDefault(value *float64, fallback float64) float64 {
	if value != nil {
		return *value
	}
	return fallback
}

// DimensionIndexRange converts a geophysical interval on one dimension into
// the index range covering it. Open interval ends default to the first or
// last scale value in scan order; for descending scales the request minimum
// and maximum swap roles so that the resolved extents follow the scan
// order. When a bounds array is supplied (real or synthesized for
// edge-aligned cells) indices are selected by cell-interval overlap rather
// than by nearest center value.
func DimensionIndexRange(dimension string, values []float64, requestMin, requestMax *float64, bounds [][2]float64) (IndexRange, error) {
	if len(values) == 0 {
		return IndexRange{}, &EmptyRangeError{Dimension: dimension}
	}
	if err := checkMonotonic(dimension, values); err != nil {
		return IndexRange{}, err
	}
	var dimensionMin, dimensionMax float64
	if isDimensionAscending(values) {
		dimensionMin = valueOrDefault(requestMin, values[0])
		dimensionMax = valueOrDefault(requestMax, values[len(values)-1])
	} else {
		dimensionMin = valueOrDefault(requestMax, values[0])
		dimensionMax = valueOrDefault(requestMin, values[len(values)-1])
	}
	if bounds != nil {
		return indicesFromBounds(dimension, bounds,
			math.Min(dimensionMin, dimensionMax), math.Max(dimensionMin, dimensionMax))
	}
	return indicesFromValues(dimension, values, dimensionMin, dimensionMax)
}

// indicesFromValues finds the indices closest to the interpolated positions
// of the requested extents along the scale. Interpolation maps each extent
// to a fractional index; rounding selects the cell containing it. An extent
// exactly halfway between two cells rounds away from the interval, except
// that a point request on such a boundary selects both bordering cells.
func indicesFromValues(dimension string, values []float64, minimumExtent, maximumExtent float64) (IndexRange, error) {
	lo := math.Min(minimumExtent, maximumExtent)
	hi := math.Max(minimumExtent, maximumExtent)
	extentMin, extentMax := DimensionExtents(values)
	tolerance := adjacencyTolerance(values)
	if hi < extentMin-tolerance || lo > extentMax+tolerance {
		return IndexRange{}, &EmptyRangeError{Dimension: dimension}
	}

	n := len(values)
	xs := values
	ys := make([]float64, n)
	for i := range ys {
		ys[i] = float64(i)
	}
	if !isDimensionAscending(values) {
		xs = make([]float64, n)
		for i := range xs {
			xs[i] = values[n-1-i]
			ys[i] = float64(n - 1 - i)
		}
	}

	rawMin := interpolate(minimumExtent, xs, ys)
	rawMax := interpolate(maximumExtent, xs, ys)
	point := rawMin == rawMax

	if math.Mod(rawMin, 1) == 0.5 {
		if point {
			rawMin = math.Nextafter(rawMin, rawMin-1)
		} else {
			rawMin = math.Nextafter(rawMin, rawMin+1)
		}
	}
	if math.Mod(rawMax, 1) == 0.5 {
		if point {
			rawMax = math.Nextafter(rawMax, rawMax+1)
		} else {
			rawMax = math.Nextafter(rawMax, rawMax-1)
		}
	}
	return IndexRange{Min: int(math.Round(rawMin)), Max: int(math.Round(rawMax))}, nil
}

// interpolate is piecewise-linear interpolation of q against ascending xs,
// clamped to the end values.
func interpolate(q float64, xs, ys []float64) float64 {
	if q <= xs[0] {
		return ys[0]
	}
	if q >= xs[len(xs)-1] {
		return ys[len(ys)-1]
	}
	i := sort.SearchFloat64s(xs, q)
	if xs[i] == q {
		return ys[i]
	}
	t := (q - xs[i-1]) / (xs[i] - xs[i-1])
	return ys[i-1] + t*(ys[i]-ys[i-1])
}

// indicesFromBounds selects every index whose [lower, upper] cell interval
// overlaps the requested interval at all. The bounds are assumed
// contiguous (each upper bound equals the next lower bound) and monotonic
// along the index axis. minValue must not exceed maxValue.
func indicesFromBounds(dimension string, bounds [][2]float64, minValue, maxValue float64) (IndexRange, error) {
	n := len(bounds)
	if n == 0 {
		return IndexRange{}, &EmptyRangeError{Dimension: dimension}
	}
	lower := make([]float64, n)
	upper := make([]float64, n)
	boundsMin, boundsMax := math.Inf(1), math.Inf(-1)
	for i, b := range bounds {
		lower[i], upper[i] = b[0], b[1]
		for _, v := range b {
			if !math.IsNaN(v) {
				boundsMin = math.Min(boundsMin, v)
				boundsMax = math.Max(boundsMax, v)
			}
		}
	}
	if minValue > boundsMax || maxValue < boundsMin {
		return IndexRange{}, &EmptyRangeError{Dimension: dimension}
	}

	minimumIndex, maximumIndex := -1, -1
	if isDimensionAscending(lower) {
		for i := 0; i < n; i++ {
			if upper[i] > minValue {
				minimumIndex = i
				break
			}
		}
		for i := n - 1; i >= 0; i-- {
			if lower[i] < maxValue {
				maximumIndex = i
				break
			}
		}
	} else {
		// Descending: the first bound of each cell is the numerically
		// larger one.
		for i := 0; i < n; i++ {
			if upper[i] < maxValue {
				minimumIndex = i
				break
			}
		}
		for i := n - 1; i >= 0; i-- {
			if lower[i] > minValue {
				maximumIndex = i
				break
			}
		}
	}
	if minValue == maxValue && isAlmostIn(minValue, lower[1:]) {
		// Point request exactly on a boundary shared by two cells: the
		// scans exclude both cells, so widen to include both.
		minimumIndex--
		maximumIndex++
	}
	if minimumIndex < 0 || maximumIndex < 0 || minimumIndex > maximumIndex {
		return IndexRange{}, &EmptyRangeError{Dimension: dimension}
	}
	return IndexRange{Min: minimumIndex, Max: maximumIndex}, nil
}

// SyntheticBounds builds cell bounds for an edge-aligned dimension, where
// each scale value marks the leading edge of its cell. Each cell extends to
// the next scale value; the last cell extends by the median step, since the
// final edge is not recorded.
func SyntheticBounds(values []float64) [][2]float64 {
	n := len(values)
	bounds := make([][2]float64, n)
	if n == 0 {
		return bounds
	}
	if n == 1 {
		bounds[0] = [2]float64{values[0], values[0]}
		return bounds
	}
	steps := make([]float64, n-1)
	for i := 1; i < n; i++ {
		steps[i-1] = values[i] - values[i-1]
	}
	sort.Float64s(steps)
	median := steps[(n-1)/2]
	if (n-1)%2 == 0 {
		median = (steps[(n-1)/2-1] + steps[(n-1)/2]) / 2
	}
	for i := 0; i < n-1; i++ {
		bounds[i] = [2]float64{values[i], values[i+1]}
	}
	bounds[n-1] = [2]float64{values[n-1], values[n-1] + median}
	return bounds
}

// DimensionExtents fits the scale with a least-squares straight line and
// extends the outermost values by half the fitted gradient, placing the
// returned extents at the outer cell edges under the assumption that scale
// values mark cell centers.
func DimensionExtents(values []float64) (minExtent, maxExtent float64) {
	if len(values) == 0 {
		return 0, 0
	}
	if len(values) == 1 {
		return values[0], values[0]
	}
	n := float64(len(values))
	var sumXY, sumY float64
	for i, v := range values {
		sumXY += float64(i) * v
		sumY += v
	}
	meanX := (n - 1) / 2
	meanY := sumY / n
	// Σ(x-x̄)² for x = 0..n-1.
	varX := n * (n*n - 1) / 12
	gradient := (sumXY - n*meanX*meanY) / varX

	minExtent = floats.Min(values) - math.Abs(gradient)/2
	maxExtent = floats.Max(values) + math.Abs(gradient)/2
	return minExtent, maxExtent
}

// adjacencyTolerance derives the absolute comparison tolerance for a scale:
// one thousandth of the smallest adjacent step, capped at 1e-5. Scales with
// physically derived values (ocean depths from round pressure levels) are
// not exactly representable, so boundary comparisons need slack without
// admitting a whole neighboring cell.
func adjacencyTolerance(values []float64) float64 {
	tolerance := 1e-5
	for i := 1; i < len(values); i++ {
		step := math.Abs(values[i]-values[i-1]) / 1000
		if !math.IsNaN(step) && step < tolerance {
			tolerance = step
		}
	}
	return tolerance
}

// isAlmostIn reports whether the value matches any array element within the
// array's derived tolerance.
func isAlmostIn(value float64, array []float64) bool {
	if len(array) == 0 {
		return false
	}
	tolerance := adjacencyTolerance(array)
	for _, element := range array {
		if math.Abs(element-value) <= tolerance {
			return true
		}
	}
	return false
}
