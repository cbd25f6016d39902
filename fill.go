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

	"github.com/ctessum/sparse"
)

// wrappedRanges extracts the dimensions whose resolved range crosses the
// grid edge. For these the full axis was retrieved, and the output must be
// reassembled.
func wrappedRanges(indexRanges IndexRanges) IndexRanges {
	wrapped := make(IndexRanges)
	for dimension, indexRange := range indexRanges {
		if indexRange.Wraps() {
			wrapped[dimension] = indexRange
		}
	}
	return wrapped
}

// ReassembleWrapped rewrites every variable whose dimensions include a
// grid-edge-crossing index range. The band from the range minimum to the
// end of the axis and the band from the start of the axis to the range
// maximum are concatenated, in that order, producing the contiguous window
// the request described. Dimension sizes in the dataset shrink to the
// window size.
func ReassembleWrapped(ds *Dataset, indexRanges IndexRanges) error {
	wrapped := wrappedRanges(indexRanges)
	if len(wrapped) == 0 {
		return nil
	}
	for dimension, indexRange := range wrapped {
		size, ok := ds.Dimensions[dimension]
		if !ok {
			continue
		}
		if indexRange.Min >= size || indexRange.Max >= size {
			return fmt.Errorf("gridslice: wrapped range [%d, %d] exceeds dimension %s size %d",
				indexRange.Min, indexRange.Max, dimension, size)
		}
	}

	for _, v := range ds.Variables {
		if !hasWrappedDimension(v, wrapped) {
			continue
		}
		oldShape := v.Data.Shape
		newShape := make([]int, len(oldShape))
		offsets := make([]int, len(oldShape))
		wrapSizes := make([]int, len(oldShape))
		for axis, dimension := range v.Dimensions {
			newShape[axis] = oldShape[axis]
			if indexRange, ok := wrapped[dimension]; ok {
				newShape[axis] = indexRange.Count(oldShape[axis])
				offsets[axis] = indexRange.Min
				wrapSizes[axis] = oldShape[axis]
			}
		}

		reassembled := sparse.ZerosDense(newShape...)
		oldStrides := strides(oldShape)
		newStrides := strides(newShape)
		index := make([]int, len(newShape))
		for n := 0; n < len(reassembled.Elements); n++ {
			sourceOffset := 0
			for axis := range index {
				i := index[axis]
				if wrapSizes[axis] > 0 {
					i = (offsets[axis] + i) % wrapSizes[axis]
				}
				sourceOffset += i * oldStrides[axis]
			}
			reassembled.Elements[dotProduct(index, newStrides)] = v.Data.Elements[sourceOffset]
			increment(index, newShape)
		}
		v.Data = reassembled
	}

	for dimension, indexRange := range wrapped {
		if size, ok := ds.Dimensions[dimension]; ok {
			ds.Dimensions[dimension] = indexRange.Count(size)
		}
	}
	return nil
}

func hasWrappedDimension(v *DataVariable, wrapped IndexRanges) bool {
	for _, dimension := range v.Dimensions {
		if _, ok := wrapped[dimension]; ok {
			return true
		}
	}
	return false
}

func strides(shape []int) []int {
	out := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		out[i] = stride
		stride *= shape[i]
	}
	return out
}

func dotProduct(index, strides []int) int {
	sum := 0
	for i := range index {
		sum += index[i] * strides[i]
	}
	return sum
}

// increment advances a multidimensional index in row-major order.
func increment(index, shape []int) {
	for axis := len(index) - 1; axis >= 0; axis-- {
		index[axis]++
		if index[axis] < shape[axis] {
			return
		}
		index[axis] = 0
	}
}
