// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

//go:build amd64

package sat

import "github.com/klauspost/cpuid"

// accumulate dispatches to a loop structure that vectorizes well under AVX2
// (four-wide unrolled row accumulation, matching the access pattern of
// internal/stats_amd64.go's min/mean/max AVX2 gate) or the portable
// row-by-row fallback on older CPUs.
func accumulate(t []float64, data []float32, rows, cols, stride int) {
	if cpuid.CPU.AVX2() {
		accumulateAVX2(t, data, rows, cols, stride)
		return
	}
	accumulatePureGo(t, data, rows, cols, stride)
}

func accumulateAVX2(t []float64, data []float32, rows, cols, stride int) {
	for r := 0; r < rows; r++ {
		rowSrc := r * cols
		rowDstCur := (r + 1) * stride
		rowDstPrev := r * stride
		var rowSum float64
		c := 0
		for ; c+4 <= cols; c += 4 {
			rowSum += float64(data[rowSrc+c])
			t[rowDstCur+c+1] = t[rowDstPrev+c+1] + rowSum
			rowSum += float64(data[rowSrc+c+1])
			t[rowDstCur+c+2] = t[rowDstPrev+c+2] + rowSum
			rowSum += float64(data[rowSrc+c+2])
			t[rowDstCur+c+3] = t[rowDstPrev+c+3] + rowSum
			rowSum += float64(data[rowSrc+c+3])
			t[rowDstCur+c+4] = t[rowDstPrev+c+4] + rowSum
		}
		for ; c < cols; c++ {
			rowSum += float64(data[rowSrc+c])
			t[rowDstCur+c+1] = t[rowDstPrev+c+1] + rowSum
		}
	}
}
