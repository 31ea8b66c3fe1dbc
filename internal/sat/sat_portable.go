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

package sat

// accumulatePureGo applies the canonical summed-area-table recurrence
// directly. Shared by both the amd64 and portable build variants.
func accumulatePureGo(t []float64, data []float32, rows, cols, stride int) {
	for r := 0; r < rows; r++ {
		rowSrc := r * cols
		cur := (r + 1) * stride
		prev := r * stride
		for c := 0; c < cols; c++ {
			t[cur+c+1] = t[cur+c] + t[prev+c+1] - t[prev+c] + float64(data[rowSrc+c])
		}
	}
}
