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

//go:build !amd64

package sat

// accumulate is the portable summed-area-table build: direct application
// of T[r+1,c+1] = T[r+1,c] + T[r,c+1] - T[r,c] + img[r,c] with a zero border.
func accumulate(t []float64, data []float32, rows, cols, stride int) {
	accumulatePureGo(t, data, rows, cols, stride)
}
