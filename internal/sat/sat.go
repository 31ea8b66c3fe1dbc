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

// Package sat provides the O(1) rectangle-sum lookup (C9) used by the
// pipeline driver to compute the per-frame intensity multiplier against the
// reference image's squared-magnitude, plus a per-worker scratch cache for
// gray conversion of decoded frames.
package sat

import "github.com/astroluck/luckystack/internal/geom"

// Table is a summed-area table over a single-channel float32 image.
// T[r+1,c+1] = T[r+1,c] + T[r,c+1] - T[r,c] + img[r,c], with a zero border,
// so that the sum of any axis-aligned rectangle is four lookups.
type Table struct {
	Rows, Cols int
	t          []float64 // (Rows+1) x (Cols+1), row-major
}

// Build constructs the summed-area table of data (rows x cols, row-major).
// Squaring, if wanted, is the caller's responsibility (C8 builds it over
// refimg^2, not refimg itself).
func Build(data []float32, rows, cols int) *Table {
	st := &Table{Rows: rows, Cols: cols, t: make([]float64, (rows+1)*(cols+1))}
	stride := cols + 1
	accumulate(st.t, data, rows, cols, stride)
	return st
}

// Sum returns the sum of pixel values within r, clipped to the table's
// bounds. An empty or fully out-of-bounds rectangle sums to zero.
func (st *Table) Sum(r geom.Rect) float64 {
	full := geom.Rect{X: 0, Y: 0, W: st.Cols, H: st.Rows}
	r = r.Intersect(full)
	if r.Empty() {
		return 0
	}
	stride := st.Cols + 1
	x0, y0, x1, y1 := r.X, r.Y, r.Right(), r.Bottom()
	return st.t[y1*stride+x1] + st.t[y0*stride+x0] - st.t[y0*stride+x1] - st.t[y1*stride+x0]
}
