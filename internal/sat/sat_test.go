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

import (
	"testing"

	"github.com/astroluck/luckystack/internal/geom"
)

func TestTableMatchesBruteForce(t *testing.T) {
	rows, cols := 11, 13
	data := make([]float32, rows*cols)
	for i := range data {
		data[i] = float32(i%7) - 3
	}
	st := Build(data, rows, cols)

	rects := []geom.Rect{
		{X: 0, Y: 0, W: cols, H: rows},
		{X: 2, Y: 3, W: 4, H: 5},
		{X: 0, Y: 0, W: 1, H: 1},
		{X: 10, Y: 8, W: 5, H: 5}, // overhangs the border
		{X: -2, Y: -2, W: 4, H: 4},
	}
	for _, r := range rects {
		got := st.Sum(r)
		want := bruteSum(data, rows, cols, r)
		if diff := got - want; diff > 1e-6 || diff < -1e-6 {
			t.Errorf("Sum(%v) = %v, want %v", r, got, want)
		}
	}
}

func bruteSum(data []float32, rows, cols int, r geom.Rect) float64 {
	full := geom.Rect{X: 0, Y: 0, W: cols, H: rows}
	r = r.Intersect(full)
	var sum float64
	for y := r.Y; y < r.Bottom(); y++ {
		for x := r.X; x < r.Right(); x++ {
			sum += float64(data[y*cols+x])
		}
	}
	return sum
}
