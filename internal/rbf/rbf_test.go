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

package rbf

import (
	"math"
	"testing"

	"github.com/astroluck/luckystack/internal/geom"
)

// TestWeightsRecoverInterpolation checks that the reconstructed
// displacement field, evaluated at a patch centre's own (super-sampled)
// output pixel, equals the shift placed there to within 1e-3 per axis --
// the RBF interpolation property the warper is built to guarantee.
func TestWeightsRecoverInterpolation(t *testing.T) {
	centers := []geom.Point{
		{X: 30, Y: 30}, {X: 90, Y: 30}, {X: 30, Y: 90}, {X: 90, Y: 90}, {X: 60, Y: 60},
	}
	outputRect := geom.Rect{X: 0, Y: 0, W: 120, H: 120}
	sigma := 15.0
	s := 1

	basis := New(centers, sigma, s, outputRect)
	w := NewWarper(basis)

	delta := []geom.Point2D{
		{X: 0.8, Y: -0.3}, {X: -0.5, Y: 0.6}, {X: 0.2, Y: 0.2}, {X: -0.4, Y: -0.7}, {X: 0.1, Y: 0.5},
	}

	dx, dy := w.Field(delta)
	outW := outputRect.W * s

	for i, c := range centers {
		u := c.X*s - outputRect.X*s
		v := c.Y*s - outputRect.Y*s
		idx := v*outW + u
		if math.Abs(float64(dx[idx])-delta[i].X) > 1e-3 {
			t.Errorf("centre %d: dx=%v want %v", i, dx[idx], delta[i].X)
		}
		if math.Abs(float64(dy[idx])-delta[i].Y) > 1e-3 {
			t.Errorf("centre %d: dy=%v want %v", i, dy[idx], delta[i].Y)
		}
	}
}

// TestFieldZeroWhenNoPatches checks the degenerate zero-patch case
// collapses the displacement field to all zero, per spec 4.6.
func TestFieldZeroWhenNoPatches(t *testing.T) {
	outputRect := geom.Rect{X: 0, Y: 0, W: 16, H: 16}
	basis := New(nil, 5, 1, outputRect)
	w := NewWarper(basis)

	dx, dy := w.Field(nil)
	for i := range dx {
		if dx[i] != 0 || dy[i] != 0 {
			t.Fatalf("expected all-zero field, got dx[%d]=%v dy[%d]=%v", i, dx[i], i, dy[i])
		}
	}
}
