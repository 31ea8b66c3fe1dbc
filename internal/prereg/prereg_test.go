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

package prereg

import (
	"math/rand"
	"testing"
)

// shiftImage returns an image with ref translated by t=(tx,ty): shifted[y,x]
// = ref[y-ty,x-tx] where in bounds, else 0.
func shiftImage(ref []float32, h, w, tx, ty int) []float32 {
	out := make([]float32, h*w)
	for y := 0; y < h; y++ {
		sy := y - ty
		if sy < 0 || sy >= h {
			continue
		}
		for x := 0; x < w; x++ {
			sx := x - tx
			if sx < 0 || sx >= w {
				continue
			}
			out[y*w+x] = ref[sy*w+sx]
		}
	}
	return out
}

func TestFindShiftIsTranslationInvariant(t *testing.T) {
	h, w, m := 64, 64, 8
	rng := rand.New(rand.NewSource(3))
	ref := make([]float32, h*w)
	for i := range ref {
		ref[i] = rng.Float32()
	}

	reg := New(ref, h, w, m)

	for _, tr := range [][2]int{{3, -2}, {-4, 5}, {0, 0}, {8, -8}} {
		tx, ty := tr[0], tr[1]
		frame := shiftImage(ref, h, w, tx, ty)
		shift, _ := reg.FindShift(frame)
		if shift.X != tx || shift.Y != ty {
			t.Errorf("t=(%d,%d): FindShift = %v, want (%d,%d)", tx, ty, shift, tx, ty)
		}
	}
}

func TestFindShiftMultiplierRecoversScale(t *testing.T) {
	h, w := 32, 32
	rng := rand.New(rand.NewSource(9))
	ref := make([]float32, h*w)
	for i := range ref {
		ref[i] = rng.Float32() + 0.1
	}
	reg := New(ref, h, w, 0)

	scaled := make([]float32, h*w)
	for i, v := range ref {
		scaled[i] = v * 2.5
	}
	shift, mult := reg.FindShift(scaled)
	if shift.X != 0 || shift.Y != 0 {
		t.Fatalf("shift = %v, want (0,0)", shift)
	}
	// multiplier minimizes ||I - mu*R||, so mu* = <I,R>/||R||^2 = 2.5
	want := float32(2.5)
	if diff := mult - want; diff > 1e-3 || diff < -1e-3 {
		t.Errorf("multiplier = %v, want %v", mult, want)
	}
}
