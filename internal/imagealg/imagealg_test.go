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

package imagealg

import (
	"math"
	"testing"

	"github.com/astroluck/luckystack/internal/imgio"
)

func TestGaussian1DNormalized(t *testing.T) {
	k := Gaussian1D(2.5, 10)
	var sum float64
	for _, v := range k {
		sum += v
	}
	if math.Abs(sum-1) > 1e-12 {
		t.Errorf("kernel sums to %v, want 1", sum)
	}
	if k[10] <= k[9] || k[10] <= k[11] {
		t.Error("kernel is not peaked at its centre")
	}
}

// SepFilter2D of an impulse must reproduce the outer product of the two
// kernels, the separability property the RBF field synthesis relies on.
func TestSepFilter2DImpulseResponse(t *testing.T) {
	rows, cols := 9, 9
	data := make([]float32, rows*cols)
	data[4*cols+4] = 1

	k := Gaussian1D(1.2, 3)
	out := SepFilter2D(data, rows, cols, k, k)

	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			var want float64
			dy, dx := y-4, x-4
			if dy >= -3 && dy <= 3 && dx >= -3 && dx <= 3 {
				want = k[dx+3] * k[dy+3]
			}
			if math.Abs(float64(out[y*cols+x])-want) > 1e-6 {
				t.Fatalf("(%d,%d): got %v want %v", x, y, out[y*cols+x], want)
			}
		}
	}
}

func TestRemapIdentityAndBorder(t *testing.T) {
	src := imgio.NewPlane(4, 4, 1)
	for i := range src.Data {
		src.Data[i] = float32(i)
	}

	mapX := make([]float32, 16)
	mapY := make([]float32, 16)
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			mapX[y*4+x] = float32(x)
			mapY[y*4+x] = float32(y)
		}
	}
	out := Remap(src, mapX, mapY, 4, 4)
	for i := range out.Data {
		if out.Data[i] != src.Data[i] {
			t.Fatalf("identity remap changed pixel %d: %v != %v", i, out.Data[i], src.Data[i])
		}
	}

	// sampling fully outside the source must yield the constant 0 border
	for i := range mapX {
		mapX[i] = 100
	}
	out = Remap(src, mapX, mapY, 4, 4)
	for i := range out.Data {
		if out.Data[i] != 0 {
			t.Fatalf("out-of-bounds remap pixel %d = %v, want 0", i, out.Data[i])
		}
	}
}

func TestRemapHalfPixelInterpolates(t *testing.T) {
	src := imgio.NewPlane(1, 2, 1)
	src.Data[0], src.Data[1] = 2, 4

	mapX := []float32{0.5}
	mapY := []float32{0}
	out := Remap(src, mapX, mapY, 1, 1)
	if math.Abs(float64(out.Data[0])-3) > 1e-6 {
		t.Errorf("half-pixel sample = %v, want 3", out.Data[0])
	}
}
