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

// Package imagealg provides the small set of 2-D image-algebra kernels the
// RBF warper (C6) needs -- separable filtering and bilinear remap -- in
// the same spirit as the gray conversion and plane utilities of imgio:
// a minimal, in-module stand-in for the remap/sepFilter2D collaborators
// that spec section 6 otherwise treats as external. Template correlation
// is not here; it lives in xcorr.
package imagealg

import (
	"math"

	"github.com/astroluck/luckystack/internal/imgio"
)

// Gaussian1D returns a normalized 1-D Gaussian kernel of half-width
// halfWidth samples on each side of the centre (length 2*halfWidth+1).
func Gaussian1D(sigma float64, halfWidth int) []float64 {
	k := make([]float64, 2*halfWidth+1)
	var sum float64
	for i := -halfWidth; i <= halfWidth; i++ {
		v := gauss(float64(i), sigma)
		k[i+halfWidth] = v
		sum += v
	}
	for i := range k {
		k[i] /= sum
	}
	return k
}

func gauss(x, sigma float64) float64 {
	return math.Exp(-x * x / (2 * sigma * sigma))
}

// SepFilter2D applies 1-D kernel kx along rows and ky along columns to a
// single-channel float32 image, zero-padding at the boundary, matching
// the sepFilter2D contract of spec section 6.
func SepFilter2D(data []float32, rows, cols int, kx, ky []float64) []float32 {
	tmp := make([]float32, rows*cols)
	filterRows(data, tmp, rows, cols, kx)
	out := make([]float32, rows*cols)
	filterCols(tmp, out, rows, cols, ky)
	return out
}

func filterRows(src, dst []float32, rows, cols int, k []float64) {
	half := len(k) / 2
	for y := 0; y < rows; y++ {
		rowOff := y * cols
		for x := 0; x < cols; x++ {
			var sum float64
			for i, kv := range k {
				sx := x + i - half
				if sx < 0 || sx >= cols {
					continue
				}
				sum += kv * float64(src[rowOff+sx])
			}
			dst[rowOff+x] = float32(sum)
		}
	}
}

func filterCols(src, dst []float32, rows, cols int, k []float64) {
	half := len(k) / 2
	for x := 0; x < cols; x++ {
		for y := 0; y < rows; y++ {
			var sum float64
			for i, kv := range k {
				sy := y + i - half
				if sy < 0 || sy >= rows {
					continue
				}
				sum += kv * float64(src[sy*cols+x])
			}
			dst[y*cols+x] = float32(sum)
		}
	}
}

// Remap pulls pixels from src through per-output-pixel sampling
// coordinates (mapX, mapY, both outRows x outCols, row-major, in src's
// pixel coordinate frame) using bilinear interpolation with
// BORDER_CONSTANT=0, matching spec section 6's remap contract.
func Remap(src *imgio.Plane, mapX, mapY []float32, outRows, outCols int) *imgio.Plane {
	out := imgio.NewPlane(outRows, outCols, src.Channels)
	for y := 0; y < outRows; y++ {
		for x := 0; x < outCols; x++ {
			idx := y*outCols + x
			sx, sy := float64(mapX[idx]), float64(mapY[idx])
			for k := 0; k < src.Channels; k++ {
				out.Set(x, y, k, bilinear(src, sx, sy, k))
			}
		}
	}
	return out
}

func bilinear(src *imgio.Plane, x, y float64, k int) float32 {
	x0 := floorInt(x)
	y0 := floorInt(y)
	fx := x - float64(x0)
	fy := y - float64(y0)

	v00 := sample(src, x0, y0, k)
	v10 := sample(src, x0+1, y0, k)
	v01 := sample(src, x0, y0+1, k)
	v11 := sample(src, x0+1, y0+1, k)

	top := v00*(1-fx) + v10*fx
	bot := v01*(1-fx) + v11*fx
	return float32(top*(1-fy) + bot*fy)
}

func sample(src *imgio.Plane, x, y, k int) float64 {
	if x < 0 || x >= src.Cols || y < 0 || y >= src.Rows {
		return 0
	}
	return float64(src.At(x, y, k))
}

func floorInt(v float64) int {
	i := int(v)
	if v < 0 && float64(i) != v {
		i--
	}
	return i
}
