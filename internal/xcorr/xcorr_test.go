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

package xcorr

import (
	"math"
	"math/rand"
	"testing"
)

func directCorrelate(img []float32, imgH, imgW int, t []float32, th, tw int, outH, outW int) []float32 {
	out := make([]float32, outH*outW)
	for y := 0; y < outH; y++ {
		for x := 0; x < outW; x++ {
			var sum float64
			for v := 0; v < th; v++ {
				sy := y + v
				if sy < 0 || sy >= imgH {
					continue
				}
				for u := 0; u < tw; u++ {
					sx := x + u
					if sx < 0 || sx >= imgW {
						continue
					}
					sum += float64(img[sy*imgW+sx]) * float64(t[v*tw+u])
				}
			}
			out[y*outW+x] = float32(sum)
		}
	}
	return out
}

func TestCorrelateMatchesDirectConvolution(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	imgH, imgW := 37, 41
	th, tw := 9, 7
	outH, outW := imgH+th-1, imgW+tw-1

	img := make([]float32, imgH*imgW)
	for i := range img {
		img[i] = rng.Float32()*2 - 1
	}
	tmpl := make([]float32, th*tw)
	var tmplNorm, imgNorm float64
	for i := range tmpl {
		tmpl[i] = rng.Float32()*2 - 1
		tmplNorm += float64(tmpl[i]) * float64(tmpl[i])
	}
	for i := range img {
		imgNorm += float64(img[i]) * float64(img[i])
	}
	tmplNorm, imgNorm = math.Sqrt(tmplNorm), math.Sqrt(imgNorm)

	ct := Cook(tmpl, th, tw, outH, outW)
	got := make([]float32, outH*outW)
	ct.Correlate(img, imgH, imgW, got, outH, outW, false)

	want := directCorrelate(img, imgH, imgW, tmpl, th, tw, outH, outW)

	tol := 1e-4 * tmplNorm * imgNorm
	for i := range want {
		diff := float64(got[i] - want[i])
		if diff > tol || diff < -tol {
			t.Fatalf("mismatch at %d: got %v want %v (tol %v)", i, got[i], want[i], tol)
		}
	}
}
