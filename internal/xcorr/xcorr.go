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

// Package xcorr implements the "cooked template" (C1): the FFT of a small
// reference patch is computed once and reused against arbitrarily sized
// query images by tiling, following the block-FFT cross-correlation
// approach of other_examples/bob-anderson-ok-IOTAdiffraction__convolution.go,
// generalized from one-shot linear convolution to a reusable, tiled,
// cross-correlation "cooked" plan.
package xcorr

import (
	"math"

	"github.com/astroluck/luckystack/internal/bufpool"
	"gonum.org/v1/gonum/dsp/fourier"
)

// Template is a precomputed FFT plan of a single-channel patch, reusable
// across many Correlate calls against differently-sized images. Immutable
// after construction, safely shared by borrow across worker goroutines.
type Template struct {
	th, tw int // template shape
	bh, bw int // tile block shape (output pixels produced per FFT)
	dh, dw int // padded transform shape, bh+th-1 x bw+tw-1 (rounded up)

	spec []complex128 // DFT of the template, zero-padded to dh x dw
}

// Cook precomputes the FFT of a single-channel template t (shape th x tw,
// row-major), sized for tiled correlation against images up to corrH x
// corrW in extent. The block size is picked per spec 4.1.1: target ~4.5x
// the template size per axis, clamped to the requested correlation extent;
// the padded transform length block+template-1 is then rounded up to a
// 5-smooth FFT length.
func Cook(t []float32, th, tw, corrH, corrW int) *Template {
	bh := pickBlock(th, corrH)
	bw := pickBlock(tw, corrW)
	dh := niceFFTLen(bh + th - 1)
	dw := niceFFTLen(bw + tw - 1)
	// dh/dw may have grown past bh+th-1; that's fine, the extra padding is
	// zero and simply discarded when cropping the tile's output block.

	padded := make([]complex128, dh*dw)
	for y := 0; y < th; y++ {
		for x := 0; x < tw; x++ {
			padded[y*dw+x] = complex(float64(t[y*tw+x]), 0)
		}
	}
	fft2(padded, dh, dw, true)

	return &Template{th: th, tw: tw, bh: bh, bw: bw, dh: dh, dw: dw, spec: padded}
}

// pickBlock chooses a tile extent along one axis: ~4.5x the template size,
// never exceeding the requested correlation extent along that axis (a
// single tile suffices once B would exceed it).
func pickBlock(t, corr int) int {
	b := int(math.Ceil(4.5 * float64(t)))
	if corr > 0 && b > corr {
		b = corr
	}
	if b < 1 {
		b = 1
	}
	return b
}

// niceFFTLen rounds n up to the next 5-smooth integer (factors only 2,3,5),
// which gonum's fourier package transforms efficiently.
func niceFFTLen(n int) int {
	if n < 1 {
		return 1
	}
	for {
		m := n
		for m%2 == 0 {
			m /= 2
		}
		for m%3 == 0 {
			m /= 3
		}
		for m%5 == 0 {
			m /= 5
		}
		if m == 1 {
			return n
		}
		n++
	}
}

// Correlate computes linear cross-correlation out[y,x] = sum_{u,v}
// img[y+v,x+u]*t[v,u] for out shaped outH x outW, by tiling the image into
// blocks of the template's cooked size, per spec 4.1.3. img is shape
// imgH x imgW, row-major, single channel; pixels outside img are treated
// as zero. accumulate selects whether tile results overwrite (false) or
// add into (true) out, supporting the multi-channel accumulation pattern
// of spec 4.1.4.
func (c *Template) Correlate(img []float32, imgH, imgW int, out []float32, outH, outW int, accumulate bool) {
	buf := bufpool.GetComplex128(c.dh * c.dw)
	defer bufpool.PutComplex128(buf)
	for ty := 0; ty < outH; ty += c.bh {
		for tx := 0; tx < outW; tx += c.bw {
			for i := range buf {
				buf[i] = 0
			}
			// Extract the image region feeding this tile: the correlation
			// at output (ty+j, tx+i) needs img rows [ty+j, ty+j+th) etc, so
			// the window spans bh+th-1 rows starting at ty (and similarly
			// for columns), zero outside img's bounds.
			wh := c.bh + c.th - 1
			ww := c.bw + c.tw - 1
			for j := 0; j < wh; j++ {
				sy := ty + j
				if sy < 0 || sy >= imgH {
					continue
				}
				rowOff := sy * imgW
				for i := 0; i < ww; i++ {
					sx := tx + i
					if sx < 0 || sx >= imgW {
						continue
					}
					buf[j*c.dw+i] = complex(float64(img[rowOff+sx]), 0)
				}
			}

			fft2(buf, c.dh, c.dw, true)
			for i := range buf {
				buf[i] *= conj(c.spec[i])
			}
			fft2(buf, c.dh, c.dw, false)
			scale := 1.0 / float64(c.dh*c.dw)

			bh := min(c.bh, outH-ty)
			bw := min(c.bw, outW-tx)
			for j := 0; j < bh; j++ {
				dstRow := (ty + j) * outW
				srcRow := j * c.dw
				for i := 0; i < bw; i++ {
					v := float32(real(buf[srcRow+i]) * scale)
					if accumulate {
						out[dstRow+tx+i] += v
					} else {
						out[dstRow+tx+i] = v
					}
				}
			}
		}
	}
}

func conj(z complex128) complex128 { return complex(real(z), -imag(z)) }

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// fft2 performs an in-place 2-D complex FFT (forward) or its inverse
// (unnormalized, matching gonum's convention) over a dh x dw row-major
// buffer, transforming rows then columns.
func fft2(a []complex128, dh, dw int, forward bool) {
	rowFFT := fourier.NewCmplxFFT(dw)
	colFFT := fourier.NewCmplxFFT(dh)

	row := make([]complex128, dw)
	for y := 0; y < dh; y++ {
		copy(row, a[y*dw:(y+1)*dw])
		if forward {
			rowFFT.Coefficients(row, row)
		} else {
			rowFFT.Sequence(row, row)
		}
		copy(a[y*dw:(y+1)*dw], row)
	}

	col := make([]complex128, dh)
	for x := 0; x < dw; x++ {
		for y := 0; y < dh; y++ {
			col[y] = a[y*dw+x]
		}
		if forward {
			colFFT.Coefficients(col, col)
		} else {
			colFFT.Sequence(col, col)
		}
		for y := 0; y < dh; y++ {
			a[y*dw+x] = col[y]
		}
	}
}
