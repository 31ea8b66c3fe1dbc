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

// Package match implements the patch matcher (C2): given a prepared patch
// (pixels plus its three cooked FFT templates, per xcorr.Cook) and a query
// region, it produces the 2-D sum-of-squared-difference surface whose
// minimum locates the best translation.
package match

import "github.com/astroluck/luckystack/internal/xcorr"

// Prepared is a patch made ready for repeated matching: its pixels, an
// optional weighting mask (default all ones), the scalar sum(P^2*M), and
// cooked (FFT-precomputed) templates of the patch, the mask, and the
// patch-squared-times-mask image. Immutable once built; safely shared by
// borrow across worker goroutines, per spec 4.9/"cooked template" reuse.
type Prepared struct {
	Box    int
	Pixels []float32 // Box x Box, row-major
	Mask   []float32 // Box x Box, row-major; nil means implicitly all ones
	SqSum  float64   // sum(Pixels[i]^2 * Mask[i])

	CookP  *xcorr.Template // cooked FFT of Pixels
	CookM  *xcorr.Template // cooked FFT of Mask (or all-ones if Mask is nil)
	CookP2 *xcorr.Template // cooked FFT of Pixels^2 * Mask
}

// Prepare builds a Prepared patch from raw pixels and an optional mask
// (nil for the default all-ones mask), cooking all three FFT templates for
// reuse against query regions up to corrH x corrW in extent.
func Prepare(pixels []float32, box int, mask []float32, corrH, corrW int) *Prepared {
	p2m := make([]float32, box*box)
	var sqsum float64
	if mask == nil {
		for i, v := range pixels {
			p2m[i] = v * v
			sqsum += float64(p2m[i])
		}
	} else {
		for i, v := range pixels {
			p2m[i] = v * v * mask[i]
			sqsum += float64(p2m[i])
		}
	}

	maskForCooking := mask
	if maskForCooking == nil {
		maskForCooking = onesOf(box * box)
	}

	return &Prepared{
		Box:    box,
		Pixels: pixels,
		Mask:   mask,
		SqSum:  sqsum,
		CookP:  xcorr.Cook(pixels, box, box, corrH, corrW),
		CookM:  xcorr.Cook(maskForCooking, box, box, corrH, corrW),
		CookP2: xcorr.Cook(p2m, box, box, corrH, corrW),
	}
}

func onesOf(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = 1
	}
	return out
}

// Matcher holds scratch buffers reused across Surface calls. Not
// thread-safe: each worker owns its own instance, matching spec 4.2/4.9's
// "not thread-safe, each worker owns an instance" contract.
type Matcher struct {
	rsq, rv, rsqv []float32
	term1, term2  []float32
	term3, nterm  []float32
}

// NewMatcher constructs an empty, worker-local Matcher.
func NewMatcher() *Matcher { return &Matcher{} }

func (m *Matcher) ensure(n int) {
	grow := func(s []float32) []float32 {
		if cap(s) < n {
			return make([]float32, n)
		}
		return s[:n]
	}
	m.rsq = grow(m.rsq)
	m.rv = grow(m.rv)
	m.rsqv = grow(m.rsqv)
}

// Surface computes the SSD match surface of p against region (shape rh x
// rw, row-major), with intensity multiplier mu, over a search window whose
// valid translations are (rh-p.Box+1) x (rw-p.Box+1). Every pixel of
// region is treated as backed by real data: this is the full-overlap fast
// path, with no normalization division.
func (m *Matcher) Surface(p *Prepared, region []float32, rh, rw int, mu float32) []float32 {
	return m.surface(p, region, rh, rw, mu, nil)
}

// SurfaceMasked is Surface's partial-overlap counterpart: validity, shaped
// like region, is 1 where the pixel is backed by real decoded data and 0
// elsewhere, and each surface value is divided by the masked overlap
// weight at its offset.
func (m *Matcher) SurfaceMasked(p *Prepared, region []float32, rh, rw int, mu float32, validity []float32) []float32 {
	return m.surface(p, region, rh, rw, mu, validity)
}

func (m *Matcher) surface(p *Prepared, region []float32, rh, rw int, mu float32, validity []float32) []float32 {
	n := rh * rw
	m.ensure(n)

	for i, v := range region {
		m.rsq[i] = v * v
	}
	if validity == nil {
		copy(m.rv, region)
		copy(m.rsqv, m.rsq)
	} else {
		for i := 0; i < n; i++ {
			m.rv[i] = region[i] * validity[i]
			m.rsqv[i] = m.rsq[i] * validity[i]
		}
	}

	sh, sw := rh-p.Box+1, rw-p.Box+1
	sn := sh * sw
	if cap(m.term1) < sn {
		m.term1 = make([]float32, sn)
		m.term2 = make([]float32, sn)
	} else {
		m.term1 = m.term1[:sn]
		m.term2 = m.term2[:sn]
	}

	p.CookM.Correlate(m.rsqv, rh, rw, m.term1, sh, sw, false)
	p.CookP.Correlate(m.rv, rh, rw, m.term2, sh, sw, false)

	surface := make([]float32, sn)
	if validity == nil {
		sqsum := float32(p.SqSum)
		for i := 0; i < sn; i++ {
			surface[i] = m.term1[i] - 2*mu*m.term2[i] + mu*mu*sqsum
		}
		return surface
	}

	if cap(m.term3) < sn {
		m.term3 = make([]float32, sn)
		m.nterm = make([]float32, sn)
	} else {
		m.term3 = m.term3[:sn]
		m.nterm = m.nterm[:sn]
	}
	p.CookP2.Correlate(validity, rh, rw, m.term3, sh, sw, false)
	p.CookM.Correlate(validity, rh, rw, m.nterm, sh, sw, false)

	for i := 0; i < sn; i++ {
		unnorm := m.term1[i] - 2*mu*m.term2[i] + mu*mu*m.term3[i]
		if m.nterm[i] <= 0 {
			surface[i] = float32(1e38) // fully invalid offset: unmatchable
			continue
		}
		surface[i] = unnorm / m.nterm[i]
	}
	return surface
}

// MinMaxLoc reports the minimum and maximum values of surface (shaped sh x
// sw) and their locations, matching the image-algebra minMaxLoc contract
// of spec section 6.
func MinMaxLoc(surface []float32, sh, sw int) (minVal, maxVal float32, minX, minY, maxX, maxY int) {
	minVal, maxVal = surface[0], surface[0]
	for y := 0; y < sh; y++ {
		row := y * sw
		for x := 0; x < sw; x++ {
			v := surface[row+x]
			if v < minVal {
				minVal, minX, minY = v, x, y
			}
			if v > maxVal {
				maxVal, maxX, maxY = v, x, y
			}
		}
	}
	return
}
