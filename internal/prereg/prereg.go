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

// Package prereg implements the global pre-registrator (C5): for each
// frame, it finds the single integer whole-image translation against a
// reference that minimizes the intensity-scaled SSD, by the same
// cross-correlation machinery as the patch matcher (C2), specialized to
// the degenerate case where the "patch" is the entire reference frame.
package prereg

import (
	"math"

	"github.com/astroluck/luckystack/internal/bufpool"
	"github.com/astroluck/luckystack/internal/geom"
	"github.com/astroluck/luckystack/internal/sat"
	"github.com/astroluck/luckystack/internal/xcorr"
)

// Registrator is built once from a reference frame and a maximum move,
// and reused (read-only) to register many frames against it. Not
// thread-safe: each worker constructs and owns its own instance, exactly
// like the patch matcher (C2) and per spec 4.5/4.9.
type Registrator struct {
	rH, rW int
	m      int
	refSq  *sat.Table      // O(1) windowed sums of R^2, the per-offset Q term
	cookR  *xcorr.Template // cooked FFT of the reference frame
}

// New builds a Registrator from reference frame ref (rH x rW, row-major
// gray) and maximum move m.
func New(ref []float32, rH, rW, m int) *Registrator {
	refSq := make([]float32, len(ref))
	for i, v := range ref {
		refSq[i] = v * v
	}
	corr := 2*m + 1
	return &Registrator{
		rH: rH, rW: rW, m: m,
		refSq: sat.Build(refSq, rH, rW),
		cookR: xcorr.Cook(ref, rH, rW, corr, corr),
	}
}

// FindShift registers frame (same rH x rW shape as the reference) against
// the reference, per spec 4.5: shift is the integer translation that maps
// reference coordinates to frame coordinates, and multiplier is the
// intensity scaling that minimizes the L2 residual.
func (r *Registrator) FindShift(frame []float32) (shift geom.Point, multiplier float32) {
	m := r.m
	corr := 2*m + 1
	canvas := bufpool.GetFloat32((r.rH + 2*m) * (r.rW + 2*m))
	defer bufpool.PutFloat32(canvas)
	canvasW := r.rW + 2*m
	for y := 0; y < r.rH; y++ {
		dst := (y + m) * canvasW
		src := y * r.rW
		copy(canvas[dst+m:dst+m+r.rW], frame[src:src+r.rW])
	}

	cor := make([]float32, corr*corr)
	r.cookR.Correlate(canvas, r.rH+2*m, r.rW+2*m, cor, corr, corr, false)

	frameSq := bufpool.GetFloat32(len(frame))
	defer bufpool.PutFloat32(frameSq)
	for i, v := range frame {
		frameSq[i] = v * v
	}
	table := sat.Build(frameSq, r.rH, r.rW)

	bestTy, bestTx := m, m
	bestMatch := math.Inf(1)
	var bestCor float32
	var bestQ float64
	for ty := 0; ty < corr; ty++ {
		shiftY := ty - m
		for tx := 0; tx < corr; tx++ {
			shiftX := tx - m
			window := geom.Rect{X: shiftX, Y: shiftY, W: r.rW, H: r.rH}
			imgsq := table.Sum(window)
			// reference energy over the part of the reference the
			// shifted frame overlaps, the per-offset Q of the SSD surface
			q := r.refSq.Sum(geom.Rect{X: -shiftX, Y: -shiftY, W: r.rW, H: r.rH})
			c := cor[ty*corr+tx]
			var match float64
			if imgsq <= 0 {
				match = math.Inf(1)
			} else {
				match = q - float64(c)*float64(c)/imgsq
			}
			if match < bestMatch {
				bestMatch, bestTy, bestTx, bestCor, bestQ = match, ty, tx, c, q
			}
		}
	}

	// The correlation here slides the reference template over the padded
	// frame, the mirror of sliding the frame over a padded reference, so
	// the ref-to-frame shift is argmin minus the origin.
	shift = geom.Point{X: bestTx, Y: bestTy}.Sub(geom.Point{X: m, Y: m})
	if bestQ > 0 {
		multiplier = float32(float64(bestCor) / bestQ)
	} else {
		multiplier = 1
	}
	return shift, multiplier
}
