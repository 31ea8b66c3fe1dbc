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
	"github.com/astroluck/luckystack/internal/geom"
	"github.com/astroluck/luckystack/internal/imagealg"
	"github.com/astroluck/luckystack/internal/imgio"
	"gonum.org/v1/gonum/mat"
)

// Warper is the not-thread-safe, worker-owned scratch object built around a
// shared Basis: it holds the per-call dense field buffers so repeated Warp
// calls reuse allocations, per spec 4.9's worker-owned-scratch pattern.
type Warper struct {
	basis *Basis

	impX, impY []float32 // deposited impulses, shape basis.basesRect
	dx, dy     []float32 // filtered displacement fields, same shape
	mapX, mapY []float32 // final sampling coordinate fields, output lattice shape
}

// NewWarper returns a Warper bound to basis.
func NewWarper(basis *Basis) *Warper {
	n := basis.basesRect.W * basis.basesRect.H
	outW, outH := basis.outputRect.W*basis.s, basis.outputRect.H*basis.s
	return &Warper{
		basis: basis,
		impX:  make([]float32, n), impY: make([]float32, n),
		dx: make([]float32, n), dy: make([]float32, n),
		mapX: make([]float32, outW*outH), mapY: make([]float32, outW*outH),
	}
}

// Field evaluates the dense, super-sampled displacement field for the given
// per-centre shifts delta (same order and length as the centres passed to
// New), returning the (dx,dy) fields cropped to the output lattice, per
// spec 4.6 construction steps 2-5 (deposit, separable Gaussian smoothing,
// crop). If delta is empty, both fields are all zero.
func (w *Warper) Field(delta []geom.Point2D) (dx, dy []float32) {
	basis := w.basis
	for i := range w.impX {
		w.impX[i] = 0
		w.impY[i] = 0
	}

	if basis.n > 0 && len(delta) == basis.n {
		dxVec := mat.NewDense(basis.n, 1, nil)
		dyVec := mat.NewDense(basis.n, 1, nil)
		for i, d := range delta {
			dxVec.Set(i, 0, d.X)
			dyVec.Set(i, 0, d.Y)
		}
		var wx, wy mat.Dense
		wx.Mul(basis.kinv, dxVec)
		wy.Mul(basis.kinv, dyVec)

		bw := basis.basesRect.W
		for i, c := range basis.centersSS {
			px := roundInt(c.X) - basis.basesRect.X
			py := roundInt(c.Y) - basis.basesRect.Y
			if px < 0 || px >= bw || py < 0 || py >= basis.basesRect.H {
				continue
			}
			idx := py*bw + px
			w.impX[idx] += float32(wx.At(i, 0))
			w.impY[idx] += float32(wy.At(i, 0))
		}
	}

	w.dx = imagealg.SepFilter2D(w.impX, basis.basesRect.H, basis.basesRect.W, basis.kernel, basis.kernel)
	w.dy = imagealg.SepFilter2D(w.impY, basis.basesRect.H, basis.basesRect.W, basis.kernel, basis.kernel)

	return w.cropToOutput(w.dx), w.cropToOutput(w.dy)
}

// cropToOutput extracts the output-lattice-shaped sub-rectangle of a
// basesRect-shaped dense field.
func (w *Warper) cropToOutput(field []float32) []float32 {
	basis := w.basis
	outW, outH := basis.outputRect.W*basis.s, basis.outputRect.H*basis.s
	ox := basis.outputRect.X*basis.s - basis.basesRect.X
	oy := basis.outputRect.Y*basis.s - basis.basesRect.Y
	bw := basis.basesRect.W

	out := make([]float32, outW*outH)
	for y := 0; y < outH; y++ {
		srcRow := (y + oy) * bw
		copy(out[y*outW:(y+1)*outW], field[srcRow+ox:srcRow+ox+outW])
	}
	return out
}

// Warp resamples frame onto the output lattice: adds the per-centre RBF
// displacement field and the frame's global integer pre-registration shift
// g to the dense base coordinate fields, then bilinearly remaps frame (and
// a constant-1 normalization mask) through the resulting sampling
// coordinates, per spec 4.6's final two construction steps.
func (w *Warper) Warp(frame *imgio.Plane, delta []geom.Point2D, g geom.Point) (warped, mask *imgio.Plane) {
	basis := w.basis
	dx, dy := w.Field(delta)

	outW, outH := basis.outputRect.W*basis.s, basis.outputRect.H*basis.s
	for i := range w.mapX {
		w.mapX[i] = basis.xBase[i] + dx[i] + float32(g.X)
		w.mapY[i] = basis.yBase[i] + dy[i] + float32(g.Y)
	}

	warped = imagealg.Remap(frame, w.mapX, w.mapY, outH, outW)

	ones := imgio.NewPlane(frame.Rows, frame.Cols, 1)
	for i := range ones.Data {
		ones.Data[i] = 1
	}
	mask = imagealg.Remap(ones, w.mapX, w.mapY, outH, outW)
	return warped, mask
}

func roundInt(v float64) int {
	if v >= 0 {
		return int(v + 0.5)
	}
	return -int(-v + 0.5)
}
