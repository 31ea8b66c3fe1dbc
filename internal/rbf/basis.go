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

// Package rbf implements the RBF warper (C6): a dense Gaussian radial
// basis function interpolation of per-patch shifts, synthesized into a
// smooth, possibly super-sampled displacement field used to remap a frame
// onto the reference grid.
package rbf

import (
	"math"

	"github.com/astroluck/luckystack/internal/geom"
	"github.com/astroluck/luckystack/internal/imagealg"
	"gonum.org/v1/gonum/mat"
)

// Basis is the shared, immutable-after-construction RBF machinery: the
// inverted Gaussian coefficient matrix, the Gaussian smoothing kernel, and
// the dense base coordinate fields. Safely shared by borrow across worker
// goroutines -- it never touches a patch's pixel data, only patch centres
// (spec 4.9, "references patch centres but never the patches' pixel data
// at warp time").
type Basis struct {
	n         int
	sigma     float64 // in original-resolution pixel units
	s         int
	centersSS []point

	kinv   *mat.Dense
	kernel []float64 // 1-D Gaussian, half-width 5*sigma*s, in super-sampled pixel units

	outputRect geom.Rect // original-resolution output rectangle
	basesRect  geom.Rect // super-sampled coordinates

	// xBase, yBase are the dense, super-sampled base sampling coordinate
	// fields (before adding the RBF displacement and the frame's global
	// shift), shape outputRect.Size()*s, row-major.
	xBase, yBase []float32
}

type point struct{ X, Y float64 }

// gauss1DNorm is the normalized 1-D Gaussian density, matching (to
// truncation error) the discrete kernel imagealg.Gaussian1D samples.
func gauss1DNorm(x, sigma float64) float64 {
	return math.Exp(-x*x/(2*sigma*sigma)) / (math.Sqrt(2*math.Pi) * sigma)
}

// New builds the RBF basis from patch centres (original reference-image
// coordinates), Gaussian sigma (original-resolution pixel units,
// typically boxsize/4), super-sampling factor s, and an output rectangle
// in reference coordinates.
func New(centers []geom.Point, sigma float64, s int, outputRect geom.Rect) *Basis {
	if s < 1 {
		s = 1
	}
	n := len(centers)
	centersSS := make([]point, n)
	for i, c := range centers {
		centersSS[i] = point{X: float64(c.X) * float64(s), Y: float64(c.Y) * float64(s)}
	}

	sigmaSS := sigma * float64(s)
	halfWidth := int(math.Ceil(5 * sigmaSS))
	if halfWidth < 1 {
		halfWidth = 1
	}

	b := &Basis{
		n: n, sigma: sigma, s: s,
		centersSS:  centersSS,
		kernel:     imagealg.Gaussian1D(sigmaSS, halfWidth),
		outputRect: outputRect,
	}

	b.basesRect = boundingBoxOfPoints(centersSS).Union(geom.Rect{
		X: outputRect.X * s, Y: outputRect.Y * s, W: outputRect.W * s, H: outputRect.H * s,
	})

	if n > 0 {
		b.kinv = invertGaussianMatrix(centersSS, sigmaSS)
	}

	b.xBase, b.yBase = buildBaseFields(outputRect, s)
	return b
}

// NumPatches reports the number of RBF centres (0 means the warper
// degenerates to the base field plus global shift, per spec 4.6's "when
// delta is empty" case).
func (b *Basis) NumPatches() int { return b.n }

func boundingBoxOfPoints(pts []point) geom.Rect {
	if len(pts) == 0 {
		return geom.Rect{}
	}
	minX, minY := pts[0].X, pts[0].Y
	maxX, maxY := minX, minY
	for _, p := range pts[1:] {
		if p.X < minX {
			minX = p.X
		}
		if p.X > maxX {
			maxX = p.X
		}
		if p.Y < minY {
			minY = p.Y
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}
	x0, y0 := int(math.Floor(minX)), int(math.Floor(minY))
	x1, y1 := int(math.Ceil(maxX))+1, int(math.Ceil(maxY))+1
	return geom.Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

// buildBaseFields computes x_base(u) = (2u-s+1)/(2s) + outputRect.X (and
// the analogous y_base) over the super-sampled output lattice, per
// spec 4.6 construction step 1.
func buildBaseFields(outputRect geom.Rect, s int) (xBase, yBase []float32) {
	outW, outH := outputRect.W*s, outputRect.H*s
	xBase = make([]float32, outW*outH)
	yBase = make([]float32, outW*outH)
	for v := 0; v < outH; v++ {
		yb := float32((float64(2*v-s+1))/(2*float64(s))) + float32(outputRect.Y)
		for u := 0; u < outW; u++ {
			xb := float32((float64(2*u-s+1))/(2*float64(s))) + float32(outputRect.X)
			idx := v*outW + u
			xBase[idx] = xb
			yBase[idx] = yb
		}
	}
	return xBase, yBase
}

// invertGaussianMatrix builds the n x n Gaussian coefficient matrix
// K[i,j]=gauss1D(dx)*gauss1D(dy), using the same normalized Gaussian shape
// the separable smoothing kernel samples, so that depositing weights at
// the centres and convolving with that kernel reconstructs this matrix's
// algebra rather than a differently-scaled one. Inverted once, Cholesky
// preferred, falling back to an SVD pseudo-inverse on singularity, per
// spec 4.6 construction step 4.
func invertGaussianMatrix(centers []point, sigma float64) *mat.Dense {
	n := len(centers)
	data := make([]float64, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			dx := centers[i].X - centers[j].X
			dy := centers[i].Y - centers[j].Y
			data[i*n+j] = gauss1DNorm(dx, sigma) * gauss1DNorm(dy, sigma)
		}
	}
	sym := mat.NewSymDense(n, data)

	var chol mat.Cholesky
	if chol.Factorize(sym) {
		var inv mat.SymDense
		if err := chol.InverseTo(&inv); err == nil {
			dense := mat.NewDense(n, n, nil)
			dense.CloneFrom(&inv)
			return dense
		}
	}

	// Singular or ill-conditioned: fall back to an SVD pseudo-inverse.
	var svd mat.SVD
	if !svd.Factorize(sym, mat.SVDThin) {
		// Degenerate (e.g. n==1 with sigma==0); fall back to identity so
		// callers still get a well-defined (if crude) result.
		dense := mat.NewDense(n, n, nil)
		for i := 0; i < n; i++ {
			dense.Set(i, i, 1)
		}
		return dense
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	values := svd.Values(nil)
	const tol = 1e-10
	sInv := mat.NewDense(n, n, nil)
	for i, sv := range values {
		if sv > tol {
			sInv.Set(i, i, 1/sv)
		}
	}
	var vs, result mat.Dense
	vs.Mul(&v, sInv)
	result.Mul(&vs, u.T())
	dense := mat.NewDense(n, n, nil)
	dense.Copy(&result)
	return dense
}
