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

// Package quadfit implements the 3x3 quadratic sub-pixel fitter (C3): a
// 6-term 2-D quadratic least-squares fit over a 3x3 neighbourhood, plus the
// closed-form eigen-structure of its Hessian, used by the driver's per-frame
// shift search and the quality filter (C4) to refine an integer
// match-surface minimum.
package quadfit

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Fit holds the coefficients of D(x,y) ~= a0 + a1*x + a2*y + a3*x^2 + a4*x*y + a5*y^2,
// least-squares fit on a 3x3 neighbourhood centred at the origin.
type Fit struct {
	A [6]float64
}

// offsets lists the 9 sample coordinates, row-major, matching the 3x3
// neighbourhood passed to New.
var offsets = [9][2]float64{
	{-1, -1}, {0, -1}, {1, -1},
	{-1, 0}, {0, 0}, {1, 0},
	{-1, 1}, {0, 1}, {1, 1},
}

// New fits a quadratic to the 3x3 neighbourhood d, given row-major with d[0]
// the top-left sample and d[8] the bottom-right sample (d[4] is the centre).
// Least squares is solved via the SVD pseudo-inverse, per the
// "solve(A,b,x,method=SVD)" contract of the image-algebra collaborator.
func New(d [9]float64) *Fit {
	A := mat.NewDense(9, 6, nil)
	for i, o := range offsets {
		x, y := o[0], o[1]
		A.SetRow(i, []float64{1, x, y, x * x, x * y, y * y})
	}
	b := mat.NewVecDense(9, d[:])

	var svd mat.SVD
	ok := svd.Factorize(A, mat.SVDThin)
	if !ok {
		return &Fit{}
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	s := svd.Values(nil)

	// x = V * diag(1/s_i, s_i > tol) * U^T * b
	var utb mat.VecDense
	utb.MulVec(u.T(), b)
	const tol = 1e-10
	for i, sv := range s {
		if sv > tol {
			utb.SetVec(i, utb.AtVec(i)/sv)
		} else {
			utb.SetVec(i, 0)
		}
	}
	var x mat.VecDense
	x.MulVec(&v, &utb)

	f := &Fit{}
	for i := 0; i < 6; i++ {
		f.A[i] = x.AtVec(i)
	}
	return f
}

// hessian returns the symmetric Hessian [[2a3,a4],[a4,2a5]] of the fit.
func (f *Fit) hessian() (h11, h12, h22 float64) {
	return 2 * f.A[3], f.A[4], 2 * f.A[5]
}

// Minimum returns the analytic stationary point of the fitted quadratic,
// solving H.(x0,y0) = -(a1,a2). If the Hessian is (numerically) singular,
// it returns the origin -- the caller is responsible for guarding against
// degenerate fits, per spec (no failure signalled here).
func (f *Fit) Minimum() (x0, y0 float64) {
	h11, h12, h22 := f.hessian()
	det := h11*h22 - h12*h12
	if math.Abs(det) < 1e-12 {
		return 0, 0
	}
	a1, a2 := f.A[1], f.A[2]
	// H^-1 * (-a1,-a2)
	x0 = (h22*(-a1) - h12*(-a2)) / det
	y0 = (-h12*(-a1) + h11*(-a2)) / det
	return x0, y0
}

// eigPair returns (eigenvalue, eigenvector) for the + (large=true) or -
// (large=false) branch of the closed-form symmetric-2x2 eigendecomposition.
func (f *Fit) eigPair(large bool) (val float64, vec [2]float64) {
	h11, h12, h22 := f.hessian()
	mid := (h11 + h22) / 2
	disc := math.Sqrt((h11-h22)*(h11-h22)/4 + h12*h12)
	if large {
		val = mid + disc
	} else {
		val = mid - disc
	}
	if h12 != 0 {
		vec = [2]float64{h12, val - h11}
	} else if h11 >= h22 {
		// diagonal matrix: axis-aligned eigenvectors, large->x, small->y
		if large {
			vec = [2]float64{1, 0}
		} else {
			vec = [2]float64{0, 1}
		}
	} else {
		if large {
			vec = [2]float64{0, 1}
		} else {
			vec = [2]float64{1, 0}
		}
	}
	n := math.Hypot(vec[0], vec[1])
	if n > 0 {
		vec[0] /= n
		vec[1] /= n
	}
	return val, vec
}

// SmallerEig returns the smaller eigenvalue of the Hessian.
func (f *Fit) SmallerEig() float64 { v, _ := f.eigPair(false); return v }

// LargerEig returns the larger eigenvalue of the Hessian.
func (f *Fit) LargerEig() float64 { v, _ := f.eigPair(true); return v }

// SmallerEigVec returns the unit eigenvector for the smaller eigenvalue.
func (f *Fit) SmallerEigVec() [2]float64 { _, v := f.eigPair(false); return v }

// LargerEigVec returns the unit eigenvector for the larger eigenvalue.
func (f *Fit) LargerEigVec() [2]float64 { _, v := f.eigPair(true); return v }
