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

// Package patch implements patch placement and the quality filter (C4):
// laying a hexagonal grid of candidate registration points on the
// reference image, then keeping only those whose self-match surface has a
// unique, sufficiently deep minimum.
package patch

import (
	"math"

	"github.com/astroluck/luckystack/internal/geom"
	"github.com/astroluck/luckystack/internal/imgio"
	"github.com/astroluck/luckystack/internal/match"
	"github.com/astroluck/luckystack/internal/quadfit"
)

// float32Epsilon is the IEEE-754 single precision machine epsilon, used as
// the quality filter's minimum-curvature threshold per spec 4.4.
const float32Epsilon = 1.1920929e-07

// eigMult scales the uniqueness threshold in the quality filter (spec 4.4
// rule 2); the documented contract fixes it at 1.0.
const eigMult = 1.0

// Position is a candidate (or accepted) patch's placement: its top-left in
// reference-image coordinates, and the rectangle within which a match is
// permitted to be found.
type Position struct {
	X, Y       int
	SearchArea geom.Rect
}

// MatchShift is the offset from SearchArea's top-left to the patch's own
// top-left -- spec 4.4/4.8's "matchShiftX,matchShiftY" used to re-centre a
// raw surface-space minimum onto a shift relative to the patch's own
// position. Spec 4.8 open question (b): the intended, non-buggy
// computation uses MatchShiftY for the Y component (not a repeat of X).
func (p Position) MatchShift() (x, y int) {
	return p.X - p.SearchArea.X, p.Y - p.SearchArea.Y
}

// Patch extends Position with its pixel data and cooked FFT templates,
// ready for repeated matching against query frames.
type Patch struct {
	Position
	Box      int
	Prepared *match.Prepared
}

// Collection is an ordered set of accepted patches plus the rectangle of
// the reference image within which their top-lefts were generated. Two
// collections are compatible (spec 3's "equality... is a compatibility
// key between runs") iff CreationArea is equal.
type Collection struct {
	Patches      []*Patch
	CreationArea geom.Rect
}

// Place lays a hexagonal grid of candidate patch positions within area,
// per spec 4.4: rows spaced by ceil(step*sqrt(0.75)), columns spaced by
// step=boxsize/2, alternate rows offset by step/2, with a safety=
// maxmove+1 inset from area's edges so every candidate's SearchArea stays
// inside area. Spec's boundary behaviour ("area smaller than boxsize +
// 2*(maxmove+1) yields an empty collection") falls out automatically: the
// loop bounds below are then empty.
func Place(area geom.Rect, boxsize, maxmove int) []Position {
	safety := maxmove + 1
	step := boxsize / 2
	ystep := int(math.Ceil(float64(step) * math.Sqrt(0.75)))
	if ystep < 1 {
		ystep = 1
	}

	maxY := area.Bottom() - boxsize - safety
	maxX := area.Right() - boxsize - safety

	var positions []Position
	for row, y := 0, area.Y+safety; y <= maxY; row, y = row+1, y+ystep {
		off := 0
		if row%2 == 1 {
			off = step / 2
		}
		for x := area.X + safety + off; x <= maxX; x += step {
			sa := geom.Rect{X: x - safety, Y: y - safety, W: boxsize + 2*safety, H: boxsize + 2*safety}
			positions = append(positions, Position{X: x, Y: y, SearchArea: sa})
		}
	}
	return positions
}

// Filter runs the quality filter (spec 4.4) of each candidate against
// refimg, keeping a Patch only if its self-match surface has a unique,
// sufficiently deep minimum. Returns the accepted collection and the
// number of candidates rejected (spec 7's "count printed at stage end").
func Filter(refimg *imgio.Plane, candidates []Position, boxsize int, creationArea geom.Rect) (coll *Collection, rejected int) {
	m := match.NewMatcher()
	var accepted []*Patch

	for _, cand := range candidates {
		pixels := extract(refimg, cand.X, cand.Y, boxsize)
		sh, sw := cand.SearchArea.H-boxsize+1, cand.SearchArea.W-boxsize+1
		prepared := match.Prepare(pixels, boxsize, nil, sh, sw)

		regionBuf, rh, rw := extractRect(refimg, cand.SearchArea)

		surface := m.Surface(prepared, regionBuf, rh, rw, 1)
		_, _, minX, minY, _, _ := match.MinMaxLoc(surface, sh, sw)

		if minX < 1 || minY < 1 || minX >= sw-1 || minY >= sh-1 {
			rejected++
			continue // not strictly interior: quadfit needs a 3x3 neighbourhood
		}

		var nb [9]float64
		idx := 0
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				nb[idx] = float64(surface[(minY+dy)*sw+(minX+dx)])
				idx++
			}
		}
		fit := quadfit.New(nb)
		smallerEig := fit.SmallerEig()

		if smallerEig < float32Epsilon {
			rejected++
			continue
		}
		threshold := float32(eigMult * smallerEig)
		count := 0
		for _, v := range surface {
			if v < threshold {
				count++
			}
		}
		if count != 1 {
			rejected++
			continue
		}

		accepted = append(accepted, &Patch{
			Position: Position{X: cand.X, Y: cand.Y, SearchArea: cand.SearchArea},
			Box:      boxsize,
			Prepared: prepared,
		})
	}

	return &Collection{Patches: accepted, CreationArea: creationArea}, rejected
}

// Rehydrate rebuilds a Collection's pixel data and cooked templates from
// refimg for a set of positions already known to have passed the quality
// filter (e.g. loaded back from a state file) -- it does not re-run the
// filter, trusting the persisted acceptance decision.
func Rehydrate(refimg *imgio.Plane, positions []Position, boxsize int, creationArea geom.Rect) *Collection {
	patches := make([]*Patch, len(positions))
	for i, pos := range positions {
		pixels := extract(refimg, pos.X, pos.Y, boxsize)
		sh, sw := pos.SearchArea.H-boxsize+1, pos.SearchArea.W-boxsize+1
		patches[i] = &Patch{
			Position: pos,
			Box:      boxsize,
			Prepared: match.Prepare(pixels, boxsize, nil, sh, sw),
		}
	}
	return &Collection{Patches: patches, CreationArea: creationArea}
}

// extract copies a box x box window of refimg's gray plane starting at
// (x,y), zero-padding outside refimg's bounds.
func extract(refimg *imgio.Plane, x, y, box int) []float32 {
	out := make([]float32, box*box)
	for dy := 0; dy < box; dy++ {
		sy := y + dy
		if sy < 0 || sy >= refimg.Rows {
			continue
		}
		for dx := 0; dx < box; dx++ {
			sx := x + dx
			if sx < 0 || sx >= refimg.Cols {
				continue
			}
			out[dy*box+dx] = refimg.At(sx, sy, 0)
		}
	}
	return out
}

// extractRect copies the rectangle r out of refimg's gray plane, zero
// padding outside bounds, and reports its shape.
func extractRect(refimg *imgio.Plane, r geom.Rect) (data []float32, rh, rw int) {
	data = make([]float32, r.H*r.W)
	for dy := 0; dy < r.H; dy++ {
		sy := r.Y + dy
		if sy < 0 || sy >= refimg.Rows {
			continue
		}
		for dx := 0; dx < r.W; dx++ {
			sx := r.X + dx
			if sx < 0 || sx >= refimg.Cols {
				continue
			}
			data[dy*r.W+dx] = refimg.At(sx, sy, 0)
		}
	}
	return data, r.H, r.W
}
