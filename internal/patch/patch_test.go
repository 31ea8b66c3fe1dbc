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

package patch

import (
	"testing"

	"github.com/astroluck/luckystack/internal/geom"
	"github.com/astroluck/luckystack/internal/imgio"
)

func TestPlaceHexagonalLayout(t *testing.T) {
	area := geom.Rect{X: 0, Y: 0, W: 256, H: 256}
	positions := Place(area, 60, 20)

	for _, p := range positions {
		if p.Y < 21 || p.X < 21 {
			t.Errorf("position %v below the expected safety inset of 21", p)
		}
		if p.Y > 175 || p.X > 175 {
			t.Errorf("position %v exceeds the expected upper bound of 175", p)
		}
	}
	if len(positions) == 0 {
		t.Fatal("expected a non-empty hexagonal grid")
	}
	// the first row must start exactly at the safety inset
	if positions[0].X != 21 || positions[0].Y != 21 {
		t.Errorf("first position = %v, want (21,21)", positions[0])
	}
}

func TestPlaceAreaTooSmallYieldsEmpty(t *testing.T) {
	boxsize, maxmove := 60, 20
	safety := maxmove + 1
	minDim := boxsize + 2*safety
	area := geom.Rect{X: 0, Y: 0, W: minDim - 1, H: minDim - 1}
	if positions := Place(area, boxsize, maxmove); len(positions) != 0 {
		t.Errorf("expected empty grid for undersized area, got %d positions", len(positions))
	}
}

func TestFilterAcceptsSharpFeatureRejectsFlatField(t *testing.T) {
	rows, cols := 120, 120
	refimg := imgio.NewPlane(rows, cols, 1)
	boxsize, maxmove := 60, 20
	safety := maxmove + 1
	candidates := []Position{{
		X: 21, Y: 21,
		SearchArea: geom.Rect{X: 21 - safety, Y: 21 - safety, W: boxsize + 2*safety, H: boxsize + 2*safety},
	}}

	// a flat field: the self-match surface is degenerate (zero curvature
	// everywhere), so the candidate should be rejected.
	_, rejectedFlat := Filter(refimg, candidates, boxsize, geom.Rect{})
	if rejectedFlat != 1 {
		t.Errorf("flat field: rejected %d of 1, want rejected", rejectedFlat)
	}

	// a single sharp impulse at the patch centre gives a clean, unique,
	// deeply-peaked self-match minimum: the candidate should be accepted.
	refimg.Set(21+boxsize/2, 21+boxsize/2, 0, 1)
	coll, rejectedSharp := Filter(refimg, candidates, boxsize, geom.Rect{})
	if rejectedSharp != 0 || len(coll.Patches) != 1 {
		t.Errorf("sharp field: rejected=%d accepted=%d, want 0 rejected, 1 accepted", rejectedSharp, len(coll.Patches))
	}
}
