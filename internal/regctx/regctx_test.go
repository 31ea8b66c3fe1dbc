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

package regctx

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/astroluck/luckystack/internal/geom"
	"github.com/astroluck/luckystack/internal/imgio"
	"github.com/astroluck/luckystack/internal/patch"
)

func TestClearRefimgEtcCascades(t *testing.T) {
	c := New()
	c.SetImagesize(geom.Size{W: 100, H: 100})
	c.SetBoxsize(16)
	c.SetRefimg(imgio.NewPlane(100, 100, 1))
	c.SetPatches(&patch.Collection{})
	c.SetShifts([][]Shift{{}})

	c.ClearRefimgEtc()

	if c.RefimgValid() || c.BoxsizeValid() || c.PatchesValid() || c.ShiftsValid() {
		t.Fatal("expected refimg, boxsize, patches and shifts all invalid after ClearRefimgEtc")
	}
	if !c.ImagesizeValid() {
		t.Fatal("imagesize should not be invalidated by ClearRefimgEtc")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	refimg := imgio.NewPlane(120, 120, 1)
	for i := range refimg.Data {
		refimg.Data[i] = float32(i % 7)
	}
	boxsize, maxmove := 60, 20
	positions := patch.Place(geom.Rect{X: 0, Y: 0, W: 120, H: 120}, boxsize, maxmove)
	coll, _ := patch.Filter(refimg, positions, boxsize, geom.Rect{X: 0, Y: 0, W: 120, H: 120})

	c := New()
	c.SetImagesize(geom.Size{W: 120, H: 120})
	c.SetBoxsize(boxsize)
	c.SetRefimg(refimg)
	c.SetPatches(coll)
	c.SetImages([]InputImage{{FileName: "a.tif", GlobalShift: geom.Point{X: 1, Y: -2}, GlobalMultiplier: 1.1}})

	path := filepath.Join(t.TempDir(), "state.yml")
	if err := Save(c, path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !loaded.RefimgValid() || loaded.Refimg.Rows != refimg.Rows || loaded.Refimg.Cols != refimg.Cols {
		t.Fatal("refimg did not round-trip")
	}
	if !loaded.PatchesValid() || len(loaded.Patches.Patches) != len(coll.Patches) {
		t.Fatalf("patches did not round-trip: got %d want %d", len(loaded.Patches.Patches), len(coll.Patches))
	}
	if err := loaded.Validate(); err != nil {
		t.Fatalf("loaded context violates invariants: %v", err)
	}

	_ = os.Remove(path)
}

func TestSaveRejectsNonYmlExtension(t *testing.T) {
	c := New()
	if err := Save(c, filepath.Join(t.TempDir(), "state.json")); err == nil {
		t.Fatal("expected an error for a non-.yml path")
	}
}
