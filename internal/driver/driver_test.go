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

package driver

import (
	"image"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestNeedsClosure(t *testing.T) {
	cases := []struct {
		name string
		p    Params
		want needs
	}{
		{
			name: "stack pulls in the whole chain",
			p:    Params{DoStack: true},
			want: needs{prereg: true, refimg: true, patches: true, lucky: true, stack: true},
		},
		{
			name: "only-refimg stacks without lucky shifts",
			p:    Params{OnlyRefimg: true},
			want: needs{prereg: true, refimg: true, patches: false, lucky: false, stack: true},
		},
		{
			name: "patches need the reference",
			p:    Params{DoPatches: true},
			want: needs{prereg: true, refimg: true, patches: true},
		},
		{
			name: "dedistort needs patches but not stacking",
			p:    Params{DoDedistort: true},
			want: needs{prereg: true, refimg: true, patches: true, lucky: true},
		},
	}
	for _, c := range cases {
		if got := c.p.needsClosure(); got != c.want {
			t.Errorf("%s: needsClosure() = %+v, want %+v", c.name, got, c.want)
		}
	}
}

func TestParamsValidateRejectsConflicts(t *testing.T) {
	cases := []struct {
		name string
		p    Params
	}{
		{"two prereg selectors", Params{Files: []string{"a.png"}, Output: "o.png", PreregOnFirst: true, PreregOnMiddle: true}},
		{"only-refimg with stack", Params{Files: []string{"a.png"}, Output: "o.png", OnlyRefimg: true, DoStack: true}},
		{"no output sink", Params{Files: []string{"a.png"}}},
		{"no inputs", Params{Output: "o.png"}},
	}
	for _, c := range cases {
		if err := c.p.Validate(); err == nil {
			t.Errorf("%s: expected a configuration error", c.name)
		}
	}
}

// writeStarField writes a synthetic star field to a PNG: point sources on
// a 32-pixel lattice with per-site intensities, black elsewhere. The
// lattice period exceeds the largest shift a search window allows, so a patch holding a
// single interior source has a unique, deeply-peaked self-match minimum.
func writeStarField(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	i := 0
	for y := 8; y < h; y += 32 {
		for x := 8; x < w; x += 32 {
			img.Pix[y*img.Stride+x] = uint8(120 + (i*37)%120)
			i++
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

// TestPipelineEndToEndIdenticalFrames runs the full pipeline on four
// identical star-field frames: global shifts must be zero, every lucky
// shift must stay within the sub-pixel guard, and stacking on top of a
// reloaded state file must reproduce the single-run output byte for byte
// at a fixed thread count.
func TestPipelineEndToEndIdenticalFrames(t *testing.T) {
	dir := t.TempDir()
	files := make([]string, 4)
	for i := range files {
		files[i] = filepath.Join(dir, "frame"+string(rune('0'+i))+".png")
		writeStarField(t, files[i], 96, 96)
	}
	out1 := filepath.Join(dir, "out1.png")
	out2 := filepath.Join(dir, "out2.png")
	state := filepath.Join(dir, "state.yml")

	p1 := Params{
		Files:         files,
		PreregOnFirst: true,
		DoRefimg:      true,
		DoPatches:     true,
		DoDedistort:   true,
		DoStack:       true,
		Boxsize:       24,
		Maxmove:       6,
		PreregMaxmove: 6,
		Super:         1,
		SaveState:     state,
		Output:        out1,
		Threads:       1,
	}
	d1 := New(p1)
	if err := d1.Run(); err != nil {
		t.Fatalf("first run: %v", err)
	}

	ctx := d1.Context()
	if !ctx.ImagesValid() || len(ctx.Images) != 4 {
		t.Fatalf("expected 4 registered frames")
	}
	for i, im := range ctx.Images {
		if im.GlobalShift.X != 0 || im.GlobalShift.Y != 0 {
			t.Errorf("frame %d: global shift %v, want (0,0)", i, im.GlobalShift)
		}
		if math.Abs(float64(im.GlobalMultiplier)-1) > 1e-3 {
			t.Errorf("frame %d: multiplier %v, want ~1", i, im.GlobalMultiplier)
		}
	}
	if !ctx.CommonRectangleValid() || ctx.CommonRectangle.W != 96 || ctx.CommonRectangle.H != 96 {
		t.Errorf("common rectangle %v, want the full 96x96 extent", ctx.CommonRectangle)
	}
	if !ctx.PatchesValid() || len(ctx.Patches.Patches) == 0 {
		t.Fatal("expected at least one accepted patch on the star field")
	}
	if !ctx.ShiftsValid() || len(ctx.Shifts) != 4 {
		t.Fatal("expected one shift row per frame")
	}
	for i, frame := range ctx.Shifts {
		if len(frame) != len(ctx.Patches.Patches) {
			t.Fatalf("frame %d: %d shifts, want %d", i, len(frame), len(ctx.Patches.Patches))
		}
		for j, s := range frame {
			if math.Abs(s.X) > 0.5 || math.Abs(s.Y) > 0.5 {
				t.Errorf("frame %d patch %d: shift (%v,%v) exceeds the 0.5px guard on identical frames", i, j, s.X, s.Y)
			}
		}
	}

	// resume from the saved state and run only the stacking stage
	p2 := Params{
		Files:     files,
		DoStack:   true,
		Boxsize:   24,
		Maxmove:   6,
		Super:     1,
		ReadState: state,
		Output:    out2,
		Threads:   1,
	}
	d2 := New(p2)
	if err := d2.Run(); err != nil {
		t.Fatalf("resumed run: %v", err)
	}

	b1, err := os.ReadFile(out1)
	if err != nil {
		t.Fatal(err)
	}
	b2, err := os.ReadFile(out2)
	if err != nil {
		t.Fatal(err)
	}
	if len(b1) == 0 || len(b2) == 0 {
		t.Fatal("expected non-empty stacked outputs")
	}
	if string(b1) != string(b2) {
		t.Error("resumed stacking differs from the single end-to-end run")
	}
}

// TestPipelineOnlyRefimg checks the --only-refimg path stacks the
// globally-shifted frames without lucky shifts or patches.
func TestPipelineOnlyRefimg(t *testing.T) {
	dir := t.TempDir()
	files := make([]string, 2)
	for i := range files {
		files[i] = filepath.Join(dir, "frame"+string(rune('0'+i))+".png")
		writeStarField(t, files[i], 64, 64)
	}
	out := filepath.Join(dir, "ref.png")

	p := Params{
		Files:         files,
		PreregOnFirst: true,
		OnlyRefimg:    true,
		Boxsize:       24,
		Maxmove:       6,
		PreregMaxmove: 6,
		Super:         1,
		Output:        out,
		Threads:       1,
	}
	d := New(p)
	if err := d.Run(); err != nil {
		t.Fatalf("only-refimg run: %v", err)
	}
	if d.Context().PatchesValid() {
		t.Error("only-refimg should not compute patches")
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("expected stacked reference at %s: %v", out, err)
	}
}
