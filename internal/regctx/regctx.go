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

// Package regctx implements the registration context and state store (C7):
// a per-field-validated bundle of pipeline intermediates that
// the driver owns and the parallel workers borrow from.
package regctx

import (
	"fmt"

	"github.com/astroluck/luckystack/internal/geom"
	"github.com/astroluck/luckystack/internal/imgio"
	"github.com/astroluck/luckystack/internal/patch"
)

// InputImage is a frame's identity plus its global pre-registration result.
type InputImage struct {
	FileName         string
	GlobalShift      geom.Point
	GlobalMultiplier float32
}

// Shift is one patch's estimated (sub-pixel) displacement for one frame.
type Shift struct {
	X, Y float64
}

// Context is the bundle of optionally-present pipeline fields, each
// independently valid or invalid, per spec 3's RegistrationContext.
// Ownership is single-writer: the driver mutates it between stages; the
// parallel workers only ever borrow its immutable members (patches,
// cooked templates, refimg) for the duration of a frame task.
type Context struct {
	imagesizeValid bool
	Imagesize      geom.Size

	boxsizeValid bool
	Boxsize      int

	imagesValid bool
	Images      []InputImage

	commonRectangleValid bool
	CommonRectangle      geom.Rect

	refimgValid bool
	Refimg      *imgio.Plane

	patchesValid bool
	Patches      *patch.Collection

	shiftsValid bool
	// Shifts[i] holds one shift vector per patch for frame i.
	Shifts [][]Shift
}

func New() *Context { return &Context{} }

func (c *Context) ImagesizeValid() bool       { return c.imagesizeValid }
func (c *Context) BoxsizeValid() bool         { return c.boxsizeValid }
func (c *Context) ImagesValid() bool          { return c.imagesValid }
func (c *Context) CommonRectangleValid() bool { return c.commonRectangleValid }
func (c *Context) RefimgValid() bool          { return c.refimgValid }
func (c *Context) PatchesValid() bool         { return c.patchesValid }
func (c *Context) ShiftsValid() bool          { return c.shiftsValid }

func (c *Context) SetImagesize(s geom.Size)      { c.Imagesize, c.imagesizeValid = s, true }
func (c *Context) SetBoxsize(b int)              { c.Boxsize, c.boxsizeValid = b, true }
func (c *Context) SetImages(images []InputImage) { c.Images, c.imagesValid = images, true }
func (c *Context) SetCommonRectangle(r geom.Rect) {
	c.CommonRectangle, c.commonRectangleValid = r, true
}
func (c *Context) SetRefimg(p *imgio.Plane)          { c.Refimg, c.refimgValid = p, true }
func (c *Context) SetPatches(coll *patch.Collection) { c.Patches, c.patchesValid = coll, true }
func (c *Context) SetShifts(shifts [][]Shift)        { c.Shifts, c.shiftsValid = shifts, true }

// ClearShiftsEtc invalidates shifts, per spec 4.7.
func (c *Context) ClearShiftsEtc() {
	c.shiftsValid = false
	c.Shifts = nil
}

// ClearPatchesEtc invalidates boxsize and patches, then cascades into
// ClearShiftsEtc, per spec 4.7.
func (c *Context) ClearPatchesEtc() {
	c.boxsizeValid = false
	c.patchesValid = false
	c.Patches = nil
	c.ClearShiftsEtc()
}

// ClearRefimgEtc invalidates refimg, then cascades into ClearPatchesEtc,
// per spec 4.7.
func (c *Context) ClearRefimgEtc() {
	c.refimgValid = false
	c.Refimg = nil
	c.ClearPatchesEtc()
}

// Validate checks the §3 invariants that can be checked without knowledge
// of the stage that is about to run; returns the first violated invariant
// as an error, or nil if the context is internally consistent.
func (c *Context) Validate() error {
	if c.patchesValid {
		if !c.refimgValid {
			return fmt.Errorf("patches valid but refimg invalid")
		}
		if !c.boxsizeValid {
			return fmt.Errorf("patches valid but boxsize invalid")
		}
		if len(c.Patches.Patches) > 0 {
			first := c.Patches.Patches[0]
			if !c.Refimg.Rect().ContainsRect(first.SearchArea) {
				return fmt.Errorf("first patch's searchArea does not fit inside refimg")
			}
		}
	}
	if c.shiftsValid {
		if !c.patchesValid {
			return fmt.Errorf("shifts valid but patches invalid")
		}
		n := len(c.Patches.Patches)
		for i, sh := range c.Shifts {
			if len(sh) != n {
				return fmt.Errorf("shift matrix %d has %d rows, want %d", i, len(sh), n)
			}
		}
	}
	if c.imagesizeValid && c.commonRectangleValid {
		full := geom.Rect{X: 0, Y: 0, W: c.Imagesize.W, H: c.Imagesize.H}
		if !full.ContainsRect(c.CommonRectangle) {
			return fmt.Errorf("commonRectangle is not contained in imagesize")
		}
	}
	return nil
}
