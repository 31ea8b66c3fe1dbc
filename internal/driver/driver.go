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
	"fmt"
	"runtime"
	"sync"

	"github.com/astroluck/luckystack/internal/bufpool"
	"github.com/astroluck/luckystack/internal/geom"
	"github.com/astroluck/luckystack/internal/imgio"
	"github.com/astroluck/luckystack/internal/nllog"
	"github.com/astroluck/luckystack/internal/patch"
	"github.com/astroluck/luckystack/internal/prereg"
	"github.com/astroluck/luckystack/internal/regctx"
	"github.com/astroluck/luckystack/internal/sat"
)

// Driver owns the registration context and sequences the pipeline stages.
// Single-writer: only Run mutates the context; the parallel workers borrow
// its immutable members for the duration of a frame task.
type Driver struct {
	params Params
	ctx    *regctx.Context
	prog   *Progress
}

func New(params Params) *Driver {
	if params.Threads <= 0 {
		params.Threads = runtime.NumCPU()
	}
	return &Driver{params: params, ctx: regctx.New(), prog: &Progress{}}
}

func (d *Driver) Context() *regctx.Context { return d.ctx }
func (d *Driver) Progress() *Progress      { return d.prog }

// Run executes the requested stages in order, recomputing any needed field
// that is invalid, and persists the context afterwards if requested.
func (d *Driver) Run() error {
	p := d.params
	if err := p.Validate(); err != nil {
		return err
	}

	if p.ReadState != "" {
		ctx, err := regctx.Load(p.ReadState)
		if err != nil {
			return fmt.Errorf("reading state %s: %w", p.ReadState, err)
		}
		if err := ctx.Validate(); err != nil {
			nllog.Printf("state %s inconsistent (%s), starting from scratch\n", p.ReadState, err)
			ctx = regctx.New()
		}
		d.ctx = ctx
	}
	d.reconcile()

	n := p.needsClosure()

	if n.prereg && (p.PreregImg != "" || p.PreregOnFirst || p.PreregOnMiddle || !d.ctx.ImagesValid()) {
		if err := d.runPrereg(); err != nil {
			return err
		}
		bufpool.Clear()
	}
	if n.refimg && (p.DoRefimg || !d.ctx.RefimgValid()) {
		if err := d.runRefimg(); err != nil {
			return err
		}
		bufpool.Clear()
	}
	if n.patches && (p.DoPatches || !d.ctx.PatchesValid()) {
		if err := d.runPatches(); err != nil {
			return err
		}
	}
	if n.lucky || n.stack {
		doLucky := n.lucky && (p.DoDedistort || !d.ctx.ShiftsValid())
		if err := d.runLucky(doLucky, n.stack); err != nil {
			return err
		}
		bufpool.Clear()
	}

	if p.SaveState != "" {
		if err := regctx.Save(d.ctx, p.SaveState); err != nil {
			return fmt.Errorf("saving state %s: %w", p.SaveState, err)
		}
		nllog.Printf("saved state to %s\n", p.SaveState)
	}
	return nil
}

// reconcile detects conflicts between the command line and a loaded state
// file, invalidating the affected fields with one diagnostic each so the
// stages recompute. This is the expected path of spec's data-inconsistency
// class, not an error.
func (d *Driver) reconcile() {
	p, ctx := d.params, d.ctx

	if len(p.Files) > 0 && ctx.ImagesValid() {
		same := len(p.Files) == len(ctx.Images)
		if same {
			for i, f := range p.Files {
				if ctx.Images[i].FileName != f {
					same = false
					break
				}
			}
		}
		if !same {
			nllog.Printf("input file list differs from state, recomputing global registration\n")
			// every field of the context derives from the frame list
			d.ctx = regctx.New()
			ctx = d.ctx
		}
	}

	if ctx.BoxsizeValid() && p.Boxsize > 0 && ctx.Boxsize != p.Boxsize {
		nllog.Printf("boxsize %d conflicts with state boxsize %d, recomputing patches\n", p.Boxsize, ctx.Boxsize)
		ctx.ClearPatchesEtc()
	}

	if ctx.RefimgValid() && ctx.ImagesizeValid() {
		if ctx.Refimg.Cols != ctx.Imagesize.W || ctx.Refimg.Rows != ctx.Imagesize.H {
			nllog.Printf("reference image %s disagrees with image size %s, recomputing\n", ctx.Refimg, ctx.Imagesize)
			ctx.ClearRefimgEtc()
		}
	}

	if ctx.PatchesValid() {
		if area := d.patchArea(); !ctx.Patches.CreationArea.Eq(area) {
			nllog.Printf("patches created in %s but current creation area is %s, recomputing\n", ctx.Patches.CreationArea, area)
			ctx.ClearPatchesEtc()
		}
	}
}

// patchArea is the region of the reference image within which patch
// top-lefts are generated: the crop rectangle when --crop is active, else
// the full reference extent.
func (d *Driver) patchArea() geom.Rect {
	if d.params.Crop && d.ctx.CommonRectangleValid() {
		return d.ctx.CommonRectangle
	}
	if d.ctx.RefimgValid() {
		return d.ctx.Refimg.Rect()
	}
	if d.ctx.ImagesizeValid() {
		return geom.RectFromSize(d.ctx.Imagesize)
	}
	return geom.Rect{}
}

// runPrereg finds each frame's global integer translation and intensity
// multiplier against the selected reference frame, then derives the
// rectangle common to all globally-shifted frames.
func (d *Driver) runPrereg() error {
	p := d.params
	files := p.Files
	if len(files) == 0 && d.ctx.ImagesValid() {
		files = make([]string, len(d.ctx.Images))
		for i, im := range d.ctx.Images {
			files[i] = im.FileName
		}
	}
	if len(files) == 0 {
		return fmt.Errorf("pre-registration requested but no input frames given")
	}
	d.prog.StartStage("prereg", len(files))

	refPath := p.PreregImg
	switch {
	case refPath != "":
	case p.PreregOnFirst:
		refPath = files[0]
	default:
		refPath = files[len(files)/2]
	}
	nllog.Printf("pre-registering %d frames against %s\n", len(files), refPath)

	refPlane, err := imgio.DecodeFile(refPath)
	if err != nil {
		return err
	}
	refGray := refPlane.ToGray()
	rH, rW := refGray.Rows, refGray.Cols

	maxmove := p.PreregMaxmove
	if maxmove <= 0 {
		if rW < rH {
			maxmove = rW / 2
		} else {
			maxmove = rH / 2
		}
	}

	images := make([]regctx.InputImage, len(files))
	errs := make([]error, len(files))

	T := d.workers(len(files), rH, rW)
	queue := make(chan int)
	var wg sync.WaitGroup
	for t := 0; t < T; t++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reg := prereg.New(refGray.Data, rH, rW, maxmove)
			gr := sat.NewGrayReader()
			for i := range queue {
				plane, err := imgio.DecodeFile(files[i])
				if err != nil {
					errs[i] = err
					continue
				}
				gray := gr.Gray(plane)
				if gray.Rows != rH || gray.Cols != rW {
					errs[i] = fmt.Errorf("%s is %s, reference is %s", files[i], gray, refGray)
					continue
				}
				shift, mult := reg.FindShift(gray.Data)
				images[i] = regctx.InputImage{FileName: files[i], GlobalShift: shift, GlobalMultiplier: mult}
				nllog.Printf("%d: global shift %s multiplier %.4f\n", i, shift, mult)
				d.prog.FrameDone()
			}
		}()
	}
	for i := range files {
		queue <- i
	}
	close(queue)
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}

	d.ctx.SetImagesize(geom.Size{W: rW, H: rH})
	d.ctx.SetImages(images)
	d.ctx.ClearRefimgEtc()

	common := geom.RectFromSize(geom.Size{W: rW, H: rH})
	for _, im := range images {
		common = common.Intersect(geom.RectFromSize(geom.Size{W: rW, H: rH}).Translate(im.GlobalShift.Neg()))
	}
	if common.Empty() {
		nllog.Printf("globally shifted frames share no common rectangle, crop unavailable\n")
		if p.Crop {
			return fmt.Errorf("--crop requested but the common rectangle is empty")
		}
	} else {
		d.ctx.SetCommonRectangle(common)
		nllog.Printf("common rectangle %s\n", common)
	}
	return nil
}

// runRefimg averages the globally-shifted, intensity-normalized frames
// into the gray reference image on which patches are placed.
func (d *Driver) runRefimg() error {
	ctx := d.ctx
	if !ctx.ImagesValid() || !ctx.ImagesizeValid() {
		return fmt.Errorf("reference stage needs globally registered frames")
	}
	imgs := ctx.Images
	W, H := ctx.Imagesize.W, ctx.Imagesize.H
	full := geom.RectFromSize(ctx.Imagesize)
	d.prog.StartStage("refimg", len(imgs))
	nllog.Printf("averaging %d frames into reference\n", len(imgs))

	T := d.workers(len(imgs), H, W)
	sums := make([]*imgio.Plane, T)
	counts := make([]*imgio.Plane, T)
	errs := make([]error, len(imgs))

	queue := make(chan int)
	var wg sync.WaitGroup
	for t := 0; t < T; t++ {
		wg.Add(1)
		go func(t int) {
			defer wg.Done()
			sum := imgio.NewPlane(H, W, 1)
			count := imgio.NewPlane(H, W, 1)
			gr := sat.NewGrayReader()
			for i := range queue {
				plane, err := imgio.DecodeFile(imgs[i].FileName)
				if err != nil {
					errs[i] = err
					continue
				}
				gray := gr.Gray(plane)
				g := imgs[i].GlobalShift
				mult := imgs[i].GlobalMultiplier
				if mult <= 0 {
					mult = 1
				}
				inv := 1 / mult
				src := gray.Rect().Translate(g.Neg()).Intersect(full)
				for y := src.Y; y < src.Bottom(); y++ {
					for x := src.X; x < src.Right(); x++ {
						idx := y*W + x
						sum.Data[idx] += gray.At(x+g.X, y+g.Y, 0) * inv
						count.Data[idx]++
					}
				}
				d.prog.FrameDone()
			}
			sums[t], counts[t] = sum, count
		}(t)
	}
	for i := range imgs {
		queue <- i
	}
	close(queue)
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}

	// reduce thread-local sums in thread-index order for reproducibility
	refimg := imgio.NewPlane(H, W, 1)
	count := imgio.NewPlane(H, W, 1)
	for t := 0; t < T; t++ {
		if sums[t] == nil {
			continue
		}
		for i := range refimg.Data {
			refimg.Data[i] += sums[t].Data[i]
			count.Data[i] += counts[t].Data[i]
		}
	}
	for i := range refimg.Data {
		if count.Data[i] > 0 {
			refimg.Data[i] /= count.Data[i]
		}
	}

	ctx.SetRefimg(refimg)
	ctx.ClearPatchesEtc()
	return nil
}

// runPatches lays the hexagonal candidate grid on the reference image and
// keeps the candidates whose self-match surface passes the quality filter.
func (d *Driver) runPatches() error {
	ctx := d.ctx
	if !ctx.RefimgValid() {
		return fmt.Errorf("patch stage needs a valid reference image")
	}
	boxsize := d.params.Boxsize
	if ctx.BoxsizeValid() {
		boxsize = ctx.Boxsize
	}
	area := d.patchArea()
	d.prog.StartStage("patches", 0)

	candidates := patch.Place(area, boxsize, d.params.Maxmove)
	coll, rejected := patch.Filter(ctx.Refimg, candidates, boxsize, area)
	nllog.Printf("placed %d candidates in %s, accepted %d, rejected %d\n",
		len(candidates), area, len(coll.Patches), rejected)
	d.prog.SetPatchCounts(len(coll.Patches), rejected)

	ctx.SetBoxsize(boxsize)
	ctx.SetPatches(coll)
	ctx.ClearShiftsEtc()
	return nil
}

// workers clamps the configured thread count to the frame count and to
// what physical memory can sustain, assuming each in-flight frame needs
// its decode, gray conversion, warp output and accumulator planes live
// at once.
func (d *Driver) workers(frames, rows, cols int) int {
	T := d.params.Threads
	if T > frames && frames > 0 {
		T = frames
	}
	if T < 1 {
		T = 1
	}
	s := d.params.Super
	if s < 1 {
		s = 1
	}
	perWorker := uint64(rows) * uint64(cols) * 4 * uint64(8+8*s*s)
	if budget := totalMemoryBytes() * 7 / 10; perWorker > 0 && budget/perWorker < uint64(T) {
		fit := int(budget / perWorker)
		if fit < 1 {
			fit = 1
		}
		nllog.Printf("limiting workers from %d to %d to fit in memory\n", T, fit)
		T = fit
	}
	return T
}
