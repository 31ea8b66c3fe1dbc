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
	"math"
	"sync"

	"github.com/astroluck/luckystack/internal/geom"
	"github.com/astroluck/luckystack/internal/imgio"
	"github.com/astroluck/luckystack/internal/match"
	"github.com/astroluck/luckystack/internal/nllog"
	"github.com/astroluck/luckystack/internal/patch"
	"github.com/astroluck/luckystack/internal/qsort"
	"github.com/astroluck/luckystack/internal/quadfit"
	"github.com/astroluck/luckystack/internal/rbf"
	"github.com/astroluck/luckystack/internal/regctx"
	"github.com/astroluck/luckystack/internal/sat"
)

// runLucky is the fused inner loop: per frame, it finds the per-patch
// lucky shifts (doLucky) and immediately warp-accumulates the frame onto
// the output lattice (doStack), so each frame is decoded exactly once.
func (d *Driver) runLucky(doLucky, doStack bool) error {
	ctx := d.ctx
	if doLucky && !ctx.PatchesValid() {
		return fmt.Errorf("lucky stage needs a valid patch collection")
	}
	if !ctx.RefimgValid() || !ctx.ImagesValid() {
		return fmt.Errorf("lucky stage needs a reference image and registered frames")
	}
	imgs := ctx.Images
	refimg := ctx.Refimg
	stage := "dedistort"
	if doStack {
		stage = "stack"
	}
	d.prog.StartStage(stage, len(imgs))
	nllog.Printf("processing %d frames (shifts=%v stack=%v)\n", len(imgs), doLucky, doStack)

	// O(1) rectangle sums of refimg^2 feed the per-frame intensity multiplier
	refSq := make([]float32, len(refimg.Data))
	for i, v := range refimg.Data {
		refSq[i] = v * v
	}
	refSqTable := sat.Build(refSq, refimg.Rows, refimg.Cols)

	outputRect := refimg.Rect()
	if d.params.Crop && ctx.CommonRectangleValid() {
		outputRect = ctx.CommonRectangle
	}

	// --only-refimg stacks by global shift alone, even when a state file
	// carries patches and lucky shifts
	var patches []*patch.Patch
	if ctx.PatchesValid() && !d.params.OnlyRefimg {
		patches = ctx.Patches.Patches
	}
	var searchUnion geom.Rect
	if doLucky {
		for _, p := range patches {
			searchUnion = searchUnion.Union(p.SearchArea)
		}
	}

	var basis *rbf.Basis
	if doStack {
		boxsize := ctx.Boxsize
		if !ctx.BoxsizeValid() {
			boxsize = d.params.Boxsize
		}
		centers := make([]geom.Point, len(patches))
		for i, p := range patches {
			centers[i] = geom.Point{X: p.X + p.Box/2, Y: p.Y + p.Box/2}
		}
		basis = rbf.New(centers, float64(boxsize)/4, d.params.Super, outputRect)
	}

	// stacking on top of shifts loaded from a state file reuses them
	// instead of rematching every patch
	var stored [][]regctx.Shift
	if !doLucky && ctx.ShiftsValid() && !d.params.OnlyRefimg {
		stored = ctx.Shifts
	}

	T := d.workers(len(imgs), refimg.Rows, refimg.Cols)
	shifts := make([][]regctx.Shift, len(imgs))
	errs := make([]error, len(imgs))
	sums := make([]*imgio.Plane, T)
	masks := make([]*imgio.Plane, T)

	queue := make(chan int)
	var wg sync.WaitGroup
	for t := 0; t < T; t++ {
		wg.Add(1)
		go func(t int) {
			defer wg.Done()
			w := &luckyWorker{
				driver:      d,
				refSqTable:  refSqTable,
				patches:     patches,
				searchUnion: searchUnion,
				stored:      stored,
				matcher:     match.NewMatcher(),
				grayReader:  sat.NewGrayReader(),
			}
			if doStack {
				w.warper = rbf.NewWarper(basis)
			}
			for i := range queue {
				delta, warped, mask, err := w.frame(i, imgs[i], doLucky, doStack)
				if err != nil {
					errs[i] = err
					continue
				}
				if doLucky {
					shifts[i] = delta
				}
				if doStack {
					if sums[t] == nil {
						sums[t] = imgio.NewPlane(warped.Rows, warped.Cols, warped.Channels)
						masks[t] = imgio.NewPlane(mask.Rows, mask.Cols, 1)
					}
					for k := range warped.Data {
						sums[t].Data[k] += warped.Data[k]
					}
					for k := range mask.Data {
						masks[t].Data[k] += mask.Data[k]
					}
				}
				d.prog.FrameDone()
			}
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

	if doLucky {
		ctx.SetShifts(shifts)
		logShiftSummary(shifts)
	}

	if doStack {
		stacked, err := reduceStack(sums, masks)
		if err != nil {
			return err
		}
		if d.params.Output != "" {
			if err := imgio.WriteFile(stacked, d.params.Output); err != nil {
				return err
			}
			nllog.Printf("wrote %s to %s\n", stacked, d.params.Output)
		}
	}
	return nil
}

// reduceStack combines the thread-local accumulators in thread-index
// order, then divides the pixel sum by the normalization mask with
// channel broadcast. Reduction order is fixed so the float32 output is
// reproducible for a given thread count.
func reduceStack(sums, masks []*imgio.Plane) (*imgio.Plane, error) {
	var sum, mask *imgio.Plane
	for t := 0; t < len(sums); t++ {
		if sums[t] == nil {
			continue
		}
		if sum == nil {
			sum = imgio.NewPlane(sums[t].Rows, sums[t].Cols, sums[t].Channels)
			mask = imgio.NewPlane(masks[t].Rows, masks[t].Cols, 1)
		}
		for k := range sum.Data {
			sum.Data[k] += sums[t].Data[k]
		}
		for k := range mask.Data {
			mask.Data[k] += masks[t].Data[k]
		}
	}
	if sum == nil {
		return nil, fmt.Errorf("no frames contributed to the stack")
	}
	divideChannelsByMask(sum, mask)
	return sum, nil
}

// divideChannelsByMask normalizes every channel of sum by the
// single-channel accumulated mask; pixels nothing contributed to stay
// zero rather than dividing by zero.
func divideChannelsByMask(sum, mask *imgio.Plane) {
	for i := 0; i < sum.Rows*sum.Cols; i++ {
		m := mask.Data[i]
		if m <= 0 {
			for k := 0; k < sum.Channels; k++ {
				sum.Data[i*sum.Channels+k] = 0
			}
			continue
		}
		for k := 0; k < sum.Channels; k++ {
			sum.Data[i*sum.Channels+k] /= m
		}
	}
}

// luckyWorker bundles the per-worker mutable scratch: matcher, gray
// reader and warper are all not thread-safe and never shared.
type luckyWorker struct {
	driver      *Driver
	refSqTable  *sat.Table
	patches     []*patch.Patch
	searchUnion geom.Rect
	stored      [][]regctx.Shift

	matcher    *match.Matcher
	grayReader *sat.GrayReader
	warper     *rbf.Warper

	canvas   []float32 // searchUnion-shaped gray scratch, frame-local
	validity []float32
}

// frame runs one frame through the fused loop: decode, gray, intensity
// multiplier, per-patch shifts, warp. Returns the per-patch shifts and,
// when stacking, the warped frame and normalization mask.
func (w *luckyWorker) frame(i int, im regctx.InputImage, doLucky, doStack bool) (delta []regctx.Shift, warped, mask *imgio.Plane, err error) {
	plane, err := imgio.DecodeFile(im.FileName)
	if err != nil {
		return nil, nil, nil, err
	}
	gray := w.grayReader.Gray(plane)
	refimg := w.driver.ctx.Refimg
	g := im.GlobalShift

	// overlap of the frame with the reference, in reference coordinates
	frameRef := gray.Rect().Translate(g.Neg())
	overlap := refimg.Rect().Intersect(frameRef)
	mu := w.multiplier(gray, g, overlap)

	var shifts2D []geom.Point2D
	if doLucky {
		delta, shifts2D = w.findShifts(gray, g, frameRef, mu)
	} else if w.stored != nil && i < len(w.stored) {
		shifts2D = make([]geom.Point2D, len(w.stored[i]))
		for j, s := range w.stored[i] {
			shifts2D[j] = geom.Point2D{X: s.X, Y: s.Y}
		}
	}

	if doStack {
		warped, mask = w.warper.Warp(plane, shifts2D, g)
	}
	return delta, warped, mask, nil
}

// multiplier estimates the frame's intensity scaling against the
// reference over their overlap: mu = sum(img*ref) / sum(ref^2), the
// denominator in O(1) via the summed-area table of refimg^2.
func (w *luckyWorker) multiplier(gray *imgio.Plane, g geom.Point, overlap geom.Rect) float32 {
	if overlap.Empty() {
		return 1
	}
	refimg := w.driver.ctx.Refimg
	var dot float64
	for y := overlap.Y; y < overlap.Bottom(); y++ {
		for x := overlap.X; x < overlap.Right(); x++ {
			dot += float64(gray.At(x+g.X, y+g.Y, 0)) * float64(refimg.At(x, y, 0))
		}
	}
	refSq := w.refSqTable.Sum(overlap)
	if refSq <= 0 {
		return 1
	}
	return float32(dot / refSq)
}

// findShifts matches every patch whose search area overlaps the frame and
// returns one shift per patch. Patches whose surface minimum lands on the
// 1-pixel border, or whose sub-pixel correction stays above 0.5 after
// eigen-projection, contribute a zero shift; the RBF smooths locally bad
// points rather than dropping the frame.
func (w *luckyWorker) findShifts(gray *imgio.Plane, g geom.Point, frameRef geom.Rect, mu float32) ([]regctx.Shift, []geom.Point2D) {
	patches := w.patches
	delta := make([]regctx.Shift, len(patches))
	shifts2D := make([]geom.Point2D, len(patches))

	union := w.searchUnion
	if union.Empty() || union.Intersect(frameRef).Empty() {
		return delta, shifts2D
	}

	// one zero-padded crop covering every search area, then per-patch
	// windows are plain sub-slices of it
	canvasPlane, valid := gray.Sub(union.Translate(g))
	validRef := valid.Translate(union.TopLeft())

	n := union.W * union.H
	if cap(w.canvas) < n {
		w.canvas = make([]float32, n)
		w.validity = make([]float32, n)
	}
	canvas := canvasPlane.Data

	for pi, p := range patches {
		sa := p.SearchArea
		if sa.Intersect(validRef).Empty() {
			continue
		}
		rh, rw := sa.H, sa.W
		region := w.extractWindow(canvas, union, sa)

		var surface []float32
		if validRef.ContainsRect(sa) {
			surface = w.matcher.Surface(p.Prepared, region, rh, rw, mu)
		} else {
			validity := w.extractValidity(sa, validRef)
			surface = w.matcher.SurfaceMasked(p.Prepared, region, rh, rw, mu, validity)
		}

		sh, sw := rh-p.Box+1, rw-p.Box+1
		_, _, minX, minY, _, _ := match.MinMaxLoc(surface, sh, sw)
		if minX < 1 || minY < 1 || minX >= sw-1 || minY >= sh-1 {
			continue // minimum in the safety zone: zero shift
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
		sx, sy := fit.Minimum()
		if math.Abs(sx) > 0.5 || math.Abs(sy) > 0.5 {
			// project onto the better-determined direction and retry
			v := fit.LargerEigVec()
			dot := sx*v[0] + sy*v[1]
			sx, sy = dot*v[0], dot*v[1]
			if math.Abs(sx) > 0.5 || math.Abs(sy) > 0.5 {
				continue
			}
		}

		msx, msy := p.MatchShift()
		delta[pi] = regctx.Shift{X: float64(minX) + sx - float64(msx), Y: float64(minY) + sy - float64(msy)}
		shifts2D[pi] = geom.Point2D{X: delta[pi].X, Y: delta[pi].Y}
	}
	return delta, shifts2D
}

// extractWindow copies the search-area window out of the union canvas
// into the worker's scratch buffer.
func (w *luckyWorker) extractWindow(canvas []float32, union, sa geom.Rect) []float32 {
	ox, oy := sa.X-union.X, sa.Y-union.Y
	out := w.canvas[:sa.W*sa.H]
	for y := 0; y < sa.H; y++ {
		src := (oy+y)*union.W + ox
		copy(out[y*sa.W:(y+1)*sa.W], canvas[src:src+sa.W])
	}
	return out
}

// extractValidity builds the per-pixel validity mask of a search area
// that is only partially backed by decoded frame pixels.
func (w *luckyWorker) extractValidity(sa, validRef geom.Rect) []float32 {
	out := w.validity[:sa.W*sa.H]
	for i := range out {
		out[i] = 0
	}
	in := validRef.Intersect(sa)
	for y := in.Y; y < in.Bottom(); y++ {
		row := (y - sa.Y) * sa.W
		for x := in.X; x < in.Right(); x++ {
			out[row+x-sa.X] = 1
		}
	}
	return out
}

// logShiftSummary prints the median shift magnitude per axis across all
// frames and patches, the stage-end diagnostic of the dedistort stage.
func logShiftSummary(shifts [][]regctx.Shift) {
	var xs, ys []float32
	for _, frame := range shifts {
		for _, s := range frame {
			xs = append(xs, float32(math.Abs(s.X)))
			ys = append(ys, float32(math.Abs(s.Y)))
		}
	}
	if len(xs) == 0 {
		nllog.Printf("no lucky shifts computed\n")
		return
	}
	nllog.Printf("median |shift| x=%.3f y=%.3f over %d samples\n",
		qsort.SelectMedianFloat32(xs), qsort.SelectMedianFloat32(ys), len(xs))
}
