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

// Package imgio is the pipeline's external collaborator for image file I/O:
// decoders yield linear-light float32 planes, writers re-encode to 16-bit
// files with the inverse sRGB transfer curve. It is deliberately the least
// algorithmically interesting package in the module -- the registration and
// warping core (xcorr, match, quadfit, patches, prereg, rbf) never touches
// a file directly, only the Plane type defined here.
package imgio

import (
	"fmt"

	"github.com/astroluck/luckystack/internal/geom"
)

// Plane is a dense, row-major 2-D array of float32 pixels, 1 (gray) or 3
// (BGR-order) channels, matching spec Image data model of section 3.
type Plane struct {
	Rows, Cols int
	Channels   int
	Data       []float32 // len == Rows*Cols*Channels, channel-interleaved
}

// NewPlane allocates a zeroed plane of the given shape.
func NewPlane(rows, cols, channels int) *Plane {
	return &Plane{Rows: rows, Cols: cols, Channels: channels, Data: make([]float32, rows*cols*channels)}
}

func (p *Plane) Size() geom.Size { return geom.Size{W: p.Cols, H: p.Rows} }
func (p *Plane) Rect() geom.Rect { return geom.RectFromSize(p.Size()) }

// At returns the value of channel k at pixel (x,y).
func (p *Plane) At(x, y, k int) float32 {
	return p.Data[(y*p.Cols+x)*p.Channels+k]
}

// Set assigns the value of channel k at pixel (x,y).
func (p *Plane) Set(x, y, k int, v float32) {
	p.Data[(y*p.Cols+x)*p.Channels+k] = v
}

// Channel extracts a single channel as a standalone gray Plane.
func (p *Plane) Channel(k int) *Plane {
	out := NewPlane(p.Rows, p.Cols, 1)
	for i := 0; i < p.Rows*p.Cols; i++ {
		out.Data[i] = p.Data[i*p.Channels+k]
	}
	return out
}

// ToGray converts a (possibly multi-channel) plane to single-channel gray,
// matching the cvtColor(BGR->GRAY) contract referenced by the pipeline
// driver's fused inner loop. Uses the standard luma weights.
func (p *Plane) ToGray() *Plane {
	if p.Channels == 1 {
		out := NewPlane(p.Rows, p.Cols, 1)
		copy(out.Data, p.Data)
		return out
	}
	out := NewPlane(p.Rows, p.Cols, 1)
	for i := 0; i < p.Rows*p.Cols; i++ {
		b := p.Data[i*p.Channels+0]
		g := p.Data[i*p.Channels+1]
		r := p.Data[i*p.Channels+2]
		out.Data[i] = 0.114*b + 0.587*g + 0.299*r
	}
	return out
}

// Sub extracts the rectangle r from p into a newly allocated plane, zero
// padding any part of r that falls outside p's bounds. Reports the part of
// r that was actually backed by valid pixels (in r's own coordinate frame).
func (p *Plane) Sub(r geom.Rect) (out *Plane, valid geom.Rect) {
	out = NewPlane(r.H, r.W, p.Channels)
	src := p.Rect().Intersect(r)
	if src.Empty() {
		return out, geom.Rect{X: 0, Y: 0, W: 0, H: 0}
	}
	for y := 0; y < src.H; y++ {
		srcY := src.Y + y
		dstY := srcY - r.Y
		for x := 0; x < src.W; x++ {
			srcX := src.X + x
			dstX := srcX - r.X
			for k := 0; k < p.Channels; k++ {
				out.Set(dstX, dstY, k, p.At(srcX, srcY, k))
			}
		}
	}
	valid = geom.Rect{X: src.X - r.X, Y: src.Y - r.Y, W: src.W, H: src.H}
	return out, valid
}

func (p *Plane) String() string {
	return fmt.Sprintf("%dx%dx%d", p.Cols, p.Rows, p.Channels)
}
