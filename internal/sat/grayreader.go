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

package sat

import "github.com/astroluck/luckystack/internal/imgio"

// GrayReader holds reusable scratch buffers for colour-to-gray conversion
// of decoded frames inside the driver's fused inner loop (C8 step 1). Not
// thread-safe; the driver constructs one per worker, matching the
// not-thread-safe contract of the matcher (C2) and global registrator (C5).
type GrayReader struct {
	gray *imgio.Plane
}

// NewGrayReader constructs a worker-local reader with no preallocated scratch.
func NewGrayReader() *GrayReader {
	return &GrayReader{}
}

// Gray converts plane p to single-channel gray, reusing the reader's scratch
// buffer across calls when shape matches, falling back to a fresh allocation
// when the frame size changes (e.g. the last frame in an irregular batch).
func (g *GrayReader) Gray(p *imgio.Plane) *imgio.Plane {
	if g.gray == nil || g.gray.Rows != p.Rows || g.gray.Cols != p.Cols {
		g.gray = imgio.NewPlane(p.Rows, p.Cols, 1)
	}
	if p.Channels == 1 {
		copy(g.gray.Data, p.Data)
		return g.gray
	}
	for i := 0; i < p.Rows*p.Cols; i++ {
		b := p.Data[i*p.Channels+0]
		gr := p.Data[i*p.Channels+1]
		r := p.Data[i*p.Channels+2]
		g.gray.Data[i] = 0.114*b + 0.587*gr + 0.299*r
	}
	return g.gray
}
