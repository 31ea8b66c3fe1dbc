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

package imgio

import (
	"bufio"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"
)

// WriteFile encodes a linear-light plane to a 16-bit-per-channel image
// file at path, picking the codec by extension (.png, .tif/.tiff). The
// plane is min-max normalized and the inverse sRGB transfer curve is
// re-applied before quantization, per the pixel-plane writer contract.
func WriteFile(p *Plane, path string) error {
	lo, hi := minMax(p)
	if hi <= lo {
		hi = lo + 1
	}
	srgb := ToSRGB(normalize(p, lo, hi))

	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return writePNG16(srgb, path)
	case ".tif", ".tiff":
		return WriteTIFF16ToFile(srgb, path, 0, 1, 1)
	default:
		return fmt.Errorf("unsupported output format %q (want .png, .tif or .tiff)", filepath.Ext(path))
	}
}

func minMax(p *Plane) (lo, hi float32) {
	lo, hi = float32(math.Inf(1)), float32(math.Inf(-1))
	for _, v := range p.Data {
		if math.IsNaN(float64(v)) {
			continue
		}
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if math.IsInf(float64(lo), 1) {
		lo, hi = 0, 1
	}
	return lo, hi
}

func normalize(p *Plane, lo, hi float32) *Plane {
	out := NewPlane(p.Rows, p.Cols, p.Channels)
	scale := 1 / (hi - lo)
	for i, v := range p.Data {
		v = (v - lo) * scale
		if v < 0 || math.IsNaN(float64(v)) {
			v = 0
		}
		if v > 1 {
			v = 1
		}
		out.Data[i] = v
	}
	return out
}

func writePNG16(p *Plane, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	w := bufio.NewWriter(file)
	defer w.Flush()

	if p.Channels == 1 {
		img := image.NewGray16(image.Rect(0, 0, p.Cols, p.Rows))
		for y := 0; y < p.Rows; y++ {
			for x := 0; x < p.Cols; x++ {
				img.SetGray16(x, y, color.Gray16{Y: uint16(p.At(x, y, 0)*65535 + 0.5)})
			}
		}
		return png.Encode(w, img)
	}

	img := image.NewRGBA64(image.Rect(0, 0, p.Cols, p.Rows))
	for y := 0; y < p.Rows; y++ {
		for x := 0; x < p.Cols; x++ {
			b := uint16(p.At(x, y, 0)*65535 + 0.5)
			g := uint16(p.At(x, y, 1)*65535 + 0.5)
			r := uint16(p.At(x, y, 2)*65535 + 0.5)
			img.SetRGBA64(x, y, color.RGBA64{R: r, G: g, B: b, A: 65535})
		}
	}
	return png.Encode(w, img)
}
