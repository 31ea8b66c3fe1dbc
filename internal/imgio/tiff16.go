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
	"image"
	"image/color"
	"io"
	"math"
	"os"

	"golang.org/x/image/tiff"
)

// WriteTIFF16ToFile stacks the plane's min..max value range (after applying
// gamma) onto a 16-bit TIFF at path: gray for a 1-channel plane, RGB for a
// 3-channel (BGR-order) plane.
func WriteTIFF16ToFile(p *Plane, path string, min, max, gamma float32) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	defer w.Flush()
	return WriteTIFF16(p, w, min, max, gamma)
}

// WriteTIFF16 encodes p to 16-bit TIFF, scaling [min,max] to [0,1] and
// applying an inverse gamma before quantizing, matching the teacher's
// tiff16 writer contract.
func WriteTIFF16(p *Plane, w io.Writer, min, max, gamma float32) error {
	if p.Channels == 1 {
		return writeMonoTIFF16(p, w, min, max, gamma)
	}
	return writeRGBTIFF16(p, w, min, max, gamma)
}

func scaleChannel(v, min, max, gammaInv float32) float32 {
	scale := float32(1) / (max - min)
	v = (v - min) * scale
	if v < 0 || math.IsNaN(float64(v)) {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	if gammaInv != 1 {
		v = float32(math.Pow(float64(v), float64(gammaInv)))
	}
	return v
}

func writeMonoTIFF16(p *Plane, w io.Writer, min, max, gamma float32) error {
	img := image.NewGray16(image.Rect(0, 0, p.Cols, p.Rows))
	gammaInv := 1 / gamma
	for y := 0; y < p.Rows; y++ {
		for x := 0; x < p.Cols; x++ {
			v := scaleChannel(p.At(x, y, 0), min, max, gammaInv)
			img.SetGray16(x, y, color.Gray16{Y: uint16(v * 65535)})
		}
	}
	return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
}

func writeRGBTIFF16(p *Plane, w io.Writer, min, max, gamma float32) error {
	img := image.NewRGBA64(image.Rect(0, 0, p.Cols, p.Rows))
	gammaInv := 1 / gamma
	for y := 0; y < p.Rows; y++ {
		for x := 0; x < p.Cols; x++ {
			b := scaleChannel(p.At(x, y, 0), min, max, gammaInv)
			g := scaleChannel(p.At(x, y, 1), min, max, gammaInv)
			r := scaleChannel(p.At(x, y, 2), min, max, gammaInv)
			img.SetRGBA64(x, y, color.RGBA64{R: uint16(r * 65535), G: uint16(g * 65535), B: uint16(b * 65535), A: 65535})
		}
	}
	return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
}
