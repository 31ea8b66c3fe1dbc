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
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/tiff"
)

// DecodeFile reads an input frame from any registered image codec
// (PNG/JPEG/TIFF) and returns a linear-light float32 plane, per spec 6's
// pixel-plane contract: `v <= 0.04045 ? v/12.92 : ((v+0.055)/1.055)^2.4`.
// Gray-source images decode to a 1-channel plane; colour sources decode to
// a 3-channel BGR-order plane.
func DecodeFile(path string) (*Plane, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(bufio.NewReader(file))
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return fromImage(img), nil
}

func fromImage(img image.Image) *Plane {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	// gamma-encoded plane straight from the codec; ToLinear applies the
	// sRGB transfer curve via go-colorful in one place for both decoders
	// and writers.
	var gamma *Plane
	if isGray(img) {
		gamma = NewPlane(h, w, 1)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				gr, _, _, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
				gamma.Set(x, y, 0, float32(gr)/65535)
			}
		}
	} else {
		gamma = NewPlane(h, w, 3)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
				gamma.Set(x, y, 0, float32(b)/65535)
				gamma.Set(x, y, 1, float32(g)/65535)
				gamma.Set(x, y, 2, float32(r)/65535)
			}
		}
	}
	return ToLinear(gamma)
}

func isGray(img image.Image) bool {
	switch img.(type) {
	case *image.Gray, *image.Gray16:
		return true
	default:
		return false
	}
}
