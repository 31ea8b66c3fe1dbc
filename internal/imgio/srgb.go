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

import colorful "github.com/lucasb-eyer/go-colorful"

// ToLinear converts a gamma-encoded (sRGB transfer curve) plane into linear
// light, channel by channel, matching the ingest side of spec section 3's
// pixel-plane contract: all registration and warping math operates on
// linear-light values.
func ToLinear(p *Plane) *Plane {
	out := NewPlane(p.Rows, p.Cols, p.Channels)
	for i := 0; i < p.Rows*p.Cols; i++ {
		for k := 0; k < p.Channels; k++ {
			v := float64(p.Data[i*p.Channels+k])
			r, _, _ := (colorful.Color{R: v, G: v, B: v}).LinearRgb()
			out.Data[i*p.Channels+k] = float32(r)
		}
	}
	return out
}

// ToSRGB re-applies the sRGB transfer curve to a linear-light plane before
// it is written out to a display-referred file format.
func ToSRGB(p *Plane) *Plane {
	out := NewPlane(p.Rows, p.Cols, p.Channels)
	for i := 0; i < p.Rows*p.Cols; i++ {
		for k := 0; k < p.Channels; k++ {
			v := float64(p.Data[i*p.Channels+k])
			c := colorful.LinearRgb(v, v, v)
			out.Data[i*p.Channels+k] = float32(c.R)
		}
	}
	return out
}
