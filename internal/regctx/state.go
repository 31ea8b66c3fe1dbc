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

package regctx

import (
	"fmt"
	"os"
	"strings"

	"github.com/astroluck/luckystack/internal/geom"
	"github.com/astroluck/luckystack/internal/imgio"
	"github.com/astroluck/luckystack/internal/patch"
	"gopkg.in/yaml.v3"
)

// The on-disk document is a typed tree keyed by the §3 field names. A field
// wrapper's validity is represented by presence or absence of its key:
// pointer fields left nil on decode simply never get Set on the Context.

type yamlSize struct {
	W, H int
}

type yamlRect struct {
	X, Y, W, H int
}

type yamlPoint struct {
	X, Y int
}

type yamlImage struct {
	Filename         string    `yaml:"filename"`
	GlobalShift      yamlPoint `yaml:"globalShift"`
	GlobalMultiplier float32   `yaml:"globalMultiplier"`
}

type yamlMatrix struct {
	Rows  int       `yaml:"rows"`
	Cols  int       `yaml:"cols"`
	Dtype string    `yaml:"dtype"`
	Data  []float32 `yaml:"data"`
}

type yamlPosition struct {
	X          int      `yaml:"x"`
	Y          int      `yaml:"y"`
	SearchArea yamlRect `yaml:"searchArea"`
}

type yamlShiftRow struct {
	X, Y float64 `yaml:"-"`
}

// MarshalYAML/UnmarshalYAML render a shift row as a flat 2-element
// sequence, matching spec 6's "2-column float matrices".
func (s yamlShiftRow) MarshalYAML() (interface{}, error) { return []float64{s.X, s.Y}, nil }
func (s *yamlShiftRow) UnmarshalYAML(value *yaml.Node) error {
	var pair [2]float64
	if err := value.Decode(&pair); err != nil {
		return err
	}
	s.X, s.Y = pair[0], pair[1]
	return nil
}

type yamlDocument struct {
	Imagesize         *yamlSize        `yaml:"imagesize,omitempty"`
	Boxsize           *int             `yaml:"boxsize,omitempty"`
	Images            []yamlImage      `yaml:"images,omitempty"`
	CommonRectangle   *yamlRect        `yaml:"commonRectangle,omitempty"`
	Refimg            *yamlMatrix      `yaml:"refimg,omitempty"`
	PatchCreationArea *yamlRect        `yaml:"patchCreationArea,omitempty"`
	Patches           []yamlPosition   `yaml:"patches,omitempty"`
	Shifts            [][]yamlShiftRow `yaml:"shifts,omitempty"`
}

func toYamlRect(r geom.Rect) yamlRect { return yamlRect{r.X, r.Y, r.W, r.H} }
func fromYamlRect(r yamlRect) geom.Rect {
	return geom.Rect{X: r.X, Y: r.Y, W: r.W, H: r.H}
}

// Save serializes the currently-valid fields of c to a YAML document at
// path, per spec 6's state-file contract. The ".yml" extension is a fixed
// requirement of the on-disk schema.
func Save(c *Context, path string) error {
	if !strings.HasSuffix(path, ".yml") {
		return fmt.Errorf("state file must use the .yml extension, got %q", path)
	}

	var doc yamlDocument
	if c.imagesizeValid {
		doc.Imagesize = &yamlSize{c.Imagesize.W, c.Imagesize.H}
	}
	if c.boxsizeValid {
		b := c.Boxsize
		doc.Boxsize = &b
	}
	if c.imagesValid {
		doc.Images = make([]yamlImage, len(c.Images))
		for i, im := range c.Images {
			doc.Images[i] = yamlImage{
				Filename:         im.FileName,
				GlobalShift:      yamlPoint{im.GlobalShift.X, im.GlobalShift.Y},
				GlobalMultiplier: im.GlobalMultiplier,
			}
		}
	}
	if c.commonRectangleValid {
		r := toYamlRect(c.CommonRectangle)
		doc.CommonRectangle = &r
	}
	if c.refimgValid {
		doc.Refimg = &yamlMatrix{Rows: c.Refimg.Rows, Cols: c.Refimg.Cols, Dtype: "f32", Data: c.Refimg.Data}
	}
	if c.patchesValid {
		area := toYamlRect(c.Patches.CreationArea)
		doc.PatchCreationArea = &area
		doc.Patches = make([]yamlPosition, len(c.Patches.Patches))
		for i, p := range c.Patches.Patches {
			doc.Patches[i] = yamlPosition{X: p.X, Y: p.Y, SearchArea: toYamlRect(p.SearchArea)}
		}
	}
	if c.shiftsValid {
		doc.Shifts = make([][]yamlShiftRow, len(c.Shifts))
		for i, frame := range c.Shifts {
			row := make([]yamlShiftRow, len(frame))
			for j, s := range frame {
				row[j] = yamlShiftRow{X: s.X, Y: s.Y}
			}
			doc.Shifts[i] = row
		}
	}

	data, err := yaml.Marshal(&doc)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Load reads path into a fresh Context. Missing or malformed fields leave
// the corresponding wrapper invalid rather than aborting the load; the
// caller is responsible for checking Validate() afterwards. boxsize is
// required to rehydrate patches' cooked templates from refimg.
func Load(path string) (*Context, error) {
	if !strings.HasSuffix(path, ".yml") {
		return nil, fmt.Errorf("state file must use the .yml extension, got %q", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc yamlDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	c := New()
	if doc.Imagesize != nil {
		c.SetImagesize(geom.Size{W: doc.Imagesize.W, H: doc.Imagesize.H})
	}
	if doc.Boxsize != nil {
		c.SetBoxsize(*doc.Boxsize)
	}
	if len(doc.Images) > 0 {
		images := make([]InputImage, len(doc.Images))
		for i, im := range doc.Images {
			images[i] = InputImage{
				FileName:         im.Filename,
				GlobalShift:      geom.Point{X: im.GlobalShift.X, Y: im.GlobalShift.Y},
				GlobalMultiplier: im.GlobalMultiplier,
			}
		}
		c.SetImages(images)
	}
	if doc.CommonRectangle != nil {
		c.SetCommonRectangle(fromYamlRect(*doc.CommonRectangle))
	}
	if doc.Refimg != nil && doc.Refimg.Rows > 0 && doc.Refimg.Cols > 0 {
		p := imgio.NewPlane(doc.Refimg.Rows, doc.Refimg.Cols, 1)
		if len(doc.Refimg.Data) == len(p.Data) {
			copy(p.Data, doc.Refimg.Data)
			c.SetRefimg(p)
		}
	}
	// Save writes patchCreationArea for every valid collection, so its
	// presence marks a valid collection even when it holds no patches
	if (len(doc.Patches) > 0 || doc.PatchCreationArea != nil) && doc.Boxsize != nil && c.refimgValid {
		positions := make([]patch.Position, len(doc.Patches))
		for i, yp := range doc.Patches {
			positions[i] = patch.Position{X: yp.X, Y: yp.Y, SearchArea: fromYamlRect(yp.SearchArea)}
		}
		area := geom.Rect{}
		if doc.PatchCreationArea != nil {
			area = fromYamlRect(*doc.PatchCreationArea)
		}
		c.SetPatches(patch.Rehydrate(c.Refimg, positions, *doc.Boxsize, area))
	}
	if len(doc.Shifts) > 0 && c.patchesValid {
		shifts := make([][]Shift, len(doc.Shifts))
		for i, frame := range doc.Shifts {
			row := make([]Shift, len(frame))
			for j, s := range frame {
				row[j] = Shift{X: s.X, Y: s.Y}
			}
			shifts[i] = row
		}
		c.SetShifts(shifts)
	}

	return c, nil
}
