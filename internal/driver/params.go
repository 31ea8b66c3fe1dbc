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

// Package driver implements the pipeline driver (C8): stage sequencing,
// dependency resolution, invalidation on conflicting inputs, and the
// parallel frame loop that fuses shift-finding with warp-accumulation.
package driver

import "fmt"

// Params is the parameter bundle parsed from the CLI (spec 6).
type Params struct {
	Files []string

	PreregImg      string
	PreregOnFirst  bool
	PreregOnMiddle bool

	DoRefimg    bool
	DoPatches   bool
	DoDedistort bool
	DoStack     bool
	OnlyRefimg  bool

	Boxsize       int
	Maxmove       int
	PreregMaxmove int
	Super         int
	Crop          bool

	ReadState string
	SaveState string
	Output    string

	Threads int
}

// Validate checks mutually exclusive flag combinations, per spec 6/7's
// configuration-error class: reported to the caller, no partial output.
func (p Params) Validate() error {
	preregSelectors := 0
	if p.PreregImg != "" {
		preregSelectors++
	}
	if p.PreregOnFirst {
		preregSelectors++
	}
	if p.PreregOnMiddle {
		preregSelectors++
	}
	if preregSelectors > 1 {
		return fmt.Errorf("--prereg-img, --prereg-on-first and --prereg-on-middle are mutually exclusive")
	}
	if p.OnlyRefimg && p.DoStack {
		return fmt.Errorf("--only-refimg and --stack are mutually exclusive")
	}
	if p.Output == "" && p.SaveState == "" {
		return fmt.Errorf("no output sink requested: specify --output or --save-state")
	}
	if len(p.Files) == 0 && p.ReadState == "" {
		return fmt.Errorf("no input files and no --read-state given")
	}
	return nil
}

// needs is the closure of stages a run must (re)compute to satisfy the
// explicitly requested stages, per spec 4.8's "needs closure": if lucky is
// requested, patches are needed; if patches are needed, refimg is needed.
type needs struct {
	prereg, refimg, patches, lucky, stack bool
}

func (p Params) needsClosure() needs {
	var n needs
	n.stack = p.DoStack || p.OnlyRefimg
	n.lucky = p.DoDedistort || n.stack && !p.OnlyRefimg
	n.patches = p.DoPatches || n.lucky
	n.refimg = p.DoRefimg || n.patches || n.stack
	n.prereg = p.PreregImg != "" || p.PreregOnFirst || p.PreregOnMiddle || n.refimg
	return n
}
