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

package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"

	"github.com/astroluck/luckystack/internal/driver"
	"github.com/astroluck/luckystack/internal/nllog"
	"github.com/astroluck/luckystack/internal/rest"
)

const version = "0.1.0"

var cpuprofile = flag.String("cpuprofile", "", "write cpu profile to `file`")

var preregImg = flag.String("prereg-img", "", "pre-register against reference image from `file`")
var preregOnFirst = flag.Bool("prereg-on-first", false, "pre-register against the first input frame")
var preregOnMiddle = flag.Bool("prereg-on-middle", false, "pre-register against the middle input frame")
var refimg = flag.Bool("refimg", false, "build the averaged reference image")
var patches = flag.Bool("patches", false, "generate and filter registration points")
var dedistort = flag.Bool("dedistort", false, "compute per-patch lucky shifts")
var stack = flag.Bool("stack", false, "accumulate warped frames into the output")
var onlyRefimg = flag.Bool("only-refimg", false, "write the stacked reference instead of a lucky result")

var boxsize = flag.Int64("boxsize", 60, "registration patch edge length in pixels")
var maxmove = flag.Int64("maxmove", 20, "maximum local patch displacement in pixels")
var preregMaxmove = flag.Int64("prereg-maxmove", 0, "maximum global displacement in pixels, 0=half the smaller reference axis")
var super = flag.Int64("super", 1, "super-sampling factor of the output lattice")
var crop = flag.Bool("crop", false, "restrict output to the rectangle common to all globally-shifted frames")

var readState = flag.String("read-state", "", "resume from state `file` (.yml)")
var saveState = flag.String("save-state", "", "persist pipeline state to `file` (.yml)")
var output = flag.String("output", "", "write stacked image to `file` (.png, .tif)")
var logfile = flag.String("log", "", "tee log output to `file`")
var serve = flag.String("serve", "", "serve pipeline status on `addr` (e.g. :8080) while running")

var threads = flag.Int64("threads", int64(runtime.NumCPU()), "number of worker threads")

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `Luckystack %s Copyright (c) 2020 Markus L. Noga
This program comes with ABSOLUTELY NO WARRANTY.
This is free software, and you are welcome to redistribute it under certain conditions.
Refer to https://www.gnu.org/licenses/gpl-3.0.en.html for details.

Usage: %s [-flag value] img0.png ... imgn.png

Stages run in order prereg, refimg, patches, dedistort, stack; a stage
also runs when a later requested stage needs its missing result.

Flags:
`, version, os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *logfile != "" {
		if err := nllog.AlsoToFile(*logfile); err != nil {
			nllog.Fatalf("Unable to open logfile '%s'\n", *logfile)
		}
	}

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			nllog.Fatalf("Could not create CPU profile: %s\n", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			nllog.Fatalf("Could not start CPU profile: %s\n", err)
		}
		defer pprof.StopCPUProfile()
	}

	params := driver.Params{
		Files:          flag.Args(),
		PreregImg:      *preregImg,
		PreregOnFirst:  *preregOnFirst,
		PreregOnMiddle: *preregOnMiddle,
		DoRefimg:       *refimg,
		DoPatches:      *patches,
		DoDedistort:    *dedistort,
		DoStack:        *stack,
		OnlyRefimg:     *onlyRefimg,
		Boxsize:        int(*boxsize),
		Maxmove:        int(*maxmove),
		PreregMaxmove:  int(*preregMaxmove),
		Super:          int(*super),
		Crop:           *crop,
		ReadState:      *readState,
		SaveState:      *saveState,
		Output:         *output,
		Threads:        int(*threads),
	}

	d := driver.New(params)
	if *serve != "" {
		go func() {
			if err := rest.Serve(*serve, d); err != nil {
				nllog.Printf("status server: %s\n", err)
			}
		}()
	}

	if err := d.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		nllog.Sync()
		os.Exit(1)
	}
	nllog.Sync()
}
