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

import "sync"

// Progress is the driver's shared stage/frame counter. Its mutex guards
// the progress counters; the frame loops otherwise hand out work over a
// channel and join at barriers.
type Progress struct {
	mu sync.Mutex

	stage                            string
	framesDone, framesTotal          int
	patchesAccepted, patchesRejected int
}

// Snapshot is a consistent copy of the counters, JSON-ready for the
// status server.
type Snapshot struct {
	Stage           string `json:"stage"`
	FramesDone      int    `json:"framesDone"`
	FramesTotal     int    `json:"framesTotal"`
	PatchesAccepted int    `json:"patchesAccepted"`
	PatchesRejected int    `json:"patchesRejected"`
}

func (p *Progress) StartStage(name string, framesTotal int) {
	p.mu.Lock()
	p.stage = name
	p.framesDone, p.framesTotal = 0, framesTotal
	p.mu.Unlock()
}

func (p *Progress) FrameDone() {
	p.mu.Lock()
	p.framesDone++
	p.mu.Unlock()
}

func (p *Progress) SetPatchCounts(accepted, rejected int) {
	p.mu.Lock()
	p.patchesAccepted, p.patchesRejected = accepted, rejected
	p.mu.Unlock()
}

func (p *Progress) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Snapshot{
		Stage:           p.stage,
		FramesDone:      p.framesDone,
		FramesTotal:     p.framesTotal,
		PatchesAccepted: p.patchesAccepted,
		PatchesRejected: p.patchesRejected,
	}
}
