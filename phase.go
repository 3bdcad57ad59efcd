// Copyright 2026 The Govisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package fleetvisor

import (
	"sync/atomic"
)

// Phase is where the Supervisor is in its life.
//
//	Idle -> StartingPrimary -> StartingWorkers -> Settling -> Running
//
// Failed and ShuttingDown can be entered from anywhere, and once entered
// there is no way out of them.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseStartingPrimary
	PhaseStartingWorkers
	PhaseSettling
	PhaseRunning
	PhaseShuttingDown
	PhaseFailed
)

var allPhases = []Phase{
	PhaseIdle,
	PhaseStartingPrimary,
	PhaseStartingWorkers,
	PhaseSettling,
	PhaseRunning,
	PhaseShuttingDown,
	PhaseFailed,
}

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseStartingPrimary:
		return "starting-primary"
	case PhaseStartingWorkers:
		return "starting-workers"
	case PhaseSettling:
		return "settling"
	case PhaseRunning:
		return "running"
	case PhaseShuttingDown:
		return "shutting-down"
	case PhaseFailed:
		return "failed"
	}
	return "unknown"
}

// Terminal is true for PhaseFailed and PhaseShuttingDown.
func (p Phase) Terminal() bool {
	return p == PhaseFailed || p == PhaseShuttingDown
}

func (p Phase) canMoveTo(next Phase) bool {
	if p.Terminal() {
		return false
	}
	if next.Terminal() {
		return true
	}
	return next > p
}

// phaseCell publishes the phase to readers without a lock.  The
// coordinating goroutine does most of the writing, but the watch loop or
// Shutdown can race it into a terminal phase, so updates are
// compare-and-swap.
type phaseCell struct {
	v atomic.Int32
}

func (c *phaseCell) load() Phase {
	return Phase(c.v.Load())
}

// advance moves to next if that is a legal transition, returning the
// previous phase and whether the move happened.
func (c *phaseCell) advance(next Phase) (Phase, bool) {
	for {
		cur := c.load()
		if !cur.canMoveTo(next) {
			return cur, false
		}
		if c.v.CompareAndSwap(int32(cur), int32(next)) {
			return cur, true
		}
	}
}
