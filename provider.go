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
	"context"
	"io"
	"time"
)

// Handle is what the Supervisor knows about a process it started.
// ProcessHandle is the real implementation; the interface exists so that
// the Supervisor can be driven by something other than real processes.
type Handle interface {
	// Role returns the role this process was started for.
	Role() Role

	// State returns the current state.
	State() HandleState

	// Poll reports, without blocking, whether the process has exited and
	// if so with what code.
	Poll() (code int, exited bool)

	// Terminate asks the process to stop, and if it has not done so
	// within grace, kills it.  It blocks until the process is gone.
	// On a process that has already exited it does nothing.
	Terminate(grace time.Duration) error

	// Kill forcefully stops the process.  This is the last resort.
	Kill() error

	// Wait blocks until the process exits, or ctx is done.
	Wait(ctx context.Context) (int, error)

	// Log returns the captured output.
	Log() *OutputLog
}

// groupTerminator is implemented by handles whose process may leave
// descendants behind in its process group after it exits, as a daemon does.
type groupTerminator interface {
	TerminateGroup(grace time.Duration) error
}

// Spawner starts processes.  Spawn must not wait for the process to exit.
type Spawner interface {
	Spawn(role Role) (Handle, error)
}

// ExecSpawner spawns real operating system processes.
type ExecSpawner struct {
	// Tee, if not nil, also receives every line of output as it is
	// produced, prefixed with the role name.
	Tee io.Writer
}

func (s *ExecSpawner) Spawn(role Role) (Handle, error) {
	h, e := Spawn(role, s.Tee)
	if e != nil {
		return nil, e
	}
	return h, nil
}
