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

//go:build !unix

package fleetvisor

import (
	"errors"
	"os"
	"os/exec"
)

func setProcAttr(cmd *exec.Cmd) {
}

// There are no process groups or graceful signals to speak of here, so
// terminating is the same as killing.
func terminateGroup(proc *os.Process) error {
	return killGroup(proc)
}

func killGroup(proc *os.Process) error {
	if e := proc.Kill(); e != nil && !errors.Is(e, os.ErrProcessDone) {
		return e
	}
	return nil
}

// Without process groups nothing can be found once the leader is gone.
func groupAlive(pgid int) bool {
	return false
}

func termPgid(pgid int) error {
	return nil
}

func killPgid(pgid int) error {
	return nil
}

func exitStatus(ps *os.ProcessState) int {
	return ps.ExitCode()
}
