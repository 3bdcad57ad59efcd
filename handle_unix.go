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

//go:build unix

package fleetvisor

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// Each child gets its own process group, so that signals reach anything
// it has started too.
func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func signalGroup(proc *os.Process, sig unix.Signal) error {
	e := unix.Kill(-proc.Pid, sig)
	if e == unix.ESRCH {
		// Group is gone (or never formed); try the process itself.
		e = proc.Signal(sig)
		if errors.Is(e, os.ErrProcessDone) {
			return nil
		}
	}
	return e
}

func terminateGroup(proc *os.Process) error {
	return signalGroup(proc, unix.SIGTERM)
}

func killGroup(proc *os.Process) error {
	return signalGroup(proc, unix.SIGKILL)
}

// signalPgid signals every process left in the group pgid.  A group
// that no longer exists is not an error.
func signalPgid(pgid int, sig unix.Signal) error {
	if e := unix.Kill(-pgid, sig); e != nil && e != unix.ESRCH {
		return e
	}
	return nil
}

func groupAlive(pgid int) bool {
	e := unix.Kill(-pgid, 0)
	return e == nil || e == unix.EPERM
}

func termPgid(pgid int) error {
	return signalPgid(pgid, unix.SIGTERM)
}

func killPgid(pgid int) error {
	return signalPgid(pgid, unix.SIGKILL)
}

// exitStatus reports death by signal the way a shell does, as 128 plus
// the signal number.
func exitStatus(ps *os.ProcessState) int {
	if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return ps.ExitCode()
}
