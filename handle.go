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
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"
)

// HandleState is the lifecycle state of a single process.
type HandleState int

const (
	Spawning HandleState = iota
	Running
	ExitedClean
	ExitedFailed
	Terminated
)

func (s HandleState) String() string {
	switch s {
	case Spawning:
		return "spawning"
	case Running:
		return "running"
	case ExitedClean:
		return "exited"
	case ExitedFailed:
		return "failed"
	case Terminated:
		return "terminated"
	}
	return "unknown"
}

// Exited is true for every state in which the process is gone.
func (s HandleState) Exited() bool {
	return s == ExitedClean || s == ExitedFailed || s == Terminated
}

// How long to wait for a process' output pipes to drain once it has
// exited.  A daemonizing process may leave a grandchild holding them.
const pipeDrainTime = time.Second

// How often TerminateGroup checks whether the group is gone.
const groupPollInterval = 50 * time.Millisecond

// ProcessHandle represents an actual operating system level process.
type ProcessHandle struct {
	role    Role
	cmd     *exec.Cmd
	out     *LineWriter
	log     *OutputLog
	state   HandleState
	code    int
	stopped bool // true once we asked it to stop
	start   time.Time
	end     time.Time
	done    chan struct{}
	lock    sync.Mutex
}

// Spawn starts a process for the role.  Standard output and standard error
// are merged and captured.  If tee is not nil, each line is also written
// there as it arrives, prefixed with the role name.  Spawn does not wait
// for the process to do anything beyond starting.
func Spawn(role Role, tee io.Writer) (*ProcessHandle, error) {
	if e := role.validate(); e != nil {
		return nil, &SpawnError{Role: role.Name, Err: e}
	}
	p := &ProcessHandle{
		role:  role.clone(),
		log:   NewOutputLog(),
		state: Spawning,
		done:  make(chan struct{}),
	}
	p.out = NewLineWriter(p.log)
	if tee != nil {
		p.out.AddSink(&PrefixWriter{Prefix: "[" + role.Name + "] ", W: tee})
	}

	cmd := exec.Command(role.Command[0], role.Command[1:]...)
	if len(role.Env) != 0 {
		cmd.Env = append(os.Environ(), role.Env...)
	}
	cmd.Dir = role.Dir
	cmd.Stdout = p.out
	cmd.Stderr = p.out
	cmd.WaitDelay = pipeDrainTime
	setProcAttr(cmd)
	p.cmd = cmd

	if e := cmd.Start(); e != nil {
		return nil, &SpawnError{Role: role.Name, Err: e}
	}
	p.lock.Lock()
	p.state = Running
	p.start = time.Now()
	p.lock.Unlock()

	go p.doWait()
	return p, nil
}

func (p *ProcessHandle) doWait() {
	e := p.cmd.Wait()
	p.out.Close()

	code := -1
	if ps := p.cmd.ProcessState; ps != nil {
		code = exitStatus(ps)
	} else if e == nil || errors.Is(e, exec.ErrWaitDelay) {
		code = 0
	}

	p.lock.Lock()
	p.end = time.Now()
	p.code = code
	switch {
	case p.stopped:
		p.state = Terminated
	case code == 0:
		p.state = ExitedClean
	default:
		p.state = ExitedFailed
	}
	p.lock.Unlock()
	close(p.done)
}

func (p *ProcessHandle) Role() Role {
	return p.role
}

func (p *ProcessHandle) State() HandleState {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.state
}

// Pid returns the operating system process id.
func (p *ProcessHandle) Pid() int {
	return p.cmd.Process.Pid
}

// Times returns when the process started, and when it ended.  The end
// time is zero while the process is alive.
func (p *ProcessHandle) Times() (time.Time, time.Time) {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.start, p.end
}

func (p *ProcessHandle) Poll() (int, bool) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.state.Exited() {
		return p.code, true
	}
	return 0, false
}

func (p *ProcessHandle) Wait(ctx context.Context) (int, error) {
	select {
	case <-p.done:
		code, _ := p.Poll()
		return code, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Terminate sends SIGTERM to the process group, and falls back to Kill if
// the process is still around after grace.  A grace of zero waits forever.
func (p *ProcessHandle) Terminate(grace time.Duration) error {
	p.lock.Lock()
	if p.state.Exited() {
		p.lock.Unlock()
		return nil
	}
	p.stopped = true
	p.lock.Unlock()

	if e := terminateGroup(p.cmd.Process); e != nil {
		return p.Kill()
	}
	if grace <= 0 {
		<-p.done
		return nil
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-p.done:
		return nil
	case <-timer.C:
	}
	return p.Kill()
}

// Kill sends SIGKILL to the process group and waits for the process to
// be reaped.
func (p *ProcessHandle) Kill() error {
	p.lock.Lock()
	if p.state.Exited() {
		p.lock.Unlock()
		return nil
	}
	p.stopped = true
	p.lock.Unlock()

	if e := killGroup(p.cmd.Process); e != nil {
		return e
	}
	<-p.done
	return nil
}

// TerminateGroup stops whatever is left in the process group once the
// process itself is gone, which is where a daemon ends up after its
// launcher exits.  The group gets SIGTERM, then SIGKILL if anything is
// still there after grace.  Processes that moved to a session or group
// of their own with setsid are out of reach.
func (p *ProcessHandle) TerminateGroup(grace time.Duration) error {
	if e := p.Terminate(grace); e != nil {
		return e
	}
	pgid := p.cmd.Process.Pid
	if !groupAlive(pgid) {
		return nil
	}
	if e := termPgid(pgid); e != nil {
		return e
	}
	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if !groupAlive(pgid) {
			return nil
		}
		time.Sleep(groupPollInterval)
	}
	return killPgid(pgid)
}

func (p *ProcessHandle) Log() *OutputLog {
	return p.log
}

// Output returns everything the process has written so far.
func (p *ProcessHandle) Output() []byte {
	return p.log.Bytes()
}
