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
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyCommand     = errors.New("Role has no command")
	ErrBadRoleName      = errors.New("Bad role name")
	ErrDuplicateRole    = errors.New("Duplicate role name")
	ErrBadListenAddress = errors.New("Bad listen address")
	ErrNoSuchRole       = errors.New("No such role")
	ErrAlreadyStarted   = errors.New("Supervisor already started")
	ErrShutdown         = errors.New("Supervisor is shutting down")
)

// SpawnError is returned when the operating system could not create the
// process at all, for example because the executable is missing.  These
// are never retried.
type SpawnError struct {
	Role string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Role, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// ReadinessKind distinguishes the ways readiness checking can fail.
// At present there is only one.
type ReadinessKind int

const (
	NeverStarted ReadinessKind = iota
)

// ReadinessError is returned when a role never answered its readiness
// probe within the retry budget.  The process has already been terminated
// by the time this is returned.
type ReadinessError struct {
	Kind     ReadinessKind
	Role     string
	URL      string
	Attempts int
	Err      error // last probe failure
}

func (e *ReadinessError) Error() string {
	return fmt.Sprintf("%s never started, couldn't get %s after %d attempts: %v",
		e.Role, e.URL, e.Attempts, e.Err)
}

func (e *ReadinessError) Unwrap() error {
	return e.Err
}

// PrimaryStartError reports that the primary never came up.
type PrimaryStartError struct {
	Role string
	Err  error
}

func (e *PrimaryStartError) Error() string {
	return fmt.Sprintf("primary %s failed to start: %v", e.Role, e.Err)
}

func (e *PrimaryStartError) Unwrap() error {
	return e.Err
}

// WorkerStartError reports the first worker that failed to start.  Later
// failures, if any, are not reported.
type WorkerStartError struct {
	Role string
	Err  error
}

func (e *WorkerStartError) Error() string {
	return fmt.Sprintf("worker %s failed to start: %v", e.Role, e.Err)
}

func (e *WorkerStartError) Unwrap() error {
	return e.Err
}

// AggregateStartupFailure names every role that failed the settle check.
// Unlike WorkerStartError, all failures are reported, since every process
// had its own chance to fail by then.
type AggregateStartupFailure struct {
	FailedRoles []string
	Errs        map[string]error
}

func (e *AggregateStartupFailure) Error() string {
	return fmt.Sprintf("failed units: %s", strings.Join(e.FailedRoles, ", "))
}

// Has reports whether the named role is among the failures.
func (e *AggregateStartupFailure) Has(role string) bool {
	for _, r := range e.FailedRoles {
		if r == role {
			return true
		}
	}
	return false
}

// UnexpectedExit reports that a process which had been healthy exited
// while the fleet was running.
type UnexpectedExit struct {
	Role     string
	ExitCode int
}

func (e *UnexpectedExit) Error() string {
	return fmt.Sprintf("%s exited unexpectedly with %d", e.Role, e.ExitCode)
}

// Cause says why the supervisor stopped.
type Cause int

const (
	CauseNone Cause = iota
	// CauseInterrupt means the operator asked us to stop.
	CauseInterrupt
	// CauseFatal means something went wrong.
	CauseFatal
)

func (c Cause) String() string {
	switch c {
	case CauseNone:
		return "none"
	case CauseInterrupt:
		return "interrupt requested"
	case CauseFatal:
		return "fatal error"
	}
	return "unknown"
}

// Outcome is the terminal result of running a Supervisor.
type Outcome struct {
	Cause Cause
	Err   error
}

// ExitCode maps the outcome onto a process exit status: 0 when the operator
// asked us to stop, 1 for anything else.
func (o Outcome) ExitCode() int {
	if o.Cause == CauseInterrupt {
		return 0
	}
	return 1
}

func (o Outcome) String() string {
	if o.Err == nil {
		return o.Cause.String()
	}
	return o.Cause.String() + ": " + o.Err.Error()
}
