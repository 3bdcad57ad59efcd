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
	"net"
	"regexp"
	"strings"
)

var roleNameRe = regexp.MustCompile(`^[A-Za-z0-9_.:-]+$`)

// Role describes one member of the fleet.  Roles are values; once a plan
// has been handed to a Supervisor they are never modified.
type Role struct {
	Name         string
	Command      []string
	ReadinessURL string
	Env          []string // Appended to our own environment
	Dir          string

	// BlocksUntilDaemonized selects the daemon model: the launch command
	// is expected to fork, initialize, and exit 0.  That clean exit is the
	// signal that the role is up.  When false, the process is kept running
	// and its ReadinessURL (if any) is polled instead.
	BlocksUntilDaemonized bool
}

// Polled reports whether the process is expected to keep running for the
// life of the fleet.
func (r Role) Polled() bool {
	return !r.BlocksUntilDaemonized
}

// ProbeURL returns the readiness URL with a scheme.  Bare host:port values
// are probed over plain HTTP.
func (r Role) ProbeURL() string {
	u := r.ReadinessURL
	if u == "" {
		return ""
	}
	if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		return u
	}
	return "http://" + u
}

func (r Role) validate() error {
	if !roleNameRe.MatchString(r.Name) {
		return ErrBadRoleName
	}
	if len(r.Command) == 0 || r.Command[0] == "" {
		return ErrEmptyCommand
	}
	return nil
}

func (r Role) clone() Role {
	r.Command = copyArray(r.Command)
	r.Env = copyArray(r.Env)
	return r
}

func copyArray(src []string) []string {
	if src == nil {
		return nil
	}
	rv := make([]string, 0, len(src))
	rv = append(rv, src...)
	return rv
}

// LaunchPlan is the fully resolved description of a fleet.
type LaunchPlan struct {
	Primary Role
	Workers []Role // Startup order

	// ParallelWorkerStart starts every worker at once, rather than one
	// at a time in plan order.
	ParallelWorkerStart bool

	// ListenAddress is the host:port for the health endpoint.
	ListenAddress string
}

// Roles returns the primary followed by the workers, in startup order.
func (p LaunchPlan) Roles() []Role {
	rv := make([]Role, 0, len(p.Workers)+1)
	rv = append(rv, p.Primary)
	rv = append(rv, p.Workers...)
	return rv
}

// Validate checks the plan for problems that would otherwise only be
// found halfway through starting the fleet.
func (p LaunchPlan) Validate() error {
	seen := make(map[string]bool)
	for _, r := range p.Roles() {
		if e := r.validate(); e != nil {
			return &PlanError{Role: r.Name, Err: e}
		}
		if seen[r.Name] {
			return &PlanError{Role: r.Name, Err: ErrDuplicateRole}
		}
		seen[r.Name] = true
	}
	if _, port, e := net.SplitHostPort(p.ListenAddress); e != nil || port == "" {
		return &PlanError{Err: ErrBadListenAddress}
	}
	return nil
}

// clone returns a deep copy, so that the caller cannot alter the plan
// underneath a running Supervisor.
func (p LaunchPlan) clone() LaunchPlan {
	p.Primary = p.Primary.clone()
	workers := make([]Role, 0, len(p.Workers))
	for _, w := range p.Workers {
		workers = append(workers, w.clone())
	}
	p.Workers = workers
	return p
}

// PlanError is returned by Validate.
type PlanError struct {
	Role string
	Err  error
}

func (e *PlanError) Error() string {
	if e.Role == "" {
		return "bad plan: " + e.Err.Error()
	}
	return "bad plan: role " + e.Role + ": " + e.Err.Error()
}

func (e *PlanError) Unwrap() error {
	return e.Err
}
