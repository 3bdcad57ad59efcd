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
	"time"
)

// RoleStatus is a point in time view of one role.
type RoleStatus struct {
	Name         string
	Command      []string
	ReadinessURL string
	Daemon       bool
	Spawned      bool // false until the process has been started
	State        HandleState
	Exited       bool
	ExitCode     int
	Pid          int
	StartTime    time.Time
	EndTime      time.Time
	LastRecord   int64 // id of the newest output record
}

// ProcessHandle offers these, but other Handles need not.
type pidHandle interface {
	Pid() int
	Times() (time.Time, time.Time)
}

func statusOf(r Role, h Handle) RoleStatus {
	st := RoleStatus{
		Name:         r.Name,
		Command:      copyArray(r.Command),
		ReadinessURL: r.ReadinessURL,
		Daemon:       r.BlocksUntilDaemonized,
	}
	if h == nil {
		return st
	}
	st.Spawned = true
	st.State = h.State()
	st.ExitCode, st.Exited = h.Poll()
	st.LastRecord = h.Log().LastId()
	if ph, ok := h.(pidHandle); ok {
		st.Pid = ph.Pid()
		st.StartTime, st.EndTime = ph.Times()
	}
	return st
}

// Status returns the status of every role in the plan, in plan order,
// including roles that have not been started yet.
func (s *Supervisor) Status() []RoleStatus {
	roles := s.plan.Roles()
	rv := make([]RoleStatus, 0, len(roles))
	for _, r := range roles {
		h, _ := s.Handle(r.Name)
		rv = append(rv, statusOf(r, h))
	}
	return rv
}

// RoleStatus returns the status of the named role.
func (s *Supervisor) RoleStatus(name string) (RoleStatus, error) {
	for _, r := range s.plan.Roles() {
		if r.Name == name {
			h, _ := s.Handle(name)
			return statusOf(r, h), nil
		}
	}
	return RoleStatus{}, ErrNoSuchRole
}
