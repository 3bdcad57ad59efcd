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

package rest

import (
	"time"

	"github.com/gdamore/fleetvisor"
)

const (
	mimeJson = "application/json; charset=UTF-8"

	// ApiPrefix is where the status API lives.  Every other path is the
	// health endpoint.
	ApiPrefix = "/_fleet"
)

// FleetInfo is the status of the whole fleet.
type FleetInfo struct {
	RunID      string     `json:"run"`
	Phase      string     `json:"phase"`
	Healthy    bool       `json:"healthy"`
	CreateTime time.Time  `json:"created"`
	Roles      []RoleInfo `json:"roles"`
}

// RoleInfo is the status of one role.
type RoleInfo struct {
	Name         string    `json:"name"`
	Command      []string  `json:"command"`
	ReadinessURL string    `json:"readinessURL,omitempty"`
	Daemon       bool      `json:"daemon"`
	State        string    `json:"state"`
	Exited       bool      `json:"exited"`
	ExitCode     int       `json:"exitCode"`
	Pid          int       `json:"pid,omitempty"`
	StartTime    time.Time `json:"started"`
	EndTime      time.Time `json:"ended"`
	LastRecord   int64     `json:"lastRecord,string"`
}

// LogInfo carries output records and the id to ask for next time.
type LogInfo struct {
	Role    string                 `json:"role"`
	Last    int64                  `json:"last,string"`
	Records []fleetvisor.LogRecord `json:"records"`
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

func roleInfo(st fleetvisor.RoleStatus) RoleInfo {
	info := RoleInfo{
		Name:         st.Name,
		Command:      st.Command,
		ReadinessURL: st.ReadinessURL,
		Daemon:       st.Daemon,
		State:        "pending",
		Exited:       st.Exited,
		ExitCode:     st.ExitCode,
		Pid:          st.Pid,
		StartTime:    st.StartTime,
		EndTime:      st.EndTime,
		LastRecord:   st.LastRecord,
	}
	if st.Spawned {
		info.State = st.State.String()
	}
	return info
}
