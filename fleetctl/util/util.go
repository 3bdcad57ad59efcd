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

// Package util is used for internal implementation bits in the CLI/UI.
package util

import (
	"fmt"
	"sort"
	"time"

	"github.com/gdamore/fleetvisor/rest"
)

// Status is a one word summary of the role.
func Status(r *rest.RoleInfo) string {
	switch {
	case r.State == "pending":
		return "pending"
	case r.Exited && r.Daemon && r.ExitCode == 0:
		return "daemon"
	case r.Exited && r.State == "terminated":
		return "stopped"
	case r.Exited:
		return "failed"
	}
	return r.State
}

// Failed reports whether the role exited in a way that brings the fleet
// down.
func Failed(r *rest.RoleInfo) bool {
	return Status(r) == "failed"
}

// Uptime is how long the role has been running, or ran for.
func Uptime(r *rest.RoleInfo, now time.Time) time.Duration {
	if r.StartTime.IsZero() {
		return 0
	}
	if r.Exited && !r.EndTime.IsZero() {
		return r.EndTime.Sub(r.StartTime)
	}
	return now.Sub(r.StartTime)
}

func FormatDuration(d time.Duration) string {

	sec := int((d % time.Minute) / time.Second)
	min := int((d % time.Hour) / time.Minute)
	hour := int(d / time.Hour)

	return fmt.Sprintf("%d:%02d:%02d", hour, min, sec)
}

type sorted []rest.RoleInfo

func (s sorted) Swap(i, j int) {
	s[i], s[j] = s[j], s[i]
}

func (s sorted) Len() int {
	return len(s)
}

func (s sorted) Less(i, j int) bool {
	// put failed items at front, otherwise keep plan order
	return Failed(&s[i]) && !Failed(&s[j])
}

// SortRoles puts failed roles first.  Otherwise the order, which is the
// startup order, is kept.
func SortRoles(items []rest.RoleInfo) {
	sort.Stable(sorted(items))
}
