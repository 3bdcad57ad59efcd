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

package util

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/gdamore/fleetvisor/rest"
)

func TestFormatDuration(t *testing.T) {
	Convey("Durations are shown as h:mm:ss", t, func() {
		So(FormatDuration(0), ShouldEqual, "0:00:00")
		So(FormatDuration(61*time.Second), ShouldEqual, "0:01:01")
		So(FormatDuration(26*time.Hour+3*time.Minute+500*time.Millisecond), ShouldEqual, "26:03:00")
	})
}

func TestStatus(t *testing.T) {
	Convey("Role states summarize sensibly", t, func() {
		So(Status(&rest.RoleInfo{State: "pending"}), ShouldEqual, "pending")
		So(Status(&rest.RoleInfo{State: "running"}), ShouldEqual, "running")
		So(Status(&rest.RoleInfo{State: "exited", Exited: true, Daemon: true}), ShouldEqual, "daemon")
		So(Status(&rest.RoleInfo{State: "exited", Exited: true, ExitCode: 2}), ShouldEqual, "failed")
		So(Status(&rest.RoleInfo{State: "terminated", Exited: true, ExitCode: 143}), ShouldEqual, "stopped")
	})
}

func TestSortRoles(t *testing.T) {
	Convey("Failed roles sort first, the rest keep their order", t, func() {
		items := []rest.RoleInfo{
			{Name: "main", State: "running"},
			{Name: "w1", State: "running"},
			{Name: "w2", State: "failed", Exited: true, ExitCode: 1},
			{Name: "w3", State: "running"},
		}
		SortRoles(items)
		So(items[0].Name, ShouldEqual, "w2")
		So(items[1].Name, ShouldEqual, "main")
		So(items[2].Name, ShouldEqual, "w1")
		So(items[3].Name, ShouldEqual, "w3")
	})
}

func TestUptime(t *testing.T) {
	Convey("Uptime stops at exit", t, func() {
		start := time.Unix(1000, 0)
		r := &rest.RoleInfo{StartTime: start, EndTime: start.Add(time.Minute), Exited: true}
		So(Uptime(r, start.Add(time.Hour)), ShouldEqual, time.Minute)
		r.Exited = false
		So(Uptime(r, start.Add(time.Hour)), ShouldEqual, time.Hour)
		So(Uptime(&rest.RoleInfo{}, start), ShouldEqual, time.Duration(0))
	})
}
