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
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"golang.org/x/crypto/bcrypt"

	"github.com/gdamore/fleetvisor"
)

type testHandle struct {
	role fleetvisor.Role
	log  *fleetvisor.OutputLog
}

func (h *testHandle) Role() fleetvisor.Role { return h.role }
func (h *testHandle) State() fleetvisor.HandleState { return fleetvisor.Running }
func (h *testHandle) Poll() (int, bool) { return 0, false }
func (h *testHandle) Terminate(time.Duration) error { return nil }
func (h *testHandle) Kill() error { return nil }
func (h *testHandle) Wait(context.Context) (int, error) { return 0, nil }
func (h *testHandle) Log() *fleetvisor.OutputLog { return h.log }

type testFleet struct {
	phase   fleetvisor.Phase
	roles   []fleetvisor.Role
	handles map[string]*testHandle
	metrics *fleetvisor.Metrics
}

func newTestFleet() *testFleet {
	f := &testFleet{
		phase: fleetvisor.PhaseRunning,
		roles: []fleetvisor.Role{
			{Name: "api", Command: []string{"api", "-D"}, ReadinessURL: "localhost:9000", BlocksUntilDaemonized: true},
			{Name: "worker", Command: []string{"worker"}},
		},
		handles: make(map[string]*testHandle),
		metrics: fleetvisor.NewMetrics(""),
	}
	f.handles["api"] = &testHandle{role: f.roles[0], log: fleetvisor.NewOutputLog()}
	return f
}

func (f *testFleet) Phase() fleetvisor.Phase { return f.phase }
func (f *testFleet) RunID() string { return "run-1" }
func (f *testFleet) CreateTime() time.Time { return time.Unix(1000, 0) }
func (f *testFleet) Metrics() *fleetvisor.Metrics { return f.metrics }

func (f *testFleet) Status() []fleetvisor.RoleStatus {
	var rv []fleetvisor.RoleStatus
	for _, r := range f.roles {
		st, _ := f.RoleStatus(r.Name)
		rv = append(rv, st)
	}
	return rv
}

func (f *testFleet) RoleStatus(name string) (fleetvisor.RoleStatus, error) {
	for _, r := range f.roles {
		if r.Name != name {
			continue
		}
		st := fleetvisor.RoleStatus{Name: r.Name, Command: r.Command}
		if h, ok := f.handles[name]; ok {
			st.Spawned = true
			st.State = h.State()
			st.LastRecord = h.log.LastId()
		}
		return st, nil
	}
	return fleetvisor.RoleStatus{}, fleetvisor.ErrNoSuchRole
}

func (f *testFleet) Handle(name string) (fleetvisor.Handle, error) {
	if h, ok := f.handles[name]; ok {
		return h, nil
	}
	return nil, fleetvisor.ErrNoSuchRole
}

func TestHealth(t *testing.T) {
	Convey("Given a fleet behind a handler", t, func() {
		f := newTestFleet()
		srv := httptest.NewServer(NewHandler(f))
		defer srv.Close()
		c := NewClient(nil, srv.URL)
		ctx := context.Background()

		Convey("Any path reports OK while running", func() {
			for _, p := range []string{"/", "/healthz", "/some/deep/path"} {
				res, e := http.Get(srv.URL + p)
				So(e, ShouldBeNil)
				So(res.StatusCode, ShouldEqual, http.StatusOK)
				res.Body.Close()
			}
			ok, e := c.Healthy(ctx)
			So(e, ShouldBeNil)
			So(ok, ShouldBeTrue)
		})

		Convey("Shutting down is unhealthy", func() {
			f.phase = fleetvisor.PhaseShuttingDown
			ok, e := c.Healthy(ctx)
			So(e, ShouldBeNil)
			So(ok, ShouldBeFalse)
		})

		Convey("Non-GET methods are refused", func() {
			res, e := http.Post(srv.URL+"/", "text/plain", nil)
			So(e, ShouldBeNil)
			So(res.StatusCode, ShouldEqual, http.StatusMethodNotAllowed)
			res.Body.Close()
		})
	})
}

func TestStatusApi(t *testing.T) {
	Convey("Given a fleet behind a handler", t, func() {
		f := newTestFleet()
		srv := httptest.NewServer(NewHandler(f))
		defer srv.Close()
		c := NewClient(nil, srv.URL)
		ctx := context.Background()

		Convey("Status lists every role in order", func() {
			info, e := c.Status(ctx)
			So(e, ShouldBeNil)
			So(info.RunID, ShouldEqual, "run-1")
			So(info.Phase, ShouldEqual, "running")
			So(info.Healthy, ShouldBeTrue)
			So(len(info.Roles), ShouldEqual, 2)
			So(info.Roles[0].Name, ShouldEqual, "api")
			So(info.Roles[0].State, ShouldEqual, "running")
			So(info.Roles[1].State, ShouldEqual, "pending")
		})

		Convey("Unknown roles are not found", func() {
			_, e := c.Role(ctx, "nope")
			So(e, ShouldNotBeNil)
			re, ok := e.(*Error)
			So(ok, ShouldBeTrue)
			So(re.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Logs are returned after the given id", func() {
			log := f.handles["api"].log
			fmt.Fprintf(log, "one\ntwo\nthree\n")
			li, e := c.Log(ctx, "api", 0, 0)
			So(e, ShouldBeNil)
			So(len(li.Records), ShouldEqual, 3)
			So(li.Last, ShouldEqual, 3)

			li, e = c.Log(ctx, "api", 2, 0)
			So(e, ShouldBeNil)
			So(len(li.Records), ShouldEqual, 1)
			So(li.Records[0].Text, ShouldEqual, "three")

			li, e = c.Log(ctx, "api", 3, 0)
			So(e, ShouldBeNil)
			So(len(li.Records), ShouldEqual, 0)
			So(li.Last, ShouldEqual, 3)
		})

		Convey("A waiting log request sees new output", func() {
			go func() {
				time.Sleep(50 * time.Millisecond)
				fmt.Fprintf(f.handles["api"].log, "late\n")
			}()
			li, e := c.Log(ctx, "api", 0, 5*time.Second)
			So(e, ShouldBeNil)
			So(len(li.Records), ShouldEqual, 1)
			So(li.Records[0].Text, ShouldEqual, "late")
		})

		Convey("Roles not yet started have an empty log", func() {
			li, e := c.Log(ctx, "worker", 0, 0)
			So(e, ShouldBeNil)
			So(len(li.Records), ShouldEqual, 0)
		})

		Convey("Metrics are exposed", func() {
			res, e := http.Get(srv.URL + ApiPrefix + "/metrics")
			So(e, ShouldBeNil)
			So(res.StatusCode, ShouldEqual, http.StatusOK)
			res.Body.Close()
		})
	})
}

func TestAuth(t *testing.T) {
	Convey("Given a handler requiring auth", t, func() {
		hash, e := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
		So(e, ShouldBeNil)
		h := NewHandler(newTestFleet())
		h.SetAuth("admin", hash)
		srv := httptest.NewServer(h)
		defer srv.Close()
		ctx := context.Background()

		Convey("Missing credentials are refused", func() {
			c := NewClient(nil, srv.URL)
			_, e := c.Status(ctx)
			So(e, ShouldNotBeNil)
			So(e.(*Error).Code, ShouldEqual, http.StatusUnauthorized)
		})

		Convey("Wrong passwords are refused", func() {
			c := NewClient(nil, srv.URL)
			c.SetAuth("admin", "guess")
			_, e := c.Status(ctx)
			So(e, ShouldNotBeNil)
		})

		Convey("Good credentials work", func() {
			c := NewClient(nil, srv.URL)
			c.SetAuth("admin", "secret")
			info, e := c.Status(ctx)
			So(e, ShouldBeNil)
			So(info.Healthy, ShouldBeTrue)
		})

		Convey("Health needs no credentials", func() {
			c := NewClient(nil, srv.URL)
			ok, e := c.Healthy(ctx)
			So(e, ShouldBeNil)
			So(ok, ShouldBeTrue)
		})
	})
}

func TestServer(t *testing.T) {
	Convey("Serving stops cleanly when the context ends", t, func() {
		l, e := net.Listen("tcp", "127.0.0.1:0")
		So(e, ShouldBeNil)
		s := NewServer(l.Addr().String(), NewHandler(newTestFleet()))
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- s.ServeListener(ctx, l)
		}()

		c := NewClient(nil, l.Addr().String())
		ok, e := c.Healthy(context.Background())
		So(e, ShouldBeNil)
		So(ok, ShouldBeTrue)

		cancel()
		select {
		case e = <-done:
			So(e, ShouldBeNil)
		case <-time.After(10 * time.Second):
			So("timeout", ShouldBeNil)
		}
	})
}

func TestServerEndsLongPolls(t *testing.T) {
	Convey("A log request waiting for output ends with the server", t, func() {
		l, e := net.Listen("tcp", "127.0.0.1:0")
		So(e, ShouldBeNil)
		f := newTestFleet()
		s := NewServer(l.Addr().String(), NewHandler(f))
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- s.ServeListener(ctx, l)
		}()

		c := NewClient(nil, l.Addr().String())
		polled := make(chan struct{})
		go func() {
			defer close(polled)
			c.Log(context.Background(), "api", 0, time.Minute)
		}()
		// Give the request time to reach the handler.
		time.Sleep(100 * time.Millisecond)

		start := time.Now()
		cancel()
		select {
		case e = <-done:
			So(e, ShouldBeNil)
		case <-time.After(10 * time.Second):
			So("timeout", ShouldBeNil)
		}
		So(time.Since(start), ShouldBeLessThan, 3*time.Second)

		select {
		case <-polled:
		case <-time.After(5 * time.Second):
			So("poll still waiting", ShouldBeNil)
		}
	})
}
