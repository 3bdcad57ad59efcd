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
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestOutputLog(t *testing.T) {
	Convey("Given an empty log", t, func() {
		log := NewOutputLog()
		So(log.LastId(), ShouldEqual, 0)
		recs, last := log.GetRecords(0)
		So(recs, ShouldBeNil)
		So(last, ShouldEqual, 0)

		Convey("Lines get dense ids starting at one", func() {
			fmt.Fprintf(log, "a\nb\n")
			fmt.Fprintf(log, "c\n")
			So(log.LastId(), ShouldEqual, 3)
			recs, last := log.GetRecords(0)
			So(last, ShouldEqual, 3)
			So(len(recs), ShouldEqual, 3)
			for i, r := range recs {
				So(r.Id, ShouldEqual, int64(i+1))
			}
			So(string(log.Bytes()), ShouldEqual, "a\nb\nc\n")

			Convey("Only newer records are returned", func() {
				recs, last := log.GetRecords(1)
				So(last, ShouldEqual, 3)
				So(len(recs), ShouldEqual, 2)
				So(recs[0].Text, ShouldEqual, "b")

				recs, last = log.GetRecords(3)
				So(recs, ShouldBeNil)
				So(last, ShouldEqual, 3)
			})

			Convey("Nothing is ever dropped", func() {
				for i := 0; i < 5000; i++ {
					fmt.Fprintf(log, "line %d\n", i)
				}
				recs, _ := log.GetRecords(0)
				So(len(recs), ShouldEqual, 5003)
				So(recs[0].Text, ShouldEqual, "a")
			})
		})

		Convey("Watch returns at once with no expiry", func() {
			So(log.Watch(0, 0), ShouldEqual, 0)
		})

		Convey("Watch wakes on new output", func() {
			go func() {
				time.Sleep(20 * time.Millisecond)
				fmt.Fprintf(log, "hello\n")
			}()
			start := time.Now()
			So(log.Watch(0, 5*time.Second), ShouldEqual, 1)
			So(time.Since(start), ShouldBeLessThan, 5*time.Second)
		})

		Convey("Watch gives up when it expires", func() {
			start := time.Now()
			So(log.Watch(0, 30*time.Millisecond), ShouldEqual, 0)
			So(time.Since(start), ShouldBeGreaterThanOrEqualTo, 30*time.Millisecond)
		})

		Convey("WatchContext gives up when canceled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			go func() {
				time.Sleep(20 * time.Millisecond)
				cancel()
			}()
			start := time.Now()
			So(log.WatchContext(ctx, 0, time.Minute), ShouldEqual, 0)
			So(time.Since(start), ShouldBeLessThan, 5*time.Second)
			So(log.Watch(0, 0), ShouldEqual, 0)

			Convey("Even if already canceled", func() {
				So(log.WatchContext(ctx, 0, time.Minute), ShouldEqual, 0)
			})
		})
	})
}

func TestLineWriter(t *testing.T) {
	Convey("Given a line writer with two sinks", t, func() {
		log := NewOutputLog()
		buf := &bytes.Buffer{}
		pw := &PrefixWriter{Prefix: "[x] ", W: buf}
		lw := NewLineWriter(log, pw)

		Convey("Partial lines are held until complete", func() {
			lw.Write([]byte("hel"))
			So(log.LastId(), ShouldEqual, 0)
			lw.Write([]byte("lo\nwor"))
			So(log.LastId(), ShouldEqual, 1)
			So(buf.String(), ShouldEqual, "[x] hello\n")

			Convey("And flushed on close", func() {
				lw.Close()
				So(log.LastId(), ShouldEqual, 2)
				So(buf.String(), ShouldEqual, "[x] hello\n[x] wor\n")
			})
		})

		Convey("Removed sinks see nothing more", func() {
			lw.DelSink(pw)
			lw.Write([]byte("one\n"))
			So(buf.Len(), ShouldEqual, 0)
			So(log.LastId(), ShouldEqual, 1)
		})

		Convey("Sinks are only added once", func() {
			lw.AddSink(pw)
			lw.Write([]byte("one\n"))
			So(buf.String(), ShouldEqual, "[x] one\n")
		})
	})
}
