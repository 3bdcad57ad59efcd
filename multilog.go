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
	"io"
	"sync"
)

// LineWriter breaks a byte stream up into lines, and delivers each whole
// line to every registered sink.  Both stdout and stderr of a process are
// pointed at the same LineWriter, which is how their output ends up merged.
// A partial trailing line is held until it is completed, or until Close.
type LineWriter struct {
	sinks   []io.Writer
	partial []byte
	lock    sync.Mutex
}

// Write implements io.Writer.
func (l *LineWriter) Write(b []byte) (int, error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.partial = append(l.partial, b...)
	for {
		idx := bytes.IndexByte(l.partial, '\n')
		if idx < 0 {
			break
		}
		l.deliver(l.partial[:idx+1])
		l.partial = l.partial[idx+1:]
	}
	return len(b), nil
}

// Call with lock held.
func (l *LineWriter) deliver(line []byte) {
	for _, s := range l.sinks {
		s.Write(line)
	}
}

// Close flushes any partial line.  The writer may still be used afterwards.
func (l *LineWriter) Close() error {
	l.lock.Lock()
	defer l.lock.Unlock()
	if len(l.partial) != 0 {
		l.deliver(append(l.partial, '\n'))
		l.partial = nil
	}
	return nil
}

// AddSink adds a destination for lines.  A sink can only be added once.
func (l *LineWriter) AddSink(w io.Writer) {
	l.lock.Lock()
	defer l.lock.Unlock()
	for _, x := range l.sinks {
		if x == w {
			return
		}
	}
	l.sinks = append(l.sinks, w)
}

// DelSink removes a destination.
func (l *LineWriter) DelSink(w io.Writer) {
	l.lock.Lock()
	defer l.lock.Unlock()
	for i, x := range l.sinks {
		if x == w {
			l.sinks = append(l.sinks[:i], l.sinks[i+1:]...)
			break
		}
	}
}

func NewLineWriter(sinks ...io.Writer) *LineWriter {
	l := &LineWriter{}
	for _, s := range sinks {
		l.AddSink(s)
	}
	return l
}

// PrefixWriter writes each line it is given to W, prefixed.  It expects
// to be handed whole lines, as a LineWriter sink does.
type PrefixWriter struct {
	Prefix string
	W      io.Writer
	lock   sync.Mutex
}

func (p *PrefixWriter) Write(b []byte) (int, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	buf := make([]byte, 0, len(p.Prefix)+len(b))
	buf = append(buf, p.Prefix...)
	buf = append(buf, b...)
	if _, e := p.W.Write(buf); e != nil {
		return 0, e
	}
	return len(b), nil
}
