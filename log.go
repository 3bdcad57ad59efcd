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
	"strings"
	"sync"
	"time"
)

// LogRecord is one line of captured process output.
type LogRecord struct {
	Id   int64     `json:"id,string"`
	Time time.Time `json:"time"`
	Text string    `json:"text"`
}

// OutputLog holds every line of output a process has produced.  Unlike a
// ring buffer nothing is ever dropped; when a process fails, all of what it
// said is needed to figure out why.
type OutputLog struct {
	records []LogRecord
	id      int64
	cvs     map[*sync.Cond]bool
	mx      sync.Mutex
}

func (log *OutputLog) lock() {
	log.mx.Lock()
}

func (log *OutputLog) unlock() {
	log.mx.Unlock()
}

// Write implements io.Writer.  Input is expected to be whole lines; a
// trailing newline is optional.
func (log *OutputLog) Write(b []byte) (int, error) {
	str := strings.TrimSuffix(string(b), "\n")
	log.lock()
	for _, line := range strings.Split(str, "\n") {
		log.append(line)
	}
	log.wakeUp()
	log.unlock()
	return len(b), nil
}

// Call with lock held.
func (log *OutputLog) append(line string) {
	log.id++
	log.records = append(log.records, LogRecord{
		Id:   log.id,
		Time: time.Now(),
		Text: line,
	})
}

// Call with lock held.
func (log *OutputLog) wakeUp() {
	for cv := range log.cvs {
		cv.Broadcast()
	}
}

// GetRecords returns the records newer than last, as well as the id of the
// most recent record.  Passing 0 returns everything.  If nothing is newer
// than last, nil is returned along with last.
func (log *OutputLog) GetRecords(last int64) ([]LogRecord, int64) {
	log.lock()
	defer log.unlock()
	if log.id == last {
		return nil, last
	}
	// Ids are dense and start at 1, so the index is known.
	start := int(last)
	if start < 0 || start > len(log.records) {
		start = 0
	}
	recs := make([]LogRecord, len(log.records)-start)
	copy(recs, log.records[start:])
	return recs, log.id
}

// LastId returns the id of the most recent record, or 0 if empty.
func (log *OutputLog) LastId() int64 {
	log.lock()
	defer log.unlock()
	return log.id
}

// Bytes returns all output, newline terminated.
func (log *OutputLog) Bytes() []byte {
	log.lock()
	defer log.unlock()
	var sb strings.Builder
	for _, r := range log.records {
		sb.WriteString(r.Text)
		sb.WriteByte('\n')
	}
	return []byte(sb.String())
}

// Watch waits until a record newer than last shows up, or until expire
// passes.  It returns the latest id.  An expire of zero does not wait.
func (log *OutputLog) Watch(last int64, expire time.Duration) int64 {
	return log.WatchContext(context.Background(), last, expire)
}

// WatchContext is like Watch, but also stops waiting when ctx is done.
func (log *OutputLog) WatchContext(ctx context.Context, last int64, expire time.Duration) int64 {
	expired := false
	cv := sync.NewCond(&log.mx)
	wake := func() {
		log.lock()
		expired = true
		cv.Broadcast()
		log.unlock()
	}
	if expire <= 0 || ctx.Err() != nil {
		expired = true
	} else {
		timer := time.AfterFunc(expire, wake)
		defer timer.Stop()
		stop := context.AfterFunc(ctx, wake)
		defer stop()
	}

	log.lock()
	log.cvs[cv] = true
	for log.id == last && !expired {
		cv.Wait()
	}
	delete(log.cvs, cv)
	last = log.id
	log.unlock()
	return last
}

// NewOutputLog returns an empty OutputLog.
func NewOutputLog() *OutputLog {
	return &OutputLog{cvs: make(map[*sync.Cond]bool)}
}
