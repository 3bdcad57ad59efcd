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
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultMaxAttempts = 10
	DefaultInterval    = 2 * time.Second
	DefaultTimeout     = 5 * time.Second
	DefaultStopTime    = 10 * time.Second
)

// ReadinessChecker polls a role's HTTP endpoint until it answers.  It only
// establishes that the process accepts connections; the status code of
// the response is ignored.
type ReadinessChecker struct {
	MaxAttempts int
	Interval    time.Duration // Wait between failed attempts
	Timeout     time.Duration // Per attempt
	StopTime    time.Duration // Grace for terminating a process that never came up
	Client      *http.Client
	Logger      *logrus.Entry
	Metrics     *Metrics
}

// NewReadinessChecker returns a checker using the default budget of 10
// attempts, 2 seconds apart, each with a 5 second timeout.
func NewReadinessChecker() *ReadinessChecker {
	return &ReadinessChecker{
		MaxAttempts: DefaultMaxAttempts,
		Interval:    DefaultInterval,
		Timeout:     DefaultTimeout,
		StopTime:    DefaultStopTime,
		Client:      &http.Client{},
		Logger:      logrus.NewEntry(logrus.StandardLogger()),
	}
}

func (c *ReadinessChecker) probe(ctx context.Context, url string) error {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()
	req, e := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if e != nil {
		return e
	}
	res, e := c.Client.Do(req)
	if e != nil {
		return e
	}
	// We don't care what the status code is, just that it's responding.
	io.Copy(io.Discard, io.LimitReader(res.Body, 64*1024))
	res.Body.Close()
	return nil
}

// PollUntilReady probes url until it gets any HTTP response.  If the retry
// budget runs out, h is terminated and a *ReadinessError is returned.  If
// ctx is canceled, polling stops at once and ctx.Err() is returned; h is
// left alone in that case, as whoever canceled us will be shutting it down.
func (c *ReadinessChecker) PollUntilReady(ctx context.Context, url string, h Handle) error {
	role := h.Role().Name
	log := c.Logger.WithFields(logrus.Fields{"role": role, "url": url})
	attempts := c.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var last error
	for i := 1; i <= attempts; i++ {
		if e := ctx.Err(); e != nil {
			return e
		}
		last = c.probe(ctx, url)
		c.Metrics.readinessAttempt(role, last == nil)
		if last == nil {
			log.WithField("attempt", i).Info("Role is accepting connections")
			return nil
		}
		if e := ctx.Err(); e != nil {
			return e
		}
		log.WithField("attempt", i).Debugf("Not ready yet: %v", last)
		if i == attempts {
			break
		}
		timer := time.NewTimer(c.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	log.Warnf("Never started after %d attempts", attempts)
	if e := h.Terminate(c.StopTime); e != nil {
		log.Warnf("Failed terminating: %v", e)
	}
	return &ReadinessError{
		Kind:     NeverStarted,
		Role:     role,
		URL:      url,
		Attempts: attempts,
		Err:      last,
	}
}
