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
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for one Supervisor.  They live in
// a private registry so that several supervisors (as in tests) do not
// collide.  A nil *Metrics is valid and records nothing.
type Metrics struct {
	phase     *prometheus.GaugeVec
	exits     *prometheus.CounterVec
	probes    *prometheus.CounterVec
	terminate *prometheus.CounterVec
	startup   prometheus.Histogram

	registry *prometheus.Registry
}

// NewMetrics creates the collectors under the given namespace.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "fleetvisor"
	}
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.phase = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "phase",
			Help:      "1 for the phase the supervisor is in, 0 otherwise",
		},
		[]string{"phase"},
	)
	m.exits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "process_exits_total",
			Help:      "Process exits observed, by role and resulting state",
		},
		[]string{"role", "state"},
	)
	m.probes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readiness_probes_total",
			Help:      "Readiness probe attempts, by role and result",
		},
		[]string{"role", "result"},
	)
	m.terminate = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "terminations_total",
			Help:      "Terminations issued during shutdown, by role and result",
		},
		[]string{"role", "result"},
	)
	m.startup = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "startup_duration_seconds",
			Help:      "Time from start until the fleet was running",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 120},
		},
	)

	m.registry.MustRegister(m.phase, m.exits, m.probes, m.terminate,
		m.startup)
	return m
}

// Registry returns the registry holding our collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) setPhase(p Phase) {
	if m == nil {
		return
	}
	for _, x := range allPhases {
		v := 0.0
		if x == p {
			v = 1
		}
		m.phase.WithLabelValues(x.String()).Set(v)
	}
}

func (m *Metrics) processExit(role string, st HandleState) {
	if m == nil {
		return
	}
	m.exits.WithLabelValues(role, st.String()).Inc()
}

func (m *Metrics) readinessAttempt(role string, ok bool) {
	if m == nil {
		return
	}
	result := "ready"
	if !ok {
		result = "unreachable"
	}
	m.probes.WithLabelValues(role, result).Inc()
}

func (m *Metrics) termination(role string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.terminate.WithLabelValues(role, result).Inc()
}

func (m *Metrics) startupDone(seconds float64) {
	if m == nil {
		return
	}
	m.startup.Observe(seconds)
}
