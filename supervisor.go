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
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultSettle is how long workers get to crash on their own before
	// we look at them again.
	DefaultSettle = 3 * time.Second

	// DefaultWatchPeriod is a "prime" number of milliseconds, to ensure
	// a more or less even distribution of clock events.
	DefaultWatchPeriod = 587 * time.Millisecond
)

// Supervisor starts a LaunchPlan's fleet, watches it, and tears it down.
// A Supervisor is used once: it can be started and shut down, but not
// restarted.
type Supervisor struct {
	plan        LaunchPlan
	spawner     Spawner
	checker     *ReadinessChecker
	logger      *logrus.Entry
	output      io.Writer
	metrics     *Metrics
	settle      time.Duration
	watchPeriod time.Duration
	stopTime    time.Duration
	runID       string
	createTime  time.Time

	phase   phaseCell
	started atomic.Bool

	// Canceled by Shutdown, so that it can stop a Start or Run that is
	// still in progress.
	stopCtx context.Context
	stop    context.CancelFunc

	// The fleet is only ever added to by the coordinating goroutine (and
	// its worker-start helpers); everyone else reads snapshots.
	fleet  []*member
	byName map[string]*member
	mx     sync.RWMutex

	outcome      Outcome
	shutdownOnce sync.Once
	flushLock    sync.Mutex
}

type member struct {
	h       Handle
	flushed int64 // last record id written out, under flushLock
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithSpawner replaces the process spawner.
func WithSpawner(sp Spawner) Option {
	return func(s *Supervisor) {
		s.spawner = sp
	}
}

// WithChecker replaces the readiness checker.
func WithChecker(c *ReadinessChecker) Option {
	return func(s *Supervisor) {
		s.checker = c
	}
}

// WithLogger sets the logger for supervisor events.
func WithLogger(l *logrus.Entry) Option {
	return func(s *Supervisor) {
		s.logger = l
	}
}

// WithOutput sets where captured process output is written when it is
// flushed.  nil disables flushing, which makes sense when output is
// already being forwarded live.
func WithOutput(w io.Writer) Option {
	return func(s *Supervisor) {
		s.output = w
	}
}

// WithMetrics sets the metrics collectors.
func WithMetrics(m *Metrics) Option {
	return func(s *Supervisor) {
		s.metrics = m
	}
}

// WithSettle sets the settle window.
func WithSettle(d time.Duration) Option {
	return func(s *Supervisor) {
		s.settle = d
	}
}

// WithWatchPeriod sets how often running processes are checked.
func WithWatchPeriod(d time.Duration) Option {
	return func(s *Supervisor) {
		s.watchPeriod = d
	}
}

// WithStopTime sets how long a process gets to exit after SIGTERM before
// it is killed.
func WithStopTime(d time.Duration) Option {
	return func(s *Supervisor) {
		s.stopTime = d
	}
}

// New returns a Supervisor for the plan.  The plan is validated and
// copied; later changes to it by the caller have no effect.
func New(plan LaunchPlan, opts ...Option) (*Supervisor, error) {
	if e := plan.Validate(); e != nil {
		return nil, e
	}
	s := &Supervisor{
		plan:        plan.clone(),
		output:      os.Stderr,
		settle:      DefaultSettle,
		watchPeriod: DefaultWatchPeriod,
		stopTime:    DefaultStopTime,
		runID:       uuid.NewString(),
		createTime:  time.Now(),
		byName:      make(map[string]*member),
	}
	s.stopCtx, s.stop = context.WithCancel(context.Background())
	for _, o := range opts {
		o(s)
	}
	if s.logger == nil {
		s.logger = logrus.NewEntry(logrus.StandardLogger())
	}
	s.logger = s.logger.WithField("run", s.runID[:8])
	if s.spawner == nil {
		s.spawner = &ExecSpawner{}
	}
	if s.checker == nil {
		s.checker = NewReadinessChecker()
		s.checker.StopTime = s.stopTime
		s.checker.Logger = s.logger
		s.checker.Metrics = s.metrics
	}
	if s.watchPeriod <= 0 {
		s.watchPeriod = DefaultWatchPeriod
	}
	s.metrics.setPhase(PhaseIdle)
	return s, nil
}

// Phase returns the current phase.  It is safe to call from anywhere.
func (s *Supervisor) Phase() Phase {
	return s.phase.load()
}

// RunID identifies this supervisor instance.
func (s *Supervisor) RunID() string {
	return s.runID
}

// CreateTime returns when the supervisor was created.
func (s *Supervisor) CreateTime() time.Time {
	return s.createTime
}

// Plan returns a copy of the plan being run.
func (s *Supervisor) Plan() LaunchPlan {
	return s.plan.clone()
}

// Metrics returns the metrics collectors, which may be nil.
func (s *Supervisor) Metrics() *Metrics {
	return s.metrics
}

// Outcome returns the reason for shutdown, once there is one.
func (s *Supervisor) Outcome() Outcome {
	s.mx.RLock()
	defer s.mx.RUnlock()
	return s.outcome
}

func (s *Supervisor) setPhase(p Phase) bool {
	old, ok := s.phase.advance(p)
	if ok {
		s.logger.WithField("phase", p.String()).Infof("Phase %s -> %s", old, p)
		s.metrics.setPhase(p)
	}
	return ok
}

// members returns a snapshot of the fleet, in startup order.
func (s *Supervisor) members() []*member {
	s.mx.RLock()
	defer s.mx.RUnlock()
	return append([]*member(nil), s.fleet...)
}

// withStop returns a context that is also canceled by Shutdown.
func (s *Supervisor) withStop(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	release := context.AfterFunc(s.stopCtx, cancel)
	return ctx, func() {
		release()
		cancel()
	}
}

// Handles returns a snapshot of every process started so far, in startup
// order.
func (s *Supervisor) Handles() []Handle {
	ms := s.members()
	rv := make([]Handle, 0, len(ms))
	for _, m := range ms {
		rv = append(rv, m.h)
	}
	return rv
}

// Handle returns the process for the named role, if it has been started.
func (s *Supervisor) Handle(name string) (Handle, error) {
	s.mx.RLock()
	defer s.mx.RUnlock()
	if m, ok := s.byName[name]; ok {
		return m.h, nil
	}
	return nil, ErrNoSuchRole
}

func (s *Supervisor) spawn(ctx context.Context, r Role) (Handle, error) {
	if e := ctx.Err(); e != nil {
		return nil, e
	}
	log := s.logger.WithField("role", r.Name)
	log.Infof("Starting %s", r.Name)
	h, e := s.spawner.Spawn(r)
	if e != nil {
		var se *SpawnError
		if !errors.As(e, &se) {
			e = &SpawnError{Role: r.Name, Err: e}
		}
		log.Errorf("Failed to start: %v", e)
		return nil, e
	}
	// Shutdown moves the phase before it takes its snapshot of the fleet,
	// so checking under the lock means the new process is either in that
	// snapshot or stopped right here.
	s.mx.Lock()
	if s.phase.load().Terminal() {
		s.mx.Unlock()
		log.Warnf("Shutting down, stopping %s", r.Name)
		s.stopHandle(h)
		return nil, ErrShutdown
	}
	m := &member{h: h}
	s.fleet = append(s.fleet, m)
	s.byName[r.Name] = m
	s.mx.Unlock()
	return h, nil
}

// awaitDaemon waits for a daemon-model launch command to exit.  A clean
// exit means the daemon is up.
func (s *Supervisor) awaitDaemon(ctx context.Context, h Handle) error {
	code, e := h.Wait(ctx)
	if e != nil {
		return e
	}
	s.flush(h.Role().Name)
	if code != 0 {
		return fmt.Errorf("%s exited with status %d", h.Role().Name, code)
	}
	s.logger.WithField("role", h.Role().Name).Info("Daemonized")
	return nil
}

func (s *Supervisor) startPrimary(ctx context.Context) error {
	if !s.setPhase(PhaseStartingPrimary) {
		return ErrShutdown
	}
	p := s.plan.Primary
	h, e := s.spawn(ctx, p)
	if e != nil {
		return &PrimaryStartError{Role: p.Name, Err: e}
	}
	if p.BlocksUntilDaemonized {
		e = s.awaitDaemon(ctx, h)
	}
	// A daemon may still need a moment after forking before it answers.
	if url := p.ProbeURL(); e == nil && url != "" {
		e = s.checker.PollUntilReady(ctx, url, h)
	}
	if e != nil {
		return &PrimaryStartError{Role: p.Name, Err: e}
	}
	return nil
}

func (s *Supervisor) startWorker(ctx context.Context, w Role) error {
	h, e := s.spawn(ctx, w)
	if e != nil {
		return e
	}
	if w.BlocksUntilDaemonized {
		return s.awaitDaemon(ctx, h)
	}
	return nil
}

func (s *Supervisor) startWorkers(ctx context.Context) error {
	if !s.setPhase(PhaseStartingWorkers) {
		return ErrShutdown
	}

	if !s.plan.ParallelWorkerStart {
		for _, w := range s.plan.Workers {
			if e := s.startWorker(ctx, w); e != nil {
				return &WorkerStartError{Role: w.Name, Err: e}
			}
		}
		return nil
	}

	// The first failure cancels everybody else; errgroup reports only
	// that first one.
	g, gctx := errgroup.WithContext(ctx)
	for _, w := range s.plan.Workers {
		w := w
		g.Go(func() error {
			if e := s.startWorker(gctx, w); e != nil {
				return &WorkerStartError{Role: w.Name, Err: e}
			}
			return nil
		})
	}
	return g.Wait()
}

// checkReady polls every worker that has a readiness URL, and returns
// every failure rather than just the first.
func (s *Supervisor) checkReady(ctx context.Context) map[string]error {
	failed := make(map[string]error)
	var lock sync.Mutex
	var wg sync.WaitGroup

	poll := func(w Role) {
		h, e := s.Handle(w.Name)
		if e == nil {
			e = s.checker.PollUntilReady(ctx, w.ProbeURL(), h)
		}
		if e != nil && ctx.Err() == nil {
			lock.Lock()
			failed[w.Name] = e
			lock.Unlock()
		}
	}

	for _, w := range s.plan.Workers {
		if w.ProbeURL() == "" {
			continue
		}
		if !s.plan.ParallelWorkerStart {
			poll(w)
			continue
		}
		wg.Add(1)
		go func(w Role) {
			defer wg.Done()
			poll(w)
		}(w)
	}
	wg.Wait()
	return failed
}

func (s *Supervisor) settleFleet(ctx context.Context) error {
	if !s.setPhase(PhaseSettling) {
		return ErrShutdown
	}

	// Give them some time to start up...
	timer := time.NewTimer(s.settle)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
	}

	failed := s.checkReady(ctx)
	if e := ctx.Err(); e != nil {
		return e
	}

	// Check if any have outright failed to start up (syntax errors, etc).
	// A daemon that exited cleanly did what it was supposed to.
	for _, m := range s.members() {
		r := m.h.Role()
		code, exited := m.h.Poll()
		if !exited || (!r.Polled() && code == 0) {
			continue
		}
		s.logger.WithField("role", r.Name).Errorf("%s exited uncleanly with %d", r.Name, code)
		if _, ok := failed[r.Name]; !ok {
			failed[r.Name] = fmt.Errorf("%s exited with status %d", r.Name, code)
		}
	}
	if len(failed) == 0 {
		return nil
	}

	agg := &AggregateStartupFailure{Errs: failed}
	for _, r := range s.plan.Roles() {
		if _, ok := failed[r.Name]; ok {
			agg.FailedRoles = append(agg.FailedRoles, r.Name)
		}
	}
	return agg
}

// Start brings the fleet up: the primary, then the workers, then the
// settle check.  It returns nil once the fleet is running.  On any failure
// every process already started is terminated before Start returns, and
// the error says what went wrong.  Canceling ctx, or calling Shutdown,
// aborts startup the same way.
func (s *Supervisor) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	ctx, cancel := s.withStop(ctx)
	defer cancel()

	e := s.startPrimary(ctx)
	if e == nil {
		e = s.startWorkers(ctx)
	}
	if e == nil {
		e = s.settleFleet(ctx)
	}
	if e == nil && !s.setPhase(PhaseRunning) {
		e = ErrShutdown
	}
	if e != nil {
		o := outcomeOf(ctx, e)
		if o.Cause == CauseFatal {
			s.setPhase(PhaseFailed)
		}
		s.Shutdown(o)
		return e
	}

	s.logger.Info("Fleet started")
	return nil
}

func outcomeOf(ctx context.Context, e error) Outcome {
	if ctx.Err() != nil {
		return Outcome{Cause: CauseInterrupt}
	}
	return Outcome{Cause: CauseFatal, Err: e}
}

// Watch checks every long running process each watch period, until ctx
// is done (in which case it returns nil) or one of them exits.  The first
// exit moves the supervisor to ShuttingDown and is returned as an
// *UnexpectedExit.
func (s *Supervisor) Watch(ctx context.Context) error {
	ticker := time.NewTicker(s.watchPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		for _, m := range s.members() {
			r := m.h.Role()
			if !r.Polled() {
				// Expected to be gone.
				continue
			}
			if code, exited := m.h.Poll(); exited {
				s.logger.WithField("role", r.Name).Errorf("%s exited with %d", r.Name, code)
				s.setPhase(PhaseShuttingDown)
				return &UnexpectedExit{Role: r.Name, ExitCode: code}
			}
		}
	}
}

// Run is the whole life of the fleet.  It starts it, and once it is
// running calls serve (if not nil) while watching every process.  It
// returns when startup fails, when a process exits, when serve fails, or
// when ctx is canceled; in every case the fleet has been shut down by
// then.  Canceling ctx is how the operator asks us to stop.
func (s *Supervisor) Run(ctx context.Context, serve func(context.Context) error) Outcome {
	start := time.Now()
	if e := s.Start(ctx); e != nil {
		return s.Outcome()
	}
	s.metrics.startupDone(time.Since(start).Seconds())

	ctx, stop := s.withStop(ctx)
	defer stop()
	rctx, cancel := context.WithCancel(ctx)
	errs := make(chan error, 2)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		errs <- s.Watch(rctx)
	}()
	if serve != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e := serve(rctx)
			if e == nil && rctx.Err() == nil {
				e = errors.New("health server stopped")
			}
			errs <- e
		}()
	}

	var o Outcome
	select {
	case <-ctx.Done():
		o = Outcome{Cause: CauseInterrupt}
	case e := <-errs:
		o = outcomeOf(ctx, e)
	}
	cancel()
	wg.Wait()
	s.Shutdown(o)
	return s.Outcome()
}

// Shutdown terminates every process, workers first in reverse startup
// order and the primary last.  It is best effort: a process that will not
// die does not keep the others alive.  Any captured output not yet shown
// is flushed afterwards.  Only the first call does anything.
func (s *Supervisor) Shutdown(o Outcome) {
	s.shutdownOnce.Do(func() {
		s.stop()
		s.setPhase(PhaseShuttingDown)
		s.mx.Lock()
		s.outcome = o
		s.mx.Unlock()

		ms := s.members()

		s.logger.Infof("Told to quit because %s", o)
		for i := len(ms) - 1; i >= 0; i-- {
			h := ms[i].h
			r := h.Role()
			log := s.logger.WithField("role", r.Name)
			if _, exited := h.Poll(); exited {
				log.Infof("%s was already dead", r.Name)
			} else {
				log.Infof("Terminating %s", r.Name)
			}
			e := s.stopHandle(h)
			if e != nil {
				log.Warnf("Failed terminating %s: %v", r.Name, e)
			}
			s.metrics.termination(r.Name, e)
			s.metrics.processExit(r.Name, h.State())
		}
		for _, m := range ms {
			s.flushMember(m)
		}
		s.logger.Info("Fleet shut down")
	})
}

// stopHandle terminates h.  For a daemon the launcher is long gone, but
// what it forked off may still be running in its process group.
func (s *Supervisor) stopHandle(h Handle) error {
	if gt, ok := h.(groupTerminator); ok && !h.Role().Polled() {
		return gt.TerminateGroup(s.stopTime)
	}
	return h.Terminate(s.stopTime)
}

func (s *Supervisor) flush(name string) {
	s.mx.RLock()
	m := s.byName[name]
	s.mx.RUnlock()
	if m != nil {
		s.flushMember(m)
	}
}

// flushMember writes any output the operator hasn't seen yet, so that the
// reason for a failure can be found without going anywhere else.
func (s *Supervisor) flushMember(m *member) {
	if s.output == nil {
		return
	}
	s.flushLock.Lock()
	defer s.flushLock.Unlock()
	recs, last := m.h.Log().GetRecords(m.flushed)
	if len(recs) == 0 {
		return
	}
	name := m.h.Role().Name
	pw := &PrefixWriter{Prefix: "[" + name + "] ", W: s.output}
	fmt.Fprintf(s.output, "-----\n%s output:\n", name)
	for _, r := range recs {
		pw.Write([]byte(r.Text + "\n"))
	}
	m.flushed = last
}
