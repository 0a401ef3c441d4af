// Package scheduler runs stage simulations off the caller's goroutine.
// Requests are coalesced, runs are rate-limited by an adaptive delay, and at
// most one run is in flight. Results are published atomically.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/stagesim/stagesim/sim"
)

const tracerName = "github.com/stagesim/stagesim/sim/scheduler"

// DefaultMinDelay is the shortest wait between the end of one run and the
// start of the next.
const DefaultMinDelay = 200 * time.Millisecond

// Snapshot is everything one run needs. The vessel must not alias live state.
type Snapshot struct {
	Vessel     *sim.Vessel
	Atmosphere sim.Environment
}

// Source produces a snapshot of the live vehicle. It is called synchronously
// from Tick, on the caller's goroutine.
type Source interface {
	Snapshot() (Snapshot, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func() (Snapshot, error)

// Snapshot calls f.
func (f SourceFunc) Snapshot() (Snapshot, error) {
	return f()
}

// Config groups the scheduler tunables.
type Config struct {
	MinDelay time.Duration
	Run      sim.RunConfig
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{MinDelay: DefaultMinDelay, Run: sim.DefaultRunConfig()}
}

// Validate checks the configured values.
func (c Config) Validate() error {
	if c.MinDelay < 0 {
		return fmt.Errorf("min delay must be non-negative, got %s", c.MinDelay)
	}
	if err := c.Run.Validate(); err != nil {
		return fmt.Errorf("run config: %w", err)
	}
	return nil
}

// Results is one published pair of stage arrays.
type Results struct {
	RunID      string
	Vessel     string
	Vacuum     []sim.Stage
	Atmosphere []sim.Stage
	Duration   time.Duration
	Completed  time.Time
}

// Option customises a Scheduler.
type Option func(*Scheduler)

// WithCollector records run metrics into c.
func WithCollector(c *Collector) Option {
	return func(s *Scheduler) { s.collector = c }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithTracerProvider sets the provider used for run spans. The global
// provider is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Scheduler) { s.tracer = tp.Tracer(tracerName) }
}

// Scheduler owns a vacuum and an atmosphere StageSimulator and decides when
// to run them. All methods are safe for concurrent use.
type Scheduler struct {
	src       Source
	cfg       Config
	vacuum    *sim.StageSimulator
	atmo      *sim.StageSimulator
	collector *Collector
	now       func() time.Time
	tracer    trace.Tracer

	mu         sync.Mutex
	running    bool
	requested  bool
	lastRunEnd time.Time
	delay      time.Duration
	failure    string
	done       chan struct{}

	results atomic.Pointer[Results]
}

// New creates a scheduler reading snapshots from src.
func New(src Source, lib *sim.ResourceLibrary, cfg Config, opts ...Option) (*Scheduler, error) {
	if src == nil {
		return nil, fmt.Errorf("scheduler needs a snapshot source")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Scheduler{
		src:    src,
		cfg:    cfg,
		vacuum: sim.NewStageSimulator(lib, cfg.Run),
		atmo:   sim.NewStageSimulator(lib, cfg.Run),
		now:    time.Now,
		tracer: otel.Tracer(tracerName),
		delay:  cfg.MinDelay,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Request asks for a run. Requests made while one is pending or in flight
// coalesce into a single follow-up run.
func (s *Scheduler) Request() {
	s.mu.Lock()
	coalesced := s.requested
	s.requested = true
	s.mu.Unlock()
	if coalesced {
		s.collector.incCoalesced()
	}
}

// Tick dispatches a run if one was requested, none is in flight and the
// inter-run delay has elapsed. It returns true when a run was started. The
// snapshot is taken before Tick returns; the simulation itself runs on a
// separate goroutine.
func (s *Scheduler) Tick(ctx context.Context) bool {
	s.mu.Lock()
	if !s.requested || s.running || s.now().Sub(s.lastRunEnd) < s.delay {
		s.mu.Unlock()
		return false
	}
	s.requested = false
	s.running = true
	done := make(chan struct{})
	s.done = done
	s.mu.Unlock()

	snap, err := s.src.Snapshot()
	if err != nil {
		logrus.Warnf("[scheduler] snapshot failed: %v", err)
		s.finish(nil, fmt.Errorf("snapshot: %w", err), 0)
		close(done)
		return false
	}

	go s.work(ctx, snap, done)
	return true
}

func (s *Scheduler) work(ctx context.Context, snap Snapshot, done chan struct{}) {
	defer close(done)
	runID := uuid.New().String()
	_, span := s.tracer.Start(context.WithoutCancel(ctx), "stagesim.run",
		trace.WithAttributes(attribute.String("run.id", runID)))
	defer span.End()

	start := s.now()
	res, err := s.simulate(snap)
	elapsed := s.now().Sub(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(
			attribute.String("vessel", res.Vessel),
			attribute.Int("stages", len(res.Vacuum)),
		)
	}
	if res != nil {
		res.RunID = runID
	}
	s.finish(res, err, elapsed)
}

// simulate runs both environments. A panic is converted to an error so the
// scheduler stays usable.
func (s *Scheduler) simulate(snap Snapshot) (res *Results, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("simulation panicked: %v", r)
		}
	}()
	if snap.Vessel == nil {
		return nil, fmt.Errorf("snapshot has no vessel")
	}
	vac, err := s.vacuum.Run(snap.Vessel, snap.Atmosphere.Vacuum())
	if err != nil {
		return nil, fmt.Errorf("vacuum run: %w", err)
	}
	atm, err := s.atmo.Run(snap.Vessel, snap.Atmosphere)
	if err != nil {
		return nil, fmt.Errorf("atmosphere run: %w", err)
	}
	return &Results{Vessel: snap.Vessel.Name, Vacuum: vac, Atmosphere: atm}, nil
}

// finish publishes a result or records a failure and clears the running flag.
func (s *Scheduler) finish(res *Results, err error, elapsed time.Duration) {
	s.mu.Lock()
	s.running = false
	s.lastRunEnd = s.now()
	s.delay = max(s.cfg.MinDelay, 2*elapsed)
	if err != nil {
		s.failure = err.Error()
	} else {
		s.failure = ""
		res.Duration = elapsed
		res.Completed = s.lastRunEnd
		s.results.Store(res)
	}
	s.mu.Unlock()

	if err != nil {
		logrus.Warnf("[scheduler] run failed, keeping previous results: %v", err)
		s.collector.observeRun(outcomeFailed, elapsed, nil)
		return
	}
	logrus.Debugf("[scheduler] run %s: %s simulated in %s", res.RunID, res.Vessel, elapsed)
	s.collector.observeRun(outcomeOK, elapsed, res)
}

// Wait blocks until the in-flight run, if any, has finished.
func (s *Scheduler) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Results returns the last published results, or nil before the first
// successful run.
func (s *Scheduler) Results() *Results {
	return s.results.Load()
}

// Ready reports whether any results have been published.
func (s *Scheduler) Ready() bool {
	return s.results.Load() != nil
}

// LastStageVacuum returns the stage that fires first in vacuum.
func (s *Scheduler) LastStageVacuum() (sim.Stage, bool) {
	r := s.results.Load()
	if r == nil || len(r.Vacuum) == 0 {
		return sim.Stage{}, false
	}
	return r.Vacuum[len(r.Vacuum)-1], true
}

// LastStageAtmosphere returns the stage that fires first in atmosphere.
func (s *Scheduler) LastStageAtmosphere() (sim.Stage, bool) {
	r := s.results.Load()
	if r == nil || len(r.Atmosphere) == 0 {
		return sim.Stage{}, false
	}
	return r.Atmosphere[len(r.Atmosphere)-1], true
}

// FailureMessage returns the error of the last run, or "" if it succeeded.
func (s *Scheduler) FailureMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure
}

// Delay returns the current minimum wait between runs.
func (s *Scheduler) Delay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delay
}

// Running reports whether a run is in flight.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Requested reports whether a run is pending.
func (s *Scheduler) Requested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requested
}
