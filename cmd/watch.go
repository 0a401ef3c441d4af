package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/stagesim/stagesim/sim"
	"github.com/stagesim/stagesim/sim/scheduler"
)

// watchCmd re-simulates a vessel file whenever it changes
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-simulate a vessel file whenever it changes and serve run metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		in, err := loadInputs()
		if err != nil {
			return err
		}
		path := settings.GetString("vessel")
		if path == "" {
			return fmt.Errorf("no vessel file given (--vessel)")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		shutdown, err := initTracing(ctx, settings.GetString("trace-exporter"), cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer shutdownTracing(shutdown)

		collector, err := scheduler.NewCollector(prometheus.NewRegistry())
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		src := newFileSource(path, in.env)
		sched, err := scheduler.New(src, in.lib, scheduler.Config{
			MinDelay: settings.GetDuration("min-delay"),
			Run:      in.run,
		}, scheduler.WithCollector(collector))
		if err != nil {
			return err
		}

		w := &watcher{
			sched:    sched,
			src:      src,
			body:     settings.GetString("body"),
			json:     settings.GetBool("json"),
			out:      cmd.OutOrStdout(),
			interval: settings.GetDuration("poll"),
		}

		g, gctx := errgroup.WithContext(ctx)
		if addr := settings.GetString("metrics-addr"); addr != "" {
			g.Go(func() error { return serveMetrics(gctx, addr, collector.Handler()) })
		}
		g.Go(func() error { return w.loop(gctx) })
		logrus.Infof("[watch] watching %s", path)
		return g.Wait()
	},
}

// fileSource snapshots a vessel file and remembers the modification it last
// saw so the watch loop only requests runs when the file changes.
type fileSource struct {
	path    string
	env     sim.Environment
	modTime time.Time
	size    int64
}

func newFileSource(path string, env sim.Environment) *fileSource {
	return &fileSource{path: path, env: env}
}

// Snapshot loads the vessel afresh. Each call returns an unshared vessel.
func (f *fileSource) Snapshot() (scheduler.Snapshot, error) {
	v, err := loadVessel(f.path)
	if err != nil {
		return scheduler.Snapshot{}, err
	}
	return scheduler.Snapshot{Vessel: v, Atmosphere: f.env}, nil
}

// changed reports whether the file differs from the last observed state.
func (f *fileSource) changed() (bool, error) {
	info, err := os.Stat(f.path)
	if err != nil {
		return false, err
	}
	if info.ModTime().Equal(f.modTime) && info.Size() == f.size {
		return false, nil
	}
	f.modTime, f.size = info.ModTime(), info.Size()
	return true, nil
}

type watcher struct {
	sched    *scheduler.Scheduler
	src      *fileSource
	body     string
	json     bool
	out      io.Writer
	interval time.Duration

	lastRun     string
	lastFailure string
}

// loop polls the file, ticks the scheduler and prints each new result until
// ctx is cancelled.
func (w *watcher) loop(ctx context.Context) error {
	if w.interval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", w.interval)
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		if err := w.step(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			w.sched.Wait()
			return nil
		case <-ticker.C:
		}
	}
}

// step runs one poll: request on change, tick, report anything new.
func (w *watcher) step(ctx context.Context) error {
	changed, err := w.src.changed()
	if err != nil {
		logrus.Warnf("[watch] stat %s: %v", w.src.path, err)
	} else if changed {
		logrus.Debugf("[watch] %s changed", w.src.path)
		w.sched.Request()
	}
	w.sched.Tick(ctx)
	return w.report()
}

func (w *watcher) report() error {
	if msg := w.sched.FailureMessage(); msg != w.lastFailure {
		w.lastFailure = msg
		if msg != "" {
			fmt.Fprintf(w.out, "simulation failed: %s\n", msg)
		}
	}
	res := w.sched.Results()
	if res == nil || res.RunID == w.lastRun {
		return nil
	}
	w.lastRun = res.RunID
	rep := newReport(res.Vessel, w.body, res.Vacuum, res.Atmosphere)
	if w.json {
		return rep.WriteJSON(w.out)
	}
	rep.WriteTable(w.out)
	fmt.Fprintf(w.out, "(run %s, %s, next run no sooner than %s)\n", res.RunID[:8], res.Duration, w.sched.Delay())
	return nil
}

// serveMetrics serves /metrics until ctx is cancelled.
func serveMetrics(ctx context.Context, addr string, h http.Handler) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logrus.Infof("[watch] serving metrics on %s/metrics", addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func init() {
	watchCmd.Flags().Duration("poll", time.Second, "How often the vessel file is checked for changes")
	watchCmd.Flags().Duration("min-delay", scheduler.DefaultMinDelay, "Minimum wait between simulation runs")
	watchCmd.Flags().String("metrics-addr", "", "Address for the Prometheus /metrics endpoint (empty disables)")
	watchCmd.Flags().String("trace-exporter", "none", "Span exporter for simulation runs (none, stdout)")
}
