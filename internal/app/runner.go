package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	"github.com/Seunghyun-Min/nextjs-recoru/internal/batch"
	"github.com/Seunghyun-Min/nextjs-recoru/internal/config"
	"github.com/Seunghyun-Min/nextjs-recoru/internal/history"
	"github.com/Seunghyun-Min/nextjs-recoru/internal/notify"
	"github.com/Seunghyun-Min/nextjs-recoru/internal/portal"
	"github.com/Seunghyun-Min/nextjs-recoru/internal/report"
)

// DriverFactory opens the browser for one run.
type DriverFactory func(ctx context.Context) (portal.Driver, error)

// Deps are the runner's replaceable collaborators. Zero values fall back to
// Chrome, no notifications, no history and the default logger.
type Deps struct {
	Driver   DriverFactory
	Notifier notify.Notifier
	History  *history.Store
	Logger   *slog.Logger
}

// Runner performs complete upload runs: scan, log in, drain the queue,
// report. Calls to Run are serialized.
type Runner struct {
	cfg       *config.Config
	creds     portal.Credentials
	newDriver DriverFactory
	sink      *report.Sink
	history   *history.Store
	logger    *slog.Logger
	now       func() time.Time
	lastRunID string

	mu sync.Mutex
}

func NewRunner(cfg *config.Config, creds portal.Credentials, deps Deps) *Runner {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	newDriver := deps.Driver
	if newDriver == nil {
		opts := cfg.BrowserOptions()
		newDriver = func(ctx context.Context) (portal.Driver, error) {
			return portal.LaunchChrome(opts, logger)
		}
	}
	return &Runner{
		cfg:       cfg,
		creds:     creds,
		newDriver: newDriver,
		sink:      report.NewSink(cfg.Paths.Results, deps.Notifier, logger),
		history:   deps.History,
		logger:    logger,
		now:       time.Now,
	}
}

// Run performs one run. A fault that stops the queue (including a panic) is
// written to the fault log, notified best-effort and returned.
func (r *Runner) Run(ctx context.Context) (res *batch.Result, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	started := r.now()
	runID := batch.UniqueRunID(started, r.runIDTaken)
	r.lastRunID = runID
	log := r.logger.With("run", runID)

	defer func() {
		if p := recover(); p != nil {
			log.Error("run panicked", "panic", p, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", p)
		}
		if res == nil {
			res = &batch.Result{RunID: runID, Started: started, Finished: r.now()}
		}
		if err != nil {
			r.handleFault(ctx, res, err)
		}
		r.record(ctx, res, err)
	}()

	tasks, err := batch.Scan(r.cfg.Paths.Input, r.cfg.Paths.Extension)
	if err != nil {
		return nil, err
	}
	log.Info("run starting", "files", len(tasks))

	if len(tasks) == 0 {
		res = batch.EmptyResult(runID, started)
		log.Info(batch.NoFilesMessage)
		if _, err := r.sink.Publish(ctx, res); err != nil {
			return res, err
		}
		return res, nil
	}

	res, err = r.upload(ctx, runID, tasks, log)
	if err != nil {
		return res, err
	}
	if _, err := r.sink.Publish(ctx, res); err != nil {
		return res, err
	}
	return res, nil
}

func (r *Runner) upload(ctx context.Context, runID string, tasks []batch.FileTask, log *slog.Logger) (*batch.Result, error) {
	d, err := r.newDriver(ctx)
	if err != nil {
		return nil, fmt.Errorf("start browser: %w", err)
	}

	s, err := portal.Open(ctx, d, r.cfg.PortalConfig(), r.creds, log)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := s.Close(); err != nil {
			log.Warn("close session", "err", err)
		}
	}()

	orch := batch.New(portal.NewNavigator(s), portal.NewExecutor(s), r.cfg.Dirs(), log)
	return orch.Run(ctx, runID, tasks)
}

// handleFault writes the fault log plus whatever partial report exists and
// sends one fault notification carrying both.
func (r *Runner) handleFault(ctx context.Context, res *batch.Result, fault error) {
	log := r.logger.With("run", res.RunID)
	log.Error("run failed", "err", fault)

	faultPath, err := report.WriteFault(r.cfg.Paths.Errors, res.RunID, r.now(), fault)
	if err != nil {
		log.Error("write fault log", "err", err)
	}

	var attachments []string
	if len(res.Records) > 0 {
		reportPath, err := r.sink.Persist(report.Render(res), res.RunID)
		if err != nil {
			log.Error("persist partial report", "err", err)
		}
		attachments = report.Attachments(reportPath, res.FailedRecords())
	}

	// A run cancelled from outside still gets its fault notified.
	nctx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		nctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
	}
	_ = r.sink.NotifyFault(nctx, res.RunID, fault, append([]string{faultPath}, attachments...)...)
}

func (r *Runner) record(ctx context.Context, res *batch.Result, fault error) {
	if r.history == nil {
		return
	}
	if res.Finished.IsZero() {
		res.Finished = r.now()
	}
	if _, err := r.history.Record(context.WithoutCancel(ctx), res, fault); err != nil {
		r.logger.Error("record history", "run", res.RunID, "err", err)
	}
}

// runIDTaken reports whether id was the previous run's ID or already names
// an artifact on disk.
func (r *Runner) runIDTaken(id string) bool {
	if id == r.lastRunID {
		return true
	}
	for _, p := range []string{
		filepath.Join(r.cfg.Paths.Results, report.ResultFileName(id)),
		filepath.Join(r.cfg.Paths.Errors, report.FaultFileName(id)),
	} {
		if _, err := os.Stat(p); err == nil {
			return true
		}
	}
	logs, _ := filepath.Glob(filepath.Join(r.cfg.Paths.Errors, batch.ErrorLogName("*", id)))
	return len(logs) > 0
}

// IsAuthFailure reports whether err came from the login step.
func IsAuthFailure(err error) bool {
	var authErr *portal.AuthError
	return errors.As(err, &authErr)
}
