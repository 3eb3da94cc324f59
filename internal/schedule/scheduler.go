package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// RunFunc performs one upload run.
type RunFunc func(ctx context.Context) error

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseCron parses a five-field cron expression or a descriptor such as
// "@daily" or "@every 1h".
func ParseCron(expr string) (cron.Schedule, error) {
	return parser.Parse(expr)
}

// Scheduler fires runs on a cron schedule. A tick that arrives while the
// previous run is still going is skipped.
type Scheduler struct {
	expr   string
	sched  cron.Schedule
	cron   *cron.Cron
	job    cron.Job
	logger *slog.Logger
	ctx    context.Context
}

func New(expr string, run RunFunc, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	sched, err := ParseCron(expr)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", expr, err)
	}

	s := &Scheduler{
		expr:   expr,
		sched:  sched,
		logger: logger,
		ctx:    context.Background(),
	}
	cl := cronLogger{logger: logger.With("component", "cron")}
	s.cron = cron.New(
		cron.WithParser(parser),
		cron.WithLogger(cl),
	)
	s.job = cron.NewChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)).Then(cron.FuncJob(func() {
		start := time.Now()
		logger.Info("scheduled run starting", "schedule", expr)
		if err := run(s.ctx); err != nil {
			logger.Error("scheduled run failed", "err", err, "elapsed", time.Since(start))
			return
		}
		logger.Info("scheduled run finished", "elapsed", time.Since(start))
	}))
	s.cron.Schedule(sched, s.job)
	return s, nil
}

// Next returns the next fire time after now.
func (s *Scheduler) Next(now time.Time) time.Time {
	return s.sched.Next(now)
}

// Run starts the scheduler and blocks until ctx is done, then waits for an
// in-flight run to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.ctx = ctx
	s.cron.Start()
	s.logger.Info("scheduler started", "schedule", s.expr, "next", s.Next(time.Now()))

	<-ctx.Done()
	s.logger.Info("scheduler stopping")
	<-s.cron.Stop().Done()
	return nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "err", err)...)
}
