package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Seunghyun-Min/nextjs-recoru/internal/app"
	"github.com/Seunghyun-Min/nextjs-recoru/internal/config"
	"github.com/Seunghyun-Min/nextjs-recoru/internal/history"
	"github.com/Seunghyun-Min/nextjs-recoru/internal/schedule"
	"github.com/Seunghyun-Min/nextjs-recoru/internal/watch"
)

var (
	scheduleCron string
	historyLimit int
)

func init() {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Upload every waiting file once",
		RunE:  runOnce,
	}
	rootCmd.AddCommand(runCmd)

	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run uploads on a cron schedule",
		RunE:  runSchedule,
	}
	scheduleCmd.Flags().StringVar(&scheduleCron, "cron", "", "cron expression (overrides schedule.cron)")
	rootCmd.AddCommand(scheduleCmd)

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Run an upload whenever files arrive in the input directory",
		RunE:  runWatch,
	}
	rootCmd.AddCommand(watchCmd)

	historyCmd := &cobra.Command{
		Use:   "history [RUN_ID]",
		Short: "List past runs, or show the files of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runHistory,
	}
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of runs to list")
	rootCmd.AddCommand(historyCmd)
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	return config.Load(path)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// newRunner wires a Runner from config. The returned cleanup closes the
// history store.
func newRunner() (*app.Runner, *config.Config, func(), error) {
	logger := slog.Default()

	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	if err := cfg.EnsureDirs(); err != nil {
		return nil, nil, nil, err
	}
	creds, err := config.LoadCredentials(envFile)
	if err != nil {
		return nil, nil, nil, err
	}
	notifier, err := app.BuildNotifier(cfg, logger)
	if err != nil {
		return nil, nil, nil, err
	}

	cleanup := func() {}
	var store *history.Store
	if cfg.History.Enabled {
		store, err = history.New(cfg.History.DatabasePath)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open history: %w", err)
		}
		cleanup = func() { store.Close() }
	}

	runner := app.NewRunner(cfg, creds, app.Deps{
		Notifier: notifier,
		History:  store,
		Logger:   logger,
	})
	return runner, cfg, cleanup, nil
}

func runOnce(cmd *cobra.Command, args []string) error {
	runner, _, cleanup, err := newRunner()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signalContext()
	defer stop()

	res, err := runner.Run(ctx)
	if err != nil {
		if app.IsAuthFailure(err) {
			return fmt.Errorf("login failed, check RECORU_* credentials: %w", err)
		}
		return err
	}
	if res.Empty() {
		fmt.Println(res.Note)
		return nil
	}
	fmt.Printf("run %s: %d succeeded, %d failed\n", res.RunID, len(res.Succeeded), len(res.Failed))
	return nil
}

func runSchedule(cmd *cobra.Command, args []string) error {
	runner, cfg, cleanup, err := newRunner()
	if err != nil {
		return err
	}
	defer cleanup()

	expr := cfg.Schedule.Cron
	if scheduleCron != "" {
		expr = scheduleCron
	}
	s, err := schedule.New(expr, func(ctx context.Context) error {
		_, err := runner.Run(ctx)
		return err
	}, slog.Default())
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()
	return s.Run(ctx)
}

func runWatch(cmd *cobra.Command, args []string) error {
	runner, cfg, cleanup, err := newRunner()
	if err != nil {
		return err
	}
	defer cleanup()

	w, err := watch.New(cfg.Paths.Input, cfg.Paths.Extension, cfg.Schedule.WatchDebounce.Duration,
		func(ctx context.Context, changed []string) error {
			if len(changed) > 0 {
				slog.Info("new input files", "files", changed)
			}
			_, err := runner.Run(ctx)
			return err
		}, slog.Default())
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()
	return w.Run(ctx)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := history.New(cfg.History.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	if len(args) == 1 {
		run, files, err := store.GetRun(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "RUN\t%s\t%s\t%s\n", run.RunID, run.Status, run.Finished.Sub(run.Started).Round(time.Second))
		if run.Fault != "" {
			fmt.Fprintf(w, "FAULT\t%s\n", run.Fault)
		}
		fmt.Fprintln(w, "FILE\tRESULT\tERRORS")
		for _, f := range files {
			result := "accepted"
			if !f.Accepted {
				result = "rejected"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", f.Name, result, oneLine(f.ErrorText))
		}
		return nil
	}

	runs, err := store.ListRuns(ctx, historyLimit)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "RUN\tSTATUS\tSUCCEEDED\tFAILED\tSTARTED")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n", r.RunID, r.Status, r.Succeeded, r.Failed,
			r.Started.Local().Format("2006-01-02 15:04:05"))
	}
	return nil
}

func oneLine(s string) string {
	out := []rune(s)
	for i, r := range out {
		if r == '\n' {
			out[i] = ';'
		}
	}
	if len(out) > 80 {
		return string(out[:77]) + "..."
	}
	return string(out)
}
