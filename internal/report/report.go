package report

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Seunghyun-Min/nextjs-recoru/internal/batch"
	"github.com/Seunghyun-Min/nextjs-recoru/internal/notify"
)

const placeholder = "none"

// NotificationDeliveryError wraps a failed dispatch. The run is already
// complete when it happens, so callers log it and carry on.
type NotificationDeliveryError struct {
	Err error
}

func (e *NotificationDeliveryError) Error() string {
	return fmt.Sprintf("notification delivery: %v", e.Err)
}

func (e *NotificationDeliveryError) Unwrap() error { return e.Err }

// ResultFileName is the report artifact name for a run.
func ResultFileName(runID string) string {
	return fmt.Sprintf("upload_result_%s.txt", runID)
}

// Render formats res as two sections, failed first. The output depends only
// on res.
func Render(res *batch.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Recoru upload result %s\n\n", res.RunID)
	if res.Empty() {
		b.WriteString(res.Note)
		b.WriteString("\n")
		return b.String()
	}
	section(&b, "failed", res.Failed)
	b.WriteString("\n")
	section(&b, "succeeded", res.Succeeded)
	return b.String()
}

func section(b *strings.Builder, title string, names []string) {
	fmt.Fprintf(b, "%s (%d):\n", title, len(names))
	if len(names) == 0 {
		b.WriteString(placeholder + "\n")
		return
	}
	for _, n := range names {
		b.WriteString(n + "\n")
	}
}

// Sink persists reports and hands them to a notifier.
type Sink struct {
	dir      string
	notifier notify.Notifier
	logger   *slog.Logger
}

func NewSink(resultDir string, notifier notify.Notifier, logger *slog.Logger) *Sink {
	if notifier == nil {
		notifier = notify.NoopNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{dir: resultDir, notifier: notifier, logger: logger}
}

// Persist writes text as the run's result artifact and returns its path.
func (s *Sink) Persist(text, runID string) (string, error) {
	path := filepath.Join(s.dir, ResultFileName(runID))
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return "", fmt.Errorf("persist report: %w", err)
	}
	return path, nil
}

// Attachments lists the report followed by, per failed file, its error
// artifact and whichever copy of the source file currently exists.
func Attachments(reportPath string, failed []batch.Record) []string {
	var out []string
	if reportPath != "" {
		out = append(out, reportPath)
	}
	for _, rec := range failed {
		if exists(rec.ErrorLog) {
			out = append(out, rec.ErrorLog)
		}
		switch {
		case exists(rec.Source):
			out = append(out, rec.Source)
		case exists(rec.Relocated):
			out = append(out, rec.Relocated)
		}
	}
	return out
}

func exists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// Dispatch sends the report. A delivery failure is logged and returned as
// *NotificationDeliveryError.
func (s *Sink) Dispatch(ctx context.Context, res *batch.Result, reportPath, text string) error {
	n := notify.Notification{
		Title:       title(res),
		Message:     text,
		Type:        kind(res),
		Attachments: Attachments(reportPath, res.FailedRecords()),
	}
	if err := s.notifier.Send(ctx, n); err != nil {
		s.logger.Error("notification failed", "run", res.RunID, "err", err)
		return &NotificationDeliveryError{Err: err}
	}
	s.logger.Info("notification sent", "run", res.RunID, "attachments", len(n.Attachments))
	return nil
}

// Publish renders, persists and dispatches res. An empty run is notified
// without writing an artifact. Delivery failures are swallowed.
func (s *Sink) Publish(ctx context.Context, res *batch.Result) (string, error) {
	text := Render(res)
	var path string
	if !res.Empty() {
		p, err := s.Persist(text, res.RunID)
		if err != nil {
			return "", err
		}
		path = p
	}
	_ = s.Dispatch(ctx, res, path, text)
	return path, nil
}

func title(res *batch.Result) string {
	if res.Empty() {
		return fmt.Sprintf("Recoru upload %s: %s", res.RunID, res.Note)
	}
	return fmt.Sprintf("Recoru upload %s: %d succeeded, %d failed",
		res.RunID, len(res.Succeeded), len(res.Failed))
}

func kind(res *batch.Result) notify.NotificationType {
	switch {
	case res.Empty():
		return notify.NotifyInfo
	case len(res.Failed) > 0:
		return notify.NotifyWarning
	default:
		return notify.NotifySuccess
	}
}
