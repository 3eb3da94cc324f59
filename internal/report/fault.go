package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Seunghyun-Min/nextjs-recoru/internal/notify"
)

func FaultFileName(runID string) string {
	return fmt.Sprintf("fault_%s.txt", runID)
}

// WriteFault records a run-level fault in dir.
func WriteFault(dir, runID string, at time.Time, fault error) (string, error) {
	path := filepath.Join(dir, FaultFileName(runID))
	text := fmt.Sprintf("run %s failed at %s\n\n%v\n", runID, at.Format(time.RFC3339), fault)
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return "", fmt.Errorf("write fault log: %w", err)
	}
	return path, nil
}

// NotifyFault makes a best-effort attempt to report a fault. Empty
// attachment paths are skipped.
func (s *Sink) NotifyFault(ctx context.Context, runID string, fault error, attachments ...string) error {
	n := notify.Notification{
		Title:   fmt.Sprintf("Recoru upload %s: run failed", runID),
		Message: fault.Error(),
		Type:    notify.NotifyError,
	}
	for _, a := range attachments {
		if a != "" {
			n.Attachments = append(n.Attachments, a)
		}
	}
	if err := s.notifier.Send(ctx, n); err != nil {
		s.logger.Error("fault notification failed", "run", runID, "err", err)
		return &NotificationDeliveryError{Err: err}
	}
	return nil
}
