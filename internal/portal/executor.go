package portal

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

type Status string

const (
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

// Outcome is the terminal classification of one file's validation attempt.
type Outcome struct {
	Status    Status
	ErrorText string
}

func Accepted() Outcome { return Outcome{Status: StatusAccepted} }

func Rejected(errorText string) Outcome {
	return Outcome{Status: StatusRejected, ErrorText: errorText}
}

func (o Outcome) IsAccepted() bool { return o.Status == StatusAccepted }

// Executor uploads one file into an open import modal.
type Executor struct {
	s *Session
}

func NewExecutor(s *Session) *Executor {
	return &Executor{s: s}
}

// Submit attaches path, runs the portal's check and either commits the
// import or captures the error lines and closes the modal. The modal is
// closed on every successful return.
//
// A failed step yields *UploadStepTimeout and the modal is closed on a best
// effort basis so the next file can open it again. If the parent ctx is done
// the bare context error is returned instead.
func (e *Executor) Submit(ctx context.Context, path string) (Outcome, error) {
	d := e.s.driver
	sel := e.s.cfg.Selectors
	t := e.s.cfg.Timeouts
	name := filepath.Base(path)
	log := e.s.logger.With("file", name)

	fail := func(step Step, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if step != StepDismiss {
			if derr := e.dismiss(ctx); derr != nil {
				log.Warn("close modal after failed step", "step", step, "err", derr)
			}
		}
		return &UploadStepTimeout{Step: step, File: name, Err: err}
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return Outcome{}, fail(StepAttach, err)
	}
	// Validation hangs off the input's change event, not the attachment.
	if err := withTimeout(ctx, t.Action, func(ctx context.Context) error {
		if err := d.AttachFiles(ctx, sel.FileInput, abs); err != nil {
			return err
		}
		return d.DispatchChange(ctx, sel.FileInput)
	}); err != nil {
		return Outcome{}, fail(StepAttach, err)
	}

	if err := withTimeout(ctx, t.CheckEnabled, func(ctx context.Context) error {
		return d.WaitEnabled(ctx, sel.CheckButton)
	}); err != nil {
		return Outcome{}, fail(StepCheckEnabled, err)
	}

	if err := withTimeout(ctx, t.Action, func(ctx context.Context) error {
		return d.Click(ctx, sel.CheckButton)
	}); err != nil {
		return Outcome{}, fail(StepCheck, err)
	}

	rejected, err := e.errorPanelShown(ctx)
	if err != nil {
		return Outcome{}, fail(StepClassify, err)
	}

	if rejected {
		var lines []string
		if err := withTimeout(ctx, t.Action, func(ctx context.Context) error {
			var err error
			lines, err = d.Texts(ctx, sel.ErrorItems)
			return err
		}); err != nil {
			return Outcome{}, fail(StepCollect, err)
		}
		out := Rejected(strings.Join(lines, "\n"))
		log.Info("portal rejected file", "lines", len(lines))

		if err := e.dismiss(ctx); err != nil {
			return out, fail(StepDismiss, err)
		}
		return out, nil
	}

	if err := withTimeout(ctx, t.Action, func(ctx context.Context) error {
		return d.Click(ctx, sel.ExecuteButton)
	}); err != nil {
		return Outcome{}, fail(StepCommit, err)
	}
	if err := sleep(ctx, t.CommitSettle); err != nil {
		return Outcome{}, fail(StepCommit, err)
	}
	log.Info("portal accepted file")
	return Accepted(), nil
}

// errorPanelShown races the error panel against t.ErrorWindow. The portal
// sends no positive signal, so a window that runs out means accepted.
func (e *Executor) errorPanelShown(ctx context.Context) (bool, error) {
	wCtx, wCancel := context.WithTimeout(ctx, e.s.cfg.Timeouts.ErrorWindow)
	defer wCancel()

	err := e.s.driver.WaitVisible(wCtx, e.s.cfg.Selectors.ErrorPanel)
	switch {
	case err == nil:
		return true, nil
	case ctx.Err() != nil:
		return false, ctx.Err()
	case wCtx.Err() != nil:
		return false, nil
	default:
		return false, fmt.Errorf("watch error panel: %w", err)
	}
}

// dismiss closes the modal and waits until it is gone so the next file's
// navigation starts from a clean page.
func (e *Executor) dismiss(ctx context.Context) error {
	d := e.s.driver
	sel := e.s.cfg.Selectors
	return withTimeout(ctx, e.s.cfg.Timeouts.ModalClose, func(ctx context.Context) error {
		if err := d.Click(ctx, sel.CloseButton); err != nil {
			return fmt.Errorf("click close: %w", err)
		}
		return d.WaitHidden(ctx, sel.Modal)
	})
}
