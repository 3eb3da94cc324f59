package portal

import (
	"context"
	"time"
)

// Navigator brings the import modal up on an authenticated session.
type Navigator struct {
	s *Session
}

func NewNavigator(s *Session) *Navigator {
	return &Navigator{s: s}
}

// OpenImportModal clicks the import affordance and waits, in order, for the
// modal text marker, the container and its visibility. The three waits are
// bounded separately so a failure names the stage that stalled.
func (n *Navigator) OpenImportModal(ctx context.Context) error {
	d := n.s.driver
	sel := n.s.cfg.Selectors
	t := n.s.cfg.Timeouts

	if err := withTimeout(ctx, t.Action, func(ctx context.Context) error {
		return d.Click(ctx, sel.ImportButton)
	}); err != nil {
		return &NavigationTimeout{Stage: StageOpen, Err: err}
	}

	stages := []struct {
		stage   Stage
		timeout time.Duration
		wait    func(context.Context) error
	}{
		{StageText, t.ModalText, func(ctx context.Context) error { return d.WaitText(ctx, sel.Modal, n.s.cfg.ModalMarker) }},
		{StagePresent, t.ModalPresent, func(ctx context.Context) error { return d.WaitPresent(ctx, sel.Modal) }},
		{StageVisible, t.ModalVisible, func(ctx context.Context) error { return d.WaitVisible(ctx, sel.Modal) }},
	}
	for _, st := range stages {
		if err := withTimeout(ctx, st.timeout, st.wait); err != nil {
			return &NavigationTimeout{Stage: st.stage, Err: err}
		}
	}

	n.s.logger.Debug("import modal visible")
	// Inputs inside the modal do not take focus right after the fade-in.
	return sleep(ctx, t.ModalSettle)
}

func withTimeout(ctx context.Context, d time.Duration, fn func(context.Context) error) error {
	tCtx, tCancel := context.WithTimeout(ctx, d)
	defer tCancel()
	return fn(tCtx)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
