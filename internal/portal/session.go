package portal

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Session is the single authenticated page used for a whole run. Navigator
// and Executor borrow it; only the run that opened it closes it.
type Session struct {
	driver Driver
	cfg    Config
	logger *slog.Logger

	stopDialogs func()
	closeOnce   sync.Once
	closeErr    error
}

// Open logs into the portal through d and lands on the attendance work
// area. On failure the driver is already released and the returned error is
// an *AuthError. On success the caller owns the session and must Close it.
func Open(ctx context.Context, d Driver, cfg Config, creds Credentials, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{driver: d, cfg: cfg, logger: logger}

	s.stopDialogs = d.AcceptDialogs(func(message string) {
		logger.Info("accepted portal dialog", "message", message)
	})

	if err := s.login(ctx, creds); err != nil {
		if cerr := s.Close(); cerr != nil {
			logger.Warn("close after failed login", "err", cerr)
		}
		return nil, err
	}
	return s, nil
}

func (s *Session) login(ctx context.Context, creds Credentials) error {
	if !creds.Complete() {
		return &AuthError{Stage: "credentials", Err: ErrMissingCredentials}
	}
	sel := s.cfg.Selectors

	tCtx, tCancel := context.WithTimeout(ctx, s.cfg.Timeouts.Login)
	defer tCancel()

	s.logger.Info("logging in", "url", s.cfg.LoginURL, "contract", creds.ContractID, "user", creds.UserID)
	if err := s.driver.Navigate(tCtx, s.cfg.LoginURL); err != nil {
		return &AuthError{Stage: "navigate", Err: err}
	}

	fields := []struct{ sel, value string }{
		{sel.ContractID, creds.ContractID},
		{sel.UserID, creds.UserID},
		{sel.Password, creds.Password},
	}
	for _, f := range fields {
		if err := s.driver.Fill(tCtx, f.sel, f.value); err != nil {
			return &AuthError{Stage: "form", Err: fmt.Errorf("fill %s: %w", f.sel, err)}
		}
	}
	if err := s.driver.Click(tCtx, sel.Submit); err != nil {
		return &AuthError{Stage: "submit", Err: err}
	}
	if err := s.driver.WaitVisible(tCtx, sel.Landing); err != nil {
		return &AuthError{Stage: "landing", Err: err}
	}

	if sel.WorkArea != "" {
		if err := s.driver.Click(tCtx, sel.WorkArea); err != nil {
			return &AuthError{Stage: "work-area", Err: err}
		}
	}
	if err := s.driver.WaitVisible(tCtx, sel.ImportButton); err != nil {
		return &AuthError{Stage: "work-area", Err: err}
	}
	s.logger.Info("logged in")
	return nil
}

// Close stops the dialog handler and releases the browser. Safe to call
// more than once; only the first call does anything.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if s.stopDialogs != nil {
			s.stopDialogs()
		}
		s.closeErr = s.driver.Close()
		s.logger.Info("session closed")
	})
	return s.closeErr
}
