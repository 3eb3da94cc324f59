// Package portaltest provides an in-memory portal.Driver that simulates the
// Recoru login page and import modal, for tests that exercise the upload
// flow without Chrome.
package portaltest

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/Seunghyun-Min/nextjs-recoru/internal/portal"
)

// Portal is a scripted fake of the portal UI.
type Portal struct {
	Selectors   portal.Selectors
	Marker      string
	Credentials portal.Credentials

	// ErrorsFor returns the error lines the portal reports for a file base
	// name. Nil or empty means the file validates.
	ErrorsFor func(name string) []string
	// PanelDelay is how long after the check click the error panel shows.
	PanelDelay time.Duration
	// BrokenModalAt makes the Nth import click (1-based) leave the modal
	// closed. Zero disables it.
	BrokenModalAt int
	// Stalled waits never complete. Keys are "<kind> <selector>" where kind
	// is one of present, visible, hidden, enabled, text.
	Stalled map[string]bool
	// StalledFor returns extra stalled waits, in the same key form, that
	// apply only while the named file is attached.
	StalledFor func(name string) []string

	mu        sync.Mutex
	filled    map[string]string
	loggedIn  bool
	workArea  bool
	modalOpen bool
	imports   int
	attached  string
	changed   bool
	checkedAt time.Time
	onDialog  func(string)
	dialogsOn bool

	committed []string
	dismissed []string
	events    []string
	closed    int
}

var _ portal.Driver = (*Portal)(nil)

// New returns a fake wired to the default selectors and marker.
func New(creds portal.Credentials) *Portal {
	cfg := portal.DefaultConfig()
	return &Portal{
		Selectors:   cfg.Selectors,
		Marker:      cfg.ModalMarker,
		Credentials: creds,
		Stalled:     map[string]bool{},
		filled:      map[string]string{},
	}
}

func (p *Portal) record(format string, args ...any) {
	p.events = append(p.events, fmt.Sprintf(format, args...))
}

func (p *Portal) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("navigate %s", url)
	return ctx.Err()
}

func (p *Portal) Fill(ctx context.Context, sel, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.filled == nil {
		p.filled = map[string]string{}
	}
	p.filled[sel] = value
	return ctx.Err()
}

func (p *Portal) Click(ctx context.Context, sel string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	s := p.Selectors
	p.record("click %s", sel)

	switch sel {
	case s.Submit:
		p.loggedIn = p.filled[s.ContractID] == p.Credentials.ContractID &&
			p.filled[s.UserID] == p.Credentials.UserID &&
			p.filled[s.Password] == p.Credentials.Password
	case s.WorkArea:
		if !p.loggedIn {
			return fmt.Errorf("no node matches %s", sel)
		}
		p.workArea = true
	case s.ImportButton:
		if !p.workArea {
			return fmt.Errorf("no node matches %s", sel)
		}
		if p.modalOpen {
			return fmt.Errorf("import modal already open")
		}
		p.imports++
		p.attached, p.changed, p.checkedAt = "", false, time.Time{}
		p.modalOpen = p.BrokenModalAt == 0 || p.imports != p.BrokenModalAt
	case s.CheckButton:
		if !p.modalOpen || !p.changed {
			return fmt.Errorf("check button not clickable")
		}
		p.checkedAt = time.Now()
	case s.CloseButton:
		if !p.modalOpen {
			return fmt.Errorf("no node matches %s", sel)
		}
		p.modalOpen = false
		p.dismissed = append(p.dismissed, p.attached)
	case s.ExecuteButton:
		if !p.modalOpen || p.checkedAt.IsZero() {
			return fmt.Errorf("execute button not clickable")
		}
		p.modalOpen = false
		p.committed = append(p.committed, p.attached)
	default:
		return fmt.Errorf("no node matches %s", sel)
	}
	return nil
}

// wait polls cond under the lock until it holds or ctx is done.
func (p *Portal) wait(ctx context.Context, kind, sel string, cond func() bool) error {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		p.mu.Lock()
		ok := !p.stalled(kind+" "+sel) && cond()
		p.mu.Unlock()
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Portal) stalled(key string) bool {
	if p.Stalled[key] {
		return true
	}
	if p.StalledFor == nil || p.attached == "" {
		return false
	}
	for _, k := range p.StalledFor(p.attached) {
		if k == key {
			return true
		}
	}
	return false
}

func (p *Portal) errorLines() []string {
	if p.ErrorsFor == nil || p.attached == "" {
		return nil
	}
	return p.ErrorsFor(p.attached)
}

func (p *Portal) visible(sel string) bool {
	s := p.Selectors
	switch sel {
	case s.Landing:
		return p.loggedIn
	case s.ImportButton:
		return p.workArea && !p.modalOpen
	case s.Modal:
		return p.modalOpen
	case s.ErrorPanel:
		return p.modalOpen && !p.checkedAt.IsZero() &&
			len(p.errorLines()) > 0 && time.Since(p.checkedAt) >= p.PanelDelay
	}
	return false
}

func (p *Portal) WaitPresent(ctx context.Context, sel string) error {
	return p.wait(ctx, "present", sel, func() bool { return p.visible(sel) })
}

func (p *Portal) WaitVisible(ctx context.Context, sel string) error {
	return p.wait(ctx, "visible", sel, func() bool { return p.visible(sel) })
}

func (p *Portal) WaitHidden(ctx context.Context, sel string) error {
	return p.wait(ctx, "hidden", sel, func() bool { return !p.visible(sel) })
}

func (p *Portal) WaitEnabled(ctx context.Context, sel string) error {
	return p.wait(ctx, "enabled", sel, func() bool {
		return sel == p.Selectors.CheckButton && p.modalOpen && p.changed
	})
}

func (p *Portal) WaitText(ctx context.Context, sel, marker string) error {
	return p.wait(ctx, "text", sel, func() bool {
		return sel == p.Selectors.Modal && p.modalOpen && marker == p.Marker
	})
}

func (p *Portal) AttachFiles(ctx context.Context, sel string, paths ...string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if sel != p.Selectors.FileInput || !p.modalOpen {
		return fmt.Errorf("no node matches %s", sel)
	}
	if len(paths) != 1 {
		return fmt.Errorf("expected one file, got %d", len(paths))
	}
	p.attached = filepath.Base(paths[0])
	p.changed = false
	return ctx.Err()
}

func (p *Portal) DispatchChange(ctx context.Context, sel string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if sel != p.Selectors.FileInput || !p.modalOpen {
		return fmt.Errorf("no element matches %s", sel)
	}
	p.changed = p.attached != ""
	return ctx.Err()
}

func (p *Portal) Texts(ctx context.Context, sel string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if sel != p.Selectors.ErrorItems || !p.visible(p.Selectors.ErrorPanel) {
		return nil, nil
	}
	return append([]string(nil), p.errorLines()...), ctx.Err()
}

func (p *Portal) AcceptDialogs(onDialog func(message string)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onDialog = onDialog
	p.dialogsOn = true
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.dialogsOn = false
	}
}

// RaiseDialog simulates a native alert/confirm. It reports whether a
// handler accepted it.
func (p *Portal) RaiseDialog(message string) bool {
	p.mu.Lock()
	fn, on := p.onDialog, p.dialogsOn
	p.mu.Unlock()
	if !on || fn == nil {
		return false
	}
	fn(message)
	return true
}

func (p *Portal) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	return nil
}

func (p *Portal) Committed() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.committed...)
}

func (p *Portal) Dismissed() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.dismissed...)
}

func (p *Portal) Events() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

func (p *Portal) ModalOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.modalOpen
}

func (p *Portal) Closed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// FastTimeouts keeps test runs short while leaving the error window wide
// enough to be deterministic.
func FastTimeouts() portal.Timeouts {
	return portal.Timeouts{
		Login:        time.Second,
		Action:       time.Second,
		ModalText:    200 * time.Millisecond,
		ModalPresent: 200 * time.Millisecond,
		ModalVisible: 200 * time.Millisecond,
		CheckEnabled: 200 * time.Millisecond,
		ErrorWindow:  100 * time.Millisecond,
		ModalClose:   200 * time.Millisecond,
	}
}
