package portal

import "context"

// Driver is the page-level surface the session, navigator and executor use
// to talk to the portal. ChromeDriver implements it; tests use
// portaltest.Portal.
//
// Every Wait* call blocks until the condition holds or ctx is done, in which
// case it returns ctx.Err() (possibly wrapped).
type Driver interface {
	Navigate(ctx context.Context, url string) error
	Fill(ctx context.Context, sel, value string) error
	Click(ctx context.Context, sel string) error

	WaitPresent(ctx context.Context, sel string) error
	WaitVisible(ctx context.Context, sel string) error
	// WaitHidden returns once sel is either gone from the DOM or not rendered.
	WaitHidden(ctx context.Context, sel string) error
	WaitEnabled(ctx context.Context, sel string) error
	WaitText(ctx context.Context, sel, marker string) error

	AttachFiles(ctx context.Context, sel string, paths ...string) error
	// DispatchChange fires a bubbling change event on sel.
	DispatchChange(ctx context.Context, sel string) error
	// Texts returns the trimmed, non-empty innerText of every match of sel.
	Texts(ctx context.Context, sel string) ([]string, error)

	// AcceptDialogs installs a handler that accepts every native dialog the
	// page opens. The returned func disables it.
	AcceptDialogs(onDialog func(message string)) (stop func())

	Close() error
}
