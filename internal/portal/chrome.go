package portal

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// BrowserOptions controls how Chrome is started.
type BrowserOptions struct {
	// CDPURL connects to an already running Chrome instead of launching one.
	CDPURL     string
	Headless   bool
	NoSandbox  bool
	ProfileDir string
	// PollInterval is how often condition waits re-evaluate the page.
	PollInterval time.Duration
}

// ChromeDriver drives a single Chrome tab through chromedp.
type ChromeDriver struct {
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	opts        BrowserOptions
	logger      *slog.Logger
}

var _ Driver = (*ChromeDriver)(nil)

// LaunchChrome starts (or attaches to) Chrome and opens one tab.
func LaunchChrome(opts BrowserOptions, logger *slog.Logger) (*ChromeDriver, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 100 * time.Millisecond
	}

	var allocCtx context.Context
	var allocCancel context.CancelFunc
	if opts.CDPURL != "" {
		logger.Info("connecting to chrome", "cdp", opts.CDPURL)
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(context.Background(), opts.CDPURL)
	} else {
		flags := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("no-first-run", true),
			chromedp.Flag("disable-popup-blocking", true),
		)
		if opts.ProfileDir != "" {
			if err := os.MkdirAll(opts.ProfileDir, 0755); err != nil {
				return nil, fmt.Errorf("create profile dir: %w", err)
			}
			flags = append(flags, chromedp.UserDataDir(opts.ProfileDir))
		}
		if opts.NoSandbox {
			flags = append(flags, chromedp.NoSandbox, chromedp.Flag("disable-setuid-sandbox", true))
		}
		if !opts.Headless {
			flags = append(flags, chromedp.Flag("headless", false))
		}
		logger.Info("launching chrome", "headless", opts.Headless, "profile", opts.ProfileDir)
		allocCtx, allocCancel = chromedp.NewExecAllocator(context.Background(), flags...)
	}

	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("start chrome: %w", err)
	}

	c := &ChromeDriver{
		allocCancel: allocCancel,
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
		opts:        opts,
		logger:      logger,
	}
	vCtx, vCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer vCancel()
	if v, err := c.Version(vCtx); err == nil {
		logger.Info("chrome ready", "version", v)
	} else {
		logger.Warn("chrome version unknown", "err", err)
	}
	return c, nil
}

// run executes actions on the tab, bounded by ctx's deadline and
// cancellation. Cancelling the derived context does not close the tab.
func (c *ChromeDriver) run(ctx context.Context, actions ...chromedp.Action) error {
	tCtx, tCancel := context.WithCancel(c.tabCtx)
	defer tCancel()
	if dl, ok := ctx.Deadline(); ok {
		var dCancel context.CancelFunc
		tCtx, dCancel = context.WithDeadline(tCtx, dl)
		defer dCancel()
	}
	stop := context.AfterFunc(ctx, tCancel)
	defer stop()

	if err := chromedp.Run(tCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// poll evaluates a boolean expression until it is true or ctx is done.
func (c *ChromeDriver) poll(ctx context.Context, expr string) error {
	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()
	for {
		var ok bool
		if err := c.run(ctx, chromedp.Evaluate(expr, &ok)); err != nil {
			return err
		}
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

func (c *ChromeDriver) Navigate(ctx context.Context, url string) error {
	if err := c.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (c *ChromeDriver) Fill(ctx context.Context, sel, value string) error {
	return c.run(ctx,
		chromedp.WaitVisible(sel, chromedp.ByQuery),
		chromedp.SetValue(sel, "", chromedp.ByQuery),
		chromedp.SendKeys(sel, value, chromedp.ByQuery),
	)
}

func (c *ChromeDriver) Click(ctx context.Context, sel string) error {
	return c.run(ctx, chromedp.Click(sel, chromedp.ByQuery))
}

func (c *ChromeDriver) WaitPresent(ctx context.Context, sel string) error {
	return c.run(ctx, chromedp.WaitReady(sel, chromedp.ByQuery))
}

func (c *ChromeDriver) WaitVisible(ctx context.Context, sel string) error {
	return c.run(ctx, chromedp.WaitVisible(sel, chromedp.ByQuery))
}

func (c *ChromeDriver) WaitHidden(ctx context.Context, sel string) error {
	return c.poll(ctx, fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		if (!el) return true;
		const st = getComputedStyle(el);
		return st.display === 'none' || st.visibility === 'hidden' || el.getClientRects().length === 0;
	})()`, sel))
}

func (c *ChromeDriver) WaitEnabled(ctx context.Context, sel string) error {
	return c.run(ctx, chromedp.WaitEnabled(sel, chromedp.ByQuery))
}

func (c *ChromeDriver) WaitText(ctx context.Context, sel, marker string) error {
	return c.poll(ctx, fmt.Sprintf(`(document.querySelector(%q)?.textContent || '').includes(%q)`, sel, marker))
}

func (c *ChromeDriver) AttachFiles(ctx context.Context, sel string, paths ...string) error {
	return c.run(ctx, chromedp.SetUploadFiles(sel, paths, chromedp.ByQuery))
}

func (c *ChromeDriver) DispatchChange(ctx context.Context, sel string) error {
	var found bool
	if err := c.run(ctx, chromedp.Evaluate(fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		if (!el) return false;
		el.dispatchEvent(new Event('change', {bubbles: true}));
		return true;
	})()`, sel), &found)); err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("no element matches %s", sel)
	}
	return nil
}

func (c *ChromeDriver) Texts(ctx context.Context, sel string) ([]string, error) {
	var lines []string
	if err := c.run(ctx, chromedp.Evaluate(fmt.Sprintf(
		`Array.from(document.querySelectorAll(%q), el => el.innerText.trim()).filter(Boolean)`, sel,
	), &lines)); err != nil {
		return nil, err
	}
	return lines, nil
}

func (c *ChromeDriver) AcceptDialogs(onDialog func(message string)) func() {
	var active atomic.Bool
	active.Store(true)

	chromedp.ListenTarget(c.tabCtx, func(ev any) {
		e, ok := ev.(*page.EventJavascriptDialogOpening)
		if !ok || !active.Load() {
			return
		}
		onDialog(e.Message)
		// Listeners must not block the event loop.
		go func() {
			if err := chromedp.Run(c.tabCtx, page.HandleJavaScriptDialog(true)); err != nil {
				c.logger.Warn("accept dialog", "err", err)
			}
		}()
	})
	return func() { active.Store(false) }
}

var chromeVersionRe = regexp.MustCompile(`(?:Headless)?Chrome[/\s]+(\d+\.\d+\.\d+\.\d+)`)

// chromeVersion extracts "145.0.0.0" from a user agent, or "".
func chromeVersion(ua string) string {
	if m := chromeVersionRe.FindStringSubmatch(ua); len(m) > 1 {
		return m[1]
	}
	return ""
}

// Version reports the Chrome version of the running tab.
func (c *ChromeDriver) Version(ctx context.Context) (string, error) {
	var ua string
	if err := c.run(ctx, chromedp.Evaluate("navigator.userAgent", &ua)); err != nil {
		return "", err
	}
	if v := chromeVersion(ua); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("no chrome version in user agent %q", ua)
}

func (c *ChromeDriver) Close() error {
	c.tabCancel()
	c.allocCancel()
	if c.opts.CDPURL == "" && c.opts.ProfileDir != "" {
		markCleanExit(c.opts.ProfileDir, c.logger)
	}
	return nil
}

// markCleanExit patches Chrome's preferences so the next headful launch does
// not show the "didn't shut down correctly" bar.
func markCleanExit(profileDir string, logger *slog.Logger) {
	prefsPath := filepath.Join(profileDir, "Default", "Preferences")
	data, err := os.ReadFile(prefsPath)
	if err != nil {
		return
	}
	patched := strings.ReplaceAll(string(data), `"exit_type":"Crashed"`, `"exit_type":"Normal"`)
	patched = strings.ReplaceAll(patched, `"exited_cleanly":false`, `"exited_cleanly":true`)
	if patched != string(data) {
		if err := os.WriteFile(prefsPath, []byte(patched), 0644); err != nil {
			logger.Warn("patch chrome prefs", "err", err)
		}
	}
}
