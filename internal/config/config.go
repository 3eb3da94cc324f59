package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/Seunghyun-Min/nextjs-recoru/internal/batch"
	"github.com/Seunghyun-Min/nextjs-recoru/internal/notify"
	"github.com/Seunghyun-Min/nextjs-recoru/internal/portal"
)

// ErrConfigNotFound is returned by Load when the file does not exist.
var ErrConfigNotFound = errors.New("config file not found")

// Config holds all application configuration
type Config struct {
	Portal    PortalConfig    `toml:"portal"`
	Selectors SelectorsConfig `toml:"selectors"`
	Browser   BrowserConfig   `toml:"browser"`
	Timeouts  TimeoutsConfig  `toml:"timeouts"`
	Paths     PathsConfig     `toml:"paths"`
	Mail      MailConfig      `toml:"mail"`
	Slack     SlackConfig     `toml:"slack"`
	Schedule  ScheduleConfig  `toml:"schedule"`
	History   HistoryConfig   `toml:"history"`
}

type PortalConfig struct {
	LoginURL    string `toml:"login_url"`
	ModalMarker string `toml:"modal_marker"`
}

type SelectorsConfig struct {
	ContractID    string `toml:"contract_id"`
	UserID        string `toml:"user_id"`
	Password      string `toml:"password"`
	Submit        string `toml:"submit"`
	Landing       string `toml:"landing"`
	WorkArea      string `toml:"work_area"`
	ImportButton  string `toml:"import_button"`
	Modal         string `toml:"modal"`
	FileInput     string `toml:"file_input"`
	CheckButton   string `toml:"check_button"`
	ErrorPanel    string `toml:"error_panel"`
	ErrorItems    string `toml:"error_items"`
	CloseButton   string `toml:"close_button"`
	ExecuteButton string `toml:"execute_button"`
}

type BrowserConfig struct {
	CDPURL       string   `toml:"cdp_url"`
	Headless     bool     `toml:"headless"`
	NoSandbox    bool     `toml:"no_sandbox"`
	ProfileDir   string   `toml:"profile_dir"`
	PollInterval Duration `toml:"poll_interval"`
}

type TimeoutsConfig struct {
	Login        Duration `toml:"login"`
	Action       Duration `toml:"action"`
	ModalText    Duration `toml:"modal_text"`
	ModalPresent Duration `toml:"modal_present"`
	ModalVisible Duration `toml:"modal_visible"`
	ModalSettle  Duration `toml:"modal_settle"`
	CheckEnabled Duration `toml:"check_enabled"`
	ErrorWindow  Duration `toml:"error_window"`
	ModalClose   Duration `toml:"modal_close"`
	CommitSettle Duration `toml:"commit_settle"`
}

type PathsConfig struct {
	Input     string `toml:"input"`
	Processed string `toml:"processed"`
	Errors    string `toml:"errors"`
	Results   string `toml:"results"`
	Extension string `toml:"extension"`
}

type MailConfig struct {
	Enabled  bool     `toml:"enabled"`
	Host     string   `toml:"host"`
	Port     int      `toml:"port"`
	Username string   `toml:"username"`
	Password string   `toml:"password"`
	From     string   `toml:"from"`
	To       []string `toml:"to"`
	TLS      string   `toml:"tls"`
}

type SlackConfig struct {
	Webhook string `toml:"webhook"`
}

type ScheduleConfig struct {
	Cron          string   `toml:"cron"`
	WatchDebounce Duration `toml:"watch_debounce"`
}

type HistoryConfig struct {
	Enabled      bool   `toml:"enabled"`
	DatabasePath string `toml:"database_path"`
}

// Duration is a time.Duration written as a Go duration string ("3s").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", b, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns a Config with sensible defaults
func Default() *Config {
	sel := portal.DefaultSelectors()
	t := portal.DefaultTimeouts()
	pc := portal.DefaultConfig()
	base := filepath.Join(homeDir(), "recoru")

	return &Config{
		Portal: PortalConfig{
			LoginURL:    pc.LoginURL,
			ModalMarker: pc.ModalMarker,
		},
		Selectors: SelectorsConfig{
			ContractID:    sel.ContractID,
			UserID:        sel.UserID,
			Password:      sel.Password,
			Submit:        sel.Submit,
			Landing:       sel.Landing,
			WorkArea:      sel.WorkArea,
			ImportButton:  sel.ImportButton,
			Modal:         sel.Modal,
			FileInput:     sel.FileInput,
			CheckButton:   sel.CheckButton,
			ErrorPanel:    sel.ErrorPanel,
			ErrorItems:    sel.ErrorItems,
			CloseButton:   sel.CloseButton,
			ExecuteButton: sel.ExecuteButton,
		},
		Browser: BrowserConfig{
			NoSandbox:    true,
			ProfileDir:   filepath.Join(homeDir(), ".recoru-upload", "chrome-profile"),
			PollInterval: Duration{100 * time.Millisecond},
		},
		Timeouts: TimeoutsConfig{
			Login:        Duration{t.Login},
			Action:       Duration{t.Action},
			ModalText:    Duration{t.ModalText},
			ModalPresent: Duration{t.ModalPresent},
			ModalVisible: Duration{t.ModalVisible},
			ModalSettle:  Duration{t.ModalSettle},
			CheckEnabled: Duration{t.CheckEnabled},
			ErrorWindow:  Duration{t.ErrorWindow},
			ModalClose:   Duration{t.ModalClose},
			CommitSettle: Duration{t.CommitSettle},
		},
		Paths: PathsConfig{
			Input:     filepath.Join(base, "input"),
			Processed: filepath.Join(base, "processed"),
			Errors:    filepath.Join(base, "errors"),
			Results:   filepath.Join(base, "results"),
			Extension: ".txt",
		},
		Mail: MailConfig{
			Port: 587,
			TLS:  "mandatory",
		},
		Schedule: ScheduleConfig{
			Cron:          "0 9 * * 1-5",
			WatchDebounce: Duration{2 * time.Second},
		},
		History: HistoryConfig{
			Enabled:      true,
			DatabasePath: filepath.Join(homeDir(), ".recoru-upload", "history.db"),
		},
	}
}

// Load reads configuration from a TOML file over the defaults. A missing
// file is an error: the tool has no meaningful zero configuration.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.applyEnv()

	cfg.Paths.Input = ExpandPath(cfg.Paths.Input)
	cfg.Paths.Processed = ExpandPath(cfg.Paths.Processed)
	cfg.Paths.Errors = ExpandPath(cfg.Paths.Errors)
	cfg.Paths.Results = ExpandPath(cfg.Paths.Results)
	cfg.Browser.ProfileDir = ExpandPath(cfg.Browser.ProfileDir)
	cfg.History.DatabasePath = ExpandPath(cfg.History.DatabasePath)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// applyEnv lets deployment-specific settings live outside the file.
func (c *Config) applyEnv() {
	c.Browser.CDPURL = envOr("RECORU_CDP_URL", c.Browser.CDPURL)
	if v := os.Getenv("RECORU_HEADLESS"); v != "" {
		c.Browser.Headless = v == "true"
	}
	c.Slack.Webhook = envOr("RECORU_SLACK_WEBHOOK", c.Slack.Webhook)
	c.Mail.Password = envOr("RECORU_MAIL_PASSWORD", c.Mail.Password)
}

func (c *Config) Validate() error {
	var errs []error
	for name, p := range map[string]string{
		"paths.input":     c.Paths.Input,
		"paths.processed": c.Paths.Processed,
		"paths.errors":    c.Paths.Errors,
		"paths.results":   c.Paths.Results,
	} {
		if p == "" {
			errs = append(errs, fmt.Errorf("%s is required", name))
		}
	}
	if !strings.HasPrefix(c.Paths.Extension, ".") {
		errs = append(errs, fmt.Errorf("paths.extension %q must start with a dot", c.Paths.Extension))
	}
	if c.Timeouts.ErrorWindow.Duration <= 0 {
		errs = append(errs, errors.New("timeouts.error_window must be positive"))
	}
	if c.Mail.Enabled && (c.Mail.Host == "" || c.Mail.From == "" || len(c.Mail.To) == 0) {
		errs = append(errs, errors.New("mail.host, mail.from and mail.to are required when mail is enabled"))
	}
	return errors.Join(errs...)
}

// EnsureDirs creates every working directory.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.Paths.Input, c.Paths.Processed, c.Paths.Errors, c.Paths.Results} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

func (c *Config) PortalConfig() portal.Config {
	s := c.Selectors
	t := c.Timeouts
	return portal.Config{
		LoginURL:    c.Portal.LoginURL,
		ModalMarker: c.Portal.ModalMarker,
		Selectors: portal.Selectors{
			ContractID:    s.ContractID,
			UserID:        s.UserID,
			Password:      s.Password,
			Submit:        s.Submit,
			Landing:       s.Landing,
			WorkArea:      s.WorkArea,
			ImportButton:  s.ImportButton,
			Modal:         s.Modal,
			FileInput:     s.FileInput,
			CheckButton:   s.CheckButton,
			ErrorPanel:    s.ErrorPanel,
			ErrorItems:    s.ErrorItems,
			CloseButton:   s.CloseButton,
			ExecuteButton: s.ExecuteButton,
		},
		Timeouts: portal.Timeouts{
			Login:        t.Login.Duration,
			Action:       t.Action.Duration,
			ModalText:    t.ModalText.Duration,
			ModalPresent: t.ModalPresent.Duration,
			ModalVisible: t.ModalVisible.Duration,
			ModalSettle:  t.ModalSettle.Duration,
			CheckEnabled: t.CheckEnabled.Duration,
			ErrorWindow:  t.ErrorWindow.Duration,
			ModalClose:   t.ModalClose.Duration,
			CommitSettle: t.CommitSettle.Duration,
		},
	}
}

func (c *Config) BrowserOptions() portal.BrowserOptions {
	return portal.BrowserOptions{
		CDPURL:       c.Browser.CDPURL,
		Headless:     c.Browser.Headless,
		NoSandbox:    c.Browser.NoSandbox,
		ProfileDir:   c.Browser.ProfileDir,
		PollInterval: c.Browser.PollInterval.Duration,
	}
}

func (c *Config) Dirs() batch.Dirs {
	return batch.Dirs{Processed: c.Paths.Processed, Errors: c.Paths.Errors}
}

func (c *Config) MailNotifierConfig() notify.MailConfig {
	return notify.MailConfig{
		Host:     c.Mail.Host,
		Port:     c.Mail.Port,
		Username: c.Mail.Username,
		Password: c.Mail.Password,
		From:     c.Mail.From,
		To:       c.Mail.To,
		TLS:      c.Mail.TLS,
	}
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir(), path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	return filepath.Join(homeDir(), ".config", "recoru-upload", "config.toml")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func homeDir() string {
	h, _ := os.UserHomeDir()
	return h
}
