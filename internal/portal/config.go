package portal

import "time"

const DefaultLoginURL = "https://app.recoru.in/ap/"

// Selectors are the CSS selectors for every element the upload flow touches.
type Selectors struct {
	ContractID string
	UserID     string
	Password   string
	Submit     string
	Landing    string
	WorkArea   string

	ImportButton  string
	Modal         string
	FileInput     string
	CheckButton   string
	ErrorPanel    string
	ErrorItems    string
	CloseButton   string
	ExecuteButton string
}

func DefaultSelectors() Selectors {
	return Selectors{
		ContractID: "#contractId",
		UserID:     "#authId",
		Password:   "#password",
		Submit:     "#submit",
		Landing:    "#globalNavi",
		WorkArea:   "#globalNavi a[href*='attendance']",

		ImportButton:  "#importWorkData",
		Modal:         "#importModal",
		FileInput:     "#importModal input[type=file]",
		CheckButton:   "#importModal .btn-check",
		ErrorPanel:    "#importModal .import-error",
		ErrorItems:    "#importModal .import-error li",
		CloseButton:   "#importModal .btn-close",
		ExecuteButton: "#importModal .btn-execute",
	}
}

// Timeouts bound every wait in the flow. Settle values are fixed sleeps for
// transitions that expose no completion signal.
type Timeouts struct {
	Login        time.Duration
	Action       time.Duration
	ModalText    time.Duration
	ModalPresent time.Duration
	ModalVisible time.Duration
	ModalSettle  time.Duration
	CheckEnabled time.Duration
	// ErrorWindow is how long the error panel gets to appear after the check
	// click. If it has not appeared by then the file counts as accepted.
	ErrorWindow  time.Duration
	ModalClose   time.Duration
	CommitSettle time.Duration
}

func DefaultTimeouts() Timeouts {
	return Timeouts{
		Login:        30 * time.Second,
		Action:       15 * time.Second,
		ModalText:    10 * time.Second,
		ModalPresent: 10 * time.Second,
		ModalVisible: 10 * time.Second,
		ModalSettle:  500 * time.Millisecond,
		CheckEnabled: 30 * time.Second,
		ErrorWindow:  3 * time.Second,
		ModalClose:   10 * time.Second,
		CommitSettle: 3 * time.Second,
	}
}

type Config struct {
	LoginURL    string
	ModalMarker string
	Selectors   Selectors
	Timeouts    Timeouts
}

func DefaultConfig() Config {
	return Config{
		LoginURL:    DefaultLoginURL,
		ModalMarker: "勤務データ取込",
		Selectors:   DefaultSelectors(),
		Timeouts:    DefaultTimeouts(),
	}
}

// Credentials for the portal login form.
type Credentials struct {
	ContractID string
	UserID     string
	Password   string
}

func (c Credentials) Complete() bool {
	return c.ContractID != "" && c.UserID != "" && c.Password != ""
}
