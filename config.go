package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	envUsername         = "REVCOMPS_USERNAME"
	envPassword         = "REVCOMPS_PASSWORD"
	envTestMode         = "REVCOMPS_TEST_MODE"
	envStorageStatePath = "REVCOMPS_STORAGE_STATE_PATH"
	envHeadless         = "REVCOMPS_HEADLESS"
	envResultPath       = "N8N_RESULT_PATH"

	defaultResultPath = ".n8n-result.json"
	defaultRunTimeout = 10 * time.Minute
)

var ErrMissingCredentials = errors.New("missing " + envUsername + " or " + envPassword)

type Config struct {
	BaseURL string `yaml:"base_url"`
	CartURL string `yaml:"cart_url"`

	Username string `yaml:"-"`
	Password string `yaml:"-"`

	ResultPath       string `yaml:"-"`
	StorageStatePath string `yaml:"storage_state_path"`

	Headless    bool   `yaml:"headless"`
	TestMode    bool   `yaml:"test_mode"`
	DebugMode   bool   `yaml:"debug_mode"`
	Leakless    bool   `yaml:"leakless"`
	UseStealth  bool   `yaml:"use_stealth"`
	BrowserPath string `yaml:"browser_path"`

	RunTimeout       time.Duration `yaml:"run_timeout"`
	ListingsTimeout  time.Duration `yaml:"listings_timeout"`
	FilterWait       time.Duration `yaml:"filter_wait"`
	FilterStrategies []string      `yaml:"filter_strategies"`
	ProbeTimeout     time.Duration `yaml:"probe_timeout"`
	AnswerValue      string        `yaml:"answer_value"`
	HeldTicketText   string        `yaml:"held_ticket_text"`
	LimitReachedText string        `yaml:"limit_reached_text"`

	Pacing    PacingConfig   `yaml:"pacing"`
	Selectors SelectorConfig `yaml:"selectors"`
}

// Window is an inclusive millisecond range for a pacing delay.
type Window struct {
	MinMs int `yaml:"min_ms"`
	MaxMs int `yaml:"max_ms"`
}

type PacingConfig struct {
	Homepage     Window `yaml:"homepage"`
	LoginStep    Window `yaml:"login_step"`
	FilterSettle Window `yaml:"filter_settle"`
	DetailPage   Window `yaml:"detail_page"`
	Answer       Window `yaml:"answer"`
	AfterAdd     Window `yaml:"after_add"`
	Cart         Window `yaml:"cart"`
	Checkout     Window `yaml:"checkout"`
}

// Target locates an element by CSS selector, optionally narrowed to elements
// whose text contains Text.
type Target struct {
	CSS  string `yaml:"css"`
	Text string `yaml:"text,omitempty"`
}

func (t Target) String() string {
	if t.Text == "" {
		return t.CSS
	}
	return fmt.Sprintf("%s[text~=%q]", t.CSS, t.Text)
}

type SelectorConfig struct {
	CookieAccept     Target `yaml:"cookie_accept"`
	LoginLink        Target `yaml:"login_link"`
	UsernameInput    Target `yaml:"username_input"`
	PasswordInput    Target `yaml:"password_input"`
	LoginSubmit      Target `yaml:"login_submit"`
	FreeFilter       Target `yaml:"free_filter"`
	FreeFilterActive Target `yaml:"free_filter_active"`
	ListingCard      string `yaml:"listing_card"`
	ListingPrice     string `yaml:"listing_price"`
	ListingTitle     string `yaml:"listing_title"`
	ListingLink      string `yaml:"listing_link"`
	QuestionSelect   Target `yaml:"question_select"`
	SubmitEntry      Target `yaml:"submit_entry"`
	ProceedCheckout  Target `yaml:"proceed_checkout"`
	PlaceOrder       Target `yaml:"place_order"`
}

func DefaultConfig() *Config {
	return &Config{
		BaseURL:          "https://www.revcomps.com/",
		CartURL:          "https://www.revcomps.com/cart/",
		ResultPath:       defaultResultPath,
		Headless:         true,
		Leakless:         true,
		UseStealth:       true,
		RunTimeout:       defaultRunTimeout,
		ListingsTimeout:  30 * time.Second,
		FilterWait:       3 * time.Second,
		FilterStrategies: []string{"click", "dom-click", "dispatch"},
		ProbeTimeout:     2 * time.Second,
		AnswerValue:      "london",
		HeldTicketText:   "YOU HAVE 1 TICKET ON THIS PRIZE",
		LimitReachedText: "You cannot purchase anymore tickets",
		Pacing: PacingConfig{
			Homepage:     Window{300, 900},
			LoginStep:    Window{250, 700},
			FilterSettle: Window{500, 1000},
			DetailPage:   Window{400, 1200},
			Answer:       Window{300, 900},
			AfterAdd:     Window{500, 1500},
			Cart:         Window{500, 1200},
			Checkout:     Window{700, 1400},
		},
		Selectors: SelectorConfig{
			CookieAccept:     Target{CSS: "button", Text: "Accept All"},
			LoginLink:        Target{CSS: "a", Text: "Log In"},
			UsernameInput:    Target{CSS: "input#username, input[name='username']"},
			PasswordInput:    Target{CSS: "input#password, input[name='password']"},
			LoginSubmit:      Target{CSS: "button[name='login'], button[type='submit']", Text: "Log In"},
			FreeFilter:       Target{CSS: "[data-filter='free']"},
			FreeFilterActive: Target{CSS: "[data-filter='free'].active"},
			ListingCard:      "div.qode-pli",
			ListingPrice:     "div.price_image",
			ListingTitle:     ".qode-pli-title",
			ListingLink:      "a.qode-pli-link",
			QuestionSelect:   Target{CSS: "#question_select"},
			SubmitEntry:      Target{CSS: "#submitorder"},
			ProceedCheckout:  Target{CSS: "a", Text: "Proceed to checkout"},
			PlaceOrder:       Target{CSS: "#place_order"},
		},
	}
}

// LoadConfig reads the YAML file at path on top of the defaults. A missing
// file is created with the defaults.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := config.Save(path); err != nil {
			return nil, err
		}
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if config.RunTimeout <= 0 {
		config.RunTimeout = defaultRunTimeout
	}

	return config, nil
}

func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	return os.WriteFile(path, data, 0644)
}

// ApplyEnv layers environment values over the file configuration and
// validates the credentials. The config is not modified after this returns.
func (c *Config) ApplyEnv(env Env) error {
	if err := CheckCredentials(env); err != nil {
		return err
	}
	c.Username = env.Get(envUsername)
	c.Password = env.Get(envPassword)

	if v := env.Get(envTestMode); v != "" {
		c.TestMode = parseFlag(v)
	}
	if v := env.Get(envHeadless); v != "" {
		c.Headless = parseFlag(v)
	}
	if v := env.Get(envStorageStatePath); v != "" {
		c.StorageStatePath = v
	}

	c.ResultPath = resolveResultPath(env.Get(envResultPath))
	return nil
}

// CheckCredentials fails with ErrMissingCredentials unless both the
// username and password are set.
func CheckCredentials(env Env) error {
	if env.Get(envUsername) == "" || env.Get(envPassword) == "" {
		return ErrMissingCredentials
	}
	return nil
}

// parseFlag accepts "true" in any case or a literal "1".
func parseFlag(v string) bool {
	return strings.EqualFold(v, "true") || v == "1"
}

func resolveResultPath(p string) string {
	if p == "" {
		p = defaultResultPath
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
