package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnginePlaywright = "playwright"
	EngineRod        = "rod"
)

// DefaultUserAgent is presented to the admin UI, which refuses browsers older than Firefox 136.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:140.0) Gecko/20100101 Firefox/140.0"

// Config holds every recognised setting. Durations are stored the way they are
// configured (milliseconds for timeouts, seconds for delays) and exposed through methods.
type Config struct {
	StoreSlug    string `yaml:"store_slug"`
	AdminBaseURL string `yaml:"admin_base_url"`

	ProfileDir    string `yaml:"profile_dir"`
	DownloadDir   string `yaml:"download_dir"`
	ScreenshotDir string `yaml:"screenshot_dir"`
	LogDir        string `yaml:"log_dir"`
	SnapshotDir   string `yaml:"snapshot_dir"`

	Timezone string `yaml:"timezone"`
	Headless bool   `yaml:"headless"`

	TimeoutPageLoad  int `yaml:"timeout_page_load"`
	TimeoutSelector  int `yaml:"timeout_selector"`
	TimeoutDownload  int `yaml:"timeout_download"`
	TimeoutLoginWait int `yaml:"timeout_login_wait"`

	RetryAttempts int     `yaml:"retry_attempts"`
	RetryDelay    float64 `yaml:"retry_delay"`

	HumanDelayMin float64 `yaml:"human_delay_min"`
	HumanDelayMax float64 `yaml:"human_delay_max"`

	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	LogLevel string `yaml:"log_level"`

	BrowserEngine     string `yaml:"browser_engine"`
	PlaywrightBrowser string `yaml:"playwright_browser"`
	BrowserContainer  bool   `yaml:"browser_container"`
	ContainerImage    string `yaml:"container_image"`
	UserAgent         string `yaml:"user_agent"`

	StrictPDFValidation bool `yaml:"strict_pdf_validation"`

	RateLimitPerHour int `yaml:"rate_limit_per_hour"`
	RateLimitBurst   int `yaml:"rate_limit_burst"`
}

func DefaultConfig() *Config {
	return &Config{
		AdminBaseURL:      "https://admin.shopify.com",
		ProfileDir:        "./.browser-profile",
		DownloadDir:       "./downloads",
		ScreenshotDir:     "./screenshots",
		LogDir:            "./logs",
		SnapshotDir:       "./storage/profiles",
		Timezone:          "UTC",
		Headless:          false,
		TimeoutPageLoad:   60000,
		TimeoutSelector:   30000,
		TimeoutDownload:   30000,
		TimeoutLoginWait:  300000,
		RetryAttempts:     3,
		RetryDelay:        2.0,
		HumanDelayMin:     0.5,
		HumanDelayMax:     2.0,
		Host:              "0.0.0.0",
		Port:              8000,
		LogLevel:          "info",
		BrowserEngine:     EnginePlaywright,
		PlaywrightBrowser: "firefox",
		ContainerImage:    "browserless/chrome:latest",
		UserAgent:         DefaultUserAgent,
		RateLimitPerHour:  600,
		RateLimitBurst:    20,
	}
}

// Load builds the configuration from defaults, an optional YAML file and the
// environment, in that order of precedence (environment wins).
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	cfg.StoreSlug = strings.TrimSpace(cfg.StoreSlug)
	cfg.AdminBaseURL = strings.TrimRight(cfg.AdminBaseURL, "/")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	strs := map[string]*string{
		"STORE_SLUG":         &c.StoreSlug,
		"ADMIN_BASE_URL":     &c.AdminBaseURL,
		"PROFILE_DIR":        &c.ProfileDir,
		"DOWNLOAD_DIR":       &c.DownloadDir,
		"SCREENSHOT_DIR":     &c.ScreenshotDir,
		"LOG_DIR":            &c.LogDir,
		"SNAPSHOT_DIR":       &c.SnapshotDir,
		"TIMEZONE":           &c.Timezone,
		"HOST":               &c.Host,
		"LOG_LEVEL":          &c.LogLevel,
		"BROWSER_ENGINE":     &c.BrowserEngine,
		"PLAYWRIGHT_BROWSER": &c.PlaywrightBrowser,
		"CONTAINER_IMAGE":    &c.ContainerImage,
		"USER_AGENT":         &c.UserAgent,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"TIMEOUT_PAGE_LOAD":   &c.TimeoutPageLoad,
		"TIMEOUT_SELECTOR":    &c.TimeoutSelector,
		"TIMEOUT_DOWNLOAD":    &c.TimeoutDownload,
		"TIMEOUT_LOGIN_WAIT":  &c.TimeoutLoginWait,
		"RETRY_ATTEMPTS":      &c.RetryAttempts,
		"PORT":                &c.Port,
		"RATE_LIMIT_PER_HOUR": &c.RateLimitPerHour,
		"RATE_LIMIT_BURST":    &c.RateLimitBurst,
	}
	for key, dst := range ints {
		v, ok := lookup(key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = n
	}

	floats := map[string]*float64{
		"RETRY_DELAY":     &c.RetryDelay,
		"HUMAN_DELAY_MIN": &c.HumanDelayMin,
		"HUMAN_DELAY_MAX": &c.HumanDelayMax,
	}
	for key, dst := range floats {
		v, ok := lookup(key)
		if !ok {
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = f
	}

	bools := map[string]*bool{
		"HEADLESS":              &c.Headless,
		"BROWSER_CONTAINER":     &c.BrowserContainer,
		"STRICT_PDF_VALIDATION": &c.StrictPDFValidation,
	}
	for key, dst := range bools {
		v, ok := lookup(key)
		if !ok {
			continue
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = b
	}

	return nil
}

// Validate checks the settings that cannot be defaulted
func (c *Config) Validate() error {
	if strings.TrimSpace(c.StoreSlug) == "" {
		return errors.New("STORE_SLUG is required: find it in your admin URL https://admin.shopify.com/store/YOUR-STORE-SLUG")
	}
	if c.RetryAttempts < 1 {
		return fmt.Errorf("retry_attempts must be at least 1, got %d", c.RetryAttempts)
	}
	if c.HumanDelayMin < 0 || c.HumanDelayMax < c.HumanDelayMin {
		return fmt.Errorf("human delay bounds invalid: min=%.2f max=%.2f", c.HumanDelayMin, c.HumanDelayMax)
	}
	switch c.BrowserEngine {
	case EnginePlaywright, EngineRod:
	default:
		return fmt.Errorf("unsupported browser_engine %q (want %q or %q)", c.BrowserEngine, EnginePlaywright, EngineRod)
	}
	if c.BrowserContainer && c.BrowserEngine != EngineRod {
		return errors.New("browser_container requires browser_engine=rod")
	}
	return nil
}

// EnsureDirectories creates every directory the service writes into
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.DownloadDir, c.ScreenshotDir, c.LogDir, c.ProfileDir, c.SnapshotDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// AdminStoreURL is the admin home for the configured store
func (c *Config) AdminStoreURL() string {
	return fmt.Sprintf("%s/store/%s", c.AdminBaseURL, c.StoreSlug)
}

func (c *Config) PageLoadTimeout() time.Duration  { return millis(c.TimeoutPageLoad) }
func (c *Config) SelectorTimeout() time.Duration  { return millis(c.TimeoutSelector) }
func (c *Config) DownloadTimeout() time.Duration  { return millis(c.TimeoutDownload) }
func (c *Config) LoginWaitTimeout() time.Duration { return millis(c.TimeoutLoginWait) }
func (c *Config) RetryDelayDuration() time.Duration {
	return seconds(c.RetryDelay)
}
func (c *Config) HumanDelayBounds() (time.Duration, time.Duration) {
	return seconds(c.HumanDelayMin), seconds(c.HumanDelayMax)
}

// Addr is the listen address for the HTTP server
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func millis(ms int) time.Duration { return time.Duration(ms) * time.Millisecond }

func seconds(s float64) time.Duration { return time.Duration(s * float64(time.Second)) }
