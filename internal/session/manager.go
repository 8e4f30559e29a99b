// Package session owns the long-lived browser session: the persistent context,
// the shared workflow state and the login flow.
package session

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/invoice-scraper/internal/browser"
	"github.com/shehryarbajwa/invoice-scraper/internal/metrics"
	"github.com/shehryarbajwa/invoice-scraper/pkg/models"
)

// ErrNoSession is returned when an operation needs a running browser
var ErrNoSession = errors.New("no browser session")

//go:embed static/status.html
var statusPage []byte

const fallbackStatusHTML = `<!DOCTYPE html><html><head><title>Invoice Scraper - Bereit</title></head><body style="margin:0"><div style="display:flex;align-items:center;justify-content:center;height:100vh;font-family:sans-serif;background:#1a1a2e;color:#fff;"><div style="text-align:center"><h1>✓ Scraper bereit</h1><p style="color:#888">Warte auf Aufgaben...</p></div></div></body></html>`

// Options configures how the persistent context is launched
type Options struct {
	ProfileDir  string
	Headless    bool
	UserAgent   string
	Humanize    bool
	PageTimeout time.Duration
}

// Manager holds at most one persistent browser context at a time
type Manager struct {
	engine browser.Engine
	state  *State
	opts   Options
	logger *zap.Logger

	mu   sync.Mutex
	bctx browser.Context
}

// NewManager creates a new browser session manager; the browser is launched on first use
func NewManager(engine browser.Engine, state *State, opts Options, logger *zap.Logger) *Manager {
	return &Manager{
		engine: engine,
		state:  state,
		opts:   opts,
		logger: logger.With(zap.String("component", "session")),
	}
}

// AcquireContext returns the live context, launching one bound to the profile
// directory when none exists.
func (m *Manager) AcquireContext(ctx context.Context) (browser.Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.bctx != nil {
		hc, ok := m.bctx.(browser.HealthChecker)
		if !ok || hc.Healthy(ctx) {
			return m.bctx, nil
		}
		m.logger.Warn("browser stopped responding, relaunching")
		if err := m.bctx.Close(); err != nil {
			m.logger.Debug("error closing dead browser", zap.Error(err))
		}
		m.bctx = nil
		metrics.BrowserRunning.Set(0)
	}

	if err := os.MkdirAll(m.opts.ProfileDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create profile directory: %w", err)
	}

	m.logger.Info("launching browser with persistent profile",
		zap.String("profile_dir", m.opts.ProfileDir),
		zap.String("engine", m.engine.Name()))

	bctx, err := m.engine.Launch(ctx, browser.LaunchOptions{
		ProfileDir:     m.opts.ProfileDir,
		Headless:       m.opts.Headless,
		UserAgent:      m.opts.UserAgent,
		Humanize:       m.opts.Humanize,
		DefaultTimeout: m.opts.PageTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	m.bctx = bctx
	metrics.BrowserRunning.Set(1)
	return bctx, nil
}

// NewPage opens a page in the (possibly freshly launched) context with the page-load timeout
func (m *Manager) NewPage(ctx context.Context) (browser.Page, error) {
	bctx, err := m.AcquireContext(ctx)
	if err != nil {
		return nil, err
	}
	page, err := bctx.NewPage()
	if err != nil {
		return nil, err
	}
	if m.opts.PageTimeout > 0 {
		page.SetDefaultTimeout(m.opts.PageTimeout)
	}
	return page, nil
}

// CloseSession tears the browser down. Close errors are logged, never returned.
func (m *Manager) CloseSession() {
	m.mu.Lock()
	bctx := m.bctx
	m.bctx = nil
	m.mu.Unlock()
	metrics.BrowserRunning.Set(0)

	if bctx != nil {
		if err := bctx.Close(); err != nil {
			m.logger.Warn("error closing browser", zap.Error(err))
		} else {
			m.logger.Info("browser closed")
		}
	}
	m.state.SetStatus(models.StatusUnknown)
}

// CloseAllPages closes every page but keeps the context, and with it the cookies, alive
func (m *Manager) CloseAllPages() {
	bctx := m.current()
	if bctx == nil {
		return
	}

	pages := bctx.Pages()
	for _, p := range pages {
		if err := p.Close(); err != nil {
			m.logger.Debug("error closing page", zap.Error(err))
		}
	}
	m.logger.Debug("closed browser pages", zap.Int("count", len(pages)))
}

// ShowIdleStatusPage leaves a single tab open showing that the browser is
// intentionally kept alive between jobs.
func (m *Manager) ShowIdleStatusPage() {
	bctx := m.current()
	if bctx == nil {
		return
	}

	pages := bctx.Pages()
	var page browser.Page
	if len(pages) > 0 {
		for _, p := range pages[:len(pages)-1] {
			_ = p.Close()
		}
		if last := pages[len(pages)-1]; !last.IsClosed() {
			page = last
		}
	}

	if page == nil {
		var err error
		page, err = bctx.NewPage()
		if err != nil {
			m.logger.Warn("could not create page for status", zap.Error(err))
			return
		}
	}

	statusURL, err := writeStatusPage()
	if err == nil {
		err = page.Goto(statusURL, browser.WaitLoad, 10*time.Second)
	}
	if err == nil {
		m.logger.Info("browser showing status page, ready for tasks")
		return
	}

	m.logger.Debug("status page unavailable, using inline fallback", zap.Error(err))
	if err := page.Goto("about:blank", browser.WaitLoad, 10*time.Second); err != nil {
		m.logger.Warn("error showing status page", zap.Error(err))
		return
	}
	if err := page.SetContent(fallbackStatusHTML); err != nil {
		m.logger.Warn("error showing status page", zap.Error(err))
		return
	}
	m.logger.Info("browser showing fallback status page")
}

// Running reports whether a browser context is live
func (m *Manager) Running() bool {
	return m.current() != nil
}

// DebuggerURL is the DevTools endpoint of the live browser, if the engine exposes one
func (m *Manager) DebuggerURL() string {
	bctx := m.current()
	if bctx == nil {
		return ""
	}
	return bctx.DebuggerURL()
}

func (m *Manager) EngineName() string { return m.engine.Name() }

func (m *Manager) current() browser.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bctx
}

// writeStatusPage materialises the embedded status page and returns its file:// URL
func writeStatusPage() (string, error) {
	path := filepath.Join(os.TempDir(), "invoice-scraper-status.html")
	if err := os.WriteFile(path, statusPage, 0644); err != nil {
		return "", fmt.Errorf("failed to write status page: %w", err)
	}
	slashed := filepath.ToSlash(path)
	if !strings.HasPrefix(slashed, "/") {
		slashed = "/" + slashed
	}
	u := url.URL{Scheme: "file", Path: slashed}
	return u.String(), nil
}
