package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/invoice-scraper/internal/browser"
	"github.com/shehryarbajwa/invoice-scraper/internal/clock"
	"github.com/shehryarbajwa/invoice-scraper/internal/metrics"
	"github.com/shehryarbajwa/invoice-scraper/pkg/models"
)

// AdminMarkerSelector matches the Polaris layout the admin renders once signed in
const AdminMarkerSelector = `[class*="Polaris-Page"], [class*="Polaris-Frame"]`

const (
	markerWait        = 5 * time.Second
	networkIdleWait   = 15 * time.Second
	loginPollInterval = 2 * time.Second
)

// URL fragments of the Shopify sign-in flow
var loginIndicators = []string{
	"accounts.shopify.com",
	"/login",
	"/auth/login",
	"identity.shopify.com",
}

var (
	ErrCancelled    = errors.New("cancelled by user")
	ErrLoginTimeout = errors.New("login timeout")
)

// FailureMessage converts an EnsureAuthenticated error into the text shown to API clients
func FailureMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCancelled):
		return models.MsgCancelled
	case errors.Is(err, ErrLoginTimeout):
		return models.MsgLoginTimeout
	default:
		return err.Error()
	}
}

// AuthConfig configures the login flow
type AuthConfig struct {
	AdminBaseURL string
	StoreURL     string
	LoginTimeout time.Duration
}

// Authenticator decides whether the persistent profile is signed in and, when it
// is not, waits for a human to complete the login in the open browser window.
type Authenticator struct {
	sessions *Manager
	state    *State
	clock    clock.Clock
	cfg      AuthConfig
	logger   *zap.Logger

	// "admin.shopify.com/store" for the default base URL
	storeMarker string
}

// NewAuthenticator creates a new login state machine
func NewAuthenticator(sessions *Manager, state *State, clk clock.Clock, cfg AuthConfig, logger *zap.Logger) *Authenticator {
	host := cfg.AdminBaseURL
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	return &Authenticator{
		sessions:    sessions,
		state:       state,
		clock:       clk,
		cfg:         cfg,
		logger:      logger.With(zap.String("component", "auth")),
		storeMarker: strings.TrimRight(host, "/") + "/store",
	}
}

// IsAuthenticated is a heuristic: no sign-in URL, and either the Polaris layout
// renders or the page is somewhere under the store admin.
func (a *Authenticator) IsAuthenticated(page browser.Page) bool {
	current := page.URL()
	for _, indicator := range loginIndicators {
		if strings.Contains(current, indicator) {
			a.logger.Info("login required, redirected to sign-in", zap.String("url", current))
			return false
		}
	}

	if err := page.WaitForSelector(AdminMarkerSelector, markerWait); err == nil {
		return true
	}

	html, err := page.Content()
	if err != nil {
		return strings.Contains(current, a.storeMarker)
	}
	return strings.Contains(html, "Polaris-Page") || strings.Contains(current, a.storeMarker)
}

// EnsureAuthenticated opens the store admin and returns nil once the session is
// signed in, waiting for a manual login when necessary.
func (a *Authenticator) EnsureAuthenticated(ctx context.Context) error {
	a.state.SetStatus(models.StatusChecking)

	page, err := a.sessions.NewPage(ctx)
	if err != nil {
		return a.fail(fmt.Errorf("failed to open page: %w", err))
	}
	defer func() {
		if err := page.Close(); err != nil {
			a.logger.Debug("error closing login page", zap.Error(err))
		}
	}()

	a.logger.Info("navigating to admin", zap.String("url", a.cfg.StoreURL))
	if err := page.Goto(a.cfg.StoreURL, browser.WaitDOMContentLoaded, 0); err != nil {
		return a.fail(fmt.Errorf("failed to open admin: %w", err))
	}
	if err := page.WaitForNetworkIdle(networkIdleWait); err != nil {
		a.logger.Debug("network did not settle", zap.Error(err))
	}

	if a.IsAuthenticated(page) {
		a.logger.Info("already logged into admin")
		a.state.SetStatus(models.StatusLoggedIn)
		metrics.LoginChecks.WithLabelValues("logged_in").Inc()
		return nil
	}

	a.logger.Warn("not logged in, manual login required",
		zap.Duration("wait", a.cfg.LoginTimeout))
	a.state.SetStatus(models.StatusLoginRequired)

	signal := a.state.beginLoginWait()
	defer a.state.endLoginWait()

	deadline := a.clock.Now().Add(a.cfg.LoginTimeout)
	for {
		if a.clock.Now().After(deadline) {
			a.logger.Error("user did not log in within time limit")
			metrics.LoginChecks.WithLabelValues("timeout").Inc()
			return ErrLoginTimeout
		}
		if a.state.Cancelled() {
			metrics.LoginChecks.WithLabelValues("cancelled").Inc()
			return ErrCancelled
		}
		if a.loginObserved(page, signal) {
			break
		}
		if err := a.clock.Sleep(ctx, loginPollInterval); err != nil {
			return a.fail(err)
		}
	}

	a.logger.Info("login successful")
	a.state.SetStatus(models.StatusLoggedIn)
	metrics.LoginChecks.WithLabelValues("manual_login").Inc()
	return nil
}

// SignalLoginComplete lets a client confirm the login instead of waiting for the next poll
func (a *Authenticator) SignalLoginComplete() bool {
	return a.state.SignalLoginComplete()
}

func (a *Authenticator) loginObserved(page browser.Page, signal <-chan struct{}) bool {
	select {
	case <-signal:
		return true
	default:
	}

	current := page.URL()
	if strings.Contains(current, a.storeMarker) && !strings.Contains(current, "/login") {
		return a.IsAuthenticated(page)
	}
	return false
}

func (a *Authenticator) fail(err error) error {
	a.logger.Error("error during login check", zap.Error(err))
	a.state.SetStatus(models.StatusUnknown)
	metrics.LoginChecks.WithLabelValues("error").Inc()
	return err
}
