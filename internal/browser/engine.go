// Package browser defines the narrow browser capability the scraper needs and
// binds it to real automation engines (playwright-go and rod).
package browser

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is wrapped by every engine when a navigation or wait runs out of time
var ErrTimeout = errors.New("timeout")

// WaitUntil selects which navigation milestone Goto waits for
type WaitUntil string

const (
	// WaitCommit returns once response headers are received; used for binary downloads
	// which never fire a load event.
	WaitCommit           WaitUntil = "commit"
	WaitDOMContentLoaded WaitUntil = "domcontentloaded"
	WaitLoad             WaitUntil = "load"
)

// LaunchOptions configures the persistent browser context
type LaunchOptions struct {
	ProfileDir     string
	Headless       bool
	UserAgent      string
	Humanize       bool
	DefaultTimeout time.Duration
}

// Engine launches persistent contexts bound to a profile directory
type Engine interface {
	Name() string
	Launch(ctx context.Context, opts LaunchOptions) (Context, error)
	// Shutdown releases engine-wide resources (driver processes, docker clients).
	Shutdown() error
}

// Context is a live persistent browser context. Cookies live here, not in pages.
type Context interface {
	NewPage() (Page, error)
	Pages() []Page
	Close() error
	// DebuggerURL is the DevTools websocket endpoint, or "" when the engine does not expose one.
	DebuggerURL() string
}

// Page is a single tab
type Page interface {
	URL() string
	Goto(url string, wait WaitUntil, timeout time.Duration) error
	WaitForNetworkIdle(timeout time.Duration) error
	WaitForSelector(selector string, timeout time.Duration) error
	Content() (string, error)
	SetContent(html string) error
	Screenshot(path string) error
	// OnResponse subscribes fn to every network response of the page and returns
	// the function that removes the subscription.
	OnResponse(fn func(Response)) (remove func())
	// Fetch issues a GET through the browser's network stack, carrying the session cookies.
	Fetch(url string, timeout time.Duration) (*FetchResult, error)
	SetDefaultTimeout(d time.Duration)
	Close() error
	IsClosed() bool
}

// HealthChecker is implemented by contexts that can tell whether the browser
// behind them still answers
type HealthChecker interface {
	Healthy(ctx context.Context) bool
}

// Response is an observed network response
type Response interface {
	URL() string
	Status() int
	Header(name string) string
	Body() ([]byte, error)
}

// FetchResult is the outcome of Page.Fetch
type FetchResult struct {
	Status      int
	ContentType string
	Body        []byte
}

// IsTimeout reports whether err is an engine timeout
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}
