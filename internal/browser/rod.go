package browser

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"go.uber.org/zap"
)

// quiet period used to decide the network is idle
const requestIdleWindow = 500 * time.Millisecond

// RodEngine drives Chromium over CDP with stealth pages. When a container launcher
// is set the browser runs inside docker instead of as a local process.
type RodEngine struct {
	logger    *zap.Logger
	container *ContainerLauncher
}

// NewRodEngine creates a new rod engine; a nil container launches a local browser
func NewRodEngine(container *ContainerLauncher, logger *zap.Logger) *RodEngine {
	return &RodEngine{
		logger:    logger.With(zap.String("component", "rod")),
		container: container,
	}
}

func (e *RodEngine) Name() string {
	if e.container != nil {
		return "rod-container"
	}
	return "rod"
}

func (e *RodEngine) Launch(ctx context.Context, opts LaunchOptions) (Context, error) {
	profileDir, err := filepath.Abs(opts.ProfileDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve profile dir: %w", err)
	}

	rc := &rodContext{
		userAgent:      opts.UserAgent,
		defaultTimeout: opts.DefaultTimeout,
		logger:         e.logger,
	}

	if e.container != nil {
		inst, err := e.container.Launch(ctx, profileDir)
		if err != nil {
			return nil, err
		}
		rc.controlURL = inst.ConnectURL
		rc.alive = func(ctx context.Context) bool {
			return e.container.IsHealthy(ctx, inst.ContainerID)
		}
		rc.stop = func() error {
			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return e.container.Stop(stopCtx, inst.ContainerID)
		}
	} else {
		if err := os.MkdirAll(profileDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create profile dir: %w", err)
		}

		// leakless deadlocks on windows, see go-rod/rod#853
		l := launcher.New().
			Leakless(runtime.GOOS != "windows").
			Headless(opts.Headless).
			UserDataDir(profileDir)
		if bin, ok := launcher.LookPath(); ok {
			l = l.Bin(bin)
		}

		url, err := l.Launch()
		if err != nil {
			if strings.Contains(err.Error(), "SingletonLock") || strings.Contains(err.Error(), "ProcessSingleton") {
				return nil, fmt.Errorf("profile %s is in use by another browser: %w", profileDir, err)
			}
			return nil, fmt.Errorf("failed to launch browser: %w", err)
		}
		rc.controlURL = url
		// no launcher.Cleanup here: it removes the user data dir, which is the persistent profile
		rc.stop = func() error {
			l.Kill()
			return nil
		}
	}

	b := rod.New().ControlURL(rc.controlURL)
	if opts.Humanize {
		b = b.SlowMotion(humanizeSlowMo)
	}
	if err := b.Connect(); err != nil {
		_ = rc.stop()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}
	rc.browser = b

	e.logger.Info("browser connected",
		zap.String("profile_dir", profileDir),
		zap.Bool("headless", opts.Headless),
		zap.Bool("container", e.container != nil))

	return rc, nil
}

func (e *RodEngine) Shutdown() error {
	if e.container != nil {
		return e.container.Close()
	}
	return nil
}

type rodContext struct {
	browser        *rod.Browser
	controlURL     string
	userAgent      string
	defaultTimeout time.Duration
	logger         *zap.Logger
	stop           func() error
	// alive checks the process or container hosting the browser, when known
	alive func(ctx context.Context) bool
}

func (c *rodContext) NewPage() (Page, error) {
	p, err := stealth.Page(c.browser)
	if err != nil {
		return nil, fmt.Errorf("failed to create stealth page: %w", err)
	}
	return c.wrap(p), nil
}

func (c *rodContext) wrap(p *rod.Page) *rodPage {
	if c.userAgent != "" {
		if err := p.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: c.userAgent}); err != nil {
			c.logger.Warn("failed to set user agent", zap.Error(err))
		}
	}
	if err := (proto.NetworkEnable{}).Call(p); err != nil {
		c.logger.Warn("failed to enable network domain", zap.Error(err))
	}
	return &rodPage{page: p, defaultTimeout: c.defaultTimeout}
}

func (c *rodContext) Pages() []Page {
	pages, err := c.browser.Pages()
	if err != nil {
		return nil
	}
	out := make([]Page, 0, len(pages))
	for _, p := range pages {
		out = append(out, &rodPage{page: p, defaultTimeout: c.defaultTimeout})
	}
	return out
}

func (c *rodContext) Close() error {
	err := c.browser.Close()
	if stopErr := c.stop(); stopErr != nil && err == nil {
		err = stopErr
	}
	return err
}

func (c *rodContext) DebuggerURL() string { return c.controlURL }

func (c *rodContext) Healthy(ctx context.Context) bool {
	if c.alive != nil && !c.alive(ctx) {
		return false
	}
	_, err := proto.BrowserGetVersion{}.Call(c.browser.Context(ctx))
	return err == nil
}

type rodPage struct {
	page           *rod.Page
	defaultTimeout time.Duration

	mu     sync.Mutex
	closed atomic.Bool
}

func wrapRodErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return err
}

func (p *rodPage) timeout(d time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.defaultTimeout
}

func (p *rodPage) withTimeout(d time.Duration) *rod.Page {
	if d = p.timeout(d); d > 0 {
		return p.page.Timeout(d)
	}
	return p.page
}

func (p *rodPage) URL() string {
	info, err := p.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (p *rodPage) Goto(url string, wait WaitUntil, timeout time.Duration) error {
	pp := p.withTimeout(timeout)

	var waitFn func()
	switch wait {
	case WaitDOMContentLoaded:
		waitFn = pp.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	case WaitLoad:
		waitFn = pp.WaitNavigation(proto.PageLifecycleEventNameLoad)
	}

	if err := pp.Navigate(url); err != nil {
		var navErr *rod.NavigationError
		// chromium aborts navigations that turn into downloads; the response was still delivered
		if wait == WaitCommit && errors.As(err, &navErr) && strings.Contains(navErr.Reason, "ERR_ABORTED") {
			return nil
		}
		return wrapRodErr(err)
	}
	if waitFn != nil {
		waitFn()
	}
	return wrapRodErr(pp.GetContext().Err())
}

func (p *rodPage) WaitForNetworkIdle(timeout time.Duration) error {
	pp := p.withTimeout(timeout)
	pp.WaitRequestIdle(requestIdleWindow, nil, nil, nil)()
	return wrapRodErr(pp.GetContext().Err())
}

func (p *rodPage) WaitForSelector(selector string, timeout time.Duration) error {
	_, err := p.withTimeout(timeout).Element(selector)
	return wrapRodErr(err)
}

func (p *rodPage) Content() (string, error) { return p.page.HTML() }

func (p *rodPage) SetContent(html string) error { return p.page.SetDocumentContent(html) }

func (p *rodPage) Screenshot(path string) error {
	data, err := p.page.Screenshot(true, nil)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (p *rodPage) OnResponse(fn func(Response)) func() {
	pp, cancel := p.page.WithCancel()
	go pp.EachEvent(func(e *proto.NetworkResponseReceived) {
		fn(&rodResponse{page: p.page, event: e})
	})()
	return cancel
}

// fetches with the page's cookies and returns the body base64 encoded
const fetchJS = `(url, timeoutMs) => {
	const ctrl = new AbortController();
	const timer = setTimeout(() => ctrl.abort(), timeoutMs);
	return fetch(url, {credentials: 'include', signal: ctrl.signal}).then(async (r) => {
		const buf = new Uint8Array(await r.arrayBuffer());
		let bin = '';
		for (let i = 0; i < buf.length; i += 0x8000) {
			bin += String.fromCharCode.apply(null, buf.subarray(i, i + 0x8000));
		}
		clearTimeout(timer);
		return {status: r.status, type: r.headers.get('content-type') || '', body: btoa(bin)};
	});
}`

func (p *rodPage) Fetch(url string, timeout time.Duration) (*FetchResult, error) {
	d := p.timeout(timeout)
	res, err := p.withTimeout(d).Eval(fetchJS, url, d.Milliseconds())
	if err != nil {
		return nil, wrapRodErr(err)
	}

	body, err := base64.StdEncoding.DecodeString(res.Value.Get("body").Str())
	if err != nil {
		return nil, fmt.Errorf("failed to decode fetched body: %w", err)
	}
	return &FetchResult{
		Status:      res.Value.Get("status").Int(),
		ContentType: res.Value.Get("type").Str(),
		Body:        body,
	}, nil
}

func (p *rodPage) SetDefaultTimeout(d time.Duration) {
	p.mu.Lock()
	p.defaultTimeout = d
	p.mu.Unlock()
}

func (p *rodPage) Close() error {
	p.closed.Store(true)
	return p.page.Close()
}

func (p *rodPage) IsClosed() bool {
	if p.closed.Load() {
		return true
	}
	if _, err := p.page.Info(); err != nil {
		return true
	}
	return false
}

type rodResponse struct {
	page  *rod.Page
	event *proto.NetworkResponseReceived
}

func (r *rodResponse) URL() string { return r.event.Response.URL }

func (r *rodResponse) Status() int { return r.event.Response.Status }

func (r *rodResponse) Header(name string) string {
	for k, v := range r.event.Response.Headers {
		if strings.EqualFold(k, name) {
			return v.Str()
		}
	}
	return ""
}

// Body polls until the browser has finished loading the response body
func (r *rodResponse) Body() ([]byte, error) {
	var lastErr error
	for i := 0; i < 20; i++ {
		res, err := proto.NetworkGetResponseBody{RequestID: r.event.RequestID}.Call(r.page)
		if err == nil {
			if res.Base64Encoded {
				return base64.StdEncoding.DecodeString(res.Body)
			}
			return []byte(res.Body), nil
		}
		lastErr = err
		time.Sleep(250 * time.Millisecond)
	}
	return nil, fmt.Errorf("failed to read response body: %w", lastErr)
}
