package browser

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"
)

// slow motion applied to every playwright action when humanize is on
const humanizeSlowMo = 50 * time.Millisecond

// PlaywrightEngine drives Firefox (default) or Chromium through playwright-go.
// The driver is installed and started lazily on the first launch.
type PlaywrightEngine struct {
	browserName string
	logger      *zap.Logger

	mu sync.Mutex
	pw *playwright.Playwright
}

// NewPlaywrightEngine creates a new playwright engine for firefox, chromium or webkit
func NewPlaywrightEngine(browserName string, logger *zap.Logger) *PlaywrightEngine {
	if browserName == "" {
		browserName = "firefox"
	}
	return &PlaywrightEngine{
		browserName: browserName,
		logger:      logger.With(zap.String("component", "playwright")),
	}
}

func (e *PlaywrightEngine) Name() string { return "playwright-" + e.browserName }

func (e *PlaywrightEngine) start() (*playwright.Playwright, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pw != nil {
		return e.pw, nil
	}

	if err := playwright.Install(&playwright.RunOptions{
		Browsers: []string{e.browserName},
		Verbose:  false,
	}); err != nil {
		return nil, fmt.Errorf("failed to install playwright driver: %w", err)
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}
	e.pw = pw
	return pw, nil
}

func (e *PlaywrightEngine) Launch(ctx context.Context, opts LaunchOptions) (Context, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pw, err := e.start()
	if err != nil {
		return nil, err
	}

	profileDir, err := filepath.Abs(opts.ProfileDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve profile dir: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchPersistentContextOptions{
		Headless:        playwright.Bool(opts.Headless),
		AcceptDownloads: playwright.Bool(true),
		Viewport:        &playwright.Size{Width: 1920, Height: 1080},
		Locale:          playwright.String("de-DE"),
	}
	if opts.UserAgent != "" {
		launchOpts.UserAgent = playwright.String(opts.UserAgent)
	}
	if opts.Humanize {
		launchOpts.SlowMo = playwright.Float(float64(humanizeSlowMo.Milliseconds()))
	}

	var browserType playwright.BrowserType
	switch e.browserName {
	case "chromium":
		browserType = pw.Chromium
		launchOpts.Args = []string{"--disable-blink-features=AutomationControlled"}
	case "webkit":
		browserType = pw.WebKit
	default:
		browserType = pw.Firefox
	}

	e.logger.Info("launching persistent context",
		zap.String("profile_dir", profileDir),
		zap.Bool("headless", opts.Headless))

	bc, err := browserType.LaunchPersistentContext(profileDir, launchOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to launch persistent context: %w", err)
	}
	if opts.DefaultTimeout > 0 {
		bc.SetDefaultTimeout(float64(opts.DefaultTimeout.Milliseconds()))
	}

	return &pwContext{bc: bc, pages: make(map[playwright.Page]*pwPage)}, nil
}

func (e *PlaywrightEngine) Shutdown() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pw == nil {
		return nil
	}
	err := e.pw.Stop()
	e.pw = nil
	return err
}

type pwContext struct {
	bc playwright.BrowserContext

	// one wrapper per page so response listeners are shared
	mu    sync.Mutex
	pages map[playwright.Page]*pwPage
}

func (c *pwContext) wrap(page playwright.Page) *pwPage {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.pages[page]; ok {
		return p
	}
	p := &pwPage{page: page}
	c.pages[page] = p
	return p
}

func (c *pwContext) NewPage() (Page, error) {
	page, err := c.bc.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	return c.wrap(page), nil
}

func (c *pwContext) Pages() []Page {
	pages := c.bc.Pages()

	c.mu.Lock()
	live := make(map[playwright.Page]*pwPage, len(pages))
	for _, page := range pages {
		if p, ok := c.pages[page]; ok {
			live[page] = p
		}
	}
	c.pages = live
	c.mu.Unlock()

	out := make([]Page, 0, len(pages))
	for _, page := range pages {
		out = append(out, c.wrap(page))
	}
	return out
}

func (c *pwContext) Close() error { return c.bc.Close() }

func (c *pwContext) DebuggerURL() string { return "" }

type pwPage struct {
	page playwright.Page

	subscribe sync.Once
	listeners responseListeners
}

func wrapPlaywrightErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, playwright.ErrTimeout) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return err
}

func msOpt(d time.Duration) *float64 {
	if d <= 0 {
		return nil
	}
	return playwright.Float(float64(d.Milliseconds()))
}

func (p *pwPage) URL() string { return p.page.URL() }

func (p *pwPage) Goto(url string, wait WaitUntil, timeout time.Duration) error {
	state := playwright.WaitUntilState(wait)
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: &state,
		Timeout:   msOpt(timeout),
	})
	return wrapPlaywrightErr(err)
}

func (p *pwPage) WaitForNetworkIdle(timeout time.Duration) error {
	return wrapPlaywrightErr(p.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: msOpt(timeout),
	}))
}

func (p *pwPage) WaitForSelector(selector string, timeout time.Duration) error {
	_, err := p.page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
		Timeout: msOpt(timeout),
	})
	return wrapPlaywrightErr(err)
}

func (p *pwPage) Content() (string, error) { return p.page.Content() }

func (p *pwPage) SetContent(html string) error { return p.page.SetContent(html) }

func (p *pwPage) Screenshot(path string) error {
	_, err := p.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
	})
	return err
}

// OnResponse registers fn behind a single playwright handler. playwright-go
// removes handlers by function pointer, which cannot tell two closures from
// the same source apart.
func (p *pwPage) OnResponse(fn func(Response)) func() {
	p.subscribe.Do(func() {
		p.page.OnResponse(func(r playwright.Response) {
			p.listeners.dispatch(&pwResponse{resp: r})
		})
	})
	return p.listeners.add(fn)
}

func (p *pwPage) Fetch(url string, timeout time.Duration) (*FetchResult, error) {
	resp, err := p.page.Context().Request().Get(url, playwright.APIRequestContextGetOptions{
		Timeout: msOpt(timeout),
	})
	if err != nil {
		return nil, wrapPlaywrightErr(err)
	}
	defer resp.Dispose()

	body, err := resp.Body()
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return &FetchResult{
		Status:      resp.Status(),
		ContentType: resp.Headers()["content-type"],
		Body:        body,
	}, nil
}

func (p *pwPage) SetDefaultTimeout(d time.Duration) {
	p.page.SetDefaultTimeout(float64(d.Milliseconds()))
}

func (p *pwPage) Close() error { return p.page.Close() }

func (p *pwPage) IsClosed() bool { return p.page.IsClosed() }

type pwResponse struct {
	resp playwright.Response
}

func (r *pwResponse) URL() string { return r.resp.URL() }

func (r *pwResponse) Status() int { return r.resp.Status() }

func (r *pwResponse) Header(name string) string {
	return r.resp.Headers()[strings.ToLower(name)]
}

func (r *pwResponse) Body() ([]byte, error) { return r.resp.Body() }
