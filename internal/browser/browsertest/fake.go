// Package browsertest provides an in-memory browser engine for tests. Sites are
// registered by URL; navigating to a site replaces the page content, emits the
// site's responses to subscribers and makes its selectors visible.
package browsertest

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/shehryarbajwa/invoice-scraper/internal/browser"
)

// Site is what the fake returns for one URL
type Site struct {
	// RedirectTo, when set, is the URL the page ends up on
	RedirectTo string
	HTML       string
	Selectors  []string
	Responses  []*Response
	// GotoErr is returned from Goto after the responses were emitted
	GotoErr error
	// Fetch answers Page.Fetch for this URL
	Fetch    *browser.FetchResult
	FetchErr error
}

// Response is a canned network response
type Response struct {
	URLValue   string
	StatusCode int
	Headers    map[string]string
	BodyBytes  []byte
	BodyErr    error
}

func (r *Response) URL() string { return r.URLValue }
func (r *Response) Status() int { return r.StatusCode }
func (r *Response) Header(name string) string {
	for k, v := range r.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
func (r *Response) Body() ([]byte, error) { return r.BodyBytes, r.BodyErr }

// Engine is a fake browser.Engine
type Engine struct {
	mu        sync.Mutex
	Sites     map[string]*Site
	LaunchErr error
	Debugger  string

	launches []browser.LaunchOptions
	contexts []*Context
}

func NewEngine() *Engine {
	return &Engine{Sites: make(map[string]*Site)}
}

func (e *Engine) Name() string { return "fake" }

// SetSite registers or replaces the site served at url
func (e *Engine) SetSite(url string, site *Site) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Sites[url] = site
}

func (e *Engine) site(url string) (*Site, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.Sites[url]
	return s, ok
}

func (e *Engine) Launch(ctx context.Context, opts browser.LaunchOptions) (browser.Context, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.launches = append(e.launches, opts)
	if e.LaunchErr != nil {
		return nil, e.LaunchErr
	}
	c := &Context{engine: e}
	e.contexts = append(e.contexts, c)
	return c, nil
}

func (e *Engine) Shutdown() error { return nil }

// Launches returns the options of every Launch call
func (e *Engine) Launches() []browser.LaunchOptions {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]browser.LaunchOptions, len(e.launches))
	copy(out, e.launches)
	return out
}

// LastContext returns the most recently launched context, or nil
func (e *Engine) LastContext() *Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.contexts) == 0 {
		return nil
	}
	return e.contexts[len(e.contexts)-1]
}

// Context is a fake browser.Context
type Context struct {
	engine *Engine

	mu       sync.Mutex
	pages    []*Page
	closed   bool
	dead     bool
	CloseErr error
}

func (c *Context) NewPage() (browser.Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, fmt.Errorf("context closed")
	}
	p := &Page{engine: c.engine, handlers: make(map[int]func(browser.Response))}
	c.pages = append(c.pages, p)
	return p, nil
}

func (c *Context) Pages() []browser.Page {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]browser.Page, 0, len(c.pages))
	for _, p := range c.pages {
		if !p.IsClosed() {
			out = append(out, p)
		}
	}
	return out
}

// AllPages returns every page ever opened, closed ones included
func (c *Context) AllPages() []*Page {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Page, len(c.pages))
	copy(out, c.pages)
	return out
}

func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for _, p := range c.pages {
		_ = p.Close()
	}
	return c.CloseErr
}

func (c *Context) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Context) DebuggerURL() string { return c.engine.Debugger }

// Kill makes the context report itself unhealthy, as if the browser crashed
func (c *Context) Kill() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dead = true
}

func (c *Context) Healthy(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.dead && !c.closed
}

// Page is a fake browser.Page
type Page struct {
	engine *Engine

	mu          sync.Mutex
	url         string
	html        string
	selectors   map[string]bool
	closed      bool
	handlers    map[int]func(browser.Response)
	nextHandler int
	visited     []string
	screenshots []string
	timeout     time.Duration
}

// Load makes the page show url without emitting responses, as if the user navigated
func (p *Page) Load(url string) {
	site, ok := p.engine.site(url)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.apply(url, site, ok)
}

func (p *Page) apply(url string, site *Site, ok bool) {
	p.url = url
	p.html = ""
	p.selectors = nil
	if !ok {
		return
	}
	if site.RedirectTo != "" {
		p.url = site.RedirectTo
	}
	p.html = site.HTML
	p.selectors = make(map[string]bool, len(site.Selectors))
	for _, s := range site.Selectors {
		p.selectors[s] = true
	}
}

func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *Page) Goto(url string, wait browser.WaitUntil, timeout time.Duration) error {
	site, ok := p.engine.site(url)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return fmt.Errorf("page closed")
	}
	p.visited = append(p.visited, url)
	p.apply(url, site, ok)
	handlers := make([]func(browser.Response), 0, len(p.handlers))
	for _, h := range p.handlers {
		handlers = append(handlers, h)
	}
	p.mu.Unlock()

	if !ok {
		return nil
	}
	for _, r := range site.Responses {
		for _, h := range handlers {
			h(r)
		}
	}
	return site.GotoErr
}

func (p *Page) WaitForNetworkIdle(timeout time.Duration) error { return nil }

func (p *Page) WaitForSelector(selector string, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.selectors[selector] {
		return nil
	}
	return fmt.Errorf("%w: waiting for %s", browser.ErrTimeout, selector)
}

func (p *Page) Content() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.html, nil
}

func (p *Page) SetContent(html string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.html = html
	return nil
}

func (p *Page) Screenshot(path string) error {
	p.mu.Lock()
	p.screenshots = append(p.screenshots, path)
	p.mu.Unlock()
	return os.WriteFile(path, []byte("png"), 0644)
}

func (p *Page) OnResponse(fn func(browser.Response)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextHandler
	p.nextHandler++
	p.handlers[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.handlers, id)
	}
}

func (p *Page) Fetch(url string, timeout time.Duration) (*browser.FetchResult, error) {
	site, ok := p.engine.site(url)
	if !ok || (site.Fetch == nil && site.FetchErr == nil) {
		return nil, fmt.Errorf("no route for %s", url)
	}
	return site.Fetch, site.FetchErr
}

func (p *Page) SetDefaultTimeout(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.timeout = d
}

// DefaultTimeout returns the value last passed to SetDefaultTimeout
func (p *Page) DefaultTimeout() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timeout
}

func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *Page) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Visited lists every URL passed to Goto
func (p *Page) Visited() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.visited))
	copy(out, p.visited)
	return out
}

// Screenshots lists every screenshot path written
func (p *Page) Screenshots() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.screenshots))
	copy(out, p.screenshots)
	return out
}
