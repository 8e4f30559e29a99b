package scraper

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/invoice-scraper/internal/browser"
)

const (
	strategyObserver = "observer"
	strategyFetch    = "fetch"
)

type downloadResult struct {
	data     []byte
	strategy string
	// status of a non-200 fallback response, 0 when none was seen
	status int
	// timeout is set when navigating to the PDF timed out
	timeout error
	err     error
}

func (r downloadResult) failure() string {
	if r.status != 0 {
		return strconv.Itoa(r.status)
	}
	return "No response captured"
}

type capturedBody struct {
	data []byte
	err  error
}

// download fetches the PDF behind link. PDFs have no DOM, so instead of waiting
// for a load event the response is captured off the network as the browser
// navigates to it; an authenticated fetch through the browser is the fallback.
func (s *Scraper) download(ctx context.Context, page browser.Page, link, invoiceUUID string, log *zap.Logger) downloadResult {
	captured := make(chan capturedBody, 1)
	var once sync.Once
	var matched atomic.Bool

	remove := page.OnResponse(func(r browser.Response) {
		if !isInvoiceResponse(r, invoiceUUID) {
			return
		}
		once.Do(func() {
			matched.Store(true)
			// Body blocks on the engine event loop that is delivering this callback
			go func() {
				data, err := r.Body()
				captured <- capturedBody{data: data, err: err}
			}()
		})
	})

	if err := page.Goto(link, browser.WaitCommit, s.opts.DownloadTimeout); err != nil {
		remove()
		if browser.IsTimeout(err) {
			return downloadResult{timeout: err}
		}
		return downloadResult{err: err}
	}

	wait := s.opts.CaptureGrace
	if matched.Load() && s.opts.DownloadTimeout > wait {
		wait = s.opts.DownloadTimeout
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	var res downloadResult
	select {
	case c := <-captured:
		if c.err != nil {
			log.Warn("failed to read response body", zap.Error(c.err))
		} else if len(c.data) > 0 {
			res.data = c.data
			res.strategy = strategyObserver
		}
	case <-timer.C:
	case <-ctx.Done():
	}
	remove()

	if res.data != nil {
		return res
	}

	fr, err := page.Fetch(link, s.opts.DownloadTimeout)
	if err != nil {
		log.Warn("fallback PDF fetch failed", zap.Error(err))
		return res
	}
	if fr.Status != http.StatusOK {
		res.status = fr.Status
		return res
	}
	if len(fr.Body) > 0 {
		res.data = fr.Body
		res.strategy = strategyFetch
	}
	return res
}

// isInvoiceResponse matches the successful response carrying the invoice document
func isInvoiceResponse(r browser.Response, invoiceUUID string) bool {
	if r.Status() != http.StatusOK || !strings.Contains(r.URL(), invoiceUUID) {
		return false
	}
	return strings.Contains(r.Header("content-type"), "pdf") || strings.HasSuffix(r.URL(), ".pdf")
}
