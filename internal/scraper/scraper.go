// Package scraper extracts VAT invoice PDFs from admin order pages and layers
// retry and batch processing on top.
package scraper

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/invoice-scraper/internal/browser"
	"github.com/shehryarbajwa/invoice-scraper/internal/clock"
	"github.com/shehryarbajwa/invoice-scraper/internal/config"
	"github.com/shehryarbajwa/invoice-scraper/internal/dates"
	"github.com/shehryarbajwa/invoice-scraper/internal/invoice"
	"github.com/shehryarbajwa/invoice-scraper/internal/metrics"
	"github.com/shehryarbajwa/invoice-scraper/internal/session"
	"github.com/shehryarbajwa/invoice-scraper/pkg/models"
)

// OrderPageSelector marks a rendered order detail page
const OrderPageSelector = `[class*="Polaris-Page"]`

const (
	networkIdleWait     = 15 * time.Second
	defaultCaptureGrace = 2 * time.Second
)

// Outcome messages
const (
	MsgOrderLoadFailed = "Failed to load order page"
	MsgNotGenerated    = "No VAT invoice section found - invoice may not be generated yet"
	MsgLinkNotFound    = "Could not find invoice download link on page"
	MsgInvalidPDF      = "Downloaded content is not a valid PDF"
	MsgUnknownFailure  = "Unknown error after all retries"
)

// Options tunes extraction and retries
type Options struct {
	AdminBaseURL  string
	StoreURL      string
	DownloadDir   string
	ScreenshotDir string
	Location      *time.Location

	SelectorTimeout time.Duration
	DownloadTimeout time.Duration
	HumanDelayMin   time.Duration
	HumanDelayMax   time.Duration
	RetryAttempts   int
	RetryDelay      time.Duration

	// StrictPDF rejects documents pdfcpu cannot parse instead of only logging them
	StrictPDF bool
	// CaptureGrace is how long to wait for the intercepted response after navigation
	CaptureGrace time.Duration
}

// OptionsFromConfig maps service configuration onto scraper options
func OptionsFromConfig(cfg *config.Config, loc *time.Location) Options {
	minDelay, maxDelay := cfg.HumanDelayBounds()
	return Options{
		AdminBaseURL:    cfg.AdminBaseURL,
		StoreURL:        cfg.AdminStoreURL(),
		DownloadDir:     cfg.DownloadDir,
		ScreenshotDir:   cfg.ScreenshotDir,
		Location:        loc,
		SelectorTimeout: cfg.SelectorTimeout(),
		DownloadTimeout: cfg.DownloadTimeout(),
		HumanDelayMin:   minDelay,
		HumanDelayMax:   maxDelay,
		RetryAttempts:   cfg.RetryAttempts,
		RetryDelay:      cfg.RetryDelayDuration(),
		StrictPDF:       cfg.StrictPDFValidation,
		CaptureGrace:    defaultCaptureGrace,
	}
}

// Scraper runs one extraction at a time against the shared browser session
type Scraper struct {
	sessions *session.Manager
	auth     *session.Authenticator
	state    *session.State
	clock    clock.Clock
	opts     Options
	matchers []invoice.LinkMatcher
	logger   *zap.Logger

	// extract is Extract unless replaced in tests
	extract func(ctx context.Context, req models.ScrapeRequest) models.ScrapeOutcome
}

// New creates a new scraper over the shared browser session
func New(sessions *session.Manager, auth *session.Authenticator, state *session.State, clk clock.Clock, opts Options, logger *zap.Logger) *Scraper {
	if opts.CaptureGrace <= 0 {
		opts.CaptureGrace = defaultCaptureGrace
	}
	if opts.RetryAttempts < 1 {
		opts.RetryAttempts = 1
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	s := &Scraper{
		sessions: sessions,
		auth:     auth,
		state:    state,
		clock:    clk,
		opts:     opts,
		matchers: invoice.DefaultLinkMatchers,
		logger:   logger.With(zap.String("component", "scraper")),
	}
	s.extract = s.Extract
	return s
}

func (s *Scraper) orderURL(orderID string) string {
	return fmt.Sprintf("%s/orders/%s", s.opts.StoreURL, orderID)
}

// Extract performs a single attempt to download the invoice for one order. It
// never returns an error: every failure is folded into the outcome.
func (s *Scraper) Extract(ctx context.Context, req models.ScrapeRequest) (out models.ScrapeOutcome) {
	orderID, orderName := req.OrderID, req.OrderName
	log := s.logger.With(zap.String("order_id", orderID), zap.String("order_name", orderName))

	if !models.ValidOrderID(orderID) {
		log.Warn("rejected order id")
		return models.Failure(orderID, orderName, models.ErrorInvalidOrder, models.MsgInvalidOrderID)
	}

	if s.state.Cancelled() {
		log.Info("scraping cancelled before start")
		return models.Failure(orderID, orderName, models.ErrorCancelled, models.MsgCancelled)
	}

	start := s.clock.Now()
	defer func() {
		metrics.ScrapeDuration.Observe(s.clock.Now().Sub(start).Seconds())
	}()

	fail := func(kind models.ErrorKind, msg string) models.ScrapeOutcome {
		return models.Failure(orderID, orderName, kind, msg)
	}

	page, err := s.sessions.NewPage(ctx)
	if err != nil {
		log.Error("error scraping invoice", zap.Error(err))
		return fail(models.ErrorInternal, err.Error())
	}
	defer func() {
		if err := page.Close(); err != nil {
			log.Debug("error closing page", zap.Error(err))
		}
	}()

	if err := s.humanDelay(ctx, "navigation"); err != nil {
		return fail(models.ErrorInternal, err.Error())
	}

	orderURL := s.orderURL(orderID)
	log.Info("navigating to order page", zap.String("url", orderURL))
	if err := page.Goto(orderURL, browser.WaitDOMContentLoaded, 0); err != nil {
		log.Error("error scraping invoice", zap.Error(err))
		return fail(models.ErrorPageLoad, err.Error())
	}
	if err := page.WaitForNetworkIdle(networkIdleWait); err != nil {
		log.Debug("network did not settle", zap.Error(err))
	}

	if err := s.humanDelay(ctx, "page_loaded"); err != nil {
		return fail(models.ErrorInternal, err.Error())
	}

	if !s.auth.IsAuthenticated(page) {
		log.Warn("session expired, login required")
		s.state.SetStatus(models.StatusLoginRequired)
		return fail(models.ErrorNeedsLogin, models.MsgSessionExpired)
	}

	if err := page.WaitForSelector(OrderPageSelector, s.opts.SelectorTimeout); err != nil {
		out = fail(models.ErrorPageLoad, MsgOrderLoadFailed)
		out.ScreenshotPath = s.screenshot(page, "order_load_failed_"+orderID)
		return out
	}

	html, err := page.Content()
	if err != nil {
		return fail(models.ErrorInternal, err.Error())
	}

	link, strategy, ok := invoice.FindLink(html, s.matchers)
	if !ok {
		if !invoice.HasInvoiceSection(html) {
			out = fail(models.ErrorNotGenerated, MsgNotGenerated)
			out.ScreenshotPath = s.screenshot(page, "no_invoice_section_"+orderID)
			return out
		}
		out = fail(models.ErrorLinkNotFound, MsgLinkNotFound)
		out.ScreenshotPath = s.screenshot(page, "invoice_link_not_found_"+orderID)
		return out
	}
	link = invoice.Absolutize(link, s.opts.AdminBaseURL)
	log.Info("found invoice link", zap.String("strategy", strategy), zap.String("url", truncate(link, 80)))

	invoiceUUID := invoice.UUID(link)
	number := invoice.Number(link, html, orderID)
	invoiceDate, _ := invoice.Date(html)
	log.Info("extracted invoice metadata",
		zap.String("invoice_number", number),
		zap.String("invoice_uuid", invoiceUUID),
		zap.String("invoice_date", invoiceDate))

	folder := filepath.Join(s.opts.DownloadDir, dates.OrderDateFolder(req.OrderDate, s.opts.Location))
	if err := os.MkdirAll(folder, 0755); err != nil {
		return fail(models.ErrorInternal, fmt.Sprintf("failed to create download folder: %v", err))
	}
	dest := filepath.Join(folder, number+".pdf")

	if err := s.humanDelay(ctx, "download"); err != nil {
		return fail(models.ErrorInternal, err.Error())
	}

	log.Info("downloading PDF", zap.String("path", dest))
	dl := s.download(ctx, page, link, invoiceUUID, log)
	switch {
	case dl.timeout != nil:
		log.Warn("PDF navigation timeout", zap.String("invoice_number", number), zap.Error(dl.timeout))
		out = fail(models.ErrorDownloadTimeout, "PDF download timeout: "+dl.timeout.Error())
		out.ScreenshotPath = s.screenshot(page, "pdf_timeout_"+orderID)
		return out
	case dl.err != nil:
		log.Error("error scraping invoice", zap.Error(dl.err))
		return fail(models.ErrorInternal, dl.err.Error())
	case dl.data == nil:
		out = fail(models.ErrorDownloadFailed, "Failed to download PDF: "+dl.failure())
		out.ScreenshotPath = s.screenshot(page, "pdf_download_failed_"+orderID)
		return out
	}

	if err := invoice.ValidatePDF(dl.data); err != nil {
		if !invoice.IsPDF(dl.data) || s.opts.StrictPDF {
			log.Warn("downloaded content rejected", zap.Error(err))
			out = fail(models.ErrorInvalidPDF, MsgInvalidPDF)
			out.ScreenshotPath = s.screenshot(page, "pdf_invalid_"+orderID)
			return out
		}
		log.Warn("PDF failed structural validation, keeping it", zap.Error(err))
	}

	if err := os.WriteFile(dest, dl.data, 0644); err != nil {
		return fail(models.ErrorInternal, fmt.Sprintf("failed to write PDF: %v", err))
	}
	metrics.DownloadsTotal.WithLabelValues(dl.strategy).Inc()
	log.Info("PDF saved", zap.String("path", dest), zap.Int("bytes", len(dl.data)))

	return models.ScrapeOutcome{
		Success:       true,
		OrderID:       orderID,
		OrderName:     orderName,
		InvoiceNumber: number,
		InvoiceUUID:   invoiceUUID,
		InvoiceURL:    link,
		InvoiceDate:   invoiceDate,
		FilePath:      dest,
	}
}

// humanDelay sleeps for a random duration within the configured bounds
func (s *Scraper) humanDelay(ctx context.Context, action string) error {
	lo, hi := s.opts.HumanDelayMin, s.opts.HumanDelayMax
	d := lo
	if hi > lo {
		d += time.Duration(rand.Int64N(int64(hi - lo)))
	}
	s.logger.Debug("human delay", zap.String("before", action), zap.Duration("delay", d))
	return s.clock.Sleep(ctx, d)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
