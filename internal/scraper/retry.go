package scraper

import (
	"context"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/invoice-scraper/internal/metrics"
	"github.com/shehryarbajwa/invoice-scraper/pkg/models"
)

// WithRetry runs Extract up to the configured number of attempts. Login failures,
// cancellations and invoices that do not exist yet are returned immediately.
func (s *Scraper) WithRetry(ctx context.Context, req models.ScrapeRequest) models.ScrapeOutcome {
	out := s.withRetry(ctx, req)

	result := "success"
	if !out.Success {
		result = string(out.ErrorKind)
	}
	metrics.ScrapesTotal.WithLabelValues(result).Inc()
	return out
}

func (s *Scraper) withRetry(ctx context.Context, req models.ScrapeRequest) models.ScrapeOutcome {
	cancelled := models.Failure(req.OrderID, req.OrderName, models.ErrorCancelled, models.MsgCancelled)
	if s.state.Cancelled() {
		return cancelled
	}

	attempts := s.opts.RetryAttempts
	var last *models.ScrapeOutcome

	for attempt := 1; attempt <= attempts; attempt++ {
		if s.state.Cancelled() {
			return cancelled
		}

		s.logger.Info("scrape attempt",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.String("order", orderLabel(req)))
		metrics.ScrapeAttempts.Inc()

		out := s.extract(ctx, req)
		if out.Success || out.NeedsLogin || out.ErrorKind.Definitive() {
			return out
		}
		s.logger.Warn("attempt failed", zap.Int("attempt", attempt), zap.String("error", out.Error))
		last = &out

		if attempt < attempts {
			if err := s.clock.Sleep(ctx, s.opts.RetryDelay); err != nil {
				break
			}
		}
	}

	final := models.Failure(req.OrderID, req.OrderName, models.ErrorInternal, MsgUnknownFailure)
	if last != nil && last.Error != "" {
		final.Error = last.Error
		final.ErrorKind = last.ErrorKind
		final.ScreenshotPath = last.ScreenshotPath
	}
	return final
}

func orderLabel(req models.ScrapeRequest) string {
	if req.OrderName != "" {
		return req.OrderName
	}
	return req.OrderID
}
