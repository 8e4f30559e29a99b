package scraper

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/invoice-scraper/internal/metrics"
	"github.com/shehryarbajwa/invoice-scraper/internal/session"
	"github.com/shehryarbajwa/invoice-scraper/pkg/models"
)

// RunBatch authenticates once and then scrapes orders strictly in sequence. It
// stops at the first order that needs a login and counts everything not yet
// processed as failed.
func (s *Scraper) RunBatch(ctx context.Context, orders []models.ScrapeRequest) models.BatchOutcome {
	out := models.BatchOutcome{
		RunID:   uuid.NewString(),
		Total:   len(orders),
		Results: make([]models.ScrapeOutcome, 0, len(orders)),
	}
	log := s.logger.With(zap.String("run_id", out.RunID))
	metrics.BatchesTotal.Inc()

	log.Info("batch started", zap.Int("orders", len(orders)))

	if err := s.auth.EnsureAuthenticated(ctx); err != nil {
		log.Warn("batch aborted, not logged in", zap.String("reason", session.FailureMessage(err)))
		out.Failed = len(orders)
		out.NeedsLogin = true
		return out
	}

	for i, order := range orders {
		log.Info("batch progress", zap.Int("index", i+1), zap.Int("total", len(orders)), zap.String("order", orderLabel(order)))

		res := s.WithRetry(ctx, order)
		out.Results = append(out.Results, res)

		if res.Success {
			out.Successful++
			log.Info("batch item scraped", zap.String("invoice_number", res.InvoiceNumber))
			continue
		}

		out.Failed++
		if res.NeedsLogin {
			log.Warn("session expired mid-batch", zap.Int("index", i+1), zap.Int("total", len(orders)))
			out.Failed += len(orders) - i - 1
			out.NeedsLogin = true
			return out
		}
		log.Error("batch item failed", zap.String("order", orderLabel(order)), zap.String("error", res.Error))
	}

	log.Info("batch complete", zap.Int("successful", out.Successful), zap.Int("failed", out.Failed))
	s.sessions.ShowIdleStatusPage()
	return out
}
