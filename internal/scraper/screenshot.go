package scraper

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/invoice-scraper/internal/browser"
)

const screenshotStamp = "20060102_150405"

// screenshot saves a full-page capture for diagnosis and returns its path, or ""
// when the capture failed.
func (s *Scraper) screenshot(page browser.Page, prefix string) string {
	if err := os.MkdirAll(s.opts.ScreenshotDir, 0755); err != nil {
		s.logger.Warn("failed to create screenshot directory", zap.Error(err))
		return ""
	}

	name := fmt.Sprintf("%s_%s.png", prefix, s.clock.Now().Format(screenshotStamp))
	path := filepath.Join(s.opts.ScreenshotDir, name)
	if err := page.Screenshot(path); err != nil {
		s.logger.Warn("failed to save screenshot", zap.Error(err))
		return ""
	}
	s.logger.Info("screenshot saved", zap.String("path", path))
	return path
}
