package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/invoice-scraper/internal/api"
	"github.com/shehryarbajwa/invoice-scraper/internal/browser"
	"github.com/shehryarbajwa/invoice-scraper/internal/clock"
	"github.com/shehryarbajwa/invoice-scraper/internal/config"
	"github.com/shehryarbajwa/invoice-scraper/internal/dates"
	"github.com/shehryarbajwa/invoice-scraper/internal/events"
	"github.com/shehryarbajwa/invoice-scraper/internal/logging"
	"github.com/shehryarbajwa/invoice-scraper/internal/profile"
	"github.com/shehryarbajwa/invoice-scraper/internal/proxy"
	"github.com/shehryarbajwa/invoice-scraper/internal/ratelimit"
	"github.com/shehryarbajwa/invoice-scraper/internal/scraper"
	"github.com/shehryarbajwa/invoice-scraper/internal/session"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "optional YAML config file")
	flag.Parse()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("Failed to prepare directories: %v", err)
	}

	logger, closeLog, err := logging.New(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer closeLog()

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		closeLog()
		os.Exit(1)
	}
}

func newEngine(cfg *config.Config, logger *zap.Logger) (browser.Engine, error) {
	if cfg.BrowserEngine == config.EnginePlaywright {
		return browser.NewPlaywrightEngine(cfg.PlaywrightBrowser, logger), nil
	}

	if !cfg.BrowserContainer {
		return browser.NewRodEngine(nil, logger), nil
	}

	launcher, err := browser.NewContainerLauncher(cfg.ContainerImage, logger)
	if err != nil {
		return nil, err
	}

	logger.Info("⏳ Ensuring browser image is available...", zap.String("image", cfg.ContainerImage))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if err := launcher.EnsureImage(ctx); err != nil {
		launcher.Close()
		return nil, err
	}
	return browser.NewRodEngine(launcher, logger), nil
}

func run(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("Starting Shopify VAT Invoice Scraper...",
		zap.String("store", cfg.StoreSlug),
		zap.String("version", api.Version))

	loc := dates.ResolveTimezone(cfg.Timezone, logger)
	clk := clock.Real{}

	engine, err := newEngine(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create browser engine: %w", err)
	}
	defer engine.Shutdown()
	logger.Info("✓ Browser engine initialized", zap.String("engine", engine.Name()))

	state := session.NewState()
	sessions := session.NewManager(engine, state, session.Options{
		ProfileDir:  cfg.ProfileDir,
		Headless:    cfg.Headless,
		UserAgent:   cfg.UserAgent,
		Humanize:    true,
		PageTimeout: cfg.PageLoadTimeout(),
	}, logger)
	defer sessions.CloseSession()
	logger.Info("✓ Session manager initialized", zap.String("profile_dir", cfg.ProfileDir))

	auth := session.NewAuthenticator(sessions, state, clk, session.AuthConfig{
		AdminBaseURL: cfg.AdminBaseURL,
		StoreURL:     cfg.AdminStoreURL(),
		LoginTimeout: cfg.LoginWaitTimeout(),
	}, logger)

	scr := scraper.New(sessions, auth, state, clk, scraper.OptionsFromConfig(cfg, loc), logger)
	logger.Info("✓ Scraper initialized", zap.String("timezone", loc.String()))

	snapshots, err := profile.NewManager(cfg.ProfileDir, cfg.SnapshotDir, sessions, logger)
	if err != nil {
		return fmt.Errorf("failed to create profile snapshot manager: %w", err)
	}
	logger.Info("✓ Profile snapshots initialized", zap.String("dir", cfg.SnapshotDir))

	hub := events.NewHub(state, clk, logger)
	proxyServer := proxy.NewServer(sessions, logger)
	logger.Info("✓ WebSocket endpoints initialized")

	rateLimiter := ratelimit.NewLimiter(cfg.RateLimitPerHour, cfg.RateLimitBurst)
	logger.Info("✓ Rate limiter initialized",
		zap.Int("per_hour", cfg.RateLimitPerHour),
		zap.Int("burst", cfg.RateLimitBurst))

	handler := api.NewHandler(cfg, sessions, auth, state, scr, logger)
	router := handler.SetupRoutes(api.NewProfileHandler(snapshots, logger), proxyServer, hub, rateLimiter)
	logger.Info("✓ HTTP routes configured")

	// Scrapes and login waits hold the request open for minutes, so there is no write timeout
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	downloads, _ := filepath.Abs(cfg.DownloadDir)
	errCh := make(chan error, 1)
	go func() {
		logger.Info("🚀 Server starting", zap.String("addr", cfg.Addr()))
		logger.Info("📁 Downloads", zap.String("dir", downloads))
		logger.Info("🔐 Login wait", zap.Duration("timeout", cfg.LoginWaitTimeout()), zap.Bool("headless", cfg.Headless))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-quit:
	}

	logger.Info("⏳ Shutting down server gracefully...")

	// stop any running workflow at its next checkpoint
	state.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("✅ Server stopped cleanly")
	return nil
}
