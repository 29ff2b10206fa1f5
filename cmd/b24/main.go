package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/b24/internal/client"
	"github.com/vietddude/b24/internal/core/config"
	"github.com/vietddude/b24/internal/core/domain"
	"github.com/vietddude/b24/internal/infra/cache"
	"github.com/vietddude/b24/internal/infra/transport"
	"github.com/vietddude/b24/internal/pipeline/events"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	method := flag.String("method", "profile", "Portal REST method to call")
	priority := flag.Int("priority", 0, "Queue priority for the call")
	isDebug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	// Secrets come from the environment; .env is optional
	_ = godotenv.Load()

	// Load Configuration first (before setting up logger)
	cfg, err := config.Load(*configPath)
	if err != nil {
		// Fall back to default logger for config load errors
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	slogLevel := slog.LevelInfo
	if *isDebug || cfg.Logging.Level == "debug" {
		slogLevel = slog.LevelDebug
	}

	// Initialize stylelog with tint.Options for level control
	stylelog.InitDefault(
		&tint.Options{
			Level:      slogLevel,
			TimeFormat: time.RFC3339,
		})
	slog.Info("Logger initialized", "level", slogLevel.String())

	hooks := &events.Hooks{
		OnCredentialsRefreshed: func(creds domain.CredentialSet) {
			slog.Info("Credentials refreshed", "domain", creds.Domain)
		},
		OnRateLimited: func(m string, err error) {
			slog.Warn("Rate limited", "method", m, "error", err)
		},
		OnBudgetWarning: func(used, budget float64) {
			slog.Warn("Operating budget warning", "used", used, "budget", budget)
		},
	}

	rc, err := buildCache(cfg.Cache)
	if err != nil {
		slog.Error("Failed to initialize cache", "error", err)
		os.Exit(1)
	}

	tp := transport.NewHTTPTransport(cfg.Portal.Endpoint, cfg.Portal.CallTimeout.Std())
	tokens := transport.NewTokenClient(cfg.Portal.TokenURL, cfg.Portal.ClientID, cfg.Portal.ClientSecret, cfg.Portal.CallTimeout.Std())

	c := client.New(tp, tokens, rc, hooks, client.Config{
		MaxAttempts:   cfg.Client.MaxAttempts,
		RetryDelay:    cfg.Client.RetryDelay.Std(),
		RefreshMargin: cfg.Client.RefreshMargin.Std(),
		Throttle:      cfg.Limiter.Throttle(),
	})
	defer c.Close()

	if err := c.SetCredentials(credentialsFromEnv()); err != nil {
		slog.Error("Invalid credentials in environment", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	resp, err := c.CallWithPriority(ctx, *method, nil, *priority)
	if err != nil {
		slog.Error("Call failed", "method", *method, "error", err)
		os.Exit(1)
	}

	fmt.Println(string(resp.Result))

	stats := c.Stats()
	slog.Info("Throttle state",
		"counter", stats.Counter,
		"blocked", stats.Blocked,
		"operating_used", stats.OperatingUsed,
		"queue_depth", stats.QueueDepth)
}

// credentialsFromEnv assembles the initial credential set produced by an
// external authorization flow.
func credentialsFromEnv() domain.CredentialSet {
	expiresIn, _ := strconv.Atoi(os.Getenv("B24_EXPIRES_IN"))
	if expiresIn == 0 {
		expiresIn = 3600
	}
	return domain.CredentialSet{
		AccessToken:  os.Getenv("B24_ACCESS_TOKEN"),
		RefreshToken: os.Getenv("B24_REFRESH_TOKEN"),
		ExpiresIn:    expiresIn,
		Domain:       os.Getenv("B24_DOMAIN"),
	}
}

// buildCache selects the response cache backend from config.
func buildCache(cfg config.CacheConfig) (cache.ResponseCache, error) {
	switch cfg.Backend {
	case "redis":
		return cache.NewRedis(cfg.Redis)
	case "memory":
		return cache.NewMemory(), nil
	default:
		return nil, nil
	}
}
