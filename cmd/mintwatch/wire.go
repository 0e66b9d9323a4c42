package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/devblac/mintwatch/internal/cache"
	"github.com/devblac/mintwatch/internal/config"
	"github.com/devblac/mintwatch/internal/engine"
	"github.com/devblac/mintwatch/internal/health"
	"github.com/devblac/mintwatch/internal/sink"
)

// buildCache returns the ABI cache and, for Redis, its ping.
func buildCache(cfg config.CacheConfig) (cache.Cache, func(context.Context) error, io.Closer, error) {
	switch strings.ToLower(cfg.Type) {
	case "redis":
		rc, err := cache.NewRedisCache(cfg.RedisURL)
		if err != nil {
			return nil, nil, nil, err
		}
		return rc, rc.Ping, rc, nil
	default:
		return cache.NewMemoryCache(), nil, nil, nil
	}
}

// upstreamChecker reports the chain node and the explorer as one rpc probe.
func upstreamChecker(node, explorer health.Pinger) *health.MultiChecker {
	return health.NewMultiChecker(map[string]health.Pinger{
		"chain":    node,
		"explorer": explorer,
	})
}

func buildSinks(cfgSinks []config.Sink) ([]engine.Target, []io.Closer, error) {
	var (
		targets []engine.Target
		closers []io.Closer
	)
	for _, s := range cfgSinks {
		var (
			sender sink.Sender
			err    error
		)
		switch strings.ToLower(s.Type) {
		case "slack":
			sender, err = sink.NewSlackSender(s.WebhookURL, s.Template)
		case "teams":
			sender, err = sink.NewTeamsSender(s.WebhookURL, s.Template)
		case "webhook":
			sender, err = sink.NewWebhookSender(s.URL, s.Method, s.Template, nil)
		case "nats":
			sender, err = sink.NewNATSSender(s.NATSURL, s.Stream, s.Subject)
		default:
			continue
		}
		if err != nil {
			closeAll(closers, nil)
			return nil, nil, fmt.Errorf("sink %s: %w", s.ID, err)
		}
		if c, ok := sender.(io.Closer); ok {
			closers = append(closers, c)
		}
		targets = append(targets, engine.Target{ID: s.ID, Sender: sender, Rejections: s.Rejections})
	}
	return targets, closers, nil
}

func thresholds(g config.GatesConfig) engine.Thresholds {
	return engine.Thresholds{
		MaxMintPrice:       g.MaxMintPrice,
		MinSampleCount:     g.MinSampleCount,
		MaxGasPrice:        g.MaxGasPrice,
		MinMintRatio:       g.MinMintRatio,
		DerivativeDenylist: g.DerivativeDenylist,
	}
}

func closeAll(closers []io.Closer, log *slog.Logger) {
	for _, c := range closers {
		if err := c.Close(); err != nil && log != nil {
			log.Warn("close failed", "error", err)
		}
	}
}

func shutdownTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}
