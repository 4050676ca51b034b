package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/felixgeelhaar/moosbridge/internal/host"
	"github.com/felixgeelhaar/moosbridge/internal/journal"
	bridgeplugin "github.com/felixgeelhaar/moosbridge/internal/plugin"
	"github.com/felixgeelhaar/moosbridge/pkg/config"
)

// openJournal opens the configured journal store, or nil when disabled.
func openJournal(ctx context.Context, c *config.Config) (journal.Store, error) {
	switch c.Journal {
	case config.JournalSQLite:
		return journal.OpenSQLite(ctx, c.JournalPath)
	case config.JournalPostgres:
		return journal.OpenPostgres(ctx, c.DatabaseURL, c.DatabaseMaxConns)
	case config.JournalNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown journal %q", c.Journal)
	}
}

// newComms creates the configured community transport.
func newComms(c *config.Config, logger *slog.Logger) (host.Comms, error) {
	switch c.Comms {
	case config.CommsRedis:
		return host.NewRedisComms(c.RedisURL, c.Community, logger)
	case config.CommsMemory:
		return host.NewCommunity(c.Community, logger).Join(), nil
	default:
		return nil, fmt.Errorf("unknown comms %q", c.Comms)
	}
}

// newReportPublisher creates the configured report sink. Reports are also
// journaled when store is not nil.
func newReportPublisher(c *config.Config, store journal.Store, logger *slog.Logger) (host.ReportPublisher, error) {
	var publishers host.MultiPublisher

	switch c.Reports {
	case config.ReportsLog:
		publishers = append(publishers, host.NewLogPublisher(logger))
	case config.ReportsAMQP:
		p, err := host.NewAMQPPublisher(c.RabbitMQURL, logger)
		if err != nil {
			return nil, err
		}
		publishers = append(publishers, p)
	case config.ReportsNone:
	default:
		return nil, fmt.Errorf("unknown report sink %q", c.Reports)
	}

	if store != nil {
		publishers = append(publishers, journal.NewReportPublisher(store))
	}

	switch len(publishers) {
	case 0:
		return host.NoopPublisher{}, nil
	case 1:
		return publishers[0], nil
	default:
		return publishers, nil
	}
}

// remoteConfig derives plugin call settings from the configuration.
func remoteConfig(c *config.Config) bridgeplugin.RemoteConfig {
	rc := bridgeplugin.DefaultRemoteConfig()
	if c.PluginTimeout > 0 {
		rc.CallTimeout = c.PluginTimeout
	}
	if c.BreakerThreshold > 0 {
		rc.FailureThreshold = uint32(c.BreakerThreshold)
	}
	return rc
}

func hostConfig(c *config.Config) host.Config {
	hc := host.DefaultConfig()
	hc.AppTick = c.AppTick
	hc.ReportInterval = c.ReportInterval
	hc.Community = c.Community
	return hc
}
