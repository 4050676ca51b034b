package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	bridgeplugin "github.com/felixgeelhaar/moosbridge/internal/plugin"
	"github.com/felixgeelhaar/moosbridge/pkg/config"
	"github.com/felixgeelhaar/moosbridge/pkg/observability"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var (
	healthPlugin  string
	healthJSON    bool
	healthTimeout time.Duration
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the configured backends",
	Long: `Health probes every backend the configuration selects: the Redis
community, the RabbitMQ appcast exchange, the journal database and, with
--plugin, the plugin manifest. It exits non-zero when a critical backend
is unreachable.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := getConfig()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), healthTimeout)
		defer cancel()

		report := healthRegistry(c, healthPlugin).Check(ctx)
		if err := printHealth(cmd.OutOrStdout(), report, healthJSON); err != nil {
			return err
		}
		if report.Status == observability.HealthStatusUnhealthy {
			return fmt.Errorf("unhealthy")
		}
		return nil
	},
}

func healthRegistry(c *config.Config, pluginManifest string) *observability.HealthRegistry {
	registry := observability.NewHealthRegistry()

	if c.Comms == config.CommsRedis {
		registry.Register("comms", true, func(ctx context.Context) error {
			opts, err := redis.ParseURL(c.RedisURL)
			if err != nil {
				return err
			}
			client := redis.NewClient(opts)
			defer client.Close()
			return client.Ping(ctx).Err()
		})
	}

	if c.Reports == config.ReportsAMQP {
		// Reports are best effort; a broker outage degrades.
		registry.Register("appcasts", false, func(ctx context.Context) error {
			conn, err := amqp.DialConfig(c.RabbitMQURL, amqp.Config{Dial: amqp.DefaultDial(healthTimeout)})
			if err != nil {
				return err
			}
			return conn.Close()
		})
	}

	if c.Journal != config.JournalNone {
		registry.Register("journal", false, func(ctx context.Context) error {
			store, err := openJournal(ctx, c)
			if err != nil {
				return err
			}
			defer store.Close()
			_, err = store.Latest(ctx, 1)
			return err
		})
	}

	if pluginManifest != "" {
		registry.Register("plugin", true, func(context.Context) error {
			path, err := bridgeplugin.ResolveManifestPath(pluginManifest)
			if err != nil {
				return err
			}
			manifest, err := bridgeplugin.LoadManifest(path)
			if err != nil {
				return err
			}
			return bridgeplugin.NewLoader(getLogger()).Check(manifest)
		})
	}

	return registry
}

func printHealth(out io.Writer, report observability.HealthReport, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Fprintf(out, "status: %s\n", report.Status)
	for _, check := range report.Checks {
		line := fmt.Sprintf("  %-10s %-9s %s", check.Name, check.Status, check.Duration.Round(time.Millisecond))
		if check.Message != "" {
			line += "  " + check.Message
		}
		fmt.Fprintln(out, line)
	}
	return nil
}

func init() {
	healthCmd.Flags().StringVarP(&healthPlugin, "plugin", "p", "", "plugin manifest to validate")
	healthCmd.Flags().BoolVar(&healthJSON, "json", false, "print the report as JSON")
	healthCmd.Flags().DurationVar(&healthTimeout, "timeout", 5*time.Second, "overall probe timeout")
	rootCmd.AddCommand(healthCmd)
}
