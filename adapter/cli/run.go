package cli

import (
	"fmt"

	"github.com/felixgeelhaar/moosbridge/internal/bridge"
	"github.com/felixgeelhaar/moosbridge/internal/host"
	"github.com/felixgeelhaar/moosbridge/internal/journal"
	bridgeplugin "github.com/felixgeelhaar/moosbridge/internal/plugin"
	"github.com/felixgeelhaar/moosbridge/pkg/moosbridge"
	"github.com/felixgeelhaar/moosbridge/pkg/observability"
	"github.com/spf13/cobra"
)

var (
	runPlugin     string
	runSecure     bool
	runIterations int64
)

var runCmd = &cobra.Command{
	Use:   "run <app-name> <mission.toml>",
	Short: "Run an application until interrupted",
	Long: `Run loads the mission, joins the community and drives the application's
callbacks until SIGINT or SIGTERM.

With --plugin the callbacks live in the plugin binary described by the
manifest (a plugin.json file or its directory). Without it the built-in echo
app runs: it registers the variables named in its "subscribe" parameter and
republishes each value as <NAME>_ECHO.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, missionFile := args[0], args[1]

		c, err := getConfig()
		if err != nil {
			return err
		}
		ctx := observability.WithApp(observability.WithRunID(cmd.Context(), ""), name)
		log := getLogger()

		store, err := openJournal(ctx, c)
		if err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		if store != nil {
			defer store.Close()
		}

		comms, err := newComms(c, log)
		if err != nil {
			return err
		}

		reports, err := newReportPublisher(c, store, log)
		if err != nil {
			return fmt.Errorf("failed to create report publisher: %w", err)
		}
		defer reports.Close()

		hc := hostConfig(c)
		hc.MaxIterations = runIterations
		app := host.NewApp(comms,
			host.WithLogger(log),
			host.WithReportPublisher(reports),
			host.WithConfig(hc),
			host.WithContext(ctx),
		)

		opts := []moosbridge.Option{moosbridge.WithLogger(log)}
		if c.LegacyStringParams {
			opts = append(opts, moosbridge.WithLegacyStringParams())
		}
		h := moosbridge.New(app, opts...)
		defer moosbridge.Delete(h)

		if runPlugin != "" {
			loader := bridgeplugin.NewLoader(log)
			defer loader.UnloadAll()

			path, err := bridgeplugin.ResolveManifestPath(runPlugin)
			if err != nil {
				return err
			}
			manifest, err := bridgeplugin.LoadManifest(path)
			if err != nil {
				return err
			}
			remote, err := loader.Load(ctx, bridgeplugin.LoadOptions{
				Manifest:   manifest,
				Remote:     remoteConfig(c),
				SecureMode: runSecure,
			})
			if err != nil {
				return err
			}
			if err := moosbridge.AttachPlugin(ctx, h, remote); err != nil {
				return err
			}
		} else {
			detach := moosbridge.Attach(h, newEchoApp(log))
			defer detach()
		}

		if store != nil {
			moosbridge.WrapOnNewMailCallback(h, func(next moosbridge.MailCallback) moosbridge.MailCallback {
				var inner bridge.MailCallback
				if next != nil {
					inner = bridge.MailCallback(next)
				}
				return moosbridge.MailCallback(journal.TapMail(store, name, inner, log))
			})
		}

		if !moosbridge.Run(h, name, missionFile) {
			return fmt.Errorf("application %s exited with failure", name)
		}

		if snapshot, ok := moosbridge.Metrics(h); ok {
			log.InfoContext(ctx, "application finished",
				"iterations", app.Iteration(),
				"mail_translated", snapshot.Mail.Translated,
				"mail_retained", snapshot.Mail.Retained,
			)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVarP(&runPlugin, "plugin", "p", "", "plugin manifest file or directory")
	runCmd.Flags().BoolVar(&runSecure, "secure", false, "verify the plugin checksum from the manifest")
	runCmd.Flags().Int64Var(&runIterations, "iterations", 0, "stop after this many ticks (0 runs until interrupted)")
	rootCmd.AddCommand(runCmd)
}
