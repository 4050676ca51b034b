package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/felixgeelhaar/moosbridge/internal/host"
	"github.com/felixgeelhaar/moosbridge/pkg/moosbridge"
	"github.com/spf13/cobra"
)

var (
	missionApp    string
	missionGlobal bool
	missionNumber bool
)

var missionCmd = &cobra.Command{
	Use:   "mission",
	Short: "Inspect mission files",
}

var missionGetCmd = &cobra.Command{
	Use:   "get <mission.toml> <name>",
	Short: "Look up a mission parameter",
	Long: `Get looks a parameter up the way an application does at runtime.

Without --global the parameter is read from the [ProcessConfig.<app>] block
of the application given with --app. --number reads it as a number.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !missionGlobal && missionApp == "" {
			return fmt.Errorf("--app is required unless --global is set")
		}

		c, err := getConfig()
		if err != nil {
			return err
		}

		app := host.NewApp(nil, host.WithLogger(getLogger()))
		if _, err := app.LoadMission(missionApp, args[0]); err != nil {
			return err
		}

		var opts []moosbridge.Option
		if c.LegacyStringParams {
			opts = append(opts, moosbridge.WithLegacyStringParams())
		}
		h := moosbridge.New(app, opts...)
		defer moosbridge.Delete(h)

		return printParam(cmd.OutOrStdout(), h, args[1], missionGlobal, missionNumber)
	},
}

func printParam(out io.Writer, h moosbridge.Handle, name string, global, number bool) error {
	var (
		found bool
		value string
	)
	if number {
		var v float64
		if global {
			found = moosbridge.GetDoubleGlobalConfigParam(h, name, &v)
		} else {
			found = moosbridge.GetDoubleAppConfigParam(h, name, &v)
		}
		value = strconv.FormatFloat(v, 'g', -1, 64)
	} else {
		if global {
			found = moosbridge.GetStringGlobalConfigParam(h, name, &value)
		} else {
			found = moosbridge.GetStringAppConfigParam(h, name, &value)
		}
	}

	if !found {
		return fmt.Errorf("parameter %q not found", name)
	}
	fmt.Fprintln(out, value)
	return nil
}

func init() {
	missionGetCmd.Flags().StringVarP(&missionApp, "app", "a", "", "application whose block is searched")
	missionGetCmd.Flags().BoolVarP(&missionGlobal, "global", "g", false, "look up a global parameter")
	missionGetCmd.Flags().BoolVarP(&missionNumber, "number", "n", false, "read the parameter as a number")
	missionCmd.AddCommand(missionGetCmd)
	rootCmd.AddCommand(missionCmd)
}
