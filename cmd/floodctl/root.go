// Command floodctl runs flood simulations and maintenance tasks from the
// command line.
//
//	floodctl run --address "Sylhet" --rainfall 2 --duration 150
//	floodctl simulate --dem filled_dem.asc --volume 2.5e6 --depth-out depth.asc
//	floodctl locate --acc flow_acc.asc --threshold 3000
//	floodctl migrate
//	floodctl secrets put --env dev
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"floodfactor/internal/config"
)

// loadConfig is replaced in tests.
var loadConfig = func() (*config.Config, error) {
	var provider config.SecretProvider
	if os.Getenv("APP_ENV") != "local" {
		provider = config.NewSSMProvider(os.Getenv("AWS_REGION"))
	}
	return config.LoadConfig(provider)
}

// cli carries the state shared by every subcommand.
type cli struct {
	logLevel string
	logger   *slog.Logger
}

// newRootCmd builds the command tree.
func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "floodctl",
		Short: "Flood inundation modelling from the command line.",
		Long: `floodctl estimates storm runoff for a watershed and simulates the
resulting flood depths. The run subcommand drives the full pipeline; the
simulate and locate subcommands work on local rasters only.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var lvl slog.Level
			if err := lvl.UnmarshalText([]byte(c.logLevel)); err != nil {
				return fmt.Errorf("invalid --log-level %q", c.logLevel)
			}
			c.logger = slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: lvl}))
			return nil
		},
	}
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(
		newRunCmd(c),
		newSimulateCmd(c),
		newLocateCmd(c),
		newMigrateCmd(c),
		newSecretsCmd(c),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(cmd *cobra.Command, args []string) {
			b := config.NewBuildInfo()
			fmt.Fprintf(cmd.OutOrStdout(), "floodctl %s (%s, built %s)\n", b.Version, b.Commit, b.BuildTime)
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
