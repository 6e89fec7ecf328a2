package commands

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/eachlabs/chorus/internal/config"
	"github.com/eachlabs/chorus/internal/logging"
)

var (
	cfgFile string
	verbose bool
	jsonOut bool
)

var rootCmd = &cobra.Command{
	Use:   "chorus",
	Short: "chorus - ask several models at once",
	Long: `chorus sends one prompt to several language models in parallel and
keeps every answer side by side in a thread.

  chorus serve           Run the streaming relay
  chorus ask <prompt>    One fan-out, printed as it arrives
  chorus chat            Interactive multi-model chat
  chorus models          List the model catalog
  chorus config          Manage configuration`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.chorus/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "output as JSON")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute(ver string) error {
	version = ver
	return rootCmd.Execute()
}

var version string

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "chorus %s\n", version)
	},
}

func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.ConfigPath()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFile(configPath())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

// newLogger builds the process logger. Interactive commands keep stderr
// quiet below warn unless -v is given.
func newLogger(cfg *config.Config, stderr io.Writer, interactive bool) (*slog.Logger, io.Closer, error) {
	lc := cfg.Logging
	if interactive && !verbose {
		if lvl, err := logging.ParseLevel(lc.Level); err == nil && lvl < slog.LevelWarn {
			lc.Level = "warn"
		}
	}
	return logging.New(lc, stderr)
}
