// Package cmd implements the CLI commands for livefeed.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/jmylchreest/livefeed/internal/config"
	"github.com/jmylchreest/livefeed/internal/observability"
	"github.com/jmylchreest/livefeed/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	// cfgFile holds the config file path from the CLI flag.
	cfgFile string
	// cfg is loaded before any subcommand runs.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:     "livefeed",
	Short:   "Headless player for live fMP4 websocket feeds",
	Version: version.Short(),
	Long: `livefeed connects to a websocket that pushes fragmented MP4 boxes and
plays it through a flow-controlled buffering engine.

The engine waits for a clean bootstrap (ftyp, moov, then a keyframe moof),
bounds memory with a drop-oldest queue, trims old media and keeps playback
close to the live edge.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	// Set here to avoid an initialization cycle through rootCmd.
	rootCmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		return loadConfig()
	}

	// Flags are not bound to viper; they override config and environment only
	// when explicitly set.
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ./config.yaml, /etc/livefeed, $HOME/.livefeed)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
}

// loadConfig reads config file and LIVEFEED_* environment, applies explicit
// flags and installs the default logger.
func loadConfig() error {
	c, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	flags := rootCmd.PersistentFlags()
	overrideString(flags, "log-level", &c.Logging.Level)
	overrideString(flags, "log-format", &c.Logging.Format)
	c.Logging.Level = strings.ToLower(c.Logging.Level)
	if c.Logging.Level == "warning" {
		c.Logging.Level = "warn"
	}
	c.Logging.Format = strings.ToLower(c.Logging.Format)

	if err := c.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	observability.SetDefault(observability.NewLoggerWithWriter(c.Logging, os.Stderr))
	cfg = c
	return nil
}

// overrideString copies a flag value into dst when the user set the flag.
func overrideString(flags *pflag.FlagSet, name string, dst *string) {
	if !flags.Changed(name) {
		return
	}
	if v, err := flags.GetString(name); err == nil {
		*dst = v
	}
}

func overrideBool(flags *pflag.FlagSet, name string, dst *bool) {
	if !flags.Changed(name) {
		return
	}
	if v, err := flags.GetBool(name); err == nil {
		*dst = v
	}
}

func overrideInt(flags *pflag.FlagSet, name string, dst *int) {
	if !flags.Changed(name) {
		return
	}
	if v, err := flags.GetInt(name); err == nil {
		*dst = v
	}
}
