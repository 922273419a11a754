// Command lipsync turns text into lip-synced avatar speech.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/normanking/cortexlipsync/internal/config"
	"github.com/normanking/cortexlipsync/internal/logging"
)

var version = "dev"

type rootOptions struct {
	configDir string
	logLevel  string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "lipsync",
		Short:         "Lip-synced speech for 3D avatars",
		Long:          "Synthesizes speech, aligns mouth shapes to the audio and drives avatar morph targets in time with playback.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configDir, "config", "", "configuration directory (default ~/.lipsync)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		newServeCmd(opts),
		newSayCmd(opts),
		newAlignCmd(opts),
	)
	return rootCmd
}

// load reads configuration and opens the logger.
func (o *rootOptions) load() (*config.Config, string, *logging.Logger, error) {
	dir := o.configDir
	if dir == "" {
		var err error
		dir, err = config.GetConfigDir()
		if err != nil {
			return nil, "", nil, fmt.Errorf("config dir: %w", err)
		}
	}

	cfg, err := config.LoadFrom(dir)
	if err != nil {
		return nil, "", nil, fmt.Errorf("load config: %w", err)
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}

	logs, err := logging.New(&logging.Config{
		LogDir:  cfg.Log.Dir,
		Level:   logging.LogLevel(cfg.Log.Level),
		Console: cfg.Log.Console,
	})
	if err != nil {
		return nil, "", nil, fmt.Errorf("open log: %w", err)
	}
	return cfg, dir, logs, nil
}
