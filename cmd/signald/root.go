package main

import (
	"github.com/spf13/cobra"

	"github.com/next-trace/scg-signal-bus/config"
)

type rootFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}

	root := &cobra.Command{
		Use:           "signald",
		Short:         "Dispatch data-layer signals to notification and change-log handlers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&f.configPath, "config", "c", "", "Config file (.yaml, .toml or .json)")
	root.PersistentFlags().StringVar(&f.logLevel, "log-level", "", "Log level: debug|info|warn|error (overrides config)")
	root.PersistentFlags().StringVar(&f.logFormat, "log-format", "", "Log format: text|json (overrides config)")

	root.AddCommand(newRunCmd(f), newDemoCmd(f))

	return root
}

// resolve builds the effective configuration: defaults, then file, then
// SIGNALD_* environment, then flags.
func (f *rootFlags) resolve() (config.Config, error) {
	cfg := config.Default()

	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			return cfg, err
		}

		cfg = loaded
	}

	cfg, err := config.FromEnv(cfg)
	if err != nil {
		return cfg, err
	}

	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}

	if f.logFormat != "" {
		cfg.LogFormat = f.logFormat
	}

	return cfg, cfg.Validate()
}
