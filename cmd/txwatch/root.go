package main

import (
	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	logLevel   string
	logFormat  string
	dataDir    string
	backend    string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:   "txwatch",
		Short: "Streaming z-score anomaly detection for transaction series",
		Long: "txwatch replays per-status transaction counts (denied, failed, reversed)\n" +
			"against a regular-day baseline and flags samples whose z-score exceeds\n" +
			"the threshold, one tick at a time.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initLogging(opts.logLevel, opts.logFormat, cmd.ErrOrStderr())
		},
	}

	f := root.PersistentFlags()
	f.StringVarP(&opts.configPath, "config", "c", "", "YAML configuration file")
	f.StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	f.StringVar(&opts.logFormat, "log-format", "text", "log format (text or json)")
	f.StringVar(&opts.dataDir, "data-dir", "", "dataset directory of the file backend")
	f.StringVar(&opts.backend, "storage", "", "storage backend (file, memory, s3)")

	root.AddCommand(newRunCmd(opts))
	root.AddCommand(newBaselinesCmd(opts))
	root.AddCommand(newExportCmd(opts))
	return root
}
