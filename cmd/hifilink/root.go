package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/hifilink/hifilink/internal/infrastructure/config"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// configEnv overrides the default config path.
const configEnv = "HIFILINK_CONFIG"

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	jsonOut    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "hifilink",
		Short: "IR and GPIO remote-control hub for hi-fi equipment",
		Long: `hifilink sends infrared and wired remote-control codes to hi-fi devices.

Run without a subcommand to start the service.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts.path())
		},
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "",
		"config file (default: $"+configEnv+" or "+defaultConfigPath+")")
	root.PersistentFlags().BoolVarP(&opts.jsonOut, "json", "j", false, "output as JSON")

	root.AddCommand(
		newServeCmd(opts),
		newSendCmd(opts),
		newLearnCmd(opts),
		newDevicesCmd(opts),
		newTokenCmd(opts),
		newVersionCmd(opts),
	)
	return root
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the hifilink service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts.path())
		},
	}
}

// path returns the --config flag, then HIFILINK_CONFIG, then the default.
func (o *rootOptions) path() string {
	if o.configPath != "" {
		return o.configPath
	}
	return getConfigPath()
}

// getConfigPath returns the configuration file path.
// Uses HIFILINK_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv(configEnv); path != "" {
		return path
	}
	return defaultConfigPath
}

// loadConfig loads path. A missing file at the default path falls back to
// built-in defaults; an explicitly named file must exist.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if path == defaultConfigPath && errors.Is(err, fs.ErrNotExist) {
		cfg = config.Default()
		if vErr := cfg.Validate(); vErr != nil {
			return nil, fmt.Errorf("validating default config: %w", vErr)
		}
		return cfg, nil
	}
	return nil, fmt.Errorf("loading config: %w", err)
}
