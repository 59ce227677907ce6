package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hifilink/hifilink/internal/api"
	"github.com/hifilink/hifilink/internal/audit"
	"github.com/hifilink/hifilink/internal/device"
	"github.com/hifilink/hifilink/internal/dispatch"
	"github.com/hifilink/hifilink/internal/infrastructure/config"
	"github.com/hifilink/hifilink/internal/infrastructure/logging"
	"github.com/hifilink/hifilink/internal/protocol"
	"github.com/hifilink/hifilink/internal/queue"
)

// localEnv is the config, logger and store a one-shot command works with.
type localEnv struct {
	cfg   *config.Config
	log   *logging.Logger
	store *store
}

// openLocal loads config and opens the database. Logs go to stderr so
// command output on stdout stays clean.
func openLocal(ctx context.Context, opts *rootOptions) (*localEnv, error) {
	cfg, err := loadConfig(opts.path())
	if err != nil {
		return nil, err
	}
	logCfg := cfg.Logging
	if logCfg.Output == "" || logCfg.Output == "stdout" {
		logCfg.Output = "stderr"
	}
	log := logging.New(logCfg, version)

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Close() //nolint:errcheck // error path
		return nil, err
	}
	return &localEnv{cfg: cfg, log: log, store: st}, nil
}

func (e *localEnv) Close() {
	if err := e.store.Close(); err != nil {
		e.log.Error("error closing database", "error", err)
	}
	e.log.Close() //nolint:errcheck // Best-effort on exit
}

// withSignalPath runs fn with a dispatcher on the local hardware. When the
// audit log is enabled its transmissions are written before returning.
func (e *localEnv) withSignalPath(fn func(d *dispatch.Dispatcher) dispatch.Result) dispatch.Result {
	sp := buildSignalPath(e.cfg, e.store.registry, e.log)
	defer func() {
		if err := sp.Close(); err != nil {
			e.log.Error("error releasing hardware", "error", err)
		}
	}()

	if e.cfg.Audit.Enabled {
		w := newAuditWriter(e.cfg, e.store, e.log)
		w.SetRetention(0)
		sp.dispatcher.AddRecorder(w)
		defer flushAudit(w)
	}
	return fn(sp.dispatcher)
}

// flushAudit writes whatever w has buffered and returns.
func flushAudit(w *audit.Writer) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.Run(ctx) //nolint:errcheck // always context.Canceled
}

// printResult writes a dispatcher result and turns a failure into an error.
func printResult(out io.Writer, jsonOut bool, res dispatch.Result) error {
	if jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(map[string]any{"status": res.Status, "body": res.Body}); err != nil {
			return err
		}
	} else if res.OK() {
		fmt.Fprintf(out, "%d %s\n", res.Status, formatBody(res.Body))
	}
	if !res.OK() {
		msg, _ := res.Body["error"].(string) //nolint:errcheck // fallback below
		if msg == "" && res.Err != nil {
			msg = res.Err.Error()
		}
		return fmt.Errorf("%d: %s", res.Status, msg)
	}
	return nil
}

// formatBody renders a body as sorted key=value pairs.
func formatBody(body map[string]any) string {
	keys := make([]string, 0, len(body))
	for k := range body {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, body[k]))
	}
	return strings.Join(parts, " ")
}

func newSendCmd(opts *rootOptions) *cobra.Command {
	var repetitions int

	cmd := &cobra.Command{
		Use:   "send <device> <command>",
		Short: "Send one command through the local hardware",
		Long: `Sends a command directly, bypassing the queue. Do not run this while
the service is transmitting on the same hardware.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openLocal(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer env.Close()

			var sendOpts protocol.Options
			if cmd.Flags().Changed("repetitions") {
				sendOpts = protocol.WithRepetitions(repetitions)
			}
			ctx := dispatch.WithSource(cmd.Context(), queue.SourceCLI)
			res := env.withSignalPath(func(d *dispatch.Dispatcher) dispatch.Result {
				return d.Send(ctx, args[0], args[1], sendOpts)
			})
			return printResult(cmd.OutOrStdout(), opts.jsonOut, res)
		},
	}
	cmd.Flags().IntVarP(&repetitions, "repetitions", "r", 0, "override the frame repetition count")
	return cmd
}

func newLearnCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "learn <device> <command>",
		Short: "Learn an IR command from a remote",
		Long: `Captures the command twice from the IR receiver, once per toggle
state, and stores it on the device. The device is created if needed.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openLocal(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer env.Close()

			fmt.Fprintf(cmd.ErrOrStderr(), "Point the remote at the receiver and press %q twice.\n", args[1])
			res := env.withSignalPath(func(d *dispatch.Dispatcher) dispatch.Result {
				return d.Setup(cmd.Context(), args[0], args[1])
			})
			return printResult(cmd.OutOrStdout(), opts.jsonOut, res)
		},
	}
}

func newDevicesCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List configured devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := openLocal(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer env.Close()

			devices, err := env.store.registry.ListDevices(cmd.Context())
			if err != nil {
				return fmt.Errorf("listing devices: %w", err)
			}
			if opts.jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(devices)
			}
			return writeDeviceTable(cmd.OutOrStdout(), devices)
		},
	}
	cmd.AddCommand(newDevicesImportCmd(opts))
	return cmd
}

func newDevicesImportCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Replace all devices with a JSON export",
		Long: `Replaces the device registry with the contents of a devices file.
Both a JSON array of devices and an object keyed by device name are accepted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading devices file: %w", err)
			}
			devices, err := device.ParseDevicesFile(data)
			if err != nil {
				return err
			}

			env, err := openLocal(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer env.Close()

			if err := env.store.registry.ReplaceAll(cmd.Context(), devices); err != nil {
				return fmt.Errorf("importing devices: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d devices\n", len(devices))
			return nil
		},
	}
}

// writeDeviceTable prints one row per device.
func writeDeviceTable(out io.Writer, devices []device.Device) error {
	if len(devices) == 0 {
		_, err := fmt.Fprintln(out, "No devices configured")
		return err
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tPROTOCOL\tCOMMANDS\tUPDATED")
	for i := range devices {
		d := &devices[i]
		updated := "-"
		if !d.UpdatedAt.IsZero() {
			updated = d.UpdatedAt.Local().Format(time.DateTime)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.Name, d.Protocol, commandSummary(d), updated)
	}
	return w.Flush()
}

// commandSummary counts a device's configured commands. Kenwood devices
// without overrides use the built-in table.
func commandSummary(d *device.Device) string {
	switch {
	case d.IR != nil:
		return fmt.Sprint(len(d.IR.Commands))
	case d.SAA3004 != nil:
		return fmt.Sprint(len(d.SAA3004.Commands))
	case d.KenwoodXS8 != nil && len(d.KenwoodXS8.Commands) > 0:
		return fmt.Sprint(len(d.KenwoodXS8.Commands))
	case d.Protocol == device.ProtocolKenwoodXS8:
		return "built-in"
	default:
		return "0"
	}
}

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Issue an API bearer token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts.path())
			if err != nil {
				return err
			}
			token, err := api.GenerateToken(args[0], cfg.Security.JWT.Secret, ttl)
			if err != nil {
				return fmt.Errorf("generating token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", api.DefaultTokenTTL, "token lifetime")
	return cmd
}

func newVersionCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if opts.jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]string{
					"version":    version,
					"commit":     commit,
					"build_date": date,
					"go_version": runtime.Version(),
					"os":         runtime.GOOS,
					"arch":       runtime.GOARCH,
				})
			}
			fmt.Fprintf(out, "hifilink %s\n", version)
			fmt.Fprintf(out, "  commit:     %s\n", commit)
			fmt.Fprintf(out, "  built:      %s\n", date)
			fmt.Fprintf(out, "  go version: %s\n", runtime.Version())
			return nil
		},
	}
}
