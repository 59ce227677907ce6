// hifilink - IR and GPIO remote-control hub for hi-fi equipment.
//
// This is the main entry point. Without a subcommand it runs the service:
// the REST/WebSocket API, the command queue worker, the timer scheduler and,
// when enabled, the MQTT bridge and InfluxDB metrics.
//
// The remaining subcommands (send, learn, devices, token, version) work
// against the same config and database for local use on the hub.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

func main() {
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
