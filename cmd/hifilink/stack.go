package main

import (
	"context"
	"fmt"
	"time"

	_ "github.com/hifilink/hifilink/migrations"

	"github.com/hifilink/hifilink/internal/audit"
	"github.com/hifilink/hifilink/internal/device"
	"github.com/hifilink/hifilink/internal/dispatch"
	"github.com/hifilink/hifilink/internal/hardware"
	"github.com/hifilink/hifilink/internal/infrastructure/config"
	"github.com/hifilink/hifilink/internal/infrastructure/database"
	"github.com/hifilink/hifilink/internal/infrastructure/logging"
	"github.com/hifilink/hifilink/internal/protocol"
	"github.com/hifilink/hifilink/internal/transmit"
)

// store is the migrated database and the device registry loaded from it.
type store struct {
	db       *database.DB
	registry *device.Registry
}

// openStore opens and migrates the database and warms the registry cache.
func openStore(ctx context.Context, cfg *config.Config, log *logging.Logger) (*store, error) {
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	log.Info("database connected", "path", cfg.Database.Path)

	if err := db.Migrate(ctx); err != nil {
		db.Close() //nolint:errcheck // error path
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Debug("database migrations complete")

	registry := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	registry.SetLogger(log)
	if err := registry.RefreshCache(ctx); err != nil {
		db.Close() //nolint:errcheck // error path
		return nil, fmt.Errorf("loading device registry: %w", err)
	}
	log.Info("device registry initialised", "devices", registry.GetDeviceCount())

	return &store{db: db, registry: registry}, nil
}

func (s *store) Close() error {
	return s.db.Close()
}

// newAuditWriter creates the audit writer on the store. The caller runs it.
func newAuditWriter(cfg *config.Config, st *store, log *logging.Logger) *audit.Writer {
	w := audit.NewWriter(audit.NewSQLiteRepository(st.db.DB))
	w.SetLogger(log)
	w.SetRetention(time.Duration(cfg.Audit.RetentionDays) * 24 * time.Hour)
	return w
}

// signalPath is the dispatcher and the hardware it owns.
type signalPath struct {
	dispatcher *dispatch.Dispatcher
	arbiter    *transmit.Arbiter
	led        *hardware.LED
}

// buildSignalPath wires the LIRC transmitter, the Kenwood GPIO lines, the
// LIRC receiver and the optional status LED into a dispatcher. Device files
// are opened lazily, so a hub without IR hardware still serves wired devices.
func buildSignalPath(cfg *config.Config, registry dispatch.Registry, log *logging.Logger) *signalPath {
	chip := hardware.GPIOChip{Name: cfg.Hardware.GPIOChip}

	sp := &signalPath{}
	var indicator hardware.Indicator = hardware.NopIndicator{}
	if cfg.Hardware.StatusLEDPin >= 0 {
		led, err := hardware.NewLED(chip, cfg.Hardware.StatusLEDPin, cfg.Hardware.StatusLEDActiveLow)
		if err != nil {
			log.Warn("status LED unavailable", "pin", cfg.Hardware.StatusLEDPin, "error", err)
		} else {
			sp.led = led
			indicator = led
		}
	}

	sp.arbiter = transmit.NewArbiter(hardware.LIRCFactory(cfg.Hardware.IRTxDevice), indicator)
	sp.arbiter.SetLogger(log)

	sp.dispatcher = dispatch.New(dispatch.Deps{
		Registry:  registry,
		Encoders:  protocol.DefaultEncoders(cfg.IR.TxFreq),
		Arbiter:   sp.arbiter,
		GPIO:      hardware.NewBitBanger(chip),
		Indicator: indicator,
		Toggles:   protocol.NewToggleState(cfg.IR.SharedToggle),
		Capturer: &hardware.LIRCCapturer{
			Path:     cfg.Hardware.IRRxDevice,
			Timeout:  cfg.CaptureTimeout(),
			GapUS:    uint32(max(cfg.Capture.GapUS, 0)), //nolint:gosec // clamped non-negative
			MinEdges: cfg.Capture.MinEdges,
		},
		DefaultFreq: cfg.IR.TxFreq,
	})
	sp.dispatcher.SetLogger(log)

	log.Info("signal path ready",
		"ir_tx", cfg.Hardware.IRTxDevice,
		"ir_rx", cfg.Hardware.IRRxDevice,
		"gpio_chip", cfg.Hardware.GPIOChip,
		"carrier_hz", cfg.IR.TxFreq,
	)
	return sp
}

// Close releases the transmitter handle and the LED line.
func (sp *signalPath) Close() error {
	err := sp.arbiter.Close()
	if sp.led != nil {
		if ledErr := sp.led.Close(); err == nil {
			err = ledErr
		}
	}
	return err
}
