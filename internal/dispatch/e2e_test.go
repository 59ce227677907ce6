package dispatch_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/hifilink/hifilink/internal/device"
	"github.com/hifilink/hifilink/internal/dispatch"
	"github.com/hifilink/hifilink/internal/hardware"
	"github.com/hifilink/hifilink/internal/hardware/hwtest"
	"github.com/hifilink/hifilink/internal/infrastructure/database"
	"github.com/hifilink/hifilink/internal/protocol"
	"github.com/hifilink/hifilink/internal/transmit"
	_ "github.com/hifilink/hifilink/migrations"
)

// TestEndToEnd wires the real registry and SQLite store to fake hardware.
func TestEndToEnd(t *testing.T) {
	ctx := context.Background()

	db, err := database.Open(database.Config{Path: ":memory:", BusyTimeout: 1})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close() //nolint:errcheck // Test cleanup
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	registry := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	if _, err := registry.MergeDevice(ctx, "deck", map[string]any{
		"protocol":    "KENWOOD_XS8",
		"kenwood_xs8": map[string]any{"ctrl_pin": 14, "sdat_pin": 15},
	}); err != nil {
		t.Fatalf("MergeDevice() error = %v", err)
	}

	factory := &hwtest.Factory{}
	lines := &hwtest.Lines{}
	capturer := hwtest.NewCapturer(
		hwtest.CaptureResult{Durations: []uint32{2400, 600, 1200, 600, 600}},
		hwtest.CaptureResult{Durations: []uint32{2400, 600, 600, 600, 600, 100000}},
	)
	d := dispatch.New(dispatch.Deps{
		Registry:    registry,
		Arbiter:     transmit.NewArbiter(factory.New, nil),
		GPIO:        hardware.NewBitBanger(lines),
		Capturer:    capturer,
		DefaultFreq: 36000,
	})

	t.Run("send deck play", func(t *testing.T) {
		res := d.Send(ctx, "deck", "play", protocol.Options{})
		if res.Status != http.StatusOK {
			t.Fatalf("status = %d, body = %v", res.Status, res.Body)
		}
		if res.Body["code"] != 121 {
			t.Errorf("code = %v, want 121", res.Body["code"])
		}
	})

	t.Run("unknown command", func(t *testing.T) {
		res := d.Send(ctx, "deck", "eject", protocol.Options{})
		if res.Status != http.StatusNotFound {
			t.Errorf("status = %d, want 404", res.Status)
		}
	})

	t.Run("setup new device", func(t *testing.T) {
		if testing.Short() {
			t.Skip("learn sequence sleeps for about 1.4s")
		}
		res := d.Setup(ctx, "newdev", "power")
		if res.Status != http.StatusOK {
			t.Fatalf("status = %d, body = %v", res.Status, res.Body)
		}
		lengths := res.Body["lengths"].(map[string]int)
		if lengths["0"] != 5 || lengths["1"] != 5 {
			t.Errorf("lengths = %v", lengths)
		}

		stored, err := device.NewSQLiteRepository(db.DB).Get(ctx, "newdev")
		if err != nil {
			t.Fatalf("learned device not persisted: %v", err)
		}
		if stored.IR.TxFreq != 36000 || len(stored.IR.Commands["power"]["1"]) != 5 {
			t.Errorf("stored = %+v", stored.IR)
		}
	})
}
