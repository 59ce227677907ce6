package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hifilink/hifilink/internal/infrastructure/database"
)

// Repository defines the interface for device persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// Get retrieves a device by name.
	// Returns ErrDeviceNotFound if the device does not exist.
	Get(ctx context.Context, name string) (*Device, error)

	// List retrieves all devices ordered by name.
	List(ctx context.Context) ([]Device, error)

	// Save inserts or replaces a device.
	Save(ctx context.Context, device *Device) error

	// Delete removes a device by name.
	// Returns ErrDeviceNotFound if the device does not exist.
	Delete(ctx context.Context, name string) error

	// ReplaceAll swaps the whole registry for devices in one transaction.
	// Readers see either the old set or the new one, never a mix.
	ReplaceAll(ctx context.Context, devices []Device) error
}

// SQLiteRepository implements Repository using SQLite.
// Each row keeps the device document as JSON alongside the indexed name and protocol.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open, migrated SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Get retrieves a device by name.
func (r *SQLiteRepository) Get(ctx context.Context, name string) (*Device, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT data, created_at, updated_at FROM devices WHERE name = ?", name)
	device, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device %q: %w", name, err)
	}
	return device, nil
}

// List retrieves all devices.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT data, created_at, updated_at FROM devices ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *device)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

// Save upserts a device. Timestamps are filled in when unset.
func (r *SQLiteRepository) Save(ctx context.Context, device *Device) error {
	return saveDevice(ctx, r.db, device)
}

// Delete removes a device by name.
func (r *SQLiteRepository) Delete(ctx context.Context, name string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM devices WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// ReplaceAll deletes every device and inserts the given set atomically.
func (r *SQLiteRepository) ReplaceAll(ctx context.Context, devices []Device) error {
	return database.InTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM devices"); err != nil {
			return fmt.Errorf("clearing devices: %w", err)
		}
		for i := range devices {
			if err := saveDevice(ctx, tx, &devices[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func saveDevice(ctx context.Context, db execer, device *Device) error {
	now := time.Now().UTC()
	if device.CreatedAt.IsZero() {
		device.CreatedAt = now
	}
	if device.UpdatedAt.IsZero() {
		device.UpdatedAt = now
	}

	data, err := json.Marshal(device)
	if err != nil {
		return fmt.Errorf("marshalling device: %w", err)
	}

	query := `
		INSERT INTO devices (name, protocol, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			protocol = excluded.protocol,
			data = excluded.data,
			updated_at = excluded.updated_at`

	_, err = db.ExecContext(ctx, query,
		device.Name,
		string(device.Protocol),
		string(data),
		device.CreatedAt.UTC().Format(time.RFC3339Nano),
		device.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("saving device %q: %w", device.Name, err)
	}
	return nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (*Device, error) {
	var data, createdAt, updatedAt string
	if err := row.Scan(&data, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var device Device
	if err := json.Unmarshal([]byte(data), &device); err != nil {
		return nil, fmt.Errorf("decoding device document: %w", err)
	}
	// The columns are authoritative for timestamps.
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		device.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		device.UpdatedAt = t
	}
	return &device, nil
}
