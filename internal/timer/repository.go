package timer

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines timer persistence.
type Repository interface {
	// List returns all timers ordered by trigger time.
	List(ctx context.Context) ([]Timer, error)

	// ListDue returns enabled timers whose trigger time is at or before now.
	ListDue(ctx context.Context, now time.Time) ([]Timer, error)

	// Get returns ErrTimerNotFound for an unknown ID.
	Get(ctx context.Context, id string) (*Timer, error)

	Create(ctx context.Context, t *Timer) error
	Update(ctx context.Context, t *Timer) error
	Delete(ctx context.Context, id string) error
}

const timerColumns = `id, type, label, trigger_at, interval_seconds, actions, enabled, created_at, updated_at`

// timeLayout is fixed width in UTC so trigger_at sorts and compares as text.
const timeLayout = "2006-01-02T15:04:05Z"

// SQLiteRepository implements Repository on the timers table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// List retrieves all timers.
func (r *SQLiteRepository) List(ctx context.Context) ([]Timer, error) {
	return r.query(ctx, `SELECT `+timerColumns+` FROM timers ORDER BY trigger_at, id`)
}

// ListDue retrieves enabled timers due at now.
func (r *SQLiteRepository) ListDue(ctx context.Context, now time.Time) ([]Timer, error) {
	return r.query(ctx,
		`SELECT `+timerColumns+` FROM timers WHERE enabled = 1 AND trigger_at <= ? ORDER BY trigger_at, id`,
		formatTime(now))
}

// Get retrieves a timer by ID.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Timer, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+timerColumns+` FROM timers WHERE id = ?`, id)
	t, err := scanTimer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTimerNotFound
		}
		return nil, fmt.Errorf("querying timer: %w", err)
	}
	return t, nil
}

// Create inserts a new timer.
func (r *SQLiteRepository) Create(ctx context.Context, t *Timer) error {
	actionsJSON, err := json.Marshal(t.Actions)
	if err != nil {
		return fmt.Errorf("marshalling actions: %w", err)
	}

	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = now
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO timers (`+timerColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID,
		string(t.Type),
		t.Label,
		formatTime(t.TriggerAt),
		t.IntervalSeconds,
		string(actionsJSON),
		boolToInt(t.Enabled),
		formatTime(t.CreatedAt),
		formatTime(t.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrTimerExists
		}
		return fmt.Errorf("inserting timer: %w", err)
	}
	return nil
}

// Update modifies an existing timer.
func (r *SQLiteRepository) Update(ctx context.Context, t *Timer) error {
	actionsJSON, err := json.Marshal(t.Actions)
	if err != nil {
		return fmt.Errorf("marshalling actions: %w", err)
	}

	t.UpdatedAt = time.Now().UTC()

	result, err := r.db.ExecContext(ctx, `
		UPDATE timers SET
			type = ?, label = ?, trigger_at = ?, interval_seconds = ?,
			actions = ?, enabled = ?, updated_at = ?
		WHERE id = ?`,
		string(t.Type),
		t.Label,
		formatTime(t.TriggerAt),
		t.IntervalSeconds,
		string(actionsJSON),
		boolToInt(t.Enabled),
		formatTime(t.UpdatedAt),
		t.ID,
	)
	if err != nil {
		return fmt.Errorf("updating timer: %w", err)
	}
	return expectOneRow(result)
}

// Delete removes a timer by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM timers WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting timer: %w", err)
	}
	return expectOneRow(result)
}

func (r *SQLiteRepository) query(ctx context.Context, query string, args ...any) ([]Timer, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying timers: %w", err)
	}
	defer rows.Close()

	var timers []Timer
	for rows.Next() {
		t, scanErr := scanTimer(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning timer: %w", scanErr)
		}
		timers = append(timers, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating timers: %w", err)
	}
	return timers, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTimer(scanner rowScanner) (*Timer, error) {
	var t Timer
	var typ, triggerAt, actionsJSON, createdAt, updatedAt string
	var enabled int

	if err := scanner.Scan(
		&t.ID,
		&typ,
		&t.Label,
		&triggerAt,
		&t.IntervalSeconds,
		&actionsJSON,
		&enabled,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	t.Type = Type(typ)
	t.Enabled = enabled != 0
	if err := json.Unmarshal([]byte(actionsJSON), &t.Actions); err != nil {
		return nil, fmt.Errorf("unmarshalling actions: %w", err)
	}

	var err error
	if t.TriggerAt, err = time.Parse(timeLayout, triggerAt); err != nil {
		return nil, fmt.Errorf("parsing trigger_at: %w", err)
	}
	if t.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if t.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &t, nil
}

func expectOneRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrTimerNotFound
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}
