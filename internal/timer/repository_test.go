package timer

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/hifilink/hifilink/internal/infrastructure/database"
	_ "github.com/hifilink/hifilink/migrations"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(database.Config{Path: ":memory:", BusyTimeout: 1})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		db.Close() //nolint:errcheck // Test cleanup
	})

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db.DB
}

func intPtr(v int) *int { return &v }

var baseTime = time.Date(2026, 10, 19, 21, 0, 0, 0, time.UTC)

func testTimer(t *testing.T, typ Type, at time.Time, actions ...Action) *Timer {
	t.Helper()
	if len(actions) == 0 {
		actions = []Action{{Device: "amp", Command: "power"}}
	}
	req := CreateRequest{Type: typ, Label: "evening", TriggerAt: &at, Actions: actions}
	if typ == TypeInterval {
		req.IntervalSeconds = 3600
	}
	tm, err := req.Build(baseTime)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return tm
}

func TestSQLiteRepository_CreateAndGet(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	tm := testTimer(t, TypeOnce, baseTime.Add(time.Hour),
		Action{Device: "amp", Command: "power", Repetitions: intPtr(2)},
		Action{Device: "cd", Command: "play", DelayMS: intPtr(500)},
	)
	if err := repo.Create(ctx, tm); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := repo.Get(ctx, tm.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Type != TypeOnce || got.Label != "evening" || !got.Enabled {
		t.Errorf("Get() = %+v", got)
	}
	if !got.TriggerAt.Equal(baseTime.Add(time.Hour)) {
		t.Errorf("TriggerAt = %v, want %v", got.TriggerAt, baseTime.Add(time.Hour))
	}
	if len(got.Actions) != 2 || *got.Actions[0].Repetitions != 2 || *got.Actions[1].DelayMS != 500 {
		t.Errorf("Actions = %+v", got.Actions)
	}

	if err := repo.Create(ctx, tm); !errors.Is(err, ErrTimerExists) {
		t.Errorf("Create() duplicate error = %v, want ErrTimerExists", err)
	}
}

func TestSQLiteRepository_NotFound(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, ErrTimerNotFound) {
		t.Errorf("Get() error = %v, want ErrTimerNotFound", err)
	}
	if err := repo.Delete(ctx, "missing"); !errors.Is(err, ErrTimerNotFound) {
		t.Errorf("Delete() error = %v, want ErrTimerNotFound", err)
	}
	if err := repo.Update(ctx, &Timer{ID: "missing", Type: TypeOnce}); !errors.Is(err, ErrTimerNotFound) {
		t.Errorf("Update() error = %v, want ErrTimerNotFound", err)
	}
}

func TestSQLiteRepository_ListDue(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	past := testTimer(t, TypeOnce, baseTime.Add(-time.Minute))
	now := testTimer(t, TypeOnce, baseTime)
	future := testTimer(t, TypeOnce, baseTime.Add(time.Minute))
	disabled := testTimer(t, TypeOnce, baseTime.Add(-time.Hour))
	disabled.Enabled = false

	for _, tm := range []*Timer{future, now, disabled, past} {
		if err := repo.Create(ctx, tm); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	due, err := repo.ListDue(ctx, baseTime)
	if err != nil {
		t.Fatalf("ListDue() error = %v", err)
	}
	if len(due) != 2 || due[0].ID != past.ID || due[1].ID != now.ID {
		t.Errorf("ListDue() = %+v, want past then now", due)
	}

	all, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 4 || all[0].ID != disabled.ID || all[3].ID != future.ID {
		t.Errorf("List() order wrong: %+v", all)
	}
}

func TestSQLiteRepository_UpdateAndDelete(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	tm := testTimer(t, TypeInterval, baseTime)
	if err := repo.Create(ctx, tm); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	tm.TriggerAt = baseTime.Add(time.Hour)
	tm.Enabled = false
	if err := repo.Update(ctx, tm); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	got, err := repo.Get(ctx, tm.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Enabled || !got.TriggerAt.Equal(baseTime.Add(time.Hour)) || got.IntervalSeconds != 3600 {
		t.Errorf("Get() after update = %+v", got)
	}

	if err := repo.Delete(ctx, tm.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := repo.Get(ctx, tm.ID); !errors.Is(err, ErrTimerNotFound) {
		t.Errorf("Get() after delete error = %v", err)
	}
}
