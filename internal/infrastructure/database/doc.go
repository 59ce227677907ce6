// Package database provides the SQLite store behind the device registry and timers.
//
// This package manages:
//   - Database connection with WAL mode so API reads don't block the worker
//   - Schema migrations loaded from an fs.FS (embedded by the migrations package)
//   - Transaction helpers for all-or-nothing writes
//
// Security Considerations:
//   - All queries use parameterised statements
//   - Database file permissions are set to 0600 (owner read/write only)
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
