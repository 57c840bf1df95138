package dbopen

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// backoff is the wait before each retry of a busy transaction.
var backoff = []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}

var busyMarkers = []string{"SQLITE_BUSY", "database is locked", "database table is locked"}

// IsBusy reports whether err is SQLite refusing a lock held by another
// connection.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, m := range busyMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// RunTx runs fn inside a transaction. A busy database is retried after each
// backoff step; any other error is returned at once. fn may run more than
// once and must not keep state across attempts.
func RunTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	err := attempt(ctx, db, fn)
	for _, wait := range backoff {
		if !IsBusy(err) {
			return err
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("dbopen: tx retry: %w", ctx.Err())
		case <-t.C:
		}
		err = attempt(ctx, db, fn)
	}
	return err
}

func attempt(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("dbopen: begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("dbopen: commit: %w", err)
	}
	return nil
}
