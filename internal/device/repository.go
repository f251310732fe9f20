package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/arylic-gateway/internal/infrastructure/database"
)

// Repository defines the persistence operations for known speakers.
// This abstraction allows a mock in tests and keeps SQL out of callers.
type Repository interface {
	// List returns every known speaker ordered by name.
	List(ctx context.Context) ([]KnownDevice, error)

	// Get returns a speaker by name (case-insensitive).
	// Returns ErrDeviceNotFound if it is not stored.
	Get(ctx context.Context, name string) (*KnownDevice, error)

	// Upsert stores a speaker, refreshing LastSeen when it already exists.
	// A different name previously stored at the same address is replaced.
	Upsert(ctx context.Context, device KnownDevice) error

	// Delete removes a speaker by name.
	// Returns ErrDeviceNotFound if it is not stored.
	Delete(ctx context.Context, name string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *database.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The known_devices table must exist (run db.Migrate first).
func NewSQLiteRepository(db *database.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// List returns every known speaker ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]KnownDevice, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT name, host, port, first_seen, last_seen
		FROM known_devices
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying known devices: %w", err)
	}
	defer rows.Close()

	var devices []KnownDevice
	for rows.Next() {
		d, err := scanKnownDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating known devices: %w", err)
	}
	return devices, nil
}

// Get returns a speaker by name.
func (r *SQLiteRepository) Get(ctx context.Context, name string) (*KnownDevice, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT name, host, port, first_seen, last_seen
		FROM known_devices
		WHERE name = ?`, name)

	d, err := scanKnownDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, err
	}
	return d, nil
}

// Upsert stores a speaker. FirstSeen is kept from the existing row; a zero
// LastSeen is replaced with the current time.
func (r *SQLiteRepository) Upsert(ctx context.Context, device KnownDevice) error {
	if err := device.Validate(); err != nil {
		return err
	}

	seen := device.LastSeen
	if seen.IsZero() {
		seen = time.Now()
	}
	seenStr := seen.UTC().Format(time.RFC3339)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	// The speaker was renamed: drop the stale row holding its address.
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM known_devices WHERE host = ? AND port = ? AND name <> ?",
		device.Host, device.Port, device.Name,
	); err != nil {
		return fmt.Errorf("removing renamed device: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO known_devices (name, host, port, first_seen, last_seen)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			host = excluded.host,
			port = excluded.port,
			last_seen = excluded.last_seen`,
		device.Name, device.Host, device.Port, seenStr, seenStr,
	); err != nil {
		return fmt.Errorf("upserting known device: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing known device: %w", err)
	}
	return nil
}

// Delete removes a speaker by name.
func (r *SQLiteRepository) Delete(ctx context.Context, name string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM known_devices WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("deleting known device: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanKnownDevice(s scanner) (*KnownDevice, error) {
	var d KnownDevice
	var firstSeen, lastSeen string

	if err := s.Scan(&d.Name, &d.Host, &d.Port, &firstSeen, &lastSeen); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning known device: %w", err)
	}

	var err error
	if d.FirstSeen, err = time.Parse(time.RFC3339, firstSeen); err != nil {
		return nil, fmt.Errorf("parsing first_seen: %w", err)
	}
	if d.LastSeen, err = time.Parse(time.RFC3339, lastSeen); err != nil {
		return nil, fmt.Errorf("parsing last_seen: %w", err)
	}
	return &d, nil
}
