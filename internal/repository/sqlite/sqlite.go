// Package sqlite implements repository.Repository on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"netsketch/internal/domain"
	"netsketch/internal/repository"
)

// Repository implements repository.Repository using SQLite
type Repository struct {
	db *sql.DB
}

var _ repository.Repository = (*Repository)(nil)

// New opens (or creates) the database at dbPath and migrates it. ":memory:"
// gives a private in-memory database.
func New(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps :memory: databases alive and serializes writers.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	repo := &Repository{db: db}
	if err := repo.migrate(context.Background(), dbPath != ":memory:"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return repo, nil
}

// Close releases the database handle
func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *Repository) migrate(ctx context.Context, wal bool) error {
	statements := []string{
		`PRAGMA foreign_keys = ON;`,
		`PRAGMA busy_timeout = 5000;`,
		`CREATE TABLE IF NOT EXISTS scans (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			subnet TEXT,
			root_id TEXT,
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS devices (
			scan_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			id TEXT NOT NULL,
			ip TEXT NOT NULL DEFAULT '',
			mac TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL DEFAULT '',
			vendor TEXT NOT NULL DEFAULT '',
			kind TEXT NOT NULL,
			parent_id TEXT,
			state TEXT NOT NULL,
			latency_ms REAL,
			PRIMARY KEY (scan_id, id),
			FOREIGN KEY (scan_id) REFERENCES scans(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_devices_scan_position ON devices(scan_id, position);`,
		`CREATE INDEX IF NOT EXISTS idx_scans_created ON scans(created_at);`,
	}
	if wal {
		statements = append([]string{`PRAGMA journal_mode = WAL;`}, statements...)
	}

	for _, stmt := range statements {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate failed: %w", err)
		}
	}
	return nil
}

// SaveScan inserts a scan and its devices in one transaction
func (r *Repository) SaveScan(ctx context.Context, scan *domain.Scan) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO scans (id, source, subnet, root_id, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, scan.ID, string(scan.Source), stringToNull(scan.Subnet), stringToNull(scan.RootID), formatTime(scan.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert scan: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO devices (scan_id, position, id, ip, mac, name, vendor, kind, parent_id, state, latency_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare device insert: %w", err)
	}
	defer stmt.Close()

	for i, d := range scan.Devices {
		if _, err := stmt.ExecContext(ctx, scan.ID, i, d.ID, d.Address, d.HardwareAddress, d.DisplayName,
			d.Vendor, string(d.Kind), stringToNull(d.ParentID), string(d.State), floatPtrToNull(d.LatencyMs)); err != nil {
			return fmt.Errorf("failed to insert device %s: %w", d.ID, err)
		}
	}

	return tx.Commit()
}

// GetScan loads a scan with its devices in saved order
func (r *Repository) GetScan(ctx context.Context, id string) (*domain.Scan, error) {
	var (
		scan           domain.Scan
		source         string
		subnet, rootID sql.NullString
		createdAt      string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, source, subnet, root_id, created_at FROM scans WHERE id = ?
	`, id).Scan(&scan.ID, &source, &subnet, &rootID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("scan %s: %w", id, repository.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query scan: %w", err)
	}
	scan.Source = domain.ScanSource(source)
	scan.Subnet = nullToString(subnet)
	scan.RootID = nullToString(rootID)
	scan.CreatedAt = parseTime(createdAt)

	devices, err := r.loadDevices(ctx, id)
	if err != nil {
		return nil, err
	}
	scan.Devices = devices
	return &scan, nil
}

func (r *Repository) loadDevices(ctx context.Context, scanID string) ([]domain.Device, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, ip, mac, name, vendor, kind, parent_id, state, latency_ms
		FROM devices WHERE scan_id = ? ORDER BY position
	`, scanID)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	devices := make([]domain.Device, 0)
	for rows.Next() {
		var (
			d           domain.Device
			kind, state string
			parentID    sql.NullString
			latency     sql.NullFloat64
		)
		if err := rows.Scan(&d.ID, &d.Address, &d.HardwareAddress, &d.DisplayName, &d.Vendor,
			&kind, &parentID, &state, &latency); err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		d.Kind = domain.ParseKind(kind)
		d.State = domain.ParseState(state)
		d.ParentID = nullToString(parentID)
		d.LatencyMs = nullToFloatPtr(latency)
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating devices: %w", err)
	}
	return devices, nil
}

// ListScans returns the newest scans first. limit <= 0 means no limit.
func (r *Repository) ListScans(ctx context.Context, limit int) ([]domain.ScanSummary, error) {
	query := `
		SELECT s.id, s.source, s.subnet, s.root_id, s.created_at, COUNT(d.id)
		FROM scans s LEFT JOIN devices d ON d.scan_id = s.id
		GROUP BY s.id
		ORDER BY s.created_at DESC, s.id
	`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query scans: %w", err)
	}
	defer rows.Close()

	summaries := make([]domain.ScanSummary, 0)
	for rows.Next() {
		var (
			s              domain.ScanSummary
			source         string
			subnet, rootID sql.NullString
			createdAt      string
		)
		if err := rows.Scan(&s.ID, &source, &subnet, &rootID, &createdAt, &s.DeviceCount); err != nil {
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}
		s.Source = domain.ScanSource(source)
		s.Subnet = nullToString(subnet)
		s.RootID = nullToString(rootID)
		s.CreatedAt = parseTime(createdAt)
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scans: %w", err)
	}
	return summaries, nil
}

// UpdateDevice replaces the stored copy of a device, keeping its position.
// Identity fields other than the parent link are rewritten as given.
func (r *Repository) UpdateDevice(ctx context.Context, scanID string, d domain.Device) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE devices
		SET ip = ?, mac = ?, name = ?, vendor = ?, kind = ?, parent_id = ?, state = ?, latency_ms = ?
		WHERE scan_id = ? AND id = ?
	`, d.Address, d.HardwareAddress, d.DisplayName, d.Vendor, string(d.Kind),
		stringToNull(d.ParentID), string(d.State), floatPtrToNull(d.LatencyMs), scanID, d.ID)
	if err != nil {
		return fmt.Errorf("failed to update device: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("device %s in scan %s: %w", d.ID, scanID, repository.ErrNotFound)
	}
	return nil
}

// DeleteScan removes a scan; its devices cascade
func (r *Repository) DeleteScan(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM scans WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete scan: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("scan %s: %w", id, repository.ErrNotFound)
	}
	return nil
}
