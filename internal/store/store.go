// Package store provides a SQLite-backed implementation of the capacity
// backend. It is used by `capacity serve` to answer the API and by the CLI
// when it runs against a local database instead of a remote API.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/signsinfo/capacity/internal/backend"
	"github.com/signsinfo/capacity/internal/capacity"
	"github.com/signsinfo/capacity/internal/datekey"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS printers (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    name       TEXT NOT NULL,
    capacity   REAL NOT NULL DEFAULT 0,
    unit       TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL DEFAULT (datetime('now'))
);
CREATE TABLE IF NOT EXISTS jobs (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    printer_id INTEGER NOT NULL,
    date       TEXT NOT NULL,
    name       TEXT NOT NULL DEFAULT '',
    qty        INTEGER NOT NULL DEFAULT 0,
    height     REAL NOT NULL,
    length     REAL NOT NULL,
    created_at TEXT NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_jobs_date ON jobs(date);
CREATE TABLE IF NOT EXISTS usages (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    printer_id INTEGER NOT NULL,
    date       TEXT NOT NULL,
    units_used REAL NOT NULL DEFAULT 0,
    use_jobs   INTEGER NOT NULL DEFAULT 0,
    updated_at TEXT NOT NULL DEFAULT (datetime('now')),
    UNIQUE (printer_id, date)
);
CREATE INDEX IF NOT EXISTS idx_usages_date ON usages(date);
`

// Store provides SQLite-backed storage for printers, jobs and usages.
type Store struct {
	db *sql.DB
}

var _ backend.Backend = (*Store)(nil)

// OpenStore opens (or creates) the capacity database at dbPath and runs migrations.
func OpenStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open capacity db: %w", err)
	}

	// Enable WAL mode for concurrent reads while the API writes
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ListMachines returns every printer ordered by id.
func (s *Store) ListMachines(ctx context.Context) ([]capacity.Machine, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, capacity, unit FROM printers ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query printers: %w", err)
	}
	defer rows.Close()

	var machines []capacity.Machine
	for rows.Next() {
		var m capacity.Machine
		if err := rows.Scan(&m.ID, &m.Name, &m.Capacity, &m.Unit); err != nil {
			return nil, fmt.Errorf("scan printer: %w", err)
		}
		machines = append(machines, m)
	}
	return machines, rows.Err()
}

// GetUsages returns the stored usage rows for date.
func (s *Store) GetUsages(ctx context.Context, date datekey.Key) ([]capacity.UsageRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, printer_id, units_used, use_jobs
		FROM usages
		WHERE date = ?
		ORDER BY printer_id ASC`, date.String())
	if err != nil {
		return nil, fmt.Errorf("query usages: %w", err)
	}
	defer rows.Close()

	var usages []capacity.UsageRecord
	for rows.Next() {
		var (
			id, printerID int64
			units         float64
			useJobs       int
		)
		if err := rows.Scan(&id, &printerID, &units, &useJobs); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		usages = append(usages, capacity.UsageRecord{
			Identity:        capacity.Saved(id),
			MachineID:       printerID,
			Date:            date,
			UnitsUsed:       units,
			DerivedFromJobs: useJobs == 1,
		})
	}
	return usages, rows.Err()
}

// GetJobs returns the jobs recorded for date.
func (s *Store) GetJobs(ctx context.Context, date datekey.Key) ([]capacity.Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, printer_id, name, qty, height, length
		FROM jobs
		WHERE date = ?
		ORDER BY id ASC`, date.String())
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []capacity.Job
	for rows.Next() {
		j := capacity.Job{Date: date}
		if err := rows.Scan(&j.ID, &j.MachineID, &j.Name, &j.Qty, &j.Height, &j.Length); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// UpsertUsage sets units used. An existing id is updated in place; id 0
// creates the row or, if (printer, date) already has one, updates that row.
func (s *Store) UpsertUsage(ctx context.Context, w backend.UsageWrite) (int64, error) {
	if w.UnitsUsed < 0 {
		return 0, capacity.ErrNegativeUsage
	}
	if w.ID > 0 {
		res, err := s.db.ExecContext(ctx, `
			UPDATE usages SET units_used = ?, updated_at = datetime('now')
			WHERE id = ?`, w.UnitsUsed, w.ID)
		if err != nil {
			return 0, fmt.Errorf("update usage id=%d: %w", w.ID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return w.ID, nil
		}
	}

	if err := s.requireMachine(ctx, w.MachineID); err != nil {
		return 0, err
	}
	if !w.Date.Valid() {
		return 0, fmt.Errorf("upsert usage: invalid date %q", w.Date)
	}

	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO usages (printer_id, date, units_used) VALUES (?, ?, ?)
		ON CONFLICT (printer_id, date) DO UPDATE
		SET units_used = excluded.units_used, updated_at = datetime('now')
		RETURNING id`, w.MachineID, w.Date.String(), w.UnitsUsed).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert usage: %w", err)
	}
	return id, nil
}

// SetDerivedFlag sets the derive-from-jobs flag with the same identity rules
// as UpsertUsage.
func (s *Store) SetDerivedFlag(ctx context.Context, w backend.FlagWrite) (int64, error) {
	flag := 0
	if w.Derived {
		flag = 1
	}
	if w.ID > 0 {
		res, err := s.db.ExecContext(ctx, `
			UPDATE usages SET use_jobs = ?, updated_at = datetime('now')
			WHERE id = ?`, flag, w.ID)
		if err != nil {
			return 0, fmt.Errorf("update use_jobs id=%d: %w", w.ID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return w.ID, nil
		}
	}

	if err := s.requireMachine(ctx, w.MachineID); err != nil {
		return 0, err
	}
	if !w.Date.Valid() {
		return 0, fmt.Errorf("set derived flag: invalid date %q", w.Date)
	}

	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO usages (printer_id, date, use_jobs) VALUES (?, ?, ?)
		ON CONFLICT (printer_id, date) DO UPDATE
		SET use_jobs = excluded.use_jobs, updated_at = datetime('now')
		RETURNING id`, w.MachineID, w.Date.String(), flag).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("set derived flag: %w", err)
	}
	return id, nil
}

// CreateJob stores a job and returns its id.
func (s *Store) CreateJob(ctx context.Context, job capacity.Job) (int64, error) {
	if err := job.Validate(); err != nil {
		return 0, err
	}
	if !job.Date.Valid() {
		return 0, fmt.Errorf("create job: invalid date %q", job.Date)
	}
	if err := s.requireMachine(ctx, job.MachineID); err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (printer_id, date, name, qty, height, length)
		VALUES (?, ?, ?, ?, ?, ?)`,
		job.MachineID, job.Date.String(), job.Name, job.Qty, job.Height, job.Length)
	if err != nil {
		return 0, fmt.Errorf("insert job: %w", err)
	}
	return res.LastInsertId()
}

// UpdateJob replaces a job's name, quantity and dimensions and moves it to
// job.MachineID. A zero MachineID keeps the job on its machine. The date of a
// job never changes.
func (s *Store) UpdateJob(ctx context.Context, job capacity.Job) error {
	if err := job.Validate(); err != nil {
		return err
	}
	if job.MachineID != 0 {
		if err := s.requireMachine(ctx, job.MachineID); err != nil {
			return err
		}
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET printer_id = COALESCE(NULLIF(?, 0), printer_id),
			name = ?, qty = ?, height = ?, length = ?
		WHERE id = ?`, job.MachineID, job.Name, job.Qty, job.Height, job.Length, job.ID)
	if err != nil {
		return fmt.Errorf("update job id=%d: %w", job.ID, err)
	}
	return expectRow(res, "job", job.ID)
}

// DeleteJob removes a job.
func (s *Store) DeleteJob(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete job id=%d: %w", id, err)
	}
	return expectRow(res, "job", id)
}

// CreateMachine stores a printer and returns its id.
func (s *Store) CreateMachine(ctx context.Context, m capacity.Machine) (int64, error) {
	if m.Name == "" {
		return 0, capacity.ErrInvalidMachine
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO printers (name, capacity, unit) VALUES (?, ?, ?)`,
		m.Name, m.Capacity, m.Unit)
	if err != nil {
		return 0, fmt.Errorf("insert printer: %w", err)
	}
	return res.LastInsertId()
}

// UpdateMachine replaces a printer's name, capacity and unit.
func (s *Store) UpdateMachine(ctx context.Context, m capacity.Machine) error {
	if m.Name == "" {
		return capacity.ErrInvalidMachine
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE printers SET name = ?, capacity = ?, unit = ?
		WHERE id = ?`, m.Name, m.Capacity, m.Unit, m.ID)
	if err != nil {
		return fmt.Errorf("update printer id=%d: %w", m.ID, err)
	}
	return expectRow(res, "printer", m.ID)
}

// DeleteMachine removes a printer together with its jobs and usages.
func (s *Store) DeleteMachine(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM jobs WHERE printer_id = ?`,
		`DELETE FROM usages WHERE printer_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return fmt.Errorf("delete printer id=%d: %w", id, err)
		}
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM printers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete printer id=%d: %w", id, err)
	}
	if err := expectRow(res, "printer", id); err != nil {
		return err
	}
	return tx.Commit()
}

// GetReport returns, per printer, the mean daily utilization over the days in
// [start, end] that have a usage row: sum(units) / (capacity * days).
// Printers without rows in the range or without a positive capacity are
// omitted.
func (s *Store) GetReport(ctx context.Context, start, end datekey.Key) (map[int64]float64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.capacity, SUM(u.units_used), COUNT(DISTINCT u.date)
		FROM usages u
		JOIN printers p ON p.id = u.printer_id
		WHERE u.date >= ? AND u.date <= ?
		GROUP BY p.id, p.capacity`, start.String(), end.String())
	if err != nil {
		return nil, fmt.Errorf("query report: %w", err)
	}
	defer rows.Close()

	report := make(map[int64]float64)
	for rows.Next() {
		var (
			id           int64
			rated, units float64
			days         int
		)
		if err := rows.Scan(&id, &rated, &units, &days); err != nil {
			return nil, fmt.Errorf("scan report row: %w", err)
		}
		if rated <= 0 || days == 0 {
			continue
		}
		report[id] = units / (rated * float64(days))
	}
	return report, rows.Err()
}

func (s *Store) requireMachine(ctx context.Context, id int64) error {
	var found int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM printers WHERE id = ?`, id).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("printer id=%d: %w", id, capacity.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("lookup printer id=%d: %w", id, err)
	}
	return nil
}

func expectRow(res sql.Result, kind string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s id=%d: %w", kind, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s id=%d: %w", kind, id, capacity.ErrNotFound)
	}
	return nil
}
