package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/gridsched/gridsched/internal/engine"
	"github.com/gridsched/gridsched/internal/planio"
)

// Store handles persistent storage using SQLite: the device roster, named
// tariff plans and the history of optimization runs.
type Store struct {
	db *sql.DB
}

// Run is a persisted optimization: the full input it was computed from
// and the resulting output document.
type Run struct {
	ID        string        `json:"id"`
	PlanName  string        `json:"plan"`
	Input     planio.Input  `json:"input"`
	Output    planio.Output `json:"output"`
	TotalCost float64       `json:"totalCost"`
	CreatedAt time.Time     `json:"createdAt"`
}

// NewStore opens the database and initializes the schema.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	store := &Store{db: db}
	if err := store.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS devices (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		power REAL NOT NULL,
		duration INTEGER NOT NULL,
		mode TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS tariff_plans (
		name TEXT PRIMARY KEY,
		rates TEXT NOT NULL,
		max_power REAL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		plan_name TEXT NOT NULL,
		input TEXT NOT NULL,
		output TEXT NOT NULL,
		total_cost REAL NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveDevice saves or updates a device.
func (s *Store) SaveDevice(d engine.Device) error {
	if err := d.Validate(); err != nil {
		return err
	}

	// Upsert keeps the original row so the roster's insertion order, which
	// doubles as the scheduling order, survives edits.
	query := `INSERT INTO devices (id, name, power, duration, mode, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			power = excluded.power,
			duration = excluded.duration,
			mode = excluded.mode,
			updated_at = excluded.updated_at`

	now := time.Now()
	_, err := s.db.Exec(query, d.ID, d.Name, d.Power, d.Duration, d.Mode, now, now)
	return err
}

// GetDevice retrieves a single device by id.
func (s *Store) GetDevice(id string) (engine.Device, error) {
	query := `SELECT id, name, power, duration, mode FROM devices WHERE id = ?`

	var d engine.Device
	err := s.db.QueryRow(query, id).Scan(&d.ID, &d.Name, &d.Power, &d.Duration, &d.Mode)
	if err != nil {
		return engine.Device{}, err
	}
	return d, nil
}

// GetDevices retrieves the device roster in insertion order. That order
// is the scheduling order, so it is part of the run's semantics.
func (s *Store) GetDevices() ([]engine.Device, error) {
	query := `SELECT id, name, power, duration, mode FROM devices ORDER BY rowid`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	devices := []engine.Device{}
	for rows.Next() {
		var d engine.Device
		if err := rows.Scan(&d.ID, &d.Name, &d.Power, &d.Duration, &d.Mode); err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}

	return devices, rows.Err()
}

// DeleteDevice deletes a device by id.
func (s *Store) DeleteDevice(id string) error {
	_, err := s.db.Exec(`DELETE FROM devices WHERE id = ?`, id)
	return err
}

// SaveTariffPlan saves or replaces a named tariff plan.
func (s *Store) SaveTariffPlan(name string, rates []engine.TariffRange, maxPower *float64) error {
	ratesJSON, err := json.Marshal(rates)
	if err != nil {
		return err
	}

	var capVal sql.NullFloat64
	if maxPower != nil {
		capVal = sql.NullFloat64{Float64: *maxPower, Valid: true}
	}

	query := `INSERT OR REPLACE INTO tariff_plans (name, rates, max_power, updated_at)
		VALUES (?, ?, ?, ?)`

	_, err = s.db.Exec(query, name, string(ratesJSON), capVal, time.Now())
	return err
}

// GetTariffPlan retrieves a named tariff plan.
func (s *Store) GetTariffPlan(name string) ([]engine.TariffRange, *float64, error) {
	query := `SELECT rates, max_power FROM tariff_plans WHERE name = ?`

	var ratesJSON string
	var capVal sql.NullFloat64
	if err := s.db.QueryRow(query, name).Scan(&ratesJSON, &capVal); err != nil {
		return nil, nil, err
	}

	var rates []engine.TariffRange
	if err := json.Unmarshal([]byte(ratesJSON), &rates); err != nil {
		return nil, nil, err
	}

	var maxPower *float64
	if capVal.Valid {
		maxPower = &capVal.Float64
	}
	return rates, maxPower, nil
}

// SaveRun records a completed optimization run.
func (s *Store) SaveRun(run Run) error {
	inputJSON, err := json.Marshal(run.Input)
	if err != nil {
		return err
	}
	outputJSON, err := json.Marshal(run.Output)
	if err != nil {
		return err
	}

	query := `INSERT INTO runs (id, plan_name, input, output, total_cost, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	_, err = s.db.Exec(query, run.ID, run.PlanName, string(inputJSON), string(outputJSON),
		run.TotalCost, run.CreatedAt)
	return err
}

// GetRun retrieves a run by id.
func (s *Store) GetRun(id string) (*Run, error) {
	query := `SELECT id, plan_name, input, output, total_cost, created_at FROM runs WHERE id = ?`
	return scanRun(s.db.QueryRow(query, id))
}

// GetRuns retrieves the most recent runs, newest first.
func (s *Store) GetRuns(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT id, plan_name, input, output, total_cost, created_at
		FROM runs ORDER BY created_at DESC, id LIMIT ?`

	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []*Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var inputJSON, outputJSON string

	err := row.Scan(&run.ID, &run.PlanName, &inputJSON, &outputJSON, &run.TotalCost, &run.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(inputJSON), &run.Input); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(outputJSON), &run.Output); err != nil {
		return nil, err
	}

	return &run, nil
}
