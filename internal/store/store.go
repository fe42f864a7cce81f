// Package store provides SQLite-backed persistence for gapforge.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fentz26/gapforge/internal/models"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store provides access to the gapforge SQLite database.
type Store struct {
	db *sql.DB
}

// New creates a new Store and runs migrations.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Ledgers are single-writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS budgets (
		period TEXT PRIMARY KEY,
		limit_amount REAL NOT NULL,
		spend REAL NOT NULL DEFAULT 0,
		window_start DATETIME NOT NULL,
		window_end DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS cost_transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		amount REAL NOT NULL,
		category TEXT NOT NULL,
		tool TEXT,
		capability TEXT,
		kind TEXT,
		timestamp DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS cost_alerts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		severity TEXT NOT NULL,
		message TEXT NOT NULL,
		period TEXT,
		spend REAL,
		limit_amount REAL,
		timestamp DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tool_usage (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tool TEXT NOT NULL,
		capability TEXT NOT NULL,
		success INTEGER NOT NULL,
		latency_ms REAL NOT NULL,
		cost REAL NOT NULL,
		score REAL NOT NULL,
		error TEXT,
		timestamp DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tools (
		name TEXT PRIMARY KEY,
		capability TEXT NOT NULL,
		kind TEXT NOT NULL,
		source TEXT,
		path TEXT,
		acquired_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS pdr (
		id TEXT PRIMARY KEY,
		action TEXT NOT NULL,
		inputs_hash TEXT NOT NULL,
		outcome TEXT NOT NULL,
		capability TEXT,
		details TEXT,
		timestamp DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_cost_transactions_ts ON cost_transactions(timestamp);
	CREATE INDEX IF NOT EXISTS idx_tool_usage_tool_cap ON tool_usage(tool, capability, timestamp);
	CREATE INDEX IF NOT EXISTS idx_pdr_capability ON pdr(capability);
	`

	_, err := s.db.Exec(schema)
	return err
}

// --- Budget Operations ---

// Budgets returns every live budget row.
func (s *Store) Budgets(ctx context.Context) ([]models.Budget, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT period, limit_amount, spend, window_start, window_end FROM budgets ORDER BY period`)
	if err != nil {
		return nil, fmt.Errorf("query budgets: %w", err)
	}
	defer rows.Close()

	var budgets []models.Budget
	for rows.Next() {
		var b models.Budget
		if err := rows.Scan(&b.Period, &b.Limit, &b.Spend, &b.WindowStart, &b.WindowEnd); err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		budgets = append(budgets, b)
	}
	return budgets, rows.Err()
}

// SaveBudget creates or replaces the row for b.Period.
func (s *Store) SaveBudget(ctx context.Context, b models.Budget) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO budgets (period, limit_amount, spend, window_start, window_end) VALUES (?, ?, ?, ?, ?)`,
		b.Period, b.Limit, b.Spend, b.WindowStart.UTC(), b.WindowEnd.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save budget: %w", err)
	}
	return nil
}

// CommitCost appends txn and writes the updated budgets in one transaction.
// On any error neither the transaction nor the budget changes are persisted.
func (s *Store) CommitCost(ctx context.Context, txn models.CostTransaction, budgets []models.Budget) (models.CostTransaction, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return txn, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO cost_transactions (amount, category, tool, capability, kind, timestamp) VALUES (?, ?, ?, ?, ?, ?)`,
		txn.Amount, txn.Category, txn.Tool, txn.Capability, txn.Kind, txn.Timestamp.UTC(),
	)
	if err != nil {
		return txn, fmt.Errorf("insert cost transaction: %w", err)
	}
	if txn.ID, err = res.LastInsertId(); err != nil {
		return txn, fmt.Errorf("cost transaction id: %w", err)
	}

	for _, b := range budgets {
		if _, err := tx.ExecContext(ctx,
			`UPDATE budgets SET spend = ?, window_start = ?, window_end = ? WHERE period = ?`,
			b.Spend, b.WindowStart.UTC(), b.WindowEnd.UTC(), b.Period,
		); err != nil {
			return txn, fmt.Errorf("update budget %s: %w", b.Period, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return txn, fmt.Errorf("commit cost: %w", err)
	}
	return txn, nil
}

// TransactionsSince returns cost transactions at or after since, oldest first.
func (s *Store) TransactionsSince(ctx context.Context, since time.Time) ([]models.CostTransaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, amount, category, tool, capability, kind, timestamp FROM cost_transactions WHERE timestamp >= ? ORDER BY id`,
		since.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("query cost transactions: %w", err)
	}
	defer rows.Close()

	var txns []models.CostTransaction
	for rows.Next() {
		var t models.CostTransaction
		var tool, capability, kind sql.NullString
		if err := rows.Scan(&t.ID, &t.Amount, &t.Category, &tool, &capability, &kind, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("scan cost transaction: %w", err)
		}
		t.Tool, t.Capability, t.Kind = tool.String, capability.String, kind.String
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

// --- Alert Operations ---

// AppendAlert persists an alert and returns it with its id.
func (s *Store) AppendAlert(ctx context.Context, a models.Alert) (models.Alert, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO cost_alerts (severity, message, period, spend, limit_amount, timestamp) VALUES (?, ?, ?, ?, ?, ?)`,
		a.Severity, a.Message, a.Period, a.Spend, a.Limit, a.Timestamp.UTC(),
	)
	if err != nil {
		return a, fmt.Errorf("insert alert: %w", err)
	}
	if a.ID, err = res.LastInsertId(); err != nil {
		return a, fmt.Errorf("alert id: %w", err)
	}
	return a, nil
}

// RecentAlerts returns up to limit alerts, newest first.
func (s *Store) RecentAlerts(ctx context.Context, limit int) ([]models.Alert, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, severity, message, period, spend, limit_amount, timestamp FROM cost_alerts ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		var a models.Alert
		var period sql.NullString
		var spend, limitAmount sql.NullFloat64
		if err := rows.Scan(&a.ID, &a.Severity, &a.Message, &period, &spend, &limitAmount, &a.Timestamp); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.Period = models.Period(period.String)
		a.Spend, a.Limit = spend.Float64, limitAmount.Float64
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// --- Usage Operations ---

// UsageFilter narrows ScanUsage. Empty fields match everything.
type UsageFilter struct {
	Tool       string
	Capability string
	Since      time.Time
}

// AppendUsage persists a usage record and returns it with its id.
func (s *Store) AppendUsage(ctx context.Context, r models.UsageRecord) (models.UsageRecord, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tool_usage (tool, capability, success, latency_ms, cost, score, error, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Tool, r.Capability, r.Success, r.LatencyMS, r.Cost, r.Score, r.Error, r.Timestamp.UTC(),
	)
	if err != nil {
		return r, fmt.Errorf("insert usage: %w", err)
	}
	if r.ID, err = res.LastInsertId(); err != nil {
		return r, fmt.Errorf("usage id: %w", err)
	}
	return r, nil
}

// ScanUsage returns matching usage records, oldest first.
func (s *Store) ScanUsage(ctx context.Context, f UsageFilter) ([]models.UsageRecord, error) {
	query := `SELECT id, tool, capability, success, latency_ms, cost, score, error, timestamp FROM tool_usage WHERE 1=1`
	var args []interface{}

	if f.Tool != "" {
		query += ` AND tool = ?`
		args = append(args, f.Tool)
	}
	if f.Capability != "" {
		query += ` AND capability = ?`
		args = append(args, f.Capability)
	}
	if !f.Since.IsZero() {
		query += ` AND timestamp >= ?`
		args = append(args, f.Since.UTC())
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query usage: %w", err)
	}
	defer rows.Close()

	var records []models.UsageRecord
	for rows.Next() {
		var r models.UsageRecord
		var errText sql.NullString
		if err := rows.Scan(&r.ID, &r.Tool, &r.Capability, &r.Success, &r.LatencyMS, &r.Cost, &r.Score, &errText, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		r.Error = errText.String
		records = append(records, r)
	}
	return records, rows.Err()
}

// --- Tool Operations ---

// SaveTool creates or replaces an acquired tool.
func (s *Store) SaveTool(ctx context.Context, t models.Tool) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO tools (name, capability, kind, source, path, acquired_at) VALUES (?, ?, ?, ?, ?, ?)`,
		t.Name, t.Capability, t.Kind, t.Source, t.Path, t.AcquiredAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save tool: %w", err)
	}
	return nil
}

// ListTools returns every acquired tool ordered by acquisition time.
func (s *Store) ListTools(ctx context.Context) ([]models.Tool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, capability, kind, source, path, acquired_at FROM tools ORDER BY acquired_at`)
	if err != nil {
		return nil, fmt.Errorf("query tools: %w", err)
	}
	defer rows.Close()

	var tools []models.Tool
	for rows.Next() {
		var t models.Tool
		var source, path sql.NullString
		if err := rows.Scan(&t.Name, &t.Capability, &t.Kind, &source, &path, &t.AcquiredAt); err != nil {
			return nil, fmt.Errorf("scan tool: %w", err)
		}
		t.Source, t.Path = source.String, path.String
		tools = append(tools, t)
	}
	return tools, rows.Err()
}

// --- PDR Operations ---

// WritePDR writes a Process Decision Record.
func (s *Store) WritePDR(ctx context.Context, action, inputsHash, outcome, capability, details string) (*models.PDREntry, error) {
	entry := &models.PDREntry{
		ID:         uuid.New().String(),
		Action:     action,
		InputsHash: inputsHash,
		Outcome:    outcome,
		Capability: capability,
		Details:    details,
		Timestamp:  time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pdr (id, action, inputs_hash, outcome, capability, details, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Action, entry.InputsHash, entry.Outcome, entry.Capability, entry.Details, entry.Timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert pdr: %w", err)
	}
	return entry, nil
}

// ListPDR returns decision records, newest first, optionally filtered by capability.
func (s *Store) ListPDR(ctx context.Context, capability string, limit int) ([]models.PDREntry, error) {
	query := `SELECT id, action, inputs_hash, outcome, capability, details, timestamp FROM pdr`
	var args []interface{}

	if capability != "" {
		query += ` WHERE capability = ?`
		args = append(args, capability)
	}
	query += ` ORDER BY timestamp DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pdr: %w", err)
	}
	defer rows.Close()

	var entries []models.PDREntry
	for rows.Next() {
		var e models.PDREntry
		var capabilityName, details sql.NullString
		if err := rows.Scan(&e.ID, &e.Action, &e.InputsHash, &e.Outcome, &capabilityName, &details, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan pdr: %w", err)
		}
		e.Capability, e.Details = capabilityName.String, details.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
