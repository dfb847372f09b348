package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS positions (
	id TEXT PRIMARY KEY,
	trade_group_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	status TEXT NOT NULL,
	expiry TEXT,
	submitted_at TEXT,
	entry_time TEXT,
	exit_time TEXT,
	exit_reason TEXT,
	legs TEXT,
	quantity INTEGER,
	long_put_strike REAL,
	short_put_strike REAL,
	short_call_strike REAL,
	long_call_strike REAL,
	entry_total_fill REAL,
	exit_total_fill REAL,
	opening_cash_flow REAL,
	closing_cash_flow REAL,
	realized_pnl REAL,
	realized_pnl_pct REAL,
	entry_underlying REAL,
	exit_underlying REAL,
	underlying_change REAL,
	credit REAL,
	max_loss REAL,
	reward_risk REAL,
	cushion REAL,
	centering_score REAL,
	balance_score REAL,
	overall_score REAL,
	expected_move REAL
);

CREATE TABLE IF NOT EXISTS snapshots (
	trade_id TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	exit_signal TEXT,
	minutes_since_open REAL,
	minutes_since_entry REAL,
	horizon_bucket INTEGER,
	spot REAL,
	pnl_mid REAL,
	pnl_normalized REAL,
	close_mid REAL,
	close_bid REAL,
	close_ask REAL,
	PRIMARY KEY (trade_id, timestamp)
);
`

// SQLiteSink writes records into a SQLite database at path + ".db".
type SQLiteSink struct {
	mu   sync.Mutex
	conn *sql.DB
	path string
}

// NewSQLiteSink opens (or creates) the database and applies the schema.
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	dbPath := path + ".db"
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer keeps WAL mode simple
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := conn.Exec(sqliteSchema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteSink{conn: conn, path: dbPath}, nil
}

// Path returns the database file.
func (s *SQLiteSink) Path() string { return s.path }

// Conn exposes the connection for queries.
func (s *SQLiteSink) Conn() *sql.DB { return s.conn }

// Write upserts every record in one transaction.
func (s *SQLiteSink) Write(ctx context.Context, export Export) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return ErrClosed
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	posStmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO positions (
		id, trade_group_id, symbol, status, expiry, submitted_at, entry_time, exit_time,
		exit_reason, legs, quantity, long_put_strike, short_put_strike, short_call_strike,
		long_call_strike, entry_total_fill, exit_total_fill, opening_cash_flow, closing_cash_flow,
		realized_pnl, realized_pnl_pct, entry_underlying, exit_underlying, underlying_change,
		credit, max_loss, reward_risk, cushion, centering_score, balance_score, overall_score,
		expected_move
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare positions insert: %w", err)
	}
	defer func() { _ = posStmt.Close() }()

	for _, p := range export.Positions {
		if _, err := posStmt.ExecContext(ctx,
			p.ID, p.TradeGroupID, p.Symbol, p.Status, p.Expiry, p.SubmittedAt, p.EntryTime, p.ExitTime,
			p.ExitReason, p.Legs, p.Quantity, p.LongPutStrike, p.ShortPutStrike, p.ShortCallStrike,
			p.LongCallStrike, p.EntryTotalFill, p.ExitTotalFill, p.OpeningCashFlow, p.ClosingCashFlow,
			p.RealizedPnL, p.RealizedPnLPct, p.EntryUnderlying, p.ExitUnderlying, p.UnderlyingChange,
			p.Credit, p.MaxLoss, p.RewardRisk, p.Cushion, p.CenteringScore, p.BalanceScore, p.OverallScore,
			p.ExpectedMove,
		); err != nil {
			return fmt.Errorf("failed to insert position %s: %w", p.ID, err)
		}
	}

	snapStmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO snapshots (
		trade_id, timestamp, exit_signal, minutes_since_open, minutes_since_entry, horizon_bucket,
		spot, pnl_mid, pnl_normalized, close_mid, close_bid, close_ask
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare snapshots insert: %w", err)
	}
	defer func() { _ = snapStmt.Close() }()

	for _, r := range export.Snapshots {
		if _, err := snapStmt.ExecContext(ctx,
			r.TradeID, r.Timestamp, r.ExitSignal, r.MinutesSinceOpen, r.MinutesSinceEntry, r.HorizonBucket,
			r.Spot, r.PnLMid, r.PnLNormalized, r.CloseMid, r.CloseBid, r.CloseAsk,
		); err != nil {
			return fmt.Errorf("failed to insert snapshot %s@%s: %w", r.TradeID, r.Timestamp, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit export: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
