// Package sqlite is the journal's persistent ledger: trades, accounts, strategies,
// notes, weekly biases and the per-day performance cache.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when the addressed row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write would violate a uniqueness or ownership rule.
	ErrConflict = errors.New("conflict")
)

// Ledger wraps a single-writer SQLite database.
type Ledger struct {
	db  *sql.DB
	log *slog.Logger
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string, log *slog.Logger) (*Ledger, error) {
	if log == nil {
		log = slog.Default()
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer; SQLite serialises writes anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	l := &Ledger{db: db, log: log.With(slog.String("component", "ledger"))}
	if err := l.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	l.log.Info("opened database", "path", path)
	return l, nil
}

// DB returns the underlying sql.DB for health checks.
func (l *Ledger) DB() *sql.DB { return l.db }

// Close closes the database.
func (l *Ledger) Close() error { return l.db.Close() }

// Migrate creates missing tables and indices. It is idempotent.
func (l *Ledger) Migrate(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("sqlite schema: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS trades (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	date            TEXT NOT NULL,
	entry_datetime  TEXT,
	exit_datetime   TEXT,
	instrument      TEXT NOT NULL,
	direction       TEXT NOT NULL,
	entry_price     REAL NOT NULL,
	exit_price      REAL NOT NULL,
	size            REAL NOT NULL,
	fees            REAL DEFAULT 0,
	account         TEXT NOT NULL,
	stop_loss       REAL,
	take_profit     REAL,
	trade_type      TEXT,
	rationale       TEXT,
	tags            TEXT,
	pre_emotion     TEXT,
	post_reflection TEXT,
	timeframe       TEXT,
	risk_amount     REAL,
	strategy_tag    TEXT,
	rules_followed  TEXT
);

CREATE TABLE IF NOT EXISTS accounts (
	account_name         TEXT PRIMARY KEY,
	prop_firm            TEXT NOT NULL,
	capital_size         REAL DEFAULT 100000,
	max_daily_drawdown   REAL DEFAULT 5,
	max_overall_drawdown REAL DEFAULT 10
);

CREATE TABLE IF NOT EXISTS strategies (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	strategy_name TEXT NOT NULL UNIQUE,
	rules         TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS weekly_bias (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	week_start_date     TEXT NOT NULL,
	week_end_date       TEXT NOT NULL,
	pair                TEXT NOT NULL,
	expecting_notes     TEXT,
	not_expecting_notes TEXT
);

CREATE TABLE IF NOT EXISTS bias_points (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	bias_id   INTEGER NOT NULL REFERENCES weekly_bias(id),
	bias_type TEXT NOT NULL,
	point     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS bias_arguments (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	bias_id   INTEGER NOT NULL REFERENCES weekly_bias(id),
	direction TEXT NOT NULL,
	reason    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS screenshots (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	trade_id       INTEGER REFERENCES trades(id),
	bias_id        INTEGER REFERENCES weekly_bias(id),
	label          TEXT NOT NULL,
	screenshot_url TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS notes (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	date    TEXT NOT NULL,
	content TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS trade_chart_data (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	trade_id INTEGER NOT NULL REFERENCES trades(id),
	time     TEXT NOT NULL,
	open     REAL NOT NULL,
	high     REAL NOT NULL,
	low      REAL NOT NULL,
	close    REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS performance_cache (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	account        TEXT NOT NULL,
	date           TEXT NOT NULL,
	total_trades   INTEGER DEFAULT 0,
	winning_trades INTEGER DEFAULT 0,
	losing_trades  INTEGER DEFAULT 0,
	gross_pnl      REAL DEFAULT 0,
	net_pnl        REAL DEFAULT 0,
	largest_win    REAL DEFAULT 0,
	largest_loss   REAL DEFAULT 0,
	win_rate       REAL DEFAULT 0,
	profit_factor  REAL DEFAULT 0,
	updated_at     TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(account, date)
);

CREATE INDEX IF NOT EXISTS idx_trades_date ON trades(date);
CREATE INDEX IF NOT EXISTS idx_trades_account ON trades(account);
CREATE INDEX IF NOT EXISTS idx_trades_instrument ON trades(instrument);
CREATE INDEX IF NOT EXISTS idx_trades_strategy ON trades(strategy_tag);
CREATE INDEX IF NOT EXISTS idx_trades_date_account ON trades(date, account);
CREATE INDEX IF NOT EXISTS idx_screenshots_trade_id ON screenshots(trade_id);
CREATE INDEX IF NOT EXISTS idx_notes_date ON notes(date);
`

// isUnique reports whether err is a UNIQUE or PRIMARY KEY constraint violation.
func isUnique(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// withTx runs fn in a transaction, rolling back on error.
func (l *Ledger) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func affected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func strPtr(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	s := n.String
	return &s
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	f := n.Float64
	return &f
}
