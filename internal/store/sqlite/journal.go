package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Rahwulkumar/trading-journal/internal/model"
)

// ListAccounts returns all accounts ordered by name.
func (l *Ledger) ListAccounts(ctx context.Context) ([]model.Account, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT account_name, prop_firm, capital_size, max_daily_drawdown, max_overall_drawdown
		FROM accounts ORDER BY account_name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("ledger list accounts: %w", err)
	}
	defer rows.Close()

	accounts := []model.Account{}
	for rows.Next() {
		var a model.Account
		var capital, daily, overall sql.NullFloat64
		if err := rows.Scan(&a.AccountName, &a.PropFirm, &capital, &daily, &overall); err != nil {
			return nil, err
		}
		a.CapitalSize, a.MaxDailyDrawdown, a.MaxOverallDrawdown = capital.Float64, daily.Float64, overall.Float64
		accounts = append(accounts, a.WithDefaults())
	}
	return accounts, rows.Err()
}

// CreateAccount inserts a; a duplicate name returns ErrConflict.
func (l *Ledger) CreateAccount(ctx context.Context, a model.Account) (model.Account, error) {
	a = a.WithDefaults()
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO accounts (account_name, prop_firm, capital_size, max_daily_drawdown, max_overall_drawdown)
		VALUES (?, ?, ?, ?, ?)
	`, a.AccountName, a.PropFirm, a.CapitalSize, a.MaxDailyDrawdown, a.MaxOverallDrawdown)
	if isUnique(err) {
		return a, fmt.Errorf("account %q already exists: %w", a.AccountName, ErrConflict)
	}
	if err != nil {
		return a, fmt.Errorf("ledger create account: %w", err)
	}
	return a, nil
}

// DeleteAccount removes an account that has no trades.
func (l *Ledger) DeleteAccount(ctx context.Context, name string) error {
	err := l.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts WHERE account_name = ?`, name).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return ErrNotFound
		}
		var trades int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM trades WHERE account = ?`, name).Scan(&trades); err != nil {
			return err
		}
		if trades > 0 {
			return fmt.Errorf("account has %d trades: %w", trades, ErrConflict)
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM accounts WHERE account_name = ?`, name)
		return err
	})
	if err != nil {
		return fmt.Errorf("ledger delete account %q: %w", name, err)
	}
	return nil
}

// CreateStrategy inserts s with trimmed name and rules.
func (l *Ledger) CreateStrategy(ctx context.Context, s model.Strategy) (model.Strategy, error) {
	s, err := cleanStrategy(s)
	if err != nil {
		return s, err
	}
	res, err := l.db.ExecContext(ctx, `INSERT INTO strategies (strategy_name, rules) VALUES (?, ?)`,
		s.StrategyName, joinList(s.Rules))
	if isUnique(err) {
		return s, fmt.Errorf("strategy name %q already exists: %w", s.StrategyName, ErrConflict)
	}
	if err != nil {
		return s, fmt.Errorf("ledger create strategy: %w", err)
	}
	s.ID, err = res.LastInsertId()
	return s, err
}

// ListStrategies returns all strategies.
func (l *Ledger) ListStrategies(ctx context.Context) ([]model.Strategy, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT id, strategy_name, rules FROM strategies ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("ledger list strategies: %w", err)
	}
	defer rows.Close()

	out := []model.Strategy{}
	for rows.Next() {
		var s model.Strategy
		var rules sql.NullString
		if err := rows.Scan(&s.ID, &s.StrategyName, &rules); err != nil {
			return nil, err
		}
		s.Rules = splitList(rules.String)
		out = append(out, s)
	}
	return out, rows.Err()
}

// UpdateStrategy replaces the name and rules of strategy id.
func (l *Ledger) UpdateStrategy(ctx context.Context, id int64, s model.Strategy) (model.Strategy, error) {
	s, err := cleanStrategy(s)
	if err != nil {
		return s, err
	}
	res, err := l.db.ExecContext(ctx, `UPDATE strategies SET strategy_name = ?, rules = ? WHERE id = ?`,
		s.StrategyName, joinList(s.Rules), id)
	if isUnique(err) {
		return s, fmt.Errorf("strategy name %q already exists: %w", s.StrategyName, ErrConflict)
	}
	if err == nil {
		err = affected(res)
	}
	if err != nil {
		return s, fmt.Errorf("ledger update strategy %d: %w", id, err)
	}
	s.ID = id
	return s, nil
}

// DeleteStrategy removes strategy id.
func (l *Ledger) DeleteStrategy(ctx context.Context, id int64) error {
	res, err := l.db.ExecContext(ctx, `DELETE FROM strategies WHERE id = ?`, id)
	if err == nil {
		err = affected(res)
	}
	if err != nil {
		return fmt.Errorf("ledger delete strategy %d: %w", id, err)
	}
	return nil
}

// ErrInvalid is returned for entities that fail ledger-level validation.
var ErrInvalid = errors.New("invalid")

func cleanStrategy(s model.Strategy) (model.Strategy, error) {
	s.StrategyName = strings.TrimSpace(s.StrategyName)
	if s.StrategyName == "" {
		return s, fmt.Errorf("strategy name cannot be empty: %w", ErrInvalid)
	}
	if len(s.Rules) == 0 {
		return s, fmt.Errorf("strategy needs at least one rule: %w", ErrInvalid)
	}
	rules := make([]string, len(s.Rules))
	for i, r := range s.Rules {
		r = strings.TrimSpace(r)
		if r == "" {
			return s, fmt.Errorf("all rules must be non-empty: %w", ErrInvalid)
		}
		rules[i] = r
	}
	s.Rules = rules
	return s, nil
}

// CreateNote inserts n and returns it with its id.
func (l *Ledger) CreateNote(ctx context.Context, n model.Note) (model.Note, error) {
	res, err := l.db.ExecContext(ctx, `INSERT INTO notes (date, content) VALUES (?, ?)`, n.Date, n.Content)
	if err != nil {
		return n, fmt.Errorf("ledger create note: %w", err)
	}
	n.ID, err = res.LastInsertId()
	return n, err
}

// ListNotes returns notes, optionally for one date.
func (l *Ledger) ListNotes(ctx context.Context, date string) ([]model.Note, error) {
	query, args := `SELECT id, date, content FROM notes`, []any{}
	if date != "" {
		query += ` WHERE date = ?`
		args = append(args, date)
	}
	rows, err := l.db.QueryContext(ctx, query+` ORDER BY id ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger list notes: %w", err)
	}
	defer rows.Close()

	notes := []model.Note{}
	for rows.Next() {
		var n model.Note
		if err := rows.Scan(&n.ID, &n.Date, &n.Content); err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// DeleteNote removes note id.
func (l *Ledger) DeleteNote(ctx context.Context, id int64) error {
	res, err := l.db.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id)
	if err == nil {
		err = affected(res)
	}
	if err != nil {
		return fmt.Errorf("ledger delete note %d: %w", id, err)
	}
	return nil
}

// CreateWeeklyBias inserts b with its points, arguments and screenshots.
func (l *Ledger) CreateWeeklyBias(ctx context.Context, b model.WeeklyBias) (model.WeeklyBias, error) {
	err := l.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO weekly_bias (week_start_date, week_end_date, pair, expecting_notes, not_expecting_notes)
			VALUES (?, ?, ?, ?, ?)
		`, b.WeekStartDate, b.WeekEndDate, b.Pair, nullString(b.ExpectingNotes), nullString(b.NotExpectingNotes))
		if err != nil {
			return err
		}
		if b.ID, err = res.LastInsertId(); err != nil {
			return err
		}
		for _, p := range b.BiasPoints {
			if _, err := tx.ExecContext(ctx, `INSERT INTO bias_points (bias_id, bias_type, point) VALUES (?, ?, ?)`,
				b.ID, p.BiasType, p.Point); err != nil {
				return err
			}
		}
		for _, a := range b.Arguments {
			if _, err := tx.ExecContext(ctx, `INSERT INTO bias_arguments (bias_id, direction, reason) VALUES (?, ?, ?)`,
				b.ID, a.Direction, a.Reason); err != nil {
				return err
			}
		}
		return insertScreenshots(ctx, tx, "bias_id", b.ID, b.Screenshots)
	})
	if err != nil {
		return b, fmt.Errorf("ledger create weekly bias: %w", err)
	}
	return b, nil
}

// ListWeeklyBiases returns all biases, newest week first.
func (l *Ledger) ListWeeklyBiases(ctx context.Context) ([]model.WeeklyBias, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, week_start_date, week_end_date, pair, expecting_notes, not_expecting_notes
		FROM weekly_bias ORDER BY week_start_date DESC, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("ledger list weekly bias: %w", err)
	}
	biases := []model.WeeklyBias{}
	for rows.Next() {
		b, err := scanBias(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		biases = append(biases, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range biases {
		if err := l.attachBias(ctx, &biases[i]); err != nil {
			return nil, err
		}
	}
	return biases, nil
}

// GetWeeklyBias loads bias id with its children.
func (l *Ledger) GetWeeklyBias(ctx context.Context, id int64) (model.WeeklyBias, error) {
	b, err := scanBias(l.db.QueryRowContext(ctx, `
		SELECT id, week_start_date, week_end_date, pair, expecting_notes, not_expecting_notes
		FROM weekly_bias WHERE id = ?
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return b, fmt.Errorf("ledger weekly bias %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return b, fmt.Errorf("ledger get weekly bias %d: %w", id, err)
	}
	if err := l.attachBias(ctx, &b); err != nil {
		return b, err
	}
	return b, nil
}

// DeleteWeeklyBias removes bias id and everything attached to it.
func (l *Ledger) DeleteWeeklyBias(ctx context.Context, id int64) error {
	err := l.withTx(ctx, func(tx *sql.Tx) error {
		for _, q := range []string{
			`DELETE FROM bias_points WHERE bias_id = ?`,
			`DELETE FROM bias_arguments WHERE bias_id = ?`,
			`DELETE FROM screenshots WHERE bias_id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, q, id); err != nil {
				return err
			}
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM weekly_bias WHERE id = ?`, id)
		if err != nil {
			return err
		}
		return affected(res)
	})
	if err != nil {
		return fmt.Errorf("ledger delete weekly bias %d: %w", id, err)
	}
	return nil
}

func scanBias(r rowScanner) (model.WeeklyBias, error) {
	var b model.WeeklyBias
	var expecting, notExpecting sql.NullString
	if err := r.Scan(&b.ID, &b.WeekStartDate, &b.WeekEndDate, &b.Pair, &expecting, &notExpecting); err != nil {
		return b, err
	}
	b.ExpectingNotes = strPtr(expecting)
	b.NotExpectingNotes = strPtr(notExpecting)
	return b, nil
}

func (l *Ledger) attachBias(ctx context.Context, b *model.WeeklyBias) error {
	rows, err := l.db.QueryContext(ctx, `SELECT bias_type, point FROM bias_points WHERE bias_id = ? ORDER BY id ASC`, b.ID)
	if err != nil {
		return fmt.Errorf("ledger bias points: %w", err)
	}
	b.BiasPoints = []model.BiasPoint{}
	for rows.Next() {
		var p model.BiasPoint
		if err := rows.Scan(&p.BiasType, &p.Point); err != nil {
			rows.Close()
			return err
		}
		b.BiasPoints = append(b.BiasPoints, p)
	}
	rows.Close()

	rows, err = l.db.QueryContext(ctx, `SELECT direction, reason FROM bias_arguments WHERE bias_id = ? ORDER BY id ASC`, b.ID)
	if err != nil {
		return fmt.Errorf("ledger bias arguments: %w", err)
	}
	b.Arguments = []model.BiasArgument{}
	for rows.Next() {
		var a model.BiasArgument
		if err := rows.Scan(&a.Direction, &a.Reason); err != nil {
			rows.Close()
			return err
		}
		b.Arguments = append(b.Arguments, a)
	}
	rows.Close()

	b.Screenshots, err = l.screenshots(ctx, "bias_id", b.ID)
	return err
}
