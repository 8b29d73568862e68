package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/Rahwulkumar/trading-journal/internal/model"
)

// TradeTypeClosedLive marks a trade closed through the live-close flow.
const TradeTypeClosedLive = "closed_live"

const tradeColumns = `id, date, entry_datetime, exit_datetime, instrument, direction, entry_price, exit_price,
	size, fees, account, stop_loss, take_profit, trade_type, rationale, tags, pre_emotion, post_reflection,
	timeframe, risk_amount, strategy_tag, rules_followed`

const openPositionWhere = `(trade_type = 'live' OR entry_datetime IS NOT NULL) AND exit_datetime IS NULL`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrade(r rowScanner) (model.Trade, error) {
	var t model.Trade
	var entryDT, exitDT, tradeType, rationale, tags, preEmo sql.NullString
	var postRef, timeframe, strategyTag, rulesFollowed sql.NullString
	var fees, stopLoss, takeProfit, riskAmount sql.NullFloat64
	err := r.Scan(&t.ID, &t.Date, &entryDT, &exitDT, &t.Instrument, &t.Direction, &t.EntryPrice, &t.ExitPrice,
		&t.Size, &fees, &t.Account, &stopLoss, &takeProfit, &tradeType, &rationale, &tags, &preEmo, &postRef,
		&timeframe, &riskAmount, &strategyTag, &rulesFollowed)
	if err != nil {
		return t, err
	}
	t.EntryDatetime = strPtr(entryDT)
	t.ExitDatetime = strPtr(exitDT)
	t.Fees = fees.Float64
	t.StopLoss = floatPtr(stopLoss)
	t.TakeProfit = floatPtr(takeProfit)
	t.TradeType = strPtr(tradeType)
	t.Rationale = strPtr(rationale)
	t.Tags = strPtr(tags)
	t.PreEmotion = strPtr(preEmo)
	t.PostReflection = strPtr(postRef)
	t.Timeframe = strPtr(timeframe)
	t.RiskAmount = floatPtr(riskAmount)
	t.StrategyTag = strPtr(strategyTag)
	t.RulesFollowed = splitList(rulesFollowed.String)
	return t, nil
}

func tradeArgs(t *model.Trade) []any {
	return []any{
		t.Date, nullString(t.EntryDatetime), nullString(t.ExitDatetime), t.Instrument, t.Direction,
		t.EntryPrice, t.ExitPrice, t.Size, t.Fees, t.Account,
		nullFloat(t.StopLoss), nullFloat(t.TakeProfit), nullString(t.TradeType), nullString(t.Rationale),
		nullString(t.Tags), nullString(t.PreEmotion), nullString(t.PostReflection), nullString(t.Timeframe),
		nullFloat(t.RiskAmount), nullString(t.StrategyTag), joinList(t.RulesFollowed),
	}
}

// CreateTrade inserts t with its screenshots and chart data and returns the new id.
func (l *Ledger) CreateTrade(ctx context.Context, t *model.Trade) (int64, error) {
	var id int64
	err := l.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO trades (
				date, entry_datetime, exit_datetime, instrument, direction, entry_price, exit_price, size, fees,
				account, stop_loss, take_profit, trade_type, rationale, tags, pre_emotion, post_reflection,
				timeframe, risk_amount, strategy_tag, rules_followed
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, tradeArgs(t)...)
		if err != nil {
			return err
		}
		if id, err = res.LastInsertId(); err != nil {
			return err
		}
		if err := insertScreenshots(ctx, tx, "trade_id", id, t.Screenshots); err != nil {
			return err
		}
		return insertChartData(ctx, tx, id, t.ChartData)
	})
	if err != nil {
		return 0, fmt.Errorf("ledger create trade: %w", err)
	}
	t.ID = id
	return id, nil
}

// UpdateTrade replaces every column of trade id and its screenshot list.
func (l *Ledger) UpdateTrade(ctx context.Context, id int64, t *model.Trade) error {
	err := l.withTx(ctx, func(tx *sql.Tx) error {
		args := append(tradeArgs(t), id)
		res, err := tx.ExecContext(ctx, `
			UPDATE trades SET
				date = ?, entry_datetime = ?, exit_datetime = ?, instrument = ?, direction = ?, entry_price = ?,
				exit_price = ?, size = ?, fees = ?, account = ?, stop_loss = ?, take_profit = ?, trade_type = ?,
				rationale = ?, tags = ?, pre_emotion = ?, post_reflection = ?, timeframe = ?, risk_amount = ?,
				strategy_tag = ?, rules_followed = ?
			WHERE id = ?
		`, args...)
		if err != nil {
			return err
		}
		if err := affected(res); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM screenshots WHERE trade_id = ?`, id); err != nil {
			return err
		}
		return insertScreenshots(ctx, tx, "trade_id", id, t.Screenshots)
	})
	if err != nil {
		return fmt.Errorf("ledger update trade %d: %w", id, err)
	}
	t.ID = id
	return nil
}

// DeleteTrade removes a trade together with its screenshots and chart data.
func (l *Ledger) DeleteTrade(ctx context.Context, id int64) error {
	err := l.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM screenshots WHERE trade_id = ?`, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM trade_chart_data WHERE trade_id = ?`, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM trades WHERE id = ?`, id)
		if err != nil {
			return err
		}
		return affected(res)
	})
	if err != nil {
		return fmt.Errorf("ledger delete trade %d: %w", id, err)
	}
	return nil
}

// GetTrade loads one trade with screenshots and chart data.
func (l *Ledger) GetTrade(ctx context.Context, id int64) (*model.Trade, error) {
	t, err := scanTrade(l.db.QueryRowContext(ctx, `SELECT `+tradeColumns+` FROM trades WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ledger trade %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("ledger get trade %d: %w", id, err)
	}
	if err := l.attach(ctx, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTrades returns trades matching f, oldest first.
func (l *Ledger) ListTrades(ctx context.Context, f model.TradeFilter) ([]model.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades`
	var (
		conds []string
		args  []any
	)
	if f.Account != "" {
		conds = append(conds, "account = ?")
		args = append(args, f.Account)
	}
	if f.Date != "" {
		conds = append(conds, "date = ?")
		args = append(args, f.Date)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY id ASC"

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger list trades: %w", err)
	}
	var trades []model.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("ledger scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range trades {
		if err := l.attach(ctx, &trades[i]); err != nil {
			return nil, err
		}
	}
	return trades, nil
}

// SaveChartData appends candles to a trade's chart.
func (l *Ledger) SaveChartData(ctx context.Context, tradeID int64, candles []model.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	err := l.withTx(ctx, func(tx *sql.Tx) error {
		return insertChartData(ctx, tx, tradeID, candles)
	})
	if err != nil {
		return fmt.Errorf("ledger chart data %d: %w", tradeID, err)
	}
	return nil
}

// ListOpenPositions returns every trade that is live or has an entry time, and no exit time.
func (l *Ledger) ListOpenPositions(ctx context.Context) ([]model.Position, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, account, instrument, direction, entry_price, size, fees, risk_amount, entry_datetime, exit_datetime
		FROM trades
		WHERE `+openPositionWhere+`
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("ledger open positions: %w", err)
	}
	defer rows.Close()

	positions := []model.Position{}
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("ledger scan position: %w", err)
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// GetPosition returns the position view of trade id, open or not.
func (l *Ledger) GetPosition(ctx context.Context, id int64) (model.Position, error) {
	p, err := scanPosition(l.db.QueryRowContext(ctx, `
		SELECT id, account, instrument, direction, entry_price, size, fees, risk_amount, entry_datetime, exit_datetime
		FROM trades WHERE id = ?
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return p, fmt.Errorf("ledger position %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return p, fmt.Errorf("ledger get position %d: %w", id, err)
	}
	return p, nil
}

// RecordClose stamps the exit of an open trade.
// Closing an already closed trade returns ErrConflict.
func (l *Ledger) RecordClose(ctx context.Context, id int64, exitPrice float64, exitTime time.Time) error {
	err := l.withTx(ctx, func(tx *sql.Tx) error {
		var exit sql.NullString
		err := tx.QueryRowContext(ctx, `SELECT exit_datetime FROM trades WHERE id = ?`, id).Scan(&exit)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if exit.Valid && exit.String != "" {
			return fmt.Errorf("trade already closed: %w", ErrConflict)
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE trades SET exit_price = ?, exit_datetime = ?, trade_type = ?
			WHERE id = ?
		`, exitPrice, exitTime.Format(time.RFC3339), TradeTypeClosedLive, id)
		return err
	})
	if err != nil {
		return fmt.Errorf("ledger close trade %d: %w", id, err)
	}
	return nil
}

func scanPosition(r rowScanner) (model.Position, error) {
	var (
		p               model.Position
		fees, risk      sql.NullFloat64
		entryDT, exitDT sql.NullString
	)
	if err := r.Scan(&p.ID, &p.Account, &p.Instrument, &p.Direction, &p.EntryPrice, &p.Size, &fees, &risk, &entryDT, &exitDT); err != nil {
		return p, err
	}
	p.Fees = fees.Float64
	p.RiskAmount = risk.Float64
	p.EntryTime = parseTime(entryDT)
	p.ExitTime = parseTime(exitDT)
	return p, nil
}

// zonelessLocation interprets timestamps stored without an offset.
var zonelessLocation = time.Local

// parseTime accepts the timestamp layouts clients send (RFC3339, ISO without zone, date only).
// Values without an offset are local time. Unparseable values are treated as absent.
func parseTime(n sql.NullString) *time.Time {
	if !n.Valid || strings.TrimSpace(n.String) == "" {
		return nil
	}
	t, err := cast.ToTimeInDefaultLocationE(strings.TrimSpace(n.String), zonelessLocation)
	if err != nil {
		return nil
	}
	return &t
}

func (l *Ledger) attach(ctx context.Context, t *model.Trade) error {
	shots, err := l.screenshots(ctx, "trade_id", t.ID)
	if err != nil {
		return err
	}
	t.Screenshots = shots

	rows, err := l.db.QueryContext(ctx, `
		SELECT time, open, high, low, close FROM trade_chart_data WHERE trade_id = ? ORDER BY time ASC
	`, t.ID)
	if err != nil {
		return fmt.Errorf("ledger chart data %d: %w", t.ID, err)
	}
	defer rows.Close()
	t.ChartData = nil
	for rows.Next() {
		var c model.Candle
		if err := rows.Scan(&c.Time, &c.Open, &c.High, &c.Low, &c.Close); err != nil {
			return err
		}
		t.ChartData = append(t.ChartData, c)
	}
	return rows.Err()
}

func (l *Ledger) screenshots(ctx context.Context, owner string, id int64) ([]model.Screenshot, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT label, screenshot_url FROM screenshots WHERE `+owner+` = ? ORDER BY id ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("ledger screenshots: %w", err)
	}
	defer rows.Close()
	shots := []model.Screenshot{}
	for rows.Next() {
		var s model.Screenshot
		if err := rows.Scan(&s.Label, &s.ScreenshotURL); err != nil {
			return nil, err
		}
		shots = append(shots, s)
	}
	return shots, rows.Err()
}

// insertScreenshots links shots to a trade or bias; owner is the column name.
func insertScreenshots(ctx context.Context, tx *sql.Tx, owner string, id int64, shots []model.Screenshot) error {
	for _, s := range shots {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO screenshots (`+owner+`, label, screenshot_url) VALUES (?, ?, ?)`,
			id, s.Label, s.ScreenshotURL); err != nil {
			return err
		}
	}
	return nil
}

func insertChartData(ctx context.Context, tx *sql.Tx, tradeID int64, candles []model.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trade_chart_data (trade_id, time, open, high, low, close) VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx, tradeID, c.Time, c.Open, c.High, c.Low, c.Close); err != nil {
			return err
		}
	}
	return nil
}

// joinList stores a string list comma-joined; an empty list is NULL.
func joinList(items []string) sql.NullString {
	trimmed := make([]string, 0, len(items))
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			trimmed = append(trimmed, s)
		}
	}
	if len(trimmed) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: strings.Join(trimmed, ","), Valid: true}
}

func splitList(s string) []string {
	if s == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// CountTrades returns the number of recorded trades.
func (l *Ledger) CountTrades(ctx context.Context) (int, error) {
	var n int
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trades`).Scan(&n); err != nil {
		return 0, fmt.Errorf("ledger count trades: %w", err)
	}
	return n, nil
}
