package sqlite

import (
	"context"
	"fmt"

	"github.com/Rahwulkumar/trading-journal/internal/model"
)

// UpsertPerformance stores one (account, date) aggregate, replacing any previous row.
func (l *Ledger) UpsertPerformance(ctx context.Context, p model.PerformanceDay) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO performance_cache (
			account, date, total_trades, winning_trades, losing_trades, gross_pnl, net_pnl,
			largest_win, largest_loss, win_rate, profit_factor, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(account, date) DO UPDATE SET
			total_trades = excluded.total_trades,
			winning_trades = excluded.winning_trades,
			losing_trades = excluded.losing_trades,
			gross_pnl = excluded.gross_pnl,
			net_pnl = excluded.net_pnl,
			largest_win = excluded.largest_win,
			largest_loss = excluded.largest_loss,
			win_rate = excluded.win_rate,
			profit_factor = excluded.profit_factor,
			updated_at = CURRENT_TIMESTAMP
	`, p.Account, p.Date, p.TotalTrades, p.WinningTrades, p.LosingTrades, p.GrossPnL, p.NetPnL,
		p.LargestWin, p.LargestLoss, p.WinRate, p.ProfitFactor)
	if err != nil {
		return fmt.Errorf("ledger upsert performance %s/%s: %w", p.Account, p.Date, err)
	}
	return nil
}

// DeletePerformance drops the aggregate for (account, date).
func (l *Ledger) DeletePerformance(ctx context.Context, account, date string) error {
	if _, err := l.db.ExecContext(ctx, `DELETE FROM performance_cache WHERE account = ? AND date = ?`, account, date); err != nil {
		return fmt.Errorf("ledger delete performance %s/%s: %w", account, date, err)
	}
	return nil
}

// ListPerformance returns cached aggregates ordered by date. Empty bounds are open.
func (l *Ledger) ListPerformance(ctx context.Context, account, from, to string) ([]model.PerformanceDay, error) {
	query := `
		SELECT account, date, total_trades, winning_trades, losing_trades, gross_pnl, net_pnl,
			largest_win, largest_loss, win_rate, profit_factor, COALESCE(updated_at, '')
		FROM performance_cache WHERE 1 = 1`
	var args []any
	if account != "" {
		query += ` AND account = ?`
		args = append(args, account)
	}
	if from != "" {
		query += ` AND date >= ?`
		args = append(args, from)
	}
	if to != "" {
		query += ` AND date <= ?`
		args = append(args, to)
	}
	rows, err := l.db.QueryContext(ctx, query+` ORDER BY date ASC, account ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger list performance: %w", err)
	}
	defer rows.Close()

	out := []model.PerformanceDay{}
	for rows.Next() {
		var p model.PerformanceDay
		if err := rows.Scan(&p.Account, &p.Date, &p.TotalTrades, &p.WinningTrades, &p.LosingTrades, &p.GrossPnL,
			&p.NetPnL, &p.LargestWin, &p.LargestLoss, &p.WinRate, &p.ProfitFactor, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
