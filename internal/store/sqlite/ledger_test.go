package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rahwulkumar/trading-journal/internal/model"
)

func openTest(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "journal.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func ptr[T any](v T) *T { return &v }

func sampleTrade() *model.Trade {
	return &model.Trade{
		Date:          "2024-03-01",
		EntryDatetime: ptr("2024-03-01T09:30:00"),
		Instrument:    "EURUSD",
		Direction:     "long",
		EntryPrice:    1.0800,
		Size:          1000,
		Fees:          5,
		Account:       "FTMO-1",
		RiskAmount:    ptr(50.0),
		RulesFollowed: []string{"trend", " session "},
		Screenshots:   []model.Screenshot{{Label: "entry", ScreenshotURL: "/uploads/a.png"}},
		ChartData: []model.Candle{
			{Time: "2024-03-01T10:00:00Z", Open: 1.08, High: 1.09, Low: 1.07, Close: 1.085},
			{Time: "2024-03-01T09:00:00Z", Open: 1.07, High: 1.08, Low: 1.06, Close: 1.08},
		},
	}
}

func TestMigrateIdempotent(t *testing.T) {
	l := openTest(t)
	require.NoError(t, l.Migrate(context.Background()))
	require.NoError(t, l.Migrate(context.Background()))
}

func TestTradeCRUD(t *testing.T) {
	ctx := context.Background()
	l := openTest(t)

	tr := sampleTrade()
	id, err := l.CreateTrade(ctx, tr)
	require.NoError(t, err)
	assert.Equal(t, id, tr.ID)

	n, err := l.CountTrades(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := l.GetTrade(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "EURUSD", got.Instrument)
	assert.Equal(t, []string{"trend", "session"}, got.RulesFollowed)
	assert.Nil(t, got.ExitDatetime)
	assert.Nil(t, got.StopLoss)
	require.NotNil(t, got.RiskAmount)
	assert.Equal(t, 50.0, *got.RiskAmount)
	require.Len(t, got.Screenshots, 1)
	require.Len(t, got.ChartData, 2)
	assert.Equal(t, "2024-03-01T09:00:00Z", got.ChartData[0].Time)

	got.Screenshots = nil
	got.StopLoss = ptr(1.07)
	require.NoError(t, l.UpdateTrade(ctx, id, got))
	got, err = l.GetTrade(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, got.Screenshots)
	assert.Equal(t, 1.07, *got.StopLoss)

	list, err := l.ListTrades(ctx, model.TradeFilter{Account: "FTMO-1", Date: "2024-03-01"})
	require.NoError(t, err)
	assert.Len(t, list, 1)
	list, err = l.ListTrades(ctx, model.TradeFilter{Account: "other"})
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, l.DeleteTrade(ctx, id))
	_, err = l.GetTrade(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, l.DeleteTrade(ctx, id), ErrNotFound)
	assert.ErrorIs(t, l.UpdateTrade(ctx, id, sampleTrade()), ErrNotFound)
}

func TestOpenPositionsAndClose(t *testing.T) {
	ctx := context.Background()
	l := openTest(t)

	open := sampleTrade()
	_, err := l.CreateTrade(ctx, open)
	require.NoError(t, err)

	live := sampleTrade()
	live.EntryDatetime = nil
	live.TradeType = ptr("live")
	live.Direction = "short"
	_, err = l.CreateTrade(ctx, live)
	require.NoError(t, err)

	closed := sampleTrade()
	closed.ExitDatetime = ptr("2024-03-01T11:00:00")
	_, err = l.CreateTrade(ctx, closed)
	require.NoError(t, err)

	backfilled := sampleTrade()
	backfilled.EntryDatetime = nil
	_, err = l.CreateTrade(ctx, backfilled)
	require.NoError(t, err)

	positions, err := l.ListOpenPositions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 2)
	assert.Equal(t, open.ID, positions[0].ID)
	require.NotNil(t, positions[0].EntryTime)
	assert.Equal(t, 9, positions[0].EntryTime.Hour())
	assert.Equal(t, 50.0, positions[0].RiskAmount)
	assert.Equal(t, live.ID, positions[1].ID)
	assert.Nil(t, positions[1].EntryTime)

	exit := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, l.RecordClose(ctx, open.ID, 1.0850, exit))

	p, err := l.GetPosition(ctx, open.ID)
	require.NoError(t, err)
	require.NotNil(t, p.ExitTime)
	assert.False(t, p.Open())

	tr, err := l.GetTrade(ctx, open.ID)
	require.NoError(t, err)
	assert.Equal(t, 1.0850, tr.ExitPrice)
	assert.Equal(t, TradeTypeClosedLive, *tr.TradeType)
	assert.Equal(t, "2024-03-01T12:00:00Z", *tr.ExitDatetime)

	positions, err = l.ListOpenPositions(ctx)
	require.NoError(t, err)
	assert.Len(t, positions, 1)

	assert.ErrorIs(t, l.RecordClose(ctx, open.ID, 1.09, exit), ErrConflict)
	assert.ErrorIs(t, l.RecordClose(ctx, 9999, 1.09, exit), ErrNotFound)
	_, err = l.GetPosition(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListOpenPositionsEmpty(t *testing.T) {
	positions, err := openTest(t).ListOpenPositions(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, positions)
	assert.Empty(t, positions)
}

func TestAccounts(t *testing.T) {
	ctx := context.Background()
	l := openTest(t)

	a, err := l.CreateAccount(ctx, model.Account{AccountName: "FTMO-1", PropFirm: "FTMO"})
	require.NoError(t, err)
	assert.Equal(t, float64(model.DefaultCapitalSize), a.CapitalSize)

	_, err = l.CreateAccount(ctx, model.Account{AccountName: "FTMO-1", PropFirm: "FTMO"})
	assert.ErrorIs(t, err, ErrConflict)

	_, err = l.CreateTrade(ctx, sampleTrade())
	require.NoError(t, err)
	assert.ErrorIs(t, l.DeleteAccount(ctx, "FTMO-1"), ErrConflict)
	assert.ErrorIs(t, l.DeleteAccount(ctx, "missing"), ErrNotFound)

	_, err = l.CreateAccount(ctx, model.Account{AccountName: "Empty", PropFirm: "MFF", CapitalSize: 50000})
	require.NoError(t, err)
	require.NoError(t, l.DeleteAccount(ctx, "Empty"))

	accounts, err := l.ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, 5.0, accounts[0].MaxDailyDrawdown)
}

func TestStrategies(t *testing.T) {
	ctx := context.Background()
	l := openTest(t)

	s, err := l.CreateStrategy(ctx, model.Strategy{StrategyName: "  Breakout ", Rules: []string{"wait for close", " retest"}})
	require.NoError(t, err)
	assert.Equal(t, "Breakout", s.StrategyName)

	_, err = l.CreateStrategy(ctx, model.Strategy{StrategyName: "Breakout", Rules: []string{"x"}})
	assert.ErrorIs(t, err, ErrConflict)
	_, err = l.CreateStrategy(ctx, model.Strategy{StrategyName: "Empty", Rules: []string{"ok", " "}})
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = l.CreateStrategy(ctx, model.Strategy{StrategyName: " ", Rules: []string{"ok"}})
	assert.ErrorIs(t, err, ErrInvalid)

	list, err := l.ListStrategies(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, []string{"wait for close", "retest"}, list[0].Rules)

	_, err = l.UpdateStrategy(ctx, s.ID, model.Strategy{StrategyName: "Breakout v2", Rules: []string{"a"}})
	require.NoError(t, err)
	_, err = l.UpdateStrategy(ctx, 999, model.Strategy{StrategyName: "Ghost", Rules: []string{"a"}})
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, l.DeleteStrategy(ctx, s.ID))
	assert.ErrorIs(t, l.DeleteStrategy(ctx, s.ID), ErrNotFound)
}

func TestNotes(t *testing.T) {
	ctx := context.Background()
	l := openTest(t)

	n, err := l.CreateNote(ctx, model.Note{Date: "2024-03-01", Content: "patient day"})
	require.NoError(t, err)
	_, err = l.CreateNote(ctx, model.Note{Date: "2024-03-02", Content: "overtraded"})
	require.NoError(t, err)

	notes, err := l.ListNotes(ctx, "2024-03-01")
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, n.ID, notes[0].ID)

	all, err := l.ListNotes(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, l.DeleteNote(ctx, n.ID))
	assert.ErrorIs(t, l.DeleteNote(ctx, n.ID), ErrNotFound)
}

func TestWeeklyBias(t *testing.T) {
	ctx := context.Background()
	l := openTest(t)

	b, err := l.CreateWeeklyBias(ctx, model.WeeklyBias{
		WeekStartDate: "2024-03-04",
		WeekEndDate:   "2024-03-08",
		Pair:          "GBPUSD",
		BiasPoints:    []model.BiasPoint{{BiasType: "bullish", Point: "higher lows"}},
		Arguments:     []model.BiasArgument{{Direction: "long", Reason: "dxy weak"}},
		Screenshots:   []model.Screenshot{{Label: "htf", ScreenshotURL: "/uploads/b.png"}},
	})
	require.NoError(t, err)

	got, err := l.GetWeeklyBias(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "GBPUSD", got.Pair)
	assert.Len(t, got.BiasPoints, 1)
	assert.Len(t, got.Arguments, 1)
	assert.Len(t, got.Screenshots, 1)
	assert.Nil(t, got.ExpectingNotes)

	list, err := l.ListWeeklyBiases(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, l.DeleteWeeklyBias(ctx, b.ID))
	_, err = l.GetWeeklyBias(ctx, b.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPerformanceCache(t *testing.T) {
	ctx := context.Background()
	l := openTest(t)

	day := model.PerformanceDay{Account: "A", Date: "2024-03-01", TotalTrades: 2, WinningTrades: 1, LosingTrades: 1,
		NetPnL: 20, GrossPnL: 30, LargestWin: 50, LargestLoss: -30, WinRate: 50, ProfitFactor: 1.67}
	require.NoError(t, l.UpsertPerformance(ctx, day))
	day.TotalTrades = 3
	require.NoError(t, l.UpsertPerformance(ctx, day))
	require.NoError(t, l.UpsertPerformance(ctx, model.PerformanceDay{Account: "A", Date: "2024-03-05", ProfitFactor: 999.99}))

	rows, err := l.ListPerformance(ctx, "A", "2024-03-01", "2024-03-02")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 3, rows[0].TotalTrades)
	assert.NotEmpty(t, rows[0].UpdatedAt)

	require.NoError(t, l.DeletePerformance(ctx, "A", "2024-03-01"))
	rows, err = l.ListPerformance(ctx, "", "", "")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "2024-03-05", rows[0].Date)
}

func TestParseTime(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	prev := zonelessLocation
	zonelessLocation = ist
	t.Cleanup(func() { zonelessLocation = prev })

	tests := []struct {
		name string
		in   sql.NullString
		want *time.Time
	}{
		{"null", sql.NullString{}, nil},
		{"blank", sql.NullString{String: "  ", Valid: true}, nil},
		{"garbage", sql.NullString{String: "yesterday", Valid: true}, nil},
		{"rfc3339 keeps offset", sql.NullString{String: "2024-03-01T10:00:00Z", Valid: true},
			ptrTime(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))},
		{"iso without zone is local", sql.NullString{String: "2024-03-01T10:00:00", Valid: true},
			ptrTime(time.Date(2024, 3, 1, 10, 0, 0, 0, ist))},
		{"space separated is local", sql.NullString{String: "2024-03-01 10:00:00", Valid: true},
			ptrTime(time.Date(2024, 3, 1, 10, 0, 0, 0, ist))},
		{"date only is local midnight", sql.NullString{String: "2024-03-01", Valid: true},
			ptrTime(time.Date(2024, 3, 1, 0, 0, 0, 0, ist))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseTime(tt.in)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.True(t, tt.want.Equal(*got), "got %v want %v", got, tt.want)
		})
	}
}

func ptrTime(t time.Time) *time.Time { return &t }
