package crash

import (
	"testing"

	"github.com/avvvet/casino-services/internal/casino/events"
	"github.com/avvvet/casino-services/internal/casino/ledger"
	"github.com/avvvet/casino-services/internal/casino/models"
	"github.com/avvvet/casino-services/internal/casino/rng"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func setup(t *testing.T, src rng.RandomSource) (*Engine, *ledger.Ledger, *events.Recorder) {
	t.Helper()
	l := ledger.New()
	for _, name := range []string{"alice", "bob"} {
		_, err := l.Open(models.Player{Username: name, Balance: d("1000")})
		require.NoError(t, err)
	}
	rec := &events.Recorder{}
	return NewEngine(DefaultConfig(), l, src, rec, rec), l, rec
}

func toActive(e *Engine) {
	for e.State().Phase == Betting {
		e.Tick()
	}
}

func TestPayoutFormula(t *testing.T) {
	tests := []struct {
		amount string
		mult   float64
		want   string
	}{
		{"100", 2.50, "247.50"},
		{"7", 1.37, "9.49"},
		{"15", 1.00, "14.85"},
		{"1", 1.01, "0.99"},
		{"250", 12.34, "3054.15"},
	}
	for _, tc := range tests {
		got := Payout(d(tc.amount), tc.mult, 0.01)
		assert.True(t, got.Equal(d(tc.want)), "%s x %.2f: got %s want %s", tc.amount, tc.mult, got, tc.want)
	}
}

func TestCrashPointDistribution(t *testing.T) {
	src := rng.New(2024)
	const n = 100000
	below := 0
	for i := 0; i < n; i++ {
		p := CrashPoint(src)
		require.GreaterOrEqual(t, p, 1.00)
		require.Less(t, p, 100.50)
		if p < 2.50 {
			below++
		}
	}
	assert.InDelta(t, 0.60, float64(below)/n, 0.01)
}

func TestCrashPointTiers(t *testing.T) {
	tests := []struct {
		tier, pos float64
		want      float64
	}{
		{0.10, 0, 1.00},
		{0.59, 0.999999, 2.49},
		{0.60, 0, 2.50},
		{0.90, 0.5, 10.50},
		{0.97, 0.999999, 100.49},
	}
	for _, tc := range tests {
		src := &rng.Scripted{Floats: []float64{tc.tier, tc.pos}}
		assert.Equal(t, tc.want, CrashPoint(src))
	}
}

func TestBettingLifecycle(t *testing.T) {
	e, l, rec := setup(t, &rng.Scripted{Floats: []float64{0.1, 0.0}, Fallback: rng.New(1)})

	_, err := e.PlaceBet("alice", Panel1, d("100"))
	require.NoError(t, err)
	_, err = e.PlaceBet("alice", Panel1, d("5"))
	assert.ErrorIs(t, err, ErrPanelBusy)
	_, err = e.PlaceBet("alice", 3, d("5"))
	assert.ErrorIs(t, err, ErrUnknownPanel)
	_, err = e.PlaceBet("alice", Panel2, d("0"))
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
	_, err = e.PlaceBet("bob", Panel2, d("5000"))
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	bal, _ := l.Balance("alice")
	assert.True(t, bal.Equal(d("900")))

	_, err = e.CashOut("alice", Panel1)
	assert.ErrorIs(t, err, ErrNoActiveGame)

	for i := 0; i < 9; i++ {
		e.Tick()
	}
	assert.Equal(t, Betting, e.State().Phase)
	assert.Equal(t, 1, e.State().Countdown)
	e.Tick()

	st := e.State()
	assert.Equal(t, Active, st.Phase)
	assert.Equal(t, 1.00, st.CrashPoint)
	assert.Equal(t, 1.0, st.CurrentMultiplier)
	assert.Zero(t, e.View().CrashPoint)
	assert.Len(t, rec.Events(events.CrashCountdown), 10)

	_, err = e.PlaceBet("bob", Panel1, d("5"))
	assert.ErrorIs(t, err, ErrNotBettingPeriod)

	// crash point 1.00: the first increment crashes the round
	e.Tick()
	st = e.State()
	assert.Equal(t, Settling, st.Phase)
	assert.Equal(t, st.CurrentMultiplier, st.HistoryMultipliers[0])
	assert.Len(t, st.HistoryMultipliers, HistorySize)
	assert.Equal(t, []float64{2.03, 1.31, 1.46, 1.87}, st.HistoryMultipliers[1:])

	_, err = e.PlaceBet("bob", Panel1, d("5"))
	assert.ErrorIs(t, err, ErrNotBettingPeriod)
	_, err = e.CashOut("alice", Panel1)
	assert.ErrorIs(t, err, ErrNoActiveGame)

	p, _ := l.Player("alice")
	require.Len(t, p.History, 1)
	assert.Equal(t, models.ResultLoss, p.History[0].Result)
	assert.True(t, p.History[0].Winnings.IsZero())
	assert.Equal(t, st.CurrentMultiplier, p.History[0].Multiplier)

	e.Tick()
	st = e.State()
	assert.Equal(t, Betting, st.Phase)
	assert.Equal(t, 10, st.Countdown)
	assert.Equal(t, int64(2), st.RoundNumber)
	assert.Empty(t, st.PanelBets)

	_, err = e.PlaceBet("alice", Panel1, d("10"))
	assert.NoError(t, err)
}

func TestCashOut(t *testing.T) {
	// tier 3, position 0.5 -> crash point 10.50
	e, l, rec := setup(t, &rng.Scripted{Floats: []float64{0.9, 0.5}, Fallback: rng.New(9)})

	_, err := e.PlaceBet("alice", Panel1, d("100"))
	require.NoError(t, err)
	_, err = e.PlaceBet("alice", Panel2, d("15"))
	require.NoError(t, err)
	toActive(e)

	for e.State().CurrentMultiplier < 1.5 {
		e.Tick()
	}
	mult := e.State().CurrentMultiplier

	b, err := e.CashOut("alice", Panel1)
	require.NoError(t, err)
	assert.True(t, b.CashedOut)
	assert.Equal(t, mult, b.CashoutMultiplier)
	want := Payout(d("100"), mult, 0.01)
	assert.True(t, b.Winnings.Equal(want))

	_, err = e.CashOut("alice", Panel1)
	assert.ErrorIs(t, err, ErrAlreadyCashedOut)
	_, err = e.CashOut("bob", Panel1)
	assert.ErrorIs(t, err, ErrNoActiveBet)

	bal, _ := l.Balance("alice")
	assert.True(t, bal.Equal(d("885").Add(want)), "balance %s", bal)
	require.Len(t, rec.Events(events.CrashCashout), 1)

	for e.State().Phase == Active {
		e.Tick()
	}
	p, _ := l.Player("alice")
	require.Len(t, p.History, 2)
	assert.Equal(t, models.ResultLoss, p.History[0].Result)
	assert.True(t, p.History[0].BetAmount.Equal(d("15")))
	assert.Equal(t, models.ResultWin, p.History[1].Result)
	assert.Equal(t, mult, p.History[1].Multiplier)

	crashed := rec.Events(events.CrashCrashed)
	require.Len(t, crashed, 1)
	ev := crashed[0].Data.(CrashedEvent)
	assert.Equal(t, 10.50, ev.CrashPoint)
	assert.GreaterOrEqual(t, ev.Multiplier, 10.50)
	assert.Equal(t, []string{"alice"}, ev.Losers)
}

func TestMultiplierIncrements(t *testing.T) {
	e, _, _ := setup(t, &rng.Scripted{Floats: []float64{0.99, 0.99}, Fallback: rng.New(5)})
	toActive(e)

	prev := e.State().CurrentMultiplier
	for i := 0; i < 200 && e.State().Phase == Active; i++ {
		e.Tick()
		cur := e.State().CurrentMultiplier
		step := cur - prev
		assert.GreaterOrEqual(t, step, 0.0099)
		assert.LessOrEqual(t, step, 0.0301)
		prev = cur
	}
}

func TestRestoreRefundsOpenBets(t *testing.T) {
	e, l, _ := setup(t, &rng.Scripted{Floats: []float64{0.9, 0.5}, Fallback: rng.New(3)})
	_, err := e.PlaceBet("alice", Panel1, d("40"))
	require.NoError(t, err)
	toActive(e)
	e.Tick()

	saved := e.State()

	resumed, _, _ := setup(t, rng.New(1))
	resumed.Restore(saved, true)
	assert.Equal(t, Active, resumed.State().Phase)
	assert.Equal(t, saved.CrashPoint, resumed.State().CrashPoint)

	e.Restore(saved, false)
	st := e.State()
	assert.Equal(t, Betting, st.Phase)
	assert.Equal(t, 10, st.Countdown)
	assert.Empty(t, st.PanelBets)
	assert.Equal(t, saved.RoundNumber+1, st.RoundNumber)
	bal, _ := l.Balance("alice")
	assert.True(t, bal.Equal(d("1000")))
}
