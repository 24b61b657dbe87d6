package ledger

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/avvvet/casino-services/internal/casino/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newLedger(t *testing.T, players ...string) *Ledger {
	t.Helper()
	l := New(WithClock(func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }))
	for _, name := range players {
		_, err := l.Open(models.Player{Username: name, Balance: d("1000")})
		require.NoError(t, err)
	}
	return l
}

func TestDebitValidation(t *testing.T) {
	l := newLedger(t, "alice")

	tests := []struct {
		name   string
		amount string
		want   error
	}{
		{"zero", "0", ErrInvalidAmount},
		{"negative", "-5", ErrInvalidAmount},
		{"too much", "1000.01", ErrInsufficientFunds},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := l.Debit("alice", d(tc.amount))
			assert.ErrorIs(t, err, tc.want)
			bal, _ := l.Balance("alice")
			assert.True(t, bal.Equal(d("1000")), "balance changed to %s", bal)
		})
	}

	_, err := l.Debit("nobody", d("1"))
	assert.ErrorIs(t, err, ErrUnknownPlayer)

	bal, err := l.Debit("alice", d("1000"))
	require.NoError(t, err)
	assert.True(t, bal.IsZero())
}

func TestCreditAllowsZero(t *testing.T) {
	l := newLedger(t, "alice")

	bal, err := l.Credit("alice", decimal.Zero)
	require.NoError(t, err)
	assert.True(t, bal.Equal(d("1000")))

	_, err = l.Credit("alice", d("-1"))
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestOpenRejectsDuplicates(t *testing.T) {
	l := newLedger(t, "alice")
	_, err := l.Open(models.Player{Username: "alice"})
	assert.ErrorIs(t, err, ErrPlayerExists)
}

func TestBalanceConservation(t *testing.T) {
	l := newLedger(t, "alice")
	want := d("1000")

	ops := []struct {
		debit  bool
		amount string
	}{
		{true, "100"}, {false, "247.50"}, {true, "7"}, {false, "0"}, {true, "15"}, {false, "30"}, {true, "1"},
	}
	for _, op := range ops {
		if op.debit {
			_, err := l.Debit("alice", d(op.amount))
			require.NoError(t, err)
			want = want.Sub(d(op.amount))
		} else {
			_, err := l.Credit("alice", d(op.amount))
			require.NoError(t, err)
			want = want.Add(d(op.amount))
		}
	}

	bal, err := l.Balance("alice")
	require.NoError(t, err)
	assert.True(t, bal.Equal(want), "got %s want %s", bal, want)
}

func TestRecordGameCounters(t *testing.T) {
	l := newLedger(t, "alice")

	_, err := l.RecordGame("alice", models.GameCrash, d("100"), models.ResultWin, d("247.5"), 2.5)
	require.NoError(t, err)
	_, err = l.RecordGame("alice", models.GameKeno, d("10"), models.ResultLoss, decimal.Zero, 0)
	require.NoError(t, err)
	_, err = l.RecordGame("alice", models.GameSlots, d("50"), models.ResultLoss, decimal.Zero, 0)
	require.NoError(t, err)
	_, err = l.Deposit("alice", d("500"))
	require.NoError(t, err)
	_, err = l.RecordGame("alice", models.GameDeposit, decimal.Zero, models.ResultDeposit, d("500"), 0)
	assert.ErrorIs(t, err, ErrDepositRecord)

	p, err := l.Player("alice")
	require.NoError(t, err)

	assert.Equal(t, 3, p.GamesPlayed)
	assert.Equal(t, 1, p.TotalWins)
	assert.Equal(t, 33, p.WinRate)
	assert.True(t, p.TotalBets.Equal(d("160")))
	assert.True(t, p.TotalProfit.Equal(d("87.5")), "profit %s", p.TotalProfit)
	assert.True(t, p.Balance.Equal(d("1500")))
	require.Len(t, p.History, 4)
	assert.Equal(t, models.GameDeposit, p.History[0].Game)
	assert.True(t, p.History[0].Profit.Equal(d("500")))
	assert.Equal(t, models.GameCrash, p.History[3].Game)

	stats := l.Stats()
	assert.Equal(t, 3, stats.TotalGames)
	assert.True(t, stats.TotalWagered.Equal(d("160")))
	assert.True(t, stats.TotalPayouts.Equal(d("247.5")))
	assert.True(t, stats.BiggestWin.Equal(d("247.5")))
}

func TestCountersMatchHistory(t *testing.T) {
	l := newLedger(t, "alice")
	for i := 0; i < 40; i++ {
		win := decimal.Zero
		res := models.ResultLoss
		if i%3 == 0 {
			win = decimal.NewFromInt(int64(i * 2))
			res = models.ResultWin
		}
		_, err := l.RecordGame("alice", models.GameSlots, decimal.NewFromInt(int64(i+1)), res, win, 0)
		require.NoError(t, err)
		if i%7 == 0 {
			_, err = l.Deposit("alice", d("5"))
			require.NoError(t, err)
		}
	}

	p, err := l.Player("alice")
	require.NoError(t, err)

	var played, wins int
	bets, profit := decimal.Zero, decimal.Zero
	for _, rec := range p.History {
		if rec.Game == models.GameDeposit {
			continue
		}
		played++
		bets = bets.Add(rec.BetAmount)
		profit = profit.Add(rec.Profit)
		if rec.Winnings.IsPositive() {
			wins++
		}
	}
	assert.Equal(t, played, p.GamesPlayed)
	assert.Equal(t, wins, p.TotalWins)
	assert.True(t, bets.Equal(p.TotalBets))
	assert.True(t, profit.Equal(p.TotalProfit))
	assert.Equal(t, int(math.Round(float64(wins)/float64(played)*100)), p.WinRate)
}

func TestHistoryLimit(t *testing.T) {
	l := New(WithHistoryLimit(3))
	_, err := l.Open(models.Player{Username: "bob", Balance: d("10")})
	require.NoError(t, err)
	for i := 1; i <= 5; i++ {
		_, err := l.RecordGame("bob", models.GameSlots, decimal.NewFromInt(int64(i)), models.ResultLoss, decimal.Zero, 0)
		require.NoError(t, err)
	}

	h := l.History(0)
	require.Len(t, h, 3)
	assert.True(t, h[0].BetAmount.Equal(d("5")))
	assert.True(t, h[2].BetAmount.Equal(d("3")))
	assert.Len(t, l.History(2), 2)

	p, _ := l.Player("bob")
	assert.Len(t, p.History, 5)
}

func TestConcurrentMutations(t *testing.T) {
	l := newLedger(t, "alice", "bob")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := l.Debit("alice", d("10")); err == nil {
				l.Credit("alice", d("10"))
			}
		}()
		go func() {
			defer wg.Done()
			l.RecordGame("bob", models.GameKeno, d("1"), models.ResultLoss, decimal.Zero, 0)
		}()
	}
	wg.Wait()

	bal, _ := l.Balance("alice")
	assert.True(t, bal.Equal(d("1000")))
	p, _ := l.Player("bob")
	assert.Equal(t, 50, p.GamesPlayed)
	assert.Equal(t, 50, l.Stats().TotalGames)
}

type recordingJournal struct {
	mu      sync.Mutex
	entries []Entry
}

func (r *recordingJournal) Append(e Entry) {
	r.mu.Lock()
	r.entries = append(r.entries, e)
	r.mu.Unlock()
}

func TestJournalSeesCommittedMutations(t *testing.T) {
	j := &recordingJournal{}
	l := New(WithJournal(Journals(j, nil)))
	_, err := l.Open(models.Player{Username: "alice", Balance: d("20")})
	require.NoError(t, err)

	l.Debit("alice", d("5"))
	l.Debit("alice", d("500"))
	l.Credit("alice", d("2"))
	l.Deposit("alice", d("3"))

	require.Len(t, j.entries, 3)
	assert.Equal(t, EntryDebit, j.entries[0].Kind)
	assert.True(t, j.entries[0].Balance.Equal(d("15")))
	assert.Equal(t, EntryCredit, j.entries[1].Kind)
	assert.Equal(t, EntryDeposit, j.entries[2].Kind)
	assert.True(t, j.entries[2].Balance.Equal(d("20")))
}

func TestSnapshotRestore(t *testing.T) {
	l := newLedger(t, "alice", "bob")
	l.Debit("alice", d("100"))
	l.RecordGame("alice", models.GameCrash, d("100"), models.ResultLoss, decimal.Zero, 1.42)
	l.Deposit("bob", d("50"))
	l.SetOnlinePlayers(1200)

	st := l.Snapshot()

	restored := New()
	restored.Restore(st)

	a, err := restored.Player("alice")
	require.NoError(t, err)
	assert.True(t, a.Balance.Equal(d("900")))
	assert.Equal(t, 1, a.GamesPlayed)
	require.Len(t, a.History, 1)
	assert.Equal(t, 1.42, a.History[0].Multiplier)

	assert.Equal(t, []string{"alice", "bob"}, restored.Usernames())
	assert.Equal(t, 1200, restored.Stats().OnlinePlayers)
	h := restored.History(0)
	require.Len(t, h, 2)
	assert.Equal(t, models.GameDeposit, h[0].Game)
}
