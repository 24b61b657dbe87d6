package engine_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/avvvet/casino-services/internal/casino/clock"
	"github.com/avvvet/casino-services/internal/casino/crash"
	"github.com/avvvet/casino-services/internal/casino/engine"
	"github.com/avvvet/casino-services/internal/casino/events"
	"github.com/avvvet/casino-services/internal/casino/keno"
	"github.com/avvvet/casino-services/internal/casino/ledger"
	"github.com/avvvet/casino-services/internal/casino/rng"
	"github.com/avvvet/casino-services/internal/casino/scheduler"
	"github.com/avvvet/casino-services/internal/casino/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	eng   *engine.Engine
	clock *clock.Fake
	rec   *events.Recorder
	snaps *store.FileSnapshots
}

func newFixture(t *testing.T, seed int64) *fixture {
	t.Helper()
	snaps, err := store.NewFileSnapshots(t.TempDir())
	require.NoError(t, err)

	f := &fixture{
		clock: clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		rec:   &events.Recorder{},
		snaps: snaps,
	}
	f.eng = engine.New(engine.DefaultConfig(), engine.Deps{
		Clock:       f.clock,
		Random:      rng.New(seed),
		Accounts:    store.NewMemoryAccounts(),
		Persistence: snaps,
		Sink:        f.rec,
		Notifier:    f.rec,
	})
	return f
}

func (f *fixture) register(t *testing.T, names ...string) {
	t.Helper()
	for _, name := range names {
		_, err := f.eng.Register(context.Background(), name, "pass1234", decimal.Zero)
		require.NoError(t, err)
	}
}

func tick(rounds []scheduler.Round, name string, n int) {
	for _, r := range rounds {
		if r.Name() != name {
			continue
		}
		for i := 0; i < n; i++ {
			r.Tick()
		}
	}
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	_, err := f.eng.Register(ctx, "ab", "pass1234", decimal.Zero)
	assert.ErrorIs(t, err, engine.ErrInvalidUsername)
	_, err = f.eng.Register(ctx, "alice", "abc", decimal.Zero)
	assert.ErrorIs(t, err, engine.ErrInvalidPassword)

	p, err := f.eng.Register(ctx, "alice", "pass1234", decimal.Zero)
	require.NoError(t, err)
	assert.True(t, p.Balance.Equal(d("1000")))
	assert.NotEmpty(t, p.ID)

	_, err = f.eng.Register(ctx, "alice", "pass1234", decimal.Zero)
	assert.ErrorIs(t, err, ledger.ErrPlayerExists)

	p, err = f.eng.Register(ctx, "bob", "pass1234", d("250"))
	require.NoError(t, err)
	assert.True(t, p.Balance.Equal(d("250")))
}

func TestLogin(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	f.register(t, "alice")

	_, err := f.eng.Login(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, engine.ErrBadCredentials)
	_, err = f.eng.Login(ctx, "nobody", "pass1234")
	assert.ErrorIs(t, err, engine.ErrBadCredentials)

	f.clock.Advance(time.Hour)
	p, err := f.eng.Login(ctx, "alice", "pass1234")
	require.NoError(t, err)
	assert.Equal(t, f.clock.Now(), p.LastLogin)
}

func TestDeposit(t *testing.T) {
	f := newFixture(t, 1)
	f.register(t, "alice")

	_, err := f.eng.Deposit("alice", d("0"))
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	p, err := f.eng.Deposit("alice", d("500"))
	require.NoError(t, err)
	assert.True(t, p.Balance.Equal(d("1500")))
	assert.Zero(t, p.GamesPlayed)
	require.Len(t, p.History, 1)
	assert.Zero(t, f.eng.Stats().TotalGames)
}

// Every unit of money is either in a balance, in an open stake, or was paid
// out by a game; nothing else may create or destroy it.
func TestConservationAcrossGames(t *testing.T) {
	f := newFixture(t, 99)
	players := []string{"alice", "bob", "carol", "dave"}
	f.register(t, players...)
	rounds := f.eng.Rounds()

	var wg sync.WaitGroup
	for _, player := range players {
		wg.Add(1)
		go func(player string) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				f.eng.PlaceBet(player, 1+i%2, d("10"))
				f.eng.QuickPick(player)
				f.eng.AddSlip(player, d("5"))
				f.eng.PlaceAllBets(player)
				f.eng.Spin(player, d("3"))
				f.eng.CashOut(player, 1)
			}
		}(player)
	}
	for i := 0; i < 200; i++ {
		tick(rounds, "crash", 1)
		tick(rounds, "keno", 1)
	}
	wg.Wait()

	// settle whatever round is in flight
	for f.eng.Snapshot().Crash.Phase != crash.Betting {
		tick(rounds, "crash", 1)
	}
	for f.eng.Snapshot().Keno.Phase != keno.Collecting {
		tick(rounds, "keno", 1)
	}
	st := f.eng.Snapshot()

	total := decimal.Zero
	for _, p := range st.Ledger.Players {
		total = total.Add(p.Balance)
	}
	open := decimal.Zero
	for _, panels := range st.Crash.PanelBets {
		for _, b := range panels {
			if b.Active && !b.CashedOut {
				open = open.Add(b.Amount)
			}
		}
	}
	for _, ticket := range st.Keno.Tickets {
		for _, s := range ticket.Slips {
			if s.Played && !s.Settled {
				open = open.Add(s.BetAmount)
			}
		}
	}
	stats := f.eng.Stats()
	want := d("4000").Sub(stats.TotalWagered).Add(stats.TotalPayouts).Sub(open)
	assert.True(t, total.Equal(want), "balances %s want %s", total, want)
}

func TestSnapshotRestoreRefundsOpenStakes(t *testing.T) {
	f := newFixture(t, 5)
	f.register(t, "alice", "bob")
	ctx := context.Background()

	_, err := f.eng.PlaceBet("alice", crash.Panel1, d("100"))
	require.NoError(t, err)
	_, err = f.eng.SelectNumber("bob", 42)
	require.NoError(t, err)
	_, err = f.eng.AddSlip("bob", d("50"))
	require.NoError(t, err)
	_, err = f.eng.PlaceAllBets("bob")
	require.NoError(t, err)

	require.NoError(t, f.eng.Save(ctx))

	restarted := engine.New(engine.DefaultConfig(), engine.Deps{
		Clock:       f.clock,
		Random:      rng.New(6),
		Accounts:    store.NewMemoryAccounts(),
		Persistence: f.snaps,
	})
	ok, err := restarted.Load(ctx, false)
	require.NoError(t, err)
	require.True(t, ok)

	alice, err := restarted.Player("alice")
	require.NoError(t, err)
	assert.True(t, alice.Balance.Equal(d("1000")))
	bob, err := restarted.Player("bob")
	require.NoError(t, err)
	assert.True(t, bob.Balance.Equal(d("1000")))

	st := restarted.Snapshot()
	assert.Equal(t, crash.Betting, st.Crash.Phase)
	assert.Empty(t, st.Crash.PanelBets)
	assert.Equal(t, int64(2), st.Crash.RoundNumber)
	assert.Equal(t, keno.Collecting, st.Keno.Phase)
}

func TestLoginAfterRestart(t *testing.T) {
	f := newFixture(t, 5)
	f.register(t, "alice")
	ctx := context.Background()

	_, err := f.eng.Deposit("alice", d("500"))
	require.NoError(t, err)
	require.NoError(t, f.eng.Save(ctx))

	restarted := engine.New(engine.DefaultConfig(), engine.Deps{
		Clock:       f.clock,
		Random:      rng.New(6),
		Accounts:    store.NewMemoryAccounts(),
		Persistence: f.snaps,
	})
	ok, err := restarted.Load(ctx, false)
	require.NoError(t, err)
	require.True(t, ok)

	p, err := restarted.Login(ctx, "alice", "pass1234")
	require.NoError(t, err)
	assert.True(t, p.Balance.Equal(d("1500")))

	_, err = restarted.Login(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, engine.ErrBadCredentials)
	_, err = restarted.Register(ctx, "alice", "pass1234", decimal.Zero)
	assert.ErrorIs(t, err, ledger.ErrPlayerExists)
}

func TestLoadResume(t *testing.T) {
	f := newFixture(t, 5)
	f.register(t, "alice")
	ctx := context.Background()

	ok, err := f.eng.Load(ctx, true)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.eng.PlaceBet("alice", crash.Panel2, d("40"))
	require.NoError(t, err)
	require.NoError(t, f.eng.Save(ctx))

	ok, err = f.eng.Load(ctx, true)
	require.NoError(t, err)
	require.True(t, ok)

	st := f.eng.Snapshot()
	require.Contains(t, st.Crash.PanelBets, "alice")
	assert.True(t, st.Crash.PanelBets["alice"][1].Active)
	p, _ := f.eng.Player("alice")
	assert.True(t, p.Balance.Equal(d("960")))
}

func TestViewHidesOtherPlayers(t *testing.T) {
	f := newFixture(t, 3)
	f.register(t, "alice", "bob")

	f.eng.PlaceBet("alice", crash.Panel1, d("10"))
	f.eng.PlaceBet("bob", crash.Panel1, d("10"))
	f.eng.SelectNumber("bob", 7)

	v, err := f.eng.View("alice")
	require.NoError(t, err)
	assert.Len(t, v.Crash.PanelBets, 1)
	assert.Contains(t, v.Crash.PanelBets, "alice")
	assert.Empty(t, v.Keno.Tickets)
	assert.Zero(t, v.Crash.CrashPoint)
	assert.True(t, v.Slots.CurrentBet.Equal(d("100")))

	_, err = f.eng.View("nobody")
	assert.ErrorIs(t, err, ledger.ErrUnknownPlayer)
}

func TestStatsResampling(t *testing.T) {
	f := newFixture(t, 8)
	tick(f.eng.Rounds(), "stats", 20)

	online := f.eng.Stats().OnlinePlayers
	assert.GreaterOrEqual(t, online, 1000)
	assert.Less(t, online, 1500)
	assert.Len(t, f.rec.Events(events.Stats), 20)
}

func TestRecentDefaultsToTen(t *testing.T) {
	f := newFixture(t, 2)
	f.register(t, "alice")
	for i := 0; i < 15; i++ {
		_, err := f.eng.Spin("alice", d("1"))
		require.NoError(t, err)
	}
	assert.Len(t, f.eng.Recent(0), engine.DefaultRecent)
	assert.Len(t, f.eng.Recent(12), 12)
}
