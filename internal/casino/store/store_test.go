package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/avvvet/casino-services/internal/casino/ledger"
	"github.com/avvvet/casino-services/internal/casino/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestMemoryAccounts(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryAccounts()

	a, err := m.FindPlayer(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, a)

	a, err = m.CreatePlayer(ctx, "alice", "s3cret", decimal.NewFromInt(500))
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte("s3cret")))

	_, err = m.CreatePlayer(ctx, "alice", "other", decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ledger.ErrPlayerExists)

	found, err := m.FindPlayer(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, a.ID, found.ID)
	assert.True(t, found.InitialBalance.Equal(decimal.NewFromInt(500)))
}

func TestMemoryAccountsRestore(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryAccounts()
	_, err := m.CreatePlayer(ctx, "bob", "hunter22", decimal.NewFromInt(100))
	require.NoError(t, err)
	_, err = m.CreatePlayer(ctx, "alice", "s3cret", decimal.NewFromInt(500))
	require.NoError(t, err)

	saved := m.Accounts()
	require.Len(t, saved, 2)
	assert.Equal(t, "alice", saved[0].Username)

	restored := NewMemoryAccounts()
	restored.RestoreAccounts(saved)
	a, err := restored.FindPlayer(ctx, "bob")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte("hunter22")))

	_, err = restored.CreatePlayer(ctx, "alice", "again", decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ledger.ErrPlayerExists)
}

func TestFileSnapshots(t *testing.T) {
	ctx := context.Background()
	f, err := NewFileSnapshots(t.TempDir())
	require.NoError(t, err)

	data, err := f.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, data)

	require.NoError(t, f.Save(ctx, []byte(`{"version":1}`)))
	require.NoError(t, f.Save(ctx, []byte(`{"version":2}`)))

	data, err = f.Load(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":2}`, string(data))
}

type recordingWriter struct {
	mu      sync.Mutex
	entries []ledger.Entry
}

func (w *recordingWriter) WriteEntries(_ context.Context, entries []ledger.Entry) error {
	w.mu.Lock()
	w.entries = append(w.entries, entries...)
	w.mu.Unlock()
	return nil
}

func (w *recordingWriter) len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}

func TestJournalFlushesOnShutdown(t *testing.T) {
	w := &recordingWriter{}
	j := NewJournal(w, 16)

	for i := 0; i < 5; i++ {
		j.Append(ledger.Entry{Kind: ledger.EntryDebit, Player: "alice", Amount: decimal.NewFromInt(int64(i + 1))})
	}

	ctx, cancel := context.WithCancel(context.Background())
	go j.Run(ctx)
	cancel()
	j.Wait()

	assert.Equal(t, 5, w.len())
	assert.Zero(t, j.Dropped())
}

func TestJournalNeverBlocks(t *testing.T) {
	w := &recordingWriter{}
	j := NewJournal(w, 4)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			j.Append(ledger.Entry{Kind: ledger.EntryCredit, Player: "bob"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Append blocked on a full buffer")
	}
	assert.Equal(t, int64(6), j.Dropped())
}

func TestJournalAsLedgerSink(t *testing.T) {
	w := &recordingWriter{}
	j := NewJournal(w, 64)
	l := ledger.New(ledger.WithJournal(j))

	ctx, cancel := context.WithCancel(context.Background())
	go j.Run(ctx)

	_, err := l.Open(models.Player{Username: "carol", Balance: decimal.NewFromInt(100)})
	require.NoError(t, err)
	_, err = l.Debit("carol", decimal.NewFromInt(40))
	require.NoError(t, err)
	_, err = l.Deposit("carol", decimal.NewFromInt(10))
	require.NoError(t, err)

	cancel()
	j.Wait()

	require.Equal(t, 2, w.len())
	assert.Equal(t, ledger.EntryDebit, w.entries[0].Kind)
	assert.True(t, w.entries[0].Balance.Equal(decimal.NewFromInt(60)))
	assert.Equal(t, ledger.EntryDeposit, w.entries[1].Kind)
	require.NotNil(t, w.entries[1].Record)
}
