package store

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/avvvet/casino-services/internal/casino/ledger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

type EntryWriter interface {
	WriteEntries(ctx context.Context, entries []ledger.Entry) error
}

// Journal buffers ledger entries and writes them in batches from its own
// goroutine. Append never blocks: when the buffer is full the entry is
// dropped and counted.
type Journal struct {
	w         EntryWriter
	ch        chan ledger.Entry
	batchSize int
	interval  time.Duration
	dropped   atomic.Int64
	done      chan struct{}
}

func NewJournal(w EntryWriter, buffer int) *Journal {
	if buffer <= 0 {
		buffer = 4096
	}
	return &Journal{
		w:         w,
		ch:        make(chan ledger.Entry, buffer),
		batchSize: 256,
		interval:  time.Second,
		done:      make(chan struct{}),
	}
}

func (j *Journal) Append(e ledger.Entry) {
	select {
	case j.ch <- e:
	default:
		if n := j.dropped.Add(1); n%100 == 1 {
			log.Errorf("journal: buffer full, %d entries dropped", n)
		}
	}
}

func (j *Journal) Dropped() int64 { return j.dropped.Load() }

// Run drains the buffer until ctx is done, then flushes what is left.
func (j *Journal) Run(ctx context.Context) {
	defer close(j.done)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	batch := make([]ledger.Entry, 0, j.batchSize)
	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		if err := j.w.WriteEntries(ctx, batch); err != nil {
			log.Errorf("journal: write %d entries: %s", len(batch), err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case e := <-j.ch:
			batch = append(batch, e)
			if len(batch) >= j.batchSize {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			batch = j.drain(batch)
			flush(final)
			return
		}
	}
}

func (j *Journal) drain(batch []ledger.Entry) []ledger.Entry {
	for {
		select {
		case e := <-j.ch:
			batch = append(batch, e)
		default:
			return batch
		}
	}
}

// Wait blocks until Run has returned.
func (j *Journal) Wait() {
	<-j.done
}

// PGEntryWriter writes money movements to balances and settled games to
// game_records.
type PGEntryWriter struct {
	db *pgxpool.Pool
}

func NewPGEntryWriter(db *pgxpool.Pool) *PGEntryWriter {
	return &PGEntryWriter{db: db}
}

func (w *PGEntryWriter) WriteEntries(ctx context.Context, entries []ledger.Entry) error {
	batch := &pgx.Batch{}
	for _, e := range entries {
		switch e.Kind {
		case ledger.EntryDebit:
			batch.Queue(`INSERT INTO balances (username, kind, dr, cr, balance, created_at) VALUES ($1, $2, 0, $3, $4, $5)`,
				e.Player, string(e.Kind), e.Amount, e.Balance, e.At)
		case ledger.EntryCredit, ledger.EntryDeposit:
			batch.Queue(`INSERT INTO balances (username, kind, dr, cr, balance, created_at) VALUES ($1, $2, $3, 0, $4, $5)`,
				e.Player, string(e.Kind), e.Amount, e.Balance, e.At)
		}
		if r := e.Record; r != nil {
			batch.Queue(`
                INSERT INTO game_records (id, username, game, bet_amount, result, winnings, multiplier, profit, created_at)
                VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
                ON CONFLICT (id) DO NOTHING`,
				r.ID, r.Player, string(r.Game), r.BetAmount, string(r.Result), r.Winnings, r.Multiplier, r.Profit, r.Timestamp)
		}
	}
	if batch.Len() == 0 {
		return nil
	}

	tx, err := w.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return tx.Commit(ctx)
}
