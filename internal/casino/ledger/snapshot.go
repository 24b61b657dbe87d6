package ledger

import (
	"github.com/avvvet/casino-services/internal/casino/models"
)

// State is the serializable form of the ledger. Histories are most-recent-first.
type State struct {
	Players []models.Player     `json:"players"`
	History []models.GameRecord `json:"history"`
	Stats   models.CasinoStats  `json:"stats"`
}

func (l *Ledger) Snapshot() State {
	l.mu.RLock()
	accounts := make([]*account, 0, len(l.accounts))
	for _, a := range l.accounts {
		accounts = append(accounts, a)
	}
	l.mu.RUnlock()

	st := State{Players: make([]models.Player, 0, len(accounts))}
	for _, a := range accounts {
		a.mu.Lock()
		st.Players = append(st.Players, a.view())
		a.mu.Unlock()
	}

	l.statsMu.Lock()
	st.History = newestFirst(l.history, 0)
	st.Stats = l.stats
	l.statsMu.Unlock()

	return st
}

// Restore replaces every account, the casino history and the stats.
func (l *Ledger) Restore(st State) {
	accounts := make(map[string]*account, len(st.Players))
	for _, p := range st.Players {
		records := make([]models.GameRecord, len(p.History))
		for i, rec := range p.History {
			records[len(p.History)-1-i] = rec
		}
		p.History = nil
		accounts[p.Username] = &account{player: p, records: records}
	}

	history := make([]models.GameRecord, len(st.History))
	for i, rec := range st.History {
		history[len(st.History)-1-i] = rec
	}
	if len(history) > l.limit {
		history = history[len(history)-l.limit:]
	}

	l.mu.Lock()
	l.accounts = accounts
	l.mu.Unlock()

	l.statsMu.Lock()
	l.history = history
	l.stats = st.Stats
	l.statsMu.Unlock()
}
