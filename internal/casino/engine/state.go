package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/avvvet/casino-services/internal/casino/crash"
	"github.com/avvvet/casino-services/internal/casino/keno"
	"github.com/avvvet/casino-services/internal/casino/ledger"
	"github.com/avvvet/casino-services/internal/casino/models"
	"github.com/avvvet/casino-services/internal/casino/slots"
	log "github.com/sirupsen/logrus"
)

const StateVersion = 1

// State is the complete serializable engine state.
type State struct {
	Version int                    `json:"version"`
	SavedAt time.Time              `json:"saved_at"`
	Ledger  ledger.State           `json:"ledger"`
	Crash   crash.RoundState       `json:"crash"`
	Keno    keno.RoundState        `json:"keno"`
	Slots   map[string]slots.State `json:"slots"`

	Accounts []SavedAccount `json:"accounts,omitempty"`
}

// SavedAccount carries the password hash that Account keeps out of JSON.
type SavedAccount struct {
	models.Account
	PasswordHash string `json:"password_hash"`
}

// View is what one player is shown: their account, the shared rounds with
// only their own bets, and the casino totals.
type View struct {
	Player models.Player       `json:"player"`
	Stats  models.CasinoStats  `json:"stats"`
	Crash  crash.RoundState    `json:"crash"`
	Keno   keno.RoundState     `json:"keno"`
	Slots  slots.State         `json:"slots"`
	Recent []models.GameRecord `json:"recent"`
}

func (e *Engine) Snapshot() State {
	e.gate.Lock()
	defer e.gate.Unlock()

	st := State{
		Version: StateVersion,
		SavedAt: e.clock.Now(),
		Ledger:  e.ledger.Snapshot(),
		Crash:   e.crash.State(),
		Keno:    e.keno.State(),
		Slots:   e.slots.Snapshot(),
	}
	if archive, ok := e.accounts.(AccountArchive); ok {
		for _, a := range archive.Accounts() {
			st.Accounts = append(st.Accounts, SavedAccount{Account: a, PasswordHash: a.PasswordHash})
		}
	}
	return st
}

// Restore replaces the whole engine state. With resume unset, live rounds
// restart from their opening phase and every stake still at risk goes back
// to its owner.
func (e *Engine) Restore(st State, resume bool) {
	e.gate.Lock()
	defer e.gate.Unlock()

	if archive, ok := e.accounts.(AccountArchive); ok && len(st.Accounts) > 0 {
		accounts := make([]models.Account, 0, len(st.Accounts))
		for _, saved := range st.Accounts {
			a := saved.Account
			a.PasswordHash = saved.PasswordHash
			accounts = append(accounts, a)
		}
		archive.RestoreAccounts(accounts)
	}
	e.ledger.Restore(st.Ledger)
	e.crash.Restore(st.Crash, resume)
	e.keno.Restore(st.Keno, resume)
	e.slots.Restore(st.Slots)

	log.WithFields(log.Fields{
		"players":  len(st.Ledger.Players),
		"accounts": len(st.Accounts),
		"round":    st.Crash.RoundNumber,
		"draw":     st.Keno.CurrentDraw,
		"resume":   resume,
	}).Info("engine state restored")
}

// Save serializes a snapshot through the persistence hook.
func (e *Engine) Save(ctx context.Context) error {
	if e.persist == nil {
		return nil
	}
	data, err := json.Marshal(e.Snapshot())
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := e.persist.Save(ctx, data); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// Load restores the last saved state. It reports false when there is none.
func (e *Engine) Load(ctx context.Context, resume bool) (bool, error) {
	if e.persist == nil {
		return false, nil
	}
	data, err := e.persist.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("load state: %w", err)
	}
	if len(data) == 0 {
		return false, nil
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return false, fmt.Errorf("unmarshal state: %w", err)
	}
	if st.Version != StateVersion {
		return false, fmt.Errorf("unsupported state version %d", st.Version)
	}
	e.Restore(st, resume)
	return true, nil
}

func (e *Engine) View(username string) (View, error) {
	p, err := e.ledger.Player(username)
	if err != nil {
		return View{}, err
	}

	cs := e.crash.View()
	for player := range cs.PanelBets {
		if player != username {
			delete(cs.PanelBets, player)
		}
	}
	ks := e.keno.State()
	for player := range ks.Tickets {
		if player != username {
			delete(ks.Tickets, player)
		}
	}

	return View{
		Player: p,
		Stats:  e.ledger.Stats(),
		Crash:  cs,
		Keno:   ks,
		Slots:  e.slots.State(username),
		Recent: e.Recent(DefaultRecent),
	}, nil
}
