package crash

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/avvvet/casino-services/internal/casino/events"
	"github.com/avvvet/casino-services/internal/casino/models"
	"github.com/avvvet/casino-services/internal/casino/rng"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

type CountdownEvent struct {
	Round     int64 `json:"round"`
	Countdown int   `json:"countdown"`
}

type TickEvent struct {
	Round      int64   `json:"round"`
	Multiplier float64 `json:"multiplier"`
}

type CrashedEvent struct {
	Round      int64     `json:"round"`
	CrashPoint float64   `json:"crash_point"`
	Multiplier float64   `json:"multiplier"`
	History    []float64 `json:"history"`
	Losers     []string  `json:"losers"`
}

type BetEvent struct {
	Round int64 `json:"round"`
	Bet   Bet   `json:"bet"`
}

// Engine runs the crash round state machine. All state is guarded by mu, so
// ticks and player operations never interleave.
type Engine struct {
	mu     sync.Mutex
	cfg    Config
	state  RoundState
	ledger Ledger
	rnd    rng.RandomSource
	sink   events.Sink
	notify events.Notifier
}

func NewEngine(cfg Config, l Ledger, src rng.RandomSource, sink events.Sink, notify events.Notifier) *Engine {
	if sink == nil {
		sink = events.Discard{}
	}
	if notify == nil {
		notify = events.Discard{}
	}
	history := append([]float64(nil), cfg.SeedHistory...)
	if len(history) > HistorySize {
		history = history[:HistorySize]
	}
	return &Engine{
		cfg:    cfg,
		ledger: l,
		rnd:    src,
		sink:   sink,
		notify: notify,
		state: RoundState{
			RoundNumber:        1,
			Phase:              Betting,
			Countdown:          cfg.Countdown,
			CurrentMultiplier:  1,
			PanelBets:          make(map[string]*Panels),
			HistoryMultipliers: history,
		},
	}
}

func (e *Engine) Name() string { return "crash" }

// Interval is the delay before the next tick for the current phase.
func (e *Engine) Interval() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.state.Phase {
	case Active:
		return e.cfg.ActiveTick
	case Settling:
		return e.cfg.SettleDelay
	default:
		return e.cfg.BettingTick
	}
}

// PlaceBet debits amount and opens a bet on one of the player's panels.
func (e *Engine) PlaceBet(player string, panel int, amount decimal.Decimal) (Bet, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Phase != Betting {
		return Bet{}, ErrNotBettingPeriod
	}
	panels := e.state.PanelBets[player]
	if panels == nil {
		panels = &Panels{}
	}
	b, err := panels.bet(panel)
	if err != nil {
		return Bet{}, err
	}
	if b.Active {
		return Bet{}, ErrPanelBusy
	}
	if _, err := e.ledger.Debit(player, amount); err != nil {
		return Bet{}, err
	}

	*b = Bet{Player: player, PanelID: panel, Amount: amount, Active: true}
	e.state.PanelBets[player] = panels

	e.sink.Emit(events.CrashBet, BetEvent{Round: e.state.RoundNumber, Bet: *b})
	e.notify.Notify(player, fmt.Sprintf("Bet placed: %s (Panel %d)", amount.StringFixed(2), panel), events.Success)

	return *b, nil
}

// CashOut settles an open bet at the current multiplier.
func (e *Engine) CashOut(player string, panel int) (Bet, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Phase != Active {
		return Bet{}, ErrNoActiveGame
	}
	panels := e.state.PanelBets[player]
	if panels == nil {
		if panel != Panel1 && panel != Panel2 {
			return Bet{}, ErrUnknownPanel
		}
		return Bet{}, ErrNoActiveBet
	}
	b, err := panels.bet(panel)
	if err != nil {
		return Bet{}, err
	}
	if !b.Active {
		return Bet{}, ErrNoActiveBet
	}
	if b.CashedOut {
		return Bet{}, ErrAlreadyCashedOut
	}

	mult := e.state.CurrentMultiplier
	winnings := Payout(b.Amount, mult, e.cfg.HouseEdge)
	if _, err := e.ledger.Credit(player, winnings); err != nil {
		return Bet{}, err
	}
	b.CashedOut = true
	b.CashoutMultiplier = mult
	b.Winnings = winnings

	if _, err := e.ledger.RecordGame(player, models.GameCrash, b.Amount, models.ResultWin, winnings, mult); err != nil {
		log.Errorf("crash: record cashout for %s: %s", player, err)
	}

	e.sink.Emit(events.CrashCashout, BetEvent{Round: e.state.RoundNumber, Bet: *b})
	e.notify.Notify(player, fmt.Sprintf("Cashed out at %.2fx! Won %s", mult, winnings.StringFixed(2)), events.Success)

	return *b, nil
}

// Tick advances the round by one step of the current phase.
func (e *Engine) Tick() {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state.Phase {
	case Betting:
		if e.state.Countdown > 0 {
			e.state.Countdown--
		}
		e.sink.Emit(events.CrashCountdown, CountdownEvent{Round: e.state.RoundNumber, Countdown: e.state.Countdown})
		if e.state.Countdown == 0 {
			e.start()
		}
	case Active:
		e.state.CurrentMultiplier = Step(e.rnd, e.state.CurrentMultiplier)
		e.sink.Emit(events.CrashTick, TickEvent{Round: e.state.RoundNumber, Multiplier: e.state.CurrentMultiplier})
		if e.state.CurrentMultiplier >= e.state.CrashPoint {
			e.crash()
		}
	case Settling:
		e.reset()
	}
}

func (e *Engine) start() {
	e.state.Phase = Active
	e.state.CurrentMultiplier = 1
	e.state.CrashPoint = CrashPoint(e.rnd)

	log.WithFields(log.Fields{
		"round":   e.state.RoundNumber,
		"players": len(e.state.PanelBets),
	}).Info("crash round started")

	e.sink.Emit(events.CrashStarted, TickEvent{Round: e.state.RoundNumber, Multiplier: 1})
	e.notify.Notify("", "NEO CRASH round started! Multiplier increasing...", events.Info)
}

func (e *Engine) crash() {
	e.state.Phase = Settling
	final := e.state.CurrentMultiplier

	var losers []string
	for _, player := range e.players() {
		panels := e.state.PanelBets[player]
		for i := range panels {
			b := &panels[i]
			if !b.Active || b.CashedOut {
				continue
			}
			if _, err := e.ledger.RecordGame(player, models.GameCrash, b.Amount, models.ResultLoss, decimal.Zero, final); err != nil {
				log.Errorf("crash: record loss for %s: %s", player, err)
			}
			b.Active = false
			losers = append(losers, player)
		}
	}

	e.state.HistoryMultipliers = append([]float64{final}, e.state.HistoryMultipliers...)
	if len(e.state.HistoryMultipliers) > HistorySize {
		e.state.HistoryMultipliers = e.state.HistoryMultipliers[:HistorySize]
	}

	log.WithFields(log.Fields{
		"round":       e.state.RoundNumber,
		"crash_point": e.state.CrashPoint,
		"multiplier":  final,
		"losers":      len(losers),
	}).Info("crash round ended")

	e.sink.Emit(events.CrashCrashed, CrashedEvent{
		Round:      e.state.RoundNumber,
		CrashPoint: e.state.CrashPoint,
		Multiplier: final,
		History:    append([]float64(nil), e.state.HistoryMultipliers...),
		Losers:     losers,
	})
	e.notify.Notify("", fmt.Sprintf("CRASH at %.2fx!", final), events.Info)
}

func (e *Engine) reset() {
	e.state.RoundNumber++
	e.state.Phase = Betting
	e.state.Countdown = e.cfg.Countdown
	e.state.CurrentMultiplier = 1
	e.state.CrashPoint = 0
	e.state.PanelBets = make(map[string]*Panels)

	e.sink.Emit(events.CrashBetting, CountdownEvent{Round: e.state.RoundNumber, Countdown: e.state.Countdown})
	e.notify.Notify("", "New NEO CRASH round starting!", events.Info)
}

func (e *Engine) players() []string {
	out := make([]string, 0, len(e.state.PanelBets))
	for player := range e.state.PanelBets {
		out = append(out, player)
	}
	sort.Strings(out)
	return out
}

// RoundPlayers lists players holding a bet in the live round.
func (e *Engine) RoundPlayers() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.players()
}

// State returns a copy of the full round state, crash point included.
func (e *Engine) State() RoundState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.clone()
}

// View is the state safe to show players: the crash point stays hidden
// until the round has crashed.
func (e *Engine) View() RoundState {
	st := e.State()
	if st.Phase != Settling {
		st.CrashPoint = 0
	}
	return st
}

// Restore installs a saved round. Unless resume is set, a live round is
// abandoned: open stakes are refunded and a fresh betting phase begins.
func (e *Engine) Restore(st RoundState, resume bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st = st.clone()
	if st.PanelBets == nil {
		st.PanelBets = make(map[string]*Panels)
	}
	if len(st.HistoryMultipliers) > HistorySize {
		st.HistoryMultipliers = st.HistoryMultipliers[:HistorySize]
	}
	e.state = st
	if resume {
		return
	}

	if st.Phase != Settling {
		for _, player := range e.players() {
			for _, b := range e.state.PanelBets[player] {
				if !b.Active || b.CashedOut {
					continue
				}
				if _, err := e.ledger.Credit(player, b.Amount); err != nil {
					log.Errorf("crash: refund %s to %s: %s", b.Amount, player, err)
				}
			}
		}
	}
	if e.state.Phase != Betting || len(e.state.PanelBets) > 0 {
		e.state.RoundNumber++
	}
	e.state.Phase = Betting
	e.state.Countdown = e.cfg.Countdown
	e.state.CurrentMultiplier = 1
	e.state.CrashPoint = 0
	e.state.PanelBets = make(map[string]*Panels)
}
