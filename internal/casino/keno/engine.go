package keno

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/avvvet/casino-services/internal/casino/events"
	"github.com/avvvet/casino-services/internal/casino/ledger"
	"github.com/avvvet/casino-services/internal/casino/models"
	"github.com/avvvet/casino-services/internal/casino/rng"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

type CountdownEvent struct {
	Draw      int64 `json:"draw"`
	Countdown int   `json:"countdown"`
}

type DrawEvent struct {
	Draw           int64         `json:"draw"`
	Numbers        []int         `json:"numbers"`
	RevealInterval time.Duration `json:"reveal_interval"`
}

type PlayerResult struct {
	Player   string          `json:"player"`
	Slips    []Slip          `json:"slips"`
	Winnings decimal.Decimal `json:"winnings"`
}

type SettledEvent struct {
	Draw    int64          `json:"draw"`
	Numbers []int          `json:"numbers"`
	Results []PlayerResult `json:"results"`
}

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
	return &Engine{
		cfg:    cfg,
		ledger: l,
		rnd:    src,
		sink:   sink,
		notify: notify,
		state: RoundState{
			Phase:     Collecting,
			Countdown: cfg.Countdown,
			Tickets:   make(map[string]*Ticket),
		},
	}
}

func (e *Engine) Name() string { return "keno" }

func (e *Engine) Interval() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.state.Phase {
	case Drawing:
		return e.cfg.RevealInterval * DrawSize
	case Settling:
		return e.cfg.Cooldown
	default:
		return e.cfg.CollectTick
	}
}

// ticket returns the player's ticket, opening one only for players the
// ledger knows.
func (e *Engine) ticket(player string) (*Ticket, error) {
	if t := e.state.Tickets[player]; t != nil {
		return t, nil
	}
	if !e.ledger.Has(player) {
		return nil, ledger.ErrUnknownPlayer
	}
	t := &Ticket{}
	e.state.Tickets[player] = t
	return t, nil
}

// SelectNumber toggles n in the player's working selection and returns the
// selection.
func (e *Engine) SelectNumber(player string, n int) ([]int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Phase != Collecting {
		return nil, ErrNotCollecting
	}
	if n < MinNumber || n > MaxNumber {
		return nil, ErrNumberOutOfRange
	}
	t, err := e.ticket(player)
	if err != nil {
		return nil, err
	}
	for i, v := range t.Selected {
		if v == n {
			t.Selected = append(t.Selected[:i], t.Selected[i+1:]...)
			return append([]int(nil), t.Selected...), nil
		}
	}
	if len(t.Selected) >= MaxPicks {
		return nil, ErrMaxNumbersExceeded
	}
	t.Selected = append(t.Selected, n)
	sort.Ints(t.Selected)
	return append([]int(nil), t.Selected...), nil
}

// QuickPick replaces the selection with 1 to 6 random distinct numbers.
func (e *Engine) QuickPick(player string) ([]int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Phase != Collecting {
		return nil, ErrNotCollecting
	}
	count := e.rnd.Intn(MaxPicks) + 1
	picks := rng.Sample(e.rnd, MaxNumber, count)
	sort.Ints(picks)

	t, err := e.ticket(player)
	if err != nil {
		return nil, err
	}
	t.Selected = picks
	return append([]int(nil), picks...), nil
}

// AddSlip turns the working selection into an unplayed slip.
func (e *Engine) AddSlip(player string, bet decimal.Decimal) (Slip, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Phase != Collecting {
		return Slip{}, ErrNotCollecting
	}
	if !bet.IsPositive() {
		return Slip{}, ledger.ErrInvalidAmount
	}
	t, err := e.ticket(player)
	if err != nil {
		return Slip{}, err
	}
	switch {
	case len(t.Selected) == 0:
		return Slip{}, ErrEmptySelection
	case len(t.Selected) > MaxPicks:
		return Slip{}, ErrMaxNumbersExceeded
	case len(t.Slips) >= MaxSlips:
		return Slip{}, ErrMaxSlipsExceeded
	}

	numbers := append([]int(nil), t.Selected...)
	sort.Ints(numbers)
	s := &Slip{ID: uuid.New().String(), Numbers: numbers, BetAmount: bet}
	t.Slips = append(t.Slips, s)
	t.Selected = nil

	return *s, nil
}

// PlaceAllBets debits the summed stake of every unplayed slip in one ledger
// call and marks them played.
func (e *Engine) PlaceAllBets(player string) (decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Phase != Collecting {
		return decimal.Zero, ErrNotCollecting
	}
	t := e.state.Tickets[player]
	if t == nil {
		return decimal.Zero, ErrNoSlips
	}
	total := decimal.Zero
	var pending []*Slip
	for _, s := range t.Slips {
		if !s.Played {
			total = total.Add(s.BetAmount)
			pending = append(pending, s)
		}
	}
	if len(pending) == 0 {
		return decimal.Zero, ErrNoSlips
	}
	if _, err := e.ledger.Debit(player, total); err != nil {
		return decimal.Zero, err
	}
	for _, s := range pending {
		s.Played = true
	}
	e.state.RoundPlayers = addPlayer(e.state.RoundPlayers, player)

	e.notify.Notify(player, fmt.Sprintf("%d slips placed for %s", len(pending), total.StringFixed(2)), events.Success)
	return total, nil
}

// ClearAllSlips drops the player's unplayed slips and returns how many went.
func (e *Engine) ClearAllSlips(player string) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	t := e.state.Tickets[player]
	if t == nil {
		return 0
	}
	kept := t.Slips[:0]
	for _, s := range t.Slips {
		if s.Played {
			kept = append(kept, s)
		}
	}
	removed := len(t.Slips) - len(kept)
	t.Slips = kept
	return removed
}

func (e *Engine) Tick() {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state.Phase {
	case Collecting:
		if e.state.Countdown > 0 {
			e.state.Countdown--
		}
		e.sink.Emit(events.KenoCountdown, CountdownEvent{Draw: e.state.CurrentDraw, Countdown: e.state.Countdown})
		if e.state.Countdown == 0 {
			e.draw()
		}
	case Drawing:
		e.settle()
	case Settling:
		e.reset()
	}
}

func (e *Engine) anyPlayed() bool {
	for _, t := range e.state.Tickets {
		if t.played() {
			return true
		}
	}
	return false
}

func (e *Engine) draw() {
	if !e.anyPlayed() {
		e.state.Countdown = e.cfg.Countdown
		e.sink.Emit(events.KenoSkipped, CountdownEvent{Draw: e.state.CurrentDraw, Countdown: e.state.Countdown})
		return
	}

	e.state.Phase = Drawing
	e.state.CurrentDraw++
	e.state.DrawnNumbers = rng.Sample(e.rnd, MaxNumber, DrawSize)

	log.WithFields(log.Fields{
		"draw":    e.state.CurrentDraw,
		"players": len(e.state.RoundPlayers),
	}).Info("keno draw started")

	e.sink.Emit(events.KenoDrawn, DrawEvent{
		Draw:           e.state.CurrentDraw,
		Numbers:        append([]int(nil), e.state.DrawnNumbers...),
		RevealInterval: e.cfg.RevealInterval,
	})
}

func (e *Engine) settle() {
	e.state.Phase = Settling
	drawn := e.state.DrawnNumbers

	players := make([]string, 0, len(e.state.Tickets))
	for player := range e.state.Tickets {
		players = append(players, player)
	}
	sort.Strings(players)

	var results []PlayerResult
	for _, player := range players {
		t := e.state.Tickets[player]
		res := PlayerResult{Player: player, Winnings: decimal.Zero}
		for _, s := range t.Slips {
			if !s.Played || s.Settled {
				continue
			}
			s.Matches = CountMatches(s.Numbers, drawn)
			s.Multiplier = Multiplier(len(s.Numbers), s.Matches)
			s.Winnings = s.BetAmount.Mul(decimal.NewFromInt(s.Multiplier))
			s.Settled = true
			res.Winnings = res.Winnings.Add(s.Winnings)
			res.Slips = append(res.Slips, *s)
		}
		if len(res.Slips) == 0 {
			continue
		}

		if res.Winnings.IsPositive() {
			if _, err := e.ledger.Credit(player, res.Winnings); err != nil {
				log.Errorf("keno: credit %s to %s: %s", res.Winnings, player, err)
			}
		}
		for _, s := range res.Slips {
			result := models.ResultLoss
			if s.Winnings.IsPositive() {
				result = models.ResultWin
			}
			if _, err := e.ledger.RecordGame(player, models.GameKeno, s.BetAmount, result, s.Winnings, float64(s.Multiplier)); err != nil {
				log.Errorf("keno: record slip %s for %s: %s", s.ID, player, err)
			}
		}
		results = append(results, res)

		// settled slips are consumed; only unplayed slips carry over
		kept := t.Slips[:0]
		for _, s := range t.Slips {
			if !s.Settled {
				kept = append(kept, s)
			}
		}
		t.Slips = kept

		if res.Winnings.IsPositive() {
			e.notify.Notify(player, fmt.Sprintf("Keno draw complete! Total winnings: %s", res.Winnings.StringFixed(2)), events.Success)
		} else {
			e.notify.Notify(player, "Keno draw complete - No wins this round", events.Info)
		}
	}

	log.WithFields(log.Fields{
		"draw":    e.state.CurrentDraw,
		"players": len(results),
	}).Info("keno draw settled")

	e.sink.Emit(events.KenoSettled, SettledEvent{
		Draw:    e.state.CurrentDraw,
		Numbers: append([]int(nil), drawn...),
		Results: results,
	})
}

func (e *Engine) reset() {
	e.state.Phase = Collecting
	e.state.Countdown = e.cfg.Countdown
	e.state.DrawnNumbers = nil
	e.state.RoundPlayers = nil
	for player, t := range e.state.Tickets {
		t.Selected = nil
		if len(t.Slips) == 0 {
			delete(e.state.Tickets, player)
		}
	}
	e.sink.Emit(events.KenoCollecting, CountdownEvent{Draw: e.state.CurrentDraw, Countdown: e.state.Countdown})
}

func (e *Engine) State() RoundState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.clone()
}

// Restore installs a saved round. Unless resume is set, stakes on slips that
// were played but not settled are refunded and collection restarts.
func (e *Engine) Restore(st RoundState, resume bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st = st.clone()
	if st.Tickets == nil {
		st.Tickets = make(map[string]*Ticket)
	}
	e.state = st
	if resume {
		return
	}

	for player, t := range e.state.Tickets {
		refund := decimal.Zero
		kept := t.Slips[:0]
		for _, s := range t.Slips {
			if s.Played && !s.Settled {
				refund = refund.Add(s.BetAmount)
				continue
			}
			if !s.Played {
				kept = append(kept, s)
			}
		}
		t.Slips = kept
		if refund.IsPositive() {
			if _, err := e.ledger.Credit(player, refund); err != nil {
				log.Errorf("keno: refund %s to %s: %s", refund, player, err)
			}
		}
	}
	e.reset()
}
