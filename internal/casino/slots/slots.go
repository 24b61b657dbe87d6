package slots

import (
	"errors"
	"fmt"
	"sync"

	"github.com/avvvet/casino-services/internal/casino/events"
	"github.com/avvvet/casino-services/internal/casino/ledger"
	"github.com/avvvet/casino-services/internal/casino/models"
	"github.com/avvvet/casino-services/internal/casino/rng"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

var ErrAlreadySpinning = errors.New("slot machine is already spinning")

const (
	Reels = 4
	Rows  = 5
)

var Symbols = [8]string{"cherry", "lemon", "orange", "watermelon", "star", "seven", "bell", "diamond"}

// Paylines pick one row per reel.
var Paylines = [5][Reels]int{
	{0, 0, 0, 0},
	{1, 1, 1, 1},
	{2, 2, 2, 2},
	{0, 1, 2, 1},
	{2, 1, 0, 1},
}

var (
	fourOfAKind  = decimal.NewFromInt(20)
	threeOfAKind = decimal.NewFromInt(5)
	defaultBet   = decimal.NewFromInt(100)
)

// Grid is indexed [reel][row].
type Grid [Reels][Rows]string

type Ledger interface {
	Has(player string) bool
	Debit(player string, amount decimal.Decimal) (decimal.Decimal, error)
	Credit(player string, amount decimal.Decimal) (decimal.Decimal, error)
	RecordGame(player string, kind models.GameKind, bet decimal.Decimal, result models.Result,
		winnings decimal.Decimal, multiplier float64) (models.GameRecord, error)
}

type LineWin struct {
	Line   int             `json:"line"`
	Symbol string          `json:"symbol"`
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

// Evaluate scores every payline independently: four equal symbols pay 20x
// the bet, otherwise three equal leading symbols pay 5x.
func Evaluate(g Grid, bet decimal.Decimal) (decimal.Decimal, []LineWin) {
	total := decimal.Zero
	var wins []LineWin
	for i, line := range Paylines {
		var s [Reels]string
		for reel, row := range line {
			s[reel] = g[reel][row]
		}
		switch {
		case s[0] == s[1] && s[1] == s[2] && s[2] == s[3]:
			amt := bet.Mul(fourOfAKind)
			wins = append(wins, LineWin{Line: i, Symbol: s[0], Count: 4, Amount: amt})
			total = total.Add(amt)
		case s[0] == s[1] && s[1] == s[2]:
			amt := bet.Mul(threeOfAKind)
			wins = append(wins, LineWin{Line: i, Symbol: s[0], Count: 3, Amount: amt})
			total = total.Add(amt)
		}
	}
	return total, wins
}

// Generate fills every cell uniformly from the alphabet.
func Generate(src rng.RandomSource) Grid {
	var g Grid
	for reel := 0; reel < Reels; reel++ {
		for row := 0; row < Rows; row++ {
			g[reel][row] = Symbols[src.Intn(len(Symbols))]
		}
	}
	return g
}

// State is one player's machine.
type State struct {
	Reels      Grid            `json:"reels"`
	CurrentBet decimal.Decimal `json:"current_bet"`
	LastWin    decimal.Decimal `json:"last_win"`
	TotalBet   decimal.Decimal `json:"total_bet"`
	Spinning   bool            `json:"spinning"`
}

type SpinResult struct {
	Player     string          `json:"player"`
	Grid       Grid            `json:"grid"`
	Bet        decimal.Decimal `json:"bet"`
	Wins       []LineWin       `json:"wins"`
	Win        decimal.Decimal `json:"win"`
	Multiplier float64         `json:"multiplier"`
	Balance    decimal.Decimal `json:"balance"`
}

type Engine struct {
	mu     sync.Mutex
	states map[string]*State
	ledger Ledger
	rnd    rng.RandomSource
	sink   events.Sink
	notify events.Notifier
}

func NewEngine(l Ledger, src rng.RandomSource, sink events.Sink, notify events.Notifier) *Engine {
	if sink == nil {
		sink = events.Discard{}
	}
	if notify == nil {
		notify = events.Discard{}
	}
	return &Engine{
		states: make(map[string]*State),
		ledger: l,
		rnd:    src,
		sink:   sink,
		notify: notify,
	}
}

func (e *Engine) state(player string) (*State, error) {
	if st := e.states[player]; st != nil {
		return st, nil
	}
	if !e.ledger.Has(player) {
		return nil, ledger.ErrUnknownPlayer
	}
	st := &State{CurrentBet: defaultBet}
	e.states[player] = st
	return st, nil
}

// Spin debits the bet, generates a grid and settles it. A second spin by the
// same player while one is in flight fails with ErrAlreadySpinning.
func (e *Engine) Spin(player string, bet decimal.Decimal) (SpinResult, error) {
	e.mu.Lock()
	st, err := e.state(player)
	if err != nil {
		e.mu.Unlock()
		return SpinResult{}, err
	}
	if st.Spinning {
		e.mu.Unlock()
		return SpinResult{}, ErrAlreadySpinning
	}
	st.Spinning = true
	e.mu.Unlock()

	res, err := e.spin(player, bet)

	e.mu.Lock()
	defer e.mu.Unlock()
	st.Spinning = false
	if err != nil {
		return SpinResult{}, err
	}
	st.CurrentBet = bet
	st.TotalBet = st.TotalBet.Add(bet)
	st.Reels = res.Grid
	if res.Win.IsPositive() {
		st.LastWin = res.Win
	}

	e.sink.Emit(events.SlotsSpun, res)
	return res, nil
}

func (e *Engine) spin(player string, bet decimal.Decimal) (SpinResult, error) {
	balance, err := e.ledger.Debit(player, bet)
	if err != nil {
		return SpinResult{}, err
	}

	grid := Generate(e.rnd)
	win, wins := Evaluate(grid, bet)
	res := SpinResult{Player: player, Grid: grid, Bet: bet, Wins: wins, Win: win, Balance: balance}

	if win.IsPositive() {
		if res.Balance, err = e.ledger.Credit(player, win); err != nil {
			log.Errorf("slots: credit %s to %s: %s", win, player, err)
		}
		res.Multiplier = win.Div(bet).InexactFloat64()
		if _, err := e.ledger.RecordGame(player, models.GameSlots, bet, models.ResultWin, win, res.Multiplier); err != nil {
			log.Errorf("slots: record win for %s: %s", player, err)
		}
		e.notify.Notify(player, fmt.Sprintf("Slot machine win! %s!", win.StringFixed(2)), events.Success)
		return res, nil
	}

	if _, err := e.ledger.RecordGame(player, models.GameSlots, bet, models.ResultLoss, decimal.Zero, 0); err != nil {
		log.Errorf("slots: record loss for %s: %s", player, err)
	}
	e.notify.Notify(player, "No win this spin. Try again!", events.Info)
	return res, nil
}

func (e *Engine) State(player string) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st, ok := e.states[player]; ok {
		return *st
	}
	return State{CurrentBet: defaultBet}
}

func (e *Engine) Snapshot() map[string]State {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]State, len(e.states))
	for player, st := range e.states {
		out[player] = *st
	}
	return out
}

// Restore installs saved machines. Spins never survive a restart.
func (e *Engine) Restore(states map[string]State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.states = make(map[string]*State, len(states))
	for player, st := range states {
		st.Spinning = false
		cp := st
		e.states[player] = &cp
	}
}
