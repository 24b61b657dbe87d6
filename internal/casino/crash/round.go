package crash

import (
	"errors"
	"math"
	"time"

	"github.com/avvvet/casino-services/internal/casino/models"
	"github.com/avvvet/casino-services/internal/casino/rng"
	"github.com/shopspring/decimal"
)

var (
	ErrNotBettingPeriod = errors.New("betting period has ended")
	ErrPanelBusy        = errors.New("panel already has an active bet")
	ErrNoActiveGame     = errors.New("no active game to cash out")
	ErrNoActiveBet      = errors.New("no active bet on panel")
	ErrAlreadyCashedOut = errors.New("bet already cashed out")
	ErrUnknownPanel     = errors.New("unknown panel")
)

type Phase string

const (
	Betting  Phase = "betting"
	Active   Phase = "active"
	Settling Phase = "settling"
)

const (
	Panel1 = 1
	Panel2 = 2

	HistorySize = 5
)

// Ledger is the subset of the ledger the crash game needs.
type Ledger interface {
	Debit(player string, amount decimal.Decimal) (decimal.Decimal, error)
	Credit(player string, amount decimal.Decimal) (decimal.Decimal, error)
	RecordGame(player string, kind models.GameKind, bet decimal.Decimal, result models.Result,
		winnings decimal.Decimal, multiplier float64) (models.GameRecord, error)
}

type Config struct {
	Countdown   int
	BettingTick time.Duration
	ActiveTick  time.Duration
	SettleDelay time.Duration
	HouseEdge   float64
	// SeedHistory fills the multiplier history of a fresh engine.
	SeedHistory []float64
}

func DefaultConfig() Config {
	return Config{
		Countdown:   10,
		BettingTick: time.Second,
		ActiveTick:  100 * time.Millisecond,
		SettleDelay: 5 * time.Second,
		HouseEdge:   0.01,
		SeedHistory: []float64{2.03, 1.31, 1.46, 1.87, 7.55},
	}
}

type Bet struct {
	Player            string          `json:"player"`
	PanelID           int             `json:"panel_id"`
	Amount            decimal.Decimal `json:"amount"`
	Active            bool            `json:"active"`
	CashedOut         bool            `json:"cashed_out"`
	CashoutMultiplier float64         `json:"cashout_multiplier"`
	Winnings          decimal.Decimal `json:"winnings"`
}

// Panels holds a player's two bet slots; index 0 is panel 1.
type Panels [2]Bet

func (p *Panels) bet(panel int) (*Bet, error) {
	if panel != Panel1 && panel != Panel2 {
		return nil, ErrUnknownPanel
	}
	return &p[panel-1], nil
}

type RoundState struct {
	RoundNumber        int64              `json:"round_number"`
	Phase              Phase              `json:"phase"`
	Countdown          int                `json:"countdown"`
	CurrentMultiplier  float64            `json:"current_multiplier"`
	CrashPoint         float64            `json:"crash_point,omitempty"`
	PanelBets          map[string]*Panels `json:"panel_bets"`
	HistoryMultipliers []float64          `json:"history_multipliers"`
}

func (s RoundState) clone() RoundState {
	out := s
	out.PanelBets = make(map[string]*Panels, len(s.PanelBets))
	for player, panels := range s.PanelBets {
		cp := *panels
		out.PanelBets[player] = &cp
	}
	out.HistoryMultipliers = append([]float64(nil), s.HistoryMultipliers...)
	return out
}

type tier struct {
	cumulative float64
	lo, span   float64
}

var tiers = []tier{
	{0.60, 1.00, 1.50},
	{0.85, 2.50, 3.00},
	{0.95, 5.50, 10.00},
	{1.00, 15.50, 85.00},
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// CrashPoint draws a crash multiplier from the tiered distribution. The
// result is rounded to 2 decimals and stays inside its tier's half-open range.
func CrashPoint(src rng.RandomSource) float64 {
	u := src.Float64()
	t := tiers[len(tiers)-1]
	for _, candidate := range tiers {
		if u < candidate.cumulative {
			t = candidate
			break
		}
	}
	p := round2(t.lo + src.Float64()*t.span)
	if hi := round2(t.lo + t.span); p >= hi {
		p = round2(hi - 0.01)
	}
	return p
}

// Step advances a multiplier by a uniform increment in [0.01, 0.03).
func Step(src rng.RandomSource, current float64) float64 {
	return round2(current + rng.Uniform(src, 0.01, 0.03))
}

// Payout is floor(amount * multiplier * (1 - houseEdge) * 100) / 100.
func Payout(amount decimal.Decimal, multiplier, houseEdge float64) decimal.Decimal {
	m := decimal.NewFromFloat(multiplier).Round(2)
	keep := decimal.NewFromInt(1).Sub(decimal.NewFromFloat(houseEdge))
	hundred := decimal.NewFromInt(100)
	return amount.Mul(m).Mul(keep).Mul(hundred).Floor().Div(hundred)
}
