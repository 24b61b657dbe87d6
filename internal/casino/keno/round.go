package keno

import (
	"errors"
	"sort"
	"time"

	"github.com/avvvet/casino-services/internal/casino/models"
	"github.com/shopspring/decimal"
)

var (
	ErrNotCollecting      = errors.New("cannot change slips during draw")
	ErrNumberOutOfRange   = errors.New("number must be between 1 and 80")
	ErrMaxNumbersExceeded = errors.New("maximum 6 numbers per slip")
	ErrMaxSlipsExceeded   = errors.New("maximum 10 slips per round")
	ErrEmptySelection     = errors.New("select at least 1 number")
	ErrNoSlips            = errors.New("no slips to play")
)

type Phase string

const (
	Collecting Phase = "collecting"
	Drawing    Phase = "drawing"
	Settling   Phase = "settling"
)

const (
	MinNumber = 1
	MaxNumber = 80
	MaxPicks  = 6
	MaxSlips  = 10
	DrawSize  = 20
)

// Payouts maps picked count to multipliers indexed by matches.
var Payouts = map[int][]int64{
	6: {0, 0, 2, 10, 100, 1000, 10000},
	5: {0, 0, 2, 10, 100, 1000},
	4: {0, 0, 2, 10, 100},
	3: {0, 0, 2, 10},
	2: {0, 0, 2},
	1: {0, 1},
}

// Multiplier looks up the payout multiplier; anything outside the table pays 0.
func Multiplier(picked, matches int) int64 {
	table, ok := Payouts[picked]
	if !ok || matches < 0 || matches >= len(table) {
		return 0
	}
	return table[matches]
}

// Ledger is the subset of the ledger keno needs.
type Ledger interface {
	Has(player string) bool
	Debit(player string, amount decimal.Decimal) (decimal.Decimal, error)
	Credit(player string, amount decimal.Decimal) (decimal.Decimal, error)
	RecordGame(player string, kind models.GameKind, bet decimal.Decimal, result models.Result,
		winnings decimal.Decimal, multiplier float64) (models.GameRecord, error)
}

type Config struct {
	Countdown      int
	CollectTick    time.Duration
	RevealInterval time.Duration
	Cooldown       time.Duration
}

func DefaultConfig() Config {
	return Config{
		Countdown:      50,
		CollectTick:    time.Second,
		RevealInterval: 500 * time.Millisecond,
		Cooldown:       10 * time.Second,
	}
}

type Slip struct {
	ID         string          `json:"id"`
	Numbers    []int           `json:"numbers"`
	BetAmount  decimal.Decimal `json:"bet_amount"`
	Matches    int             `json:"matches"`
	Multiplier int64           `json:"multiplier"`
	Winnings   decimal.Decimal `json:"winnings"`
	Played     bool            `json:"played"`
	Settled    bool            `json:"settled"`
}

// Ticket is one player's working selection and slips.
type Ticket struct {
	Selected []int   `json:"selected"`
	Slips    []*Slip `json:"slips"`
}

func (t *Ticket) clone() *Ticket {
	out := &Ticket{Selected: append([]int(nil), t.Selected...)}
	for _, s := range t.Slips {
		cp := *s
		cp.Numbers = append([]int(nil), s.Numbers...)
		out.Slips = append(out.Slips, &cp)
	}
	return out
}

func (t *Ticket) played() bool {
	for _, s := range t.Slips {
		if s.Played && !s.Settled {
			return true
		}
	}
	return false
}

type RoundState struct {
	Phase        Phase              `json:"phase"`
	Countdown    int                `json:"countdown"`
	CurrentDraw  int64              `json:"current_draw"`
	DrawnNumbers []int              `json:"drawn_numbers"`
	Tickets      map[string]*Ticket `json:"tickets"`
	RoundPlayers []string           `json:"round_players"`
}

func (s RoundState) clone() RoundState {
	out := s
	out.DrawnNumbers = append([]int(nil), s.DrawnNumbers...)
	out.RoundPlayers = append([]string(nil), s.RoundPlayers...)
	out.Tickets = make(map[string]*Ticket, len(s.Tickets))
	for player, t := range s.Tickets {
		out.Tickets[player] = t.clone()
	}
	return out
}

// CountMatches returns |numbers ∩ drawn|.
func CountMatches(numbers, drawn []int) int {
	in := make(map[int]bool, len(drawn))
	for _, n := range drawn {
		in[n] = true
	}
	matches := 0
	for _, n := range numbers {
		if in[n] {
			matches++
		}
	}
	return matches
}

func addPlayer(players []string, player string) []string {
	i := sort.SearchStrings(players, player)
	if i < len(players) && players[i] == player {
		return players
	}
	players = append(players, "")
	copy(players[i+1:], players[i:])
	players[i] = player
	return players
}
