package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Tier string

const (
	TierBronze   Tier = "Bronze"
	TierSilver   Tier = "Silver"
	TierGold     Tier = "Gold"
	TierPlatinum Tier = "Platinum"
)

var (
	silverBets   = decimal.NewFromInt(10000)
	goldBets     = decimal.NewFromInt(50000)
	platinumBets = decimal.NewFromInt(250000)
)

// TierFor ranks a player by lifetime wagered amount. Cosmetic only.
func TierFor(totalBets decimal.Decimal) Tier {
	switch {
	case totalBets.GreaterThanOrEqual(platinumBets):
		return TierPlatinum
	case totalBets.GreaterThanOrEqual(goldBets):
		return TierGold
	case totalBets.GreaterThanOrEqual(silverBets):
		return TierSilver
	default:
		return TierBronze
	}
}

// Player is the ledger view of an account. History is most-recent-first.
type Player struct {
	ID          string          `json:"id"`
	Username    string          `json:"username"`
	Balance     decimal.Decimal `json:"balance"`
	GamesPlayed int             `json:"games_played"`
	TotalBets   decimal.Decimal `json:"total_bets"`
	TotalWins   int             `json:"total_wins"`
	TotalProfit decimal.Decimal `json:"total_profit"`
	WinRate     int             `json:"win_rate"`
	History     []GameRecord    `json:"history"`
	Tier        Tier            `json:"tier"`
	CreatedAt   time.Time       `json:"created_at"`
	LastLogin   time.Time       `json:"last_login"`
}

// Account is what an account store keeps: credentials plus the opening
// balance granted at registration.
type Account struct {
	ID             string          `json:"id"`
	Username       string          `json:"username"`
	PasswordHash   string          `json:"-"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
	Status         string          `json:"status,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}
