package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type GameKind string

const (
	GameCrash   GameKind = "crash"
	GameKeno    GameKind = "keno"
	GameSlots   GameKind = "slots"
	GameDeposit GameKind = "deposit"
)

type Result string

const (
	ResultWin     Result = "win"
	ResultLoss    Result = "loss"
	ResultDeposit Result = "deposit"
)

// GameRecord is one settled bet or deposit. Records are never modified once
// appended to a player's history.
type GameRecord struct {
	ID         string          `json:"id"`
	Player     string          `json:"player"`
	PlayerID   string          `json:"player_id"`
	Game       GameKind        `json:"game"`
	BetAmount  decimal.Decimal `json:"bet_amount"`
	Result     Result          `json:"result"`
	Winnings   decimal.Decimal `json:"winnings"`
	Multiplier float64         `json:"multiplier"`
	Profit     decimal.Decimal `json:"profit"`
	Timestamp  time.Time       `json:"timestamp"`
}
