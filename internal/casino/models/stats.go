package models

import "github.com/shopspring/decimal"

// CasinoStats aggregates every non-deposit record. OnlinePlayers is a
// synthetic gauge and not derived from play.
type CasinoStats struct {
	OnlinePlayers int             `json:"online_players"`
	TotalWagered  decimal.Decimal `json:"total_wagered"`
	TotalPayouts  decimal.Decimal `json:"total_payouts"`
	TotalGames    int             `json:"total_games"`
	BiggestWin    decimal.Decimal `json:"biggest_win"`
}

func (s CasinoStats) AverageBet() decimal.Decimal {
	if s.TotalGames == 0 {
		return decimal.Zero
	}
	return s.TotalWagered.Div(decimal.NewFromInt(int64(s.TotalGames))).Floor()
}
