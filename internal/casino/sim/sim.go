// Package sim plays the games offline to measure return to player.
package sim

import (
	"github.com/avvvet/casino-services/internal/casino/crash"
	"github.com/avvvet/casino-services/internal/casino/keno"
	"github.com/avvvet/casino-services/internal/casino/models"
	"github.com/avvvet/casino-services/internal/casino/rng"
	"github.com/avvvet/casino-services/internal/casino/slots"
	"github.com/shopspring/decimal"
)

var stake = decimal.NewFromInt(100)

type Report struct {
	Game          models.GameKind `json:"game"`
	Rounds        int             `json:"rounds"`
	Wins          int             `json:"wins"`
	Wagered       decimal.Decimal `json:"wagered"`
	Paid          decimal.Decimal `json:"paid"`
	MaxMultiplier float64         `json:"max_multiplier"`
}

// RTP is paid over wagered.
func (r Report) RTP() float64 {
	if r.Wagered.IsZero() {
		return 0
	}
	return r.Paid.Div(r.Wagered).InexactFloat64()
}

func (r Report) HitRate() float64 {
	if r.Rounds == 0 {
		return 0
	}
	return float64(r.Wins) / float64(r.Rounds)
}

func (r *Report) add(bet, paid decimal.Decimal, multiplier float64) {
	r.Rounds++
	r.Wagered = r.Wagered.Add(bet)
	r.Paid = r.Paid.Add(paid)
	if paid.IsPositive() {
		r.Wins++
	}
	if multiplier > r.MaxMultiplier {
		r.MaxMultiplier = multiplier
	}
}

// Slots spins a fixed stake.
func Slots(src rng.RandomSource, spins int) Report {
	r := Report{Game: models.GameSlots}
	for i := 0; i < spins; i++ {
		win, _ := slots.Evaluate(slots.Generate(src), stake)
		r.add(stake, win, win.Div(stake).InexactFloat64())
	}
	return r
}

// Keno plays one quick-picked slip of picks numbers per draw.
func Keno(src rng.RandomSource, draws, picks int) Report {
	r := Report{Game: models.GameKeno}
	for i := 0; i < draws; i++ {
		slip := rng.Sample(src, keno.MaxNumber, picks)
		drawn := rng.Sample(src, keno.MaxNumber, keno.DrawSize)
		m := keno.Multiplier(picks, keno.CountMatches(slip, drawn))
		r.add(stake, stake.Mul(decimal.NewFromInt(m)), float64(m))
	}
	return r
}

// Crash bets every round and cashes out at the first tick reaching target,
// walking the multiplier the way the live round does.
func Crash(src rng.RandomSource, rounds int, target, houseEdge float64) Report {
	r := Report{Game: models.GameCrash}
	for i := 0; i < rounds; i++ {
		point := crash.CrashPoint(src)
		paid, mult := decimal.Zero, 0.0
		for m := 1.0; ; {
			m = crash.Step(src, m)
			if m >= point {
				break
			}
			if m >= target {
				paid, mult = crash.Payout(stake, m, houseEdge), m
				break
			}
		}
		r.add(stake, paid, mult)
	}
	return r
}
