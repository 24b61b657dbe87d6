package ledger

import (
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/avvvet/casino-services/internal/casino/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrUnknownPlayer     = errors.New("unknown player")
	ErrPlayerExists      = errors.New("player already exists")
	ErrDepositRecord     = errors.New("deposits are recorded through Deposit")
)

const DefaultHistoryLimit = 1000

// Journal receives every committed ledger mutation in commit order for a
// given player. Append is called with the player lock held and must not block.
type Journal interface {
	Append(e Entry)
}

type account struct {
	mu      sync.Mutex
	player  models.Player
	records []models.GameRecord // oldest first
}

// Ledger owns balances and game history. Mutations on one player are
// serialized by that player's lock; different players never contend except
// on the short global history/stats section.
type Ledger struct {
	mu       sync.RWMutex
	accounts map[string]*account

	statsMu sync.Mutex
	history []models.GameRecord // oldest first, capped at limit
	limit   int
	stats   models.CasinoStats

	now     func() time.Time
	journal Journal
}

type Option func(*Ledger)

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func WithHistoryLimit(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.limit = n
		}
	}
}

func WithJournal(j Journal) Option {
	return func(l *Ledger) { l.journal = j }
}

func New(opts ...Option) *Ledger {
	l := &Ledger{
		accounts: make(map[string]*account),
		limit:    DefaultHistoryLimit,
		now:      time.Now,
		journal:  nopJournal{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Open adds a player with an opening balance.
func (l *Ledger) Open(p models.Player) (models.Player, error) {
	if p.Balance.IsNegative() {
		return models.Player{}, ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.accounts[p.Username]; ok {
		return models.Player{}, ErrPlayerExists
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = l.now()
	}
	if p.Tier == "" {
		p.Tier = models.TierBronze
	}
	p.History = nil
	l.accounts[p.Username] = &account{player: p}

	return p, nil
}

func (l *Ledger) Has(player string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.accounts[player]
	return ok
}

func (l *Ledger) lookup(player string) (*account, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.accounts[player]
	if !ok {
		return nil, ErrUnknownPlayer
	}
	return a, nil
}

// Debit removes amount from the player's balance and returns the new balance.
func (l *Ledger) Debit(player string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	a, err := l.lookup(player)
	if err != nil {
		return decimal.Zero, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if amount.GreaterThan(a.player.Balance) {
		return a.player.Balance, ErrInsufficientFunds
	}
	a.player.Balance = a.player.Balance.Sub(amount)
	l.journal.Append(Entry{Kind: EntryDebit, Player: player, Amount: amount, Balance: a.player.Balance, At: l.now()})

	return a.player.Balance, nil
}

// Credit adds amount to the player's balance. A zero credit is accepted.
func (l *Ledger) Credit(player string, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.IsNegative() {
		return decimal.Zero, ErrInvalidAmount
	}
	a, err := l.lookup(player)
	if err != nil {
		return decimal.Zero, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.player.Balance = a.player.Balance.Add(amount)
	l.journal.Append(Entry{Kind: EntryCredit, Player: player, Amount: amount, Balance: a.player.Balance, At: l.now()})

	return a.player.Balance, nil
}

// RecordGame appends a settled game to the player's and the casino's history
// and updates the cumulative counters.
func (l *Ledger) RecordGame(player string, kind models.GameKind, bet decimal.Decimal,
	result models.Result, winnings decimal.Decimal, multiplier float64) (models.GameRecord, error) {
	if kind == models.GameDeposit {
		return models.GameRecord{}, ErrDepositRecord
	}
	if bet.IsNegative() || winnings.IsNegative() {
		return models.GameRecord{}, ErrInvalidAmount
	}
	a, err := l.lookup(player)
	if err != nil {
		return models.GameRecord{}, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	rec := l.newRecord(&a.player, kind, bet, result, winnings, multiplier)
	rec.Profit = winnings.Sub(bet)

	p := &a.player
	p.GamesPlayed++
	p.TotalBets = p.TotalBets.Add(bet)
	if winnings.IsPositive() {
		p.TotalWins++
	}
	p.TotalProfit = p.TotalProfit.Add(rec.Profit)
	p.WinRate = winRate(p.TotalWins, p.GamesPlayed)
	p.Tier = models.TierFor(p.TotalBets)

	a.records = append(a.records, rec)
	l.appendGlobal(rec, true)
	l.journal.Append(Entry{Kind: EntryRecord, Player: player, Record: &rec, Balance: p.Balance, At: rec.Timestamp})

	return rec, nil
}

// Deposit credits the player and appends a deposit record. Deposits leave
// the play counters and casino stats untouched.
func (l *Ledger) Deposit(player string, amount decimal.Decimal) (models.GameRecord, error) {
	if !amount.IsPositive() {
		return models.GameRecord{}, ErrInvalidAmount
	}
	a, err := l.lookup(player)
	if err != nil {
		return models.GameRecord{}, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.player.Balance = a.player.Balance.Add(amount)
	rec := l.newRecord(&a.player, models.GameDeposit, amount, models.ResultDeposit, amount, 1)
	rec.Profit = amount

	a.records = append(a.records, rec)
	l.appendGlobal(rec, false)
	l.journal.Append(Entry{Kind: EntryDeposit, Player: player, Amount: amount, Record: &rec, Balance: a.player.Balance, At: rec.Timestamp})

	return rec, nil
}

func (l *Ledger) newRecord(p *models.Player, kind models.GameKind, bet decimal.Decimal,
	result models.Result, winnings decimal.Decimal, multiplier float64) models.GameRecord {
	return models.GameRecord{
		ID:         uuid.New().String(),
		Player:     p.Username,
		PlayerID:   p.ID,
		Game:       kind,
		BetAmount:  bet,
		Result:     result,
		Winnings:   winnings,
		Multiplier: multiplier,
		Timestamp:  l.now(),
	}
}

func (l *Ledger) appendGlobal(rec models.GameRecord, counted bool) {
	l.statsMu.Lock()
	defer l.statsMu.Unlock()

	l.history = append(l.history, rec)
	if len(l.history) > l.limit {
		l.history = append([]models.GameRecord(nil), l.history[len(l.history)-l.limit:]...)
	}
	if !counted {
		return
	}
	l.stats.TotalGames++
	l.stats.TotalWagered = l.stats.TotalWagered.Add(rec.BetAmount)
	l.stats.TotalPayouts = l.stats.TotalPayouts.Add(rec.Winnings)
	if rec.Winnings.GreaterThan(l.stats.BiggestWin) {
		l.stats.BiggestWin = rec.Winnings
	}
}

func winRate(wins, played int) int {
	if played == 0 {
		return 0
	}
	return int(math.Round(float64(wins) / float64(played) * 100))
}

func (l *Ledger) Balance(player string) (decimal.Decimal, error) {
	a, err := l.lookup(player)
	if err != nil {
		return decimal.Zero, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.player.Balance, nil
}

// Player returns a copy of the player with history most-recent-first.
func (l *Ledger) Player(player string) (models.Player, error) {
	a, err := l.lookup(player)
	if err != nil {
		return models.Player{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.view(), nil
}

func (a *account) view() models.Player {
	p := a.player
	p.History = newestFirst(a.records, 0)
	return p
}

// Touch stamps a login time on the player.
func (l *Ledger) Touch(player string) error {
	a, err := l.lookup(player)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.player.LastLogin = l.now()
	a.mu.Unlock()
	return nil
}

func (l *Ledger) Usernames() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.accounts))
	for name := range l.accounts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// History returns up to n casino-wide records, most recent first. n <= 0
// returns everything retained.
func (l *Ledger) History(n int) []models.GameRecord {
	l.statsMu.Lock()
	defer l.statsMu.Unlock()
	return newestFirst(l.history, n)
}

func (l *Ledger) Stats() models.CasinoStats {
	l.statsMu.Lock()
	defer l.statsMu.Unlock()
	return l.stats
}

func (l *Ledger) SetOnlinePlayers(n int) {
	l.statsMu.Lock()
	l.stats.OnlinePlayers = n
	l.statsMu.Unlock()
}

func newestFirst(records []models.GameRecord, n int) []models.GameRecord {
	if n <= 0 || n > len(records) {
		n = len(records)
	}
	out := make([]models.GameRecord, 0, n)
	for i := len(records) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, records[i])
	}
	return out
}

type nopJournal struct{}

func (nopJournal) Append(Entry) {}
