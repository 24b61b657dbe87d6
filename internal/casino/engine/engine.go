package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/avvvet/casino-services/internal/casino/clock"
	"github.com/avvvet/casino-services/internal/casino/crash"
	"github.com/avvvet/casino-services/internal/casino/events"
	"github.com/avvvet/casino-services/internal/casino/keno"
	"github.com/avvvet/casino-services/internal/casino/ledger"
	"github.com/avvvet/casino-services/internal/casino/models"
	"github.com/avvvet/casino-services/internal/casino/rng"
	"github.com/avvvet/casino-services/internal/casino/scheduler"
	"github.com/avvvet/casino-services/internal/casino/slots"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidUsername = errors.New("username must be at least 3 characters")
	ErrInvalidPassword = errors.New("password must be at least 4 characters")
	ErrBadCredentials  = errors.New("invalid username or password")
)

const (
	MinUsername = 3
	MinPassword = 4

	DefaultRecent = 10
)

// AccountStore keeps credentials. FindPlayer returns nil, nil when the
// username is unknown.
type AccountStore interface {
	FindPlayer(ctx context.Context, username string) (*models.Account, error)
	CreatePlayer(ctx context.Context, username, password string, initialBalance decimal.Decimal) (*models.Account, error)
}

// AccountArchive is an AccountStore with no storage of its own. Its
// accounts travel in the engine snapshot.
type AccountArchive interface {
	AccountStore
	Accounts() []models.Account
	RestoreAccounts(accounts []models.Account)
}

// PersistenceHook stores the serialized engine state. Load returns nil, nil
// when nothing was saved yet.
type PersistenceHook interface {
	Save(ctx context.Context, state []byte) error
	Load(ctx context.Context) ([]byte, error)
}

type Config struct {
	Crash          crash.Config
	Keno           keno.Config
	HistoryLimit   int
	InitialBalance decimal.Decimal
	StatsInterval  time.Duration
	OnlineBase     int
	OnlineSpread   int
}

func DefaultConfig() Config {
	return Config{
		Crash:          crash.DefaultConfig(),
		Keno:           keno.DefaultConfig(),
		HistoryLimit:   ledger.DefaultHistoryLimit,
		InitialBalance: decimal.NewFromInt(1000),
		StatsInterval:  10 * time.Second,
		OnlineBase:     1000,
		OnlineSpread:   500,
	}
}

// Deps are the collaborators an Engine is built with. Nil members fall back
// to a real clock, a time-seeded source, in-process no-op sinks and no
// persistence.
type Deps struct {
	Clock       clock.Clock
	Random      rng.RandomSource
	Accounts    AccountStore
	Persistence PersistenceHook
	Sink        events.Sink
	Notifier    events.Notifier
	Journal     ledger.Journal
}

// Engine owns the ledger and the three games. Player operations and round
// ticks share gate for reading and are ordered by each game's own lock;
// Snapshot and Restore take gate exclusively so a saved state never holds a
// half-applied bet.
type Engine struct {
	gate sync.RWMutex

	cfg      Config
	clock    clock.Clock
	rnd      rng.RandomSource
	accounts AccountStore
	persist  PersistenceHook
	sink     events.Sink
	notify   events.Notifier

	ledger *ledger.Ledger
	crash  *crash.Engine
	keno   *keno.Engine
	slots  *slots.Engine
}

func New(cfg Config, deps Deps) *Engine {
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Random == nil {
		deps.Random = rng.NewFromTime()
	}
	if deps.Sink == nil {
		deps.Sink = events.Discard{}
	}
	if deps.Notifier == nil {
		deps.Notifier = events.Discard{}
	}
	if !cfg.InitialBalance.IsPositive() {
		cfg.InitialBalance = decimal.NewFromInt(1000)
	}

	opts := []ledger.Option{
		ledger.WithClock(deps.Clock.Now),
		ledger.WithHistoryLimit(cfg.HistoryLimit),
	}
	if deps.Journal != nil {
		opts = append(opts, ledger.WithJournal(deps.Journal))
	}
	l := ledger.New(opts...)

	return &Engine{
		cfg:      cfg,
		clock:    deps.Clock,
		rnd:      deps.Random,
		accounts: deps.Accounts,
		persist:  deps.Persistence,
		sink:     deps.Sink,
		notify:   deps.Notifier,
		ledger:   l,
		crash:    crash.NewEngine(cfg.Crash, l, deps.Random, deps.Sink, deps.Notifier),
		keno:     keno.NewEngine(cfg.Keno, l, deps.Random, deps.Sink, deps.Notifier),
		slots:    slots.NewEngine(l, deps.Random, deps.Sink, deps.Notifier),
	}
}

func (e *Engine) Ledger() *ledger.Ledger { return e.ledger }

// gated serializes a round's ticks against snapshots.
type gated struct {
	scheduler.Round
	gate *sync.RWMutex
}

func (g gated) Tick() {
	g.gate.RLock()
	defer g.gate.RUnlock()
	g.Round.Tick()
}

// Rounds returns everything the scheduler must drive: the crash and keno
// rounds plus the online player resampler.
func (e *Engine) Rounds() []scheduler.Round {
	stats := scheduler.Every("stats", e.cfg.StatsInterval, e.sampleStats)
	return []scheduler.Round{
		gated{Round: e.crash, gate: &e.gate},
		gated{Round: e.keno, gate: &e.gate},
		gated{Round: stats, gate: &e.gate},
	}
}

func (e *Engine) sampleStats() {
	online := e.cfg.OnlineBase
	if e.cfg.OnlineSpread > 0 {
		online += e.rnd.Intn(e.cfg.OnlineSpread)
	}
	e.ledger.SetOnlinePlayers(online)
	e.sink.Emit(events.Stats, e.ledger.Stats())
}

// Register validates and creates an account, then opens it in the ledger.
// A non-positive initial balance falls back to the configured default.
func (e *Engine) Register(ctx context.Context, username, password string, initial decimal.Decimal) (models.Player, error) {
	username = strings.TrimSpace(username)
	if len(username) < MinUsername {
		return models.Player{}, ErrInvalidUsername
	}
	if len(password) < MinPassword {
		return models.Player{}, ErrInvalidPassword
	}
	if !initial.IsPositive() {
		initial = e.cfg.InitialBalance
	}
	if e.ledger.Has(username) {
		return models.Player{}, ledger.ErrPlayerExists
	}

	p := models.Player{Username: username, Balance: initial}
	if e.accounts != nil {
		existing, err := e.accounts.FindPlayer(ctx, username)
		if err != nil {
			return models.Player{}, fmt.Errorf("find player: %w", err)
		}
		if existing != nil {
			return models.Player{}, ledger.ErrPlayerExists
		}
		acc, err := e.accounts.CreatePlayer(ctx, username, password, initial)
		if err != nil {
			return models.Player{}, fmt.Errorf("create player: %w", err)
		}
		p.ID = acc.ID
		p.CreatedAt = acc.CreatedAt
	}

	e.gate.RLock()
	p, err := e.ledger.Open(p)
	e.gate.RUnlock()
	if err != nil {
		return models.Player{}, err
	}

	log.WithFields(log.Fields{
		"player":  username,
		"balance": initial.StringFixed(2),
	}).Info("player registered")
	e.notify.Notify(username, fmt.Sprintf("Welcome to the casino, %s!", username), events.Success)

	return p, nil
}

// Login checks credentials against the account store. An account that the
// ledger has not seen (e.g. after a reset without snapshot) is opened with
// its registration balance.
func (e *Engine) Login(ctx context.Context, username, password string) (models.Player, error) {
	if e.accounts == nil {
		return models.Player{}, ErrBadCredentials
	}
	acc, err := e.accounts.FindPlayer(ctx, strings.TrimSpace(username))
	if err != nil {
		return models.Player{}, fmt.Errorf("find player: %w", err)
	}
	if acc == nil {
		return models.Player{}, ErrBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)); err != nil {
		return models.Player{}, ErrBadCredentials
	}

	e.gate.RLock()
	defer e.gate.RUnlock()

	if !e.ledger.Has(acc.Username) {
		log.WithField("player", acc.Username).Warn("account missing from ledger, reopening at its initial balance")
		_, err := e.ledger.Open(models.Player{
			ID:        acc.ID,
			Username:  acc.Username,
			Balance:   acc.InitialBalance,
			CreatedAt: acc.CreatedAt,
		})
		if err != nil && !errors.Is(err, ledger.ErrPlayerExists) {
			return models.Player{}, err
		}
	}
	if err := e.ledger.Touch(acc.Username); err != nil {
		return models.Player{}, err
	}
	return e.ledger.Player(acc.Username)
}

func (e *Engine) Deposit(username string, amount decimal.Decimal) (models.Player, error) {
	e.gate.RLock()
	defer e.gate.RUnlock()

	if _, err := e.ledger.Deposit(username, amount); err != nil {
		return models.Player{}, err
	}
	e.notify.Notify(username, fmt.Sprintf("Deposited %s", amount.StringFixed(2)), events.Success)
	return e.ledger.Player(username)
}

func (e *Engine) PlaceBet(player string, panel int, amount decimal.Decimal) (crash.Bet, error) {
	e.gate.RLock()
	defer e.gate.RUnlock()
	return e.crash.PlaceBet(player, panel, amount)
}

func (e *Engine) CashOut(player string, panel int) (crash.Bet, error) {
	e.gate.RLock()
	defer e.gate.RUnlock()
	return e.crash.CashOut(player, panel)
}

func (e *Engine) SelectNumber(player string, n int) ([]int, error) {
	e.gate.RLock()
	defer e.gate.RUnlock()
	return e.keno.SelectNumber(player, n)
}

func (e *Engine) QuickPick(player string) ([]int, error) {
	e.gate.RLock()
	defer e.gate.RUnlock()
	return e.keno.QuickPick(player)
}

func (e *Engine) AddSlip(player string, bet decimal.Decimal) (keno.Slip, error) {
	e.gate.RLock()
	defer e.gate.RUnlock()
	return e.keno.AddSlip(player, bet)
}

func (e *Engine) PlaceAllBets(player string) (decimal.Decimal, error) {
	e.gate.RLock()
	defer e.gate.RUnlock()
	return e.keno.PlaceAllBets(player)
}

func (e *Engine) ClearAllSlips(player string) int {
	e.gate.RLock()
	defer e.gate.RUnlock()
	return e.keno.ClearAllSlips(player)
}

func (e *Engine) Spin(player string, bet decimal.Decimal) (slots.SpinResult, error) {
	e.gate.RLock()
	defer e.gate.RUnlock()
	return e.slots.Spin(player, bet)
}

func (e *Engine) Player(username string) (models.Player, error) {
	return e.ledger.Player(username)
}

// Recent returns the last n casino-wide game records, newest first.
func (e *Engine) Recent(n int) []models.GameRecord {
	if n <= 0 {
		n = DefaultRecent
	}
	return e.ledger.History(n)
}

func (e *Engine) Stats() models.CasinoStats {
	return e.ledger.Stats()
}
