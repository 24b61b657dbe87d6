// Package robot drives house players that keep the tables busy. Robots
// speak the same NATS commands as socket clients.
package robot

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/avvvet/casino-services/internal/casino/crash"
	"github.com/avvvet/casino-services/internal/casino/events"
	"github.com/avvvet/casino-services/internal/casino/rng"
	"github.com/avvvet/casino-services/internal/comm"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const (
	Password = "robot-pass"
	SocketId = "robot"
)

var (
	stakes      = []int64{10, 25, 50, 100}
	topUpBelow  = decimal.NewFromInt(200)
	topUpAmount = decimal.NewFromInt(1000)
)

type Publisher interface {
	Publish(subject string, data []byte) error
}

type Config struct {
	Count      int
	CrashOdds  float64 // chance a robot bets in a crash round
	KenoOdds   float64 // chance a robot plays a keno draw
	MinTarget  float64
	MaxTarget  float64
	NamePrefix string
}

func DefaultConfig() Config {
	return Config{
		Count:      5,
		CrashOdds:  0.6,
		KenoOdds:   0.5,
		MinTarget:  1.1,
		MaxTarget:  3.0,
		NamePrefix: "robot_",
	}
}

// Fleet is every robot in the process.
type Fleet struct {
	cfg   Config
	pub   Publisher
	rnd   rng.RandomSource
	names []string

	mu      sync.Mutex
	targets map[seat]float64 // cashout multiplier per open bet
}

type seat struct {
	name  string
	panel int
}

func NewFleet(cfg Config, pub Publisher, rnd rng.RandomSource) *Fleet {
	names := make([]string, cfg.Count)
	for i := range names {
		names[i] = fmt.Sprintf("%s%02d", cfg.NamePrefix, i+1)
	}
	return &Fleet{
		cfg:     cfg,
		pub:     pub,
		rnd:     rnd,
		names:   names,
		targets: make(map[seat]float64),
	}
}

func (f *Fleet) Names() []string { return f.names }

// Register asks the casino to open every robot account, then logs each
// robot in so accounts kept from an earlier run are loaded too.
func (f *Fleet) Register() {
	for _, name := range f.names {
		creds := comm.Register{Username: name, Password: Password}
		f.send(comm.CmdRegister, "", creds)
		f.send(comm.CmdLogin, "", creds)
	}
	log.Infof("registration sent for %d robots", len(f.names))
}

// HandleEvent reacts to a casino.events broadcast.
func (f *Fleet) HandleEvent(data []byte) {
	var m comm.WSMessage
	if err := json.Unmarshal(data, &m); err != nil {
		log.Errorf("robot: invalid event: %v", err)
		return
	}

	switch m.Type {
	case events.CrashBetting:
		f.betCrash()
	case events.CrashTick:
		var tick crash.TickEvent
		if err := json.Unmarshal(m.Data, &tick); err != nil {
			log.Errorf("robot: invalid crash tick: %v", err)
			return
		}
		f.cashOut(tick.Multiplier)
	case events.CrashCrashed:
		f.mu.Lock()
		f.targets = make(map[seat]float64)
		f.mu.Unlock()
	case events.KenoCollecting:
		f.playKeno()
	}
}

// HandlePlayer reacts to a casino.player.<name> message. Robots running low
// top themselves up.
func (f *Fleet) HandlePlayer(subject string, data []byte) {
	name := strings.TrimPrefix(subject, "casino.player.")
	if !f.owns(name) {
		return
	}
	var m comm.WSMessage
	if err := json.Unmarshal(data, &m); err != nil || m.Type != comm.TypeBalance {
		return
	}
	var pd comm.PlayerData
	if err := json.Unmarshal(m.Data, &pd); err != nil {
		return
	}
	balance, err := decimal.NewFromString(pd.Balance)
	if err != nil || balance.GreaterThanOrEqual(topUpBelow) {
		return
	}
	log.Infof("robot %s balance %s, topping up", name, pd.Balance)
	f.send(comm.CmdDeposit, name, comm.Amount{Amount: topUpAmount})
}

func (f *Fleet) betCrash() {
	for _, name := range f.names {
		if f.rnd.Float64() >= f.cfg.CrashOdds {
			continue
		}
		panel := crash.Panel1 + f.rnd.Intn(2)
		amount := decimal.NewFromInt(stakes[f.rnd.Intn(len(stakes))])
		target := rng.Uniform(f.rnd, f.cfg.MinTarget, f.cfg.MaxTarget)

		f.mu.Lock()
		f.targets[seat{name, panel}] = target
		f.mu.Unlock()

		f.send(comm.CmdCrashBet, name, comm.PanelBet{Panel: panel, Amount: amount})
	}
}

func (f *Fleet) cashOut(multiplier float64) {
	f.mu.Lock()
	var due []seat
	for s, target := range f.targets {
		if multiplier >= target {
			due = append(due, s)
			delete(f.targets, s)
		}
	}
	f.mu.Unlock()

	for _, s := range due {
		f.send(comm.CmdCrashCashout, s.name, comm.Panel{Panel: s.panel})
	}
}

func (f *Fleet) playKeno() {
	for _, name := range f.names {
		if f.rnd.Float64() >= f.cfg.KenoOdds {
			continue
		}
		f.send(comm.CmdKenoQuickPick, name, nil)
		f.send(comm.CmdKenoAddSlip, name, comm.Amount{Amount: decimal.NewFromInt(stakes[f.rnd.Intn(len(stakes))])})
		f.send(comm.CmdKenoPlace, name, nil)
	}
}

func (f *Fleet) owns(name string) bool {
	for _, n := range f.names {
		if n == name {
			return true
		}
	}
	return false
}

func (f *Fleet) send(cmd, user string, v any) {
	var data json.RawMessage
	if v != nil {
		raw, err := json.Marshal(v)
		if err != nil {
			log.Errorf("robot: marshal %s: %v", cmd, err)
			return
		}
		data = raw
	}
	payload, err := json.Marshal(comm.WSMessage{Type: cmd, Data: data, SocketId: SocketId, User: user})
	if err != nil {
		log.Errorf("robot: marshal %s: %v", cmd, err)
		return
	}
	if err := f.pub.Publish(comm.SubjectCommands, payload); err != nil {
		log.Errorf("robot %s: publish %s: %v", user, cmd, err)
	}
}
