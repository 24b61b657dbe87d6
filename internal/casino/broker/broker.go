package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/avvvet/casino-services/internal/casino/crash"
	"github.com/avvvet/casino-services/internal/casino/engine"
	"github.com/avvvet/casino-services/internal/casino/events"
	"github.com/avvvet/casino-services/internal/casino/keno"
	"github.com/avvvet/casino-services/internal/casino/models"
	"github.com/avvvet/casino-services/internal/casino/slots"
	"github.com/avvvet/casino-services/internal/comm"
	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

var errNoUser = errors.New("command requires an authenticated user")

type Publisher interface {
	Publish(subject string, data []byte) error
}

// Casino is the engine surface reachable over the bus.
type Casino interface {
	Register(ctx context.Context, username, password string, initial decimal.Decimal) (models.Player, error)
	Login(ctx context.Context, username, password string) (models.Player, error)
	Deposit(username string, amount decimal.Decimal) (models.Player, error)
	PlaceBet(player string, panel int, amount decimal.Decimal) (crash.Bet, error)
	CashOut(player string, panel int) (crash.Bet, error)
	SelectNumber(player string, n int) ([]int, error)
	QuickPick(player string) ([]int, error)
	AddSlip(player string, bet decimal.Decimal) (keno.Slip, error)
	PlaceAllBets(player string) (decimal.Decimal, error)
	ClearAllSlips(player string) int
	Spin(player string, bet decimal.Decimal) (slots.SpinResult, error)
	View(username string) (engine.View, error)
	Player(username string) (models.Player, error)
}

// Broker is the engine's NATS face: it is the engine's event sink and
// notifier, and it executes player commands relayed by the socket service.
type Broker struct {
	Conn   Publisher
	Casino Casino
}

func NewBroker(conn Publisher) *Broker {
	return &Broker{Conn: conn}
}

// Emit broadcasts a round event to every socket.
func (b *Broker) Emit(eventType string, data any) {
	payload, err := comm.Envelope(eventType, "", "", data)
	if err != nil {
		log.Errorf("Error [Emit] unable to marshal %s event: %s", eventType, err)
		return
	}
	b.Publish(comm.SubjectEvents, payload)
}

// Notify routes a message to one player, or to everyone when player is
// empty. A targeted notification is followed by the player's balance since
// most of them report a settlement.
func (b *Broker) Notify(player, message string, severity events.Severity) {
	n := comm.NewNotification(message, string(severity))
	if player == "" {
		payload, err := comm.Envelope(comm.TypeNotification, "", "", n)
		if err != nil {
			log.Errorf("Error [Notify] %s", err)
			return
		}
		b.Publish(comm.SubjectEvents, payload)
		return
	}

	b.publishToPlayer(player, "", comm.TypeNotification, n)
	b.PublishBalance(player, "")
}

func (b *Broker) PublishBalance(player, socketId string) {
	if b.Casino == nil {
		return
	}
	p, err := b.Casino.Player(player)
	if err != nil {
		return
	}
	b.publishToPlayer(player, socketId, comm.TypeBalance, comm.PlayerData{
		Username: p.Username,
		Balance:  p.Balance.StringFixed(2),
	})
}

func (b *Broker) publishToPlayer(player, socketId, msgType string, v any) {
	payload, err := comm.Envelope(msgType, player, socketId, v)
	if err != nil {
		log.Errorf("Error [publishToPlayer] unable to marshal %s for %s: %s", msgType, player, err)
		return
	}
	b.Publish(comm.PlayerSubject(player), payload)
}

func (b *Broker) Publish(topic string, payload []byte) error {
	err := b.Conn.Publish(topic, payload)
	if err != nil {
		log.Errorf("Error publishing to topic %s: %s", topic, err)
		return err
	}

	return nil
}

// handles message coming from socket
func (b *Broker) handleMessage(msgNat *nats.Msg) {
	msg := &comm.WSMessage{}
	if err := json.Unmarshal(msgNat.Data, msg); err != nil {
		log.Errorf("Error nats message %s", err)
		return
	}
	b.Handle(msg)
}

// Handle executes one command and answers the issuing player.
func (b *Broker) Handle(msg *comm.WSMessage) {
	user := msg.User
	data, err := b.execute(msg)

	if (msg.Type == comm.CmdRegister || msg.Type == comm.CmdLogin) && err == nil {
		if p, ok := data.(models.Player); ok {
			user = p.Username
		}
	}
	if user == "" {
		if err != nil {
			log.WithField("type", msg.Type).Errorf("Error [Handle] %s", err)
		}
		return
	}

	resp := comm.CommandResponse{Command: msg.Type, OK: err == nil, Data: data}
	if err != nil {
		resp.Error = err.Error()
		resp.Data = nil
	}
	b.publishToPlayer(user, msg.SocketId, comm.TypeCommandResponse, resp)
	if err == nil && msg.Type != comm.CmdGetState {
		b.PublishBalance(user, msg.SocketId)
	}
}

func decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("malformed payload: %w", err)
	}
	return v, nil
}

func (b *Broker) execute(msg *comm.WSMessage) (any, error) {
	switch msg.Type {
	case comm.CmdRegister, comm.CmdLogin:
		req, err := decode[comm.Register](msg.Data)
		if err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if msg.Type == comm.CmdLogin {
			return b.Casino.Login(ctx, req.Username, req.Password)
		}
		return b.Casino.Register(ctx, req.Username, req.Password, req.InitialBalance)
	}

	user := msg.User
	if user == "" {
		return nil, errNoUser
	}

	switch msg.Type {
	case comm.CmdDeposit:
		req, err := decode[comm.Amount](msg.Data)
		if err != nil {
			return nil, err
		}
		return b.Casino.Deposit(user, req.Amount)
	case comm.CmdCrashBet:
		req, err := decode[comm.PanelBet](msg.Data)
		if err != nil {
			return nil, err
		}
		return b.Casino.PlaceBet(user, req.Panel, req.Amount)
	case comm.CmdCrashCashout:
		req, err := decode[comm.Panel](msg.Data)
		if err != nil {
			return nil, err
		}
		return b.Casino.CashOut(user, req.Panel)
	case comm.CmdKenoSelect:
		req, err := decode[comm.Number](msg.Data)
		if err != nil {
			return nil, err
		}
		return b.Casino.SelectNumber(user, req.Number)
	case comm.CmdKenoQuickPick:
		return b.Casino.QuickPick(user)
	case comm.CmdKenoAddSlip:
		req, err := decode[comm.Amount](msg.Data)
		if err != nil {
			return nil, err
		}
		return b.Casino.AddSlip(user, req.Amount)
	case comm.CmdKenoPlace:
		return b.Casino.PlaceAllBets(user)
	case comm.CmdKenoClear:
		return b.Casino.ClearAllSlips(user), nil
	case comm.CmdSlotsSpin:
		req, err := decode[comm.Amount](msg.Data)
		if err != nil {
			return nil, err
		}
		return b.Casino.Spin(user, req.Amount)
	case comm.CmdGetState:
		return b.Casino.View(user)
	default:
		return nil, fmt.Errorf("unknown command %q", msg.Type)
	}
}

// consume message from socket service
func (b *Broker) SubscribSocketService(nc *nats.Conn, topic string) (*nats.Subscription, error) {
	sub, err := nc.Subscribe(topic, b.handleMessage)
	if err != nil {
		return nil, err
	}

	return sub, nil
}
