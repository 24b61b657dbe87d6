package broker

import (
	"encoding/json"
	"strings"

	"github.com/avvvet/casino-services/internal/comm"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

// Sockets delivers relayed casino messages to web clients.
type Sockets interface {
	Broadcast(m *comm.WSMessage)
	SendToUser(user string, m *comm.WSMessage)
}

type Broker struct {
	Conn    *nats.Conn
	Sockets Sockets
}

func NewBroker(conn *nats.Conn, sockets Sockets) *Broker {
	return &Broker{
		Conn:    conn,
		Sockets: sockets,
	}
}

// consume message from casino service
func (b *Broker) Subscribe(topic string) (*nats.Subscription, error) {
	sub, err := b.Conn.Subscribe(topic, b.handleMessages)
	if err != nil {
		return nil, err
	}

	return sub, nil
}

// publish message to casino service
func (b *Broker) Publish(topic string, payload []byte) error {
	err := b.Conn.Publish(topic, payload)
	if err != nil {
		log.Errorf("Error publishing to topic %s: %s", topic, err)
		return err
	}

	return nil
}

func (b *Broker) handleMessages(msgNats *nats.Msg) {
	b.Relay(msgNats.Subject, msgNats.Data)
}

// Relay routes a casino message: broadcast subjects go to every socket,
// casino.player.<user> only to that player's sockets.
func (b *Broker) Relay(subject string, data []byte) {
	message := &comm.WSMessage{}
	if err := json.Unmarshal(data, message); err != nil {
		log.Errorf("Error relaying %s: %s", subject, err)
		return
	}

	if user, ok := strings.CutPrefix(subject, "casino.player."); ok {
		if user == "" {
			return
		}
		b.Sockets.SendToUser(user, message)
		return
	}
	b.Sockets.Broadcast(message)
}
