package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/avvvet/casino-services/internal/comm"
	"github.com/go-chi/jwtauth"
	log "github.com/sirupsen/logrus"
)

var (
	errNotInitialized = errors.New("socket is not initialized, send init with a token first")
	errBadToken       = errors.New("invalid or expired token")
	errUnknownCommand = errors.New("unknown command")
	errUseHTTP        = errors.New("register and login over the HTTP API")
)

// commands the gateway forwards to the casino service.
var commands = map[string]bool{
	comm.CmdDeposit:       true,
	comm.CmdCrashBet:      true,
	comm.CmdCrashCashout:  true,
	comm.CmdKenoSelect:    true,
	comm.CmdKenoQuickPick: true,
	comm.CmdKenoAddSlip:   true,
	comm.CmdKenoPlace:     true,
	comm.CmdKenoClear:     true,
	comm.CmdSlotsSpin:     true,
	comm.CmdGetState:      true,
}

type Publisher interface {
	Publish(topic string, payload []byte) error
}

// Conn is the part of *websocket.Conn the gateway writes through.
type Conn interface {
	WriteJSON(v interface{}) error
	Close() error
}

type client struct {
	mu   sync.Mutex // gorilla allows one concurrent writer
	conn Conn
	user string
}

func (c *client) write(m *comm.WSMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(m)
}

type Ws struct {
	connMap sync.Map // socketId -> *client

	mu    sync.RWMutex
	users map[string]map[string]struct{} // username -> socketIds

	tokenAuth *jwtauth.JWTAuth
	Broker    Publisher
}

func NewWs(tokenAuth *jwtauth.JWTAuth) *Ws {
	return &Ws{
		users:     make(map[string]map[string]struct{}),
		tokenAuth: tokenAuth,
	}
}

// handle socket message from web clients
func (s *Ws) SocketMessage(socketId string, message *comm.WSMessage) {
	switch {
	case message.Type == comm.CmdInit:
		s.handleInit(socketId, message)
	case message.Type == comm.CmdRegister, message.Type == comm.CmdLogin:
		s.SendError(socketId, errUseHTTP)
	case commands[message.Type]:
		s.forward(socketId, message)
	default:
		log.Warnf("unknown event received: %s", message.Type)
		s.SendError(socketId, errUnknownCommand)
	}
}

func (s *Ws) handleInit(socketId string, msg *comm.WSMessage) {
	var payload comm.Init
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		log.Errorf("Error: invalid_init_data Malformed init payload %s", err)
		s.SendError(socketId, errBadToken)
		return
	}

	user, err := s.authenticate(payload.Token)
	if err != nil {
		log.Warnf("init rejected for socket %s: %v", socketId, err)
		s.SendError(socketId, errBadToken)
		return
	}
	if !s.bind(socketId, user) {
		return
	}

	data, _ := json.Marshal(comm.PlayerData{Username: user})
	s.Send(socketId, &comm.WSMessage{Type: comm.TypeInitResponse, Data: data, SocketId: socketId, User: user})

	// fresh state for the new socket
	s.forward(socketId, &comm.WSMessage{Type: comm.CmdGetState})

	log.Infof("socket %s bound to player %s", socketId, user)
}

func (s *Ws) authenticate(token string) (string, error) {
	if token == "" {
		return "", errBadToken
	}
	tok, err := s.tokenAuth.Decode(token)
	if err != nil {
		return "", err
	}
	if exp := tok.Expiration(); !exp.IsZero() && time.Now().After(exp) {
		return "", errBadToken
	}
	if tok.Subject() == "" {
		return "", errBadToken
	}
	return tok.Subject(), nil
}

// forward publishes a command for the socket's player. User and SocketId
// are always set here, never taken from the client.
func (s *Ws) forward(socketId string, msg *comm.WSMessage) {
	user, ok := s.User(socketId)
	if !ok {
		s.SendError(socketId, errNotInitialized)
		return
	}

	msg.SocketId = socketId
	msg.User = user

	bytes, err := json.Marshal(msg)
	if err != nil {
		log.Errorf("Failed to marshal WSMessage for NATS: %v", err)
		return
	}
	if err := s.Broker.Publish(comm.SubjectCommands, bytes); err != nil {
		log.Errorf("Failed to publish to NATS topic %s: %v", comm.SubjectCommands, err)
		s.SendError(socketId, err)
	}
}

func (s *Ws) bind(socketId, user string) bool {
	c, ok := s.client(socketId)
	if !ok {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c.user != "" && c.user != user {
		delete(s.users[c.user], socketId)
		if len(s.users[c.user]) == 0 {
			delete(s.users, c.user)
		}
	}
	c.user = user
	if s.users[user] == nil {
		s.users[user] = make(map[string]struct{})
	}
	s.users[user][socketId] = struct{}{}
	return true
}

func (s *Ws) StoreConnection(socketId string, conn Conn) {
	s.connMap.Store(socketId, &client{conn: conn})
}

func (s *Ws) client(socketId string) (*client, bool) {
	c, ok := s.connMap.Load(socketId)
	if !ok {
		return nil, false
	}
	return c.(*client), true
}

// User returns the player bound to the socket.
func (s *Ws) User(socketId string) (string, bool) {
	c, ok := s.client(socketId)
	if !ok {
		return "", false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return c.user, c.user != ""
}

func (s *Ws) UserSockets(user string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.users[user]))
	for id := range s.users[user] {
		ids = append(ids, id)
	}
	return ids
}

func (s *Ws) HandleDisconnect(socketId string) {
	c, ok := s.client(socketId)
	if !ok {
		return
	}
	s.connMap.Delete(socketId)
	c.conn.Close()

	s.mu.Lock()
	if c.user != "" {
		delete(s.users[c.user], socketId)
		if len(s.users[c.user]) == 0 {
			delete(s.users, c.user)
		}
	}
	s.mu.Unlock()
}

// send socket message to the web client
func (s *Ws) Send(socketId string, m *comm.WSMessage) {
	c, ok := s.client(socketId)
	if !ok {
		return
	}
	if err := c.write(m); err != nil {
		log.Errorf("write to socket %s: %v", socketId, err)
	}
}

func (s *Ws) SendError(socketId string, err error) {
	data, _ := json.Marshal(map[string]string{"error": err.Error()})
	s.Send(socketId, &comm.WSMessage{Type: comm.TypeError, Data: data, SocketId: socketId})
}

// SendToUser delivers to the addressed socket when it belongs to user,
// otherwise to every socket of user.
func (s *Ws) SendToUser(user string, m *comm.WSMessage) {
	sockets := s.UserSockets(user)
	if m.SocketId != "" {
		for _, id := range sockets {
			if id == m.SocketId {
				s.Send(id, m)
				return
			}
		}
	}
	for _, id := range sockets {
		s.Send(id, m)
	}
}

func (s *Ws) Broadcast(m *comm.WSMessage) {
	s.connMap.Range(func(key, value any) bool {
		if err := value.(*client).write(m); err != nil {
			log.Errorf("broadcast to socket %s: %v", key, err)
		}
		return true
	})
}
