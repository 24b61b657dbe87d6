package comm

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type WSMessage struct {
	Type     string          `json:"type"` // e.g. "init", "crash-bet"
	Data     json.RawMessage `json:"data"`
	SocketId string          `json:"socketid"`
	User     string          `json:"user,omitempty"` // set by the socket service, never by clients
}

// NATS subjects.
const (
	SubjectEvents   = "casino.events"
	SubjectCommands = "socket.service"
	SubjectPlayers  = "casino.player.*"
)

func PlayerSubject(user string) string {
	return "casino.player." + user
}

// Inbound command types.
const (
	CmdInit          = "init"
	CmdRegister      = "register"
	CmdLogin         = "login"
	CmdDeposit       = "deposit"
	CmdCrashBet      = "crash-bet"
	CmdCrashCashout  = "crash-cashout"
	CmdKenoSelect    = "keno-select"
	CmdKenoQuickPick = "keno-quickpick"
	CmdKenoAddSlip   = "keno-add-slip"
	CmdKenoPlace     = "keno-place"
	CmdKenoClear     = "keno-clear"
	CmdSlotsSpin     = "slots-spin"
	CmdGetState      = "get-state"
)

// Outbound per-player message types.
const (
	TypeNotification    = "notification"
	TypeBalance         = "balance"
	TypeCommandResponse = "command-response"
	TypeInitResponse    = "init-response"
	TypeError           = "error"
)

type Init struct {
	Token string `json:"token"`
}

type Register struct {
	Username       string          `json:"username"`
	Password       string          `json:"password"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
}

type Amount struct {
	Amount decimal.Decimal `json:"amount"`
}

type PanelBet struct {
	Panel  int             `json:"panel"`
	Amount decimal.Decimal `json:"amount"`
}

type Panel struct {
	Panel int `json:"panel"`
}

type Number struct {
	Number int `json:"number"`
}

type CommandResponse struct {
	Command string `json:"command"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type Notification struct {
	Message   string `json:"message"`
	Severity  string `json:"severity"`
	Timestamp int64  `json:"timestamp"`
}

type PlayerData struct {
	Username string `json:"username"`
	Balance  string `json:"balance"`
}

// CallMessage is one revealed keno number with every number revealed so far.
type CallMessage struct {
	Draw    int64 `json:"draw"`
	Number  int   `json:"number"`
	History []int `json:"history"`
}

// Envelope wraps v as the Data of a WSMessage and marshals the result.
func Envelope(msgType, user, socketId string, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(&WSMessage{
		Type:     msgType,
		Data:     data,
		SocketId: socketId,
		User:     user,
	})
}

func NewNotification(message, severity string) Notification {
	return Notification{Message: message, Severity: severity, Timestamp: time.Now().UnixMilli()}
}
