package notify

import (
	"fmt"

	"github.com/avvvet/casino-services/internal/casino/events"
	"github.com/avvvet/casino-services/internal/casino/ledger"
	"github.com/avvvet/casino-services/internal/casino/models"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram sends messages to a fixed set of operator chats.
type Telegram struct {
	bot     sender
	chatIDs []int64
}

func NewTelegram(botToken string, chatIDs []int64) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	return &Telegram{
		bot:     bot,
		chatIDs: chatIDs,
	}, nil
}

// Send delivers message to every chat without waiting for the API.
func (t *Telegram) Send(message string) {
	if t == nil || t.bot == nil {
		return
	}

	for _, chatID := range t.chatIDs {
		go func(cid int64) {
			msg := tgbotapi.NewMessage(cid, message)
			msg.ParseMode = tgbotapi.ModeMarkdown
			if _, err := t.bot.Send(msg); err != nil {
				log.Errorf("Failed to send telegram message to chat %d: %v", cid, err)
			}
		}(chatID)
	}
}

// BigWins is a ledger journal that reports settled games paying at least
// threshold.
type BigWins struct {
	tg        *Telegram
	threshold decimal.Decimal
}

func NewBigWins(tg *Telegram, threshold decimal.Decimal) *BigWins {
	return &BigWins{tg: tg, threshold: threshold}
}

func (b *BigWins) Append(e ledger.Entry) {
	if e.Kind != ledger.EntryRecord || e.Record == nil {
		return
	}
	r := e.Record
	if r.Result != models.ResultWin || r.Winnings.LessThan(b.threshold) {
		return
	}
	b.tg.Send(fmt.Sprintf("*Big win* on %s: *%s* won %s (bet %s, %.2fx)",
		r.Game, r.Player, r.Winnings.StringFixed(2), r.BetAmount.StringFixed(2), r.Multiplier))
}

// Log writes every notification to the service log.
type Log struct{}

func (Log) Notify(player, message string, severity events.Severity) {
	entry := log.WithFields(log.Fields{
		"player":   player,
		"severity": severity,
	})
	switch severity {
	case events.Error:
		entry.Error(message)
	case events.Warning:
		entry.Warn(message)
	default:
		entry.Debug(message)
	}
}

type multi []events.Notifier

func (m multi) Notify(player, message string, severity events.Severity) {
	for _, n := range m {
		n.Notify(player, message, severity)
	}
}

// Multi fans a notification out to each non-nil notifier.
func Multi(ns ...events.Notifier) events.Notifier {
	var m multi
	for _, n := range ns {
		if n != nil {
			m = append(m, n)
		}
	}
	return m
}
