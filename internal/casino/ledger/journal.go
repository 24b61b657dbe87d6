package ledger

import (
	"time"

	"github.com/avvvet/casino-services/internal/casino/models"
	"github.com/shopspring/decimal"
)

type EntryKind string

const (
	EntryDebit   EntryKind = "debit"
	EntryCredit  EntryKind = "credit"
	EntryRecord  EntryKind = "record"
	EntryDeposit EntryKind = "deposit"
)

// Entry describes one committed mutation. Balance is the balance after it.
type Entry struct {
	Kind    EntryKind
	Player  string
	Amount  decimal.Decimal
	Record  *models.GameRecord
	Balance decimal.Decimal
	At      time.Time
}

type multiJournal []Journal

func (m multiJournal) Append(e Entry) {
	for _, j := range m {
		j.Append(e)
	}
}

// Journals fans every entry out to each non-nil journal in order.
func Journals(js ...Journal) Journal {
	var m multiJournal
	for _, j := range js {
		if j != nil {
			m = append(m, j)
		}
	}
	return m
}
