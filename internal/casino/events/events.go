package events

import "sync"

type Severity string

const (
	Info    Severity = "info"
	Success Severity = "success"
	Warning Severity = "warning"
	Error   Severity = "error"
)

// Broadcast event types.
const (
	CrashBetting   = "crash-betting"
	CrashCountdown = "crash-countdown"
	CrashBet       = "crash-bet"
	CrashStarted   = "crash-started"
	CrashTick      = "crash-tick"
	CrashCashout   = "crash-cashout"
	CrashCrashed   = "crash-crashed"
	KenoCountdown  = "keno-countdown"
	KenoSkipped    = "keno-skipped"
	KenoDrawn      = "keno-drawn"
	KenoCall       = "keno-call"
	KenoSettled    = "keno-settled"
	KenoCollecting = "keno-collecting"
	SlotsSpun      = "slots-spun"
	Stats          = "stats"
)

// Sink receives state-change events for presentation layers.
type Sink interface {
	Emit(eventType string, data any)
}

// Notifier delivers best-effort messages. An empty player means everyone.
// Implementations must return quickly and never fail the caller.
type Notifier interface {
	Notify(player, message string, severity Severity)
}

type Discard struct{}

func (Discard) Emit(string, any)                {}
func (Discard) Notify(string, string, Severity) {}

type Event struct {
	Type string
	Data any
}

type Note struct {
	Player   string
	Message  string
	Severity Severity
}

// Recorder keeps everything it receives.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	notes  []Note
}

func (r *Recorder) Emit(eventType string, data any) {
	r.mu.Lock()
	r.events = append(r.events, Event{Type: eventType, Data: data})
	r.mu.Unlock()
}

func (r *Recorder) Notify(player, message string, severity Severity) {
	r.mu.Lock()
	r.notes = append(r.notes, Note{Player: player, Message: message, Severity: severity})
	r.mu.Unlock()
}

func (r *Recorder) Events(eventType string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if eventType == "" || e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (r *Recorder) Notes() []Note {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Note(nil), r.notes...)
}
