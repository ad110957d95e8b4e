package wire

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sirrobot01/pakscan/internal/utils"
	"github.com/sirrobot01/pakscan/pkg/pakhash"
)

type EventKind string

const (
	EventStart      EventKind = "start"
	EventProgress   EventKind = "progress"
	EventResult     EventKind = "result"
	EventEntryError EventKind = "entry_error"
	EventNoResults  EventKind = "no_results"
	EventDone       EventKind = "done"
	EventFailed     EventKind = "failed"
)

// Event reports progress of a single container. Which fields are set depends
// on Kind.
type Event struct {
	RunID  string          `json:"run_id,omitempty"`
	Kind   EventKind       `json:"kind"`
	Name   string          `json:"name"`
	URL    string          `json:"url,omitempty"`
	Bytes  int64           `json:"bytes,omitempty"`
	Total  int64           `json:"total,omitempty"` // -1 when the size is unknown
	Speed  int64           `json:"speed,omitempty"`
	Result *pakhash.Result `json:"result,omitempty"`
	Err    error           `json:"-"`
	Time   time.Time       `json:"time"`
}

type Sink interface {
	Emit(Event)
}

type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) {
	f(e)
}

type discard struct{}

func (discard) Emit(Event) {}

// Discard drops every event.
var Discard Sink = discard{}

// MultiSink fans events out to every sink in order.
type MultiSink []Sink

func (m MultiSink) Emit(e Event) {
	for _, s := range m {
		s.Emit(e)
	}
}

// LogSink renders events as console lines. Entry errors are only shown when
// ShowErrors is set.
type LogSink struct {
	Logger     zerolog.Logger
	ShowErrors bool
}

func (l *LogSink) Emit(e Event) {
	switch e.Kind {
	case EventStart:
		l.Logger.Info().Msgf("Processing %s", e.Name)
	case EventProgress:
		if e.Total > 0 {
			l.Logger.Debug().Msgf("%s: %s of %s (%s)", e.Name, utils.FormatSize(e.Bytes), utils.FormatSize(e.Total), utils.FormatSpeed(e.Speed))
		} else {
			l.Logger.Debug().Msgf("%s: %s (%s)", e.Name, utils.FormatSize(e.Bytes), utils.FormatSpeed(e.Speed))
		}
	case EventResult:
		if e.Result != nil {
			l.Logger.Info().Msgf("%s %s", e.Result.Name, e.Result.Digest)
		}
	case EventEntryError:
		if l.ShowErrors {
			l.Logger.Warn().Err(e.Err).Msgf("Skipped entry in %s", e.Name)
		}
	case EventNoResults:
		l.Logger.Info().Msgf("No hashes found in %s", e.Name)
	case EventDone:
		l.Logger.Debug().Msgf("Finished %s (%s read)", e.Name, utils.FormatSize(e.Bytes))
	case EventFailed:
		l.Logger.Error().Err(e.Err).Msgf("Failed %s", e.Name)
	}
}

// Recorder keeps every event it receives. It is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Kinds returns the kinds of the recorded events for one container, in order.
func (r *Recorder) Kinds(name string) []EventKind {
	var kinds []EventKind
	for _, e := range r.Events() {
		if e.Name == name && e.Kind != EventProgress {
			kinds = append(kinds, e.Kind)
		}
	}
	return kinds
}
