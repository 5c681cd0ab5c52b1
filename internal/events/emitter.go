package events

import (
	"bufio"
	"io"
	"log/slog"
	"sync"
)

// A Sink receives the events of a run.
type Sink interface {
	Emit(ev Event)
}

// Emitter writes every event as one JSON line and flushes after each line so
// that a supervising process sees events as they happen.
type Emitter struct {
	mu     sync.Mutex
	w      *bufio.Writer
	logger *slog.Logger
}

func NewEmitter(w io.Writer) *Emitter {
	return &Emitter{
		w:      bufio.NewWriter(w),
		logger: slog.With(slog.String("component", "emitter")),
	}
}

func (e *Emitter) Emit(ev Event) {
	b, err := encode(ev)
	if err != nil {
		e.logger.Error("failed to encode event", slog.String("type", string(ev.Kind())), slog.String("err", err.Error()))
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.w.Write(b)
	e.w.WriteByte('\n')
	if err := e.w.Flush(); err != nil {
		e.logger.Error("failed to write event", slog.String("err", err.Error()))
	}
}

// Recorder keeps the events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfKind returns the recorded events of kind k in order.
func (r *Recorder) OfKind(k Kind) []Event {
	var out []Event
	for _, ev := range r.Events() {
		if ev.Kind() == k {
			out = append(out, ev)
		}
	}
	return out
}
