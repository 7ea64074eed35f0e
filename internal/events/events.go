// Package events carries execution lifecycle notifications to whoever
// presents them.
package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

type Type string

const (
	Started   Type = "started"
	Progress  Type = "progress"
	Completed Type = "completed"
	Failed    Type = "failed"
)

type Event struct {
	Type        Type
	ExecutionID string
	ProjectID   string
	Entity      string
	Status      string
	Message     string
	Time        time.Time
}

type Emitter interface {
	Emit(Event)
}

// LogEmitter writes every event to the global logger.
type LogEmitter struct{}

func (LogEmitter) Emit(e Event) {
	ev := log.Info()
	if e.Type == Progress {
		ev = log.Debug()
	}
	if e.Type == Failed {
		ev = log.Warn()
	}
	ev.Str("execution", e.ExecutionID).
		Str("entity", e.Entity).
		Str("event", string(e.Type)).
		Msg(e.Message)
}

// Broadcaster fans events out to subscribers. A subscriber that cannot
// keep up misses events rather than blocking the execution.
type Broadcaster struct {
	mu   sync.Mutex
	next int
	subs map[int]chan Event
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: map[int]chan Event{}}
}

func (b *Broadcaster) Subscribe(buffer int) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	ch := make(chan Event, buffer)
	b.subs[id] = ch
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}
}

func (b *Broadcaster) Emit(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Multi emits to each emitter in turn.
type Multi []Emitter

func (m Multi) Emit(e Event) {
	for _, em := range m {
		em.Emit(e)
	}
}
