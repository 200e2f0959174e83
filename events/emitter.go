// Package events provides the node's typed pub/sub stream. Collaborators
// (indexer, operator surfaces) subscribe to state changes without being wired
// into the consensus path.
package events

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// EventType labels what happened.
type EventType string

const (
	EventTxAdmitted  EventType = "tx_admitted"
	EventBlockCommit EventType = "block_commit"
	EventPeerUp      EventType = "peer_up"
	EventPeerDown    EventType = "peer_down"
	EventNeedSync    EventType = "need_sync"
)

// Event carries a typed payload emitted after a state change.
type Event struct {
	Type   EventType      `json:"type"`
	Height uint64         `json:"height"`
	Data   map[string]any `json:"data"`
}

// Handler is a callback invoked for matching events.
type Handler func(Event)

// Emitter is a simple pub/sub broker. Subscribe before Emit.
type Emitter struct {
	log      *logrus.Logger
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewEmitter creates an Emitter with no subscribers.
func NewEmitter(log *logrus.Logger) *Emitter {
	return &Emitter{log: log, handlers: make(map[EventType][]Handler)}
}

// Subscribe registers h to be called whenever typ is emitted.
func (e *Emitter) Subscribe(typ EventType, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[typ] = append(e.handlers[typ], h)
}

// Emit delivers ev to all subscribers for ev.Type synchronously. Each handler
// is guarded by panic recovery so a misbehaving subscriber cannot halt block
// production.
func (e *Emitter) Emit(ev Event) {
	e.mu.RLock()
	handlers := e.handlers[ev.Type]
	e.mu.RUnlock()
	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.log.WithFields(logrus.Fields{
						"event":  ev.Type,
						"height": ev.Height,
						"reason": r,
					}).Error("event handler panicked")
				}
			}()
			h(ev)
		}()
	}
}
