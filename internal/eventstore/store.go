// Package eventstore defines the façade this core treats the relay's
// append-only event log as: store and exists. Retention semantics
// (replaceable/ephemeral/parameterised-replaceable/regular kind
// classes) and filter queries belong to the external relay server;
// this package only carries the narrow slice of the
// contract the Packet Handler and Bootstrap Service depend on, plus an
// in-memory implementation for tests and single-process genesis nodes.
package eventstore

import (
	"sync"

	"github.com/agentpay/relaynode/internal/events"
)

// Store is the façade consumed by the Packet Handler (writer) and the
// Bootstrap Service (genesis self-announcement writer).
type Store interface {
	// Store appends event, idempotently keyed by event.ID: storing the
	// same id twice is a no-op, not an error.
	Store(event *events.WireEvent) error

	// Exists reports whether an event with the given id has already
	// been stored.
	Exists(id string) bool
}

// MemStore is a minimal in-memory Store, sufficient for tests and for
// a genesis node's self-announcement. It is not
// a substitute for the real relay server, which also serves filtered
// queries to other peers.
type MemStore struct {
	mu     sync.RWMutex
	events map[string]*events.WireEvent
	order  []string
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{events: make(map[string]*events.WireEvent)}
}

func (m *MemStore) Store(event *events.WireEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.events[event.ID]; ok {
		return nil
	}
	m.events[event.ID] = event
	m.order = append(m.order, event.ID)
	return nil
}

func (m *MemStore) Exists(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.events[id]
	return ok
}

// All returns every stored event in insertion order. Test-only helper,
// not part of the Store interface — the real relay offers filtered
// queries instead.
func (m *MemStore) All() []*events.WireEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*events.WireEvent, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.events[id])
	}
	return out
}

// ByKind filters All() by event kind, matching what scenario S6 needs
// to assert "exactly one peer-info event" landed in the store.
func (m *MemStore) ByKind(kind int) []*events.WireEvent {
	var out []*events.WireEvent
	for _, e := range m.All() {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}
