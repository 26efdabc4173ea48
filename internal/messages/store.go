package messages

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"polyglot/internal/observable"
)

var (
	ErrAlreadyExists  = errors.New("messages: message already exists")
	ErrInvalidMessage = errors.New("messages: message id is required")
	ErrIDMismatch     = errors.New("messages: data id does not match where id")
)

// Filter selects a message by id.
type Filter struct {
	ID string
}

// Snapshot is the message list published after a mutation. Version grows
// with every mutation; the messages are shared and must be treated as
// read-only.
type Snapshot struct {
	Messages []Message
	Version  uint64
}

// Store is the authoritative message collection. Mutations apply
// synchronously; subscribers are notified through the dispatcher in
// mutation order.
type Store struct {
	pubMu sync.Mutex

	mu      sync.RWMutex
	order   []string
	byID    map[string]Message
	version uint64

	changes *observable.Observable[Snapshot]
}

// NewStore seeds a store with initial. Later duplicates of an id replace
// earlier ones in place.
func NewStore(initial []Message, dispatcher observable.Dispatcher) *Store {
	s := &Store{byID: make(map[string]Message, len(initial))}
	for _, m := range initial {
		if strings.TrimSpace(m.ID) == "" {
			continue
		}
		if _, ok := s.byID[m.ID]; !ok {
			s.order = append(s.order, m.ID)
		}
		s.byID[m.ID] = m.Clone()
	}
	s.changes = observable.New(Snapshot{Messages: s.listLocked()}, dispatcher)
	return s
}

// GetAll returns copies of all messages in insertion order.
func (s *Store) GetAll() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id].Clone())
	}
	return out
}

// Get returns a copy of the message matching f.
func (s *Store) Get(f Filter) (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.byID[f.ID]
	if !ok {
		return Message{}, false
	}
	return m.Clone(), true
}

// Len returns the number of messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Version is bumped by every mutation.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Create inserts m. It fails without mutating the store if the id exists.
func (s *Store) Create(m Message) error {
	if strings.TrimSpace(m.ID) == "" {
		return ErrInvalidMessage
	}
	return s.mutate(func() error {
		if _, ok := s.byID[m.ID]; ok {
			return fmt.Errorf("create %q: %w", m.ID, ErrAlreadyExists)
		}
		s.order = append(s.order, m.ID)
		s.byID[m.ID] = m.Clone()
		return nil
	})
}

// Upsert inserts data under where.ID, or replaces the existing record in
// full. An empty data.ID takes where.ID.
func (s *Store) Upsert(where Filter, data Message) error {
	if strings.TrimSpace(where.ID) == "" {
		return ErrInvalidMessage
	}
	if data.ID == "" {
		data.ID = where.ID
	}
	if data.ID != where.ID {
		return fmt.Errorf("upsert %q with data %q: %w", where.ID, data.ID, ErrIDMismatch)
	}
	return s.mutate(func() error {
		if _, ok := s.byID[where.ID]; !ok {
			s.order = append(s.order, where.ID)
		}
		s.byID[where.ID] = data.Clone()
		return nil
	})
}

// Delete removes the message matching where. Missing ids are a no-op.
func (s *Store) Delete(where Filter) {
	_ = s.mutate(func() error {
		if _, ok := s.byID[where.ID]; !ok {
			return errNoChange
		}
		delete(s.byID, where.ID)
		for i, id := range s.order {
			if id == where.ID {
				s.order = append(s.order[:i:i], s.order[i+1:]...)
				break
			}
		}
		return nil
	})
}

// Snapshot returns the latest published snapshot.
func (s *Store) Snapshot() Snapshot {
	return s.changes.Get()
}

// Subscribe registers fn for every future mutation.
func (s *Store) Subscribe(fn func(Snapshot)) func() {
	return s.changes.Subscribe(fn)
}

var errNoChange = errors.New("no change")

// mutate runs apply under the write lock and publishes the result. pubMu
// keeps publication order equal to mutation order.
func (s *Store) mutate(apply func() error) error {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	s.mu.Lock()
	if err := apply(); err != nil {
		s.mu.Unlock()
		if errors.Is(err, errNoChange) {
			return nil
		}
		return err
	}
	s.version++
	snap := Snapshot{Messages: s.listLocked(), Version: s.version}
	s.mu.Unlock()

	s.changes.Set(snap)
	return nil
}

func (s *Store) listLocked() []Message {
	out := make([]Message, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}
