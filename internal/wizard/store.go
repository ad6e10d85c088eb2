package wizard

import (
	"errors"
	"sync"
)

// errUnchanged lets a reducer decline a mutation without reporting an error.
var errUnchanged = errors.New("unchanged")

// Change is delivered to subscribers after every applied mutation.
type Change struct {
	Action string
	Prev   State
	Next   State
}

// Listener receives state changes. Listeners run outside the store lock, in
// mutation order, on the goroutine that dispatched. A listener must not
// dispatch.
type Listener func(Change)

// Store is an injectable container for wizard state. All mutations go
// through Dispatch; side effects subscribe instead of being called inline.
type Store struct {
	mu        sync.Mutex
	notifyMu  sync.Mutex
	state     State
	listeners map[int]Listener
	nextID    int
}

// NewStore creates a store holding initial.
func NewStore(initial State) *Store {
	initial.clampStep()
	return &Store{state: initial, listeners: make(map[int]Listener)}
}

// State returns a copy of the current state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers l and returns a function that removes it.
func (s *Store) Subscribe(l Listener) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Dispatch applies reduce to a copy of the state. If reduce fails nothing
// changes and no listener runs. Derived amounts are recomputed and the step
// index is clamped before the new state is published.
func (s *Store) Dispatch(action string, reduce func(*State) error) error {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	prev := s.state
	next := prev
	if err := reduce(&next); err != nil {
		s.mu.Unlock()
		if errors.Is(err, errUnchanged) {
			return nil
		}
		return err
	}
	next.recompute()
	next.clampStep()
	s.state = next

	listeners := make([]Listener, 0, len(s.listeners))
	for id := 0; id < s.nextID; id++ {
		if l, ok := s.listeners[id]; ok {
			listeners = append(listeners, l)
		}
	}
	s.mu.Unlock()

	change := Change{Action: action, Prev: prev, Next: next}
	for _, l := range listeners {
		l(change)
	}
	return nil
}
