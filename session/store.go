// Package session keeps the per chat user selection state in memory.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/C0nstantin/mailrelay/errors"
)

var (
	ErrNoSession        = errors.New("no active session")
	ErrInvalidSelection = errors.New("invalid selection")
)

type entry struct {
	state   State
	touched time.Time
}

// Store maps a chat user id to its State. One mutex guards the whole map;
// callers never hold it across network calls because every method returns
// before doing any I/O.
type Store struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[int64]entry
}

// NewStore returns a Store whose states expire ttl after their last write.
// A zero ttl disables expiry.
func NewStore(ttl time.Duration) *Store {
	return &Store{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[int64]entry),
	}
}

// lookup returns the live entry for userID and drops it if expired. mu must be held.
func (s *Store) lookup(userID int64) (entry, bool) {
	e, ok := s.entries[userID]
	if !ok {
		return entry{}, false
	}
	if s.expired(e, s.now()) {
		delete(s.entries, userID)
		return entry{}, false
	}
	return e, true
}

func (s *Store) expired(e entry, now time.Time) bool {
	return s.ttl > 0 && now.Sub(e.touched) >= s.ttl
}

func (s *Store) Get(userID int64) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.lookup(userID)
	return e.state, ok
}

// Set stores state for userID, replacing whatever was there.
func (s *Store) Set(userID int64, state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[userID] = entry{state: state, touched: s.now()}
}

// Delete removes the session and reports whether a live one existed.
func (s *Store) Delete(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.lookup(userID)
	delete(s.entries, userID)
	return ok
}

// Update replaces the state of userID with fn(current) atomically.
// fn is not called when there is no live session; ErrNoSession is returned then.
// If fn fails the stored state is left as it was.
func (s *Store) Update(userID int64, fn func(State) (State, error)) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.lookup(userID)
	if !ok {
		return nil, ErrNoSession
	}
	next, err := fn(e.state)
	if err != nil {
		return e.state, err
	}
	s.entries[userID] = entry{state: next, touched: s.now()}
	return next, nil
}

// TakeMessage removes and returns the session of userID if it is waiting for
// message text. Any other state is left in place and ok is false.
func (s *Store) TakeMessage(userID int64) (AwaitingMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.lookup(userID)
	if !ok {
		return AwaitingMessage{}, false
	}
	st, ok := e.state.(AwaitingMessage)
	if !ok {
		return AwaitingMessage{}, false
	}
	delete(s.entries, userID)
	return st, true
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep drops every session expired at now and returns how many were dropped.
func (s *Store) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, e := range s.entries {
		if s.expired(e, now) {
			delete(s.entries, id)
			n++
		}
	}
	return n
}

// Run sweeps expired sessions every interval until ctx is done.
// onSweep, if set, receives the number of sessions left after each pass.
func (s *Store) Run(ctx context.Context, interval time.Duration, onSweep func(remaining int)) {
	if s.ttl <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.Sweep(now)
			if onSweep != nil {
				onSweep(s.Len())
			}
		}
	}
}
