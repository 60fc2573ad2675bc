package store

import (
	"iter"
	"sync"

	"github.com/ValerySidorin/ackd/model"
)

// Store keeps outstanding tokens grouped by subscription.
type Store struct {
	m map[string]map[string]*model.Token

	mu sync.RWMutex
}

func New() *Store {
	return &Store{
		m: make(map[string]map[string]*model.Token),
	}
}

func (s *Store) Register(t model.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.m[t.Subscription]
	if !ok {
		sub = make(map[string]*model.Token)
		s.m[t.Subscription] = sub
	}

	if _, ok := sub[t.ID]; ok {
		return model.ErrDuplicateToken
	}

	sub[t.ID] = &t
	return nil
}

func (s *Store) Resolve(id, subscription string) (model.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.m[subscription]
	if !ok {
		return model.Token{}, model.ErrUnknownToken
	}

	t, ok := sub[id]
	if !ok {
		return model.Token{}, model.ErrUnknownToken
	}

	delete(sub, id)
	if len(sub) == 0 {
		delete(s.m, subscription)
	}

	return *t, nil
}

func (s *Store) Get(id, subscription string) (model.Token, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.m[subscription][id]
	if !ok {
		return model.Token{}, false
	}
	return *t, true
}

// IncAttempt bumps the attempt counter of a token and returns the new value.
func (s *Store) IncAttempt(id, subscription string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.m[subscription][id]
	if !ok {
		return 0, model.ErrUnknownToken
	}

	t.Attempt++
	return t.Attempt, nil
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	for _, sub := range s.m {
		n += len(sub)
	}
	return n
}

// Snapshot returns the tokens outstanding at the moment iteration starts.
// Every range over the sequence takes a fresh copy.
func (s *Store) Snapshot() iter.Seq[model.Token] {
	return func(yield func(model.Token) bool) {
		for _, t := range s.copy() {
			if !yield(t) {
				return
			}
		}
	}
}

func (s *Store) copy() []model.Token {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	for _, sub := range s.m {
		n += len(sub)
	}

	tokens := make([]model.Token, 0, n)
	for _, sub := range s.m {
		for _, t := range sub {
			tokens = append(tokens, *t)
		}
	}
	return tokens
}
