package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"pharmasure/pkg/domain"
	"pharmasure/pkg/kv"
)

// HistoryKey is where a user's creations are persisted.
const HistoryKey = "pharma_history"

// State holds the signed-in user and their creation history.
// History is newest first and replaced wholesale on every write.
type State struct {
	store kv.Store

	mu      sync.RWMutex
	user    *domain.UserProfile
	history []domain.Creation
}

// New loads persisted history from store. An undecodable value is logged and discarded.
func New(ctx context.Context, store kv.Store) (*State, error) {
	s := &State{store: store}
	data, ok, err := store.Get(ctx, HistoryKey)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if ok {
		var history []domain.Creation
		if err := json.Unmarshal(data, &history); err != nil {
			slog.Warn("discarding unreadable history", "err", err)
		} else {
			s.history = history
		}
	}
	return s, nil
}

func (s *State) Login(user domain.UserProfile) {
	s.mu.Lock()
	s.user = &user
	s.mu.Unlock()
}

// Logout clears the user. History stays on disk and in memory.
func (s *State) Logout() {
	s.mu.Lock()
	s.user = nil
	s.mu.Unlock()
}

func (s *State) User() (domain.UserProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return domain.UserProfile{}, false
	}
	return *s.user, true
}

// AddCreation prepends c and persists the full history.
func (s *State) AddCreation(ctx context.Context, c domain.Creation) error {
	s.mu.Lock()
	next := make([]domain.Creation, 0, len(s.history)+1)
	next = append(next, c)
	next = append(next, s.history...)
	s.history = next
	s.mu.Unlock()

	if err := kv.SetJSON(ctx, s.store, HistoryKey, next); err != nil {
		return fmt.Errorf("persist history: %w", err)
	}
	return nil
}

// History returns the creations, newest first. The slice must not be modified.
func (s *State) History() []domain.Creation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history
}

func (s *State) Creation(id string) (domain.Creation, bool) {
	for _, c := range s.History() {
		if c.ID == id {
			return c, true
		}
	}
	return domain.Creation{}, false
}
