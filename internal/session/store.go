package session

import (
	"strings"

	"github.com/patrickmn/go-cache"

	"pipedrive-agent/internal/domain"
)

// Store holds at most one pending conversation state per user. Entries never
// expire; a slot is only cleared by the flow itself or on sign-out.
type Store struct {
	cache *cache.Cache
}

func NewStore() *Store {
	// No default expiration and no janitor goroutine.
	return &Store{cache: cache.New(cache.NoExpiration, 0)}
}

// Load returns the pending state for userID, or nil if there is none.
func (s *Store) Load(userID string) domain.ConversationState {
	if x, found := s.cache.Get(key(userID)); found {
		if st, ok := x.(domain.ConversationState); ok {
			return st
		}
	}
	return nil
}

// Save overwrites the slot. A nil state clears it.
func (s *Store) Save(userID string, state domain.ConversationState) {
	if state == nil {
		s.Clear(userID)
		return
	}
	s.cache.Set(key(userID), state, cache.NoExpiration)
}

func (s *Store) Clear(userID string) {
	s.cache.Delete(key(userID))
}

func key(userID string) string {
	return "state:" + strings.TrimSpace(userID)
}
