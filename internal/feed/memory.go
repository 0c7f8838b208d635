// Package feed holds the in-process snapshot store that collaborators push
// ticks, accounts and venue quotes into. It backs every source interface the
// core reads from.
package feed

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/unifex/riskcore/pkg/models"
)

// Store is a concurrency-safe snapshot of the latest collaborator data.
// Writers replace whole records; readers always see a consistent entry.
type Store struct {
	mu       sync.RWMutex
	ticks    map[string]models.Tick
	accounts map[string]models.AccountSnapshot
	quotes   map[string][]models.VenueQuote
}

// NewStore creates an empty snapshot store.
func NewStore() *Store {
	return &Store{
		ticks:    make(map[string]models.Tick),
		accounts: make(map[string]models.AccountSnapshot),
		quotes:   make(map[string][]models.VenueQuote),
	}
}

// SetTick records the latest tick for a symbol.
func (s *Store) SetTick(t models.Tick) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticks[t.Symbol] = t
}

// LatestTick returns the latest tick for a symbol.
func (s *Store) LatestTick(symbol string) (models.Tick, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.ticks[symbol]
	return t, ok
}

// Symbols lists every symbol with at least one tick, sorted for stable
// iteration.
func (s *Store) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.ticks))
	for symbol := range s.ticks {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}

// SetAccount replaces a user's ledger snapshot.
func (s *Store) SetAccount(snap models.AccountSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[snap.UserID] = snap
}

// Account returns a user's ledger snapshot.
func (s *Store) Account(_ context.Context, userID string) (models.AccountSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.accounts[userID]
	if !ok {
		return models.AccountSnapshot{}, fmt.Errorf("feed: no account snapshot for user %s", userID)
	}
	return snap, nil
}

// SetQuotes replaces the venue quotes for a symbol.
func (s *Store) SetQuotes(symbol string, quotes []models.VenueQuote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[symbol] = quotes
}

// Quotes returns the venue quotes for a symbol.
func (s *Store) Quotes(symbol string) []models.VenueQuote {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.VenueQuote, len(s.quotes[symbol]))
	copy(out, s.quotes[symbol])
	return out
}
