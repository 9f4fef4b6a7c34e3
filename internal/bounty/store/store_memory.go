// Package store keeps bounty records in process memory.
package store

import (
	"context"
	"fmt"
	"iter"
	"sync"

	"geosats/internal/bounty/models"
	id "geosats/pkg/domain"
	"geosats/pkg/platform/sentinel"
)

// Error Contract:
// - ErrNotFound when the bounty does not exist
// - ErrConflict when creating a bounty whose id is already taken
// - whatever the validate callback returns from Execute, unchanged

// InMemory is an append-only arena of records with an id index. Records are
// never removed, so arena positions stay stable for lazy iteration.
type InMemory struct {
	mu    sync.RWMutex
	arena []*models.Bounty
	index map[id.BountyID]int
}

func New() *InMemory {
	return &InMemory{index: make(map[id.BountyID]int)}
}

func (s *InMemory) Create(_ context.Context, b *models.Bounty) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.index[b.ID]; ok {
		return fmt.Errorf("bounty %s: %w", b.ID, sentinel.ErrConflict)
	}
	rec := b.Clone()
	s.index[b.ID] = len(s.arena)
	s.arena = append(s.arena, &rec)
	return nil
}

func (s *InMemory) FindByID(_ context.Context, bountyID id.BountyID) (*models.Bounty, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, ok := s.index[bountyID]
	if !ok {
		return nil, fmt.Errorf("bounty %s: %w", bountyID, sentinel.ErrNotFound)
	}
	out := s.arena[pos].Clone()
	return &out, nil
}

// All yields copies of every record in creation order. Each call starts a new
// pass over the current contents; no lock is held between yields.
func (s *InMemory) All(_ context.Context) iter.Seq[models.Bounty] {
	return func(yield func(models.Bounty) bool) {
		for i := 0; ; i++ {
			s.mu.RLock()
			if i >= len(s.arena) {
				s.mu.RUnlock()
				return
			}
			b := s.arena[i].Clone()
			s.mu.RUnlock()
			if !yield(b) {
				return
			}
		}
	}
}

// Execute runs validate then mutate on one record under the write lock, so a
// check-then-set such as active -> claimed has at most one winner. Mutations
// apply to a copy and are committed only when validate succeeds.
func (s *InMemory) Execute(_ context.Context, bountyID id.BountyID, validate func(*models.Bounty) error, mutate func(*models.Bounty)) (*models.Bounty, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.index[bountyID]
	if !ok {
		return nil, fmt.Errorf("bounty %s: %w", bountyID, sentinel.ErrNotFound)
	}
	working := s.arena[pos].Clone()
	if err := validate(&working); err != nil {
		return nil, err
	}
	mutate(&working)
	committed := working.Clone()
	s.arena[pos] = &committed
	return &working, nil
}

// Len is the number of records ever created.
func (s *InMemory) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.arena)
}
