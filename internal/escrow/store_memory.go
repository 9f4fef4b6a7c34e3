package escrow

import (
	"context"
	"fmt"
	"sync"
	"time"

	id "geosats/pkg/domain"
	"geosats/pkg/platform/sentinel"
)

// HandleStore owns escrow handles. Transitions are compare-and-set on State.
type HandleStore struct {
	mu      sync.RWMutex
	handles map[id.EscrowID]*Handle
}

func NewHandleStore() *HandleStore {
	return &HandleStore{handles: make(map[id.EscrowID]*Handle)}
}

func (s *HandleStore) Create(_ context.Context, h Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.handles[h.ID]; ok {
		return fmt.Errorf("escrow %s: %w", h.ID, sentinel.ErrConflict)
	}
	s.handles[h.ID] = &h
	return nil
}

func (s *HandleStore) Get(_ context.Context, escrowID id.EscrowID) (Handle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handles[escrowID]
	if !ok {
		return Handle{}, fmt.Errorf("escrow %s: %w", escrowID, sentinel.ErrNotFound)
	}
	return *h, nil
}

// Begin moves a handle into settling for op. A locked handle is always
// eligible; a handle in doubt only for the same op and payee. It returns the
// handle and the state it left.
func (s *HandleStore) Begin(_ context.Context, escrowID id.EscrowID, op Op, payee string) (Handle, State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handles[escrowID]
	if !ok {
		return Handle{}, "", fmt.Errorf("escrow %s: %w", escrowID, sentinel.ErrNotFound)
	}
	prior := h.State
	switch prior {
	case StateLocked:
	case StateInDoubt:
		if h.Op != op || h.Payee != payee {
			return Handle{}, prior, fmt.Errorf("escrow %s has a %s in doubt: %w", escrowID, h.Op, sentinel.ErrInvalidState)
		}
	default:
		return Handle{}, prior, fmt.Errorf("escrow %s is %s: %w", escrowID, h.State, sentinel.ErrAlreadyUsed)
	}
	h.State, h.Op, h.Payee = StateSettling, op, payee
	return *h, prior, nil
}

// Transition moves a handle from one state to another, failing with
// ErrAlreadyUsed when the handle is no longer in the expected state. Returning
// to locked clears the pending operation.
func (s *HandleStore) Transition(_ context.Context, escrowID id.EscrowID, from, to State, now time.Time) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handles[escrowID]
	if !ok {
		return Handle{}, fmt.Errorf("escrow %s: %w", escrowID, sentinel.ErrNotFound)
	}
	if h.State != from {
		return Handle{}, fmt.Errorf("escrow %s is %s: %w", escrowID, h.State, sentinel.ErrAlreadyUsed)
	}
	h.State = to
	if to == StateLocked {
		h.Op, h.Payee = "", ""
	}
	if to.IsSettled() {
		h.SettledAt = &now
	}
	return *h, nil
}

// Park moves a handle into doubt, waiting on op.
func (s *HandleStore) Park(_ context.Context, escrowID id.EscrowID, from State, op Op) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handles[escrowID]
	if !ok {
		return Handle{}, fmt.Errorf("escrow %s: %w", escrowID, sentinel.ErrNotFound)
	}
	if h.State != from {
		return Handle{}, fmt.Errorf("escrow %s is %s: %w", escrowID, h.State, sentinel.ErrAlreadyUsed)
	}
	h.State, h.Op = StateInDoubt, op
	return *h, nil
}

// Delete drops a handle whose debit the provider refused.
func (s *HandleStore) Delete(_ context.Context, escrowID id.EscrowID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handles, escrowID)
}

// InDoubt returns copies of every handle awaiting reconciliation.
func (s *HandleStore) InDoubt(_ context.Context) []Handle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Handle
	for _, h := range s.handles {
		if h.State == StateInDoubt {
			out = append(out, *h)
		}
	}
	return out
}

// LockedTotal sums amounts held for bounties. Handles still locking, or whose
// debit is in doubt, hold nothing yet.
func (s *HandleStore) LockedTotal(_ context.Context) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total int64
	for _, h := range s.handles {
		if h.State.IsSettled() || h.State == StateLocking || (h.State == StateInDoubt && h.Op == OpLock) {
			continue
		}
		total += h.Amount
	}
	return total
}
