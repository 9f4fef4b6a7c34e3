package models

import (
	"fmt"
	"strings"
	"time"

	"geosats/internal/geo"
	id "geosats/pkg/domain"
	dErrors "geosats/pkg/domain-errors"
)

var (
	ErrInvalidReward        = dErrors.New(dErrors.CodeValidation, "reward must be a positive number of sats")
	ErrInvalidLocation      = dErrors.New(dErrors.CodeValidation, "location is out of range")
	ErrMissingRequiredField = dErrors.New(dErrors.CodeValidation, "missing required field")
	ErrInvalidDifficulty    = dErrors.New(dErrors.CodeValidation, "difficulty must be easy, medium or hard")
)

// Bounty is a location-anchored reward.
//
// Invariants:
//   - Location, Reward and Creator never change after construction
//   - ClaimedBy is set if and only if Status is claimed
//   - EscrowID is set while funds are locked and cleared once settled
type Bounty struct {
	ID          id.BountyID    `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Reward      int64          `json:"reward"`
	Difficulty  Difficulty     `json:"difficulty"`
	Creator     string         `json:"creator"`
	Location    geo.Coordinate `json:"location"`
	Puzzle      string         `json:"puzzle,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	ExpiresAt   *time.Time     `json:"expires_at,omitempty"`
	Status      Status         `json:"status"`
	ClaimedBy   string         `json:"claimed_by,omitempty"`
	ClaimedAt   *time.Time     `json:"claimed_at,omitempty"`
	EscrowID    *id.EscrowID   `json:"escrow_id,omitempty"`
}

// NewBounty builds an active bounty from an already validated request.
func NewBounty(bountyID id.BountyID, req CreateBountyRequest, creator string, now time.Time) (*Bounty, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(creator) == "" {
		return nil, fmt.Errorf("%w: creator", ErrMissingRequiredField)
	}
	b := &Bounty{
		ID:          bountyID,
		Title:       req.Title,
		Description: req.Description,
		Reward:      req.Reward,
		Difficulty:  req.Difficulty,
		Creator:     creator,
		Location:    req.Location,
		Puzzle:      req.Puzzle,
		CreatedAt:   now,
		Status:      StatusActive,
	}
	if req.ExpiresAt != nil {
		t := *req.ExpiresAt
		b.ExpiresAt = &t
	}
	return b, nil
}

func (b *Bounty) IsActive() bool {
	return b.Status == StatusActive
}

// HasPuzzle reports whether a claim must carry an answer.
func (b *Bounty) HasPuzzle() bool {
	return strings.TrimSpace(b.Puzzle) != ""
}

// IsDue reports whether an active bounty has passed its expiry.
func (b *Bounty) IsDue(now time.Time) bool {
	return b.IsActive() && b.ExpiresAt != nil && !now.Before(*b.ExpiresAt)
}

// CanClaim checks the active -> claimed transition.
func (b *Bounty) CanClaim() error {
	if !b.Status.CanTransitionTo(StatusClaimed) {
		return dErrors.New(dErrors.CodeInvalidState, "bounty is "+string(b.Status))
	}
	return nil
}

// ApplyClaim marks the bounty claimed. Call CanClaim first.
func (b *Bounty) ApplyClaim(claimer string, now time.Time) {
	b.Status = StatusClaimed
	b.ClaimedBy = claimer
	b.ClaimedAt = &now
}

// CanClose checks a transition into expired or cancelled.
func (b *Bounty) CanClose(next Status) error {
	if next == StatusClaimed || !b.Status.CanTransitionTo(next) {
		return dErrors.New(dErrors.CodeInvalidState, "bounty is "+string(b.Status))
	}
	return nil
}

// ApplyClose moves the bounty into expired or cancelled. Call CanClose first.
func (b *Bounty) ApplyClose(next Status) {
	b.Status = next
}

// Clone returns a deep copy safe to hand outside the store.
func (b *Bounty) Clone() Bounty {
	out := *b
	if b.ExpiresAt != nil {
		t := *b.ExpiresAt
		out.ExpiresAt = &t
	}
	if b.ClaimedAt != nil {
		t := *b.ClaimedAt
		out.ClaimedAt = &t
	}
	if b.EscrowID != nil {
		e := *b.EscrowID
		out.EscrowID = &e
	}
	return out
}
