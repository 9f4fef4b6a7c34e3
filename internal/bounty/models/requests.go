package models

import (
	"fmt"
	"strings"
	"time"

	"geosats/internal/geo"
	dErrors "geosats/pkg/domain-errors"
)

// Field length limits.
const (
	MaxTitleLength       = 120
	MaxDescriptionLength = 2000
	MaxPuzzleLength      = 500
)

// CreateBountyRequest is the publish input, validated before a Bounty exists.
type CreateBountyRequest struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Reward      int64          `json:"reward"`
	Difficulty  Difficulty     `json:"difficulty"`
	Location    geo.Coordinate `json:"location"`
	Puzzle      string         `json:"puzzle,omitempty"`
	ExpiresAt   *time.Time     `json:"expires_at,omitempty"`
}

// Normalize trims text fields and defaults difficulty to easy.
func (r *CreateBountyRequest) Normalize() {
	if r == nil {
		return
	}
	r.Title = strings.TrimSpace(r.Title)
	r.Description = strings.TrimSpace(r.Description)
	r.Puzzle = strings.TrimSpace(r.Puzzle)
	r.Difficulty = Difficulty(strings.ToLower(strings.TrimSpace(string(r.Difficulty))))
	if r.Difficulty == "" {
		r.Difficulty = DifficultyEasy
	}
}

// Validate checks required fields, then lengths, then value ranges.
func (r *CreateBountyRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if strings.TrimSpace(r.Title) == "" {
		return fmt.Errorf("%w: title", ErrMissingRequiredField)
	}
	if strings.TrimSpace(r.Description) == "" {
		return fmt.Errorf("%w: description", ErrMissingRequiredField)
	}
	if len(r.Title) > MaxTitleLength {
		return dErrors.New(dErrors.CodeValidation, "title is too long")
	}
	if len(r.Description) > MaxDescriptionLength {
		return dErrors.New(dErrors.CodeValidation, "description is too long")
	}
	if len(r.Puzzle) > MaxPuzzleLength {
		return dErrors.New(dErrors.CodeValidation, "puzzle is too long")
	}
	if r.Reward <= 0 {
		return ErrInvalidReward
	}
	if !r.Difficulty.IsValid() {
		return ErrInvalidDifficulty
	}
	if err := r.Location.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidLocation, err)
	}
	return nil
}

// ListFilter narrows a registry listing. Zero value matches everything.
type ListFilter struct {
	Status   Status
	Near     *geo.Coordinate
	RadiusKm float64
}

// Matches reports whether b passes the filter.
func (f ListFilter) Matches(b *Bounty) bool {
	if f.Status != "" && b.Status != f.Status {
		return false
	}
	if f.Near != nil && !geo.Within(*f.Near, b.Location, f.RadiusKm) {
		return false
	}
	return true
}
