// Package claim decides whether a claim attempt satisfies a bounty's
// preconditions. Rejections are values, not errors.
package claim

import (
	"context"
	"errors"
	"strings"

	"geosats/internal/bounty/models"
	"geosats/internal/geo"
	id "geosats/pkg/domain"
)

// DefaultRadiusKm is the claim radius: 100 meters.
const DefaultRadiusKm = 0.1

// Reason is why a claim was rejected.
type Reason string

const (
	ReasonTooFar              Reason = "too_far"
	ReasonPuzzleAnswerMissing Reason = "puzzle_answer_missing"
	ReasonNotActive           Reason = "not_active"
)

// Result is a verification decision together with the inputs that produced it.
type Result struct {
	Eligible       bool     `json:"eligible"`
	Reasons        []Reason `json:"reasons"`
	DistanceKm     float64  `json:"distance_km"`
	Distance       string   `json:"distance"`
	RadiusKm       float64  `json:"radius_km"`
	PuzzleRequired bool     `json:"puzzle_required"`
	Status         string   `json:"status"`
}

// Has reports whether r carries reason.
func (r Result) Has(reason Reason) bool {
	for _, x := range r.Reasons {
		if x == reason {
			return true
		}
	}
	return false
}

// StatusReader reads a bounty's current status.
type StatusReader interface {
	Status(ctx context.Context, bountyID id.BountyID) (models.Status, error)
}

// Verifier checks distance, puzzle answer presence and live status. Every
// check runs; reasons are reported together.
type Verifier struct {
	radiusKm float64
	statuses StatusReader
}

type Option func(*Verifier)

// WithRadiusKm overrides the claim radius. Non-positive values are ignored.
func WithRadiusKm(km float64) Option {
	return func(v *Verifier) {
		if km > 0 {
			v.radiusKm = km
		}
	}
}

func New(statuses StatusReader, opts ...Option) (*Verifier, error) {
	if statuses == nil {
		return nil, errors.New("status reader is required")
	}
	v := &Verifier{radiusKm: DefaultRadiusKm, statuses: statuses}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

func (v *Verifier) RadiusKm() float64 {
	return v.radiusKm
}

// Verify evaluates a claim attempt. The bounty's status is re-read through
// the StatusReader rather than taken from b. An error means the status could
// not be read at all.
func (v *Verifier) Verify(ctx context.Context, b *models.Bounty, at geo.Coordinate, answer string) (Result, error) {
	status, err := v.statuses.Status(ctx, b.ID)
	if err != nil {
		return Result{}, err
	}

	dist := geo.Distance(at, b.Location)
	res := Result{
		Reasons:        []Reason{},
		DistanceKm:     dist,
		Distance:       geo.FormatDistance(dist),
		RadiusKm:       v.radiusKm,
		PuzzleRequired: b.HasPuzzle(),
		Status:         string(status),
	}
	if dist > v.radiusKm {
		res.Reasons = append(res.Reasons, ReasonTooFar)
	}
	if res.PuzzleRequired && strings.TrimSpace(answer) == "" {
		res.Reasons = append(res.Reasons, ReasonPuzzleAnswerMissing)
	}
	if status != models.StatusActive {
		res.Reasons = append(res.Reasons, ReasonNotActive)
	}
	res.Eligible = len(res.Reasons) == 0
	return res, nil
}
