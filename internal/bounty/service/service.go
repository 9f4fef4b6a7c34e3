// Package service orchestrates the bounty workflows: publishing a funded
// bounty, claiming it on location, and closing it without a winner.
package service

import (
	"cmp"
	"context"
	"errors"
	"iter"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"geosats/internal/bounty/metrics"
	"geosats/internal/bounty/models"
	"geosats/internal/bounty/registry"
	"geosats/internal/claim"
	"geosats/internal/escrow"
	"geosats/internal/events"
	"geosats/internal/geo"
	"geosats/internal/identity"
	"geosats/internal/positioning"
	id "geosats/pkg/domain"
	dErrors "geosats/pkg/domain-errors"
	"geosats/pkg/requestcontext"
)

const (
	DefaultNearbyRadiusKm = 10.0
	// DefaultPayoutGrace is how long a claimed bounty may wait for its payout
	// before the retry pass picks it up.
	DefaultPayoutGrace = time.Minute
)

var (
	ErrAnonymousCancel = dErrors.New(dErrors.CodeForbidden, "anonymous callers cannot cancel bounties")
	ErrExpiryInPast    = dErrors.New(dErrors.CodeValidation, "expires_at must be in the future")
)

// Registry is the bounty record owner.
type Registry interface {
	Create(ctx context.Context, req models.CreateBountyRequest, creator string) (*models.Bounty, error)
	List(ctx context.Context, filter models.ListFilter) iter.Seq[models.Bounty]
	Get(ctx context.Context, bountyID id.BountyID) (*models.Bounty, error)
	TransitionToClaimed(ctx context.Context, bountyID id.BountyID, claimer string) (*models.Bounty, error)
	Cancel(ctx context.Context, bountyID id.BountyID, actor string) (*models.Bounty, error)
	ExpireDue(ctx context.Context) ([]models.Bounty, error)
	ClearEscrow(ctx context.Context, bountyID id.BountyID) error
}

type Verifier interface {
	Verify(ctx context.Context, b *models.Bounty, at geo.Coordinate, answer string) (claim.Result, error)
}

// Payout releases locked funds to a winner.
type Payout interface {
	Release(ctx context.Context, escrowID id.EscrowID, payee string) (escrow.PayoutReceipt, error)
}

// Locator supplies the caller's position when a request carries none.
type Locator interface {
	CurrentLocation(ctx context.Context) (geo.Coordinate, error)
}

// ClaimResult is the outcome of one claim attempt. Rejections are not errors.
type ClaimResult struct {
	Accepted bool `json:"accepted"`
	claim.Result
	Bounty  *models.Bounty        `json:"bounty,omitempty"`
	Receipt *escrow.PayoutReceipt `json:"receipt,omitempty"`
}

// NearbyBounty is an active bounty annotated with its distance from the caller.
type NearbyBounty struct {
	models.Bounty
	DistanceKm float64 `json:"distance_km"`
	Distance   string  `json:"distance"`
}

type Stats struct {
	ActiveCount     int     `json:"active_count"`
	TotalRewardSats int64   `json:"total_reward_sats"`
	NearbyCount     int     `json:"nearby_count"`
	NearbyRadiusKm  float64 `json:"nearby_radius_km"`
	LocationKnown   bool    `json:"location_known"`
}

type Service struct {
	registry       Registry
	verifier       Verifier
	payout         Payout
	publisher      events.Publisher
	locator        Locator
	nearbyRadiusKm float64
	ttl            time.Duration
	payoutGrace    time.Duration
	logger         *slog.Logger
	metrics        *metrics.Metrics
	tracer         trace.Tracer
}

type Option func(*Service)

func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

func WithLocator(l Locator) Option {
	return func(s *Service) {
		s.locator = l
	}
}

func WithNearbyRadiusKm(km float64) Option {
	return func(s *Service) {
		if km > 0 {
			s.nearbyRadiusKm = km
		}
	}
}

// WithDefaultTTL gives bounties published without an expiry one ttl after creation.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithPayoutGrace(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.payoutGrace = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(reg Registry, verifier Verifier, payout Payout, opts ...Option) (*Service, error) {
	if reg == nil {
		return nil, errors.New("registry is required")
	}
	if verifier == nil {
		return nil, errors.New("verifier is required")
	}
	if payout == nil {
		return nil, errors.New("payout is required")
	}
	s := &Service{
		registry:       reg,
		verifier:       verifier,
		payout:         payout,
		nearbyRadiusKm: DefaultNearbyRadiusKm,
		payoutGrace:    DefaultPayoutGrace,
		logger:         slog.Default(),
		tracer:         otel.Tracer("geosats/bounty"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// PublishBounty validates req, locks the reward and registers the bounty. On
// any failure no funds move and nothing becomes visible.
func (s *Service) PublishBounty(ctx context.Context, req models.CreateBountyRequest, creator identity.Provider) (*models.Bounty, error) {
	ctx, span := s.tracer.Start(ctx, "bounty.publish")
	defer span.End()

	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, s.fail(span, err)
	}
	now := requestcontext.Now(ctx)
	if req.ExpiresAt != nil && !req.ExpiresAt.After(now) {
		return nil, s.fail(span, ErrExpiryInPast)
	}
	if req.ExpiresAt == nil && s.ttl > 0 {
		exp := now.Add(s.ttl)
		req.ExpiresAt = &exp
	}

	who, err := identify(ctx, creator)
	if err != nil {
		return nil, s.fail(span, err)
	}

	b, err := s.registry.Create(ctx, req, who)
	if err != nil {
		return nil, s.fail(span, err)
	}
	span.SetAttributes(
		attribute.String("bounty.id", b.ID.String()),
		attribute.Int64("bounty.reward", b.Reward),
	)

	s.logger.InfoContext(ctx, "bounty_published",
		"bounty_id", b.ID.String(),
		"creator", identity.Short(who),
		"reward", b.Reward,
		"difficulty", string(b.Difficulty),
		"request_id", requestcontext.RequestID(ctx),
	)
	s.metrics.IncrementPublished(string(b.Difficulty))
	s.publish(ctx, events.BountyCreated(*b, now))
	s.refreshActive(ctx)
	return b, nil
}

// ClaimBounty verifies a claim and, when eligible, claims the bounty and pays
// the claimer. Of concurrent eligible claims exactly one wins; the others
// come back rejected with not_active.
func (s *Service) ClaimBounty(ctx context.Context, bountyID id.BountyID, claimer identity.Provider, at geo.Coordinate, answer string) (ClaimResult, error) {
	start := time.Now()
	defer s.metrics.ObserveClaimLatency(start)

	ctx, span := s.tracer.Start(ctx, "bounty.claim", trace.WithAttributes(
		attribute.String("bounty.id", bountyID.String()),
	))
	defer span.End()

	if err := at.Validate(); err != nil {
		return ClaimResult{}, s.fail(span, dErrors.Wrap(err, dErrors.CodeValidation, "invalid claimer location"))
	}
	who, err := identify(ctx, claimer)
	if err != nil {
		return ClaimResult{}, s.fail(span, err)
	}
	b, err := s.registry.Get(ctx, bountyID)
	if err != nil {
		return ClaimResult{}, s.fail(span, err)
	}

	decision, err := s.verifier.Verify(ctx, b, at, answer)
	if err != nil {
		return ClaimResult{}, s.fail(span, err)
	}
	if !decision.Eligible {
		return s.reject(ctx, span, b, who, decision), nil
	}

	claimed, err := s.registry.TransitionToClaimed(ctx, bountyID, who)
	if errors.Is(err, registry.ErrInvalidState) {
		decision.Eligible = false
		decision.Reasons = append(decision.Reasons, claim.ReasonNotActive)
		if cur, gerr := s.registry.Get(ctx, bountyID); gerr == nil {
			b = cur
			decision.Status = string(cur.Status)
		}
		return s.reject(ctx, span, b, who, decision), nil
	}
	if err != nil {
		return ClaimResult{}, s.fail(span, err)
	}
	decision.Status = string(claimed.Status)

	receipt, err := s.settle(ctx, claimed)
	if err != nil {
		s.logger.ErrorContext(ctx, "claim payout failed",
			"bounty_id", bountyID.String(),
			"claimer", identity.Short(who),
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		s.metrics.IncrementClaimOutcome("accepted", "payout_failed")
		return ClaimResult{}, s.fail(span, err)
	}
	claimed.EscrowID = nil

	s.logger.InfoContext(ctx, "bounty_claimed",
		"bounty_id", bountyID.String(),
		"claimer", identity.Short(who),
		"distance", decision.Distance,
		"reward", claimed.Reward,
		"request_id", requestcontext.RequestID(ctx),
	)
	s.metrics.IncrementClaimOutcome("accepted", "none")
	s.publish(ctx, events.BountyClaimed(*claimed, who, decision.DistanceKm, requestcontext.Now(ctx)))
	s.refreshActive(ctx)

	return ClaimResult{Accepted: true, Result: decision, Bounty: claimed, Receipt: receipt}, nil
}

// CancelBounty closes an active bounty on behalf of its creator and refunds
// the reward.
func (s *Service) CancelBounty(ctx context.Context, bountyID id.BountyID, actor identity.Provider) (*models.Bounty, error) {
	who, err := identify(ctx, actor)
	if err != nil {
		return nil, err
	}
	if who == identity.AnonymousID {
		return nil, ErrAnonymousCancel
	}
	b, err := s.registry.Cancel(ctx, bountyID, who)
	if err != nil {
		if b == nil {
			return nil, err
		}
		// Closed but not refunded; the expiry pass retries the refund.
		s.logger.WarnContext(ctx, "cancel refund deferred",
			"bounty_id", bountyID.String(),
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	s.logger.InfoContext(ctx, "bounty_cancelled",
		"bounty_id", bountyID.String(),
		"refunded", b.EscrowID == nil,
		"request_id", requestcontext.RequestID(ctx),
	)
	s.metrics.IncrementClosed(string(models.StatusCancelled))
	s.refreshActive(ctx)
	return b, nil
}

// ExpireDue expires every bounty past its expiry and returns how many closed.
func (s *Service) ExpireDue(ctx context.Context) (int, error) {
	expired, err := s.registry.ExpireDue(ctx)
	for _, b := range expired {
		s.logger.InfoContext(ctx, "bounty_expired",
			"bounty_id", b.ID.String(),
			"refunded", b.EscrowID == nil,
		)
		s.metrics.IncrementClosed(string(models.StatusExpired))
	}
	if len(expired) > 0 {
		s.refreshActive(ctx)
	}
	return len(expired), err
}

// RetryPayouts pays winners whose payout failed at claim time. Bounties claimed
// less than the payout grace ago are left to the claim in flight.
func (s *Service) RetryPayouts(ctx context.Context) (int, error) {
	cutoff := requestcontext.Now(ctx).Add(-s.payoutGrace)
	var (
		paid int
		errs []error
	)
	for b := range s.registry.List(ctx, models.ListFilter{Status: models.StatusClaimed}) {
		if b.EscrowID == nil || b.ClaimedAt == nil || b.ClaimedAt.After(cutoff) {
			continue
		}
		if _, err := s.settle(ctx, &b); err != nil {
			errs = append(errs, err)
			continue
		}
		s.logger.InfoContext(ctx, "claim payout retried", "bounty_id", b.ID.String())
		paid++
	}
	return paid, errors.Join(errs...)
}

func (s *Service) List(ctx context.Context, filter models.ListFilter) []models.Bounty {
	return slices.Collect(s.registry.List(ctx, filter))
}

func (s *Service) Get(ctx context.Context, bountyID id.BountyID) (*models.Bounty, error) {
	return s.registry.Get(ctx, bountyID)
}

// Nearby lists active bounties within radiusKm of at, closest first. A nil at
// asks the locator; a non-positive radius uses the configured default.
func (s *Service) Nearby(ctx context.Context, at *geo.Coordinate, radiusKm float64) ([]NearbyBounty, geo.Coordinate, error) {
	origin, err := s.origin(ctx, at)
	if err != nil {
		return nil, geo.Coordinate{}, err
	}
	if radiusKm <= 0 {
		radiusKm = s.nearbyRadiusKm
	}
	out := []NearbyBounty{}
	for b := range s.registry.List(ctx, models.ListFilter{Status: models.StatusActive, Near: &origin, RadiusKm: radiusKm}) {
		d := geo.Distance(origin, b.Location)
		out = append(out, NearbyBounty{Bounty: b, DistanceKm: d, Distance: geo.FormatDistance(d)})
	}
	slices.SortStableFunc(out, func(a, b NearbyBounty) int {
		return cmp.Compare(a.DistanceKm, b.DistanceKm)
	})
	return out, origin, nil
}

// Stats summarises active bounties. The nearby count is only filled when a
// position is known.
func (s *Service) Stats(ctx context.Context, at *geo.Coordinate) Stats {
	st := Stats{NearbyRadiusKm: s.nearbyRadiusKm}
	origin, err := s.origin(ctx, at)
	st.LocationKnown = err == nil
	for b := range s.registry.List(ctx, models.ListFilter{Status: models.StatusActive}) {
		st.ActiveCount++
		st.TotalRewardSats += b.Reward
		if st.LocationKnown && geo.Within(origin, b.Location, s.nearbyRadiusKm) {
			st.NearbyCount++
		}
	}
	return st
}

func (s *Service) origin(ctx context.Context, at *geo.Coordinate) (geo.Coordinate, error) {
	if at != nil {
		if err := at.Validate(); err != nil {
			return geo.Coordinate{}, dErrors.Wrap(err, dErrors.CodeValidation, "invalid location")
		}
		return *at, nil
	}
	if s.locator == nil {
		return geo.Coordinate{}, positioning.ErrUnsupported
	}
	return s.locator.CurrentLocation(ctx)
}

// settle releases the escrow of a claimed bounty and drops the reference.
// An escrow already released counts as paid.
func (s *Service) settle(ctx context.Context, b *models.Bounty) (*escrow.PayoutReceipt, error) {
	if b.EscrowID == nil {
		return nil, nil
	}
	receipt, err := s.payout.Release(ctx, *b.EscrowID, b.ClaimedBy)
	if err != nil && !errors.Is(err, escrow.ErrAlreadySettled) {
		return nil, err
	}
	if cerr := s.registry.ClearEscrow(context.WithoutCancel(ctx), b.ID); cerr != nil {
		s.logger.WarnContext(ctx, "clear escrow reference", "bounty_id", b.ID.String(), "error", cerr)
	}
	if err != nil {
		return nil, nil
	}
	return &receipt, nil
}

func (s *Service) reject(ctx context.Context, span trace.Span, b *models.Bounty, who string, decision claim.Result) ClaimResult {
	reasons := make([]string, len(decision.Reasons))
	for i, r := range decision.Reasons {
		reasons[i] = string(r)
	}
	span.SetAttributes(attribute.StringSlice("claim.reasons", reasons))
	s.logger.InfoContext(ctx, "claim_rejected",
		"bounty_id", b.ID.String(),
		"claimer", identity.Short(who),
		"reasons", reasons,
		"distance", decision.Distance,
		"request_id", requestcontext.RequestID(ctx),
	)
	first := "none"
	if len(reasons) > 0 {
		first = reasons[0]
	}
	s.metrics.IncrementClaimOutcome("rejected", first)
	return ClaimResult{Accepted: false, Result: decision, Bounty: b}
}

func (s *Service) publish(ctx context.Context, e events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.logger.WarnContext(ctx, "event publish failed",
			"kind", e.Kind.String(),
			"bounty_id", e.BountyID,
			"error", err,
		)
	}
}

func (s *Service) refreshActive(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	var (
		count  int
		reward int64
	)
	for b := range s.registry.List(ctx, models.ListFilter{Status: models.StatusActive}) {
		count++
		reward += b.Reward
	}
	s.metrics.SetActive(count, reward)
}

func (s *Service) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	return err
}

func identify(ctx context.Context, p identity.Provider) (string, error) {
	if p == nil {
		p = identity.Anonymous{}
	}
	return p.Identify(ctx)
}
