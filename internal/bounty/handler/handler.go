package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"geosats/internal/bounty/models"
	"geosats/internal/bounty/service"
	"geosats/internal/escrow"
	"geosats/internal/events"
	"geosats/internal/geo"
	"geosats/internal/identity"
	"geosats/internal/platform/metrics"
	"geosats/internal/platform/middleware"
	"geosats/internal/positioning"
	id "geosats/pkg/domain"
	dErrors "geosats/pkg/domain-errors"
	"geosats/pkg/platform/async"
	"geosats/pkg/platform/httputil"
	"geosats/pkg/platform/middleware/metadata"
	"geosats/pkg/platform/middleware/requesttime"
	"geosats/pkg/requestcontext"
)

const (
	maxBodyBytes     = 64 << 10
	defaultEventPage = 50
	maxEventPage     = 500
	requestTimeout   = 30 * time.Second
)

// Service defines the bounty operations exposed over HTTP.
type Service interface {
	PublishBounty(ctx context.Context, req models.CreateBountyRequest, creator identity.Provider) (*models.Bounty, error)
	ClaimBounty(ctx context.Context, bountyID id.BountyID, claimer identity.Provider, at geo.Coordinate, answer string) (service.ClaimResult, error)
	CancelBounty(ctx context.Context, bountyID id.BountyID, actor identity.Provider) (*models.Bounty, error)
	List(ctx context.Context, filter models.ListFilter) []models.Bounty
	Get(ctx context.Context, bountyID id.BountyID) (*models.Bounty, error)
	Nearby(ctx context.Context, at *geo.Coordinate, radiusKm float64) ([]service.NearbyBounty, geo.Coordinate, error)
	Stats(ctx context.Context, at *geo.Coordinate) service.Stats
}

type EventFeed interface {
	ListRecent(limit int) []events.Event
}

type PuzzleGenerator interface {
	Generate(ctx context.Context) *async.Future[string]
}

type Wallet interface {
	Balance(ctx context.Context, account string) (int64, error)
	RequestInvoice(ctx context.Context, amount int64, memo string) (escrow.Invoice, error)
}

// Positioning is the device position service: one-shot, streaming, and the
// push side fed by the device.
type Positioning interface {
	CurrentFix(ctx context.Context) (positioning.Fix, error)
	Watch(ctx context.Context, onFix func(positioning.Fix), onErr func(error)) (*positioning.Subscription, error)
}

type FixSink interface {
	Push(fix positioning.Fix)
}

// Handler serves the bounty HTTP surface. Optional collaborators that are not
// configured answer with unsupported.
type Handler struct {
	svc       Service
	logger    *slog.Logger
	metrics   *metrics.Metrics
	feed      EventFeed
	puzzles   PuzzleGenerator
	wallet    Wallet
	position  Positioning
	sink      FixSink
	heartbeat time.Duration
	claimGate func(http.Handler) http.Handler
}

type Option func(*Handler)

func WithEventFeed(f EventFeed) Option {
	return func(h *Handler) { h.feed = f }
}

func WithPuzzles(p PuzzleGenerator) Option {
	return func(h *Handler) { h.puzzles = p }
}

func WithWallet(w Wallet) Option {
	return func(h *Handler) { h.wallet = w }
}

// WithPositioning wires location reads and device pushes.
func WithPositioning(p Positioning, sink FixSink) Option {
	return func(h *Handler) {
		h.position = p
		h.sink = sink
	}
}

// WithClaimGate wraps the claim route, typically with a rate limiter.
func WithClaimGate(mw func(http.Handler) http.Handler) Option {
	return func(h *Handler) {
		if mw != nil {
			h.claimGate = mw
		}
	}
}

// WithHeartbeat sets the keep-alive interval on location streams.
func WithHeartbeat(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.heartbeat = d
		}
	}
}

func New(svc Service, logger *slog.Logger, metrics *metrics.Metrics, opts ...Option) *Handler {
	h := &Handler{
		svc:       svc,
		logger:    logger,
		metrics:   metrics,
		heartbeat: 15 * time.Second,
		claimGate: func(next http.Handler) http.Handler { return next },
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register registers the bounty routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	router := chi.NewRouter()
	router.Use(middleware.Recovery(h.logger))
	router.Use(middleware.RequestID)
	router.Use(requesttime.Middleware)
	router.Use(metadata.ClientMetadata)
	router.Use(middleware.Logger(h.logger))
	router.Use(middleware.LatencyMiddleware(h.metrics))
	router.Use(middleware.ResolveIdentity(h.logger))

	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))
		r.Use(middleware.ContentTypeJSON)

		r.Post("/bounties", h.handlePublish)
		r.Get("/bounties", h.handleList)
		r.Get("/bounties/nearby", h.handleNearby)
		r.Get("/bounties/{id}", h.handleGet)
		r.With(h.claimGate).Post("/bounties/{id}/claims", h.handleClaim)
		r.Post("/bounties/{id}/cancel", h.handleCancel)
		r.Get("/stats", h.handleStats)
		r.Get("/events", h.handleEvents)
		r.Post("/puzzles", h.handleGeneratePuzzle)
		r.Get("/wallet", h.handleWallet)
		r.Post("/wallet/invoices", h.handleInvoice)
		r.Put("/location", h.handlePushLocation)
		r.Get("/location", h.handleCurrentLocation)
	})
	// Streams are long-lived and stay outside the request timeout.
	router.Get("/location/stream", h.handleLocationStream)

	r.Mount("/", router)
}

func (h *Handler) handlePublish(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.CreateBountyRequest
	if !h.decode(w, r, &req) {
		return
	}
	b, err := h.svc.PublishBounty(ctx, req, caller(ctx))
	if err != nil {
		h.writeError(ctx, w, "publish bounty", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, b)
}

type listResponse struct {
	Bounties []models.Bounty `json:"bounties"`
	Count    int             `json:"count"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter, err := parseListFilter(r)
	if err != nil {
		h.writeError(ctx, w, "list bounties", err)
		return
	}
	out := h.svc.List(ctx, filter)
	if out == nil {
		out = []models.Bounty{}
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Bounties: out, Count: len(out)})
}

type nearbyResponse struct {
	Origin   geo.Coordinate         `json:"origin"`
	Bounties []service.NearbyBounty `json:"bounties"`
	Count    int                    `json:"count"`
}

func (h *Handler) handleNearby(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	at, err := parseOptionalCoordinate(r)
	if err != nil {
		h.writeError(ctx, w, "nearby bounties", err)
		return
	}
	radius, err := parseFloat(r, "radius_km")
	if err != nil {
		h.writeError(ctx, w, "nearby bounties", err)
		return
	}
	out, origin, err := h.svc.Nearby(ctx, at, radius)
	if err != nil {
		h.writeError(ctx, w, "nearby bounties", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, nearbyResponse{Origin: origin, Bounties: out, Count: len(out)})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	bountyID, err := id.ParseBountyID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(ctx, w, "get bounty", err)
		return
	}
	b, err := h.svc.Get(ctx, bountyID)
	if err != nil {
		h.writeError(ctx, w, "get bounty", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, b)
}

// ClaimRequest carries the claimer's position and puzzle answer. A missing
// location is taken from the positioning service.
type ClaimRequest struct {
	Location     *geo.Coordinate `json:"location,omitempty"`
	PuzzleAnswer string          `json:"puzzle_answer,omitempty"`
}

// handleClaim answers 200 for both accepted and rejected decisions; only
// failures to decide are errors.
func (h *Handler) handleClaim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	bountyID, err := id.ParseBountyID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(ctx, w, "claim bounty", err)
		return
	}
	var req ClaimRequest
	if !h.decode(w, r, &req) {
		return
	}
	at, err := h.claimLocation(ctx, req.Location)
	if err != nil {
		h.writeError(ctx, w, "claim bounty", err)
		return
	}
	res, err := h.svc.ClaimBounty(ctx, bountyID, caller(ctx), at, req.PuzzleAnswer)
	if err != nil {
		h.writeError(ctx, w, "claim bounty", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) claimLocation(ctx context.Context, at *geo.Coordinate) (geo.Coordinate, error) {
	if at != nil {
		return *at, nil
	}
	if h.position == nil {
		return geo.Coordinate{}, positioning.ErrUnsupported
	}
	fix, err := h.position.CurrentFix(ctx)
	if err != nil {
		return geo.Coordinate{}, err
	}
	return fix.Coordinate, nil
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	bountyID, err := id.ParseBountyID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(ctx, w, "cancel bounty", err)
		return
	}
	b, err := h.svc.CancelBounty(ctx, bountyID, caller(ctx))
	if err != nil {
		h.writeError(ctx, w, "cancel bounty", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, b)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	at, err := parseOptionalCoordinate(r)
	if err != nil {
		h.writeError(ctx, w, "stats", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.svc.Stats(ctx, at))
}

type eventView struct {
	events.Event
	Author string `json:"author"`
}

type eventsResponse struct {
	Events []eventView `json:"events"`
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.feed == nil {
		h.writeError(ctx, w, "list events", dErrors.New(dErrors.CodeUnsupported, "event feed is not configured"))
		return
	}
	limit := defaultEventPage
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.writeError(ctx, w, "list events", dErrors.New(dErrors.CodeBadRequest, "limit must be a positive integer"))
			return
		}
		limit = min(n, maxEventPage)
	}
	recent := h.feed.ListRecent(limit)
	out := make([]eventView, len(recent))
	for i, e := range recent {
		out[i] = eventView{Event: e, Author: identity.Short(e.PubKey)}
	}
	httputil.WriteJSON(w, http.StatusOK, eventsResponse{Events: out})
}

func (h *Handler) handleGeneratePuzzle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.puzzles == nil {
		h.writeError(ctx, w, "generate puzzle", dErrors.New(dErrors.CodeUnsupported, "puzzle generation is not configured"))
		return
	}
	f := h.puzzles.Generate(ctx)
	defer f.Cancel()
	riddle, err := f.Await(ctx)
	if err != nil {
		h.writeError(ctx, w, "generate puzzle", classifyAsync(err, "puzzle generation"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"puzzle": riddle})
}

type walletResponse struct {
	Account string `json:"account"`
	Balance int64  `json:"balance"`
}

func (h *Handler) handleWallet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.wallet == nil {
		h.writeError(ctx, w, "wallet balance", dErrors.New(dErrors.CodeUnsupported, "wallet is not configured"))
		return
	}
	who, err := caller(ctx).Identify(ctx)
	if err != nil {
		h.writeError(ctx, w, "wallet balance", err)
		return
	}
	bal, err := h.wallet.Balance(ctx, who)
	if err != nil {
		h.writeError(ctx, w, "wallet balance", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, walletResponse{Account: who, Balance: bal})
}

type invoiceRequest struct {
	Amount int64  `json:"amount"`
	Memo   string `json:"memo"`
}

func (h *Handler) handleInvoice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.wallet == nil {
		h.writeError(ctx, w, "request invoice", dErrors.New(dErrors.CodeUnsupported, "wallet is not configured"))
		return
	}
	var req invoiceRequest
	if !h.decode(w, r, &req) {
		return
	}
	inv, err := h.wallet.RequestInvoice(ctx, req.Amount, strings.TrimSpace(req.Memo))
	if err != nil {
		h.writeError(ctx, w, "request invoice", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, inv)
}

// FixRequest is a device position report.
type FixRequest struct {
	Latitude  float64    `json:"lat"`
	Longitude float64    `json:"lng"`
	AccuracyM float64    `json:"accuracy_m,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

func (h *Handler) handlePushLocation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.sink == nil {
		h.writeError(ctx, w, "push location", positioning.ErrUnsupported)
		return
	}
	var req FixRequest
	if !h.decode(w, r, &req) {
		return
	}
	c, err := geo.NewCoordinate(req.Latitude, req.Longitude)
	if err != nil {
		h.writeError(ctx, w, "push location", err)
		return
	}
	fix := positioning.Fix{Coordinate: c, AccuracyM: req.AccuracyM, Timestamp: requestcontext.Now(ctx)}
	if req.Timestamp != nil {
		fix.Timestamp = *req.Timestamp
	}
	h.sink.Push(fix)
	w.WriteHeader(http.StatusNoContent)
}

type fixResponse struct {
	positioning.Fix
	AgeSeconds float64 `json:"age_seconds"`
}

func (h *Handler) handleCurrentLocation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.position == nil {
		h.writeError(ctx, w, "current location", positioning.ErrUnsupported)
		return
	}
	fix, err := h.position.CurrentFix(ctx)
	if err != nil {
		h.writeError(ctx, w, "current location", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fixResponse{Fix: fix, AgeSeconds: fix.Age(requestcontext.Now(ctx)).Seconds()})
}

// handleLocationStream relays position updates as server-sent events until
// the client goes away.
func (h *Handler) handleLocationStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.position == nil {
		h.writeError(ctx, w, "location stream", positioning.ErrUnsupported)
		return
	}
	rc := http.NewResponseController(w)

	type frame struct {
		event string
		data  any
	}
	frames := make(chan frame, 16)
	offer := func(f frame) {
		select {
		case frames <- f:
		default:
		}
	}
	sub, err := h.position.Watch(ctx,
		func(fix positioning.Fix) { offer(frame{event: "fix", data: fix}) },
		func(err error) {
			offer(frame{event: "error", data: map[string]string{"error": string(dErrors.CodeOf(err)), "error_description": err.Error()}})
		},
	)
	if err != nil {
		h.writeError(ctx, w, "location stream", err)
		return
	}
	defer sub.Cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		h.logger.WarnContext(ctx, "location stream not flushable", "error", err)
		return
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
		case f := <-frames:
			payload, err := json.Marshal(f.data)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", f.event, payload); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	ctx := r.Context()
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		h.logger.WarnContext(ctx, "invalid request body",
			"request_id", middleware.GetRequestID(ctx),
			"path", r.URL.Path,
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return false
	}
	return true
}

// writeError renders err. Internal failures are logged at error level and
// never leak their message.
func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	code := dErrors.CodeOf(err)
	args := []any{"request_id", middleware.GetRequestID(ctx), "op", op, "error", err.Error()}
	if code == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "request failed", args...)
	} else {
		h.logger.WarnContext(ctx, "request rejected", append(args, "code", string(code))...)
	}
	httputil.WriteError(w, err)
}

func caller(ctx context.Context) identity.Provider {
	return identity.FromID(requestcontext.Identity(ctx))
}

func classifyAsync(err error, what string) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, what+" timed out")
	case errors.Is(err, async.ErrCancelled), errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, what+" was cancelled")
	default:
		return err
	}
}

func parseListFilter(r *http.Request) (models.ListFilter, error) {
	var f models.ListFilter
	if raw := r.URL.Query().Get("status"); raw != "" {
		st := models.Status(strings.ToLower(raw))
		if !st.IsValid() {
			return f, dErrors.New(dErrors.CodeBadRequest, "unknown status "+strconv.Quote(raw))
		}
		f.Status = st
	}
	at, err := parseOptionalCoordinate(r)
	if err != nil {
		return f, err
	}
	if at == nil {
		return f, nil
	}
	radius, err := parseFloat(r, "radius_km")
	if err != nil {
		return f, err
	}
	if radius <= 0 {
		return f, dErrors.New(dErrors.CodeBadRequest, "radius_km is required with lat and lng")
	}
	f.Near = at
	f.RadiusKm = radius
	return f, nil
}

func parseOptionalCoordinate(r *http.Request) (*geo.Coordinate, error) {
	q := r.URL.Query()
	lat, lng := q.Get("lat"), q.Get("lng")
	if lat == "" && lng == "" {
		return nil, nil
	}
	if lat == "" || lng == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "lat and lng must be given together")
	}
	c, err := geo.ParseCoordinate(lat, lng)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func parseFloat(r *http.Request, key string) (float64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		return 0, dErrors.New(dErrors.CodeBadRequest, key+" must be a non-negative number")
	}
	return v, nil
}
