// Package sweeper runs the periodic bounty housekeeping: expiring bounties
// past their deadline, replaying escrow calls left in doubt and retrying
// refunds and payouts that failed earlier.
package sweeper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

const (
	DefaultInterval = time.Minute
	jobName         = "bounty-expiry"
)

// Job is the housekeeping the sweeper drives.
type Job interface {
	ExpireDue(ctx context.Context) (int, error)
	RetryPayouts(ctx context.Context) (int, error)
}

// Reconciler settles escrow operations whose outcome is unknown.
type Reconciler interface {
	Reconcile(ctx context.Context) (int, error)
}

// Result summarises one pass.
type Result struct {
	Reconciled int
	Expired    int
	Paid       int
	Err        error
}

type Sweeper struct {
	job        Job
	reconciler Reconciler
	interval   time.Duration
	timeout  time.Duration
	logger   *slog.Logger

	sched  gocron.Scheduler
	base   context.Context
	cancel context.CancelFunc
}

type Option func(*Sweeper)

// WithTimeout bounds a single pass. Defaults to the interval.
func WithTimeout(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithReconciler runs r at the start of every pass.
func WithReconciler(r Reconciler) Option {
	return func(s *Sweeper) {
		s.reconciler = r
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) {
		s.logger = logger
	}
}

// New schedules a pass every interval. Passes never overlap; a pass still
// running when the next is due pushes it back.
func New(job Job, interval time.Duration, opts ...Option) (*Sweeper, error) {
	if job == nil {
		return nil, errors.New("sweeper job is required")
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	s := &Sweeper{job: job, interval: interval, timeout: interval, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	s.sched = sched
	s.base, s.cancel = context.WithCancel(context.Background())

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { s.RunOnce(s.base) }),
		gocron.WithName(jobName),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		s.cancel()
		_ = sched.Shutdown()
		return nil, err
	}
	return s, nil
}

func (s *Sweeper) Start() {
	s.logger.Info("bounty sweeper started", "interval", s.interval.String())
	s.sched.Start()
}

// Shutdown aborts a running pass and stops the scheduler.
func (s *Sweeper) Shutdown() error {
	s.cancel()
	return s.sched.Shutdown()
}

// RunOnce performs a single pass.
func (s *Sweeper) RunOnce(ctx context.Context) Result {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var res Result
	var errs []error
	if s.reconciler != nil {
		n, err := s.reconciler.Reconcile(ctx)
		res.Reconciled = n
		if err != nil {
			errs = append(errs, err)
		}
	}
	expired, err := s.job.ExpireDue(ctx)
	res.Expired = expired
	if err != nil {
		errs = append(errs, err)
	}
	paid, err := s.job.RetryPayouts(ctx)
	res.Paid = paid
	if err != nil {
		errs = append(errs, err)
	}
	res.Err = errors.Join(errs...)

	switch {
	case res.Err != nil:
		s.logger.WarnContext(ctx, "bounty sweep incomplete",
			"reconciled", res.Reconciled,
			"expired", res.Expired,
			"paid", res.Paid,
			"error", res.Err,
		)
	case res.Reconciled > 0 || res.Expired > 0 || res.Paid > 0:
		s.logger.InfoContext(ctx, "bounty sweep",
			"reconciled", res.Reconciled,
			"expired", res.Expired,
			"paid", res.Paid,
		)
	}
	return res
}
