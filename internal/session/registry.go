package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fjod/go_checkout/internal/cart"
	"github.com/fjod/go_checkout/internal/checkout"
	"github.com/fjod/go_checkout/internal/notify"
	"github.com/fjod/go_checkout/internal/pricing"
	"github.com/fjod/go_checkout/internal/proof"
	"github.com/fjod/go_checkout/internal/snapshot"
	"github.com/fjod/go_checkout/internal/tracker"
)

var (
	ErrNotFound  = errors.New("session not found")
	ErrInvalidID = errors.New("session id must be a uuid")
)

// Orders is the order collaborator as both the machine and the tracker see it.
type Orders interface {
	checkout.OrderCanceller
	tracker.Orders
}

// Deps are shared by every session. Per-session state (cart, quote,
// checkout, tracking) is built on top of them.
type Deps struct {
	Snapshots         snapshot.Store
	Identity          checkout.Identity
	Methods           checkout.PaymentMethods
	Pricing           pricing.Client
	ConversionMethods []string
	Submission        checkout.Submitter
	Prices            checkout.PriceRefresher
	Uploader          proof.Uploader
	Orders            Orders
	Settlement        tracker.Settlement
	HandOff           checkout.HandOff
	Publisher         notify.Publisher
}

// Session is one buyer's cart, checkout and order tracking.
type Session struct {
	ID       string
	Cart     *cart.Store
	Checkout *checkout.Machine
	Tracker  *tracker.Tracker

	mu       sync.Mutex
	lastSeen time.Time
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

func (s *Session) close() {
	s.Checkout.Close()
	s.Tracker.Stop()
}

type Option func(*Registry)

func WithIdleTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.idle = d
		}
	}
}

func WithCheckoutOptions(opts ...checkout.Option) Option {
	return func(r *Registry) { r.checkoutOpts = append(r.checkoutOpts, opts...) }
}

func WithTrackerOptions(opts ...tracker.Option) Option {
	return func(r *Registry) { r.trackerOpts = append(r.trackerOpts, opts...) }
}

func WithClock(clock func() time.Time) Option {
	return func(r *Registry) { r.now = clock }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// Registry owns the live sessions and expires idle ones.
type Registry struct {
	deps         Deps
	checkoutOpts []checkout.Option
	trackerOpts  []tracker.Option
	idle         time.Duration
	now          func() time.Time
	logger       *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry(deps Deps, opts ...Option) *Registry {
	if deps.Publisher == nil {
		deps.Publisher = notify.Discard{}
	}
	r := &Registry{
		deps:     deps,
		idle:     30 * time.Minute,
		now:      time.Now,
		logger:   slog.Default(),
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create starts a session. A non-empty id resumes a previous session whose
// cart snapshot is restored; an empty id gets a fresh one. Creating an id
// that is already live returns the live session.
func (r *Registry) Create(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		id = uuid.NewString()
	} else if _, err := uuid.Parse(id); err != nil {
		return nil, ErrInvalidID
	}

	r.mu.Lock()
	if s, ok := r.sessions[id]; ok {
		r.mu.Unlock()
		s.touch(r.now())
		return s, nil
	}
	r.mu.Unlock()

	s := r.build(id)
	if err := s.Cart.Load(ctx); err != nil {
		r.logger.Warn("cart snapshot not restored", "session_id", id, "err", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.sessions[id]; ok {
		s.close()
		existing.touch(r.now())
		return existing, nil
	}
	r.sessions[id] = s
	r.logger.Debug("session created", "session_id", id)
	return s, nil
}

func (r *Registry) build(id string) *Session {
	logger := r.logger.With("session_id", id)
	store := cart.NewStore(id, r.deps.Snapshots, logger)

	machineOpts := append([]checkout.Option{
		checkout.WithLogger(logger),
		checkout.WithPublisher(r.deps.Publisher),
	}, r.checkoutOpts...)
	machine := checkout.New(id, checkout.Deps{
		Cart:       store,
		Identity:   r.deps.Identity,
		Methods:    r.deps.Methods,
		Pricing:    pricing.NewResolver(r.deps.Pricing, r.deps.ConversionMethods, logger),
		Submission: r.deps.Submission,
		Prices:     r.deps.Prices,
		Uploader:   r.deps.Uploader,
		Orders:     r.deps.Orders,
		HandOff:    r.deps.HandOff,
	}, machineOpts...)

	trackerOpts := append([]tracker.Option{
		tracker.WithLogger(logger),
		tracker.WithPublisher(r.deps.Publisher, id),
	}, r.trackerOpts...)
	trk := tracker.New(r.deps.Orders, r.deps.Settlement, trackerOpts...)

	return &Session{
		ID:       id,
		Cart:     store,
		Checkout: machine,
		Tracker:  trk,
		lastSeen: r.now(),
	}
}

// Get returns a live session and marks it as used.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	s.touch(r.now())
	return s, nil
}

// Close stops a session's background work and forgets it. The persisted
// cart snapshot is kept.
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	s.close()
	return nil
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep closes sessions idle for longer than the idle timeout and returns
// how many were closed.
func (r *Registry) Sweep(now time.Time) int {
	var expired []*Session
	r.mu.Lock()
	for id, s := range r.sessions {
		if now.Sub(s.idleSince()) > r.idle {
			expired = append(expired, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range expired {
		s.close()
		r.logger.Info("session expired", "session_id", s.ID)
	}
	return len(expired)
}

// Run sweeps idle sessions until ctx is done.
func (r *Registry) Run(ctx context.Context) {
	interval := r.idle / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(r.now())
		}
	}
}

// CloseAll stops every session, for shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()
	for _, s := range sessions {
		s.close()
	}
}
