package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fjod/go_checkout/internal/domain"
	"github.com/fjod/go_checkout/internal/notify"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const (
	tracerName = "github.com/fjod/go_checkout/internal/tracker"

	DefaultOrderInterval  = 30 * time.Second
	DefaultCryptoInterval = 10 * time.Second
	DefaultNumberPattern  = `^[A-Z]{2,5}-[0-9]{3,}$`
)

var (
	ErrEmptyIdentifier = errors.New("order identifier is empty")
	ErrNotTracking     = errors.New("no order is being tracked")
	ErrNotAutomated    = errors.New("order is not paid through the payment gateway")
	ErrAlreadyPaid     = errors.New("order payment is already confirmed")
)

type Orders interface {
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	GetByNumber(ctx context.Context, number string) (*domain.Order, error)
}

type Settlement interface {
	Status(ctx context.Context, orderID string) (*domain.CryptoPaymentStatus, error)
	Regenerate(ctx context.Context, orderID string) (*domain.Invoice, error)
}

// Snapshot exposes the order and crypto statuses as last fetched. The two
// may disagree for a while; neither is corrected from the other.
type Snapshot struct {
	Identifier  string                      `json:"identifier"`
	Order       *domain.Order               `json:"order,omitempty"`
	Crypto      *domain.CryptoPaymentStatus `json:"crypto,omitempty"`
	Running     bool                        `json:"running"`
	UpdatedAt   time.Time                   `json:"updated_at"`
	LastPollErr string                      `json:"-"`
}

type Listener func(Snapshot)

// Tracker polls an order's status and, for gateway-settled orders, the
// crypto payment status. Each poll kind has its own monotonic token; a
// response is applied only if no newer response of that kind was applied
// before it, and nothing is applied after Stop.
type Tracker struct {
	orders         Orders
	settlement     Settlement
	orderInterval  time.Duration
	cryptoInterval time.Duration
	timeout        time.Duration
	numberPattern  *regexp.Regexp
	logger         *slog.Logger
	publisher      notify.Publisher
	sessionID      string

	mu            sync.Mutex
	gen           uint64
	running       bool
	cryptoRunning bool
	identifier    string
	order         *domain.Order
	crypto        *domain.CryptoPaymentStatus
	orderSeq      uint64
	orderApplied  uint64
	cryptoSeq     uint64
	cryptoApplied uint64
	updatedAt     time.Time
	lastPollErr   error
	loopCtx       context.Context
	cancel        context.CancelFunc
	stop          chan struct{}
	listeners     []Listener

	loops atomic.Int32
}

type Option func(*Tracker)

func WithIntervals(order, crypto time.Duration) Option {
	return func(t *Tracker) {
		if order > 0 {
			t.orderInterval = order
		}
		if crypto > 0 {
			t.cryptoInterval = crypto
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// WithNumberPattern sets the pattern that identifies human order numbers.
func WithNumberPattern(re *regexp.Regexp) Option {
	return func(t *Tracker) {
		if re != nil {
			t.numberPattern = re
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithPublisher emits a tracker event under sessionID on every applied change.
func WithPublisher(p notify.Publisher, sessionID string) Option {
	return func(t *Tracker) {
		if p != nil {
			t.publisher = p
			t.sessionID = sessionID
		}
	}
}

func New(orders Orders, settlement Settlement, opts ...Option) *Tracker {
	t := &Tracker{
		orders:         orders,
		settlement:     settlement,
		orderInterval:  DefaultOrderInterval,
		cryptoInterval: DefaultCryptoInterval,
		timeout:        10 * time.Second,
		numberPattern:  regexp.MustCompile(DefaultNumberPattern),
		logger:         slog.Default(),
		publisher:      notify.Discard{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tracker) OnChange(fn Listener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, fn)
}

// Start resolves identifier, an order id or a human order number, and
// begins polling. Starting with the identifier already tracked is a no-op;
// a different identifier restarts polling.
func (t *Tracker) Start(ctx context.Context, identifier string) error {
	if identifier == "" {
		return ErrEmptyIdentifier
	}
	t.mu.Lock()
	if t.running && t.identifier == identifier {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()
	t.Stop()

	lctx, cancel := context.WithTimeout(ctx, t.timeout)
	order, err := t.lookup(lctx, identifier)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to find order %s: %w", identifier, err)
	}
	if order == nil || order.ID == "" {
		return fmt.Errorf("failed to find order %s", identifier)
	}

	t.mu.Lock()
	// a concurrent Start may have installed loops since the Stop above
	t.stopLocked()
	t.gen++
	t.running = true
	t.cryptoRunning = false
	t.identifier = identifier
	t.order = order
	t.crypto = nil
	t.orderSeq, t.orderApplied = 0, 0
	t.cryptoSeq, t.cryptoApplied = 0, 0
	t.lastPollErr = nil
	t.updatedAt = time.Now()
	t.stop = make(chan struct{})
	t.loopCtx, t.cancel = context.WithCancel(context.Background())
	go t.loop(t.loopCtx, t.stop, t.orderInterval, t.PollOrder)
	if order.PaymentMethod.SupportsAutomatedSettlement {
		t.startCryptoLocked()
	}
	snap, listeners := t.snapshotLocked(), t.listenersLocked()
	t.mu.Unlock()

	t.logger.Info("tracking order", "order_id", order.ID, "order_number", order.OrderNumber)
	t.emit(snap, listeners)
	return nil
}

func (t *Tracker) lookup(ctx context.Context, identifier string) (*domain.Order, error) {
	if _, err := uuid.Parse(identifier); err == nil {
		return t.orders.GetByID(ctx, identifier)
	}
	if t.numberPattern.MatchString(identifier) {
		return t.orders.GetByNumber(ctx, identifier)
	}
	return t.orders.GetByID(ctx, identifier)
}

// Stop ends polling. In-flight responses are discarded.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopLocked() {
		t.logger.Info("stopped tracking order", "identifier", t.identifier)
	}
}

func (t *Tracker) stopLocked() bool {
	if !t.running {
		return false
	}
	t.running = false
	t.cryptoRunning = false
	t.gen++
	close(t.stop)
	t.cancel()
	return true
}

func (t *Tracker) startCryptoLocked() {
	if t.cryptoRunning || t.settlement == nil {
		return
	}
	t.cryptoRunning = true
	go t.PollCrypto(t.loopCtx)
	go t.loop(t.loopCtx, t.stop, t.cryptoInterval, t.PollCrypto)
}

// loop fires poll every interval. Polls run in their own goroutine so a
// slow response can overlap the next tick.
func (t *Tracker) loop(ctx context.Context, stop <-chan struct{}, interval time.Duration, poll func(context.Context)) {
	t.loops.Add(1)
	defer t.loops.Add(-1)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			go poll(ctx)
		}
	}
}

// PollOrder fetches the order status once. Failures are logged and the
// last good value is kept.
func (t *Tracker) PollOrder(ctx context.Context) {
	t.mu.Lock()
	if !t.running || t.order == nil {
		t.mu.Unlock()
		return
	}
	gen := t.gen
	t.orderSeq++
	token := t.orderSeq
	orderID := t.order.ID
	t.mu.Unlock()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "tracker.PollOrder")
	span.SetAttributes(attribute.String("order.id", orderID))
	defer span.End()

	pctx, cancel := context.WithTimeout(ctx, t.timeout)
	order, err := t.orders.GetByID(pctx, orderID)
	cancel()

	t.mu.Lock()
	if gen != t.gen || !t.running {
		t.mu.Unlock()
		return
	}
	if err != nil || order == nil {
		if err == nil {
			err = errors.New("empty order response")
		}
		t.lastPollErr = err
		t.mu.Unlock()
		span.RecordError(err)
		t.logger.Warn("order status poll failed", "order_id", orderID, "err", err)
		return
	}
	if token <= t.orderApplied {
		t.mu.Unlock()
		return
	}
	t.orderApplied = token
	t.order = order
	t.lastPollErr = nil
	t.updatedAt = time.Now()
	if order.PaymentMethod.SupportsAutomatedSettlement {
		t.startCryptoLocked()
	}
	snap, listeners := t.snapshotLocked(), t.listenersLocked()
	t.mu.Unlock()

	t.emit(snap, listeners)
}

// PollCrypto fetches the crypto payment status once. Failures are logged
// and the last good value is kept.
func (t *Tracker) PollCrypto(ctx context.Context) {
	t.mu.Lock()
	if !t.running || t.order == nil || t.settlement == nil {
		t.mu.Unlock()
		return
	}
	gen := t.gen
	t.cryptoSeq++
	token := t.cryptoSeq
	orderID := t.order.ID
	t.mu.Unlock()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "tracker.PollCrypto")
	span.SetAttributes(attribute.String("order.id", orderID))
	defer span.End()

	pctx, cancel := context.WithTimeout(ctx, t.timeout)
	status, err := t.settlement.Status(pctx, orderID)
	cancel()

	t.mu.Lock()
	if gen != t.gen || !t.running {
		t.mu.Unlock()
		return
	}
	if err != nil || status == nil {
		if err == nil {
			err = errors.New("empty payment status response")
		}
		t.lastPollErr = err
		t.mu.Unlock()
		span.RecordError(err)
		t.logger.Warn("crypto status poll failed", "order_id", orderID, "err", err)
		return
	}
	if token <= t.cryptoApplied {
		t.mu.Unlock()
		return
	}
	t.cryptoApplied = token
	t.crypto = status
	t.lastPollErr = nil
	t.updatedAt = time.Now()
	snap, listeners := t.snapshotLocked(), t.listenersLocked()
	t.mu.Unlock()

	t.emit(snap, listeners)
}

// RegeneratePayment requests a new invoice for the tracked order and
// returns its payment URL. Paid amount, currency and hash are reset to
// unknown; the order status is left as last polled.
func (t *Tracker) RegeneratePayment(ctx context.Context) (string, error) {
	t.mu.Lock()
	if !t.running || t.order == nil {
		t.mu.Unlock()
		return "", domain.Validation(ErrNotTracking)
	}
	if !t.order.PaymentMethod.SupportsAutomatedSettlement || t.settlement == nil {
		t.mu.Unlock()
		return "", domain.Validation(ErrNotAutomated)
	}
	if c := t.crypto; c != nil && (c.Status == domain.CryptoStatusPaid || c.Status == domain.CryptoStatusPaidOver) {
		t.mu.Unlock()
		return "", domain.Validation(ErrAlreadyPaid)
	}
	gen := t.gen
	orderID := t.order.ID
	t.mu.Unlock()

	rctx, cancel := context.WithTimeout(ctx, t.timeout)
	inv, err := t.settlement.Regenerate(rctx, orderID)
	cancel()
	if err == nil && (inv == nil || inv.PaymentURL == "") {
		err = errors.New("invoice has no payment url")
	}
	if err != nil {
		t.logger.Error("payment regeneration failed", "order_id", orderID, "err", err)
		return "", domain.NewError(domain.KindInvoice, "a new payment link could not be created", err)
	}

	t.mu.Lock()
	if gen != t.gen || !t.running {
		t.mu.Unlock()
		return inv.PaymentURL, nil
	}
	// responses to polls issued before the new invoice are stale
	t.cryptoSeq++
	t.cryptoApplied = t.cryptoSeq
	t.crypto = &domain.CryptoPaymentStatus{
		Status:     domain.CryptoStatusUnknown,
		Amount:     inv.Amount,
		PaymentURL: inv.PaymentURL,
		ExpiresAt:  inv.ExpiresAt,
	}
	t.updatedAt = time.Now()
	snap, listeners := t.snapshotLocked(), t.listenersLocked()
	t.mu.Unlock()

	t.logger.Info("payment regenerated", "order_id", orderID, "invoice_id", inv.InvoiceID)
	t.emit(snap, listeners)
	return inv.PaymentURL, nil
}

func (t *Tracker) State() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) snapshotLocked() Snapshot {
	s := Snapshot{
		Identifier: t.identifier,
		Running:    t.running,
		UpdatedAt:  t.updatedAt,
	}
	if t.order != nil {
		o := *t.order
		s.Order = &o
	}
	if t.crypto != nil {
		c := *t.crypto
		s.Crypto = &c
	}
	if t.lastPollErr != nil {
		s.LastPollErr = t.lastPollErr.Error()
	}
	return s
}

func (t *Tracker) listenersLocked() []Listener {
	out := make([]Listener, len(t.listeners))
	copy(out, t.listeners)
	return out
}

func (t *Tracker) emit(s Snapshot, listeners []Listener) {
	for _, fn := range listeners {
		fn(s)
	}
	if t.sessionID == "" {
		return
	}
	if err := t.publisher.Publish(context.Background(), notify.NewEvent(notify.EventTracker, t.sessionID, s)); err != nil {
		t.logger.Warn("failed to publish tracker event", "err", err)
	}
}
