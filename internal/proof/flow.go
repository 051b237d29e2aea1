package proof

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/fjod/go_checkout/internal/domain"
)

type State string

const (
	StateAwaitingProof State = "AWAITING_PROOF"
	StateUploading     State = "UPLOADING"
	StateSucceeded     State = "SUCCEEDED"
	StateExpired       State = "EXPIRED"
	StateFailed        State = "FAILED"
)

func (s State) IsTerminal() bool {
	return s == StateSucceeded || s == StateExpired
}

var (
	ErrNoFile           = errors.New("proof file is required")
	ErrUploadInProgress = errors.New("a proof upload is already in progress")
	ErrAlreadySubmitted = errors.New("proof was already submitted for this order")
)

// Upload is a buyer-initiated proof submission.
type Upload struct {
	File        io.Reader
	Filename    string
	ContentType string
	MethodID    string
	Reference   string
	Notes       string
}

// Uploader is the proof upload collaborator. It must return an error
// wrapping domain.ErrOrderExpired when the backend reports the order expired.
type Uploader interface {
	Upload(ctx context.Context, orderID string, u Upload) (*domain.UploadReceipt, error)
}

// Snapshot is the observable state of a flow.
type Snapshot struct {
	OrderID   string        `json:"order_id"`
	State     State         `json:"state"`
	Remaining time.Duration `json:"-"`
	Seconds   int64         `json:"remaining_seconds"`
	Warning   string        `json:"warning,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// Outcome is what an upload attempt resolved to.
type Outcome struct {
	State   State
	Receipt *domain.UploadReceipt
	Warning string
}

type Listener func(Snapshot)

// Flow owns the proof-upload countdown for one order.
type Flow struct {
	orderID  string
	methodID string
	deadline *time.Time
	uploader Uploader
	clock    func() time.Time
	tick     time.Duration
	timeout  time.Duration
	logger   *slog.Logger

	mu        sync.Mutex
	state     State
	remaining time.Duration
	warning   string
	lastErr   error
	listeners []Listener

	stopOnce sync.Once
	stop     chan struct{}
}

type Option func(*Flow)

// WithClock replaces time.Now, mainly for tests.
func WithClock(clock func() time.Time) Option {
	return func(f *Flow) { f.clock = clock }
}

func WithTick(d time.Duration) Option {
	return func(f *Flow) {
		if d > 0 {
			f.tick = d
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(f *Flow) {
		if d > 0 {
			f.timeout = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(f *Flow) {
		if l != nil {
			f.logger = l
		}
	}
}

// New enters AwaitingProof for order. An order without ExpiresAt has no
// local deadline; only the backend can expire it.
func New(order *domain.Order, uploader Uploader, opts ...Option) *Flow {
	f := &Flow{
		orderID:  order.ID,
		methodID: order.PaymentMethod.ID,
		uploader: uploader,
		clock:    time.Now,
		tick:     time.Second,
		timeout:  60 * time.Second,
		logger:   slog.Default(),
		state:    StateAwaitingProof,
		stop:     make(chan struct{}),
	}
	if order.ExpiresAt != nil {
		d := *order.ExpiresAt
		f.deadline = &d
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.With("order_id", f.orderID)
	f.mu.Lock()
	f.recompute(f.clock())
	f.mu.Unlock()
	return f
}

func (f *Flow) OnChange(fn Listener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners = append(f.listeners, fn)
}

// Run ticks the countdown until ctx is done, Stop is called, or the flow
// reaches a terminal state.
func (f *Flow) Run(ctx context.Context) {
	ticker := time.NewTicker(f.tick)
	defer ticker.Stop()

	for {
		if f.Tick(f.clock()).IsTerminal() {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-f.stop:
			return
		case <-ticker.C:
		}
	}
}

// Stop ends Run. It does not change the flow state.
func (f *Flow) Stop() {
	f.stopOnce.Do(func() { close(f.stop) })
}

// Tick recomputes the remaining time as of now and returns the resulting
// state. The transition to Expired happens at most once.
func (f *Flow) Tick(now time.Time) State {
	f.mu.Lock()
	if f.state.IsTerminal() {
		state := f.state
		f.mu.Unlock()
		return state
	}
	expired := f.recompute(now)
	snap, listeners := f.snapshotLocked(), f.listenersLocked()
	f.mu.Unlock()

	if expired {
		f.logger.Info("proof window expired")
	}
	notify(listeners, snap)
	return snap.State
}

// Upload submits a proof. Uploads are refused locally, without a request,
// once the flow is expired or succeeded or while another upload is running.
func (f *Flow) Upload(ctx context.Context, u Upload) (Outcome, error) {
	f.mu.Lock()
	expiredNow := f.recompute(f.clock())
	switch f.state {
	case StateExpired:
		snap, listeners := f.snapshotLocked(), f.listenersLocked()
		f.mu.Unlock()
		if expiredNow {
			notify(listeners, snap)
		}
		return Outcome{State: StateExpired}, expiredError(nil)
	case StateSucceeded:
		f.mu.Unlock()
		return Outcome{State: StateSucceeded}, domain.Validation(ErrAlreadySubmitted)
	case StateUploading:
		f.mu.Unlock()
		return Outcome{State: StateUploading}, domain.Validation(ErrUploadInProgress)
	}
	if u.File == nil {
		f.mu.Unlock()
		return Outcome{State: f.state}, domain.Validation(ErrNoFile)
	}
	if u.MethodID == "" {
		u.MethodID = f.methodID
	}
	f.state = StateUploading
	f.warning = ""
	f.lastErr = nil
	snap, listeners := f.snapshotLocked(), f.listenersLocked()
	f.mu.Unlock()
	notify(listeners, snap)

	upCtx, cancel := context.WithTimeout(ctx, f.timeout)
	receipt, err := f.uploader.Upload(upCtx, f.orderID, u)
	cancel()

	return f.finish(receipt, err)
}

func (f *Flow) finish(receipt *domain.UploadReceipt, err error) (Outcome, error) {
	f.mu.Lock()
	f.recompute(f.clock())

	if f.state == StateExpired {
		snap, listeners := f.snapshotLocked(), f.listenersLocked()
		f.mu.Unlock()
		notify(listeners, snap)
		if err == nil {
			f.logger.Warn("proof accepted by backend after local expiry")
		}
		return Outcome{State: StateExpired, Receipt: receipt}, expiredError(err)
	}

	if err != nil {
		if errors.Is(err, domain.ErrOrderExpired) {
			f.state = StateExpired
			f.remaining = 0
			f.lastErr = err
			snap, listeners := f.snapshotLocked(), f.listenersLocked()
			f.mu.Unlock()
			f.logger.Info("backend reports order expired")
			notify(listeners, snap)
			return Outcome{State: StateExpired}, expiredError(err)
		}
		f.state = StateFailed
		f.lastErr = err
		snap, listeners := f.snapshotLocked(), f.listenersLocked()
		f.mu.Unlock()
		f.logger.Warn("proof upload failed", "err", err)
		notify(listeners, snap)
		return Outcome{State: StateFailed}, domain.NewError(domain.KindUpload, "the proof could not be uploaded, please try again", err)
	}

	var warning string
	if receipt != nil {
		warning = receipt.Warning
	}
	if warning != "" {
		f.warning = warning
		snap, listeners := f.snapshotLocked(), f.listenersLocked()
		f.mu.Unlock()
		notify(listeners, snap)
		f.mu.Lock()
	}
	f.state = StateSucceeded
	snap, listeners := f.snapshotLocked(), f.listenersLocked()
	f.mu.Unlock()
	notify(listeners, snap)
	f.Stop()

	return Outcome{State: StateSucceeded, Receipt: receipt, Warning: warning}, nil
}

func (f *Flow) State() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

func (f *Flow) Remaining() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.remaining
}

func (f *Flow) OrderID() string {
	return f.orderID
}

// recompute updates remaining time and reports whether this call moved the
// flow to Expired. Caller holds f.mu.
func (f *Flow) recompute(now time.Time) bool {
	if f.deadline == nil || f.state.IsTerminal() {
		if f.state == StateExpired {
			f.remaining = 0
		}
		return false
	}
	left := f.deadline.Sub(now)
	if left > 0 {
		// whole seconds, rounded up so the display reaches 0 only at expiry
		f.remaining = ((left + time.Second - 1) / time.Second) * time.Second
		return false
	}
	f.remaining = 0
	f.state = StateExpired
	return true
}

func (f *Flow) snapshotLocked() Snapshot {
	s := Snapshot{
		OrderID:   f.orderID,
		State:     f.state,
		Remaining: f.remaining,
		Seconds:   int64(f.remaining / time.Second),
		Warning:   f.warning,
	}
	if f.lastErr != nil {
		s.Error = f.lastErr.Error()
	}
	return s
}

func (f *Flow) listenersLocked() []Listener {
	out := make([]Listener, len(f.listeners))
	copy(out, f.listeners)
	return out
}

func notify(listeners []Listener, s Snapshot) {
	for _, fn := range listeners {
		fn(s)
	}
}

func expiredError(cause error) error {
	if cause == nil || !errors.Is(cause, domain.ErrOrderExpired) {
		cause = errors.Join(domain.ErrOrderExpired, cause)
	}
	return domain.NewError(domain.KindExpired, "the payment window for this order has closed, please start a new order", cause)
}
