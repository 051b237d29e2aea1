package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fjod/go_checkout/internal/domain"
	"github.com/fjod/go_checkout/internal/notify"
	"github.com/fjod/go_checkout/internal/proof"
	"github.com/fjod/go_checkout/internal/submission"
)

var (
	// ErrUnknownMethod is returned when the selected method is not in the active list.
	ErrUnknownMethod = errors.New("payment method is not available")
	// ErrSubmissionInProgress is returned while a previous PlaceOrder is in flight.
	ErrSubmissionInProgress = errors.New("order submission is already in progress")
	// ErrQuoteRequired is returned when a conversion method has no quote yet.
	ErrQuoteRequired = errors.New("a price quote is required for this payment method")
	// ErrNoHandOff is returned when no hand-off channel is configured.
	ErrNoHandOff = errors.New("manual hand-off is not configured")
	// ErrNothingToRetry is returned by RetryInvoice when no invoice is pending.
	ErrNothingToRetry = errors.New("no order is waiting for a payment invoice")
)

// heldOrder is the order created for the current checkout. It is reused
// while the payment method and cart are unchanged.
type heldOrder struct {
	order          *domain.Order
	methodID       string
	cartVersion    uint64
	flow           *proof.Flow
	invoicePending bool
	settled        bool
}

// Machine sequences one buyer's checkout.
type Machine struct {
	sessionID   string
	cart        Cart
	identitySvc Identity
	methodsSvc  PaymentMethods
	pricing     Quoter
	submitter   Submitter
	prices      PriceRefresher
	uploader    proof.Uploader
	orders      OrderCanceller
	handOff     HandOff

	manualCheckout bool
	botTypes       []string
	proofOpts      []proof.Option
	timeout        time.Duration
	logger         *slog.Logger
	publisher      notify.Publisher

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	step        domain.Step
	identity    *domain.IdentityResult
	methods     []domain.PaymentMethod
	method      *domain.PaymentMethod
	selection   uint64
	quote       *domain.QuoteResult
	held        *heldOrder
	cartVersion uint64
	submitting  bool
	paymentURL  string
	handOffURL  string
	lastErr     *domain.Error
	proofState  proof.State
	outbox      []notify.Event
}

type Option func(*Machine)

// WithManualCheckout enables the hand-off branch for carts with
// manual-process items.
func WithManualCheckout(enabled bool) Option {
	return func(m *Machine) { m.manualCheckout = enabled }
}

// WithBotRequiredTypes sets the item types that can only be delivered by a
// gifting bot befriended with the buyer.
func WithBotRequiredTypes(types ...string) Option {
	return func(m *Machine) { m.botTypes = types }
}

// WithProofOptions is passed to every proof flow the machine starts.
func WithProofOptions(opts ...proof.Option) Option {
	return func(m *Machine) { m.proofOpts = opts }
}

// WithTimeout bounds each collaborator call.
func WithTimeout(d time.Duration) Option {
	return func(m *Machine) {
		if d > 0 {
			m.timeout = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithPublisher sets where checkout events are published.
func WithPublisher(p notify.Publisher) Option {
	return func(m *Machine) {
		if p != nil {
			m.publisher = p
		}
	}
}

func New(sessionID string, deps Deps, opts ...Option) *Machine {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Machine{
		sessionID:   sessionID,
		cart:        deps.Cart,
		identitySvc: deps.Identity,
		methodsSvc:  deps.Methods,
		pricing:     deps.Pricing,
		submitter:   deps.Submission,
		prices:      deps.Prices,
		uploader:    deps.Uploader,
		orders:      deps.Orders,
		handOff:     deps.HandOff,
		timeout:     10 * time.Second,
		logger:      slog.Default(),
		publisher:   notify.Discard{},
		ctx:         ctx,
		cancel:      cancel,
		step:        domain.StepVerifyIdentity,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("session_id", sessionID)
	m.cart.OnChange(m.onCartChange)
	return m
}

// Close stops background work owned by the machine. It does not cancel
// any order.
func (m *Machine) Close() {
	m.mu.Lock()
	h := m.held
	m.mu.Unlock()
	if h != nil && h.flow != nil {
		h.flow.Stop()
	}
	m.cancel()
}

func (m *Machine) SessionID() string {
	return m.sessionID
}

func (m *Machine) Step() domain.Step {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.step
}

// RequestCode asks the identity collaborator to send a one-time code.
func (m *Machine) RequestCode(ctx context.Context, contact string) error {
	if contact == "" {
		return domain.Validation(domain.ErrMissingIdentity)
	}
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	if err := m.identitySvc.SendCode(ctx, contact); err != nil {
		return domain.NewError(domain.KindValidation, "verification code could not be sent", err)
	}
	return nil
}

// VerifyIdentity completes the identity gate. On success the machine moves
// to payment selection, or to the manual hand-off when the cart holds
// manual-process items and manual checkout is enabled.
func (m *Machine) VerifyIdentity(ctx context.Context, contact, code string) (domain.Step, error) {
	defer m.flush(ctx)

	m.mu.Lock()
	if m.step != domain.StepVerifyIdentity {
		defer m.mu.Unlock()
		return m.step, m.illegalLocked(domain.StepSelectPaymentMethod)
	}
	if m.cart.IsEmpty() {
		defer m.mu.Unlock()
		return m.leaveLocked(), m.failLocked(domain.Validation(domain.ErrEmptyCart))
	}
	m.mu.Unlock()

	vctx, cancel := context.WithTimeout(ctx, m.timeout)
	res, err := m.identitySvc.Verify(vctx, contact, code)
	cancel()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.step != domain.StepVerifyIdentity {
		return m.step, m.illegalLocked(domain.StepSelectPaymentMethod)
	}
	if err != nil {
		return m.step, m.failLocked(domain.NewError(domain.KindValidation, "identity could not be verified", err))
	}
	if res == nil || !res.Verified || res.CustomerID == "" {
		return m.step, m.failLocked(domain.Validation(domain.ErrMissingIdentity))
	}
	if res.Bots != nil && !res.Bots.Available && len(m.botTypes) > 0 && m.cart.HasItemsOfType(m.botTypes...) {
		return m.step, m.failLocked(&domain.Error{
			Kind:    domain.KindBotsUnavailable,
			Message: "add one of our gifting bots as a friend before ordering these items",
			Bots:    res.Bots.Bots,
		})
	}

	m.identity = res
	m.lastErr = nil
	m.logger.Info("identity verified", "customer_id", res.CustomerID)

	if m.manualCheckout && m.cart.HasManualProcessItems() {
		if _, err := m.handOffLocked("cart contains items delivered manually"); err != nil {
			return m.step, err
		}
		return m.step, nil
	}
	if err := m.transitionLocked(domain.StepSelectPaymentMethod); err != nil {
		return m.step, err
	}
	return m.step, nil
}

// ListPaymentMethods loads the active payment methods for selection.
func (m *Machine) ListPaymentMethods(ctx context.Context) ([]domain.PaymentMethod, error) {
	lctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	methods, err := m.methodsSvc.ListActive(lctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment methods: %w", err)
	}

	m.mu.Lock()
	m.methods = methods
	m.mu.Unlock()

	out := make([]domain.PaymentMethod, len(methods))
	copy(out, methods)
	return out, nil
}

// SelectPaymentMethod makes methodID the current selection and resolves its
// quote. If another selection is made while the quote is in flight, the late
// result is not applied and domain.ErrStaleQuote is returned. A degraded
// quote is not an error; it enables the hand-off fallback.
func (m *Machine) SelectPaymentMethod(ctx context.Context, methodID string) (domain.QuoteResult, error) {
	defer m.flush(ctx)

	m.mu.Lock()
	loaded := len(m.methods) > 0
	m.mu.Unlock()
	if !loaded {
		if _, err := m.ListPaymentMethods(ctx); err != nil {
			return domain.QuoteResult{}, err
		}
	}

	m.mu.Lock()
	if m.step != domain.StepSelectPaymentMethod {
		defer m.mu.Unlock()
		return domain.QuoteResult{}, m.illegalLocked(domain.StepReviewOrder)
	}
	method, ok := m.findMethodLocked(methodID)
	if !ok {
		defer m.mu.Unlock()
		return domain.QuoteResult{}, m.failLocked(domain.Validation(fmt.Errorf("%w: %s", ErrUnknownMethod, methodID)))
	}
	m.method = &method
	m.quote = nil
	m.lastErr = nil
	m.selection++
	selection := m.selection
	subtotal := m.cart.Totals().Subtotal
	m.mu.Unlock()

	res, err := m.pricing.Resolve(ctx, subtotal, method)

	m.mu.Lock()
	defer m.mu.Unlock()
	if errors.Is(err, domain.ErrStaleQuote) || selection != m.selection {
		m.logger.Debug("ignoring late quote", "method", method.ID)
		return res, domain.ErrStaleQuote
	}
	m.quote = &res
	m.queueLocked(notify.EventQuote, res)
	if res.Degraded {
		m.setErrorLocked(&domain.Error{Kind: domain.KindDegradedQuote, Message: res.Reason, Err: domain.ErrDegradedQuote})
	}
	return res, nil
}

// Continue moves from payment selection to review.
func (m *Machine) Continue(ctx context.Context) (domain.Step, error) {
	defer m.flush(ctx)

	m.mu.Lock()
	if m.step != domain.StepSelectPaymentMethod {
		defer m.mu.Unlock()
		return m.step, m.illegalLocked(domain.StepReviewOrder)
	}
	if m.cart.IsEmpty() && m.held == nil {
		defer m.mu.Unlock()
		return m.leaveLocked(), m.failLocked(domain.Validation(domain.ErrEmptyCart))
	}
	if m.identity == nil {
		defer m.mu.Unlock()
		return m.step, m.failLocked(domain.Validation(domain.ErrMissingIdentity))
	}
	if m.method == nil {
		defer m.mu.Unlock()
		return m.step, m.failLocked(domain.Validation(domain.ErrMissingPaymentMethod))
	}
	if err := m.transitionLocked(domain.StepReviewOrder); err != nil {
		defer m.mu.Unlock()
		return m.step, err
	}
	ids := itemIDs(m.cart.Lines())
	m.mu.Unlock()

	if m.prices != nil {
		if err := m.prices.Refresh(ctx, ids); err != nil {
			m.logger.Warn("authoritative prices unavailable, using cart prices", "err", err)
		}
	}
	return domain.StepReviewOrder, nil
}

// Back moves ReviewOrder to SelectPaymentMethod and UploadProof to
// ReviewOrder. Nothing already committed is undone or repeated.
func (m *Machine) Back(ctx context.Context) (domain.Step, error) {
	defer m.flush(ctx)
	m.mu.Lock()
	defer m.mu.Unlock()

	var to domain.Step
	switch m.step {
	case domain.StepReviewOrder:
		to = domain.StepSelectPaymentMethod
	case domain.StepUploadProof:
		to = domain.StepReviewOrder
	default:
		return m.step, m.illegalLocked(m.step)
	}
	if err := m.transitionLocked(to); err != nil {
		return m.step, err
	}
	return to, nil
}

// PlaceOrder submits the order from ReviewOrder. An order already created
// for the same method and cart is reused instead of creating another one.
func (m *Machine) PlaceOrder(ctx context.Context) (submission.Result, error) {
	defer m.flush(ctx)

	m.mu.Lock()
	if err := m.placeGuardLocked(); err != nil {
		defer m.mu.Unlock()
		return submission.Result{}, err
	}

	if h := m.held; h != nil && h.methodID == m.method.ID && (h.cartVersion == m.cartVersion || m.cart.IsEmpty()) && !h.settled {
		switch {
		case h.flow != nil && h.flow.State().State != proof.StateExpired:
			defer m.mu.Unlock()
			m.logger.Info("reusing order", "order_id", h.order.ID)
			if err := m.transitionLocked(domain.StepUploadProof); err != nil {
				return submission.Result{}, err
			}
			return submission.Result{Kind: submission.KindManualProof, Order: h.order}, nil
		case h.invoicePending:
			m.mu.Unlock()
			return m.retryInvoice(ctx, h)
		}
	}

	m.submitting = true
	method := *m.method
	customerID := m.identity.CustomerID
	version := m.cartVersion
	m.mu.Unlock()

	res, err := m.submitter.Submit(ctx, m.cart, method, customerID)

	m.mu.Lock()
	m.submitting = false
	out, release, outErr := m.applySubmissionLocked(res, err, method.ID, version)
	m.mu.Unlock()

	if release != nil {
		m.release(ctx, release)
	}
	return out, outErr
}

// RetryInvoice retries the settlement invoice of an order whose invoice
// creation failed. The order is not re-created.
func (m *Machine) RetryInvoice(ctx context.Context) (submission.Result, error) {
	defer m.flush(ctx)

	m.mu.Lock()
	h := m.held
	if m.step != domain.StepReviewOrder || h == nil || !h.invoicePending || m.submitting {
		defer m.mu.Unlock()
		return submission.Result{}, m.failLocked(domain.Validation(ErrNothingToRetry))
	}
	m.mu.Unlock()
	return m.retryInvoice(ctx, h)
}

func (m *Machine) retryInvoice(ctx context.Context, h *heldOrder) (submission.Result, error) {
	m.mu.Lock()
	m.submitting = true
	m.mu.Unlock()

	res, err := m.submitter.RetryInvoice(ctx, m.cart, h.order)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitting = false
	if err != nil {
		return res, m.failLocked(err)
	}
	h.invoicePending = false
	h.settled = true
	m.paymentURL = res.PaymentURL
	m.lastErr = nil
	if err := m.transitionLocked(domain.StepRedirected); err != nil {
		return res, err
	}
	m.queueLocked(notify.EventRedirect, map[string]string{"order_id": h.order.ID, "payment_url": res.PaymentURL})
	return res, nil
}

func (m *Machine) placeGuardLocked() error {
	if m.step != domain.StepReviewOrder {
		return m.illegalLocked(domain.StepUploadProof)
	}
	if m.submitting {
		return domain.Validation(ErrSubmissionInProgress)
	}
	if m.cart.IsEmpty() && m.held == nil {
		m.leaveLocked()
		return m.failLocked(domain.Validation(domain.ErrEmptyCart))
	}
	if m.identity == nil {
		return m.failLocked(domain.Validation(domain.ErrMissingIdentity))
	}
	if m.method == nil {
		return m.failLocked(domain.Validation(domain.ErrMissingPaymentMethod))
	}
	if m.quote != nil && m.quote.Degraded {
		return m.failLocked(domain.Validation(domain.ErrDegradedQuote))
	}
	if m.quote == nil && m.pricing.RequiresConversion(*m.method) {
		return m.failLocked(domain.Validation(ErrQuoteRequired))
	}
	return nil
}

// applySubmissionLocked records the outcome of Submit. The returned
// heldOrder, if any, is no longer held and must be released.
func (m *Machine) applySubmissionLocked(res submission.Result, err error, methodID string, version uint64) (submission.Result, *heldOrder, error) {
	if res.Order != nil && m.step != domain.StepReviewOrder {
		m.logger.Warn("order created after checkout left review", "order_id", res.Order.ID, "step", m.step.String())
		orphan := &heldOrder{order: res.Order, settled: res.Kind == submission.KindRedirect}
		if err != nil {
			return res, orphan, err
		}
		return res, orphan, m.illegalLocked(domain.StepUploadProof)
	}

	prev := m.held
	if err != nil {
		if res.Kind == submission.KindInvoicePending && res.Order != nil {
			m.held = &heldOrder{order: res.Order, methodID: methodID, cartVersion: version, invoicePending: true}
			m.queueLocked(notify.EventOrder, res.Order)
			return res, prev, m.failLocked(err)
		}
		return res, nil, m.failLocked(err)
	}
	m.lastErr = nil
	m.queueLocked(notify.EventOrder, res.Order)

	switch res.Kind {
	case submission.KindRedirect:
		m.held = &heldOrder{order: res.Order, methodID: methodID, cartVersion: version, settled: true}
		m.paymentURL = res.PaymentURL
		if err := m.transitionLocked(domain.StepRedirected); err != nil {
			return res, prev, err
		}
		m.queueLocked(notify.EventRedirect, map[string]string{"order_id": res.Order.ID, "payment_url": res.PaymentURL})

	case submission.KindManualProof:
		flow := proof.New(res.Order, m.uploader, m.proofOpts...)
		flow.OnChange(m.onProofChange)
		m.held = &heldOrder{order: res.Order, methodID: methodID, cartVersion: version, flow: flow}
		m.proofState = flow.State().State
		go flow.Run(m.ctx)
		if err := m.transitionLocked(domain.StepUploadProof); err != nil {
			return res, prev, err
		}
	}
	return res, prev, nil
}

// UploadProof hands a proof to the order's proof flow. Success clears the
// cart and completes checkout.
func (m *Machine) UploadProof(ctx context.Context, u proof.Upload) (proof.Outcome, error) {
	defer m.flush(ctx)

	m.mu.Lock()
	if m.step != domain.StepUploadProof || m.held == nil || m.held.flow == nil {
		defer m.mu.Unlock()
		return proof.Outcome{}, m.illegalLocked(domain.StepCompleted)
	}
	h := m.held
	m.mu.Unlock()

	out, err := h.flow.Upload(ctx, u)
	if err != nil {
		m.mu.Lock()
		defer m.mu.Unlock()
		return out, m.failLocked(err)
	}

	m.cart.Clear()

	m.mu.Lock()
	defer m.mu.Unlock()
	h.settled = true
	m.lastErr = nil
	if err := m.transitionLocked(domain.StepCompleted); err != nil {
		return out, err
	}
	return out, nil
}

// FallbackAvailable reports whether the manual hand-off should be offered
// because the current quote is degraded.
func (m *Machine) FallbackAvailable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fallbackLocked()
}

func (m *Machine) fallbackLocked() bool {
	return m.quote != nil && m.quote.Degraded && domain.CanTransitionTo(m.step, domain.StepManualHandOff)
}

// HandOff ends checkout in the manual chat channel and returns its link.
func (m *Machine) HandOff(ctx context.Context) (string, error) {
	defer m.flush(ctx)
	m.mu.Lock()
	defer m.mu.Unlock()

	if !domain.CanTransitionTo(m.step, domain.StepManualHandOff) {
		return "", m.illegalLocked(domain.StepManualHandOff)
	}
	reason := "buyer requested manual checkout"
	if m.quote != nil && m.quote.Degraded {
		reason = m.quote.Reason
	}
	return m.handOffLocked(reason)
}

func (m *Machine) handOffLocked(reason string) (string, error) {
	if m.handOff == nil {
		return "", m.failLocked(domain.Validation(ErrNoHandOff))
	}
	summary := domain.HandOffSummary{
		Lines:  m.cart.Lines(),
		Totals: m.cart.Totals(),
		Reason: reason,
	}
	if m.identity != nil {
		summary.CustomerID = m.identity.CustomerID
	}
	if m.method != nil {
		method := *m.method
		summary.Method = &method
	}
	if m.held != nil && m.held.order != nil {
		summary.OrderNumber = m.held.order.OrderNumber
	}

	url, err := m.handOff.Link(summary)
	if err != nil {
		return "", m.failLocked(domain.NewError(domain.KindValidation, "manual hand-off is unavailable", err))
	}
	if err := m.transitionLocked(domain.StepManualHandOff); err != nil {
		return "", err
	}
	m.handOffURL = url
	m.lastErr = nil
	m.queueLocked(notify.EventRedirect, map[string]string{"hand_off_url": url})
	return url, nil
}

// Abandon leaves checkout on the buyer's request. An order that was created
// but never settled is cancelled.
func (m *Machine) Abandon(ctx context.Context) error {
	defer m.flush(ctx)

	m.mu.Lock()
	if m.step.IsTerminal() {
		m.mu.Unlock()
		return nil
	}
	m.leaveLocked()
	h := m.held
	m.held = nil
	m.mu.Unlock()

	if h != nil {
		m.release(ctx, h)
	}
	return nil
}

// release stops the proof flow of an order no longer held and cancels the
// order when it is unsettled.
func (m *Machine) release(ctx context.Context, h *heldOrder) {
	if h.flow != nil {
		h.flow.Stop()
	}
	if h.settled || h.order == nil || m.orders == nil {
		return
	}
	cctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	if err := m.orders.Cancel(cctx, h.order.ID); err != nil {
		m.logger.Warn("failed to cancel order", "order_id", h.order.ID, "err", err)
		return
	}
	m.logger.Info("order cancelled", "order_id", h.order.ID)
}

func (m *Machine) onCartChange(totals domain.CartTotals) {
	m.mu.Lock()
	m.cartVersion++
	m.queueLocked(notify.EventCart, totals)
	if m.step.BeforeOrder() && !m.submitting {
		if totals.LineCount == 0 {
			// an existing order no longer depends on the cart
			if m.held == nil {
				m.leaveLocked()
			}
		} else if m.method != nil {
			// quotes are keyed by subtotal
			m.pricing.Invalidate()
			m.selection++
			m.quote = nil
		}
	}
	m.mu.Unlock()
	m.flush(m.ctx)
}

func (m *Machine) onProofChange(s proof.Snapshot) {
	m.mu.Lock()
	if s.State == m.proofState && s.Warning == "" {
		m.mu.Unlock()
		return
	}
	m.proofState = s.State
	m.queueLocked(notify.EventProof, s)
	if s.State == proof.StateExpired && m.step == domain.StepUploadProof {
		m.setErrorLocked(domain.NewError(domain.KindExpired, "the payment window for this order has closed, please start a new order", domain.ErrOrderExpired))
	}
	m.mu.Unlock()
	m.flush(m.ctx)
}

func (m *Machine) transitionLocked(to domain.Step) error {
	if !domain.CanTransitionTo(m.step, to) {
		return m.illegalLocked(to)
	}
	m.logger.Info("checkout step", "from", m.step.String(), "to", to.String())
	m.step = to
	m.queueLocked(notify.EventStep, map[string]string{"step": to.String()})
	return nil
}

func (m *Machine) leaveLocked() domain.Step {
	if m.step.IsTerminal() {
		return m.step
	}
	if err := m.transitionLocked(domain.StepLeft); err != nil {
		return m.step
	}
	m.queueLocked(notify.EventLeave, nil)
	return m.step
}

func (m *Machine) illegalLocked(to domain.Step) error {
	return fmt.Errorf("%w: %s -> %s", domain.ErrIllegalTransition, m.step, to)
}

// failLocked records a typed error as the last error and returns err.
func (m *Machine) failLocked(err error) error {
	var derr *domain.Error
	if errors.As(err, &derr) {
		m.setErrorLocked(derr)
	}
	return err
}

func (m *Machine) setErrorLocked(err *domain.Error) {
	m.lastErr = err
	m.queueLocked(notify.EventError, err)
}

func (m *Machine) findMethodLocked(id string) (domain.PaymentMethod, bool) {
	for _, pm := range m.methods {
		if pm.ID == id || pm.Slug == id {
			return pm, true
		}
	}
	return domain.PaymentMethod{}, false
}

func (m *Machine) queueLocked(typ notify.EventType, payload any) {
	m.outbox = append(m.outbox, notify.NewEvent(typ, m.sessionID, payload))
}

// flush publishes queued events. It must be called without m.mu held.
func (m *Machine) flush(ctx context.Context) {
	m.mu.Lock()
	events := m.outbox
	m.outbox = nil
	m.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	for _, ev := range events {
		if err := m.publisher.Publish(ctx, ev); err != nil {
			m.logger.Warn("failed to publish checkout event", "type", string(ev.Type), "err", err)
		}
	}
}

func itemIDs(lines []domain.CartLine) []string {
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ItemID)
	}
	return ids
}
