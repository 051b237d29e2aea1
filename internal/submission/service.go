package submission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fjod/go_checkout/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const tracerName = "github.com/fjod/go_checkout/internal/submission"

var (
	ErrMissingOrder  = errors.New("order has no id")
	ErrEmptyCustomer = errors.New("customer id is empty")
)

// Orders is the order persistence collaborator.
type Orders interface {
	Create(ctx context.Context, req domain.CreateOrderRequest) (*domain.Order, error)
}

// Settlement is the crypto gateway collaborator.
type Settlement interface {
	CreateInvoice(ctx context.Context, orderID string) (*domain.Invoice, error)
}

// Cart is the part of the cart store submission needs.
type Cart interface {
	Lines() []domain.CartLine
	Clear()
}

type ResultKind int

const (
	// KindManualProof: the order awaits a proof upload. The cart is kept.
	KindManualProof ResultKind = iota + 1
	// KindRedirect: an invoice was issued and the buyer must be sent to
	// PaymentURL. The cart has already been cleared.
	KindRedirect
	// KindInvoicePending: the order exists but invoice creation failed.
	KindInvoicePending
)

func (k ResultKind) String() string {
	switch k {
	case KindManualProof:
		return "manual_proof"
	case KindRedirect:
		return "redirect"
	case KindInvoicePending:
		return "invoice_pending"
	}
	return "unknown"
}

type Result struct {
	Kind       ResultKind
	Order      *domain.Order
	Invoice    *domain.Invoice
	PaymentURL string
	Request    domain.CreateOrderRequest
}

type Service struct {
	orders     Orders
	settlement Settlement
	prices     *PriceBook
	timeout    time.Duration
	logger     *slog.Logger
}

type Option func(*Service)

func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewService(orders Orders, settlement Settlement, prices *PriceBook, opts ...Option) *Service {
	s := &Service{
		orders:     orders,
		settlement: settlement,
		prices:     prices,
		timeout:    10 * time.Second,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit creates an order for the cart and branches on the payment method.
// Order creation is never retried here; a second call creates a second order.
func (s *Service) Submit(ctx context.Context, cart Cart, method domain.PaymentMethod, customerID string) (Result, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "submission.Submit")
	defer span.End()
	span.SetAttributes(
		attribute.String("payment_method.id", method.ID),
		attribute.Bool("payment_method.automated", method.SupportsAutomatedSettlement),
	)

	if customerID == "" {
		return Result{}, domain.Validation(ErrEmptyCustomer)
	}
	if method.ID == "" {
		return Result{}, domain.Validation(domain.ErrMissingPaymentMethod)
	}
	lines := cart.Lines()
	if len(lines) == 0 {
		return Result{}, domain.Validation(domain.ErrEmptyCart)
	}

	req := s.BuildRequest(lines, method.ID, customerID)

	createCtx, cancel := context.WithTimeout(ctx, s.timeout)
	order, err := s.orders.Create(createCtx, req)
	cancel()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "order creation failed")
		if domain.KindOf(err) == domain.KindBotsUnavailable {
			return Result{Request: req}, err
		}
		s.logger.ErrorContext(ctx, "order creation failed", "customer_id", customerID, "method", method.ID, "err", err)
		return Result{Request: req}, domain.NewError(domain.KindSubmission, "order could not be created", err)
	}
	if order == nil || order.ID == "" {
		return Result{Request: req}, domain.NewError(domain.KindSubmission, "order could not be created", ErrMissingOrder)
	}
	if order.PaymentMethod.ID == "" {
		order.PaymentMethod = method
	}
	span.SetAttributes(attribute.String("order.id", order.ID))
	s.logger.InfoContext(ctx, "order created", "order_id", order.ID, "order_number", order.OrderNumber, "total", req.Total)

	if !method.SupportsAutomatedSettlement {
		return Result{Kind: KindManualProof, Order: order, Request: req}, nil
	}

	res, err := s.issueInvoice(ctx, order)
	res.Request = req
	if err != nil {
		span.RecordError(err)
		return res, err
	}
	cart.Clear()
	return res, nil
}

// RetryInvoice requests a settlement invoice for an order that already
// exists. The order itself is not re-created.
func (s *Service) RetryInvoice(ctx context.Context, cart Cart, order *domain.Order) (Result, error) {
	if order == nil || order.ID == "" {
		return Result{}, domain.Validation(ErrMissingOrder)
	}
	res, err := s.issueInvoice(ctx, order)
	if err != nil {
		return res, err
	}
	if cart != nil {
		cart.Clear()
	}
	return res, nil
}

func (s *Service) issueInvoice(ctx context.Context, order *domain.Order) (Result, error) {
	if s.settlement == nil {
		return Result{Kind: KindInvoicePending, Order: order},
			domain.NewError(domain.KindInvoice, "payment gateway is not configured", nil)
	}

	invCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	inv, err := s.settlement.CreateInvoice(invCtx, order.ID)
	if err == nil && (inv == nil || inv.PaymentURL == "") {
		err = errors.New("invoice has no payment url")
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "invoice creation failed", "order_id", order.ID, "err", err)
		return Result{Kind: KindInvoicePending, Order: order},
			domain.NewError(domain.KindInvoice, fmt.Sprintf("order %s was created but the payment could not be started", order.OrderNumber), err)
	}

	return Result{
		Kind:       KindRedirect,
		Order:      order,
		Invoice:    inv,
		PaymentURL: inv.PaymentURL,
	}, nil
}

// BuildRequest reconciles per-line prices against the price book and
// accumulates totals. An authoritative price wins over the cart price; a
// final price above the base price is treated as the new base so discounts
// are never negative.
func (s *Service) BuildRequest(lines []domain.CartLine, methodID, customerID string) domain.CreateOrderRequest {
	req := domain.CreateOrderRequest{
		CustomerID:      customerID,
		PaymentMethodID: methodID,
		Items:           make([]domain.OrderItem, 0, len(lines)),
	}

	for _, l := range lines {
		base, final := l.UnitPrice, l.UnitPrice
		if s.prices != nil {
			if p, ok := s.prices.Lookup(l.ItemID); ok {
				base, final = p.BasePrice, p.FinalPrice
				if final <= 0 {
					final = base
				}
				if final > base {
					base = final
				}
			}
		}

		qty := int64(l.Quantity)
		req.Subtotal += base * qty
		req.Total += final * qty
		req.Items = append(req.Items, domain.OrderItem{
			ItemID:     l.ItemID,
			Name:       l.Name,
			Type:       l.Type,
			Quantity:   l.Quantity,
			BasePrice:  base,
			FinalPrice: final,
		})
	}
	req.Discount = req.Subtotal - req.Total
	return req
}
