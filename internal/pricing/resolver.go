package pricing

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/fjod/go_checkout/internal/domain"
)

// Client is the pricing collaborator.
type Client interface {
	Quote(ctx context.Context, subtotal int64, methodID string) (*domain.PricingResponse, error)
}

// Resolver turns a subtotal and payment method into a quote. Only the
// response to the most recent Resolve call is ever applied; at most one
// quote is current at a time.
type Resolver struct {
	client     Client
	conversion map[string]struct{}
	logger     *slog.Logger

	mu      sync.Mutex
	token   uint64
	current *domain.QuoteResult
}

// NewResolver builds a resolver. conversionRequired lists payment method ids
// or slugs whose settlement currency differs from the quoted currency.
func NewResolver(client Client, conversionRequired []string, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	set := make(map[string]struct{}, len(conversionRequired))
	for _, m := range conversionRequired {
		set[m] = struct{}{}
	}
	return &Resolver{
		client:     client,
		conversion: set,
		logger:     logger,
	}
}

func (r *Resolver) RequiresConversion(m domain.PaymentMethod) bool {
	if _, ok := r.conversion[m.ID]; ok {
		return true
	}
	_, ok := r.conversion[m.Slug]
	return ok
}

// Resolve requests a quote. Failures never surface as errors: they come back
// as degraded results. The only error is domain.ErrStaleQuote, returned when a
// newer Resolve or Invalidate superseded this call while it was in flight; the
// result is then not applied.
func (r *Resolver) Resolve(ctx context.Context, subtotal int64, method domain.PaymentMethod) (domain.QuoteResult, error) {
	r.mu.Lock()
	r.token++
	token := r.token
	r.current = nil
	r.mu.Unlock()

	result := r.fetch(ctx, subtotal, method)

	r.mu.Lock()
	defer r.mu.Unlock()
	if token != r.token {
		r.logger.Debug("discarding stale quote", "method", method.ID, "token", token, "latest", r.token)
		return result, domain.ErrStaleQuote
	}
	r.current = &result
	return result, nil
}

// Current returns the applied quote, if any.
func (r *Resolver) Current() (domain.QuoteResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return domain.QuoteResult{}, false
	}
	return *r.current, true
}

// Invalidate drops the current quote and any interest in in-flight calls.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	r.token++
	r.current = nil
	r.mu.Unlock()
}

func (r *Resolver) fetch(ctx context.Context, subtotal int64, method domain.PaymentMethod) domain.QuoteResult {
	needsConversion := r.RequiresConversion(method)

	resp, err := r.client.Quote(ctx, subtotal, method.ID)
	if err != nil {
		r.logger.Warn("price quote failed", "method", method.ID, "subtotal", subtotal, "err", err)
		return domain.QuoteResult{
			MethodID: method.ID,
			Degraded: true,
			Reason:   fmt.Sprintf("pricing unavailable: %v", err),
		}
	}

	if needsConversion && resp.ConvertedAmount == nil {
		r.logger.Warn("conversion missing from quote", "method", method.ID, "subtotal", subtotal)
		return domain.QuoteResult{
			MethodID: method.ID,
			Degraded: true,
			Reason:   "currency conversion unavailable",
		}
	}

	return domain.QuoteResult{
		MethodID: method.ID,
		Quote:    buildQuote(subtotal, method.ID, resp),
	}
}

func buildQuote(subtotal int64, methodID string, resp *domain.PricingResponse) *domain.PriceQuote {
	q := &domain.PriceQuote{
		MethodID:   methodID,
		BaseAmount: subtotal,
		Fees:       []domain.Fee{},
	}

	var feeTotal int64
	for _, f := range resp.Fees {
		q.Fees = append(q.Fees, f)
		feeTotal += f.Amount
	}

	if resp.FinalAmount > 0 {
		q.FinalAmount = resp.FinalAmount
	} else {
		q.FinalAmount = subtotal + feeTotal
	}

	if resp.ConvertedAmount != nil {
		v := *resp.ConvertedAmount
		q.ConvertedAmount = &v
		q.ConvertedCurrency = resp.ConvertedCurrency
	}
	if resp.ValidUntil != nil {
		v := *resp.ValidUntil
		q.ValidUntil = &v
	}
	return q
}
