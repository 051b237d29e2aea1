package checkout

import (
	"context"

	"github.com/fjod/go_checkout/internal/cart"
	"github.com/fjod/go_checkout/internal/domain"
	"github.com/fjod/go_checkout/internal/proof"
	"github.com/fjod/go_checkout/internal/submission"
)

// Cart is the buyer's cart as the machine sees it. *cart.Store satisfies it.
type Cart interface {
	Lines() []domain.CartLine
	Totals() domain.CartTotals
	IsEmpty() bool
	HasManualProcessItems() bool
	HasItemsOfType(types ...string) bool
	OnChange(fn cart.Listener)
	Clear()
}

type Identity interface {
	SendCode(ctx context.Context, contact string) error
	Verify(ctx context.Context, contact, code string) (*domain.IdentityResult, error)
}

type PaymentMethods interface {
	ListActive(ctx context.Context) ([]domain.PaymentMethod, error)
}

// Quoter resolves price quotes. *pricing.Resolver satisfies it.
type Quoter interface {
	Resolve(ctx context.Context, subtotal int64, method domain.PaymentMethod) (domain.QuoteResult, error)
	Current() (domain.QuoteResult, bool)
	Invalidate()
	RequiresConversion(m domain.PaymentMethod) bool
}

// Submitter creates orders. *submission.Service satisfies it.
type Submitter interface {
	Submit(ctx context.Context, cart submission.Cart, method domain.PaymentMethod, customerID string) (submission.Result, error)
	RetryInvoice(ctx context.Context, cart submission.Cart, order *domain.Order) (submission.Result, error)
}

type PriceRefresher interface {
	Refresh(ctx context.Context, itemIDs []string) error
}

type OrderCanceller interface {
	Cancel(ctx context.Context, orderID string) error
}

// HandOff builds the external chat link for a manual checkout.
type HandOff interface {
	Link(summary domain.HandOffSummary) (string, error)
}

// Deps are the collaborators of a Machine. Prices, Orders and HandOff are
// optional.
type Deps struct {
	Cart       Cart
	Identity   Identity
	Methods    PaymentMethods
	Pricing    Quoter
	Submission Submitter
	Prices     PriceRefresher
	Uploader   proof.Uploader
	Orders     OrderCanceller
	HandOff    HandOff
}
