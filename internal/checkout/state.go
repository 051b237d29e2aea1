package checkout

import (
	"github.com/fjod/go_checkout/internal/domain"
	"github.com/fjod/go_checkout/internal/proof"
)

// Snapshot is everything the presentation layer renders for a checkout.
type Snapshot struct {
	SessionID         string                 `json:"session_id"`
	Step              domain.Step            `json:"step"`
	Lines             []domain.CartLine      `json:"lines"`
	Totals            domain.CartTotals      `json:"totals"`
	CustomerID        string                 `json:"customer_id,omitempty"`
	Methods           []domain.PaymentMethod `json:"payment_methods,omitempty"`
	Method            *domain.PaymentMethod  `json:"payment_method,omitempty"`
	Quote             *domain.QuoteResult    `json:"quote,omitempty"`
	Degraded          bool                   `json:"degraded"`
	FallbackAvailable bool                   `json:"fallback_available"`
	Order             *domain.Order          `json:"order,omitempty"`
	InvoicePending    bool                   `json:"invoice_pending"`
	Proof             *proof.Snapshot        `json:"proof,omitempty"`
	PaymentURL        string                 `json:"payment_url,omitempty"`
	HandOffURL        string                 `json:"hand_off_url,omitempty"`
	Error             *domain.Error          `json:"error,omitempty"`
}

func (m *Machine) State() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Snapshot{
		SessionID:         m.sessionID,
		Step:              m.step,
		Lines:             m.cart.Lines(),
		Totals:            m.cart.Totals(),
		FallbackAvailable: m.fallbackLocked(),
		PaymentURL:        m.paymentURL,
		HandOffURL:        m.handOffURL,
		Error:             m.lastErr,
	}
	if m.identity != nil {
		s.CustomerID = m.identity.CustomerID
	}
	if len(m.methods) > 0 {
		s.Methods = make([]domain.PaymentMethod, len(m.methods))
		copy(s.Methods, m.methods)
	}
	if m.method != nil {
		method := *m.method
		s.Method = &method
	}
	if m.quote != nil {
		q := *m.quote
		s.Quote = &q
		s.Degraded = q.Degraded
	}
	if h := m.held; h != nil {
		order := *h.order
		s.Order = &order
		s.InvoicePending = h.invoicePending
		if h.flow != nil {
			ps := h.flow.State()
			s.Proof = &ps
		}
	}
	return s
}
