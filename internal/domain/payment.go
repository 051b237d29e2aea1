package domain

import "time"

type PaymentMethod struct {
	ID                          string `json:"id"`
	Slug                        string `json:"slug"`
	Name                        string `json:"name"`
	Instructions                string `json:"instructions,omitempty"`
	SupportsAutomatedSettlement bool   `json:"supports_automated_settlement"`
}

type Fee struct {
	Kind        string `json:"kind"`
	Amount      int64  `json:"amount"`
	Description string `json:"description,omitempty"`
}

type PriceQuote struct {
	MethodID          string     `json:"method_id"`
	BaseAmount        int64      `json:"base_amount"`
	FinalAmount       int64      `json:"final_amount"`
	Fees              []Fee      `json:"fees"`
	ConvertedAmount   *int64     `json:"converted_amount,omitempty"`
	ConvertedCurrency string     `json:"converted_currency,omitempty"`
	ValidUntil        *time.Time `json:"valid_until,omitempty"`
}

// QuoteResult is either a numeric quote or a degraded marker. A degraded
// result never carries a quote.
type QuoteResult struct {
	MethodID string      `json:"method_id"`
	Quote    *PriceQuote `json:"quote,omitempty"`
	Degraded bool        `json:"degraded"`
	Reason   string      `json:"reason,omitempty"`
}

// Expired reports whether the advisory validity window has passed.
func (r QuoteResult) Expired(now time.Time) bool {
	if r.Quote == nil || r.Quote.ValidUntil == nil {
		return false
	}
	return !now.Before(*r.Quote.ValidUntil)
}

type CryptoStatus string

const (
	CryptoStatusPending    CryptoStatus = "PENDING"
	CryptoStatusConfirming CryptoStatus = "CONFIRMING"
	CryptoStatusPaid       CryptoStatus = "PAID"
	CryptoStatusPaidOver   CryptoStatus = "PAID_OVER"
	CryptoStatusUnderpaid  CryptoStatus = "UNDERPAID"
	CryptoStatusExpired    CryptoStatus = "EXPIRED"
	CryptoStatusFailed     CryptoStatus = "FAILED"
	CryptoStatusUnknown    CryptoStatus = "UNKNOWN"
)

func (s CryptoStatus) IsFinal() bool {
	switch s {
	case CryptoStatusPaid, CryptoStatusPaidOver, CryptoStatusExpired, CryptoStatusFailed:
		return true
	}
	return false
}

type CryptoPaymentStatus struct {
	Status       CryptoStatus `json:"status"`
	Amount       int64        `json:"amount"`
	PaidAmount   *int64       `json:"paid_amount,omitempty"`
	PaidCurrency string       `json:"paid_currency,omitempty"`
	TxHash       string       `json:"tx_hash,omitempty"`
	PaymentURL   string       `json:"payment_url"`
	ExpiresAt    time.Time    `json:"expires_at"`
}

// Invoice is a settlement invoice issued by the crypto gateway for an order.
type Invoice struct {
	OrderID    string    `json:"order_id"`
	InvoiceID  string    `json:"invoice_id"`
	Amount     int64     `json:"amount"`
	PaymentURL string    `json:"payment_url"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// PricingResponse is the pricing collaborator's answer for a subtotal and
// payment method. Optional fields are nil/empty when the backend omits them.
type PricingResponse struct {
	OriginalAmount    int64      `json:"originalUsd"`
	FinalAmount       int64      `json:"finalUsd"`
	Fees              []Fee      `json:"fees,omitempty"`
	ConvertedAmount   *int64     `json:"convertedAmount,omitempty"`
	ConvertedCurrency string     `json:"convertedCurrency,omitempty"`
	ValidUntil        *time.Time `json:"validUntil,omitempty"`
}

// UploadReceipt is returned by the proof collaborator on a stored proof.
// Warning is a soft notice such as a proof already pending for the order.
type UploadReceipt struct {
	ProofID string      `json:"proof_id"`
	Status  OrderStatus `json:"status,omitempty"`
	Warning string      `json:"warning,omitempty"`
}
