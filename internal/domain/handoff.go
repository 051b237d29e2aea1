package domain

// HandOffSummary is the prefilled message a buyer sends when checkout moves
// to a manual chat channel.
type HandOffSummary struct {
	CustomerID  string         `json:"customer_id,omitempty"`
	Lines       []CartLine     `json:"lines"`
	Totals      CartTotals     `json:"totals"`
	Method      *PaymentMethod `json:"payment_method,omitempty"`
	OrderNumber string         `json:"order_number,omitempty"`
	Reason      string         `json:"reason,omitempty"`
}
