package domain

import "time"

type OrderStatus string

const (
	OrderStatusPendingPayment  OrderStatus = "PENDING_PAYMENT"
	OrderStatusPaymentUploaded OrderStatus = "PAYMENT_UPLOADED"
	OrderStatusPaymentVerified OrderStatus = "PAYMENT_VERIFIED"
	OrderStatusPaymentRejected OrderStatus = "PAYMENT_REJECTED"
	OrderStatusProcessing      OrderStatus = "PROCESSING"
	OrderStatusCompleted       OrderStatus = "COMPLETED"
	OrderStatusCancelled       OrderStatus = "CANCELLED"
	OrderStatusExpired         OrderStatus = "EXPIRED"
	OrderStatusFailed          OrderStatus = "FAILED"
)

func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusCompleted, OrderStatusCancelled, OrderStatusExpired, OrderStatusFailed:
		return true
	}
	return false
}

type Order struct {
	ID            string        `json:"id"`
	OrderNumber   string        `json:"order_number"`
	Status        OrderStatus   `json:"status"`
	TotalAmount   int64         `json:"total_amount"`
	ExpiresAt     *time.Time    `json:"expires_at,omitempty"`
	PaymentMethod PaymentMethod `json:"payment_method"`
}

// OrderItem is a per-line snapshot sent at order creation. Name and type are
// denormalized into the order and never looked up again.
type OrderItem struct {
	ItemID     string `json:"item_id"`
	Name       string `json:"name"`
	Type       string `json:"type"`
	Quantity   int    `json:"quantity"`
	BasePrice  int64  `json:"base_price"`
	FinalPrice int64  `json:"final_price"`
}

type CreateOrderRequest struct {
	CustomerID      string      `json:"customer_id"`
	PaymentMethodID string      `json:"payment_method_id"`
	Items           []OrderItem `json:"items"`
	Subtotal        int64       `json:"subtotal"`
	Discount        int64       `json:"discount"`
	Total           int64       `json:"total"`
}

// ItemPrice is the authoritative server-side price of one catalog item.
type ItemPrice struct {
	ItemID     string `json:"item_id"`
	BasePrice  int64  `json:"base_price"`
	FinalPrice int64  `json:"final_price"`
}
