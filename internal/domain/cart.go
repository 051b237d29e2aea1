package domain

// Item is a catalog entry as it is added to the cart.
type Item struct {
	ID            string `json:"item_id"`
	Name          string `json:"name"`
	Type          string `json:"type"`
	UnitPrice     int64  `json:"unit_price"`
	ManualProcess bool   `json:"manual_process,omitempty"`
}

// CartLine is one item in the cart with the quantity the buyer selected.
// Quantity is always at least 1.
type CartLine struct {
	ItemID        string `json:"item_id"`
	Name          string `json:"name"`
	Type          string `json:"type"`
	UnitPrice     int64  `json:"unit_price"`
	Quantity      int    `json:"quantity"`
	ManualProcess bool   `json:"manual_process,omitempty"`
}

func (l CartLine) Subtotal() int64 {
	return l.UnitPrice * int64(l.Quantity)
}

// CartTotals is derived from the current lines and never stored.
type CartTotals struct {
	Subtotal  int64 `json:"subtotal"`
	ItemCount int   `json:"item_count"`
	LineCount int   `json:"line_count"`
}

// CartSnapshot is the persisted form of the cart.
type CartSnapshot struct {
	Lines []CartLine `json:"lines"`
}
