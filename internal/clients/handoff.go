package clients

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/fjod/go_checkout/internal/domain"
)

var ErrNoHandOffPhone = errors.New("hand-off phone number is not configured")

// WhatsAppHandOff builds wa.me links with a prefilled order summary. It
// makes no requests.
type WhatsAppHandOff struct {
	phone string
}

func NewWhatsAppHandOff(phone string) *WhatsAppHandOff {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)
	return &WhatsAppHandOff{phone: digits}
}

func (h *WhatsAppHandOff) Link(s domain.HandOffSummary) (string, error) {
	if h.phone == "" {
		return "", ErrNoHandOffPhone
	}
	return "https://wa.me/" + h.phone + "?text=" + url.QueryEscape(Summary(s)), nil
}

// Summary renders the hand-off message.
func Summary(s domain.HandOffSummary) string {
	var b strings.Builder
	b.WriteString("Hi! I'd like to complete this order:\n")
	for _, l := range s.Lines {
		fmt.Fprintf(&b, "- %dx %s (%s)\n", l.Quantity, l.Name, FormatMoney(l.Subtotal()))
	}
	fmt.Fprintf(&b, "Total: %s\n", FormatMoney(s.Totals.Subtotal))
	if s.Method != nil {
		fmt.Fprintf(&b, "Payment method: %s\n", s.Method.Name)
	}
	if s.OrderNumber != "" {
		fmt.Fprintf(&b, "Order: %s\n", s.OrderNumber)
	}
	if s.CustomerID != "" {
		fmt.Fprintf(&b, "Customer: %s\n", s.CustomerID)
	}
	if s.Reason != "" {
		fmt.Fprintf(&b, "Note: %s\n", s.Reason)
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatMoney renders minor units as dollars, e.g. 1698 -> "$16.98".
func FormatMoney(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s$%d.%02d", sign, minor/100, minor%100)
}
