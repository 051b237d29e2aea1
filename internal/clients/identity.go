package clients

import (
	"context"
	"fmt"
	"net/http"

	"github.com/fjod/go_checkout/internal/domain"
)

type IdentityClient struct{ c *Client }

func NewIdentityClient(c *Client) *IdentityClient { return &IdentityClient{c: c} }

type otpRequest struct {
	Contact string `json:"contact"`
	Code    string `json:"code,omitempty"`
}

func (ic *IdentityClient) SendCode(ctx context.Context, contact string) error {
	if err := ic.c.sendJSON(ctx, http.MethodPost, "/api/auth/otp/send", otpRequest{Contact: contact}, nil); err != nil {
		return fmt.Errorf("send otp: %w", err)
	}
	return nil
}

// Verify checks a one-time code. A rejected code is reported as an
// unverified result, not an error.
func (ic *IdentityClient) Verify(ctx context.Context, contact, code string) (*domain.IdentityResult, error) {
	var res domain.IdentityResult
	err := ic.c.sendJSON(ctx, http.MethodPost, "/api/auth/otp/verify", otpRequest{Contact: contact, Code: code}, &res)
	if err != nil {
		if apiErr, ok := asAPIError(err); ok && (apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusBadRequest) {
			return &domain.IdentityResult{Verified: false}, nil
		}
		return nil, fmt.Errorf("verify otp: %w", err)
	}
	return &res, nil
}
