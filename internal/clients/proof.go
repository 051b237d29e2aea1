package clients

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"

	"github.com/fjod/go_checkout/internal/domain"
	"github.com/fjod/go_checkout/internal/proof"
)

const maxProofSize = 10 << 20

type ProofClient struct{ c *Client }

func NewProofClient(c *Client) *ProofClient { return &ProofClient{c: c} }

// Upload sends a payment proof as multipart form data. ORDER_EXPIRED is
// returned wrapping domain.ErrOrderExpired.
func (pc *ProofClient) Upload(ctx context.Context, orderID string, u proof.Upload) (*domain.UploadReceipt, error) {
	path, err := apiPath("/api/orders", orderID, "payment-proof")
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	filename := u.Filename
	if filename == "" {
		filename = "proof"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	contentType := u.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)

	part, err := w.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("create file part: %w", err)
	}
	n, err := io.Copy(part, io.LimitReader(u.File, maxProofSize+1))
	if err != nil {
		return nil, fmt.Errorf("read proof file: %w", err)
	}
	if n > maxProofSize {
		return nil, domain.Validation(fmt.Errorf("proof file exceeds %d bytes", maxProofSize))
	}

	fields := map[string]string{
		"paymentMethodId":      u.MethodID,
		"transactionReference": u.Reference,
		"notes":                u.Notes,
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := w.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("write field %s: %w", k, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	var receipt domain.UploadReceipt
	if err := pc.c.sendRaw(ctx, path, w.FormDataContentType(), &buf, &receipt); err != nil {
		return nil, mapDomainError(fmt.Errorf("upload proof for %s: %w", orderID, err))
	}
	return &receipt, nil
}
