package clients

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fjod/go_checkout/internal/domain"
	"github.com/fjod/go_checkout/internal/proof"
)

func newTestClient(t *testing.T, h http.Handler, cfg Config) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	cfg.BaseURL = srv.URL
	if cfg.Name == "" {
		cfg.Name = "test"
	}
	c, err := New(cfg, WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNew_InvalidBaseURL(t *testing.T) {
	_, err := New(Config{Name: "orders", BaseURL: "not a url"})
	assert.Error(t, err)
}

func TestGet_DecodesAPIError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"error": map[string]any{"code": "NOT_FOUND", "message": "order not found"},
		})
	}), Config{})

	_, err := NewOrdersClient(c).GetByID(context.Background(), "o1")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "NOT_FOUND", apiErr.Code)
	assert.Equal(t, "order not found", apiErr.Message)
	assert.False(t, apiErr.Temporary())
	assert.Equal(t, "NOT_FOUND", CodeOf(err))
}

func TestGet_PlainErrorBody(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}), Config{})

	_, err := NewCatalogClient(c).ListItems(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "bad gateway", apiErr.Message)
	assert.True(t, apiErr.Temporary())
}

func TestGet_RetriesTemporaryFailures(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, []domain.PaymentMethod{{ID: "m1", Name: "Card"}})
	}), Config{Retries: 3})

	methods, err := NewPaymentMethodsClient(c).ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, methods, 1)
	assert.Equal(t, int32(3), hits.Load())
}

func TestGet_DoesNotRetryClientErrors(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}), Config{Retries: 3})

	_, err := NewCatalogClient(c).ListItems(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestPost_IsNeverRetried(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}), Config{Retries: 3})

	_, err := NewOrdersClient(c).Create(context.Background(), domain.CreateOrderRequest{CustomerID: "c1"})
	require.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}), Config{BreakerFailures: 2, BreakerTimeout: time.Minute})

	orders := NewOrdersClient(c)
	for i := 0; i < 2; i++ {
		_, err := orders.GetByID(context.Background(), "o1")
		require.Error(t, err)
	}
	_, err := orders.GetByID(context.Background(), "o1")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(2), hits.Load())
}

func TestBreaker_ClientErrorsDoNotTrip(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}), Config{BreakerFailures: 1})

	orders := NewOrdersClient(c)
	for i := 0; i < 3; i++ {
		_, err := orders.GetByNumber(context.Background(), "FN-001")
		require.Error(t, err)
		assert.NotErrorIs(t, err, gobreaker.ErrOpenState)
	}
	assert.Equal(t, int32(3), hits.Load())
}

func TestCorrelationHeader(t *testing.T) {
	var got string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get(HeaderCorrelationID)
		writeJSON(w, http.StatusOK, []domain.Item{})
	}), Config{})

	ctx := WithCorrelationID(context.Background(), "cid-123")
	_, err := NewCatalogClient(c).ListItems(ctx)
	require.NoError(t, err)
	assert.Equal(t, "cid-123", got)
}

func TestPricingQuote_Query(t *testing.T) {
	var query string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/pricing/quote", r.URL.Path)
		query = r.URL.RawQuery
		writeJSON(w, http.StatusOK, map[string]any{"originalUsd": 1698, "finalUsd": 1748})
	}), Config{})

	resp, err := NewPricingClient(c).Quote(context.Background(), 1698, "m1")
	require.NoError(t, err)
	assert.Equal(t, "amount=1698&paymentMethodId=m1", query)
	assert.Equal(t, int64(1748), resp.FinalAmount)
}

func TestCreateOrder_NoBotsAvailable(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error": map[string]any{
				"code":    CodeNoBotsAvailable,
				"message": "add a gifting bot first",
				"details": map[string]any{"available_bots": []map[string]any{{"id": "b1", "display_name": "GiftBot"}}},
			},
		})
	}), Config{})

	_, err := NewOrdersClient(c).Create(context.Background(), domain.CreateOrderRequest{CustomerID: "c1"})
	require.Error(t, err)

	var derr *domain.Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, domain.KindBotsUnavailable, derr.Kind)
	require.Len(t, derr.Bots, 1)
	assert.Equal(t, "GiftBot", derr.Bots[0].DisplayName)
}

func TestProofUpload_Multipart(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/orders/o1/payment-proof", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "m1", r.FormValue("paymentMethodId"))
		assert.Equal(t, "TX-9", r.FormValue("transactionReference"))
		assert.Empty(t, r.FormValue("notes"))

		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		body, _ := io.ReadAll(f)
		assert.Equal(t, "receipt.png", hdr.Filename)
		assert.Equal(t, "image/png", hdr.Header.Get("Content-Type"))
		assert.Equal(t, "png-bytes", string(body))

		writeJSON(w, http.StatusCreated, domain.UploadReceipt{ProofID: "p1", Warning: "proof already pending"})
	}), Config{})

	receipt, err := NewProofClient(c).Upload(context.Background(), "o1", proof.Upload{
		File:        strings.NewReader("png-bytes"),
		Filename:    "receipt.png",
		ContentType: "image/png",
		MethodID:    "m1",
		Reference:   "TX-9",
	})
	require.NoError(t, err)
	assert.Equal(t, "p1", receipt.ProofID)
	assert.Equal(t, "proof already pending", receipt.Warning)
}

func TestProofUpload_OrderExpired(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusGone, map[string]any{
			"error": map[string]any{"code": CodeOrderExpired, "message": "order expired"},
		})
	}), Config{})

	_, err := NewProofClient(c).Upload(context.Background(), "o1", proof.Upload{File: strings.NewReader("x")})
	assert.ErrorIs(t, err, domain.ErrOrderExpired)
	assert.Equal(t, CodeOrderExpired, CodeOf(err))
}

func TestIdentityVerify_RejectedCode(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"error": map[string]any{"code": "INVALID_CODE", "message": "wrong code"},
		})
	}), Config{})

	res, err := NewIdentityClient(c).Verify(context.Background(), "a@b.c", "000000")
	require.NoError(t, err)
	assert.False(t, res.Verified)
}

func TestIdentityVerify_BackendDown(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}), Config{})

	_, err := NewIdentityClient(c).Verify(context.Background(), "a@b.c", "123456")
	assert.Error(t, err)
}

func TestSettlement_FillsOrderID(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/payments/crypto/invoice":
			var req invoiceRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "o1", req.OrderID)
			writeJSON(w, http.StatusOK, map[string]any{"invoice_id": "inv1", "payment_url": "https://pay/1"})
		case "/api/payments/crypto/o1/status":
			writeJSON(w, http.StatusOK, map[string]any{"status": "CONFIRMING", "payment_url": "https://pay/1"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}), Config{})

	sc := NewSettlementClient(c)
	inv, err := sc.CreateInvoice(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, "o1", inv.OrderID)
	assert.Equal(t, "https://pay/1", inv.PaymentURL)

	st, err := sc.Status(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, domain.CryptoStatusConfirming, st.Status)
}

func TestGet_ContextCancelledStopsRetries(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}), Config{Retries: 10})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewCatalogClient(c).ListItems(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, hits.Load())
}

func TestOrders_IdentifierStaysInPath(t *testing.T) {
	var hits atomic.Int32
	var raw atomic.Value
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		raw.Store(r.URL.EscapedPath())
		writeJSON(w, http.StatusOK, map[string]any{"id": "o1"})
	}), Config{})
	oc := NewOrdersClient(c)

	for _, id := range []string{"../admin/users", "..", "a/b", ""} {
		_, err := oc.GetByID(context.Background(), id)
		assert.ErrorIs(t, err, ErrInvalidIdentifier, id)
	}
	_, err := NewSettlementClient(c).Status(context.Background(), "../../admin")
	assert.ErrorIs(t, err, ErrInvalidIdentifier)
	assert.ErrorIs(t, oc.Cancel(context.Background(), ".."), ErrInvalidIdentifier)
	assert.Zero(t, hits.Load())

	_, err = oc.GetByNumber(context.Background(), "FL 1001?x")
	require.NoError(t, err)
	assert.Equal(t, "/api/orders/number/FL%201001%3Fx", raw.Load())
}
