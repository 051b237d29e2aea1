package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fjod/go_checkout/internal/cart"
	"github.com/fjod/go_checkout/internal/checkout"
	"github.com/fjod/go_checkout/internal/domain"
	"github.com/fjod/go_checkout/internal/notify"
	"github.com/fjod/go_checkout/internal/proof"
	"github.com/fjod/go_checkout/internal/session"
	"github.com/fjod/go_checkout/internal/tracker"
)

// Catalog looks up the items buyers add to their carts.
type Catalog interface {
	ListItems(ctx context.Context) ([]domain.Item, error)
	GetItem(ctx context.Context, itemID string) (*domain.Item, error)
}

// Events is the in-process event source streamed to browsers.
type Events interface {
	Subscribe(sessionID string) (<-chan notify.Event, func())
}

type Handler struct {
	sessions  *session.Registry
	catalog   Catalog
	events    Events
	timeout   time.Duration
	maxBody   int64
	keepAlive time.Duration
	logger    *slog.Logger
}

type Option func(*Handler)

func WithTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

func WithMaxBodySize(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxBody = n
		}
	}
}

func WithKeepAlive(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.keepAlive = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

func NewHandler(sessions *session.Registry, catalog Catalog, events Events, opts ...Option) *Handler {
	h := &Handler{
		sessions:  sessions,
		catalog:   catalog,
		events:    events,
		timeout:   30 * time.Second,
		maxBody:   10 << 20,
		keepAlive: 15 * time.Second,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Router wires every route. Streaming routes are kept out of the request
// timeout.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(CorrelationMiddleware)
	r.Use(RequestLogger(h.logger))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		timeout := middleware.Timeout(h.timeout)
		compress := middleware.Compress(5)

		r.With(timeout, compress).Get("/catalog/items", h.ListItems)
		r.With(timeout).Post("/sessions", h.CreateSession)

		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Use(h.sessionContext)

			r.Get("/events", h.Events)

			r.Group(func(r chi.Router) {
				r.Use(timeout, compress)

				r.Get("/", h.GetState)
				r.Delete("/", h.CloseSession)

				r.Route("/cart", func(r chi.Router) {
					r.Get("/", h.GetCart)
					r.Post("/items", h.AddItem)
					r.Put("/items/{itemID}", h.UpdateQuantity)
					r.Delete("/items/{itemID}", h.RemoveItem)
					r.Delete("/", h.ClearCart)
				})

				r.Post("/identity/code", h.RequestCode)
				r.Post("/identity/verify", h.VerifyIdentity)
				r.Get("/payment-methods", h.ListPaymentMethods)
				r.Post("/payment-method", h.SelectPaymentMethod)
				r.Post("/continue", h.Continue)
				r.Post("/back", h.Back)
				r.Post("/order", h.PlaceOrder)
				r.Post("/order/invoice", h.RetryInvoice)
				r.Post("/order/proof", h.UploadProof)
				r.Post("/hand-off", h.HandOff)
				r.Post("/abandon", h.Abandon)

				r.Route("/tracking", func(r chi.Router) {
					r.Post("/", h.StartTracking)
					r.Get("/", h.TrackingStatus)
					r.Delete("/", h.StopTracking)
					r.Post("/regenerate", h.RegeneratePayment)
				})
			})
		})
	})

	return otelhttp.NewHandler(r, "checkout-bff")
}

type sessionKey struct{}

func (h *Handler) sessionContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := h.sessions.Get(chi.URLParam(r, "sessionID"))
		if err != nil {
			respondError(w, http.StatusNotFound, "session_not_found", err.Error())
			return
		}
		ctx := context.WithValue(r.Context(), sessionKey{}, s)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFrom(r *http.Request) *session.Session {
	s, _ := r.Context().Value(sessionKey{}).(*session.Session)
	return s
}

type ErrorResponse struct {
	Error   string       `json:"error"`
	Code    string       `json:"code,omitempty"`
	Details *domain.Error `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "err", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// handleError maps checkout errors to HTTP statuses. Typed domain errors
// are returned in full so the client can render them.
func handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, checkout.ErrSubmissionInProgress), errors.Is(err, proof.ErrUploadInProgress):
		respondError(w, http.StatusConflict, "in_progress", err.Error())
		return
	case errors.Is(err, proof.ErrAlreadySubmitted):
		respondError(w, http.StatusConflict, "already_submitted", err.Error())
		return
	case errors.Is(err, checkout.ErrNothingToRetry):
		respondError(w, http.StatusConflict, "not_applicable", err.Error())
		return
	}

	var derr *domain.Error
	if errors.As(err, &derr) {
		status := http.StatusBadRequest
		switch derr.Kind {
		case domain.KindBotsUnavailable, domain.KindDegradedQuote:
			status = http.StatusConflict
		case domain.KindExpired:
			status = http.StatusGone
		case domain.KindSubmission, domain.KindInvoice, domain.KindUpload:
			status = http.StatusBadGateway
		}
		respondJSON(w, status, ErrorResponse{Error: derr.Message, Code: string(derr.Kind), Details: derr})
		return
	}

	switch {
	case errors.Is(err, session.ErrNotFound):
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
	case errors.Is(err, domain.ErrIllegalTransition):
		respondError(w, http.StatusConflict, "illegal_transition", err.Error())
	case errors.Is(err, domain.ErrStaleQuote):
		respondError(w, http.StatusConflict, "stale_quote", err.Error())
	case errors.Is(err, domain.ErrOrderExpired):
		respondError(w, http.StatusGone, "order_expired", err.Error())
	case errors.Is(err, tracker.ErrNotTracking),
		errors.Is(err, tracker.ErrNotAutomated),
		errors.Is(err, tracker.ErrAlreadyPaid):
		respondError(w, http.StatusConflict, "not_applicable", err.Error())
	case errors.Is(err, domain.ErrEmptyCart),
		errors.Is(err, domain.ErrMissingIdentity),
		errors.Is(err, domain.ErrMissingPaymentMethod),
		errors.Is(err, checkout.ErrUnknownMethod),
		errors.Is(err, checkout.ErrQuoteRequired),
		errors.Is(err, cart.ErrInvalidItem),
		errors.Is(err, proof.ErrNoFile),
		errors.Is(err, tracker.ErrEmptyIdentifier):
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, "timeout", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}
