package http

import (
	"errors"
	"net/http"

	"github.com/fjod/go_checkout/internal/domain"
	"github.com/fjod/go_checkout/internal/proof"
	"github.com/fjod/go_checkout/internal/submission"
)

type RequestCodeDTO struct {
	Contact string `json:"contact"`
}

type VerifyIdentityDTO struct {
	Contact string `json:"contact"`
	Code    string `json:"code"`
}

type SelectMethodDTO struct {
	MethodID string `json:"method_id"`
}

type StepResponse struct {
	Step domain.Step `json:"step"`
}

type OrderResponse struct {
	Result     string          `json:"result"`
	Order      *domain.Order   `json:"order,omitempty"`
	Invoice    *domain.Invoice `json:"invoice,omitempty"`
	PaymentURL string          `json:"payment_url,omitempty"`
	Step       domain.Step     `json:"step"`
}

type ProofResponse struct {
	State   proof.State           `json:"state"`
	Receipt *domain.UploadReceipt `json:"receipt,omitempty"`
	Warning string                `json:"warning,omitempty"`
	Step    domain.Step           `json:"step"`
}

type HandOffResponse struct {
	URL string `json:"url"`
}

func (h *Handler) RequestCode(w http.ResponseWriter, r *http.Request) {
	var req RequestCodeDTO
	if !decodeJSON(w, r, h.maxBody, &req) {
		return
	}
	if err := sessionFrom(r).Checkout.RequestCode(r.Context(), req.Contact); err != nil {
		handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) VerifyIdentity(w http.ResponseWriter, r *http.Request) {
	var req VerifyIdentityDTO
	if !decodeJSON(w, r, h.maxBody, &req) {
		return
	}
	if req.Contact == "" || req.Code == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "contact and code are required")
		return
	}

	step, err := sessionFrom(r).Checkout.VerifyIdentity(r.Context(), req.Contact, req.Code)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, StepResponse{Step: step})
}

func (h *Handler) ListPaymentMethods(w http.ResponseWriter, r *http.Request) {
	methods, err := sessionFrom(r).Checkout.ListPaymentMethods(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, methods)
}

// SelectPaymentMethod answers with the quote. A degraded quote is a normal
// answer; the client offers the hand-off from it.
func (h *Handler) SelectPaymentMethod(w http.ResponseWriter, r *http.Request) {
	var req SelectMethodDTO
	if !decodeJSON(w, r, h.maxBody, &req) {
		return
	}
	if req.MethodID == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "method_id is required")
		return
	}

	quote, err := sessionFrom(r).Checkout.SelectPaymentMethod(r.Context(), req.MethodID)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, quote)
}

func (h *Handler) Continue(w http.ResponseWriter, r *http.Request) {
	step, err := sessionFrom(r).Checkout.Continue(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, StepResponse{Step: step})
}

func (h *Handler) Back(w http.ResponseWriter, r *http.Request) {
	step, err := sessionFrom(r).Checkout.Back(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, StepResponse{Step: step})
}

func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	m := sessionFrom(r).Checkout
	res, err := m.PlaceOrder(r.Context())
	respondOrder(w, res, err, m.Step())
}

func (h *Handler) RetryInvoice(w http.ResponseWriter, r *http.Request) {
	m := sessionFrom(r).Checkout
	res, err := m.RetryInvoice(r.Context())
	respondOrder(w, res, err, m.Step())
}

// respondOrder reports an invoice-pending result as 202 with the order so
// the client can offer a retry.
func respondOrder(w http.ResponseWriter, res submission.Result, err error, step domain.Step) {
	if err != nil && res.Kind != submission.KindInvoicePending {
		handleError(w, err)
		return
	}
	status := http.StatusCreated
	if res.Kind == submission.KindInvoicePending {
		status = http.StatusAccepted
	}
	respondJSON(w, status, OrderResponse{
		Result:     res.Kind.String(),
		Order:      res.Order,
		Invoice:    res.Invoice,
		PaymentURL: res.PaymentURL,
		Step:       step,
	})
}

func (h *Handler) UploadProof(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	if err := r.ParseMultipartForm(h.maxBody); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid multipart body")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, hdr, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		handleError(w, proof.ErrNoFile)
		return
	}
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid file part")
		return
	}
	defer file.Close()

	m := sessionFrom(r).Checkout
	out, err := m.UploadProof(r.Context(), proof.Upload{
		File:        file,
		Filename:    hdr.Filename,
		ContentType: hdr.Header.Get("Content-Type"),
		MethodID:    r.FormValue("payment_method_id"),
		Reference:   r.FormValue("transaction_reference"),
		Notes:       r.FormValue("notes"),
	})
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, ProofResponse{
		State:   out.State,
		Receipt: out.Receipt,
		Warning: out.Warning,
		Step:    m.Step(),
	})
}

func (h *Handler) HandOff(w http.ResponseWriter, r *http.Request) {
	url, err := sessionFrom(r).Checkout.HandOff(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, HandOffResponse{URL: url})
}

func (h *Handler) Abandon(w http.ResponseWriter, r *http.Request) {
	m := sessionFrom(r).Checkout
	if err := m.Abandon(r.Context()); err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, StepResponse{Step: m.Step()})
}
