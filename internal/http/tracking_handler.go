package http

import (
	"net/http"
)

type StartTrackingDTO struct {
	Identifier string `json:"identifier"`
}

type RegenerateResponse struct {
	PaymentURL string `json:"payment_url"`
}

// StartTracking accepts an order id or a human order number.
func (h *Handler) StartTracking(w http.ResponseWriter, r *http.Request) {
	var req StartTrackingDTO
	if !decodeJSON(w, r, h.maxBody, &req) {
		return
	}
	t := sessionFrom(r).Tracker
	if err := t.Start(r.Context(), req.Identifier); err != nil {
		if req.Identifier == "" {
			handleError(w, err)
			return
		}
		h.logger.WarnContext(r.Context(), "order lookup failed", "identifier", req.Identifier, "err", err)
		respondError(w, http.StatusNotFound, "order_not_found", "order not found")
		return
	}
	respondJSON(w, http.StatusOK, t.State())
}

func (h *Handler) TrackingStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, sessionFrom(r).Tracker.State())
}

func (h *Handler) StopTracking(w http.ResponseWriter, r *http.Request) {
	sessionFrom(r).Tracker.Stop()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) RegeneratePayment(w http.ResponseWriter, r *http.Request) {
	url, err := sessionFrom(r).Tracker.RegeneratePayment(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, RegenerateResponse{PaymentURL: url})
}
