package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fjod/go_checkout/internal/domain"
	"github.com/fjod/go_checkout/internal/session"
)

type CreateSessionRequestDTO struct {
	SessionID string `json:"session_id,omitempty"`
}

type AddItemRequestDTO struct {
	ItemID string `json:"item_id"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type CartResponse struct {
	Lines  []domain.CartLine `json:"lines"`
	Totals domain.CartTotals `json:"totals"`
}

func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	items, err := h.catalog.ListItems(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list catalog items", "err", err)
		respondError(w, http.StatusBadGateway, "upstream_error", "catalog is unavailable")
		return
	}
	respondJSON(w, http.StatusOK, items)
}

// CreateSession starts a session, or resumes one when the body names a
// previous session id. The body is optional.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequestDTO
	if r.ContentLength != 0 {
		if !decodeJSON(w, r, h.maxBody, &req) {
			return
		}
	}

	s, err := h.sessions.Create(r.Context(), req.SessionID)
	if errors.Is(err, session.ErrInvalidID) {
		respondError(w, http.StatusBadRequest, "invalid_session_id", err.Error())
		return
	}
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, s.Checkout.State())
}

func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, sessionFrom(r).Checkout.State())
}

func (h *Handler) CloseSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Close(sessionFrom(r).ID); err != nil {
		handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	respondCart(w, http.StatusOK, sessionFrom(r))
}

// AddItem looks the item up in the catalog so name, type and price always
// come from the server.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AddItemRequestDTO
	if !decodeJSON(w, r, h.maxBody, &req) {
		return
	}
	if req.ItemID == "" {
		respondError(w, http.StatusBadRequest, "invalid_item_id", "item_id is required")
		return
	}

	item, err := h.catalog.GetItem(ctx, req.ItemID)
	if err != nil {
		h.logger.WarnContext(ctx, "catalog lookup failed", "item_id", req.ItemID, "err", err)
		respondError(w, http.StatusNotFound, "item_not_found", "item is not available")
		return
	}

	s := sessionFrom(r)
	if err := s.Cart.AddItem(*item); err != nil {
		handleError(w, err)
		return
	}
	respondCart(w, http.StatusCreated, s)
}

func (h *Handler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	var req UpdateQuantityRequestDTO
	if !decodeJSON(w, r, h.maxBody, &req) {
		return
	}
	if req.Quantity > 99 {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be at most 99")
		return
	}

	s := sessionFrom(r)
	s.Cart.SetQuantity(chi.URLParam(r, "itemID"), req.Quantity)
	respondCart(w, http.StatusOK, s)
}

func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r)
	s.Cart.RemoveItem(chi.URLParam(r, "itemID"))
	respondCart(w, http.StatusOK, s)
}

func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r)
	s.Cart.Clear()
	respondCart(w, http.StatusOK, s)
}

func respondCart(w http.ResponseWriter, status int, s *session.Session) {
	respondJSON(w, status, CartResponse{Lines: s.Cart.Lines(), Totals: s.Cart.Totals()})
}
