package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Iwomichu/cart-manager/internal/domain"
	"github.com/Iwomichu/cart-manager/internal/store"
)

// CartHandler exposes the store over HTTP.
type CartHandler struct {
	store  store.CartStore
	logger zerolog.Logger
}

func NewCartHandler(s store.CartStore, logger zerolog.Logger) *CartHandler {
	return &CartHandler{store: s, logger: logger}
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// NewRouter assembles the full route table. Health and metrics stay open; every
// state-touching route sits behind the access-token check.
func NewRouter(s store.CartStore, accessToken string, logger zerolog.Logger) chi.Router {
	h := NewCartHandler(s, logger)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(RequestLogger(logger))

	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(accessToken))

		r.Put("/state", h.OverwriteState)
		r.Get("/products", h.GetAvailability)
		r.Route("/cart/{user_id}", func(r chi.Router) {
			r.Get("/", h.GetCart)
			r.Post("/checkout", h.Checkout)
			r.Post("/{product_id}/increment", h.IncrementEntry)
			r.Post("/{product_id}/decrement", h.DecrementEntry)
			r.Post("/{product_id}/reset", h.ResetEntry)
		})
		r.Route("/product/{product_id}", func(r chi.Router) {
			r.Post("/reduce", h.ReduceAvailable)
			r.Post("/increase", h.IncreaseAvailable)
		})
	})

	return r
}

func (h *CartHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// OverwriteState wholesale replaces the in-memory state. The owning system
// calls this at its own startup to seed availability.
func (h *CartHandler) OverwriteState(w http.ResponseWriter, r *http.Request) {
	var state domain.State
	if err := json.NewDecoder(r.Body).Decode(&state); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if err := validateState(&state); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if state.CartByUserID == nil {
		state.CartByUserID = make(map[int64]*domain.Cart)
	}
	if state.StateByProduct == nil {
		state.StateByProduct = make(map[int64]*domain.ProductState)
	}

	h.store.OverwriteState(&state)
	h.logger.Info().
		Int("carts", len(state.CartByUserID)).
		Int("products", len(state.StateByProduct)).
		Msg("state overwritten")
	w.WriteHeader(http.StatusCreated)
}

// GetAvailability returns availability records for the products named by the
// repeated product_ids query parameter, or for all products when none given.
func (h *CartHandler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	var productIDs []int64
	for _, raw := range r.URL.Query()["product_ids"] {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_product_id", "product_ids must be integers")
			return
		}
		productIDs = append(productIDs, id)
	}

	respondJSON(w, http.StatusOK, h.store.GetAvailability(productIDs))
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "user_id")
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, h.store.GetCart(userID))
}

func (h *CartHandler) IncrementEntry(w http.ResponseWriter, r *http.Request) {
	h.modifyEntry(w, r, h.store.IncrementEntry)
}

func (h *CartHandler) DecrementEntry(w http.ResponseWriter, r *http.Request) {
	h.modifyEntry(w, r, h.store.DecrementEntry)
}

func (h *CartHandler) ResetEntry(w http.ResponseWriter, r *http.Request) {
	h.modifyEntry(w, r, h.store.ResetEntry)
}

func (h *CartHandler) modifyEntry(w http.ResponseWriter, r *http.Request, op func(userID, productID int64) error) {
	userID, ok := pathID(w, r, "user_id")
	if !ok {
		return
	}
	productID, ok := pathID(w, r, "product_id")
	if !ok {
		return
	}

	if err := op(userID, productID); err != nil {
		handleStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *CartHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "user_id")
	if !ok {
		return
	}

	if err := h.store.Checkout(userID); err != nil {
		handleStoreError(w, err)
		return
	}
	h.logger.Info().Int64("user_id", userID).Msg("cart checked out")
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *CartHandler) ReduceAvailable(w http.ResponseWriter, r *http.Request) {
	h.adjustAvailable(w, r, h.store.ReduceAvailable)
}

func (h *CartHandler) IncreaseAvailable(w http.ResponseWriter, r *http.Request) {
	h.adjustAvailable(w, r, h.store.IncreaseAvailable)
}

func (h *CartHandler) adjustAvailable(w http.ResponseWriter, r *http.Request, op func(productID int64, amount int) error) {
	productID, ok := pathID(w, r, "product_id")
	if !ok {
		return
	}
	amount, err := strconv.Atoi(r.URL.Query().Get("amount"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount", "amount must be an integer")
		return
	}

	if err := op(productID, amount); err != nil {
		handleStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// validateState rejects JSON null carts, entries and availability records,
// which the decoder maps onto nil pointers the store must never see.
func validateState(state *domain.State) error {
	for userID, cart := range state.CartByUserID {
		if cart == nil {
			return fmt.Errorf("cart for user %d is null", userID)
		}
		for productID, entry := range cart.Entries {
			if entry == nil {
				return fmt.Errorf("cart entry for user %d, product %d is null", userID, productID)
			}
		}
	}
	for productID, product := range state.StateByProduct {
		if product == nil {
			return fmt.Errorf("availability record for product %d is null", productID)
		}
	}
	return nil
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_"+name, name+" must be an integer")
		return 0, false
	}
	return id, true
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// The status line is already on the wire; nothing useful to do on error.
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// handleStoreError maps store errors to HTTP status codes.
func handleStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrProductNotFound):
		respondError(w, http.StatusNotFound, "product_not_found", err.Error())
	case errors.Is(err, store.ErrCartNotFound):
		respondError(w, http.StatusNotFound, "cart_not_found", err.Error())
	case errors.Is(err, store.ErrInsufficientStock):
		respondError(w, http.StatusConflict, "insufficient_availability", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
