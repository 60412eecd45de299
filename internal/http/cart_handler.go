package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/afedorov1971/vc-module-cart/internal/domain"
	"github.com/afedorov1971/vc-module-cart/internal/keylock"
	"github.com/afedorov1971/vc-module-cart/internal/repository"
)

// CartAPI is what the handlers need from the cart service.
// Consumers define this interface, not the service implementation.
type CartAPI interface {
	GetOrCreate(ctx context.Context, key domain.CartKey) (*domain.Cart, error)
	GetByID(ctx context.Context, cartID string, rg domain.ResponseGroup) (*domain.Cart, error)
	Search(ctx context.Context, criteria repository.SearchCriteria) (*repository.SearchResult, error)
	AddItem(ctx context.Context, cartID string, item domain.LineItem) (*domain.Cart, error)
	ChangeItemQuantity(ctx context.Context, cartID, lineItemID string, quantity int) (*domain.Cart, error)
	RemoveItem(ctx context.Context, cartID, lineItemID string) (int, error)
	Clear(ctx context.Context, cartID string) (*domain.Cart, error)
	AddCoupon(ctx context.Context, cartID, code string) (*domain.Cart, error)
	RemoveCoupon(ctx context.Context, cartID string) (*domain.Cart, error)
	AddOrUpdateShipment(ctx context.Context, cartID string, shipment domain.Shipment) (*domain.Cart, error)
	AddOrUpdatePayment(ctx context.Context, cartID string, payment domain.Payment) (*domain.Cart, error)
	Merge(ctx context.Context, targetID, sourceID string) (*domain.Cart, error)
	SoftDelete(ctx context.Context, ids []string) error
	GetAvailableShippingRates(ctx context.Context, cartID string) ([]domain.ShippingRate, error)
	GetAvailablePaymentMethods(ctx context.Context, cartID string) ([]domain.PaymentMethod, error)
}

type CartHandler struct {
	api CartAPI
}

func NewCartHandler(api CartAPI) *CartHandler {
	return &CartHandler{api: api}
}

type AddItemRequestDTO struct {
	ProductID   string `json:"product_id"`
	VariantID   string `json:"variant_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type CouponRequestDTO struct {
	Code string `json:"code"`
}

type ShipmentRequestDTO struct {
	ID          string `json:"id"`
	MethodCode  string `json:"method_code"`
	Destination string `json:"destination"`
}

type PaymentRequestDTO struct {
	ID          string `json:"id"`
	GatewayCode string `json:"gateway_code"`
}

type MergeRequestDTO struct {
	SourceCartID string `json:"source_cart_id"`
}

type DeleteRequestDTO struct {
	IDs []string `json:"ids"`
}

type ItemCountResponseDTO struct {
	ItemCount int `json:"item_count"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// GetCurrent resolves the caller's current cart by business tuple, creating
// it when absent. The customer id always comes from the token, never from
// the request.
func (h *CartHandler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	q := r.URL.Query()
	key := domain.CartKey{
		StoreID:     q.Get("storeId"),
		CustomerID:  claims.CustomerID,
		Name:        q.Get("name"),
		Currency:    q.Get("currency"),
		CultureName: q.Get("culture"),
	}
	if key.StoreID == "" || key.Currency == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "storeId and currency are required")
		return
	}
	if key.Name == "" {
		key.Name = "default"
	}

	cart, err := h.api.GetOrCreate(r.Context(), key)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cart)
}

func (h *CartHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	cartID := chi.URLParam(r, "cart_id")

	rg := domain.Full
	if raw := r.URL.Query().Get("responseGroup"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 8)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_request", "responseGroup must be numeric flags")
			return
		}
		rg = domain.ResponseGroup(parsed)
	}

	cart, err := h.api.GetByID(r.Context(), cartID, rg)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cart)
}

func (h *CartHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	criteria := repository.SearchCriteria{
		StoreID:    q.Get("storeId"),
		CustomerID: q.Get("customerId"),
	}
	criteria.Skip, _ = strconv.ParseInt(q.Get("skip"), 10, 64)
	criteria.Take, _ = strconv.ParseInt(q.Get("take"), 10, 64)

	result, err := h.api.Search(r.Context(), criteria)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	cartID := chi.URLParam(r, "cart_id")

	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.ProductID == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id is required")
		return
	}
	unitPrice, err := decimal.NewFromString(req.UnitPrice)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_price", "unit_price must be a decimal string")
		return
	}

	cart, err := h.api.AddItem(r.Context(), cartID, domain.LineItem{
		ProductID:   req.ProductID,
		VariantID:   req.VariantID,
		ProductName: req.ProductName,
		Quantity:    req.Quantity,
		UnitPrice:   unitPrice,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, cart)
}

func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	cartID := chi.URLParam(r, "cart_id")
	itemID := chi.URLParam(r, "item_id")

	var req UpdateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	cart, err := h.api.ChangeItemQuantity(r.Context(), cartID, itemID, req.Quantity)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cart)
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	cartID := chi.URLParam(r, "cart_id")
	itemID := chi.URLParam(r, "item_id")

	count, err := h.api.RemoveItem(r.Context(), cartID, itemID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ItemCountResponseDTO{ItemCount: count})
}

func (h *CartHandler) Clear(w http.ResponseWriter, r *http.Request) {
	cartID := chi.URLParam(r, "cart_id")

	cart, err := h.api.Clear(r.Context(), cartID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cart)
}

func (h *CartHandler) AddCoupon(w http.ResponseWriter, r *http.Request) {
	cartID := chi.URLParam(r, "cart_id")

	var req CouponRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "coupon code is required")
		return
	}

	cart, err := h.api.AddCoupon(r.Context(), cartID, req.Code)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cart)
}

func (h *CartHandler) RemoveCoupon(w http.ResponseWriter, r *http.Request) {
	cartID := chi.URLParam(r, "cart_id")

	cart, err := h.api.RemoveCoupon(r.Context(), cartID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cart)
}

func (h *CartHandler) UpsertShipment(w http.ResponseWriter, r *http.Request) {
	cartID := chi.URLParam(r, "cart_id")

	var req ShipmentRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.MethodCode == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "method_code is required")
		return
	}

	cart, err := h.api.AddOrUpdateShipment(r.Context(), cartID, domain.Shipment{
		ID:          req.ID,
		MethodCode:  req.MethodCode,
		Destination: req.Destination,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cart)
}

func (h *CartHandler) UpsertPayment(w http.ResponseWriter, r *http.Request) {
	cartID := chi.URLParam(r, "cart_id")

	var req PaymentRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.GatewayCode == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "gateway_code is required")
		return
	}

	cart, err := h.api.AddOrUpdatePayment(r.Context(), cartID, domain.Payment{
		ID:          req.ID,
		GatewayCode: req.GatewayCode,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cart)
}

func (h *CartHandler) Merge(w http.ResponseWriter, r *http.Request) {
	cartID := chi.URLParam(r, "cart_id")

	var req MergeRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SourceCartID == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "source_cart_id is required")
		return
	}

	cart, err := h.api.Merge(r.Context(), cartID, req.SourceCartID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cart)
}

func (h *CartHandler) Delete(w http.ResponseWriter, r *http.Request) {
	var req DeleteRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.IDs) == 0 {
		respondError(w, http.StatusBadRequest, "invalid_request", "ids are required")
		return
	}

	if err := h.api.SoftDelete(r.Context(), req.IDs); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandler) ShippingRates(w http.ResponseWriter, r *http.Request) {
	cartID := chi.URLParam(r, "cart_id")

	rates, err := h.api.GetAvailableShippingRates(r.Context(), cartID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if rates == nil {
		rates = []domain.ShippingRate{}
	}
	respondJSON(w, http.StatusOK, rates)
}

func (h *CartHandler) PaymentMethods(w http.ResponseWriter, r *http.Request) {
	cartID := chi.URLParam(r, "cart_id")

	methods, err := h.api.GetAvailablePaymentMethods(r.Context(), cartID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if methods == nil {
		methods = []domain.PaymentMethod{}
	}
	respondJSON(w, http.StatusOK, methods)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrCartNotFound):
		respondError(w, http.StatusNotFound, "not_found", "cart not found")
	case domain.IsValidation(err):
		respondError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, keylock.ErrLockWait), errors.Is(err, repository.ErrConcurrentModification):
		respondError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, "timeout", "operation timed out")
	default:
		respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
