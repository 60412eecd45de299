package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires the cart endpoints. All cart routes require an
// authenticated caller; search, create, update and delete additionally
// require the matching named permission.
func NewRouter(api CartAPI, jwtSecret []byte, requestTimeout time.Duration) http.Handler {
	h := NewCartHandler(api)

	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestIDMiddleware)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(middleware.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1/carts", func(r chi.Router) {
		r.Use(AuthMiddleware(jwtSecret))

		r.With(RequirePermission(PermCartRead)).Get("/", h.Search)
		r.With(RequirePermission(PermCartCreate)).Get("/current", h.GetCurrent)
		r.With(RequirePermission(PermCartDelete)).Delete("/", h.Delete)

		r.Route("/{cart_id}", func(r chi.Router) {
			r.Get("/", h.GetByID)
			r.Get("/shipping-rates", h.ShippingRates)
			r.Get("/payment-methods", h.PaymentMethods)

			r.Group(func(r chi.Router) {
				r.Use(RequirePermission(PermCartUpdate))

				r.Post("/items", h.AddItem)
				r.Put("/items/{item_id}", h.UpdateQuantity)
				r.Delete("/items/{item_id}", h.RemoveItem)
				r.Delete("/items", h.Clear)
				r.Post("/coupon", h.AddCoupon)
				r.Delete("/coupon", h.RemoveCoupon)
				r.Put("/shipments", h.UpsertShipment)
				r.Put("/payments", h.UpsertPayment)
				r.Post("/merge", h.Merge)
			})
		})
	})

	return r
}
