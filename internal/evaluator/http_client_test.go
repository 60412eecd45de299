package evaluator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afedorov1971/vc-module-cart/internal/domain"
)

func TestShippingClient_Evaluate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/evaluate", r.URL.Path)

		var cc CartContext
		require.NoError(t, json.NewDecoder(r.Body).Decode(&cc))
		assert.Equal(t, "store-1", cc.StoreID)

		json.NewEncoder(w).Encode(map[string]any{
			"rates": []domain.ShippingRate{
				{MethodCode: "ground", Name: "Ground", Price: decimal.RequireFromString("4.99")},
			},
		})
	}))
	defer srv.Close()

	client := NewClient("shipping", srv.URL)
	rates, err := client.Evaluate(context.Background(), CartContext{StoreID: "store-1", Currency: "USD"})
	require.NoError(t, err)
	require.Len(t, rates, 1)
	assert.Equal(t, "ground", rates[0].MethodCode)
	assert.True(t, decimal.RequireFromString("4.99").Equal(rates[0].Price))
}

func TestShippingClient_EmptySetIsValid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"rates": []domain.ShippingRate{}})
	}))
	defer srv.Close()

	client := NewClient("shipping", srv.URL)
	rates, err := client.Evaluate(context.Background(), CartContext{})
	require.NoError(t, err)
	assert.Empty(t, rates)
}

func TestCouponClient_UnknownCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/coupons/validate", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{"valid": false})
	}))
	defer srv.Close()

	client := NewCouponClient("coupons", srv.URL)
	_, err := client.Validate(context.Background(), CartContext{}, "NOPE")
	require.ErrorIs(t, err, domain.ErrUnknownCoupon)
}

func TestCouponClient_ValidCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Code string `json:"code"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "SAVE10", payload.Code)

		json.NewEncoder(w).Encode(map[string]any{
			"valid":  true,
			"coupon": domain.Coupon{Code: "SAVE10", PercentOff: decimal.NewFromInt(10)},
		})
	}))
	defer srv.Close()

	client := NewCouponClient("coupons", srv.URL)
	coupon, err := client.Validate(context.Background(), CartContext{}, "SAVE10")
	require.NoError(t, err)
	assert.Equal(t, "SAVE10", coupon.Code)
	assert.True(t, decimal.NewFromInt(10).Equal(coupon.PercentOff))
}

func TestClient_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient("shipping", srv.URL)
	for i := 0; i < 5; i++ {
		_, err := client.Evaluate(context.Background(), CartContext{})
		require.Error(t, err)
	}

	// breaker is now open; the failure no longer reaches the server
	_, err := client.Evaluate(context.Background(), CartContext{})
	require.Error(t, err)
}
