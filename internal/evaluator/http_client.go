package evaluator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/afedorov1971/vc-module-cart/internal/domain"
)

// Client talks to an external shipping/payment/coupon evaluation service over
// JSON HTTP. Calls go through a circuit breaker so an unavailable evaluator
// fails fast instead of tying up request workers.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
}

func NewClient(name, baseURL string) *Client {
	settings := gobreaker.Settings{
		Name:    name,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		breaker: gobreaker.NewCircuitBreaker[[]byte](settings),
	}
}

func (c *Client) Evaluate(ctx context.Context, cc CartContext) ([]domain.ShippingRate, error) {
	var out struct {
		Rates []domain.ShippingRate `json:"rates"`
	}
	if err := c.post(ctx, "/evaluate", cc, &out); err != nil {
		return nil, fmt.Errorf("shipping evaluation failed: %w", err)
	}
	return out.Rates, nil
}

// PaymentClient shares the transport but decodes payment methods.
type PaymentClient struct {
	*Client
}

func NewPaymentClient(name, baseURL string) *PaymentClient {
	return &PaymentClient{Client: NewClient(name, baseURL)}
}

func (c *PaymentClient) Evaluate(ctx context.Context, cc CartContext) ([]domain.PaymentMethod, error) {
	var out struct {
		Methods []domain.PaymentMethod `json:"methods"`
	}
	if err := c.post(ctx, "/evaluate", cc, &out); err != nil {
		return nil, fmt.Errorf("payment evaluation failed: %w", err)
	}
	return out.Methods, nil
}

// CouponClient validates coupon codes against the promotion service.
type CouponClient struct {
	*Client
}

func NewCouponClient(name, baseURL string) *CouponClient {
	return &CouponClient{Client: NewClient(name, baseURL)}
}

func (c *CouponClient) Validate(ctx context.Context, cc CartContext, code string) (*domain.Coupon, error) {
	payload := struct {
		CartContext
		Code string `json:"code"`
	}{CartContext: cc, Code: code}

	var out struct {
		Valid  bool           `json:"valid"`
		Coupon *domain.Coupon `json:"coupon"`
	}
	if err := c.post(ctx, "/coupons/validate", payload, &out); err != nil {
		return nil, fmt.Errorf("coupon validation failed: %w", err)
	}
	if !out.Valid || out.Coupon == nil {
		return nil, domain.ErrUnknownCoupon
	}
	return out.Coupon, nil
}

var errUnexpectedStatus = errors.New("evaluator returned unexpected status")

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request failed: %w", err)
	}

	data, err := c.breaker.Execute(func() ([]byte, error) {
		req, errReq := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if errReq != nil {
			return nil, errReq
		}
		req.Header.Set("Content-Type", "application/json")

		resp, errDo := c.http.Do(req)
		if errDo != nil {
			return nil, errDo
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("%w: %d", errUnexpectedStatus, resp.StatusCode)
		}

		var buf bytes.Buffer
		if _, errRead := buf.ReadFrom(resp.Body); errRead != nil {
			return nil, errRead
		}
		return buf.Bytes(), nil
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal response failed: %w", err)
	}
	return nil
}
