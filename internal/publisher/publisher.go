package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/afedorov1971/vc-module-cart/internal/domain"
)

// Notifier accepts a "cart changed" fact after a successful save. Delivery is
// fire-and-forget from the core's perspective; no cart state depends on it.
type Notifier interface {
	CartChanged(ctx context.Context, event CartChangedEvent) error
}

type CartChangedEvent struct {
	CartID     string    `json:"cart_id"`
	StoreID    string    `json:"store_id"`
	CustomerID string    `json:"customer_id"`
	ItemCount  int       `json:"item_count"`
	GrandTotal string    `json:"grand_total"`
	Currency   string    `json:"currency"`
	ChangedAt  time.Time `json:"changed_at"`
}

// EventFrom captures the event payload from a freshly saved cart.
func EventFrom(cart *domain.Cart) CartChangedEvent {
	return CartChangedEvent{
		CartID:     cart.ID,
		StoreID:    cart.StoreID,
		CustomerID: cart.CustomerID,
		ItemCount:  len(cart.Items),
		GrandTotal: cart.Totals.GrandTotal.String(),
		Currency:   cart.Currency,
		ChangedAt:  time.Now(),
	}
}

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type KafkaNotifier struct {
	writer kafkaWriter
}

func NewKafkaNotifier(brokers ...string) *KafkaNotifier {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  "cart-events",
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	return &KafkaNotifier{writer: w}
}

func (n *KafkaNotifier) CartChanged(ctx context.Context, event CartChangedEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal cart event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.CartID), // cart_id for ordering
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("cart-changed")},
		},
	}

	return n.writer.WriteMessages(ctx, msg)
}

func (n *KafkaNotifier) Close() error {
	if w, ok := n.writer.(*kafka.Writer); ok {
		return w.Close()
	}
	return nil
}
