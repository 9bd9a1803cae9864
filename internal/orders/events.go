package orders

import (
	"context"
	"log"
	"time"

	"github.com/imrishuroy/campus-checkout/internal/aws"
	"github.com/imrishuroy/campus-checkout/internal/money"
)

// EventType names an order lifecycle notification.
type EventType string

const (
	EventOrderPlaced      EventType = "order.placed"
	EventPaymentSucceeded EventType = "payment.succeeded"
	EventPaymentFailed    EventType = "payment.failed"
	EventOrderCancelled   EventType = "order.cancelled"
	EventStatusChanged    EventType = "order.status_changed"
)

// Event is the message published to the notification queue.
type Event struct {
	Type          EventType     `json:"type"`
	OrderNumber   string        `json:"order_number"`
	UserID        string        `json:"user_id,omitempty"`
	Status        Status        `json:"status"`
	PaymentStatus string        `json:"payment_status"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	Reference     string        `json:"reference,omitempty"`
	Total         money.Amount  `json:"total"`
	Currency      string        `json:"currency"`
	StoreIDs      []string      `json:"store_ids,omitempty"`
	At            time.Time     `json:"at"`
}

func NewEvent(typ EventType, o *Order, reference string, at time.Time) Event {
	return Event{
		Type:          typ,
		OrderNumber:   o.OrderNumber,
		UserID:        o.UserID,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		PaymentMethod: o.PaymentMethod,
		Reference:     reference,
		Total:         o.Total,
		Currency:      o.Currency,
		StoreIDs:      o.StoreIDs(),
		At:            at,
	}
}

// EventPublisher sends lifecycle events to SQS. A nil publisher only logs.
type EventPublisher struct {
	pub *aws.Publisher
}

func NewEventPublisher(pub *aws.Publisher) *EventPublisher {
	return &EventPublisher{pub: pub}
}

func (p *EventPublisher) Publish(ctx context.Context, ev Event) error {
	if p == nil || p.pub == nil {
		log.Printf("[events] %s order=%s (no queue configured)", ev.Type, ev.OrderNumber)
		return nil
	}
	return p.pub.PublishJSON(ctx, ev, map[string]string{
		"event_type":   string(ev.Type),
		"order_number": ev.OrderNumber,
	})
}
