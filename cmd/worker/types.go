package main

import (
	"context"

	"github.com/imrishuroy/campus-checkout/internal/orders"
)

// Counter records one occurrence of a named metric. aws.MetricsEmitter
// satisfies it.
type Counter interface {
	Count(ctx context.Context, name string, dims map[string]string) error
}

// metricNames maps each lifecycle event to the CloudWatch metric it bumps.
var metricNames = map[orders.EventType]string{
	orders.EventOrderPlaced:      "OrderPlacedEvents",
	orders.EventPaymentSucceeded: "PaymentSucceededEvents",
	orders.EventPaymentFailed:    "PaymentFailedEvents",
	orders.EventOrderCancelled:   "OrderCancelledEvents",
	orders.EventStatusChanged:    "OrderStatusChangedEvents",
}
