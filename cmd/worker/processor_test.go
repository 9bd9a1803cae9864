package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/imrishuroy/campus-checkout/internal/money"
	"github.com/imrishuroy/campus-checkout/internal/orders"
)

type countCall struct {
	name string
	dims map[string]string
}

type mockCounter struct {
	calls []countCall
	fail  bool
}

func (m *mockCounter) Count(ctx context.Context, name string, dims map[string]string) error {
	if m.fail {
		return errors.New("throttled")
	}
	m.calls = append(m.calls, countCall{name: name, dims: dims})
	return nil
}

func message(t *testing.T, id string, ev orders.Event) events.SQSMessage {
	t.Helper()
	body, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return events.SQSMessage{MessageId: id, Body: string(body)}
}

func TestProcessor_CountsEvents(t *testing.T) {
	m := &mockCounter{}
	p := NewProcessor(m)

	at := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	ev := events.SQSEvent{Records: []events.SQSMessage{
		message(t, "m1", orders.Event{Type: orders.EventOrderPlaced, OrderNumber: "ORD-1", PaymentMethod: orders.MethodGateway, Total: money.MustParse("20.00"), At: at}),
		message(t, "m2", orders.Event{Type: orders.EventPaymentSucceeded, OrderNumber: "ORD-1", PaymentMethod: orders.MethodGateway, At: at}),
		message(t, "m3", orders.Event{Type: "order.archived", OrderNumber: "ORD-1"}),
		{MessageId: "m4", Body: "not json"},
	}}

	resp, err := p.Handle(context.Background(), ev)
	if err != nil {
		t.Fatalf("unexpected worker error: %v", err)
	}
	if len(resp.BatchItemFailures) != 0 {
		t.Fatalf("expected no failures, got %+v", resp.BatchItemFailures)
	}
	if len(m.calls) != 2 {
		t.Fatalf("expected 2 metric calls, got %d", len(m.calls))
	}
	if m.calls[0].name != "OrderPlacedEvents" || m.calls[1].name != "PaymentSucceededEvents" {
		t.Fatalf("unexpected metric names: %+v", m.calls)
	}
	if m.calls[0].dims["PaymentMethod"] != "gateway" {
		t.Fatalf("missing payment method dimension: %+v", m.calls[0].dims)
	}
}

func TestProcessor_ReportsFailedRecords(t *testing.T) {
	p := NewProcessor(&mockCounter{fail: true})
	ev := events.SQSEvent{Records: []events.SQSMessage{
		message(t, "m1", orders.Event{Type: orders.EventOrderCancelled, OrderNumber: "ORD-2"}),
	}}

	resp, err := p.Handle(context.Background(), ev)
	if err != nil {
		t.Fatalf("unexpected worker error: %v", err)
	}
	if len(resp.BatchItemFailures) != 1 || resp.BatchItemFailures[0].ItemIdentifier != "m1" {
		t.Fatalf("expected m1 to be retried, got %+v", resp.BatchItemFailures)
	}
}
