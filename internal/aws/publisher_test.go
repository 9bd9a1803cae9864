package aws

import (
	"context"
	"errors"
	"testing"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/imrishuroy/campus-checkout/internal/aws/awstest"
)

func TestPublishJSON_SetsBodyAndAttributes(t *testing.T) {
	q := &awstest.Queue{}
	p := NewPublisher(q, "https://sqs.local/queue/order-events")

	err := p.PublishJSON(context.Background(), map[string]string{"type": "order.paid"}, map[string]string{
		"event_type":   "order.paid",
		"order_number": "ORD-20260101-AAAAAAAA",
		"empty":        "",
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(q.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(q.Messages))
	}
	msg := q.Messages[0]
	if sdkaws.ToString(msg.QueueUrl) != "https://sqs.local/queue/order-events" {
		t.Fatalf("queue url mismatch: %s", sdkaws.ToString(msg.QueueUrl))
	}
	if got := sdkaws.ToString(msg.MessageBody); got != `{"type":"order.paid"}` {
		t.Fatalf("body mismatch: %s", got)
	}
	if _, ok := msg.MessageAttributes["empty"]; ok {
		t.Fatalf("empty attributes must be skipped")
	}
	if v := sdkaws.ToString(msg.MessageAttributes["order_number"].StringValue); v != "ORD-20260101-AAAAAAAA" {
		t.Fatalf("attribute mismatch: %s", v)
	}
}

func TestPublish_PropagatesError(t *testing.T) {
	q := &awstest.Queue{Err: errors.New("throttled")}
	p := NewPublisher(q, "q")
	if err := p.SendMessage(context.Background(), "{}", nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestMetricsEmitter_Count(t *testing.T) {
	cw := &awstest.Metrics{}
	m := NewMetricsEmitter(cw, "CampusCheckout")
	if err := m.Count(context.Background(), "SettlementCompleted", map[string]string{"method": "gateway", "currency": "GHS"}); err != nil {
		t.Fatalf("count: %v", err)
	}
	if len(cw.Calls) != 1 {
		t.Fatalf("expected one PutMetricData call")
	}
	in := cw.Calls[0]
	if sdkaws.ToString(in.Namespace) != "CampusCheckout" {
		t.Fatalf("namespace mismatch")
	}
	dims := in.MetricData[0].Dimensions
	if len(dims) != 2 || sdkaws.ToString(dims[0].Name) != "currency" {
		t.Fatalf("dimensions must be sorted by name: %+v", dims)
	}
}
