package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/aws/aws-lambda-go/events"

	"github.com/imrishuroy/campus-checkout/internal/orders"
)

// Processor consumes order lifecycle events from SQS. It is the hook the
// notification layer hangs off: every event is logged and counted.
type Processor struct {
	metrics Counter
}

func NewProcessor(metrics Counter) *Processor {
	return &Processor{metrics: metrics}
}

// Handle processes a batch and reports only the failed records, so SQS
// redelivers those and deletes the rest.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			log.Printf("[worker] message=%s failed: %v", rec.MessageId, err)
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: rec.MessageId})
		}
	}
	return resp, nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	var msg orders.Event
	if err := json.Unmarshal([]byte(rec.Body), &msg); err != nil {
		// a body that never decodes would be redelivered forever
		log.Printf("[worker] dropping undecodable message=%s: %v", rec.MessageId, err)
		return nil
	}
	name, ok := metricNames[msg.Type]
	if !ok {
		log.Printf("[worker] ignoring event type=%s order=%s", msg.Type, msg.OrderNumber)
		return nil
	}

	log.Printf("[worker] %s order=%s status=%s payment=%s ref=%s total=%s %s stores=%d",
		msg.Type, msg.OrderNumber, msg.Status, msg.PaymentStatus, msg.Reference, msg.Total, msg.Currency, len(msg.StoreIDs))

	if p.metrics == nil {
		return nil
	}
	if err := p.metrics.Count(ctx, name, map[string]string{"PaymentMethod": string(msg.PaymentMethod)}); err != nil {
		return fmt.Errorf("count %s: %w", name, err)
	}
	return nil
}
