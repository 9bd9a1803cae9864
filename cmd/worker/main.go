package main

import (
	"context"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/imrishuroy/campus-checkout/internal/aws"
	"github.com/imrishuroy/campus-checkout/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// If RUN_LOCAL=true, simulate a single SQS event and log it.
	if cfg.RunLocal {
		testBody := os.Getenv("LOCAL_SQS_BODY")
		if testBody == "" {
			testBody = `{"type":"order.placed","order_number":"ORD-LOCAL-1","status":"pending","payment_status":"pending","payment_method":"gateway","total":"10.00","currency":"GHS"}`
		}
		event := events.SQSEvent{
			Records: []events.SQSMessage{
				{MessageId: "local-1", Body: testBody},
			},
		}
		resp, err := NewProcessor(nil).Handle(context.Background(), event)
		if err != nil || len(resp.BatchItemFailures) > 0 {
			log.Fatalf("local handler error: %v failures=%d", err, len(resp.BatchItemFailures))
		}
		return
	}

	clients, err := aws.NewClients(context.Background(), aws.Targets{MetricsNamespace: cfg.MetricsNamespace})
	if err != nil {
		log.Fatalf("failed to init aws clients: %v", err)
	}
	p := NewProcessor(clients.Metrics())
	lambda.Start(p.Handle)
}
