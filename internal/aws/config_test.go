package aws

import (
	"context"
	"testing"
)

func TestLoadAWSConfig_DefaultRegion(t *testing.T) {
	t.Setenv("AWS_ENDPOINT_OVERRIDE", "")
	t.Setenv("AWS_REGION", "")

	cfg, err := LoadAWSConfig(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Region != "us-east-1" {
		t.Fatalf("expected default region 'us-east-1', got %s", cfg.Region)
	}
	if cfg.BaseEndpoint != nil {
		t.Fatalf("expected no endpoint override, got %s", *cfg.BaseEndpoint)
	}
}

func TestLoadAWSConfig_WithEndpointOverride(t *testing.T) {
	t.Setenv("AWS_REGION", "eu-west-1")
	t.Setenv("AWS_ENDPOINT_OVERRIDE", "http://localhost:4566")

	cfg, err := LoadAWSConfig(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Region != "eu-west-1" {
		t.Fatalf("region mismatch, got %s", cfg.Region)
	}
	if cfg.BaseEndpoint == nil || *cfg.BaseEndpoint != "http://localhost:4566" {
		t.Fatalf("endpoint override not applied: %v", cfg.BaseEndpoint)
	}
}

func TestClientsFromConfig_Targets(t *testing.T) {
	t.Setenv("AWS_ENDPOINT_OVERRIDE", "http://localhost:4566")
	cfg, err := LoadAWSConfig(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c := ClientsFromConfig(cfg, Targets{EventsQueueURL: "http://localhost:4566/000000000000/order-events", MetricsNamespace: "CampusCheckout"})
	if c.DynamoDB == nil || c.SQS == nil || c.CloudWatch == nil {
		t.Fatalf("expected all clients to be built: %+v", c)
	}
	pub := c.Events()
	if pub == nil || pub.QueueURL != "http://localhost:4566/000000000000/order-events" {
		t.Fatalf("events publisher not bound to the queue: %+v", pub)
	}
	if m := c.Metrics(); m.Namespace != "CampusCheckout" {
		t.Fatalf("metrics namespace mismatch, got %q", m.Namespace)
	}

	// the worker only emits metrics
	if pub := ClientsFromConfig(cfg, Targets{MetricsNamespace: "CampusCheckout"}).Events(); pub != nil {
		t.Fatalf("expected no publisher without a queue, got %+v", pub)
	}
}
