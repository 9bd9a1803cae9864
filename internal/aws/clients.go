package aws

import (
	"context"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// Targets names the queue and metric namespace the checkout binaries write to.
type Targets struct {
	EventsQueueURL   string
	MetricsNamespace string
}

// Clients is the checkout service's view of AWS: the DynamoDB client the
// stores share, the order-events queue and the CloudWatch namespace.
type Clients struct {
	DynamoDB   DynamoDBAPI
	SQS        SQSAPI
	CloudWatch CloudWatchAPI

	targets Targets
}

// NewClients loads the SDK config (see LoadAWSConfig) and builds the clients.
func NewClients(ctx context.Context, t Targets) (*Clients, error) {
	cfg, err := LoadAWSConfig(ctx)
	if err != nil {
		return nil, err
	}
	return ClientsFromConfig(cfg, t), nil
}

func ClientsFromConfig(cfg sdkaws.Config, t Targets) *Clients {
	return &Clients{
		DynamoDB:   dynamodb.NewFromConfig(cfg),
		SQS:        sqs.NewFromConfig(cfg),
		CloudWatch: cloudwatch.NewFromConfig(cfg),
		targets:    t,
	}
}

// Events returns a publisher for the order-events queue, or nil when no
// queue is configured.
func (c *Clients) Events() *Publisher {
	if c.targets.EventsQueueURL == "" {
		return nil
	}
	return NewPublisher(c.SQS, c.targets.EventsQueueURL)
}

// Metrics returns an emitter for the service's CloudWatch namespace.
func (c *Clients) Metrics() *MetricsEmitter {
	return NewMetricsEmitter(c.CloudWatch, c.targets.MetricsNamespace)
}
