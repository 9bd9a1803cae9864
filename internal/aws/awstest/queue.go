package awstest

import (
	"context"
	"strconv"
	"sync"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// Queue records SendMessage calls.
type Queue struct {
	mu       sync.Mutex
	Err      error
	Messages []*sqs.SendMessageInput
}

func (q *Queue) SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.Err != nil {
		return nil, q.Err
	}
	q.Messages = append(q.Messages, in)
	return &sqs.SendMessageOutput{MessageId: sdkaws.String(strconv.Itoa(len(q.Messages)))}, nil
}

// Bodies returns the message bodies sent so far.
func (q *Queue) Bodies() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, 0, len(q.Messages))
	for _, m := range q.Messages {
		out = append(out, sdkaws.ToString(m.MessageBody))
	}
	return out
}

// Metrics records PutMetricData calls.
type Metrics struct {
	mu    sync.Mutex
	Err   error
	Calls []*cloudwatch.PutMetricDataInput
}

func (m *Metrics) PutMetricData(ctx context.Context, in *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	m.Calls = append(m.Calls, in)
	return &cloudwatch.PutMetricDataOutput{}, nil
}

// Names returns the metric names recorded so far, in call order.
func (m *Metrics) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, c := range m.Calls {
		for _, d := range c.MetricData {
			out = append(out, sdkaws.ToString(d.MetricName))
		}
	}
	return out
}
