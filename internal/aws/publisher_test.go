package aws

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

type mockSQS struct {
	inputs []*sqs.SendMessageInput
	err    error
}

func (m *mockSQS) SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.inputs = append(m.inputs, in)
	if m.err != nil {
		return nil, m.err
	}
	return &sqs.SendMessageOutput{}, nil
}

type mockCloudWatch struct {
	inputs []*cloudwatch.PutMetricDataInput
}

func (m *mockCloudWatch) PutMetricData(ctx context.Context, in *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	m.inputs = append(m.inputs, in)
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func TestPublishJSON_SetsBodyAndAttributes(t *testing.T) {
	mock := &mockSQS{}
	p := NewPublisher(mock, "https://sqs.local/queue")

	payload := map[string]string{"order_id": "o1"}
	if err := p.PublishJSON(context.Background(), "order.placed", payload, map[string]string{"correlation_id": "req-1", "empty": ""}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(mock.inputs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(mock.inputs))
	}
	in := mock.inputs[0]
	if *in.QueueUrl != "https://sqs.local/queue" {
		t.Fatalf("queue url mismatch: %s", *in.QueueUrl)
	}
	var body map[string]string
	if err := json.Unmarshal([]byte(*in.MessageBody), &body); err != nil {
		t.Fatalf("body is not json: %v", err)
	}
	if body["order_id"] != "o1" {
		t.Fatalf("unexpected body %v", body)
	}
	if got := *in.MessageAttributes["event_type"].StringValue; got != "order.placed" {
		t.Fatalf("event_type attr = %s", got)
	}
	if _, ok := in.MessageAttributes["empty"]; ok {
		t.Fatalf("empty attributes must be skipped")
	}
}

func TestSendMessage_WrapsError(t *testing.T) {
	boom := errors.New("boom")
	p := NewPublisher(&mockSQS{err: boom}, "q")
	err := p.SendMessage(context.Background(), "{}", nil)
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestMetricsPublisher_Count(t *testing.T) {
	mock := &mockCloudWatch{}
	m := NewMetricsPublisher(mock, "Storefront")

	if err := m.Count(context.Background(), "OrdersPlaced", 1, map[string]string{"Service": "api"}); err != nil {
		t.Fatalf("count: %v", err)
	}
	if len(mock.inputs) != 1 {
		t.Fatalf("expected one PutMetricData call")
	}
	in := mock.inputs[0]
	if *in.Namespace != "Storefront" {
		t.Fatalf("namespace = %s", *in.Namespace)
	}
	d := in.MetricData[0]
	if *d.MetricName != "OrdersPlaced" || *d.Value != 1 || len(d.Dimensions) != 1 {
		t.Fatalf("unexpected datum %+v", d)
	}
}
