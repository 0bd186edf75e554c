package aws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// AttrEventType is the message attribute consumers filter on.
const AttrEventType = "event_type"

// Publisher sends domain events to a single SQS queue.
type Publisher struct {
	client   SQSAPI
	queueURL string
}

func NewPublisher(client SQSAPI, queueURL string) *Publisher {
	return &Publisher{client: client, queueURL: queueURL}
}

// SendMessage sends body as is. Blank attribute values are dropped.
func (p *Publisher) SendMessage(ctx context.Context, body string, attributes map[string]string) error {
	input := &sqs.SendMessageInput{
		QueueUrl:          awsString(p.queueURL),
		MessageBody:       awsString(body),
		MessageAttributes: stringAttributes(attributes),
	}
	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("sqs send to %s: %w", p.queueURL, err)
	}
	return nil
}

// PublishJSON encodes v as the message body and tags it with eventType.
func (p *Publisher) PublishJSON(ctx context.Context, eventType string, v any, attributes map[string]string) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", eventType, err)
	}
	attrs := make(map[string]string, len(attributes)+1)
	for k, val := range attributes {
		attrs[k] = val
	}
	attrs[AttrEventType] = eventType
	return p.SendMessage(ctx, string(body), attrs)
}

func stringAttributes(in map[string]string) map[string]sqstypes.MessageAttributeValue {
	var out map[string]sqstypes.MessageAttributeValue
	for k, v := range in {
		if v == "" {
			continue
		}
		if out == nil {
			out = make(map[string]sqstypes.MessageAttributeValue, len(in))
		}
		out[k] = sqstypes.MessageAttributeValue{DataType: awsString("String"), StringValue: awsString(v)}
	}
	return out
}

func awsString(s string) *string { return &s }
