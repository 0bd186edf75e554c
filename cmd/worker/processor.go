package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-storefront/internal/aws"
	"github.com/imrishuroy/go-storefront/internal/fulfillment"
	"github.com/imrishuroy/go-storefront/internal/idempotency"
	"github.com/imrishuroy/go-storefront/internal/notify"
	"github.com/imrishuroy/go-storefront/internal/users"
)

type claimStore interface {
	CreateIfNotExists(ctx context.Context, key, orderID string) (bool, error)
	Get(ctx context.Context, key string) (*idempotency.Record, error)
	Reclaim(ctx context.Context, key string) (bool, error)
	MarkDone(ctx context.Context, key, orderID, responseBody string, responseStatus int) error
	MarkFailed(ctx context.Context, key, note string) error
}

type userLookup interface {
	Get(ctx context.Context, id string) (*users.User, error)
}

type confirmationSender interface {
	SendOrderConfirmation(ctx context.Context, to string, c notify.OrderConfirmation) error
}

// Processor turns order.placed messages into confirmation emails, at most
// once per order.
type Processor struct {
	claims claimStore
	users  userLookup
	mailer confirmationSender
	logger *zap.Logger
}

func NewProcessor(claims claimStore, directory userLookup, mailer confirmationSender, logger *zap.Logger) *Processor {
	return &Processor{claims: claims, users: directory, mailer: mailer, logger: logger}
}

// Handle processes a batch and reports failed messages individually so only
// those are redelivered.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			p.logger.Error("worker message failed", zap.String("message_id", rec.MessageId), zap.Error(err))
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: rec.MessageId})
		}
	}
	return resp, nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	if attr, ok := rec.MessageAttributes[aws.AttrEventType]; ok && attr.StringValue != nil && *attr.StringValue != fulfillment.EventOrderPlaced {
		p.logger.Debug("ignoring event", zap.String("event_type", *attr.StringValue))
		return nil
	}

	var evt fulfillment.OrderPlacedEvent
	if err := json.Unmarshal([]byte(rec.Body), &evt); err != nil {
		return fmt.Errorf("invalid message body: %w", err)
	}
	if evt.OrderID == "" {
		return fmt.Errorf("message %s has no order_id", rec.MessageId)
	}
	log := p.logger.With(zap.String("order_id", evt.OrderID), zap.String("message_id", rec.MessageId))

	key := confirmationKey(evt.OrderID)
	proceed, err := p.claim(ctx, key, evt.OrderID)
	if err != nil {
		return err
	}
	if !proceed {
		log.Info("confirmation already sent")
		return nil
	}

	u, err := p.users.Get(ctx, evt.UserID)
	if err != nil {
		return p.fail(ctx, key, fmt.Errorf("lookup user %s: %w", evt.UserID, err))
	}
	if u == nil || u.Email == "" {
		log.Warn("no email on file, skipping confirmation", zap.String("user_id", evt.UserID))
		return p.done(ctx, key, evt.OrderID, confirmationResult{Reason: "no email on file"})
	}

	err = p.mailer.SendOrderConfirmation(ctx, u.Email, notify.OrderConfirmation{
		OrderID:      evt.OrderID,
		CustomerName: u.Name,
		Items:        evt.Items,
		Total:        evt.Total,
	})
	if err != nil {
		return p.fail(ctx, key, err)
	}
	log.Info("order confirmation sent", zap.String("user_id", u.ID))
	return p.done(ctx, key, evt.OrderID, confirmationResult{Sent: true, To: u.Email})
}

// claim returns true when this invocation owns the work for key.
func (p *Processor) claim(ctx context.Context, key, orderID string) (bool, error) {
	created, err := p.claims.CreateIfNotExists(ctx, key, orderID)
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	if created {
		return true, nil
	}
	rec, err := p.claims.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("read claim %s: %w", key, err)
	}
	if rec == nil {
		return false, errInFlight
	}
	switch rec.Status {
	case idempotency.StatusDone:
		return false, nil
	case idempotency.StatusFailed:
		ok, err := p.claims.Reclaim(ctx, key)
		if err != nil {
			return false, fmt.Errorf("reclaim %s: %w", key, err)
		}
		if !ok {
			return false, errInFlight
		}
		return true, nil
	default:
		return false, errInFlight
	}
}

func (p *Processor) done(ctx context.Context, key, orderID string, res confirmationResult) error {
	body, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if err := p.claims.MarkDone(ctx, key, orderID, string(body), http.StatusOK); err != nil {
		return fmt.Errorf("failed to update idempotency: %w", err)
	}
	return nil
}

// fail records cause on the claim and returns it so the message is retried.
func (p *Processor) fail(ctx context.Context, key string, cause error) error {
	if err := p.claims.MarkFailed(ctx, key, cause.Error()); err != nil {
		p.logger.Warn("mark claim failed", zap.String("key", key), zap.Error(err))
	}
	return cause
}
