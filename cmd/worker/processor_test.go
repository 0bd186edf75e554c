package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-storefront/internal/aws/dynamotest"
	"github.com/imrishuroy/go-storefront/internal/fulfillment"
	"github.com/imrishuroy/go-storefront/internal/idempotency"
	"github.com/imrishuroy/go-storefront/internal/money"
	"github.com/imrishuroy/go-storefront/internal/notify"
	"github.com/imrishuroy/go-storefront/internal/orders"
	"github.com/imrishuroy/go-storefront/internal/users"
)

// --- mock implementations ---

type sentMail struct {
	to string
	c  notify.OrderConfirmation
}

type mockMailer struct {
	sent []sentMail
	err  error
}

func (m *mockMailer) SendOrderConfirmation(ctx context.Context, to string, c notify.OrderConfirmation) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to, c})
	return nil
}

type fixture struct {
	p      *Processor
	claims *idempotency.Store
	mailer *mockMailer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fake := dynamotest.New()
	fake.CreateTable("idempotency", "idempotency_key")
	fake.CreateTable("users", "user_id")
	fake.CreateTable("user_emails", "email")

	userStore := users.NewDynamoStore(fake, "users", "user_emails")
	if err := userStore.Create(context.Background(), users.User{ID: "u1", Name: "Ada", Email: "ada@example.com", Role: users.RoleCustomer}); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	f := &fixture{
		claims: idempotency.NewStore(fake, "idempotency", time.Hour),
		mailer: &mockMailer{},
	}
	f.p = NewProcessor(f.claims, userStore, f.mailer, zap.NewNop())
	return f
}

func placedMessage(t *testing.T, id, orderID, userID string) events.SQSMessage {
	t.Helper()
	body, err := json.Marshal(fulfillment.OrderPlacedEvent{
		OrderID: orderID,
		UserID:  userID,
		Total:   money.MustParse("20"),
		Items:   []orders.LineItem{{ProductID: "p1", Name: "Mug", Quantity: 2, UnitPrice: money.MustParse("10")}},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	eventType := fulfillment.EventOrderPlaced
	return events.SQSMessage{
		MessageId: id,
		Body:      string(body),
		MessageAttributes: map[string]events.SQSMessageAttribute{
			"event_type": {StringValue: &eventType, DataType: "String"},
		},
	}
}

func TestProcessor_SendsConfirmationOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	msg := placedMessage(t, "m1", "o1", "u1")

	resp, err := f.p.Handle(ctx, events.SQSEvent{Records: []events.SQSMessage{msg}})
	if err != nil || len(resp.BatchItemFailures) != 0 {
		t.Fatalf("unexpected failure: %v %+v", err, resp)
	}
	if len(f.mailer.sent) != 1 {
		t.Fatalf("expected one email, got %d", len(f.mailer.sent))
	}
	got := f.mailer.sent[0]
	if got.to != "ada@example.com" || got.c.OrderID != "o1" || got.c.CustomerName != "Ada" {
		t.Fatalf("unexpected email %+v", got)
	}
	if !got.c.Total.Equal(money.MustParse("20")) || len(got.c.Items) != 1 {
		t.Fatalf("order details not forwarded: %+v", got.c)
	}

	// redelivery of the same order is a no-op
	dup := placedMessage(t, "m2", "o1", "u1")
	resp, _ = f.p.Handle(ctx, events.SQSEvent{Records: []events.SQSMessage{dup}})
	if len(resp.BatchItemFailures) != 0 || len(f.mailer.sent) != 1 {
		t.Fatalf("duplicate must be skipped, sent=%d", len(f.mailer.sent))
	}

	rec, _ := f.claims.Get(ctx, confirmationKey("o1"))
	if rec == nil || rec.Status != idempotency.StatusDone {
		t.Fatalf("expected DONE claim, got %+v", rec)
	}
}

func TestProcessor_MailFailureIsRetried(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mailer.err = errors.New("ses throttled")

	resp, err := f.p.Handle(ctx, events.SQSEvent{Records: []events.SQSMessage{placedMessage(t, "m1", "o2", "u1")}})
	if err != nil {
		t.Fatalf("batch errors are reported per item, got %v", err)
	}
	if len(resp.BatchItemFailures) != 1 || resp.BatchItemFailures[0].ItemIdentifier != "m1" {
		t.Fatalf("expected m1 to be reported, got %+v", resp)
	}
	rec, _ := f.claims.Get(ctx, confirmationKey("o2"))
	if rec.Status != idempotency.StatusFailed || rec.Note != "ses throttled" {
		t.Fatalf("expected FAILED claim, got %+v", rec)
	}

	// the redelivery reclaims and succeeds
	f.mailer.err = nil
	resp, _ = f.p.Handle(ctx, events.SQSEvent{Records: []events.SQSMessage{placedMessage(t, "m1", "o2", "u1")}})
	if len(resp.BatchItemFailures) != 0 || len(f.mailer.sent) != 1 {
		t.Fatalf("retry should send, failures=%+v sent=%d", resp.BatchItemFailures, len(f.mailer.sent))
	}
}

func TestProcessor_InFlightClaimIsRetriedLater(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.claims.CreateIfNotExists(ctx, confirmationKey("o3"), "o3"); err != nil {
		t.Fatalf("seed claim: %v", err)
	}

	resp, _ := f.p.Handle(ctx, events.SQSEvent{Records: []events.SQSMessage{placedMessage(t, "m3", "o3", "u1")}})
	if len(resp.BatchItemFailures) != 1 {
		t.Fatalf("expected in-flight message to be retried, got %+v", resp)
	}
	if len(f.mailer.sent) != 0 {
		t.Fatalf("must not send while another attempt owns the claim")
	}
}

func TestProcessor_UnknownUserIsSkipped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp, _ := f.p.Handle(ctx, events.SQSEvent{Records: []events.SQSMessage{placedMessage(t, "m4", "o4", "ghost")}})
	if len(resp.BatchItemFailures) != 0 || len(f.mailer.sent) != 0 {
		t.Fatalf("expected silent skip, got %+v sent=%d", resp, len(f.mailer.sent))
	}
	rec, _ := f.claims.Get(ctx, confirmationKey("o4"))
	if rec.Status != idempotency.StatusDone {
		t.Fatalf("expected DONE claim, got %s", rec.Status)
	}
}

func TestProcessor_BadMessages(t *testing.T) {
	f := newFixture(t)
	other := "order.cancelled"
	batch := events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: "bad-json", Body: "{"},
		{MessageId: "no-id", Body: `{"user_id":"u1"}`},
		{MessageId: "other", Body: "{", MessageAttributes: map[string]events.SQSMessageAttribute{
			"event_type": {StringValue: &other},
		}},
		placedMessage(t, "good", "o5", "u1"),
	}}

	resp, err := f.p.Handle(context.Background(), batch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	failed := map[string]bool{}
	for _, it := range resp.BatchItemFailures {
		failed[it.ItemIdentifier] = true
	}
	if !failed["bad-json"] || !failed["no-id"] || failed["other"] || failed["good"] {
		t.Fatalf("unexpected failures %v", failed)
	}
	if len(f.mailer.sent) != 1 {
		t.Fatalf("good message should still be processed")
	}
}
