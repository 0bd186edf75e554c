// Package notify sends transactional email through SES.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/imrishuroy/go-storefront/internal/apperr"
	"github.com/imrishuroy/go-storefront/internal/aws"
	"github.com/imrishuroy/go-storefront/internal/money"
	"github.com/imrishuroy/go-storefront/internal/orders"
)

const charset = "UTF-8"

// OrderConfirmation is what the customer is told about a placed order.
type OrderConfirmation struct {
	OrderID      string
	CustomerName string
	Items        []orders.LineItem
	Total        money.Amount
}

type Mailer struct {
	client aws.SESAPI
	from   string
}

func NewMailer(client aws.SESAPI, from string) *Mailer {
	return &Mailer{client: client, from: from}
}

// SendOrderConfirmation mails a plain-text receipt to the given address.
func (m *Mailer) SendOrderConfirmation(ctx context.Context, to string, c OrderConfirmation) error {
	if strings.TrimSpace(to) == "" {
		return apperr.Invalid("no recipient for order %s", c.OrderID)
	}
	subject := fmt.Sprintf("Your order %s has been received", c.OrderID)
	_, err := m.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: &m.from,
		Destination:      &types.Destination{ToAddresses: []string{to}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: &subject, Charset: strPtr(charset)},
				Body: &types.Body{
					Text: &types.Content{Data: strPtr(renderConfirmation(c)), Charset: strPtr(charset)},
				},
			},
		},
		EmailTags: []types.MessageTag{
			{Name: strPtr("kind"), Value: strPtr("order_confirmation")},
		},
	})
	if err != nil {
		return apperr.Wrap(apperr.ErrUpstream, err, "send confirmation for order %s", c.OrderID)
	}
	return nil
}

func renderConfirmation(c OrderConfirmation) string {
	var b strings.Builder
	name := c.CustomerName
	if name == "" {
		name = "there"
	}
	fmt.Fprintf(&b, "Hi %s,\n\nThanks for your order %s.\n\n", name, c.OrderID)
	for _, it := range c.Items {
		label := it.Name
		if label == "" {
			label = it.ProductID
		}
		fmt.Fprintf(&b, "  %d x %s @ %s = %s\n", it.Quantity, label,
			it.UnitPrice.StringFixed(), it.UnitPrice.Times(it.Quantity).StringFixed())
	}
	fmt.Fprintf(&b, "\nTotal: %s\n\nWe'll let you know when it ships.\n", c.Total.StringFixed())
	return b.String()
}

func strPtr(s string) *string { return &s }
