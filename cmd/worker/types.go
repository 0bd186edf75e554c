package main

import "errors"

// confirmationKey namespaces worker claims in the shared idempotency table.
func confirmationKey(orderID string) string { return "confirmation:" + orderID }

// errInFlight makes SQS redeliver a message another invocation is handling.
var errInFlight = errors.New("confirmation already in progress")

// confirmationResult is stored as the idempotency response body.
type confirmationResult struct {
	Sent   bool   `json:"sent"`
	To     string `json:"to,omitempty"`
	Reason string `json:"reason,omitempty"`
}
