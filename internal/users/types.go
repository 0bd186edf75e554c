package users

import (
	"strings"
	"time"
)

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleCustomer Role = "customer"
)

func (r Role) Valid() bool { return r == RoleAdmin || r == RoleCustomer }

// User is the item stored in the users table.
type User struct {
	ID         string    `dynamodbav:"user_id" json:"id"` // PK
	Name       string    `dynamodbav:"name" json:"name"`
	Email      string    `dynamodbav:"email" json:"email"` // unique via the email guard table
	Role       Role      `dynamodbav:"role" json:"role"`
	ExternalID string    `dynamodbav:"external_id,omitempty" json:"externalId,omitempty"` // GSI external_id-index
	CreatedAt  time.Time `dynamodbav:"created_at" json:"createdAt"`
	UpdatedAt  time.Time `dynamodbav:"updated_at" json:"updatedAt"`
}

// emailGuard reserves an address for one user.
type emailGuard struct {
	Email  string `dynamodbav:"email"` // PK
	UserID string `dynamodbav:"user_id"`
}

// Input carries the editable user attributes.
type Input struct {
	Name       string
	Email      string
	Role       Role
	ExternalID string
}

// NormalizeEmail is applied before every uniqueness check.
func NormalizeEmail(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}
