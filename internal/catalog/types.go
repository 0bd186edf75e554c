package catalog

import (
	"time"

	"github.com/imrishuroy/go-storefront/internal/money"
)

// Product is the item stored in the products DynamoDB table.
type Product struct {
	ID          string       `dynamodbav:"product_id" json:"id"` // PK
	Name        string       `dynamodbav:"name" json:"name"`
	Description string       `dynamodbav:"description,omitempty" json:"description,omitempty"`
	Price       money.Amount `dynamodbav:"price" json:"price"`
	Category    string       `dynamodbav:"category,omitempty" json:"category,omitempty"`
	ImageCID    string       `dynamodbav:"image_cid,omitempty" json:"imageCid,omitempty"` // pinning gateway content id
	Stock       int          `dynamodbav:"stock" json:"stock"`
	CreatedAt   time.Time    `dynamodbav:"created_at" json:"createdAt"`
	UpdatedAt   time.Time    `dynamodbav:"updated_at" json:"updatedAt"`
}

// ProductInput carries the editable product attributes.
type ProductInput struct {
	Name        string
	Description string
	Price       money.Amount
	Category    string
	ImageCID    string
	Stock       int
}
