package validation

import (
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"
)

// New returns a configured validator with custom struct-level validation registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	v.RegisterStructValidation(placeOrderStructValidation, PlaceOrderRequest{})
	v.RegisterStructValidation(productStructValidation, ProductRequest{})

	return v
}

// placeOrderStructValidation requires a product id on every line item and a
// non-negative override total. Quantities are never rejected; they are coerced.
func placeOrderStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(PlaceOrderRequest)

	for _, p := range req.Products {
		if strings.TrimSpace(NormalizeProductID(p.ProductID)) == "" {
			sl.ReportError(req.Products, "products", "Products", "required", "productId")
			break
		}
	}
	if req.Total != nil && req.Total.IsNegative() {
		sl.ReportError(req.Total, "total", "Total", "non_negative", "")
	}
}

// money.Amount is opaque to the tag validators, so the sign check lives here.
func productStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(ProductRequest)
	if req.Price.IsNegative() {
		sl.ReportError(req.Price, "price", "Price", "non_negative", "")
	}
}
