package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-storefront/internal/apperr"
	"github.com/imrishuroy/go-storefront/internal/fulfillment"
	"github.com/imrishuroy/go-storefront/internal/idempotency"
	"github.com/imrishuroy/go-storefront/internal/middleware"
	"github.com/imrishuroy/go-storefront/internal/validation"
)

// HeaderIdempotencyKey lets clients retry POST /orders safely.
const HeaderIdempotencyKey = "Idempotency-Key"

type ordersHandler struct {
	svc    OrderService
	idem   IdempotencyStore
	v      *validatorv10.Validate
	logger *zap.Logger
}

func (h *ordersHandler) place(c *gin.Context) {
	ctx := c.Request.Context()

	// Bind + validate request
	var req validation.PlaceOrderRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		// BindAndValidate already wrote a 400
		return
	}

	userID := req.UserID
	if userID == "" {
		userID = middleware.PrincipalID(c)
	}
	in := fulfillment.PlaceOrderInput{
		UserID:          userID,
		Items:           make([]fulfillment.RequestedItem, 0, len(req.Products)),
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		PaymentStatus:   req.PaymentStatus,
		PaymentDetails:  req.PaymentDetails,
		Status:          req.Status,
		Total:           req.Total,
	}
	for _, p := range req.Products {
		in.Items = append(in.Items, fulfillment.RequestedItem{ProductID: p.ProductID, Quantity: p.Quantity})
	}

	key := c.GetHeader(HeaderIdempotencyKey)
	if key != "" && h.idem != nil {
		if handled := h.claim(c, key, requestFingerprint(in)); handled {
			return
		}
	}

	res, err := h.svc.PlaceOrder(ctx, in)
	if err != nil {
		if key != "" && h.idem != nil {
			// let the client retry with the same key
			if mErr := h.idem.MarkFailed(ctx, key, err.Error()); mErr != nil {
				h.logger.Warn("mark idempotency key failed", zap.String("key", key), zap.Error(mErr))
			}
		}
		respondError(c, err)
		return
	}

	body := gin.H{
		"success":      true,
		"message":      "Order placed successfully",
		"order":        res.Order,
		"stockUpdates": res.StockUpdates,
	}
	if key != "" && h.idem != nil {
		h.remember(ctx, key, res.Order.OrderID, body)
	}
	c.Header("Location", "/orders/"+res.Order.OrderID)
	c.JSON(http.StatusCreated, body)
}

// claim reserves key for this request. It returns true when a response has
// already been written (replay, in progress, key reuse, or store failure).
func (h *ordersHandler) claim(c *gin.Context, key, fingerprint string) bool {
	ctx := c.Request.Context()
	created, err := h.idem.ClaimRequest(ctx, key, fingerprint)
	if err != nil {
		respondError(c, apperr.Persistence(err, "claim idempotency key"))
		return true
	}
	if created {
		return false
	}

	rec, err := h.idem.Get(ctx, key)
	if err != nil {
		respondError(c, apperr.Persistence(err, "read idempotency key"))
		return true
	}
	if rec == nil {
		// expired between the two calls
		respondError(c, apperr.New(apperr.ErrConflict, "idempotency key %s changed concurrently, retry", key))
		return true
	}
	if rec.Status != idempotency.StatusFailed && !rec.Matches(fingerprint) {
		respondError(c, apperr.New(apperr.ErrConflict, "idempotency key %s was used for a different request", key))
		return true
	}
	switch rec.Status {
	case idempotency.StatusDone:
		c.Header("Idempotent-Replayed", "true")
		if rec.OrderID != "" {
			c.Header("Location", "/orders/"+rec.OrderID)
		}
		c.Data(rec.ResponseStatus, "application/json; charset=utf-8", []byte(rec.ResponseBody))
		return true
	case idempotency.StatusInProgress:
		c.JSON(http.StatusAccepted, gin.H{"message": "request already in progress"})
		return true
	case idempotency.StatusFailed:
		ok, err := h.idem.ReclaimRequest(ctx, key, fingerprint)
		if err != nil {
			respondError(c, apperr.Persistence(err, "reclaim idempotency key"))
			return true
		}
		if !ok {
			c.JSON(http.StatusAccepted, gin.H{"message": "request already in progress"})
			return true
		}
		return false
	default:
		respondError(c, apperr.New(apperr.ErrConflict, "unknown idempotency status %q", rec.Status))
		return true
	}
}

// requestFingerprint hashes the normalised placement input. Map keys encode
// in sorted order, so equal requests hash equally.
func requestFingerprint(in fulfillment.PlaceOrderInput) string {
	raw, err := json.Marshal(in)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func (h *ordersHandler) remember(ctx context.Context, key, orderID string, body gin.H) {
	raw, err := json.Marshal(body)
	if err != nil {
		h.logger.Warn("encode idempotent response", zap.String("key", key), zap.Error(err))
		return
	}
	if err := h.idem.MarkDone(ctx, key, orderID, string(raw), http.StatusCreated); err != nil {
		h.logger.Warn("mark idempotency key done", zap.String("key", key), zap.Error(err))
	}
}

func (h *ordersHandler) list(c *gin.Context) {
	out, err := h.svc.ListOrders(c.Request.Context(), c.Query("userId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *ordersHandler) get(c *gin.Context) {
	o, err := h.svc.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *ordersHandler) updateStatus(c *gin.Context) {
	var req validation.StatusRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	o, err := h.svc.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}
