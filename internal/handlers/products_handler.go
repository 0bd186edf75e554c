package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/go-storefront/internal/apperr"
	"github.com/imrishuroy/go-storefront/internal/catalog"
	"github.com/imrishuroy/go-storefront/internal/validation"
)

type productsHandler struct {
	svc    ProductService
	orders OrderService
	v      *validatorv10.Validate
}

func productInput(req validation.ProductRequest) catalog.ProductInput {
	return catalog.ProductInput{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Category:    req.Category,
		ImageCID:    req.ImageCID,
		Stock:       req.Stock,
	}
}

func (h *productsHandler) list(c *gin.Context) {
	out, err := h.svc.List(c.Request.Context(), c.Query("category"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *productsHandler) bestSellers(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(c, apperr.Invalid("limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	out, err := h.orders.BestSellers(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *productsHandler) get(c *gin.Context) {
	p, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *productsHandler) create(c *gin.Context) {
	var req validation.ProductRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	p, err := h.svc.Create(c.Request.Context(), productInput(req))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Location", "/products/"+p.ID)
	c.JSON(http.StatusCreated, p)
}

func (h *productsHandler) update(c *gin.Context) {
	var req validation.ProductRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	p, err := h.svc.Update(c.Request.Context(), c.Param("id"), productInput(req))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *productsHandler) delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
