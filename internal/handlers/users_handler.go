package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/go-storefront/internal/middleware"
	"github.com/imrishuroy/go-storefront/internal/users"
	"github.com/imrishuroy/go-storefront/internal/validation"
)

type usersHandler struct {
	svc UserService
	v   *validatorv10.Validate
}

// selfOrAdmin lets admins act on any account and everyone else only on their own.
func selfOrAdmin(c *gin.Context, id string) bool {
	if middleware.PrincipalRole(c) == roleAdmin || (id != "" && middleware.PrincipalID(c) == id) {
		return true
	}
	forbidden(c)
	return false
}

func (h *usersHandler) register(c *gin.Context) {
	var req validation.UserRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	role := users.Role(req.Role)
	// only admins may hand out the admin role
	if role == users.RoleAdmin && middleware.PrincipalRole(c) != roleAdmin {
		forbidden(c)
		return
	}
	u, err := h.svc.Register(c.Request.Context(), users.Input{
		Name: req.Name, Email: req.Email, Role: role, ExternalID: req.ExternalID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Location", "/users/"+u.ID)
	c.JSON(http.StatusCreated, u)
}

func (h *usersHandler) list(c *gin.Context) {
	out, err := h.svc.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *usersHandler) get(c *gin.Context) {
	id := c.Param("id")
	if !selfOrAdmin(c, id) {
		return
	}
	u, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *usersHandler) update(c *gin.Context) {
	id := c.Param("id")
	if !selfOrAdmin(c, id) {
		return
	}
	var req validation.UserRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	role := users.Role(req.Role)
	if role == users.RoleAdmin && middleware.PrincipalRole(c) != roleAdmin {
		forbidden(c)
		return
	}
	u, err := h.svc.Update(c.Request.Context(), id, users.Input{
		Name: req.Name, Email: req.Email, Role: role, ExternalID: req.ExternalID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *usersHandler) delete(c *gin.Context) {
	id := c.Param("id")
	if !selfOrAdmin(c, id) {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *usersHandler) sync(c *gin.Context) {
	var req validation.SyncUserRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	u, created, err := h.svc.SyncFromProvider(c.Request.Context(), users.SyncInput{
		ExternalID: req.ExternalID, Name: req.Name, Email: req.Email, Role: users.Role(req.Role),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"user": u, "created": created})
}
