package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"chat-sync/internal/middleware"
	"chat-sync/internal/models"
	"chat-sync/internal/telemetry"
)

// UserHandler serves registration and the user directory.
type UserHandler struct {
	gateway SyncGateway
	audit   *telemetry.AuditEmitter
}

func NewUserHandler(gw SyncGateway, audit *telemetry.AuditEmitter) *UserHandler {
	return &UserHandler{gateway: gw, audit: audit}
}

// Exists reports whether a user is registered for the email query parameter.
func (h *UserHandler) Exists(c *gin.Context) {
	email := strings.TrimSpace(c.Query("email"))
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
		return
	}
	exists, err := h.gateway.UserExists(c.Request.Context(), email)
	if err != nil {
		abortWithGatewayError(c, err, "failed to check user")
		return
	}
	c.JSON(http.StatusOK, gin.H{"exists": exists})
}

// Register stores the caller's user record and adds it to the directory.
func (h *UserHandler) Register(c *gin.Context) {
	var req models.User
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	me := middleware.CurrentUser(c)
	if !strings.EqualFold(req.Email, me.Email) {
		c.JSON(http.StatusForbidden, gin.H{"error": "can only register yourself"})
		return
	}
	req.Email = me.Email

	if err := h.gateway.InsertUser(c.Request.Context(), req); err != nil {
		abortWithGatewayError(c, err, "failed to register user")
		return
	}
	h.audit.Emit(c.Request.Context(), "INFO", "user registered", requestIDFromContext(c), userEmailFromContext(c))
	c.JSON(http.StatusCreated, gin.H{"email": req.SafeEmail(), "name": req.FullName()})
}

// List returns the whole user directory.
func (h *UserHandler) List(c *gin.Context) {
	users, err := h.gateway.GetAllUsers(c.Request.Context())
	if err != nil {
		abortWithGatewayError(c, err, "failed to load users")
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

// Search filters the directory by name prefix, leaving out the caller.
func (h *UserHandler) Search(c *gin.Context) {
	me := middleware.CurrentUser(c)
	users, err := h.gateway.SearchUsers(c.Request.Context(), c.Query("q"), me.Email)
	if err != nil {
		abortWithGatewayError(c, err, "failed to search users")
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}
