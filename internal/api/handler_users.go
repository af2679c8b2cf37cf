package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"gpu-booking-backend/internal/mw"
)

type postUserRequest struct {
	Name string `json:"name"`
}

// PostUser registers the caller on first sign-in and returns their role.
func (h *Handler) PostUser(c *gin.Context) {
	var req postUserRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request")
			return
		}
	}

	u, err := h.svc.EnsureUser(c.Request.Context(), mw.UserEmail(c), req.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

// GetActiveNotifications lists the announcements currently in effect.
func (h *Handler) GetActiveNotifications(c *gin.Context) {
	notifications, err := h.svc.ActiveNotifications(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, notifications)
}
