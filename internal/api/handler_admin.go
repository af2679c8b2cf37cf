package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"gpu-booking-backend/internal/booking"
	"gpu-booking-backend/internal/model"
	"gpu-booking-backend/internal/mw"
	"gpu-booking-backend/internal/store"
)

// AdminListMachines lists every machine with its rules.
func (h *Handler) AdminListMachines(c *gin.Context) {
	machines, err := h.store.ListMachines(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, machines)
}

func (h *Handler) AdminCreateMachine(c *gin.Context) {
	var in booking.MachineInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid request")
		return
	}
	m, err := h.svc.CreateMachine(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

func (h *Handler) AdminUpdateMachine(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in booking.MachineInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid request")
		return
	}
	m, err := h.svc.UpdateMachine(c.Request.Context(), id, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// AdminDeleteMachine removes a machine together with its rules.
func (h *Handler) AdminDeleteMachine(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	res, err := h.svc.DeleteMachine(c.Request.Context(), mw.UserRole(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// AdminSaveRestriction validates and stores one rule of a machine.
func (h *Handler) AdminSaveRestriction(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in booking.RestrictionInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid request")
		return
	}
	r, err := h.svc.SaveRestriction(c.Request.Context(), mw.UserEmail(c), id, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *Handler) AdminDeleteRestriction(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	rid, ok := idParam(c, "rid")
	if !ok {
		return
	}
	if err := h.svc.DeleteRestriction(c.Request.Context(), id, rid); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) AdminListRestrictions(c *gin.Context) {
	rules, err := h.svc.AllRestrictions(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rules)
}

func (h *Handler) AdminListNotifications(c *gin.Context) {
	notifications, err := h.svc.Notifications(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, notifications)
}

func (h *Handler) AdminCreateNotification(c *gin.Context) {
	var in booking.NotificationInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid request")
		return
	}
	n, err := h.svc.CreateNotification(c.Request.Context(), mw.UserEmail(c), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, n)
}

func (h *Handler) AdminUpdateNotification(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in booking.NotificationInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid request")
		return
	}
	n, err := h.svc.UpdateNotification(c.Request.Context(), id, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, n)
}

func (h *Handler) AdminDeleteNotification(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.svc.DeleteNotification(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// AdminListBookings lists bookings filtered by ?status=, ?machine_id=,
// ?user_email= and ?limit=.
func (h *Handler) AdminListBookings(c *gin.Context) {
	f := store.BookingFilter{
		Status:    model.BookingStatus(c.Query("status")),
		UserEmail: booking.NormalizeEmail(c.Query("user_email")),
	}
	switch f.Status {
	case "", model.BookingActive, model.BookingCancelled:
	default:
		respondError(c, fmt.Errorf("%w: %q", booking.ErrInvalidStatus, f.Status))
		return
	}
	if v := c.Query("machine_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			badRequest(c, "invalid machine_id")
			return
		}
		f.MachineID = id
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			badRequest(c, "invalid limit")
			return
		}
		f.Limit = n
	}

	bookings, err := h.svc.Bookings(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bookings)
}

func (h *Handler) AdminDeleteBooking(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	b, err := h.svc.DeleteBooking(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *Handler) AdminListUsers(c *gin.Context) {
	users, err := h.svc.Users(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

type updateRoleRequest struct {
	Email string     `json:"email" binding:"required"`
	Role  model.Role `json:"role" binding:"required"`
}

// AdminUpdateRole changes a user's role. Managers cannot touch admins nor
// grant the admin role.
func (h *Handler) AdminUpdateRole(c *gin.Context) {
	var req updateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	if err := h.svc.UpdateRole(c.Request.Context(), mw.UserEmail(c), req.Email, req.Role); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"email": booking.NormalizeEmail(req.Email), "role": req.Role})
}
