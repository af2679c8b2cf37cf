package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"gpu-booking-backend/internal/booking"
	"gpu-booking-backend/internal/model"
	"gpu-booking-backend/internal/mw"
)

type postBookingRequest struct {
	MachineID int64  `json:"machine_id" binding:"required"`
	TimeSlot  string `json:"time_slot" binding:"required"`
}

// PostBooking reserves a slot for the caller.
func (h *Handler) PostBooking(c *gin.Context) {
	var req postBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}

	b, err := h.svc.Book(c.Request.Context(), mw.UserEmail(c), req.MachineID, req.TimeSlot)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

// CancelBooking cancels one of the caller's upcoming bookings.
func (h *Handler) CancelBooking(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	b, err := h.svc.Cancel(c.Request.Context(), mw.UserEmail(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// GetUserBookings lists a user's bookings. Users see their own; managers
// and admins may look at anyone's.
func (h *Handler) GetUserBookings(c *gin.Context) {
	ctx := c.Request.Context()
	caller := mw.UserEmail(c)
	target := booking.NormalizeEmail(c.Param("email"))

	if target != caller {
		role, err := h.svc.Role(ctx, caller)
		if err != nil {
			respondError(c, err)
			return
		}
		if role != model.RoleManager && role != model.RoleAdmin {
			respondError(c, booking.ErrForbidden)
			return
		}
	}

	bookings, err := h.svc.UserBookings(ctx, target)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bookings)
}
