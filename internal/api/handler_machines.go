package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"gpu-booking-backend/internal/booking"
	"gpu-booking-backend/internal/mw"
	"gpu-booking-backend/internal/slot"
)

// GetMachines lists machines with the caller's page-level access decision.
func (h *Handler) GetMachines(c *gin.Context) {
	machines, err := h.svc.Machines(c.Request.Context(), mw.UserEmail(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, machines)
}

// CheckAccess evaluates the caller against a machine, optionally for the
// slot given in ?slot=.
func (h *Handler) CheckAccess(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var candidate *slot.Slot
	if text := c.Query("slot"); text != "" {
		sl, err := booking.ParseSlot(text)
		if err != nil {
			respondError(c, err)
			return
		}
		candidate = &sl
	}

	res, err := h.svc.Access(c.Request.Context(), mw.UserEmail(c), id, candidate)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GetSchedule returns ?days= days of labelled slots starting at ?from=
// (YYYY-MM-DD, default today).
func (h *Handler) GetSchedule(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	loc := h.svc.Location()
	from := h.svc.Now().In(loc)
	if v := c.Query("from"); v != "" {
		t, err := time.ParseInLocation("2006-01-02", v, loc)
		if err != nil {
			badRequest(c, "from must be YYYY-MM-DD")
			return
		}
		from = t
	}

	days := booking.DefaultScheduleDays
	if v := c.Query("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			badRequest(c, "days must be a positive integer")
			return
		}
		days = n
	}

	sched, err := h.svc.Schedule(c.Request.Context(), mw.UserEmail(c), id, from, days)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sched)
}

// GetUsageStatus reports the caller's rolling-window usage on a machine.
func (h *Handler) GetUsageStatus(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	status, err := h.svc.UsageStatus(c.Request.Context(), mw.UserEmail(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// GetMachineRestrictions lists the stored rules of a machine.
func (h *Handler) GetMachineRestrictions(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	rules, err := h.svc.Restrictions(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rules)
}
