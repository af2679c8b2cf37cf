package api

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"

	"gpu-booking-backend/internal/booking"
	"gpu-booking-backend/internal/restriction"
	"gpu-booking-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	svc     *booking.Service
	store   store.Store
	webpush *webpush.Options
}

// NewHandler creates a new API handler.
func NewHandler(svc *booking.Service, s store.Store, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		svc:     svc,
		store:   s,
		webpush: webpushOptions,
	}
}

var errorStatus = map[string]int{
	"invalid_time_slot":   http.StatusBadRequest,
	"past_time_slot":      http.StatusBadRequest,
	"outside_horizon":     http.StatusBadRequest,
	"validation":          http.StatusBadRequest,
	"invalid_status":      http.StatusBadRequest,
	"machine_unavailable": http.StatusBadRequest,
	"machine_not_found":   http.StatusNotFound,
	"booking_not_found":   http.StatusNotFound,
	"not_found":           http.StatusNotFound,
	"machine_restricted":  http.StatusForbidden,
	"permission_denied":   http.StatusForbidden,
	"time_slot_occupied":  http.StatusConflict,
	"machine_in_use":      http.StatusConflict,
}

// respondError writes err as {"error", "error_type"} with the matching
// status code. Internal errors are logged and not echoed.
func respondError(c *gin.Context, err error) {
	kind := booking.ErrorKind(err)
	status, ok := errorStatus[kind]
	if !ok {
		log.Printf("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "error_type": "internal_error"})
		return
	}

	body := gin.H{"error": err.Error(), "error_type": kind}
	var (
		denied     *booking.AccessDeniedError
		validation *restriction.ValidationError
	)
	switch {
	case errors.As(err, &denied):
		body["error"] = denied.Reason()
		body["reasons"] = denied.Reasons
	case errors.As(err, &validation):
		body["fields"] = validation.Fields
	}
	c.JSON(status, body)
}

// badRequest reports a malformed request.
func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg, "error_type": "validation"})
}

// idParam parses the named path parameter as a positive id.
func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}
