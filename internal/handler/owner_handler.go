package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/turf-booking/internal/dto"
	"github.com/prohmpiriya/turf-booking/internal/service"
	"github.com/prohmpiriya/turf-booking/pkg/middleware"
	"github.com/prohmpiriya/turf-booking/pkg/response"
	"github.com/prohmpiriya/turf-booking/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// OwnerHandler handles venue-side requests: walk-in bookings and gate scans
type OwnerHandler struct {
	bookingService service.BookingService
	checkInService service.CheckInService
}

// NewOwnerHandler creates a new owner handler
func NewOwnerHandler(bookingService service.BookingService, checkInService service.CheckInService) *OwnerHandler {
	return &OwnerHandler{
		bookingService: bookingService,
		checkInService: checkInService,
	}
}

// CreateWalkIn handles POST /owner/bookings
func (h *OwnerHandler) CreateWalkIn(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.owner.walk_in")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	ownerID, ok := currentUser(c)
	if !ok {
		span.SetStatus(codes.Error, "unauthorized")
		return
	}

	var req dto.WalkInBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetStatus(codes.Error, "invalid request")
		bindError(c, err)
		return
	}
	span.SetAttributes(attribute.String("venue_id", req.VenueID), attribute.String("slot_id", req.SlotID))

	booking, err := h.bookingService.CreateWalkInBooking(ctx, ownerID, &req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Created(c, dto.FromBooking(booking, ownerID))
}

// Scan handles POST /owner/scan
func (h *OwnerHandler) Scan(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.owner.scan")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	staffID, ok := currentUser(c)
	if !ok {
		span.SetStatus(codes.Error, "unauthorized")
		return
	}

	var req dto.ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetStatus(codes.Error, "invalid request")
		bindError(c, err)
		return
	}

	booking, err := h.checkInService.Verify(ctx, req.QRSecret, staffID, c.GetString(middleware.ContextKeyRole))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetAttributes(attribute.String("booking_id", booking.ID))
	span.SetStatus(codes.Ok, "")
	response.Success(c, dto.FromCheckIn(booking))
}
