package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/turf-booking/internal/domain"
	"github.com/prohmpiriya/turf-booking/internal/dto"
	"github.com/prohmpiriya/turf-booking/internal/service"
	"github.com/prohmpiriya/turf-booking/pkg/response"
	"github.com/prohmpiriya/turf-booking/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// SlotHandler handles venue and slot HTTP requests
type SlotHandler struct {
	slotService service.SlotService
}

// NewSlotHandler creates a new slot handler
func NewSlotHandler(slotService service.SlotService) *SlotHandler {
	return &SlotHandler{slotService: slotService}
}

// ListSlots handles GET /venues/:venueId/slots?date=YYYY-MM-DD
func (h *SlotHandler) ListSlots(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.slot.list")
	defer span.End()

	venueID, date := c.Param("venueId"), c.Query("date")
	span.SetAttributes(attribute.String("venue_id", venueID), attribute.String("date", date))
	if date == "" {
		span.SetStatus(codes.Error, "date required")
		handleError(c, domain.ErrInvalidDate)
		return
	}

	slots, err := h.slotService.ListSlots(ctx, venueID, date)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetAttributes(attribute.Int("slots", len(slots)))
	response.Success(c, dto.FromSlots(slots))
}

// GetVenue handles GET /venues/:venueId
func (h *SlotHandler) GetVenue(c *gin.Context) {
	venue, err := h.slotService.GetVenue(c.Request.Context(), c.Param("venueId"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, venue)
}

// GenerateSlots handles POST /venues/:venueId/slots/generate (owner only)
func (h *SlotHandler) GenerateSlots(c *gin.Context) {
	ownerID, ok := currentUser(c)
	if !ok {
		return
	}

	var req dto.GenerateSlotsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	slots, err := h.slotService.GenerateSlots(c.Request.Context(), ownerID, c.Param("venueId"), &req)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Created(c, dto.FromSlots(slots))
}

// CreateVenue handles POST /owner/venues
func (h *SlotHandler) CreateVenue(c *gin.Context) {
	ownerID, ok := currentUser(c)
	if !ok {
		return
	}

	var req dto.CreateVenueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	venue, err := h.slotService.CreateVenue(c.Request.Context(), ownerID, &req)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Created(c, venue)
}
