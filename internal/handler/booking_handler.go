package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/turf-booking/internal/dto"
	"github.com/prohmpiriya/turf-booking/internal/service"
	"github.com/prohmpiriya/turf-booking/pkg/response"
	"github.com/prohmpiriya/turf-booking/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// BookingHandler handles player-facing booking HTTP requests
type BookingHandler struct {
	bookingService service.BookingService
	splitService   service.SplitPaymentService
	ticketService  service.TicketService
}

// NewBookingHandler creates a new booking handler
func NewBookingHandler(
	bookingService service.BookingService,
	splitService service.SplitPaymentService,
	ticketService service.TicketService,
) *BookingHandler {
	return &BookingHandler{
		bookingService: bookingService,
		splitService:   splitService,
		ticketService:  ticketService,
	}
}

// InitiateBooking handles POST /bookings
// Holds the slot and opens a RESERVED booking with the caller as organizer
func (h *BookingHandler) InitiateBooking(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.initiate")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, ok := currentUser(c)
	if !ok {
		span.SetStatus(codes.Error, "unauthorized")
		return
	}

	var req dto.InitiateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetStatus(codes.Error, "invalid request")
		bindError(c, err)
		return
	}
	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.String("venue_id", req.VenueID),
		attribute.String("slot_id", req.SlotID),
	)

	booking, err := h.bookingService.InitiateBooking(ctx, userID, &req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetAttributes(attribute.String("booking_id", booking.ID))
	span.SetStatus(codes.Ok, "")
	response.Created(c, dto.FromBooking(booking, userID))
}

// ListMyBookings handles GET /bookings/me
func (h *BookingHandler) ListMyBookings(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	bookings, err := h.bookingService.ListMyBookings(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		handleError(c, err)
		return
	}

	response.SuccessWithMeta(c, dto.FromBookings(bookings, userID), response.PageMeta{
		Page:     page,
		PageSize: pageSize,
		Count:    len(bookings),
	})
}

// GetBooking handles GET /bookings/:id
func (h *BookingHandler) GetBooking(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	booking, err := h.bookingService.GetBooking(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, dto.FromBooking(booking, userID))
}

// CancelBooking handles POST /bookings/:id/cancel
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.cancel")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, ok := currentUser(c)
	if !ok {
		span.SetStatus(codes.Error, "unauthorized")
		return
	}

	bookingID := c.Param("id")
	span.SetAttributes(attribute.String("booking_id", bookingID), attribute.String("user_id", userID))

	booking, err := h.bookingService.CancelBooking(ctx, bookingID, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, dto.FromBooking(booking, userID))
}

// AddParticipant handles POST /bookings/:id/participants
// Returns the re-split participant list
func (h *BookingHandler) AddParticipant(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.add_participant")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, ok := currentUser(c)
	if !ok {
		span.SetStatus(codes.Error, "unauthorized")
		return
	}

	var req dto.AddParticipantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetStatus(codes.Error, "invalid request")
		bindError(c, err)
		return
	}

	bookingID := c.Param("id")
	span.SetAttributes(attribute.String("booking_id", bookingID), attribute.String("participant_user_id", req.UserID))

	participants, err := h.splitService.AddParticipant(ctx, bookingID, userID, req.UserID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Created(c, dto.FromParticipants(participants))
}

// RecordPayment handles POST /bookings/:id/participants/:participantId/pay
// The last share paid confirms the booking
func (h *BookingHandler) RecordPayment(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.record_payment")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, ok := currentUser(c)
	if !ok {
		span.SetStatus(codes.Error, "unauthorized")
		return
	}

	var req dto.RecordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetStatus(codes.Error, "invalid request")
		bindError(c, err)
		return
	}

	bookingID, participantID := c.Param("id"), c.Param("participantId")
	span.SetAttributes(
		attribute.String("booking_id", bookingID),
		attribute.String("participant_id", participantID),
		attribute.String("payment_ref", req.PaymentRef),
	)

	booking, err := h.splitService.RecordPayment(ctx, bookingID, participantID, userID, req.PaymentRef)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetAttributes(attribute.String("status", string(booking.Status)))
	span.SetStatus(codes.Ok, "")
	response.Success(c, dto.FromBooking(booking, userID))
}

// DeclineParticipant handles POST /bookings/:id/participants/:participantId/decline
func (h *BookingHandler) DeclineParticipant(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	participants, err := h.splitService.DeclineParticipant(c.Request.Context(), c.Param("id"), c.Param("participantId"), userID)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, dto.FromParticipants(participants))
}

// QRCode handles GET /bookings/:id/qr
func (h *BookingHandler) QRCode(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	size, _ := strconv.Atoi(c.DefaultQuery("size", "256"))
	png, err := h.ticketService.QRCode(c.Request.Context(), c.Param("id"), userID, size)
	if err != nil {
		handleError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

// Ticket handles GET /bookings/:id/ticket
func (h *BookingHandler) Ticket(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	bookingID := c.Param("id")
	pdf, err := h.ticketService.TicketPDF(c.Request.Context(), bookingID, userID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="ticket-`+bookingID+`.pdf"`)
	c.Data(http.StatusOK, "application/pdf", pdf)
}
