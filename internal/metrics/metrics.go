package metrics

import (
	"context"
	"sync"

	"github.com/prohmpiriya/turf-booking/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

var (
	// Slot holds
	HoldsAcquired *telemetry.Counter
	HoldConflicts *telemetry.Counter
	ActiveHolds   *telemetry.UpDownCounter

	// Booking lifecycle
	BookingsConfirmed *telemetry.Counter
	BookingsExpired   *telemetry.Counter
	BookingsCancelled *telemetry.Counter
	WalkInBookings    *telemetry.Counter
	HoldToConfirm     *telemetry.Histogram

	// Split payments
	ParticipantsAdded *telemetry.Counter
	PaymentsRecorded  *telemetry.Counter

	// Check-in
	CheckIns *telemetry.Counter

	// Sweeper
	SweepDuration *telemetry.Histogram

	// HTTP
	RequestDuration *telemetry.Histogram
	ErrorsTotal     *telemetry.Counter

	initOnce sync.Once
	initErr  error
)

// Init registers all booking metrics with the global meter provider
func Init() error {
	initOnce.Do(func() {
		initErr = initMetrics()
	})
	return initErr
}

func initMetrics() error {
	counters := []struct {
		dst  **telemetry.Counter
		opts telemetry.MetricOpts
	}{
		{&HoldsAcquired, telemetry.MetricOpts{Name: "turf_holds_acquired_total", Description: "Slot holds acquired", Unit: "1"}},
		{&HoldConflicts, telemetry.MetricOpts{Name: "turf_hold_conflicts_total", Description: "Hold attempts on unavailable slots", Unit: "1"}},
		{&BookingsConfirmed, telemetry.MetricOpts{Name: "turf_bookings_confirmed_total", Description: "Bookings confirmed", Unit: "1"}},
		{&BookingsExpired, telemetry.MetricOpts{Name: "turf_bookings_expired_total", Description: "Bookings expired", Unit: "1"}},
		{&BookingsCancelled, telemetry.MetricOpts{Name: "turf_bookings_cancelled_total", Description: "Bookings cancelled", Unit: "1"}},
		{&WalkInBookings, telemetry.MetricOpts{Name: "turf_walk_in_bookings_total", Description: "Walk-in bookings created at the counter", Unit: "1"}},
		{&ParticipantsAdded, telemetry.MetricOpts{Name: "turf_participants_added_total", Description: "Participants added to split bookings", Unit: "1"}},
		{&PaymentsRecorded, telemetry.MetricOpts{Name: "turf_payments_recorded_total", Description: "Participant payments processed by outcome", Unit: "1"}},
		{&CheckIns, telemetry.MetricOpts{Name: "turf_check_ins_total", Description: "QR check-in attempts by result", Unit: "1"}},
		{&ErrorsTotal, telemetry.MetricOpts{Name: "turf_errors_total", Description: "Errors by type and operation", Unit: "1"}},
	}
	for _, c := range counters {
		counter, err := telemetry.NewCounter(c.opts)
		if err != nil {
			return err
		}
		*c.dst = counter
	}

	var err error
	ActiveHolds, err = telemetry.NewUpDownCounter(telemetry.MetricOpts{
		Name:        "turf_active_holds",
		Description: "Slots currently held by RESERVED bookings",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	HoldToConfirm, err = telemetry.NewHistogramWithBuckets(telemetry.MetricOpts{
		Name:        "turf_hold_to_confirm_seconds",
		Description: "Time from hold to confirmation",
		Unit:        "s",
	}, []float64{5, 15, 30, 60, 120, 300, 600, 900})
	if err != nil {
		return err
	}

	SweepDuration, err = telemetry.NewHistogramWithBuckets(telemetry.MetricOpts{
		Name:        "turf_sweep_duration_seconds",
		Description: "Duration of one expiry sweep",
		Unit:        "s",
	}, []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30})
	if err != nil {
		return err
	}

	RequestDuration, err = telemetry.NewHistogramWithBuckets(telemetry.MetricOpts{
		Name:        "turf_request_duration_seconds",
		Description: "HTTP request duration in seconds",
		Unit:        "s",
	}, []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5})
	return err
}

// RecordHold records a hold attempt
func RecordHold(ctx context.Context, venueID string, acquired bool) {
	if acquired {
		if HoldsAcquired != nil {
			HoldsAcquired.Inc(ctx, attribute.String("venue_id", venueID))
		}
		if ActiveHolds != nil {
			ActiveHolds.Inc(ctx)
		}
		return
	}
	if HoldConflicts != nil {
		HoldConflicts.Inc(ctx, attribute.String("venue_id", venueID))
	}
}

// RecordConfirmation records a booking confirmed after holdSeconds
func RecordConfirmation(ctx context.Context, venueID string, holdSeconds float64) {
	if BookingsConfirmed != nil {
		BookingsConfirmed.Inc(ctx, attribute.String("venue_id", venueID))
	}
	if HoldToConfirm != nil {
		HoldToConfirm.Record(ctx, holdSeconds, attribute.String("venue_id", venueID))
	}
	if ActiveHolds != nil {
		ActiveHolds.Dec(ctx)
	}
}

// RecordExpiration records a RESERVED booking that lost its hold
func RecordExpiration(ctx context.Context, venueID, reason string) {
	if BookingsExpired != nil {
		BookingsExpired.Inc(ctx, attribute.String("venue_id", venueID), attribute.String("reason", reason))
	}
	if ActiveHolds != nil {
		ActiveHolds.Dec(ctx)
	}
}

// RecordCancellation records a cancellation; wasHeld is true for RESERVED bookings
func RecordCancellation(ctx context.Context, venueID string, wasHeld bool) {
	if BookingsCancelled != nil {
		BookingsCancelled.Inc(ctx, attribute.String("venue_id", venueID))
	}
	if wasHeld && ActiveHolds != nil {
		ActiveHolds.Dec(ctx)
	}
}

// RecordWalkIn records a counter booking
func RecordWalkIn(ctx context.Context, venueID string) {
	if WalkInBookings != nil {
		WalkInBookings.Inc(ctx, attribute.String("venue_id", venueID))
	}
}

// RecordParticipantAdded records a new participant on a split booking
func RecordParticipantAdded(ctx context.Context) {
	if ParticipantsAdded != nil {
		ParticipantsAdded.Inc(ctx)
	}
}

// RecordPayment records a payment outcome (paid, confirmed, hold_lost, rejected, declined)
func RecordPayment(ctx context.Context, outcome string) {
	if PaymentsRecorded != nil {
		PaymentsRecorded.Inc(ctx, attribute.String("outcome", outcome))
	}
}

// RecordCheckIn records a verification attempt
func RecordCheckIn(ctx context.Context, result string) {
	if CheckIns != nil {
		CheckIns.Inc(ctx, attribute.String("result", result))
	}
}

// RecordSweep records one sweeper run
func RecordSweep(ctx context.Context, durationSeconds float64, expired int) {
	if SweepDuration != nil {
		SweepDuration.Record(ctx, durationSeconds, attribute.Int("expired", expired))
	}
}

// RecordError records an error by type and operation
func RecordError(ctx context.Context, errorType, operation string) {
	if ErrorsTotal != nil {
		ErrorsTotal.Inc(ctx,
			attribute.String("error_type", errorType),
			attribute.String("operation", operation),
		)
	}
}

// RecordRequestDuration records HTTP request latency by route
func RecordRequestDuration(ctx context.Context, route string, status int, durationSeconds float64) {
	if RequestDuration != nil {
		RequestDuration.Record(ctx, durationSeconds,
			attribute.String("route", route),
			attribute.Int("status", status),
		)
	}
}
