package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prohmpiriya/turf-booking/internal/domain"
	"github.com/prohmpiriya/turf-booking/pkg/kafka"
	"github.com/prohmpiriya/turf-booking/pkg/logger"
	"github.com/prohmpiriya/turf-booking/pkg/retry"
	"go.uber.org/zap"
)

var errMalformedEvent = errors.New("malformed payment event")

// RecordPoller is the part of the kafka consumer the payment consumer needs
type RecordPoller interface {
	Poll(ctx context.Context) ([]*kafka.Record, error)
	CommitRecords(ctx context.Context, records []*kafka.Record) error
}

// PaymentHandler applies gateway outcomes to bookings
type PaymentHandler interface {
	RecordPayment(ctx context.Context, bookingID, participantID, actorID, paymentRef string) (*domain.Booking, error)
	RejectParticipantPayment(ctx context.Context, bookingID, participantID, reason string) error
}

// PaymentConsumerConfig contains configuration for the payment consumer
type PaymentConsumerConfig struct {
	Policy retry.Policy
	// PollBackoff is the pause after a failed poll
	PollBackoff time.Duration
}

// DefaultPaymentConsumerConfig returns default configuration
func DefaultPaymentConsumerConfig() *PaymentConsumerConfig {
	return &PaymentConsumerConfig{
		Policy:      retry.DefaultPolicy(),
		PollBackoff: time.Second,
	}
}

// PaymentConsumer reads payment outcome events and records them against bookings.
// Business rejections are logged and acknowledged; infrastructure failures are
// retried and then written to the dead letter topic.
type PaymentConsumer struct {
	poller    RecordPoller
	handler   PaymentHandler
	sink      *retry.DeadLetterSink
	processor *retry.Processor
	config    *PaymentConsumerConfig
	log       *logger.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	stats   PaymentConsumerStats
}

// PaymentConsumerStats counts processed payment events
type PaymentConsumerStats struct {
	IsRunning    bool  `json:"is_running"`
	Processed    int64 `json:"processed"`
	Captured     int64 `json:"captured"`
	Failed       int64 `json:"failed"`
	Skipped      int64 `json:"skipped"`
	DeadLettered int64 `json:"dead_lettered"`
}

// NewPaymentConsumer creates a payment consumer. sink may be nil to disable dead-lettering.
func NewPaymentConsumer(
	poller RecordPoller,
	handler PaymentHandler,
	sink *retry.DeadLetterSink,
	config *PaymentConsumerConfig,
	log *logger.Logger,
) *PaymentConsumer {
	if config == nil {
		config = DefaultPaymentConsumerConfig()
	}
	if config.PollBackoff <= 0 {
		config.PollBackoff = time.Second
	}
	if log == nil {
		log = logger.Get()
	}

	c := &PaymentConsumer{
		poller:  poller,
		handler: handler,
		sink:    sink,
		config:  config,
		log:     log,
	}
	c.processor = retry.NewProcessor(config.Policy, sink, func(dl *retry.DeadLetter) {
		c.mu.Lock()
		c.stats.DeadLettered++
		c.mu.Unlock()
		log.Error("payment event dead-lettered",
			zap.String("topic", dl.OriginalTopic),
			zap.String("key", dl.OriginalKey),
			zap.Int64("offset", dl.Offset),
			zap.Int("attempts", dl.Attempts),
			zap.String("error", dl.Error),
		)
	})
	return c
}

// Start starts consuming in the background
func (c *PaymentConsumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return fmt.Errorf("payment consumer already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.running = true

	go c.consumeLoop(ctx)

	c.log.Info("payment consumer started")
	return nil
}

// Stop stops consuming and waits for the in-flight batch
func (c *PaymentConsumer) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	cancel()
	<-done
	c.log.Info("payment consumer stopped")
}

func (c *PaymentConsumer) consumeLoop(ctx context.Context) {
	defer close(c.done)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		records, err := c.poller.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, kafka.ErrClientClosed) {
				return
			}
			c.log.Error("failed to poll payment events", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.config.PollBackoff):
			}
			continue
		}
		if len(records) == 0 {
			continue
		}

		if err := c.ProcessRecords(ctx, records); err != nil {
			// Leave the batch uncommitted so it is redelivered
			c.log.Warn("payment batch not committed", zap.Error(err))
			continue
		}
		if err := c.poller.CommitRecords(ctx, records); err != nil {
			c.log.Error("failed to commit payment events", zap.Error(err))
		}
	}
}

// ProcessRecords handles a polled batch. It returns an error only when the
// batch must not be committed.
func (c *PaymentConsumer) ProcessRecords(ctx context.Context, records []*kafka.Record) error {
	for _, rec := range records {
		if err := c.processRecord(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func (c *PaymentConsumer) processRecord(ctx context.Context, rec *kafka.Record) error {
	msg := retry.Message{
		Topic:     rec.Topic,
		Key:       string(rec.Key),
		Partition: rec.Partition,
		Offset:    rec.Offset,
		Payload:   rec.Value,
		Headers:   kafka.Headers(rec),
	}

	err := c.processor.Process(ctx, msg, func(ctx context.Context) error {
		return c.handle(ctx, rec.Value)
	})
	c.count(func(s *PaymentConsumerStats) { s.Processed++ })
	if err == nil {
		return nil
	}

	if errors.Is(err, errMalformedEvent) {
		c.count(func(s *PaymentConsumerStats) { s.Skipped++ })
		c.log.Warn("dropping malformed payment event",
			zap.String("topic", rec.Topic),
			zap.Int64("offset", rec.Offset),
			zap.Error(err),
		)
		if c.sink != nil {
			dl := &retry.DeadLetter{
				OriginalTopic: msg.Topic,
				OriginalKey:   msg.Key,
				Partition:     msg.Partition,
				Offset:        msg.Offset,
				Payload:       retry.PayloadJSON(msg.Payload),
				Headers:       msg.Headers,
				Error:         err.Error(),
				Attempts:      1,
			}
			if perr := c.sink.Publish(ctx, dl); perr != nil {
				return fmt.Errorf("failed to publish dead letter: %w", perr)
			}
			c.count(func(s *PaymentConsumerStats) { s.DeadLettered++ })
		}
		return nil
	}
	return err
}

// handle applies one event. Nil means the event needs no further attention.
func (c *PaymentConsumer) handle(ctx context.Context, payload []byte) error {
	var event domain.PaymentEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return retry.Permanent(fmt.Errorf("%w: %v", errMalformedEvent, err))
	}
	if event.BookingID == "" || event.ParticipantID == "" {
		return retry.Permanent(fmt.Errorf("%w: booking_id and participant_id are required", errMalformedEvent))
	}

	log := c.log.With(
		zap.String("event_type", event.EventType),
		zap.String("booking_id", event.BookingID),
		zap.String("participant_id", event.ParticipantID),
		zap.String("payment_id", event.PaymentID),
	)

	var err error
	switch event.EventType {
	case domain.PaymentEventCaptured:
		_, err = c.handler.RecordPayment(ctx, event.BookingID, event.ParticipantID, "", event.PaymentID)
		if err == nil {
			c.count(func(s *PaymentConsumerStats) { s.Captured++ })
			return nil
		}
	case domain.PaymentEventFailed:
		err = c.handler.RejectParticipantPayment(ctx, event.BookingID, event.ParticipantID, event.Reason)
		if err == nil {
			c.count(func(s *PaymentConsumerStats) { s.Failed++ })
			return nil
		}
	default:
		return retry.Permanent(fmt.Errorf("%w: unknown event type %q", errMalformedEvent, event.EventType))
	}

	if errors.Is(err, domain.ErrHoldLost) {
		// The money was taken but the slot is gone
		log.Error("payment captured after hold was lost, refund required", zap.Error(err))
		c.count(func(s *PaymentConsumerStats) { s.Skipped++ })
		return nil
	}
	if isBusinessError(err) {
		log.Warn("payment event rejected", zap.Error(err))
		c.count(func(s *PaymentConsumerStats) { s.Skipped++ })
		return nil
	}
	log.Warn("payment event failed, will retry", zap.Error(err))
	return err
}

func isBusinessError(err error) bool {
	return domain.IsNotFoundError(err) ||
		domain.IsConflictError(err) ||
		domain.IsInvalidStateError(err) ||
		domain.IsExpiredError(err) ||
		domain.IsValidationError(err) ||
		domain.IsForbiddenError(err)
}

func (c *PaymentConsumer) count(f func(*PaymentConsumerStats)) {
	c.mu.Lock()
	f(&c.stats)
	c.mu.Unlock()
}

// GetStats returns consumer statistics
func (c *PaymentConsumer) GetStats() PaymentConsumerStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.IsRunning = c.running
	return s
}
