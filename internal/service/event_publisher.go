package service

import (
	"context"
	"fmt"
	"time"

	"github.com/prohmpiriya/turf-booking/internal/domain"
	"github.com/prohmpiriya/turf-booking/pkg/kafka"
	"github.com/prohmpiriya/turf-booking/pkg/logger"
	"go.uber.org/zap"
)

// EventPublisher defines the interface for publishing booking lifecycle events
type EventPublisher interface {
	PublishBookingCreated(ctx context.Context, booking *domain.Booking) error
	PublishBookingConfirmed(ctx context.Context, booking *domain.Booking) error
	PublishBookingCancelled(ctx context.Context, booking *domain.Booking) error
	PublishBookingExpired(ctx context.Context, booking *domain.Booking) error
	PublishBookingCompleted(ctx context.Context, booking *domain.Booking) error

	// Close flushes and closes the publisher
	Close() error
}

// jsonProducer is the part of kafka.Producer the publisher needs
type jsonProducer interface {
	ProduceJSON(ctx context.Context, topic, key string, data interface{}, headers map[string]string) error
	Close()
}

// KafkaEventPublisher implements EventPublisher using Kafka
type KafkaEventPublisher struct {
	producer    jsonProducer
	topic       string
	serviceName string
}

// EventPublisherConfig contains configuration for the event publisher
type EventPublisherConfig struct {
	Brokers     []string
	Topic       string
	ServiceName string
	ClientID    string
}

// NewKafkaEventPublisher creates a new Kafka event publisher
func NewKafkaEventPublisher(ctx context.Context, cfg *EventPublisherConfig) (*KafkaEventPublisher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("event publisher config is required")
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "turf-booking-producer"
	}

	producer, err := kafka.NewProducer(ctx, &kafka.ProducerConfig{
		Brokers:       cfg.Brokers,
		ClientID:      clientID,
		MaxRetries:    3,
		RetryInterval: 2 * time.Second,
		LingerMs:      10,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	return newKafkaEventPublisher(producer, cfg.Topic, cfg.ServiceName), nil
}

func newKafkaEventPublisher(producer jsonProducer, topic, serviceName string) *KafkaEventPublisher {
	if topic == "" {
		topic = "booking-events"
	}
	if serviceName == "" {
		serviceName = "turf-booking"
	}
	return &KafkaEventPublisher{
		producer:    producer,
		topic:       topic,
		serviceName: serviceName,
	}
}

// PublishBookingCreated publishes a booking created event
func (p *KafkaEventPublisher) PublishBookingCreated(ctx context.Context, booking *domain.Booking) error {
	return p.publishEvent(ctx, domain.BookingEventCreated, booking)
}

// PublishBookingConfirmed publishes a booking confirmed event
func (p *KafkaEventPublisher) PublishBookingConfirmed(ctx context.Context, booking *domain.Booking) error {
	return p.publishEvent(ctx, domain.BookingEventConfirmed, booking)
}

// PublishBookingCancelled publishes a booking cancelled event
func (p *KafkaEventPublisher) PublishBookingCancelled(ctx context.Context, booking *domain.Booking) error {
	return p.publishEvent(ctx, domain.BookingEventCancelled, booking)
}

// PublishBookingExpired publishes a booking expired event
func (p *KafkaEventPublisher) PublishBookingExpired(ctx context.Context, booking *domain.Booking) error {
	return p.publishEvent(ctx, domain.BookingEventExpired, booking)
}

// PublishBookingCompleted publishes a check-in event
func (p *KafkaEventPublisher) PublishBookingCompleted(ctx context.Context, booking *domain.Booking) error {
	return p.publishEvent(ctx, domain.BookingEventCompleted, booking)
}

// Close closes the event publisher
func (p *KafkaEventPublisher) Close() error {
	if p.producer != nil {
		p.producer.Close()
	}
	return nil
}

// publishEvent publishes a booking event keyed by booking id so one booking's
// events stay ordered on a single partition
func (p *KafkaEventPublisher) publishEvent(ctx context.Context, eventType domain.BookingEventType, booking *domain.Booking) error {
	event := domain.NewBookingEvent(eventType, booking)

	headers := map[string]string{
		"event_type": string(eventType),
		"event_id":   event.EventID,
		"source":     p.serviceName,
	}

	if err := p.producer.ProduceJSON(ctx, p.topic, booking.ID, event, headers); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", eventType, err)
	}
	return nil
}

// NoOpEventPublisher is used when Kafka is disabled or unreachable
type NoOpEventPublisher struct{}

// NewNoOpEventPublisher creates a new no-op event publisher
func NewNoOpEventPublisher() *NoOpEventPublisher {
	return &NoOpEventPublisher{}
}

func (p *NoOpEventPublisher) PublishBookingCreated(context.Context, *domain.Booking) error {
	return nil
}

func (p *NoOpEventPublisher) PublishBookingConfirmed(context.Context, *domain.Booking) error {
	return nil
}

func (p *NoOpEventPublisher) PublishBookingCancelled(context.Context, *domain.Booking) error {
	return nil
}

func (p *NoOpEventPublisher) PublishBookingExpired(context.Context, *domain.Booking) error {
	return nil
}

func (p *NoOpEventPublisher) PublishBookingCompleted(context.Context, *domain.Booking) error {
	return nil
}

func (p *NoOpEventPublisher) Close() error {
	return nil
}

const publishTimeout = 5 * time.Second

// publishAsync sends a snapshot of b after the write has committed.
// Failures are logged and never reach the caller.
func publishAsync(log *logger.Logger, b *domain.Booking, publish func(context.Context, *domain.Booking) error) {
	snapshot := *b
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := publish(ctx, &snapshot); err != nil {
			log.Warn("failed to publish booking event",
				zap.String("booking_id", snapshot.ID),
				zap.String("status", string(snapshot.Status)),
				zap.Error(err),
			)
		}
	}()
}
