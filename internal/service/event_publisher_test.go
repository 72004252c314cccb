package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prohmpiriya/turf-booking/internal/domain"
	"github.com/prohmpiriya/turf-booking/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type producedMessage struct {
	topic   string
	key     string
	value   interface{}
	headers map[string]string
}

// MockProducer is a Func-field jsonProducer
type MockProducer struct {
	ProduceJSONFunc func(ctx context.Context, topic, key string, data interface{}, headers map[string]string) error
	produced        []producedMessage
	closed          bool
}

func (m *MockProducer) ProduceJSON(ctx context.Context, topic, key string, data interface{}, headers map[string]string) error {
	m.produced = append(m.produced, producedMessage{topic, key, data, headers})
	if m.ProduceJSONFunc != nil {
		return m.ProduceJSONFunc(ctx, topic, key, data, headers)
	}
	return nil
}

func (m *MockProducer) Close() { m.closed = true }

func TestKafkaEventPublisher_PublishesKeyedByBooking(t *testing.T) {
	producer := &MockProducer{}
	pub := newKafkaEventPublisher(producer, "", "")
	booking := &domain.Booking{ID: "b-1", VenueID: "v-1", Status: domain.BookingConfirmed, TotalAmount: 1000, Currency: "INR"}

	tests := []struct {
		publish func(context.Context, *domain.Booking) error
		want    domain.BookingEventType
	}{
		{pub.PublishBookingCreated, domain.BookingEventCreated},
		{pub.PublishBookingConfirmed, domain.BookingEventConfirmed},
		{pub.PublishBookingCancelled, domain.BookingEventCancelled},
		{pub.PublishBookingExpired, domain.BookingEventExpired},
		{pub.PublishBookingCompleted, domain.BookingEventCompleted},
	}
	for i, tt := range tests {
		require.NoError(t, tt.publish(context.Background(), booking))

		msg := producer.produced[i]
		assert.Equal(t, "booking-events", msg.topic)
		assert.Equal(t, "b-1", msg.key)
		assert.Equal(t, string(tt.want), msg.headers["event_type"])
		assert.Equal(t, "turf-booking", msg.headers["source"])

		event, ok := msg.value.(*domain.BookingEvent)
		require.True(t, ok)
		assert.Equal(t, tt.want, event.EventType)
		assert.Equal(t, event.EventID, msg.headers["event_id"])
		assert.Equal(t, int64(1000), event.TotalAmount)
	}

	require.NoError(t, pub.Close())
	assert.True(t, producer.closed)
}

func TestKafkaEventPublisher_WrapsProduceError(t *testing.T) {
	boom := errors.New("broker down")
	pub := newKafkaEventPublisher(&MockProducer{
		ProduceJSONFunc: func(context.Context, string, string, interface{}, map[string]string) error { return boom },
	}, "custom-topic", "svc")

	err := pub.PublishBookingExpired(context.Background(), &domain.Booking{ID: "b-1"})
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "booking.expired")
}

func TestNewKafkaEventPublisher_Validation(t *testing.T) {
	_, err := NewKafkaEventPublisher(context.Background(), nil)
	assert.Error(t, err)

	_, err = NewKafkaEventPublisher(context.Background(), &EventPublisherConfig{})
	assert.Error(t, err)
}

func TestNoOpEventPublisher(t *testing.T) {
	pub := NewNoOpEventPublisher()
	b := &domain.Booking{ID: "b-1"}
	ctx := context.Background()

	assert.NoError(t, pub.PublishBookingCreated(ctx, b))
	assert.NoError(t, pub.PublishBookingConfirmed(ctx, b))
	assert.NoError(t, pub.PublishBookingCancelled(ctx, b))
	assert.NoError(t, pub.PublishBookingExpired(ctx, b))
	assert.NoError(t, pub.PublishBookingCompleted(ctx, b))
	assert.NoError(t, pub.Close())
}

func TestPublishAsync_SendsSnapshot(t *testing.T) {
	b := &domain.Booking{ID: "b-1", Status: domain.BookingReserved}
	got := make(chan *domain.Booking, 1)

	publishAsync(logger.NewNop(), b, func(_ context.Context, snap *domain.Booking) error {
		got <- snap
		return errors.New("ignored")
	})
	b.Status = domain.BookingCancelled

	select {
	case snap := <-got:
		assert.Equal(t, "b-1", snap.ID)
		assert.Equal(t, domain.BookingReserved, snap.Status)
		assert.NotSame(t, b, snap)
	case <-time.After(time.Second):
		t.Fatal("event was not published")
	}
}
