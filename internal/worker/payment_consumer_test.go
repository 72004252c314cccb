package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prohmpiriya/turf-booking/internal/domain"
	"github.com/prohmpiriya/turf-booking/pkg/kafka"
	"github.com/prohmpiriya/turf-booking/pkg/logger"
	"github.com/prohmpiriya/turf-booking/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockPaymentHandler is a mock implementation of PaymentHandler
type MockPaymentHandler struct {
	mu          sync.Mutex
	recordCalls int
	rejectCalls int
	lastActor   string
	lastRef     string
	RecordFunc  func(ctx context.Context, bookingID, participantID, actorID, paymentRef string) (*domain.Booking, error)
	RejectFunc  func(ctx context.Context, bookingID, participantID, reason string) error
}

func (m *MockPaymentHandler) RecordPayment(ctx context.Context, bookingID, participantID, actorID, paymentRef string) (*domain.Booking, error) {
	m.mu.Lock()
	m.recordCalls++
	m.lastActor, m.lastRef = actorID, paymentRef
	m.mu.Unlock()
	if m.RecordFunc != nil {
		return m.RecordFunc(ctx, bookingID, participantID, actorID, paymentRef)
	}
	return &domain.Booking{ID: bookingID}, nil
}

func (m *MockPaymentHandler) RejectParticipantPayment(ctx context.Context, bookingID, participantID, reason string) error {
	m.mu.Lock()
	m.rejectCalls++
	m.mu.Unlock()
	if m.RejectFunc != nil {
		return m.RejectFunc(ctx, bookingID, participantID, reason)
	}
	return nil
}

// MockProducer captures dead letters
type MockProducer struct {
	mu     sync.Mutex
	topics []string
	Err    error
}

func (m *MockProducer) ProduceJSON(_ context.Context, topic, _ string, _ interface{}, _ map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.topics = append(m.topics, topic)
	return nil
}

func (m *MockProducer) sent() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.topics...)
}

// MockPoller serves one batch and then blocks until ctx is done
type MockPoller struct {
	mu        sync.Mutex
	batches   [][]*kafka.Record
	committed []*kafka.Record
}

func (m *MockPoller) Poll(ctx context.Context) ([]*kafka.Record, error) {
	m.mu.Lock()
	if len(m.batches) > 0 {
		b := m.batches[0]
		m.batches = m.batches[1:]
		m.mu.Unlock()
		return b, nil
	}
	m.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}

func (m *MockPoller) CommitRecords(_ context.Context, records []*kafka.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.committed = append(m.committed, records...)
	return nil
}

func (m *MockPoller) commitCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.committed)
}

func paymentRecord(t *testing.T, event domain.PaymentEvent) *kafka.Record {
	t.Helper()
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	return &kafka.Record{Topic: "payment-events", Key: []byte(event.BookingID), Value: payload}
}

func fastConfig() *PaymentConsumerConfig {
	return &PaymentConsumerConfig{
		Policy:      retry.Policy{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
		PollBackoff: time.Millisecond,
	}
}

func TestPaymentConsumer_ProcessRecords(t *testing.T) {
	captured := domain.PaymentEvent{
		EventType:     domain.PaymentEventCaptured,
		BookingID:     "booking-1",
		ParticipantID: "participant-1",
		PaymentID:     "pay-1",
		Amount:        500,
	}
	failed := domain.PaymentEvent{
		EventType:     domain.PaymentEventFailed,
		BookingID:     "booking-1",
		ParticipantID: "participant-1",
		Reason:        "card declined",
	}

	tests := []struct {
		name       string
		record     func(t *testing.T) *kafka.Record
		recordErr  error
		wantRecord int
		wantReject int
		wantDLQ    []string
		wantStats  func(t *testing.T, s PaymentConsumerStats)
	}{
		{
			name:       "captured payment is recorded by the gateway actor",
			record:     func(t *testing.T) *kafka.Record { return paymentRecord(t, captured) },
			wantRecord: 1,
			wantStats: func(t *testing.T, s PaymentConsumerStats) {
				assert.Equal(t, int64(1), s.Captured)
			},
		},
		{
			name:       "failed payment is rejected",
			record:     func(t *testing.T) *kafka.Record { return paymentRecord(t, failed) },
			wantReject: 1,
			wantStats: func(t *testing.T, s PaymentConsumerStats) {
				assert.Equal(t, int64(1), s.Failed)
			},
		},
		{
			name:       "business rejection is acknowledged without retry",
			record:     func(t *testing.T) *kafka.Record { return paymentRecord(t, captured) },
			recordErr:  domain.ErrAlreadyPaid,
			wantRecord: 1,
			wantStats: func(t *testing.T, s PaymentConsumerStats) {
				assert.Equal(t, int64(1), s.Skipped)
			},
		},
		{
			name:       "hold lost is acknowledged",
			record:     func(t *testing.T) *kafka.Record { return paymentRecord(t, captured) },
			recordErr:  domain.ErrHoldLost,
			wantRecord: 1,
		},
		{
			name:       "infrastructure failure is retried then dead-lettered",
			record:     func(t *testing.T) *kafka.Record { return paymentRecord(t, captured) },
			recordErr:  errors.New("connection reset"),
			wantRecord: 3,
			wantDLQ:    []string{"payment-events.dlq"},
			wantStats: func(t *testing.T, s PaymentConsumerStats) {
				assert.Equal(t, int64(1), s.DeadLettered)
			},
		},
		{
			name: "malformed payload is dead-lettered once",
			record: func(t *testing.T) *kafka.Record {
				return &kafka.Record{Topic: "payment-events", Value: []byte("{not json")}
			},
			wantDLQ: []string{"payment-events.dlq"},
		},
		{
			name: "unknown event type is dead-lettered",
			record: func(t *testing.T) *kafka.Record {
				return paymentRecord(t, domain.PaymentEvent{EventType: "payment.refunded", BookingID: "b", ParticipantID: "p"})
			},
			wantDLQ: []string{"payment-events.dlq"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := &MockPaymentHandler{
				RecordFunc: func(_ context.Context, bookingID, _, _, _ string) (*domain.Booking, error) {
					if tt.recordErr != nil {
						return nil, tt.recordErr
					}
					return &domain.Booking{ID: bookingID}, nil
				},
			}
			producer := &MockProducer{}
			sink := retry.NewDeadLetterSink(producer, "", "payment-consumer")
			c := NewPaymentConsumer(&MockPoller{}, handler, sink, fastConfig(), logger.NewNop())

			err := c.ProcessRecords(context.Background(), []*kafka.Record{tt.record(t)})
			require.NoError(t, err)

			assert.Equal(t, tt.wantRecord, handler.recordCalls)
			assert.Equal(t, tt.wantReject, handler.rejectCalls)
			assert.Equal(t, tt.wantDLQ, producer.sent())
			if tt.wantRecord > 0 && tt.recordErr == nil {
				assert.Equal(t, "", handler.lastActor)
				assert.Equal(t, "pay-1", handler.lastRef)
			}
			if tt.wantStats != nil {
				tt.wantStats(t, c.GetStats())
			}
		})
	}
}

func TestPaymentConsumer_DeadLetterPublishFailure(t *testing.T) {
	handler := &MockPaymentHandler{
		RecordFunc: func(context.Context, string, string, string, string) (*domain.Booking, error) {
			return nil, errors.New("connection reset")
		},
	}
	sink := retry.NewDeadLetterSink(&MockProducer{Err: errors.New("broker down")}, "", "payment-consumer")
	c := NewPaymentConsumer(&MockPoller{}, handler, sink, fastConfig(), logger.NewNop())

	rec := paymentRecord(t, domain.PaymentEvent{EventType: domain.PaymentEventCaptured, BookingID: "b", ParticipantID: "p", PaymentID: "x"})
	err := c.ProcessRecords(context.Background(), []*kafka.Record{rec})
	assert.Error(t, err)
}

func TestPaymentConsumer_StartCommitsBatch(t *testing.T) {
	rec := paymentRecord(t, domain.PaymentEvent{EventType: domain.PaymentEventCaptured, BookingID: "b", ParticipantID: "p", PaymentID: "x"})
	poller := &MockPoller{batches: [][]*kafka.Record{{rec}}}
	handler := &MockPaymentHandler{}
	c := NewPaymentConsumer(poller, handler, nil, fastConfig(), logger.NewNop())

	require.NoError(t, c.Start(context.Background()))
	assert.Error(t, c.Start(context.Background()))

	assert.Eventually(t, func() bool { return poller.commitCount() == 1 }, time.Second, 5*time.Millisecond)

	c.Stop()
	stats := c.GetStats()
	assert.False(t, stats.IsRunning)
	assert.Equal(t, int64(1), stats.Processed)
	assert.Equal(t, int64(1), stats.Captured)
}
