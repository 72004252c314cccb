package retry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// DeadLetter is the record written to a dead letter topic
type DeadLetter struct {
	OriginalTopic  string            `json:"original_topic"`
	OriginalKey    string            `json:"original_key"`
	Partition      int32             `json:"partition"`
	Offset         int64             `json:"offset"`
	Payload        json.RawMessage   `json:"payload"`
	Headers        map[string]string `json:"headers,omitempty"`
	Error          string            `json:"error"`
	Attempts       int               `json:"attempts"`
	FirstAttemptAt time.Time         `json:"first_attempt_at"`
	FailedAt       time.Time         `json:"failed_at"`
	Source         string            `json:"source"`
}

// JSONProducer is satisfied by the kafka producer
type JSONProducer interface {
	ProduceJSON(ctx context.Context, topic, key string, value interface{}, headers map[string]string) error
}

// DeadLetterSink publishes dead letters to "<topic><suffix>"
type DeadLetterSink struct {
	producer JSONProducer
	suffix   string
	source   string
}

// NewDeadLetterSink creates a sink. An empty suffix defaults to ".dlq".
func NewDeadLetterSink(producer JSONProducer, suffix, source string) *DeadLetterSink {
	if suffix == "" {
		suffix = ".dlq"
	}
	return &DeadLetterSink{producer: producer, suffix: suffix, source: source}
}

// Topic returns the dead letter topic for topic
func (s *DeadLetterSink) Topic(topic string) string {
	return topic + s.suffix
}

// Publish writes dl to the dead letter topic of its original topic
func (s *DeadLetterSink) Publish(ctx context.Context, dl *DeadLetter) error {
	if dl == nil {
		return errors.New("dead letter cannot be nil")
	}
	if s.producer == nil {
		return nil
	}
	dl.Source = s.source
	if dl.FailedAt.IsZero() {
		dl.FailedAt = time.Now()
	}

	headers := map[string]string{
		"original_topic": dl.OriginalTopic,
		"error":          dl.Error,
		"attempts":       strconv.Itoa(dl.Attempts),
		"source":         dl.Source,
	}
	return s.producer.ProduceJSON(ctx, s.Topic(dl.OriginalTopic), dl.OriginalKey, dl, headers)
}

// Message identifies the record being processed
type Message struct {
	Topic     string
	Key       string
	Partition int32
	Offset    int64
	Payload   []byte
	Headers   map[string]string
}

// Processor retries a handler and dead-letters messages that keep failing.
// Errors marked Permanent are returned without retry or dead-lettering.
type Processor struct {
	policy Policy
	sink   *DeadLetterSink
	onDead func(*DeadLetter)
}

// NewProcessor creates a Processor. sink may be nil to disable dead-lettering.
func NewProcessor(policy Policy, sink *DeadLetterSink, onDead func(*DeadLetter)) *Processor {
	return &Processor{policy: policy, sink: sink, onDead: onDead}
}

// Process runs handle under the retry policy. It returns nil once the message
// has been handled or dead-lettered.
func (p *Processor) Process(ctx context.Context, msg Message, handle func(ctx context.Context) error) error {
	started := time.Now()
	out := Do(ctx, p.policy, handle, nil)
	if out.Err == nil {
		return nil
	}
	if !errors.Is(out.Err, ErrAttemptsExhausted) {
		// permanent failure or cancelled context
		return out.Err
	}

	cause := out.LastErr
	dl := &DeadLetter{
		OriginalTopic:  msg.Topic,
		OriginalKey:    msg.Key,
		Partition:      msg.Partition,
		Offset:         msg.Offset,
		Payload:        PayloadJSON(msg.Payload),
		Headers:        msg.Headers,
		Error:          cause.Error(),
		Attempts:       out.Attempts,
		FirstAttemptAt: started,
		FailedAt:       time.Now(),
	}
	if p.onDead != nil {
		p.onDead(dl)
	}
	if p.sink == nil {
		return nil
	}
	if err := p.sink.Publish(ctx, dl); err != nil {
		return fmt.Errorf("failed to publish dead letter: %w (cause: %v)", err, cause)
	}
	return nil
}

// PayloadJSON keeps valid JSON payloads as-is and quotes anything else
func PayloadJSON(b []byte) json.RawMessage {
	if json.Valid(b) {
		return json.RawMessage(b)
	}
	q, _ := json.Marshal(string(b))
	return q
}
