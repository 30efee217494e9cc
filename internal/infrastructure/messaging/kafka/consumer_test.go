package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/toda-franchise/internal/config"
	"github.com/turtacn/toda-franchise/internal/testutil"
	"github.com/turtacn/toda-franchise/pkg/types/common"
)

// mockKafkaReader serves queued messages, then blocks until canceled.
type mockKafkaReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed chan kafka.Message
	closed    bool
}

func newMockReader(msgs ...kafka.Message) *mockKafkaReader {
	return &mockKafkaReader{queue: msgs, committed: make(chan kafka.Message, len(msgs)+1)}
}

func (m *mockKafkaReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	m.mu.Lock()
	if len(m.queue) > 0 {
		msg := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()
		return msg, nil
	}
	m.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (m *mockKafkaReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	for _, msg := range msgs {
		m.committed <- msg
	}
	return nil
}

func (m *mockKafkaReader) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []*common.ProducerMessage
}

func (r *recordingPublisher) Publish(ctx context.Context, msg *common.ProducerMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recordingPublisher) all() []*common.ProducerMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*common.ProducerMessage(nil), r.msgs...)
}

func waitCommit(t *testing.T, r *mockKafkaReader) kafka.Message {
	t.Helper()
	select {
	case m := <-r.committed:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("message was not committed")
		return kafka.Message{}
	}
}

func fastRetry() RetryConfig {
	return RetryConfig{MaxRetries: 2, RetryBackoff: time.Millisecond, MaxRetryBackoff: 2 * time.Millisecond}
}

func TestNewConsumer_Validation(t *testing.T) {
	_, err := NewConsumer(config.KafkaConfig{}, nil, RetryConfig{}, nil, nil)
	assert.Error(t, err)
	_, err = NewConsumer(config.KafkaConfig{Brokers: []string{"localhost:9092"}}, nil, RetryConfig{}, nil, nil)
	assert.Error(t, err)
}

func TestConsumer_DispatchesAndCommits(t *testing.T) {
	reader := newMockReader(kafka.Message{
		Topic:   TopicStatusChanged,
		Offset:  5,
		Value:   []byte("v"),
		Headers: []kafka.Header{{Key: "event_type", Value: []byte(TopicStatusChanged)}},
	})
	c := newConsumerWithReader(reader, "g", fastRetry(), nil, testutil.NewMockLogger())

	got := make(chan *common.Message, 1)
	c.Subscribe(TopicStatusChanged, func(ctx context.Context, msg *common.Message) error {
		got <- msg
		return nil
	})
	require.NoError(t, c.Start(context.Background()))
	assert.ErrorIs(t, c.Start(context.Background()), ErrAlreadyRunning)

	m := <-got
	assert.Equal(t, int64(5), m.Offset)
	assert.Equal(t, TopicStatusChanged, m.Headers["event_type"])
	assert.Equal(t, int64(5), waitCommit(t, reader).Offset)

	require.NoError(t, c.Close())
	assert.True(t, reader.closed)
	consumed, processed, _ := c.Stats()
	assert.Equal(t, int64(1), consumed)
	assert.Equal(t, int64(1), processed)
}

func TestConsumer_RetriesThenSucceeds(t *testing.T) {
	reader := newMockReader(kafka.Message{Topic: TopicIssued, Value: []byte("v")})
	c := newConsumerWithReader(reader, "g", fastRetry(), nil, nil)

	var mu sync.Mutex
	calls := 0
	c.Subscribe(TopicIssued, func(ctx context.Context, msg *common.Message) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls < 2 {
			return errors.New("smtp unavailable")
		}
		return nil
	})
	require.NoError(t, c.Start(context.Background()))
	waitCommit(t, reader)
	require.NoError(t, c.Close())

	mu.Lock()
	assert.Equal(t, 2, calls)
	mu.Unlock()
}

func TestConsumer_DeadLettersAfterRetries(t *testing.T) {
	reader := newMockReader(kafka.Message{Topic: TopicIssued, Key: []byte("7"), Value: []byte("v")})
	dl := &recordingPublisher{}
	log := testutil.NewMockLogger()
	c := newConsumerWithReader(reader, "g", fastRetry(), dl, log)

	c.Subscribe(TopicIssued, func(ctx context.Context, msg *common.Message) error {
		return errors.New("always fails")
	})
	require.NoError(t, c.Start(context.Background()))
	waitCommit(t, reader)
	require.NoError(t, c.Close())

	msgs := dl.all()
	require.Len(t, msgs, 1)
	assert.Equal(t, TopicDeadLetter, msgs[0].Topic)
	assert.Equal(t, TopicIssued, msgs[0].Headers["original_topic"])
	assert.Equal(t, "always fails", msgs[0].Headers["error_message"])
	assert.True(t, log.HasMessage("error", "Message processing failed after retries"))

	_, _, dead := c.Stats()
	assert.Equal(t, int64(1), dead)
}

func TestConsumer_UnknownTopicIsCommitted(t *testing.T) {
	reader := newMockReader(kafka.Message{Topic: "elsewhere", Value: []byte("v")})
	log := testutil.NewMockLogger()
	c := newConsumerWithReader(reader, "g", fastRetry(), nil, log)

	require.NoError(t, c.Start(context.Background()))
	assert.Equal(t, "elsewhere", waitCommit(t, reader).Topic)
	require.NoError(t, c.Close())
	assert.True(t, log.HasMessage("warn", "No handler for topic"))
}
