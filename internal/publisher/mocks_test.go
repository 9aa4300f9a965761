package publisher

import (
	"context"
	"sync"

	"github.com/segmentio/kafka-go"
)

// MockWriter implements MessageWriter for testing
type MockWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	// FailAfter fails every write once that many messages were accepted; -1 never fails.
	FailAfter int
	Err       error
	closed    bool
}

func NewMockWriter() *MockWriter {
	return &MockWriter{FailAfter: -1}
}

func (m *MockWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailAfter >= 0 && len(m.messages) >= m.FailAfter {
		return m.Err
	}
	m.messages = append(m.messages, msgs...)
	return nil
}

func (m *MockWriter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MockWriter) Messages() []kafka.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]kafka.Message(nil), m.messages...)
}

// MockAbandoner implements OrderAbandoner for testing
type MockAbandoner struct {
	mu        sync.Mutex
	Abandoned []string
	Result    bool
	Err       error
}

func (m *MockAbandoner) AbandonOrder(_ context.Context, orderID, _ string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return false, m.Err
	}
	m.Abandoned = append(m.Abandoned, orderID)
	return m.Result, nil
}

func (m *MockAbandoner) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Abandoned...)
}
