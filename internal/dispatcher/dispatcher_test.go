package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// testLogger implements Logger for testing
type testLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *testLogger) Debug(msg string, keysAndValues ...any) { l.add("DEBUG", msg, keysAndValues) }
func (l *testLogger) Info(msg string, keysAndValues ...any)  { l.add("INFO", msg, keysAndValues) }
func (l *testLogger) Error(msg string, keysAndValues ...any) { l.add("ERROR", msg, keysAndValues) }

func (l *testLogger) add(level, msg string, kv []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("%s: %s %v", level, msg, kv))
}

func (l *testLogger) contains(s string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.messages {
		if strings.Contains(m, s) {
			return true
		}
	}
	return false
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *testLogger) {
	logger := &testLogger{}
	d, err := New(logger)
	require.NoError(t, err)
	return d, logger
}

func TestDispatcher_SyncHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var got Event
	d.Register("waypoint.add", func(_ context.Context, e Event) (any, error) {
		got = e
		return "result", nil
	})

	result, err := d.Dispatch(context.Background(), Event{Command: "waypoint.add", Args: []string{"1", "2"}})
	require.NoError(t, err)
	assert.Equal(t, "result", result)
	assert.Equal(t, []string{"1", "2"}, got.Args)
	assert.False(t, got.Timestamp.IsZero())
}

func TestDispatcher_UnknownCommand(t *testing.T) {
	d, _ := newTestDispatcher(t)

	_, err := d.Dispatch(context.Background(), Event{Command: "nope"})
	assert.ErrorIs(t, err, ErrUnknownCommand)
}

func TestDispatcher_HandlerError(t *testing.T) {
	d, logger := newTestDispatcher(t)

	boom := fmt.Errorf("boom")
	d.Register("fail", func(context.Context, Event) (any, error) {
		return nil, boom
	}, Logged())

	_, err := d.Dispatch(context.Background(), Event{Command: "fail"})
	assert.ErrorIs(t, err, boom)
	assert.True(t, logger.contains("ERROR: event failed"))
	assert.True(t, logger.contains("DEBUG: handling event"))
}

// recordingMeter counts Int64Counter adds per instrument name.
type recordingMeter struct {
	noop.Meter
	mu     sync.Mutex
	counts map[string]int64
}

type recordingCounter struct {
	noop.Int64Counter
	name  string
	meter *recordingMeter
}

func (c recordingCounter) Add(_ context.Context, incr int64, _ ...metric.AddOption) {
	c.meter.mu.Lock()
	defer c.meter.mu.Unlock()
	c.meter.counts[c.name] += incr
}

func (m *recordingMeter) Int64Counter(name string, _ ...metric.Int64CounterOption) (metric.Int64Counter, error) {
	return recordingCounter{name: name, meter: m}, nil
}

func (m *recordingMeter) count(name string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[name]
}

func TestDispatcher_CountsEveryEvent(t *testing.T) {
	m := &recordingMeter{counts: make(map[string]int64)}
	d, err := newWithMeter(m, &testLogger{})
	require.NoError(t, err)

	d.Register("state.get", func(context.Context, Event) (any, error) { return "ok", nil })
	d.Register("tracking.start", func(context.Context, Event) (any, error) {
		return nil, errors.New("no route")
	}, Logged())

	for i := 0; i < 5; i++ {
		_, err := d.Dispatch(context.Background(), Event{Command: "state.get"})
		require.NoError(t, err)
	}
	_, err = d.Dispatch(context.Background(), Event{Command: "tracking.start"})
	require.Error(t, err)
	_, err = d.Dispatch(context.Background(), Event{Command: "nope"})
	require.Error(t, err)

	assert.Equal(t, int64(6), m.count("dispatcher.events.processed"))
	assert.Equal(t, int64(2), m.count("dispatcher.events.failed"))
}
