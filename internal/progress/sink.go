package progress

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Sink receives progress events. OnUpdate must not block for long.
type Sink interface {
	OnUpdate(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// OnUpdate calls f.
func (f SinkFunc) OnUpdate(e Event) { f(e) }

// Nop discards events.
type Nop struct{}

// OnUpdate does nothing.
func (Nop) OnUpdate(Event) {}

// Multi fans an event out to several sinks in order.
type Multi []Sink

// OnUpdate forwards e to every sink.
func (m Multi) OnUpdate(e Event) {
	for _, s := range m {
		if s != nil {
			s.OnUpdate(e)
		}
	}
}

// LogSink writes events to a zap logger.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a sink logging at info level, errors at warn.
func NewLogSink(l *zap.Logger) *LogSink {
	if l == nil {
		l = zap.NewNop()
	}
	return &LogSink{logger: l}
}

// OnUpdate logs the event.
func (s *LogSink) OnUpdate(e Event) {
	fields := []zap.Field{
		zap.String("kind", string(e.Kind)),
		zap.String("source", e.Source),
		zap.String("session", e.SessionID),
	}
	if e.SubtaskID != NoSubtask {
		fields = append(fields, zap.Int("subtask", e.SubtaskID))
	}
	switch e.Kind {
	case KindWorkerError, KindSubtaskFailed, KindSecurityBlock, KindSessionError:
		s.logger.Warn(e.Message, fields...)
	default:
		s.logger.Info(e.Message, fields...)
	}
}

// ChannelSink delivers events on a buffered channel. When the buffer is
// full it waits briefly for the receiver before dropping the event.
type ChannelSink struct {
	events       chan Event
	timeout      time.Duration
	logger       *zap.Logger
	droppedCount atomic.Uint64
	closeOnce    sync.Once
	mu           sync.RWMutex
	closed       bool
}

// NewChannelSink creates a channel sink with the given buffer size.
func NewChannelSink(bufferSize int, logger *zap.Logger) *ChannelSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChannelSink{
		events:  make(chan Event, bufferSize),
		timeout: 100 * time.Millisecond,
		logger:  logger,
	}
}

// OnUpdate sends e, dropping it if the receiver does not keep up.
func (c *ChannelSink) OnUpdate(e Event) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}

	select {
	case c.events <- e:
		return
	default:
	}

	select {
	case c.events <- e:
	case <-time.After(c.timeout):
		count := c.droppedCount.Add(1)
		if count%10 == 1 {
			c.logger.Warn("progress channel full, dropped event",
				zap.Uint64("total_dropped", count),
				zap.String("kind", string(e.Kind)))
		}
	}
}

// Events returns the receive side of the channel.
func (c *ChannelSink) Events() <-chan Event {
	return c.events
}

// DroppedCount returns how many events were dropped.
func (c *ChannelSink) DroppedCount() uint64 {
	return c.droppedCount.Load()
}

// Close closes the channel. Later events are discarded.
func (c *ChannelSink) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.events)
		c.mu.Unlock()
	})
}

var (
	_ Sink = SinkFunc(nil)
	_ Sink = Nop{}
	_ Sink = Multi(nil)
	_ Sink = (*LogSink)(nil)
	_ Sink = (*ChannelSink)(nil)
)
