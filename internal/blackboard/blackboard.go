// Package blackboard provides a topic-based shared store that workers post
// discoveries to and other components subscribe to.
//
// State changes are applied under a single lock. Subscriber notification is
// decoupled from posting: each post enqueues an event on a bounded queue that
// one dispatch goroutine drains, calling subscribers in registration order
// with no lock held. A subscriber may therefore post again without deadlock.
package blackboard

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrClosed is returned by Post after Close.
var ErrClosed = errors.New("blackboard closed")

// Kind declares how a topic stores posts.
type Kind int

const (
	// List topics accumulate every post in order.
	List Kind = iota
	// Scalar topics keep only the latest post.
	Scalar
)

// String returns the kind name.
func (k Kind) String() string {
	if k == Scalar {
		return "scalar"
	}
	return "list"
}

// Event is one post as delivered to subscribers.
type Event struct {
	Topic     string
	Payload   json.RawMessage
	Timestamp time.Time
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// Subscriber receives events for a topic.
type Subscriber func(Event)

type subscription struct {
	id uint64
	fn Subscriber
}

// Blackboard is safe for concurrent use.
type Blackboard struct {
	mu     sync.Mutex
	kinds  map[string]Kind
	values map[string][]json.RawMessage
	subs   map[string][]subscription
	nextID uint64

	// sendMu guards the queue against sends after close.
	sendMu sync.RWMutex
	closed bool
	queue  chan Event
	done   chan struct{}

	enqueueTimeout time.Duration
	dropped        atomic.Uint64
	logger         *zap.Logger
	now            func() time.Time
}

// Option configures a Blackboard.
type Option func(*Blackboard)

// WithTopic declares a topic and its kind.
func WithTopic(name string, kind Kind) Option {
	return func(b *Blackboard) { b.kinds[name] = kind }
}

// WithQueueSize sets the notification queue capacity.
func WithQueueSize(n int) Option {
	return func(b *Blackboard) {
		if n > 0 {
			b.queue = make(chan Event, n)
		}
	}
}

// WithEnqueueTimeout bounds how long a post waits for queue space before the
// notification is dropped.
func WithEnqueueTimeout(d time.Duration) Option {
	return func(b *Blackboard) { b.enqueueTimeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Blackboard) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(b *Blackboard) { b.now = now }
}

// New creates a blackboard and starts its dispatch loop. Call Close to stop it.
func New(opts ...Option) *Blackboard {
	b := &Blackboard{
		kinds:          make(map[string]Kind),
		values:         make(map[string][]json.RawMessage),
		subs:           make(map[string][]subscription),
		queue:          make(chan Event, 256),
		done:           make(chan struct{}),
		enqueueTimeout: 100 * time.Millisecond,
		logger:         zap.NewNop(),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	go b.dispatch()
	return b
}

// Kind returns the declared kind of topic. Undeclared topics are lists.
func (b *Blackboard) Kind(topic string) Kind {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.kinds[topic]
}

// Post records data on topic and queues a notification for subscribers.
// The state update always happens; only the notification can be dropped.
func (b *Blackboard) Post(topic string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", topic, err)
	}

	b.sendMu.RLock()
	defer b.sendMu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	event := Event{Topic: topic, Payload: payload, Timestamp: b.now()}

	b.mu.Lock()
	if b.kinds[topic] == Scalar {
		b.values[topic] = []json.RawMessage{payload}
	} else {
		b.values[topic] = append(b.values[topic], payload)
	}
	b.mu.Unlock()

	b.enqueue(event)
	return nil
}

func (b *Blackboard) enqueue(event Event) {
	select {
	case b.queue <- event:
		return
	default:
	}

	timer := time.NewTimer(b.enqueueTimeout)
	defer timer.Stop()
	select {
	case b.queue <- event:
	case <-timer.C:
		count := b.dropped.Add(1)
		if count%10 == 1 {
			b.logger.Warn("blackboard queue full, dropped notification",
				zap.String("topic", event.Topic),
				zap.Uint64("total_dropped", count))
		}
	}
}

// Subscribe registers fn for topic. The returned function removes the subscription.
func (b *Blackboard) Subscribe(topic string, fn Subscriber) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs[topic] = append(b.subs[topic], subscription{id: id, fn: fn})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[topic]
		for i, s := range subs {
			if s.id == id {
				b.subs[topic] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Snapshot returns a deep copy of every topic. List topics map to []any,
// scalar topics to their latest value. Declared list topics with no posts
// appear as empty lists; scalar topics with no posts are absent.
func (b *Blackboard) Snapshot() map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[string]any, len(b.values)+len(b.kinds))
	for topic, kind := range b.kinds {
		if kind == List {
			out[topic] = []any{}
		}
	}
	for topic, raws := range b.values {
		if b.kinds[topic] == Scalar {
			out[topic] = decodeAny(raws[len(raws)-1])
			continue
		}
		list := make([]any, len(raws))
		for i, raw := range raws {
			list[i] = decodeAny(raw)
		}
		out[topic] = list
	}
	return out
}

// Get returns a deep copy of one topic in the same shape Snapshot uses.
// The boolean is false when the topic has neither a declaration nor a post.
func (b *Blackboard) Get(topic string) (any, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	raws, posted := b.values[topic]
	kind, declared := b.kinds[topic]
	switch {
	case !posted && !declared:
		return nil, false
	case kind == Scalar:
		if !posted {
			return nil, false
		}
		return decodeAny(raws[len(raws)-1]), true
	default:
		list := make([]any, len(raws))
		for i, raw := range raws {
			list[i] = decodeAny(raw)
		}
		return list, true
	}
}

// Topics returns the names of every topic with a declaration or a post, sorted.
func (b *Blackboard) Topics() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	seen := make(map[string]bool)
	for t := range b.kinds {
		seen[t] = true
	}
	for t := range b.values {
		seen[t] = true
	}
	names := make([]string, 0, len(seen))
	for t := range seen {
		names = append(names, t)
	}
	sort.Strings(names)
	return names
}

// DecodeTopic unmarshals a topic into v: a JSON array for list topics, the
// latest value for scalar topics. Topics with no posts leave v untouched.
func (b *Blackboard) DecodeTopic(topic string, v any) error {
	b.mu.Lock()
	raws := b.values[topic]
	kind := b.kinds[topic]
	var data []byte
	var err error
	switch {
	case len(raws) == 0:
	case kind == Scalar:
		data = append([]byte(nil), raws[len(raws)-1]...)
	default:
		data, err = json.Marshal(raws)
	}
	b.mu.Unlock()

	if err != nil || data == nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// Dropped returns how many notifications were dropped because the queue was full.
func (b *Blackboard) Dropped() uint64 {
	return b.dropped.Load()
}

// Close stops accepting posts, delivers every queued notification, and waits
// for the dispatch loop to exit. It is safe to call more than once.
func (b *Blackboard) Close() {
	b.sendMu.Lock()
	if b.closed {
		b.sendMu.Unlock()
		<-b.done
		return
	}
	b.closed = true
	close(b.queue)
	b.sendMu.Unlock()
	<-b.done
}

func (b *Blackboard) dispatch() {
	defer close(b.done)
	for event := range b.queue {
		b.mu.Lock()
		subs := append([]subscription(nil), b.subs[event.Topic]...)
		b.mu.Unlock()

		for _, s := range subs {
			b.deliver(s, event)
		}
	}
}

func (b *Blackboard) deliver(s subscription, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("blackboard subscriber panicked",
				zap.String("topic", event.Topic),
				zap.Any("panic", r))
		}
	}()
	s.fn(event)
}

func decodeAny(raw json.RawMessage) any {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}
