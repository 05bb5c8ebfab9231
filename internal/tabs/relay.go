package tabs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/abelbrown/vinewatch/internal/event"
	"github.com/abelbrown/vinewatch/internal/logging"
	"github.com/abelbrown/vinewatch/internal/metrics"
)

// ErrRelayClosed is returned by Publish after Close.
var ErrRelayClosed = errors.New("tabs: relay closed")

// Relay is the best-effort broadcast channel between processes of one
// session. There is no acknowledgement and no ordering across senders;
// receivers must tolerate duplicates and gaps. A process never receives
// its own messages.
type Relay interface {
	Publish(ctx context.Context, msg event.Message) error
	// Subscribe delivers messages from other processes to handler until
	// ctx is done.
	Subscribe(ctx context.Context, handler func(event.Message)) error
	Close() error
}

// RelayChannel returns the pub/sub channel name for session.
func RelayChannel(session string) string {
	return keyPrefix + session + ":relay"
}

// RedisRelay implements Relay over Redis PUBLISH/SUBSCRIBE.
type RedisRelay struct {
	rdb     *redis.Client
	channel string
	id      string
	now     func() time.Time
}

// NewRedisRelay creates a relay for tab id within session.
func NewRedisRelay(rdb *redis.Client, session, id string) *RedisRelay {
	return &RedisRelay{
		rdb:     rdb,
		channel: RelayChannel(session),
		id:      id,
		now:     time.Now,
	}
}

// Publish stamps msg with this tab's id and broadcasts it.
func (r *RedisRelay) Publish(ctx context.Context, msg event.Message) error {
	msg.Sender = r.id
	if msg.Sent.IsZero() {
		msg.Sent = r.now()
	}
	data, err := event.EncodeMessage(msg)
	if err != nil {
		return err
	}
	if err := r.rdb.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("relay publish: %w", err)
	}
	metrics.RelayMessagesTotal.WithLabelValues("out", string(msg.Type())).Inc()
	return nil
}

// Subscribe implements Relay. Returns an error if the subscription cannot be
// established; otherwise blocks until ctx is done.
func (r *RedisRelay) Subscribe(ctx context.Context, handler func(event.Message)) error {
	ps := r.rdb.Subscribe(ctx, r.channel)
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("relay subscribe: %w", err)
	}

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			r.deliver([]byte(m.Payload), handler)
		}
	}
}

func (r *RedisRelay) deliver(data []byte, handler func(event.Message)) {
	msg, err := event.DecodeMessage(data)
	if err != nil {
		logging.Warn("dropping malformed relay message", "error", err)
		return
	}
	if msg.Sender == r.id {
		return
	}
	metrics.RelayMessagesTotal.WithLabelValues("in", string(msg.Type())).Inc()
	handler(msg)
}

// Close is a no-op; the Redis client is owned by the caller.
func (r *RedisRelay) Close() error {
	return nil
}

// hubBuffer is the per-member queue length of a Hub.
const hubBuffer = 256

// Hub is an in-process Relay fan-out, for embedding several monitors in one
// process and for tests. Messages that don't fit a member's queue are dropped.
type Hub struct {
	mu      sync.Mutex
	members map[string]*HubRelay
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{members: make(map[string]*HubRelay)}
}

// Join returns the Relay for tab id.
func (h *Hub) Join(id string) *HubRelay {
	h.mu.Lock()
	defer h.mu.Unlock()
	m := &HubRelay{hub: h, id: id, ch: make(chan event.Message, hubBuffer)}
	h.members[id] = m
	return m
}

func (h *Hub) broadcast(msg event.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, m := range h.members {
		if id == msg.Sender {
			continue
		}
		select {
		case m.ch <- msg:
		default:
			logging.Warn("hub member queue full, dropping relay message", "tab", id, "type", msg.Type())
		}
	}
}

func (h *Hub) leave(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.members, id)
}

// HubRelay is one member's view of a Hub.
type HubRelay struct {
	hub    *Hub
	id     string
	ch     chan event.Message
	mu     sync.Mutex
	done   bool
	closed sync.Once
}

// Publish implements Relay.
func (m *HubRelay) Publish(_ context.Context, msg event.Message) error {
	m.mu.Lock()
	done := m.done
	m.mu.Unlock()
	if done {
		return ErrRelayClosed
	}
	msg.Sender = m.id
	if msg.Sent.IsZero() {
		msg.Sent = time.Now()
	}
	m.hub.broadcast(msg)
	return nil
}

// Subscribe implements Relay.
func (m *HubRelay) Subscribe(ctx context.Context, handler func(event.Message)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-m.ch:
			handler(msg)
		}
	}
}

// Close removes the member from the hub.
func (m *HubRelay) Close() error {
	m.closed.Do(func() {
		m.mu.Lock()
		m.done = true
		m.mu.Unlock()
		m.hub.leave(m.id)
	})
	return nil
}
