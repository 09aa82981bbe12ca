// Package memq is an in-process queue with the same lease semantics as
// redisq. It backs tests and single-binary development runs.
package memq

import (
	"context"
	"sync"
	"time"

	"github.com/aussiebroadwan/printq/internal/report/queue"
	"github.com/aussiebroadwan/printq/pkg/idx"
)

// Config mirrors redisq.Config.
type Config struct {
	LockDuration   time.Duration
	MaxLockRenewal time.Duration
	ReceiveWait    time.Duration
}

// Option configures the Queue.
type Option func(*Queue)

// WithClock overrides time.Now for lease expiry.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

type entry struct {
	body  []byte
	count int
	dead  *queue.DeadLetterInfo
}

// lease is one delivery's hold on a message. token changes on every
// delivery so a consumer whose lease was reaped cannot settle the next one.
type lease struct {
	token  string
	expiry time.Time
}

// Queue implements queue.Queue.
type Queue struct {
	cfg Config
	now func() time.Time

	mu     sync.Mutex
	ready  []string
	msgs   map[string]*entry
	leases map[string]lease
	dead   []string
	notify chan struct{}
	closed bool
	done   chan struct{}
}

var _ queue.Queue = (*Queue)(nil)

func New(cfg Config, opts ...Option) *Queue {
	if cfg.LockDuration <= 0 {
		cfg.LockDuration = 60 * time.Second
	}
	if cfg.ReceiveWait <= 0 {
		cfg.ReceiveWait = 5 * time.Second
	}
	q := &Queue{
		cfg:    cfg,
		now:    time.Now,
		msgs:   make(map[string]*entry),
		leases: make(map[string]lease),
		notify: make(chan struct{}),
		done:   make(chan struct{}),
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

func (q *Queue) Ping(context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return queue.ErrClosed
	}
	return nil
}

func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.done)
	}
	return nil
}

func (q *Queue) Send(_ context.Context, body []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return queue.ErrClosed
	}

	id := idx.New().String()
	q.msgs[id] = &entry{body: append([]byte(nil), body...)}
	q.ready = append(q.ready, id)
	q.wakeLocked()
	return nil
}

// wakeLocked releases every goroutine waiting in Receive.
func (q *Queue) wakeLocked() {
	close(q.notify)
	q.notify = make(chan struct{})
}

func (q *Queue) Receive(ctx context.Context) (queue.Message, error) {
	timer := time.NewTimer(q.cfg.ReceiveWait)
	defer timer.Stop()

	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, queue.ErrClosed
		}
		if len(q.ready) > 0 {
			m := q.leaseLocked()
			q.mu.Unlock()
			return m, nil
		}
		wait := q.notify
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.done:
			return nil, queue.ErrClosed
		case <-timer.C:
			return nil, nil
		case <-wait:
		}
	}
}

func (q *Queue) leaseLocked() *message {
	id := q.ready[0]
	q.ready = q.ready[1:]

	e := q.msgs[id]
	e.count++
	token := idx.New().String()
	q.leases[id] = lease{token: token, expiry: q.now().Add(q.cfg.LockDuration)}

	m := &message{q: q, id: id, token: token, body: e.body, count: e.count}
	m.stop = queue.KeepAlive(q.cfg.LockDuration/3, q.cfg.MaxLockRenewal, m.renew, nil)
	return m
}

func (q *Queue) Reap(context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	n := 0
	for id, l := range q.leases {
		if !l.expiry.After(now) {
			delete(q.leases, id)
			q.ready = append(q.ready, id)
			n++
		}
	}
	if n > 0 {
		q.wakeLocked()
	}
	return n, nil
}

// Len reports how many messages are waiting.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ready)
}

// DeadLetter is a dead-lettered message as seen by tests.
type DeadLetter struct {
	ID            string
	Body          []byte
	DeliveryCount int
	Info          queue.DeadLetterInfo
}

// DeadLetters returns dead-lettered messages in the order they arrived.
func (q *Queue) DeadLetters() []DeadLetter {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]DeadLetter, 0, len(q.dead))
	for _, id := range q.dead {
		e := q.msgs[id]
		out = append(out, DeadLetter{ID: id, Body: e.body, DeliveryCount: e.count, Info: *e.dead})
	}
	return out
}

// heldLocked reports whether token still holds the lease on id.
func (q *Queue) heldLocked(id, token string) bool {
	l, ok := q.leases[id]
	return ok && l.token == token
}

// settle releases the lease on id and applies fn under the lock.
func (q *Queue) settle(id, token string, fn func()) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.heldLocked(id, token) {
		return queue.ErrLockLost
	}
	delete(q.leases, id)
	fn()
	return nil
}

type message struct {
	q     *Queue
	id    string
	token string
	body  []byte
	count int

	stop     func()
	stopOnce sync.Once
}

func (m *message) ID() string         { return m.id }
func (m *message) Body() []byte       { return m.body }
func (m *message) DeliveryCount() int { return m.count }

func (m *message) renew(context.Context) error {
	q := m.q
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.heldLocked(m.id, m.token) {
		return queue.ErrLockLost
	}
	q.leases[m.id] = lease{token: m.token, expiry: q.now().Add(q.cfg.LockDuration)}
	return nil
}

func (m *message) Complete(context.Context) error {
	m.stopOnce.Do(m.stop)
	return m.q.settle(m.id, m.token, func() {
		delete(m.q.msgs, m.id)
	})
}

func (m *message) Abandon(context.Context) error {
	m.stopOnce.Do(m.stop)
	return m.q.settle(m.id, m.token, func() {
		m.q.ready = append(m.q.ready, m.id)
		m.q.wakeLocked()
	})
}

func (m *message) DeadLetter(_ context.Context, info queue.DeadLetterInfo) error {
	m.stopOnce.Do(m.stop)
	return m.q.settle(m.id, m.token, func() {
		m.q.msgs[m.id].dead = &info
		m.q.dead = append(m.q.dead, m.id)
	})
}
