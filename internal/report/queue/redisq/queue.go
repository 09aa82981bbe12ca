// Package redisq is a leased work queue on Redis.
//
// Usage:
//
//	client := goredis.NewClient(opts)
//	q := redisq.New(client, redisq.Config{Name: "pdf-jobs"})
//	if err := q.Ping(ctx); err != nil { ... }
package redisq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/aussiebroadwan/printq/internal/report/queue"
	"github.com/aussiebroadwan/printq/pkg/idx"
)

// Config tunes lease handling.
type Config struct {
	Name string

	// LockDuration is the lease length. Leases are renewed every third of it.
	LockDuration time.Duration

	// MaxLockRenewal caps how long a single delivery is kept alive.
	MaxLockRenewal time.Duration

	// ReceiveWait is how long Receive waits for a message.
	ReceiveWait time.Duration

	// PollInterval is the sleep between empty polls within ReceiveWait.
	PollInterval time.Duration
}

func (c *Config) defaults() {
	if c.Name == "" {
		c.Name = "pdf-jobs"
	}
	if c.LockDuration <= 0 {
		c.LockDuration = 60 * time.Second
	}
	if c.MaxLockRenewal <= 0 {
		c.MaxLockRenewal = 10 * time.Minute
	}
	if c.ReceiveWait <= 0 {
		c.ReceiveWait = 5 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 250 * time.Millisecond
	}
}

// Option configures the Queue.
type Option func(*Queue)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) { q.logger = l }
}

// Queue implements queue.Queue.
type Queue struct {
	client goredis.UniversalClient
	cfg    Config
	keys   keys
	logger *slog.Logger
	now    func() time.Time

	closeOnce sync.Once
	closed    chan struct{}
}

var _ queue.Queue = (*Queue)(nil)

// New returns a queue over client. Close closes the client.
func New(client goredis.UniversalClient, cfg Config, opts ...Option) *Queue {
	cfg.defaults()
	q := &Queue{
		client: client,
		cfg:    cfg,
		keys:   newKeys(cfg.Name),
		logger: slog.Default(),
		now:    time.Now,
		closed: make(chan struct{}),
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Dial parses a redis:// URL and returns a queue on a new client.
func Dial(url string, cfg Config, opts ...Option) (*Queue, error) {
	o, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redisq: parse url: %w", err)
	}
	return New(goredis.NewClient(o), cfg, opts...), nil
}

func (q *Queue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Close stops Receive and closes the client.
func (q *Queue) Close() error {
	var err error
	q.closeOnce.Do(func() {
		close(q.closed)
		err = q.client.Close()
	})
	return err
}

// Send stores the body under a new ULID and pushes the id on the ready list.
func (q *Queue) Send(ctx context.Context, body []byte) error {
	id := idx.New().String()

	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, q.keys.message(id),
		"body", body,
		"delivery_count", 0,
		"enqueued_at", q.now().UTC().Format(time.RFC3339Nano),
	)
	pipe.LPush(ctx, q.keys.ready, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redisq: send: %w", err)
	}
	return nil
}

// Receive polls the ready list until a message arrives or ReceiveWait
// elapses. The returned message renews its own lease until settled.
func (q *Queue) Receive(ctx context.Context) (queue.Message, error) {
	deadline := time.NewTimer(q.cfg.ReceiveWait)
	defer deadline.Stop()

	for {
		msg, err := q.tryReceive(ctx)
		if err != nil || msg != nil {
			return msg, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.closed:
			return nil, queue.ErrClosed
		case <-deadline.C:
			return nil, nil
		case <-time.After(q.cfg.PollInterval):
		}
	}
}

func (q *Queue) tryReceive(ctx context.Context) (queue.Message, error) {
	select {
	case <-q.closed:
		return nil, queue.ErrClosed
	default:
	}

	for {
		expiry := q.now().Add(q.cfg.LockDuration).UnixMilli()
		token := idx.New().String()
		res, err := receiveScript.Run(ctx, q.client,
			[]string{q.keys.ready, q.keys.leases},
			expiry, q.keys.msg, token,
		).Slice()
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("redisq: receive: %w", err)
		}

		id, _ := res[0].(string)
		if len(res) < 3 {
			// The hash was removed by an earlier settlement of a duplicate id.
			q.logger.Warn("redisq: dropping orphaned id", slog.String("id", id))
			continue
		}
		body, _ := res[1].(string)
		count, _ := res[2].(int64)

		m := &message{q: q, id: id, token: token, body: []byte(body), count: int(count)}
		m.stop = queue.KeepAlive(q.cfg.LockDuration/3, q.cfg.MaxLockRenewal, m.renew, func(err error) {
			q.logger.Warn("redisq: lease renewal failed", slog.String("id", id), slog.Any("error", err))
		})
		return m, nil
	}
}

// Reap requeues messages whose lease expired.
func (q *Queue) Reap(ctx context.Context) (int, error) {
	n, err := reapScript.Run(ctx, q.client,
		[]string{q.keys.leases, q.keys.ready},
		q.now().UnixMilli(), q.keys.msg,
	).Int()
	if err != nil {
		return 0, fmt.Errorf("redisq: reap: %w", err)
	}
	return n, nil
}

// DeadLetters returns the ids on the dead list, newest first.
func (q *Queue) DeadLetters(ctx context.Context) ([]string, error) {
	ids, err := q.client.LRange(ctx, q.keys.dead, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redisq: dead letters: %w", err)
	}
	return ids, nil
}

// DeadLetterInfo returns what was recorded when id was dead-lettered.
func (q *Queue) DeadLetterInfo(ctx context.Context, id string) (queue.DeadLetterInfo, error) {
	vals, err := q.client.HMGet(ctx, q.keys.message(id), "dead_reason", "dead_description", "dead_error").Result()
	if err != nil {
		return queue.DeadLetterInfo{}, fmt.Errorf("redisq: dead letter info: %w", err)
	}
	str := func(v any) string { s, _ := v.(string); return s }
	return queue.DeadLetterInfo{
		Reason:      str(vals[0]),
		Description: str(vals[1]),
		Error:       str(vals[2]),
	}, nil
}

// ReadyLen reports how many messages are waiting.
func (q *Queue) ReadyLen(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.keys.ready).Result()
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

func (m *message) renew(ctx context.Context) error {
	expiry := m.q.now().Add(m.q.cfg.LockDuration).UnixMilli()
	ok, err := renewScript.Run(ctx, m.q.client,
		[]string{m.q.keys.leases, m.q.keys.message(m.id)},
		m.id, expiry, m.token,
	).Int()
	if err != nil {
		return err
	}
	if ok == 0 {
		return queue.ErrLockLost
	}
	return nil
}

func (m *message) settle(ctx context.Context, op string, script *goredis.Script, keys []string, args ...any) error {
	m.stopOnce.Do(m.stop)

	ok, err := script.Run(ctx, m.q.client, keys, args...).Int()
	if err != nil {
		return fmt.Errorf("redisq: %s: %w", op, err)
	}
	if ok == 0 {
		return fmt.Errorf("redisq: %s %s: %w", op, m.id, queue.ErrLockLost)
	}
	return nil
}

func (m *message) Complete(ctx context.Context) error {
	k := m.q.keys
	return m.settle(ctx, "complete", completeScript, []string{k.leases, k.message(m.id)}, m.id, m.token)
}

func (m *message) Abandon(ctx context.Context) error {
	k := m.q.keys
	return m.settle(ctx, "abandon", abandonScript, []string{k.leases, k.ready, k.message(m.id)}, m.id, m.token)
}

func (m *message) DeadLetter(ctx context.Context, info queue.DeadLetterInfo) error {
	k := m.q.keys
	return m.settle(ctx, "dead-letter", deadLetterScript,
		[]string{k.leases, k.dead, k.message(m.id)},
		m.id, m.token, info.Reason, info.Description, info.Error, strconv.FormatInt(m.q.now().UnixMilli(), 10),
	)
}
