// Package queue defines the job transport between the edge and workers.
//
// Delivery is at-least-once. A received message is leased to one consumer
// until it is settled with Complete, Abandon or DeadLetter. A lease that is
// neither settled nor renewed expires and the message is delivered again.
package queue

import (
	"context"
	"errors"
)

var (
	// ErrLockLost means the lease expired (and the message may already be
	// with another consumer) before it was settled.
	ErrLockLost = errors.New("queue: lock lost")

	ErrClosed = errors.New("queue: closed")
)

// DeadLetterInfo is stored with a dead-lettered message.
type DeadLetterInfo struct {
	Reason      string
	Description string

	// Error is the text of the last failure.
	Error string
}

// Message is one leased delivery.
type Message interface {
	ID() string
	Body() []byte

	// DeliveryCount is 1 on first delivery and grows by one on every
	// redelivery.
	DeliveryCount() int

	Complete(ctx context.Context) error
	Abandon(ctx context.Context) error
	DeadLetter(ctx context.Context, info DeadLetterInfo) error
}

// Producer enqueues message bodies.
type Producer interface {
	Send(ctx context.Context, body []byte) error
}

// Consumer receives leased messages.
type Consumer interface {
	// Receive waits for the next message. It returns (nil, nil) when no
	// message arrived within the transport's wait time, and ctx.Err() when
	// ctx ends.
	Receive(ctx context.Context) (Message, error)
}

// Reaper returns messages with expired leases to the ready queue.
type Reaper interface {
	Reap(ctx context.Context) (int, error)
}

// Queue is what a transport driver provides.
type Queue interface {
	Producer
	Consumer
	Reaper

	Ping(ctx context.Context) error
	Close() error
}
