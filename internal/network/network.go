// Package network is an in-process message delivery layer for simulations.
// Each validator has a queue; packets carry message hashes into a shared
// store and every send is recorded in a log.
package network

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/xid"

	"Casper/internal/message"
)

// ErrUnknownValidator is returned when a sender or recipient has no queue.
var ErrUnknownValidator = errors.New("unknown validator")

// Packet is one delivery of a message to a validator.
type Packet struct {
	ID        string       `json:"id"`
	Msg       message.Hash `json:"msg"`
	From      string       `json:"from"`
	To        string       `json:"to"`
	Timestamp time.Time    `json:"timestamp"`
}

// Network holds a queue per validator. It is safe for concurrent use.
type Network struct {
	mu     sync.Mutex
	names  []string
	queues map[string][]Packet
	log    []Packet
	now    func() time.Time
}

// Option configures a Network during creation.
type Option func(*Network)

// WithClock sets the time source used to stamp packets.
func WithClock(now func() time.Time) Option {
	return func(n *Network) {
		n.now = now
	}
}

// New creates a network with an empty queue for each name.
func New(names []string, opts ...Option) *Network {
	n := &Network{
		names:  slices.Clone(names),
		queues: make(map[string][]Packet, len(names)),
		now:    time.Now,
	}

	for _, name := range names {
		n.queues[name] = nil
	}

	for _, opt := range opts {
		opt(n)
	}

	return n
}

// Send queues msg for to and records the packet in the log.
func (n *Network) Send(msg message.Hash, from, to string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.queues[from]; !ok {
		return fmt.Errorf("%w: sender %s", ErrUnknownValidator, from)
	}
	if _, ok := n.queues[to]; !ok {
		return fmt.Errorf("%w: recipient %s", ErrUnknownValidator, to)
	}

	n.deliver(msg, from, to)

	return nil
}

// Broadcast sends msg from from to every other validator.
func (n *Network) Broadcast(msg message.Hash, from string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.queues[from]; !ok {
		return fmt.Errorf("%w: sender %s", ErrUnknownValidator, from)
	}

	for _, to := range n.names {
		if to != from {
			n.deliver(msg, from, to)
		}
	}

	return nil
}

// Receive returns and clears the queue of who, oldest packet first.
func (n *Network) Receive(who string) ([]Packet, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	packets, ok := n.queues[who]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownValidator, who)
	}

	n.queues[who] = nil

	return packets, nil
}

// Log returns a copy of every packet sent so far.
func (n *Network) Log() []Packet {
	n.mu.Lock()
	defer n.mu.Unlock()

	return slices.Clone(n.log)
}

// deliver appends a packet to the queue of to and to the log. Caller holds mu.
func (n *Network) deliver(msg message.Hash, from, to string) {
	p := Packet{
		ID:        xid.New().String(),
		Msg:       msg,
		From:      from,
		To:        to,
		Timestamp: n.now(),
	}

	n.queues[to] = append(n.queues[to], p)
	n.log = append(n.log, p)
}
