// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package actor

import (
	"sync"

	"github.com/eapache/queue"
)

// Mailbox is an unbounded FIFO queue. Putting a message never blocks.
// A mailbox has a single consumer.
type Mailbox[T any] struct {
	lock   sync.Mutex
	queue  *queue.Queue
	notify chan struct{}
}

// NewMailbox creates a new empty mailbox.
func NewMailbox[T any]() *Mailbox[T] {
	return &Mailbox[T]{
		queue:  queue.New(),
		notify: make(chan struct{}, 1),
	}
}

// Put appends a message to the mailbox.
func (m *Mailbox[T]) Put(msg T) {
	m.lock.Lock()
	m.queue.Add(msg)
	m.lock.Unlock()
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// TryGet removes the first message of the mailbox. It returns false
// when the mailbox is empty.
func (m *Mailbox[T]) TryGet() (T, bool) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.queue.Length() == 0 {
		var zero T
		return zero, false
	}
	return m.queue.Remove().(T), true
}

// Len returns the number of messages waiting in the mailbox.
func (m *Mailbox[T]) Len() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.queue.Length()
}

// Notify returns a channel receiving a value after messages have been
// put in the mailbox. Several puts may be coalesced into one
// notification.
func (m *Mailbox[T]) Notify() <-chan struct{} {
	return m.notify
}
