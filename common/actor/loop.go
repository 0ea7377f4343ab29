// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

// Package actor provides the building blocks of actors: a mailbox and
// a loop processing messages one at a time. Message handlers may
// schedule callbacks which are run later, once, when the mailbox is
// idle or when they have been waiting for too long.
package actor

import (
	"time"

	"github.com/benbjohnson/clock"
	"gopkg.in/tomb.v2"
)

// Configuration describes the timings of a loop.
type Configuration struct {
	// IdleTimeout is how long the mailbox should be empty before
	// running pending callbacks.
	IdleTimeout time.Duration `validate:"min=1ms"`
	// MaxDelay is the maximum time a callback may be delayed when
	// the mailbox is never idle.
	MaxDelay time.Duration `validate:"gtefield=IdleTimeout"`
}

// DefaultConfiguration returns the default configuration for a loop.
func DefaultConfiguration() Configuration {
	return Configuration{
		IdleTimeout: 100 * time.Millisecond,
		MaxDelay:    10 * time.Second,
	}
}

// Callback is a delayed action. Callbacks with the same key are only
// run once.
type Callback struct {
	Key string
	Run func()
}

// Handler processes one message and may return callbacks to schedule.
type Handler[T any] func(msg T) []Callback

// Loop processes the messages of a mailbox.
type Loop[T any] struct {
	config  Configuration
	clock   clock.Clock
	mailbox *Mailbox[T]
	handler Handler[T]

	pending []Callback
	keys    map[string]struct{}
	since   time.Time
}

// NewLoop creates a loop for the provided mailbox.
func NewLoop[T any](config Configuration, c clock.Clock, mailbox *Mailbox[T], handler Handler[T]) *Loop[T] {
	return &Loop[T]{
		config:  config,
		clock:   c,
		mailbox: mailbox,
		handler: handler,
		keys:    map[string]struct{}{},
	}
}

// Run processes messages until the tomb is dying. Each message is
// processed to completion before the next one.
func (l *Loop[T]) Run(t *tomb.Tomb) error {
	for {
		select {
		case <-t.Dying():
			return nil
		default:
		}

		msg, ok := l.mailbox.TryGet()
		if ok {
			l.schedule(l.handler(msg))
			if len(l.pending) > 0 && l.clock.Since(l.since) >= l.config.MaxDelay {
				l.fire()
			}
			continue
		}

		if len(l.pending) == 0 {
			select {
			case <-t.Dying():
				return nil
			case <-l.mailbox.Notify():
			}
			continue
		}

		timer := l.clock.Timer(l.config.IdleTimeout)
		select {
		case <-t.Dying():
			timer.Stop()
			return nil
		case <-l.mailbox.Notify():
			timer.Stop()
		case <-timer.C:
			l.fire()
		}
	}
}

// schedule adds callbacks to the pending ones, unless a callback with
// the same key is already pending.
func (l *Loop[T]) schedule(callbacks []Callback) {
	for _, cb := range callbacks {
		if _, ok := l.keys[cb.Key]; ok {
			continue
		}
		if len(l.pending) == 0 {
			l.since = l.clock.Now()
		}
		l.keys[cb.Key] = struct{}{}
		l.pending = append(l.pending, cb)
	}
}

// fire runs pending callbacks in the order they were scheduled.
func (l *Loop[T]) fire() {
	pending := l.pending
	l.pending = nil
	clear(l.keys)
	for _, cb := range pending {
		cb.Run()
	}
}
