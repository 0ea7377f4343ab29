// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package actor

import (
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/goleak"
	"gopkg.in/tomb.v2"

	"bgpsdn/common/helpers"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestMailbox(t *testing.T) {
	m := NewMailbox[int]()
	if _, ok := m.TryGet(); ok {
		t.Fatal("TryGet() on empty mailbox succeeded")
	}
	for i := range 1000 {
		m.Put(i)
	}
	if m.Len() != 1000 {
		t.Fatalf("Len() == %d, expected 1000", m.Len())
	}
	select {
	case <-m.Notify():
	default:
		t.Fatal("Notify() did not signal")
	}
	for i := range 1000 {
		got, ok := m.TryGet()
		if !ok || got != i {
			t.Fatalf("TryGet() == %d, %v, expected %d", got, ok, i)
		}
	}
	if m.Len() != 0 {
		t.Fatalf("Len() == %d, expected 0", m.Len())
	}
}

// recorder collects what happens in a loop.
type recorder struct {
	lock   sync.Mutex
	events []string
}

func (r *recorder) add(event string) {
	r.lock.Lock()
	r.events = append(r.events, event)
	r.lock.Unlock()
}

func (r *recorder) get() []string {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]string{}, r.events...)
}

func startLoop(t *testing.T, config Configuration, m *Mailbox[string], rec *recorder) {
	t.Helper()
	loop := NewLoop(config, clock.New(), m, func(msg string) []Callback {
		rec.add(msg)
		return []Callback{{Key: "flush", Run: func() { rec.add("flush") }}}
	})
	var tb tomb.Tomb
	tb.Go(func() error { return loop.Run(&tb) })
	t.Cleanup(func() {
		tb.Kill(nil)
		if err := tb.Wait(); err != nil {
			t.Errorf("Run() error:\n%+v", err)
		}
	})
}

func waitFor(t *testing.T, rec *recorder, count int) []string {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		got := rec.get()
		if len(got) >= count {
			return got
		}
		select {
		case <-deadline:
			t.Fatalf("timeout waiting for %d events, got %v", count, got)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestLoopCoalescesCallbacks(t *testing.T) {
	m := NewMailbox[string]()
	rec := &recorder{}
	m.Put("a")
	m.Put("b")
	m.Put("c")
	startLoop(t, Configuration{IdleTimeout: 20 * time.Millisecond, MaxDelay: time.Minute}, m, rec)

	got := waitFor(t, rec, 4)
	if diff := helpers.Diff(got, []string{"a", "b", "c", "flush"}); diff != "" {
		t.Fatalf("events (-got, +want):\n%s", diff)
	}

	// A new message schedules the callback again.
	m.Put("d")
	got = waitFor(t, rec, 6)
	if diff := helpers.Diff(got, []string{"a", "b", "c", "flush", "d", "flush"}); diff != "" {
		t.Fatalf("events (-got, +want):\n%s", diff)
	}
}

func TestLoopMaxDelay(t *testing.T) {
	m := NewMailbox[string]()
	rec := &recorder{}
	startLoop(t, Configuration{IdleTimeout: time.Hour, MaxDelay: 30 * time.Millisecond}, m, rec)

	// The mailbox never stays idle long enough, callbacks should
	// still be run.
	stop := time.After(time.Second)
	ticker := time.NewTicker(2 * time.Millisecond)
	defer ticker.Stop()
out:
	for {
		select {
		case <-stop:
			break out
		case <-ticker.C:
			m.Put("msg")
			for _, event := range rec.get() {
				if event == "flush" {
					break out
				}
			}
		}
	}
	found := false
	for _, event := range rec.get() {
		if event == "flush" {
			found = true
		}
	}
	if !found {
		t.Fatal("callback was never run")
	}
}

func TestLoopStopsWhileWaiting(t *testing.T) {
	m := NewMailbox[string]()
	loop := NewLoop(DefaultConfiguration(), clock.New(), m, func(string) []Callback { return nil })
	var tb tomb.Tomb
	tb.Go(func() error { return loop.Run(&tb) })
	time.Sleep(10 * time.Millisecond)
	tb.Kill(nil)
	select {
	case <-tb.Dead():
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}
}
