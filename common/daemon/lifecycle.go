// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package daemon

import "sync"

// terminator signals the end of the process to every component
// waiting on it. Terminating twice is harmless.
type terminator struct {
	done chan struct{}
	once sync.Once
}

// Terminated returns a channel closed once termination is requested.
func (t *terminator) Terminated() <-chan struct{} {
	return t.done
}

// Terminate requests the termination of the process.
func (t *terminator) Terminate() {
	t.once.Do(func() { close(t.done) })
}
