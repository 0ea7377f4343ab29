// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package policy

import (
	"bgpsdn/message"
	"bgpsdn/route"
)

const (
	// BatchSize is the maximum number of routes in one update message.
	BatchSize = 500_000
	// BufferSize is the maximum size of the routes in one update
	// message.
	BufferSize = 64 << 20
)

// SendRoutes sends a complete set of routes as a sequence of update
// messages to each of the provided mailboxes. The header provides the
// source, the ASN and the address. The last message has Done set. An
// empty set is sent as a single empty message. Routes are encoded
// once and the buffers are shared between the recipients.
func SendRoutes(header message.Update, routes []route.Entry, mailboxes ...*message.Mailbox) {
	route.EncodeBatches(routes, BatchSize, BufferSize, func(buf []byte, done bool) {
		update := header
		update.Routes = buf
		update.Done = done
		for _, mailbox := range mailboxes {
			mailbox.Put(update)
		}
	})
}

// Pending accumulates routes received through update messages until
// the set from each source is complete.
type Pending struct {
	routes map[string][]route.Entry
}

// NewPending creates an empty set of pending updates.
func NewPending() *Pending {
	return &Pending{routes: map[string][]route.Entry{}}
}

// Add decodes the routes of an update message. Routes are kept when
// keep returns true. If the update is the last one for its source,
// the complete set is returned and forgotten.
func (p *Pending) Add(update message.Update, keep func(route.Entry) (route.Entry, bool)) ([]route.Entry, bool, error) {
	routes, err := route.DecodeAll(update.Routes)
	if err != nil {
		delete(p.routes, update.Source)
		return nil, false, err
	}
	current, ok := p.routes[update.Source]
	if !ok {
		current = []route.Entry{}
	}
	for _, e := range routes {
		if kept, ok := keep(e); ok {
			current = append(current, kept)
		}
	}
	if !update.Done {
		p.routes[update.Source] = current
		return nil, false, nil
	}
	delete(p.routes, update.Source)
	return current, true, nil
}
