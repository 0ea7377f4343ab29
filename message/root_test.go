// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package message

import "testing"

func TestKind(t *testing.T) {
	cases := []struct {
		Message  Message
		Expected string
	}{
		{Update{Done: true}, "update"},
		{Reload{}, "reload"},
		{Topology{}, "topology"},
		{PeerStatus{}, "peer-status"},
		{SpeakerStatus{}, "speaker-status"},
		{Degraded{}, "degraded"},
		{BGP{}, "bgp"},
		{Control{Action: ActionReload}, "control"},
		{BuildTopology{}, "build-topology"},
	}
	for _, tc := range cases {
		if got := tc.Message.Kind().String(); got != tc.Expected {
			t.Errorf("Kind() == %q, expected %q", got, tc.Expected)
		}
	}
	if got := Kind(42).String(); got != "kind-42" {
		t.Errorf("Kind(42).String() == %q", got)
	}
}

func TestMailbox(t *testing.T) {
	m := NewMailbox()
	m.Put(Degraded{Count: 2})
	got, ok := m.TryGet()
	if !ok {
		t.Fatal("TryGet() returned nothing")
	}
	if d, ok := got.(Degraded); !ok || d.Count != 2 {
		t.Errorf("TryGet() == %v, expected Degraded{2}", got)
	}
}
