// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package speaker

import "time"

// Configuration describes the connection to an ExaBGP speaker.
type Configuration struct {
	// Connect is the address of the ExaBGP TCP API. When empty, the
	// speaker talks to ExaBGP through standard input and output.
	Connect string `validate:"omitempty,hostname_port"`
	// ConnectTimeout is the timeout to establish the TCP connection.
	ConnectTimeout time.Duration `validate:"min=100ms"`
	// MaxBackoff is the maximum delay between two connection attempts.
	MaxBackoff time.Duration `validate:"min=10ms"`
	// KeepaliveTimeout is how long the speaker may stay silent before
	// being considered down.
	KeepaliveTimeout time.Duration `validate:"min=1s"`
}

// DefaultConfiguration returns the default configuration of a speaker.
func DefaultConfiguration() Configuration {
	return Configuration{
		ConnectTimeout:   5 * time.Second,
		MaxBackoff:       30 * time.Second,
		KeepaliveTimeout: 120 * time.Second,
	}
}
