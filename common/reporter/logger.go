// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package reporter

import (
	"time"

	"github.com/rs/zerolog"
)

// Logger is an alias for zerolog.Logger. Actors derive their own
// sub-logger from the reporter with additional context.
type Logger = zerolog.Logger

// BurstSampler limits a logger to burst messages per period. It is
// used for errors which may repeat at a high rate, like those from a
// file watcher or a speaker connection.
func BurstSampler(period time.Duration, burst uint32) zerolog.Sampler {
	return &zerolog.BurstSampler{
		Period: period,
		Burst:  burst,
	}
}
