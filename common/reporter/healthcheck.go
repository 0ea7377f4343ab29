// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package reporter

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthcheckStatus is the status of a healthcheck. Higher is worse.
type HealthcheckStatus int

const (
	// HealthcheckOK means the component works as expected.
	HealthcheckOK HealthcheckStatus = iota
	// HealthcheckWarning means the component is degraded, for example a
	// speaker that stopped sending keepalives.
	HealthcheckWarning
	// HealthcheckError means the component does not work.
	HealthcheckError
)

// healthcheckTimeout bounds the time spent in the HTTP handler.
const healthcheckTimeout = 5 * time.Second

func (hs HealthcheckStatus) String() string {
	switch hs {
	case HealthcheckOK:
		return "ok"
	case HealthcheckWarning:
		return "warning"
	case HealthcheckError:
		return "error"
	}
	return "unknown"
}

// MarshalText turns a status into text.
func (hs HealthcheckStatus) MarshalText() ([]byte, error) {
	return []byte(hs.String()), nil
}

// HealthcheckResult is the outcome of one healthcheck.
type HealthcheckResult struct {
	Status HealthcheckStatus `json:"status"`
	Reason string            `json:"reason"`
}

// MultipleHealthcheckResults is the outcome of all healthchecks. The
// global status is the worst one.
type MultipleHealthcheckResults struct {
	Status  HealthcheckStatus            `json:"status"`
	Details map[string]HealthcheckResult `json:"details,omitempty"`
}

// HealthcheckFunc checks the health of a component.
type HealthcheckFunc func(context.Context) HealthcheckResult

// RegisterHealthcheck registers a healthcheck under the provided name,
// replacing any previous one with the same name.
func (r *Reporter) RegisterHealthcheck(name string, hf HealthcheckFunc) {
	r.healthchecksLock.Lock()
	defer r.healthchecksLock.Unlock()
	r.healthchecks[name] = hf
}

// RunHealthchecks runs all healthchecks concurrently. A healthcheck
// still running when the context is done counts as an error.
func (r *Reporter) RunHealthchecks(ctx context.Context) MultipleHealthcheckResults {
	r.healthchecksLock.Lock()
	defer r.healthchecksLock.Unlock()

	type namedResult struct {
		name   string
		result HealthcheckResult
	}
	// Buffered: late healthchecks must not block once we gave up.
	answers := make(chan namedResult, len(r.healthchecks))
	for name, check := range r.healthchecks {
		go func() {
			answers <- namedResult{name, check(ctx)}
		}()
	}

	results := MultipleHealthcheckResults{
		Status:  HealthcheckOK,
		Details: make(map[string]HealthcheckResult, len(r.healthchecks)),
	}
collect:
	for range r.healthchecks {
		select {
		case answer := <-answers:
			results.Details[answer.name] = answer.result
		case <-ctx.Done():
			break collect
		}
	}
	for name := range r.healthchecks {
		if _, ok := results.Details[name]; !ok {
			results.Details[name] = HealthcheckResult{HealthcheckError, "timeout during check"}
		}
		results.Status = max(results.Status, results.Details[name].Status)
	}
	return results
}

// HealthcheckHTTPHandler runs the healthchecks and returns the results
// as JSON, with a 503 status code when one of them is in error.
func (r *Reporter) HealthcheckHTTPHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthcheckTimeout)
	defer cancel()
	results := r.RunHealthchecks(ctx)
	status := http.StatusOK
	if results.Status == HealthcheckError {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, results)
}
