// Package archive keeps a copy of every raw submission body before it is
// parsed, keyed by receive date and invocation id.
package archive

import (
	"context"
	"fmt"
	"time"

	"userbus/internal/config"
	"userbus/pkg/circuitbreaker"
	"userbus/pkg/metrics"
)

// Record is one archived request body.
type Record struct {
	Key          string
	InvocationID string
	ReceivedAt   time.Time
	Body         []byte
}

func NewRecord(invocationID string, body []byte, receivedAt time.Time) Record {
	return Record{
		Key:          Key(receivedAt, invocationID),
		InvocationID: invocationID,
		ReceivedAt:   receivedAt.UTC(),
		Body:         body,
	}
}

// Key is yyyy/MM/dd/<invocationId>.json, dated in UTC.
func Key(receivedAt time.Time, invocationID string) string {
	return fmt.Sprintf("%s/%s.json", receivedAt.UTC().Format("2006/01/02"), invocationID)
}

type Archiver interface {
	Archive(ctx context.Context, rec Record) error
}

type nopArchiver struct{}

// Nop is used when archiving is disabled.
func Nop() Archiver {
	return nopArchiver{}
}

func (nopArchiver) Archive(context.Context, Record) error {
	return nil
}

// instrumented records write counts and latency per backend.
type instrumented struct {
	next    Archiver
	backend string
}

func WithMetrics(next Archiver, backend string) Archiver {
	return &instrumented{next: next, backend: backend}
}

func (a *instrumented) Archive(ctx context.Context, rec Record) error {
	start := time.Now()
	err := a.next.Archive(ctx, rec)
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.ObserveArchiveWrite(a.backend, status, time.Since(start))
	return err
}

type breakerArchiver struct {
	next Archiver
	cb   *circuitbreaker.Wrapper
}

// WithCircuitBreaker fails archive writes fast while the backend is down.
// A disabled breaker config returns next unchanged.
func WithCircuitBreaker(next Archiver, name string, cfg config.CircuitBreakerConfig) Archiver {
	if !cfg.Enabled {
		return next
	}
	return &breakerArchiver{next: next, cb: circuitbreaker.NewWrapper(circuitbreaker.FromConfig(name, cfg))}
}

func (a *breakerArchiver) Archive(ctx context.Context, rec Record) error {
	return a.cb.Run(ctx, func() error {
		return a.next.Archive(ctx, rec)
	})
}
