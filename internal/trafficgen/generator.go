// Package trafficgen posts synthetic batches to the publisher so the whole
// pipeline, including every simulated failure path, sees steady traffic.
package trafficgen

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"userbus/internal/config"
	"userbus/internal/constants"
	"userbus/internal/logger"
	"userbus/pkg/metrics"
	"userbus/pkg/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// PhoneSuffixes are the discriminator values the default classifier rules
// react to, plus a plain success.
var PhoneSuffixes = []string{"00", "06", "07", "08", "09", "99"}

const (
	defaultInterval    = time.Minute
	defaultMaxRequests = 10
	defaultMaxEvents   = 5
	defaultTimeout     = 10 * time.Second
)

type Option func(*Generator)

func WithRand(r *rand.Rand) Option {
	return func(g *Generator) {
		if r != nil {
			g.rnd = r
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		if now != nil {
			g.now = now
		}
	}
}

type Generator struct {
	url         string
	interval    time.Duration
	maxRequests int
	maxEvents   int
	client      *http.Client
	logger      logger.Logger
	now         func() time.Time

	mu  sync.Mutex
	rnd *rand.Rand
}

func New(cfg config.TrafficGeneratorConfig, log logger.Logger, opts ...Option) *Generator {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	g := &Generator{
		url:         strings.TrimRight(cfg.BaseURL, "/") + constants.DefaultSubmissionRoute,
		interval:    orDefault(cfg.Interval, defaultInterval),
		maxRequests: orDefaultInt(cfg.MaxRequests, defaultMaxRequests),
		maxEvents:   orDefaultInt(cfg.MaxEvents, defaultMaxEvents),
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: log,
		now:    time.Now,
		rnd:    rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Run fires a round immediately and then once per interval until ctx is done.
func (g *Generator) Run(ctx context.Context) error {
	g.logger.Infow("Traffic generator started", "url", g.url, "interval", g.interval)

	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		if _, err := g.Round(ctx); err != nil && ctx.Err() == nil {
			g.logger.ErrorwCtx(ctx, "Failed to generate traffic", "error", err)
		}

		select {
		case <-ctx.Done():
			g.logger.Infow("Traffic generator stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Round posts between 1 and maxRequests batches and returns the status codes
// in posting order. It stops at the first transport error.
func (g *Generator) Round(ctx context.Context) ([]int, error) {
	n := g.intN(g.maxRequests) + 1
	g.logger.Infow("Generating traffic", "requests", n, "url", g.url)

	codes := make([]int, 0, n)
	for i := 0; i < n; i++ {
		code, err := g.post(ctx, g.Batch(i))
		if err != nil {
			return codes, err
		}
		metrics.IncTrafficGeneratorRequest(code)
		codes = append(codes, code)
	}

	g.logger.Infow("Traffic generated", "status_codes", codes)
	return codes, nil
}

// Batch builds one synthetic envelope. The batch id follows the
// yyyyMMddHHmm00<index> shape so runs are easy to find in the archive.
func (g *Generator) Batch(index int) models.BatchEnvelope {
	now := g.now()
	count := g.intN(g.maxEvents) + 1

	// Consecutive ids keep entity ids unique within the batch.
	first := 1000 + g.intN(9000)
	events := make([]models.UnitEvent, 0, count)
	for i := 0; i < count; i++ {
		suffix := PhoneSuffixes[g.intN(len(PhoneSuffixes))]
		entity := first + i
		events = append(events, models.UnitEvent{
			EntityID:    models.EntityID(fmt.Sprintf("%d", entity)),
			UserName:    fmt.Sprintf("user%d", entity),
			Email:       fmt.Sprintf("user%d@example.com", entity),
			Role:        "member",
			GivenName:   "Test",
			FamilyName:  fmt.Sprintf("User%d", entity),
			PhoneNumber: "555-01" + suffix,
			Timestamp:   models.NewTimestamp(now),
		})
	}

	return *models.NewBatchEnvelopeBuilder().
		WithID(fmt.Sprintf("%s00%d", now.Format("200601021504"), index)).
		WithType("UserUpdated").
		WithSource(constants.TrafficGeneratorSource).
		WithTime(now).
		WithEvents(events...).
		Build()
}

func (g *Generator) post(ctx context.Context, batch models.BatchEnvelope) (int, error) {
	body, err := json.Marshal(batch)
	if err != nil {
		return 0, fmt.Errorf("marshal batch %s: %w", batch.ID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("post batch %s: %w", batch.ID, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}

func (g *Generator) intN(n int) int {
	if n <= 0 {
		return 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rnd.IntN(n)
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

func orDefaultInt(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}
