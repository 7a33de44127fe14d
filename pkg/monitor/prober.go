package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/dukex/conduit/pkg/connector"
	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/protocol"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
)

const maxConcurrentProbes = 8

// IntegrationLister lists the integrations the prober should call.
type IntegrationLister interface {
	ListActive(ctx context.Context) ([]*models.Integration, error)
}

// Prober calls every active integration on a schedule and records the
// outcome as a probe sample. Only GET and HEAD integrations are probed so a
// probe never causes a side effect.
type Prober struct {
	logger       *slog.Logger
	client       *connector.Client
	integrations IntegrationLister
	recorder     protocol.SampleRecorder
	interval     time.Duration

	mu   sync.Mutex
	cron *cron.Cron
}

func NewProber(
	logger *slog.Logger,
	client *connector.Client,
	integrations IntegrationLister,
	recorder protocol.SampleRecorder,
	interval time.Duration,
) *Prober {
	return &Prober{
		logger:       logger.With("module", "prober"),
		client:       client,
		integrations: integrations,
		recorder:     recorder,
		interval:     interval,
	}
}

// Start schedules ProbeAll every interval.
func (p *Prober) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cron != nil {
		return nil
	}

	if p.interval <= 0 {
		return fmt.Errorf("invalid probe interval %s", p.interval)
	}

	p.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	_, err := p.cron.AddFunc("@every "+p.interval.String(), func() {
		probed := p.ProbeAll(context.WithoutCancel(ctx))
		p.logger.Debug("Probe round finished", "probed", probed)
	})
	if err != nil {
		p.cron = nil

		return fmt.Errorf("failed to schedule probes: %w", err)
	}

	p.cron.Start()
	p.logger.InfoContext(ctx, "Prober started", "interval", p.interval)

	return nil
}

// Stop unschedules probes and waits for a running round to finish.
func (p *Prober) Stop(ctx context.Context) error {
	p.mu.Lock()
	c := p.cron
	p.cron = nil
	p.mu.Unlock()

	if c == nil {
		return nil
	}

	select {
	case <-c.Stop().Done():
		p.logger.Info("Prober stopped")

		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ProbeAll probes every eligible active integration once and returns how
// many were probed.
func (p *Prober) ProbeAll(ctx context.Context) int {
	integrations, err := p.integrations.ListActive(ctx)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to list integrations to probe", "error", err)

		return 0
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentProbes)

	probed := 0

	for _, integration := range integrations {
		if !probeable(integration) {
			continue
		}

		probed++

		g.Go(func() error {
			p.Probe(ctx, integration)

			return nil
		})
	}

	_ = g.Wait()

	return probed
}

// Probe performs a single call without retries and records the sample.
func (p *Prober) Probe(ctx context.Context, integration *models.Integration) models.Sample {
	target := *integration
	target.Retry = models.RetryPolicy{}

	result, err := p.client.Do(ctx, connector.Request{Integration: &target})
	sample := connector.Sample(integration.ID, models.SampleSourceProbe, result, err)

	var statusErr *connector.StatusError
	if err != nil && !errors.As(err, &statusErr) {
		p.logger.DebugContext(ctx, "Probe failed", "integration_id", integration.ID, "error", err)
	}

	p.recorder.Record(sample)

	return sample
}

func probeable(integration *models.Integration) bool {
	if integration.Status != models.IntegrationStatusActive {
		return false
	}

	return integration.Method == http.MethodGet || integration.Method == http.MethodHead
}
