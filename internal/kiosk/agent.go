// Package kiosk drives the unattended feedback terminal: it owns the timeline on which
// queue flushes and summary refreshes happen.
package kiosk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/satisfaction/internal/analytics"
	"github.com/MarcoPoloResearchLab/satisfaction/internal/events"
	"github.com/MarcoPoloResearchLab/satisfaction/internal/feedback"
	"go.uber.org/zap"
)

var (
	errMissingFeedback     = errors.New("kiosk: feedback service is required")
	errMissingConnectivity = errors.New("kiosk: connectivity monitor is required")
)

// Flusher drains the pending queue.
type Flusher interface {
	Flush(ctx context.Context) (feedback.FlushReport, error)
}

// Connectivity is the online flag with transition notifications.
type Connectivity interface {
	Online() bool
	OnChange(handler func(online bool)) func()
}

// SummarySource produces the public summary shown under the buttons.
type SummarySource interface {
	PublicSummary(ctx context.Context) (analytics.Summary, error)
}

type Publisher interface {
	Publish(topic events.Topic, payload any)
}

type AgentConfig struct {
	Feedback        Flusher
	Connectivity    Connectivity
	Summaries       SummarySource
	Publisher       Publisher
	FlushInterval   time.Duration
	SummaryInterval time.Duration
	Logger          *zap.Logger
}

// Agent funnels every background trigger into one goroutine. Reconnects, the flush
// ticker and manual sync requests all end up in the same Flush call.
type Agent struct {
	feedback        Flusher
	connectivity    Connectivity
	summaries       SummarySource
	publisher       Publisher
	flushInterval   time.Duration
	summaryInterval time.Duration
	logger          *zap.Logger

	reconnected  chan struct{}
	syncRequests chan chan syncResult

	mu         sync.RWMutex
	summary    analytics.Summary
	hasSummary bool
}

type syncResult struct {
	report feedback.FlushReport
	err    error
}

func NewAgent(cfg AgentConfig) (*Agent, error) {
	if cfg.Feedback == nil {
		return nil, errMissingFeedback
	}
	if cfg.Connectivity == nil {
		return nil, errMissingConnectivity
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Agent{
		feedback:        cfg.Feedback,
		connectivity:    cfg.Connectivity,
		summaries:       cfg.Summaries,
		publisher:       cfg.Publisher,
		flushInterval:   cfg.FlushInterval,
		summaryInterval: cfg.SummaryInterval,
		logger:          logger,
		reconnected:     make(chan struct{}, 1),
		syncRequests:    make(chan chan syncResult),
	}, nil
}

// Run owns the timeline until ctx ends. It refreshes the summary and drains the queue
// once at start when online.
func (a *Agent) Run(ctx context.Context) error {
	unsubscribe := a.connectivity.OnChange(func(online bool) {
		if !online {
			return
		}
		select {
		case a.reconnected <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	a.refreshSummary(ctx)
	if a.connectivity.Online() {
		a.flush(ctx, "startup")
	}

	flushTicks := tickerChannel(a.flushInterval)
	summaryTicks := tickerChannel(a.summaryInterval)
	defer flushTicks.stop()
	defer summaryTicks.stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-a.reconnected:
			a.flush(ctx, "reconnected")
			a.refreshSummary(ctx)
		case <-flushTicks.c:
			a.flush(ctx, "interval")
		case <-summaryTicks.c:
			a.refreshSummary(ctx)
		case reply := <-a.syncRequests:
			report, err := a.flush(ctx, "manual")
			reply <- syncResult{report: report, err: err}
		}
	}
}

// Sync asks the running loop for an immediate flush and waits for its report.
func (a *Agent) Sync(ctx context.Context) (feedback.FlushReport, error) {
	reply := make(chan syncResult, 1)
	select {
	case a.syncRequests <- reply:
	case <-ctx.Done():
		return feedback.FlushReport{}, ctx.Err()
	}
	select {
	case result := <-reply:
		return result.report, result.err
	case <-ctx.Done():
		return feedback.FlushReport{}, ctx.Err()
	}
}

// Summary returns the last successfully fetched public summary.
func (a *Agent) Summary() (analytics.Summary, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.summary, a.hasSummary
}

func (a *Agent) flush(ctx context.Context, trigger string) (feedback.FlushReport, error) {
	report, err := a.feedback.Flush(ctx)
	if err != nil {
		a.logger.Error("pending flush failed", zap.String("trigger", trigger), zap.Error(err))
		return report, err
	}
	if report.Attempted > 0 {
		a.logger.Info("pending flush finished",
			zap.String("trigger", trigger),
			zap.Int("sent", report.Sent),
			zap.Int("remaining", report.Remaining),
			zap.Bool("denied", report.Denied))
	}
	return report, nil
}

// refreshSummary keeps the previous snapshot when the fetch fails.
func (a *Agent) refreshSummary(ctx context.Context) {
	if a.summaries == nil {
		return
	}
	summary, err := a.summaries.PublicSummary(ctx)
	if err != nil {
		a.logger.Debug("summary refresh failed", zap.Error(err))
		return
	}
	a.mu.Lock()
	a.summary = summary
	a.hasSummary = true
	a.mu.Unlock()
	if a.publisher != nil {
		a.publisher.Publish(events.TopicSummary, summary)
	}
}

// StatusLabel renders the connectivity line shown in the kiosk corner.
func StatusLabel(online bool, pending int) string {
	switch {
	case online && pending > 0:
		return fmt.Sprintf("Online • %d pendentes", pending)
	case online:
		return "Online"
	case pending > 0:
		return fmt.Sprintf("Offline • %d em fila", pending)
	default:
		return "Offline"
	}
}

type ticks struct {
	c      <-chan time.Time
	ticker *time.Ticker
}

// tickerChannel returns a channel that never fires for a non-positive interval.
func tickerChannel(interval time.Duration) ticks {
	if interval <= 0 {
		return ticks{}
	}
	ticker := time.NewTicker(interval)
	return ticks{c: ticker.C, ticker: ticker}
}

func (t ticks) stop() {
	if t.ticker != nil {
		t.ticker.Stop()
	}
}
