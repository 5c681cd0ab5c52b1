// Package scraper ranks the listings of a brand in a paginated, infinitely
// scrolling search results feed.
package scraper

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/jakopako/brandrank/internal/browser"
	"github.com/jakopako/brandrank/internal/config"
	"github.com/jakopako/brandrank/internal/events"
	"github.com/jakopako/brandrank/internal/log"
	"github.com/jakopako/brandrank/internal/metrics"
)

// Engine drives a single browser session through the configured pages. An
// Engine can be used for several runs but not for concurrent ones.
type Engine struct {
	Config   *config.EngineConfig
	Launcher browser.Launcher
	Events   events.Sink
	Metrics  *metrics.Metrics

	// Sleep blocks for d or until ctx is done.
	Sleep func(ctx context.Context, d time.Duration) error
	// Rand provides the jitter of pauses and scroll distances.
	Rand *rand.Rand
}

func NewEngine(cfg *config.EngineConfig, launcher browser.Launcher, sink events.Sink, m *metrics.Metrics) *Engine {
	return &Engine{
		Config:   cfg,
		Launcher: launcher,
		Events:   sink,
		Metrics:  m,
		Sleep:    sleep,
		Rand:     rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), rand.Uint64())),
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// uniform returns a random duration in [lo, hi].
func (e *Engine) uniform(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(e.Rand.Float64()*float64(hi-lo))
}

func (e *Engine) emit(ev events.Event) {
	if e.Events != nil {
		e.Events.Emit(ev)
	}
}

func (e *Engine) logger(ctx context.Context) *slog.Logger {
	return log.LoggerFromContext(ctx).With(slog.String("component", "engine"))
}

// waitForCards waits up to the load timeout for product cards.
func (e *Engine) waitForCards(ctx context.Context, s browser.Session, visible bool) error {
	waitCtx, cancel := context.WithTimeout(ctx, e.Config.Timing.LoadTimeout)
	defer cancel()
	return s.WaitForCards(waitCtx, visible)
}
