package scraper

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/jakopako/brandrank/internal/browser"
	"github.com/jakopako/brandrank/internal/config"
	"github.com/jakopako/brandrank/internal/events"
)

// nextStability updates the stability counter after an iteration. The
// counter grows while the card count stays the same or once the page is
// saturated. Past the fast track iteration it jumps straight to the exit
// threshold.
func nextStability(cfg config.ScrollConfig, previous, current, stable, iteration int) int {
	switch {
	case current == previous:
		return stable + 1
	case current >= cfg.SaturationCount:
		return stable + 1
	case iteration > cfg.FastTrackAfter:
		return max(3, cfg.StableChecks)
	default:
		return 0
	}
}

// pauseFor returns the pause before scroll iteration i. The first iterations
// wait longer to let lazily loaded content settle.
func (e *Engine) pauseFor(i int) time.Duration {
	sc := e.Config.Scroll
	if i < sc.WarmupScrolls {
		return e.uniform(sc.PauseMin*3/2, sc.PauseMax*3/2)
	}
	return e.uniform(sc.PauseMin, sc.PauseMax)
}

// scrollTarget returns where to scroll to in iteration i. Every third
// iteration moves exactly one viewport, the others a random distance
// between the scroll increment and one viewport.
func (e *Engine) scrollTarget(i, offset, viewport int) int {
	inc := e.Config.Scroll.ScrollIncrement
	if i%3 == 0 || viewport <= inc {
		return offset + viewport
	}
	return offset + inc + e.Rand.IntN(viewport-inc+1)
}

// scroll pauses and scrolls once. It returns the pause it took.
func (e *Engine) scroll(ctx context.Context, s browser.Session, i int) (time.Duration, error) {
	pause := e.pauseFor(i)
	if err := e.Sleep(ctx, pause); err != nil {
		return pause, err
	}
	offset, viewport, err := s.ScrollMetrics(ctx)
	if err != nil {
		return pause, err
	}
	e.Metrics.IncScrolls()
	return pause, s.ScrollTo(ctx, e.scrollTarget(i, offset, viewport))
}

// loadCards scrolls the current results page until the number of product
// cards stops growing and returns the cards in DOM order. The only error it
// returns is the one of a done ctx, everything else is reported and worked
// around.
func (e *Engine) loadCards(ctx context.Context, s browser.Session, firstPage bool) ([]browser.Card, error) {
	logger := e.logger(ctx)
	sc := e.Config.Scroll

	if firstPage {
		if err := e.Sleep(ctx, e.Config.Timing.InitialLoadWait); err != nil {
			return nil, err
		}
	}

	if err := e.waitForCards(ctx, s, true); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.emit(events.Warning("No main products found within timeout period. Continuing anyway."))
	}
	e.emit(events.Info("Page loaded. Scrolling to load all main products..."))

	last := 0
	if cards, err := s.Cards(ctx); err == nil {
		last = len(cards)
	} else {
		logger.Debug("failed to count cards before scrolling", slog.String("err", err.Error()))
	}

	stable := 0
	for i := range sc.MaxScrolls {
		pause, err := e.scroll(ctx, s, i)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err != nil {
			e.emit(events.Error("Error during scroll %d: %v", i+1, err))
			continue
		}
		if err := e.Sleep(ctx, sc.Settle); err != nil {
			return nil, err
		}
		cards, err := s.Cards(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			e.emit(events.Error("Error during scroll %d: %v", i+1, err))
			continue
		}
		count := len(cards)
		e.emit(events.ScrollProgress{
			Scroll:       i + 1,
			TotalScrolls: sc.MaxScrolls,
			ProductCount: count,
			PauseTime:    math.Round(pause.Seconds()*10) / 10,
		})

		stable = nextStability(sc, last, count, stable, i)
		if stable >= sc.StableChecks {
			e.emit(events.Info("Loading stable for %d checks. Stopping scroll.", stable))
			break
		}
		last = count
	}

	if err := e.Sleep(ctx, e.Config.Timing.FinalSettle); err != nil {
		return nil, err
	}
	return e.finalCards(ctx, s)
}

func (e *Engine) finalCards(ctx context.Context, s browser.Session) ([]browser.Card, error) {
	if err := e.waitForCards(ctx, s, false); err == nil {
		cards, err := s.Cards(ctx)
		if err == nil {
			e.emit(events.Info("Final main product count: %d", len(cards)))
			return cards, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.logger(ctx).Debug("failed to query cards after final wait", slog.String("err", err.Error()))
	} else if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	e.emit(events.Warning("Could not locate main products after final wait. Returning what we can get."))
	cards, err := s.Cards(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.logger(ctx).Debug("best effort card query failed", slog.String("err", err.Error()))
		return nil, nil
	}
	e.emit(events.Info("Got %d products despite timeout", len(cards)))
	return cards, nil
}
