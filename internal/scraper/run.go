package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/jakopako/brandrank/internal/browser"
	"github.com/jakopako/brandrank/internal/config"
	"github.com/jakopako/brandrank/internal/events"
	"github.com/jakopako/brandrank/internal/log"
	"github.com/jakopako/brandrank/internal/types"
	"github.com/jakopako/brandrank/internal/utils"
)

// Result is what a completed run found.
type Result struct {
	Products      []types.Product
	Stats         types.RunStats
	CardsAnalyzed int
}

// runState is owned by a single call of Run.
type runState struct {
	cfg      config.RunConfig
	position int
	analyzed int
	found    []types.Product
	stats    types.RunStats
	brands   map[string]string
}

func newRunState(rc config.RunConfig) *runState {
	return &runState{cfg: rc, brands: map[string]string{}}
}

func (st *runState) seenBrands() []string {
	brands := make([]string, 0, len(st.brands))
	for _, b := range st.brands {
		brands = append(brands, b)
	}
	slices.Sort(brands)
	return brands
}

// Run ranks the listings of rc.TargetBrand on the pages rc.StartPage to
// rc.EndPage. Progress is reported through the engine's event sink. The
// browser session is closed before Run returns, whatever happened.
//
// If ctx is cancelled the run stops without a summary and ctx.Err() is
// returned.
func (e *Engine) Run(ctx context.Context, rc config.RunConfig) (res *Result, err error) {
	if err := rc.Validate(); err != nil {
		e.emit(events.Error("Invalid run configuration: %v", err))
		return nil, err
	}
	target := CleanText(rc.TargetBrand)
	e.emit(events.Config{
		TargetBrand:    target,
		SearchURL:      rc.SearchURL,
		StartPage:      rc.StartPage,
		EndPage:        rc.EndPage,
		PagesToProcess: rc.PagesToProcess(),
	})

	session, err := e.Launcher.Launch(ctx)
	if err != nil {
		e.emit(events.Critical("Critical error during execution: %v", err))
		return nil, err
	}
	defer func() {
		// teardown must not be skipped because the run was cancelled
		e.Sleep(context.WithoutCancel(ctx), e.Config.Timing.ShutdownGrace)
		if cerr := session.Close(); cerr != nil {
			e.logger(ctx).Debug("error while closing browser", slog.String("err", cerr.Error()))
		}
		e.emit(events.Info("Driver closed."))
	}()
	defer func() {
		if r := recover(); r != nil {
			e.emit(events.Critical("Critical error during execution: %v", r))
			res, err = nil, fmt.Errorf("run panicked: %v", r)
		}
	}()

	st := newRunState(rc)
	if err := e.processPages(ctx, session, st); err != nil {
		if ctx.Err() != nil {
			e.emit(events.Warning("Run cancelled, discarding results."))
			return nil, ctx.Err()
		}
		e.emit(events.Critical("Critical error during execution: %v", err))
		return nil, err
	}

	e.report(st)
	return &Result{Products: st.found, Stats: st.stats, CardsAnalyzed: st.analyzed}, nil
}

func (e *Engine) processPages(ctx context.Context, s browser.Session, st *runState) error {
	rc := st.cfg
	for page := rc.StartPage; page <= rc.EndPage; page++ {
		pageCtx := log.ContextWithLogger(ctx, log.LoggerFromContext(ctx).With(slog.Int("page", page)))
		first := page == rc.StartPage
		e.emit(events.PageStart{Page: page, EndPage: rc.EndPage, IsFirstPage: first})

		if err := e.open(pageCtx, s, PageURL(rc.SearchURL, page)); err != nil {
			return fmt.Errorf("failed to open page %d: %w", page, err)
		}

		cards, err := e.loadCards(pageCtx, s, first)
		if err != nil {
			return err
		}
		st.analyzed += len(cards)
		e.Metrics.AddCards(len(cards))
		e.emit(events.PageAnalysis{Page: page, ProductCount: len(cards)})

		foundOnPage := 0
		for i, card := range e.sortGrid(pageCtx, cards) {
			st.position++
			if e.processCard(pageCtx, st, card, page, i) {
				foundOnPage++
			}
			if (i+1)%e.Config.ProgressStep == 0 {
				e.emit(events.Progress{Processed: i + 1, Total: len(cards), Page: page})
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		st.stats.PagesProcessed++
		e.Metrics.IncPages()
		e.emit(events.PageComplete{Page: page, ProductsFound: foundOnPage, ProductsOnPage: len(cards)})

		if page == rc.EndPage {
			break
		}
		if !e.goToNextPage(pageCtx, s, page) {
			if err := ctx.Err(); err != nil {
				return err
			}
			e.emit(events.Error("Failed to navigate to next page. Ending pagination."))
			break
		}
		wait := e.uniform(e.Config.Timing.PageDelayMin, e.Config.Timing.PageDelayMax)
		e.emit(events.Info("Waiting %.1f seconds before next page...", wait.Seconds()))
		if err := e.Sleep(ctx, wait); err != nil {
			return err
		}
	}
	return nil
}

// open navigates to u unless the browser already shows it, which is the
// case after the pagination controller moved on to the page.
func (e *Engine) open(ctx context.Context, s browser.Session, u string) error {
	if current, err := s.CurrentURL(ctx); err == nil && current == u {
		e.logger(ctx).Debug("already on page", slog.String("url", u))
		return nil
	}
	return s.Navigate(ctx, u)
}

// processCard extracts a card and records it if it belongs to the target
// brand. It reports whether the card matched.
func (e *Engine) processCard(ctx context.Context, st *runState, card browser.Card, page, index int) (matched bool) {
	defer func() {
		if r := recover(); r != nil {
			e.Metrics.IncExtractionFailure("error")
			e.emit(events.Error("Error processing product %d on page %d: %v", index+1, page, r))
			matched = false
		}
	}()

	f := e.extract(ctx, card)
	if f.Brand == "" {
		return false
	}
	key := strings.ToLower(f.Brand)
	if _, ok := st.brands[key]; !ok {
		st.brands[key] = f.Brand
	}
	if !BrandMatches(f.Brand, st.cfg.TargetBrand) {
		return false
	}

	p := types.Product{
		GlobalPosition: st.position,
		Brand:          CleanText(f.Brand),
		Name:           CleanText(f.Name),
		PriceText:      CleanText(f.PriceText),
		PriceNumeric:   f.PriceNumeric,
		Page:           page,
	}
	st.found = append(st.found, p)
	st.stats.AddProduct(p)
	e.Metrics.IncProducts()
	e.emit(events.ProductFound{Product: p})
	return true
}

func (e *Engine) report(st *runState) {
	target := CleanText(st.cfg.TargetBrand)
	e.emit(events.Summary{
		TargetBrand:              target,
		PagesProcessed:           st.stats.PagesProcessed,
		TotalProductsAnalyzed:    st.analyzed,
		TargetBrandProductsFound: len(st.found),
	})

	if len(st.found) > 0 {
		e.emit(events.ResultsHeader{})
		for _, p := range st.found {
			e.emit(events.ResultItem{Product: p})
		}
		return
	}

	e.emit(events.NoResults{Message: fmt.Sprintf("No products found for brand '%s' across %d pages.", target, st.stats.PagesProcessed)})
	if best, dist, ok := utils.Closest(st.cfg.TargetBrand, st.seenBrands()); ok {
		e.emit(events.Info("Closest brand seen on the processed pages: '%s' (edit distance %d).", CleanText(best), dist))
	}
}

// IsSessionStartError reports whether err means the browser never started.
func IsSessionStartError(err error) bool {
	var startErr *browser.SessionStartError
	return errors.As(err, &startErr)
}
