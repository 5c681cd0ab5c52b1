package scraper

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/jakopako/brandrank/internal/browser"
	"github.com/jakopako/brandrank/internal/events"
)

var pageParam = regexp.MustCompile(`([?&])page=\d*`)

// WithPage returns u with its page query parameter set to page. The rest of
// u is kept byte for byte, search urls are already encoded.
func WithPage(u string, page int) string {
	if pageParam.MatchString(u) {
		return pageParam.ReplaceAllString(u, fmt.Sprintf("${1}page=%d", page))
	}
	sep := "?"
	if strings.Contains(u, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%spage=%d", u, sep, page)
}

// PageURL returns the url of results page page. The first page is the search
// url itself.
func PageURL(searchURL string, page int) string {
	if page <= 1 {
		return searchURL
	}
	return WithPage(searchURL, page)
}

// awaitResults waits for the cards of a freshly requested page and lets the
// page settle.
func (e *Engine) awaitResults(ctx context.Context, s browser.Session) error {
	if err := e.waitForCards(ctx, s, false); err != nil {
		return fmt.Errorf("waiting for products: %w", err)
	}
	return e.Sleep(ctx, e.Config.Timing.NavigationSettle)
}

func (e *Engine) clickNext(ctx context.Context, s browser.Session, next int) error {
	if err := s.ClickNext(ctx); err != nil {
		return err
	}
	e.emit(events.Navigation{Message: fmt.Sprintf("Navigating to page %d...", next), Page: next})
	return e.awaitResults(ctx, s)
}

func (e *Engine) navigateByURL(ctx context.Context, s browser.Session, next int) error {
	current, err := s.CurrentURL(ctx)
	if err != nil {
		return fmt.Errorf("reading current url: %w", err)
	}
	if err := s.Navigate(ctx, WithPage(current, next)); err != nil {
		return err
	}
	e.emit(events.Navigation{Message: fmt.Sprintf("Navigating to page %d via URL...", next), Page: next})
	return e.awaitResults(ctx, s)
}

// goToNextPage advances from page current to the next one, first through
// the next page control and then by rewriting the url. It reports false if
// both failed.
func (e *Engine) goToNextPage(ctx context.Context, s browser.Session, current int) bool {
	next := current + 1

	err := e.clickNext(ctx, s, next)
	e.Metrics.IncNavigation("click", err == nil)
	if err == nil {
		return true
	}
	if ctx.Err() != nil {
		return false
	}
	e.emit(events.Warning("Could not navigate to next page using button: %v", err))

	err = e.navigateByURL(ctx, s, next)
	e.Metrics.IncNavigation("url", err == nil)
	if err == nil {
		return true
	}
	if ctx.Err() != nil {
		return false
	}
	e.emit(events.Error("Could not navigate to next page via URL: %v", err))
	return false
}
