package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cenkalti/backoff/v4"
	"github.com/jakopako/brandrank/internal/browser"
	"github.com/jakopako/brandrank/internal/config"
	"github.com/jakopako/brandrank/internal/events"
)

var errMissingField = errors.New("required field missing")

// CardFields are the values read from a single product card.
type CardFields struct {
	Brand        string
	Name         string
	PriceText    string
	PriceNumeric *int
}

// RetryPolicy bounds how often an operation failing with browser.ErrStale
// is repeated.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// Do runs op until it succeeds, fails with an error other than
// browser.ErrStale or the attempts are used up. onRetry is called before
// every repetition.
func (p RetryPolicy) Do(ctx context.Context, op func() error, onRetry func(err error)) error {
	attempts := max(p.MaxAttempts, 1)
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Delay), uint64(attempts-1)), ctx)
	return backoff.RetryNotify(func() error {
		err := op()
		if err != nil && !errors.Is(err, browser.ErrStale) {
			return backoff.Permanent(err)
		}
		return err
	}, b, func(err error, _ time.Duration) {
		if onRetry != nil {
			onRetry(err)
		}
	})
}

var textReplacer = strings.NewReplacer(
	"✓", "[CHECK]",
	"₽", "RUB",
)

// CleanText replaces glyphs the consumers of the event stream cannot be
// expected to render.
func CleanText(s string) string {
	return textReplacer.Replace(s)
}

// collapseSpace trims s and replaces inner whitespace runs, including non
// breaking spaces, with a single space.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ParsePrice concatenates all digits of s. It returns nil if there are none
// or the result does not fit into an int.
func ParsePrice(s string) *int {
	var digits strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	n, err := strconv.Atoi(digits.String())
	if err != nil {
		return nil
	}
	return &n
}

// BrandMatches compares brands ignoring case and surrounding whitespace.
func BrandMatches(brand, target string) bool {
	b := strings.TrimSpace(brand)
	return b != "" && strings.EqualFold(b, strings.TrimSpace(target))
}

// parseCard reads the fields from the outer html of a card. A missing price
// is not an error.
func parseCard(html string, sel config.Selectors) (CardFields, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return CardFields{}, err
	}
	brand := doc.Find(sel.Brand).First()
	if brand.Length() == 0 {
		return CardFields{}, fmt.Errorf("%w: %s", errMissingField, sel.Brand)
	}
	name := doc.Find(sel.Name).First()
	if name.Length() == 0 {
		return CardFields{}, fmt.Errorf("%w: %s", errMissingField, sel.Name)
	}

	f := CardFields{
		Brand:     collapseSpace(brand.Text()),
		Name:      collapseSpace(name.Text()),
		PriceText: "N/A",
	}
	if sel.Price != "" {
		if price := doc.Find(sel.Price).First(); price.Length() > 0 {
			f.PriceText = collapseSpace(price.Text())
		}
	}
	f.PriceNumeric = ParsePrice(f.PriceText)
	return f, nil
}

// extract reads the fields of card. Failures are reported and result in
// empty fields, they never end the run.
func (e *Engine) extract(ctx context.Context, card browser.Card) CardFields {
	logger := e.logger(ctx)
	policy := RetryPolicy{MaxAttempts: e.Config.Timing.RetryAttempts, Delay: e.Config.Timing.RetryDelay}

	var html string
	err := policy.Do(ctx, func() error {
		var err error
		html, err = card.OuterHTML(ctx)
		return err
	}, func(err error) {
		e.Metrics.IncRetries()
		logger.Debug("card went stale, retrying", slog.String("err", err.Error()))
	})
	if err != nil {
		switch {
		case ctx.Err() != nil:
		case errors.Is(err, browser.ErrStale):
			e.Metrics.IncExtractionFailure("stale")
			logger.Debug("giving up on stale card", slog.String("err", err.Error()))
		default:
			e.Metrics.IncExtractionFailure("error")
			e.emit(events.Error("Unexpected error parsing product: %v", err))
		}
		return CardFields{}
	}

	f, err := parseCard(html, e.Config.Selectors)
	if err != nil {
		if errors.Is(err, errMissingField) {
			e.Metrics.IncExtractionFailure("missing_field")
			logger.Debug("skipping card", slog.String("err", err.Error()))
		} else {
			e.Metrics.IncExtractionFailure("error")
			e.emit(events.Error("Unexpected error parsing product: %v", err))
		}
		return CardFields{}
	}
	return f
}
