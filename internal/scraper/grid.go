package scraper

import (
	"cmp"
	"context"
	"log/slog"
	"math"
	"slices"

	"github.com/jakopako/brandrank/internal/browser"
)

type positionedCard struct {
	card browser.Card
	x, y float64
}

// sortPositioned orders cards row by row, left to right. Cards whose
// vertical offsets round to the same multiple of tolerance share a row.
// Rounding is half to even, so y=100 and y=105 end up in row 10.
func sortPositioned(cards []positionedCard, tolerance float64) {
	row := func(y float64) float64 { return math.RoundToEven(y / tolerance) }
	slices.SortStableFunc(cards, func(a, b positionedCard) int {
		if c := cmp.Compare(row(a.y), row(b.y)); c != 0 {
			return c
		}
		return cmp.Compare(a.x, b.x)
	})
}

// sortGrid returns cards in visual reading order. Cards without a readable
// position are dropped.
func (e *Engine) sortGrid(ctx context.Context, cards []browser.Card) []browser.Card {
	positioned := make([]positionedCard, 0, len(cards))
	for i, c := range cards {
		x, y, err := c.Position(ctx)
		if err != nil {
			e.logger(ctx).Debug("dropping card without position", slog.Int("index", i), slog.String("err", err.Error()))
			continue
		}
		positioned = append(positioned, positionedCard{card: c, x: x, y: y})
	}
	sortPositioned(positioned, e.Config.RowTolerance)

	sorted := make([]browser.Card, len(positioned))
	for i, p := range positioned {
		sorted[i] = p.card
	}
	return sorted
}
