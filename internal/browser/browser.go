// Package browser abstracts the automated browser a run is driving. The
// chromedp backed implementation is used in production, the mock one in tests.
package browser

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrStale is returned when a card handle no longer refers to a node of
	// the current document. The handle re-resolves itself before returning
	// it, so the operation can be retried on the same card.
	ErrStale = errors.New("stale element reference")

	ErrNoNextControl = errors.New("next page control not found")
	ErrNextDisabled  = errors.New("next page control is disabled")
)

// SessionStartError is returned by a Launcher if the browser could not be started.
type SessionStartError struct {
	Err error
}

func (e *SessionStartError) Error() string {
	return fmt.Sprintf("failed to start browser session: %v", e.Err)
}

func (e *SessionStartError) Unwrap() error {
	return e.Err
}

// A Launcher starts browser sessions. Launching is never retried.
type Launcher interface {
	Launch(ctx context.Context) (Session, error)
}

// A Session is a single browser tab. All blocking methods return when ctx is
// done.
type Session interface {
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	// WaitForCards blocks until at least one product card is present and,
	// if visible is set, rendered.
	WaitForCards(ctx context.Context, visible bool) error
	// Cards returns handles to the product cards currently in the document
	// in DOM order.
	Cards(ctx context.Context) ([]Card, error)
	// ScrollMetrics returns the vertical scroll offset and the viewport height.
	ScrollMetrics(ctx context.Context) (offset, viewport int, err error)
	ScrollTo(ctx context.Context, y int) error
	// ClickNext clicks the next page control. It returns ErrNoNextControl or
	// ErrNextDisabled if there is nothing to click.
	ClickNext(ctx context.Context) error
	// Close releases the session. It is safe to call more than once and on a
	// session that is already unusable.
	Close() error
}

// A Card is a transient handle to a product card. It is only valid until
// the next navigation.
type Card interface {
	// Position returns the card's page coordinates.
	Position(ctx context.Context) (x, y float64, err error)
	OuterHTML(ctx context.Context) (string, error)
}
