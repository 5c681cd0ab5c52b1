package scraper

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/jakopako/brandrank/internal/browser"
	"github.com/jakopako/brandrank/internal/config"
	"github.com/jakopako/brandrank/internal/events"
	"github.com/jakopako/brandrank/internal/metrics"
)

const searchURL = "https://www.wildberries.ru/catalog/0/search.aspx?search=%D0%BC%D0%B0%D1%81%D0%BA%D0%B0"

// sleepRecorder replaces the engine's Sleep. It never blocks.
type sleepRecorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
	// cancelAt cancels the run on the n-th call if set.
	cancelAt int
	cancel   context.CancelFunc
}

func (r *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.sleeps = append(r.sleeps, d)
	n := len(r.sleeps)
	r.mu.Unlock()
	if r.cancel != nil && n == r.cancelAt {
		r.cancel()
	}
	return ctx.Err()
}

func (r *sleepRecorder) Sleeps() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.sleeps...)
}

type testEngine struct {
	*Engine
	launcher *browser.MockLauncher
	recorder *events.Recorder
	sleeper  *sleepRecorder
}

func newTestEngine(t *testing.T, pages map[string]*browser.MockPage) *testEngine {
	t.Helper()
	cfg := config.DefaultEngineConfig()
	cfg.Timing.LoadTimeout = 20 * time.Millisecond
	cfg.Timing.RetryDelay = 0

	launcher := browser.NewMockLauncher(pages)
	recorder := &events.Recorder{}
	sleeper := &sleepRecorder{}
	e := NewEngine(cfg, launcher, recorder, metrics.NewMetrics())
	e.Sleep = sleeper.Sleep
	e.Rand = rand.New(rand.NewPCG(1, 2))
	return &testEngine{Engine: e, launcher: launcher, recorder: recorder, sleeper: sleeper}
}

// session launches a session and opens u.
func (te *testEngine) session(t *testing.T, u string) *browser.MockSession {
	t.Helper()
	s, err := te.launcher.Launch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Navigate(context.Background(), u); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return s.(*browser.MockSession)
}

func messages(r *events.Recorder, k events.Kind) []string {
	var out []string
	for _, ev := range r.OfKind(k) {
		out = append(out, ev.(events.Message).Message)
	}
	return out
}

func cardHTML(brand, name, price string) string {
	priceHTML := ""
	if price != "" {
		priceHTML = fmt.Sprintf(`<div class="product-card__price price"><ins class="price__lower-price wallet-price">%s</ins></div>`, price)
	}
	return fmt.Sprintf(`<article class="product-card j-card-item"><div class="product-card__wrapper">`+
		`<h2 class="product-card__brand-wrap"><span class="product-card__brand">%s</span>`+
		`<span class="product-card__name"><span class="product-card__name-separator">/</span> %s</span></h2>%s</div></article>`,
		brand, name, priceHTML)
}

// gridCards lays out n cards four per row. brandAt decides the brand of the
// card with the given visual index. The cards are returned in reverse DOM
// order so that only sorting by position recovers the reading order.
func gridCards(n int, brandAt func(i int) string) []*browser.MockCard {
	cards := make([]*browser.MockCard, n)
	for i := range n {
		cards[n-1-i] = &browser.MockCard{
			X:    float64(i%4) * 310,
			Y:    float64(i/4)*460 + float64(i%2)*3,
			HTML: cardHTML(brandAt(i), fmt.Sprintf("Product %d", i), "1 234 ₽"),
		}
	}
	return cards
}
