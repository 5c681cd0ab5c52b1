package browser

import (
	"context"
	"errors"
	"sync"
)

// MockCard is a scripted product card.
type MockCard struct {
	X, Y float64
	HTML string
	// NoPosition makes Position fail.
	NoPosition bool
	// StaleReads is the number of OuterHTML calls that fail with ErrStale
	// before the card can be read.
	StaleReads int
	// Err is returned by OuterHTML once the stale reads are used up.
	Err error

	mu    sync.Mutex
	reads int
}

func (c *MockCard) Position(ctx context.Context) (float64, float64, error) {
	if c.NoPosition {
		return 0, 0, errors.New("element has no layout")
	}
	return c.X, c.Y, nil
}

func (c *MockCard) OuterHTML(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reads++
	if c.reads <= c.StaleReads {
		return "", ErrStale
	}
	if c.Err != nil {
		return "", c.Err
	}
	return c.HTML, nil
}

// Reads returns the number of OuterHTML calls so far.
func (c *MockCard) Reads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads
}

// MockPage is a scripted results page.
type MockPage struct {
	Cards []*MockCard
	// Counts, if set, overrides the number of cards reported by consecutive
	// Cards calls after a navigation. The last value repeats once the
	// sequence is exhausted. Cards beyond len(Cards) are blank.
	Counts []int
	// Next is the url the next page control leads to. Without it the page
	// has no next control.
	Next         string
	NextDisabled bool
	// Empty pages never satisfy WaitForCards.
	Empty bool
}

// MockLauncher serves MockPages by url.
type MockLauncher struct {
	Pages    map[string]*MockPage
	Viewport int
	StartErr error

	mu       sync.Mutex
	sessions []*MockSession
}

func NewMockLauncher(pages map[string]*MockPage) *MockLauncher {
	return &MockLauncher{
		Pages:    pages,
		Viewport: 900,
	}
}

func (l *MockLauncher) Launch(ctx context.Context) (Session, error) {
	if l.StartErr != nil {
		return nil, &SessionStartError{Err: l.StartErr}
	}
	s := &MockSession{launcher: l}
	l.mu.Lock()
	l.sessions = append(l.sessions, s)
	l.mu.Unlock()
	return s, nil
}

// Sessions returns all sessions launched so far.
func (l *MockLauncher) Sessions() []*MockSession {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*MockSession(nil), l.sessions...)
}

// MockSession records what the engine did with it.
type MockSession struct {
	launcher *MockLauncher

	mu          sync.Mutex
	url         string
	offset      int
	cardCalls   int
	Navigations []string
	Clicks      int
	Scrolls     []int
	CloseCalls  int
}

func (s *MockSession) page() (*MockPage, bool) {
	p, ok := s.launcher.Pages[s.url]
	return p, ok
}

func (s *MockSession) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.launcher.Pages[url]; !ok {
		return errors.New("page not found")
	}
	s.Navigations = append(s.Navigations, url)
	s.goTo(url)
	return nil
}

func (s *MockSession) goTo(url string) {
	s.url = url
	s.offset = 0
	s.cardCalls = 0
}

func (s *MockSession) CurrentURL(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url, nil
}

func (s *MockSession) WaitForCards(ctx context.Context, visible bool) error {
	s.mu.Lock()
	p, ok := s.page()
	s.mu.Unlock()
	if ok && !p.Empty && (len(p.Cards) > 0 || len(p.Counts) > 0) {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (s *MockSession) Cards(ctx context.Context) ([]Card, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.page()
	if !ok {
		return nil, nil
	}
	n := len(p.Cards)
	if len(p.Counts) > 0 {
		i := min(s.cardCalls, len(p.Counts)-1)
		n = p.Counts[i]
	}
	s.cardCalls++
	cards := make([]Card, n)
	for i := range n {
		if i < len(p.Cards) {
			cards[i] = p.Cards[i]
		} else {
			cards[i] = &MockCard{}
		}
	}
	return cards, nil
}

func (s *MockSession) ScrollMetrics(ctx context.Context) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offset, s.launcher.Viewport, nil
}

func (s *MockSession) ScrollTo(ctx context.Context, y int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offset = y
	s.Scrolls = append(s.Scrolls, y)
	return nil
}

func (s *MockSession) ClickNext(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.page()
	if !ok || p.Next == "" {
		return ErrNoNextControl
	}
	if p.NextDisabled {
		return ErrNextDisabled
	}
	if _, ok := s.launcher.Pages[p.Next]; !ok {
		return errors.New("next page not found")
	}
	s.Clicks++
	s.goTo(p.Next)
	return nil
}

func (s *MockSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCalls++
	return nil
}
