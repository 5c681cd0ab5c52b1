package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"

	"github.com/chromedp/cdproto"
	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/go-rod/stealth"
	"github.com/jakopako/brandrank/internal/config"
	"github.com/jakopako/brandrank/internal/log"
)

// hideWebdriver removes the flag sites use to tell automated browsers apart.
const hideWebdriver = `Object.defineProperty(navigator, 'webdriver', {get: () => undefined})`

const positionJS = `function() {
	const r = this.getBoundingClientRect();
	return [r.left + window.scrollX, r.top + window.scrollY];
}`

// ChromeLauncher starts chrome through chromedp.
type ChromeLauncher struct {
	browser   config.BrowserConfig
	selectors config.Selectors
}

func NewChromeLauncher(bc config.BrowserConfig, sel config.Selectors) *ChromeLauncher {
	return &ChromeLauncher{browser: bc, selectors: sel}
}

func (l *ChromeLauncher) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.browser.Headless),
		// the default options set --enable-automation, which shows up in navigator.webdriver
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("start-maximized", true),
		chromedp.WindowSize(l.browser.WindowWidth, l.browser.WindowHeight),
	)
	if l.browser.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(l.browser.UserAgent))
	}
	if l.browser.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.browser.ExecPath))
	}
	return opts
}

func (l *ChromeLauncher) Launch(ctx context.Context) (Session, error) {
	logger := log.LoggerFromContext(ctx).With(slog.String("component", "browser"))

	// the browser lives until Close is called, not until ctx is done
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.WithoutCancel(ctx), l.allocatorOptions()...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	s := &chromeSession{
		tabCtx:      tabCtx,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
		selectors:   l.selectors,
		logger:      logger,
	}

	actions := []chromedp.Action{
		chromedp.ActionFunc(func(ctx context.Context) error {
			if _, err := page.AddScriptToEvaluateOnNewDocument(hideWebdriver).Do(ctx); err != nil {
				return fmt.Errorf("failed to install webdriver override: %w", err)
			}
			return nil
		}),
	}
	if l.browser.Stealth {
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			if _, err := page.AddScriptToEvaluateOnNewDocument(stealth.JS).Do(ctx); err != nil {
				return fmt.Errorf("failed to install stealth script: %w", err)
			}
			return nil
		}))
	}
	if log.Debug {
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			protocolVersion, product, revision, userAgent, jsVersion, err := cdpbrowser.GetVersion().Do(ctx)
			if err != nil {
				logger.Warn("failed to get chrome version", slog.String("err", err.Error()))
				return nil
			}
			logger.Debug(fmt.Sprintf("chrome version: protocolVersion=%s, product=%s, revision=%s, userAgent=%s, jsVersion=%s",
				protocolVersion, product, revision, userAgent, jsVersion))
			return nil
		}))
	}

	// the first Run allocates the browser and the tab, both live as long as
	// the context it is called with
	if err := chromedp.Run(tabCtx); err != nil {
		s.Close()
		return nil, &SessionStartError{Err: err}
	}
	if err := s.run(ctx, actions...); err != nil {
		s.Close()
		return nil, &SessionStartError{Err: err}
	}
	logger.Debug("browser session started", slog.Bool("headless", l.browser.Headless), slog.Bool("stealth", l.browser.Stealth))
	return s, nil
}

type chromeSession struct {
	tabCtx      context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
	selectors   config.Selectors
	logger      *slog.Logger
	closeOnce   sync.Once
}

// run executes actions in the tab while honouring the cancellation and
// deadline of ctx.
func (s *chromeSession) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.tabCtx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return context.DeadlineExceeded
	}
	return err
}

func (s *chromeSession) Navigate(ctx context.Context, url string) error {
	s.logger.Debug("navigating", slog.String("url", url))
	return s.run(ctx, chromedp.Navigate(url))
}

func (s *chromeSession) CurrentURL(ctx context.Context) (string, error) {
	var u string
	err := s.run(ctx, chromedp.Location(&u))
	return u, err
}

func (s *chromeSession) WaitForCards(ctx context.Context, visible bool) error {
	actions := []chromedp.Action{chromedp.WaitReady(s.selectors.Card, chromedp.ByQuery)}
	if visible {
		actions = append(actions, chromedp.WaitVisible(s.selectors.Card, chromedp.ByQuery))
	}
	return s.run(ctx, actions...)
}

func (s *chromeSession) queryCards(ctx context.Context) ([]*cdp.Node, error) {
	var nodes []*cdp.Node
	if err := s.run(ctx, chromedp.Nodes(s.selectors.Card, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0))); err != nil {
		return nil, err
	}
	return nodes, nil
}

func (s *chromeSession) Cards(ctx context.Context) ([]Card, error) {
	nodes, err := s.queryCards(ctx)
	if err != nil {
		return nil, err
	}
	cards := make([]Card, len(nodes))
	for i, n := range nodes {
		cards[i] = &chromeCard{s: s, nodeID: n.NodeID, index: i}
	}
	return cards, nil
}

func (s *chromeSession) ScrollMetrics(ctx context.Context) (int, int, error) {
	var m []float64
	if err := s.run(ctx, chromedp.Evaluate(`[window.pageYOffset, window.innerHeight]`, &m)); err != nil {
		return 0, 0, err
	}
	if len(m) != 2 {
		return 0, 0, fmt.Errorf("unexpected scroll metrics %v", m)
	}
	return int(math.Round(m[0])), int(math.Round(m[1])), nil
}

func (s *chromeSession) ScrollTo(ctx context.Context, y int) error {
	return s.run(ctx, chromedp.Evaluate(fmt.Sprintf("window.scrollTo(0, %d)", y), nil))
}

func (s *chromeSession) ClickNext(ctx context.Context) error {
	var nodes []*cdp.Node
	if err := s.run(ctx, chromedp.Nodes(s.selectors.NextPage, &nodes, chromedp.ByQuery, chromedp.AtLeast(0))); err != nil {
		return err
	}
	if len(nodes) == 0 {
		return ErrNoNextControl
	}
	next := nodes[0]
	if isDisabled(next) {
		return ErrNextDisabled
	}
	s.logger.Debug(fmt.Sprintf("clicking on node with selector: %s", s.selectors.NextPage))
	return s.run(ctx, chromedp.MouseClickNode(next))
}

func isDisabled(n *cdp.Node) bool {
	if _, ok := n.Attribute("disabled"); ok {
		return true
	}
	if n.AttributeValue("aria-disabled") == "true" {
		return true
	}
	for _, c := range strings.Fields(n.AttributeValue("class")) {
		if strings.Contains(c, "disabled") {
			return true
		}
	}
	return false
}

func (s *chromeSession) Close() error {
	s.closeOnce.Do(func() {
		s.cancelTab()
		s.cancelAlloc()
		s.logger.Debug("browser session closed")
	})
	return nil
}

type chromeCard struct {
	s      *chromeSession
	nodeID cdp.NodeID
	index  int
}

// refresh points the handle at the card with the same index in the current
// document.
func (c *chromeCard) refresh(ctx context.Context) error {
	nodes, err := c.s.queryCards(ctx)
	if err != nil {
		return err
	}
	if c.index >= len(nodes) {
		return fmt.Errorf("card %d no longer exists, only %d cards on page", c.index, len(nodes))
	}
	c.nodeID = nodes[c.index].NodeID
	return nil
}

// do runs action and turns node lookup failures into ErrStale after
// re-resolving the handle.
func (c *chromeCard) do(ctx context.Context, action chromedp.ActionFunc) error {
	err := c.s.run(ctx, action)
	if err == nil || !isStale(err) {
		return err
	}
	if rerr := c.refresh(ctx); rerr != nil {
		c.s.logger.Debug("failed to re-resolve card", slog.Int("index", c.index), slog.String("err", rerr.Error()))
	}
	return fmt.Errorf("%w: %v", ErrStale, err)
}

func (c *chromeCard) Position(ctx context.Context) (float64, float64, error) {
	var pos []float64
	err := c.do(ctx, func(ctx context.Context) error {
		obj, err := dom.ResolveNode().WithNodeID(c.nodeID).Do(ctx)
		if err != nil {
			return err
		}
		defer runtime.ReleaseObject(obj.ObjectID).Do(ctx)
		return chromedp.CallFunctionOn(positionJS, &pos, func(p *runtime.CallFunctionOnParams) *runtime.CallFunctionOnParams {
			return p.WithObjectID(obj.ObjectID)
		}).Do(ctx)
	})
	if err != nil {
		return 0, 0, err
	}
	if len(pos) != 2 {
		return 0, 0, fmt.Errorf("unexpected card position %v", pos)
	}
	return pos[0], pos[1], nil
}

func (c *chromeCard) OuterHTML(ctx context.Context) (string, error) {
	var html string
	err := c.do(ctx, func(ctx context.Context) error {
		var err error
		html, err = dom.GetOuterHTML().WithNodeID(c.nodeID).Do(ctx)
		return err
	})
	return html, err
}

func isStale(err error) bool {
	var cdpErr *cdproto.Error
	if !errors.As(err, &cdpErr) {
		return false
	}
	msg := strings.ToLower(cdpErr.Message)
	for _, m := range []string{"no node with given id", "could not find node with given id", "node with given id does not belong to the document", "node is detached"} {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
