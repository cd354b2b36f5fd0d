package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/inspector"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobpilot/internal/common"
	"github.com/ternarybob/jobpilot/internal/models"
)

// ChromeConfig holds launch flags for the chromedp launcher
type ChromeConfig struct {
	Headless      bool
	DisableGPU    bool
	NoSandbox     bool
	UserAgent     string
	LaunchTimeout time.Duration
}

// NewChromeConfig maps browser settings from application config
func NewChromeConfig(cfg common.BrowserConfig) ChromeConfig {
	return ChromeConfig{
		Headless:      cfg.Headless,
		DisableGPU:    cfg.DisableGPU,
		NoSandbox:     cfg.NoSandbox,
		UserAgent:     cfg.UserAgent,
		LaunchTimeout: common.Duration(cfg.LaunchTimeout, 30*time.Second),
	}
}

// ChromeLauncher launches a fresh Chrome process per call
type ChromeLauncher struct {
	config ChromeConfig
	logger arbor.ILogger
}

// NewChromeLauncher creates a launcher using config
func NewChromeLauncher(config ChromeConfig, logger arbor.ILogger) *ChromeLauncher {
	return &ChromeLauncher{config: config, logger: logger}
}

// Launch starts Chrome and waits until its first tab answers
func (l *ChromeLauncher) Launch(ctx context.Context, key Key) (Browser, error) {
	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.config.Headless),
		chromedp.Flag("disable-gpu", l.config.DisableGPU),
		chromedp.Flag("no-sandbox", l.config.NoSandbox),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if l.config.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(l.config.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	b := &chromeBrowser{
		allocCancel:   allocCancel,
		browserCancel: browserCancel,
		browserCtx:    browserCtx,
		logger:        l.logger,
	}

	if err := firstRun(ctx, browserCtx, l.config.LaunchTimeout, network.Enable()); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("%w: start chrome for %s: %v", common.ErrResource, key, err)
	}

	b.main = newChromePage(browserCtx, nil, &b.dead)

	l.logger.Debug().
		Str("key", key.String()).
		Bool("headless", l.config.Headless).
		Msg("Chrome launched")

	return b, nil
}

// firstRun performs the first action on a chromedp context. That context must
// not be a derived one or the target closes with it, so the timeout is applied
// by racing instead.
func firstRun(ctx, target context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	errc := make(chan error, 1)
	go func() { errc <- chromedp.Run(target, actions...) }()

	select {
	case err := <-errc:
		return err
	case <-time.After(timeout):
		return fmt.Errorf("timed out after %s", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

type chromeBrowser struct {
	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc
	browserCtx    context.Context
	main          *chromePage
	dead          atomic.Bool
	logger        arbor.ILogger
	closeOnce     sync.Once
}

func (b *chromeBrowser) Page() Page { return b.main }

func (b *chromeBrowser) NewPage(ctx context.Context) (Page, error) {
	tabCtx, tabCancel := chromedp.NewContext(b.browserCtx)
	if err := firstRun(ctx, tabCtx, 30*time.Second, network.Enable()); err != nil {
		tabCancel()
		return nil, err
	}
	return newChromePage(tabCtx, tabCancel, &b.dead), nil
}

func (b *chromeBrowser) Alive() bool {
	return !b.dead.Load() && b.browserCtx.Err() == nil
}

func (b *chromeBrowser) Close() error {
	b.closeOnce.Do(func() {
		b.dead.Store(true)
		if err := chromedp.Cancel(b.browserCtx); err != nil {
			b.logger.Debug().Err(err).Msg("Graceful chrome shutdown failed")
		}
		b.browserCancel()
		b.allocCancel()
	})
	return nil
}

type chromePage struct {
	ctx         context.Context
	cancel      context.CancelFunc // nil for the first tab, which closes with the browser
	browserDead *atomic.Bool
	closed      atomic.Bool

	mu        sync.Mutex
	nextID    int
	listeners map[int]func(string)
}

func newChromePage(ctx context.Context, cancel context.CancelFunc, browserDead *atomic.Bool) *chromePage {
	p := &chromePage{
		ctx:         ctx,
		cancel:      cancel,
		browserDead: browserDead,
		listeners:   make(map[int]func(string)),
	}

	chromedp.ListenTarget(ctx, func(ev interface{}) {
		switch e := ev.(type) {
		case *page.EventFrameNavigated:
			if e.Frame.ParentID == "" {
				p.dispatch(e.Frame.URL)
			}
		case *inspector.EventDetached, *inspector.EventTargetCrashed:
			p.closed.Store(true)
			if cancel == nil {
				browserDead.Store(true)
			}
		}
	})
	return p
}

func (p *chromePage) dispatch(url string) {
	p.mu.Lock()
	fns := make([]func(string), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn(url)
	}
}

func (p *chromePage) OnNavigate(fn func(url string)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

// run executes actions on the tab, bounded by the caller's ctx
func (p *chromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (p *chromePage) Navigate(ctx context.Context, url string) error {
	return p.run(ctx, chromedp.Navigate(url))
}

func (p *chromePage) URL(ctx context.Context) (string, error) {
	var u string
	err := p.run(ctx, chromedp.Location(&u))
	return u, err
}

func (p *chromePage) HTML(ctx context.Context) (string, error) {
	var html string
	err := p.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

func (p *chromePage) BodyText(ctx context.Context) (string, error) {
	var text string
	err := p.run(ctx, chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &text))
	return text, err
}

func (p *chromePage) Exists(ctx context.Context, selector string) (bool, error) {
	var found bool
	err := p.run(ctx, chromedp.Evaluate(fmt.Sprintf(`document.querySelector(%s) !== null`, jsString(selector)), &found))
	return found, err
}

func (p *chromePage) WaitVisible(ctx context.Context, selector string, timeout time.Duration) (bool, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := p.run(waitCtx, chromedp.WaitVisible(selector, chromedp.ByQuery))
	switch {
	case err == nil:
		return true, nil
	case ctx.Err() != nil:
		return false, ctx.Err()
	case waitCtx.Err() != nil:
		return false, nil
	default:
		return false, err
	}
}

func (p *chromePage) ScrollHeight(ctx context.Context) (int64, error) {
	var h int64
	err := p.run(ctx, chromedp.Evaluate(`document.body ? document.body.scrollHeight : 0`, &h))
	return h, err
}

func (p *chromePage) ScrollToBottom(ctx context.Context) error {
	return p.run(ctx, chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil))
}

func (p *chromePage) ScrollToTop(ctx context.Context) error {
	return p.run(ctx, chromedp.Evaluate(`window.scrollTo(0, 0)`, nil))
}

func (p *chromePage) Cookies(ctx context.Context, urls ...string) ([]models.Cookie, error) {
	var raw []*network.Cookie
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		req := network.GetCookies()
		if len(urls) > 0 {
			req = req.WithURLs(urls)
		}
		cookies, err := req.Do(ctx)
		raw = cookies
		return err
	}))
	if err != nil {
		return nil, err
	}

	cookies := make([]models.Cookie, 0, len(raw))
	for _, c := range raw {
		expires := int64(c.Expires)
		if c.Session {
			expires = -1
		}
		cookies = append(cookies, models.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  expires,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: c.SameSite.String(),
		})
	}
	return cookies, nil
}

func (p *chromePage) SetCookies(ctx context.Context, cookies []models.Cookie) error {
	params := make([]*network.CookieParam, 0, len(cookies))
	now := time.Now()
	for _, c := range cookies {
		param := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		}
		if c.Expires > 0 {
			if t := time.Unix(c.Expires, 0); t.After(now) {
				ts := cdp.TimeSinceEpoch(t)
				param.Expires = &ts
			}
		}
		switch strings.ToLower(c.SameSite) {
		case "strict":
			param.SameSite = network.CookieSameSiteStrict
		case "lax":
			param.SameSite = network.CookieSameSiteLax
		case "none":
			param.SameSite = network.CookieSameSiteNone
		}
		params = append(params, param)
	}

	return p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return network.SetCookies(params).Do(ctx)
	}))
}

// node resolves el without waiting for it to appear
func (p *chromePage) node(ctx context.Context, el ElementRef) (*cdp.Node, error) {
	var nodes []*cdp.Node
	if err := p.run(ctx, chromedp.Nodes(el.Selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0))); err != nil {
		return nil, err
	}
	if el.Index < 0 || el.Index >= len(nodes) {
		return nil, fmt.Errorf("element %s[%d] not found (%d matches)", el.Selector, el.Index, len(nodes))
	}
	return nodes[el.Index], nil
}

func (p *chromePage) Click(ctx context.Context, el ElementRef) error {
	n, err := p.node(ctx, el)
	if err != nil {
		return err
	}
	return p.run(ctx, chromedp.MouseClickNode(n))
}

func (p *chromePage) SetValue(ctx context.Context, el ElementRef, value string) error {
	n, err := p.node(ctx, el)
	if err != nil {
		return err
	}
	ids := []cdp.NodeID{n.NodeID}
	return p.run(ctx,
		chromedp.Clear(ids, chromedp.ByNodeID),
		chromedp.SendKeys(ids, value, chromedp.ByNodeID),
	)
}

func (p *chromePage) SetFiles(ctx context.Context, el ElementRef, paths []string) error {
	n, err := p.node(ctx, el)
	if err != nil {
		return err
	}
	return p.run(ctx, chromedp.SetUploadFiles([]cdp.NodeID{n.NodeID}, paths, chromedp.ByNodeID))
}

const interactableJS = `(function(sel, i) {
	const el = document.querySelectorAll(sel)[i];
	if (!el) return false;
	const r = el.getBoundingClientRect();
	const s = window.getComputedStyle(el);
	return !el.disabled && el.getAttribute('aria-disabled') !== 'true' &&
		r.width > 0 && r.height > 0 && s.visibility !== 'hidden' && s.display !== 'none';
})(%s, %d)`

func (p *chromePage) Interactable(ctx context.Context, el ElementRef) (bool, error) {
	var ok bool
	err := p.run(ctx, chromedp.Evaluate(fmt.Sprintf(interactableJS, jsString(el.Selector), el.Index), &ok))
	return ok, err
}

func (p *chromePage) Alive() bool {
	return !p.closed.Load() && !p.browserDead.Load() && p.ctx.Err() == nil
}

func (p *chromePage) Close() error {
	if p.cancel == nil {
		return nil
	}
	p.closed.Store(true)
	p.cancel()
	return nil
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
