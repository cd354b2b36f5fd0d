// Package browsertest provides in-memory browser fakes for tests. Pages are
// driven by an HTML string; selectors are evaluated with goquery.
package browsertest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/jobpilot/internal/models"
	"github.com/ternarybob/jobpilot/internal/services/browser"
)

// Page is a scriptable browser.Page
type Page struct {
	mu sync.Mutex

	url     string
	html    string
	body    string
	cookies []models.Cookie
	heights []int64
	alive   bool
	closed  bool

	// Routes maps a navigated URL to the HTML it serves
	Routes map[string]string
	// Redirects maps a navigated URL to the URL the page ends up on
	Redirects map[string]string
	// Disabled lists selectors whose elements report not interactable
	Disabled map[string]bool
	// OnClick runs after a click is recorded
	OnClick func(p *Page, el browser.ElementRef)
	// NavigateErr fails every navigation
	NavigateErr error

	Navigations []string
	Clicks      []browser.ElementRef
	Values      map[string]string
	Files       map[string][]string
	SetCookie   [][]models.Cookie
	Scrolls     int

	nextID    int
	listeners map[int]func(string)
}

// NewPage returns a live page at about:blank
func NewPage() *Page {
	return &Page{
		url:       "about:blank",
		alive:     true,
		Routes:    map[string]string{},
		Redirects: map[string]string{},
		Disabled:  map[string]bool{},
		Values:    map[string]string{},
		Files:     map[string][]string{},
		listeners: map[int]func(string){},
	}
}

// Set replaces the current URL and markup
func (p *Page) Set(url, html string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
	p.html = html
	p.body = ""
}

// SetHTML replaces the markup without navigating
func (p *Page) SetHTML(html string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.html = html
}

// SetBodyText overrides the text returned by BodyText
func (p *Page) SetBodyText(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.body = text
}

// SetURL moves the page without firing listeners
func (p *Page) SetURL(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
}

// SetCookieJar replaces the cookies returned by Cookies
func (p *Page) SetCookieJar(cookies []models.Cookie) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cookies = cookies
}

// SetHeights scripts successive ScrollHeight results. The last value repeats.
func (p *Page) SetHeights(h ...int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.heights = h
}

// Kill makes the page report dead
func (p *Page) Kill() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alive = false
}

// FireNavigate simulates a main-frame navigation to url
func (p *Page) FireNavigate(url string) {
	p.mu.Lock()
	p.url = url
	fns := make([]func(string), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.mu.Unlock()
	for _, fn := range fns {
		fn(url)
	}
}

// ListenerCount returns the number of registered navigation listeners
func (p *Page) ListenerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.listeners)
}

// Closed reports whether Close was called
func (p *Page) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Page) doc() (*goquery.Document, error) {
	p.mu.Lock()
	html := p.html
	p.mu.Unlock()
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

func (p *Page) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !p.Alive() {
		return errors.New("target closed")
	}
	return nil
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := p.check(ctx); err != nil {
		return err
	}
	p.mu.Lock()
	p.Navigations = append(p.Navigations, url)
	err := p.NavigateErr
	if err == nil {
		final := url
		if r, ok := p.Redirects[url]; ok {
			final = r
		}
		p.url = final
		if html, ok := p.Routes[url]; ok {
			p.html = html
		}
	}
	p.mu.Unlock()
	return err
}

func (p *Page) URL(ctx context.Context) (string, error) {
	if err := p.check(ctx); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *Page) HTML(ctx context.Context) (string, error) {
	if err := p.check(ctx); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.html, nil
}

func (p *Page) BodyText(ctx context.Context) (string, error) {
	if err := p.check(ctx); err != nil {
		return "", err
	}
	p.mu.Lock()
	body := p.body
	p.mu.Unlock()
	if body != "" {
		return body, nil
	}
	doc, err := p.doc()
	if err != nil {
		return "", err
	}
	return doc.Find("body").Text(), nil
}

func (p *Page) Exists(ctx context.Context, selector string) (bool, error) {
	if err := p.check(ctx); err != nil {
		return false, err
	}
	doc, err := p.doc()
	if err != nil {
		return false, err
	}
	return doc.Find(selector).Length() > 0, nil
}

func (p *Page) WaitVisible(ctx context.Context, selector string, timeout time.Duration) (bool, error) {
	return p.Exists(ctx, selector)
}

func (p *Page) ScrollHeight(ctx context.Context) (int64, error) {
	if err := p.check(ctx); err != nil {
		return 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.heights) == 0 {
		return 1000, nil
	}
	h := p.heights[0]
	if len(p.heights) > 1 {
		p.heights = p.heights[1:]
	}
	return h, nil
}

func (p *Page) ScrollToBottom(ctx context.Context) error {
	if err := p.check(ctx); err != nil {
		return err
	}
	p.mu.Lock()
	p.Scrolls++
	p.mu.Unlock()
	return nil
}

func (p *Page) ScrollToTop(ctx context.Context) error {
	return p.check(ctx)
}

func (p *Page) Cookies(ctx context.Context, urls ...string) ([]models.Cookie, error) {
	if err := p.check(ctx); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.Cookie(nil), p.cookies...), nil
}

func (p *Page) SetCookies(ctx context.Context, cookies []models.Cookie) error {
	if err := p.check(ctx); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SetCookie = append(p.SetCookie, cookies)
	p.cookies = append(p.cookies, cookies...)
	return nil
}

func (p *Page) resolve(el browser.ElementRef) error {
	doc, err := p.doc()
	if err != nil {
		return err
	}
	if n := doc.Find(el.Selector).Length(); el.Index >= n {
		return errors.New("element not found: " + el.Selector)
	}
	return nil
}

func (p *Page) Click(ctx context.Context, el browser.ElementRef) error {
	if err := p.check(ctx); err != nil {
		return err
	}
	if err := p.resolve(el); err != nil {
		return err
	}
	p.mu.Lock()
	p.Clicks = append(p.Clicks, el)
	hook := p.OnClick
	p.mu.Unlock()
	if hook != nil {
		hook(p, el)
	}
	return nil
}

func (p *Page) SetValue(ctx context.Context, el browser.ElementRef, value string) error {
	if err := p.check(ctx); err != nil {
		return err
	}
	if err := p.resolve(el); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Values[el.Selector] = value
	return nil
}

func (p *Page) SetFiles(ctx context.Context, el browser.ElementRef, paths []string) error {
	if err := p.check(ctx); err != nil {
		return err
	}
	if err := p.resolve(el); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Files[el.Selector] = paths
	return nil
}

func (p *Page) Interactable(ctx context.Context, el browser.ElementRef) (bool, error) {
	if err := p.check(ctx); err != nil {
		return false, err
	}
	if err := p.resolve(el); err != nil {
		return false, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.Disabled[el.Selector], nil
}

func (p *Page) OnNavigate(fn func(url string)) func() {
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

func (p *Page) Alive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.alive && !p.closed
}

func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Browser is a fake browser process
type Browser struct {
	mu     sync.Mutex
	main   *Page
	tabs   []*Page
	closed int

	// NewTab builds pages returned by NewPage. Nil returns fresh blank pages.
	NewTab func() *Page
}

// NewBrowser wraps main as the first tab
func NewBrowser(main *Page) *Browser {
	if main == nil {
		main = NewPage()
	}
	return &Browser{main: main}
}

func (b *Browser) Main() *Page       { return b.main }
func (b *Browser) Page() browser.Page { return b.main }

func (b *Browser) NewPage(ctx context.Context) (browser.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed > 0 {
		return nil, errors.New("browser closed")
	}
	var p *Page
	if b.NewTab != nil {
		p = b.NewTab()
	} else {
		p = NewPage()
	}
	b.tabs = append(b.tabs, p)
	return p, nil
}

// Tabs returns the pages opened with NewPage
func (b *Browser) Tabs() []*Page {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Page(nil), b.tabs...)
}

func (b *Browser) Alive() bool {
	b.mu.Lock()
	closed := b.closed > 0
	b.mu.Unlock()
	return !closed && b.main.Alive()
}

func (b *Browser) Close() error {
	b.mu.Lock()
	b.closed++
	b.mu.Unlock()
	b.main.Kill()
	return nil
}

// CloseCount returns how many times Close was called
func (b *Browser) CloseCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Launcher is a fake browser.Launcher
type Launcher struct {
	mu       sync.Mutex
	launched []*Browser

	// Next builds each launched browser. Nil launches a blank browser.
	Next func(key browser.Key) *Browser
	// Fail makes the next FailCount launches return Err
	Err       error
	FailCount int
	// Block, when set, holds launches until closed
	Block chan struct{}
}

func (l *Launcher) Launch(ctx context.Context, key browser.Key) (browser.Browser, error) {
	if l.Block != nil {
		select {
		case <-l.Block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.FailCount > 0 {
		l.FailCount--
		return nil, l.Err
	}
	var b *Browser
	if l.Next != nil {
		b = l.Next(key)
	} else {
		b = NewBrowser(nil)
	}
	l.launched = append(l.launched, b)
	return b, nil
}

// Launched returns every browser started so far
func (l *Launcher) Launched() []*Browser {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Browser(nil), l.launched...)
}
