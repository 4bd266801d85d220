// Package scrapertest provides in-memory implementations of the scraper
// interfaces for tests. DOM queries run against static HTML snapshots with
// goquery, so no browser is needed.
package scrapertest

import (
	"context"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/downwatch/scraper"
)

// Page is a fake scraper.Page.
//
// Snapshots are the successive states of the DOM: every CountElements call
// observes the next snapshot, and the last one repeats forever. HTML and
// ClickIfPresent see the snapshot observed most recently.
type Page struct {
	mu sync.Mutex

	Snapshots     []string
	PageTitle     string
	ScreenshotPNG []byte

	NavigateErr   error
	CountErr      error
	ClickErr      error
	HTMLErr       error
	TitleErr      error
	ScreenshotErr error

	// PanicOnScreenshot makes Screenshot panic, simulating a crashed target.
	PanicOnScreenshot bool

	// NavigateHook, when set, runs inside Navigate (e.g. to block until ctx
	// ends).
	NavigateHook func(ctx context.Context) error

	// ClickHook, when set, runs inside ClickIfPresent once the selector has
	// matched, e.g. to simulate a click that keeps retrying on a covered
	// element.
	ClickHook func(ctx context.Context) error

	polls     int
	cur       int
	navigated []string
	clicked   []string
}

var _ scraper.Page = (*Page)(nil)

// NewPage returns a page that goes through the given DOM snapshots.
func NewPage(snapshots ...string) *Page {
	return &Page{
		Snapshots:     snapshots,
		ScreenshotPNG: []byte{0x89, 'P', 'N', 'G'},
	}
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	p.navigated = append(p.navigated, url)
	hook := p.NavigateHook
	err := p.NavigateErr
	p.mu.Unlock()

	if hook != nil {
		if hookErr := hook(ctx); hookErr != nil {
			return hookErr
		}
	}
	return err
}

func (p *Page) CountElements(ctx context.Context, selector string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.cur = min(p.polls, max(len(p.Snapshots)-1, 0))
	p.polls++
	if p.CountErr != nil {
		return 0, p.CountErr
	}
	doc, err := p.doc()
	if err != nil {
		return 0, err
	}
	return doc.Find(selector).Length(), nil
}

func (p *Page) ClickIfPresent(ctx context.Context, selector string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ClickErr != nil {
		return false, p.ClickErr
	}
	doc, err := p.doc()
	if err != nil {
		return false, err
	}
	if doc.Find(selector).Length() == 0 {
		return false, nil
	}
	if p.ClickHook != nil {
		hook := p.ClickHook
		p.mu.Unlock()
		err := hook(ctx)
		p.mu.Lock()
		if err != nil {
			return false, err
		}
	}
	p.clicked = append(p.clicked, selector)
	return true, nil
}

func (p *Page) HTML(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.HTMLErr != nil {
		return "", p.HTMLErr
	}
	return p.snapshot(), nil
}

func (p *Page) Title(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.TitleErr != nil {
		return "", p.TitleErr
	}
	if p.PageTitle != "" {
		return p.PageTitle, nil
	}
	doc, err := p.doc()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(doc.Find("title").First().Text()), nil
}

func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.PanicOnScreenshot {
		panic("target crashed")
	}
	if p.ScreenshotErr != nil {
		return nil, p.ScreenshotErr
	}
	return p.ScreenshotPNG, nil
}

// SetCountErr changes the CountElements error while the page is in use.
func (p *Page) SetCountErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CountErr = err
}

// Polls reports how many times CountElements was called.
func (p *Page) Polls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.polls
}

// Navigated returns the URLs passed to Navigate.
func (p *Page) Navigated() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.navigated...)
}

// Clicked returns the selectors that were clicked.
func (p *Page) Clicked() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.clicked...)
}

func (p *Page) snapshot() string {
	if len(p.Snapshots) == 0 {
		return ""
	}
	return p.Snapshots[p.cur]
}

func (p *Page) doc() (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(p.snapshot()))
}

// Session is a fake scraper.Session that hands out one Page.
type Session struct {
	mu sync.Mutex

	Page       scraper.Page
	NewPageErr error
	CloseErr   error

	profiles []scraper.Profile
	closes   int
}

var _ scraper.Session = (*Session)(nil)

func (s *Session) NewPage(_ context.Context, profile scraper.Profile) (scraper.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles = append(s.profiles, profile)
	if s.NewPageErr != nil {
		return nil, s.NewPageErr
	}
	return s.Page, nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return s.CloseErr
}

// Closes reports how many times Close was called.
func (s *Session) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

// Profiles returns the profiles passed to NewPage.
func (s *Session) Profiles() []scraper.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]scraper.Profile(nil), s.profiles...)
}

// Launcher is a fake scraper.Launcher returning a fixed Session.
type Launcher struct {
	Session *Session
	Err     error

	mu       sync.Mutex
	launches int
}

var _ scraper.Launcher = (*Launcher)(nil)

func (l *Launcher) Launch(ctx context.Context) (scraper.Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.launches++
	if l.Err != nil {
		return nil, l.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return l.Session, nil
}

// Launches reports how many times Launch was called.
func (l *Launcher) Launches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.launches
}
