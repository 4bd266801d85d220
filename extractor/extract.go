// Package extractor turns the rendered markup of the status page into an
// ordered list of status records.
package extractor

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/use-agent/downwatch/config"
	"github.com/use-agent/downwatch/models"
	"golang.org/x/net/html"
)

// Extractor walks a page snapshot and emits one record per entity title.
// It holds only compiled selectors and is safe for concurrent use.
type Extractor struct {
	title cascadia.Selector

	// containers are tried in preference order; the first class that has
	// any matching ancestor wins, and within a class the nearest ancestor.
	containers []cascadia.Selector

	// indicators are tried in priority order within every search root.
	indicators []cascadia.Selector

	seriesAttr string
}

// New compiles every selector up front so that a bad configuration fails
// at startup rather than in the middle of a run.
func New(cfg config.ExtractConfig) (*Extractor, error) {
	title, err := compile("title", cfg.TitleSelector)
	if err != nil {
		return nil, err
	}

	containers := make([]cascadia.Selector, 0, len(cfg.ContainerSelectors))
	for _, raw := range cfg.ContainerSelectors {
		sel, err := compile("container", raw)
		if err != nil {
			return nil, err
		}
		containers = append(containers, sel)
	}

	priority, err := compile("priority indicator", cfg.PriorityIndicatorSelector)
	if err != nil {
		return nil, err
	}
	anyIndicator, err := compile("indicator", cfg.IndicatorSelector)
	if err != nil {
		return nil, err
	}

	if cfg.SeriesAttribute == "" {
		return nil, models.NewScrapeError(models.ErrCodeInvalidConfig, "series attribute must not be empty", nil)
	}

	return &Extractor{
		title:      title,
		containers: containers,
		indicators: []cascadia.Selector{priority, anyIndicator},
		seriesAttr: cfg.SeriesAttribute,
	}, nil
}

func compile(name, raw string) (cascadia.Selector, error) {
	sel, err := cascadia.Compile(raw)
	if err != nil {
		return nil, models.NewScrapeError(
			models.ErrCodeInvalidConfig,
			fmt.Sprintf("invalid %s selector %q", name, raw),
			err,
		)
	}
	return sel, nil
}

// Extract parses rawHTML and returns the records in document order.
// The result is never nil; a page with no titles yields an empty slice.
func (e *Extractor) Extract(rawHTML string) ([]models.StatusRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeExtraction, "failed to parse page markup", err)
	}
	return e.ExtractDocument(doc), nil
}

// ExtractDocument runs the extraction over an already parsed document.
func (e *Extractor) ExtractDocument(doc *goquery.Document) []models.StatusRecord {
	records := []models.StatusRecord{}

	doc.FindMatcher(e.title).Each(func(_ int, s *goquery.Selection) {
		label := strings.TrimSpace(s.Text())
		if label == "" {
			return
		}

		indicator := e.findIndicator(searchRoots(e.container(s.Get(0))))
		if indicator == nil {
			records = append(records, models.NewStatusRecord(label, nil, nil))
			return
		}

		records = append(records, models.NewStatusRecord(
			label,
			attr(indicator, "class"),
			attr(indicator, e.seriesAttr),
		))
	})

	return records
}

// container returns the logical block enclosing a title, or nil when no
// ancestor (or the title itself) matches any container selector.
func (e *Extractor) container(title *html.Node) *html.Node {
	for _, sel := range e.containers {
		for n := title; n != nil; n = n.Parent {
			if n.Type == html.ElementNode && sel.Match(n) {
				return n
			}
		}
	}
	return nil
}

// searchRoots lists where to look for the trend indicator, in order: the
// container itself, then its parent element for markup where the
// indicator is a sibling of the container.
func searchRoots(container *html.Node) []*html.Node {
	if container == nil {
		return nil
	}
	roots := []*html.Node{container}
	if p := container.Parent; p != nil && p.Type == html.ElementNode {
		roots = append(roots, p)
	}
	return roots
}

// findIndicator tries every indicator selector within a root before moving
// on to the next root.
func (e *Extractor) findIndicator(roots []*html.Node) *html.Node {
	for _, root := range roots {
		for _, sel := range e.indicators {
			if n := firstDescendant(root, sel); n != nil {
				return n
			}
		}
	}
	return nil
}

// firstDescendant returns the first strict descendant of root matching sel,
// in document order. root itself is never returned.
func firstDescendant(root *html.Node, sel cascadia.Selector) *html.Node {
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if n := sel.MatchFirst(c); n != nil {
			return n
		}
	}
	return nil
}

// attr returns the attribute value verbatim, or nil if it is absent.
func attr(n *html.Node, key string) *string {
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			v := a.Val
			return &v
		}
	}
	return nil
}
