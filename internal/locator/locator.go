// Package locator finds the consent control on a gate page snapshot.
package locator

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ace221390/work.ink/internal/dom"
	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// Settings configures what the locator looks for.
type Settings struct {
	// Label is matched against trimmed text, ignoring case.
	Label string
	// Hints are CSS selectors tried in priority order, most specific first.
	Hints []string
	// LabelTag is the element that usually carries the label inside the control.
	LabelTag string
	// ControlTag is the activatable element the label belongs to.
	ControlTag string
}

type hint struct {
	raw string
	sel cascadia.Selector
}

// Locator matches controls by label using structural hints first and a
// label-element scan second.
type Locator struct {
	label      string
	labelTag   string
	controlTag string
	hints      []hint
	labelXPath string
	logger     *zap.Logger
}

// New compiles the hints. An invalid selector is a configuration error.
func New(s Settings, logger *zap.Logger) (*Locator, error) {
	l := &Locator{
		label:      strings.TrimSpace(s.Label),
		labelTag:   strings.ToLower(s.LabelTag),
		controlTag: strings.ToLower(s.ControlTag),
		logger:     logger.Named("locator"),
	}
	if l.label == "" {
		return nil, fmt.Errorf("locator: empty label")
	}
	if l.labelTag == "" || l.controlTag == "" {
		return nil, fmt.Errorf("locator: label and control tags are required")
	}
	for _, raw := range s.Hints {
		sel, err := cascadia.Compile(raw)
		if err != nil {
			return nil, fmt.Errorf("locator: invalid hint %q: %w", raw, err)
		}
		l.hints = append(l.hints, hint{raw: raw, sel: sel})
	}
	l.labelXPath = "//" + l.labelTag
	return l, nil
}

// Locate returns the first control whose label matches, or false.
func (l *Locator) Locate(doc *dom.Document) (dom.Element, bool) {
	if doc == nil {
		return dom.Element{}, false
	}
	for _, h := range l.hints {
		var found *html.Node
		doc.FindMatcher(h.sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if l.inspect(s) {
				found = s.Get(0)
				return false
			}
			return true
		})
		if found != nil {
			l.logger.Debug("Control matched by hint", zap.String("hint", h.raw))
			return doc.Element(found), true
		}
	}

	if n := l.scanLabels(doc); n != nil {
		l.logger.Debug("Control matched by label scan", zap.String("tag", l.labelTag))
		return doc.Element(n), true
	}
	return dom.Element{}, false
}

// inspect checks a candidate: first its first label element, then its own
// text. A malformed candidate is skipped rather than aborting the search.
func (l *Locator) inspect(s *goquery.Selection) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Debug("Skipping candidate that failed inspection", zap.Any("panic", r))
			ok = false
		}
	}()
	if label := s.Find(l.labelTag).First(); label.Length() > 0 && l.matches(label.Text()) {
		return true
	}
	return l.matches(s.Text())
}

// scanLabels finds any label element with the label text and climbs to the
// nearest enclosing control.
func (l *Locator) scanLabels(doc *dom.Document) *html.Node {
	labels, err := htmlquery.QueryAll(doc.Root(), l.labelXPath)
	if err != nil {
		l.logger.Warn("Label scan failed", zap.String("xpath", l.labelXPath), zap.Error(err))
		return nil
	}
	for _, n := range labels {
		if !l.matches(htmlquery.InnerText(n)) {
			continue
		}
		if c := closest(n, l.controlTag); c != nil {
			return c
		}
	}
	return nil
}

func (l *Locator) matches(text string) bool {
	return strings.EqualFold(strings.TrimSpace(text), l.label)
}

// closest walks from n (inclusive) to the root looking for tag.
func closest(n *html.Node, tag string) *html.Node {
	for p := n; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && p.Data == tag {
			return p
		}
	}
	return nil
}
