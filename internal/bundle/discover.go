package bundle

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ParseDocument builds the mutable parse tree for a rendered page.
func ParseDocument(html string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

// Discover scans the document for resource-bearing attributes matching
// the rule table, in rule order then document order. Each emitted ref
// holds a handle to the exact node it came from; duplicate URLs are
// deliberately not collapsed. Discovery never mutates the document, so
// the returned refs point at disjoint, stable locations when the
// coordinator later fans out.
func Discover(doc *goquery.Document, base *url.URL, rules []Rule) []ResourceRef {
	var refs []ResourceRef
	for _, rule := range rules {
		doc.Find(rule.Selector).Each(func(_ int, sel *goquery.Selection) {
			raw, exists := sel.Attr(rule.Attribute)
			if !exists {
				return
			}
			absolute, ok := ResolveReference(raw, base)
			if !ok {
				return
			}
			refs = append(refs, ResourceRef{
				Kind:      rule.Kind,
				SourceURL: absolute,
				Attribute: rule.Attribute,
				Target:    sel,
			})
		})
	}
	return refs
}
