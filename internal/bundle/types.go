// Package bundle implements the asset extraction, download, and
// repackaging pipeline: given a rendered page, discover external
// resource references, fetch them concurrently, rewrite the document
// to point at local filenames, and stream everything into a zip.
package bundle

import (
	"context"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// ResourceKind classifies a discovered resource reference.
type ResourceKind string

// Resource kinds, in discovery order.
const (
	KindStylesheet ResourceKind = "css"
	KindScript     ResourceKind = "js"
	KindImage      ResourceKind = "img"
	KindIcon       ResourceKind = "icon"
)

// Rule pairs a CSS selector with the attribute carrying the reference.
type Rule struct {
	Selector  string
	Attribute string
	Kind      ResourceKind
}

// DefaultRules is the ordered rule table scanned by the Discoverer.
// Order affects only filename numbering, not correctness.
func DefaultRules() []Rule {
	return []Rule{
		{Selector: `link[rel="stylesheet"]`, Attribute: "href", Kind: KindStylesheet},
		{Selector: `script[src]`, Attribute: "src", Kind: KindScript},
		{Selector: `img[src]`, Attribute: "src", Kind: KindImage},
		{Selector: `link[rel="icon"]`, Attribute: "href", Kind: KindIcon},
	}
}

// ResourceRef is a discovered pointer from the document to an external
// asset. Target identifies the exact node whose attribute gets
// rewritten; each ref maps to a unique node/attribute pair, so
// concurrent rewrites never overlap.
type ResourceRef struct {
	Kind      ResourceKind
	SourceURL string
	Attribute string
	Target    *goquery.Selection
}

// FetchOutcome records the result of downloading one ResourceRef.
// Exactly one of Payload and Err is set.
type FetchOutcome struct {
	Ref       ResourceRef
	LocalName string
	Payload   []byte
	Err       error
}

// ArchiveEntry is one named byte payload destined for the output zip.
type ArchiveEntry struct {
	Path    string
	Payload []byte
}

// RenderedPage is the renderer's output handed to the pipeline.
type RenderedPage struct {
	URL        string
	FinalURL   string
	StatusCode int
	HTML       string
}

// Renderer produces rendered HTML for a URL. Rendering failure is fatal
// to a run; the pipeline never starts on a failed render.
type Renderer interface {
	Render(ctx context.Context, url string) (RenderedPage, error)
}

// Fetcher retrieves the bytes behind an absolute URL. Implementations
// classify failures as FetchError and enforce their own timeout.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// ArchiveStore retains finished archives and returns a URI.
type ArchiveStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// EventPublisher pushes completion events to Pub/Sub (or similar).
type EventPublisher interface {
	Publish(ctx context.Context, payload any) (string, error)
}

// Hasher computes digests for archive integrity records.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
