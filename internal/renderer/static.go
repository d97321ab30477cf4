package renderer

import (
	"context"
	"fmt"
	"net/http"

	"github.com/landingzip/bundler/internal/bundle"
)

// Static implements bundle.Renderer without a browser: it downloads the
// raw markup through the asset fetcher. Pages that build their DOM with
// JavaScript come back incomplete; it exists for environments without
// Chrome and for tests.
type Static struct {
	fetcher bundle.Fetcher
}

// NewStatic wraps fetcher as a renderer.
func NewStatic(fetcher bundle.Fetcher) *Static {
	return &Static{fetcher: fetcher}
}

// Render fetches url and returns its body as the rendered document.
func (r *Static) Render(ctx context.Context, url string) (bundle.RenderedPage, error) {
	body, err := r.fetcher.Fetch(ctx, url)
	if err != nil {
		return bundle.RenderedPage{}, fmt.Errorf("static render: %w", err)
	}
	return bundle.RenderedPage{
		URL:        url,
		FinalURL:   url,
		StatusCode: http.StatusOK,
		HTML:       string(body),
	}, nil
}
