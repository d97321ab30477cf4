package bundle

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Coordinator drives the fetch/rewrite sequence concurrently across all
// discovered references. Per-reference failures are isolated: one bad
// asset never aborts the batch, never retries, and leaves its node's
// original attribute value untouched.
type Coordinator struct {
	fetcher     Fetcher
	maxParallel int
	logger      *zap.Logger
}

// NewCoordinator builds a Coordinator. maxParallel bounds concurrent
// fetches; values below 1 fall back to 1.
func NewCoordinator(fetcher Fetcher, maxParallel int, logger *zap.Logger) *Coordinator {
	if maxParallel < 1 {
		maxParallel = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		fetcher:     fetcher,
		maxParallel: maxParallel,
		logger:      logger,
	}
}

// Download fetches every reference and rewrites the document for the
// ones that succeed. It blocks until all fetches settle (a full-barrier
// join), so the document is fully rewritten when it returns. Outcomes
// are returned in discovery order regardless of completion order.
func (c *Coordinator) Download(ctx context.Context, refs []ResourceRef) []FetchOutcome {
	outcomes := make([]FetchOutcome, len(refs))

	// Local names are assigned single-threaded before fan-out so each
	// goroutine touches only its own slot and its own document node.
	for i, ref := range refs {
		outcomes[i] = FetchOutcome{
			Ref:       ref,
			LocalName: LocalName(ref.Kind, i, ref.SourceURL),
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxParallel)
	for i := range outcomes {
		out := &outcomes[i]
		g.Go(func() error {
			payload, err := c.fetcher.Fetch(gctx, out.Ref.SourceURL)
			if err != nil {
				out.Err = err
				c.logger.Warn("asset download failed",
					zap.String("url", out.Ref.SourceURL),
					zap.String("kind", string(out.Ref.Kind)),
					zap.Error(err),
				)
				return nil
			}
			out.Payload = payload
			Rewrite(out.Ref, out.LocalName)
			return nil
		})
	}
	// Goroutines report failures through their outcome slot, never as
	// errgroup errors, so Wait is purely a join.
	_ = g.Wait()

	return outcomes
}

// Entries converts the successful outcomes into archive entries,
// preserving discovery order, and reports the success count.
func Entries(outcomes []FetchOutcome) ([]ArchiveEntry, int) {
	entries := make([]ArchiveEntry, 0, len(outcomes))
	for _, out := range outcomes {
		if out.Err != nil {
			continue
		}
		entries = append(entries, ArchiveEntry{Path: out.LocalName, Payload: out.Payload})
	}
	return entries, len(entries)
}
