// Package renderer produces fully rendered HTML for a page URL. The
// chromedp implementation executes JavaScript in headless Chrome; the
// static implementation skips rendering and returns raw markup.
package renderer

import (
	"context"
	"fmt"
	"net/http"
	neturl "net/url"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"golang.org/x/time/rate"

	"github.com/landingzip/bundler/internal/bundle"
)

// Config controls the headless renderer.
type Config struct {
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	// QPS throttles navigations per target domain. Zero disables the
	// limiter.
	QPS float64
}

// Chromedp implements bundle.Renderer using headless Chrome. One
// browser process is shared; each Render opens its own tab.
type Chromedp struct {
	cfg         Config
	limiter     chan struct{}
	ratesMu     sync.Mutex
	rates       map[string]*rate.Limiter
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewChromedp creates a headless renderer.
func NewChromedp(cfg Config) (*Chromedp, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Chromedp{
		cfg:         cfg,
		limiter:     limiter,
		rates:       make(map[string]*rate.Limiter),
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close cancels the allocator context and shuts the browser down.
func (r *Chromedp) Close() {
	r.allocCancel()
}

// Render navigates to url in a fresh tab, waits for the document to
// settle, and returns the rendered DOM.
func (r *Chromedp) Render(ctx context.Context, url string) (bundle.RenderedPage, error) {
	if err := r.acquire(ctx); err != nil {
		return bundle.RenderedPage{}, err
	}
	defer r.release()

	if rl := r.domainLimiter(url); rl != nil {
		if err := rl.Wait(ctx); err != nil {
			return bundle.RenderedPage{}, fmt.Errorf("render rate wait: %w", err)
		}
	}

	tabCtx, tabCancel := chromedp.NewContext(r.allocator)
	defer tabCancel()

	tabCtx, cancel := context.WithTimeout(tabCtx, r.cfg.NavigationTimeout)
	defer cancel()
	forwardCancel(ctx, cancel)

	meta := newResponseMeta()
	chromedp.ListenTarget(tabCtx, meta.captureEvent)

	html, finalURL, err := r.navigate(tabCtx, url)
	if err != nil {
		return bundle.RenderedPage{}, err
	}

	status, responseURL := meta.snapshotWithFallbacks(url, finalURL)
	return bundle.RenderedPage{
		URL:        url,
		FinalURL:   responseURL,
		StatusCode: status,
		HTML:       html,
	}, nil
}

func (r *Chromedp) navigate(ctx context.Context, url string) (string, string, error) {
	var (
		html     string
		finalURL string
	)
	actions := []chromedp.Action{
		r.networkSetupAction(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(500 * time.Millisecond),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(ctx, actions...); err != nil {
		return "", "", fmt.Errorf("chromedp run: %w", err)
	}
	return html, finalURL, nil
}

func (r *Chromedp) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if r.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(r.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

// domainLimiter returns the rate limiter for rawURL's host, creating
// it on first sight. Unparseable URLs share the empty-host limiter;
// chromedp will reject them during navigation anyway.
func (r *Chromedp) domainLimiter(rawURL string) *rate.Limiter {
	if r.cfg.QPS <= 0 {
		return nil
	}
	host := ""
	if u, err := neturl.Parse(rawURL); err == nil {
		host = u.Hostname()
	}
	r.ratesMu.Lock()
	defer r.ratesMu.Unlock()
	rl, ok := r.rates[host]
	if !ok {
		rl = rate.NewLimiter(rate.Limit(r.cfg.QPS), 1)
		r.rates[host] = rl
	}
	return rl
}

func (r *Chromedp) acquire(ctx context.Context) error {
	if r.limiter == nil {
		return nil
	}
	select {
	case r.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("render slot wait canceled: %w", ctx.Err())
	}
}

func (r *Chromedp) release() {
	if r.limiter == nil {
		return
	}
	select {
	case <-r.limiter:
	default:
	}
}

// forwardCancel propagates caller cancellation into the tab context,
// which chromedp.NewContext does not inherit.
func forwardCancel(parent context.Context, cancel context.CancelFunc) {
	go func() {
		<-parent.Done()
		cancel()
	}()
}

type responseMeta struct {
	mu     sync.RWMutex
	status int
	url    string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	m.mu.Lock()
	m.status = int(event.Response.Status)
	m.url = event.Response.URL
	m.mu.Unlock()
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

func (m *responseMeta) snapshotWithFallbacks(requestURL, finalURL string) (int, string) {
	m.mu.RLock()
	status, url := m.status, m.url
	m.mu.RUnlock()

	switch {
	case url != "":
	case finalURL != "":
		url = finalURL
	default:
		url = requestURL
	}
	if status == 0 {
		status = http.StatusOK
	}
	return status, url
}
