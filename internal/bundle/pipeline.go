package bundle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/landingzip/bundler/internal/metrics"
)

// TaskStore is the slice of the task store the pipeline reports to.
// Store failures are logged and never abort a run.
type TaskStore interface {
	RecordStart(ctx context.Context, id uuid.UUID, url string, startedAt time.Time) error
	RecordSuccess(ctx context.Context, id uuid.UUID, assetCount int, finishedAt time.Time) error
	RecordFailure(ctx context.Context, id uuid.UUID, errMsg string, finishedAt time.Time) error
}

// StagingArea holds one run's scratch files.
type StagingArea interface {
	Save(name string, data []byte) error
	Dir() string
	Remove() error
}

// StagingFactory creates a fresh per-run staging namespace.
type StagingFactory func() (StagingArea, error)

// PipelineConfig carries the pipeline's tunables.
type PipelineConfig struct {
	MaxParallel   int
	ArchiveName   string
	StoragePrefix string
	RetainStaging bool
	Rules         []Rule
}

// Pipeline executes one bundle run end to end: render, discover,
// download, rewrite, archive. Collaborators other than the renderer,
// fetcher, and task store are optional.
type Pipeline struct {
	renderer  Renderer
	fetcher   Fetcher
	tasks     TaskStore
	archives  ArchiveStore
	publisher EventPublisher
	hasher    Hasher
	clock     Clock
	staging   StagingFactory
	cfg       PipelineConfig
	logger    *zap.Logger
}

// NewPipeline constructs a Pipeline.
func NewPipeline(
	renderer Renderer,
	fetcher Fetcher,
	tasks TaskStore,
	archives ArchiveStore,
	publisher EventPublisher,
	hasher Hasher,
	clock Clock,
	staging StagingFactory,
	cfg PipelineConfig,
	logger *zap.Logger,
) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxParallel < 1 {
		cfg.MaxParallel = 1
	}
	if cfg.ArchiveName == "" {
		cfg.ArchiveName = "landing-page.zip"
	}
	if len(cfg.Rules) == 0 {
		cfg.Rules = DefaultRules()
	}
	metrics.Init()
	return &Pipeline{
		renderer:  renderer,
		fetcher:   fetcher,
		tasks:     tasks,
		archives:  archives,
		publisher: publisher,
		hasher:    hasher,
		clock:     clock,
		staging:   staging,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run is one prepared bundle: the fully rewritten document plus the
// successfully downloaded asset entries, ready to be streamed.
type Run struct {
	TaskID       uuid.UUID
	URL          string
	SuccessCount int
	FailedCount  int

	doc       *goquery.Document
	entries   []ArchiveEntry
	startedAt time.Time
	area      StagingArea
}

// Prepare renders the page and executes discovery, download, and
// rewrite. Everything that can fail the request happens here, before
// any response byte is written; a non-nil error means the caller may
// still send an error status. The task record is marked failed on
// error.
func (p *Pipeline) Prepare(ctx context.Context, taskID uuid.UUID, rawURL string) (*Run, error) {
	started := p.clock.Now()
	metrics.IncActiveRuns()
	run := &Run{TaskID: taskID, URL: rawURL, startedAt: started}

	if err := p.tasks.RecordStart(ctx, taskID, rawURL, started); err != nil {
		p.logger.Warn("record task start failed", zap.Stringer("task_id", taskID), zap.Error(err))
	}

	base, err := parsePageURL(rawURL)
	if err != nil {
		return nil, p.fail(ctx, run, err)
	}

	page, err := p.renderer.Render(ctx, rawURL)
	if err != nil {
		return nil, p.fail(ctx, run, fmt.Errorf("render page: %w", err))
	}
	if page.FinalURL != "" && page.FinalURL != rawURL {
		if finalBase, parseErr := parsePageURL(page.FinalURL); parseErr == nil {
			base = finalBase
		}
	}

	doc, err := ParseDocument(page.HTML)
	if err != nil {
		return nil, p.fail(ctx, run, err)
	}

	refs := Discover(doc, base, p.cfg.Rules)
	coordinator := NewCoordinator(p.fetcher, p.cfg.MaxParallel, p.logger)
	outcomes := coordinator.Download(ctx, refs)

	for _, out := range outcomes {
		if out.Err != nil {
			metrics.ObserveAsset(string(out.Ref.Kind), "failed", 0)
			run.FailedCount++
			continue
		}
		metrics.ObserveAsset(string(out.Ref.Kind), "done", len(out.Payload))
	}

	run.doc = doc
	run.entries, run.SuccessCount = Entries(outcomes)
	p.stageEntries(run)

	p.logger.Info("bundle prepared",
		zap.Stringer("task_id", taskID),
		zap.String("url", rawURL),
		zap.Int("discovered", len(refs)),
		zap.Int("downloaded", run.SuccessCount),
		zap.Int("failed", run.FailedCount),
	)
	return run, nil
}

// Deliver streams the archive into w and settles the run: task record,
// optional retention, optional completion event, staging teardown. A
// returned error means the archive was not fully written; the caller
// decides whether the response was already committed.
func (p *Pipeline) Deliver(ctx context.Context, run *Run, w io.Writer) error {
	out := w
	var retained *bytes.Buffer
	if p.archives != nil || p.publisher != nil {
		retained = &bytes.Buffer{}
		out = io.MultiWriter(w, retained)
	}

	if err := WriteArchive(out, run.doc, run.entries); err != nil {
		return p.fail(ctx, run, fmt.Errorf("build archive: %w", err))
	}

	if err := p.tasks.RecordSuccess(ctx, run.TaskID, run.SuccessCount, p.clock.Now()); err != nil {
		p.logger.Warn("record task success failed", zap.Stringer("task_id", run.TaskID), zap.Error(err))
	}

	uri := p.retainArchive(ctx, run, retained)
	p.publishEvent(ctx, run, retained, uri)
	p.teardownStaging(run)

	metrics.ObserveRun("done", p.clock.Now().Sub(run.startedAt))
	metrics.DecActiveRuns()
	return nil
}

// ArchiveName returns the download filename for this pipeline's output.
func (p *Pipeline) ArchiveName() string {
	return p.cfg.ArchiveName
}

func (p *Pipeline) fail(ctx context.Context, run *Run, cause error) error {
	if err := p.tasks.RecordFailure(ctx, run.TaskID, cause.Error(), p.clock.Now()); err != nil {
		p.logger.Warn("record task failure failed", zap.Stringer("task_id", run.TaskID), zap.Error(err))
	}
	p.teardownStaging(run)
	metrics.ObserveRun("failed", p.clock.Now().Sub(run.startedAt))
	metrics.DecActiveRuns()
	return cause
}

func (p *Pipeline) stageEntries(run *Run) {
	if p.staging == nil {
		return
	}
	area, err := p.staging()
	if err != nil {
		p.logger.Warn("staging area unavailable", zap.Stringer("task_id", run.TaskID), zap.Error(err))
		return
	}
	run.area = area
	for _, entry := range run.entries {
		if err := area.Save(entry.Path, entry.Payload); err != nil {
			p.logger.Warn("stage asset failed",
				zap.Stringer("task_id", run.TaskID),
				zap.String("path", entry.Path),
				zap.Error(err),
			)
		}
	}
}

func (p *Pipeline) teardownStaging(run *Run) {
	if run.area == nil {
		return
	}
	if p.cfg.RetainStaging {
		p.logger.Debug("staging retained", zap.String("dir", run.area.Dir()))
		return
	}
	if err := run.area.Remove(); err != nil {
		p.logger.Warn("staging cleanup failed", zap.String("dir", run.area.Dir()), zap.Error(err))
	}
}

func (p *Pipeline) retainArchive(ctx context.Context, run *Run, retained *bytes.Buffer) string {
	if p.archives == nil || retained == nil {
		return ""
	}
	objectPath := path.Join(p.cfg.StoragePrefix, run.TaskID.String(), p.cfg.ArchiveName)
	uri, err := p.archives.PutObject(ctx, objectPath, "application/zip", retained.Bytes())
	if err != nil {
		p.logger.Warn("archive retention failed", zap.Stringer("task_id", run.TaskID), zap.Error(err))
		return ""
	}
	return uri
}

func (p *Pipeline) publishEvent(ctx context.Context, run *Run, retained *bytes.Buffer, uri string) {
	if p.publisher == nil {
		return
	}
	payload := map[string]any{
		"task_id":     run.TaskID.String(),
		"url":         run.URL,
		"asset_count": run.SuccessCount,
		"timestamp":   p.clock.Now().Format(time.RFC3339),
	}
	if uri != "" {
		payload["archive_uri"] = uri
	}
	if p.hasher != nil && retained != nil {
		if digest, err := p.hasher.Hash(retained.Bytes()); err == nil {
			payload["archive_sha256"] = digest
		}
	}
	if _, err := p.publisher.Publish(ctx, payload); err != nil {
		p.logger.Warn("publish bundle event failed", zap.Stringer("task_id", run.TaskID), zap.Error(err))
	}
}

// ErrInvalidPageURL marks requests rejected before any network work.
var ErrInvalidPageURL = errors.New("invalid page url")

// ValidatePageURL reports whether raw is an absolute http(s) URL.
func ValidatePageURL(raw string) error {
	_, err := parsePageURL(raw)
	return err
}

func parsePageURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPageURL, raw)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: must be absolute http(s): %s", ErrInvalidPageURL, raw)
	}
	return u, nil
}
