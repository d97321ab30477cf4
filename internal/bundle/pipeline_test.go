package bundle

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fakeRenderer struct {
	page RenderedPage
	err  error
}

func (r *fakeRenderer) Render(_ context.Context, _ string) (RenderedPage, error) {
	return r.page, r.err
}

type recordingStore struct {
	mu        sync.Mutex
	starts    []uuid.UUID
	successes map[uuid.UUID]int
	failures  map[uuid.UUID]string
}

func newRecordingStore() *recordingStore {
	return &recordingStore{
		successes: make(map[uuid.UUID]int),
		failures:  make(map[uuid.UUID]string),
	}
}

func (s *recordingStore) RecordStart(_ context.Context, id uuid.UUID, _ string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts = append(s.starts, id)
	return nil
}

func (s *recordingStore) RecordSuccess(_ context.Context, id uuid.UUID, assetCount int, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.successes[id] = assetCount
	return nil
}

func (s *recordingStore) RecordFailure(_ context.Context, id uuid.UUID, errMsg string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[id] = errMsg
	return nil
}

type fakeArchiveStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	err     error
}

func (s *fakeArchiveStore) PutObject(_ context.Context, path, _ string, data []byte) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.objects == nil {
		s.objects = make(map[string][]byte)
	}
	s.objects[path] = append([]byte(nil), data...)
	return "mem://" + path, nil
}

type fakePublisher struct {
	mu       sync.Mutex
	payloads []any
}

func (p *fakePublisher) Publish(_ context.Context, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payloads = append(p.payloads, payload)
	return "msg-1", nil
}

type fakeHasher struct{}

func (fakeHasher) Hash(_ []byte) (string, error) { return "deadbeef", nil }

type fixedClock struct{ at time.Time }

func (c fixedClock) Now() time.Time { return c.at }

type fakeStaging struct {
	mu      sync.Mutex
	saved   map[string][]byte
	removed bool
}

func (s *fakeStaging) Save(name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saved == nil {
		s.saved = make(map[string][]byte)
	}
	s.saved[name] = data
	return nil
}

func (s *fakeStaging) Dir() string { return "/tmp/fake" }

func (s *fakeStaging) Remove() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = true
	return nil
}

const pipelinePage = `<html><head>
<link rel="stylesheet" href="/site.css">
</head><body>
<img src="/hero.png">
<img src="/missing.png">
</body></html>`

func pipelineFetcher() *fakeFetcher {
	return &fakeFetcher{
		payloads: map[string][]byte{
			"https://example.com/site.css": []byte("h1{}"),
			"https://example.com/hero.png": []byte("png"),
		},
		failures: map[string]error{
			"https://example.com/missing.png": &FetchError{Kind: FetchStatus, URL: "https://example.com/missing.png", StatusCode: 404},
		},
	}
}

func TestPipelinePrepareAndDeliver(t *testing.T) {
	t.Parallel()

	store := newRecordingStore()
	archives := &fakeArchiveStore{}
	publisher := &fakePublisher{}
	area := &fakeStaging{}

	p := NewPipeline(
		&fakeRenderer{page: RenderedPage{URL: "https://example.com/", HTML: pipelinePage, StatusCode: 200}},
		pipelineFetcher(),
		store,
		archives,
		publisher,
		fakeHasher{},
		fixedClock{at: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)},
		func() (StagingArea, error) { return area, nil },
		PipelineConfig{MaxParallel: 4, ArchiveName: "landing-page.zip", StoragePrefix: "bundles"},
		nil,
	)

	taskID := uuid.New()
	run, err := p.Prepare(context.Background(), taskID, "https://example.com/")
	require.NoError(t, err)
	require.Equal(t, 2, run.SuccessCount)
	require.Equal(t, 1, run.FailedCount)
	require.Equal(t, []uuid.UUID{taskID}, store.starts)

	var buf bytes.Buffer
	require.NoError(t, p.Deliver(context.Background(), run, &buf))

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	require.Len(t, zr.File, 3)
	require.Equal(t, DocumentEntryName, zr.File[len(zr.File)-1].Name)

	require.Equal(t, 2, store.successes[taskID])
	require.Empty(t, store.failures)

	// Retention stored the same bytes that were streamed.
	retained, ok := archives.objects["bundles/"+taskID.String()+"/landing-page.zip"]
	require.True(t, ok)
	require.Equal(t, buf.Bytes(), retained)

	// Completion event carries the task identity and digest.
	require.Len(t, publisher.payloads, 1)
	payload, ok := publisher.payloads[0].(map[string]any)
	require.True(t, ok)
	require.Equal(t, taskID.String(), payload["task_id"])
	require.Equal(t, 2, payload["asset_count"])
	require.Equal(t, "deadbeef", payload["archive_sha256"])
	require.Equal(t, "mem://bundles/"+taskID.String()+"/landing-page.zip", payload["archive_uri"])

	// Staging held the downloaded assets and was torn down after delivery.
	require.Len(t, area.saved, 2)
	require.True(t, area.removed)
}

func TestPipelinePrepareRenderFailure(t *testing.T) {
	t.Parallel()

	store := newRecordingStore()
	p := NewPipeline(
		&fakeRenderer{err: errors.New("navigation timed out")},
		pipelineFetcher(),
		store,
		nil, nil, nil,
		fixedClock{at: time.Now()},
		nil,
		PipelineConfig{},
		nil,
	)

	taskID := uuid.New()
	run, err := p.Prepare(context.Background(), taskID, "https://example.com/")
	require.Error(t, err)
	require.Nil(t, run)
	require.Contains(t, store.failures[taskID], "render page")
	require.Empty(t, store.successes)
}

func TestPipelinePrepareRejectsBadURL(t *testing.T) {
	t.Parallel()

	store := newRecordingStore()
	p := NewPipeline(
		&fakeRenderer{},
		pipelineFetcher(),
		store,
		nil, nil, nil,
		fixedClock{at: time.Now()},
		nil,
		PipelineConfig{},
		nil,
	)

	for _, raw := range []string{"ftp://example.com/x", "not a url at all", "/relative/only"} {
		taskID := uuid.New()
		run, err := p.Prepare(context.Background(), taskID, raw)
		require.Error(t, err, raw)
		require.Nil(t, run)
		require.NotEmpty(t, store.failures[taskID])
	}
}

func TestPipelineRedirectRebasesReferences(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{payloads: map[string][]byte{
		"https://final.example.org/app.css": []byte("p{}"),
	}}
	p := NewPipeline(
		&fakeRenderer{page: RenderedPage{
			URL:      "https://example.com/",
			FinalURL: "https://final.example.org/home",
			HTML:     `<html><head><link rel="stylesheet" href="/app.css"></head></html>`,
		}},
		fetcher,
		newRecordingStore(),
		nil, nil, nil,
		fixedClock{at: time.Now()},
		nil,
		PipelineConfig{},
		nil,
	)

	run, err := p.Prepare(context.Background(), uuid.New(), "https://example.com/")
	require.NoError(t, err)
	require.Equal(t, 1, run.SuccessCount)
	require.Equal(t, []string{"https://final.example.org/app.css"}, fetcher.calls)
}

func TestPipelineDeliverWithoutCollaborators(t *testing.T) {
	t.Parallel()

	store := newRecordingStore()
	p := NewPipeline(
		&fakeRenderer{page: RenderedPage{HTML: `<html><body><p>bare</p></body></html>`}},
		&fakeFetcher{},
		store,
		nil, nil, nil,
		fixedClock{at: time.Now()},
		nil,
		PipelineConfig{},
		nil,
	)

	taskID := uuid.New()
	run, err := p.Prepare(context.Background(), taskID, "https://example.com/")
	require.NoError(t, err)
	require.Zero(t, run.SuccessCount)

	var buf bytes.Buffer
	require.NoError(t, p.Deliver(context.Background(), run, &buf))
	require.Equal(t, 0, store.successes[taskID])

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	require.Len(t, zr.File, 1)
	require.Equal(t, DocumentEntryName, zr.File[0].Name)
}
