package worker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Specoptor/trendyol/internal/harvest"
	"github.com/Specoptor/trendyol/internal/queue/memory"
)

func fill(t *testing.T, urls ...string) *memory.Queue {
	t.Helper()
	q, err := memory.Fill(context.Background(), harvest.ItemsFromURLs(urls))
	require.NoError(t, err)
	return q
}

func TestWorkerRun_RecordsEveryOutcome(t *testing.T) {
	t.Parallel()

	q := fill(t, "https://a/p-1", "https://a/p-2", "https://a/p-3", "https://a/p-4")
	session := &fakeSession{
		results: map[string]harvest.RawRecord{
			"https://a/p-1": {Payload: map[string]any{"name": "one"}, Body: []byte(`{"name":"one"}`)},
		},
		errs: map[string]error{
			"https://a/p-2": harvest.BackendError("https://a/p-2", 500, errors.New("Internal Server Error")),
			"https://a/p-3": harvest.NewExtractionError(harvest.KindItemUnavailable, "https://a/p-3", nil),
		},
		panics: map[string]bool{"https://a/p-4": true},
	}
	rec := newFakeRecorder()

	w := New(q, session, fakeNormalizer{}, rec, Config{ID: 1, Backend: "api"}, zap.NewNop())
	processed := w.Run(context.Background())

	require.Equal(t, 4, processed)
	require.True(t, session.closed)
	require.Len(t, rec.entries, 4)

	assert.Equal(t, harvest.StatusCompleted, rec.entries["https://a/p-1"].Status)
	assert.Equal(t, "one", rec.entries["https://a/p-1"].Record.Name)

	failed := rec.entries["https://a/p-2"]
	assert.Equal(t, harvest.StatusFailed, failed.Status)
	assert.Equal(t, harvest.KindBackendError, failed.Error)
	assert.Equal(t, 500, failed.StatusCode)

	assert.Equal(t, harvest.StatusUnavailable, rec.entries["https://a/p-3"].Status)

	panicked := rec.entries["https://a/p-4"]
	assert.Equal(t, harvest.StatusFailed, panicked.Status)
	assert.Equal(t, harvest.KindPanic, panicked.Error)

	assert.Equal(t, harvest.RawCapture{ProductID: "1", Body: []byte(`{"name":"one"}`)}, rec.raw["https://a/p-1"])
	assert.NotContains(t, rec.raw, "https://a/p-2")
}

func TestWorkerRun_StopsOnCancel(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue(1)
	session := &fakeSession{}
	rec := newFakeRecorder()
	w := New(q, session, fakeNormalizer{}, rec, Config{ID: 2}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan int, 1)
	go func() { done <- w.Run(ctx) }()

	cancel()
	select {
	case n := <-done:
		assert.Zero(t, n)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancel")
	}
	assert.True(t, session.closed)
	assert.Empty(t, rec.entries)
}

func TestWorkerRun_DocumentRecordsAreNotCapturedRaw(t *testing.T) {
	t.Parallel()

	q := fill(t, "https://a/p-9")
	session := &fakeSession{results: map[string]harvest.RawRecord{
		"https://a/p-9": {Title: "x", Body: []byte("<html></html>"), Document: emptyDocument(t)},
	}}
	rec := newFakeRecorder()
	New(q, session, fakeNormalizer{}, rec, Config{}, nil).Run(context.Background())

	assert.Equal(t, harvest.StatusCompleted, rec.entries["https://a/p-9"].Status)
	assert.Empty(t, rec.raw)
}

func emptyDocument(t *testing.T) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<html><body></body></html>"))
	require.NoError(t, err)
	return doc
}

type fakeSession struct {
	mu      sync.Mutex
	results map[string]harvest.RawRecord
	errs    map[string]error
	panics  map[string]bool
	closed  bool
}

func (s *fakeSession) Extract(_ context.Context, item harvest.WorkItem) (harvest.RawRecord, error) {
	if s.panics[item.URL] {
		panic("renderer exploded")
	}
	if err, ok := s.errs[item.URL]; ok {
		return harvest.RawRecord{}, err
	}
	return s.results[item.URL], nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type fakeNormalizer struct{}

func (fakeNormalizer) Normalize(raw harvest.RawRecord, item harvest.WorkItem) (harvest.ProductRecord, []string) {
	rec := harvest.ProductRecord{SourceURL: item.URL}
	if name, ok := raw.Payload["name"].(string); ok {
		rec.Name = name
		return rec, nil
	}
	return rec, []string{"name"}
}

type fakeRecorder struct {
	mu      sync.Mutex
	entries map[string]harvest.Entry
	raw     map[string]harvest.RawCapture
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{entries: map[string]harvest.Entry{}, raw: map[string]harvest.RawCapture{}}
}

func (r *fakeRecorder) Record(item harvest.WorkItem, entry harvest.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[item.URL] = entry
}

func (r *fakeRecorder) RecordRaw(item harvest.WorkItem, productID string, body []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.raw[item.URL] = harvest.RawCapture{ProductID: productID, Body: body}
}
