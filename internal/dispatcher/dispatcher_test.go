package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Specoptor/trendyol/internal/harvest"
	"github.com/Specoptor/trendyol/internal/queue/memory"
)

func items(n int) []harvest.WorkItem {
	out := make([]harvest.WorkItem, n)
	for i := range out {
		out[i] = harvest.WorkItem{URL: fmt.Sprintf("https://shop/item-p-%d", i)}
	}
	return out
}

func TestDispatcherRun_EachItemExactlyOnce(t *testing.T) {
	t.Parallel()

	for _, workers := range []int{1, 10, 100} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			t.Parallel()

			input := items(250)
			q, err := memory.Fill(context.Background(), input)
			require.NoError(t, err)

			backend := newFakeBackend(func(item harvest.WorkItem) error {
				time.Sleep(time.Duration(rand.IntN(500)) * time.Microsecond)
				return nil
			})
			rec := newCountingRecorder()

			stats, err := New(Config{Workers: workers}, q, backend, passthrough{}, rec, zap.NewNop()).
				Run(context.Background())
			require.NoError(t, err)

			assert.Equal(t, len(input), stats.Processed)
			assert.Zero(t, stats.Canceled)
			assert.Equal(t, workers, stats.Workers)
			assert.Equal(t, int32(0), backend.overlaps.Load(), "an item was processed concurrently")
			require.Len(t, rec.counts, len(input))
			for _, it := range input {
				assert.Equal(t, 1, rec.counts[it.URL], it.URL)
			}
			assert.Equal(t, int32(workers), backend.opened.Load())
			assert.Equal(t, int32(workers), backend.closed.Load())
		})
	}
}

func TestDispatcherRun_FailureDoesNotStopLaterItems(t *testing.T) {
	t.Parallel()

	input := items(5)
	q, err := memory.Fill(context.Background(), input)
	require.NoError(t, err)

	backend := newFakeBackend(func(item harvest.WorkItem) error {
		if item.URL == input[0].URL {
			return harvest.BackendError(item.URL, 500, errors.New("Internal Server Error"))
		}
		return nil
	})
	rec := newCountingRecorder()

	_, err = New(Config{Workers: 1}, q, backend, passthrough{}, rec, nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, harvest.StatusFailed, rec.entries[input[0].URL].Status)
	assert.Equal(t, 500, rec.entries[input[0].URL].StatusCode)
	for _, it := range input[1:] {
		assert.Equal(t, harvest.StatusCompleted, rec.entries[it.URL].Status)
	}
}

func TestDispatcherRun_EmptyQueueIsFatal(t *testing.T) {
	t.Parallel()

	q, err := memory.Fill(context.Background(), nil)
	require.NoError(t, err)
	backend := newFakeBackend(nil)

	_, err = New(Config{Workers: 3}, q, backend, passthrough{}, newCountingRecorder(), nil).Run(context.Background())
	require.ErrorIs(t, err, harvest.ErrNoWorkItems)
	assert.Zero(t, backend.opened.Load())
}

func TestDispatcherRun_SessionFailureClosesOpenedSessions(t *testing.T) {
	t.Parallel()

	q, err := memory.Fill(context.Background(), items(3))
	require.NoError(t, err)
	backend := newFakeBackend(nil)
	backend.failAfter = 2

	_, err = New(Config{Workers: 4}, q, backend, passthrough{}, newCountingRecorder(), nil).Run(context.Background())
	require.ErrorContains(t, err, "open session 2")
	assert.Equal(t, int32(2), backend.opened.Load())
	assert.Equal(t, int32(2), backend.closed.Load())
	assert.Equal(t, 3, q.Len())
}

func TestDispatcherRun_CancelAccountsForEveryItem(t *testing.T) {
	t.Parallel()

	input := items(50)
	q, err := memory.Fill(context.Background(), input)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var seen atomic.Int32
	backend := newFakeBackend(func(harvest.WorkItem) error {
		if seen.Add(1) == 5 {
			cancel()
		}
		time.Sleep(time.Millisecond)
		return nil
	})
	rec := newCountingRecorder()

	stats, err := New(Config{Workers: 2}, q, backend, passthrough{}, rec, nil).Run(ctx)
	require.NoError(t, err)

	require.Len(t, rec.counts, len(input))
	assert.Equal(t, len(input), stats.Processed+stats.Canceled)
	assert.Positive(t, stats.Canceled)
	assert.Equal(t, int32(2), backend.closed.Load())
}

func TestStatsItemsPerSecond(t *testing.T) {
	t.Parallel()

	assert.Zero(t, Stats{}.ItemsPerSecond())
	assert.InDelta(t, 5.0, Stats{Processed: 10, Elapsed: 2 * time.Second}.ItemsPerSecond(), 0.001)
}

type fakeBackend struct {
	behave    func(harvest.WorkItem) error
	failAfter int32
	opened    atomic.Int32
	closed    atomic.Int32
	overlaps  atomic.Int32

	mu       sync.Mutex
	inFlight map[string]bool
}

func newFakeBackend(behave func(harvest.WorkItem) error) *fakeBackend {
	return &fakeBackend{behave: behave, failAfter: -1, inFlight: map[string]bool{}}
}

func (b *fakeBackend) Name() string { return "fake" }

func (b *fakeBackend) NewSession(context.Context) (harvest.Session, error) {
	if b.failAfter >= 0 && b.opened.Load() >= b.failAfter {
		return nil, errors.New("browser failed to start")
	}
	b.opened.Add(1)
	return &fakeSession{backend: b}, nil
}

type fakeSession struct {
	backend *fakeBackend
}

func (s *fakeSession) Extract(ctx context.Context, item harvest.WorkItem) (harvest.RawRecord, error) {
	b := s.backend
	b.mu.Lock()
	if b.inFlight[item.URL] {
		b.overlaps.Add(1)
	}
	b.inFlight[item.URL] = true
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.inFlight, item.URL)
		b.mu.Unlock()
	}()

	if err := ctx.Err(); err != nil {
		return harvest.RawRecord{}, harvest.NewExtractionError(harvest.KindCanceled, item.URL, err)
	}
	if b.behave != nil {
		if err := b.behave(item); err != nil {
			return harvest.RawRecord{}, err
		}
	}
	return harvest.RawRecord{Payload: map[string]any{"name": item.URL}}, nil
}

func (s *fakeSession) Close() error {
	s.backend.closed.Add(1)
	return nil
}

type passthrough struct{}

func (passthrough) Normalize(_ harvest.RawRecord, item harvest.WorkItem) (harvest.ProductRecord, []string) {
	return harvest.ProductRecord{SourceURL: item.URL}, nil
}

type countingRecorder struct {
	mu      sync.Mutex
	counts  map[string]int
	entries map[string]harvest.Entry
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{counts: map[string]int{}, entries: map[string]harvest.Entry{}}
}

func (r *countingRecorder) Record(item harvest.WorkItem, entry harvest.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[item.URL]++
	r.entries[item.URL] = entry
}
