package search

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/cardscout/postcards/internal/domain/listing"
	"github.com/cardscout/postcards/internal/metrics"
	"github.com/cardscout/postcards/internal/repository/textcache"
)

// --- Mocks ---

type mockExtractor struct {
	mu          sync.Mutex
	calls       []string
	inFlight    int
	maxInFlight int
	// fn overrides the default reply, which is the URL itself as text.
	fn func(ctx context.Context, url string) listing.Enrichment
}

func (m *mockExtractor) Extract(ctx context.Context, url string) listing.Enrichment {
	m.mu.Lock()
	m.calls = append(m.calls, url)
	m.inFlight++
	m.maxInFlight = max(m.maxInFlight, m.inFlight)
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	if m.fn != nil {
		return m.fn(ctx, url)
	}
	return listing.WithText("text of " + url)
}

func (m *mockExtractor) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// blockUntilDone waits for ctx and then returns text that must never be recorded.
func blockUntilDone(ctx context.Context, _ string) listing.Enrichment {
	<-ctx.Done()
	return listing.WithText("late")
}

func postcards(n, extra int) []*listing.Listing {
	items := make([]*listing.Listing, n)
	for i := range items {
		l := &listing.Listing{
			Source:   "eBay",
			Title:    fmt.Sprintf("card %d", i),
			ImageURL: fmt.Sprintf("https://img.test/%d/main.jpg", i),
		}
		for j := 0; j < extra; j++ {
			l.AdditionalImages = append(l.AdditionalImages, fmt.Sprintf("https://img.test/%d/extra%d.jpg", i, j))
		}
		items[i] = l
	}
	return items
}

func testLimits() Limits {
	return Limits{
		Concurrency:           5,
		ImmediateBatch:        10,
		BackgroundMaxListings: 50,
		BatchTimeout:          time.Second,
		Pacing:                0,
		JobBudget:             5 * time.Second,
	}
}

func waitJob(t *testing.T, job *Job) {
	t.Helper()
	select {
	case <-job.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("job did not finish")
	}
}

// --- Tests ---

func TestEnrichImmediate_CoversLeadingListings(t *testing.T) {
	ext := &mockExtractor{}
	s := NewScheduler(ext, textcache.NewProcessedSet(), testLimits(), zap.NewNop())
	items := postcards(12, 2)

	n := s.EnrichImmediate(context.Background(), items)
	if n != 10 {
		t.Fatalf("expected 10 listings covered, got %d", n)
	}
	if got := len(ext.Calls()); got != 20 {
		t.Errorf("expected 20 extractions (primary + first additional), got %d", got)
	}

	for i, l := range items[:10] {
		if !l.ImageText().HasText() {
			t.Errorf("listing %d: primary image text missing", i)
		}
		if !l.AdditionalImageText(0).HasText() {
			t.Errorf("listing %d: first additional image text missing", i)
		}
		if l.AdditionalImageText(1).IsProcessed() {
			t.Errorf("listing %d: second additional image should stay pending", i)
		}
	}
	for i, l := range items[10:] {
		if l.ImageText().IsProcessed() {
			t.Errorf("listing %d: should stay pending", i+10)
		}
	}
}

func TestEnrichImmediate_FewerListingsThanBatch(t *testing.T) {
	ext := &mockExtractor{}
	s := NewScheduler(ext, textcache.NewProcessedSet(), testLimits(), zap.NewNop())

	if n := s.EnrichImmediate(context.Background(), postcards(3, 0)); n != 3 {
		t.Errorf("expected 3, got %d", n)
	}
	if n := s.EnrichImmediate(context.Background(), nil); n != 0 {
		t.Errorf("expected 0 for no listings, got %d", n)
	}
}

func TestScheduler_CapsConcurrentExtractions(t *testing.T) {
	ext := &mockExtractor{fn: func(_ context.Context, url string) listing.Enrichment {
		time.Sleep(10 * time.Millisecond)
		return listing.WithText(url)
	}}
	limits := testLimits()
	limits.Concurrency = 2
	s := NewScheduler(ext, textcache.NewProcessedSet(), limits, zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.EnrichImmediate(context.Background(), postcards(4, 1))
		}()
	}
	job := s.Schedule(context.Background(), postcards(6, 1))
	wg.Wait()
	waitJob(t, job)

	ext.mu.Lock()
	defer ext.mu.Unlock()
	if ext.maxInFlight > 2 {
		t.Errorf("expected at most 2 extractions in flight, saw %d", ext.maxInFlight)
	}
}

func TestSchedule_PrimaryImagesFirst(t *testing.T) {
	ext := &mockExtractor{}
	limits := testLimits()
	limits.Concurrency = 1
	s := NewScheduler(ext, textcache.NewProcessedSet(), limits, zap.NewNop())
	items := postcards(4, 2)

	job := s.Schedule(context.Background(), items)
	if job.Tasks() != 12 {
		t.Fatalf("expected 12 tasks, got %d", job.Tasks())
	}
	waitJob(t, job)

	calls := ext.Calls()
	seenAdditional := false
	for _, url := range calls {
		isPrimary := strings.HasSuffix(url, "/main.jpg")
		if isPrimary && seenAdditional {
			t.Fatalf("primary image %s extracted after an additional image: %v", url, calls)
		}
		if !isPrimary {
			seenAdditional = true
		}
	}
	for i, l := range items {
		if !l.ImageText().HasText() || !l.AdditionalImageText(1).HasText() {
			t.Errorf("listing %d not fully enriched", i)
		}
	}
}

func TestSchedule_CapsBackgroundListings(t *testing.T) {
	ext := &mockExtractor{}
	limits := testLimits()
	limits.BackgroundMaxListings = 3
	s := NewScheduler(ext, textcache.NewProcessedSet(), limits, zap.NewNop())
	items := postcards(5, 0)

	job := s.Schedule(context.Background(), items)
	waitJob(t, job)

	if job.Tasks() != 3 {
		t.Errorf("expected 3 tasks, got %d", job.Tasks())
	}
	if items[3].ImageText().IsProcessed() || items[4].ImageText().IsProcessed() {
		t.Error("listings past the background cap should stay pending")
	}
}

func TestSchedule_SkipsClaimedURLs(t *testing.T) {
	ext := &mockExtractor{}
	processed := textcache.NewProcessedSet()
	s := NewScheduler(ext, processed, testLimits(), zap.NewNop())
	items := postcards(3, 1)

	first := s.Schedule(context.Background(), items)
	second := s.Schedule(context.Background(), items)
	waitJob(t, first)
	waitJob(t, second)

	if first.Tasks() != 6 {
		t.Errorf("first job: expected 6 tasks, got %d", first.Tasks())
	}
	if second.Tasks() != 0 {
		t.Errorf("second job: expected 0 tasks, got %d", second.Tasks())
	}
	if got := len(ext.Calls()); got != 6 {
		t.Errorf("expected each image extracted once, got %d calls", got)
	}
	if !processed.Contains(items[0].AdditionalImages[0]) {
		t.Error("additional image should be claimed")
	}
}

func TestSchedule_EmptyAdditionalURLIsNoText(t *testing.T) {
	ext := &mockExtractor{}
	s := NewScheduler(ext, textcache.NewProcessedSet(), testLimits(), zap.NewNop())
	l := &listing.Listing{ImageURL: "https://img.test/a.jpg", AdditionalImages: []string{"", "https://img.test/b.jpg"}}

	job := s.Schedule(context.Background(), []*listing.Listing{l})
	waitJob(t, job)

	if st := l.AdditionalImageText(0).State(); st != listing.ProcessedNoText {
		t.Errorf("empty additional URL: state = %v, want no_text", st)
	}
	if !l.AdditionalImageText(1).HasText() {
		t.Error("second additional image should have text")
	}
	for _, url := range ext.Calls() {
		if url == "" {
			t.Error("empty URL must not reach the extractor")
		}
	}
}

func TestSchedule_BatchTimeoutLeavesSlotsPending(t *testing.T) {
	ext := &mockExtractor{fn: func(ctx context.Context, url string) listing.Enrichment {
		if strings.HasPrefix(url, "https://img.test/0/") {
			return blockUntilDone(ctx, url)
		}
		return listing.WithText(url)
	}}
	limits := testLimits()
	limits.Concurrency = 1
	limits.BatchTimeout = 20 * time.Millisecond
	s := NewScheduler(ext, textcache.NewProcessedSet(), limits, zap.NewNop())
	items := postcards(2, 0)

	before := testutil.ToFloat64(metrics.EnrichmentBatchTimeoutsTotal)
	job := s.Schedule(context.Background(), items)
	waitJob(t, job)

	if items[0].ImageText().IsProcessed() {
		t.Error("timed-out image should stay pending")
	}
	if !items[1].ImageText().HasText() {
		t.Error("next batch should still run after a timeout")
	}
	if got := testutil.ToFloat64(metrics.EnrichmentBatchTimeoutsTotal) - before; got != 1 {
		t.Errorf("expected 1 batch timeout recorded, got %v", got)
	}
}

func TestSchedule_OutlivesRequestContext(t *testing.T) {
	release := make(chan struct{})
	ext := &mockExtractor{fn: func(_ context.Context, url string) listing.Enrichment {
		<-release
		return listing.WithText(url)
	}}
	s := NewScheduler(ext, textcache.NewProcessedSet(), testLimits(), zap.NewNop())
	items := postcards(2, 0)

	ctx, cancel := context.WithCancel(context.Background())
	job := s.Schedule(ctx, items)
	cancel()
	close(release)
	waitJob(t, job)

	for i, l := range items {
		if !l.ImageText().HasText() {
			t.Errorf("listing %d: background work should survive the request", i)
		}
	}
}

func TestJob_Cancel(t *testing.T) {
	ext := &mockExtractor{fn: blockUntilDone}
	s := NewScheduler(ext, textcache.NewProcessedSet(), testLimits(), zap.NewNop())
	items := postcards(3, 0)

	job := s.Schedule(context.Background(), items)
	job.Cancel()
	waitJob(t, job)

	for i, l := range items {
		if l.ImageText().IsProcessed() {
			t.Errorf("listing %d: canceled work must not be recorded", i)
		}
	}
	if s.Active() != 0 {
		t.Errorf("expected no active jobs, got %d", s.Active())
	}
}

func TestJob_BudgetBoundsRuntime(t *testing.T) {
	ext := &mockExtractor{fn: blockUntilDone}
	limits := testLimits()
	limits.BatchTimeout = time.Hour
	limits.JobBudget = 30 * time.Millisecond
	s := NewScheduler(ext, textcache.NewProcessedSet(), limits, zap.NewNop())

	start := time.Now()
	job := s.Schedule(context.Background(), postcards(2, 0))
	waitJob(t, job)

	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("job ran for %v past its budget", elapsed)
	}
}

func TestJob_PacingBetweenBatches(t *testing.T) {
	ext := &mockExtractor{}
	limits := testLimits()
	limits.Concurrency = 1
	limits.Pacing = 20 * time.Millisecond
	s := NewScheduler(ext, textcache.NewProcessedSet(), limits, zap.NewNop())

	start := time.Now()
	job := s.Schedule(context.Background(), postcards(3, 0))
	waitJob(t, job)

	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("expected two pauses between three batches, finished in %v", elapsed)
	}
}

func TestScheduler_Close(t *testing.T) {
	ext := &mockExtractor{fn: blockUntilDone}
	s := NewScheduler(ext, textcache.NewProcessedSet(), testLimits(), zap.NewNop())

	job := s.Schedule(context.Background(), postcards(2, 0))
	if s.Active() != 1 {
		t.Fatalf("expected 1 active job, got %d", s.Active())
	}

	s.Close()
	select {
	case <-job.Done():
	default:
		t.Fatal("Close should wait for running jobs")
	}
	if s.Active() != 0 {
		t.Errorf("expected no active jobs after Close, got %d", s.Active())
	}

	late := s.Schedule(context.Background(), postcards(2, 0))
	select {
	case <-late.Done():
	default:
		t.Fatal("jobs scheduled after Close should be done immediately")
	}
	if late.Tasks() != 0 {
		t.Errorf("expected no tasks after Close, got %d", late.Tasks())
	}
}

func TestLimits_ApplyDefaults(t *testing.T) {
	var l Limits
	l.applyDefaults()

	want := DefaultLimits()
	want.Pacing = 0
	if l != want {
		t.Errorf("applyDefaults() = %+v, want %+v", l, want)
	}
}
