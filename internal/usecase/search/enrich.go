package search

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/cardscout/postcards/internal/domain/listing"
	"github.com/cardscout/postcards/internal/metrics"
)

// Default enrichment limits.
const (
	DefaultConcurrency           = 5
	DefaultImmediateBatch        = 10
	DefaultBackgroundMaxListings = 50
	DefaultBatchTimeout          = 30 * time.Second
	DefaultPacing                = 500 * time.Millisecond
	DefaultJobBudget             = 60 * time.Second
)

// Job finish reasons.
const (
	reasonCompleted = "completed"
	reasonBudget    = "budget"
	reasonCanceled  = "canceled"
)

// Limits bounds image enrichment work.
type Limits struct {
	// Concurrency is the number of vision calls allowed in flight across all
	// requests and is also the background batch size.
	Concurrency           int
	ImmediateBatch        int
	BackgroundMaxListings int
	BatchTimeout          time.Duration
	Pacing                time.Duration
	JobBudget             time.Duration
}

func (l *Limits) applyDefaults() {
	if l.Concurrency <= 0 {
		l.Concurrency = DefaultConcurrency
	}
	if l.ImmediateBatch <= 0 {
		l.ImmediateBatch = DefaultImmediateBatch
	}
	if l.BackgroundMaxListings <= 0 {
		l.BackgroundMaxListings = DefaultBackgroundMaxListings
	}
	if l.BatchTimeout <= 0 {
		l.BatchTimeout = DefaultBatchTimeout
	}
	if l.Pacing < 0 {
		l.Pacing = 0
	}
	if l.JobBudget <= 0 {
		l.JobBudget = DefaultJobBudget
	}
}

// DefaultLimits returns the standard enrichment limits.
func DefaultLimits() Limits {
	return Limits{
		Concurrency:           DefaultConcurrency,
		ImmediateBatch:        DefaultImmediateBatch,
		BackgroundMaxListings: DefaultBackgroundMaxListings,
		BatchTimeout:          DefaultBatchTimeout,
		Pacing:                DefaultPacing,
		JobBudget:             DefaultJobBudget,
	}
}

// Job is a handle to background enrichment started by Scheduler.Schedule.
type Job struct {
	cancel context.CancelFunc
	done   chan struct{}
	tasks  int
}

// Done is closed when the job has stopped.
func (j *Job) Done() <-chan struct{} { return j.done }

// Cancel stops the job. Images not yet extracted stay unprocessed.
func (j *Job) Cancel() { j.cancel() }

// Wait blocks until the job has stopped.
func (j *Job) Wait() { <-j.done }

// Tasks returns the number of images the job claimed.
func (j *Job) Tasks() int { return j.tasks }

// task fills one image slot of a listing. index is -1 for the primary image.
type task struct {
	l     *listing.Listing
	url   string
	index int
}

func (t task) record(e listing.Enrichment) {
	if t.index < 0 {
		t.l.SetImageText(e)
		return
	}
	t.l.SetAdditionalImageText(t.index, e)
}

// Scheduler runs image text extraction for search results. One weighted
// semaphore caps vision calls across immediate and background work.
type Scheduler struct {
	extractor Extractor
	processed ProcessedSet
	sem       *semaphore.Weighted
	limits    Limits
	logger    *zap.Logger

	mu     sync.Mutex
	jobs   map[*Job]struct{}
	closed bool
}

// NewScheduler creates a scheduler.
func NewScheduler(extractor Extractor, processed ProcessedSet, limits Limits, logger *zap.Logger) *Scheduler {
	limits.applyDefaults()
	return &Scheduler{
		extractor: extractor,
		processed: processed,
		sem:       semaphore.NewWeighted(int64(limits.Concurrency)),
		limits:    limits,
		logger:    logger,
		jobs:      make(map[*Job]struct{}),
	}
}

// EnrichImmediate extracts text from the primary and first additional image of
// the leading listings and waits for the results. Returns the number of
// listings covered.
func (s *Scheduler) EnrichImmediate(ctx context.Context, items []*listing.Listing) int {
	n := min(s.limits.ImmediateBatch, len(items))
	var tasks []task
	for _, l := range items[:n] {
		if l.ImageURL != "" {
			tasks = append(tasks, task{l: l, url: l.ImageURL, index: -1})
		}
		if len(l.AdditionalImages) > 0 {
			tasks = append(tasks, task{l: l, url: l.AdditionalImages[0], index: 0})
		}
	}
	metrics.EnrichmentTasksTotal.WithLabelValues("immediate").Add(float64(len(tasks)))
	s.runAll(ctx, tasks)
	return n
}

// Schedule starts background enrichment of up to BackgroundMaxListings
// listings and returns without waiting. Image URLs are claimed before Schedule
// returns, so overlapping searches never extract the same image twice.
// The job outlives ctx but keeps its values; it is bounded by JobBudget.
func (s *Scheduler) Schedule(ctx context.Context, items []*listing.Listing) *Job {
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.limits.JobBudget)
	job := &Job{cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		close(job.done)
		return job
	}
	s.jobs[job] = struct{}{}
	s.mu.Unlock()

	items = items[:min(s.limits.BackgroundMaxListings, len(items))]
	primary, additional := s.claim(items)
	job.tasks = len(primary) + len(additional)
	metrics.EnrichmentTasksTotal.WithLabelValues("background").Add(float64(job.tasks))

	go func() {
		defer close(job.done)
		defer s.forget(job)
		defer cancel()

		metrics.EnrichmentJobsActive.Inc()
		defer metrics.EnrichmentJobsActive.Dec()

		start := time.Now()
		reason := s.runJob(jobCtx, primary, additional)
		metrics.EnrichmentJobsStoppedTotal.WithLabelValues(reason).Inc()

		s.logger.Debug("Background enrichment finished",
			zap.String("reason", reason),
			zap.Int("primary_images", len(primary)),
			zap.Int("additional_images", len(additional)),
			zap.Duration("duration", time.Since(start)),
		)
	}()
	return job
}

// Active returns the number of running background jobs.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Close cancels running jobs, waits for them to stop and rejects new ones.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	jobs := make([]*Job, 0, len(s.jobs))
	for j := range s.jobs {
		jobs = append(jobs, j)
	}
	s.mu.Unlock()

	for _, j := range jobs {
		j.Cancel()
	}
	for _, j := range jobs {
		j.Wait()
	}
}

func (s *Scheduler) forget(job *Job) {
	s.mu.Lock()
	delete(s.jobs, job)
	s.mu.Unlock()
}

// claim builds primary and additional image tasks for URLs no other job owns.
func (s *Scheduler) claim(items []*listing.Listing) (primary, additional []task) {
	for _, l := range items {
		if l.ImageURL != "" && s.processed.Claim(l.ImageURL) {
			primary = append(primary, task{l: l, url: l.ImageURL, index: -1})
		}
	}
	for _, l := range items {
		for i, url := range l.AdditionalImages {
			if url == "" {
				l.SetAdditionalImageText(i, listing.NoText())
				continue
			}
			if s.processed.Claim(url) {
				additional = append(additional, task{l: l, url: url, index: i})
			}
		}
	}
	return primary, additional
}

// runJob processes all primary images before any additional image.
func (s *Scheduler) runJob(ctx context.Context, primary, additional []task) string {
	for _, group := range [][]task{primary, additional} {
		if !s.runBatches(ctx, group) {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return reasonBudget
			}
			return reasonCanceled
		}
	}
	return reasonCompleted
}

// runBatches runs tasks in batches of Concurrency. A batch exceeding
// BatchTimeout is abandoned and the next one starts after Pacing.
// Returns false once ctx is done.
func (s *Scheduler) runBatches(ctx context.Context, tasks []task) bool {
	size := s.limits.Concurrency
	for start := 0; start < len(tasks); start += size {
		if ctx.Err() != nil {
			return false
		}
		end := min(start+size, len(tasks))

		batchCtx, cancel := context.WithTimeout(ctx, s.limits.BatchTimeout)
		s.runAll(batchCtx, tasks[start:end])
		if errors.Is(batchCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			metrics.EnrichmentBatchTimeoutsTotal.Inc()
			s.logger.Warn("Enrichment batch timed out",
				zap.Int("batch_start", start),
				zap.Int("batch_size", end-start),
				zap.Duration("timeout", s.limits.BatchTimeout),
			)
		}
		cancel()

		if end < len(tasks) {
			if err := sleepCtx(ctx, s.limits.Pacing); err != nil {
				return false
			}
		}
	}
	return true
}

// runAll runs tasks concurrently and waits for all of them.
func (s *Scheduler) runAll(ctx context.Context, tasks []task) {
	var wg sync.WaitGroup
	for _, t := range tasks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.run(ctx, t)
		}()
	}
	wg.Wait()
}

// run extracts one image under the shared semaphore. Work cut short by ctx
// leaves the slot unprocessed.
func (s *Scheduler) run(ctx context.Context, t task) {
	if t.url == "" {
		t.record(listing.NoText())
		return
	}
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer s.sem.Release(1)

	e := s.extractor.Extract(ctx, t.url)
	if ctx.Err() != nil {
		return
	}
	t.record(e)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
