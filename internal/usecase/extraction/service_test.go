package extraction

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/cardscout/postcards/internal/domain"
	"github.com/cardscout/postcards/internal/domain/listing"
	"github.com/cardscout/postcards/internal/repository/textcache"
)

// --- Mocks ---

type mockFetcher struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (m *mockFetcher) Fetch(_ context.Context, url string) (domain.Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, url)
	if m.err != nil {
		return domain.Image{}, m.err
	}
	return domain.Image{Data: []byte{0xff, 0xd8}, ContentType: "image/jpeg"}, nil
}

func (m *mockFetcher) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type visionReply struct {
	text string
	err  error
}

// mockVision replies per model from a queue; the last reply repeats.
type mockVision struct {
	mu      sync.Mutex
	replies map[string][]visionReply
	calls   []string
}

func (m *mockVision) Transcribe(_ context.Context, model string, _ domain.Image) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, model)
	q := m.replies[model]
	if len(q) == 0 {
		return "", errors.New("unexpected model " + model)
	}
	r := q[0]
	if len(q) > 1 {
		m.replies[model] = q[1:]
	}
	return r.text, r.err
}

func newTestService(f ImageFetcher, v VisionModel) (*Service, *[]time.Duration) {
	svc := New(textcache.NewMemory(), f, v, Options{}, zap.NewNop())
	var sleeps []time.Duration
	svc.sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	return svc, &sleeps
}

// --- Tests ---

func TestExtract_TextCachedAndReused(t *testing.T) {
	f := &mockFetcher{}
	v := &mockVision{replies: map[string][]visionReply{
		DefaultPrimaryModel: {{text: "Greetings from\n\nCape Cod"}},
	}}
	svc, _ := newTestService(f, v)
	ctx := context.Background()

	first := svc.Extract(ctx, "https://i.ebayimg.com/a.jpg")
	second := svc.Extract(ctx, "https://i.ebayimg.com/a.jpg")

	if first.Text() != "Greetings from\nCape Cod" {
		t.Errorf("text = %q", first.Text())
	}
	if first != second {
		t.Errorf("cached result differs: %v vs %v", first, second)
	}
	if f.count() != 1 {
		t.Errorf("expected 1 download, got %d", f.count())
	}
	if len(v.calls) != 1 {
		t.Errorf("expected 1 model call, got %d", len(v.calls))
	}
}

func TestExtract_SentinelCachedAsNoText(t *testing.T) {
	f := &mockFetcher{}
	v := &mockVision{replies: map[string][]visionReply{
		DefaultPrimaryModel: {{text: "NO_TEXT_FOUND"}},
	}}
	cache := textcache.NewMemory()
	svc := New(cache, f, v, Options{}, zap.NewNop())

	e := svc.Extract(context.Background(), "https://i.etsystatic.com/b.jpg")
	if e.State() != listing.ProcessedNoText {
		t.Fatalf("State() = %v, want no_text", e.State())
	}

	cached, ok := cache.Get(context.Background(), "https://i.etsystatic.com/b.jpg")
	if !ok || cached.State() != listing.ProcessedNoText {
		t.Error("no-text outcome should be cached")
	}

	svc.Extract(context.Background(), "https://i.etsystatic.com/b.jpg")
	if f.count() != 1 {
		t.Errorf("cached no-text should not download again, got %d downloads", f.count())
	}
}

func TestExtract_PlaceholderSkipsNetwork(t *testing.T) {
	f := &mockFetcher{}
	v := &mockVision{}
	svc, _ := newTestService(f, v)

	for _, url := range []string{
		"https://placehold.co/150x150/png?text=paris",
		"https://example.com/postcard1.jpg",
		"https://dummyimage.com/600x400",
	} {
		e := svc.Extract(context.Background(), url)
		if e.State() != listing.ProcessedNoText {
			t.Errorf("%s: State() = %v, want no_text", url, e.State())
		}
	}
	if f.count() != 0 || len(v.calls) != 0 {
		t.Errorf("placeholder URLs must not hit the network: %d downloads, %d model calls", f.count(), len(v.calls))
	}
}

func TestExtract_EmptyURL(t *testing.T) {
	f := &mockFetcher{}
	svc, _ := newTestService(f, &mockVision{})
	if e := svc.Extract(context.Background(), ""); e.State() != listing.ProcessedNoText {
		t.Errorf("State() = %v", e.State())
	}
	if f.count() != 0 {
		t.Error("empty URL must not be fetched")
	}
}

func TestExtract_DownloadFailureNotCached(t *testing.T) {
	f := &mockFetcher{err: domain.ErrImageDownload}
	cache := textcache.NewMemory()
	svc := New(cache, f, &mockVision{}, Options{}, zap.NewNop())

	e := svc.Extract(context.Background(), "https://i.ebayimg.com/c.jpg")
	if e.State() != listing.ProcessedNoText {
		t.Errorf("State() = %v", e.State())
	}
	if cache.Len() != 0 {
		t.Error("download failures must not be cached")
	}
}

func TestExtract_FallbackModelWithinAttempt(t *testing.T) {
	v := &mockVision{replies: map[string][]visionReply{
		DefaultPrimaryModel:  {{err: errors.New("model not available")}},
		DefaultFallbackModel: {{text: "Chicago World's Fair"}},
	}}
	svc, sleeps := newTestService(&mockFetcher{}, v)

	e := svc.Extract(context.Background(), "https://i.ebayimg.com/d.jpg")
	if e.Text() != "Chicago World's Fair" {
		t.Errorf("text = %q", e.Text())
	}
	if len(*sleeps) != 0 {
		t.Errorf("fallback within one attempt should not back off, slept %v", *sleeps)
	}
	want := []string{DefaultPrimaryModel, DefaultFallbackModel}
	if len(v.calls) != 2 || v.calls[0] != want[0] || v.calls[1] != want[1] {
		t.Errorf("calls = %v, want %v", v.calls, want)
	}
}

func TestExtract_RetriesWithBackoff(t *testing.T) {
	v := &mockVision{replies: map[string][]visionReply{
		DefaultPrimaryModel: {{text: ""}, {text: "  "}, {text: "Golden Gate Bridge"}},
	}}
	svc, sleeps := newTestService(&mockFetcher{}, v)

	e := svc.Extract(context.Background(), "https://i.ebayimg.com/e.jpg")
	if e.Text() != "Golden Gate Bridge" {
		t.Errorf("text = %q", e.Text())
	}
	want := []time.Duration{time.Second, 2 * time.Second}
	if len(*sleeps) != len(want) || (*sleeps)[0] != want[0] || (*sleeps)[1] != want[1] {
		t.Errorf("sleeps = %v, want %v", *sleeps, want)
	}
}

func TestExtract_AttemptsExhausted(t *testing.T) {
	v := &mockVision{replies: map[string][]visionReply{
		DefaultPrimaryModel:  {{err: errors.New("rate limited")}},
		DefaultFallbackModel: {{err: errors.New("rate limited")}},
	}}
	cache := textcache.NewMemory()
	svc := New(cache, &mockFetcher{}, v, Options{}, zap.NewNop())
	svc.sleep = func(context.Context, time.Duration) error { return nil }

	e := svc.Extract(context.Background(), "https://i.ebayimg.com/f.jpg")
	if e.State() != listing.ProcessedNoText {
		t.Errorf("State() = %v", e.State())
	}
	if len(v.calls) != 2*DefaultMaxAttempts {
		t.Errorf("expected %d model calls, got %d", 2*DefaultMaxAttempts, len(v.calls))
	}
	if cache.Len() != 0 {
		t.Error("exhausted retries must not be cached")
	}
}

func TestExtract_NoVisionModel(t *testing.T) {
	f := &mockFetcher{}
	svc := New(textcache.NewMemory(), f, nil, Options{}, zap.NewNop())
	if e := svc.Extract(context.Background(), "https://i.ebayimg.com/g.jpg"); e.HasText() {
		t.Error("expected no text without a vision model")
	}
	if f.count() != 0 {
		t.Error("image should not be downloaded without a vision model")
	}
}

func TestDiagnose(t *testing.T) {
	v := &mockVision{replies: map[string][]visionReply{
		DefaultPrimaryModel: {{text: "Text: Union Station"}},
	}}
	cache := textcache.NewMemory()
	svc := New(cache, &mockFetcher{}, v, Options{}, zap.NewNop())

	r, err := svc.Diagnose(context.Background(), "https://i.ebayimg.com/h.jpg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Text != "Union Station" || r.ImageURL != "https://i.ebayimg.com/h.jpg" {
		t.Errorf("report = %+v", r)
	}
	if cache.Len() != 0 {
		t.Error("diagnostics must not fill the cache")
	}
}

func TestDiagnose_DownloadError(t *testing.T) {
	svc, _ := newTestService(&mockFetcher{err: domain.ErrImageDownload}, &mockVision{})
	_, err := svc.Diagnose(context.Background(), "https://i.ebayimg.com/i.jpg")
	if !errors.Is(err, domain.ErrImageDownload) {
		t.Errorf("expected ErrImageDownload, got %v", err)
	}
}
