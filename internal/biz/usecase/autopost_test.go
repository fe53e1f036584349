package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DevRickLin/feishu-market-bot/internal/biz/domain"
)

// MockPublisher fails for the listed ids and marks the others posted
type MockPublisher struct {
	mu       sync.Mutex
	listings *MockListingRepo
	failing  map[string]bool
	calls    []string
}

func (p *MockPublisher) Publish(ctx context.Context, id string) (*PublishResult, error) {
	p.mu.Lock()
	p.calls = append(p.calls, id)
	fail := p.failing[id]
	p.mu.Unlock()

	if fail {
		return &PublishResult{ListingID: id, Error: "boom"}, &domain.PublishError{ListingID: id, Err: errBoom}
	}
	ok, err := p.listings.MarkPosted(ctx, id, "om_"+id, time.Now())
	if err != nil {
		return nil, err
	}
	return &PublishResult{Success: true, ListingID: id, MessageRef: "om_" + id, AlreadyPosted: !ok}, nil
}

func (p *MockPublisher) called() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

type autoPostFixture struct {
	uc        *AutoPostUsecase
	listings  *MockListingRepo
	prefs     *MockPreferenceRepo
	publisher *MockPublisher
	now       time.Time
}

func newAutoPostFixture(cfg AutoPostConfig, listings ...*domain.Listing) *autoPostFixture {
	f := &autoPostFixture{
		listings: NewMockListingRepo(listings...),
		prefs:    NewMockPreferenceRepo(),
		now:      time.Date(2025, 5, 15, 12, 0, 0, 0, time.UTC),
	}
	f.publisher = &MockPublisher{listings: f.listings, failing: make(map[string]bool)}
	f.uc = NewAutoPostUsecase(f.listings, f.prefs, f.publisher, cfg)
	f.uc.now = func() time.Time { return f.now }
	return f
}

func TestSweep_PublishesOldestCandidateOnly(t *testing.T) {
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	f := newAutoPostFixture(AutoPostConfig{Limit: 1},
		testListing("newer", "u1", base.Add(time.Hour)),
		testListing("older", "u1", base),
	)

	report, err := f.uc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Candidates)
	assert.Equal(t, []string{"older"}, report.Published)
	assert.True(t, f.listings.get("older").Posted)
	assert.False(t, f.listings.get("newer").Posted)
}

func TestSweep_SkipsScheduledAndPosted(t *testing.T) {
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	at := base.Add(48 * time.Hour)
	scheduled := testListing("scheduled", "u1", base)
	scheduled.ScheduledAt = &at
	posted := testListing("posted", "u1", base)
	posted.Posted = true

	f := newAutoPostFixture(AutoPostConfig{Limit: 5}, scheduled, posted)

	report, err := f.uc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Candidates)
	assert.Empty(t, report.Published)
	assert.Empty(t, f.publisher.called())
}

func TestSweep_HonoursAutoPostPreference(t *testing.T) {
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	f := newAutoPostFixture(AutoPostConfig{Limit: 1},
		testListing("optout", "u1", base),
		testListing("allowed", "u2", base.Add(time.Minute)),
	)
	f.prefs.set("u1", func(p *domain.Preferences) { p.AutoPost = false })

	report, err := f.uc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.OptedOut)
	assert.Equal(t, []string{"allowed"}, report.Published)
	assert.False(t, f.listings.get("optout").Posted)
}

func TestSweep_PreferenceErrorCountsAsOptOut(t *testing.T) {
	f := newAutoPostFixture(AutoPostConfig{Limit: 1}, testListing("l1", "u1", time.Now()))
	f.prefs.err = errBoom

	report, err := f.uc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.OptedOut)
	assert.Empty(t, f.publisher.called())
}

func TestSweep_FailedCandidateCoolsDown(t *testing.T) {
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	f := newAutoPostFixture(AutoPostConfig{Limit: 1, RetryAfter: time.Hour},
		testListing("broken", "u1", base),
		testListing("fine", "u1", base.Add(time.Minute)),
	)
	f.publisher.failing["broken"] = true

	report, err := f.uc.Sweep(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, "broken", report.Failed[0].ListingID)
	assert.Empty(t, report.Published)

	// The failed listing is skipped so the next one gets its turn
	report, err = f.uc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.CoolingDown)
	assert.Equal(t, []string{"fine"}, report.Published)

	// After the cooldown it is retried
	f.now = f.now.Add(2 * time.Hour)
	f.publisher.failing["broken"] = false
	report, err = f.uc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"broken"}, report.Published)
}

func TestSweep_LimitAboveOnePausesBetweenPosts(t *testing.T) {
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	f := newAutoPostFixture(AutoPostConfig{Limit: 2, Delay: 20 * time.Millisecond},
		testListing("a", "u1", base),
		testListing("b", "u1", base.Add(time.Minute)),
		testListing("c", "u1", base.Add(2*time.Minute)),
	)

	start := time.Now()
	report, err := f.uc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, report.Published)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestSweep_CancelledContextInterrupts(t *testing.T) {
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	f := newAutoPostFixture(AutoPostConfig{Limit: 2, Delay: time.Hour},
		testListing("a", "u1", base),
		testListing("b", "u1", base.Add(time.Minute)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		assert.Eventually(t, func() bool { return len(f.publisher.called()) == 1 }, time.Second, time.Millisecond)
		cancel()
	}()

	report, err := f.uc.Sweep(ctx)
	require.NoError(t, err)
	assert.True(t, report.Interrupted)
	assert.Equal(t, []string{"a"}, report.Published)
}

func TestNewAutoPostUsecase_DefaultsLimit(t *testing.T) {
	uc := NewAutoPostUsecase(NewMockListingRepo(), NewMockPreferenceRepo(), &MockPublisher{}, AutoPostConfig{})
	assert.Equal(t, 1, uc.cfg.Limit)
}
