package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DevRickLin/feishu-market-bot/internal/biz/domain"
	"github.com/DevRickLin/feishu-market-bot/internal/biz/repo"
)

// MockListingRepo is an in-memory repo.ListingRepo
type MockListingRepo struct {
	mu       sync.Mutex
	listings map[string]*domain.Listing
	leases   map[string]time.Time
	getErr   error

	// markFailures makes the next MarkPosted calls fail
	markFailures int
	markCalls    int
}

func NewMockListingRepo(listings ...*domain.Listing) *MockListingRepo {
	r := &MockListingRepo{listings: make(map[string]*domain.Listing), leases: make(map[string]time.Time)}
	for _, l := range listings {
		r.listings[l.ID] = l.Clone()
	}
	return r
}

func (r *MockListingRepo) Create(ctx context.Context, l *domain.Listing) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listings[l.ID] = l.Clone()
	return nil
}

func (r *MockListingRepo) Get(ctx context.Context, id string) (*domain.Listing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	l, ok := r.listings[id]
	if !ok {
		return nil, domain.ErrListingNotFound
	}
	return l.Clone(), nil
}

func (r *MockListingRepo) Update(ctx context.Context, l *domain.Listing) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.listings[l.ID]; !ok {
		return domain.ErrListingNotFound
	}
	r.listings[l.ID] = l.Clone()
	return nil
}

func (r *MockListingRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.listings[id]; !ok {
		return domain.ErrListingNotFound
	}
	delete(r.listings, id)
	return nil
}

func (r *MockListingRepo) sorted(keep func(*domain.Listing) bool, newestFirst bool) []*domain.Listing {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Listing
	for _, l := range r.listings {
		if keep(l) {
			out = append(out, l.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if newestFirst {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (r *MockListingRepo) ListByOwner(ctx context.Context, ownerID string) ([]*domain.Listing, error) {
	return r.sorted(func(l *domain.Listing) bool { return l.OwnerID == ownerID }, true), nil
}

func (r *MockListingRepo) ListAll(ctx context.Context) ([]*domain.Listing, error) {
	return r.sorted(func(*domain.Listing) bool { return true }, true), nil
}

func (r *MockListingRepo) ListAutoPostCandidates(ctx context.Context) ([]*domain.Listing, error) {
	return r.sorted(func(l *domain.Listing) bool { return !l.Posted && l.ScheduledAt == nil }, false), nil
}

func (r *MockListingRepo) ListPendingScheduled(ctx context.Context) ([]*domain.Listing, error) {
	return r.sorted(func(l *domain.Listing) bool { return l.IsPending() }, false), nil
}

func (r *MockListingRepo) ClaimPublish(ctx context.Context, id string, now, until time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.listings[id]
	if !ok || l.Posted {
		return false, nil
	}
	if held, ok := r.leases[id]; ok && held.After(now) {
		return false, nil
	}
	r.leases[id] = until
	return true, nil
}

func (r *MockListingRepo) ReleasePublish(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.leases, id)
	return nil
}

func (r *MockListingRepo) leased(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.leases[id]
	return ok
}

func (r *MockListingRepo) MarkPosted(ctx context.Context, id, messageRef string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.markCalls++
	if r.markFailures > 0 {
		r.markFailures--
		return false, errors.New("database is locked")
	}
	l, ok := r.listings[id]
	if !ok {
		return false, domain.ErrListingNotFound
	}
	if l.Posted {
		return false, nil
	}
	delete(r.leases, id)
	l.Posted = true
	l.PublishedMessageRef = messageRef
	l.PostedAt = &at
	return true, nil
}

func (r *MockListingRepo) get(id string) *domain.Listing {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listings[id].Clone()
}

func (r *MockListingRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.listings)
}

// MockProfileRepo is an in-memory repo.ProfileRepo
type MockProfileRepo struct {
	mu       sync.Mutex
	profiles map[string]*domain.Profile
	saveErr  error
}

func NewMockProfileRepo(profiles ...*domain.Profile) *MockProfileRepo {
	r := &MockProfileRepo{profiles: make(map[string]*domain.Profile)}
	for _, p := range profiles {
		r.profiles[p.UserID] = p
	}
	return r
}

func (r *MockProfileRepo) Get(ctx context.Context, userID string) (*domain.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[userID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *MockProfileRepo) Save(ctx context.Context, p *domain.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	cp := *p
	r.profiles[p.UserID] = &cp
	return nil
}

// MockPreferenceRepo is an in-memory repo.PreferenceRepo
type MockPreferenceRepo struct {
	mu    sync.Mutex
	prefs map[string]*domain.Preferences
	err   error
}

func NewMockPreferenceRepo() *MockPreferenceRepo {
	return &MockPreferenceRepo{prefs: make(map[string]*domain.Preferences)}
}

func (r *MockPreferenceRepo) Get(ctx context.Context, userID string) (*domain.Preferences, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	p, ok := r.prefs[userID]
	if !ok {
		return domain.DefaultPreferences(userID), nil
	}
	cp := *p
	return &cp, nil
}

func (r *MockPreferenceRepo) Save(ctx context.Context, p *domain.Preferences) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.prefs[p.UserID] = &cp
	return nil
}

func (r *MockPreferenceRepo) set(userID string, mutate func(*domain.Preferences)) {
	p := domain.DefaultPreferences(userID)
	mutate(p)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prefs[userID] = p
}

// MockMessageRepo records outbound notices
type MockMessageRepo struct {
	mu       sync.Mutex
	notices  map[string][]string
	admin    []string
	adminErr error
	replies  []domain.Effect
	replyErr error
}

func NewMockMessageRepo() *MockMessageRepo {
	return &MockMessageRepo{notices: make(map[string][]string)}
}

func (r *MockMessageRepo) Reply(ctx context.Context, userID string, effect domain.Effect) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.replyErr != nil {
		return "", r.replyErr
	}
	r.replies = append(r.replies, effect)
	return "om_reply", nil
}

func (r *MockMessageRepo) NotifyUser(ctx context.Context, userID, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices[userID] = append(r.notices[userID], text)
	return nil
}

func (r *MockMessageRepo) NotifyAdmin(ctx context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.adminErr != nil {
		return r.adminErr
	}
	r.admin = append(r.admin, text)
	return nil
}

func (r *MockMessageRepo) noticesFor(userID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.notices[userID]...)
}

// MockChannelRepo counts channel posts
type MockChannelRepo struct {
	calls   atomic.Int32
	err     error
	release chan struct{}
	caption string
	mu      sync.Mutex
}

func (r *MockChannelRepo) PublishPhoto(ctx context.Context, imageRef, caption string, buttons [][]domain.Button) (string, error) {
	n := r.calls.Add(1)
	if r.release != nil {
		<-r.release
	}
	if r.err != nil {
		return "", r.err
	}
	r.mu.Lock()
	r.caption = caption
	r.mu.Unlock()
	return fmt.Sprintf("om_post_%d", n), nil
}

// MockEventRepo records emitted events
type MockEventRepo struct {
	mu     sync.Mutex
	events []domain.ListingEvent
}

func (r *MockEventRepo) Emit(ctx context.Context, ev domain.ListingEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *MockEventRepo) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

// MockScheduler records armed jobs without running them
type MockScheduler struct {
	mu      sync.Mutex
	jobs    map[string]domain.Job
	fns     map[string]repo.JobFunc
	onceErr error
}

func NewMockScheduler() *MockScheduler {
	return &MockScheduler{jobs: make(map[string]domain.Job), fns: make(map[string]repo.JobFunc)}
}

func (s *MockScheduler) ScheduleOnce(name string, at time.Time, fn repo.JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.onceErr != nil {
		return s.onceErr
	}
	s.jobs[name] = domain.Job{Kind: domain.JobOneShot, Name: name, FireAt: at}
	s.fns[name] = fn
	return nil
}

func (s *MockScheduler) ScheduleRepeating(name string, first, interval time.Duration, fn repo.JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[name] = domain.Job{Kind: domain.JobRepeating, Name: name, Interval: interval}
	s.fns[name] = fn
	return nil
}

func (s *MockScheduler) Cancel(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[name]
	delete(s.jobs, name)
	delete(s.fns, name)
	return ok
}

func (s *MockScheduler) Jobs() []domain.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *MockScheduler) job(name string) (domain.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[name]
	return j, ok
}

// fire runs an armed job the way the scheduler would and disarms one-shots
func (s *MockScheduler) fire(ctx context.Context, name string) bool {
	s.mu.Lock()
	fn, ok := s.fns[name]
	if ok && s.jobs[name].Kind == domain.JobOneShot {
		delete(s.jobs, name)
		delete(s.fns, name)
	}
	s.mu.Unlock()
	if ok {
		fn(ctx)
	}
	return ok
}

// MockValidator returns a fixed verdict
type MockValidator struct {
	verdict repo.ImageVerdict
	err     error
}

func (v *MockValidator) Validate(ctx context.Context, photo domain.Photo) (repo.ImageVerdict, error) {
	return v.verdict, v.err
}

var errBoom = errors.New("boom")

func testListing(id, owner string, created time.Time) *domain.Listing {
	return &domain.Listing{
		ID:          id,
		OwnerID:     owner,
		OwnerName:   "Owner " + owner,
		OwnerPhone:  "+251912345678",
		Name:        "Item " + id,
		Description: "A fine item",
		Price:       domain.Price(10050),
		Category:    "#Electronics",
		Subcategory: "#Phones",
		ImageRef:    "img_" + id,
		CreatedAt:   created,
	}
}
