package data

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DevRickLin/feishu-market-bot/internal/biz/domain"
)

func newTestStores(t *testing.T) *Repositories {
	t.Helper()
	r, err := NewStores(filepath.Join(t.TempDir(), "market.db"))
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func testListing(id, owner string, created time.Time) *domain.Listing {
	return &domain.Listing{
		ID:          id,
		OwnerID:     owner,
		OwnerName:   "Abebe",
		OwnerPhone:  "+251912345678",
		Name:        "Phone " + id,
		Description: "like new",
		Price:       10050,
		Category:    "#Electronics",
		ImageRef:    "img_" + id,
		CreatedAt:   created,
	}
}

func TestListingRepo_CRUD(t *testing.T) {
	ctx := context.Background()
	listings := newTestStores(t).Listing
	now := time.Now().Truncate(time.Millisecond)

	l := testListing("l1", "u1", now)
	require.NoError(t, listings.Create(ctx, l))

	got, err := listings.Get(ctx, "l1")
	require.NoError(t, err)
	assert.Equal(t, l, got)

	at := now.Add(time.Hour)
	got.ScheduledAt = &at
	got.Description = "changed"
	require.NoError(t, listings.Update(ctx, got))

	got, err = listings.Get(ctx, "l1")
	require.NoError(t, err)
	assert.Equal(t, "changed", got.Description)
	require.NotNil(t, got.ScheduledAt)
	assert.True(t, got.ScheduledAt.Equal(at))
	assert.True(t, got.IsPending())

	require.NoError(t, listings.Delete(ctx, "l1"))
	_, err = listings.Get(ctx, "l1")
	assert.ErrorIs(t, err, domain.ErrListingNotFound)
	assert.ErrorIs(t, listings.Delete(ctx, "l1"), domain.ErrListingNotFound)
	assert.ErrorIs(t, listings.Update(ctx, l), domain.ErrListingNotFound)
}

func TestListingRepo_Queries(t *testing.T) {
	ctx := context.Background()
	listings := newTestStores(t).Listing
	base := time.Now()

	require.NoError(t, listings.Create(ctx, testListing("a", "u1", base)))
	require.NoError(t, listings.Create(ctx, testListing("b", "u2", base.Add(time.Second))))
	require.NoError(t, listings.Create(ctx, testListing("c", "u1", base.Add(2*time.Second))))

	scheduled := testListing("d", "u1", base.Add(3*time.Second))
	at := base.Add(time.Hour)
	scheduled.ScheduledAt = &at
	require.NoError(t, listings.Create(ctx, scheduled))

	own, err := listings.ListByOwner(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "c", "a"}, ids(own))

	all, err := listings.ListAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "c", "b", "a"}, ids(all))

	candidates, err := listings.ListAutoPostCandidates(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids(candidates))

	pending, err := listings.ListPendingScheduled(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"d"}, ids(pending))

	ok, err := listings.MarkPosted(ctx, "a", "om_1", base)
	require.NoError(t, err)
	require.True(t, ok)

	candidates, err = listings.ListAutoPostCandidates(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, ids(candidates))
}

func TestListingRepo_MarkPostedOnce(t *testing.T) {
	ctx := context.Background()
	listings := newTestStores(t).Listing
	require.NoError(t, listings.Create(ctx, testListing("l1", "u1", time.Now())))

	const workers = 8
	var wg sync.WaitGroup
	results := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := listings.MarkPosted(ctx, "l1", "om_1", time.Now())
			assert.NoError(t, err)
			results <- ok
		}()
	}
	wg.Wait()
	close(results)

	won := 0
	for ok := range results {
		if ok {
			won++
		}
	}
	assert.Equal(t, 1, won)

	got, err := listings.Get(ctx, "l1")
	require.NoError(t, err)
	assert.True(t, got.Posted)
	assert.Equal(t, "om_1", got.PublishedMessageRef)
	assert.NotNil(t, got.PostedAt)
}

func TestListingRepo_UpdateNeverRevertsPosted(t *testing.T) {
	ctx := context.Background()
	listings := newTestStores(t).Listing
	require.NoError(t, listings.Create(ctx, testListing("l1", "u1", time.Now())))

	stale, err := listings.Get(ctx, "l1")
	require.NoError(t, err)

	ok, err := listings.MarkPosted(ctx, "l1", "om_1", time.Now())
	require.NoError(t, err)
	require.True(t, ok)

	stale.Name = "renamed"
	require.NoError(t, listings.Update(ctx, stale))

	got, err := listings.Get(ctx, "l1")
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)
	assert.True(t, got.Posted)
	assert.Equal(t, "om_1", got.PublishedMessageRef)
}

func TestProfileAndPreferenceRepo(t *testing.T) {
	ctx := context.Background()
	stores := newTestStores(t)

	p, err := stores.Profile.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.False(t, p.IsRegistered())

	require.NoError(t, stores.Profile.Save(ctx, &domain.Profile{
		UserID: "u1", Name: "Abebe", Phone: "+251912345678", Address: "Bole",
		RegistrationComplete: true, RegisteredAt: time.Now(),
	}))
	p, err = stores.Profile.Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, p.IsRegistered())
	assert.Equal(t, "Bole", p.Address)

	prefs, err := stores.Preference.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultPreferences("u1"), prefs)

	prefs.AutoPost = false
	prefs.ToggleTheme()
	require.NoError(t, stores.Preference.Save(ctx, prefs))

	prefs, err = stores.Preference.Get(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, prefs.AutoPost)
	assert.Equal(t, domain.ThemeDark, prefs.Theme)
}

func TestSessionRepo(t *testing.T) {
	ctx := context.Background()
	sessions := newTestStores(t).Session

	s, err := sessions.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, s)

	price := domain.Price(2500)
	now := time.Now().Truncate(time.Millisecond)
	orig := &domain.Session{
		UserID:                  "u1",
		Stage:                   domain.StageProductImage,
		Draft:                   &domain.Draft{Category: "#Home", Name: "Lamp", Description: "warm", Price: &price},
		Registration:            domain.Registration{Name: "Abebe"},
		PendingContactListingID: "l9",
		UpdatedAt:               now,
	}
	require.NoError(t, sessions.Save(ctx, orig))

	got, err := sessions.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, orig, got)

	got.Draft.Name = "mutated"
	again, err := sessions.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Lamp", again.Draft.Name, "stored session is not shared")

	old := &domain.Session{UserID: "u2", Stage: domain.StageMainMenu, UpdatedAt: now.Add(-48 * time.Hour)}
	require.NoError(t, sessions.Save(ctx, old))

	n, err := sessions.CleanupStale(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	all, err := sessions.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "u1", all[0].UserID)
}

func ids(ls []*domain.Listing) []string {
	out := make([]string, 0, len(ls))
	for _, l := range ls {
		out = append(out, l.ID)
	}
	return out
}

func TestListingRepo_PublishLease(t *testing.T) {
	ctx := context.Background()
	listings := newTestStores(t).Listing
	require.NoError(t, listings.Create(ctx, testListing("l1", "u1", time.Now())))
	now := time.Now()

	ok, err := listings.ClaimPublish(ctx, "l1", now, now.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = listings.ClaimPublish(ctx, "l1", now, now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok, "live lease must not be taken twice")

	ok, err = listings.ClaimPublish(ctx, "l1", now.Add(2*time.Minute), now.Add(3*time.Minute))
	require.NoError(t, err)
	assert.True(t, ok, "expired lease can be taken over")

	require.NoError(t, listings.ReleasePublish(ctx, "l1"))
	ok, err = listings.ClaimPublish(ctx, "l1", now, now.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = listings.MarkPosted(ctx, "l1", "om_1", now)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = listings.ClaimPublish(ctx, "l1", now.Add(time.Hour), now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.False(t, ok, "posted listing cannot be claimed")

	ok, err = listings.ClaimPublish(ctx, "missing", now, now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListingRepo_AddsLeaseColumnToOldTable(t *testing.T) {
	db, err := OpenDB(filepath.Join(t.TempDir(), "old.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE listings (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			owner_name TEXT NOT NULL DEFAULT '',
			owner_phone TEXT NOT NULL DEFAULT '',
			owner_address TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL,
			description TEXT NOT NULL,
			price_cents INTEGER NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			subcategory TEXT NOT NULL DEFAULT '',
			image_ref TEXT NOT NULL,
			posted INTEGER NOT NULL DEFAULT 0,
			scheduled_at INTEGER,
			published_message_ref TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			posted_at INTEGER
		)
	`)
	require.NoError(t, err)

	listings, err := NewListingRepo(db)
	require.NoError(t, err)
	_, err = NewListingRepo(db)
	require.NoError(t, err, "second open must not add the column again")

	ctx := context.Background()
	require.NoError(t, listings.Create(ctx, testListing("l1", "u1", time.Now())))
	ok, err := listings.ClaimPublish(ctx, "l1", time.Now(), time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)
}
