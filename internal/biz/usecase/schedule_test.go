package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DevRickLin/feishu-market-bot/internal/biz/domain"
)

type scheduleFixture struct {
	uc        *ScheduleUsecase
	listings  *MockListingRepo
	prefs     *MockPreferenceRepo
	messages  *MockMessageRepo
	events    *MockEventRepo
	scheduler *MockScheduler
	channel   *MockChannelRepo
	now       time.Time
}

func newScheduleFixture(listings ...*domain.Listing) *scheduleFixture {
	f := &scheduleFixture{
		listings:  NewMockListingRepo(listings...),
		prefs:     NewMockPreferenceRepo(),
		messages:  NewMockMessageRepo(),
		events:    &MockEventRepo{},
		scheduler: NewMockScheduler(),
		channel:   &MockChannelRepo{},
		now:       time.Date(2025, 5, 15, 12, 0, 0, 0, time.UTC),
	}
	publisher := NewPublishUsecase(f.listings, f.channel, f.events, "ETB", time.UTC)
	f.uc = NewScheduleUsecase(f.listings, f.prefs, f.messages, f.events, f.scheduler, publisher)
	f.uc.now = func() time.Time { return f.now }
	return f
}

func TestSchedule_ArmsJobAndStoresTime(t *testing.T) {
	f := newScheduleFixture(testListing("l1", "u1", time.Now()))
	at := f.now.Add(2 * time.Hour)

	l, err := f.uc.Schedule(context.Background(), "l1", at)
	require.NoError(t, err)
	require.NotNil(t, l.ScheduledAt)
	assert.True(t, l.ScheduledAt.Equal(at))

	job, ok := f.scheduler.job(domain.ScheduledJobName("l1"))
	require.True(t, ok)
	assert.Equal(t, domain.JobOneShot, job.Kind)
	assert.True(t, job.FireAt.Equal(at))

	stored := f.listings.get("l1")
	assert.True(t, stored.IsPending())
	assert.Equal(t, []string{domain.ListingEventScheduled}, f.events.types())
}

func TestSchedule_RescheduleReplacesJob(t *testing.T) {
	f := newScheduleFixture(testListing("l1", "u1", time.Now()))

	_, err := f.uc.Schedule(context.Background(), "l1", f.now.Add(time.Hour))
	require.NoError(t, err)
	later := f.now.Add(5 * time.Hour)
	_, err = f.uc.Schedule(context.Background(), "l1", later)
	require.NoError(t, err)

	jobs := f.scheduler.Jobs()
	require.Len(t, jobs, 1)
	assert.True(t, jobs[0].FireAt.Equal(later))
}

func TestSchedule_PostedListingIsRejected(t *testing.T) {
	l := testListing("l1", "u1", time.Now())
	l.Posted = true
	f := newScheduleFixture(l)

	_, err := f.uc.Schedule(context.Background(), "l1", f.now.Add(time.Hour))
	assert.ErrorIs(t, err, domain.ErrAlreadyPosted)
	assert.Empty(t, f.scheduler.Jobs())
}

func TestSchedule_ArmFailureRollsBack(t *testing.T) {
	f := newScheduleFixture(testListing("l1", "u1", time.Now()))
	f.scheduler.onceErr = domain.ErrSchedulerStopped

	_, err := f.uc.Schedule(context.Background(), "l1", f.now.Add(time.Hour))
	assert.ErrorIs(t, err, domain.ErrSchedulerStopped)
	assert.Nil(t, f.listings.get("l1").ScheduledAt)
}

func TestSchedule_FirePublishesAndNotifiesOwner(t *testing.T) {
	f := newScheduleFixture(testListing("l1", "u1", time.Now()))

	_, err := f.uc.Schedule(context.Background(), "l1", f.now.Add(time.Hour))
	require.NoError(t, err)
	require.True(t, f.scheduler.fire(context.Background(), domain.ScheduledJobName("l1")))

	assert.True(t, f.listings.get("l1").Posted)
	assert.Equal(t, int32(1), f.channel.calls.Load())
	assert.Equal(t, []string{"✅ Your scheduled product 'Item l1' has been posted to the channel!"}, f.messages.noticesFor("u1"))
}

func TestSchedule_FireRespectsNotificationPreference(t *testing.T) {
	f := newScheduleFixture(testListing("l1", "u1", time.Now()))
	f.prefs.set("u1", func(p *domain.Preferences) { p.Notifications = false })

	_, err := f.uc.Schedule(context.Background(), "l1", f.now.Add(time.Hour))
	require.NoError(t, err)
	f.scheduler.fire(context.Background(), domain.ScheduledJobName("l1"))

	assert.True(t, f.listings.get("l1").Posted)
	assert.Empty(t, f.messages.noticesFor("u1"))
}

func TestSchedule_FireAfterManualPostDoesNothing(t *testing.T) {
	f := newScheduleFixture(testListing("l1", "u1", time.Now()))

	_, err := f.uc.Schedule(context.Background(), "l1", f.now.Add(time.Hour))
	require.NoError(t, err)
	ok, err := f.listings.MarkPosted(context.Background(), "l1", "om_manual", f.now)
	require.NoError(t, err)
	require.True(t, ok)

	f.scheduler.fire(context.Background(), domain.ScheduledJobName("l1"))

	assert.Equal(t, int32(0), f.channel.calls.Load())
	assert.Equal(t, "om_manual", f.listings.get("l1").PublishedMessageRef)
	assert.Empty(t, f.messages.noticesFor("u1"))
}

func TestSchedule_RestorePendingArmsOnlyFutureTimes(t *testing.T) {
	f := newScheduleFixture()
	future := f.now.Add(3 * time.Hour)
	past := f.now.Add(-3 * time.Hour)

	ahead := testListing("ahead", "u1", f.now.Add(-time.Hour))
	ahead.ScheduledAt = &future
	missed := testListing("missed", "u1", f.now.Add(-2*time.Hour))
	missed.ScheduledAt = &past
	posted := testListing("posted", "u1", f.now.Add(-3*time.Hour))
	posted.ScheduledAt = &future
	posted.Posted = true
	for _, l := range []*domain.Listing{ahead, missed, posted} {
		require.NoError(t, f.listings.Create(context.Background(), l))
	}

	restored, err := f.uc.RestorePending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, restored)

	jobs := f.scheduler.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, domain.ScheduledJobName("ahead"), jobs[0].Name)
	assert.True(t, f.listings.get("missed").IsPending())
}

func TestSchedule_Unschedule(t *testing.T) {
	f := newScheduleFixture(testListing("l1", "u1", time.Now()))

	_, err := f.uc.Schedule(context.Background(), "l1", f.now.Add(time.Hour))
	require.NoError(t, err)

	assert.True(t, f.uc.Unschedule("l1"))
	assert.False(t, f.uc.Unschedule("l1"))
	assert.Empty(t, f.scheduler.Jobs())
}
