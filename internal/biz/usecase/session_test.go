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

// MockSessionRepo is an in-memory repo.SessionRepo
type MockSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
}

func NewMockSessionRepo() *MockSessionRepo {
	return &MockSessionRepo{sessions: make(map[string]*domain.Session)}
}

func (r *MockSessionRepo) Get(ctx context.Context, userID string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[userID].Clone(), nil
}

func (r *MockSessionRepo) Save(ctx context.Context, s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.UserID] = s.Clone()
	return nil
}

func (r *MockSessionRepo) Delete(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, userID)
	return nil
}

func (r *MockSessionRepo) CleanupStale(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.sessions {
		if s.UpdatedAt.Before(before) {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

func (r *MockSessionRepo) ListAll(ctx context.Context) ([]*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Session
	for _, s := range r.sessions {
		out = append(out, s.Clone())
	}
	return out, nil
}

func TestSession_ResolveNewUser(t *testing.T) {
	uc := NewSessionUsecase(NewMockSessionRepo(), NewMockProfileRepo(), time.Hour)

	s, isNew, err := uc.Resolve(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, domain.StageRegisterName, s.Stage)
}

func TestSession_ResolveRegisteredUserStartsAtMenu(t *testing.T) {
	profiles := NewMockProfileRepo(&domain.Profile{UserID: "u1", RegistrationComplete: true})
	uc := NewSessionUsecase(NewMockSessionRepo(), profiles, time.Hour)

	s, isNew, err := uc.Resolve(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, domain.StageMainMenu, s.Stage)
}

func TestSession_SaveAndResolveKeepsStage(t *testing.T) {
	uc := NewSessionUsecase(NewMockSessionRepo(), NewMockProfileRepo(), time.Hour)

	s := domain.NewSession("u1", true)
	s.Stage = domain.StageProductName
	s.Draft = &domain.Draft{Category: "#Electronics"}
	require.NoError(t, uc.Save(context.Background(), s))

	got, isNew, err := uc.Resolve(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, domain.StageProductName, got.Stage)
	require.NotNil(t, got.Draft)
	assert.Equal(t, "#Electronics", got.Draft.Category)
}

func TestSession_StaleSessionIsReplaced(t *testing.T) {
	now := time.Date(2025, 5, 15, 12, 0, 0, 0, time.UTC)
	uc := NewSessionUsecase(NewMockSessionRepo(), NewMockProfileRepo(), time.Hour)
	uc.now = func() time.Time { return now }

	s := domain.NewSession("u1", true)
	s.Stage = domain.StageProductPrice
	require.NoError(t, uc.Save(context.Background(), s))

	now = now.Add(2 * time.Hour)
	got, isNew, err := uc.Resolve(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, domain.StageRegisterName, got.Stage)

	removed, err := uc.CleanupStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}
