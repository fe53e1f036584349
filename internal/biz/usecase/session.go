package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/DevRickLin/feishu-market-bot/internal/biz/domain"
	"github.com/DevRickLin/feishu-market-bot/internal/biz/repo"
)

// SessionUsecase handles session logic
type SessionUsecase struct {
	sessionRepo repo.SessionRepo
	profileRepo repo.ProfileRepo
	idleTimeout time.Duration

	now func() time.Time
	log zerolog.Logger
}

// NewSessionUsecase creates a new session usecase
func NewSessionUsecase(
	sessionRepo repo.SessionRepo,
	profileRepo repo.ProfileRepo,
	idleTimeout time.Duration,
) *SessionUsecase {
	return &SessionUsecase{
		sessionRepo: sessionRepo,
		profileRepo: profileRepo,
		idleTimeout: idleTimeout,
		now:         time.Now,
		log:         log.With().Str("component", "session").Logger(),
	}
}

// Resolve loads the user's session. A missing or stale session is replaced
// by a fresh one, reported by isNew.
func (uc *SessionUsecase) Resolve(ctx context.Context, userID string) (s *domain.Session, isNew bool, err error) {
	s, err = uc.sessionRepo.Get(ctx, userID)
	if err != nil {
		return nil, false, fmt.Errorf("get session: %w", err)
	}
	if s != nil && s.IsFresh(uc.idleTimeout, uc.now()) {
		return s, false, nil
	}

	profile, err := uc.profileRepo.Get(ctx, userID)
	if err != nil {
		return nil, false, fmt.Errorf("get profile: %w", err)
	}
	if s != nil {
		uc.log.Debug().Str("user_id", userID).Time("updated_at", s.UpdatedAt).Msg("stale session replaced")
	}
	return domain.NewSession(userID, profile.IsRegistered()), true, nil
}

// Save persists a session and refreshes its active time
func (uc *SessionUsecase) Save(ctx context.Context, s *domain.Session) error {
	s.UpdatedAt = uc.now()
	if err := uc.sessionRepo.Save(ctx, s); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Reset forgets a user's session
func (uc *SessionUsecase) Reset(ctx context.Context, userID string) error {
	return uc.sessionRepo.Delete(ctx, userID)
}

// CleanupStale removes sessions idle longer than the timeout
func (uc *SessionUsecase) CleanupStale(ctx context.Context) (int64, error) {
	if uc.idleTimeout <= 0 {
		return 0, nil
	}
	n, err := uc.sessionRepo.CleanupStale(ctx, uc.now().Add(-uc.idleTimeout))
	if err != nil {
		return 0, fmt.Errorf("cleanup sessions: %w", err)
	}
	if n > 0 {
		uc.log.Info().Int64("removed", n).Msg("stale sessions removed")
	}
	return n, nil
}

// List returns every stored session
func (uc *SessionUsecase) List(ctx context.Context) ([]*domain.Session, error) {
	return uc.sessionRepo.ListAll(ctx)
}
