package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/DevRickLin/feishu-market-bot/internal/biz/domain"
	"github.com/DevRickLin/feishu-market-bot/internal/biz/repo"
	"github.com/DevRickLin/feishu-market-bot/internal/biz/usecase"
)

// Engine runs one conversation turn
type Engine interface {
	HandleEvent(ctx context.Context, sess *domain.Session, ev domain.Event) (*domain.Session, []domain.Effect)
}

// ConversationService serializes turns per user and delivers their effects
type ConversationService struct {
	engine      Engine
	sessionUC   *usecase.SessionUsecase
	messageRepo repo.MessageRepo

	// Per-user turn locks
	userStates map[string]*userState
	statesMu   sync.Mutex

	log zerolog.Logger
}

// userState guards the turns of one user
type userState struct {
	mu sync.Mutex
}

// NewConversationService creates a new conversation service
func NewConversationService(
	engine Engine,
	sessionUC *usecase.SessionUsecase,
	messageRepo repo.MessageRepo,
) *ConversationService {
	return &ConversationService{
		engine:      engine,
		sessionUC:   sessionUC,
		messageRepo: messageRepo,
		userStates:  make(map[string]*userState),
		log:         log.With().Str("component", "conversation_service").Logger(),
	}
}

// HandleEvent processes one inbound event for a user. Events of one user run
// in arrival order; events of different users run concurrently.
func (s *ConversationService) HandleEvent(ctx context.Context, userID string, ev domain.Event) error {
	state := s.getUserState(userID)
	state.mu.Lock()
	defer state.mu.Unlock()

	sess, isNew, err := s.sessionUC.Resolve(ctx, userID)
	if err != nil {
		return fmt.Errorf("resolve session: %w", err)
	}
	// An unknown user's first message is not their name: greet them first
	if isNew && sess.Stage == domain.StageRegisterName && !opensConversation(ev) {
		s.log.Debug().Str("user_id", userID).Str("event", ev.Kind.String()).Msg("new user, starting registration")
		ev = domain.StartEvent(nil)
	}

	next, effects := s.runTurn(ctx, sess, ev)

	if err := s.sessionUC.Save(ctx, next); err != nil {
		s.log.Error().Err(err).Str("user_id", userID).Msg("failed to save session")
	}

	for _, effect := range effects {
		if _, err := s.messageRepo.Reply(ctx, userID, effect); err != nil {
			s.log.Error().Err(err).Str("user_id", userID).Msg("failed to send reply")
		}
	}
	return nil
}

// runTurn calls the engine and turns a panic into a return to the main menu
func (s *ConversationService) runTurn(ctx context.Context, sess *domain.Session, ev domain.Event) (next *domain.Session, effects []domain.Effect) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().
				Str("user_id", sess.UserID).
				Str("stage", sess.Stage.String()).
				Interface("panic", r).
				Msg("conversation turn panicked")
			next = sess.Clone()
			next.ToMainMenu()
			effects = []domain.Effect{domain.Reply("Something went wrong. Returning to main menu.")}
		}
	}()
	return s.engine.HandleEvent(ctx, sess, ev)
}

func opensConversation(ev domain.Event) bool {
	return ev.Kind == domain.EventStart || ev.Kind == domain.EventCancel || ev.IsCommand(domain.CmdContactSeller)
}

func (s *ConversationService) getUserState(userID string) *userState {
	s.statesMu.Lock()
	defer s.statesMu.Unlock()

	state, ok := s.userStates[userID]
	if !ok {
		state = &userState{}
		s.userStates[userID] = state
	}
	return state
}
