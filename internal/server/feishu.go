package server

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/DevRickLin/feishu-market-bot/internal/biz/domain"
	"github.com/DevRickLin/feishu-market-bot/internal/infra/feishu"
)

// FeishuClient is the part of the Feishu client the server drives
type FeishuClient interface {
	OnMessage(handler feishu.MessageHandler)
	OnCardAction(handler feishu.CardActionHandler)
	Start(ctx context.Context) error
	DownloadImage(ctx context.Context, messageID, imageKey string) (string, error)
	UploadImage(ctx context.Context, path string) (string, error)
	GetUserMobile(ctx context.Context, openID string) (string, error)
}

// EventHandler consumes decoded user events
type EventHandler interface {
	HandleEvent(ctx context.Context, userID string, ev domain.Event) error
}

// FeishuServer decodes Feishu messages and card actions into conversation events
type FeishuServer struct {
	client  FeishuClient
	handler EventHandler
	ctx     context.Context

	// Message deduplication cache
	seenMsgsMu sync.Mutex
	seenMsgs   map[string]time.Time // msgID -> timestamp

	log zerolog.Logger
}

// NewFeishuServer creates a new Feishu server
func NewFeishuServer(client FeishuClient, handler EventHandler) *FeishuServer {
	return &FeishuServer{
		client:   client,
		handler:  handler,
		ctx:      context.Background(),
		seenMsgs: make(map[string]time.Time),
		log:      log.With().Str("component", "server").Logger(),
	}
}

// Start registers the handlers and blocks on the Feishu connection until ctx is done
func (s *FeishuServer) Start(ctx context.Context) error {
	s.ctx = ctx
	s.client.OnMessage(s.handleMessage)
	s.client.OnCardAction(s.handleCardAction)
	return s.client.Start(ctx)
}

// handleMessage handles Feishu messages
func (s *FeishuServer) handleMessage(msg *feishu.Message) {
	if msg.ChatType != "p2p" {
		s.log.Debug().Str("chat_id", msg.ChatID).Str("chat_type", msg.ChatType).Msg("ignoring non-private message")
		return
	}
	if msg.SenderID == "" {
		return
	}

	// Message deduplication: Feishu redelivers unacknowledged events
	if !s.markMessageSeen(msg.MsgID) {
		s.log.Debug().Str("msg_id", msg.MsgID).Msg("duplicate message ignored")
		return
	}

	s.log.Debug().
		Str("user_id", msg.SenderID).
		Str("msg_type", msg.MsgType).
		Str("content", truncate(msg.Content, 50)).
		Msg("message received")

	ev, ok := s.decodeMessage(s.ctx, msg)
	if !ok {
		return
	}
	s.dispatch(msg.SenderID, ev)
}

// decodeMessage turns a message into an event. Images are re-uploaded so
// the bot owns a key it can send again.
func (s *FeishuServer) decodeMessage(ctx context.Context, msg *feishu.Message) (domain.Event, bool) {
	if len(msg.ImageKeys) == 0 {
		if strings.TrimSpace(msg.Content) == "" {
			return domain.Event{}, false
		}
		return TextToEvent(msg.Content), true
	}

	path, err := s.client.DownloadImage(ctx, msg.MsgID, msg.ImageKeys[0])
	if err != nil {
		s.log.Error().Err(err).Str("msg_id", msg.MsgID).Msg("failed to download image")
		return domain.Event{}, false
	}
	key, err := s.client.UploadImage(ctx, path)
	if err != nil {
		s.log.Error().Err(err).Str("msg_id", msg.MsgID).Msg("failed to upload image")
		return domain.Event{}, false
	}
	return domain.PhotoEvent(domain.Photo{Key: key, Path: path}), true
}

// handleCardAction handles button presses on cards
func (s *FeishuServer) handleCardAction(action *feishu.CardAction) {
	if action.OperatorID == "" {
		return
	}
	cmd, err := domain.ParseCommand(action.Value)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", action.OperatorID).Interface("value", action.Value).Msg("unknown card action")
		return
	}

	ev := domain.ButtonEvent(cmd)
	if cmd.Kind == domain.CmdSharePhone {
		phone, err := s.client.GetUserMobile(s.ctx, action.OperatorID)
		if err != nil {
			s.log.Warn().Err(err).Str("user_id", action.OperatorID).Msg("failed to read user mobile")
		}
		ev = domain.ContactEvent(phone)
	}
	s.dispatch(action.OperatorID, ev)
}

func (s *FeishuServer) dispatch(userID string, ev domain.Event) {
	if err := s.handler.HandleEvent(s.ctx, userID, ev); err != nil {
		s.log.Error().Err(err).Str("user_id", userID).Str("event", ev.Kind.String()).Msg("failed to handle event")
	}
}

// TextToEvent maps slash commands and cancel words, everything else is plain text
func TextToEvent(text string) domain.Event {
	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)

	switch {
	case lower == "/cancel", lower == "cancel", trimmed == "❌ Cancel":
		return domain.CancelEvent()
	case lower == "/help":
		return domain.ButtonEvent(domain.NewCommand(domain.CmdHelp))
	case lower == "/start":
		return domain.StartEvent(nil)
	case strings.HasPrefix(lower, "/start "):
		link, err := domain.ParseDeepLink(strings.TrimSpace(trimmed[len("/start "):]))
		if err != nil {
			log.Debug().Err(err).Msg("ignoring bad start payload")
			return domain.StartEvent(nil)
		}
		return domain.StartEvent(link)
	}
	return domain.TextEvent(text)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// markMessageSeen records a message id, false when it was already seen
func (s *FeishuServer) markMessageSeen(msgID string) bool {
	s.seenMsgsMu.Lock()
	defer s.seenMsgsMu.Unlock()

	if _, exists := s.seenMsgs[msgID]; exists {
		return false
	}
	now := time.Now()
	s.seenMsgs[msgID] = now

	// Clean up expired message records (older than 5 minutes)
	cutoff := now.Add(-5 * time.Minute)
	for id, ts := range s.seenMsgs {
		if ts.Before(cutoff) {
			delete(s.seenMsgs, id)
		}
	}
	return true
}
