package repo

import (
	"context"

	"github.com/DevRickLin/feishu-market-bot/internal/biz/domain"
)

// MessageRepo delivers conversation output to users
// Responsible for rendering effects through the Feishu API
type MessageRepo interface {
	// Reply renders one effect in the user's private chat and returns the message id
	Reply(ctx context.Context, userID string, effect domain.Effect) (string, error)

	// NotifyUser sends a plain text notice to a user
	NotifyUser(ctx context.Context, userID, text string) error

	// NotifyAdmin forwards a notice to the configured administrator
	NotifyAdmin(ctx context.Context, text string) error
}

// ChannelRepo publishes posts to the marketplace channel
type ChannelRepo interface {
	// PublishPhoto posts an image with caption and buttons, returns the message ref
	PublishPhoto(ctx context.Context, imageRef, caption string, buttons [][]domain.Button) (string, error)
}
