package data

import (
	"context"
	"errors"
	"fmt"

	"github.com/DevRickLin/feishu-market-bot/internal/biz/domain"
	"github.com/DevRickLin/feishu-market-bot/internal/biz/repo"
	"github.com/DevRickLin/feishu-market-bot/internal/infra/feishu"
)

// ErrAdminNotConfigured is returned when Contact Us has nobody to reach
var ErrAdminNotConfigured = errors.New("admin contact not configured")

// feishuSender is the part of the Feishu client the adapters use
type feishuSender interface {
	SendText(ctx context.Context, idType feishu.ReceiveIDType, receiveID, text string) (string, error)
	SendCard(ctx context.Context, idType feishu.ReceiveIDType, receiveID string, card *feishu.Card) (string, error)
}

// feishuRepo implements the Feishu message repository
type feishuRepo struct {
	client      feishuSender
	adminOpenID string
}

// NewMessageRepo creates a new Feishu message repository
func NewMessageRepo(client feishuSender, adminOpenID string) repo.MessageRepo {
	return &feishuRepo{client: client, adminOpenID: adminOpenID}
}

// Reply renders an effect in the user's private chat
func (r *feishuRepo) Reply(ctx context.Context, userID string, effect domain.Effect) (string, error) {
	card := RenderEffect(effect)
	if card == nil {
		return r.client.SendText(ctx, feishu.ReceiveOpenID, userID, effect.Text)
	}
	return r.client.SendCard(ctx, feishu.ReceiveOpenID, userID, card)
}

// NotifyUser sends a plain text notice
func (r *feishuRepo) NotifyUser(ctx context.Context, userID, text string) error {
	_, err := r.client.SendText(ctx, feishu.ReceiveOpenID, userID, text)
	return err
}

// NotifyAdmin forwards a notice to the administrator
func (r *feishuRepo) NotifyAdmin(ctx context.Context, text string) error {
	if r.adminOpenID == "" {
		return ErrAdminNotConfigured
	}
	_, err := r.client.SendText(ctx, feishu.ReceiveOpenID, r.adminOpenID, text)
	return err
}

// channelRepo publishes listing posts to the marketplace group chat
type channelRepo struct {
	client feishuSender
	chatID string
}

// NewChannelRepo creates a channel repository posting to chatID
func NewChannelRepo(client feishuSender, chatID string) repo.ChannelRepo {
	return &channelRepo{client: client, chatID: chatID}
}

// PublishPhoto posts an image card and returns its message id
func (r *channelRepo) PublishPhoto(ctx context.Context, imageRef, caption string, buttons [][]domain.Button) (string, error) {
	if r.chatID == "" {
		return "", fmt.Errorf("channel chat id not configured")
	}
	card := feishu.NewCard()
	if imageRef != "" {
		card.Image(imageRef)
	}
	card.Markdown(caption)
	addButtonRows(card, buttons)

	msgID, err := r.client.SendCard(ctx, feishu.ReceiveChatID, r.chatID, card)
	if err != nil {
		return "", err
	}
	if msgID == "" {
		return "", fmt.Errorf("channel returned no message id")
	}
	return msgID, nil
}

// RenderEffect converts an effect into a card. Plain text without buttons returns nil.
func RenderEffect(effect domain.Effect) *feishu.Card {
	hasImage := effect.Listing != nil && effect.Listing.ImageRef != ""
	if !hasImage && len(effect.Buttons) == 0 {
		return nil
	}

	card := feishu.NewCard()
	if hasImage {
		card.Image(effect.Listing.ImageRef)
	}
	if effect.Text != "" {
		card.Markdown(effect.Text)
	}
	addButtonRows(card, effect.Buttons)
	return card
}

func addButtonRows(card *feishu.Card, rows [][]domain.Button) {
	for _, row := range rows {
		buttons := make([]feishu.CardButton, 0, len(row))
		for _, b := range row {
			cb := feishu.CardButton{Label: b.Label, URL: b.URL}
			if b.Command != nil {
				cb.Value = b.Command.Value()
			}
			buttons = append(buttons, cb)
		}
		card.Actions(buttons...)
	}
}
