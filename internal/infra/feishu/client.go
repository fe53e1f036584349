package feishu

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	"github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"
	"github.com/larksuite/oapi-sdk-go/v3/event/dispatcher/callback"
	larkcontact "github.com/larksuite/oapi-sdk-go/v3/service/contact/v3"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	larkws "github.com/larksuite/oapi-sdk-go/v3/ws"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ReceiveIDType selects how a message recipient is addressed
type ReceiveIDType string

const (
	ReceiveOpenID ReceiveIDType = larkim.ReceiveIdTypeOpenId
	ReceiveChatID ReceiveIDType = larkim.ReceiveIdTypeChatId
)

// Message represents a received Feishu message
type Message struct {
	ChatID     string
	MsgID      string
	MsgType    string   // text, image, post
	ChatType   string   // p2p (private), group
	Content    string   // Text content (extracted from all message types)
	ImageKeys  []string // Image keys for downloading
	SenderID   string   // open_id of the sender
	CreateTime int64    // Message creation time (milliseconds Unix timestamp from Feishu)
}

// CardAction represents a button press on an interactive card
type CardAction struct {
	OperatorID string
	ChatID     string
	MessageID  string
	Value      map[string]interface{}
}

// MessageHandler is the callback for received messages
type MessageHandler func(msg *Message)

// CardActionHandler is the callback for card button presses
type CardActionHandler func(action *CardAction)

// Client is the Feishu API client
type Client struct {
	appID        string
	appSecret    string
	larkCli      *lark.Client
	wsCli        *larkws.Client
	onMessage    MessageHandler
	onCardAction CardActionHandler
	downloadDir  string
	log          zerolog.Logger
}

// NewClient creates a new Feishu client. REST calls work before Start.
func NewClient(appID, appSecret string) *Client {
	return &Client{
		appID:       appID,
		appSecret:   appSecret,
		larkCli:     lark.NewClient(appID, appSecret),
		downloadDir: filepath.Join(os.TempDir(), "feishu-market-images"),
		log:         log.With().Str("component", "feishu").Logger(),
	}
}

// SetDownloadDir sets the directory for downloading images
func (c *Client) SetDownloadDir(dir string) {
	c.downloadDir = dir
}

// OnMessage sets the message handler
func (c *Client) OnMessage(handler MessageHandler) {
	c.onMessage = handler
}

// OnCardAction sets the card action handler
func (c *Client) OnCardAction(handler CardActionHandler) {
	c.onCardAction = handler
}

// Start connects to Feishu via WebSocket and blocks until ctx is done
func (c *Client) Start(ctx context.Context) error {
	// Handlers must return quickly so the SDK can ACK, otherwise Feishu retries
	eventHandler := dispatcher.NewEventDispatcher("", "").
		OnP2MessageReceiveV1(func(ctx context.Context, event *larkim.P2MessageReceiveV1) error {
			go c.handleMessage(event)
			return nil
		}).
		OnP2CardActionTrigger(func(ctx context.Context, event *callback.CardActionTriggerEvent) (*callback.CardActionTriggerResponse, error) {
			go c.handleCardAction(event)
			return &callback.CardActionTriggerResponse{}, nil
		})

	c.wsCli = larkws.NewClient(c.appID, c.appSecret,
		larkws.WithEventHandler(eventHandler),
		larkws.WithLogLevel(larkcore.LogLevelInfo),
	)

	c.log.Info().Msg("starting websocket connection")

	return c.wsCli.Start(ctx)
}

// handleMessage processes incoming Feishu messages
func (c *Client) handleMessage(event *larkim.P2MessageReceiveV1) {
	if event.Event == nil || event.Event.Message == nil {
		return
	}
	rawMsg := event.Event.Message

	// Ignore messages sent by apps, including this bot
	if event.Event.Sender != nil && event.Event.Sender.SenderType != nil {
		if *event.Event.Sender.SenderType == "app" {
			return
		}
	}

	msg := &Message{
		ChatID:  deref(rawMsg.ChatId),
		MsgID:   deref(rawMsg.MessageId),
		MsgType: deref(rawMsg.MessageType),
	}

	if rawMsg.CreateTime != nil {
		if ts, err := strconv.ParseInt(*rawMsg.CreateTime, 10, 64); err == nil {
			msg.CreateTime = ts
		}
	}
	if rawMsg.ChatType != nil {
		msg.ChatType = *rawMsg.ChatType
	}
	if event.Event.Sender != nil && event.Event.Sender.SenderId != nil {
		msg.SenderID = deref(event.Event.Sender.SenderId.OpenId)
	}

	content := deref(rawMsg.Content)
	switch msg.MsgType {
	case "text":
		msg.Content = parseTextContent(content)
	case "image":
		msg.ImageKeys = parseImageContent(content)
	case "post":
		msg.Content, msg.ImageKeys = parsePostContent(content)
	default:
		c.log.Debug().Str("msg_type", msg.MsgType).Msg("unsupported message type")
		return
	}

	c.log.Debug().
		Str("msg_type", msg.MsgType).
		Str("chat_type", msg.ChatType).
		Str("user_id", msg.SenderID).
		Msg("message received")

	if c.onMessage != nil {
		c.onMessage(msg)
	}
}

// cardActionPayload mirrors the fields of a card callback this bot reads
type cardActionPayload struct {
	Operator struct {
		OpenID string `json:"open_id"`
	} `json:"operator"`
	Action struct {
		Value map[string]interface{} `json:"value"`
	} `json:"action"`
	Context struct {
		OpenMessageID string `json:"open_message_id"`
		OpenChatID    string `json:"open_chat_id"`
	} `json:"context"`
}

func (c *Client) handleCardAction(event *callback.CardActionTriggerEvent) {
	if event == nil || event.Event == nil {
		return
	}
	action, err := decodeCardAction(event.Event)
	if err != nil {
		c.log.Warn().Err(err).Msg("undecodable card action")
		return
	}
	if c.onCardAction != nil {
		c.onCardAction(action)
	}
}

func decodeCardAction(event interface{}) (*CardAction, error) {
	raw, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode card action: %w", err)
	}
	var payload cardActionPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode card action: %w", err)
	}
	if payload.Operator.OpenID == "" {
		return nil, fmt.Errorf("card action without operator")
	}
	return &CardAction{
		OperatorID: payload.Operator.OpenID,
		ChatID:     payload.Context.OpenChatID,
		MessageID:  payload.Context.OpenMessageID,
		Value:      payload.Action.Value,
	}, nil
}

// parseTextContent extracts text from a text message
func parseTextContent(content string) string {
	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return ""
	}
	return parsed.Text
}

// parseImageContent extracts image key from an image message
func parseImageContent(content string) []string {
	var parsed struct {
		ImageKey string `json:"image_key"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil
	}
	if parsed.ImageKey == "" {
		return nil
	}
	return []string{parsed.ImageKey}
}

// parsePostContent extracts text and images from a rich text message
func parsePostContent(content string) (string, []string) {
	var parsed struct {
		Title   string `json:"title"`
		Content [][]struct {
			Tag      string `json:"tag"`
			Text     string `json:"text,omitempty"`
			ImageKey string `json:"image_key,omitempty"`
		} `json:"content"`
	}

	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return "", nil
	}

	var textParts []string
	var imageKeys []string

	if parsed.Title != "" {
		textParts = append(textParts, parsed.Title)
	}

	for _, line := range parsed.Content {
		var lineParts []string
		for _, elem := range line {
			switch elem.Tag {
			case "text":
				if elem.Text != "" {
					lineParts = append(lineParts, elem.Text)
				}
			case "img":
				if elem.ImageKey != "" {
					imageKeys = append(imageKeys, elem.ImageKey)
				}
			}
		}
		if len(lineParts) > 0 {
			textParts = append(textParts, strings.Join(lineParts, ""))
		}
	}

	return strings.Join(textParts, "\n"), imageKeys
}

// DownloadImage downloads a message image and saves it locally
func (c *Client) DownloadImage(ctx context.Context, messageID, imageKey string) (string, error) {
	if err := os.MkdirAll(c.downloadDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create download dir: %w", err)
	}

	req := larkim.NewGetMessageResourceReqBuilder().
		MessageId(messageID).
		FileKey(imageKey).
		Type("image").
		Build()

	resp, err := c.larkCli.Im.MessageResource.Get(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to get image: %w", err)
	}
	if !resp.Success() {
		return "", fmt.Errorf("get image error: %s", resp.Msg)
	}

	filePath := filepath.Join(c.downloadDir, imageKey)
	file, err := os.Create(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, resp.File); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	c.log.Debug().Str("path", filePath).Msg("image downloaded")
	return filePath, nil
}

// UploadImage uploads a local image and returns a key the bot can send
func (c *Client) UploadImage(ctx context.Context, path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	req := larkim.NewCreateImageReqBuilder().
		Body(larkim.NewCreateImageReqBodyBuilder().
			ImageType(larkim.ImageTypeMessage).
			Image(file).
			Build()).
		Build()

	resp, err := c.larkCli.Im.Image.Create(ctx, req)
	if err != nil {
		return "", fmt.Errorf("upload image failed: %w", err)
	}
	if !resp.Success() {
		return "", fmt.Errorf("upload image error: %s", resp.Msg)
	}
	if resp.Data == nil || resp.Data.ImageKey == nil {
		return "", fmt.Errorf("upload image: empty image key")
	}
	return *resp.Data.ImageKey, nil
}

// SendText sends a text message and returns its message id
func (c *Client) SendText(ctx context.Context, idType ReceiveIDType, receiveID, text string) (string, error) {
	contentJSON, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return "", err
	}
	return c.send(ctx, idType, receiveID, larkim.MsgTypeText, string(contentJSON))
}

// SendCard sends an interactive card and returns its message id
func (c *Client) SendCard(ctx context.Context, idType ReceiveIDType, receiveID string, card *Card) (string, error) {
	content, err := card.JSON()
	if err != nil {
		return "", err
	}
	return c.send(ctx, idType, receiveID, larkim.MsgTypeInteractive, content)
}

func (c *Client) send(ctx context.Context, idType ReceiveIDType, receiveID, msgType, content string) (string, error) {
	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(string(idType)).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(receiveID).
			MsgType(msgType).
			Content(content).
			Build()).
		Build()

	resp, err := c.larkCli.Im.Message.Create(ctx, req)
	if err != nil {
		return "", fmt.Errorf("send message failed: %w", err)
	}
	if !resp.Success() {
		return "", fmt.Errorf("send message error: %s", resp.Msg)
	}

	msgID := ""
	if resp.Data != nil {
		msgID = deref(resp.Data.MessageId)
	}
	c.log.Debug().Str("receive_id", receiveID).Str("msg_type", msgType).Str("message_id", msgID).Msg("message sent")
	return msgID, nil
}

// GetUserMobile reads the mobile number of a user from the contact directory
func (c *Client) GetUserMobile(ctx context.Context, openID string) (string, error) {
	req := larkcontact.NewGetUserReqBuilder().
		UserId(openID).
		UserIdType("open_id").
		Build()

	resp, err := c.larkCli.Contact.User.Get(ctx, req)
	if err != nil {
		return "", fmt.Errorf("get user failed: %w", err)
	}
	if !resp.Success() {
		return "", fmt.Errorf("get user error: %s", resp.Msg)
	}
	if resp.Data == nil || resp.Data.User == nil || resp.Data.User.Mobile == nil {
		return "", fmt.Errorf("user %s has no visible mobile", openID)
	}
	return *resp.Data.User.Mobile, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
