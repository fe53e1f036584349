package server

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DevRickLin/feishu-market-bot/internal/biz/domain"
	"github.com/DevRickLin/feishu-market-bot/internal/infra/feishu"
)

type fakeClient struct {
	onMessage    feishu.MessageHandler
	onCardAction feishu.CardActionHandler

	downloadErr error
	uploadErr   error
	mobile      string
	mobileErr   error
}

func (c *fakeClient) OnMessage(h feishu.MessageHandler)       { c.onMessage = h }
func (c *fakeClient) OnCardAction(h feishu.CardActionHandler) { c.onCardAction = h }
func (c *fakeClient) Start(ctx context.Context) error         { return nil }

func (c *fakeClient) DownloadImage(ctx context.Context, messageID, imageKey string) (string, error) {
	if c.downloadErr != nil {
		return "", c.downloadErr
	}
	return "/tmp/" + imageKey + ".jpg", nil
}

func (c *fakeClient) UploadImage(ctx context.Context, path string) (string, error) {
	if c.uploadErr != nil {
		return "", c.uploadErr
	}
	return "img_uploaded", nil
}

func (c *fakeClient) GetUserMobile(ctx context.Context, openID string) (string, error) {
	return c.mobile, c.mobileErr
}

type recordedEvent struct {
	userID string
	ev     domain.Event
}

type fakeHandler struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (h *fakeHandler) HandleEvent(ctx context.Context, userID string, ev domain.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, recordedEvent{userID: userID, ev: ev})
	return nil
}

func startServer(t *testing.T) (*fakeClient, *fakeHandler) {
	t.Helper()
	client := &fakeClient{}
	handler := &fakeHandler{}
	require.NoError(t, NewFeishuServer(client, handler).Start(context.Background()))
	require.NotNil(t, client.onMessage)
	require.NotNil(t, client.onCardAction)
	return client, handler
}

func privateText(msgID, text string) *feishu.Message {
	return &feishu.Message{ChatID: "oc_1", MsgID: msgID, MsgType: "text", ChatType: "p2p", Content: text, SenderID: "ou_user"}
}

func TestTextToEvent(t *testing.T) {
	tests := []struct {
		name string
		text string
		want domain.Event
	}{
		{name: "plain text", text: "Phone X", want: domain.TextEvent("Phone X")},
		{name: "cancel command", text: "/cancel", want: domain.CancelEvent()},
		{name: "cancel word", text: " Cancel ", want: domain.CancelEvent()},
		{name: "cancel button label", text: "❌ Cancel", want: domain.CancelEvent()},
		{name: "help", text: "/help", want: domain.ButtonEvent(domain.NewCommand(domain.CmdHelp))},
		{name: "start", text: "/start", want: domain.StartEvent(nil)},
		{name: "start with contact link", text: "/start contact_l1", want: domain.StartEvent(&domain.DeepLink{Kind: domain.DeepLinkContact, ListingID: "l1"})},
		{name: "start with item link", text: "/start item_l2", want: domain.StartEvent(&domain.DeepLink{Kind: domain.DeepLinkItem, ListingID: "l2"})},
		{name: "start with bad payload", text: "/start nonsense", want: domain.StartEvent(nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TextToEvent(tt.text))
		})
	}
}

func TestHandleMessage_DispatchesPrivateText(t *testing.T) {
	client, handler := startServer(t)

	client.onMessage(privateText("om_1", "hello"))

	require.Len(t, handler.events, 1)
	assert.Equal(t, "ou_user", handler.events[0].userID)
	assert.Equal(t, domain.TextEvent("hello"), handler.events[0].ev)
}

func TestHandleMessage_IgnoresGroupsAndBlanks(t *testing.T) {
	client, handler := startServer(t)

	group := privateText("om_1", "hello")
	group.ChatType = "group"
	client.onMessage(group)

	client.onMessage(privateText("om_2", "   "))

	anonymous := privateText("om_3", "hello")
	anonymous.SenderID = ""
	client.onMessage(anonymous)

	assert.Empty(t, handler.events)
}

func TestHandleMessage_DeduplicatesRedelivery(t *testing.T) {
	client, handler := startServer(t)

	client.onMessage(privateText("om_1", "hello"))
	client.onMessage(privateText("om_1", "hello"))

	assert.Len(t, handler.events, 1)
}

func TestHandleMessage_ImageBecomesPhoto(t *testing.T) {
	client, handler := startServer(t)

	msg := privateText("om_1", "")
	msg.MsgType = "image"
	msg.ImageKeys = []string{"img_original"}
	client.onMessage(msg)

	require.Len(t, handler.events, 1)
	ev := handler.events[0].ev
	assert.Equal(t, domain.EventPhoto, ev.Kind)
	assert.Equal(t, &domain.Photo{Key: "img_uploaded", Path: "/tmp/img_original.jpg"}, ev.Photo)
}

func TestHandleMessage_ImageTransferFailureDrops(t *testing.T) {
	client, handler := startServer(t)
	client.uploadErr = errors.New("quota")

	msg := privateText("om_1", "")
	msg.ImageKeys = []string{"img_original"}
	client.onMessage(msg)

	assert.Empty(t, handler.events)
}

func TestHandleCardAction_DecodesCommand(t *testing.T) {
	client, handler := startServer(t)

	client.onCardAction(&feishu.CardAction{
		OperatorID: "ou_user",
		Value:      domain.CommandWithArg(domain.CmdContactSeller, "l1").Value(),
	})

	require.Len(t, handler.events, 1)
	assert.Equal(t, domain.ButtonEvent(domain.CommandWithArg(domain.CmdContactSeller, "l1")), handler.events[0].ev)
}

func TestHandleCardAction_UnknownCommandIgnored(t *testing.T) {
	client, handler := startServer(t)

	client.onCardAction(&feishu.CardAction{OperatorID: "ou_user", Value: map[string]interface{}{"cmd": "launch_rockets"}})
	client.onCardAction(&feishu.CardAction{OperatorID: "ou_user", Value: map[string]interface{}{"cmd": "contact_seller"}})

	assert.Empty(t, handler.events)
}

func TestHandleCardAction_SharePhoneReadsMobile(t *testing.T) {
	client, handler := startServer(t)
	client.mobile = "+251912345678"

	client.onCardAction(&feishu.CardAction{OperatorID: "ou_user", Value: domain.NewCommand(domain.CmdSharePhone).Value()})

	require.Len(t, handler.events, 1)
	assert.Equal(t, domain.ContactEvent("+251912345678"), handler.events[0].ev)
}

func TestHandleCardAction_SharePhoneFailureStillAnswers(t *testing.T) {
	client, handler := startServer(t)
	client.mobileErr = errors.New("no permission")

	client.onCardAction(&feishu.CardAction{OperatorID: "ou_user", Value: domain.NewCommand(domain.CmdSharePhone).Value()})

	require.Len(t, handler.events, 1)
	assert.Equal(t, domain.EventContact, handler.events[0].ev.Kind)
	assert.Empty(t, handler.events[0].ev.Phone)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "héll...", truncate("héllo world", 4))
}
