package feishu

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkevent "github.com/larksuite/oapi-sdk-go/v3/event"
	"github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	larkws "github.com/larksuite/oapi-sdk-go/v3/ws"
	"github.com/rs/zerolog"
)

// Error codes returned when the bot cannot reach a user privately
const (
	CodeBotUnavailableToUser = 230013
	CodeUserNotFound         = 230006
	CodeCrossAppOpenID       = 99992361
)

// MemberChange is a user joining or leaving a group chat
type MemberChange struct {
	EventID  string
	ChatID   string
	Users    []ChatUser
	Joined   bool
	CreateAt time.Time
}

// ChatUser is a user carried by a membership event
type ChatUser struct {
	OpenID string
	Name   string
}

// DirectMessage is a message a user sent to the bot in a private chat
type DirectMessage struct {
	ChatID   string
	MsgID    string
	SenderID string
}

// ChatInfo represents information about a chat
type ChatInfo struct {
	ChatID      string `json:"chat_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	ChatType    string `json:"chat_type"`
	MemberCount int    `json:"user_count"`
}

// APIError is a non-success response from the Feishu Open API
type APIError struct {
	Op   string
	Code int
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s error: code=%d msg=%s", e.Op, e.Code, e.Msg)
}

// Unreachable reports whether the error means the recipient cannot be messaged
func (e *APIError) Unreachable() bool {
	switch e.Code {
	case CodeBotUnavailableToUser, CodeUserNotFound, CodeCrossAppOpenID:
		return true
	}
	return false
}

// Client is the Feishu API client
type Client struct {
	appID     string
	appSecret string
	larkCli   *lark.Client
	wsCli     *larkws.Client
	onMember  func(MemberChange)
	onDirect  func(DirectMessage)
	ctx       context.Context
	cancel    context.CancelFunc
	log       zerolog.Logger
}

// NewClient creates a new Feishu client
func NewClient(appID, appSecret string, logger zerolog.Logger) *Client {
	return &Client{
		appID:     appID,
		appSecret: appSecret,
		larkCli:   lark.NewClient(appID, appSecret),
		log:       logger.With().Str("component", "feishu").Logger(),
	}
}

// OnMemberChange sets the membership event handler
func (c *Client) OnMemberChange(handler func(MemberChange)) {
	c.onMember = handler
}

// OnDirectMessage sets the handler for private chat messages
func (c *Client) OnDirectMessage(handler func(DirectMessage)) {
	c.onDirect = handler
}

// Start connects to Feishu via WebSocket and blocks until ctx is done
func (c *Client) Start(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)

	// Handlers must return quickly so the SDK can ACK before Feishu retries
	eventHandler := dispatcher.NewEventDispatcher("", "").
		OnP2ChatMemberUserAddedV1(func(ctx context.Context, event *larkim.P2ChatMemberUserAddedV1) error {
			if event.Event == nil {
				return nil
			}
			change := MemberChange{
				EventID:  eventID(event.EventV2Base),
				ChatID:   larkcore.StringValue(event.Event.ChatId),
				Users:    chatUsers(event.Event.Users),
				Joined:   true,
				CreateAt: eventTime(event.EventV2Base),
			}
			go c.dispatchMember(change)
			return nil
		}).
		OnP2ChatMemberUserDeletedV1(func(ctx context.Context, event *larkim.P2ChatMemberUserDeletedV1) error {
			if event.Event == nil {
				return nil
			}
			change := MemberChange{
				EventID:  eventID(event.EventV2Base),
				ChatID:   larkcore.StringValue(event.Event.ChatId),
				Users:    chatUsers(event.Event.Users),
				CreateAt: eventTime(event.EventV2Base),
			}
			go c.dispatchMember(change)
			return nil
		}).
		OnP2MessageReceiveV1(func(ctx context.Context, event *larkim.P2MessageReceiveV1) error {
			go c.handleMessage(event)
			return nil
		})

	c.wsCli = larkws.NewClient(c.appID, c.appSecret,
		larkws.WithEventHandler(eventHandler),
		larkws.WithLogLevel(larkcore.LogLevelInfo),
	)

	c.log.Info().Msg("starting websocket connection")
	return c.wsCli.Start(c.ctx)
}

// Stop disconnects from Feishu
func (c *Client) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
}

func (c *Client) dispatchMember(change MemberChange) {
	if c.onMember == nil || change.ChatID == "" {
		return
	}
	c.onMember(change)
}

// handleMessage records private chats; group messages are ignored
func (c *Client) handleMessage(event *larkim.P2MessageReceiveV1) {
	if event.Event == nil || event.Event.Message == nil || c.onDirect == nil {
		return
	}
	msg := event.Event.Message
	if larkcore.StringValue(msg.ChatType) != "p2p" {
		return
	}
	dm := DirectMessage{
		ChatID: larkcore.StringValue(msg.ChatId),
		MsgID:  larkcore.StringValue(msg.MessageId),
	}
	if s := event.Event.Sender; s != nil && s.SenderId != nil {
		dm.SenderID = larkcore.StringValue(s.SenderId.OpenId)
	}
	if dm.SenderID == "" {
		return
	}
	c.onDirect(dm)
}

func chatUsers(users []*larkim.ChatMemberUser) []ChatUser {
	out := make([]ChatUser, 0, len(users))
	for _, u := range users {
		if u == nil || u.UserId == nil {
			continue
		}
		out = append(out, ChatUser{
			OpenID: larkcore.StringValue(u.UserId.OpenId),
			Name:   larkcore.StringValue(u.Name),
		})
	}
	return out
}

func eventID(base *larkevent.EventV2Base) string {
	if base == nil || base.Header == nil {
		return ""
	}
	return base.Header.EventID
}

func eventTime(base *larkevent.EventV2Base) time.Time {
	if base == nil || base.Header == nil {
		return time.Now()
	}
	ms, err := strconv.ParseInt(base.Header.CreateTime, 10, 64)
	if err != nil {
		return time.Now()
	}
	return time.UnixMilli(ms)
}

// SendText sends a text message. receiveIDType is larkim.ReceiveIdTypeChatId
// or larkim.ReceiveIdTypeOpenId.
func (c *Client) SendText(ctx context.Context, receiveIDType, receiveID, text string) (string, error) {
	content, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return "", err
	}
	return c.create(ctx, receiveIDType, receiveID, larkim.MsgTypeText, string(content))
}

// SendCard sends an interactive card with the text on top and the given
// button elements underneath
func (c *Client) SendCard(ctx context.Context, receiveIDType, receiveID, text string, buttons json.RawMessage) (string, error) {
	content, err := BuildCard(text, buttons)
	if err != nil {
		return "", err
	}
	return c.create(ctx, receiveIDType, receiveID, larkim.MsgTypeInteractive, content)
}

// BuildCard renders the card JSON sent by SendCard
func BuildCard(text string, buttons json.RawMessage) (string, error) {
	var actions []json.RawMessage
	if len(buttons) > 0 {
		if err := json.Unmarshal(buttons, &actions); err != nil {
			return "", fmt.Errorf("invalid buttons: %w", err)
		}
	}

	elements := []any{}
	if text != "" {
		elements = append(elements, map[string]any{
			"tag":  "div",
			"text": map[string]string{"tag": "lark_md", "content": text},
		})
	}
	if len(actions) > 0 {
		elements = append(elements, map[string]any{
			"tag":     "action",
			"actions": actions,
		})
	}

	card := map[string]any{
		"config":   map[string]bool{"wide_screen_mode": true},
		"elements": elements,
	}
	b, err := json.Marshal(card)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (c *Client) create(ctx context.Context, receiveIDType, receiveID, msgType, content string) (string, error) {
	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(receiveIDType).
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
		return "", &APIError{Op: "send message", Code: resp.Code, Msg: resp.Msg}
	}

	msgID := ""
	if resp.Data != nil {
		msgID = larkcore.StringValue(resp.Data.MessageId)
	}
	c.log.Debug().Str("receive_id", receiveID).Str("message_id", msgID).Msg("message sent")
	return msgID, nil
}

// DeleteMessage recalls a message sent by the bot
func (c *Client) DeleteMessage(ctx context.Context, messageID string) error {
	req := larkim.NewDeleteMessageReqBuilder().
		MessageId(messageID).
		Build()

	resp, err := c.larkCli.Im.Message.Delete(ctx, req)
	if err != nil {
		return fmt.Errorf("delete message failed: %w", err)
	}
	if !resp.Success() {
		return &APIError{Op: "delete message", Code: resp.Code, Msg: resp.Msg}
	}

	c.log.Debug().Str("message_id", messageID).Msg("message deleted")
	return nil
}

// GetChatInfo retrieves information about a chat
func (c *Client) GetChatInfo(ctx context.Context, chatID string) (*ChatInfo, error) {
	req := larkim.NewGetChatReqBuilder().
		ChatId(chatID).
		Build()

	resp, err := c.larkCli.Im.Chat.Get(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("get chat info failed: %w", err)
	}
	if !resp.Success() {
		return nil, &APIError{Op: "get chat info", Code: resp.Code, Msg: resp.Msg}
	}

	info := &ChatInfo{ChatID: chatID}
	if resp.Data == nil {
		return info, nil
	}
	info.Name = larkcore.StringValue(resp.Data.Name)
	info.Description = larkcore.StringValue(resp.Data.Description)
	info.ChatType = larkcore.StringValue(resp.Data.ChatMode)
	if resp.Data.UserCount != nil {
		info.MemberCount, _ = strconv.Atoi(*resp.Data.UserCount)
	}
	return info, nil
}
