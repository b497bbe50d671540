package feishu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	"github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	larkws "github.com/larksuite/oapi-sdk-go/v3/ws"
	"go.uber.org/zap"
)

// Message represents a received Feishu message
type Message struct {
	ChatID     string
	MsgID      string
	ParentID   string            // Quoted message id for replies
	MsgType    string            // text, post, image, file, audio, media, sticker, interactive
	ChatType   string            // p2p (private), group
	Content    string            // Text content (extracted from all message types)
	Resources  []Resource        // Downloadable resources
	Sender     *Sender           // Message sender info
	Mentions   []Mention         // Mentioned users
	MentionMap map[string]string // Map from mention key (@_user_1) to real name
	CreateTime int64             // Message creation time (milliseconds Unix timestamp from Feishu)
}

// Resource is an image or file attached to a message
type Resource struct {
	Key  string
	Type string // image or file (MessageResource API type)
}

// Sender represents the message sender
type Sender struct {
	SenderID   string // open_id
	SenderType string // user, app
	TenantKey  string
}

// Mention represents a mentioned or to-be-mentioned user
type Mention struct {
	UserID   string // open_id (ou_xxx)
	UserName string // Display name for the mention
}

// MemberEvent reports users joining or leaving a chat
type MemberEvent struct {
	ChatID string
	Added  bool
	Users  []Mention
}

// ChatInfo represents information about a chat
type ChatInfo struct {
	ChatID      string `json:"chat_id"`
	Name        string `json:"name"`
	ChatType    string `json:"chat_type"` // p2p, group
	OwnerID     string `json:"owner_id"`
	MemberCount int    `json:"user_count"`
}

// ChatMember represents a member in a chat
type ChatMember struct {
	MemberID string `json:"member_id"`
	Name     string `json:"name"`
}

// QuotedMessage is the parent of a reply
type QuotedMessage struct {
	MsgID    string
	SenderID string
	Content  string
}

// MessageHandler is the callback for received messages
type MessageHandler func(msg *Message)

// MemberHandler is the callback for membership changes
type MemberHandler func(ev *MemberEvent)

// Client is the Feishu API client
type Client struct {
	appID     string
	appSecret string
	larkCli   *lark.Client
	wsCli     *larkws.Client
	onMessage MessageHandler
	onMember  MemberHandler
	botOpenID string
	logger    *zap.Logger
}

// NewClient creates a new Feishu client
func NewClient(appID, appSecret string, logger *zap.Logger) *Client {
	return &Client{
		appID:     appID,
		appSecret: appSecret,
		larkCli:   lark.NewClient(appID, appSecret),
		logger:    logger.Named("feishu"),
	}
}

// OnMessage sets the message handler
func (c *Client) OnMessage(handler MessageHandler) {
	c.onMessage = handler
}

// OnMember sets the membership handler
func (c *Client) OnMember(handler MemberHandler) {
	c.onMember = handler
}

// BotOpenID returns the bot's own open_id once known
func (c *Client) BotOpenID() string {
	return c.botOpenID
}

// Start connects to Feishu via WebSocket and blocks until ctx is done
func (c *Client) Start(ctx context.Context) error {
	// Fetch bot's own open_id at startup
	if err := c.fetchBotOpenID(ctx); err != nil {
		c.logger.Warn("failed to fetch bot open_id", zap.Error(err))
	}

	// Handlers must return quickly so the SDK can ACK, otherwise Feishu retries
	eventHandler := dispatcher.NewEventDispatcher("", "").
		OnP2MessageReceiveV1(func(ctx context.Context, event *larkim.P2MessageReceiveV1) error {
			go c.handleMessage(event)
			return nil
		}).
		OnP2ChatMemberUserAddedV1(func(ctx context.Context, event *larkim.P2ChatMemberUserAddedV1) error {
			if event.Event != nil {
				go c.handleMembers(event.Event.ChatId, event.Event.Users, true)
			}
			return nil
		}).
		OnP2ChatMemberUserDeletedV1(func(ctx context.Context, event *larkim.P2ChatMemberUserDeletedV1) error {
			if event.Event != nil {
				go c.handleMembers(event.Event.ChatId, event.Event.Users, false)
			}
			return nil
		})

	c.wsCli = larkws.NewClient(c.appID, c.appSecret,
		larkws.WithEventHandler(eventHandler),
		larkws.WithLogLevel(larkcore.LogLevelInfo),
	)

	c.logger.Info("starting websocket connection")
	return c.wsCli.Start(ctx)
}

// fetchBotOpenID fetches the bot's own open_id
func (c *Client) fetchBotOpenID(ctx context.Context) error {
	resp, err := c.larkCli.Get(ctx, "/open-apis/bot/v3/info", nil, larkcore.AccessTokenTypeTenant)
	if err != nil {
		return fmt.Errorf("get bot info: %w", err)
	}

	var botResult struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
		Bot  struct {
			OpenID  string `json:"open_id"`
			AppName string `json:"app_name"`
		} `json:"bot"`
	}
	if err := json.Unmarshal(resp.RawBody, &botResult); err != nil {
		return fmt.Errorf("decode bot info: %w", err)
	}
	if botResult.Code != 0 {
		return fmt.Errorf("API error: %s", botResult.Msg)
	}

	c.botOpenID = botResult.Bot.OpenID
	c.logger.Info("bot identity", zap.String("open_id", c.botOpenID), zap.String("name", botResult.Bot.AppName))
	return nil
}

func (c *Client) handleMembers(chatID *string, users []*larkim.ChatMemberUser, added bool) {
	if chatID == nil || c.onMember == nil {
		return
	}
	ev := &MemberEvent{ChatID: *chatID, Added: added}
	for _, u := range users {
		if u == nil || u.UserId == nil || u.UserId.OpenId == nil {
			continue
		}
		m := Mention{UserID: *u.UserId.OpenId}
		if u.Name != nil {
			m.UserName = *u.Name
		}
		ev.Users = append(ev.Users, m)
	}
	if len(ev.Users) > 0 {
		c.onMember(ev)
	}
}

// handleMessage converts a receive event into a Message
func (c *Client) handleMessage(event *larkim.P2MessageReceiveV1) {
	if event.Event == nil || event.Event.Message == nil {
		return
	}
	rawMsg := event.Event.Message
	if rawMsg.ChatId == nil || rawMsg.MessageId == nil || rawMsg.MessageType == nil {
		return
	}

	msg := &Message{
		ChatID:     *rawMsg.ChatId,
		MsgID:      *rawMsg.MessageId,
		MsgType:    *rawMsg.MessageType,
		MentionMap: make(map[string]string),
	}
	if rawMsg.ParentId != nil {
		msg.ParentID = *rawMsg.ParentId
	}

	// Parse create time (milliseconds Unix timestamp)
	if rawMsg.CreateTime != nil {
		if ts, err := strconv.ParseInt(*rawMsg.CreateTime, 10, 64); err == nil {
			msg.CreateTime = ts
		}
	}
	if rawMsg.ChatType != nil {
		msg.ChatType = *rawMsg.ChatType
	}

	if s := event.Event.Sender; s != nil {
		msg.Sender = &Sender{}
		if s.SenderId != nil && s.SenderId.OpenId != nil {
			msg.Sender.SenderID = *s.SenderId.OpenId
		}
		if s.SenderType != nil {
			msg.Sender.SenderType = *s.SenderType
		}
		if s.TenantKey != nil {
			msg.Sender.TenantKey = *s.TenantKey
		}
	}

	for _, mention := range rawMsg.Mentions {
		if mention == nil {
			continue
		}
		m := Mention{}
		if mention.Id != nil && mention.Id.OpenId != nil {
			m.UserID = *mention.Id.OpenId
		}
		if mention.Name != nil {
			m.UserName = *mention.Name
		}
		if m.UserID != "" {
			msg.Mentions = append(msg.Mentions, m)
		}
		// Save key -> name mapping for replacing placeholders in messages
		if mention.Key != nil && mention.Name != nil {
			msg.MentionMap[*mention.Key] = *mention.Name
		}
	}

	content := ""
	if rawMsg.Content != nil {
		content = *rawMsg.Content
	}
	msg.Content, msg.Resources = ParseContent(msg.MsgType, content, msg.MentionMap)

	c.logger.Debug("received message",
		zap.String("type", msg.MsgType),
		zap.String("chat", msg.ChatID),
		zap.Int("resources", len(msg.Resources)))

	if c.onMessage != nil {
		c.onMessage(msg)
	}
}

// ParseContent extracts text and resources from message content JSON
func ParseContent(msgType, content string, mentionMap map[string]string) (string, []Resource) {
	switch msgType {
	case "text":
		return parseTextContent(content, mentionMap), nil
	case "post":
		return parsePostContent(content, mentionMap)
	case "image":
		var parsed struct {
			ImageKey string `json:"image_key"`
		}
		if err := json.Unmarshal([]byte(content), &parsed); err != nil || parsed.ImageKey == "" {
			return "", nil
		}
		return "", []Resource{{Key: parsed.ImageKey, Type: "image"}}
	case "file", "audio", "media", "sticker":
		var parsed struct {
			FileKey string `json:"file_key"`
		}
		if err := json.Unmarshal([]byte(content), &parsed); err != nil || parsed.FileKey == "" {
			return "", nil
		}
		return "", []Resource{{Key: parsed.FileKey, Type: "file"}}
	}
	return "", nil
}

// parseTextContent extracts text from a text message
// It also replaces mention placeholders (@_user_1) with real names
func parseTextContent(content string, mentionMap map[string]string) string {
	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return ""
	}
	return replaceMentions(parsed.Text, mentionMap)
}

// parsePostContent extracts text and images from a rich text message
func parsePostContent(content string, mentionMap map[string]string) (string, []Resource) {
	var parsed struct {
		Title   string `json:"title"`
		Content [][]struct {
			Tag      string `json:"tag"`
			Text     string `json:"text,omitempty"`
			ImageKey string `json:"image_key,omitempty"`
			UserID   string `json:"user_id,omitempty"` // for "at" tags
		} `json:"content"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return "", nil
	}

	var textParts []string
	var resources []Resource

	if parsed.Title != "" {
		textParts = append(textParts, parsed.Title)
	}

	for _, line := range parsed.Content {
		var lineParts []string
		for _, elem := range line {
			switch elem.Tag {
			case "text", "a":
				if elem.Text != "" {
					lineParts = append(lineParts, elem.Text)
				}
			case "at":
				if elem.UserID != "" {
					if name, ok := mentionMap[elem.UserID]; ok {
						lineParts = append(lineParts, "@"+name)
					} else {
						lineParts = append(lineParts, "@"+elem.UserID)
					}
				}
			case "img":
				if elem.ImageKey != "" {
					resources = append(resources, Resource{Key: elem.ImageKey, Type: "image"})
				}
			}
		}
		if len(lineParts) > 0 {
			textParts = append(textParts, strings.Join(lineParts, ""))
		}
	}

	result := strings.Join(textParts, "\n")
	return replaceMentions(result, mentionMap), resources
}

// replaceMentions replaces mention placeholders (@_user_1, @_user_2, etc.) with real names
func replaceMentions(text string, mentionMap map[string]string) string {
	for key, name := range mentionMap {
		text = strings.ReplaceAll(text, key, "@"+name)
	}
	return text
}

// textContent builds text content JSON with <at> tags for mentions
func textContent(text string, mentions []string) string {
	var sb strings.Builder
	for _, id := range mentions {
		sb.WriteString(fmt.Sprintf("<at user_id=\"%s\"></at> ", id))
	}
	sb.WriteString(text)
	contentJSON, _ := json.Marshal(map[string]string{"text": sb.String()})
	return string(contentJSON)
}

func (c *Client) create(ctx context.Context, chatID, msgType, content string) (string, error) {
	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(larkim.ReceiveIdTypeChatId).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(chatID).
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
	if resp.Data != nil && resp.Data.MessageId != nil {
		return *resp.Data.MessageId, nil
	}
	return "", nil
}

// SendText sends a text message, mentioning the given open_ids
func (c *Client) SendText(ctx context.Context, chatID, text string, mentions []string) (string, error) {
	return c.create(ctx, chatID, larkim.MsgTypeText, textContent(text, mentions))
}

// ReplyText replies to a message in its thread
func (c *Client) ReplyText(ctx context.Context, messageID, text string) (string, error) {
	req := larkim.NewReplyMessageReqBuilder().
		MessageId(messageID).
		Body(larkim.NewReplyMessageReqBodyBuilder().
			MsgType(larkim.MsgTypeText).
			Content(textContent(text, nil)).
			Build()).
		Build()

	resp, err := c.larkCli.Im.Message.Reply(ctx, req)
	if err != nil {
		return "", fmt.Errorf("reply message failed: %w", err)
	}
	if !resp.Success() {
		return "", &APIError{Op: "reply message", Code: resp.Code, Msg: resp.Msg}
	}
	if resp.Data != nil && resp.Data.MessageId != nil {
		return *resp.Data.MessageId, nil
	}
	return "", nil
}

// SendImage uploads an image and sends it to the chat
func (c *Client) SendImage(ctx context.Context, chatID string, data []byte) (string, error) {
	req := larkim.NewCreateImageReqBuilder().
		Body(larkim.NewCreateImageReqBodyBuilder().
			ImageType(larkim.ImageTypeMessage).
			Image(bytes.NewReader(data)).
			Build()).
		Build()

	resp, err := c.larkCli.Im.Image.Create(ctx, req)
	if err != nil {
		return "", fmt.Errorf("upload image failed: %w", err)
	}
	if !resp.Success() || resp.Data == nil || resp.Data.ImageKey == nil {
		return "", &APIError{Op: "upload image", Code: resp.Code, Msg: resp.Msg}
	}

	content, _ := json.Marshal(map[string]string{"image_key": *resp.Data.ImageKey})
	return c.create(ctx, chatID, larkim.MsgTypeImage, string(content))
}

// SendFile uploads a file and sends it to the chat
func (c *Client) SendFile(ctx context.Context, chatID, fileType, fileName string, data []byte) (string, error) {
	req := larkim.NewCreateFileReqBuilder().
		Body(larkim.NewCreateFileReqBodyBuilder().
			FileType(fileType).
			FileName(fileName).
			File(bytes.NewReader(data)).
			Build()).
		Build()

	resp, err := c.larkCli.Im.File.Create(ctx, req)
	if err != nil {
		return "", fmt.Errorf("upload file failed: %w", err)
	}
	if !resp.Success() || resp.Data == nil || resp.Data.FileKey == nil {
		return "", &APIError{Op: "upload file", Code: resp.Code, Msg: resp.Msg}
	}

	msgType := larkim.MsgTypeFile
	if fileType == "mp4" {
		msgType = larkim.MsgTypeMedia
	}
	content, _ := json.Marshal(map[string]string{"file_key": *resp.Data.FileKey})
	return c.create(ctx, chatID, msgType, string(content))
}

// DeleteMessage recalls a message
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
	return nil
}

// RemoveChatMembers removes users from a chat
func (c *Client) RemoveChatMembers(ctx context.Context, chatID string, openIDs []string) error {
	req := larkim.NewDeleteChatMembersReqBuilder().
		ChatId(chatID).
		MemberIdType("open_id").
		Body(larkim.NewDeleteChatMembersReqBodyBuilder().
			IdList(openIDs).
			Build()).
		Build()

	resp, err := c.larkCli.Im.ChatMembers.Delete(ctx, req)
	if err != nil {
		return fmt.Errorf("remove chat members failed: %w", err)
	}
	if !resp.Success() {
		return &APIError{Op: "remove chat members", Code: resp.Code, Msg: resp.Msg}
	}
	return nil
}

// AddReaction adds an emoji reaction to a message
func (c *Client) AddReaction(ctx context.Context, messageID, emojiType string) error {
	req := larkim.NewCreateMessageReactionReqBuilder().
		MessageId(messageID).
		Body(larkim.NewCreateMessageReactionReqBodyBuilder().
			ReactionType(larkim.NewEmojiBuilder().EmojiType(emojiType).Build()).
			Build()).
		Build()

	resp, err := c.larkCli.Im.MessageReaction.Create(ctx, req)
	if err != nil {
		return fmt.Errorf("add reaction failed: %w", err)
	}
	if !resp.Success() {
		return &APIError{Op: "add reaction", Code: resp.Code, Msg: resp.Msg}
	}
	return nil
}

// DownloadResource downloads an image or file attached to a message
func (c *Client) DownloadResource(ctx context.Context, messageID string, res Resource) ([]byte, error) {
	req := larkim.NewGetMessageResourceReqBuilder().
		MessageId(messageID).
		FileKey(res.Key).
		Type(res.Type).
		Build()

	resp, err := c.larkCli.Im.MessageResource.Get(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("get resource failed: %w", err)
	}
	if !resp.Success() {
		return nil, &APIError{Op: "get resource", Code: resp.Code, Msg: resp.Msg}
	}

	data, err := io.ReadAll(resp.File)
	if err != nil {
		return nil, fmt.Errorf("read resource: %w", err)
	}
	return data, nil
}

// GetMessage fetches a single message, used to resolve quoted replies
func (c *Client) GetMessage(ctx context.Context, messageID string) (*QuotedMessage, error) {
	req := larkim.NewGetMessageReqBuilder().
		MessageId(messageID).
		Build()

	resp, err := c.larkCli.Im.Message.Get(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("get message failed: %w", err)
	}
	if !resp.Success() {
		return nil, &APIError{Op: "get message", Code: resp.Code, Msg: resp.Msg}
	}
	if resp.Data == nil || len(resp.Data.Items) == 0 {
		return nil, nil
	}

	item := resp.Data.Items[0]
	q := &QuotedMessage{MsgID: messageID}
	if item.Sender != nil && item.Sender.Id != nil {
		q.SenderID = *item.Sender.Id
	}
	if item.Body != nil && item.Body.Content != nil && item.MsgType != nil {
		q.Content, _ = ParseContent(*item.MsgType, *item.Body.Content, nil)
	}
	return q, nil
}

// GetChatMembers retrieves members of a chat (group)
// Uses pagination to get all members
func (c *Client) GetChatMembers(ctx context.Context, chatID string) ([]*ChatMember, error) {
	var members []*ChatMember
	var pageToken string

	for {
		reqBuilder := larkim.NewGetChatMembersReqBuilder().
			MemberIdType("open_id").
			ChatId(chatID).
			PageSize(100)
		if pageToken != "" {
			reqBuilder = reqBuilder.PageToken(pageToken)
		}

		resp, err := c.larkCli.Im.ChatMembers.Get(ctx, reqBuilder.Build())
		if err != nil {
			return nil, fmt.Errorf("get chat members failed: %w", err)
		}
		if !resp.Success() {
			return nil, &APIError{Op: "get chat members", Code: resp.Code, Msg: resp.Msg}
		}

		for _, item := range resp.Data.Items {
			member := &ChatMember{}
			if item.MemberId != nil {
				member.MemberID = *item.MemberId
			}
			if item.Name != nil {
				member.Name = *item.Name
			}
			members = append(members, member)
		}

		if resp.Data.PageToken == nil || *resp.Data.PageToken == "" {
			break
		}
		pageToken = *resp.Data.PageToken
	}
	return members, nil
}

// GetChatInfo retrieves information about a chat
func (c *Client) GetChatInfo(ctx context.Context, chatID string) (*ChatInfo, error) {
	req := larkim.NewGetChatReqBuilder().
		ChatId(chatID).
		UserIdType("open_id").
		Build()

	resp, err := c.larkCli.Im.Chat.Get(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("get chat info failed: %w", err)
	}
	if !resp.Success() {
		return nil, &APIError{Op: "get chat info", Code: resp.Code, Msg: resp.Msg}
	}

	info := &ChatInfo{ChatID: chatID}
	if resp.Data.Name != nil {
		info.Name = *resp.Data.Name
	}
	if resp.Data.ChatMode != nil {
		info.ChatType = *resp.Data.ChatMode
	}
	if resp.Data.OwnerId != nil {
		info.OwnerID = *resp.Data.OwnerId
	}
	if resp.Data.UserCount != nil {
		info.MemberCount, _ = strconv.Atoi(*resp.Data.UserCount)
	}
	return info, nil
}

// APIError is a non-success response from the Feishu open platform
type APIError struct {
	Op   string
	Code int
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s error: code=%d %s", e.Op, e.Code, e.Msg)
}

// permissionCodes are open platform codes meaning the bot lacks rights in the chat
var permissionCodes = map[int]bool{
	232014: true, // operator is not owner or admin
	232017: true, // no permission to remove members
	230027: true, // lacks permission
}

// IsPermission reports whether the error is a chat permission refusal
func (e *APIError) IsPermission() bool {
	return permissionCodes[e.Code]
}
