package data

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/devricklin/chatwarden/internal/biz/domain"
	"github.com/devricklin/chatwarden/internal/biz/repo"
	"github.com/devricklin/chatwarden/internal/infra/feishu"
	"github.com/devricklin/chatwarden/internal/infra/gateway"
)

type fakeFeishuAPI struct {
	removeErr error
	quoted    *feishu.QuotedMessage
	images    int
	files     []string
	texts     []string
}

func (f *fakeFeishuAPI) BotOpenID() string { return "ou_BOT" }

func (f *fakeFeishuAPI) SendText(ctx context.Context, chatID, text string, mentions []string) (string, error) {
	f.texts = append(f.texts, text)
	return "om_text", nil
}

func (f *fakeFeishuAPI) ReplyText(ctx context.Context, messageID, text string) (string, error) {
	return "om_reply", nil
}

func (f *fakeFeishuAPI) SendImage(ctx context.Context, chatID string, data []byte) (string, error) {
	f.images++
	return "om_image", nil
}

func (f *fakeFeishuAPI) SendFile(ctx context.Context, chatID, fileType, fileName string, data []byte) (string, error) {
	f.files = append(f.files, fileType)
	return "om_file", nil
}

func (f *fakeFeishuAPI) DeleteMessage(ctx context.Context, messageID string) error { return nil }

func (f *fakeFeishuAPI) RemoveChatMembers(ctx context.Context, chatID string, openIDs []string) error {
	return f.removeErr
}

func (f *fakeFeishuAPI) AddReaction(ctx context.Context, messageID, emojiType string) error {
	return nil
}

func (f *fakeFeishuAPI) DownloadResource(ctx context.Context, messageID string, res feishu.Resource) ([]byte, error) {
	return []byte(res.Type), nil
}

func (f *fakeFeishuAPI) GetMessage(ctx context.Context, messageID string) (*feishu.QuotedMessage, error) {
	return f.quoted, nil
}

func (f *fakeFeishuAPI) GetChatMembers(ctx context.Context, chatID string) ([]*feishu.ChatMember, error) {
	return []*feishu.ChatMember{{MemberID: "ou_owner", Name: "Owner"}, {MemberID: "ou_b", Name: "B"}}, nil
}

func (f *fakeFeishuAPI) GetChatInfo(ctx context.Context, chatID string) (*feishu.ChatInfo, error) {
	return &feishu.ChatInfo{ChatID: chatID, Name: "Team", ChatType: "group", OwnerID: "ou_owner"}, nil
}

func TestFeishuTransport(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	api := &fakeFeishuAPI{}
	tr := newFeishuTransport(api, zap.NewNop())
	assert.Equal(FeishuAccount, tr.Account())
	assert.Equal("ou_bot", tr.SelfID())

	conv, err := tr.GetConversation(ctx, "oc_1")
	require.NoError(t, err)
	assert.True(conv.IsGroup())
	assert.True(conv.IsAdmin("ou_owner"))
	assert.False(conv.IsAdmin("ou_b"))
	assert.Len(conv.Members, 2)

	api.removeErr = &feishu.APIError{Op: "remove chat members", Code: 232014, Msg: "not admin"}
	assert.ErrorIs(tr.RemoveParticipants(ctx, "oc_1", []string{"ou_b"}), domain.ErrPermission)
	api.removeErr = &feishu.APIError{Op: "remove chat members", Code: 99991663, Msg: "token expired"}
	err = tr.RemoveParticipants(ctx, "oc_1", []string{"ou_b"})
	assert.Error(err)
	assert.NotErrorIs(err, domain.ErrPermission)

	_, err = tr.SendMedia(ctx, "oc_1", repo.OutboundMedia{Kind: domain.KindImage, Data: []byte{1}, Caption: "look"})
	require.NoError(t, err)
	_, err = tr.SendMedia(ctx, "oc_1", repo.OutboundMedia{Kind: domain.KindVideo, Data: []byte{1}})
	require.NoError(t, err)
	_, err = tr.SendMedia(ctx, "oc_1", repo.OutboundMedia{Kind: domain.KindFile, Data: []byte{1}})
	require.NoError(t, err)
	assert.Equal(1, api.images)
	assert.Equal([]string{"mp4", "stream"}, api.files)
	assert.Equal([]string{"look"}, api.texts)

	data, err := tr.DownloadMedia(ctx, &domain.Context{MessageID: "om_1"}, domain.Attachment{Kind: domain.KindImage, Key: "img"})
	require.NoError(t, err)
	assert.Equal("image", string(data))

	assert.NoError(tr.SetPresence(ctx, "oc_1", repo.PresenceComposing))
}

func TestFeishuToRawEvent(t *testing.T) {
	assert := assert.New(t)

	api := &fakeFeishuAPI{quoted: &feishu.QuotedMessage{MsgID: "om_parent", SenderID: "ou_q", Content: "earlier"}}
	tr := newFeishuTransport(api, zap.NewNop())

	ev := tr.ToRawEvent(context.Background(), &feishu.Message{
		ChatID:     "oc_1",
		MsgID:      "om_2",
		ParentID:   "om_parent",
		MsgType:    "text",
		ChatType:   "group",
		Content:    "@Bot hello",
		Sender:     &feishu.Sender{SenderID: "ou_a", SenderType: "user"},
		Mentions:   []feishu.Mention{{UserID: "ou_bot", UserName: "Bot"}},
		CreateTime: 1700000000000,
	})
	assert.Equal(FeishuAccount, ev.Account)
	assert.True(ev.IsGroup)
	assert.False(ev.FromSelf)
	assert.Equal([]string{"ou_bot"}, ev.Mentions)
	require.NotNil(t, ev.Quoted)
	assert.Equal("ou_q", ev.Quoted.AuthorID)
	assert.Equal("earlier", ev.Quoted.Text)

	self := tr.ToRawEvent(context.Background(), &feishu.Message{
		ChatID: "oc_1", MsgID: "om_3", MsgType: "text",
		Sender: &feishu.Sender{SenderID: "ou_bot", SenderType: "app"},
	})
	assert.True(self.FromSelf)

	post := tr.ToRawEvent(context.Background(), &feishu.Message{
		ChatID: "oc_1", MsgID: "om_4", MsgType: "post",
		Resources: []feishu.Resource{{Key: "img_1", Type: "image"}},
		Sender:    &feishu.Sender{SenderID: "ou_a", SenderType: "user"},
	})
	require.Len(t, post.Attachments, 1)
	assert.Equal(domain.KindImage, post.Attachments[0].Kind)
}

func TestFeishuParticipantEvent(t *testing.T) {
	ev := ToParticipantEvent(&feishu.MemberEvent{ChatID: "oc_1", Added: true, Users: []feishu.Mention{{UserID: "ou_A", UserName: "A"}}})
	assert.Equal(t, domain.ParticipantAdded, ev.Action)
	assert.Equal(t, []domain.Member{{ActorID: "ou_a", Name: "A"}}, ev.Actors)
}

type fakeGatewayCaller struct {
	calls   []string
	params  []interface{}
	err     error
	payload map[string]interface{}
}

func (f *fakeGatewayCaller) SelfID() string { return "15550001111@s.example" }

func (f *fakeGatewayCaller) Call(ctx context.Context, method string, params interface{}, out interface{}) error {
	f.calls = append(f.calls, method)
	f.params = append(f.params, params)
	if f.err != nil {
		return f.err
	}
	if out != nil && f.payload[method] != nil {
		data, _ := json.Marshal(f.payload[method])
		return json.Unmarshal(data, out)
	}
	return nil
}

func TestGatewayTransport(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	caller := &fakeGatewayCaller{payload: map[string]interface{}{
		gateway.MethodSendText: gateway.SendResult{MessageID: "wamid.1"},
		gateway.MethodGroupMetadata: gateway.GroupMetadata{
			ID:      "123@g.us",
			Subject: "Group",
			Participants: []gateway.Participant{
				{ID: "1555:3@s.example", Name: "Admin", Admin: true},
				{ID: "1666@s.example", Name: "User"},
			},
		},
	}}
	tr := newGatewayTransport(caller, zap.NewNop())
	assert.Equal("15550001111", tr.SelfID())

	id, err := tr.SendText(ctx, "123@g.us", "hi", []string{"1666"})
	require.NoError(t, err)
	assert.Equal("wamid.1", id)
	assert.Equal([]string{"1666@s.example"}, caller.params[0].(gateway.SendTextParams).Mentions)

	_, err = tr.Reply(ctx, &domain.Context{ConversationID: "123@g.us", MessageID: "in.1"}, "re")
	require.NoError(t, err)
	assert.Equal("in.1", caller.params[1].(gateway.SendTextParams).QuotedID)

	conv, err := tr.GetConversation(ctx, "123@g.us")
	require.NoError(t, err)
	assert.Equal([]string{"1555"}, conv.Admins)
	assert.True(conv.IsAdmin("1555@s.example"))

	caller.err = &gateway.WireError{Code: gateway.CodeForbidden, Message: "not admin"}
	assert.ErrorIs(tr.RemoveParticipants(ctx, "123@g.us", []string{"1666"}), domain.ErrPermission)
	removed := caller.params[len(caller.params)-1].(map[string]interface{})
	assert.Equal([]string{"1666@s.example"}, removed["participants"])
	caller.err = &gateway.WireError{Code: gateway.CodeNotFound, Message: "gone"}
	assert.NotErrorIs(tr.DeleteMessage(ctx, "123@g.us", "x"), domain.ErrPermission)
}

type bareGatewayCaller struct {
	fakeGatewayCaller
}

func (b *bareGatewayCaller) SelfID() string { return "" }

func TestGatewayAddresses(t *testing.T) {
	tr := newGatewayTransport(&bareGatewayCaller{}, zap.NewNop())
	assert.Equal(t, []string{"1666@s.whatsapp.net", "1777@lid"}, tr.addresses([]string{"1666", "", "1777@lid"}))
	assert.Empty(t, tr.addresses(nil))
}

func TestGatewayToRawEvents(t *testing.T) {
	assert := assert.New(t)

	tr := newGatewayTransport(&fakeGatewayCaller{}, zap.NewNop())
	events := tr.ToRawEvents(&gateway.MessagesEvent{Messages: []gateway.InboundMessage{
		{ID: "1", ConversationID: "123@g.us", SenderID: "1666@s.example", Kind: "text", Text: "hi", Mentions: []string{"15550001111@s.example"}},
		{ID: "2", ConversationID: "123@g.us", SenderID: "1666@s.example", Error: "decrypt_failed"},
		{ID: "3", ConversationID: "1666@s.example", SenderID: "15550001111@s.example", Kind: "text", Text: "mine"},
		{ID: "4", ConversationID: "1666@s.example", SenderID: "1666@s.example", Kind: "view_once_image",
			Media: []gateway.Media{{Key: "k", Kind: "image", MimeType: "image/jpeg", ViewOnce: true}},
			Quoted: &gateway.Quoted{ID: "0", AuthorID: "1777@s.example", Text: "q"}},
	}})
	require.Len(t, events, 3)
	assert.True(events[0].IsGroup)
	assert.True(events[1].FromSelf)
	assert.False(events[2].IsGroup)
	require.Len(t, events[2].Attachments, 1)
	assert.True(events[2].Attachments[0].ViewOnce)
	assert.Equal("1777@s.example", events[2].Quoted.AuthorID)
}

func TestGatewayParticipantEvent(t *testing.T) {
	ev := ToGatewayParticipantEvent(&gateway.ParticipantsEvent{
		ConversationID: "123@g.us",
		Action:         "remove",
		Participants:   []gateway.Participant{{ID: "1666@s.example"}},
	})
	assert.Equal(t, domain.ParticipantRemoved, ev.Action)
	assert.Equal(t, "1666", ev.Actors[0].ActorID)
}
