package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/devricklin/chatwarden/internal/biz/domain"
	"github.com/devricklin/chatwarden/internal/biz/repo"
)

func noop(ctx context.Context, inv *Invocation) error { return nil }

func TestRegistry(t *testing.T) {
	assert := assert.New(t)
	r := NewCommandRegistry("/")

	require.NoError(t, r.Register(&Command{Name: "ping", Aliases: []string{"p"}, Run: noop}))
	err := r.Register(&Command{Name: "P", Run: noop})
	assert.ErrorIs(err, domain.ErrDuplicateCommand)
	assert.Error(r.Register(&Command{Name: "nohandler"}))

	cmd, ok := r.Lookup("PING")
	assert.True(ok)
	assert.Equal("ping", cmd.Name)
	_, ok = r.Lookup("p")
	assert.True(ok)
	assert.Len(r.List(), 1)

	name, args, raw, ok := r.Parse("  /Kick @bob  now ")
	assert.True(ok)
	assert.Equal("kick", name)
	assert.Equal([]string{"@bob", "now"}, args)
	assert.Equal("@bob  now", raw)

	_, _, _, ok = r.Parse("/")
	assert.False(ok)
	_, _, _, ok = r.Parse("hello")
	assert.False(ok)
}

func TestNormalizer(t *testing.T) {
	assert := assert.New(t)
	n := NewNormalizer()

	c, reason := n.Normalize(&domain.RawEvent{
		Account:        "gateway",
		MessageID:      "m1",
		SenderID:       "12345:4@s.whatsapp.net",
		ConversationID: "999@g.us",
		IsGroup:        true,
		Kind:           "text",
		Body:           "  hi there ",
		Mentions:       []string{"BOT@s.whatsapp.net", "bot", ""},
	})
	require.Equal(t, RejectNone, reason)
	assert.Equal("12345", c.ActorID)
	assert.Equal("999@g.us", c.ConversationID)
	assert.Equal("hi there", c.Text)
	assert.Equal(domain.KindText, c.Kind)
	assert.Equal([]string{"bot"}, c.Mentions)
	assert.Nil(c.ReplyTarget)
}

func TestNormalizerRejects(t *testing.T) {
	assert := assert.New(t)
	n := NewNormalizer()

	_, reason := n.Normalize(&domain.RawEvent{SenderID: "a", ConversationID: "c", Body: "x", FromSelf: true})
	assert.Equal(RejectSelf, reason)

	_, reason = n.Normalize(&domain.RawEvent{SenderID: "a", ConversationID: "status@broadcast", Body: "x"})
	assert.Equal(RejectBroadcast, reason)

	_, reason = n.Normalize(&domain.RawEvent{SenderID: "a", ConversationID: "c", Kind: "protocol"})
	assert.Equal(RejectEmpty, reason)

	_, reason = n.Normalize(&domain.RawEvent{ConversationID: "c", Body: "x"})
	assert.Equal(RejectUnresolved, reason)

	_, reason = n.Normalize(nil)
	assert.Equal(RejectUnresolved, reason)
}

func TestNormalizerMediaKinds(t *testing.T) {
	assert := assert.New(t)
	n := NewNormalizer()

	c, reason := n.Normalize(&domain.RawEvent{
		SenderID:       "a",
		ConversationID: "c",
		Kind:           "view_once_image",
		Attachments:    []domain.Attachment{{Kind: domain.KindImage, Key: "k1"}},
		Quoted:         &domain.ReplyTarget{AuthorID: "Bot", Text: "earlier"},
	})
	require.Equal(t, RejectNone, reason)
	assert.Equal(domain.KindViewOnce, c.Kind)
	a, ok := c.ViewOnceAttachment()
	assert.True(ok)
	assert.Equal(domain.KindImage, a.Kind)
	assert.Equal("bot", c.ReplyTarget.AuthorID)

	c, _ = n.Normalize(&domain.RawEvent{SenderID: "a", ConversationID: "c", Kind: "button_reply", ButtonID: "opt_1"})
	assert.Equal(domain.KindButtonReply, c.Kind)
	assert.Equal("opt_1", c.Text)
	assert.False(c.Kind.Countable())
}

type presenceRecorder struct {
	mu     sync.Mutex
	events []repo.PresenceState
}

func (r *presenceRecorder) emit(conversationID string, state repo.PresenceState) {
	r.mu.Lock()
	r.events = append(r.events, state)
	r.mu.Unlock()
}

func (r *presenceRecorder) snapshot() []repo.PresenceState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]repo.PresenceState(nil), r.events...)
}

func TestPresenceDebouncer(t *testing.T) {
	defer goleak.VerifyNone(t)
	assert := assert.New(t)

	rec := &presenceRecorder{}
	p := NewPresenceDebouncer(50*time.Millisecond, rec.emit)

	p.Touch("g")
	p.Touch("g")
	p.Touch("g")
	assert.Equal([]repo.PresenceState{repo.PresenceComposing}, rec.snapshot())
	assert.True(p.Pending("g"))

	assert.Eventually(func() bool {
		return len(rec.snapshot()) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(repo.PresencePaused, rec.snapshot()[1])
	assert.False(p.Pending("g"))
}

func TestPresenceCancelAll(t *testing.T) {
	defer goleak.VerifyNone(t)
	assert := assert.New(t)

	rec := &presenceRecorder{}
	p := NewPresenceDebouncer(30*time.Millisecond, rec.emit)

	p.Touch("g1")
	p.Touch("g2")
	p.CancelAll()
	assert.False(p.Pending("g1"))

	time.Sleep(80 * time.Millisecond)
	assert.Equal([]repo.PresenceState{repo.PresenceComposing, repo.PresenceComposing}, rec.snapshot())

	// a cancelled debouncer still serves later touches
	assert.True(p.Touch("g1"))
	p.CancelAll()
}

func TestPresenceClose(t *testing.T) {
	defer goleak.VerifyNone(t)
	assert := assert.New(t)

	rec := &presenceRecorder{}
	p := NewPresenceDebouncer(20*time.Millisecond, rec.emit)

	assert.True(p.Touch("g1"))
	p.Close()
	assert.False(p.Touch("g2"))
	assert.False(p.Pending("g2"))

	time.Sleep(60 * time.Millisecond)
	assert.Equal([]repo.PresenceState{repo.PresenceComposing}, rec.snapshot())
}

type memProfileRepo struct {
	mu       sync.Mutex
	profiles map[string]*domain.Profile
	err      error
}

func newMemProfileRepo() *memProfileRepo {
	return &memProfileRepo{profiles: make(map[string]*domain.Profile)}
}

func (m *memProfileRepo) GetProfile(ctx context.Context, actorID string) (*domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.profiles[actorID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *memProfileRepo) UpsertProfile(ctx context.Context, actorID string, patch domain.ProfilePatch) (*domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.profiles[actorID]
	if !ok {
		p = &domain.Profile{ActorID: actorID, Level: 1}
		m.profiles[actorID] = p
	}
	patch.Apply(p)
	cp := *p
	return &cp, nil
}

func (m *memProfileRepo) Close() error { return nil }

func TestProgressionAward(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	profiles := newMemProfileRepo()
	uc := NewProgressionUsecase(profiles, []string{"Newcomer", "Regular"}, nil)

	res, err := uc.Award(ctx, "u", 60)
	require.NoError(t, err)
	assert.False(res.LevelUp)
	assert.Equal(60, res.Profile.XP)
	assert.Equal("Newcomer", res.Profile.Title)

	res, err = uc.Award(ctx, "U", 40)
	require.NoError(t, err)
	assert.True(res.LevelUp)
	assert.Equal(2, res.Profile.Level)
	assert.Equal("Regular", res.Profile.Title)

	require.NoError(t, uc.SetTalkative(ctx, "u", true))
	p, err := uc.Profile(ctx, "u")
	require.NoError(t, err)
	assert.True(p.Talkative)
	assert.Equal(100, p.XP)

	profiles.err = errors.New("store down")
	_, err = uc.Award(ctx, "u", 5)
	assert.Error(err)
}

func TestProgressionConcurrentAwards(t *testing.T) {
	ctx := context.Background()
	profiles := newMemProfileRepo()
	uc := NewProgressionUsecase(profiles, nil, NewKeyedMutex())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = uc.Award(ctx, "u", 5)
		}()
	}
	wg.Wait()

	p, err := uc.Profile(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, 100, p.XP)
}

type fakeGenerator struct {
	calls int
	reply string
	err   error
	last  repo.Prompt
}

func (g *fakeGenerator) Generate(ctx context.Context, p repo.Prompt) (string, error) {
	g.calls++
	g.last = p
	return g.reply, g.err
}

func (g *fakeGenerator) Name() string { return "fake" }

func TestResponderDecide(t *testing.T) {
	assert := assert.New(t)
	r, err := NewResponder(&fakeGenerator{}, nil, nil, ResponderConfig{
		BaseProbability: 0.05,
		PrivilegedBoost: 0.25,
		TalkativeBoost:  0.15,
		NamePatterns:    []string{`\bwarden\b`},
		Handle:          "5550100",
	})
	require.NoError(t, err)
	r.SetDraw(func() float64 { return 0.2 })

	group := func(c domain.Context) *domain.Context {
		c.IsGroup = true
		return &c
	}

	assert.Equal(TriggerAlways, r.Decide(&domain.Context{Text: "hi"}, "bot", false, false))
	assert.Equal(TriggerMention, r.Decide(group(domain.Context{Mentions: []string{"bot"}, Text: "warden"}), "BOT", false, false))
	assert.Equal(TriggerQuote, r.Decide(group(domain.Context{ReplyTarget: &domain.ReplyTarget{AuthorID: "bot"}}), "bot", false, false))
	assert.Equal(TriggerName, r.Decide(group(domain.Context{Text: "hey Warden, hi"}), "bot", false, false))
	assert.Equal(TriggerHandle, r.Decide(group(domain.Context{Text: "ping @5550100"}), "bot", false, false))

	// 0.05 < 0.2: no answer unless boosted
	assert.Equal(TriggerNone, r.Decide(group(domain.Context{Text: "hello"}), "bot", false, false))
	assert.Equal(TriggerRandomDraw, r.Decide(group(domain.Context{Text: "hello"}), "bot", true, false))
	assert.Equal(TriggerRandomDraw, r.Decide(group(domain.Context{Text: "hello"}), "bot", false, true))
}

func TestResponderAlwaysRespond(t *testing.T) {
	r, err := NewResponder(&fakeGenerator{}, nil, nil, ResponderConfig{AlwaysRespond: true})
	require.NoError(t, err)
	r.SetDraw(func() float64 { return 1 })
	assert.Equal(t, TriggerAlways, r.Decide(&domain.Context{IsGroup: true, Text: "x"}, "bot", false, false))
}

func TestResponderGenerateCaches(t *testing.T) {
	assert := assert.New(t)
	gen := &fakeGenerator{reply: "  forty two "}
	r, err := NewResponder(gen, nil, NewResponseCache(4, time.Minute), ResponderConfig{CallsPerMinute: 10})
	require.NoError(t, err)
	defer r.Close()

	text, cached, err := r.Generate(context.Background(), nil, "What is it?", true, at(0))
	require.NoError(t, err)
	assert.Equal("forty two", text)
	assert.False(cached)

	text, cached, err = r.Generate(context.Background(), nil, "what  is it?", true, at(10))
	require.NoError(t, err)
	assert.True(cached)
	assert.Equal("forty two", text)
	assert.Equal(1, gen.calls)
}

func TestResponderGenerateErrors(t *testing.T) {
	assert := assert.New(t)
	gen := &fakeGenerator{reply: "   "}
	r, err := NewResponder(gen, nil, NewResponseCache(4, time.Minute), ResponderConfig{CallsPerMinute: 2})
	require.NoError(t, err)
	defer r.Close()

	_, _, err = r.Generate(context.Background(), nil, "q1", true, at(0))
	assert.ErrorIs(err, domain.ErrEmptyGeneration)
	assert.Equal(0, r.cache.Len())

	gen.err = &domain.BlockedError{Reason: "SAFETY"}
	_, _, err = r.Generate(context.Background(), nil, "q2", true, at(1))
	assert.ErrorIs(err, domain.ErrBlocked)
	assert.True(IsExternalFailure(err))

	_, _, err = r.Generate(context.Background(), nil, "q3", true, at(2))
	assert.ErrorIs(err, domain.ErrRateLimited)
}

func TestPromptBuilderBudget(t *testing.T) {
	assert := assert.New(t)
	b := NewPromptBuilder(PromptConfig{
		SystemPrompt:    "I am {{bot_name}}",
		BotName:         "Warden",
		MaxHistoryCount: 3,
		MaxPromptRunes:  40,
		MaxLineRunes:    10,
	})

	var history []domain.Message
	for i := 0; i < 5; i++ {
		history = append(history, domain.Message{ActorName: "a", Text: "0123456789abcdef"})
	}
	p := b.Build(history, "question")
	assert.Equal("I am Warden", p.System)
	assert.LessOrEqual(len(p.History), 3)
	for _, m := range p.History {
		assert.Equal("0123456789...", m.Text)
	}
	assert.LessOrEqual(historyRunes(p.History), 40-len("question"))
	assert.Contains(p.UserText(), "[Current message]\nquestion")
}
