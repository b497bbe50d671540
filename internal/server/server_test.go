package server

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/devricklin/chatwarden/internal/biz/domain"
	"github.com/devricklin/chatwarden/internal/conf"
	"github.com/devricklin/chatwarden/internal/data"
	"github.com/devricklin/chatwarden/internal/infra/gateway"
	"github.com/devricklin/chatwarden/internal/service"
)

type fakeSink struct {
	mu           sync.Mutex
	events       []*domain.RawEvent
	batches      chan []*domain.RawEvent
	participants chan *domain.ParticipantEvent
	states       []domain.ConnectionState
}

func newFakeSink() *fakeSink {
	return &fakeSink{
		batches:      make(chan []*domain.RawEvent, 4),
		participants: make(chan *domain.ParticipantEvent, 4),
	}
}

func (f *fakeSink) HandleEvent(ctx context.Context, ev *domain.RawEvent) service.Stage {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return service.StageNone
}

func (f *fakeSink) HandleBatch(ctx context.Context, events []*domain.RawEvent) {
	f.batches <- events
}

func (f *fakeSink) HandleParticipants(ctx context.Context, ev *domain.ParticipantEvent) {
	f.participants <- ev
}

func (f *fakeSink) HandleConnection(account string, state domain.ConnectionState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, state)
}

func newGatewayServer(t *testing.T) (*Server, *fakeSink) {
	t.Helper()
	logger := zap.NewNop()
	sink := newFakeSink()
	client := gateway.NewClient("ws://127.0.0.1:1", "", logger)
	return &Server{
		sink:          sink,
		logger:        logger,
		gatewayClient: client,
		gwTransport:   data.NewGatewayTransport(client, logger),
		seen:          expirable.NewLRU[string, struct{}](dedupSize, nil, dedupTTL),
	}, sink
}

func TestFirstDelivery(t *testing.T) {
	s, _ := newGatewayServer(t)

	assert.True(t, s.firstDelivery("om_1"))
	assert.False(t, s.firstDelivery("om_1"))
	assert.True(t, s.firstDelivery("om_2"))
	// events without an id cannot be deduplicated
	assert.True(t, s.firstDelivery(""))
	assert.True(t, s.firstDelivery(""))
}

func TestHandleGatewayEvent_Messages(t *testing.T) {
	s, sink := newGatewayServer(t)

	payload, err := json.Marshal(gateway.MessagesEvent{Messages: []gateway.InboundMessage{
		{ID: "m1", ConversationID: "120363@g.us", SenderID: "alice", Kind: "text", Text: "hi"},
		{ID: "m2", ConversationID: "120363@g.us", SenderID: "bob", Error: "decrypt failed"},
		{ID: "m3", ConversationID: "bob@s.whatsapp.net", SenderID: "bob", Kind: "text", Text: "yo"},
	}})
	require.NoError(t, err)

	s.handleGatewayEvent(gateway.EventMessages, payload)

	select {
	case batch := <-sink.batches:
		require.Len(t, batch, 2)
		assert.Equal(t, "m1", batch[0].MessageID)
		assert.Equal(t, data.GatewayAccount, batch[0].Account)
		assert.Equal(t, "m3", batch[1].MessageID)
	case <-time.After(time.Second):
		t.Fatal("batch was not dispatched")
	}
}

func TestHandleGatewayEvent_EmptyOrMalformed(t *testing.T) {
	s, sink := newGatewayServer(t)

	s.handleGatewayEvent(gateway.EventMessages, json.RawMessage(`{"messages":[{"id":"x","error":"bad"}]}`))
	s.handleGatewayEvent(gateway.EventMessages, json.RawMessage(`not json`))
	s.handleGatewayEvent(gateway.EventParticipants, json.RawMessage(`[`))
	s.handleGatewayEvent("presence.update", json.RawMessage(`{}`))

	select {
	case <-sink.batches:
		t.Fatal("nothing should be dispatched")
	case <-sink.participants:
		t.Fatal("nothing should be dispatched")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHandleGatewayEvent_Participants(t *testing.T) {
	s, sink := newGatewayServer(t)

	payload, err := json.Marshal(gateway.ParticipantsEvent{
		ConversationID: "120363@g.us",
		Action:         "add",
		Participants:   []gateway.Participant{{ID: "carol", Name: "Carol"}},
	})
	require.NoError(t, err)

	s.handleGatewayEvent(gateway.EventParticipants, payload)

	select {
	case ev := <-sink.participants:
		assert.Equal(t, domain.ParticipantAdded, ev.Action)
		assert.Equal(t, "120363@g.us", ev.ConversationID)
		require.Len(t, ev.Actors, 1)
		assert.Equal(t, "Carol", ev.Actors[0].Name)
	case <-time.After(time.Second):
		t.Fatal("participants event was not dispatched")
	}
}

func TestHandleGatewayEvent_Connection(t *testing.T) {
	s, sink := newGatewayServer(t)

	s.handleGatewayEvent(gateway.EventConnection, json.RawMessage(`{"state":"open"}`))
	s.handleGatewayEvent(gateway.EventConnection, json.RawMessage(`{"state":"closed"}`))

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, []domain.ConnectionState{domain.ConnectionOpen, domain.ConnectionClosed}, sink.states)
}

type blockingSink struct {
	*fakeSink
	started chan struct{}
	release chan struct{}
}

func (b *blockingSink) HandleBatch(ctx context.Context, events []*domain.RawEvent) {
	b.started <- struct{}{}
	<-b.release
	b.fakeSink.HandleBatch(ctx, events)
}

func TestDrainWaitsForInflightBatches(t *testing.T) {
	s, inner := newGatewayServer(t)
	sink := &blockingSink{fakeSink: inner, started: make(chan struct{}, 1), release: make(chan struct{})}
	s.sink = sink

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.runCtx = runCtx

	payload := json.RawMessage(`{"messages":[{"id":"m1","conversation_id":"120363@g.us","sender_id":"alice","kind":"text","text":"hi"}]}`)
	s.handleGatewayEvent(gateway.EventMessages, payload)
	select {
	case <-sink.started:
	case <-time.After(time.Second):
		t.Fatal("batch was not dispatched")
	}

	drained := make(chan bool, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		drained <- s.drain(ctx)
	}()

	select {
	case <-drained:
		t.Fatal("drain returned while a batch was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(sink.release)
	select {
	case ok := <-drained:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("drain did not return after the batch finished")
	}
	batch := <-inner.batches
	require.Len(t, batch, 1)

	// once draining, new events are refused
	s.handleGatewayEvent(gateway.EventMessages, payload)
	s.handleGatewayEvent(gateway.EventParticipants, json.RawMessage(`{"conversation_id":"120363@g.us","action":"add","participants":[{"id":"carol"}]}`))
	select {
	case <-sink.started:
		t.Fatal("batch dispatched after drain")
	case <-inner.participants:
		t.Fatal("participants dispatched after drain")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBeginUsesRunContext(t *testing.T) {
	s, _ := newGatewayServer(t)

	ctx, ok := s.begin()
	require.True(t, ok)
	assert.Equal(t, context.Background(), ctx)
	s.events.Done()

	runCtx, cancel := context.WithCancel(context.Background())
	s.runCtx = runCtx
	cancel()
	ctx, ok = s.begin()
	require.True(t, ok)
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
	s.events.Done()
}

func TestNew_WiresLayers(t *testing.T) {
	cfg := &conf.Config{
		Gateway: conf.GatewayConfig{URL: "ws://127.0.0.1:1"},
		Bot: conf.BotConfig{
			Name:          "Warden",
			CommandPrefix: "/",
			OverrideSigil: "$",
		},
		Limits: conf.LimitsConfig{
			Cooldown:         time.Second,
			SpamWindow:       3 * time.Second,
			SpamThreshold:    5,
			MaxWarnings:      3,
			CacheCapacity:    10,
			CacheTTL:         time.Minute,
			VaultExpiration:  time.Minute,
			VaultSweep:       time.Minute,
			PresenceHold:     time.Second,
			TranscriptLength: 20,
			XPPerMessage:     5,
		},
		Profile: conf.ProfileConfig{Store: "sqlite", DBPath: filepath.Join(t.TempDir(), "profiles.db")},
		Policy:  conf.DefaultPolicyConfig(),
	}

	s, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, []string{data.GatewayAccount}, s.Accounts().Accounts())
	assert.Nil(t, s.feishuClient)
	assert.NotNil(t, s.gwTransport)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}
