package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/devricklin/chatwarden/internal/api"
	"github.com/devricklin/chatwarden/internal/biz"
	"github.com/devricklin/chatwarden/internal/biz/domain"
	"github.com/devricklin/chatwarden/internal/conf"
	"github.com/devricklin/chatwarden/internal/data"
	"github.com/devricklin/chatwarden/internal/infra/feishu"
	"github.com/devricklin/chatwarden/internal/infra/gateway"
	"github.com/devricklin/chatwarden/internal/service"
)

const (
	dedupSize = 4096
	dedupTTL  = 5 * time.Minute
)

// eventSink receives decoded transport events
type eventSink interface {
	HandleEvent(ctx context.Context, ev *domain.RawEvent) service.Stage
	HandleBatch(ctx context.Context, events []*domain.RawEvent)
	HandleParticipants(ctx context.Context, ev *domain.ParticipantEvent)
	HandleConnection(account string, state domain.ConnectionState)
}

// Server wires the transports to the pipeline and runs the admin API
type Server struct {
	cfg       *conf.Config
	repos     *data.Repositories
	scheduler *service.Scheduler
	pipeline  *service.Pipeline
	sink      eventSink
	api       *api.Server
	logger    *zap.Logger

	feishuClient    *feishu.Client
	feishuTransport *data.FeishuTransport
	gatewayClient   *gateway.Client
	gwTransport     *data.GatewayTransport

	// Feishu redelivers events it did not see acknowledged in time
	seen *expirable.LRU[string, struct{}]

	cancel context.CancelFunc
	wg     sync.WaitGroup

	// events tracks inbound handlers so Stop can drain them before the
	// pipeline closes
	mu       sync.Mutex
	runCtx   context.Context
	draining bool
	events   sync.WaitGroup
}

// New builds every layer from configuration
func New(ctx context.Context, cfg *conf.Config, logger *zap.Logger) (*Server, error) {
	repos, err := data.NewRepositories(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("create repositories: %w", err)
	}

	uc, err := biz.NewUsecases(cfg, repos.Profile, repos.Generator)
	if err != nil {
		repos.Close()
		return nil, err
	}

	s := &Server{
		cfg:       cfg,
		repos:     repos,
		scheduler: service.NewScheduler(logger),
		logger:    logger.Named("server"),
		seen:      expirable.NewLRU[string, struct{}](dedupSize, nil, dedupTTL),
	}

	s.pipeline, err = service.NewPipeline(service.Deps{
		Accounts:    repos.Accounts,
		Normalizer:  uc.Normalizer,
		Limiter:     uc.Limiter,
		Abuse:       uc.Abuse,
		Vault:       uc.Vault,
		Mutes:       uc.Mutes,
		Policies:    uc.Policies,
		Registry:    uc.Registry,
		Transcript:  uc.Transcript,
		Progression: uc.Progression,
		Responder:   uc.Responder,
		Notifier:    repos.Notifier,
		Locks:       uc.Locks,
		Scheduler:   s.scheduler,
	}, service.PipelineConfig{
		BotName:       cfg.Bot.Name,
		Privileged:    cfg.Bot.Privileged,
		OverrideSigil: cfg.Bot.OverrideSigil,
		XPPerMessage:  cfg.Limits.XPPerMessage,
		PresenceHold:  cfg.Limits.PresenceHold,
		VaultSweep:    cfg.Limits.VaultSweep,
		Policy:        cfg.Policy,
	}, logger)
	if err != nil {
		repos.Close()
		return nil, fmt.Errorf("create pipeline: %w", err)
	}
	s.sink = s.pipeline

	s.api = api.NewServer(api.Deps{
		Policies:    uc.Policies,
		Mutes:       uc.Mutes,
		Abuse:       uc.Abuse,
		Progression: uc.Progression,
	}, cfg.API.Port, logger)

	if cfg.Feishu.Enabled() {
		s.feishuClient = feishu.NewClient(cfg.Feishu.AppID, cfg.Feishu.AppSecret, logger)
		s.feishuTransport = data.NewFeishuTransport(s.feishuClient, logger)
		repos.Accounts.Register(s.feishuTransport)
		s.feishuClient.OnMessage(s.handleFeishuMessage)
		s.feishuClient.OnMember(s.handleFeishuMember)
	}
	if cfg.Gateway.Enabled() {
		s.gatewayClient = gateway.NewClient(cfg.Gateway.URL, cfg.Gateway.Token, logger)
		s.gwTransport = data.NewGatewayTransport(s.gatewayClient, logger)
		repos.Accounts.Register(s.gwTransport)
		s.gatewayClient.OnEvent(s.handleGatewayEvent)
	}
	return s, nil
}

// Accounts exposes the transport registry
func (s *Server) Accounts() *data.AccountRegistry {
	return s.repos.Accounts
}

// Start launches the scheduler, the admin API and every configured
// transport. It returns immediately.
func (s *Server) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Lock()
	s.runCtx = ctx
	s.mu.Unlock()
	s.scheduler.Start(ctx)

	s.goRun("api", func() error {
		return s.api.Start()
	})
	s.logger.Info("admin API listening", zap.Int("port", s.api.GetPort()))

	if s.feishuClient != nil {
		s.goRun("feishu", func() error {
			return s.feishuClient.Start(ctx)
		})
	}
	if s.gatewayClient != nil {
		s.goRun("gateway", func() error {
			return s.gatewayClient.Run(ctx, func(open bool) {
				state := domain.ConnectionClosed
				if open {
					state = domain.ConnectionOpen
				}
				s.sink.HandleConnection(data.GatewayAccount, state)
			})
		})
	}
}

func (s *Server) goRun(name string, fn func() error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := fn(); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("component stopped", zap.String("component", name), zap.Error(err))
		}
	}()
}

// Stop shuts everything down in reverse order. In-flight events finish
// before the pipeline closes.
func (s *Server) Stop(ctx context.Context) {
	if !s.drain(ctx) {
		s.logger.Warn("shutdown timed out waiting for in-flight events")
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.scheduler.Stop()
	s.pipeline.Close()
	if err := s.api.Stop(ctx); err != nil {
		s.logger.Warn("stop admin API", zap.Error(err))
	}
	if s.gatewayClient != nil {
		s.gatewayClient.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		// the Feishu websocket client has no shutdown hook
		s.logger.Warn("shutdown timed out waiting for transports")
	}

	if err := s.repos.Close(); err != nil {
		s.logger.Warn("close repositories", zap.Error(err))
	}
}

// begin registers an inbound handler and returns the context it runs
// under. It reports false once Stop has started draining.
func (s *Server) begin() (context.Context, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draining {
		return nil, false
	}
	s.events.Add(1)
	if s.runCtx == nil {
		return context.Background(), true
	}
	return s.runCtx, true
}

// drain refuses new events and waits for the in-flight ones
func (s *Server) drain(ctx context.Context) bool {
	s.mu.Lock()
	s.draining = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.events.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

// firstDelivery records msgID and reports whether it had not been seen
func (s *Server) firstDelivery(msgID string) bool {
	if msgID == "" {
		return true
	}
	if s.seen.Contains(msgID) {
		return false
	}
	s.seen.Add(msgID, struct{}{})
	return true
}

func (s *Server) handleFeishuMessage(msg *feishu.Message) {
	if !s.firstDelivery(msg.MsgID) {
		s.logger.Debug("duplicate message ignored", zap.String("msg_id", msg.MsgID))
		return
	}
	ctx, ok := s.begin()
	if !ok {
		return
	}
	defer s.events.Done()
	s.sink.HandleEvent(ctx, s.feishuTransport.ToRawEvent(ctx, msg))
}

func (s *Server) handleFeishuMember(ev *feishu.MemberEvent) {
	ctx, ok := s.begin()
	if !ok {
		return
	}
	defer s.events.Done()
	s.sink.HandleParticipants(ctx, data.ToParticipantEvent(ev))
}

// handleGatewayEvent runs on the gateway read loop, so message batches are
// handed off to keep the socket drained
func (s *Server) handleGatewayEvent(event string, payload json.RawMessage) {
	switch event {
	case gateway.EventMessages:
		var batch gateway.MessagesEvent
		if err := json.Unmarshal(payload, &batch); err != nil {
			s.logger.Warn("decode messages event", zap.Error(err))
			return
		}
		events := s.gwTransport.ToRawEvents(&batch)
		if len(events) == 0 {
			return
		}
		ctx, ok := s.begin()
		if !ok {
			return
		}
		go func() {
			defer s.events.Done()
			s.sink.HandleBatch(ctx, events)
		}()
	case gateway.EventParticipants:
		var p gateway.ParticipantsEvent
		if err := json.Unmarshal(payload, &p); err != nil {
			s.logger.Warn("decode participants event", zap.Error(err))
			return
		}
		ctx, ok := s.begin()
		if !ok {
			return
		}
		go func() {
			defer s.events.Done()
			s.sink.HandleParticipants(ctx, data.ToGatewayParticipantEvent(&p))
		}()
	case gateway.EventConnection:
		var c gateway.ConnectionEvent
		if err := json.Unmarshal(payload, &c); err != nil {
			s.logger.Warn("decode connection event", zap.Error(err))
			return
		}
		s.sink.HandleConnection(data.GatewayAccount, domain.ConnectionState(c.State))
	default:
		s.logger.Debug("unhandled gateway event", zap.String("event", event))
	}
}
