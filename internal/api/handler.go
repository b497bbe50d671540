package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/devricklin/chatwarden/internal/biz/domain"
	"github.com/devricklin/chatwarden/internal/biz/usecase"
)

// Deps are the state managers the admin API reads and mutates
type Deps struct {
	Policies    *usecase.PolicyStore
	Mutes       *usecase.MuteLedger
	Abuse       *usecase.AbuseDetector
	Progression *usecase.ProgressionUsecase
}

// Server provides the moderator HTTP API used by warden-mcp and operators
type Server struct {
	deps   Deps
	logger *zap.Logger
	now    func() time.Time

	server *http.Server
	port   int
}

// PolicyPatch is a partial group policy update; nil fields are left as is
type PolicyPatch struct {
	AIEnabled             *bool `json:"ai_enabled"`
	WelcomeEnabled        *bool `json:"welcome_enabled"`
	GoodbyeEnabled        *bool `json:"goodbye_enabled"`
	SpamFilterEnabled     *bool `json:"spam_filter_enabled"`
	LinkProtectionEnabled *bool `json:"link_protection_enabled"`
}

// Mute is one active mute
type Mute struct {
	ActorID string    `json:"actor_id"`
	Until   time.Time `json:"until"`
}

// MuteRequest is the body of POST /api/mutes
type MuteRequest struct {
	ActorID string `json:"actor_id"`
	Minutes int    `json:"minutes"`
}

// Warnings is the warning ledger entry of one actor
type Warnings struct {
	ActorID string `json:"actor_id"`
	Count   int    `json:"count"`
	Max     int    `json:"max"`
}

// NewServer creates a new API server
func NewServer(deps Deps, port int, logger *zap.Logger) *Server {
	s := &Server{
		deps:   deps,
		logger: logger.Named("api"),
		now:    time.Now,
		port:   port,
	}
	s.server = &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the API routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Group policy
	mux.HandleFunc("/api/policy/", s.handlePolicy)

	// Mute ledger
	mux.HandleFunc("/api/mutes", s.handleMutes)
	mux.HandleFunc("/api/mutes/", s.handleMuteItem)

	// Warning ledger
	mux.HandleFunc("/api/warnings/", s.handleWarnings)

	// Profiles
	mux.HandleFunc("/api/profile/", s.handleProfile)

	mux.Handle("/metrics", promhttp.Handler())

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return mux
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.Int("port", s.port))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// GetPort returns the server port
func (s *Server) GetPort() int {
	return s.port
}

// ============ Policy Handlers ============

func (s *Server) handlePolicy(w http.ResponseWriter, r *http.Request) {
	chatID := strings.TrimPrefix(r.URL.Path, "/api/policy/")
	if chatID == "" {
		http.Error(w, "chat id is required", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, s.deps.Policies.Get(chatID))

	case http.MethodPost:
		var patch PolicyPatch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		updated := s.deps.Policies.Update(chatID, patch.apply)
		s.logger.Info("policy updated", zap.String("chat", chatID), zap.Any("policy", updated))
		s.writeJSON(w, updated)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (p PolicyPatch) apply(gp *domain.GroupPolicy) {
	set := func(dst *bool, v *bool) {
		if v != nil {
			*dst = *v
		}
	}
	set(&gp.AIEnabled, p.AIEnabled)
	set(&gp.WelcomeEnabled, p.WelcomeEnabled)
	set(&gp.GoodbyeEnabled, p.GoodbyeEnabled)
	set(&gp.SpamFilterEnabled, p.SpamFilterEnabled)
	set(&gp.LinkProtectionEnabled, p.LinkProtectionEnabled)
}

// ============ Mute Handlers ============

func (s *Server) handleMutes(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		active := s.deps.Mutes.Active(s.now())
		mutes := make([]Mute, 0, len(active))
		for id, until := range active {
			mutes = append(mutes, Mute{ActorID: id, Until: until})
		}
		sort.Slice(mutes, func(i, j int) bool { return mutes[i].ActorID < mutes[j].ActorID })
		s.writeJSON(w, map[string]interface{}{"mutes": mutes})

	case http.MethodPost:
		var req MuteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		id := domain.NormalizeID(req.ActorID)
		if id == "" {
			http.Error(w, "actor_id is required", http.StatusBadRequest)
			return
		}
		if req.Minutes <= 0 {
			http.Error(w, "minutes must be positive", http.StatusBadRequest)
			return
		}
		until := s.now().Add(time.Duration(req.Minutes) * time.Minute)
		s.deps.Mutes.Mute(id, until)
		s.logger.Info("actor muted", zap.String("actor", id), zap.Time("until", until))
		s.writeJSON(w, Mute{ActorID: id, Until: until})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleMuteItem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := domain.NormalizeID(strings.TrimPrefix(r.URL.Path, "/api/mutes/"))
	if id == "" {
		http.Error(w, "actor id is required", http.StatusBadRequest)
		return
	}
	if !s.deps.Mutes.Unmute(id) {
		http.Error(w, "actor is not muted", http.StatusNotFound)
		return
	}
	s.logger.Info("actor unmuted", zap.String("actor", id))
	s.writeJSON(w, map[string]interface{}{"success": true})
}

// ============ Warning Handlers ============

func (s *Server) handleWarnings(w http.ResponseWriter, r *http.Request) {
	id := domain.NormalizeID(strings.TrimPrefix(r.URL.Path, "/api/warnings/"))
	if id == "" {
		http.Error(w, "actor id is required", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, Warnings{ActorID: id, Count: s.deps.Abuse.Warnings(id), Max: s.deps.Abuse.MaxWarnings()})

	case http.MethodDelete:
		s.deps.Abuse.ResetWarnings(id)
		s.logger.Info("warnings reset", zap.String("actor", id))
		s.writeJSON(w, map[string]interface{}{"success": true})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// ============ Profile Handlers ============

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.deps.Progression == nil {
		http.Error(w, "profile store not initialized", http.StatusServiceUnavailable)
		return
	}

	id := domain.NormalizeID(strings.TrimPrefix(r.URL.Path, "/api/profile/"))
	if id == "" {
		http.Error(w, "actor id is required", http.StatusBadRequest)
		return
	}

	profile, err := s.deps.Progression.Profile(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, profile)
}

// ============ Helpers ============

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.logger.Warn("request failed", zap.Error(err))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
