package data

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/devricklin/chatwarden/internal/biz/domain"
	"github.com/devricklin/chatwarden/internal/biz/repo"
	"github.com/devricklin/chatwarden/internal/conf"
)

// AccountRegistry maps account keys to their transports
type AccountRegistry struct {
	mu         sync.RWMutex
	transports map[string]repo.Transport
}

// NewAccountRegistry creates an empty registry
func NewAccountRegistry() *AccountRegistry {
	return &AccountRegistry{transports: make(map[string]repo.Transport)}
}

// Register adds or replaces the transport under its account key
func (r *AccountRegistry) Register(t repo.Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transports[t.Account()] = t
}

// Resolve returns the transport for account or domain.ErrUnknownAccount
func (r *AccountRegistry) Resolve(account string) (repo.Transport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transports[account]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownAccount, account)
	}
	return t, nil
}

// Accounts lists registered account keys in order
func (r *AccountRegistry) Accounts() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.transports))
	for k := range r.transports {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Repositories contains all repositories
type Repositories struct {
	Accounts  *AccountRegistry
	Profile   repo.ProfileRepo
	Generator repo.GeneratorRepo
	Notifier  repo.NotifierRepo
}

// NewRepositories creates the profile store, generator and notifier.
// Transports are registered on Accounts by the server once connected.
func NewRepositories(ctx context.Context, cfg *conf.Config, logger *zap.Logger) (*Repositories, error) {
	accounts := NewAccountRegistry()

	var (
		profiles repo.ProfileRepo
		err      error
	)
	switch cfg.Profile.Store {
	case "redis":
		profiles, err = NewRedisProfileRepo(ctx, cfg.Profile.RedisURL)
	default:
		profiles, err = NewSQLiteProfileRepo(cfg.Profile.DBPath)
	}
	if err != nil {
		return nil, err
	}

	var gen repo.GeneratorRepo
	switch {
	case cfg.AI.GeminiAPIKey != "":
		gen, err = NewGenAIRepo(ctx, cfg.AI.GeminiAPIKey, cfg.AI.GeminiModel)
		if err != nil {
			profiles.Close()
			return nil, err
		}
	case cfg.AI.OpenAIAPIKey != "":
		gen = NewOpenAIRepo(cfg.AI.OpenAIAPIKey, cfg.AI.OpenAIBaseURL, cfg.AI.OpenAIModel)
	default:
		logger.Warn("no generative backend configured, AI replies disabled")
	}

	return &Repositories{
		Accounts:  accounts,
		Profile:   profiles,
		Generator: gen,
		Notifier:  NewNotifierRepo(accounts, cfg.Bot.ModeratorAccount, cfg.Bot.ModeratorChatID, logger),
	}, nil
}

// Close releases the durable stores
func (r *Repositories) Close() error {
	if r.Profile != nil {
		return r.Profile.Close()
	}
	return nil
}
