package biz

import (
	"fmt"

	"github.com/devricklin/chatwarden/internal/biz/repo"
	"github.com/devricklin/chatwarden/internal/biz/usecase"
	"github.com/devricklin/chatwarden/internal/conf"
)

// Usecases contains all usecases
type Usecases struct {
	Normalizer  *usecase.Normalizer
	Limiter     *usecase.RateLimiter
	Abuse       *usecase.AbuseDetector
	Vault       *usecase.MediaVault
	Mutes       *usecase.MuteLedger
	Policies    *usecase.PolicyStore
	Registry    *usecase.CommandRegistry
	Transcript  *usecase.Transcript
	Progression *usecase.ProgressionUsecase
	Responder   *usecase.Responder // nil without a generator
	Locks       *usecase.KeyedMutex
}

// NewUsecases builds the state managers from configuration.
// gen may be nil, in which case generative replies are disabled.
func NewUsecases(cfg *conf.Config, profiles repo.ProfileRepo, gen repo.GeneratorRepo) (*Usecases, error) {
	abuse, err := usecase.NewAbuseDetector(cfg.ToAbuseConfig())
	if err != nil {
		return nil, fmt.Errorf("abuse detector: %w", err)
	}

	locks := usecase.NewKeyedMutex()
	uc := &Usecases{
		Normalizer:  usecase.NewNormalizer(),
		Limiter:     usecase.NewRateLimiter(cfg.Limits.Cooldown),
		Abuse:       abuse,
		Vault:       usecase.NewMediaVault(cfg.Limits.VaultExpiration),
		Mutes:       usecase.NewMuteLedger(),
		Policies:    usecase.NewPolicyStore(),
		Registry:    usecase.NewCommandRegistry(cfg.Bot.CommandPrefix),
		Transcript:  usecase.NewTranscript(cfg.Limits.TranscriptLength),
		Progression: usecase.NewProgressionUsecase(profiles, cfg.Policy.Titles, locks),
		Locks:       locks,
	}

	if gen != nil {
		cache := usecase.NewResponseCache(cfg.Limits.CacheCapacity, cfg.Limits.CacheTTL)
		uc.Responder, err = usecase.NewResponder(gen, usecase.NewPromptBuilder(cfg.ToPromptConfig()), cache, cfg.ToResponderConfig())
		if err != nil {
			return nil, fmt.Errorf("responder: %w", err)
		}
	}
	return uc, nil
}
