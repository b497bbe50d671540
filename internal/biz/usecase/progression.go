package usecase

import (
	"context"
	"fmt"

	"github.com/devricklin/chatwarden/internal/biz/domain"
	"github.com/devricklin/chatwarden/internal/biz/repo"
)

// AwardResult is the outcome of a progression award
type AwardResult struct {
	Profile   *domain.Profile
	PrevLevel int
	LevelUp   bool
}

// ProgressionUsecase awards experience and tracks levels and titles
type ProgressionUsecase struct {
	profiles repo.ProfileRepo
	titles   []string
	locks    *KeyedMutex
}

// NewProgressionUsecase creates a progression usecase
func NewProgressionUsecase(profiles repo.ProfileRepo, titles []string, locks *KeyedMutex) *ProgressionUsecase {
	if locks == nil {
		locks = NewKeyedMutex()
	}
	return &ProgressionUsecase{
		profiles: profiles,
		titles:   titles,
		locks:    locks,
	}
}

// Profile returns the actor's profile, or a fresh level-1 profile when absent
func (uc *ProgressionUsecase) Profile(ctx context.Context, actorID string) (*domain.Profile, error) {
	id := domain.NormalizeID(actorID)
	p, err := uc.profiles.GetProfile(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	if p == nil {
		p = &domain.Profile{
			ActorID: id,
			Level:   1,
			Title:   domain.TitleForLevel(1, uc.titles),
		}
	}
	return p, nil
}

// Award adds points to the actor and recomputes level and title
func (uc *ProgressionUsecase) Award(ctx context.Context, actorID string, points int) (*AwardResult, error) {
	id := domain.NormalizeID(actorID)
	unlock := uc.locks.Lock("xp:" + id)
	defer unlock()

	cur, err := uc.Profile(ctx, id)
	if err != nil {
		return nil, err
	}
	prev := cur.Level
	if prev < 1 {
		prev = domain.LevelForXP(cur.XP)
	}

	xp := cur.XP + points
	if xp < 0 {
		xp = 0
	}
	level := domain.LevelForXP(xp)
	title := domain.TitleForLevel(level, uc.titles)

	updated, err := uc.profiles.UpsertProfile(ctx, id, domain.ProfilePatch{
		XP:    &xp,
		Level: &level,
		Title: &title,
	})
	if err != nil {
		return nil, fmt.Errorf("upsert profile: %w", err)
	}
	return &AwardResult{
		Profile:   updated,
		PrevLevel: prev,
		LevelUp:   level > prev,
	}, nil
}

// SetTalkative records the actor's opt-in for unsolicited replies
func (uc *ProgressionUsecase) SetTalkative(ctx context.Context, actorID string, on bool) error {
	id := domain.NormalizeID(actorID)
	unlock := uc.locks.Lock("xp:" + id)
	defer unlock()

	if _, err := uc.profiles.UpsertProfile(ctx, id, domain.ProfilePatch{Talkative: &on}); err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}
