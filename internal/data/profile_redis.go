package data

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/devricklin/chatwarden/internal/biz/domain"
	"github.com/devricklin/chatwarden/internal/biz/repo"
)

const profilePrefix = "profile:"

// redisProfileRepo stores each profile as a hash under profile:<actor>
type redisProfileRepo struct {
	client *redis.Client
}

// NewRedisProfileRepo connects to redisURL and checks the connection
func NewRedisProfileRepo(ctx context.Context, redisURL string) (repo.ProfileRepo, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &redisProfileRepo{client: rdb}, nil
}

func profileKey(actorID string) string {
	return profilePrefix + actorID
}

// GetProfile reads the hash; an empty hash means no profile
func (r *redisProfileRepo) GetProfile(ctx context.Context, actorID string) (*domain.Profile, error) {
	id := domain.NormalizeID(actorID)
	fields, err := r.client.HGetAll(ctx, profileKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query profile: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	p := &domain.Profile{ActorID: id, Title: fields["title"]}
	p.XP, _ = strconv.Atoi(fields["xp"])
	p.Level, _ = strconv.Atoi(fields["level"])
	p.Talkative = fields["talkative"] == "1"
	p.UpdatedAt, _ = strconv.ParseInt(fields["updated_at"], 10, 64)
	if p.Level < 1 {
		p.Level = 1
	}
	return p, nil
}

// UpsertProfile applies the patch and writes the full hash.
// Callers serialize writes per actor.
func (r *redisProfileRepo) UpsertProfile(ctx context.Context, actorID string, patch domain.ProfilePatch) (*domain.Profile, error) {
	id := domain.NormalizeID(actorID)
	p, err := r.GetProfile(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		p = &domain.Profile{ActorID: id, Level: 1}
	}
	patch.Apply(p)
	p.UpdatedAt = time.Now().Unix()

	talkative := "0"
	if p.Talkative {
		talkative = "1"
	}
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, profileKey(id), map[string]interface{}{
		"xp":         p.XP,
		"level":      p.Level,
		"title":      p.Title,
		"talkative":  talkative,
		"updated_at": p.UpdatedAt,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to save profile: %w", err)
	}
	return p, nil
}

// Close closes the redis client
func (r *redisProfileRepo) Close() error {
	return r.client.Close()
}
