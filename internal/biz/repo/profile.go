package repo

import (
	"context"

	"github.com/devricklin/chatwarden/internal/biz/domain"
)

// ProfileRepo is the durable progression store
type ProfileRepo interface {
	// GetProfile returns nil, nil when the actor has no profile yet
	GetProfile(ctx context.Context, actorID string) (*domain.Profile, error)

	// UpsertProfile applies the patch, creating the profile if absent
	UpsertProfile(ctx context.Context, actorID string, patch domain.ProfilePatch) (*domain.Profile, error)

	// Close releases the underlying connection
	Close() error
}

// NotifierRepo delivers messages to the moderator channel
// Best-effort: implementations log and swallow failures
type NotifierRepo interface {
	Notify(ctx context.Context, text string)
}
