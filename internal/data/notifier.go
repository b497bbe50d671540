package data

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/devricklin/chatwarden/internal/biz/repo"
)

// notifierRepo posts to the moderator conversation through the registry
type notifierRepo struct {
	accounts *AccountRegistry
	account  string
	chatID   string
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// NewNotifierRepo creates the moderator notifier. With no chat configured
// notifications are only logged.
func NewNotifierRepo(accounts *AccountRegistry, account, chatID string, logger *zap.Logger) repo.NotifierRepo {
	return &notifierRepo{
		accounts: accounts,
		account:  account,
		chatID:   chatID,
		// bursts of failures must not flood the moderators
		limiter: rate.NewLimiter(rate.Limit(0.5), 5),
		logger:  logger.Named("notifier"),
	}
}

// Notify sends text to the moderator chat, swallowing failures
func (n *notifierRepo) Notify(ctx context.Context, text string) {
	if n.chatID == "" {
		n.logger.Info("moderator notice", zap.String("text", text))
		return
	}
	if !n.limiter.Allow() {
		n.logger.Warn("moderator notice dropped, rate limited", zap.String("text", text))
		return
	}
	t, err := n.accounts.Resolve(n.account)
	if err != nil {
		n.logger.Warn("moderator notice undeliverable", zap.Error(err))
		return
	}
	if _, err := t.SendText(ctx, n.chatID, text, nil); err != nil {
		n.logger.Warn("moderator notice failed", zap.Error(err))
	}
}
