package policy

import (
	"context"

	"go.uber.org/zap"

	"github.com/voyagecrm/notify/internal/domain/preference"
)

// Gate answers whether a delivery channel is open for a user and
// category. It never returns an error: a preference-read failure falls
// back to the configured fail mode so alerts are not silently dropped
// by a flaky store.
type Gate struct {
	prefs    preference.Repo
	failOpen bool
	log      *zap.Logger
}

func NewGate(prefs preference.Repo, failOpen bool, log *zap.Logger) *Gate {
	return &Gate{
		prefs:    prefs,
		failOpen: failOpen,
		log:      log.With(zap.String("component", "policy.gate")),
	}
}

func (g *Gate) ShouldShowInApp(ctx context.Context, userID int64, cat preference.Category) bool {
	return g.allows(ctx, userID, preference.ChannelInApp, cat)
}

func (g *Gate) ShouldSendEmail(ctx context.Context, userID int64, cat preference.Category) bool {
	return g.allows(ctx, userID, preference.ChannelEmail, cat)
}

func (g *Gate) allows(ctx context.Context, userID int64, ch preference.Channel, cat preference.Category) bool {
	p, err := g.prefs.GetOrCreate(ctx, userID)
	if err != nil {
		g.log.Warn("preference read failed",
			zap.Int64("user_id", userID),
			zap.String("channel", string(ch)),
			zap.String("category", string(cat)),
			zap.Bool("fail_open", g.failOpen),
			zap.Error(err),
		)
		return g.failOpen
	}
	return p.Allows(ch, cat)
}
