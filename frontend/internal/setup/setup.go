package setup

import (
	"context"
	"time"

	"github.com/babbling-brook/streambed/frontend/internal/apiclient"
	"github.com/babbling-brook/streambed/frontend/internal/compose"
	"github.com/babbling-brook/streambed/frontend/internal/handler"
	"github.com/babbling-brook/streambed/frontend/internal/markdown"
	"github.com/babbling-brook/streambed/frontend/internal/post"
	"github.com/babbling-brook/streambed/frontend/internal/push"
	"github.com/babbling-brook/streambed/frontend/internal/view"
	"github.com/babbling-brook/streambed/shared/config"
	"github.com/babbling-brook/streambed/shared/jwt"
	"github.com/babbling-brook/streambed/shared/logger"
	mw "github.com/babbling-brook/streambed/shared/middleware"
)

const (
	sweepInterval      = time.Minute
	rateLimiterIdleTTL = time.Hour
)

type Dependencies struct {
	Handler     *handler.Handler
	Hub         *push.Hub
	Sessions    *view.Manager
	Auth        *mw.Auth
	RateLimiter *mw.UserRateLimiter
	Public      config.Public
	CancelFunc  context.CancelFunc
}

// SetupDependencies builds the service graph and starts its background sweepers.
// CancelFunc stops them.
func SetupDependencies(cfg *config.Config) *Dependencies {
	ctx, cancel := context.WithCancel(context.Background())
	public := cfg.Public

	client := apiclient.New(public.Domus.BaseURL, public.Domus.Timeout, public.Domus.RatePerSecond, public.Domus.Burst)
	streams := post.NewStreamCache(client)
	hub := push.NewHub(public.HTTP.AllowedOrigins)

	sessions := view.NewManager(view.Deps{
		Config:    public,
		Domus:     client,
		Renderer:  post.NewRenderer(client, streams, markdown.New(), public.Render),
		Taker:     post.NewTaker(client, streams),
		Composer:  compose.NewService(streams, client),
		Publisher: hub,
	}, public.HTTP.SessionTTL)
	go sessions.Run(ctx, sweepInterval)

	limiter := mw.NewUserRateLimiter(public.HTTP.RateLimit, public.HTTP.RateBurst, rateLimiterIdleTTL)
	go sweepLimiter(ctx, limiter)

	// the view service only reads identities, the token ttl is never used
	jwtSvc := jwt.New(cfg.JwtKey(), 0)

	logger.Log.Info("dependencies ready", "domus", public.Domus.BaseURL, "session_ttl", public.HTTP.SessionTTL)
	return &Dependencies{
		Handler:     handler.New(sessions, public),
		Hub:         hub,
		Sessions:    sessions,
		Auth:        mw.NewAuth(jwtSvc),
		RateLimiter: limiter,
		Public:      public,
		CancelFunc:  cancel,
	}
}

func sweepLimiter(ctx context.Context, limiter *mw.UserRateLimiter) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := limiter.Sweep(); n > 0 {
				logger.Log.Debug("rate limiter entries expired", "count", n)
			}
		}
	}
}
