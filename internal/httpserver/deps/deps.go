package deps

import (
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/skymark/skymark/internal/auth"
	"github.com/skymark/skymark/internal/bookmarks"
	"github.com/skymark/skymark/internal/feed"
	"github.com/skymark/skymark/internal/logger"
	"github.com/skymark/skymark/internal/sources/pinned"
	"github.com/skymark/skymark/internal/xrpc"
)

type Deps struct {
	Logger    logger.Logger
	StartTime time.Time
	Version   string
	Commit    string
	BuildDate string
	GoVersion string
	TimeNow   func() time.Time // for testing, defaults to time.Now

	TrustProxy bool // true if running behind a trusted reverse proxy (e.g., cloudflared)

	RedisClient *redis.Client // Redis client connection
	Auth        *auth.Manager // session lifecycle
	Client      *xrpc.Client  // XRPC transport
	Repo        *bookmarks.Repository
	Assembler   *feed.Assembler
	FeedCache   *feed.MemoryCache
	Pinned      *pinned.Loader // nil when pinned feeds are disabled

	LoginRateLimit  int // login attempts per window per client IP
	LoginRateWindow time.Duration

	PinnedReloadTrigger chan struct{} // manual pinned feeds reload (nil if disabled)
	StartRefresher      func()        // (re)start the background session refresher after login
}

// Now returns the injected clock, falling back to time.Now.
func (d Deps) Now() time.Time {
	if d.TimeNow != nil {
		return d.TimeNow()
	}
	return time.Now()
}
