package throttle

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	auth "github.com/goliatone/go-session-auth"
	"golang.org/x/time/rate"
)

type Config struct {
	// PerSecond is the sustained rate per client
	PerSecond float64
	Burst     int
	// TTL evicts idle client buckets
	TTL          time.Duration
	KeyGenerator func(*fiber.Ctx) string
	Now          func() time.Time
}

type bucket struct {
	lim *rate.Limiter
	ts  time.Time
}

// Limiter is a token bucket per client key
type Limiter struct {
	cfg       Config
	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

// NewLimiter creates a limiter, zero values fall back to 1 req/s burst 5
func NewLimiter(cfg Config) *Limiter {
	if cfg.PerSecond <= 0 {
		cfg.PerSecond = 1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 5
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.KeyGenerator == nil {
		cfg.KeyGenerator = func(c *fiber.Ctx) string {
			return c.IP()
		}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Limiter{
		cfg:     cfg,
		buckets: make(map[string]*bucket),
	}
}

// Allow reports whether key may proceed now
func (l *Limiter) Allow(key string) bool {
	if key == "" {
		key = "unknown"
	}

	now := l.cfg.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweep(now)

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rate.Limit(l.cfg.PerSecond), l.cfg.Burst)}
		l.buckets[key] = b
	}
	b.ts = now

	return b.lim.AllowN(now, 1)
}

// Handler rejects clients over their budget with ErrTooManyRequests
func (l *Limiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !l.Allow(l.cfg.KeyGenerator(c)) {
			return auth.ErrTooManyRequests
		}
		return c.Next()
	}
}

// New returns a throttling handler
func New(cfg Config) fiber.Handler {
	return NewLimiter(cfg).Handler()
}

func (l *Limiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < time.Minute {
		return
	}
	l.lastSweep = now
	for k, b := range l.buckets {
		if now.Sub(b.ts) > l.cfg.TTL {
			delete(l.buckets, k)
		}
	}
}
