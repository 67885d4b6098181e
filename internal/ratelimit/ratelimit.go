package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/keithlinneman/linnemanlabs-book/internal/httpmw"
)

const (
	DefaultPerSecond   = 10
	DefaultBurst       = 30
	DefaultTTL         = 5 * time.Minute
	DefaultMaxVisitors = 100000
	DefaultRetryAfter  = 30 * time.Second
)

// Options configures a Limiter. Zero values take the defaults above.
type Options struct {
	PerSecond float64
	Burst     int

	// TTL is how long an idle address keeps its bucket.
	TTL time.Duration

	// MaxVisitors caps tracked addresses. Negative disables the cap.
	MaxVisitors int

	RetryAfter time.Duration

	// Exempt requests bypass the limiter entirely (health probes, static assets).
	Exempt func(*http.Request) bool

	// OnDenied runs for every rejected request. first is true the first
	// time an address is rejected since its bucket was created.
	OnDenied func(ip string, first bool)

	// OnCapacity runs once when the visitor table fills, and again only
	// after a sweep frees room.
	OnCapacity func()

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

type bucket struct {
	lim      *rate.Limiter
	seen     time.Time
	reported bool
}

// Limiter holds a token bucket per client address.
type Limiter struct {
	opts Options

	mu      sync.Mutex
	buckets map[string]*bucket
	full    bool
}

// New returns a Limiter without starting its sweeper; call Run for that.
func New(opts Options) *Limiter {
	if opts.PerSecond <= 0 {
		opts.PerSecond = DefaultPerSecond
	}
	if opts.Burst < 1 {
		opts.Burst = DefaultBurst
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.MaxVisitors == 0 {
		opts.MaxVisitors = DefaultMaxVisitors
	}
	if opts.RetryAfter <= 0 {
		opts.RetryAfter = DefaultRetryAfter
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Limiter{opts: opts, buckets: make(map[string]*bucket)}
}

// Allow spends one token from ip's bucket.
func (l *Limiter) Allow(ip string) bool {
	now := l.opts.Now()

	l.mu.Lock()
	b, ok := l.buckets[ip]
	if !ok {
		if l.opts.MaxVisitors > 0 && len(l.buckets) >= l.opts.MaxVisitors {
			announce := !l.full
			l.full = true
			l.mu.Unlock()
			if announce && l.opts.OnCapacity != nil {
				l.opts.OnCapacity()
			}
			l.denied(ip, false)
			return false
		}
		b = &bucket{lim: rate.NewLimiter(rate.Limit(l.opts.PerSecond), l.opts.Burst)}
		l.buckets[ip] = b
	}
	b.seen = now
	ok = b.lim.AllowN(now, 1)
	first := !ok && !b.reported
	if first {
		b.reported = true
	}
	l.mu.Unlock()

	// hooks run unlocked, they may log
	if !ok {
		l.denied(ip, first)
	}
	return ok
}

func (l *Limiter) denied(ip string, first bool) {
	if l.opts.OnDenied != nil {
		l.opts.OnDenied(ip, first)
	}
}

// Len reports how many addresses currently hold a bucket.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Sweep drops buckets idle for longer than the TTL and returns how many
// were removed.
func (l *Limiter) Sweep() int {
	now := l.opts.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for ip, b := range l.buckets {
		if now.Sub(b.seen) > l.opts.TTL {
			delete(l.buckets, ip)
			n++
		}
	}
	if l.opts.MaxVisitors <= 0 || len(l.buckets) < l.opts.MaxVisitors {
		l.full = false
	}
	return n
}

// Run sweeps every half TTL until ctx is done.
func (l *Limiter) Run(ctx context.Context) error {
	t := time.NewTicker(l.opts.TTL / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			l.Sweep()
		}
	}
}

// Middleware answers 429 once the client's bucket is empty. The client
// address comes from httpmw.ClientIPWithOptions.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	retry := strconv.Itoa(int(l.opts.RetryAfter / time.Second))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.opts.Exempt != nil && l.opts.Exempt(r) {
			next.ServeHTTP(w, r)
			return
		}
		if !l.Allow(httpmw.ClientIPFromContext(r.Context())) {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.Header().Set("Retry-After", retry)
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"too many requests"}` + "\n"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
