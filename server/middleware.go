package server

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/juju/ratelimit"

	"github.com/giygas/medicaments-search/handlers"
	"github.com/giygas/medicaments-search/metrics"
)

const (
	defaultFillRate     = 3    // tokens per second
	defaultCapacity     = 1000 // tokens
	bucketCleanupPeriod = 30 * time.Minute
)

// RateLimiter manages per-client token buckets
type RateLimiter struct {
	clients  map[string]*ratelimit.Bucket
	mu       sync.RWMutex
	rate     float64
	capacity int64
	stop     chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter creates a rate limiter whose buckets refill at rate tokens per
// second up to capacity
func NewRateLimiter(rate float64, capacity int64) *RateLimiter {
	return &RateLimiter{
		clients:  make(map[string]*ratelimit.Bucket),
		rate:     rate,
		capacity: capacity,
		stop:     make(chan struct{}),
	}
}

func (rl *RateLimiter) getBucket(clientIP string) *ratelimit.Bucket {
	rl.mu.RLock()
	bucket, exists := rl.clients[clientIP]
	rl.mu.RUnlock()

	if !exists {
		rl.mu.Lock()
		if bucket, exists = rl.clients[clientIP]; !exists {
			bucket = ratelimit.NewBucketWithRate(rl.rate, rl.capacity)
			rl.clients[clientIP] = bucket
			metrics.RateLimiterBucketsTotal.Set(float64(len(rl.clients)))
		}
		rl.mu.Unlock()
	}

	return bucket
}

// StartCleanup periodically forgets clients whose bucket is full again
func (rl *RateLimiter) StartCleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-rl.stop:
				return
			case <-ticker.C:
				rl.cleanup()
			}
		}
	}()
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for ip, bucket := range rl.clients {
		if bucket.Available() == bucket.Capacity() {
			delete(rl.clients, ip)
		}
	}
	metrics.RateLimiterBucketsTotal.Set(float64(len(rl.clients)))
}

// Stop ends the cleanup loop
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stop)
	})
}

// Len returns the number of tracked clients
func (rl *RateLimiter) Len() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return len(rl.clients)
}

// getTokenCost prices a request by how much host work it may trigger
func getTokenCost(r *http.Request) int64 {
	path := r.URL.Path

	switch {
	case path == "/metrics":
		return 0
	case path == "/health":
		return 5
	case path == "/stats":
		return 10
	case strings.HasPrefix(path, "/medications/"):
		return 10
	case path == "/search":
		return 50
	}

	return 5
}

// clientKey identifies a client by IP, without the port
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Middleware rejects requests once the client's bucket cannot pay their cost
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bucket := rl.getBucket(clientKey(r))
		tokenCost := getTokenCost(r)

		w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(rl.capacity, 10))
		w.Header().Set("X-RateLimit-Rate", strconv.FormatFloat(rl.rate, 'g', -1, 64))

		if bucket.TakeAvailable(tokenCost) < tokenCost {
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("Retry-After", "60")
			handlers.RespondWithError(w, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
			return
		}

		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(bucket.Available(), 10))

		next.ServeHTTP(w, r)
	})
}
