package api

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"time"

	"github.com/Narasimha1997/ratelimiter"
	"github.com/gin-gonic/gin"

	"github.com/chapsmart/chappay/pkg/cache"
)

// idempotencyTTL bounds how long a key replays its cached response.
const idempotencyTTL = 24 * time.Hour

// idempotencyMaxKeys bounds the store; the least recently used key is
// evicted first.
const idempotencyMaxKeys = 4096

type cachedResponse struct {
	BodyHash   string
	StatusCode int
	Body       []byte
}

// IdempotencyStore caches responses by Idempotency-Key so a retried
// submission replays instead of opening a second payment session.
type IdempotencyStore struct {
	cache cache.Cache[string, cachedResponse]
}

func NewIdempotencyStore(maxKeys int) *IdempotencyStore {
	return &IdempotencyStore{
		cache: cache.NewLRUCache[string, cachedResponse](maxKeys, "idempotency_keys"),
	}
}

type bodyRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (r *bodyRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

// Idempotency rejects requests without an Idempotency-Key, replays the
// cached response for a reused key with an identical body, and answers 409
// when the same key arrives with a different payload.
func Idempotency(store *IdempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("Idempotency-Key")
		if key == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing Idempotency-Key header"})
			return
		}

		rawBody, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to read request body"})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewBuffer(rawBody))
		sum := sha256.Sum256(rawBody)
		bodyHash := hex.EncodeToString(sum[:])

		if cached, ok := store.cache.Get(key); ok {
			if cached.BodyHash != bodyHash {
				c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "Idempotency-Key reused with a different payload"})
				return
			}
			c.Header("Idempotent-Replay", "true")
			c.Data(cached.StatusCode, "application/json", cached.Body)
			c.Abort()
			return
		}

		recorder := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = recorder
		c.Next()

		// Server-side failures are transient; caching them would make a
		// retry with the same key fail for the rest of the TTL.
		if recorder.Status() >= http.StatusInternalServerError {
			return
		}
		store.cache.Set(key, cachedResponse{
			BodyHash:   bodyHash,
			StatusCode: recorder.Status(),
			Body:       append([]byte(nil), recorder.body.Bytes()...),
		}, cache.WithExpiration(idempotencyTTL))
	}
}

// RateLimit throttles per client IP.
func RateLimit(limit uint64, window time.Duration) gin.HandlerFunc {
	limiter := ratelimiter.NewAttributeBasedLimiter(false)
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !limiter.HasKey(ip) {
			limiter.CreateNewKey(ip, limit, window)
		}
		allowed, err := limiter.ShouldAllow(ip, 1)
		if err != nil || !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
