package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_Allow(t *testing.T) {
	t.Run("admits up to the limit then blocks", func(t *testing.T) {
		limiter := NewRateLimiter(3, time.Minute)

		for i := 0; i < 3; i++ {
			assert.True(t, limiter.Allow("team:team-1"), "request %d should pass", i+1)
		}
		assert.False(t, limiter.Allow("team:team-1"))
	})

	t.Run("keys are isolated", func(t *testing.T) {
		limiter := NewRateLimiter(1, time.Minute)

		assert.True(t, limiter.Allow("team:team-1"))
		assert.False(t, limiter.Allow("team:team-1"))
		assert.True(t, limiter.Allow("user:user-7"))
	})

	t.Run("window reset restores tokens", func(t *testing.T) {
		limiter := NewRateLimiter(1, 40*time.Millisecond)

		assert.True(t, limiter.Allow("team:team-1"))
		assert.False(t, limiter.Allow("team:team-1"))

		time.Sleep(50 * time.Millisecond)
		assert.True(t, limiter.Allow("team:team-1"))
	})
}

func TestRateLimiter_Remaining(t *testing.T) {
	limiter := NewRateLimiter(5, time.Minute)

	assert.Equal(t, 5, limiter.Remaining("team:team-1"))
	limiter.Allow("team:team-1")
	limiter.Allow("team:team-1")
	assert.Equal(t, 3, limiter.Remaining("team:team-1"))
}

func rateLimitRouter(handler gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(handler)
	router.GET("/quota", func(c *gin.Context) { c.Status(http.StatusOK) })
	return router
}

func TestRateLimit_BlocksWithTooManyRequests(t *testing.T) {
	router := rateLimitRouter(RateLimit(NewRateLimiter(2, time.Minute)))

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/quota", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/quota", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "RATE_LIMIT_EXCEEDED")
}

func TestRateLimit_SetsHeaders(t *testing.T) {
	router := rateLimitRouter(RateLimit(NewRateLimiter(10, time.Minute)))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/quota", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "10", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "9", w.Header().Get("X-RateLimit-Remaining"))
}

func TestRateLimit_UsesSubjectIdentityInKey(t *testing.T) {
	// Two subjects behind the same client IP get independent budgets
	router := rateLimitRouter(RateLimit(NewRateLimiter(1, time.Minute)))

	request := func(subjectID string) int {
		req := httptest.NewRequest(http.MethodGet, "/quota", nil)
		req.Header.Set(SubjectTypeHeader, "team")
		req.Header.Set(SubjectIDHeader, subjectID)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, request("team-1"))
	assert.Equal(t, http.StatusTooManyRequests, request("team-1"))
	assert.Equal(t, http.StatusOK, request("team-2"))
}

func TestRateLimitByKey_CustomExtractor(t *testing.T) {
	limiter := NewRateLimiter(1, time.Minute)
	router := rateLimitRouter(RateLimitByKey(limiter, func(c *gin.Context) string {
		return c.GetHeader("X-API-Key")
	}))

	request := func(apiKey string) int {
		req := httptest.NewRequest(http.MethodGet, "/quota", nil)
		req.Header.Set("X-API-Key", apiKey)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, request("key-a"))
	assert.Equal(t, http.StatusTooManyRequests, request("key-a"))
	assert.Equal(t, http.StatusOK, request("key-b"))
}
