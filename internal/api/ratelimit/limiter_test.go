package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_Allow(t *testing.T) {
	l := New(2)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("1.2.3.4"))
	assert.True(t, l.Allow("1.2.3.4"))
	assert.False(t, l.Allow("1.2.3.4"))
	assert.True(t, l.Allow("5.6.7.8"))

	now = now.Add(DefaultWindow + time.Second)
	assert.True(t, l.Allow("1.2.3.4"))
}

func TestLimiter_Lockout(t *testing.T) {
	l := New(0)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	for i := 0; i < DefaultMaxFailures-1; i++ {
		l.RecordFailure("ip")
	}
	assert.False(t, l.IsLocked("ip"))

	l.RecordFailure("ip")
	assert.True(t, l.IsLocked("ip"))

	now = now.Add(DefaultLockoutDuration + time.Second)
	assert.False(t, l.IsLocked("ip"))

	// second lockout lasts twice as long
	for i := 0; i < DefaultMaxFailures; i++ {
		l.RecordFailure("ip")
	}
	now = now.Add(DefaultLockoutDuration + time.Second)
	assert.True(t, l.IsLocked("ip"))

	l.Reset("ip")
	assert.False(t, l.IsLocked("ip"))
}

func TestLimiter_Cleanup(t *testing.T) {
	l := New(1)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	l.Allow("a")
	l.RecordFailure("b")
	now = now.Add(time.Hour)
	l.Cleanup()

	assert.Empty(t, l.buckets)
	assert.Empty(t, l.lockouts)
}

func TestLimiter_Middleware(t *testing.T) {
	e := echo.New()
	l := New(1)
	e.POST("/x", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }, l.Middleware())

	do := func() int {
		req := httptest.NewRequest(http.MethodPost, "/x", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusNoContent, do())
	assert.Equal(t, http.StatusTooManyRequests, do())
}
