package api

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RateLimitMiddleware(1))
	router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	request := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	if code := request("10.0.0.1"); code != http.StatusOK {
		t.Errorf("expected first request to pass, got %d", code)
	}
	if code := request("10.0.0.1"); code != http.StatusTooManyRequests {
		t.Errorf("expected second request to be limited, got %d", code)
	}
	if code := request("10.0.0.2"); code != http.StatusOK {
		t.Errorf("expected other client to pass, got %d", code)
	}
}

func TestClientLimiter_PrunesIdleVisitors(t *testing.T) {
	l := newClientLimiter(1)
	start := time.Now()

	for i := 0; i < visitorPruneSize; i++ {
		l.allow(fmt.Sprintf("10.1.%d.%d", i/256, i%256), start)
	}
	if len(l.visitors) != visitorPruneSize {
		t.Fatalf("expected %d visitors, got %d", visitorPruneSize, len(l.visitors))
	}

	l.allow("10.9.9.9", start.Add(visitorTTL+time.Second))
	if len(l.visitors) != 1 {
		t.Errorf("expected idle visitors to be pruned, got %d", len(l.visitors))
	}
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	defer slog.SetDefault(prev)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestLogger())
	router.GET("/api/reports/:id", func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Report not found"})
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/reports/7", nil))

	out := buf.String()
	for _, want := range []string{"level=WARN", "path=/api/reports/:id", "status=404", "method=GET"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected log to contain %q, got %s", want, out)
		}
	}
}
