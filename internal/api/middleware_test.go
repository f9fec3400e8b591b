package api_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/civicpulse/discovery/internal/api"
)

func requestDeadline(t *testing.T, timeout time.Duration) (time.Time, bool) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(api.TimeoutMiddleware(timeout))

	var deadline time.Time
	var ok bool
	router.GET("/ping", func(c *gin.Context) {
		deadline, ok = c.Request.Context().Deadline()
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)
	return deadline, ok
}

func TestTimeoutMiddleware_BoundsRequestContext(t *testing.T) {
	deadline, ok := requestDeadline(t, time.Minute)
	if !ok {
		t.Fatal("handler context should carry the configured deadline")
	}
	if until := time.Until(deadline); until <= 0 || until > time.Minute {
		t.Errorf("deadline %v away, want within the configured minute", until)
	}
}

func TestTimeoutMiddleware_DisabledWhenNonPositive(t *testing.T) {
	if _, ok := requestDeadline(t, 0); ok {
		t.Error("a non-positive timeout should leave the context unbounded")
	}
}
