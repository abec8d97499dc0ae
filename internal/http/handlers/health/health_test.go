package health

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthHandler(t *testing.T) {
	up := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("dial tcp: connection refused") })
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("all dependencies up", func(t *testing.T) {
		w := httptest.NewRecorder()
		New(log, map[string]Pinger{"postgres": up, "redis": up}).
			ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"status":"OK","data":{"status":"ok","postgres":"up","redis":"up"}}`, w.Body.String())
	})

	t.Run("redis down", func(t *testing.T) {
		w := httptest.NewRecorder()
		New(log, map[string]Pinger{"postgres": up, "redis": down}).
			ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), `"redis":"down"`)
		assert.Contains(t, w.Body.String(), `"status":"degraded"`)
	})
}
