package middlewarectx

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/render"
	"golang.org/x/time/rate"

	"github.com/junaidookay/mu-online-hub/internal/http/response"
)

// RateLimitMiddleware ограничивает частоту запросов отдельно для каждого пользователя.
// Запросы без пользователя в контексте делят общий лимитер.
func RateLimitMiddleware(log *slog.Logger, limit rate.Limit, burst int) func(http.Handler) http.Handler {
	var limiters sync.Map
	limiterFor := func(key string) *rate.Limiter {
		l, _ := limiters.LoadOrStore(key, rate.NewLimiter(limit, burst))
		return l.(*rate.Limiter)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, _ := UserIDFrom(r.Context())
			if !limiterFor(userID).Allow() {
				log.Warn("too many requests", slog.String("user_id", userID))
				render.Status(r, http.StatusTooManyRequests)
				render.JSON(w, r, response.Error("too many requests"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
