package delivery

import (
	"net/http"
	"time"

	"github.com/Vovarama1992/go-utils/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
)

const requestsPerMinute = 120

func RegisterRoutes(
	r chi.Router,
	hUsers *UserHandler,
	hSessions *SessionHandler,
	metrics http.Handler,
	apiToken string,
) {
	r.With(httputil.RecoverMiddleware).Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(200)
		w.Write([]byte("pong"))
	})

	// --- protected ---
	r.Group(func(pr chi.Router) {
		pr.Use(
			httputil.RecoverMiddleware,
			httprate.LimitByIP(requestsPerMinute, time.Minute),
			AuthMiddleware(apiToken),
		)

		pr.Method(http.MethodGet, "/metrics", metrics)

		// --- пользователи ---
		pr.Get("/users", hUsers.List)
		pr.Post("/users", hUsers.Create)
		pr.Delete("/users/{username}", hUsers.Delete)

		// --- сессии ---
		pr.Get("/sessions/{username}", hSessions.Get)
	})
}
