package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	apimiddleware "github.com/storyforge/storyforge-api/internal/api/middleware"
	"github.com/storyforge/storyforge-api/internal/service"
	"github.com/storyforge/storyforge-api/internal/service/auth"
)

// NewRouter builds the full HTTP surface: public auth endpoints,
// JWT-protected task and credit endpoints, and the websocket endpoint
// (which authenticates in-protocol rather than via the middleware).
func NewRouter(
	accounts *service.AccountService,
	tasks *service.TaskService,
	jwtService auth.JWTService,
	wsHandler http.Handler,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(apimiddleware.Trace)

	authHandler := NewAuthHandler(accounts, jwtService)
	taskHandler := NewTaskHandler(tasks)
	creditHandler := NewCreditHandler(tasks)
	authMiddleware := apimiddleware.NewAuthMiddleware(jwtService)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)

			r.Post("/tasks", taskHandler.Create)
			r.Get("/tasks", taskHandler.ListActive)
			r.Get("/tasks/history", taskHandler.ListHistory)
			r.Get("/tasks/{id}", taskHandler.Get)
			r.Delete("/tasks/{id}", taskHandler.Cancel)

			r.Get("/credits/balance", creditHandler.Balance)
			r.Get("/credits/transactions", creditHandler.Transactions)
			r.Post("/credits/purchase", creditHandler.Purchase)
		})

		if wsHandler != nil {
			r.Handle("/ws", wsHandler)
		}
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return r
}
