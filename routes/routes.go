package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/cognito-gateway/app"
	"github.com/upb/cognito-gateway/middleware"
	"github.com/upb/cognito-gateway/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(deps.Config.Server.RequestTimeout))
	r.Use(middleware.AuditContext)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		_ = utils.WriteError(w, http.StatusNotFound, "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		_ = utils.WriteError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
	})

	// Health check endpoints
	r.Get("/healthz", deps.HealthHandler.HandleHealth)
	r.Get("/readyz", deps.HealthHandler.HandleReadiness)

	identity := deps.IdentityHandler

	r.Post("/signup", identity.HandleSignUp)
	r.Post("/confirm", identity.HandleConfirmSignUp)
	r.Post("/signin", identity.HandleSignIn)
	r.Post("/signin-mobile", identity.HandleSignInMobile)
	r.Post("/otp", identity.HandleRespondToOTP)
	r.Post("/verify", identity.HandleVerify)
	r.Post("/user", identity.HandleGetUser)
	r.Post("/admin/signin", identity.HandleAdminSignIn)

	r.Group(func(r chi.Router) {
		r.Use(deps.AuthMiddleware.RequireAuth)
		r.Get("/me", identity.HandleMe)
		r.With(deps.AuthMiddleware.RequireGroup(deps.Config.Cognito.AdminGroup)).
			Get("/admin/me", identity.HandleMe)
	})

	return r
}
