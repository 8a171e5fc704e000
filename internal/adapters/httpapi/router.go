package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type RouterOptions struct {
	// Metrics serves GET /metrics when set.
	Metrics http.Handler
	Logger  *zap.Logger
}

// NewRouter wires the BFF routes. Everything under /v1 is scoped to the
// device named by X-Device-ID.
func NewRouter(api *Server, opt RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if opt.Logger != nil {
		r.Use(NewLogMiddleware(opt.Logger))
	}
	r.Use(middleware.Recoverer)

	// Liveness for infra checks; no device needed.
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if opt.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opt.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(NewDeviceMiddleware())

		r.Get("/registration", api.GetRegistration)
		r.Delete("/registration", api.ResetRegistration)
		r.Put("/registration/fields/{field}", api.EditField)
		r.Post("/registration/fields/{field}/blur", api.BlurField)
		r.Post("/registration/submit", api.SubmitRegistration)
		r.Post("/registration/complete-profile", api.CompleteProfile)

		r.Get("/identifiers/{identifier}/availability", api.GetAvailability)

		r.Get("/session", api.GetSession)
		r.Post("/session", api.SignIn)
		r.Delete("/session", api.SignOut)
	})
	return r
}
