package main

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	envelopehandler "carebridge/internal/envelope/handler"
	jwttoken "carebridge/internal/jwt_token"
	"carebridge/internal/platform/middleware"
	dErrors "carebridge/pkg/domain-errors"
	"carebridge/pkg/platform/httputil"
)

// registrar is the common surface of the per-domain handlers.
type registrar interface {
	Register(chi.Router)
}

type routerDeps struct {
	logger    *slog.Logger
	jwt       *jwttoken.JWTService
	devAuth   bool
	health    func() map[string]string
	protected []registrar
	public    *envelopehandler.Public
}

// newRouter assembles the HTTP surface: request plumbing for everything, JWT
// auth for the staff API, and the token-gated signing surface without auth.
func newRouter(d routerDeps) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.Logger(d.logger))
	r.Use(middleware.Recovery(d.logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, d.health())
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(d.jwt, d.logger))
		for _, h := range d.protected {
			h.Register(r)
		}
	})

	d.public.Register(r)

	if d.devAuth {
		r.Post("/auth/dev-token", devTokenHandler(d.jwt))
	}
	return r
}

// devTokenRequest mints a staff token for local development. Never enabled
// in production; real deployments verify tokens issued by the identity
// platform.
type devTokenRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (r devTokenRequest) Validate() error {
	if r.Name == "" || r.Role == "" {
		return dErrors.New(dErrors.CodeValidation, "name and role are required")
	}
	return nil
}

func devTokenHandler(jwt *jwttoken.JWTService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := httputil.Decode[devTokenRequest](w, r)
		if !ok {
			return
		}
		token, err := jwt.GenerateAccessToken(req.Email, req.Name, req.Email, req.Role, 8*time.Hour)
		if err != nil {
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to mint token"))
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"access_token": token})
	}
}
