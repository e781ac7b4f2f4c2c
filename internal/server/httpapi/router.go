package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires public and bearer-protected routes. Everything under
// /api/vault and /api/files requires a token except keyinfo, which the
// client must reach before it can log in.
func NewRouter(h *Handler, jwtSecret []byte) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/api/ping", h.Ping)
	r.Post("/api/users/register", h.Register)
	r.Post("/api/users/login", h.Login)
	r.Get("/api/vault/keyinfo", h.KeyInfo)

	r.Group(func(r chi.Router) {
		r.Use(WithAuth(jwtSecret))

		r.Get("/api/vault", h.GetVault)
		r.Put("/api/vault", h.PutVault)
		r.Post("/api/vault/setup", h.SetupVault)

		r.Get("/api/files/upload-url", h.UploadURL)
		r.Get("/api/files/download-url", h.DownloadURL)
	})

	return r
}
