package claims_http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"go.uber.org/zap"
)

func RegisterRoutes(r chi.Router, s ClaimService, l *zap.Logger) {
	handler := NewClaimHandler(s, l.With(zap.String("component", "ClaimHTTPHandler")))

	r.Route("/health", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("Claims service is healthy!"))
		})
	})

	r.Route("/v1/claims", func(r chi.Router) {
		r.Post("/", handler.CreateClaimHandler)
	})
}
