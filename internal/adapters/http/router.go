package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func NewRouter(handler *Handler, verifier TokenVerifier) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { writeSuccess(w, http.StatusOK, "ok", nil) })
	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) { writeSuccess(w, http.StatusOK, "ready", nil) })
	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware(verifier))
			r.Post("/claims", handler.submitClaim)
			r.Get("/claims", handler.listClaims)
			r.Get("/claims/flagged", handler.listFlaggedClaims)
			r.Get("/claims/{claim_id}", handler.getClaim)
			r.Post("/claims/{claim_id}/override", handler.overrideClaim)
			r.Post("/redemptions/reserve", handler.reserveRedemption)
			r.Post("/redemptions/{reservation_id}/confirm", handler.confirmRedemption)
			r.Post("/redemptions/{reservation_id}/release", handler.releaseRedemption)
			r.Get("/players/{player_id}/balance", handler.getBalance)
		})
	})
	return r
}
