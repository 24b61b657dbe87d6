package handlers

import (
	"github.com/go-chi/chi"
	"github.com/go-chi/jwtauth"
)

func (h *Handler) SetRoutes(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {

		// public routes here
		r.Get("/health", h.HealthHandler)
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.Get("/stats", h.Stats)
		r.Get("/history", h.History)

		// Secure routes
		r.Group(func(r chi.Router) {
			r.Use(jwtauth.Verifier(h.tokenAuth))
			r.Use(jwtauth.Authenticator)

			r.Get("/me", h.Me)
			r.Post("/deposit", h.Deposit)

			r.Post("/crash/bet", h.CrashBet)
			r.Post("/crash/cashout", h.CrashCashOut)

			r.Post("/keno/select", h.KenoSelect)
			r.Post("/keno/quickpick", h.KenoQuickPick)
			r.Post("/keno/slips", h.KenoAddSlip)
			r.Delete("/keno/slips", h.KenoClear)
			r.Post("/keno/place", h.KenoPlace)

			r.Post("/slots/spin", h.SlotsSpin)
		})
	})
}
