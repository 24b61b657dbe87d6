package routes

import (
	"github.com/avvvet/casino-services/internal/socketsvc/handlers"
	"github.com/avvvet/casino-services/internal/socketsvc/ws"
	"github.com/go-chi/chi"
)

func SetRoutes(r chi.Router, ws *ws.Ws, port string) {
	h := handlers.NewHandler(ws, port)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/health", h.HealthHandler)
		// auth happens on the init message, browsers cannot set headers on upgrade
		r.Get("/ws", h.HandleWebSocket)
	})
}
