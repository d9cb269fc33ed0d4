package server

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

func (s *FiberServer) RegisterFiberRoutes() {
	s.App.Use(cors.New(cors.Config{
		AllowOrigins:     "*",
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH",
		AllowHeaders:     "Accept,Authorization,Content-Type",
		AllowCredentials: false, // credentials require explicit origins
		MaxAge:           300,
	}))

	s.App.Get("/health", s.healthHandler)

	api := s.App.Group("/api/v1")

	api.Get("/rounds/:variant", s.getRoundHandler)
	api.Get("/rounds/:variant/last", s.getLastRoundHandler)
	api.Post("/rounds/:variant/commit", s.commitHandler)
	api.Post("/rounds/:variant/cashout", s.cashOutHandler)
	api.Post("/rounds/:variant/cancel", s.cancelHandler)
	api.Get("/balance", s.getBalanceHandler)

	s.App.Get("/ws", websocket.New(s.snapshotWebSocketHandler))
}
