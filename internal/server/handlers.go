package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"pointplay/internal/engine"
	"pointplay/internal/ledger"
)

func (s *FiberServer) healthHandler(c *fiber.Ctx) error {
	health := fiber.Map{
		"cache": s.cache.Health(),
		"feed":  s.feed.Status(),
		"hub": fiber.Map{
			"connected_clients": s.hub.ClientCount(),
		},
	}
	return c.JSON(health)
}

func parseVariant(c *fiber.Ctx) (engine.Variant, bool) {
	switch v := engine.Variant(c.Params("variant")); v {
	case engine.VariantDirection, engine.VariantCrash, engine.VariantSpin:
		return v, true
	default:
		return "", false
	}
}

// Round handlers

func (s *FiberServer) getRoundHandler(c *fiber.Ctx) error {
	variant, ok := parseVariant(c)
	if !ok {
		return c.Status(404).JSON(fiber.Map{"error": "Unknown variant"})
	}
	snap, err := s.orchestrator.Snapshot(variant)
	if err != nil {
		return c.Status(404).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(snap)
}

func (s *FiberServer) getLastRoundHandler(c *fiber.Ctx) error {
	variant, ok := parseVariant(c)
	if !ok {
		return c.Status(404).JSON(fiber.Map{"error": "Unknown variant"})
	}
	round, err := s.archive.LastRound(c.Context(), variant)
	if errors.Is(err, redis.Nil) {
		return c.Status(404).JSON(fiber.Map{"error": "No settled round for this variant"})
	}
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(round)
}

func (s *FiberServer) commitHandler(c *fiber.Ctx) error {
	variant, ok := parseVariant(c)
	if !ok {
		return c.Status(404).JSON(fiber.Map{"error": "Unknown variant"})
	}

	var params engine.CommitParams
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&params); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "Invalid request body"})
		}
	}

	snap, err := s.orchestrator.Commit(c.Context(), variant, params)
	if err != nil {
		return commitError(c, err)
	}
	return c.JSON(snap)
}

// commitError maps every rejection to its specific reason; a rejected
// commit never reports a generic failure.
func commitError(c *fiber.Ctx, err error) error {
	var cd *engine.CooldownActiveError
	switch {
	case errors.As(err, &cd):
		return c.Status(429).JSON(fiber.Map{
			"error":             "Cooldown active",
			"remaining":         engine.FormatRemaining(cd.Remaining),
			"remaining_seconds": int64(cd.Remaining.Seconds()),
		})
	case errors.Is(err, engine.ErrDuplicateRound):
		return c.Status(409).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, engine.ErrFeedUnavailable):
		return c.Status(503).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, engine.ErrInvalidDirection):
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, engine.ErrUnknownVariant):
		return c.Status(404).JSON(fiber.Map{"error": err.Error()})
	default:
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
}

func (s *FiberServer) cashOutHandler(c *fiber.Ctx) error {
	variant, ok := parseVariant(c)
	if !ok {
		return c.Status(404).JSON(fiber.Map{"error": "Unknown variant"})
	}
	snap, err := s.orchestrator.CashOut(c.Context(), variant)
	if err != nil {
		status := 400
		if errors.Is(err, engine.ErrNoActiveRound) {
			status = 409
		}
		return c.Status(status).JSON(fiber.Map{"error": err.Error(), "snapshot": snap})
	}
	return c.JSON(snap)
}

func (s *FiberServer) cancelHandler(c *fiber.Ctx) error {
	variant, ok := parseVariant(c)
	if !ok {
		return c.Status(404).JSON(fiber.Map{"error": "Unknown variant"})
	}
	if err := s.orchestrator.Cancel(c.Context(), variant); err != nil {
		return c.Status(409).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"message": "Round cancelled"})
}

// Balance handler

func (s *FiberServer) getBalanceHandler(c *fiber.Ctx) error {
	user, err := s.ledger.CurrentUser(c.Context())
	if err != nil {
		var lerr *ledger.Error
		if errors.As(err, &lerr) && lerr.StatusCode > 0 {
			return c.Status(lerr.StatusCode).JSON(fiber.Map{"error": lerr.Message})
		}
		return c.Status(502).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{
		"username": user.Username,
		"balance":  user.Points,
	})
}

// WebSocket handler

func (s *FiberServer) snapshotWebSocketHandler(conn *websocket.Conn) {
	userID := conn.Query("user_id", "anonymous")

	log.Printf("[WS] New connection from user: %s", userID)

	client := s.hub.RegisterClient(conn, userID)

	snaps := make([]engine.Snapshot, 0, 3)
	for _, v := range []engine.Variant{engine.VariantDirection, engine.VariantCrash, engine.VariantSpin} {
		if snap, err := s.orchestrator.Snapshot(v); err == nil {
			snaps = append(snaps, snap)
		}
	}
	client.SendSnapshots(snaps)

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			log.Printf("[WS] Read error for user %s: %v", userID, err)
			s.hub.UnregisterClient(conn)
			break
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var msg struct {
			Type      string           `json:"type"`
			Variant   engine.Variant   `json:"variant"`
			Stake     int64            `json:"stake"`
			Direction engine.Direction `json:"direction"`
		}
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case "commit":
			snap, err := s.orchestrator.Commit(context.Background(), msg.Variant, engine.CommitParams{
				Stake:     msg.Stake,
				Direction: msg.Direction,
			})
			writeWSResult(conn, snap, err)

		case "cashout":
			snap, err := s.orchestrator.CashOut(context.Background(), msg.Variant)
			writeWSResult(conn, snap, err)

		case "cancel":
			err := s.orchestrator.Cancel(context.Background(), msg.Variant)
			snap, _ := s.orchestrator.Snapshot(msg.Variant)
			writeWSResult(conn, snap, err)

		case "ping":
			pong, _ := json.Marshal(map[string]string{"type": "pong"})
			conn.WriteMessage(websocket.TextMessage, pong)
		}
	}
}

func writeWSResult(conn *websocket.Conn, snap engine.Snapshot, err error) {
	payload := fiber.Map{"snapshot": snap}
	if err != nil {
		payload["error"] = err.Error()
	}
	data, merr := json.Marshal(payload)
	if merr != nil {
		return
	}
	conn.WriteMessage(websocket.TextMessage, data)
}
