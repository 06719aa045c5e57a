package server

import (
	"encoding/json"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/morroware/FEC-STL-sub000/internal/middleware"
	"github.com/morroware/FEC-STL-sub000/internal/models"
)

// requireActivity hides the feed endpoint while the activity_feed flag is off.
func (s *Server) requireActivity(c *fiber.Ctx) error {
	if !s.activityEnabled() {
		return respondError(c, models.NewNotFoundError("Route", c.Path()))
	}
	return c.Next()
}

func websocketUpgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return models.RespondWithError(c, fiber.StatusUpgradeRequired,
			models.NewValidationError("WebSocket upgrade required"))
	}
	return c.Next()
}

// ActivityWebSocket handles GET /api/ws/activity. Viewers need no account;
// a token only ties the connection to a user for the per-user limit.
// @Summary Live activity feed
// @Description WebSocket stream of model_created, model_deleted and model_downloaded events
// @Tags activity
// @Router /ws/activity [get]
func (s *Server) ActivityWebSocket() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		userID, _ := conn.Locals(middleware.LocalUserID).(string)

		client, err := s.hub.Register(userID, conn)
		if err != nil {
			middleware.Logger.Warn("activity feed registration refused",
				slog.String("user_id", userID), slog.String("error", err.Error()))
			msg, _ := json.Marshal(fiber.Map{"success": false, "error": err.Error()})
			_ = conn.WriteMessage(websocket.TextMessage, msg)
			_ = conn.Close()
			return
		}
		client.Serve()
	})
}
