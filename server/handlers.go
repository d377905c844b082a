package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/K3das/qin-bridge/asr"
	"github.com/K3das/qin-bridge/feedback"
	"github.com/K3das/qin-bridge/menu"
	"github.com/gofiber/fiber/v2"
	"github.com/tidwall/gjson"
)

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"service": ServiceName,
	})
}

func (s *Server) handleMenu(c *fiber.Ctx) error {
	return c.JSON(s.bridge.Menu())
}

func (s *Server) handleAction(c *fiber.Ctx) error {
	var req menu.ActionRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid JSON"})
	}

	exchange, err := s.bridge.Action(c.UserContext(), req)
	if errors.Is(err, menu.ErrUnknownAction) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	} else if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"response": exchange.Normalized})
}

func (s *Server) handleAudio(c *fiber.Ctx) error {
	audio := c.Body()
	if len(audio) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "No audio data"})
	}

	if strings.EqualFold(c.Get("X-Transcribe-Only"), "true") {
		transcript, err := s.bridge.Transcribe(c.UserContext(), audio)
		if err != nil {
			return transcriptionError(c, err)
		}
		return c.JSON(fiber.Map{"transcript": transcript.Text})
	}

	result, err := s.bridge.Audio(c.UserContext(), audio)
	if err != nil {
		return transcriptionError(c, err)
	}

	return c.JSON(fiber.Map{
		"transcript": result.Transcript.Text,
		"response":   result.Exchange.Normalized,
	})
}

func transcriptionError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, asr.ErrNoAudio):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "No audio data"})
	case errors.Is(err, asr.ErrAudioTooLarge):
		return fiber.NewError(fiber.StatusRequestEntityTooLarge, err.Error())
	default:
		return err
	}
}

// chatText accepts {"text": "..."} or the raw body. A JSON body without a
// text field is taken verbatim.
func chatText(body []byte) string {
	if gjson.ValidBytes(body) {
		if text := gjson.GetBytes(body, "text"); text.Exists() {
			return strings.TrimSpace(text.String())
		}
	}
	return strings.TrimSpace(string(body))
}

func (s *Server) handleChat(c *fiber.Ctx) error {
	text := chatText(c.Body())
	if text == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "No text provided"})
	}

	exchange := s.bridge.Chat(c.UserContext(), text)

	return c.JSON(fiber.Map{"response": exchange.Normalized})
}

func (s *Server) handleFeedback(c *fiber.Ctx) error {
	e := feedback.NewEvent(c.Query("action"), feedback.SourcePanel)

	s.feedback.Handle(c.UserContext(), e)

	return c.JSON(fiber.Map{
		"status": "ok",
		"action": e.Action,
	})
}

const (
	defaultRecentFeedback = 20
	maxRecentFeedback     = 100
)

func (s *Server) handleRecentFeedback(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultRecentFeedback)
	if limit <= 0 {
		limit = defaultRecentFeedback
	} else if limit > maxRecentFeedback {
		limit = maxRecentFeedback
	}

	events, err := s.history.Recent(c.UserContext(), limit)
	if err != nil {
		return fmt.Errorf("listing feedback: %w", err)
	}

	return c.JSON(fiber.Map{"feedback": events})
}
