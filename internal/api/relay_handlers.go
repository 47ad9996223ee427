package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/pbaille/studylog/internal/relay"
)

// noReply stands in for an empty vision answer
const noReply = "No response."

// ChatStreamRequest is the request body for POST /api/chat-stream
type ChatStreamRequest struct {
	Messages []relay.Message `json:"messages"`
}

// ChatVisionRequest is the request body for POST /api/chat-vision
type ChatVisionRequest struct {
	Messages []relay.Message `json:"messages"`
	Model    string          `json:"model,omitempty"`
}

// ChatVisionResponse is the response body for POST /api/chat-vision
type ChatVisionResponse struct {
	Reply string `json:"reply"`
}

// handleChatStream relays messages and streams the answer back as plain text
func (s *Server) handleChatStream(c echo.Context) error {
	if err := s.requireRelay(); err != nil {
		return err
	}

	var req ChatStreamRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}
	if len(req.Messages) == 0 {
		return badRequest("messages must be a non-empty array")
	}

	// image parts need the vision model; text uses the client default
	model := ""
	if relay.HasImage(req.Messages) {
		model = s.config.VisionModel
	}

	ctx := c.Request().Context()
	stream, err := s.relay.Stream(ctx, req.Messages, model)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, relay.UserMessage(err))
	}
	defer stream.Close()

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/plain; charset=utf-8")
	res.Header().Set("Cache-Control", "no-cache")
	res.WriteHeader(http.StatusOK)

	for {
		frag, err := stream.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			// the status line is gone; end the body early
			s.logger.Warn("chat stream interrupted", zap.Error(err))
			return nil
		}
		if _, err := io.WriteString(res, frag); err != nil {
			return nil
		}
		res.Flush()
	}
}

// handleChatVision relays messages in one batch call
func (s *Server) handleChatVision(c echo.Context) error {
	if err := s.requireRelay(); err != nil {
		return err
	}

	var req ChatVisionRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}
	if len(req.Messages) == 0 {
		return badRequest("messages must be a non-empty array")
	}

	model := req.Model
	if model == "" {
		model = s.config.VisionModel
	}

	reply, err := s.relay.Complete(c.Request().Context(), req.Messages, relay.CompleteOptions{Model: model})
	if err != nil {
		s.logger.Warn("vision request failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, ErrorResponse{
			Error:   "vision request failed",
			Message: relay.UserMessage(err),
		})
	}
	if strings.TrimSpace(reply) == "" {
		reply = noReply
	}
	return c.JSON(http.StatusOK, ChatVisionResponse{Reply: reply})
}
