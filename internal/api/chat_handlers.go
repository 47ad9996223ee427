package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/pbaille/studylog/internal/chat"
	"github.com/pbaille/studylog/internal/relay"
	"github.com/pbaille/studylog/internal/store"
)

// SendErrorEvent is the payload of the SSE "error" event
type SendErrorEvent struct {
	Error string `json:"error"`
}

// sseWriter starts the event stream on first use
type sseWriter struct {
	c       echo.Context
	started bool
}

func (w *sseWriter) event(name string, payload any) error {
	res := w.c.Response()
	if !w.started {
		res.Header().Set(echo.HeaderContentType, "text/event-stream")
		res.Header().Set("Cache-Control", "no-cache")
		res.Header().Set("Connection", "keep-alive")
		res.WriteHeader(http.StatusOK)
		w.started = true
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(res, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	res.Flush()
	return nil
}

// handleSend runs one chat send on the day transcript. Cumulative answer text
// arrives as "update" events, then a single "done" or "error" event.
// Failures before the first event are plain JSON errors.
func (s *Server) handleSend(c echo.Context) error {
	if err := s.requireRelay(); err != nil {
		return err
	}
	if s.sessions == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "chat sessions unavailable")
	}
	day, err := dayParam(c)
	if err != nil {
		return err
	}

	var req chat.Request
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}

	w := &sseWriter{c: c}
	res, err := s.sessions.Send(c.Request().Context(), day, req, func(u chat.Update) {
		if werr := w.event("update", u); werr != nil {
			s.logger.Debug("write update event", zap.Error(werr))
		}
	})

	if err != nil {
		if !w.started {
			return s.httpError(err)
		}
		_ = w.event("error", SendErrorEvent{Error: relay.UserMessage(err)})
		return nil
	}
	if err := w.event("done", res); err != nil {
		s.logger.Debug("write done event", zap.Error(err))
	}
	return nil
}

func (s *Server) handleQuestions(c echo.Context) error {
	groups, err := s.browser.Questions(c.Request().Context(), c.QueryParam("q"))
	if err != nil {
		return s.httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"groups": groups})
}

func (s *Server) handleStats(c echo.Context) error {
	days := 7
	if raw := c.QueryParam("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 366 {
			return badRequest("days must be between 1 and 366")
		}
		days = n
	}

	stats, err := s.browser.WeeklyCounts(c.Request().Context(), s.now(), days)
	if err != nil {
		return s.httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"days": stats})
}

func (s *Server) handleImport(c echo.Context) error {
	var snap store.LegacySnapshot
	if err := json.NewDecoder(c.Request().Body).Decode(&snap); err != nil {
		return badRequest("body must be a local storage snapshot object")
	}
	report, err := s.store.ImportLegacy(c.Request().Context(), snap)
	if err != nil {
		return s.httpError(err)
	}
	return c.JSON(http.StatusOK, report)
}
