package ingest

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	echo "github.com/labstack/echo/v5"

	"github.com/hashtagemy/guard/internal/store"
)

// ingestSessionHandler handles POST /sessions/ingest: create-or-resume
// by session_id (spec.md §4.5). Grounded on
// original_source/norn/routers/sessions.py::ingest_session.
func (s *Server) ingestSessionHandler(c *echo.Context) error {
	var body map[string]any
	if err := c.Bind(&body); err != nil {
		return writeError(c, http.StatusBadRequest, "invalid JSON body", "validation")
	}

	sessionID, _ := body["session_id"].(string)
	if sessionID == "" {
		return writeError(c, http.StatusBadRequest, "session_id is required", "validation")
	}

	merged, _, _, err := ResumeSession(s.store, sessionID, body)
	if err != nil {
		return mapStoreError(c, err)
	}

	s.hub.BroadcastSession(sessionID)
	return c.JSON(http.StatusOK, Normalize(merged))
}

// ingestStepHandler handles POST /sessions/{id}/step: append one step
// and broadcast.
func (s *Server) ingestStepHandler(c *echo.Context) error {
	sessionID := c.Param("id")

	var step map[string]any
	if err := c.Bind(&step); err != nil {
		return writeError(c, http.StatusBadRequest, "invalid JSON body", "validation")
	}
	if _, ok := step["step_id"]; !ok {
		step["step_id"] = uuid.NewString()
	}

	existing, err := s.store.GetSession(sessionID)
	if err != nil && err != store.ErrNotFound {
		return mapStoreError(c, err)
	}

	incoming := map[string]any{
		"session_id": sessionID,
		"steps":      []any{step},
	}
	if existing == nil {
		incoming["started_at"] = time.Now().UTC().Format(time.RFC3339)
	}

	merged, err := s.store.PutSession(incoming)
	if err != nil {
		return mapStoreError(c, err)
	}

	s.hub.BroadcastSession(sessionID)
	return c.JSON(http.StatusOK, Normalize(merged))
}

// completeSessionHandler handles POST /sessions/{id}/complete: merge
// the completion payload, preserving the existing steps list when the
// payload omits one (spec.md §4.5).
func (s *Server) completeSessionHandler(c *echo.Context) error {
	sessionID := c.Param("id")

	var body map[string]any
	if err := c.Bind(&body); err != nil {
		return writeError(c, http.StatusBadRequest, "invalid JSON body", "validation")
	}
	body["session_id"] = sessionID
	if _, ok := body["status"]; !ok {
		body["status"] = "terminated"
	}
	if _, ok := body["ended_at"]; !ok {
		body["ended_at"] = time.Now().UTC().Format(time.RFC3339)
	}

	merged, err := s.store.PutSession(body)
	if err != nil {
		return mapStoreError(c, err)
	}

	s.hub.BroadcastSession(sessionID)
	return c.JSON(http.StatusOK, Normalize(merged))
}

// listSessionsHandler handles GET /sessions.
func (s *Server) listSessionsHandler(c *echo.Context) error {
	limit := 0
	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	sessions, err := s.store.ListSessions(limit)
	if err != nil {
		return mapStoreError(c, err)
	}

	out := make([]map[string]any, len(sessions))
	for i, sess := range sessions {
		out[i] = Normalize(sess)
	}
	return c.JSON(http.StatusOK, out)
}

// getSessionHandler handles GET /sessions/{id}.
func (s *Server) getSessionHandler(c *echo.Context) error {
	sess, err := s.store.GetSession(c.Param("id"))
	if err != nil {
		return mapStoreError(c, err)
	}
	return c.JSON(http.StatusOK, Normalize(sess))
}

// deleteSessionHandler handles DELETE /sessions/{id}.
func (s *Server) deleteSessionHandler(c *echo.Context) error {
	if err := s.store.DeleteSession(c.Param("id")); err != nil {
		return mapStoreError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// deleteStepHandler handles DELETE /sessions/{id}/steps/{step_id}.
func (s *Server) deleteStepHandler(c *echo.Context) error {
	found, err := s.store.DeleteStep(c.Param("id"), c.Param("step_id"))
	if err != nil {
		return mapStoreError(c, err)
	}
	if !found {
		return writeError(c, http.StatusNotFound, "step not found", "not_found")
	}
	s.hub.BroadcastSession(c.Param("id"))
	return c.NoContent(http.StatusNoContent)
}
