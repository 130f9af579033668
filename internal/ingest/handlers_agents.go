package ingest

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/hashtagemy/guard/internal/model"
)

// registerAgentHandler handles POST /agents/register (no auth,
// spec.md §4.5): idempotent by name (spec.md §3).
func (s *Server) registerAgentHandler(c *echo.Context) error {
	var body struct {
		Name   string `json:"name"`
		Source string `json:"source"`
	}
	if err := c.Bind(&body); err != nil {
		return writeError(c, http.StatusBadRequest, "invalid JSON body", "validation")
	}
	if body.Name == "" {
		return writeError(c, http.StatusBadRequest, "name is required", "validation")
	}

	source := model.SourceHook
	switch body.Source {
	case string(model.SourceGit):
		source = model.SourceGit
	case string(model.SourceZip):
		source = model.SourceZip
	}

	entry, err := s.registry.Register(body.Name, source)
	if err != nil {
		return mapStoreError(c, err)
	}
	return c.JSON(http.StatusOK, entry)
}

// listAgentsHandler handles GET /agents.
func (s *Server) listAgentsHandler(c *echo.Context) error {
	entries, err := s.registry.List()
	if err != nil {
		return mapStoreError(c, err)
	}
	return c.JSON(http.StatusOK, entries)
}

// deleteAgentHandler handles DELETE /agents/{id}, idempotent
// (SPEC_FULL.md §D.6 — deleting an already-absent entry is not an
// error).
func (s *Server) deleteAgentHandler(c *echo.Context) error {
	if err := s.registry.Delete(c.Param("id")); err != nil {
		return mapStoreError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
