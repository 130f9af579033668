package ingest

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	echo "github.com/labstack/echo/v5"
)

// statsHandler handles GET /stats: aggregate counts computed over
// every stored session (SPEC_FULL.md §D.2), grounded on
// original_source/norn/routers/stats.py.
func (s *Server) statsHandler(c *echo.Context) error {
	sessions, err := s.store.ListSessions(0)
	if err != nil {
		return mapStoreError(c, err)
	}

	byQuality := map[string]int{}
	byIssueType := map[string]int{}
	var efficiencySum, efficiencyCount, securitySum, securityCount int

	for _, sess := range sessions {
		if q, ok := sess["overall_quality"].(string); ok && q != "" {
			byQuality[q]++
		}
		if issues, ok := sess["issues"].([]any); ok {
			for _, raw := range issues {
				issue, ok := raw.(map[string]any)
				if !ok {
					continue
				}
				if t, ok := issue["issue_type"].(string); ok && t != "" {
					byIssueType[t]++
				}
			}
		}
		if v, ok := numericField(sess["efficiency_score"]); ok {
			efficiencySum += v
			efficiencyCount++
		}
		if v, ok := numericField(sess["security_score"]); ok {
			securitySum += v
			securityCount++
		}
	}

	resp := map[string]any{
		"total_sessions":      len(sessions),
		"sessions_by_quality": byQuality,
		"issues_by_type":      byIssueType,
	}
	if efficiencyCount > 0 {
		resp["mean_efficiency_score"] = float64(efficiencySum) / float64(efficiencyCount)
	}
	if securityCount > 0 {
		resp["mean_security_score"] = float64(securitySum) / float64(securityCount)
	}
	return c.JSON(http.StatusOK, resp)
}

func numericField(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	default:
		return 0, false
	}
}

// listSwarmsHandler handles GET /swarms: sessions grouped by
// swarm_id, ordered by swarm_order (SPEC_FULL.md §D.1).
func (s *Server) listSwarmsHandler(c *echo.Context) error {
	sessions, err := s.store.ListSessions(0)
	if err != nil {
		return mapStoreError(c, err)
	}

	groups := map[string][]map[string]any{}
	for _, sess := range sessions {
		id, ok := sess["swarm_id"].(string)
		if !ok || id == "" {
			continue
		}
		groups[id] = append(groups[id], sess)
	}

	ids := make([]string, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		members := groups[id]
		sortBySwarmOrder(members)
		normalized := make([]map[string]any, len(members))
		for i, m := range members {
			normalized[i] = Normalize(m)
		}
		out = append(out, map[string]any{
			"swarm_id": id,
			"sessions": normalized,
		})
	}
	return c.JSON(http.StatusOK, out)
}

// getSwarmHandler handles GET /swarms/{id}: detail view for one swarm.
func (s *Server) getSwarmHandler(c *echo.Context) error {
	id := c.Param("id")
	sessions, err := s.store.ListSessions(0)
	if err != nil {
		return mapStoreError(c, err)
	}

	var members []map[string]any
	for _, sess := range sessions {
		if sid, _ := sess["swarm_id"].(string); sid == id {
			members = append(members, sess)
		}
	}
	if len(members) == 0 {
		return writeError(c, http.StatusNotFound, "swarm not found", "not_found")
	}
	sortBySwarmOrder(members)

	normalized := make([]map[string]any, len(members))
	for i, m := range members {
		normalized[i] = Normalize(m)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"swarm_id": id,
		"sessions": normalized,
	})
}

func sortBySwarmOrder(members []map[string]any) {
	sort.SliceStable(members, func(i, j int) bool {
		oi, _ := numericField(members[i]["swarm_order"])
		oj, _ := numericField(members[j]["swarm_order"])
		return oi < oj
	})
}

// auditLogsHandler handles GET /audit-logs?from=YYYY-MM-DD&to=YYYY-MM-DD:
// the raw per-day step journal for a date range (SPEC_FULL.md §D.3),
// grounded on original_source/norn/routers/audit.py.
func (s *Server) auditLogsHandler(c *echo.Context) error {
	from := time.Now().UTC().AddDate(0, 0, -7)
	to := time.Now().UTC()

	if v := c.QueryParam("from"); v != "" {
		if t, err := time.Parse("2006-01-02", v); err == nil {
			from = t
		}
	}
	if v := c.QueryParam("to"); v != "" {
		if t, err := time.Parse("2006-01-02", v); err == nil {
			to = t
		}
	}

	entries, err := s.store.ReadStepLog(from, to)
	if err != nil {
		return mapStoreError(c, err)
	}
	return c.JSON(http.StatusOK, entries)
}

// getConfigHandler handles GET /config: the editable keys plus a
// read-only _runtime block (SPEC_FULL.md §D.4).
func (s *Server) getConfigHandler(c *echo.Context) error {
	cfg := s.config.Get()
	resp := configToMap(cfg)
	resp["_runtime"] = s.runtimeInfo()
	return c.JSON(http.StatusOK, resp)
}

// putConfigHandler handles PUT /config: allowlisted-key patch, applied
// and persisted in place (spec.md §6).
func (s *Server) putConfigHandler(c *echo.Context) error {
	var patch map[string]any
	if err := c.Bind(&patch); err != nil {
		return writeError(c, http.StatusBadRequest, "invalid JSON body", "validation")
	}

	cfg, err := s.config.Update(patch)
	if err != nil {
		return mapStoreError(c, err)
	}

	resp := configToMap(cfg)
	resp["_runtime"] = s.runtimeInfo()
	return c.JSON(http.StatusOK, resp)
}

func configToMap(cfg any) map[string]any {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return map[string]any{}
	}
	var out map[string]any
	_ = json.Unmarshal(raw, &out)
	return out
}

func (s *Server) runtimeInfo() map[string]any {
	sessions, _ := s.store.ListSessions(0)
	agents, _ := s.registry.List()

	stepFileCount := 0
	if entries, err := os.ReadDir(filepath.Join(s.logRoot, "steps")); err == nil {
		for _, e := range entries {
			if !e.IsDir() && filepath.Ext(e.Name()) == ".jsonl" {
				stepFileCount++
			}
		}
	}

	_, configExistsErr := os.Stat(filepath.Join(s.logRoot, "config.json"))

	return map[string]any{
		"session_count":  len(sessions),
		"agent_count":    len(agents),
		"step_log_files": stepFileCount,
		"config_on_disk": configExistsErr == nil,
	}
}
