package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/nexuslabs/nexus-go/learning"
)

type chatRequest struct {
	Message string `json:"message"`
}

type memoryQueryRequest struct {
	Query    string `json:"query"`
	NResults int    `json:"n_results"`
}

type feedbackRequest struct {
	Success *bool `json:"success"`
}

func (s *Server) handleRoot(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"name":         "Nexus Agent",
		"version":      Version,
		"status":       "running",
		"capabilities": []string{"memory", "learning", "tools", "reasoning"},
	})
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleChat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Message) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}

	result, err := s.engine.ProcessMessage(c.Request().Context(), req.Message)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleStats(c echo.Context) error {
	stats, err := s.engine.Stats(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}

func (s *Server) handleQueryMemory(c echo.Context) error {
	req := memoryQueryRequest{NResults: 5}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query is required")
	}

	memories, err := s.engine.Memory().Query(c.Request().Context(), req.Query, req.NResults)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"memories": nonNil(memories)})
}

func (s *Server) handleDeleteMemory(c echo.Context) error {
	if err := s.engine.Memory().Delete(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "success"})
}

func (s *Server) handleEpisodes(c echo.Context) error {
	n := 10
	if raw := c.QueryParam("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "n must be an integer")
		}
		n = v
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"episodes": s.engine.Episodes().Recent(n)})
}

func (s *Server) handleSearchEpisodes(c echo.Context) error {
	q := c.QueryParam("q")
	if q == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q is required")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"episodes": nonNil(s.engine.Episodes().Search(q))})
}

func (s *Server) handleClear(c echo.Context) error {
	if err := s.engine.Clear(c.Request().Context()); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "success",
		"message": "All memories cleared",
	})
}

func (s *Server) handlePatterns(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{"patterns": s.engine.Learning().Patterns()})
}

func (s *Server) handleSkills(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{"skills": learning.SkillSet(s.engine.Learning().Skills())})
}

func (s *Server) handleSkillFeedback(c echo.Context) error {
	name := c.Param("name")
	var req feedbackRequest
	if err := c.Bind(&req); err != nil || req.Success == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "success (boolean) is required")
	}

	l := s.engine.Learning()
	if _, ok := l.Skill(name); !ok {
		return echo.NewHTTPError(http.StatusNotFound, "skill "+name+" not found")
	}
	if err := l.UpdateSkillSuccess(c.Request().Context(), name, *req.Success); err != nil {
		return err
	}

	skill, _ := l.Skill(name)
	return c.JSON(http.StatusOK, skill)
}

func (s *Server) handleTools(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{"tools": s.engine.Registry().Definitions()})
}

// nonNil keeps empty lists rendering as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
