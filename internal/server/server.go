// Package server exposes the store read-only over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Zuo-Peng/cc-analytics/internal/index"
	"github.com/Zuo-Peng/cc-analytics/internal/search"
)

type Server struct {
	db  *index.DB
	log *slog.Logger
}

func New(db *index.DB, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{db: db, log: log}
}

// Handler returns the gin engine serving the API.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), s.logRequests)
	s.RegisterRoutes(router)
	return router
}

// RegisterRoutes registers the API routes on router.
// Routes: /api/health, /api/projects, /api/sessions, /api/sessions/:id/messages,
// /api/tools, /api/search
func (s *Server) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	api.GET("/health", s.handleHealth)
	api.GET("/projects", s.handleProjects)
	api.GET("/sessions", s.handleSessions)
	api.GET("/sessions/:id", s.handleSession)
	api.GET("/sessions/:id/messages", s.handleMessages)
	api.GET("/tools", s.handleTools)
	api.GET("/search", s.handleSearch)
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.Info("serving API", slog.String("addr", addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.log.Debug("request",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.Int("status", c.Writer.Status()),
		slog.Duration("elapsed", time.Since(start)))
}

func (s *Server) fail(c *gin.Context, err error) {
	s.log.Error("api", slog.String("path", c.Request.URL.Path), slog.Any("error", err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

// intParam reads an integer query parameter, falling back to def when it is
// absent or malformed.
func intParam(c *gin.Context, name string, def int) int {
	v := c.Query(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx := c.Request.Context()
	sessions, err := s.db.SessionCount(ctx)
	if err != nil {
		s.fail(c, err)
		return
	}
	messages, err := s.db.MessageCount(ctx)
	if err != nil {
		s.fail(c, err)
		return
	}
	_, indexed, err := s.db.SearchIndexCounts(ctx)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"sessions":     sessions,
		"messages":     messages,
		"search_index": indexed,
	})
}

func (s *Server) handleProjects(c *gin.Context) {
	projects, err := s.db.ProjectSummaries(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	if projects == nil {
		projects = []index.ProjectSummary{}
	}
	c.JSON(http.StatusOK, projects)
}

func (s *Server) handleSessions(c *gin.Context) {
	sessions, err := s.db.SessionSummaries(c.Request.Context(), c.Query("project"), intParam(c, "limit", 100))
	if err != nil {
		s.fail(c, err)
		return
	}
	if sessions == nil {
		sessions = []index.SessionSummary{}
	}
	c.JSON(http.StatusOK, sessions)
}

func (s *Server) handleSession(c *gin.Context) {
	sess, err := s.db.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if sess == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("session not found: %s", c.Param("id"))})
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (s *Server) handleMessages(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	sess, err := s.db.GetSession(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	if sess == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("session not found: %s", id)})
		return
	}

	from := intParam(c, "from", 0)
	to := intParam(c, "to", -1)
	if from < 0 || (to >= 0 && to < from) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message range"})
		return
	}
	msgs, err := s.db.Messages(ctx, id, from, to)
	if err != nil {
		s.fail(c, err)
		return
	}
	tools, err := s.db.ToolUses(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	inRange := []index.StoredToolUse{}
	for _, t := range tools {
		if t.MessageIndex >= from && (to < 0 || t.MessageIndex <= to) {
			inRange = append(inRange, t)
		}
	}
	if msgs == nil {
		msgs = []index.StoredMessage{}
	}
	c.JSON(http.StatusOK, gin.H{
		"session":   sess,
		"messages":  msgs,
		"tool_uses": inRange,
	})
}

func (s *Server) handleTools(c *gin.Context) {
	tools, err := s.db.ToolUsageSummaries(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	if tools == nil {
		tools = []index.ToolUsageSummary{}
	}
	c.JSON(http.StatusOK, tools)
}

func (s *Server) handleSearch(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "q parameter is required"})
		return
	}
	opts := search.Options{
		Query:   q,
		Project: c.Query("project"),
		Role:    c.Query("role"),
		Limit:   intParam(c, "limit", 20),
	}

	ctx := c.Request.Context()
	var (
		hits any
		err  error
	)
	if c.Query("tools") == "1" || c.Query("tools") == "true" {
		var th []search.ToolHit
		th, err = search.Tools(ctx, s.db, opts)
		if th == nil {
			th = []search.ToolHit{}
		}
		hits = th
	} else {
		var mh []search.MessageHit
		mh, err = search.Messages(ctx, s.db, opts)
		if mh == nil {
			mh = []search.MessageHit{}
		}
		hits = mh
	}
	if errors.Is(err, search.ErrNoIndex) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		// malformed FTS query syntax
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"query": q, "results": hits})
}
