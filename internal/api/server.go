// Package api provides a small read-only HTTP surface for querying the
// earnings journal, so an operator can check cumulative rewards without
// a separate sqlite client.
package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tos-network/coal-miner/internal/config"
	"github.com/tos-network/coal-miner/internal/journal"
	"github.com/tos-network/coal-miner/internal/util"
)

// Server is the local earnings-status API server.
type Server struct {
	cfg     *config.APIConfig
	journal *journal.Journal
	router  *gin.Engine
	server  *http.Server
}

// TodayResponse is the /earnings/today response.
type TodayResponse struct {
	Resource string `json:"resource"`
	Grains   int64  `json:"grains"`
}

// DailyPoint is one entry in the /earnings/daily response.
type DailyPoint struct {
	Date   string `json:"date"`
	Grains int64  `json:"grains"`
}

// NewServer creates a new API server bound to the journal it reports on.
func NewServer(cfg *config.APIConfig, j *journal.Journal) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		cfg:     cfg,
		journal: j,
		router:  router,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/earnings/today", s.handleToday)
	s.router.GET("/earnings/daily", s.handleDaily)
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

// Start begins the API server. A no-op if the server is disabled.
func (s *Server) Start() error {
	if !s.cfg.Enabled {
		return nil
	}

	s.server = &http.Server{
		Addr:    s.cfg.Bind,
		Handler: s.router,
	}

	util.Infof("earnings API listening on %s", s.cfg.Bind)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			util.Errorf("earnings API server error: %v", err)
		}
	}()

	return nil
}

// Stop shuts down the API server.
func (s *Server) Stop() error {
	if s.server != nil {
		return s.server.Close()
	}
	return nil
}

func (s *Server) handleToday(c *gin.Context) {
	resource, err := parseResource(c.DefaultQuery("resource", "coal"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, TodayResponse{
		Resource: string(resource),
		Grains:   s.journal.SumToday(resource),
	})
}

func (s *Server) handleDaily(c *gin.Context) {
	resource, err := parseResource(c.DefaultQuery("resource", "coal"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	days := 7
	if raw := c.Query("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "days must be a positive integer"})
			return
		}
		days = n
	}

	totals := s.journal.Daily(resource, days)
	points := make([]DailyPoint, 0, len(totals))
	for _, t := range totals {
		points = append(points, DailyPoint{Date: t.Date, Grains: t.Total})
	}

	c.JSON(http.StatusOK, points)
}

func parseResource(raw string) (journal.Resource, error) {
	switch journal.Resource(raw) {
	case journal.ResourceCoal:
		return journal.ResourceCoal, nil
	case journal.ResourceOre:
		return journal.ResourceOre, nil
	default:
		return "", &unknownResourceQueryError{raw}
	}
}

type unknownResourceQueryError struct {
	raw string
}

func (e *unknownResourceQueryError) Error() string {
	return "unknown resource: " + e.raw
}
