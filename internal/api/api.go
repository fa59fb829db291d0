package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/joescharf/bugboard/internal/apierr"
	"github.com/joescharf/bugboard/internal/bugs"
	"github.com/joescharf/bugboard/internal/logger"
	"github.com/joescharf/bugboard/internal/models"
)

// DefaultBodyLimit caps JSON request bodies.
const DefaultBodyLimit int64 = 10 << 20

// Config tunes the HTTP surface.
type Config struct {
	// Debug adds error detail to response bodies.
	Debug       bool
	CORSOrigins []string
	BodyLimit   int64
	Tracing     bool
}

// Server provides the REST API handlers.
type Server struct {
	svc *bugs.Service
	log *logger.Logger
	cfg Config
}

// NewServer creates a new API server.
func NewServer(svc *bugs.Service, log *logger.Logger, cfg Config) *Server {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.BodyLimit <= 0 {
		cfg.BodyLimit = DefaultBodyLimit
	}
	return &Server{svc: svc, log: log.With("component", "api"), cfg: cfg}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	r := gin.New()

	if s.cfg.Tracing {
		r.Use(otelgin.Middleware("bugboard"))
	}
	r.Use(
		AttachRequestID(),
		RequestLogger(s.log),
		Recovery(s.log, s.cfg.Debug),
		SecurityHeaders(),
		CORS(s.cfg.CORSOrigins),
		BodyLimit(s.cfg.BodyLimit),
	)

	api := r.Group("/api")
	{
		api.GET("/health", s.health)

		api.GET("/bugs", s.listBugs)
		api.POST("/bugs", s.createBug)
		api.GET("/bugs/search", s.searchBugs)
		api.GET("/bugs/:id", s.getBug)
		api.PUT("/bugs/:id", s.updateBug)
		api.DELETE("/bugs/:id", s.deleteBug)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Route not found"})
	})

	return r
}

func (s *Server) respondError(c *gin.Context, err error) {
	status, body := apierr.Normalize(err, s.cfg.Debug)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "path", c.Request.URL.Path, "request_id", c.GetString(ctxRequestID), "error", err)
	}
	c.AbortWithStatusJSON(status, body)
}

// decodeInput reads a bug payload. An empty body is an empty payload.
func decodeInput(c *gin.Context) (models.BugInput, error) {
	var in models.BugInput
	err := json.NewDecoder(c.Request.Body).Decode(&in)

	var maxErr *http.MaxBytesError
	var typeErr *json.UnmarshalTypeError
	switch {
	case err == nil, errors.Is(err, io.EOF):
	case errors.As(err, &maxErr):
		return in, apierr.New(http.StatusRequestEntityTooLarge, "payload_too_large", errors.New("Payload too large"))
	case errors.As(err, &typeErr) && typeErr.Field != "":
		return in, apierr.BadRequest(fmt.Sprintf("Invalid value for %s", typeErr.Field))
	default:
		return in, apierr.BadRequest("Invalid JSON")
	}

	in.StepsToReproduce = models.CompactSteps(in.StepsToReproduce)
	return in, nil
}

// --- Health ---

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "OK",
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// --- Bugs ---

func (s *Server) listBugs(c *gin.Context) {
	filters := map[string]string{
		"status":   c.Query("status"),
		"priority": c.Query("priority"),
	}
	res, err := s.svc.List(c.Request.Context(), filters, c.Query("page"), c.Query("limit"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) searchBugs(c *gin.Context) {
	found, err := s.svc.Search(c.Request.Context(), c.Query("q"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, found)
}

func (s *Server) getBug(c *gin.Context) {
	b, err := s.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (s *Server) createBug(c *gin.Context) {
	in, err := decodeInput(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	b, err := s.svc.Create(c.Request.Context(), in)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

func (s *Server) updateBug(c *gin.Context) {
	in, err := decodeInput(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	b, err := s.svc.Update(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (s *Server) deleteBug(c *gin.Context) {
	res, err := s.svc.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
