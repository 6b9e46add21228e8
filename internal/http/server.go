// Package http provides the devaudit HTTP API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/fyrsmithlabs/devaudit/internal/analysis"
	"github.com/fyrsmithlabs/devaudit/internal/generation"
	"github.com/fyrsmithlabs/devaudit/internal/llm"
	"github.com/fyrsmithlabs/devaudit/internal/logging"
	"github.com/fyrsmithlabs/devaudit/internal/normalize"
	"github.com/fyrsmithlabs/devaudit/internal/report"
	"github.com/fyrsmithlabs/devaudit/internal/retrieval"
	"github.com/fyrsmithlabs/devaudit/internal/store"
	"github.com/fyrsmithlabs/devaudit/internal/variants"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const ownerKey = "owner"

// Server provides HTTP endpoints for devaudit.
type Server struct {
	echo     *echo.Echo
	svc      *analysis.Service
	logger   *zap.Logger
	config   *Config
	metrics  *httpMetrics
	registry *prometheus.Registry
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates a new HTTP server.
func NewServer(svc *analysis.Service, logger *zap.Logger, cfg *Config) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("analysis service cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "127.0.0.1",
			Port: 8085,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:     e,
		svc:      svc,
		logger:   logger,
		config:   cfg,
		registry: prometheus.NewRegistry(),
	}
	s.metrics = newHTTPMetrics(s.registry)
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "devaudit",
			Name:      "build_jobs_active",
			Help:      "Number of report builds currently running.",
		}, func() float64 { return float64(svc.ActiveJobs()) }),
	)

	e.HTTPErrorHandler = s.handleError

	// Middleware. Recover sits innermost so a panic still reaches the
	// metrics and the request log as a 500.
	e.Use(middleware.RequestID())
	e.Use(s.requestContext)
	e.Use(s.requestLog)
	e.Use(s.metrics.middleware())
	e.Use(middleware.Recover())

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	v1 := s.echo.Group("/api/v1", s.requireOwner)
	v1.POST("/auth", s.handleAuth)

	api := v1.Group("", s.requireAuthorization)
	api.POST("/deviations", s.handleCreate)
	api.GET("/deviations", s.handleList)
	api.GET("/deviations/:id", s.handleGet)
	api.POST("/deviations/:id/build", s.handleBuild)
	api.GET("/deviations/:id/candidates", s.handleCandidates)
	api.GET("/deviations/:id/classification", s.handleClassification)
	api.GET("/deviations/:id/export", s.handleExport)
	api.GET("/jobs/:job", s.handleJob)

	api.GET("/deviations/:id/sections", s.handleSections)
	api.GET("/deviations/:id/sections/:key", s.handleSection)
	api.PUT("/deviations/:id/sections/:key/chosen", s.handleChoose)
	api.POST("/deviations/:id/sections/:key/mode/toggle", s.handleToggle)
	api.POST("/deviations/:id/sections/:key/custom", s.handleCustom)
	api.POST("/deviations/:id/sections/:key/regenerate", s.handleRegenerate)
}

// Echo exposes the router for tests and embedding.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

// requestContext copies the request id into the request context so that
// every log line of the request carries it.
func (s *Server) requestContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		rid := c.Response().Header().Get(echo.HeaderXRequestID)
		if logging.ValidateRequestID(rid) == nil {
			req := c.Request()
			c.SetRequest(req.WithContext(logging.WithRequestID(req.Context(), rid)))
		}
		return next(c)
	}
}

func (s *Server) requestLog(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
			err = nil
		}

		logging.For(c.Request().Context(), s.logger).Info("http request",
			zap.String("method", c.Request().Method),
			zap.String("uri", c.Request().RequestURI),
			zap.Int("status", c.Response().Status),
			zap.Duration("duration", time.Since(start)),
		)
		return err
	}
}

func (s *Server) requireOwner(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		owner := c.Request().Header.Get(HeaderOwner)
		if err := logging.ValidateOwner(owner); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("%s header: %v", HeaderOwner, err))
		}
		req := c.Request()
		c.SetRequest(req.WithContext(logging.WithOwner(req.Context(), owner)))
		c.Set(ownerKey, owner)
		return next(c)
	}
}

func (s *Server) requireAuthorization(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := s.svc.CheckAuthorized(c.Request().Context(), owner(c)); err != nil {
			return err
		}
		return next(c)
	}
}

func owner(c echo.Context) string {
	o, _ := c.Get(ownerKey).(string)
	return o
}

// record loads the :id record of the calling owner and tags the request
// context with its id.
func (s *Server) record(c echo.Context) (*report.Record, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid deviation id")
	}
	req := c.Request()
	ctx := logging.WithRecordID(req.Context(), id)
	c.SetRequest(req.WithContext(ctx))
	return s.svc.Record(ctx, owner(c), id)
}

func sectionKey(c echo.Context) (report.SectionKey, error) {
	return report.ParseSectionKey(c.Param("key"))
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", ActiveJobs: s.svc.ActiveJobs()})
}

func (s *Server) handleAuth(c echo.Context) error {
	var req AuthRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := s.svc.Authorize(c.Request().Context(), owner(c), req.Password); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleCreate(c echo.Context) error {
	var in CreateRequest
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	rec, err := s.svc.Create(c.Request().Context(), owner(c), in)
	if err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderLocation, fmt.Sprintf("/api/v1/deviations/%d", rec.ID))
	return c.JSON(http.StatusCreated, rec)
}

func (s *Server) handleList(c echo.Context) error {
	limit := 0
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		limit = n
	}
	recs, err := s.svc.List(c.Request().Context(), owner(c), limit)
	if err != nil {
		return err
	}
	resp := ListResponse{Deviations: make([]RecordSummary, 0, len(recs))}
	for _, r := range recs {
		resp.Deviations = append(resp.Deviations, RecordSummary{
			ID:          r.ID,
			Status:      r.Status,
			ProblemText: report.Truncate(r.UserInput.ProblemText),
			CreatedAt:   r.CreatedAt.Format(time.RFC3339),
		})
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleGet(c echo.Context) error {
	rec, err := s.record(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

func (s *Server) handleBuild(c echo.Context) error {
	rec, err := s.record(c)
	if err != nil {
		return err
	}
	job, err := s.svc.StartBuild(c.Request().Context(), owner(c), rec.ID)
	if err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderLocation, "/api/v1/jobs/"+job.ID)
	return c.JSON(http.StatusAccepted, job)
}

func (s *Server) handleJob(c echo.Context) error {
	job, err := s.svc.Job(owner(c), c.Param("job"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, job)
}

func (s *Server) handleCandidates(c echo.Context) error {
	rec, err := s.record(c)
	if err != nil {
		return err
	}
	set, err := s.svc.Candidates(c.Request().Context(), rec.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, set)
}

func (s *Server) handleClassification(c echo.Context) error {
	rec, err := s.record(c)
	if err != nil {
		return err
	}
	if len(rec.Selected) == 0 {
		return variants.ErrNotGenerated
	}
	return c.JSON(http.StatusOK, ClassificationResponse{
		RecordID:        rec.ID,
		Classifications: s.svc.Classification(rec),
	})
}

func (s *Server) handleExport(c echo.Context) error {
	rec, err := s.record(c)
	if err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename="deviation-%d.md"`, rec.ID))
	return c.Blob(http.StatusOK, "text/markdown; charset=utf-8", []byte(s.svc.Export(rec)))
}

func (s *Server) handleSections(c echo.Context) error {
	rec, err := s.record(c)
	if err != nil {
		return err
	}
	listing, err := s.svc.Sections().List(c.Request().Context(), rec.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, listing)
}

// sectionOp resolves :id and :key, then applies op to the section.
func (s *Server) sectionOp(c echo.Context, op func(ctx context.Context, id int64, key report.SectionKey) (*variants.View, error)) error {
	rec, err := s.record(c)
	if err != nil {
		return err
	}
	key, err := sectionKey(c)
	if err != nil {
		return err
	}
	view, err := op(c.Request().Context(), rec.ID, key)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

func (s *Server) handleSection(c echo.Context) error {
	return s.sectionOp(c, s.svc.Sections().Open)
}

func (s *Server) handleChoose(c echo.Context) error {
	var req ChooseRequest
	if err := c.Bind(&req); err != nil || req.Index == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "index is required")
	}
	return s.sectionOp(c, func(ctx context.Context, id int64, key report.SectionKey) (*variants.View, error) {
		return s.svc.Sections().SelectVariant(ctx, id, key, *req.Index)
	})
}

func (s *Server) handleToggle(c echo.Context) error {
	return s.sectionOp(c, s.svc.Sections().ToggleMode)
}

func (s *Server) handleCustom(c echo.Context) error {
	var req CustomRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return s.sectionOp(c, func(ctx context.Context, id int64, key report.SectionKey) (*variants.View, error) {
		return s.svc.Sections().InsertCustomVariant(ctx, id, key, req.Text)
	})
}

func (s *Server) handleRegenerate(c echo.Context) error {
	return s.sectionOp(c, func(ctx context.Context, id int64, key report.SectionKey) (*variants.View, error) {
		log := logging.For(ctx, s.logger)
		return s.svc.Sections().RegenerateSection(ctx, id, key, func(attempt int, elapsed time.Duration) {
			log.Debug("regeneration in progress",
				zap.String("section", string(key)),
				zap.Int("attempt", attempt),
				zap.Duration("elapsed", elapsed))
		})
	})
}

// handleError maps domain errors onto status codes and a JSON body.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status, body := errorResponse(err)
	if status >= http.StatusInternalServerError {
		logging.For(c.Request().Context(), s.logger).Error("request failed", zap.Error(err))
	}

	var werr error
	if c.Request().Method == http.MethodHead {
		werr = c.NoContent(status)
	} else {
		werr = c.JSON(status, body)
	}
	if werr != nil {
		s.logger.Warn("writing error response", zap.Error(werr))
	}
}

func errorResponse(err error) (int, ErrorResponse) {
	var nerr *normalize.NormalizationError
	var herr *echo.HTTPError
	switch {
	case errors.As(err, &herr):
		return herr.Code, ErrorResponse{Error: fmt.Sprint(herr.Message)}
	case errors.As(err, &nerr):
		return http.StatusUnprocessableEntity, ErrorResponse{
			Error:   nerr.Error(),
			Hint:    "the generator answer was rejected; retry the build",
			Stage:   string(nerr.Stage),
			Preview: nerr.Preview,
		}
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, ErrorResponse{Error: err.Error(), Hint: "create a new deviation"}
	case errors.Is(err, analysis.ErrJobNotFound):
		return http.StatusNotFound, ErrorResponse{Error: err.Error()}
	case errors.Is(err, analysis.ErrUnauthorized), errors.Is(err, analysis.ErrBadPassword):
		return http.StatusUnauthorized, ErrorResponse{Error: err.Error(), Hint: "authorize with today's password at /api/v1/auth"}
	case errors.Is(err, report.ErrUnknownSection),
		errors.Is(err, report.ErrInvalidInput),
		errors.Is(err, variants.ErrVariantOutOfRange),
		errors.Is(err, variants.ErrEmptyCustomText):
		return http.StatusBadRequest, ErrorResponse{Error: err.Error()}
	case errors.Is(err, variants.ErrNotGenerated):
		return http.StatusConflict, ErrorResponse{Error: err.Error(), Hint: "build the report first"}
	case errors.Is(err, generation.ErrGenerationTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, ErrorResponse{Error: err.Error()}
	case errors.Is(err, retrieval.ErrRetrieval), errors.Is(err, llm.ErrProvider):
		return http.StatusBadGateway, ErrorResponse{Error: err.Error()}
	case errors.Is(err, variants.ErrRegenerationUnavailable),
		errors.Is(err, analysis.ErrServiceClosed),
		errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()}
	default:
		return http.StatusInternalServerError, ErrorResponse{Error: "internal error"}
	}
}
