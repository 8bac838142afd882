package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	billingdomain "github.com/lessonworks/billing/internal/billing/domain"
	"github.com/lessonworks/billing/internal/config"
	customerdomain "github.com/lessonworks/billing/internal/customer/domain"
	"github.com/lessonworks/billing/internal/period"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(New),
	fx.Invoke(run),
)

type Params struct {
	fx.In

	Config  config.Config
	Log     *zap.Logger
	Billing billingdomain.Service
}

type Server struct {
	engine  *gin.Engine
	log     *zap.Logger
	billing billingdomain.Service
}

func New(p Params) *Server {
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		engine:  engine,
		log:     p.Log.Named("http.server"),
		billing: p.Billing,
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() {
	s.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.engine.Group("/v1")
	v1.POST("/billing/runs", s.runPeriod)
	v1.POST("/billing/customers/:id/runs", s.billCustomer)
}

type runRequest struct {
	Period string `json:"period" binding:"required"`
}

func (s *Server) runPeriod(c *gin.Context) {
	var req runRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "period is required"})
		return
	}

	summary, err := s.billing.RunPeriod(c.Request.Context(), period.Period(req.Period))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) billCustomer(c *gin.Context) {
	var req runRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "period is required"})
		return
	}

	outcome, err := s.billing.BillCustomer(c.Request.Context(), billingdomain.BillRequest{
		CustomerID: c.Param("id"),
		Period:     period.Period(req.Period),
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

func (s *Server) respondError(c *gin.Context, err error) {
	kind := billingdomain.ClassifyError(err)

	status := http.StatusInternalServerError
	switch kind {
	case billingdomain.OutcomeValidation:
		status = http.StatusBadRequest
	case billingdomain.OutcomeNotFound:
		status = http.StatusNotFound
	case billingdomain.OutcomeDuplicateInvoice:
		status = http.StatusConflict
	}

	body := gin.H{"kind": string(kind), "error": err.Error()}
	var dup *billingdomain.DuplicateInvoiceError
	if errors.As(err, &dup) {
		body["invoice_ids"] = dup.InvoiceIDs
	}
	if errors.Is(err, customerdomain.ErrNotFound) {
		body["error"] = "customer not found"
	}

	if status == http.StatusInternalServerError {
		s.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, body)
}

func run(lc fx.Lifecycle, cfg config.Config, s *Server) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: s.engine,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
