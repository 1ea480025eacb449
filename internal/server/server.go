package server

import (
	"database/sql"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cardflow/internal/cache"
	"cardflow/internal/config"
	"cardflow/internal/gateway"
	"cardflow/internal/metrics"
	"cardflow/internal/service"
)

type Server struct {
	payments service.PaymentService
	tokens   gateway.TokenSource
	limiter  *cache.RateLimiter
	db       *sql.DB

	momoWebhookSecret  string
	paylinkWebhookHash string
}

func New(cfg config.Config, payments service.PaymentService, tokens gateway.TokenSource, limiter *cache.RateLimiter, db *sql.DB) *http.Server {
	s := &Server{
		payments:           payments,
		tokens:             tokens,
		limiter:            limiter,
		db:                 db,
		momoWebhookSecret:  cfg.MomoWebhookSecret,
		paylinkWebhookHash: cfg.PaylinkWebhookHash,
	}

	return &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: s.routes(),
	}
}

func (s *Server) routes() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.Middleware())
	r.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Content-Type"},
	}))

	r.POST("/webhooks/momo", s.handleMomoWebhook)
	r.POST("/webhooks/paylink", s.handlePaylinkWebhook)

	r.POST("/payments", s.handleCreatePayment)
	r.POST("/payments/verify", s.rateLimited, s.handleManualCheck)
	r.GET("/payments/:id", s.handleGetPayment)

	r.POST("/admin/token/refresh", s.handleTokenRefresh)

	r.GET("/health", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func (s *Server) rateLimited(c *gin.Context) {
	if s.limiter == nil {
		return
	}
	if !s.limiter.Allow(c.Request.Context(), c.ClientIP()) {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
	}
}
