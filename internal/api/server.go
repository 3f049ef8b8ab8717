package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"courtbook/internal/catalog"
	"courtbook/internal/config"
	"courtbook/internal/export"
	"courtbook/internal/repository"
	"courtbook/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Server HTTP-фасад движка бронирования.
type Server struct {
	cfg      config.APIConfig
	bookings *service.BookingService
	catalog  catalog.Provider
	exporter *export.Exporter
	logger   *zerolog.Logger
	server   *http.Server
}

func NewServer(
	cfg config.APIConfig,
	bookings *service.BookingService,
	provider catalog.Provider,
	exporter *export.Exporter,
	rateLimits repository.RateLimitRepository,
	metricsEnabled bool,
	logger *zerolog.Logger,
) *Server {
	s := &Server{
		cfg:      cfg,
		bookings: bookings,
		catalog:  provider,
		exporter: exporter,
		logger:   logger,
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(RequestLogger(logger))

	engine.GET("/health", s.handleHealth)
	if metricsEnabled {
		engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	v1 := engine.Group("/api/v1")
	v1.Use(APIKeyAuth(cfg.Auth))
	v1.Use(RateLimit(rateLimits, cfg.RateLimit, logger))

	v1.GET("/slots", s.handleListSlots)
	v1.GET("/availability", s.handleCheckAvailability)
	v1.POST("/pricing/preview", s.handlePricingPreview)

	v1.POST("/bookings", s.handleCreateBooking)
	v1.GET("/bookings", s.handleUserBookings)
	v1.GET("/bookings/:id", s.handleGetBooking)
	v1.POST("/bookings/:id/cancel", s.handleCancelBooking)

	v1.POST("/waitlist", s.handleJoinWaitlist)
	v1.GET("/waitlist", s.handleListWaitlist)
	v1.DELETE("/waitlist/:id", s.handleLeaveWaitlist)

	v1.GET("/courts", s.handleListCourts)
	v1.GET("/equipment", s.handleListEquipment)
	v1.GET("/coaches", s.handleListCoaches)

	admin := v1.Group("/admin")
	admin.Use(AdminOnly())
	admin.GET("/export", s.handleExportSchedule)

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return s
}

func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
