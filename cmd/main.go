package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/iroosevelt/nerderland-live/internal/config"
	"github.com/iroosevelt/nerderland-live/internal/handler"
	"github.com/iroosevelt/nerderland-live/internal/hub"
	streamkafka "github.com/iroosevelt/nerderland-live/internal/kafka"
	"github.com/iroosevelt/nerderland-live/internal/presence"
	"github.com/iroosevelt/nerderland-live/internal/repository"
	"github.com/iroosevelt/nerderland-live/internal/service"
	"github.com/iroosevelt/nerderland-live/pkg/database"
	pkglog "github.com/iroosevelt/nerderland-live/pkg/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load configuration")
	}

	pkglog.Init(pkglog.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty, ServiceName: "nerderland-live"})
	logger := pkglog.L()

	logger.Info().Str("host", cfg.Server.Host).Int("port", cfg.Server.Port).Msg("starting nerderland-live")

	// Connect to the shared relational store
	db, err := database.New(&cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	logger.Info().Str("driver", cfg.Database.Driver).Msg("database connection established")

	users := repository.NewGormUserRepository(db)
	streams := repository.NewGormStreamRepository(db)
	participants := repository.NewGormParticipantRepository(db)

	// Redis mirror for viewer counts; the service runs without it.
	var presenceStore presence.Store
	presenceStore, err = presence.NewRedisStore(cfg.Redis)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to connect to redis, viewer-count mirror disabled")
		presenceStore = nil
	} else {
		defer presenceStore.Close()
		logger.Info().Str("address", cfg.Redis.Address).Msg("connected to redis")
	}

	// Kafka producer for stream lifecycle events; also optional.
	var producer streamkafka.StreamEventProducer
	producer, err = streamkafka.NewConfluentProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Partitions)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to create kafka producer, stream events disabled")
		producer = nil
	} else {
		defer producer.Close()
		logger.Info().Str("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("connected to kafka")
	}

	wsHub := hub.NewHub(cfg.WebSocket)
	go wsHub.Run()

	signalSvc := service.NewSignalService(wsHub, users, streams, participants, presenceStore, producer, cfg.Auth.JWTSecret)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(pkglog.GinMiddleware(logger), gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handler.NewWSHandler(wsHub, signalSvc).RegisterRoutes(router)
	handler.NewHTTPHandler(signalSvc).RegisterRoutes(router)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("host", cfg.Server.Host).Int("port", cfg.Server.Port).Msg("nerderland-live listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down nerderland-live")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("nerderland-live stopped")
}
