package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"parking-service/internal/config"
	"parking-service/internal/db"
	httpapi "parking-service/internal/http"
	"parking-service/internal/match"
	"parking-service/internal/repository"
	"parking-service/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("failed to load config")
	}

	log := newLogger(cfg.Log)

	database, err := db.Connect(cfg.Database.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect database")
	}

	matchCfg := match.Config{
		AcceptFloor:          cfg.Matching.AcceptFloor,
		FuzzyFloor:           cfg.Matching.FuzzyFloor,
		NumericProvinceFloor: cfg.Matching.NumericProvinceFloor,
		CorroborationBoost:   cfg.Matching.CorroborationBoost,
	}

	store := repository.NewSessionRepository(database)
	parkingService := service.NewParkingService(store, matchCfg, cfg.Matching.CorroborationLookback, log)
	reconciler := service.NewReconciler(store, matchCfg, cfg.Matching.CorroborationLookback, cfg.Reconcile.Interval, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reconcilerDone := make(chan struct{})
	go func() {
		defer close(reconcilerDone)
		reconciler.Run(ctx)
	}()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.Default())

	auth := httpapi.NewAuthHandler(cfg.Auth)
	auth.Register(router)
	httpapi.NewHandler(parkingService, cfg, log).Register(router, auth.Middleware())

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown failed")
	}
	<-reconcilerDone
}

func newLogger(cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	logger := zerolog.New(os.Stdout)
	if cfg.Pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout})
	}
	return logger.Level(level).With().Timestamp().Logger()
}
