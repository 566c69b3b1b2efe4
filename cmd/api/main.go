package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"filing_rating/pkg/api/config"
	"filing_rating/pkg/api/rating"
	coreConfig "filing_rating/pkg/core/config"
	"filing_rating/pkg/core/logging"
	"filing_rating/pkg/core/pipeline"

	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", "config/rating.yaml", "path to the service configuration")
	flag.Parse()

	// Load environment variables
	godotenv.Load()

	cfg, err := coreConfig.Load(*configPath)
	if err != nil {
		bootLogger := logging.New("info", false)
		bootLogger.Fatal().Err(err).Msg("Invalid configuration")
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Pretty)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	wiring, err := pipeline.Build(ctx, cfg, logger, pipeline.BuildOptions{})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer wiring.Close()

	var history rating.HistoryStore
	if wiring.Reports != nil {
		history = wiring.Reports
	}
	ratingHandler := rating.NewHandler(wiring.Analyzer, history, logging.Component(logger, "http"))
	configHandler := config.NewHandler(wiring.Agents)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/rating", ratingHandler.HandleRating)
	mux.HandleFunc("/api/rating/history", ratingHandler.HandleHistory)
	mux.HandleFunc("/api/config", configHandler.HandleConfig)
	mux.HandleFunc("/api/config/switch", configHandler.HandleSwitch)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info().
		Str("addr", cfg.Server.Addr).
		Str("provider", wiring.Agents.GetActiveProvider()).
		Bool("store", wiring.Reports != nil).
		Msg("API server starting")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("Server failed")
	}
	logger.Info().Msg("Server stopped")
}
