package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/tryonix/tryonix-server/ai"
	"github.com/tryonix/tryonix-server/api"
	"github.com/tryonix/tryonix-server/config"
	"github.com/tryonix/tryonix-server/metrics"
	"github.com/tryonix/tryonix-server/pipeline"
	"github.com/tryonix/tryonix-server/quota"
	"github.com/tryonix/tryonix-server/storage"
	"github.com/tryonix/tryonix-server/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := newLogger(cfg)
	ctx := context.Background()

	client, err := store.Connect(ctx, cfg.MongoURI)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer client.Disconnect(ctx)
	logger.Info("connected to MongoDB")

	db := client.Database(cfg.MongoDatabase)
	users := store.NewUserStore(db)
	tryons := store.NewTryOnStore(db)

	blobs, err := storage.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to initialize blob storage: %v", err)
	}

	generator := ai.NewClient(cfg, logger)
	gate := quota.NewGate(users, cfg.DailyTryOnLimit, logger)
	m := metrics.New()

	tryOnPipeline := pipeline.New(gate, blobs, generator, tryons, users, cfg.UploadDir, logger, m)

	tryOnHandler := api.NewTryOnHandler(cfg, tryOnPipeline, tryons, logger)
	authHandler := api.NewAuthHandler(cfg, users, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/signup", route(m, "/auth/signup", authHandler.Signup))
	mux.HandleFunc("POST /auth/login", route(m, "/auth/login", authHandler.Login))
	mux.HandleFunc("POST /tryon", protected(cfg, m, "/tryon", tryOnHandler.Create))
	mux.HandleFunc("GET /tryon/history", protected(cfg, m, "/tryon/history", tryOnHandler.History))
	mux.HandleFunc("DELETE /tryon/{id}", protected(cfg, m, "/tryon/{id}", tryOnHandler.Delete))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		api.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", m.Handler())

	logger.Info("server starting", "port", cfg.Port, "env", cfg.Env)
	if err := http.ListenAndServe(":"+cfg.Port, mux); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func route(m *metrics.Metrics, path string, h http.HandlerFunc) http.HandlerFunc {
	return api.CORSMiddleware(m.WithHTTPMetrics(path, h))
}

func protected(cfg *config.Config, m *metrics.Metrics, path string, h http.HandlerFunc) http.HandlerFunc {
	return api.CORSMiddleware(m.WithHTTPMetrics(path, api.AuthMiddleware(cfg.JWTSecret, h)))
}
