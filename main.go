package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"Gin_postgres_redis_lending_engine/app"
	"Gin_postgres_redis_lending_engine/config"
	"Gin_postgres_redis_lending_engine/routes"

	"go.uber.org/zap"
)

func main() {
	cfg := config.LoadEnv()

	application := app.MustNew(cfg)
	defer application.Close()

	routes.RegisterRoutes(application.Router, application)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           application.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		application.Log.Info("listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			application.Log.Fatal("failed to serve", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	application.Log.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		application.Log.Error("graceful shutdown failed", zap.Error(err))
	}
	application.Log.Info("Server stopped")
}
