package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/profitwave/support-chat-api/api/handlers"
	"github.com/profitwave/support-chat-api/config"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	a := handlers.App{}
	a.Config = *config.New()

	if err := a.Initialize(); err != nil {
		zap.S().Fatalw("failed to initialize", "error", err)
	}

	srv := &http.Server{
		Handler:      a.Router,
		Addr:         fmt.Sprintf(":%v", a.Config.Port),
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}

	zap.S().Infow("support-chat-api is up and running",
		"port", a.Config.Port,
		"url", a.Config.BaseURL,
	)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zap.S().Fatalw("server stopped", "error", err)
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	<-c

	zap.S().Info("shutting down")
	a.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zap.S().Errorw("forced shutdown", "error", err)
	}
}
