package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"price-map/pkg/config"
	"price-map/pkg/logger"
	"price-map/pkg/server"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logger.New(cfg.LogLevel)

	var store *server.Store
	if cfg.PostgresDSN != "" {
		store, err = server.OpenStore(cfg.PostgresDSN)
		if err != nil {
			log.Error("opening transaction store", logger.Error(err))
			os.Exit(1)
		}
		defer store.Close()
	} else {
		log.Warn("no postgres dsn configured, transaction endpoint disabled")
	}

	listings, err := server.NewListingIndex(cfg.DataDir)
	if err != nil {
		log.Error("building listing index", logger.Error(err))
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      server.New(store, listings, cfg.DataDir, cfg.MaxDetailLimit, log).Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Info("listening", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server exited", logger.Error(err))
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown", logger.Error(err))
	}
	log.Info("stopped")
}
