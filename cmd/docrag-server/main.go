package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"docrag/internal/api"
	"docrag/internal/app"
	"docrag/internal/config"
)

func main() {
	_ = godotenv.Load()
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	var cfgPath, preload string
	flag.StringVar(&cfgPath, "config", "config.yaml", "Path to YAML config file")
	flag.StringVar(&preload, "load", "", "Document to load at startup")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	sess, err := app.NewSession(cfg, log)
	if err != nil {
		log.Error("init failed", "error", err)
		os.Exit(1)
	}

	if preload != "" {
		if _, err := sess.LoadFile(context.Background(), preload); err != nil {
			log.Error("preload failed", "path", preload, "error", err)
			os.Exit(1)
		}
	}

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.NewServer(sess, log, cfg.Server.MaxUploadBytes),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	log.Info("starting docrag server", "addr", cfg.Server.Addr, "embedder", cfg.Embedder.Type, "vector_store", cfg.VectorStore.Type, "session", sess.ID())
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
