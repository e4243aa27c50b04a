package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"docrag/internal/app"
	"docrag/internal/config"
	"docrag/internal/session"
	"docrag/internal/tui"
)

func main() {
	_ = godotenv.Load()

	var cfgPath string
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/docrag/config.yaml if not provided)")
	flag.Parse()
	inputs := flag.Args()
	if len(inputs) > 1 {
		fmt.Println("Usage: docrag [--config=config.yaml] [document]")
		os.Exit(1)
	}

	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, closeLog, err := newLogger(cfg.LogFile)
	if err != nil {
		log.Fatalf("failed to open log file: %v", err)
	}
	defer closeLog()

	sess, err := app.NewSession(cfg, logger)
	if err != nil {
		log.Fatalf("init failed: %v", err)
	}

	ctx := context.Background()
	var loaded *session.LoadResult
	if len(inputs) == 1 {
		loaded, err = sess.LoadFile(ctx, inputs[0])
		if err != nil {
			log.Fatalf("load failed: %v", err)
		}
	}

	m := tui.New(ctx, sess, loaded)
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		log.Fatal(err)
	}
}

// newLogger writes to path, or discards output when path is empty; the
// terminal belongs to the UI.
func newLogger(path string) (*slog.Logger, func(), error) {
	if path == "" {
		return slog.New(slog.DiscardHandler), func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return slog.New(slog.NewTextHandler(f, nil)), func() { f.Close() }, nil
}
