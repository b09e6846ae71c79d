package main

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"geminichat/internal/chat"
	"geminichat/internal/config"
	"geminichat/internal/export"
	"geminichat/internal/gemini"
	"geminichat/internal/ui"

	tea "github.com/charmbracelet/bubbletea"
)

func main() {
	cfg, err := config.Parse()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	logOut, closeLog, err := openLog(cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "log file: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	client := gemini.New(gemini.Options{
		APIKey:        cfg.APIKey,
		Endpoint:      cfg.Endpoint,
		PrimaryModel:  cfg.PrimaryModel,
		FallbackModel: cfg.FallbackModel,
		HTTPClient:    &http.Client{Timeout: cfg.Timeout},
		Logger:        logger,
	})

	m := ui.New(ui.Deps{
		Config:   cfg,
		Session:  chat.NewSession(config.Greeting),
		Sender:   client,
		Exporter: export.New(cfg.ExportDir, cfg.PrimaryModel),
	})

	slog.Info("starting chat", "model", cfg.PrimaryModel, "fallback", cfg.FallbackModel)
	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		slog.Error("ui exited", "error", err)
		fmt.Fprintf(os.Stderr, "ui error: %v\n", err)
		closeLog()
		os.Exit(1)
	}
}

// openLog writes to path when set. The terminal belongs to the UI, so
// without a path logs are discarded.
func openLog(path string) (io.Writer, func(), error) {
	if path == "" {
		return io.Discard, func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}
