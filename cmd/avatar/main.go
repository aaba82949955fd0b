package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"avatar/internal/api"
	"avatar/internal/config"
	"avatar/internal/db"
	"avatar/internal/logger"
	"avatar/internal/rates"
	"avatar/internal/ui"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	client := api.NewClient(cfg.Server.BaseURL)

	store, err := db.Open()
	if err != nil {
		// The app works without local persistence.
		logger.Log.WithError(err).Warn("local store unavailable")
		store = nil
	} else {
		defer store.Close()
	}

	var storage rates.Storage
	if store != nil {
		storage = store
	}
	rateService := rates.NewService(storage, client, cfg.RateTTL())

	app, err := ui.New(ui.Deps{
		Config: cfg,
		Client: client,
		Store:  store,
		Rates:  rateService,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
