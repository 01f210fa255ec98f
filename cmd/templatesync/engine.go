package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/viper"

	"github.com/gileck/templatesync/internal/config"
	"github.com/gileck/templatesync/internal/sync"
	"github.com/gileck/templatesync/internal/workspace"
)

// engine bundles everything one plan or apply run needs: the locked
// workspace, the ownership config, and the open baseline store.
type engine struct {
	ws    *workspace.Workspace
	cfg   *config.Config
	store *sync.BaselineStore
}

// openEngine resolves the roots, acquires the run lock, and opens the state
// stores. Callers must defer close.
func openEngine() (*engine, error) {
	templateDir := viper.GetString("template")
	if templateDir == "" {
		return nil, fmt.Errorf("--template is required (or TEMPLATESYNC_TEMPLATE)")
	}

	ws, err := workspace.New(viper.GetString("project"), templateDir)
	if err != nil {
		return nil, err
	}
	if path := viper.GetString("config"); path != "" {
		ws.ConfigPath = path
	}
	if err := ws.Setup(); err != nil {
		return nil, err
	}

	cfg, err := config.Load(ws.ConfigPath)
	if err != nil {
		ws.Unlock()
		return nil, fmt.Errorf("load ownership config (run `templatesync init` to create one): %w", err)
	}

	store := sync.NewBaselineStore(ws.BaselinePath)
	if err := store.Open(); err != nil {
		ws.Unlock()
		return nil, err
	}

	return &engine{ws: ws, cfg: cfg, store: store}, nil
}

func (e *engine) close() {
	if err := e.store.Close(); err != nil {
		slog.Error("close baseline store", "error", err)
	}
	if err := e.ws.Unlock(); err != nil {
		slog.Error("unlock workspace", "error", err)
	}
}

// plan runs one planning pass over the current trees and baseline.
func (e *engine) plan() (*sync.Plan, *sync.Planner, error) {
	state, err := e.store.GetState()
	if err != nil {
		return nil, nil, err
	}
	planner := sync.NewPlanner(e.ws.TemplateRoot, e.ws.ProjectRoot, e.cfg, state, sync.NewStoreHistory(e.store))
	plan, err := planner.Plan()
	if err != nil {
		return nil, nil, err
	}
	return plan, planner, nil
}
