package app

import (
	"loopline/internal/config"
	"loopline/internal/engine"
	"loopline/internal/executor"
	"loopline/internal/store"
)

// App wires the closed-loop components for one process: a fresh store, an
// executor registry seeded with the simulated default, and the engine.
// State is in-memory only; every process starts empty.
type App struct {
	Config   *config.Config
	Store    *store.Store
	Registry *executor.Registry
	Engine   *engine.Engine
}

func New(cfg *config.Config) *App {
	st := store.New()
	reg := executor.NewRegistry(cfg.Executors.Default, executor.Simulated{})
	return &App{
		Config:   cfg,
		Store:    st,
		Registry: reg,
		Engine:   engine.New(st, reg, cfg),
	}
}
