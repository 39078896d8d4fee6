package cmd

import (
	"fmt"
	"time"

	"clipsync/internal/clipboard"
	"clipsync/internal/config"
	"clipsync/internal/evict"
	"clipsync/internal/history"
	"clipsync/internal/remote"
	"clipsync/internal/resolver"
	"clipsync/internal/syncer"
)

// app wires the sync engine together: explicit construction, no
// process-wide singletons beyond the event bus.
type app struct {
	cfg      *config.Config
	store    *history.Store
	resolver *resolver.Resolver
	client   *remote.Client
	evictor  *evict.Manager
	clip     clipboard.Clipboard
	orch     *syncer.Orchestrator
}

func openApp() (*app, error) {
	cfg, err := config.LoadAndValidateConfig()
	if err != nil {
		return nil, err
	}

	store, err := history.Open(cfg.DBPath())
	if err != nil {
		return nil, err
	}

	client, err := remote.NewClient(cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	res := resolver.New(store)
	evictor := evict.New(store, cfg.RetentionCount, cfg.CacheDir(),
		time.Duration(cfg.CacheMaxAgeHours)*time.Hour)
	clip := clipboard.NewSystem()

	return &app{
		cfg:      cfg,
		store:    store,
		resolver: res,
		client:   client,
		evictor:  evictor,
		clip:     clip,
		orch:     syncer.New(store, res, client, clip, evictor, cfg.DeviceName),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		fmt.Printf("warning: failed to close history DB: %v\n", err)
	}
}
