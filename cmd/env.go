package main

import (
	"context"

	"github.com/opencamp/harvester/internal/harvest"
	"github.com/opencamp/harvester/internal/progress"
	"github.com/opencamp/harvester/internal/reconcile"
	"github.com/opencamp/harvester/internal/source"
	"github.com/opencamp/harvester/internal/store"
	"github.com/opencamp/harvester/pkg/geocode"
)

// harvestEnv holds everything a command needs once config is loaded.
type harvestEnv struct {
	Store     store.Store
	Harvester *harvest.Harvester
}

func initHarvestEnv(ctx context.Context) (*harvestEnv, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}

	geocoder := geocode.NewReverseGeocoder(geocode.NewNominatim(cfg.Geocode))
	reconciler := reconcile.New(st, geocoder)
	fetcher := source.NewClient(cfg.Source)
	checkpoint := progress.NewFile(cfg.Harvest.ProgressPath)

	return &harvestEnv{
		Store:     st,
		Harvester: harvest.New(fetcher, reconciler, checkpoint, cfg.Harvest),
	}, nil
}

func (e *harvestEnv) Close() {
	e.Store.Close()
}
