// Package reconcile enriches validated campgrounds with addresses and
// writes them to the store.
package reconcile

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/opencamp/harvester/internal/model"
	"github.com/opencamp/harvester/internal/store"
	"github.com/opencamp/harvester/pkg/geocode"
)

// Reconciler fills the address of each campground, preferring the one
// already carried on the record, then hands the batch to the store.
type Reconciler struct {
	store    store.Store
	resolver geocode.Resolver
	log      *zap.Logger
}

func New(st store.Store, resolver geocode.Resolver) *Reconciler {
	return &Reconciler{
		store:    st,
		resolver: resolver,
		log:      zap.L().With(zap.String("service", "reconcile")),
	}
}

// Persist enriches and upserts the batch. Every record ends up with an
// address: carried, resolved, or the coordinate placeholder. Returns
// the number of rows written.
func (r *Reconciler) Persist(ctx context.Context, batch []model.Campground) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}

	enriched := make([]model.Campground, 0, len(batch))
	for _, cg := range batch {
		if err := ctx.Err(); err != nil {
			return 0, eris.Wrap(err, "reconcile: enrichment interrupted")
		}
		cg.Address = r.addressFor(ctx, cg)
		enriched = append(enriched, cg)
	}

	n, err := r.store.UpsertCampgrounds(ctx, enriched)
	if err != nil {
		return 0, eris.Wrap(err, "reconcile: persist batch")
	}
	r.log.Info("persisted batch", zap.Int("count", n))
	return n, nil
}

func (r *Reconciler) addressFor(ctx context.Context, cg model.Campground) *string {
	if cg.Address != nil && *cg.Address != "" {
		return cg.Address
	}
	if !cg.HasCoordinates() {
		addr := geocode.Placeholder(cg.Latitude, cg.Longitude)
		return &addr
	}
	addr := r.resolver.Resolve(ctx, cg.Latitude, cg.Longitude)
	return &addr
}
