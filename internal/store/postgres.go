package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/opencamp/harvester/internal/db"
	"github.com/opencamp/harvester/internal/model"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS campgrounds (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL DEFAULT 'campground',
	name TEXT NOT NULL,
	latitude DOUBLE PRECISION NOT NULL,
	longitude DOUBLE PRECISION NOT NULL,
	region_label TEXT NOT NULL,
	admin_area TEXT,
	nearest_city TEXT,
	accommodation_kinds TEXT[] NOT NULL DEFAULT '{}',
	camper_kinds TEXT[] NOT NULL DEFAULT '{}',
	bookable BOOLEAN NOT NULL DEFAULT FALSE,
	operator TEXT,
	primary_photo TEXT,
	photo_list TEXT[] NOT NULL DEFAULT '{}',
	photo_count INTEGER NOT NULL DEFAULT 0,
	review_count INTEGER NOT NULL DEFAULT 0,
	rating DOUBLE PRECISION,
	slug TEXT,
	price_low DOUBLE PRECISION,
	price_high DOUBLE PRECISION,
	availability_updated_at TIMESTAMPTZ,
	self_link TEXT NOT NULL,
	address TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_campgrounds_region_label ON campgrounds (region_label);
CREATE INDEX IF NOT EXISTS idx_campgrounds_rating ON campgrounds (rating);
`

const postgresUpsert = `
INSERT INTO campgrounds (
	id, kind, name, latitude, longitude, region_label, admin_area,
	nearest_city, accommodation_kinds, camper_kinds, bookable, operator,
	primary_photo, photo_list, photo_count, review_count, rating, slug,
	price_low, price_high, availability_updated_at, self_link, address,
	created_at, updated_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
	$16, $17, $18, $19, $20, $21, $22, $23, now(), now()
)
ON CONFLICT (id) DO UPDATE SET
	kind = EXCLUDED.kind,
	name = EXCLUDED.name,
	latitude = EXCLUDED.latitude,
	longitude = EXCLUDED.longitude,
	region_label = EXCLUDED.region_label,
	admin_area = EXCLUDED.admin_area,
	nearest_city = EXCLUDED.nearest_city,
	accommodation_kinds = EXCLUDED.accommodation_kinds,
	camper_kinds = EXCLUDED.camper_kinds,
	bookable = EXCLUDED.bookable,
	operator = EXCLUDED.operator,
	primary_photo = EXCLUDED.primary_photo,
	photo_list = EXCLUDED.photo_list,
	photo_count = EXCLUDED.photo_count,
	review_count = EXCLUDED.review_count,
	rating = EXCLUDED.rating,
	slug = EXCLUDED.slug,
	price_low = EXCLUDED.price_low,
	price_high = EXCLUDED.price_high,
	availability_updated_at = EXCLUDED.availability_updated_at,
	self_link = EXCLUDED.self_link,
	address = EXCLUDED.address,
	updated_at = now()
`

const postgresColumns = `
	id, kind, name, latitude, longitude, region_label, admin_area,
	nearest_city, accommodation_kinds, camper_kinds, bookable, operator,
	primary_photo, photo_list, photo_count, review_count, rating, slug,
	price_low, price_high, availability_updated_at, self_link, address,
	created_at, updated_at
`

// PostgresStore persists campgrounds in Postgres through a pgx pool.
type PostgresStore struct {
	pool db.Pool
	log  *zap.Logger
}

func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{
		pool: pool,
		log:  zap.L().With(zap.String("service", "store"), zap.String("driver", "postgres")),
	}
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return eris.Wrap(err, "store: apply postgres schema")
	}
	return nil
}

func (s *PostgresStore) UpsertCampgrounds(ctx context.Context, batch []model.Campground) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "store: begin upsert tx")
	}
	defer tx.Rollback(ctx)

	for _, cg := range batch {
		if _, err := tx.Exec(ctx, postgresUpsert,
			cg.ID, cg.Kind, cg.Name, cg.Latitude, cg.Longitude,
			cg.RegionLabel, cg.AdminArea, cg.NearestCity,
			cg.AccommodationKinds, cg.CamperKinds, cg.Bookable,
			cg.Operator, cg.PrimaryPhoto, cg.PhotoList, cg.PhotoCount,
			cg.ReviewCount, cg.Rating, cg.Slug, cg.PriceLow, cg.PriceHigh,
			cg.AvailabilityUpdatedAt, cg.SelfLink, cg.Address,
		); err != nil {
			return 0, eris.Wrapf(err, "store: upsert campground %s", cg.ID)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "store: commit upsert tx")
	}
	s.log.Debug("upserted batch", zap.Int("count", len(batch)))
	return len(batch), nil
}

func (s *PostgresStore) ListCampgrounds(ctx context.Context, f Filter) ([]model.StoredCampground, error) {
	query := "SELECT " + postgresColumns + " FROM campgrounds WHERE 1=1"
	args := []any{}
	if f.State != "" {
		args = append(args, f.State)
		query += " AND region_label = $1"
	}
	if f.MinRating != nil {
		args = append(args, *f.MinRating)
		query += condArg(" AND rating >= $%d", len(args))
	}
	args = append(args, f.limit())
	query += condArg(" ORDER BY name LIMIT $%d", len(args))
	args = append(args, f.Offset)
	query += condArg(" OFFSET $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "store: list campgrounds")
	}
	defer rows.Close()

	var out []model.StoredCampground
	for rows.Next() {
		cg, err := scanCampground(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cg)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "store: iterate campgrounds")
	}
	return out, nil
}

func (s *PostgresStore) GetCampground(ctx context.Context, id string) (*model.StoredCampground, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+postgresColumns+" FROM campgrounds WHERE id = $1", id)
	cg, err := scanCampground(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &cg, nil
}

func (s *PostgresStore) CountCampgrounds(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM campgrounds").Scan(&n); err != nil {
		return 0, eris.Wrap(err, "store: count campgrounds")
	}
	return n, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func scanCampground(row pgx.Row) (model.StoredCampground, error) {
	var cg model.StoredCampground
	err := row.Scan(
		&cg.ID, &cg.Kind, &cg.Name, &cg.Latitude, &cg.Longitude,
		&cg.RegionLabel, &cg.AdminArea, &cg.NearestCity,
		&cg.AccommodationKinds, &cg.CamperKinds, &cg.Bookable,
		&cg.Operator, &cg.PrimaryPhoto, &cg.PhotoList, &cg.PhotoCount,
		&cg.ReviewCount, &cg.Rating, &cg.Slug, &cg.PriceLow, &cg.PriceHigh,
		&cg.AvailabilityUpdatedAt, &cg.SelfLink, &cg.Address,
		&cg.CreatedAt, &cg.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return cg, err
		}
		return cg, eris.Wrap(err, "store: scan campground")
	}
	return cg, nil
}

func condArg(format string, n int) string {
	return fmt.Sprintf(format, n)
}
