package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/opencamp/harvester/internal/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS campgrounds (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL DEFAULT 'campground',
	name TEXT NOT NULL,
	latitude REAL NOT NULL,
	longitude REAL NOT NULL,
	region_label TEXT NOT NULL,
	admin_area TEXT,
	nearest_city TEXT,
	accommodation_kinds TEXT NOT NULL DEFAULT '[]',
	camper_kinds TEXT NOT NULL DEFAULT '[]',
	bookable INTEGER NOT NULL DEFAULT 0,
	operator TEXT,
	primary_photo TEXT,
	photo_list TEXT NOT NULL DEFAULT '[]',
	photo_count INTEGER NOT NULL DEFAULT 0,
	review_count INTEGER NOT NULL DEFAULT 0,
	rating REAL,
	slug TEXT,
	price_low REAL,
	price_high REAL,
	availability_updated_at TEXT,
	self_link TEXT NOT NULL,
	address TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_campgrounds_region_label ON campgrounds (region_label);
CREATE INDEX IF NOT EXISTS idx_campgrounds_rating ON campgrounds (rating);
`

const sqliteUpsert = `
INSERT INTO campgrounds (
	id, kind, name, latitude, longitude, region_label, admin_area,
	nearest_city, accommodation_kinds, camper_kinds, bookable, operator,
	primary_photo, photo_list, photo_count, review_count, rating, slug,
	price_low, price_high, availability_updated_at, self_link, address,
	created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	kind = excluded.kind,
	name = excluded.name,
	latitude = excluded.latitude,
	longitude = excluded.longitude,
	region_label = excluded.region_label,
	admin_area = excluded.admin_area,
	nearest_city = excluded.nearest_city,
	accommodation_kinds = excluded.accommodation_kinds,
	camper_kinds = excluded.camper_kinds,
	bookable = excluded.bookable,
	operator = excluded.operator,
	primary_photo = excluded.primary_photo,
	photo_list = excluded.photo_list,
	photo_count = excluded.photo_count,
	review_count = excluded.review_count,
	rating = excluded.rating,
	slug = excluded.slug,
	price_low = excluded.price_low,
	price_high = excluded.price_high,
	availability_updated_at = excluded.availability_updated_at,
	self_link = excluded.self_link,
	address = excluded.address,
	updated_at = excluded.updated_at
`

const sqliteColumns = `
	id, kind, name, latitude, longitude, region_label, admin_area,
	nearest_city, accommodation_kinds, camper_kinds, bookable, operator,
	primary_photo, photo_list, photo_count, review_count, rating, slug,
	price_low, price_high, availability_updated_at, self_link, address,
	created_at, updated_at
`

// SQLiteStore is the embedded single-file backend. Array columns hold
// JSON-encoded strings and timestamps are stored as RFC 3339 text.
type SQLiteStore struct {
	db  *sql.DB
	log *zap.Logger
}

func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = "harvester.db"
	}
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "store: open sqlite")
	}
	// modernc.org/sqlite serializes access per connection; a single
	// connection avoids SQLITE_BUSY between the harvester and the API.
	conn.SetMaxOpenConns(1)
	return &SQLiteStore{
		db:  conn,
		log: zap.L().With(zap.String("service", "store"), zap.String("driver", "sqlite")),
	}, nil
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return eris.Wrap(err, "store: apply sqlite schema")
	}
	return nil
}

func (s *SQLiteStore) UpsertCampgrounds(ctx context.Context, batch []model.Campground) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "store: begin upsert tx")
	}
	defer tx.Rollback()

	// Nanosecond precision keeps updated_at strictly increasing even
	// when the same id is rewritten within one second.
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, cg := range batch {
		if _, err := tx.ExecContext(ctx, sqliteUpsert,
			cg.ID, cg.Kind, cg.Name, cg.Latitude, cg.Longitude,
			cg.RegionLabel, cg.AdminArea, cg.NearestCity,
			encodeList(cg.AccommodationKinds), encodeList(cg.CamperKinds),
			cg.Bookable, cg.Operator, cg.PrimaryPhoto,
			encodeList(cg.PhotoList), cg.PhotoCount, cg.ReviewCount,
			cg.Rating, cg.Slug, cg.PriceLow, cg.PriceHigh,
			encodeTime(cg.AvailabilityUpdatedAt), cg.SelfLink, cg.Address,
			now, now,
		); err != nil {
			return 0, eris.Wrapf(err, "store: upsert campground %s", cg.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "store: commit upsert tx")
	}
	s.log.Debug("upserted batch", zap.Int("count", len(batch)))
	return len(batch), nil
}

func (s *SQLiteStore) ListCampgrounds(ctx context.Context, f Filter) ([]model.StoredCampground, error) {
	query := "SELECT " + sqliteColumns + " FROM campgrounds WHERE 1=1"
	args := []any{}
	if f.State != "" {
		query += " AND region_label = ?"
		args = append(args, f.State)
	}
	if f.MinRating != nil {
		query += " AND rating >= ?"
		args = append(args, *f.MinRating)
	}
	query += " ORDER BY name LIMIT ? OFFSET ?"
	args = append(args, f.limit(), f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "store: list campgrounds")
	}
	defer rows.Close()

	var out []model.StoredCampground
	for rows.Next() {
		cg, err := scanSQLiteCampground(rows.Scan)
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

func (s *SQLiteStore) GetCampground(ctx context.Context, id string) (*model.StoredCampground, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+sqliteColumns+" FROM campgrounds WHERE id = ?", id)
	cg, err := scanSQLiteCampground(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &cg, nil
}

func (s *SQLiteStore) CountCampgrounds(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM campgrounds").Scan(&n); err != nil {
		return 0, eris.Wrap(err, "store: count campgrounds")
	}
	return n, nil
}

func (s *SQLiteStore) Close() {
	if err := s.db.Close(); err != nil {
		s.log.Warn("close sqlite", zap.Error(err))
	}
}

func scanSQLiteCampground(scan func(dest ...any) error) (model.StoredCampground, error) {
	var (
		cg                      model.StoredCampground
		accomm, campers, photos string
		createdAt, updateAt     string
		availNull               sql.NullString
	)
	err := scan(
		&cg.ID, &cg.Kind, &cg.Name, &cg.Latitude, &cg.Longitude,
		&cg.RegionLabel, &cg.AdminArea, &cg.NearestCity,
		&accomm, &campers, &cg.Bookable, &cg.Operator, &cg.PrimaryPhoto,
		&photos, &cg.PhotoCount, &cg.ReviewCount, &cg.Rating, &cg.Slug,
		&cg.PriceLow, &cg.PriceHigh, &availNull, &cg.SelfLink, &cg.Address,
		&createdAt, &updateAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return cg, err
		}
		return cg, eris.Wrap(err, "store: scan campground")
	}

	cg.AccommodationKinds = decodeList(accomm)
	cg.CamperKinds = decodeList(campers)
	cg.PhotoList = decodeList(photos)
	if availNull.Valid {
		if t, err := time.Parse(time.RFC3339, availNull.String); err == nil {
			cg.AvailabilityUpdatedAt = &t
		}
	}
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		cg.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, updateAt); err == nil {
		cg.UpdatedAt = t
	}
	return cg, nil
}

func encodeList(vals []string) string {
	if len(vals) == 0 {
		return "[]"
	}
	b, err := json.Marshal(vals)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// decodeList never returns nil so sequence fields serialize as [] from
// both backends, matching Postgres' empty text[].
func decodeList(raw string) []string {
	var vals []string
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &vals); err != nil {
			vals = nil
		}
	}
	if vals == nil {
		return []string{}
	}
	return vals
}

func encodeTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}
