package store

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencamp/harvester/internal/model"
)

func floatPtr(v float64) *float64 { return &v }

func strPtr(v string) *string { return &v }

func sampleCampground() model.Campground {
	return model.Campground{
		ID:                 "camp-1",
		Kind:               "campground",
		Name:               "Pine Hollow",
		Latitude:           40.5,
		Longitude:          -74.0,
		RegionLabel:        "NY",
		AdminArea:          "Ulster County",
		NearestCity:        "Phoenicia",
		AccommodationKinds: []string{"tent", "rv"},
		CamperKinds:        []string{"car"},
		Bookable:           true,
		Operator:           "NYSP",
		PrimaryPhoto:       "https://example.com/p.jpg",
		PhotoList:          []string{"https://example.com/p.jpg"},
		PhotoCount:         1,
		ReviewCount:        12,
		Rating:             floatPtr(4.5),
		Slug:               "pine-hollow",
		PriceLow:           floatPtr(20),
		PriceHigh:          floatPtr(45),
		SelfLink:           "https://thedyrt.com/camping/pine-hollow",
		Address:            strPtr("123 Forest Rd, Phoenicia, NY"),
	}
}

func TestPostgresUpsertCampgrounds(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)
	cg := sampleCampground()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO campgrounds`).
		WithArgs(
			cg.ID, cg.Kind, cg.Name, cg.Latitude, cg.Longitude,
			cg.RegionLabel, cg.AdminArea, cg.NearestCity,
			cg.AccommodationKinds, cg.CamperKinds, cg.Bookable,
			cg.Operator, cg.PrimaryPhoto, cg.PhotoList, cg.PhotoCount,
			cg.ReviewCount, cg.Rating, cg.Slug, cg.PriceLow, cg.PriceHigh,
			cg.AvailabilityUpdatedAt, cg.SelfLink, cg.Address,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	n, err := store.UpsertCampgrounds(context.Background(), []model.Campground{cg})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpsertEmptyBatchSkipsTx(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)

	n, err := store.UpsertCampgrounds(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpsertRollsBackOnFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)
	cg := sampleCampground()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO campgrounds`).
		WithArgs(
			cg.ID, cg.Kind, cg.Name, cg.Latitude, cg.Longitude,
			cg.RegionLabel, cg.AdminArea, cg.NearestCity,
			cg.AccommodationKinds, cg.CamperKinds, cg.Bookable,
			cg.Operator, cg.PrimaryPhoto, cg.PhotoList, cg.PhotoCount,
			cg.ReviewCount, cg.Rating, cg.Slug, cg.PriceLow, cg.PriceHigh,
			cg.AvailabilityUpdatedAt, cg.SelfLink, cg.Address,
		).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err = store.UpsertCampgrounds(context.Background(), []model.Campground{cg})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "camp-1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Re-harvesting the same id must replace every mutable column, address
// and updated_at included, so a stale enrichment cannot survive a rerun.
func TestPostgresUpsertReplacesEveryColumn(t *testing.T) {
	replaced := []string{
		"kind", "name", "latitude", "longitude", "region_label",
		"admin_area", "nearest_city", "accommodation_kinds",
		"camper_kinds", "bookable", "operator", "primary_photo",
		"photo_list", "photo_count", "review_count", "rating", "slug",
		"price_low", "price_high", "availability_updated_at",
		"self_link", "address",
	}
	for _, col := range replaced {
		assert.Contains(t, postgresUpsert, col+" = EXCLUDED."+col, "column %s must be replaced on conflict", col)
	}
	assert.Contains(t, postgresUpsert, "updated_at = now()")
	assert.NotContains(t, postgresUpsert, "created_at = EXCLUDED", "created_at must survive replacement")
}

func TestPostgresGetCampground(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)
	cg := sampleCampground()
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT .* FROM campgrounds WHERE id = \$1`).
		WithArgs("camp-1").
		WillReturnRows(campgroundRows(cg, now))

	got, err := store.GetCampground(context.Background(), "camp-1")
	require.NoError(t, err)
	assert.Equal(t, "Pine Hollow", got.Name)
	assert.Equal(t, []string{"tent", "rv"}, got.AccommodationKinds)
	require.NotNil(t, got.Address)
	assert.Equal(t, "123 Forest Rd, Phoenicia, NY", *got.Address)
	assert.Equal(t, now, got.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetCampgroundNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)

	mock.ExpectQuery(`SELECT .* FROM campgrounds WHERE id = \$1`).
		WithArgs("ghost").
		WillReturnRows(pgxmock.NewRows(campgroundColumns()))

	_, err = store.GetCampground(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListCampgroundsFilters(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)
	cg := sampleCampground()
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT .* FROM campgrounds WHERE 1=1 AND region_label = \$1 AND rating >= \$2 ORDER BY name LIMIT \$3 OFFSET \$4`).
		WithArgs("NY", 4.0, 25, 50).
		WillReturnRows(campgroundRows(cg, now))

	got, err := store.ListCampgrounds(context.Background(), Filter{
		State:     "NY",
		MinRating: floatPtr(4.0),
		Limit:     25,
		Offset:    50,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "camp-1", got[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListCampgroundsDefaultLimit(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)

	mock.ExpectQuery(`SELECT .* FROM campgrounds WHERE 1=1 ORDER BY name LIMIT \$1 OFFSET \$2`).
		WithArgs(100, 0).
		WillReturnRows(pgxmock.NewRows(campgroundColumns()))

	got, err := store.ListCampgrounds(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCountCampgrounds(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM campgrounds`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(42)))

	n, err := store.CountCampgrounds(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMigrate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS campgrounds`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, store.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func campgroundColumns() []string {
	cols := strings.Fields(strings.NewReplacer(",", " ", "\n", " ", "\t", " ").Replace(postgresColumns))
	return cols
}

func campgroundRows(cg model.Campground, now time.Time) *pgxmock.Rows {
	return pgxmock.NewRows(campgroundColumns()).AddRow(
		cg.ID, cg.Kind, cg.Name, cg.Latitude, cg.Longitude,
		cg.RegionLabel, cg.AdminArea, cg.NearestCity,
		cg.AccommodationKinds, cg.CamperKinds, cg.Bookable,
		cg.Operator, cg.PrimaryPhoto, cg.PhotoList, cg.PhotoCount,
		cg.ReviewCount, cg.Rating, cg.Slug, cg.PriceLow, cg.PriceHigh,
		cg.AvailabilityUpdatedAt, cg.SelfLink, cg.Address,
		now, now,
	)
}
