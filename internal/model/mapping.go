package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// MapPayload translates one raw source payload into a Campground. The source
// uses snake_case keys; each field gets an explicit default when absent.
// It returns an error when id, name, or either coordinate is missing or
// malformed; such records are dropped by the caller, never retried.
func MapPayload(raw map[string]any) (Campground, error) {
	id := stringField(raw, "id", "")
	if id == "" {
		return Campground{}, eris.New("model: record has no id")
	}

	name, ok := raw["name"]
	if !ok {
		return Campground{}, eris.Errorf("model: record %s has no name", id)
	}
	nameStr, ok := name.(string)
	if !ok {
		return Campground{}, eris.Errorf("model: record %s has malformed name", id)
	}

	lat, err := floatField(raw, "latitude")
	if err != nil {
		return Campground{}, eris.Wrapf(err, "model: record %s", id)
	}
	lon, err := floatField(raw, "longitude")
	if err != nil {
		return Campground{}, eris.Wrapf(err, "model: record %s", id)
	}

	c := Campground{
		ID:                    id,
		Kind:                  stringField(raw, "type", DefaultKind),
		Name:                  nameStr,
		Latitude:              lat,
		Longitude:             lon,
		RegionLabel:           stringField(raw, "state", "Unknown"),
		AdminArea:             stringField(raw, "administrative_area", ""),
		NearestCity:           stringField(raw, "nearest_city", ""),
		AccommodationKinds:    stringSliceField(raw, "accommodation_types"),
		CamperKinds:           stringSliceField(raw, "camper_types"),
		Bookable:              boolField(raw, "bookable"),
		Operator:              stringField(raw, "operator", ""),
		PrimaryPhoto:          stringField(raw, "primary_photo_url", ""),
		PhotoList:             stringSliceField(raw, "photo_urls"),
		PhotoCount:            intField(raw, "photos_count"),
		ReviewCount:           intField(raw, "reviews_count"),
		Rating:                floatPtrField(raw, "rating"),
		Slug:                  stringField(raw, "slug", ""),
		PriceLow:              floatPtrField(raw, "price_low"),
		PriceHigh:             floatPtrField(raw, "price_high"),
		AvailabilityUpdatedAt: timePtrField(raw, "availability_updated_at"),
		SelfLink:              stringField(raw, "url", DefaultSelfLink),
	}

	return c, nil
}

// ValidateBatch maps every raw payload, keeping the records that validate
// and counting the ones dropped. A bad record never aborts the batch.
func ValidateBatch(raws []map[string]any) ([]Campground, int) {
	valid := make([]Campground, 0, len(raws))
	dropped := 0

	for _, raw := range raws {
		c, err := MapPayload(raw)
		if err != nil {
			zap.L().Warn("dropping invalid campground record",
				zap.Any("id", raw["id"]),
				zap.Error(err),
			)
			dropped++
			continue
		}
		valid = append(valid, c)
	}

	return valid, dropped
}

func stringField(raw map[string]any, key, fallback string) string {
	v, ok := raw[key]
	if !ok || v == nil {
		return fallback
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return fallback
	}
	return s
}

// floatField coerces a required numeric field. The source sometimes sends
// coordinates as strings, so numeric strings are accepted.
func floatField(raw map[string]any, key string) (float64, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return 0, eris.Errorf("missing %s", key)
	}
	f, ok := coerceFloat(v)
	if !ok {
		return 0, eris.Errorf("malformed %s: %v", key, v)
	}
	return f, nil
}

func floatPtrField(raw map[string]any, key string) *float64 {
	v, ok := raw[key]
	if !ok || v == nil {
		return nil
	}
	f, ok := coerceFloat(v)
	if !ok {
		return nil
	}
	return &f
}

func coerceFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func intField(raw map[string]any, key string) int {
	f, ok := coerceFloat(valueOrNil(raw, key))
	if !ok {
		return 0
	}
	if f < 0 {
		return 0
	}
	return int(f)
}

func boolField(raw map[string]any, key string) bool {
	v, ok := raw[key]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

func stringSliceField(raw map[string]any, key string) []string {
	v, ok := raw[key]
	if !ok || v == nil {
		return []string{}
	}
	switch s := v.(type) {
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			out = append(out, fmt.Sprintf("%v", item))
		}
		return out
	default:
		return []string{}
	}
}

func timePtrField(raw map[string]any, key string) *time.Time {
	v, ok := raw[key]
	if !ok || v == nil {
		return nil
	}
	s, ok := v.(string)
	if !ok {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

func valueOrNil(raw map[string]any, key string) any {
	if v, ok := raw[key]; ok {
		return v
	}
	return nil
}
