package model

import (
	"time"
)

// DefaultSelfLink is the canonical site URL used when the source omits a
// record's own URL.
const DefaultSelfLink = "https://thedyrt.com"

// DefaultKind is the semantic category applied when the source omits one.
const DefaultKind = "campground"

// Campground is the validated, canonical shape of one campground listing.
// Instances are built through MapPayload and are not mutated afterwards,
// except for Address which the reconciler fills in during enrichment.
type Campground struct {
	ID                    string     `json:"id"`
	Kind                  string     `json:"kind"`
	Name                  string     `json:"name"`
	Latitude              float64    `json:"latitude"`
	Longitude             float64    `json:"longitude"`
	RegionLabel           string     `json:"region_label"`
	AdminArea             string     `json:"admin_area,omitempty"`
	NearestCity           string     `json:"nearest_city,omitempty"`
	AccommodationKinds    []string   `json:"accommodation_kinds"`
	CamperKinds           []string   `json:"camper_kinds"`
	Bookable              bool       `json:"bookable"`
	Operator              string     `json:"operator,omitempty"`
	PrimaryPhoto          string     `json:"primary_photo,omitempty"`
	PhotoList             []string   `json:"photo_list"`
	PhotoCount            int        `json:"photo_count"`
	ReviewCount           int        `json:"review_count"`
	Rating                *float64   `json:"rating,omitempty"`
	Slug                  string     `json:"slug,omitempty"`
	PriceLow              *float64   `json:"price_low,omitempty"`
	PriceHigh             *float64   `json:"price_high,omitempty"`
	AvailabilityUpdatedAt *time.Time `json:"availability_updated_at,omitempty"`
	SelfLink              string     `json:"self_link"`
	Address               *string    `json:"address,omitempty"`
}

// HasCoordinates reports whether both coordinates are usable for geocoding.
func (c Campground) HasCoordinates() bool {
	return c.Latitude != 0 || c.Longitude != 0
}

// StoredCampground is a persisted row: the record plus the write timestamps
// owned by the store.
type StoredCampground struct {
	Campground
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
