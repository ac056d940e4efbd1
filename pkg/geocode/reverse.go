// Package geocode resolves coordinate pairs to human-readable addresses via
// a reverse-geocoding HTTP service, degrading to a coordinate placeholder
// when the service cannot help.
package geocode

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Resolver turns coordinates into an address string. Implementations never
// fail: when no real address can be obtained the result is a synthesized
// placeholder, and an empty string only when there is nothing to say at all.
type Resolver interface {
	Resolve(ctx context.Context, lat, lon float64) string
}

// Placeholder builds the degraded-mode address embedding the coordinates at
// fixed precision. Storing this instead of nothing is a deliberate product
// trade-off: a row should never silently lack an address when cheap
// placeholder text is available.
func Placeholder(lat, lon float64) string {
	return fmt.Sprintf("Location at coordinates: %.6f, %.6f", lat, lon)
}

// ReverseGeocoder resolves through a primary lookup client and falls back
// to the coordinate placeholder.
type ReverseGeocoder struct {
	primary lookupClient
}

// lookupClient is the primary-path contract: a real address or "" when the
// service had nothing, errors only for unexpected conditions.
type lookupClient interface {
	Lookup(ctx context.Context, lat, lon float64) (string, error)
}

// NewReverseGeocoder wraps a primary lookup client.
func NewReverseGeocoder(primary lookupClient) *ReverseGeocoder {
	return &ReverseGeocoder{primary: primary}
}

// Resolve implements Resolver. The primary path is tried first; any miss or
// failure degrades to the placeholder so the caller always receives a
// non-empty string for real coordinates.
func (g *ReverseGeocoder) Resolve(ctx context.Context, lat, lon float64) string {
	addr, err := g.primary.Lookup(ctx, lat, lon)
	if err != nil {
		zap.L().Warn("primary geocoding failed",
			zap.Float64("lat", lat),
			zap.Float64("lon", lon),
			zap.Error(err),
		)
	}
	if addr != "" {
		return addr
	}
	return Placeholder(lat, lon)
}
