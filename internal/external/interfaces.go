package external

import (
	"context"

	"floodfactor/internal/types"
)

// Geocoder resolves a free-form place name to a WGS84 coordinate.
type Geocoder interface {
	// Geocode returns ErrGeocodeFailure when nothing matches.
	Geocode(ctx context.Context, address string) (types.Location, error)
}

// DEMSource downloads an elevation raster covering bbox into dst as an ESRI
// ASCII grid.
type DEMSource interface {
	FetchDEM(ctx context.Context, bbox types.BoundingBox, dst string) error
}

// Toolkit runs one hydrology tool inside a working directory.
type Toolkit interface {
	// Run executes step in dir. Every step input must exist beforehand and
	// the step output must exist afterwards, otherwise the error matches
	// ErrMissingInput.
	Run(ctx context.Context, dir string, step ToolStep) error
}
