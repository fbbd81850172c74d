package types

import (
	"fmt"
	"math"
	"regexp"
)

// Validation constraint constants.
const (
	MinLat = -90.0
	MaxLat = 90.0
	MinLon = -180.0
	MaxLon = 180.0

	MaxRainfallIntensity = 100.0  // inches/hour
	MaxDurationHours     = 8760.0 // one year
)

var artifactNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,127}$`)

// ValidateLocation checks that a coordinate lies on the globe.
func ValidateLocation(lat, lon float64) error {
	if math.IsNaN(lat) || lat < MinLat || lat > MaxLat {
		return NewAppError(ErrCodeValidationInvalidLat, fmt.Sprintf("latitude %v outside [-90, 90]", lat), nil)
	}
	if math.IsNaN(lon) || lon < MinLon || lon > MaxLon {
		return NewAppError(ErrCodeValidationInvalidLon, fmt.Sprintf("longitude %v outside [-180, 180]", lon), nil)
	}
	return nil
}

// Validate checks the box is non-empty and on the globe.
func (b BoundingBox) Validate() error {
	if err := ValidateLocation(b.South, b.West); err != nil {
		return err
	}
	if err := ValidateLocation(b.North, b.East); err != nil {
		return err
	}
	if b.East <= b.West || b.North <= b.South {
		return NewAppError(ErrCodeValidationInvalidBBox, "bounding box must have east > west and north > south", nil)
	}
	return nil
}

// Validate checks a request after defaults have been applied.
func (r FloodRequest) Validate() error {
	if r.Address == "" && r.BBox == nil {
		return NewAppError(ErrCodeValidationMissingField, "either address or bbox is required", nil).
			WithDetails(map[string]any{"fields": []string{"address", "bbox"}})
	}
	if r.BBox != nil {
		if err := r.BBox.Validate(); err != nil {
			return err
		}
	}
	if math.IsNaN(r.RainfallIntensity) || r.RainfallIntensity < 0 || r.RainfallIntensity > MaxRainfallIntensity {
		return NewAppError(ErrCodeValidationInvalidRainfall,
			fmt.Sprintf("rainfall_intensity must be within [0, %v] inches/hour", MaxRainfallIntensity), nil)
	}
	if math.IsNaN(r.DurationHours) || r.DurationHours < 0 || r.DurationHours > MaxDurationHours {
		return NewAppError(ErrCodeValidationInvalidDuration,
			fmt.Sprintf("duration must be within [0, %v] hours", MaxDurationHours), nil)
	}
	return nil
}

// ValidateArtifactName rejects names that could escape a run's namespace.
func ValidateArtifactName(name string) error {
	if !artifactNamePattern.MatchString(name) || name == "." || name == ".." {
		return NewAppError(ErrCodeValidationInvalidArtifact, fmt.Sprintf("invalid artifact name %q", name), nil)
	}
	return nil
}
