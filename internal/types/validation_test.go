package types

import (
	"errors"
	"math"
	"testing"
)

func requireCode(t *testing.T, err error, want ErrorCode) {
	t.Helper()
	var appErr *AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *AppError, got %v", err)
	}
	if appErr.Code != want {
		t.Errorf("code = %q, want %q", appErr.Code, want)
	}
}

func TestValidateLocation(t *testing.T) {
	if err := ValidateLocation(23.81, 90.41); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	requireCode(t, ValidateLocation(91, 0), ErrCodeValidationInvalidLat)
	requireCode(t, ValidateLocation(math.NaN(), 0), ErrCodeValidationInvalidLat)
	requireCode(t, ValidateLocation(0, -181), ErrCodeValidationInvalidLon)
}

func TestBoundingBoxValidate(t *testing.T) {
	ok := BoundingBox{West: 90.3, South: 23.7, East: 90.4, North: 23.8}
	if err := ok.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	inverted := BoundingBox{West: 90.4, South: 23.7, East: 90.3, North: 23.8}
	requireCode(t, inverted.Validate(), ErrCodeValidationInvalidBBox)

	offGlobe := BoundingBox{West: 90.3, South: 23.7, East: 190.4, North: 23.8}
	requireCode(t, offGlobe.Validate(), ErrCodeValidationInvalidLon)
}

func TestBoundingBoxCenter(t *testing.T) {
	c := BoundingBox{West: 10, South: 20, East: 12, North: 24}.Center()
	if c.Lat != 22 || c.Lon != 11 {
		t.Errorf("Center() = %+v, want {22 11}", c)
	}
}

func TestFloodRequestDefaultsAndValidate(t *testing.T) {
	req := FloodRequest{Address: "Mirpur, Dhaka"}.WithDefaults()
	if req.RainfallIntensity != DefaultRainfallIntensity {
		t.Errorf("RainfallIntensity = %v, want %v", req.RainfallIntensity, DefaultRainfallIntensity)
	}
	if req.DurationHours != DefaultDurationHours {
		t.Errorf("DurationHours = %v, want %v", req.DurationHours, DefaultDurationHours)
	}
	if err := req.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	requireCode(t, FloodRequest{}.WithDefaults().Validate(), ErrCodeValidationMissingField)

	neg := FloodRequest{Address: "x", RainfallIntensity: -1, DurationHours: 1}
	requireCode(t, neg.Validate(), ErrCodeValidationInvalidRainfall)

	long := FloodRequest{Address: "x", RainfallIntensity: 1, DurationHours: MaxDurationHours + 1}
	requireCode(t, long.Validate(), ErrCodeValidationInvalidDuration)
}

func TestValidateArtifactName(t *testing.T) {
	for _, name := range []string{"flood_depth.asc", "pour_point.shp", "flood_depth.geojson"} {
		if err := ValidateArtifactName(name); err != nil {
			t.Errorf("ValidateArtifactName(%q) unexpected error: %v", name, err)
		}
	}
	for _, name := range []string{"", "..", "../secret", "a/b", ".hidden"} {
		requireCode(t, ValidateArtifactName(name), ErrCodeValidationInvalidArtifact)
	}
}

func TestRunStatusIsTerminal(t *testing.T) {
	if RunStatusQueued.IsTerminal() || RunStatusRunning.IsTerminal() {
		t.Error("queued/running must not be terminal")
	}
	if !RunStatusSucceeded.IsTerminal() || !RunStatusFailed.IsTerminal() {
		t.Error("succeeded/failed must be terminal")
	}
}

func TestClampPageSize(t *testing.T) {
	if ClampPageSize(0) != DefaultPageSize {
		t.Error("zero should map to default")
	}
	if ClampPageSize(1000) != MaxPageSize {
		t.Error("large values should clamp to max")
	}
	if ClampPageSize(7) != 7 {
		t.Error("in-range values should pass through")
	}
}

func TestFloodRequestWarnings(t *testing.T) {
	if w := (FloodRequest{Address: "Sylhet"}).Warnings(); len(w) != 0 {
		t.Errorf("plain address request: unexpected warnings %v", w)
	}

	both := FloodRequest{Address: "Sylhet", BBox: &BoundingBox{West: 91, South: 24, East: 92, North: 25}}
	if w := both.Warnings(); len(w) != 1 {
		t.Errorf("address and bbox: got %v, want one warning", w)
	}

	noRain := FloodRequest{Address: "Sylhet", DurationHours: 12}
	if w := noRain.Warnings(); len(w) != 1 {
		t.Errorf("duration without intensity: got %v, want one warning", w)
	}
}
