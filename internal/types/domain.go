package types

import (
	"time"
)

// Defaults applied when a flood request omits storm parameters. They match the
// values the web client has always assumed.
const (
	DefaultRainfallIntensity = 2.0   // inches/hour
	DefaultDurationHours     = 150.0 // hours
)

// RunStatus is the lifecycle state of a flood run.
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// IsTerminal reports whether no further transitions are possible.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed
}

// Location is a WGS84 coordinate.
type Location struct {
	Lat float64 `json:"latitude"`
	Lon float64 `json:"longitude"`
}

// BoundingBox is a geographic extent in decimal degrees.
type BoundingBox struct {
	West  float64 `json:"west" validate:"gte=-180,lte=180"`
	South float64 `json:"south" validate:"gte=-90,lte=90"`
	East  float64 `json:"east" validate:"gte=-180,lte=180,gtfield=West"`
	North float64 `json:"north" validate:"gte=-90,lte=90,gtfield=South"`
}

// Center returns the midpoint of the box.
func (b BoundingBox) Center() Location {
	return Location{Lat: (b.South + b.North) / 2, Lon: (b.West + b.East) / 2}
}

// FloodRequest is the input of one flood run. Either Address or BBox must be
// supplied; when both are present the explicit box wins and the address is
// only recorded.
type FloodRequest struct {
	Address           string       `json:"address,omitempty" validate:"required_without=BBox,max=300"`
	BBox              *BoundingBox `json:"bbox,omitempty"`
	RainfallIntensity float64      `json:"rainfall_intensity,omitempty" validate:"gte=0,lte=100"`
	DurationHours     float64      `json:"duration,omitempty" validate:"gte=0,lte=8760"`
	Async             bool         `json:"async,omitempty"`
}

// WithDefaults fills zero-valued storm parameters with the service defaults.
func (r FloodRequest) WithDefaults() FloodRequest {
	if r.RainfallIntensity == 0 {
		r.RainfallIntensity = DefaultRainfallIntensity
	}
	if r.DurationHours == 0 {
		r.DurationHours = DefaultDurationHours
	}
	return r
}

// Warnings flags input that is accepted but probably not what the caller
// meant.
func (r FloodRequest) Warnings() []string {
	var w []string
	if r.Address != "" && r.BBox != nil {
		w = append(w, "bbox supplied; address is recorded but not geocoded")
	}
	if r.DurationHours > 0 && r.RainfallIntensity == 0 {
		w = append(w, "rainfall_intensity not set; the default storm intensity applies")
	}
	return w
}

// PourPointInfo is the basin outlet reported to clients.
type PourPointInfo struct {
	Row          int     `json:"row"`
	Col          int     `json:"col"`
	Lon          float64 `json:"longitude"`
	Lat          float64 `json:"latitude"`
	Accumulation float64 `json:"accumulation_cells"`
}

// Artifact references one file produced by a run.
type Artifact struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
}

// FloodResult is the summary of a successful run.
type FloodResult struct {
	RunID             string        `json:"run_id"`
	PeakRunoffCFS     float64       `json:"peak_runoff_cfs"`
	MeanCFactor       float64       `json:"mean_c_factor"`
	WatershedAreaKm2  float64       `json:"watershed_area_km2"`
	FloodedAreaKm2    float64       `json:"flooded_area_km2"`
	FloodedVolumeM3   float64       `json:"flooded_volume_m3"`
	RunoffVolumeM3    float64       `json:"runoff_volume_m3"`
	Latitude          float64       `json:"latitude"`
	Longitude         float64       `json:"longitude"`
	BoundingBox       BoundingBox   `json:"bounding_box"`
	RainfallIntensity float64       `json:"rainfall_intensity"`
	DurationHours     float64       `json:"duration"`
	PourPoint         PourPointInfo `json:"pour_point"`
	Iterations        int           `json:"simulation_iterations"`
	Algorithm         string        `json:"simulation_algorithm"`
	Artifacts         []Artifact    `json:"files"`
}

// FloodRun is the persisted record of a run.
type FloodRun struct {
	ID           string       `json:"id"`
	Status       RunStatus    `json:"status"`
	Request      FloodRequest `json:"request"`
	Result       *FloodResult `json:"result,omitempty"`
	ErrorCode    ErrorCode    `json:"error_code,omitempty"`
	ErrorMessage string       `json:"error_message,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	StartedAt    *time.Time   `json:"started_at,omitempty"`
	FinishedAt   *time.Time   `json:"finished_at,omitempty"`
}
