// Package config defines the configuration structure for the FloodFactor
// services. Configuration is loaded once at process start and is immutable
// thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// Any missing required value or invalid format fails startup.
package config

import (
	"time"

	"floodfactor/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type used
// throughout configuration to prevent accidental logging of sensitive values.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Sub-components receive only
// the section they need.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"OTEL_SERVICE_NAME" default:"floodfactor"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	IsTestMode  bool   `envconfig:"IS_TEST_MODE" default:"false"`

	Server        ServerConfig
	Database      DatabaseConfig
	AWS           AWSConfig
	Pipeline      PipelineConfig
	Simulation    SimulationConfig
	External      ExternalConfig
	Observability ObservabilityConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP server and public URL configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// Base URL used to build artifact links (no trailing slash).
	APIExternalURL     string        `envconfig:"API_EXTERNAL_URL" validate:"required,url"`
	CorsAllowedOrigins []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	RequestTimeout     time.Duration `envconfig:"REQUEST_TIMEOUT" default:"15m"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
// An empty URL selects the in-memory run repository.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"omitempty,url"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// Empty bucket keeps artifacts on the local workspace only.
	ArtifactBucket string `envconfig:"ARTIFACT_BUCKET"`
	// Empty queue URL disables asynchronous runs.
	RunQueueURL string `envconfig:"SQS_FLOOD_RUNS" validate:"omitempty,url"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// PipelineConfig holds the hydrologic pipeline inputs and thresholds.
type PipelineConfig struct {
	WorkspaceRoot    string        `envconfig:"WORKSPACE_ROOT" default:"/tmp/floodfactor"`
	LandcoverPath    string        `envconfig:"LANDCOVER_PATH" validate:"required"`
	CFactorTablePath string        `envconfig:"CFACTOR_TABLE_PATH"`
	StreamThreshold  float64       `envconfig:"STREAM_THRESHOLD" default:"3000" validate:"gt=0"`
	SnapDistance     float64       `envconfig:"SNAP_DISTANCE" default:"10" validate:"gte=0"`
	CellSizeM        float64       `envconfig:"CELL_SIZE_M" default:"30" validate:"gt=0"`
	DefaultCRS       string        `envconfig:"DEFAULT_CRS" default:"+proj=longlat +ellps=WGS84 +datum=WGS84 +no_defs"`
	BBoxHalfMeters   float64       `envconfig:"BBOX_HALF_METERS" default:"5000" validate:"gt=0"`
	RunTimeout       time.Duration `envconfig:"RUN_TIMEOUT" default:"30m"`
}

// CellArea returns the square cell area in m².
func (p PipelineConfig) CellArea() float64 {
	return p.CellSizeM * p.CellSizeM
}

// SimulationConfig selects and bounds the flood-depth simulator.
type SimulationConfig struct {
	Algorithm     string `envconfig:"FLOOD_ALGORITHM" default:"unit" validate:"oneof=unit queue"`
	Workers       int    `envconfig:"FLOOD_WORKERS" default:"4" validate:"gte=1,lte=64"`
	MaxIterations int    `envconfig:"FLOOD_MAX_ITERATIONS" default:"1000000" validate:"gt=0"`
}

// ExternalConfig holds the upstream collaborators: geocoder, DEM source and
// the hydrology toolkit binary.
type ExternalConfig struct {
	NominatimURL         string        `envconfig:"NOMINATIM_URL" default:"https://nominatim.openstreetmap.org" validate:"url"`
	GeocodeCountry       string        `envconfig:"GEOCODE_COUNTRY_SUFFIX" default:"Bangladesh"`
	UserAgent            string        `envconfig:"HTTP_USER_AGENT" default:"FloodFactor/1.0"`
	OpenTopographyURL    string        `envconfig:"OPENTOPOGRAPHY_URL" default:"https://portal.opentopography.org" validate:"url"`
	OpenTopographyAPIKey SecretString  `envconfig:"OPENTOPOGRAPHY_API_KEY" validate:"required"`
	DEMType              string        `envconfig:"DEM_TYPE" default:"SRTMGL1"`
	WhiteboxBinary       string        `envconfig:"WHITEBOX_BINARY" default:"whitebox_tools"`
	HTTPTimeout          time.Duration `envconfig:"HTTP_TIMEOUT" default:"60s"`
}

// ObservabilityConfig holds telemetry and monitoring settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"FloodFactor"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"false"`
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrSSMResolution indicates a failure when fetching secrets from AWS SSM.
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
