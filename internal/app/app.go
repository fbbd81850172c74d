// Package app assembles the flood run service from configuration. The API,
// the queue worker and the CLI share this wiring so every entry point runs
// the same pipeline against the same stores.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"floodfactor/internal/config"
	"floodfactor/internal/core"
	"floodfactor/internal/db"
	"floodfactor/internal/external"
	"floodfactor/internal/hydro"
	"floodfactor/internal/pipeline"
	"floodfactor/internal/queue"
	"floodfactor/internal/raster"
	"floodfactor/internal/telemetry"
	"floodfactor/internal/types"
	"floodfactor/internal/workspace"
)

// artifactPrefix is the S3 key prefix for published run artifacts.
const artifactPrefix = "runs"

// App is a fully wired flood run service.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Pipeline *pipeline.Pipeline
	Service  *pipeline.Service
	Repo     types.RunRepository

	// Metrics is nil unless ENABLE_METRICS is set.
	Metrics *telemetry.CloudWatchMetrics
	// Probes report on the run database, the land-cover raster and the
	// hydrology toolkit.
	Probes []core.HealthProbe
	// Closers release pooled resources in order.
	Closers []func(context.Context) error
}

// Options tweak the wiring for callers that do not want every backend.
type Options struct {
	// Repo overrides the repository chosen from DATABASE_URL.
	Repo types.RunRepository
	// Store overrides the artifact store chosen from ARTIFACT_BUCKET.
	Store workspace.Store
	// DisableQueue leaves asynchronous runs off even when a queue is set.
	DisableQueue bool
}

// Build wires the service described by cfg.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS SDK config: %w", err)
	}

	repo := opts.Repo
	if repo == nil {
		if repo, err = a.openRepository(ctx); err != nil {
			_ = a.Close(ctx)
			return nil, err
		}
	}
	a.Repo = repo

	store := opts.Store
	if store == nil {
		store = a.openStore(awsCfg)
	}

	deps, err := a.pipelineDeps(store)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	p, err := pipeline.New(pipeline.ConfigFrom(cfg), deps)
	if err != nil {
		_ = a.Close(ctx)
		return nil, fmt.Errorf("building pipeline: %w", err)
	}
	a.Pipeline = p

	svcOpts := []pipeline.ServiceOption{pipeline.WithRunTimeout(cfg.Pipeline.RunTimeout)}
	if cfg.AWS.RunQueueURL != "" && !opts.DisableQueue {
		sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
			if cfg.AWS.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			}
		})
		svcOpts = append(svcOpts, pipeline.WithPublisher(queue.NewRunProducer(sqsClient, cfg.AWS, logger)))
	}
	if cfg.Observability.EnableMetrics {
		cwClient := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
			if cfg.AWS.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			}
		})
		a.Metrics = telemetry.NewCloudWatchMetrics(cwClient, cfg.Observability.MetricNamespace, logger)
		svcOpts = append(svcOpts, pipeline.WithMetrics(a.Metrics))
	}
	a.Service = pipeline.NewService(p, repo, store, logger, svcOpts...)

	a.Probes = append(a.Probes,
		core.NewProbe("landcover", func(context.Context) error {
			_, err := os.Stat(cfg.Pipeline.LandcoverPath)
			return err
		}),
		core.NewProbe("toolkit", func(context.Context) error {
			_, err := exec.LookPath(cfg.External.WhiteboxBinary)
			return err
		}),
	)

	logger.Info("flood service wired",
		"algorithm", cfg.Simulation.Algorithm,
		"async", a.Service.AsyncEnabled(),
		"metrics", a.Metrics != nil,
		"artifact_bucket", cfg.AWS.ArtifactBucket,
	)
	return a, nil
}

// openRepository connects to PostgreSQL when DATABASE_URL is set and falls
// back to the in-memory repository otherwise.
func (a *App) openRepository(ctx context.Context) (types.RunRepository, error) {
	if !a.Config.Database.URL.IsSet() {
		a.Logger.Warn("DATABASE_URL not set; runs are kept in memory")
		return db.NewMemoryRunRepository(), nil
	}

	pool, err := db.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, err
	}
	a.Closers = append(a.Closers, func(context.Context) error {
		pool.Close()
		return nil
	})
	if err := db.Migrate(ctx, pool); err != nil {
		return nil, err
	}
	a.Probes = append(a.Probes, core.NewProbe("database", pool.Ping))
	return db.NewRunRepository(pool), nil
}

func (a *App) openStore(awsCfg aws.Config) workspace.Store {
	cfg := a.Config
	if cfg.AWS.ArtifactBucket == "" {
		return workspace.NewLocalStore(cfg.Pipeline.WorkspaceRoot)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			o.UsePathStyle = true
		}
	})
	return workspace.NewS3Store(client, cfg.AWS.ArtifactBucket, artifactPrefix)
}

func (a *App) pipelineDeps(store workspace.Store) (pipeline.Deps, error) {
	cfg := a.Config
	httpClient := &http.Client{Timeout: cfg.External.HTTPTimeout}

	landcover, err := pipeline.OpenLandcover(cfg.Pipeline.LandcoverPath, raster.CRS{Def: cfg.Pipeline.DefaultCRS})
	if err != nil {
		return pipeline.Deps{}, err
	}

	table := hydro.DefaultCFactorTable()
	if cfg.Pipeline.CFactorTablePath != "" {
		if table, err = hydro.LoadCFactorTable(cfg.Pipeline.CFactorTablePath); err != nil {
			return pipeline.Deps{}, err
		}
	}

	return pipeline.Deps{
		Geocoder: external.NewNominatimGeocoder(httpClient, cfg.External.UserAgent, external.NominatimConfig{
			BaseURL:       cfg.External.NominatimURL,
			CountrySuffix: cfg.External.GeocodeCountry,
			Logger:        a.Logger,
		}),
		DEM: external.NewOpenTopographyClient(httpClient, cfg.External.UserAgent, external.OpenTopographyConfig{
			BaseURL: cfg.External.OpenTopographyURL,
			APIKey:  cfg.External.OpenTopographyAPIKey.Unmask(),
			DEMType: cfg.External.DEMType,
			Logger:  a.Logger,
		}),
		Toolkit:   external.NewWhiteboxRunner(cfg.External.WhiteboxBinary, a.Logger),
		Landcover: landcover,
		Table:     table,
		Store:     store,
		Logger:    a.Logger,
	}, nil
}

// Close runs every closer and joins their errors.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for _, c := range a.Closers {
		if err := c(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
