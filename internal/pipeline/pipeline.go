// Package pipeline orchestrates one flood run end to end: locate the study
// area, fetch terrain, delineate the watershed with the hydrology toolkit,
// estimate runoff and simulate the resulting inundation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ctessum/geom"

	"floodfactor/internal/config"
	"floodfactor/internal/external"
	"floodfactor/internal/hydro"
	"floodfactor/internal/raster"
	"floodfactor/internal/types"
	"floodfactor/internal/vector"
	"floodfactor/internal/workspace"
)

// Workspace file names.
const (
	FileDEM            = "dem.asc"
	FileFilledDEM      = "filled_dem.asc"
	FileFlowDir        = "flow_dir.asc"
	FileFlowAcc        = "flow_acc.asc"
	FileStreams        = "streams.asc"
	FilePourPoint      = "pour_point.shp"
	FileSnappedPoint   = "snapped_pour_point.shp"
	FileWatershed      = "watershed.asc"
	FileCFactor        = "c_factor.asc"
	FileCFactorBinary  = "c_factor.fgr"
	FileDepth          = "flood_depth.asc"
	FileDepthBinary    = "flood_depth.fgr"
	FileInundationMask = "inundation_mask.asc"
	FileFloodExtent    = "flood_extent.geojson"
)

// publishedFiles are the artifacts listed in a run result, in order.
var publishedFiles = []string{
	FileFloodExtent,
	FileDepth,
	FileDepthBinary,
	FileInundationMask,
	FileCFactor,
	FileCFactorBinary,
	FileWatershed,
	FileStreams,
	FilePourPoint,
}

// sidecars lists the companion files published alongside an artifact.
func sidecars(name string) []string {
	base := strings.TrimSuffix(name, ".shp")
	if base != name {
		return []string{base + ".shx", base + ".dbf", base + ".prj"}
	}
	if strings.HasSuffix(name, ".asc") {
		return []string{raster.PrjPath(name)}
	}
	return nil
}

// Config is the subset of the service configuration the pipeline reads.
type Config struct {
	WorkspaceRoot   string
	StreamThreshold float64
	SnapDistance    float64
	CellArea        float64
	DefaultCRS      raster.CRS
	BBoxHalfMeters  float64
	Algorithm       hydro.Algorithm
	Workers         int
	MaxIterations   int
	// ArtifactBaseURL prefixes artifact links: <base>/<runID>/artifacts/<name>.
	ArtifactBaseURL string
	// KeepWorkspace leaves intermediate files on disk after the run.
	KeepWorkspace bool
}

// ConfigFrom extracts the pipeline settings from the service configuration.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		WorkspaceRoot:   cfg.Pipeline.WorkspaceRoot,
		StreamThreshold: cfg.Pipeline.StreamThreshold,
		SnapDistance:    cfg.Pipeline.SnapDistance,
		CellArea:        cfg.Pipeline.CellArea(),
		DefaultCRS:      raster.CRS{Def: cfg.Pipeline.DefaultCRS},
		BBoxHalfMeters:  cfg.Pipeline.BBoxHalfMeters,
		Algorithm:       hydro.Algorithm(cfg.Simulation.Algorithm),
		Workers:         cfg.Simulation.Workers,
		MaxIterations:   cfg.Simulation.MaxIterations,
		ArtifactBaseURL: strings.TrimRight(cfg.Server.APIExternalURL, "/") + "/v1/floods",
		// The local store serves artifacts straight from the workspace.
		KeepWorkspace: cfg.AWS.ArtifactBucket == "",
	}
}

func (c Config) withDefaults() Config {
	if c.StreamThreshold == 0 {
		c.StreamThreshold = hydro.DefaultStreamThreshold
	}
	if c.CellArea == 0 {
		c.CellArea = hydro.DefaultCellArea
	}
	if c.BBoxHalfMeters == 0 {
		c.BBoxHalfMeters = DefaultBBoxHalfMeters
	}
	if c.Algorithm == "" {
		c.Algorithm = hydro.AlgorithmUnitStep
	}
	if c.MaxIterations == 0 {
		c.MaxIterations = hydro.DefaultMaxIterations
	}
	if c.WorkspaceRoot == "" {
		c.WorkspaceRoot = os.TempDir()
	}
	return c
}

// Deps are the collaborators of a Pipeline.
type Deps struct {
	Geocoder  external.Geocoder
	DEM       external.DEMSource
	Toolkit   external.Toolkit
	Landcover raster.WindowReader
	Table     hydro.CFactorTable
	Store     workspace.Store
	Logger    *slog.Logger
}

// Pipeline runs flood simulations. It is safe for concurrent use; every run
// works in its own workspace.
type Pipeline struct {
	cfg  Config
	deps Deps
}

// New validates the collaborators and returns a Pipeline.
func New(cfg Config, deps Deps) (*Pipeline, error) {
	if deps.Geocoder == nil || deps.DEM == nil || deps.Toolkit == nil || deps.Landcover == nil || deps.Store == nil {
		return nil, errors.New("pipeline: geocoder, DEM source, toolkit, landcover and store are required")
	}
	if deps.Table == nil {
		deps.Table = hydro.DefaultCFactorTable()
	}
	if err := deps.Table.Validate(); err != nil {
		return nil, err
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Pipeline{cfg: cfg.withDefaults(), deps: deps}, nil
}

// OpenLandcover opens the land-cover ASCII grid at path. A raster without a
// .prj sidecar is assumed to use defaultCRS.
func OpenLandcover(path string, defaultCRS raster.CRS) (*raster.ASCIIGridFile, error) {
	lc, err := raster.OpenASCIIGrid(path)
	if err != nil {
		return nil, fmt.Errorf("opening land cover %s: %w", path, err)
	}
	if lc.Meta().CRS.IsZero() {
		lc = lc.WithCRS(defaultCRS)
	}
	return lc, nil
}

// run carries the state of one execution through the stages.
type run struct {
	id     string
	req    types.FloodRequest
	ws     *workspace.Workspace
	logger *slog.Logger

	loc  types.Location
	bbox types.BoundingBox
	crs  raster.CRS

	pour      hydro.PourPoint
	watershed *raster.Grid
	areaM2    float64
	cfactor   *hydro.CFactorResult
	peakCFS   float64
	volumeM3  float64
	flood     *hydro.FloodResult
	metrics   hydro.Metrics
	artifacts []types.Artifact
}

// Run executes the full chain for req inside a workspace named runID and
// returns the rounded result. Nothing is returned on failure; the error is
// an *types.AppError whenever the failure has a known cause.
func (p *Pipeline) Run(ctx context.Context, runID string, req types.FloodRequest) (*types.FloodResult, error) {
	req = req.WithDefaults()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ws, err := workspace.New(p.cfg.WorkspaceRoot, runID)
	if err != nil {
		return nil, err
	}
	if !p.cfg.KeepWorkspace {
		defer func() {
			if rmErr := ws.Remove(); rmErr != nil {
				p.deps.Logger.Warn("failed to remove workspace", "run_id", runID, "error", rmErr)
			}
		}()
	}

	ctx = types.WithRunID(ctx, runID)
	r := &run{
		id:     runID,
		req:    req,
		ws:     ws,
		logger: p.deps.Logger.With("run_id", runID),
	}

	stages := []struct {
		name string
		fn   func(context.Context, *run) error
	}{
		{"locate", p.locate},
		{"terrain", p.terrain},
		{"pour_point", p.pourPoint},
		{"watershed", p.delineate},
		{"runoff", p.runoff},
		{"simulate", p.simulate},
		{"publish", p.publish},
	}
	for _, s := range stages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := time.Now()
		if err := s.fn(ctx, r); err != nil {
			r.logger.WarnContext(ctx, "stage failed", "stage", s.name, "error", err)
			return nil, err
		}
		r.logger.InfoContext(ctx, "stage complete", "stage", s.name, "duration_ms", time.Since(start).Milliseconds())
	}

	return p.result(r), nil
}

// locate resolves the study area. An explicit box wins over the address.
func (p *Pipeline) locate(ctx context.Context, r *run) error {
	if r.req.BBox != nil {
		r.bbox = *r.req.BBox
		r.loc = r.bbox.Center()
		return nil
	}
	loc, err := p.deps.Geocoder.Geocode(ctx, r.req.Address)
	if err != nil {
		return err
	}
	if err := types.ValidateLocation(loc.Lat, loc.Lon); err != nil {
		return err
	}
	r.loc = loc
	r.bbox = BoundingBoxAround(loc, p.cfg.BBoxHalfMeters)
	r.logger.InfoContext(ctx, "geocoded address", "lat", loc.Lat, "lon", loc.Lon)
	return nil
}

// terrain downloads the DEM and derives the conditioned surface, flow
// directions and flow accumulation.
func (p *Pipeline) terrain(ctx context.Context, r *run) error {
	if err := p.deps.DEM.FetchDEM(ctx, r.bbox, r.ws.Path(FileDEM)); err != nil {
		return err
	}
	dem, err := raster.OpenASCIIGrid(r.ws.Path(FileDEM))
	if err != nil {
		return err
	}
	r.crs = dem.Meta().CRS.OrDefault(p.cfg.DefaultCRS)

	return p.runSteps(ctx, r,
		external.BreachDepressionsStep(FileDEM, FileFilledDEM),
		external.D8PointerStep(FileFilledDEM, FileFlowDir),
		external.D8FlowAccumulationStep(FileFilledDEM, FileFlowAcc),
	)
}

func (p *Pipeline) pourPoint(ctx context.Context, r *run) error {
	acc, err := p.readGrid(r, FileFlowAcc)
	if err != nil {
		return err
	}
	pp, err := hydro.LocatePourPoint(acc, p.cfg.StreamThreshold)
	if err != nil {
		return err
	}
	r.pour = pp
	r.logger.InfoContext(ctx, "pour point located",
		"row", pp.Row, "col", pp.Col, "lon", pp.Lon, "lat", pp.Lat, "accumulation", pp.Accumulation)

	if err := p.runSteps(ctx, r, external.ExtractStreamsStep(FileFlowAcc, FileStreams, p.cfg.StreamThreshold)); err != nil {
		return err
	}
	if err := vector.WritePourPoint(r.ws.Path(FilePourPoint), geom.Point{X: pp.Lon, Y: pp.Lat}, r.crs); err != nil {
		return types.NewAppError(types.ErrCodeInternalStorage, "failed to write pour point", err)
	}
	return p.runSteps(ctx, r, external.SnapPourPointsStep(FilePourPoint, FileFlowAcc, FileSnappedPoint, p.cfg.SnapDistance))
}

func (p *Pipeline) delineate(ctx context.Context, r *run) error {
	if err := p.runSteps(ctx, r, external.WatershedStep(FileFlowDir, FileSnappedPoint, FileWatershed)); err != nil {
		return err
	}
	ws, err := p.readGrid(r, FileWatershed)
	if err != nil {
		return err
	}
	r.watershed = ws
	r.areaM2 = hydro.WatershedArea(ws, p.cfg.CellArea)
	if r.areaM2 == 0 {
		return hydro.ErrNumericDegeneracy.WithDetails(map[string]any{"reason": "watershed is empty"})
	}
	r.logger.InfoContext(ctx, "watershed delineated", "area_m2", r.areaM2)
	return nil
}

func (p *Pipeline) runoff(ctx context.Context, r *run) error {
	cf, err := hydro.MapRunoffCoefficients(r.watershed, p.deps.Landcover, p.deps.Table)
	if err != nil {
		return err
	}
	r.cfactor = cf
	if err := p.writeGrid(r, FileCFactor, FileCFactorBinary, cf.Grid); err != nil {
		return err
	}

	r.peakCFS = hydro.PeakRunoff(r.areaM2, r.req.RainfallIntensity, cf.Mean)
	r.volumeM3 = hydro.RunoffVolume(r.peakCFS, r.req.DurationHours)
	r.logger.InfoContext(ctx, "runoff estimated",
		"mean_c", cf.Mean, "filled_cells", cf.FilledCells, "peak_cfs", r.peakCFS, "volume_m3", r.volumeM3)
	return nil
}

// simulate floods the conditioned DEM, the same surface the watershed was
// delineated on.
func (p *Pipeline) simulate(ctx context.Context, r *run) error {
	dem, err := p.readGrid(r, FileFilledDEM)
	if err != nil {
		return err
	}
	res, err := hydro.Simulate(p.cfg.Algorithm, dem, r.volumeM3, hydro.SimulationOptions{
		CellArea:      p.cfg.CellArea,
		MaxIterations: p.cfg.MaxIterations,
		Workers:       p.cfg.Workers,
	})
	if err != nil {
		return err
	}
	r.flood = res
	r.metrics = hydro.Aggregate(res.Depth, res.Mask, p.cfg.CellArea)

	if err := p.writeGrid(r, FileDepth, FileDepthBinary, res.Depth); err != nil {
		return err
	}
	if err := raster.WriteASCIIGrid(r.ws.Path(FileInundationMask), res.Mask); err != nil {
		return types.NewAppError(types.ErrCodeInternalStorage, "failed to write inundation mask", err)
	}

	fc, err := vector.FloodExtent(res.Depth, &geom.Point{X: r.pour.Lon, Y: r.pour.Lat})
	if err != nil {
		return err
	}
	body, err := fc.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(r.ws.Path(FileFloodExtent), body, 0o644); err != nil {
		return types.NewAppError(types.ErrCodeInternalStorage, "failed to write flood extent", err)
	}

	r.logger.InfoContext(ctx, "flood simulated",
		"algorithm", res.Algorithm, "iterations", res.Iterations,
		"flooded_cells", r.metrics.FloodedCells, "max_depth_m", r.metrics.MaxDepthM)
	return nil
}

// publish copies the artifacts to the store and records their links.
func (p *Pipeline) publish(ctx context.Context, r *run) error {
	for _, name := range publishedFiles {
		if !r.ws.Exists(name) {
			continue
		}
		for _, f := range append([]string{name}, sidecars(name)...) {
			if !r.ws.Exists(f) {
				continue
			}
			if err := p.deps.Store.PutFile(ctx, r.id, f, r.ws.Path(f)); err != nil {
				return err
			}
		}
		r.artifacts = append(r.artifacts, types.Artifact{
			Name:        name,
			URL:         fmt.Sprintf("%s/%s/artifacts/%s", p.cfg.ArtifactBaseURL, r.id, name),
			ContentType: workspace.ContentType(name),
		})
	}
	return nil
}

func (p *Pipeline) result(r *run) *types.FloodResult {
	return &types.FloodResult{
		RunID:             r.id,
		PeakRunoffCFS:     round2(r.peakCFS),
		MeanCFactor:       round2(r.cfactor.Mean),
		WatershedAreaKm2:  round2(r.areaM2 / 1e6),
		FloodedAreaKm2:    round2(r.metrics.FloodedAreaKm2),
		FloodedVolumeM3:   round2(r.metrics.FloodedVolumeM3),
		RunoffVolumeM3:    round2(r.volumeM3),
		Latitude:          round6(r.loc.Lat),
		Longitude:         round6(r.loc.Lon),
		BoundingBox:       roundBBox(r.bbox),
		RainfallIntensity: r.req.RainfallIntensity,
		DurationHours:     r.req.DurationHours,
		PourPoint: types.PourPointInfo{
			Row:          r.pour.Row,
			Col:          r.pour.Col,
			Lon:          round6(r.pour.Lon),
			Lat:          round6(r.pour.Lat),
			Accumulation: r.pour.Accumulation,
		},
		Iterations: r.flood.Iterations,
		Algorithm:  string(r.flood.Algorithm),
		Artifacts:  r.artifacts,
	}
}

func (p *Pipeline) runSteps(ctx context.Context, r *run, steps ...external.ToolStep) error {
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.deps.Toolkit.Run(ctx, r.ws.Dir(), step); err != nil {
			return err
		}
		r.logger.DebugContext(ctx, "toolkit step complete", "tool", step.Tool, "output", step.Output)
	}
	return nil
}

// readGrid loads a workspace raster. Toolkit outputs without a .prj inherit
// the CRS of the downloaded DEM.
func (p *Pipeline) readGrid(r *run, name string) (*raster.Grid, error) {
	g, err := raster.ReadASCIIGrid(r.ws.Path(name))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	g.CRS = g.CRS.OrDefault(r.crs)
	return g, nil
}

func (p *Pipeline) writeGrid(r *run, ascName, binName string, g *raster.Grid) error {
	if err := raster.WriteASCIIGrid(r.ws.Path(ascName), g); err != nil {
		return types.NewAppError(types.ErrCodeInternalStorage, "failed to write "+ascName, err)
	}
	f, err := os.Create(r.ws.Path(binName))
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalStorage, "failed to create "+binName, err)
	}
	if err := raster.WriteBinary(f, g); err != nil {
		f.Close()
		return types.NewAppError(types.ErrCodeInternalStorage, "failed to encode "+binName, err)
	}
	if err := f.Close(); err != nil {
		return types.NewAppError(types.ErrCodeInternalStorage, "failed to write "+binName, err)
	}
	return nil
}
