// Package hydro implements the hydrologic-response and flood-depth core of a
// flood run: pour-point location, runoff coefficients, rational-method peak
// runoff, level-pool flood filling and the final inundation metrics.
//
// Every function here is pure with respect to its inputs. Input grids are
// never mutated; each stage allocates its own output.
package hydro

import "floodfactor/internal/types"

// Sentinel errors. They are *types.AppError values so callers can both match
// them with errors.Is and report their code directly.
var (
	ErrChannelNotFound = types.NewAppError(types.ErrCodeChannelNotFound,
		"flow accumulation never reaches the stream threshold; no watershed exists at this location", nil)
	ErrCRSMismatch = types.NewAppError(types.ErrCodeCRSMismatch,
		"watershed and land-cover rasters use different coordinate reference systems", nil)
	ErrNumericDegeneracy = types.NewAppError(types.ErrCodeSimulationDegenerate,
		"computation has no defined cells to work with", nil)
	ErrIterationLimit = types.NewAppError(types.ErrCodeSimulationIterationLimit,
		"flood simulation exceeded its iteration limit", nil)
)
