package external

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"floodfactor/internal/types"
)

// ErrMissingInput is returned when a toolkit step is started without one of
// its inputs or finishes without writing its output.
var ErrMissingInput = types.NewAppError(types.ErrCodeToolkitMissingOutput, "expected toolkit file is missing", nil)

// ToolStep is one WhiteboxTools invocation. Inputs and Output are file names
// relative to the working directory.
type ToolStep struct {
	Tool   string
	Args   []ToolArg
	Inputs []string
	Output string
}

// ToolArg is a --name=value flag.
type ToolArg struct {
	Name  string
	Value string
}

// CommandLine renders the flags passed after the binary.
func (s ToolStep) CommandLine(dir string) []string {
	args := []string{"--run=" + s.Tool, "--wd=" + dir}
	for _, a := range s.Args {
		args = append(args, fmt.Sprintf("--%s=%s", a.Name, a.Value))
	}
	return args
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// BreachDepressionsStep removes sinks from dem by breaching, writing the
// hydrologically conditioned surface to output.
func BreachDepressionsStep(dem, output string) ToolStep {
	return ToolStep{
		Tool:   "BreachDepressions",
		Args:   []ToolArg{{"dem", dem}, {"output", output}},
		Inputs: []string{dem},
		Output: output,
	}
}

// D8PointerStep writes the D8 flow direction raster of dem.
func D8PointerStep(dem, output string) ToolStep {
	return ToolStep{
		Tool:   "D8Pointer",
		Args:   []ToolArg{{"dem", dem}, {"output", output}},
		Inputs: []string{dem},
		Output: output,
	}
}

// D8FlowAccumulationStep counts upstream cells (out_type=cells).
func D8FlowAccumulationStep(dem, output string) ToolStep {
	return ToolStep{
		Tool:   "D8FlowAccumulation",
		Args:   []ToolArg{{"input", dem}, {"output", output}, {"out_type", "cells"}},
		Inputs: []string{dem},
		Output: output,
	}
}

// ExtractStreamsStep marks cells whose accumulation reaches threshold.
func ExtractStreamsStep(flowAccum, output string, threshold float64) ToolStep {
	return ToolStep{
		Tool:   "ExtractStreams",
		Args:   []ToolArg{{"flow_accum", flowAccum}, {"output", output}, {"threshold", formatNumber(threshold)}},
		Inputs: []string{flowAccum},
		Output: output,
	}
}

// SnapPourPointsStep moves pour points to the highest accumulation cell
// within snapDist map units.
func SnapPourPointsStep(pourPoints, flowAccum, output string, snapDist float64) ToolStep {
	return ToolStep{
		Tool: "SnapPourPoints",
		Args: []ToolArg{
			{"pour_pts", pourPoints},
			{"flow_accum", flowAccum},
			{"output", output},
			{"snap_dist", formatNumber(snapDist)},
		},
		Inputs: []string{pourPoints, flowAccum},
		Output: output,
	}
}

// WatershedStep delineates the basin draining to the pour points.
func WatershedStep(d8Pointer, pourPoints, output string) ToolStep {
	return ToolStep{
		Tool:   "Watershed",
		Args:   []ToolArg{{"d8_pntr", d8Pointer}, {"pour_pts", pourPoints}, {"output", output}},
		Inputs: []string{d8Pointer, pourPoints},
		Output: output,
	}
}

// commandFunc runs a binary and returns its combined output.
type commandFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func execCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}

// WhiteboxRunner implements Toolkit by shelling out to the whitebox_tools
// binary.
type WhiteboxRunner struct {
	binary string
	run    commandFunc
	logger *slog.Logger
}

// NewWhiteboxRunner runs binary (a path or a name on PATH) for each step.
func NewWhiteboxRunner(binary string, logger *slog.Logger) *WhiteboxRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &WhiteboxRunner{binary: binary, run: execCommand, logger: logger}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

func missing(step ToolStep, role, name string) error {
	return ErrMissingInput.WithDetails(map[string]any{"tool": step.Tool, role: name})
}

// Run executes step with dir as the working directory. Every input must exist
// before the call and the output must exist after it, else ErrMissingInput.
func (w *WhiteboxRunner) Run(ctx context.Context, dir string, step ToolStep) error {
	for _, in := range step.Inputs {
		if !fileExists(filepath.Join(dir, in)) {
			return missing(step, "input", in)
		}
	}

	start := time.Now()
	out, err := w.run(ctx, w.binary, step.CommandLine(dir)...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s interrupted: %w", step.Tool, ctxErr)
		}
		w.logger.ErrorContext(ctx, "toolkit step failed",
			"tool", step.Tool,
			"output", tail(out, 2048),
			"error", err,
		)
		return types.NewAppErrorWithDetails(types.ErrCodeToolkitFailed,
			fmt.Sprintf("%s failed", step.Tool), err,
			map[string]any{"tool": step.Tool})
	}

	if !fileExists(filepath.Join(dir, step.Output)) {
		return missing(step, "output", step.Output)
	}

	w.logger.InfoContext(ctx, "toolkit step complete",
		"tool", step.Tool,
		"output", step.Output,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func tail(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		return s[len(s)-n:]
	}
	return s
}
