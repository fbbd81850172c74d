// Package workspace gives every flood run an isolated directory for its
// intermediate rasters and published artifacts, and persists those artifacts
// to a Store (local filesystem or S3).
package workspace

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"floodfactor/internal/types"
)

// Workspace is the directory namespace of a single run. Concurrent runs
// never share a Workspace.
type Workspace struct {
	runID string
	dir   string
}

// New creates root/<runID>. runID must be a UUID.
func New(root, runID string) (*Workspace, error) {
	if _, err := uuid.Parse(runID); err != nil {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidRequest, fmt.Sprintf("invalid run id %q", runID), err)
	}
	dir := filepath.Join(root, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalStorage, "failed to create workspace", err)
	}
	return &Workspace{runID: runID, dir: dir}, nil
}

func (w *Workspace) RunID() string { return w.runID }

func (w *Workspace) Dir() string { return w.dir }

// Path returns the absolute location of name inside the workspace. name is
// taken as a bare file name.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.dir, filepath.Base(name))
}

// Exists reports whether name is a regular, non-empty file in the workspace.
func (w *Workspace) Exists(name string) bool {
	info, err := os.Stat(w.Path(name))
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

// Files lists the regular files currently in the workspace, sorted.
func (w *Workspace) Files() ([]string, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, fmt.Errorf("listing workspace %s: %w", w.runID, err)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Remove deletes the workspace and everything in it.
func (w *Workspace) Remove() error {
	return os.RemoveAll(w.dir)
}

// ContentType returns the media type served for an artifact name.
func ContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".asc", ".prj":
		return "text/plain; charset=utf-8"
	case ".geojson":
		return "application/geo+json"
	case ".fgr":
		return "application/zstd"
	case ".shp", ".shx", ".dbf":
		return "application/octet-stream"
	}
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
