package workspace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"floodfactor/internal/types"
)

// Store persists run artifacts beyond the life of the workspace.
type Store interface {
	// PutFile publishes the file at path as artifact name of runID.
	PutFile(ctx context.Context, runID, name, path string) error
	// Open returns the artifact body. Unknown artifacts yield
	// ErrCodeNotFoundArtifact.
	Open(ctx context.Context, runID, name string) (io.ReadCloser, error)
}

func artifactNotFound(runID, name string, err error) error {
	return types.NewAppErrorWithDetails(types.ErrCodeNotFoundArtifact,
		fmt.Sprintf("artifact %q not found", name), err,
		map[string]any{"run_id": runID, "name": name})
}

// LocalStore keeps artifacts under root/<runID>/<name>. With the same root
// as the workspaces it publishes in place.
type LocalStore struct {
	root string
}

func NewLocalStore(root string) *LocalStore {
	return &LocalStore{root: root}
}

func (s *LocalStore) path(runID, name string) string {
	return filepath.Join(s.root, filepath.Base(runID), filepath.Base(name))
}

func (s *LocalStore) PutFile(ctx context.Context, runID, name, path string) error {
	if err := types.ValidateArtifactName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	dst := s.path(runID, name)
	srcAbs, err := filepath.Abs(path)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalStorage, "failed to resolve artifact path", err)
	}
	dstAbs, err := filepath.Abs(dst)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalStorage, "failed to resolve artifact path", err)
	}
	if srcAbs == dstAbs {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return types.NewAppError(types.ErrCodeInternalStorage, "failed to create artifact directory", err)
	}
	if err := copyFile(dst, path); err != nil {
		return types.NewAppError(types.ErrCodeInternalStorage, fmt.Sprintf("failed to store artifact %s", name), err)
	}
	return nil
}

func (s *LocalStore) Open(_ context.Context, runID, name string) (io.ReadCloser, error) {
	if err := types.ValidateArtifactName(name); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path(runID, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, artifactNotFound(runID, name, err)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalStorage, "failed to open artifact", err)
	}
	return f, nil
}

// copyFile writes src to a temporary sibling of dst and renames it into place.
func copyFile(dst, src string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".artifact-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
