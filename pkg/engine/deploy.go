package engine

import (
	"os"
	"path/filepath"

	"github.com/ConaryLabs/Conary-sub004/pkg/pathutil"
)

// deployFile writes content to the sanitized, root-joined destination for
// path and applies mode (§4.3.2 step 15). It creates parent directories
// as needed; ownership beyond mode bits is left to declarative hooks.
func (e *Engine) deployFile(path string, mode uint32, content []byte, target string, fileType string) error {
	dest, err := pathutil.SafeJoin(e.InstallRoot, path)
	if err != nil {
		return &PathTraversalError{Path: path, Err: err}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return &DeployFailedError{Path: path, Err: err}
	}

	switch fileType {
	case "symlink":
		_ = os.Remove(dest)
		if err := os.Symlink(target, dest); err != nil {
			return &DeployFailedError{Path: path, Err: err}
		}
	case "directory":
		if err := os.MkdirAll(dest, os.FileMode(mode)); err != nil {
			return &DeployFailedError{Path: path, Err: err}
		}
	default:
		if err := os.WriteFile(dest, content, os.FileMode(mode)); err != nil {
			return &DeployFailedError{Path: path, Err: err}
		}
		if mode != 0 {
			if err := os.Chmod(dest, os.FileMode(mode)); err != nil {
				return &DeployFailedError{Path: path, Err: err}
			}
		}
	}
	return nil
}

// removeFile deletes the deployed file under the sanitized, root-joined
// path, treating an already-missing file as success (§4.3.4 step 7).
func (e *Engine) removeFile(path string) error {
	dest, err := pathutil.SafeJoin(e.InstallRoot, path)
	if err != nil {
		return &PathTraversalError{Path: path, Err: err}
	}
	if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
		return &DeployFailedError{Path: path, Err: err}
	}
	return nil
}
