// -----------------------------------------------------------------------
// Workspace Guard - Path resolution that cannot escape the workspace
// -----------------------------------------------------------------------

package container

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrOutOfWorkspace is returned when a path would resolve outside the
// workspace root. The check runs before any runtime operation touches
// the path.
var ErrOutOfWorkspace = errors.New("path escapes the workspace")

// ResolvePath joins a relative path onto the workspace root. Absolute
// paths are refused, and ".." traversal is refused after cleaning, so
// "a/../b" is fine but "../b" is not. An empty path resolves to the
// root itself.
func ResolvePath(root, rel string) (string, error) {
	if rel == "" {
		rel = "."
	}

	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: absolute path %q", ErrOutOfWorkspace, rel)
	}

	cleaned := filepath.Clean(rel)
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrOutOfWorkspace, rel)
	}

	return filepath.Join(root, cleaned), nil
}

// ValidatePath checks that a relative path stays inside a workspace
// without resolving it against a particular root. Callers use it to
// reject bad input before any container operation runs.
func ValidatePath(rel string) error {
	_, err := ResolvePath(".", rel)
	return err
}
