// -----------------------------------------------------------------------
// Container Interface - Isolated execution workspace for plan execution
// -----------------------------------------------------------------------

package interfaces

import "context"

// ExecResult is the outcome of a command run inside a container
type ExecResult struct {
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout,omitempty"`
	Stderr   string `json:"stderr,omitempty"`
}

// WorkspaceEntry describes one entry of a workspace directory listing
type WorkspaceEntry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size"`
}

// CommitRequest carries the fields for committing workspace changes and
// pushing them to a branch
type CommitRequest struct {
	Branch      string `json:"branch"`
	Message     string `json:"message"`
	RemoteURL   string `json:"remote_url,omitempty"`
	AuthorName  string `json:"author_name,omitempty"`
	AuthorEmail string `json:"author_email,omitempty"`
}

// ContainerService creates isolated workspaces for task execution
type ContainerService interface {
	// Create provisions a workspace container for a task
	Create(ctx context.Context, taskID string) (Container, error)
}

// Container is one isolated workspace. All paths are relative to the
// workspace root; paths that resolve outside it are rejected before any
// runtime operation happens.
type Container interface {
	// ID returns the container identifier
	ID() string

	// Exec runs a command inside the workspace
	Exec(ctx context.Context, name string, args ...string) (*ExecResult, error)

	// ReadFile returns a workspace file's contents
	ReadFile(ctx context.Context, path string) ([]byte, error)

	// WriteFile creates or replaces a workspace file
	WriteFile(ctx context.Context, path string, content []byte) error

	// MakeDir creates a workspace directory and its parents
	MakeDir(ctx context.Context, path string) error

	// DirExists reports whether a workspace directory exists
	DirExists(ctx context.Context, path string) (bool, error)

	// Move renames a workspace file or directory
	Move(ctx context.Context, src, dst string) error

	// Copy duplicates a workspace file
	Copy(ctx context.Context, src, dst string) error

	// Delete removes a workspace file or directory
	Delete(ctx context.Context, path string) error

	// List returns the entries of a workspace directory
	List(ctx context.Context, path string) ([]WorkspaceEntry, error)

	// CommitAndPush commits all workspace changes and pushes the branch
	CommitAndPush(ctx context.Context, req *CommitRequest) error

	// Cleanup releases the container and its workspace
	Cleanup(ctx context.Context) error
}
