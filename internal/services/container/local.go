// -----------------------------------------------------------------------
// Local Container - Workspace runtime backed by os/exec and the git CLI
// -----------------------------------------------------------------------

package container

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/faber/internal/common"
	"github.com/ternarybob/faber/internal/interfaces"
)

// ErrNoChanges is returned by CommitAndPush when the workspace has
// nothing staged. Callers treat it as a failed execution rather than
// pushing an empty branch.
var ErrNoChanges = errors.New("no changes to commit")

// Service provisions per-task workspaces under the configured parent
// directory. The "local" runtime runs plan steps directly on the host,
// which is intended for development rather than untrusted code.
type Service struct {
	cfg          *common.ContainerConfig
	auditService interfaces.AuditService
	logger       arbor.ILogger
}

// Ensure interface compliance
var _ interfaces.ContainerService = (*Service)(nil)

// NewService validates the runtime selection and returns the factory
func NewService(cfg *common.ContainerConfig, auditService interfaces.AuditService, logger arbor.ILogger) (*Service, error) {
	if logger == nil {
		logger = common.GetLogger()
	}
	if cfg.Runtime != "" && cfg.Runtime != "local" {
		return nil, fmt.Errorf("unsupported container runtime: %s", cfg.Runtime)
	}
	if cfg.WorkspaceRoot == "" {
		return nil, fmt.Errorf("workspace root is required")
	}

	return &Service{
		cfg:          cfg,
		auditService: auditService,
		logger:       logger,
	}, nil
}

// Create provisions an empty workspace directory for a task
func (s *Service) Create(ctx context.Context, taskID string) (interfaces.Container, error) {
	start := time.Now()

	id := workspaceID(taskID)
	root := filepath.Join(s.cfg.WorkspaceRoot, id)

	err := os.MkdirAll(root, 0o755)
	if s.auditService != nil {
		s.auditService.LogContainerOperation(ctx, id, "create", time.Since(start), err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace %s: %w", root, err)
	}

	s.logger.Debug().
		Str("container_id", id).
		Str("task_id", taskID).
		Str("path", root).
		Msg("Workspace created")

	return &localContainer{
		id:           id,
		root:         root,
		keep:         s.cfg.KeepWorkspaces,
		auditService: s.auditService,
		logger:       s.logger,
	}, nil
}

var unsafeIDChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// workspaceID derives a filesystem-safe directory name from the task ID
func workspaceID(taskID string) string {
	base := strings.Trim(unsafeIDChars.ReplaceAllString(taskID, "-"), "-")
	if base == "" {
		base = "task"
	}
	return fmt.Sprintf("%s-%s", base, uuid.New().String()[:8])
}

// localContainer is one workspace directory on the host
type localContainer struct {
	id           string
	root         string
	keep         bool
	auditService interfaces.AuditService
	logger       arbor.ILogger
}

// Ensure interface compliance
var _ interfaces.Container = (*localContainer)(nil)

// ID returns the container identifier
func (c *localContainer) ID() string {
	return c.id
}

// Exec runs a command with the workspace as its working directory.
// A non-zero exit code is reported through the result, not as an error.
func (c *localContainer) Exec(ctx context.Context, name string, args ...string) (*interfaces.ExecResult, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = c.root

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	duration := time.Since(start)

	result := &interfaces.ExecResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		result.ExitCode = 0
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
		err = nil
	default:
		err = fmt.Errorf("failed to run %s: %w", name, err)
	}

	if c.auditService != nil {
		c.auditService.LogContainerOperation(ctx, c.id, fmt.Sprintf("exec %s", name), duration, err)
	}
	if err != nil {
		return nil, err
	}

	c.logger.Debug().
		Str("container_id", c.id).
		Str("command", name).
		Int("exit_code", result.ExitCode).
		Dur("duration", duration).
		Msg("Command finished")

	return result, nil
}

// ReadFile returns a workspace file's contents
func (c *localContainer) ReadFile(ctx context.Context, path string) ([]byte, error) {
	full, err := ResolvePath(c.root, path)
	if err != nil {
		c.auditFile(ctx, "read", path, err)
		return nil, err
	}

	data, err := os.ReadFile(full)
	c.auditFile(ctx, "read", path, err)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

// WriteFile creates or replaces a workspace file, creating parent
// directories as needed
func (c *localContainer) WriteFile(ctx context.Context, path string, content []byte) error {
	full, err := ResolvePath(c.root, path)
	if err != nil {
		c.auditFile(ctx, "write", path, err)
		return err
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		c.auditFile(ctx, "write", path, err)
		return fmt.Errorf("failed to create parent directory for %s: %w", path, err)
	}

	err = os.WriteFile(full, content, 0o644)
	c.auditFile(ctx, "write", path, err)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// MakeDir creates a workspace directory and its parents
func (c *localContainer) MakeDir(ctx context.Context, path string) error {
	full, err := ResolvePath(c.root, path)
	if err != nil {
		c.auditFile(ctx, "mkdir", path, err)
		return err
	}

	err = os.MkdirAll(full, 0o755)
	c.auditFile(ctx, "mkdir", path, err)
	if err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}

// DirExists reports whether a workspace directory exists
func (c *localContainer) DirExists(ctx context.Context, path string) (bool, error) {
	full, err := ResolvePath(c.root, path)
	if err != nil {
		return false, err
	}

	info, err := os.Stat(full)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return info.IsDir(), nil
}

// Move renames a workspace file or directory
func (c *localContainer) Move(ctx context.Context, src, dst string) error {
	fullSrc, err := ResolvePath(c.root, src)
	if err != nil {
		c.auditFile(ctx, "move", src, err)
		return err
	}
	fullDst, err := ResolvePath(c.root, dst)
	if err != nil {
		c.auditFile(ctx, "move", dst, err)
		return err
	}

	if err := os.MkdirAll(filepath.Dir(fullDst), 0o755); err != nil {
		c.auditFile(ctx, "move", dst, err)
		return fmt.Errorf("failed to create parent directory for %s: %w", dst, err)
	}

	err = os.Rename(fullSrc, fullDst)
	c.auditFile(ctx, "move", src, err)
	if err != nil {
		return fmt.Errorf("failed to move %s to %s: %w", src, dst, err)
	}
	return nil
}

// Copy duplicates a workspace file
func (c *localContainer) Copy(ctx context.Context, src, dst string) error {
	fullSrc, err := ResolvePath(c.root, src)
	if err != nil {
		c.auditFile(ctx, "copy", src, err)
		return err
	}
	fullDst, err := ResolvePath(c.root, dst)
	if err != nil {
		c.auditFile(ctx, "copy", dst, err)
		return err
	}

	info, err := os.Stat(fullSrc)
	if err != nil {
		c.auditFile(ctx, "copy", src, err)
		return fmt.Errorf("failed to stat %s: %w", src, err)
	}
	if info.IsDir() {
		err = fmt.Errorf("copy source %s is a directory", src)
		c.auditFile(ctx, "copy", src, err)
		return err
	}

	data, err := os.ReadFile(fullSrc)
	if err != nil {
		c.auditFile(ctx, "copy", src, err)
		return fmt.Errorf("failed to read %s: %w", src, err)
	}

	if err := os.MkdirAll(filepath.Dir(fullDst), 0o755); err != nil {
		c.auditFile(ctx, "copy", dst, err)
		return fmt.Errorf("failed to create parent directory for %s: %w", dst, err)
	}

	err = os.WriteFile(fullDst, data, info.Mode().Perm())
	c.auditFile(ctx, "copy", dst, err)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", dst, err)
	}
	return nil
}

// Delete removes a workspace file or directory
func (c *localContainer) Delete(ctx context.Context, path string) error {
	full, err := ResolvePath(c.root, path)
	if err != nil {
		c.auditFile(ctx, "delete", path, err)
		return err
	}

	err = os.RemoveAll(full)
	c.auditFile(ctx, "delete", path, err)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}
	return nil
}

// List returns the entries of a workspace directory
func (c *localContainer) List(ctx context.Context, path string) ([]interfaces.WorkspaceEntry, error) {
	full, err := ResolvePath(c.root, path)
	if err != nil {
		return nil, err
	}

	dirEntries, err := os.ReadDir(full)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", path, err)
	}

	entries := make([]interfaces.WorkspaceEntry, 0, len(dirEntries))
	for _, e := range dirEntries {
		entry := interfaces.WorkspaceEntry{
			Name:  e.Name(),
			IsDir: e.IsDir(),
		}
		if info, err := e.Info(); err == nil {
			entry.Size = info.Size()
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// CommitAndPush stages all workspace changes, commits them on the
// requested branch, and pushes
func (c *localContainer) CommitAndPush(ctx context.Context, req *interfaces.CommitRequest) error {
	start := time.Now()

	err := c.commitAndPush(ctx, req)
	if c.auditService != nil {
		c.auditService.LogContainerOperation(ctx, c.id, "commit_and_push", time.Since(start), err)
	}
	return err
}

func (c *localContainer) commitAndPush(ctx context.Context, req *interfaces.CommitRequest) error {
	if req == nil || req.Branch == "" || req.Message == "" {
		return fmt.Errorf("commit request requires branch and message")
	}

	if _, err := c.runGit(ctx, "checkout", "-B", req.Branch); err != nil {
		return err
	}
	if _, err := c.runGit(ctx, "add", "-A"); err != nil {
		return err
	}

	status, err := c.runGit(ctx, "status", "--porcelain")
	if err != nil {
		return err
	}
	if strings.TrimSpace(status) == "" {
		return ErrNoChanges
	}

	var commitArgs []string
	if req.AuthorName != "" {
		commitArgs = append(commitArgs, "-c", "user.name="+req.AuthorName)
	}
	if req.AuthorEmail != "" {
		commitArgs = append(commitArgs, "-c", "user.email="+req.AuthorEmail)
	}
	commitArgs = append(commitArgs, "commit", "-m", req.Message)
	if _, err := c.runGit(ctx, commitArgs...); err != nil {
		return err
	}

	pushArgs := []string{"push"}
	if req.RemoteURL != "" {
		pushArgs = append(pushArgs, req.RemoteURL, "HEAD:refs/heads/"+req.Branch)
	} else {
		pushArgs = append(pushArgs, "--set-upstream", "origin", req.Branch)
	}
	if _, err := c.runGit(ctx, pushArgs...); err != nil {
		return err
	}

	c.logger.Info().
		Str("container_id", c.id).
		Str("branch", req.Branch).
		Msg("Workspace changes pushed")

	return nil
}

// runGit runs one git command and turns a non-zero exit into an error
// carrying stderr
func (c *localContainer) runGit(ctx context.Context, args ...string) (string, error) {
	result, err := c.Exec(ctx, "git", args...)
	if err != nil {
		return "", err
	}
	if result.ExitCode != 0 {
		return "", fmt.Errorf("git %s failed: %s", args[0], strings.TrimSpace(result.Stderr))
	}
	return result.Stdout, nil
}

// Cleanup removes the workspace unless keep_workspaces is set
func (c *localContainer) Cleanup(ctx context.Context) error {
	start := time.Now()

	if c.keep {
		c.logger.Info().
			Str("container_id", c.id).
			Str("path", c.root).
			Msg("Keeping workspace for inspection")
		if c.auditService != nil {
			c.auditService.LogContainerOperation(ctx, c.id, "cleanup_skipped", time.Since(start), nil)
		}
		return nil
	}

	err := os.RemoveAll(c.root)
	if c.auditService != nil {
		c.auditService.LogContainerOperation(ctx, c.id, "cleanup", time.Since(start), err)
	}
	if err != nil {
		return fmt.Errorf("failed to remove workspace: %w", err)
	}

	return nil
}

func (c *localContainer) auditFile(ctx context.Context, operation, path string, err error) {
	if c.auditService != nil {
		c.auditService.LogFileOperation(ctx, c.id, operation, path, err)
	}
}
