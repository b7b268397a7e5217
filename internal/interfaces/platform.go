// -----------------------------------------------------------------------
// Platform Interface - Hosting platform API surface used by handlers
// -----------------------------------------------------------------------

package interfaces

import "context"

// Repository describes a hosted repository
type Repository struct {
	Owner         string `json:"owner"`
	Name          string `json:"name"`
	DefaultBranch string `json:"default_branch"`
	CloneURL      string `json:"clone_url"`
}

// Reference is a git ref with its target commit
type Reference struct {
	Ref string `json:"ref"`
	SHA string `json:"sha"`
}

// PullRequest describes an existing pull request
type PullRequest struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Body   string `json:"body,omitempty"`
	Head   string `json:"head"`
	Base   string `json:"base"`
	Draft  bool   `json:"draft"`
	State  string `json:"state"`
	URL    string `json:"url"`
}

// NewPullRequest carries the fields for creating a pull request
type NewPullRequest struct {
	Title string `json:"title"`
	Body  string `json:"body,omitempty"`
	Head  string `json:"head"`
	Base  string `json:"base"`
	Draft bool   `json:"draft"`
}

// PullRequestUpdate carries optional fields to change on a pull request.
// Nil fields are left untouched.
type PullRequestUpdate struct {
	Title *string `json:"title,omitempty"`
	Body  *string `json:"body,omitempty"`
	State *string `json:"state,omitempty"`
}

// ListPullRequestsOptions narrows pull request listings
type ListPullRequestsOptions struct {
	State string `json:"state,omitempty"` // "open", "closed", or "all"
	Head  string `json:"head,omitempty"`
	Base  string `json:"base,omitempty"`
}

// PlatformService is the hosting platform API surface the job handlers
// depend on. Implementations audit every call.
type PlatformService interface {
	// GetRepository fetches repository metadata
	GetRepository(ctx context.Context, owner, repo string) (*Repository, error)

	// GetReference resolves a ref such as "heads/main"
	GetReference(ctx context.Context, owner, repo, ref string) (*Reference, error)

	// CreateReference creates a new ref pointing at a commit
	CreateReference(ctx context.Context, owner, repo, ref, sha string) (*Reference, error)

	// CreatePullRequest opens a pull request
	CreatePullRequest(ctx context.Context, owner, repo string, pr *NewPullRequest) (*PullRequest, error)

	// UpdatePullRequest changes fields on an existing pull request
	UpdatePullRequest(ctx context.Context, owner, repo string, number int, update *PullRequestUpdate) (*PullRequest, error)

	// ListPullRequests lists pull requests matching the options
	ListPullRequests(ctx context.Context, owner, repo string, opts *ListPullRequestsOptions) ([]*PullRequest, error)

	// CreateIssueComment posts a comment on an issue or pull request
	CreateIssueComment(ctx context.Context, owner, repo string, number int, body string) error
}
