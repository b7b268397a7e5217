// -----------------------------------------------------------------------
// GitHub Service - Hosting platform adapter over the GitHub REST API
// -----------------------------------------------------------------------

package github

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/faber/internal/common"
	"github.com/ternarybob/faber/internal/interfaces"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const defaultRequestsPerSecond = 5

// Service implements the platform surface against the GitHub REST API.
// Every call waits on a client-side rate limiter and is recorded through
// the audit service.
type Service struct {
	client       *github.Client
	limiter      *rate.Limiter
	auditService interfaces.AuditService
	logger       arbor.ILogger
}

// Ensure interface compliance
var _ interfaces.PlatformService = (*Service)(nil)

// NewService creates a GitHub client from configuration. The token is
// resolved from the environment, the KV store, or the config fallback.
func NewService(ctx context.Context, cfg *common.GitHubConfig, kvStorage interfaces.KeyValueStorage, auditService interfaces.AuditService, logger arbor.ILogger) (*Service, error) {
	if logger == nil {
		logger = common.GetLogger()
	}

	token, err := common.ResolveAPIKey(ctx, kvStorage, "github_token", cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve github token: %w", err)
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	client := github.NewClient(oauth2.NewClient(ctx, ts))

	if cfg.BaseURL != "" {
		client, err = client.WithEnterpriseURLs(cfg.BaseURL, cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid github base url: %w", err)
		}
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = defaultRequestsPerSecond
	}

	logger.Info().
		Str("base_url", client.BaseURL.String()).
		Int("requests_per_second", rps).
		Msg("GitHub client initialized")

	return &Service{
		client:       client,
		limiter:      rate.NewLimiter(rate.Limit(rps), rps),
		auditService: auditService,
		logger:       logger,
	}, nil
}

// call wraps one API operation with rate limiting and audit recording
func (s *Service) call(ctx context.Context, operation, target string, fn func() error) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}

	start := time.Now()
	err := fn()
	duration := time.Since(start)

	if s.auditService != nil {
		s.auditService.LogPlatformAPICall(ctx, operation, target, duration, err)
	}

	return err
}

// GetRepository fetches repository metadata
func (s *Service) GetRepository(ctx context.Context, owner, repo string) (*interfaces.Repository, error) {
	var result *interfaces.Repository

	err := s.call(ctx, "get_repository", fmt.Sprintf("%s/%s", owner, repo), func() error {
		r, _, err := s.client.Repositories.Get(ctx, owner, repo)
		if err != nil {
			return fmt.Errorf("failed to get repository %s/%s: %w", owner, repo, err)
		}
		result = &interfaces.Repository{
			Owner:         r.GetOwner().GetLogin(),
			Name:          r.GetName(),
			DefaultBranch: r.GetDefaultBranch(),
			CloneURL:      r.GetCloneURL(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetReference resolves a ref such as "heads/main"
func (s *Service) GetReference(ctx context.Context, owner, repo, ref string) (*interfaces.Reference, error) {
	var result *interfaces.Reference

	err := s.call(ctx, "get_reference", fmt.Sprintf("%s/%s@%s", owner, repo, ref), func() error {
		r, _, err := s.client.Git.GetRef(ctx, owner, repo, ref)
		if err != nil {
			return fmt.Errorf("failed to get ref %s: %w", ref, err)
		}
		result = &interfaces.Reference{
			Ref: r.GetRef(),
			SHA: r.GetObject().GetSHA(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CreateReference creates a new ref pointing at a commit. The ref may be
// given with or without the "refs/" prefix.
func (s *Service) CreateReference(ctx context.Context, owner, repo, ref, sha string) (*interfaces.Reference, error) {
	fullRef := ref
	if !strings.HasPrefix(fullRef, "refs/") {
		fullRef = "refs/" + fullRef
	}

	var result *interfaces.Reference

	err := s.call(ctx, "create_reference", fmt.Sprintf("%s/%s@%s", owner, repo, fullRef), func() error {
		r, _, err := s.client.Git.CreateRef(ctx, owner, repo, &github.Reference{
			Ref:    github.String(fullRef),
			Object: &github.GitObject{SHA: github.String(sha)},
		})
		if err != nil {
			return fmt.Errorf("failed to create ref %s: %w", fullRef, err)
		}
		result = &interfaces.Reference{
			Ref: r.GetRef(),
			SHA: r.GetObject().GetSHA(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CreatePullRequest opens a pull request
func (s *Service) CreatePullRequest(ctx context.Context, owner, repo string, pr *interfaces.NewPullRequest) (*interfaces.PullRequest, error) {
	if pr == nil {
		return nil, fmt.Errorf("pull request is required")
	}

	var result *interfaces.PullRequest

	err := s.call(ctx, "create_pull_request", fmt.Sprintf("%s/%s", owner, repo), func() error {
		created, _, err := s.client.PullRequests.Create(ctx, owner, repo, &github.NewPullRequest{
			Title: github.String(pr.Title),
			Body:  github.String(pr.Body),
			Head:  github.String(pr.Head),
			Base:  github.String(pr.Base),
			Draft: github.Bool(pr.Draft),
		})
		if err != nil {
			return fmt.Errorf("failed to create pull request: %w", err)
		}
		result = convertPullRequest(created)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// UpdatePullRequest changes fields on an existing pull request. Nil
// update fields are left untouched.
func (s *Service) UpdatePullRequest(ctx context.Context, owner, repo string, number int, update *interfaces.PullRequestUpdate) (*interfaces.PullRequest, error) {
	if update == nil {
		return nil, fmt.Errorf("pull request update is required")
	}

	var result *interfaces.PullRequest

	err := s.call(ctx, "update_pull_request", fmt.Sprintf("%s/%s#%d", owner, repo, number), func() error {
		updated, _, err := s.client.PullRequests.Edit(ctx, owner, repo, number, &github.PullRequest{
			Title: update.Title,
			Body:  update.Body,
			State: update.State,
		})
		if err != nil {
			return fmt.Errorf("failed to update pull request #%d: %w", number, err)
		}
		result = convertPullRequest(updated)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ListPullRequests lists pull requests matching the options, following
// pagination until exhausted
func (s *Service) ListPullRequests(ctx context.Context, owner, repo string, opts *interfaces.ListPullRequestsOptions) ([]*interfaces.PullRequest, error) {
	listOpts := &github.PullRequestListOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	}
	if opts != nil {
		listOpts.State = opts.State
		listOpts.Head = opts.Head
		listOpts.Base = opts.Base
	}

	var result []*interfaces.PullRequest

	err := s.call(ctx, "list_pull_requests", fmt.Sprintf("%s/%s", owner, repo), func() error {
		for {
			prs, resp, err := s.client.PullRequests.List(ctx, owner, repo, listOpts)
			if err != nil {
				return fmt.Errorf("failed to list pull requests: %w", err)
			}
			for _, pr := range prs {
				result = append(result, convertPullRequest(pr))
			}
			if resp.NextPage == 0 {
				break
			}
			listOpts.Page = resp.NextPage
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CreateIssueComment posts a comment on an issue or pull request
func (s *Service) CreateIssueComment(ctx context.Context, owner, repo string, number int, body string) error {
	return s.call(ctx, "create_issue_comment", fmt.Sprintf("%s/%s#%d", owner, repo, number), func() error {
		_, _, err := s.client.Issues.CreateComment(ctx, owner, repo, number, &github.IssueComment{
			Body: github.String(body),
		})
		if err != nil {
			return fmt.Errorf("failed to create comment on #%d: %w", number, err)
		}
		return nil
	})
}

// convertPullRequest maps the API response to the platform model
func convertPullRequest(pr *github.PullRequest) *interfaces.PullRequest {
	return &interfaces.PullRequest{
		Number: pr.GetNumber(),
		Title:  pr.GetTitle(),
		Body:   pr.GetBody(),
		Head:   pr.GetHead().GetRef(),
		Base:   pr.GetBase().GetRef(),
		Draft:  pr.GetDraft(),
		State:  pr.GetState(),
		URL:    pr.GetHTMLURL(),
	}
}
