package artifactmgr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	amhttp "github.com/spdk/artifact-manager/http"
)

// perPage is the largest page size the Actions API accepts.
const perPage = 100

// GitHubProvider implements Provider for GitHub Actions.
type GitHubProvider struct {
	client    *github.Client
	downloads *amhttp.Client
	owner     string
	repo      string

	now func() time.Time
}

type githubOptions struct {
	baseURL          string
	downloadAttempts int
	httpClient       *http.Client
}

// GitHubOption configures NewGitHubProvider.
type GitHubOption func(*githubOptions)

// WithBaseURL points the provider at a GitHub Enterprise API root,
// e.g. "https://github.example.com/api/v3/".
func WithBaseURL(baseURL string) GitHubOption {
	return func(o *githubOptions) { o.baseURL = baseURL }
}

// WithDownloadAttempts sets how many times an artifact download is tried
// on network errors, 429 and 5xx responses.
func WithDownloadAttempts(n int) GitHubOption {
	return func(o *githubOptions) { o.downloadAttempts = n }
}

// WithHTTPClient sets the underlying HTTP client for API and download
// requests.
func WithHTTPClient(c *http.Client) GitHubOption {
	return func(o *githubOptions) { o.httpClient = c }
}

// NewGitHubProvider creates a new GitHub provider.
// token is a personal access token or GitHub App token.
// owner and repo identify the repository (e.g., "spdk", "spdk").
func NewGitHubProvider(token, owner, repo string, opts ...GitHubOption) (*GitHubProvider, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: GitHub token is required", ErrMissingCredentials)
	}
	if owner == "" || repo == "" {
		return nil, fmt.Errorf("%w: owner and repo are required", ErrMissingCredentials)
	}

	var o githubOptions
	for _, opt := range opts {
		opt(&o)
	}

	ctx := context.Background()
	if o.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, o.httpClient)
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(ctx, ts)
	client := github.NewClient(tc)

	if o.baseURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(o.baseURL, o.baseURL)
		if err != nil {
			return nil, fmt.Errorf("GitHub base URL: %w", err)
		}
	}

	// Downloads bypass the oauth2 transport: the archive URL redirects to
	// blob storage, and net/http drops a manually set Authorization header
	// on cross-host redirects while the transport would not.
	downloads := amhttp.NewClient(amhttp.ClientConfig{
		Client:      o.httpClient,
		ServiceName: "github",
		MaxAttempts: o.downloadAttempts,
		BeforeRequest: func(req *http.Request) {
			req.Header.Set("Authorization", "Bearer "+token)
		},
	})

	return &GitHubProvider{
		client:    client,
		downloads: downloads,
		owner:     owner,
		repo:      repo,
		now:       time.Now,
	}, nil
}

// ListRuns lists the runs of workflowName created in the last maxAgeDays
// days. The name filter is applied client-side and must match exactly.
func (p *GitHubProvider) ListRuns(ctx context.Context, workflowName string, maxAgeDays int) ([]*WorkflowRun, error) {
	since := p.now().Add(-time.Duration(maxAgeDays) * 24 * time.Hour).UTC()
	opts := &github.ListWorkflowRunsOptions{
		Created:     ">" + since.Format(time.RFC3339),
		ListOptions: github.ListOptions{PerPage: perPage},
	}

	iter := amhttp.NewPageIterator(func(ctx context.Context, page int) ([]*github.WorkflowRun, bool, error) {
		opts.Page = page + 1
		runs, resp, err := p.client.Actions.ListRepositoryWorkflowRuns(ctx, p.owner, p.repo, opts)
		if err != nil {
			return nil, false, apiError("list workflow runs", resp, err)
		}
		return runs.WorkflowRuns, resp.NextPage != 0, nil
	})

	matched := make([]*WorkflowRun, 0)
	err := iter.ForEach(ctx, func(r *github.WorkflowRun) error {
		if r.GetName() == workflowName {
			matched = append(matched, runFromGitHub(r))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return matched, nil
}

// ListArtifacts lists every artifact attached to a run.
func (p *GitHubProvider) ListArtifacts(ctx context.Context, runID int64) ([]*Artifact, error) {
	opts := &github.ListOptions{PerPage: perPage}

	iter := amhttp.NewPageIterator(func(ctx context.Context, page int) ([]*github.Artifact, bool, error) {
		opts.Page = page + 1
		list, resp, err := p.client.Actions.ListWorkflowRunArtifacts(ctx, p.owner, p.repo, runID, opts)
		if err != nil {
			return nil, false, apiError("list artifacts", resp, err)
		}
		return list.Artifacts, resp.NextPage != 0, nil
	})

	all, err := iter.All(ctx)
	if err != nil {
		return nil, err
	}

	artifacts := make([]*Artifact, 0, len(all))
	for _, a := range all {
		artifacts = append(artifacts, &Artifact{
			ID:          a.GetID(),
			Name:        a.GetName(),
			RunID:       runID,
			DownloadURL: a.GetArchiveDownloadURL(),
			SizeInBytes: a.GetSizeInBytes(),
			Expired:     a.GetExpired(),
		})
	}
	return artifacts, nil
}

// DownloadArtifact streams the artifact's zip payload into w.
func (p *GitHubProvider) DownloadArtifact(ctx context.Context, a *Artifact, w io.Writer) (int64, error) {
	if a.DownloadURL == "" {
		return 0, fmt.Errorf("artifact %d: %w", a.ID, ErrNoDownloadURL)
	}

	n, err := p.downloads.Stream(ctx, a.DownloadURL, map[string]string{
		"Accept":               "application/vnd.github+json",
		"X-GitHub-Api-Version": "2022-11-28",
	}, w)
	if err != nil {
		return n, fmt.Errorf("download artifact %d: %w", a.ID, err)
	}
	return n, nil
}

func runFromGitHub(r *github.WorkflowRun) *WorkflowRun {
	return &WorkflowRun{
		ID:         r.GetID(),
		Name:       r.GetName(),
		RunNumber:  r.GetRunNumber(),
		Status:     r.GetStatus(),
		Conclusion: r.GetConclusion(),
		HTMLURL:    r.GetHTMLURL(),
		CreatedAt:  r.GetCreatedAt().Time,
	}
}

// apiError converts a go-github failure into an *amhttp.APIError when the
// server answered, so callers can classify it with errors.Is.
func apiError(op string, resp *github.Response, err error) error {
	if resp == nil || resp.Response == nil || resp.StatusCode < 300 {
		return fmt.Errorf("%s: %w", op, err)
	}

	apiErr := &amhttp.APIError{
		Service:    "github",
		StatusCode: resp.StatusCode,
		Message:    http.StatusText(resp.StatusCode),
		RequestID:  resp.Header.Get("X-GitHub-Request-Id"),
	}
	if resp.Request != nil {
		apiErr.Endpoint = resp.Request.URL.Path
	}

	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Message != "" {
		apiErr.Message = ghErr.Message
	}

	return fmt.Errorf("%s: %w", op, apiErr)
}
