package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// CmdRunner provides command execution. Interface for testing.
type CmdRunner interface {
	Run(args ...string) (string, error)
}

// ContextRunner is a CmdRunner whose invocations can be cancelled.
type ContextRunner interface {
	RunContext(ctx context.Context, args ...string) (string, error)
}

// ExecRunner runs gh commands via exec.
type ExecRunner struct{}

func (r *ExecRunner) Run(args ...string) (string, error) {
	return r.RunContext(context.Background(), args...)
}

// RunContext runs gh, killing it when ctx is done.
func (r *ExecRunner) RunContext(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "gh", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return strings.TrimSpace(string(out)), errors.Wrapf(err, "gh %s: %s", strings.Join(args, " "), strings.TrimSpace(string(out)))
	}
	return strings.TrimSpace(string(out)), nil
}

// APIRunner answers `api <path>` invocations against the GitHub REST API
// directly, for hosts without the gh CLI (Lambda, containers).
type APIRunner struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

func (r *APIRunner) Run(args ...string) (string, error) {
	return r.RunContext(context.Background(), args...)
}

// RunContext performs the GET, abandoning it when ctx is done.
func (r *APIRunner) RunContext(ctx context.Context, args ...string) (string, error) {
	if len(args) != 2 || args[0] != "api" {
		return "", errors.Errorf("api runner supports only \"api <path>\", got %q", strings.Join(args, " "))
	}
	base := strings.TrimRight(r.BaseURL, "/")
	if base == "" {
		base = "https://api.github.com"
	}
	client := r.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/"+strings.TrimLeft(args[1], "/"), nil)
	if err != nil {
		return "", errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if r.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.Token)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", errors.Wrapf(err, "github api %s", args[1])
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "read github api response")
	}
	out := strings.TrimSpace(string(body))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return out, errors.Errorf("github api %s: http %d: %s", args[1], resp.StatusCode, out)
	}
	return out, nil
}

// Client provides GitHub operations.
type Client struct {
	cmd CmdRunner
}

// NewClient creates a GitHub client.
func NewClient(cmd CmdRunner) *Client {
	return &Client{cmd: cmd}
}

// Commit is the author and message of a single commit.
type Commit struct {
	SHA     string
	Author  string
	Message string
}

var repoRe = regexp.MustCompile(`^[A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+$`)
var shaRe = regexp.MustCompile(`^[0-9a-fA-F]{7,40}$`)

// ValidateRepo checks for an "owner/name" repository id.
func ValidateRepo(repo string) error {
	if !repoRe.MatchString(repo) {
		return errors.Errorf("invalid repository %q: must be owner/name", repo)
	}
	return nil
}

// ValidateSHA checks for an abbreviated or full hex commit id.
func ValidateSHA(sha string) error {
	if !shaRe.MatchString(sha) {
		return errors.Errorf("invalid commit sha %q", sha)
	}
	return nil
}

// run prefers the runner's cancellable form when it has one.
func (c *Client) run(ctx context.Context, args ...string) (string, error) {
	if cr, ok := c.cmd.(ContextRunner); ok {
		return cr.RunContext(ctx, args...)
	}
	return c.cmd.Run(args...)
}

// CommitInfo fetches the author and message of a commit. The author is the
// git author name, falling back to the GitHub login.
func (c *Client) CommitInfo(ctx context.Context, repo, sha string) (*Commit, error) {
	if err := ValidateRepo(repo); err != nil {
		return nil, err
	}
	if err := ValidateSHA(sha); err != nil {
		return nil, err
	}

	out, err := c.run(ctx, "api", fmt.Sprintf("repos/%s/commits/%s", repo, sha))
	if err != nil {
		return nil, errors.Wrapf(err, "get commit %s@%s", repo, sha)
	}

	var payload struct {
		SHA    string `json:"sha"`
		Commit struct {
			Author struct {
				Name string `json:"name"`
			} `json:"author"`
			Message string `json:"message"`
		} `json:"commit"`
		Author *struct {
			Login string `json:"login"`
		} `json:"author"`
	}
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		return nil, errors.Wrap(err, "parse commit JSON")
	}

	commit := &Commit{SHA: payload.SHA, Author: payload.Commit.Author.Name, Message: payload.Commit.Message}
	if commit.SHA == "" {
		commit.SHA = sha
	}
	if commit.Author == "" && payload.Author != nil {
		commit.Author = payload.Author.Login
	}
	return commit, nil
}
