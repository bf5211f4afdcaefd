package vcs

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"
)

// Hub pushes a session branch to its remote and opens a pull request
// against it — the `export` command's two external-boundary operations,
// treated per spec as a push plus a narrow REST client.
type Hub struct {
	client *github.Client
	owner  string
	repo   string
}

// NewHub builds a Hub authenticated with a personal access token against
// owner/repo on github.com.
func NewHub(token, owner, repo string) *Hub {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	httpClient := oauth2.NewClient(context.Background(), ts)
	return &Hub{client: github.NewClient(httpClient), owner: owner, repo: repo}
}

// Push pushes branch to the remote named "origin", shelling out to the
// git binary the way Repo.Stash does: go-git's transport support does not
// cover every auth method (SSH agent forwarding, credential helpers) a
// user's existing git configuration already handles.
func Push(repoRoot, branch string) error {
	cmd := exec.Command("git", "push", "-u", "origin", branch)
	cmd.Dir = repoRoot
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git push %s: %w: %s", branch, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// OpenPullRequest opens a PR from head into base, returning its HTML URL.
// If one already exists for head, its URL is returned instead of erroring.
func (h *Hub) OpenPullRequest(ctx context.Context, head, base, title, body string) (string, error) {
	existing, _, err := h.client.PullRequests.List(ctx, h.owner, h.repo, &github.PullRequestListOptions{
		Head:  h.owner + ":" + head,
		Base:  base,
		State: "open",
	})
	if err == nil && len(existing) > 0 {
		return existing[0].GetHTMLURL(), nil
	}

	pr, _, err := h.client.PullRequests.Create(ctx, h.owner, h.repo, &github.NewPullRequest{
		Title: github.String(title),
		Head:  github.String(head),
		Base:  github.String(base),
		Body:  github.String(body),
	})
	if err != nil {
		return "", fmt.Errorf("create pull request %s -> %s: %w", head, base, err)
	}
	return pr.GetHTMLURL(), nil
}

// BuildPullRequestBody renders a PR description summarizing the session:
// iteration count, final metric value, and termination reason.
func BuildPullRequestBody(sessionName string, iterations int, finalMetric, metricName string, terminationReason string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Revis session `%s`\n\n", sessionName)
	fmt.Fprintf(&b, "- Iterations: %d\n", iterations)
	if metricName != "" {
		fmt.Fprintf(&b, "- Final %s: %s\n", metricName, finalMetric)
	}
	fmt.Fprintf(&b, "- Termination reason: %s\n", terminationReason)
	return b.String()
}
