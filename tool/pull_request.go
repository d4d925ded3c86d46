package tool

import (
	"fmt"
	"net/http"

	gogithub "github.com/google/go-github/v69/github"

	"github.com/hupe1980/agentrouter/core"
	"github.com/hupe1980/agentrouter/internal/httpkit"
)

// PullRequestDiffToolName is the function name exposed to models.
const PullRequestDiffToolName = "get_pull_request_diff"

// PullRequestDiffOptions configures the pull request diff tool.
type PullRequestDiffOptions struct {
	Token        string
	ContextLines int
	MaxDiffBytes int
	HTTPClient   *http.Client
	// Client overrides the GitHub client, mainly for tests against a fake API.
	Client *gogithub.Client
}

// NewPullRequestDiffTool returns a tool that downloads a pull request's
// metadata and its unified diff, sliced to changed regions and annotated
// with file:line prefixes.
func NewPullRequestDiffTool(optFns ...func(o *PullRequestDiffOptions)) *FunctionTool {
	opts := PullRequestDiffOptions{ContextLines: 3, MaxDiffBytes: 60000}
	for _, fn := range optFns {
		fn(&opts)
	}

	client := opts.Client
	if client == nil {
		hc := opts.HTTPClient
		if hc == nil {
			hc = httpkit.NewClient()
		}
		client = gogithub.NewClient(hc)
		if opts.Token != "" {
			client = client.WithAuthToken(opts.Token)
		}
	}

	return NewFunctionTool(
		PullRequestDiffToolName,
		"Download a GitHub pull request (title, description, changed lines annotated with file:line) given its URL.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url": map[string]any{"type": "string", "description": "Pull request URL, e.g. https://github.com/org/repo/pull/123"},
			},
			"required": []string{"url"},
		},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			url, _ := args["url"].(string)
			ref, err := ParsePullRequestURL(url)
			if err != nil {
				return nil, &ToolError{Tool: PullRequestDiffToolName, Message: err.Error(), Code: CodeValidation}
			}

			pr, resp, err := client.PullRequests.Get(tc.Context(), ref.Owner, ref.Repo, ref.Number)
			if err != nil {
				if resp != nil && resp.StatusCode == http.StatusNotFound {
					return nil, &ToolError{Tool: PullRequestDiffToolName, Message: fmt.Sprintf("pull request %s/%s#%d not found", ref.Owner, ref.Repo, ref.Number), Code: CodeNotFound}
				}
				return nil, fmt.Errorf("get pull request: %w", err)
			}

			raw, _, err := client.PullRequests.GetRaw(tc.Context(), ref.Owner, ref.Repo, ref.Number, gogithub.RawOptions{
				Type: gogithub.Diff,
			})
			if err != nil {
				return nil, fmt.Errorf("get pull request diff: %w", err)
			}

			diff := AnnotateDiff(SliceDiff(raw, opts.ContextLines))
			truncated := false
			if opts.MaxDiffBytes > 0 && len(diff) > opts.MaxDiffBytes {
				diff = diff[:opts.MaxDiffBytes]
				truncated = true
			}

			tc.LogDebug("tool.pull_request.fetched", "repo", ref.Owner+"/"+ref.Repo, "number", ref.Number, "diff_bytes", len(diff))

			return map[string]any{
				"title":         pr.GetTitle(),
				"description":   pr.GetBody(),
				"author":        pr.GetUser().GetLogin(),
				"state":         pr.GetState(),
				"changed_files": pr.GetChangedFiles(),
				"diff":          diff,
				"truncated":     truncated,
			}, nil
		},
	)
}
