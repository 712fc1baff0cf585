package review

import (
	"context"
	"fmt"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"github.com/forgehq/forge/pkg/models"
)

// NewGitHubClient builds a go-github client authenticated with token, or
// an unauthenticated client (read access to public repos only) when token
// is empty.
func NewGitHubClient(ctx context.Context, token string) *github.Client {
	if token == "" {
		return github.NewClient(nil)
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return github.NewClient(oauth2.NewClient(ctx, ts))
}

// PostFindings posts a ReviewAggregation's findings as a single pull
// request review — one inline comment per finding with a file location,
// a summary-only comment for the rest — used when the integration branch
// being reviewed is backed by a GitHub remote.
func PostFindings(ctx context.Context, client *github.Client, owner, repo string, prNumber int, agg models.ReviewAggregation) error {
	review := &github.PullRequestReviewRequest{
		Body:  github.String(reviewBody(agg)),
		Event: github.String("COMMENT"),
	}

	for _, r := range agg.Reports {
		for _, f := range r.Findings {
			if f.File == "" || f.Line <= 0 {
				continue
			}
			review.Comments = append(review.Comments, &github.DraftReviewComment{
				Path: github.String(f.File),
				Line: github.Int(f.Line),
				Body: github.String(fmt.Sprintf("**%s** (%s): %s", r.Specialist, f.Severity, f.Message)),
			})
		}
	}

	_, _, err := client.PullRequests.CreateReview(ctx, owner, repo, prNumber, review)
	if err != nil {
		return fmt.Errorf("post review findings: %w", err)
	}
	return nil
}

func reviewBody(agg models.ReviewAggregation) string {
	body := fmt.Sprintf("Automated review for phase %s\n\n", agg.PhaseNumber)
	for _, r := range agg.Reports {
		body += fmt.Sprintf("- **%s**: %s", r.Specialist, r.Verdict)
		if r.Summary != "" {
			body += " — " + r.Summary
		}
		body += "\n"
	}
	return body
}
