package githubapp

import (
	"context"
	"fmt"

	"github.com/google/go-github/v66/github"
)

// CreateComment posts a new issue (PR) comment and returns its id.
func CreateComment(ctx context.Context, client *github.Client, owner, repo string, prNumber int, body string) (int64, error) {
	comment, _, err := client.Issues.CreateComment(ctx, owner, repo, prNumber, &github.IssueComment{
		Body: github.String(body),
	})
	if err != nil {
		return 0, fmt.Errorf("create pr comment: %w", err)
	}
	return comment.GetID(), nil
}

// UpdateComment edits an existing issue comment's body.
func UpdateComment(ctx context.Context, client *github.Client, owner, repo string, commentID int64, body string) error {
	_, _, err := client.Issues.EditComment(ctx, owner, repo, commentID, &github.IssueComment{
		Body: github.String(body),
	})
	if err != nil {
		return fmt.Errorf("update pr comment: %w", err)
	}
	return nil
}

// BuildingBody renders the initial "Building" comment body.
func BuildingBody(shortSHA string) string {
	return fmt.Sprintf("Building `%s`…", shortSHA)
}

// SuccessBody renders the success comment body.
func SuccessBody(deployedURL string) string {
	if deployedURL == "" {
		deployedURL = "(no URL reported)"
	}
	return fmt.Sprintf("Deployed: %s", deployedURL)
}

// FailedBody renders the failure comment body.
func FailedBody(errorMessage string) string {
	if errorMessage == "" {
		errorMessage = "Unknown error"
	}
	return fmt.Sprintf("Build failed: %s", errorMessage)
}

// ShortSHA truncates a commit SHA to 7 characters.
func ShortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}
