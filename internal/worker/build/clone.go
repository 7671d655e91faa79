// Package build implements BuildEngine: cloning a repository at a
// specific commit, resolving its build context, running the build
// (containerized by default), and publishing the resulting artifact.
package build

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"catapult/internal/shared/auth"
)

// CloneRepository shallow-clones repoURL into work_dir/repo, then
// fetches and checks out commitSHA. Any error surfaced from subprocess
// stderr has the token redacted first, on every failure path.
func CloneRepository(ctx context.Context, repoURL, token, commitSHA, workDir string) (string, error) {
	repoDir := filepath.Join(workDir, "repo")

	authURL, err := insertTokenInURL(repoURL, token)
	if err != nil {
		return "", err
	}

	if out, err := runGit(ctx, workDir, token, "clone", "--depth", "1", authURL, repoDir); err != nil {
		return "", fmt.Errorf("git clone failed: %s", out)
	}

	if out, err := runGit(ctx, repoDir, token, "fetch", "origin", commitSHA, "--depth", "1"); err != nil {
		return "", fmt.Errorf("git fetch failed: %s", out)
	}

	if out, err := runGit(ctx, repoDir, token, "checkout", commitSHA); err != nil {
		return "", fmt.Errorf("git checkout failed: %s", out)
	}

	return repoDir, nil
}

// runGit runs git with args in dir, returning redacted stderr on
// failure. Redaction applies uniformly across every git subcommand,
// including checkout.
func runGit(ctx context.Context, dir, token string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return auth.Redact(stderr.String(), token), err
	}
	return "", nil
}

// insertTokenInURL rewrites an https:// or git:// clone URL to embed an
// x-access-token credential.
func insertTokenInURL(url, token string) (string, error) {
	if rest, ok := strings.CutPrefix(url, "https://"); ok {
		return fmt.Sprintf("https://x-access-token:%s@%s", token, rest), nil
	}
	if rest, ok := strings.CutPrefix(url, "git://"); ok {
		return fmt.Sprintf("https://x-access-token:%s@%s", token, rest), nil
	}
	return "", fmt.Errorf("unsupported repo url format: %s", url)
}
