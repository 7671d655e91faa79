// Package resolver implements Resolver: fetching and merging
// `.deploy.json` from the org's `.github` repo and the target repo,
// then resolving the main/PR hostnames.
package resolver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/go-github/v66/github"

	"catapult/internal/shared"
)

// FetchDeployConfig fetches `{org}/.github/.deploy.json` then
// `{org}/{repo}/.deploy.json` and merges org under repo. Returns
// (nil, nil) when neither file exists.
func FetchDeployConfig(ctx context.Context, client *github.Client, org, repo string) (*shared.DeployConfig, error) {
	orgCfg, err := fetchConfigFile(ctx, client, org, ".github")
	if err != nil {
		return nil, err
	}
	repoCfg, err := fetchConfigFile(ctx, client, org, repo)
	if err != nil {
		return nil, err
	}
	if orgCfg == nil && repoCfg == nil {
		return nil, nil
	}
	merged := shared.MergeDeployConfig(orgCfg, repoCfg)
	return &merged, nil
}

func fetchConfigFile(ctx context.Context, client *github.Client, org, repoName string) (*shared.DeployConfig, error) {
	file, _, resp, err := client.Repositories.GetContents(ctx, org, repoName, ".deploy.json", nil)
	if err != nil {
		if resp != nil && resp.StatusCode == 404 {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch .deploy.json in %s/%s: %w", org, repoName, err)
	}
	if file == nil {
		return nil, nil
	}
	content, err := file.GetContent()
	if err != nil {
		return nil, fmt.Errorf("decode .deploy.json in %s/%s: %w", org, repoName, err)
	}
	var cfg shared.DeployConfig
	if err := json.Unmarshal([]byte(content), &cfg); err != nil {
		return nil, fmt.Errorf("parse .deploy.json in %s/%s: %w", org, repoName, err)
	}
	return &cfg, nil
}
