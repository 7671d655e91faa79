package build

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"catapult/internal/shared"
)

// DetectSiteType inspects a checked-out repository and guesses its
// static-site generator, in priority order: sveltekit, vite, zola,
// custom (flake), then vite as a package.json fallback. Returns
// SiteAuto if nothing matches.
func DetectSiteType(repoDir string) shared.SiteType {
	if exists(repoDir, "svelte.config.js") || exists(repoDir, "svelte.config.ts") {
		return shared.SiteSvelteKit
	}
	if exists(repoDir, "vite.config.js") || exists(repoDir, "vite.config.ts") {
		return shared.SiteVite
	}
	if exists(repoDir, "config.toml") {
		if contents, err := os.ReadFile(filepath.Join(repoDir, "config.toml")); err == nil {
			s := string(contents)
			if strings.Contains(s, "base_url") && strings.Contains(s, "[markdown]") {
				return shared.SiteZola
			}
		}
	}
	if exists(repoDir, "flake.nix") {
		return shared.SiteCustom
	}
	if exists(repoDir, "package.json") {
		return shared.SiteVite
	}
	return shared.SiteAuto
}

func exists(dir, name string) bool {
	_, err := os.Stat(filepath.Join(dir, name))
	return err == nil
}

// LoadDeployConfig reads a repository's local .deploy.json, returning
// nil (not an error) if absent or unparseable; a malformed file is
// logged and treated the same as "no override".
func LoadDeployConfig(repoDir string, log *zap.Logger) *shared.DeployConfig {
	path := filepath.Join(repoDir, ".deploy.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var cfg shared.DeployConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		log.Warn("failed to parse .deploy.json", zap.Error(err))
		return nil
	}
	return &cfg
}

// BuildContext is the resolved build command, output directory, and
// (if applicable) nix flake wrapper for a build.
type BuildContext struct {
	SiteType     shared.SiteType
	BuildCommand string
	OutputDir    string
	FlakeRef     string
}

// NewBuildContext resolves site type, build command, and output
// directory, letting a repo's .deploy.json override the site type's
// conventional defaults.
func NewBuildContext(siteType shared.SiteType, deployConfig *shared.DeployConfig) BuildContext {
	resolved := siteType
	var buildCommand, outputDir string
	if deployConfig != nil {
		if t, err := shared.ParseSiteType(deployConfig.BuildType); err == nil && deployConfig.BuildType != "" {
			resolved = t
		}
		buildCommand = deployConfig.BuildCommand
		outputDir = deployConfig.OutputDir
	}

	if buildCommand == "" {
		buildCommand = resolved.DefaultBuildCommand()
	}
	if buildCommand == "" {
		buildCommand = "echo 'No build command specified'"
	}

	if outputDir == "" {
		outputDir = resolved.DefaultOutputDir()
	}
	if outputDir == "" {
		outputDir = "dist"
	}

	return BuildContext{
		SiteType:     resolved,
		BuildCommand: buildCommand,
		OutputDir:    outputDir,
		FlakeRef:     resolved.FlakeRef(),
	}
}
