package build

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"github.com/google/uuid"

	"catapult/internal/worker/dockerutil"
	"catapult/internal/worker/limits"
)

const defaultBuildImage = "nixos/nix:latest"

// buildCommandScript composes the shell script a build container runs
// (direct mode does not use it): snapshot the read-only source into
// a writable tree, build, then stage the output for publishing.
func buildCommandScript(ctx BuildContext, srcDir, stageDir string) string {
	cmd := ctx.BuildCommand
	if ctx.FlakeRef != "" {
		cmd = fmt.Sprintf("nix develop %s --command sh -c '%s'", ctx.FlakeRef, cmd)
	}
	return fmt.Sprintf("cp -r %s %s && cd %s && %s && cp -r %s/. %s",
		srcDir, stageDir, stageDir, cmd, ctx.OutputDir, "/output")
}

// runContainerized runs the build inside an isolated, resource-limited
// container attached to the build network.
func runContainerized(ctx context.Context, docker *dockerutil.Client, image, networkID string, profile limits.Profile, repoDir, outputDir string, buildCtx BuildContext) (string, error) {
	script := buildCommandScript(buildCtx, "/workspace", "/tmp/build")

	spec := dockerutil.RunSpec{
		Image:     image,
		Cmd:       []string{"sh", "-c", script},
		WorkDir:   "/workspace",
		NetworkID: networkID,
		Mounts: dockerutil.BuildMounts(dockerutil.BuildMountPlan{
			SourceHost: repoDir,
			OutputHost: outputDir,
		}),
		MemoryMB:   profile.MemoryMB,
		CPUQuota:   profile.CPUQuota,
		CPUPeriod:  profile.CPUPeriod,
		PidsLimit:  profile.PidsLimit,
		TmpfsMB:    profile.TmpfsMB,
		DropAllCap: true,
		NoNewPrivs: true,
		Name:       "catapult-build-" + uuid.NewString(),
	}

	result, err := docker.Run(ctx, spec)
	if err != nil {
		return result.Output, err
	}
	if result.ExitCode != 0 {
		return result.Output, fmt.Errorf("build container exited with code %d", result.ExitCode)
	}
	return result.Output, nil
}

// runDirect executes the build command on the host, outside a
// container. Discouraged: callers must log a warning when using it.
func runDirect(ctx context.Context, repoDir string, buildCtx BuildContext) (string, error) {
	var cmd *exec.Cmd
	if buildCtx.FlakeRef != "" {
		cmd = exec.CommandContext(ctx, "nix", "develop", buildCtx.FlakeRef, "--command", "sh", "-c", buildCtx.BuildCommand)
	} else {
		cmd = exec.CommandContext(ctx, "sh", "-c", buildCtx.BuildCommand)
	}
	cmd.Dir = repoDir

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return out.String(), fmt.Errorf("build command failed: %w: %s", err, out.String())
	}
	return out.String(), nil
}
