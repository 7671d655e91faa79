package dockerutil

import "strings"

// BuildMountPlan describes the two bind mounts a build container gets:
// the checked-out source tree (read-only) and the artifact output
// directory (read-write).
type BuildMountPlan struct {
	SourceHost string
	SourceTarget string
	OutputHost   string
	OutputTarget string
}

// BuildMounts constructs the mount list for a build container, skipping
// any side whose host path is blank.
func BuildMounts(plan BuildMountPlan) []Mount {
	var mounts []Mount
	if strings.TrimSpace(plan.SourceHost) != "" {
		target := plan.SourceTarget
		if target == "" {
			target = "/workspace"
		}
		mounts = append(mounts, Mount{Source: plan.SourceHost, Target: target, ReadOnly: true})
	}
	if strings.TrimSpace(plan.OutputHost) != "" {
		target := plan.OutputTarget
		if target == "" {
			target = "/output"
		}
		mounts = append(mounts, Mount{Source: plan.OutputHost, Target: target, ReadOnly: false})
	}
	return mounts
}
