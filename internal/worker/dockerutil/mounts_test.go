package dockerutil

import "testing"

func TestBuildMountsDefaultsTargets(t *testing.T) {
	mounts := BuildMounts(BuildMountPlan{SourceHost: "/repo", OutputHost: "/out"})
	if len(mounts) != 2 {
		t.Fatalf("expected 2 mounts, got %d", len(mounts))
	}
	if mounts[0].Target != "/workspace" || !mounts[0].ReadOnly {
		t.Fatalf("expected read-only /workspace mount, got %+v", mounts[0])
	}
	if mounts[1].Target != "/output" || mounts[1].ReadOnly {
		t.Fatalf("expected read-write /output mount, got %+v", mounts[1])
	}
}

func TestBuildMountsSkipsBlankSides(t *testing.T) {
	mounts := BuildMounts(BuildMountPlan{SourceHost: "/repo"})
	if len(mounts) != 1 {
		t.Fatalf("expected only the source mount, got %d", len(mounts))
	}
	if mounts[0].Source != "/repo" {
		t.Fatalf("unexpected mount: %+v", mounts[0])
	}
}

func TestBuildMountsHonorsExplicitTargets(t *testing.T) {
	mounts := BuildMounts(BuildMountPlan{SourceHost: "/repo", SourceTarget: "/src", OutputHost: "/out", OutputTarget: "/dst"})
	if mounts[0].Target != "/src" || mounts[1].Target != "/dst" {
		t.Fatalf("expected explicit targets honored, got %+v", mounts)
	}
}
