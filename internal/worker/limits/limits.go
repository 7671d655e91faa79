// Package limits loads the optional container resource-limit profile
// a Worker applies to every build container.
package limits

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Profile bounds a build container's resource and tmpfs usage.
type Profile struct {
	MemoryMB  int64 `yaml:"memory_mb"`
	CPUQuota  int64 `yaml:"cpu_quota"`
	CPUPeriod int64 `yaml:"cpu_period"`
	PidsLimit int64 `yaml:"pids_limit"`
	TmpfsMB   int64 `yaml:"tmpfs_mb"`
}

// Default matches the container posture in spec §4.9/§4.12: 4GB
// memory, two CPUs worth of quota, a conservative pids cap.
func Default() Profile {
	return Profile{
		MemoryMB:  4096,
		CPUQuota:  200000,
		CPUPeriod: 100000,
		PidsLimit: 1000,
		TmpfsMB:   512,
	}
}

// Load reads a YAML limits profile from path, falling back to Default
// for any field left unset. A missing file is not an error.
func Load(path string) (Profile, error) {
	p := Default()
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return p, nil
		}
		return Profile{}, err
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Profile{}, err
	}
	return p, nil
}
