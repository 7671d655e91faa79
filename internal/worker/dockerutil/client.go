// Package dockerutil wraps the subset of the Docker Engine API BuildEngine
// and NetworkWarden need: network lifecycle and container run-to-completion.
package dockerutil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// Client is a thin handle around the Docker Engine API.
type Client struct {
	api *client.Client
}

// NewClient connects to the engine configured by the standard DOCKER_HOST
// environment, negotiating the API version.
func NewClient() (*Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("connect docker engine: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := cli.Ping(ctx); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("ping docker engine: %w", err)
	}
	return &Client{api: cli}, nil
}

func (c *Client) Close() error {
	if c == nil || c.api == nil {
		return nil
	}
	return c.api.Close()
}

// NetworkInfo is the subset of network state NetworkWarden inspects to
// decide whether iptables rules need (re)installing.
type NetworkInfo struct {
	ID      string
	Subnets []string
}

// InspectNetwork returns nil, nil if the network does not exist.
func (c *Client) InspectNetwork(ctx context.Context, name string) (*NetworkInfo, error) {
	resp, err := c.api.NetworkInspect(ctx, name, types.NetworkInspectOptions{})
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("inspect network %s: %w", name, err)
	}
	info := &NetworkInfo{ID: resp.ID}
	if resp.IPAM.Config != nil {
		for _, cfg := range resp.IPAM.Config {
			if cfg.Subnet != "" {
				info.Subnets = append(info.Subnets, cfg.Subnet)
			}
		}
	}
	return info, nil
}

// CreateIsolatedNetwork creates a bridge network with a fixed subnet/gateway
// and inter-container communication disabled.
func (c *Client) CreateIsolatedNetwork(ctx context.Context, name, subnet, gateway string) (string, error) {
	resp, err := c.api.NetworkCreate(ctx, name, types.NetworkCreate{
		Driver:   "bridge",
		Internal: false,
		IPAM: &network.IPAM{
			Driver: "default",
			Config: []network.IPAMConfig{{Subnet: subnet, Gateway: gateway}},
		},
		Options: map[string]string{
			"com.docker.network.bridge.enable_icc": "false",
		},
	})
	if err != nil {
		return "", fmt.Errorf("create network %s: %w", name, err)
	}
	return resp.ID, nil
}

// Mount describes a bind mount into a build container.
type Mount struct {
	Source   string
	Target   string
	ReadOnly bool
}

// RunSpec describes a one-shot container run to completion.
type RunSpec struct {
	Image      string
	Cmd        []string
	Env        []string
	WorkDir    string
	NetworkID  string
	Mounts     []Mount
	MemoryMB   int64
	CPUQuota   int64
	CPUPeriod  int64
	PidsLimit  int64
	TmpfsMB    int64
	DropAllCap bool
	NoNewPrivs bool
	Name       string
}

// RunResult carries the exit code and combined output of a finished run.
type RunResult struct {
	ExitCode int64
	Output   string
}

// Run creates, starts, waits on, and removes a container, returning its
// exit code and combined stdout/stderr.
func (c *Client) Run(ctx context.Context, spec RunSpec) (RunResult, error) {
	if strings.TrimSpace(spec.Image) == "" {
		return RunResult{}, errors.New("image required")
	}

	var binds []string
	for _, m := range spec.Mounts {
		mode := "rw"
		if m.ReadOnly {
			mode = "ro"
		}
		binds = append(binds, fmt.Sprintf("%s:%s:%s", m.Source, m.Target, mode))
	}

	hostCfg := &container.HostConfig{
		Binds:       binds,
		NetworkMode: container.NetworkMode(spec.NetworkID),
		Resources: container.Resources{
			Memory:    spec.MemoryMB * 1024 * 1024,
			CPUQuota:  spec.CPUQuota,
			CPUPeriod: spec.CPUPeriod,
			PidsLimit: &spec.PidsLimit,
		},
		ReadonlyRootfs: false,
	}
	if spec.TmpfsMB > 0 {
		hostCfg.Tmpfs = map[string]string{"/tmp": fmt.Sprintf("size=%dm", spec.TmpfsMB)}
	}
	if spec.DropAllCap {
		hostCfg.CapDrop = []string{"ALL"}
	}
	if spec.NoNewPrivs {
		hostCfg.SecurityOpt = append(hostCfg.SecurityOpt, "no-new-privileges:true")
	}

	cfg := &container.Config{
		Image:      spec.Image,
		Cmd:        spec.Cmd,
		Env:        spec.Env,
		WorkingDir: spec.WorkDir,
		Tty:        false,
	}

	created, err := c.api.ContainerCreate(ctx, cfg, hostCfg, nil, nil, spec.Name)
	if err != nil {
		return RunResult{}, fmt.Errorf("create container: %w", err)
	}
	id := created.ID
	defer func() {
		_ = c.api.ContainerRemove(context.Background(), id, container.RemoveOptions{Force: true})
	}()

	if err := c.api.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return RunResult{}, fmt.Errorf("start container: %w", err)
	}

	statusCh, errCh := c.api.ContainerWait(ctx, id, container.WaitConditionNotRunning)
	var exitCode int64
	select {
	case err := <-errCh:
		if err != nil {
			return RunResult{}, fmt.Errorf("wait container: %w", err)
		}
	case status := <-statusCh:
		exitCode = status.StatusCode
	case <-ctx.Done():
		return RunResult{}, ctx.Err()
	}

	out, logErr := c.Logs(ctx, id, LogsOptions{})
	if logErr != nil {
		return RunResult{ExitCode: exitCode}, fmt.Errorf("fetch logs: %w", logErr)
	}
	return RunResult{ExitCode: exitCode, Output: out}, nil
}

// LogsOptions controls log retrieval.
type LogsOptions struct {
	Tail int
}

func (c *Client) Logs(ctx context.Context, containerID string, opts LogsOptions) (string, error) {
	tail := ""
	if opts.Tail > 0 {
		tail = fmt.Sprintf("%d", opts.Tail)
	}
	reader, err := c.api.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       tail,
	})
	if err != nil {
		return "", err
	}
	defer reader.Close()

	var buf bytes.Buffer
	if _, err := stdcopy.StdCopy(&buf, &buf, reader); err != nil {
		_, _ = io.Copy(&buf, reader)
	}
	return buf.String(), nil
}
