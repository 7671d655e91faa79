// Package network implements NetworkWarden: an isolated Docker bridge
// network for build containers, with iptables rules blocking RFC1918
// destinations other than the network's own subnet.
package network

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"catapult/internal/worker/dockerutil"
)

// Name is the isolated build network's fixed name.
const Name = "catapult-build-isolated"

// DefaultSubnet and DefaultGateway are the addresses the network is
// created with. The spec allows picking any free /24 in 10.89.0.0/16;
// a single fixed /24 is sufficient since exactly one build network
// exists per worker host.
const (
	DefaultSubnet  = "10.89.0.0/24"
	DefaultGateway = "10.89.0.1"

	chainName = "CATAPULT_BUILD_ISOLATION"
)

var rfc1918Ranges = []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"}

// DockerClient is the subset of dockerutil.Client NetworkWarden needs.
type DockerClient interface {
	InspectNetwork(ctx context.Context, name string) (*dockerutil.NetworkInfo, error)
	CreateIsolatedNetwork(ctx context.Context, name, subnet, gateway string) (string, error)
}

// Warden owns the isolated build network and its iptables rules.
type Warden struct {
	Docker DockerClient
	Log    *zap.Logger
}

// Ensure creates the isolated build network if absent and (re)installs
// its iptables rules idempotently either way, since the rules may have
// been flushed (e.g. a host reboot) independently of the network.
func (w *Warden) Ensure(ctx context.Context) (string, error) {
	info, err := w.Docker.InspectNetwork(ctx, Name)
	if err != nil {
		return "", fmt.Errorf("inspect build network: %w", err)
	}
	if info != nil {
		subnet := DefaultSubnet
		if len(info.Subnets) > 0 {
			subnet = info.Subnets[0]
		}
		w.ensureIPTables(ctx, subnet)
		return info.ID, nil
	}

	id, err := w.Docker.CreateIsolatedNetwork(ctx, Name, DefaultSubnet, DefaultGateway)
	if err != nil {
		return "", fmt.Errorf("create build network: %w", err)
	}
	w.ensureIPTables(ctx, DefaultSubnet)
	return id, nil
}

// ensureIPTables installs the isolation chain and rules if not already
// present. Failures degrade to a warning log rather than an error:
// hosts running the worker without CAP_NET_ADMIN still build, just
// without the RFC1918 egress block.
func (w *Warden) ensureIPTables(ctx context.Context, sourceSubnet string) {
	if !chainExists(ctx, chainName) {
		if err := runIPTables(ctx, "-N", chainName); err != nil {
			w.Log.Warn("create iptables chain failed (may require root)", zap.Error(err))
			return
		}
	}

	for _, r := range rfc1918Ranges {
		if r == "10.0.0.0/8" {
			addRule(ctx, w.Log, sourceSubnet, sourceSubnet, "ACCEPT")
		}
		addRule(ctx, w.Log, sourceSubnet, r, "DROP")
	}

	if !jumpExists(ctx, sourceSubnet) {
		if err := runIPTables(ctx, "-I", "FORWARD", "1", "-s", sourceSubnet, "-j", chainName); err != nil {
			w.Log.Warn("add FORWARD jump rule failed (may require root)", zap.Error(err))
		}
	}
}

func chainExists(ctx context.Context, chain string) bool {
	return exec.CommandContext(ctx, "iptables", "-n", "-L", chain).Run() == nil
}

func jumpExists(ctx context.Context, sourceSubnet string) bool {
	return exec.CommandContext(ctx, "iptables", "-C", "FORWARD", "-s", sourceSubnet, "-j", chainName).Run() == nil
}

func addRule(ctx context.Context, log *zap.Logger, source, dest, target string) {
	check := exec.CommandContext(ctx, "iptables", "-C", chainName, "-s", source, "-d", dest, "-j", target)
	if check.Run() == nil {
		return // rule already present
	}
	if err := runIPTables(ctx, "-A", chainName, "-s", source, "-d", dest, "-j", target); err != nil {
		log.Warn("add iptables rule failed", zap.String("dest", dest), zap.String("target", target), zap.Error(err))
	}
}

func runIPTables(ctx context.Context, args ...string) error {
	out, err := exec.CommandContext(ctx, "iptables", args...).CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg != "" {
			return fmt.Errorf("%w: %s", err, msg)
		}
		return err
	}
	return nil
}
