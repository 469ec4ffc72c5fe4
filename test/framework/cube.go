package framework

import (
	"context"
	"net/netip"
	"os"
	"testing"
	"time"

	"github.com/cuemby/hypernet/pkg/coordinator"
	"github.com/cuemby/hypernet/pkg/launcher"
	"github.com/cuemby/hypernet/pkg/network"
	"github.com/cuemby/hypernet/pkg/topology"
	"github.com/cuemby/hypernet/pkg/types"
)

// BinaryEnv names the environment variable holding the hypernode binary
const BinaryEnv = "HYPERNODE_BINARY"

// CubeConfig describes a cube of real hypernode processes
type CubeConfig struct {
	Dimension int

	// AdminBasePort gives node L an admin endpoint on AdminBasePort+L; zero
	// disables them
	AdminBasePort int

	BestEffort bool
}

// Cube is a running cube of hypernode processes owned by one test
type Cube struct {
	*coordinator.Coordinator
	Launcher *launcher.ProcessLauncher
}

// NodeBinary returns the hypernode binary under test, skipping the test
// when none is configured
func NodeBinary(t *testing.T) string {
	t.Helper()
	bin := os.Getenv(BinaryEnv)
	if bin == "" {
		t.Skipf("%s not set; build cmd/hypernode and point %s at it", BinaryEnv, BinaryEnv)
	}
	return bin
}

// StartCube launches cfg.Dimension's cube, distributes peers and registers
// cleanup. Node logs are dumped when the test fails.
func StartCube(t *testing.T, cfg CubeConfig) *Cube {
	t.Helper()

	host := netip.MustParseAddr("127.0.0.1")
	topo, err := topology.Build(cfg.Dimension, network.NewEphemeralAllocator(host))
	if err != nil {
		t.Fatalf("Failed to build topology: %v", err)
	}

	pl := launcher.NewProcessLauncher(NodeBinary(t))
	pl.BindHost = host.String()
	pl.LogLevel = "debug"
	pl.ForwardTimeout = time.Second

	cc := coordinator.DefaultConfig()
	cc.RequestTimeout = time.Second
	cc.BestEffort = cfg.BestEffort
	if cfg.AdminBasePort > 0 {
		cc.AdminAddr = func(l types.Label) string {
			return netip.AddrPortFrom(host, uint16(cfg.AdminBasePort+int(l))).String()
		}
	}

	c := coordinator.New(topo, pl, cc)
	ctx := context.Background()
	if err := c.Launch(ctx); err != nil {
		t.Fatalf("Failed to launch cube: %v", err)
	}

	cube := &Cube{Coordinator: c, Launcher: pl}
	t.Cleanup(func() {
		if t.Failed() {
			for _, h := range c.Handles() {
				t.Logf("--- node %s ---\n%s", h.Identity().Label, h.Logs())
			}
		}
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = c.Shutdown(stopCtx)
	})

	if err := c.DistributePeers(ctx); err != nil {
		t.Fatalf("Failed to distribute peers: %v", err)
	}
	return cube
}

// Handle returns the handle of the node with label
func (c *Cube) Handle(label types.Label) launcher.Handle {
	for _, h := range c.Handles() {
		if h.Identity().Label == label {
			return h
		}
	}
	return nil
}
