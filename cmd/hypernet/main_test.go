package main

import (
	"bytes"
	"context"
	"io"
	"net/netip"
	"testing"
	"time"

	"github.com/cuemby/hypernet/pkg/config"
	"github.com/cuemby/hypernet/pkg/coordinator"
	"github.com/cuemby/hypernet/pkg/launcher"
	"github.com/cuemby/hypernet/pkg/network"
	"github.com/cuemby/hypernet/pkg/storage"
	"github.com/cuemby/hypernet/pkg/topology"
	"github.com/cuemby/hypernet/pkg/types"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestCmd builds a standalone command so tests do not share flag state
// through rootCmd
func newTestCmd(run func(*cobra.Command, []string) error, flags func(*cobra.Command)) (*cobra.Command, *bytes.Buffer) {
	cmd := &cobra.Command{Use: "test", RunE: run, SilenceUsage: true, SilenceErrors: true}
	addGlobalFlags(cmd)
	if flags != nil {
		flags(cmd)
	}
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	return cmd, &out
}

func execute(t *testing.T, cmd *cobra.Command, args ...string) error {
	t.Helper()
	cmd.SetArgs(args)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return cmd.ExecuteContext(ctx)
}

func TestLoadConfigOverrides(t *testing.T) {
	var got *config.Config
	cmd, _ := newTestCmd(func(cmd *cobra.Command, _ []string) error {
		var err error
		got, err = loadConfig(cmd)
		return err
	}, addCubeFlags)

	dir := t.TempDir()
	require.NoError(t, execute(t, cmd,
		"--name", "lab", "--data-dir", dir, "-d", "5", "--best-effort",
		"--timeout", "750ms", "--allocator", "ephemeral", "--admin-base-port", "9100"))

	assert.Equal(t, "lab", got.Name)
	assert.Equal(t, dir, got.DataDir)
	assert.Equal(t, 5, got.Dimension)
	assert.True(t, got.BestEffort)
	assert.Equal(t, 750*time.Millisecond, got.Timeouts.Request)
	assert.Equal(t, config.AllocatorEphemeral, got.Allocator)
	assert.Equal(t, 9100, got.AdminBasePort)
	assert.Equal(t, config.LauncherProcess, got.Launcher)
}

func TestLoadConfigRejectsInvalidOverride(t *testing.T) {
	cmd, _ := newTestCmd(func(cmd *cobra.Command, _ []string) error {
		_, err := loadConfig(cmd)
		return err
	}, addCubeFlags)

	err := execute(t, cmd, "-d", "40", "--data-dir", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension")
}

func TestCoordinatorConfigAdminAddr(t *testing.T) {
	cfg := config.Default()
	assert.Nil(t, coordinatorConfig(cfg).AdminAddr)

	cfg.AdminBasePort = 9100
	cc := coordinatorConfig(cfg)
	require.NotNil(t, cc.AdminAddr)
	assert.Equal(t, "127.0.0.1:9105", cc.AdminAddr(5))
}

func TestParseLabel(t *testing.T) {
	l, err := parseLabel("7", 3)
	require.NoError(t, err)
	assert.Equal(t, types.Label(7), l)

	_, err = parseLabel("8", 3)
	assert.Error(t, err)
	_, err = parseLabel("-1", 3)
	assert.Error(t, err)
}

func TestAttachWithoutCube(t *testing.T) {
	cmd, _ := newTestCmd(runQuery, nil)
	err := execute(t, cmd, "--data-dir", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hypernet up")
}

// recordCube launches an in-process cube and records it the way "up" does
func recordCube(t *testing.T, dir string, d int) *coordinator.Coordinator {
	t.Helper()

	topo, err := topology.Build(d, network.NewEphemeralAllocator(netip.MustParseAddr("127.0.0.1")))
	require.NoError(t, err)
	c := coordinator.New(topo, launcher.NewInProcess(), coordinator.Config{RequestTimeout: time.Second})

	ctx := context.Background()
	require.NoError(t, c.Launch(ctx))
	t.Cleanup(func() { _ = c.Shutdown(context.Background()) })
	require.NoError(t, c.DistributePeers(ctx))

	cube := &types.Cube{Name: "default", Dimension: d, CreatedAt: time.Now()}
	for _, id := range topo.Identities() {
		cube.Nodes = append(cube.Nodes, types.NodeRecord{Label: id.Label, Addr: id.Addr, Status: types.NodeStatusReady})
	}

	store, err := storage.NewBoltStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.SaveCube(cube))
	require.NoError(t, store.Close())
	return c
}

func TestOperationsOnRecordedCube(t *testing.T) {
	dir := t.TempDir()
	recordCube(t, dir, 2)

	cmd, out := newTestCmd(runFlood, func(cmd *cobra.Command) {
		cmd.Flags().Bool("reset", false, "")
		cmd.Flags().Bool("no-wait", false, "")
	})
	require.NoError(t, execute(t, cmd, "--data-dir", dir, "--reset", "3"))
	assert.Contains(t, out.String(), "LABEL")
	assert.Contains(t, out.String(), "11")

	cmd, out = newTestCmd(runBroadcast, nil)
	require.NoError(t, execute(t, cmd, "--data-dir", dir, "1", "42"))
	assert.Contains(t, out.String(), "delivered to 4 nodes")

	cmd, out = newTestCmd(runQuery, nil)
	require.NoError(t, execute(t, cmd, "--data-dir", dir))
	assert.Equal(t, 4, bytes.Count(out.Bytes(), []byte(" 42\n")))

	cmd, out = newTestCmd(runStatus, func(cmd *cobra.Command) {
		cmd.Flags().Bool("watch", false, "")
		cmd.Flags().Duration("interval", time.Second, "")
		cmd.Flags().String("output", "table", "")
	})
	require.NoError(t, execute(t, cmd, "--data-dir", dir, "--output", "json"))
	assert.Contains(t, out.String(), `"reachable": true`)
	assert.Contains(t, out.String(), `"peers": 2`)

	cmd, out = newTestCmd(runPeers, func(cmd *cobra.Command) {
		cmd.Flags().Bool("show", false, "")
	})
	require.NoError(t, execute(t, cmd, "--data-dir", dir, "--show"))
	assert.Contains(t, out.String(), "PEER BITS")

	cmd, out = newTestCmd(runReset, nil)
	require.NoError(t, execute(t, cmd, "--data-dir", dir))
	assert.Contains(t, out.String(), "Reset 4 nodes")
}

func TestFloodRejectsBadOrigin(t *testing.T) {
	dir := t.TempDir()
	recordCube(t, dir, 1)

	cmd, _ := newTestCmd(runFlood, func(cmd *cobra.Command) {
		cmd.Flags().Bool("reset", false, "")
		cmd.Flags().Bool("no-wait", false, "")
	})
	assert.Error(t, execute(t, cmd, "--data-dir", dir, "2"))
}

func TestRunInProcess(t *testing.T) {
	cmd, out := newTestCmd(runRun, func(cmd *cobra.Command) {
		addCubeFlags(cmd)
		cmd.Flags().Bool("in-process", false, "")
		cmd.Flags().Uint32("origin", 0, "")
		cmd.Flags().Uint64("broadcast", 0, "")
		cmd.Flags().Bool("serve", false, "")
		cmd.Flags().String("metrics-addr", "", "")
		cmd.Flags().Bool("events", false, "")
	})

	require.NoError(t, execute(t, cmd,
		"--in-process", "-d", "3", "--allocator", "ephemeral", "--data-dir", t.TempDir(),
		"--origin", "5", "--broadcast", "9", "--events"))
	assert.Contains(t, out.String(), "Flood from node 5 (d=3)")
	assert.Contains(t, out.String(), "delivered 9 to 8 nodes")
}

func TestTopologyCommand(t *testing.T) {
	cmd, out := newTestCmd(runTopology, func(cmd *cobra.Command) {
		cmd.Flags().Int64("origin", -1, "")
	})
	require.NoError(t, execute(t, cmd, "2"))
	assert.Contains(t, out.String(), "01")
	assert.Contains(t, out.String(), "1 2")

	cmd, out = newTestCmd(runTopology, func(cmd *cobra.Command) {
		cmd.Flags().Int64("origin", -1, "")
	})
	require.NoError(t, execute(t, cmd, "--origin", "0", "2"))
	assert.Contains(t, out.String(), "CHILDREN")

	cmd, _ = newTestCmd(runTopology, func(cmd *cobra.Command) {
		cmd.Flags().Int64("origin", -1, "")
	})
	assert.Error(t, execute(t, cmd, "--origin", "4", "2"))
}
