/*
Package coordinator launches a hypercube of nodes and drives collective
operations against it: distributing peer tables, gathering values, seeding
floods, waiting for them to converge and broadcasting over the binomial
spanning tree.

Fan-out is bounded by Config.Concurrency. By default a collective
operation stops at the first node that fails; with Config.BestEffort it
contacts every node and returns a *GatherError naming each failure next to
the partial result.

	topo, _ := topology.Build(3, network.NewRangeAllocator(network.DefaultHost))
	c := coordinator.New(topo, launcher.NewInProcess(), coordinator.DefaultConfig())
	if err := c.Launch(ctx); err != nil {
		return err
	}
	defer c.Shutdown(ctx)

	_ = c.DistributePeers(ctx)
	values, err := c.FloodAndWait(ctx, 0)
*/
package coordinator
