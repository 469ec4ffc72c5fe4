/*
Package health probes hypernet nodes until they are ready to serve.

Two checkers implement the Checker interface:

  - PingChecker sends a protocol Ping through a client.Link and expects Pong.
    The coordinator uses it after launching a cube to wait for every node.
  - HTTPChecker requests a node's admin endpoint (normally /ready), which only
    succeeds once the node is listening and knows all of its neighbors.

WaitHealthy polls a checker at Config.Interval. Failures during
Config.StartPeriod are not counted, which gives spawned processes time to
bind their port; after that, Config.Retries consecutive failures end the wait.

	status, err := health.WaitHealthy(ctx, health.NewPingChecker(id, link), health.DefaultConfig())
*/
package health
