/*
Package launcher starts hypercube nodes and owns their handles.

The coordinator only needs to start one server per label and to stop it
later, so that is all the Launcher interface offers. Two implementations
exist:

  - ProcessLauncher runs the hypernode binary once per node as
    "hypernode <label> <dimension> <port>". With LogDir set, output goes to
    LogDir/node-<label>.log and the process gets its own process group, so
    nodes launched by "hypernet up" keep running after the CLI exits. Later
    invocations stop them by pid with StopPID.
  - InProcess runs node.Server values inside the calling process. Tests and
    "hypernet run --in-process" use it.

Stopping sends SIGTERM (or stops the server) and waits for exit until the
context ends, then kills the process.
*/
package launcher
