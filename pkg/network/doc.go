/*
Package network finds free local TCP endpoints for hypercube nodes.

A cube of dimension d needs 2^d listening ports before any node starts. Two
allocators are provided:

  - RangeAllocator scans a fixed port range (8000..12000 by default) and
    keeps every port it can bind and immediately release.
  - EphemeralAllocator asks the kernel for port 0 n times, holding all
    listeners until the batch is complete so the ports are distinct.

Both verify availability by binding, never by static knowledge, and both fail
with ErrPortExhaustion when fewer than n ports can be found. A port released
by the allocator may be taken by another process before the node binds it;
the node then fails to start and the launch reports it.
*/
package network
