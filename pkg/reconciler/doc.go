// Package reconciler periodically checks every node of a running cube and
// sends its neighbors again to any reachable node whose peer table is
// incomplete.
package reconciler
