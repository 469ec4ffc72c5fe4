package coordinator

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/cuemby/hypernet/pkg/types"
)

// ErrNotConverged is returned when a flood has not visited every node before
// the convergence deadline
var ErrNotConverged = errors.New("flood did not converge")

// GatherError reports the nodes a collective operation failed on
type GatherError struct {
	Op       string
	Total    int
	Failures map[types.Label]error
}

func (e *GatherError) Error() string {
	labels := e.Labels()
	parts := make([]string, 0, len(labels))
	for _, l := range labels {
		parts = append(parts, fmt.Sprintf("node %s: %v", l, e.Failures[l]))
	}
	return fmt.Sprintf("%s failed on %d of %d nodes: %s", e.Op, len(labels), e.Total, strings.Join(parts, "; "))
}

// Unwrap exposes every per-node error to errors.Is and errors.As
func (e *GatherError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, l := range e.Labels() {
		errs = append(errs, e.Failures[l])
	}
	return errs
}

// Labels returns the failed labels in ascending order
func (e *GatherError) Labels() []types.Label {
	labels := make([]types.Label, 0, len(e.Failures))
	for l := range e.Failures {
		labels = append(labels, l)
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i] < labels[j] })
	return labels
}
