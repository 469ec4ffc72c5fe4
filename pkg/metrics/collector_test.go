package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cuemby/hypernet/pkg/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

type fakeSource struct {
	values map[types.Label]uint64
	err    error
}

func (f fakeSource) QueryAll(context.Context) (map[types.Label]uint64, error) {
	return f.values, f.err
}

func TestCollectorCollect(t *testing.T) {
	tests := []struct {
		name      string
		source    fakeSource
		reachable float64
		visited   float64
	}{
		{
			name:      "fresh cube",
			source:    fakeSource{values: map[types.Label]uint64{0: 0, 1: 0, 2: 0, 3: 0}},
			reachable: 4,
			visited:   0,
		},
		{
			name:      "partially flooded",
			source:    fakeSource{values: map[types.Label]uint64{0: 1, 1: 1, 2: 0, 3: 2}},
			reachable: 4,
			visited:   3,
		},
		{
			name:      "partial failure",
			source:    fakeSource{values: map[types.Label]uint64{0: 5}, err: errors.New("node 1 unreachable")},
			reachable: 1,
			visited:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCollector(tt.source, time.Minute)
			c.collect()

			assert.Equal(t, tt.reachable, testutil.ToFloat64(CubeNodesReachable))
			assert.Equal(t, tt.visited, testutil.ToFloat64(CubeNodesVisited))
		})
	}
}

func TestCollectorStartStop(t *testing.T) {
	c := NewCollector(fakeSource{values: map[types.Label]uint64{0: 7, 1: 7}}, 10*time.Millisecond)
	c.Start()
	defer c.Stop()

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(CubeNodesVisited) == 2
	}, time.Second, 5*time.Millisecond)
}
