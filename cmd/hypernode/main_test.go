package main

import (
	"testing"

	"github.com/cuemby/hypernet/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArgs(t *testing.T) {
	label, dim, port, err := parseArgs([]string{"5", "3", "8005"})
	require.NoError(t, err)
	assert.Equal(t, types.Label(5), label)
	assert.Equal(t, 3, dim)
	assert.Equal(t, uint16(8005), port)

	tests := []struct {
		name string
		args []string
	}{
		{name: "label not a number", args: []string{"x", "3", "8005"}},
		{name: "negative label", args: []string{"-1", "3", "8005"}},
		{name: "dimension not a number", args: []string{"1", "three", "8005"}},
		{name: "port too large", args: []string{"1", "3", "70000"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, _, err := parseArgs(tt.args)
			assert.Error(t, err)
		})
	}
}
