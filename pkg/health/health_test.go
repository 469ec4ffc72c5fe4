package health

import (
	"context"
	"net"
	"net/netip"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cuemby/hypernet/pkg/client"
	"github.com/cuemby/hypernet/pkg/protocol"
	"github.com/cuemby/hypernet/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingChecker fails until it has been called okAfter times
type countingChecker struct {
	calls   atomic.Int32
	okAfter int32
}

func (c *countingChecker) Check(context.Context) Result {
	n := c.calls.Add(1)
	return Result{Healthy: n > c.okAfter, CheckedAt: time.Now(), Message: "counting"}
}

func (c *countingChecker) Type() CheckType { return "counting" }

func TestStatusUpdate(t *testing.T) {
	cfg := Config{Retries: 2}
	s := NewStatus()
	assert.False(t, s.Healthy)

	s.Update(Result{Healthy: true}, cfg)
	assert.True(t, s.Healthy)
	assert.Equal(t, 1, s.ConsecutiveSuccesses)

	s.Update(Result{Healthy: false}, cfg)
	assert.True(t, s.Healthy, "one failure is below the retry threshold")

	s.Update(Result{Healthy: false}, cfg)
	assert.False(t, s.Healthy)
	assert.Equal(t, 2, s.ConsecutiveFailures)
	assert.Zero(t, s.ConsecutiveSuccesses)
}

func TestStatusStartPeriod(t *testing.T) {
	cfg := Config{Retries: 1, StartPeriod: time.Hour}
	s := NewStatus()

	s.Update(Result{Healthy: false}, cfg)
	assert.True(t, s.InStartPeriod(cfg))
	assert.Zero(t, s.ConsecutiveFailures)
}

func TestWaitHealthy(t *testing.T) {
	cfg := Config{Interval: time.Millisecond, Timeout: time.Second, Retries: 10}

	t.Run("succeeds after failures", func(t *testing.T) {
		c := &countingChecker{okAfter: 3}
		status, err := WaitHealthy(context.Background(), c, cfg)
		require.NoError(t, err)
		assert.True(t, status.Healthy)
		assert.Equal(t, int32(4), c.calls.Load())
	})

	t.Run("gives up after retries", func(t *testing.T) {
		c := &countingChecker{okAfter: 1000}
		_, err := WaitHealthy(context.Background(), c, cfg)
		require.Error(t, err)
		assert.Equal(t, int32(10), c.calls.Load())
	})

	t.Run("stops with context", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		c := &countingChecker{okAfter: 1000}
		_, err := WaitHealthy(ctx, c, Config{Interval: time.Millisecond, Timeout: time.Second, Retries: 1, StartPeriod: time.Hour})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestPingChecker(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_, _ = protocol.ReadFrame(conn)
			frame, _ := protocol.Encode(protocol.Pong{})
			_ = protocol.WriteFrame(conn, frame)
			conn.Close()
		}
	}()

	link := client.NewLink(time.Second)
	target := types.NewIdentity(3, netip.MustParseAddrPort(ln.Addr().String()))

	result := NewPingChecker(target, link).Check(context.Background())
	assert.True(t, result.Healthy, result.Message)
	assert.Equal(t, CheckTypePing, NewPingChecker(target, link).Type())

	ln.Close()
	result = NewPingChecker(target, link).Check(context.Background())
	assert.False(t, result.Healthy)
	assert.Contains(t, result.Message, "connection failed")
}
