package node

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/hypernet/pkg/client"
	"github.com/cuemby/hypernet/pkg/metrics"
	"github.com/cuemby/hypernet/pkg/protocol"
	"github.com/cuemby/hypernet/pkg/topology"
	"github.com/cuemby/hypernet/pkg/types"
)

// handler serves decoded requests against the server's state
type handler struct {
	s *Server
}

var _ protocol.Handler = handler{}

func (h handler) HandlePing(context.Context, protocol.Ping) protocol.Message {
	return protocol.Pong{}
}

func (h handler) HandleGetValue(context.Context, protocol.GetValue) protocol.Message {
	return protocol.Value{N: h.s.state.Value()}
}

func (h handler) HandleValue(_ context.Context, req protocol.Value) protocol.Message {
	h.s.state.SetValue(req.N)
	h.s.valueGauge.Set(float64(req.N))
	return protocol.Ok{}
}

func (h handler) HandleSetPeerInfo(_ context.Context, req protocol.SetPeerInfo) protocol.Message {
	known := h.s.state.SetPeers(req.Peers)
	h.s.updatePeerHealth(known)
	h.s.logger.Debug().Int("entries", len(req.Peers)).Int("known", known).Msg("Peer table updated")
	return protocol.Ok{}
}

func (h handler) HandleGetPeerInfo(context.Context, protocol.GetPeerInfo) protocol.Message {
	return protocol.PeerInfo{Peers: h.s.state.Peers()}
}

func (h handler) HandlePropagate(_ context.Context, req protocol.Propagate) protocol.Message {
	step := h.s.state.ApplyPropagate(req.Sender, req.Value)
	h.s.valueGauge.Set(float64(step.Value))

	if !step.Forward {
		h.s.logger.Debug().Str("sender", req.Sender.String()).Uint64("value", step.Value).Msg("Flood revisit")
		return protocol.Ok{}
	}

	h.s.logger.Debug().Str("sender", req.Sender.String()).Uint64("value", step.Value).Msg("Flood first visit")
	for _, n := range topology.NeighborLabels(h.s.cfg.Label, h.s.cfg.Dimension) {
		if n == req.Sender {
			continue
		}
		h.s.forwardPropagate(n, step.Payload)
	}
	return protocol.Ok{}
}

func (h handler) HandleBroadcast(ctx context.Context, req protocol.Broadcast) protocol.Message {
	if req.ID == "" {
		return protocol.Errorf("broadcast without id")
	}
	if !topology.IsValidLabel(req.Origin, h.s.cfg.Dimension) {
		return protocol.Errorf("broadcast origin %s outside dimension %d", req.Origin, h.s.cfg.Dimension)
	}

	if !h.s.state.MarkBroadcast(req.ID, req.Value) {
		h.s.logger.Debug().Str("broadcast_id", req.ID).Msg("Duplicate broadcast ignored")
		return protocol.Ok{}
	}
	h.s.valueGauge.Set(float64(req.Value))

	if failures := h.s.relayBroadcast(ctx, req); len(failures) > 0 {
		return protocol.Errorf("broadcast %s incomplete: %s", req.ID, strings.Join(failures, "; "))
	}
	return protocol.Ok{}
}

func (h handler) HandleUnsupported(_ context.Context, req protocol.Message) protocol.Message {
	h.s.logger.Warn().Str("kind", req.Kind().String()).Msg("Unsupported request")
	return protocol.Errorf("%v: %s", protocol.ErrUnsupportedRequest, req.Kind())
}

// forwardPropagate relays one flood step in the background. Failures are
// logged and counted, never retried.
func (s *Server) forwardPropagate(to types.Label, value uint64) {
	target, ok := s.state.Peer(to)
	if !ok {
		metrics.ForwardsTotal.WithLabelValues(protocol.KindPropagate.String(), "no_peer").Inc()
		s.logger.Warn().Str("to", to.String()).Msg("Cannot forward flood: neighbor not in peer table")
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := s.link.Propagate(s.ctx, target, s.cfg.Label, value)
		s.recordForward(protocol.KindPropagate, to, err)
	}()
}

// relayBroadcast delivers req to this node's children in the spanning tree
// rooted at req.Origin and waits for their subtrees. It returns one entry per
// failed child.
func (s *Server) relayBroadcast(ctx context.Context, req protocol.Broadcast) []string {
	children := topology.BroadcastChildren(s.cfg.Label, req.Origin, s.cfg.Dimension)
	if len(children) == 0 {
		return nil
	}

	var (
		mu       sync.Mutex
		failures []string
		wg       sync.WaitGroup
	)
	fail := func(child types.Label, msg string) {
		mu.Lock()
		defer mu.Unlock()
		failures = append(failures, fmt.Sprintf("node %s: %s", child, msg))
	}

	for _, child := range children {
		target, ok := s.state.Peer(child)
		if !ok {
			metrics.ForwardsTotal.WithLabelValues(protocol.KindBroadcast.String(), "no_peer").Inc()
			fail(child, "unreachable "+labelList(topology.Subtree(child, req.Origin, s.cfg.Dimension))+": not in peer table")
			continue
		}

		wg.Add(1)
		go func(child types.Label) {
			defer wg.Done()

			// deeper subtrees get proportionally longer to answer
			levels := topology.SubtreeHeight(child, req.Origin, s.cfg.Dimension) + 1
			callCtx, cancel := context.WithTimeout(ctx, time.Duration(levels)*s.cfg.ForwardTimeout)
			defer cancel()

			err := s.link.Broadcast(callCtx, target, req)
			s.recordForward(protocol.KindBroadcast, child, err)
			if err == nil {
				return
			}

			var remote *client.RemoteError
			if errors.As(err, &remote) {
				fail(child, remote.Text)
				return
			}
			fail(child, "unreachable "+labelList(topology.Subtree(child, req.Origin, s.cfg.Dimension))+": "+err.Error())
		}(child)
	}
	wg.Wait()

	sort.Strings(failures)
	return failures
}

func (s *Server) recordForward(kind protocol.Kind, to types.Label, err error) {
	if err == nil {
		metrics.ForwardsTotal.WithLabelValues(kind.String(), "ok").Inc()
		return
	}
	result := "error"
	if errors.Is(err, client.ErrTimeout) {
		result = "timeout"
	}
	metrics.ForwardsTotal.WithLabelValues(kind.String(), result).Inc()
	s.logger.Warn().Err(err).Str("kind", kind.String()).Str("to", to.String()).Msg("Forward failed")
}

func labelList(labels []types.Label) string {
	parts := make([]string, len(labels))
	for i, l := range labels {
		parts[i] = l.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}
