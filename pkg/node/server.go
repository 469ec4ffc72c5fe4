package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/cuemby/hypernet/pkg/client"
	"github.com/cuemby/hypernet/pkg/log"
	"github.com/cuemby/hypernet/pkg/metrics"
	"github.com/cuemby/hypernet/pkg/protocol"
	"github.com/cuemby/hypernet/pkg/topology"
	"github.com/cuemby/hypernet/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

const (
	// DefaultForwardTimeout bounds each relay to a neighbor
	DefaultForwardTimeout = 2 * time.Second

	// DefaultReadTimeout bounds how long a client may take to send its frame
	DefaultReadTimeout = 10 * time.Second
)

// Config holds node configuration
type Config struct {
	Label     types.Label
	Dimension int

	// ListenAddr is the address to bind, e.g. "0.0.0.0:8003". Port 0 picks
	// a free port.
	ListenAddr string

	ForwardTimeout time.Duration
	ReadTimeout    time.Duration
}

func (c *Config) validate() error {
	if c.Dimension < 0 || c.Dimension > topology.MaxDimension {
		return fmt.Errorf("dimension %d out of range [0, %d]", c.Dimension, topology.MaxDimension)
	}
	if !topology.IsValidLabel(c.Label, c.Dimension) {
		return fmt.Errorf("label %s out of range for dimension %d", c.Label, c.Dimension)
	}
	if c.ListenAddr == "" {
		return errors.New("listen address is required")
	}
	return nil
}

// Server is one hypercube node: a TCP accept loop serving one request per
// connection against the node's State
type Server struct {
	cfg    Config
	state  *State
	link   *client.Link
	logger zerolog.Logger

	health     *metrics.Health
	valueGauge prometheus.Gauge
	peersGauge prometheus.Gauge

	mu       sync.Mutex
	listener net.Listener

	ctx    context.Context
	cancel context.CancelFunc

	// connections in flight plus background forwards
	wg sync.WaitGroup
}

// NewServer creates a node server. Nothing is bound until Start or Serve.
func NewServer(cfg Config) (*Server, error) {
	if cfg.ForwardTimeout <= 0 {
		cfg.ForwardTimeout = DefaultForwardTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid node config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	label := cfg.Label.String()
	return &Server{
		cfg:        cfg,
		link:       client.NewLink(cfg.ForwardTimeout),
		logger:     log.WithLabel("node", cfg.Label),
		health:     metrics.NewHealth(metrics.ComponentListener, metrics.ComponentPeers),
		valueGauge: metrics.NodeValue.WithLabelValues(label),
		peersGauge: metrics.NodePeers.WithLabelValues(label),
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Start binds the listen address and serves in the background until ctx is
// canceled or Stop is called
func (s *Server) Start(ctx context.Context) error {
	if err := s.listen(); err != nil {
		return err
	}
	go func() {
		if err := s.Serve(ctx); err != nil {
			s.logger.Error().Err(err).Msg("Accept loop stopped")
		}
	}()
	return nil
}

// Serve runs the accept loop, binding first if Start has not. It returns nil
// once the server is stopped.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.listen(); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, s.Stop)
	defer stop()

	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			// transient accept failures (e.g. EMFILE) must not end the loop
			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else if backoff *= 2; backoff > time.Second {
				backoff = time.Second
			}
			s.logger.Warn().Err(err).Dur("retry_in", backoff).Msg("Accept failed")
			select {
			case <-time.After(backoff):
			case <-s.ctx.Done():
				return nil
			}
			continue
		}
		backoff = 0

		// Stop cancels before it waits, so no Add can follow its Wait
		s.mu.Lock()
		if s.ctx.Err() != nil {
			s.mu.Unlock()
			_ = conn.Close()
			return nil
		}
		s.wg.Add(1)
		s.mu.Unlock()

		go s.handleConn(conn)
	}
}

func (s *Server) listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return nil
	}
	if s.ctx.Err() != nil {
		return errors.New("server stopped")
	}

	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		s.health.Set(metrics.ComponentListener, false, err.Error())
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.ListenAddr, err)
	}
	s.listener = ln

	addr, _ := netip.ParseAddrPort(ln.Addr().String())
	s.state = NewState(types.NewIdentity(s.cfg.Label, addr), s.cfg.Dimension)
	s.logger = s.logger.With().Str("addr", addr.String()).Logger()

	s.health.Set(metrics.ComponentListener, true, "listening on "+addr.String())
	s.updatePeerHealth(0)
	s.valueGauge.Set(0)

	s.logger.Info().Int("dimension", s.cfg.Dimension).Msg("Node listening")
	return nil
}

// Stop closes the listener and waits for in-flight connections and relays.
// It is safe to call more than once.
func (s *Server) Stop() {
	s.cancel()

	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln != nil {
		_ = ln.Close()
	}

	s.wg.Wait()
	s.health.Set(metrics.ComponentListener, false, "stopped")
}

// Addr returns the bound address, or the zero value before binding
func (s *Server) Addr() netip.AddrPort {
	if st := s.State(); st != nil {
		return st.Self().Addr
	}
	return netip.AddrPort{}
}

// Identity returns the node's label bound to its listen address
func (s *Server) Identity() types.Identity {
	return types.NewIdentity(s.cfg.Label, s.Addr())
}

// Health returns the node's component health, served on the admin endpoint
func (s *Server) Health() *metrics.Health {
	return s.health
}

// State returns the node state, or nil before binding
func (s *Server) State() *State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	timer := metrics.NewTimer()
	remote := conn.RemoteAddr().String()

	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	frame, err := protocol.ReadFrame(conn)
	if err != nil {
		if errors.Is(err, protocol.ErrFrameTooLarge) {
			metrics.FramesRejectedTotal.WithLabelValues("too_large").Inc()
			s.logger.Warn().Str("remote", remote).Msg("Rejected oversize frame")
		} else {
			metrics.FramesRejectedTotal.WithLabelValues("read_error").Inc()
			s.logger.Debug().Err(err).Str("remote", remote).Msg("Failed to read frame")
		}
		return
	}

	var (
		kind = "malformed"
		resp protocol.Message
	)
	req, err := protocol.Decode(frame)
	if err != nil {
		metrics.FramesRejectedTotal.WithLabelValues("malformed").Inc()
		s.logger.Warn().Err(err).Str("remote", remote).Msg("Rejected malformed frame")
		resp = protocol.Errorf("%v", err)
	} else {
		kind = req.Kind().String()
		resp = req.Dispatch(s.ctx, handler{s})
	}

	out, err := protocol.Encode(resp)
	if err != nil {
		s.logger.Error().Err(err).Str("kind", kind).Msg("Response does not fit in a frame")
		resp = protocol.Errorf("response too large")
		out, _ = protocol.Encode(resp)
	}

	_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.ReadTimeout))
	if err := protocol.WriteFrame(conn, out); err != nil {
		s.logger.Debug().Err(err).Str("remote", remote).Str("kind", kind).Msg("Failed to write response")
	}

	status := "ok"
	if _, failed := resp.(protocol.Err); failed {
		status = "error"
	}
	metrics.NodeRequestsTotal.WithLabelValues(kind, status).Inc()
	timer.ObserveDurationVec(metrics.NodeRequestDuration, kind)
}

// updatePeerHealth marks the node ready once every neighbor can be resolved
func (s *Server) updatePeerHealth(known int) {
	s.peersGauge.Set(float64(known))

	missing := 0
	for _, n := range topology.NeighborLabels(s.cfg.Label, s.cfg.Dimension) {
		if _, ok := s.state.Peer(n); !ok {
			missing++
		}
	}
	if missing == 0 {
		s.health.Set(metrics.ComponentPeers, true, fmt.Sprintf("%d peers known", known))
		return
	}
	s.health.Set(metrics.ComponentPeers, false,
		fmt.Sprintf("%d of %d neighbors unknown", missing, s.cfg.Dimension))
}
