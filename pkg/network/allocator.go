package network

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
)

const (
	// DefaultMinPort is the first port scanned by RangeAllocator
	DefaultMinPort = 8000

	// DefaultMaxPort is one past the last port scanned by RangeAllocator
	DefaultMaxPort = 12000
)

// DefaultHost is the address nodes are reachable on
var DefaultHost = netip.MustParseAddr("127.0.0.1")

// ErrPortExhaustion is returned when fewer free ports exist than requested
var ErrPortExhaustion = errors.New("port exhaustion")

// Allocator finds free local endpoints for node processes
type Allocator interface {
	Allocate(n int) ([]netip.AddrPort, error)
}

// RangeAllocator scans [MinPort, MaxPort) in order and returns the first n
// ports that can be bound on Host.
type RangeAllocator struct {
	Host    netip.Addr
	MinPort uint16
	MaxPort uint16
}

// NewRangeAllocator creates an allocator over the default port range
func NewRangeAllocator(host netip.Addr) *RangeAllocator {
	return &RangeAllocator{
		Host:    host,
		MinPort: DefaultMinPort,
		MaxPort: DefaultMaxPort,
	}
}

// Allocate returns n distinct ports, each verified by binding and releasing it
func (a *RangeAllocator) Allocate(n int) ([]netip.AddrPort, error) {
	if n < 0 {
		return nil, fmt.Errorf("cannot allocate %d ports", n)
	}
	if a.MaxPort <= a.MinPort {
		return nil, fmt.Errorf("%w: empty port range [%d, %d)", ErrPortExhaustion, a.MinPort, a.MaxPort)
	}

	addrs := make([]netip.AddrPort, 0, n)
	for port := int(a.MinPort); port < int(a.MaxPort) && len(addrs) < n; port++ {
		addr := netip.AddrPortFrom(a.Host, uint16(port))
		if Available(addr) {
			addrs = append(addrs, addr)
		}
	}

	if len(addrs) < n {
		return nil, fmt.Errorf("%w: found %d of %d free ports in [%d, %d)",
			ErrPortExhaustion, len(addrs), n, a.MinPort, a.MaxPort)
	}
	return addrs, nil
}

// EphemeralAllocator lets the kernel choose the ports. All listeners of a
// batch stay open until the batch is complete, so no port is returned twice.
type EphemeralAllocator struct {
	Host netip.Addr
}

// NewEphemeralAllocator creates a kernel-assigned port allocator
func NewEphemeralAllocator(host netip.Addr) *EphemeralAllocator {
	return &EphemeralAllocator{Host: host}
}

// Allocate returns n distinct kernel-assigned ports
func (a *EphemeralAllocator) Allocate(n int) ([]netip.AddrPort, error) {
	if n < 0 {
		return nil, fmt.Errorf("cannot allocate %d ports", n)
	}

	listeners := make([]net.Listener, 0, n)
	defer func() {
		for _, l := range listeners {
			_ = l.Close()
		}
	}()

	addrs := make([]netip.AddrPort, 0, n)
	for i := 0; i < n; i++ {
		l, err := net.Listen("tcp", netip.AddrPortFrom(a.Host, 0).String())
		if err != nil {
			return nil, fmt.Errorf("%w: allocated %d of %d ports: %v", ErrPortExhaustion, i, n, err)
		}
		listeners = append(listeners, l)

		tcpAddr, ok := l.Addr().(*net.TCPAddr)
		if !ok {
			return nil, fmt.Errorf("unexpected listener address %T", l.Addr())
		}
		addrs = append(addrs, netip.AddrPortFrom(a.Host, uint16(tcpAddr.Port)))
	}
	return addrs, nil
}

// Available reports whether addr can currently be bound. The listener is
// released immediately.
func Available(addr netip.AddrPort) bool {
	l, err := net.Listen("tcp", addr.String())
	if err != nil {
		return false
	}
	_ = l.Close()
	return true
}
