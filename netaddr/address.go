// Package netaddr implements the substrate's transport address type.
// Adapted from gnunet-go's util.Address (src/gnunet/util/address.go),
// which carried a single transport-tagged byte blob; here the spec calls
// for two concrete realizations sharing one contract (spec.md §6): a
// strict "resolves to one socket" binding and a free-form host:port
// binding for names a DNS lookup hasn't settled yet.
package netaddr

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// Errors returned by this package.
var (
	ErrInvalidFormat  = errors.New("netaddr: invalid address format")
	ErrAmbiguousOrNone = errors.New("netaddr: address does not resolve to exactly one socket address")
)

// Address is a transport address a peer can be reached on. Both
// realizations below implement it.
type Address interface {
	// String renders the address in its canonical textual form.
	String() string
	// ResolveOne resolves the address to exactly one net.Addr, failing if
	// the address is ambiguous (resolves to more than one) or resolves to
	// none. Used at RoutingTable write-time to reject ambiguous DNS names.
	ResolveOne() (net.Addr, error)
}

// Parse decodes the textual form of an address ("tcp:host:port",
// "quic:host:port", or a bare "host:port" name binding) into an Address.
func Parse(s string) (Address, error) {
	if sa, err := ParseSocketAddress(s); err == nil {
		return sa, nil
	}
	return ParseStringAddress(s)
}

//----------------------------------------------------------------------
// SocketAddress: transport-tagged IP:port, strictly resolvable.
//----------------------------------------------------------------------

// SocketAddress binds a transport name ("tcp" or "quic") to a host:port
// pair that must resolve to exactly one socket address.
type SocketAddress struct {
	Transport string
	Host      string
	Port      uint16
}

// ParseSocketAddress parses "transport:host:port".
func ParseSocketAddress(s string) (SocketAddress, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return SocketAddress{}, ErrInvalidFormat
	}
	var port uint16
	if _, err := fmt.Sscanf(parts[2], "%d", &port); err != nil {
		return SocketAddress{}, ErrInvalidFormat
	}
	return SocketAddress{Transport: parts[0], Host: parts[1], Port: port}, nil
}

// String renders the address as "transport:host:port".
func (a SocketAddress) String() string {
	return fmt.Sprintf("%s:%s:%d", a.Transport, a.Host, a.Port)
}

// ResolveOne resolves the host:port to exactly one socket address.
func (a SocketAddress) ResolveOne() (net.Addr, error) {
	ips, err := net.LookupIP(a.Host)
	if err != nil {
		return nil, err
	}
	if len(ips) != 1 {
		return nil, ErrAmbiguousOrNone
	}
	return &net.TCPAddr{IP: ips[0], Port: int(a.Port)}, nil
}

//----------------------------------------------------------------------
// StringAddress: free-form host:port binding, resolved lazily.
//----------------------------------------------------------------------

// StringAddress is a free-form "host:port" binding (e.g. a name the local
// resolver hasn't settled to an IP yet). It still must resolve to exactly
// one socket address to be accepted by RoutingTable.Set.
type StringAddress struct {
	Raw string
}

// ParseStringAddress wraps a raw "host:port" string.
func ParseStringAddress(s string) (StringAddress, error) {
	if _, _, err := net.SplitHostPort(s); err != nil {
		return StringAddress{}, ErrInvalidFormat
	}
	return StringAddress{Raw: s}, nil
}

// String renders the address in its raw textual form.
func (a StringAddress) String() string {
	return a.Raw
}

// ResolveOne resolves the host:port string to exactly one socket address.
func (a StringAddress) ResolveOne() (net.Addr, error) {
	host, port, err := net.SplitHostPort(a.Raw)
	if err != nil {
		return nil, err
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		return nil, err
	}
	if len(ips) != 1 {
		return nil, ErrAmbiguousOrNone
	}
	var p int
	if _, err := fmt.Sscanf(port, "%d", &p); err != nil {
		return nil, ErrInvalidFormat
	}
	return &net.TCPAddr{IP: ips[0], Port: p}, nil
}
