package server

import "time"

// Protocol is the datagram discipline a BindSpec selects.
type Protocol int

const (
	UDP Protocol = iota
	TCP
)

func (p Protocol) String() string {
	if p == TCP {
		return "tcp"
	}
	return "udp"
}

// BindSpec is a parsed listen address: which protocol, and where.
type BindSpec struct {
	Address  string
	Protocol Protocol
}

// DefaultBindAddress is used when no bind string is supplied.
const DefaultBindAddress = "0.0.0.0:12201"

// ParseBind maps "tcp://<addr>", "udp://<addr>", or a bare "<addr>" to a
// BindSpec. Unknown schemes and bare addresses default to UDP with the
// entire input kept as the address; a bad address only fails later, at
// bind time.
func ParseBind(s string) BindSpec {
	if s == "" {
		return BindSpec{Address: DefaultBindAddress, Protocol: UDP}
	}
	if len(s) >= 6 && s[:6] == "tcp://" {
		return BindSpec{Address: s[6:], Protocol: TCP}
	}
	if len(s) >= 6 && s[:6] == "udp://" {
		return BindSpec{Address: s[6:], Protocol: UDP}
	}
	return BindSpec{Address: s, Protocol: UDP}
}

// Config is the immutable server configuration for the lifetime of a run.
type Config struct {
	Bind              BindSpec
	TCPKeepAlive      time.Duration
	TCPMaxRecordBytes int
	MaxTCPConnections int
	// UDPRecvBufBytes is a best-effort SO_RCVBUF request (0 disables
	// tuning); it is not part of the original protocol data model, only a
	// DOMAIN STACK addition (see SPEC_FULL.md).
	UDPRecvBufBytes int
}

const (
	DefaultTCPKeepAlive      = 120 * time.Second
	DefaultTCPMaxRecordBytes = 256 * 1024
	// MaxTCPConnections is a deliberate back-pressure knob, not
	// configuration; see §9 of the design notes.
	MaxTCPConnections      = 1024
	DefaultUDPRecvBufBytes = 2 * 1024 * 1024
)

// DefaultConfig returns a Config with the documented defaults.
func DefaultConfig() Config {
	return Config{
		Bind:              BindSpec{Address: DefaultBindAddress, Protocol: UDP},
		TCPKeepAlive:      DefaultTCPKeepAlive,
		TCPMaxRecordBytes: DefaultTCPMaxRecordBytes,
		MaxTCPConnections: MaxTCPConnections,
		UDPRecvBufBytes:   DefaultUDPRecvBufBytes,
	}
}
