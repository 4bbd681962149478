package server

import (
	"fmt"
	"net"
	"sync"

	"github.com/nullbyte-io/gelf-ingest/internal/logging"
	"github.com/nullbyte-io/gelf-ingest/internal/udpsock"
)

// maxUDPDatagram is large enough for any single UDP payload the kernel can
// deliver; oversize enforcement is explicitly an OS-level concern for UDP
// (spec §4.2), so this is a read-buffer sizing choice, not a protocol limit.
const maxUDPDatagram = 65535

// udpReceiver reads datagrams from a bound UDP socket, each one its own
// frame with no per-peer state (spec §4.2). Unlike the TCP path, a decoder
// result of (nil, nil) is discarded silently rather than surfaced as
// Incomplete — see SPEC_FULL.md's Open Questions for why.
type udpReceiver[M any] struct {
	conn      *net.UDPConn
	decode    Decoder[M]
	out       chan Received[M]
	done      chan struct{}
	closeOnce sync.Once
}

// listenUDP binds addr, best-effort raises the kernel receive buffer to
// rcvBufBytes, and starts reading datagrams in the background. decode is
// shared across all datagrams; GELF UDP chunk re-assembly is keyed by
// message ID across peers, not per-connection, so there is no analogue of
// the TCP path's per-session DecoderFactory here.
func listenUDP[M any](addr string, decode Decoder[M], rcvBufBytes int) (*udpReceiver[M], error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBind, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBind, err)
	}
	if rcvBufBytes > 0 {
		if err := udpsock.SetRecvBuffer(conn, rcvBufBytes); err != nil {
			logging.L().Warn("udp_rcvbuf_tune_failed", "error", err)
		}
	}
	r := &udpReceiver[M]{
		conn:   conn,
		decode: decode,
		out:    make(chan Received[M]),
		done:   make(chan struct{}),
	}
	go r.readLoop()
	return r, nil
}

func (r *udpReceiver[M]) readLoop() {
	defer close(r.out)
	buf := make([]byte, maxUDPDatagram)
	for {
		n, _, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-r.done:
				return
			default:
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return
		}

		frame := make([]byte, n)
		copy(frame, buf[:n])

		msg, decErr := r.decode(frame)
		var rec Received[M]
		switch {
		case decErr != nil:
			rec = Received[M]{Kind: Error, Err: decErr}
		case msg != nil:
			rec = Received[M]{Kind: Complete, Message: *msg}
		default:
			// Discard silently: see Open Question #1.
			continue
		}

		select {
		case r.out <- rec:
		case <-r.done:
			return
		}
	}
}

func (r *udpReceiver[M]) Out() <-chan Received[M] { return r.out }
func (r *udpReceiver[M]) Addr() net.Addr          { return r.conn.LocalAddr() }
func (r *udpReceiver[M]) Close() error {
	r.closeOnce.Do(func() { close(r.done) })
	return r.conn.Close()
}
