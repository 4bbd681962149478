package server

import (
	"io"
	"net"
	"time"

	"github.com/nullbyte-io/gelf-ingest/internal/metrics"
)

// session drives one TCP connection's Framer and reports Received values
// onto out. It fuses spec §4.3.2's "ConnectionSession" and "TimeoutSession"
// into a single goroutine per connection: the deadline on the socket is the
// watchdog, and it is only pushed forward when the framer actually produces
// a Received value — never on a bare socket read. That is what makes a
// chatty peer stuffing an oversize, never-delimited record eventually trip
// the timeout instead of staying alive forever on raw byte traffic.
type session[M any] struct {
	conn      net.Conn
	framer    *Framer[M]
	keepAlive time.Duration
}

func newSession[M any](conn net.Conn, decode Decoder[M], maxRecordBytes int, keepAlive time.Duration) *session[M] {
	metrics.IncTCPConnAccept()
	return &session[M]{
		conn:      conn,
		framer:    NewFramer(decode, maxRecordBytes),
		keepAlive: keepAlive,
	}
}

// run reads from the connection, draining frames into out, until the
// connection closes, the watchdog elapses, or done fires. It always closes
// conn and reports exactly one tcp_conn_close before returning.
func (s *session[M]) run(done <-chan struct{}, out chan<- Received[M]) {
	defer func() {
		_ = s.conn.Close()
		metrics.IncTCPConnClose()
	}()

	if err := s.conn.SetReadDeadline(time.Now().Add(s.keepAlive)); err != nil {
		return
	}

	buf := make([]byte, 64*1024)
	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			s.framer.Feed(buf[:n])
			progressed := false
			for {
				rec, ok := s.framer.Next()
				if !ok {
					break
				}
				progressed = true
				if !s.deliver(rec, done, out) {
					return
				}
				if rec.Kind == Error {
					// Mid-stream decode/protocol error: drop the
					// connection rather than keep reading from a peer
					// whose framing state we no longer trust.
					return
				}
			}
			if progressed {
				if dErr := s.conn.SetReadDeadline(time.Now().Add(s.keepAlive)); dErr != nil {
					return
				}
			}
		}
		if err != nil {
			select {
			case <-done:
				// Shutdown abandoned this read; nothing was dropped that
				// the protocol layer ever saw, so no Error is reported.
				return
			default:
			}
			if ne, isNet := err.(net.Error); isNet && ne.Timeout() {
				metrics.IncTCPConnTimeout()
				return
			}
			if err == io.EOF {
				if rec, ok := s.framer.Flush(); ok {
					s.deliver(rec, done, out)
				}
				return
			}
			s.deliver(Received[M]{Kind: Error, Err: err}, done, out)
			return
		}
		select {
		case <-done:
			return
		default:
		}
	}
}

// deliver sends rec to out, honoring shutdown. Returns false if the caller
// should stop reading (shutdown observed).
func (s *session[M]) deliver(rec Received[M], done <-chan struct{}, out chan<- Received[M]) bool {
	select {
	case out <- rec:
		return true
	case <-done:
		return false
	}
}
