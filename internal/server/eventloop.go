package server

import (
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/nullbyte-io/gelf-ingest/internal/logging"
	"github.com/nullbyte-io/gelf-ingest/internal/metrics"
)

// Receiver is the shared abstraction the EventLoop consumes, implemented by
// both the UDP and TCP receivers (spec §4: "EventLoop composes both behind a
// shared Receiver abstraction").
type Receiver[M any] interface {
	Out() <-chan Received[M]
	Addr() net.Addr
	Close() error
}

// Handle exposes exactly one operation, consistent with spec §4.5: Close
// signals the EventLoop to stop and reports whether the loop was still
// running to receive the signal. A second Close is a no-op returning false,
// since the handle is conceptually consumed by the first call.
type Handle struct {
	once   *sync.Once
	closed *bool
	stopCh chan struct{}
}

// Close requests the EventLoop stop after finishing any in-flight Complete.
// Returns true iff this call actually delivered the close signal.
func (h *Handle) Close() bool {
	delivered := false
	h.once.Do(func() {
		*h.closed = true
		close(h.stopCh)
		delivered = true
	})
	return delivered
}

// Server is the EventLoop: it owns a Receiver and drives a Processor on
// every Complete, until either the Handle is closed or stop (an OS signal
// channel, typically) fires. Modeled on the teacher's Server/ServerOption
// shape, generalized from a fixed TCP accept loop to the shared Receiver
// abstraction above.
type Server[M any] struct {
	cfg     Config
	process Processor[M]
	logger  *slog.Logger

	handle *Handle

	readyOnce sync.Once
	readyCh   chan struct{}
	addr      net.Addr

	totalComplete   uint64
	totalIncomplete uint64
	totalErrors     uint64
}

// Option configures a Server at construction time.
type Option[M any] func(*Server[M])

func WithConfig[M any](cfg Config) Option[M] { return func(s *Server[M]) { s.cfg = cfg } }
func WithLogger[M any](l *slog.Logger) Option[M] {
	return func(s *Server[M]) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer builds a Server ready to Run against a process callback.
func NewServer[M any](process Processor[M], opts ...Option[M]) *Server[M] {
	s := &Server[M]{
		cfg:     DefaultConfig(),
		process: process,
		logger:  logging.L(),
		readyCh: make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handle returns the close handle for this server. Valid any time before or
// during Run; calling Close before Run starts causes Run to return
// immediately after binding.
func (s *Server[M]) Handle() *Handle {
	if s.handle == nil {
		closed := false
		s.handle = &Handle{once: &sync.Once{}, closed: &closed, stopCh: make(chan struct{})}
	}
	return s.handle
}

// Ready is closed once the receiver has bound its socket(s) and Addr is
// safe to call. Useful for tests and for gating mDNS advertisement on an
// actual bound port rather than the configured one (which may be ":0").
func (s *Server[M]) Ready() <-chan struct{} { return s.readyCh }

// Addr returns the receiver's bound local address. Only meaningful after
// Ready has fired.
func (s *Server[M]) Addr() net.Addr { return s.addr }

// Run binds the configured receiver, then drives the event loop until the
// Handle is closed or osSignal fires, returning only after the receiver's
// socket(s) are released. osSignal may be nil to disable OS-signal shutdown
// (e.g. in tests).
func (s *Server[M]) Run(newDecoder DecoderFactory[M], osSignal <-chan struct{}) error {
	h := s.Handle()
	// Once Run returns there is no loop left to signal, so a later Close
	// reports false.
	defer h.once.Do(func() { *h.closed = true })

	var recv Receiver[M]
	var err error
	switch s.cfg.Bind.Protocol {
	case TCP:
		recv, err = listenTCP(s.cfg.Bind.Address, newDecoder, s.cfg.TCPMaxRecordBytes, s.cfg.TCPKeepAlive, s.cfg.MaxTCPConnections)
	default:
		recv, err = listenUDP(s.cfg.Bind.Address, newDecoder(), s.cfg.UDPRecvBufBytes)
	}
	if err != nil {
		wrap := fmt.Errorf("%w: %v", ErrBind, err)
		metrics.IncError(mapErrToMetric(wrap))
		return wrap
	}
	defer func() { _ = recv.Close() }()

	s.addr = recv.Addr()
	s.readyOnce.Do(func() { close(s.readyCh) })

	s.logger.Info("listen", "addr", s.addr.String(), "protocol", s.cfg.Bind.Protocol.String())
	s.logger.Info("ready")

	in := recv.Out()
	for {
		select {
		case rec, ok := <-in:
			if !ok {
				s.logger.Info("receiver_closed")
				return nil
			}
			s.handleReceived(rec)

		case <-h.stopCh:
			s.logger.Info("shutdown_close")
			_ = recv.Close()
			s.drainUntilClosed(in)
			return nil

		case <-osSignal:
			s.logger.Info("shutdown_signal")
			_ = recv.Close()
			s.drainUntilClosed(in)
			return nil
		}
	}
}

// drainUntilClosed finishes handling anything already in flight on in (spec
// §5: "the loop finishes handling the Complete currently in its hand") and
// returns once the receiver has closed its output channel.
func (s *Server[M]) drainUntilClosed(in <-chan Received[M]) {
	for rec := range in {
		s.handleReceived(rec)
	}
}

func (s *Server[M]) handleReceived(rec Received[M]) {
	switch rec.Kind {
	case Complete:
		s.totalComplete++
		metrics.IncReceiveOK()
		if err := s.process(rec.Message); err != nil {
			metrics.IncProcessErr()
			s.logger.Warn("process_error", "error", err)
			return
		}
		metrics.IncProcessOK()
	case Incomplete:
		s.totalIncomplete++
	case Error:
		s.totalErrors++
		metrics.IncReceiveErr()
		wrap := fmt.Errorf("%w: %v", ErrDecode, rec.Err)
		metrics.IncError(mapErrToMetric(wrap))
		s.logger.Warn("receive_error", "error", wrap)
	}
}
