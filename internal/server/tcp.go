package server

import (
	"fmt"
	"net"
	"time"
)

// tcpReceiver binds a TCP listener and fans in connections through a
// multiplexer, satisfying the Receiver contract the EventLoop consumes.
type tcpReceiver[M any] struct {
	mux *multiplexer[M]
	ln  net.Listener
}

// listenTCP binds addr and starts accepting connections in the background.
// newDecoder is called once per accepted connection (see DecoderFactory).
func listenTCP[M any](addr string, newDecoder DecoderFactory[M], maxRecordBytes int, keepAlive time.Duration, maxConns int) (*tcpReceiver[M], error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBind, err)
	}
	mux := newMultiplexer(ln, newDecoder, maxRecordBytes, keepAlive, maxConns)
	go mux.acceptLoop()
	return &tcpReceiver[M]{mux: mux, ln: ln}, nil
}

func (r *tcpReceiver[M]) Out() <-chan Received[M] { return r.mux.Out() }
func (r *tcpReceiver[M]) Addr() net.Addr          { return r.ln.Addr() }
func (r *tcpReceiver[M]) Close() error {
	r.mux.Stop()
	return nil
}
