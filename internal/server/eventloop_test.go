package server

import (
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nullbyte-io/gelf-ingest/internal/metrics"
)

// stringDecode treats "BADDECODE" as a decode failure and a leading "~" as
// a chunked/incomplete marker (nil, nil); everything else decodes as
// itself, mirroring the spec §8 scenarios with a trivial message type so
// tests need no JSON.
func stringDecode(raw []byte) (*string, error) {
	s := string(raw)
	if s == "BADDECODE" {
		return nil, errors.New("rejected")
	}
	if strings.HasPrefix(s, "~") {
		return nil, nil
	}
	return &s, nil
}

type capture struct {
	mu  sync.Mutex
	msg []string
}

func (c *capture) process(m string) error {
	c.mu.Lock()
	c.msg = append(c.msg, m)
	c.mu.Unlock()
	return nil
}

func (c *capture) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.msg))
	copy(out, c.msg)
	return out
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	if !cond() {
		t.Fatalf("condition not met within %v", timeout)
	}
}

// startServer launches Run in the background and blocks until the receiver
// has bound, returning the live address so the caller can dial it.
func startServer(t *testing.T, cfg Config) (*Server[string], *capture, string) {
	t.Helper()
	cap := &capture{}
	srv := NewServer[string](cap.process, WithConfig[string](cfg))
	go func() {
		if err := srv.Run(func() Decoder[string] { return stringDecode }, nil); err != nil {
			t.Logf("Run returned: %v", err)
		}
	}()
	select {
	case <-srv.Ready():
	case <-time.After(time.Second):
		t.Fatalf("server did not become ready")
	}
	return srv, cap, srv.Addr().String()
}

func TestEventLoop_UDPSingleDatagram(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Bind = BindSpec{Address: "127.0.0.1:0", Protocol: UDP}
	pre := metrics.Snap()

	srv, cap, addr := startServer(t, cfg)
	defer srv.Handle().Close()

	conn, err := net.Dial("udp", addr)
	if err != nil {
		t.Fatalf("dial udp: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("ABC")); err != nil {
		t.Fatalf("write: %v", err)
	}

	waitFor(t, time.Second, func() bool { return len(cap.snapshot()) == 1 })
	if got := cap.snapshot(); len(got) != 1 || got[0] != "ABC" {
		t.Fatalf("expected [ABC], got %v", got)
	}
	post := metrics.Snap()
	if post.ReceiveOK-pre.ReceiveOK != 1 {
		t.Fatalf("expected receive_ok delta 1, got %d", post.ReceiveOK-pre.ReceiveOK)
	}
	if post.ProcessOK-pre.ProcessOK != 1 {
		t.Fatalf("expected process_ok delta 1, got %d", post.ProcessOK-pre.ProcessOK)
	}
}

func TestEventLoop_UDPChunkedDatagramDiscardedSilently(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Bind = BindSpec{Address: "127.0.0.1:0", Protocol: UDP}

	srv, cap, addr := startServer(t, cfg)
	defer srv.Handle().Close()

	conn, err := net.Dial("udp", addr)
	if err != nil {
		t.Fatalf("dial udp: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("~chunk")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := conn.Write([]byte("REAL")); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitFor(t, time.Second, func() bool { return len(cap.snapshot()) == 1 })
	if got := cap.snapshot(); len(got) != 1 || got[0] != "REAL" {
		t.Fatalf("expected only [REAL] (chunk discarded silently), got %v", got)
	}
}

func TestEventLoop_TCPTwoRecordsOneWrite(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Bind = BindSpec{Address: "127.0.0.1:0", Protocol: TCP}
	cfg.TCPMaxRecordBytes = 1024
	cfg.TCPKeepAlive = 5 * time.Second

	srv, cap, addr := startServer(t, cfg)
	defer srv.Handle().Close()

	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("dial tcp: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("HELLO\x00WORLD\x00")); err != nil {
		t.Fatalf("write: %v", err)
	}

	waitFor(t, time.Second, func() bool { return len(cap.snapshot()) == 2 })
	got := cap.snapshot()
	if got[0] != "HELLO" || got[1] != "WORLD" {
		t.Fatalf("expected [HELLO WORLD] in order, got %v", got)
	}
}

func TestEventLoop_TCPSplitRecord(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Bind = BindSpec{Address: "127.0.0.1:0", Protocol: TCP}
	cfg.TCPKeepAlive = 5 * time.Second

	srv, cap, addr := startServer(t, cfg)
	defer srv.Handle().Close()

	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("dial tcp: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("HEL")); err != nil {
		t.Fatalf("write: %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	if got := cap.snapshot(); len(got) != 0 {
		t.Fatalf("expected no processor call yet, got %v", got)
	}

	if _, err := conn.Write([]byte("LO\x00")); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitFor(t, time.Second, func() bool { return len(cap.snapshot()) == 1 })
	if got := cap.snapshot(); got[0] != "HELLO" {
		t.Fatalf("expected [HELLO], got %v", got)
	}
}

func TestEventLoop_TCPOversize(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Bind = BindSpec{Address: "127.0.0.1:0", Protocol: TCP}
	cfg.TCPMaxRecordBytes = 4
	cfg.TCPKeepAlive = 5 * time.Second

	pre := metrics.Snap()
	srv, cap, addr := startServer(t, cfg)
	defer srv.Handle().Close()

	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("dial tcp: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("TOOBIG\x00OK\x00")); err != nil {
		t.Fatalf("write: %v", err)
	}

	waitFor(t, time.Second, func() bool { return len(cap.snapshot()) == 1 })
	got := cap.snapshot()
	if len(got) != 1 || got[0] != "OK" {
		t.Fatalf("expected only [OK], got %v", got)
	}
	post := metrics.Snap()
	if post.TCPOverflow-pre.TCPOverflow != 1 {
		t.Fatalf("expected tcp_msg_overflow delta 1, got %d", post.TCPOverflow-pre.TCPOverflow)
	}
}

func TestEventLoop_TCPOversizeNoDelimiterThenClose(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Bind = BindSpec{Address: "127.0.0.1:0", Protocol: TCP}
	cfg.TCPMaxRecordBytes = 4
	cfg.TCPKeepAlive = 5 * time.Second

	pre := metrics.Snap()
	srv, cap, addr := startServer(t, cfg)
	defer srv.Handle().Close()

	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("dial tcp: %v", err)
	}
	if _, err := conn.Write([]byte("TOOBIG")); err != nil {
		t.Fatalf("write: %v", err)
	}
	conn.Close()

	waitFor(t, time.Second, func() bool {
		post := metrics.Snap()
		return post.TCPClose-pre.TCPClose == 1
	})
	if got := cap.snapshot(); len(got) != 0 {
		t.Fatalf("expected no processor calls, got %v", got)
	}
	post := metrics.Snap()
	if post.TCPOverflow-pre.TCPOverflow != 1 {
		t.Fatalf("expected tcp_msg_overflow delta 1, got %d", post.TCPOverflow-pre.TCPOverflow)
	}
}

func TestEventLoop_IdleTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Bind = BindSpec{Address: "127.0.0.1:0", Protocol: TCP}
	cfg.TCPKeepAlive = 50 * time.Millisecond

	pre := metrics.Snap()
	srv, cap, addr := startServer(t, cfg)
	defer srv.Handle().Close()

	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("dial tcp: %v", err)
	}
	defer conn.Close()

	waitFor(t, time.Second, func() bool {
		post := metrics.Snap()
		return post.TCPTimeout-pre.TCPTimeout == 1
	})
	if got := cap.snapshot(); len(got) != 0 {
		t.Fatalf("expected no processor calls, got %v", got)
	}
	post := metrics.Snap()
	if post.TCPClose-pre.TCPClose != 1 {
		t.Fatalf("expected tcp_conn_close delta 1, got %d", post.TCPClose-pre.TCPClose)
	}
}

func TestEventLoop_GracefulClose(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Bind = BindSpec{Address: "127.0.0.1:0", Protocol: UDP}

	cap := &capture{}
	srv := NewServer[string](cap.process, WithConfig[string](cfg))
	done := make(chan error, 1)
	go func() { done <- srv.Run(func() Decoder[string] { return stringDecode }, nil) }()

	select {
	case <-srv.Ready():
	case <-time.After(time.Second):
		t.Fatalf("server did not become ready")
	}

	conn, err := net.Dial("udp", srv.Addr().String())
	if err != nil {
		t.Fatalf("dial udp: %v", err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("X")); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitFor(t, time.Second, func() bool { return len(cap.snapshot()) == 1 })

	srv.Handle().Close()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Run did not return after Close")
	}
}

func TestEventLoop_ConnectionCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Bind = BindSpec{Address: "127.0.0.1:0", Protocol: TCP}
	cfg.TCPKeepAlive = 5 * time.Second
	cfg.MaxTCPConnections = 2

	srv, cap, addr := startServer(t, cfg)
	defer srv.Handle().Close()

	c1, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("dial 1: %v", err)
	}
	defer c1.Close()
	c2, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("dial 2: %v", err)
	}
	defer c2.Close()
	c3, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("dial 3: %v", err)
	}
	defer c3.Close()

	if _, err := c3.Write([]byte("FROM3\x00")); err != nil {
		t.Fatalf("write c3: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if got := cap.snapshot(); len(got) != 0 {
		t.Fatalf("expected third connection to be un-admitted so far, got %v", got)
	}

	c1.Close()
	waitFor(t, time.Second, func() bool {
		got := cap.snapshot()
		for _, m := range got {
			if m == "FROM3" {
				return true
			}
		}
		return false
	})
}
