// Package udpsock raises the kernel receive buffer on a bound UDP socket, the
// standard mitigation against datagram loss under burst traffic. The syscall
// idiom is the same one the teacher's internal/socketcan package uses for
// CAN_RAW socket options — SyscallConn + a raw setsockopt — applied here to
// SO_RCVBUF on an ordinary UDP socket instead of a CAN_RAW one.
package udpsock

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// SetRecvBuffer requests the kernel grow the socket's receive buffer to at
// least bytes. The kernel is free to cap or round this; failures here are
// never fatal to binding, only to the (best-effort) tuning.
func SetRecvBuffer(conn *net.UDPConn, bytes int) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return fmt.Errorf("syscall_conn: %w", err)
	}
	var sockErr error
	if err := raw.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, bytes)
	}); err != nil {
		return fmt.Errorf("control: %w", err)
	}
	if sockErr != nil {
		return fmt.Errorf("setsockopt(SO_RCVBUF, %d): %w", bytes, sockErr)
	}
	return nil
}
