package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nullbyte-io/gelf-ingest/internal/metrics"
)

func startMetricsLogger(ctx context.Context, interval time.Duration, l *slog.Logger, wg *sync.WaitGroup) {
	if interval <= 0 {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				snap := metrics.Snap()
				l.Info("metrics_snapshot",
					"receive_ok", snap.ReceiveOK,
					"receive_err", snap.ReceiveErr,
					"process_ok", snap.ProcessOK,
					"process_err", snap.ProcessErr,
					"tcp_conn_accept", snap.TCPAccept,
					"tcp_conn_close", snap.TCPClose,
					"tcp_conn_timeout", snap.TCPTimeout,
					"tcp_msg_overflow", snap.TCPOverflow,
					"tcp_active_sessions", snap.ActiveSession,
					"errors", snap.Errors,
				)
			case <-ctx.Done():
				return
			}
		}
	}()
}
