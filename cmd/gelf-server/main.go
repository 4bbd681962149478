package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"github.com/nullbyte-io/gelf-ingest/internal/gelf"
	"github.com/nullbyte-io/gelf-ingest/internal/metrics"
	"github.com/nullbyte-io/gelf-ingest/internal/server"
)

func main() {
	cfg, showVersion := parseFlags()
	if showVersion {
		fmt.Printf("gelf-server %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	if cfg == nil {
		os.Exit(1)
	}
	l := setupLogger(cfg.logFormat, cfg.logLevel)
	l.Info("build_info", "version", version, "commit", commit, "date", date)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	startMetricsLogger(ctx, cfg.logMetricsEvery, l, &wg)

	sink := gelf.NewLogSink(l)
	srv := server.NewServer[gelf.Message](
		sink.Process,
		server.WithConfig[gelf.Message](cfg.serverConfig()),
		server.WithLogger[gelf.Message](l),
	)

	// mDNS advertisement needs the real bound port, which is only known
	// after the receiver binds.
	go func() {
		select {
		case <-srv.Ready():
		case <-ctx.Done():
			return
		}
		port := portOf(srv.Addr())
		cleanupMDNS, err := startMDNS(ctx, cfg, cfg.serverConfig().Bind.Protocol, port)
		if err != nil {
			l.Warn("mdns_start_failed", "error", err)
			return
		}
		l.Info("mdns_started", "name", cfg.mdnsName, "port", port)
		go func() { <-ctx.Done(); cleanupMDNS() }()
	}()

	metrics.SetReadinessFunc(func() bool {
		select {
		case <-srv.Ready():
		default:
			return false
		}
		return ctx.Err() == nil
	})
	if cfg.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		metricsHTTP := metrics.StartHTTP(cfg.metricsAddr)
		defer func() { _ = metricsHTTP.Shutdown(context.Background()) }()
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	osSignal := make(chan struct{})
	go func() {
		s := <-sigCh
		l.Info("os_signal", "signal", s.String())
		close(osSignal)
	}()

	if err := srv.Run(func() server.Decoder[gelf.Message] { return gelf.Decode }, osSignal); err != nil {
		l.Error("server_error", "error", err)
		cancel()
		wg.Wait()
		os.Exit(1)
	}
	cancel()
	wg.Wait()
}

// portOf extracts the numeric port from a bound net.Addr, for mDNS TXT/port
// registration; both *net.TCPAddr and *net.UDPAddr carry one directly, so
// this only falls back to string splitting for anything unexpected.
func portOf(addr net.Addr) int {
	switch a := addr.(type) {
	case *net.TCPAddr:
		return a.Port
	case *net.UDPAddr:
		return a.Port
	default:
		_, p, err := net.SplitHostPort(addr.String())
		if err != nil {
			return 0
		}
		n, _ := strconv.Atoi(p)
		return n
	}
}
