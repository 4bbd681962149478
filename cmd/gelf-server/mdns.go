package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/grandcat/zeroconf"

	"github.com/nullbyte-io/gelf-ingest/internal/server"
)

// startMDNS registers the bound GELF endpoint via mDNS/Avahi so LAN log
// shippers can auto-discover it, and returns a cleanup function. Safe to
// call even when disabled (no-op). The service type tracks the bind
// protocol, since a UDP and a TCP ingester are not interchangeable
// endpoints for a shipper choosing how to connect.
func startMDNS(ctx context.Context, cfg *appConfig, proto server.Protocol, port int) (func(), error) {
	if !cfg.mdnsEnable {
		return func() {}, nil
	}
	instance := cfg.mdnsName
	if instance == "" {
		host, _ := os.Hostname()
		instance = fmt.Sprintf("gelf-server-%s", host)
	}
	serviceType := "_gelf._udp"
	if proto == server.TCP {
		serviceType = "_gelf._tcp"
	}
	meta := []string{
		"version=" + version,
		"commit=" + commit,
	}
	svc, err := zeroconf.Register(instance, serviceType, "local.", port, meta, nil)
	if err != nil {
		return nil, fmt.Errorf("mdns register: %w", err)
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		svc.Shutdown()
	}()
	return func() { close(done); svc.Shutdown(); time.Sleep(50 * time.Millisecond) }, nil
}
