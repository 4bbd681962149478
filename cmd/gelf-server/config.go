package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nullbyte-io/gelf-ingest/internal/server"
)

type appConfig struct {
	bind            string
	tcpKeepAlive    time.Duration
	tcpMaxSize      int
	udpRecvBuf      int
	logFormat       string
	logLevel        string
	metricsAddr     string
	logMetricsEvery time.Duration
	mdnsEnable      bool
	mdnsName        string
}

func parseFlags() (*appConfig, bool) {
	cfg := &appConfig{}
	bind := flag.String("bind", server.DefaultBindAddress, "Listen address: tcp://host:port, udp://host:port, or a bare host:port (defaults to UDP)")
	tcpKeepAlive := flag.Duration("tcp-keep-alive-secs", server.DefaultTCPKeepAlive, "Idle-without-progress timeout per TCP connection")
	tcpMaxSize := flag.Int("tcp-max-size-bytes", server.DefaultTCPMaxRecordBytes, "Maximum accepted TCP record size in bytes")
	udpRecvBuf := flag.Int("udp-rcvbuf-bytes", server.DefaultUDPRecvBufBytes, "Best-effort SO_RCVBUF tuning for the UDP socket (0 disables)")
	logFormat := flag.String("log-format", "text", "Log format: text|json")
	logLevel := flag.String("log-level", "info", "Log level: debug|info|warn|error")
	metricsAddr := flag.String("metrics-addr", "", "Metrics HTTP listen address (e.g., :9100); empty disables")
	logMetricsEvery := flag.Duration("log-metrics-interval", 0, "If >0, periodically log metrics counters (for non-Prometheus setups)")
	mdnsEnable := flag.Bool("mdns-enable", false, "Enable mDNS/Avahi advertisement of the GELF endpoint")
	mdnsName := flag.String("mdns-name", "", "mDNS instance name (default gelf-server-<hostname>)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	setFlags := map[string]struct{}{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })

	cfg.bind = *bind
	cfg.tcpKeepAlive = *tcpKeepAlive
	cfg.tcpMaxSize = *tcpMaxSize
	cfg.udpRecvBuf = *udpRecvBuf
	cfg.logFormat = *logFormat
	cfg.logLevel = *logLevel
	cfg.metricsAddr = *metricsAddr
	cfg.logMetricsEvery = *logMetricsEvery
	cfg.mdnsEnable = *mdnsEnable
	cfg.mdnsName = *mdnsName

	if err := applyEnvOverrides(cfg, setFlags); err != nil {
		fmt.Printf("environment override error: %v\n", err)
		return nil, *showVersion
	}
	if err := cfg.validate(); err != nil {
		fmt.Printf("configuration error: %v\n", err)
		return nil, *showVersion
	}
	return cfg, *showVersion
}

// validate performs basic semantic validation of the parsed configuration.
// It does not attempt to bind sockets — only checks values/ranges; a bad
// bind address is a BindFailure surfaced later, at bind time (spec §7).
func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	if c.tcpKeepAlive <= 0 {
		return fmt.Errorf("tcp-keep-alive-secs must be > 0")
	}
	if c.tcpMaxSize <= 0 {
		return fmt.Errorf("tcp-max-size-bytes must be > 0 (got %d)", c.tcpMaxSize)
	}
	if c.udpRecvBuf < 0 {
		return fmt.Errorf("udp-rcvbuf-bytes must be >= 0")
	}
	if c.logMetricsEvery < 0 {
		return fmt.Errorf("log-metrics-interval must be >= 0")
	}
	return nil
}

// serverConfig maps the CLI config onto server.Config, filling in the
// bind-string parse and the fixed connection cap (spec §9: a deliberate
// back-pressure knob, never configuration).
func (c *appConfig) serverConfig() server.Config {
	return server.Config{
		Bind:              server.ParseBind(c.bind),
		TCPKeepAlive:      c.tcpKeepAlive,
		TCPMaxRecordBytes: c.tcpMaxSize,
		MaxTCPConnections: server.MaxTCPConnections,
		UDPRecvBufBytes:   c.udpRecvBuf,
	}
}

// applyEnvOverrides maps GELF_SERVER_* environment variables onto config
// fields unless the corresponding flag was explicitly set (flag wins).
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	var firstErr error
	get := func(k string) (string, bool) { v, ok := os.LookupEnv(k); return strings.TrimSpace(v), ok }

	if _, ok := set["bind"]; !ok {
		if v, ok := get("GELF_SERVER_BIND"); ok && v != "" {
			c.bind = v
		}
	}
	if _, ok := set["tcp-keep-alive-secs"]; !ok {
		if v, ok := get("GELF_SERVER_TCP_KEEP_ALIVE_SECS"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				c.tcpKeepAlive = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid GELF_SERVER_TCP_KEEP_ALIVE_SECS: %w", err)
			}
		}
	}
	if _, ok := set["tcp-max-size-bytes"]; !ok {
		if v, ok := get("GELF_SERVER_TCP_MAX_SIZE_BYTES"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.tcpMaxSize = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid GELF_SERVER_TCP_MAX_SIZE_BYTES: %w", err)
			}
		}
	}
	if _, ok := set["udp-rcvbuf-bytes"]; !ok {
		if v, ok := get("GELF_SERVER_UDP_RCVBUF_BYTES"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				c.udpRecvBuf = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid GELF_SERVER_UDP_RCVBUF_BYTES: %w", err)
			}
		}
	}
	if _, ok := set["log-format"]; !ok {
		if v, ok := get("GELF_SERVER_LOG_FORMAT"); ok && v != "" {
			c.logFormat = v
		}
	}
	if _, ok := set["log-level"]; !ok {
		if v, ok := get("GELF_SERVER_LOG_LEVEL"); ok && v != "" {
			c.logLevel = v
		}
	}
	if _, ok := set["metrics-addr"]; !ok {
		if v, ok := get("GELF_SERVER_METRICS"); ok {
			c.metricsAddr = v
		}
	}
	if _, ok := set["log-metrics-interval"]; !ok {
		if v, ok := get("GELF_SERVER_LOG_METRICS_INTERVAL"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d >= 0 {
				c.logMetricsEvery = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid GELF_SERVER_LOG_METRICS_INTERVAL: %w", err)
			}
		}
	}
	if _, ok := set["mdns-enable"]; !ok {
		if v, ok := get("GELF_SERVER_MDNS_ENABLE"); ok && v != "" {
			switch strings.ToLower(v) {
			case "1", "true", "yes", "on":
				c.mdnsEnable = true
			case "0", "false", "no", "off":
				c.mdnsEnable = false
			}
		}
	}
	if _, ok := set["mdns-name"]; !ok {
		if v, ok := get("GELF_SERVER_MDNS_NAME"); ok && v != "" {
			c.mdnsName = v
		}
	}
	return firstErr
}
