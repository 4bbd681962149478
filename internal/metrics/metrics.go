package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/nullbyte-io/gelf-ingest/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus counters — names and semantics fixed by the spec (§6).
var (
	ReceiveOK = promauto.NewCounter(prometheus.CounterOpts{
		Name: "receive_ok_total",
		Help: "Total frames that decoded into a complete message.",
	})
	ReceiveErr = promauto.NewCounter(prometheus.CounterOpts{
		Name: "receive_err_total",
		Help: "Total receiver errors (connection IO or decode failures).",
	})
	ProcessOK = promauto.NewCounter(prometheus.CounterOpts{
		Name: "process_ok_total",
		Help: "Total messages handed to the processor successfully.",
	})
	ProcessErr = promauto.NewCounter(prometheus.CounterOpts{
		Name: "process_err_total",
		Help: "Total messages the processor failed to handle.",
	})
	TCPConnAccept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tcp_conn_accept_total",
		Help: "Total TCP connections accepted and admitted to a session.",
	})
	TCPConnClose = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tcp_conn_close_total",
		Help: "Total TCP sessions that ended, for any reason.",
	})
	TCPConnTimeout = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tcp_conn_timeout_total",
		Help: "Total TCP sessions closed for exceeding the idle-without-progress watchdog.",
	})
	TCPMsgOverflow = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tcp_msg_overflow_total",
		Help: "Total TCP records discarded for exceeding the configured maximum size.",
	})
	ActiveTCPSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tcp_active_sessions",
		Help: "Current number of admitted TCP sessions.",
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})

	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality).
const (
	ErrConnRead = "conn_read"
	ErrDecode   = "decode"
	ErrAccept   = "accept"
	ErrProcess  = "process"
)

// StartHTTP serves Prometheus metrics and a readiness probe on addr.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// Local mirrored counters for periodic structured-log snapshots, avoiding a
// Prometheus scrape round-trip in-process.
var (
	localReceiveOK     uint64
	localReceiveErr    uint64
	localProcessOK     uint64
	localProcessErr    uint64
	localTCPAccept     uint64
	localTCPClose      uint64
	localTCPTimeout    uint64
	localTCPOverflow   uint64
	localErrors        uint64
	localActiveSession int64
)

// Snapshot is a cheap copy of local counters.
type Snapshot struct {
	ReceiveOK     uint64
	ReceiveErr    uint64
	ProcessOK     uint64
	ProcessErr    uint64
	TCPAccept     uint64
	TCPClose      uint64
	TCPTimeout    uint64
	TCPOverflow   uint64
	Errors        uint64
	ActiveSession int64
}

func Snap() Snapshot {
	return Snapshot{
		ReceiveOK:     atomic.LoadUint64(&localReceiveOK),
		ReceiveErr:    atomic.LoadUint64(&localReceiveErr),
		ProcessOK:     atomic.LoadUint64(&localProcessOK),
		ProcessErr:    atomic.LoadUint64(&localProcessErr),
		TCPAccept:     atomic.LoadUint64(&localTCPAccept),
		TCPClose:      atomic.LoadUint64(&localTCPClose),
		TCPTimeout:    atomic.LoadUint64(&localTCPTimeout),
		TCPOverflow:   atomic.LoadUint64(&localTCPOverflow),
		Errors:        atomic.LoadUint64(&localErrors),
		ActiveSession: atomic.LoadInt64(&localActiveSession),
	}
}

func IncReceiveOK() {
	ReceiveOK.Inc()
	atomic.AddUint64(&localReceiveOK, 1)
}

func IncReceiveErr() {
	ReceiveErr.Inc()
	atomic.AddUint64(&localReceiveErr, 1)
}

func IncProcessOK() {
	ProcessOK.Inc()
	atomic.AddUint64(&localProcessOK, 1)
}

func IncProcessErr() {
	ProcessErr.Inc()
	atomic.AddUint64(&localProcessErr, 1)
}

// IncTCPConnAccept records a newly admitted TCP session.
func IncTCPConnAccept() {
	TCPConnAccept.Inc()
	atomic.AddUint64(&localTCPAccept, 1)
	cur := atomic.AddInt64(&localActiveSession, 1)
	ActiveTCPSessions.Set(float64(cur))
}

// IncTCPConnClose records a TCP session ending, for any reason.
func IncTCPConnClose() {
	TCPConnClose.Inc()
	atomic.AddUint64(&localTCPClose, 1)
	cur := atomic.AddInt64(&localActiveSession, -1)
	ActiveTCPSessions.Set(float64(cur))
}

func IncTCPConnTimeout() {
	TCPConnTimeout.Inc()
	atomic.AddUint64(&localTCPTimeout, 1)
}

func IncTCPMsgOverflow() {
	TCPMsgOverflow.Inc()
	atomic.AddUint64(&localTCPOverflow, 1)
}

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

// InitBuildInfo sets the build info gauge (should be called once at startup).
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	for _, lbl := range []string{ErrConnRead, ErrDecode, ErrAccept, ErrProcess} {
		Errors.WithLabelValues(lbl).Add(0)
	}
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function if present.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil {
		return true
	}
	return fn()
}
