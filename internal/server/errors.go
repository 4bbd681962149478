package server

import (
	"errors"

	"github.com/nullbyte-io/gelf-ingest/internal/metrics"
)

// Sentinel errors used for wrapping so callers can classify via errors.Is.
// Mirrors the taxonomy in spec §7: only BindFailure is fatal, everything
// else is observable-but-recoverable.
var (
	ErrBind     = errors.New("bind")
	ErrAccept   = errors.New("accept")
	ErrConnRead = errors.New("conn_read")
	ErrDecode   = errors.New("decode")
	ErrProcess  = errors.New("process")
	ErrContext  = errors.New("context_cancelled")
)

// mapErrToMetric maps a wrapped sentinel error to the metrics error label.
func mapErrToMetric(err error) string {
	switch {
	case errors.Is(err, ErrConnRead):
		return metrics.ErrConnRead
	case errors.Is(err, ErrDecode):
		return metrics.ErrDecode
	case errors.Is(err, ErrAccept), errors.Is(err, ErrBind):
		return metrics.ErrAccept
	case errors.Is(err, ErrProcess):
		return metrics.ErrProcess
	case errors.Is(err, ErrContext):
		return "context"
	default:
		return "other"
	}
}
