// Package gelf provides the default decode/process callables wired into
// cmd/gelf-server. Per spec §1 these are external collaborators from the
// core's point of view — internal/server never imports this package, it
// only calls the server.Decoder/server.Processor function values the
// embedder supplies.
package gelf

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// chunkMagic is the two-byte header GELF UDP chunking uses to mark a
// fragment of a larger message (see the GELF spec's "Chunking" section).
var chunkMagic = []byte{0x1e, 0x0f}

// Message is a decoded GELF log record, holding the mandatory fields plus
// an open bag for the "_"-prefixed additional fields the format allows.
type Message struct {
	Version      string
	Host         string
	ShortMessage string
	FullMessage  string
	Timestamp    time.Time
	Level        int
	Extra        map[string]any
}

// wireMessage mirrors the GELF JSON payload shape before field renaming and
// timestamp conversion.
type wireMessage struct {
	Version      string  `json:"version"`
	Host         string  `json:"host"`
	ShortMessage string  `json:"short_message"`
	FullMessage  string  `json:"full_message"`
	Timestamp    float64 `json:"timestamp"`
	Level        *int    `json:"level"`
}

// Decode turns one raw GELF frame into a Message, matching the
// server.Decoder[Message] shape. A chunked UDP fragment (identified by its
// magic header) is reported as accepted-but-incomplete: full chunk
// reassembly is GELF-decoder territory, explicitly out of scope for this
// front-end (spec §1), so a chunk is consumed silently rather than treated
// as a decode error.
func Decode(raw []byte) (*Message, error) {
	if bytes.HasPrefix(raw, chunkMagic) {
		return nil, nil
	}

	var w wireMessage
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("gelf: invalid json: %w", err)
	}
	if w.Host == "" {
		return nil, fmt.Errorf("gelf: missing required field %q", "host")
	}
	if w.ShortMessage == "" {
		return nil, fmt.Errorf("gelf: missing required field %q", "short_message")
	}

	level := 1 // default "alert" per GELF spec when omitted
	if w.Level != nil {
		level = *w.Level
	}

	var extra map[string]any
	if err := json.Unmarshal(raw, &extra); err == nil {
		for _, known := range []string{"version", "host", "short_message", "full_message", "timestamp", "level"} {
			delete(extra, known)
		}
		if len(extra) == 0 {
			extra = nil
		}
	}

	return &Message{
		Version:      w.Version,
		Host:         w.Host,
		ShortMessage: w.ShortMessage,
		FullMessage:  w.FullMessage,
		Timestamp:    secondsToTime(w.Timestamp),
		Level:        level,
		Extra:        extra,
	}, nil
}

func secondsToTime(sec float64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	whole := int64(sec)
	frac := sec - float64(whole)
	return time.Unix(whole, int64(frac*1e9)).UTC()
}

// NewDecoder returns Decode as a plain function value. Its type is not
// server.DecoderFactory[Message] (whose result is the named
// server.Decoder[Message]), so cmd/gelf-server wraps gelf.Decode in its own
// factory closure instead. Decode carries no per-connection state.
func NewDecoder() func([]byte) (*Message, error) {
	return Decode
}
