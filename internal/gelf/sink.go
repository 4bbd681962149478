package gelf

import "log/slog"

// LogSink is the default Processor[Message]: it forwards every decoded
// message to a structured logger. A real deployment would swap this for a
// sink that ships to storage (the processor is an external collaborator
// per spec §1); this one exists so cmd/gelf-server is runnable out of the
// box.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink builds a LogSink writing through l.
func NewLogSink(l *slog.Logger) *LogSink {
	return &LogSink{logger: l}
}

// Process implements server.Processor[Message].
func (s *LogSink) Process(msg Message) error {
	s.logger.Info("gelf_message",
		"host", msg.Host,
		"short_message", msg.ShortMessage,
		"level", msg.Level,
		"timestamp", msg.Timestamp,
	)
	return nil
}
