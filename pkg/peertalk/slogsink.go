package peertalk

import (
	"log/slog"
	"os"

	"github.com/google/uuid"
)

// SlogSink is the default LogSink, backed by log/slog the same way the
// teacher's cmd/shurli wires slog.NewTextHandler(os.Stderr, ...). Every
// line carries a per-Init session id so logs from multiple Contexts in
// one process don't interleave confusingly (SPEC_FULL §B).
type SlogSink struct {
	logger    *slog.Logger
	sessionID string
}

// NewSlogSink builds a text-handler slog sink at the given minimum
// level, writing to filename if non-empty, else stderr.
func NewSlogSink(level LogLevel, filename string) (*SlogSink, error) {
	w := os.Stderr
	if filename != "" {
		f, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, err
		}
		w = f
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: slogLevel(level)})
	return &SlogSink{
		logger:    slog.New(handler),
		sessionID: uuid.NewString(),
	}, nil
}

func slogLevel(l LogLevel) slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn, LogProtocol:
		return slog.LevelWarn
	case LogErr:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (s *SlogSink) Log(level LogLevel, category string, msg string, fields map[string]any) {
	args := make([]any, 0, 4+2*len(fields))
	args = append(args, "session", s.sessionID, "category", category)
	for k, v := range fields {
		args = append(args, k, v)
	}
	switch level {
	case LogDebug:
		s.logger.Debug(msg, args...)
	case LogWarn, LogProtocol:
		s.logger.Warn(msg, args...)
	case LogErr:
		s.logger.Error(msg, args...)
	default:
		s.logger.Info(msg, args...)
	}
}

func (s *SlogSink) Close() error { return nil }
