package slogutil

import (
	"io"
	"log/slog"
	"strings"
)

// Log formats accepted by New
const (
	FormatHuman = "human"
	FormatJSON  = "json"
)

// levelSilent is above every standard level
const levelSilent = slog.Level(100)

// New returns a logger writing format ("human" or "json") to w
func New(w io.Writer, format string, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == FormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(NewLineHandler(w, opts))
}

// NewDiscardLogger returns a logger that drops every record
func NewDiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: levelSilent}))
}

// LevelFromString parses debug, info, warn or error, including offsets such
// as "debug+2". Anything else is info.
func LevelFromString(s string) slog.Level {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "warning") {
		return slog.LevelWarn
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// LevelFromVerbosity maps -q and repeated -v flags onto a level. Without
// either flag the configured level applies.
func LevelFromVerbosity(verbosity int, quiet bool, configured slog.Level) slog.Level {
	switch {
	case quiet:
		return levelSilent
	case verbosity >= 2:
		return slog.LevelDebug
	case verbosity == 1:
		return min(configured, slog.LevelInfo)
	default:
		return configured
	}
}
