// Package slogutil builds the loggers evalview writes to stderr.
package slogutil

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

// LineHandler writes one line per record:
//
//	2025-01-01T12:00:00Z INFO  Planned pairs matched=12 slug=vendor_model-x
//
// Group names prefix keys with a dot. Attributes added with WithAttrs are
// rendered once and reused for every record.
type LineHandler struct {
	opts   slog.HandlerOptions
	prefix string // open groups, "a.b."
	pre    []byte // rendered WithAttrs attributes
	mu     *sync.Mutex
	w      io.Writer
}

// NewLineHandler creates a LineHandler; nil opts log at info
func NewLineHandler(w io.Writer, opts *slog.HandlerOptions) *LineHandler {
	h := &LineHandler{w: w, mu: &sync.Mutex{}}
	if opts != nil {
		h.opts = *opts
	}
	if h.opts.Level == nil {
		h.opts.Level = slog.LevelInfo
	}
	return h
}

// Enabled implements slog.Handler
func (h *LineHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.Level.Level()
}

// Handle implements slog.Handler
func (h *LineHandler) Handle(_ context.Context, r slog.Record) error {
	buf := make([]byte, 0, 256)
	if !r.Time.IsZero() {
		buf = r.Time.UTC().AppendFormat(buf, time.RFC3339)
		buf = append(buf, ' ')
	}
	buf = fmt.Appendf(buf, "%-5s ", r.Level.String())
	buf = append(buf, r.Message...)
	buf = append(buf, h.pre...)
	r.Attrs(func(a slog.Attr) bool {
		buf = appendAttr(buf, h.prefix, a)
		return true
	})
	buf = append(buf, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf)
	return err
}

// WithAttrs implements slog.Handler
func (h *LineHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	h2 := *h
	h2.pre = append([]byte(nil), h.pre...)
	for _, a := range attrs {
		h2.pre = appendAttr(h2.pre, h.prefix, a)
	}
	return &h2
}

// WithGroup implements slog.Handler
func (h *LineHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := *h
	h2.prefix = h.prefix + name + "."
	return &h2
}

func appendAttr(buf []byte, prefix string, a slog.Attr) []byte {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return buf
	}
	if a.Value.Kind() == slog.KindGroup {
		if a.Key != "" {
			prefix += a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			buf = appendAttr(buf, prefix, ga)
		}
		return buf
	}
	buf = append(buf, ' ')
	buf = append(buf, prefix...)
	buf = append(buf, a.Key...)
	buf = append(buf, '=')
	return appendValue(buf, a.Value)
}

// appendValue quotes strings that would not read as one token
func appendValue(buf []byte, v slog.Value) []byte {
	switch v.Kind() {
	case slog.KindString:
		s := v.String()
		if s == "" || strings.ContainsAny(s, " \t\n\"=") {
			return strconv.AppendQuote(buf, s)
		}
		return append(buf, s...)
	case slog.KindTime:
		return v.Time().UTC().AppendFormat(buf, time.RFC3339)
	case slog.KindDuration:
		return append(buf, v.Duration().String()...)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return strconv.AppendQuote(buf, err.Error())
		}
	}
	return fmt.Append(buf, v.Any())
}
