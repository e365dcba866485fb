package observability

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ramcharankhv-byte/taskhub/internal/config"
)

// NewLogger builds the process logger: json or text per config, with trace
// correlation fields stamped on every record. With OTEL_LOGS_ENABLED the
// records additionally fan out onto the active span as events, so exported
// traces carry the log lines emitted while the span was open.
func NewLogger(cfg *config.Config) *slog.Logger {
	level := parseLogLevel(cfg.LogLevel)
	opts := &slog.HandlerOptions{Level: level}

	var base slog.Handler
	if strings.EqualFold(cfg.LogFormat, "text") {
		base = slog.NewTextHandler(os.Stdout, opts)
	} else {
		base = slog.NewJSONHandler(os.Stdout, opts)
	}
	handler := slog.Handler(&traceContextHandler{next: base})
	if cfg.OTELLogsEnabled {
		handler = &multiHandler{handlers: []slog.Handler{
			handler,
			&spanEventHandler{level: level},
		}}
	}
	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// multiHandler fans every record out to all child handlers.
type multiHandler struct {
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, rec slog.Record) error {
	var firstErr error
	for _, h := range m.handlers {
		if err := h.Handle(ctx, rec.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		next[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: next}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		next[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: next}
}

// spanEventHandler records log lines as events on the recording span, using
// the log.severity / log.message attribute names.
type spanEventHandler struct {
	level slog.Level
	attrs []slog.Attr
}

func (h *spanEventHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *spanEventHandler) Handle(ctx context.Context, rec slog.Record) error {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return nil
	}
	kv := make([]attribute.KeyValue, 0, rec.NumAttrs()+len(h.attrs)+2)
	kv = append(kv,
		attribute.String("log.severity", rec.Level.String()),
		attribute.String("log.message", rec.Message),
	)
	for _, a := range h.attrs {
		kv = append(kv, attribute.String(a.Key, a.Value.String()))
	}
	rec.Attrs(func(a slog.Attr) bool {
		kv = append(kv, attribute.String(a.Key, a.Value.String()))
		return true
	})
	span.AddEvent("log", trace.WithAttributes(kv...))
	return nil
}

func (h *spanEventHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &spanEventHandler{level: h.level, attrs: merged}
}

func (h *spanEventHandler) WithGroup(string) slog.Handler {
	return h
}

// traceContextHandler stamps trace_id and span_id from the active span so log
// lines can be joined with traces. The fields are empty when no span is live.
type traceContextHandler struct {
	next slog.Handler
}

func (h *traceContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *traceContextHandler) Handle(ctx context.Context, rec slog.Record) error {
	traceID, spanID := "", ""
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		traceID = sc.TraceID().String()
		spanID = sc.SpanID().String()
	}
	rec.AddAttrs(slog.String("trace_id", traceID), slog.String("span_id", spanID))
	return h.next.Handle(ctx, rec)
}

func (h *traceContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &traceContextHandler{next: h.next.WithAttrs(attrs)}
}

func (h *traceContextHandler) WithGroup(name string) slog.Handler {
	return &traceContextHandler{next: h.next.WithGroup(name)}
}
