package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
)

func newJSONHandler(w io.Writer, lvl *slog.LevelVar) slog.Handler {
	opts := slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.TimeKey:
				attr.Key = "ts"
				if attr.Value.Kind() == slog.KindTime {
					attr.Value = slog.StringValue(attr.Value.Time().UTC().Format(time.RFC3339))
				}
			case slog.LevelKey:
				attr.Key = "level"
				attr.Value = slog.StringValue(strings.ToLower(attr.Value.String()))
			case slog.MessageKey:
				attr.Key = "msg"
			}
			return attr
		},
	}
	return slog.NewJSONHandler(w, &opts)
}

// consoleHandler renders records as a single aligned line with the component
// and message up front and remaining attributes as key=value pairs.
type consoleHandler struct {
	mu    *sync.Mutex
	w     io.Writer
	lvl   *slog.LevelVar
	attrs []slog.Attr
}

func newConsoleHandler(w io.Writer, lvl *slog.LevelVar) slog.Handler {
	return &consoleHandler{mu: &sync.Mutex{}, w: w, lvl: lvl}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.lvl.Level()
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	var sb strings.Builder
	sb.WriteString(record.Time.UTC().Format("15:04:05"))
	sb.WriteByte(' ')
	sb.WriteString(levelLabel(record.Level))
	sb.WriteByte(' ')

	component := ""
	pairs := make([]string, 0, record.NumAttrs()+len(h.attrs))
	appendAttr := func(attr slog.Attr) {
		if attr.Key == FieldComponent {
			component = attr.Value.String()
			return
		}
		pairs = append(pairs, attr.Key+"="+formatValue(attr.Value))
	}
	for _, attr := range h.attrs {
		appendAttr(attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		appendAttr(attr)
		return true
	})

	if component != "" {
		sb.WriteByte('[')
		sb.WriteString(component)
		sb.WriteString("] ")
	}
	sb.WriteString(record.Message)
	for _, pair := range pairs {
		sb.WriteByte(' ')
		sb.WriteString(pair)
	}
	sb.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, sb.String())
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &consoleHandler{mu: h.mu, w: h.w, lvl: h.lvl, attrs: merged}
}

func (h *consoleHandler) WithGroup(string) slog.Handler { return h }

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN "
	case level >= slog.LevelInfo:
		return "INFO "
	default:
		return "DEBUG"
	}
}

func formatValue(value slog.Value) string {
	value = value.Resolve()
	switch value.Kind() {
	case slog.KindString:
		s := value.String()
		if strings.ContainsAny(s, " \t") {
			return fmt.Sprintf("%q", s)
		}
		return s
	case slog.KindDuration:
		return value.Duration().String()
	case slog.KindTime:
		return value.Time().UTC().Format(time.RFC3339)
	default:
		return value.String()
	}
}
