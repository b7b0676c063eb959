package logging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/journal"
)

// boundAttrs holds what WithAttrs and WithGroup attached to a handler.
type boundAttrs struct {
	attrs  []slog.Attr
	groups []string
}

func (b boundAttrs) withAttrs(attrs []slog.Attr) boundAttrs {
	return boundAttrs{attrs: slices.Concat(b.attrs, attrs), groups: b.groups}
}

func (b boundAttrs) withGroup(name string) boundAttrs {
	if name == "" {
		return b
	}
	return boundAttrs{attrs: b.attrs, groups: slices.Concat(b.groups, []string{name})}
}

// collect returns the record's module and its remaining attrs flattened to
// dot-joined keys. Records without a module attr belong to "app".
func (b boundAttrs) collect(r slog.Record) (string, map[string]any) {
	module := "app"
	fields := make(map[string]any)
	add := func(a slog.Attr) bool {
		if a.Key == "module" {
			module = a.Value.String()
		} else {
			flattenAttr(fields, b.groups, a)
		}
		return true
	}
	for _, a := range b.attrs {
		add(a)
	}
	r.Attrs(add)
	return module, fields
}

// flattenAttr stores a into fields, descending into groups.
func flattenAttr(fields map[string]any, groups []string, a slog.Attr) {
	if a.Equal(slog.Attr{}) {
		return
	}
	a.Value = a.Value.Resolve()
	if a.Value.Kind() == slog.KindGroup {
		inner := groups
		if a.Key != "" {
			inner = slices.Concat(groups, []string{a.Key})
		}
		for _, ga := range a.Value.Group() {
			flattenAttr(fields, inner, ga)
		}
		return
	}

	key := strings.Join(slices.Concat(groups, []string{a.Key}), ".")
	switch a.Value.Kind() {
	case slog.KindTime:
		fields[key] = a.Value.Time().Format(time.RFC3339Nano)
	case slog.KindDuration:
		fields[key] = a.Value.Duration().String()
	default:
		if err, ok := a.Value.Any().(error); ok {
			fields[key] = err.Error()
		} else {
			fields[key] = a.Value.Any()
		}
	}
}

// fanout passes each record to every handler enabled for its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r.Clone()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}

// journalHandler sends records to journald under the torfleet identifier.
// The module becomes MODULE and every attr an upper-case field, so
// `journalctl -t torfleet MODULE=tor SOCKS_PORT=9050` works.
type journalHandler struct {
	level slog.Leveler
	bound boundAttrs
}

func (h *journalHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *journalHandler) Handle(_ context.Context, r slog.Record) error {
	module, attrs := h.bound.collect(r)
	vars := journalFields(module, attrs)
	return journal.Send(r.Message, journalPriority(r.Level), vars)
}

func (h *journalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &journalHandler{level: h.level, bound: h.bound.withAttrs(attrs)}
}

func (h *journalHandler) WithGroup(name string) slog.Handler {
	return &journalHandler{level: h.level, bound: h.bound.withGroup(name)}
}

func journalFields(module string, attrs map[string]any) map[string]string {
	vars := map[string]string{
		"SYSLOG_IDENTIFIER": "torfleet",
		"MODULE":            module,
	}
	for key, value := range attrs {
		if name := journalFieldName(key); name != "" {
			vars[name] = fmt.Sprint(value)
		}
	}
	return vars
}

// journalFieldName maps an attr key to a valid journal field name: upper
// case, [A-Z0-9_] only, no leading underscore (those are reserved).
func journalFieldName(key string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, key)
	return strings.TrimLeft(name, "_")
}

func journalPriority(level slog.Level) journal.Priority {
	switch {
	case level >= slog.LevelError:
		return journal.PriErr
	case level >= slog.LevelWarn:
		return journal.PriWarning
	case level >= slog.LevelInfo:
		return journal.PriInfo
	default:
		return journal.PriDebug
	}
}
