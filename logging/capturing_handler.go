package logging

import (
	"context"
	"log/slog"
	"strings"
)

// CapturingHandler wraps an slog.Handler to capture the log records of one workflow
// step while passing them through.
type CapturingHandler struct {
	underlying slog.Handler
	collector  *LogCollector
	runID      string
	step       string
	attrs      []slog.Attr
	groups     []string
}

// NewCapturingHandler creates a handler that stores every record in the collector under
// the run and step before passing it to the underlying handler.
func NewCapturingHandler(underlying slog.Handler, collector *LogCollector, runID, step string) *CapturingHandler {
	return &CapturingHandler{
		underlying: underlying,
		collector:  collector,
		runID:      runID,
		step:       step,
	}
}

// Enabled always returns true so that debug lines are captured even when the
// underlying handler filters them out of its own output.
func (h *CapturingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return true
}

// Handle captures the record and passes it to the underlying handler if that handler
// accepts its level.
func (h *CapturingHandler) Handle(ctx context.Context, r slog.Record) error {
	entry := LogEntry{
		Time:       r.Time,
		Level:      r.Level.String(),
		Message:    r.Message,
		Attributes: make(map[string]any, r.NumAttrs()+len(h.attrs)),
	}
	for _, attr := range h.attrs {
		entry.Attributes[attr.Key] = resolveValue(attr.Value)
	}
	prefix := strings.Join(h.groups, ".")
	r.Attrs(func(a slog.Attr) bool {
		key := a.Key
		if prefix != "" {
			key = prefix + "." + key
		}
		entry.Attributes[key] = resolveValue(a.Value)
		return true
	})
	h.collector.AddLog(h.runID, h.step, entry)

	if !h.underlying.Enabled(ctx, r.Level) {
		return nil
	}
	return h.underlying.Handle(ctx, r)
}

// WithAttrs returns a new CapturingHandler so capturing survives .With() chains.
func (h *CapturingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	prefix := strings.Join(h.groups, ".")
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	for _, a := range attrs {
		if prefix != "" {
			a.Key = prefix + "." + a.Key
		}
		newAttrs = append(newAttrs, a)
	}

	c := *h
	c.underlying = h.underlying.WithAttrs(attrs)
	c.attrs = newAttrs
	return &c
}

// WithGroup returns a new CapturingHandler so capturing survives .WithGroup() chains.
func (h *CapturingHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	newGroups := make([]string, len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups[len(h.groups)] = name

	c := *h
	c.underlying = h.underlying.WithGroup(name)
	c.groups = newGroups
	return &c
}

// StepLoggers returns a factory of per-step loggers. Every logger it creates wraps the
// base logger's handler and captures into the collector under the run ID and step key.
func StepLoggers(collector *LogCollector) func(base *slog.Logger, runID, step string) *slog.Logger {
	return func(base *slog.Logger, runID, step string) *slog.Logger {
		return slog.New(NewCapturingHandler(base.Handler(), collector, runID, step))
	}
}

// resolveValue converts a slog.Value to a JSON-serializable value.
func resolveValue(v slog.Value) any {
	v = v.Resolve()

	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindInt64:
		return v.Int64()
	case slog.KindUint64:
		return v.Uint64()
	case slog.KindFloat64:
		return v.Float64()
	case slog.KindBool:
		return v.Bool()
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time()
	case slog.KindAny:
		// Errors do not marshal to JSON
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return v.Any()
	case slog.KindGroup:
		attrs := v.Group()
		group := make(map[string]any, len(attrs))
		for _, attr := range attrs {
			group[attr.Key] = resolveValue(attr.Value)
		}
		return group
	default:
		return v.Any()
	}
}
