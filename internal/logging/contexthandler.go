package logging

import (
	"context"
	"log/slog"
)

// ContextProvider returns attributes resolved when a record is handled,
// such as the session or the map a transport is currently on.
type ContextProvider func() []slog.Attr

// ContextHandler appends the attributes of its providers to every record.
// Wrapping a ContextHandler again extends its provider list instead of
// nesting, so providers run once per record in the order they were added.
type ContextHandler struct {
	inner     slog.Handler
	providers []ContextProvider
}

// NewContextHandler wraps inner. Nil providers are ignored.
func NewContextHandler(inner slog.Handler, providers ...ContextProvider) *ContextHandler {
	var ps []ContextProvider
	if c, ok := inner.(*ContextHandler); ok {
		inner = c.inner
		ps = append(ps, c.providers...)
	}
	for _, p := range providers {
		if p != nil {
			ps = append(ps, p)
		}
	}
	return &ContextHandler{inner: inner, providers: ps}
}

// With returns a logger whose records also carry the provider attributes.
// Attributes that change over the lifetime of the logger belong here
// rather than in slog.Logger.With.
func With(logger *slog.Logger, providers ...ContextProvider) *slog.Logger {
	return slog.New(NewContextHandler(logger.Handler(), providers...))
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, p := range h.providers {
		r.AddAttrs(p()...)
	}
	return h.inner.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{inner: h.inner.WithAttrs(attrs), providers: h.providers}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &ContextHandler{inner: h.inner.WithGroup(name), providers: h.providers}
}
