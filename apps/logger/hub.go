// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package logger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/AzureAD/adal-broker-for-go/apps/errors"
)

// Hub holds the registered Observer and the level events are published at.
// The zero value is not usable, use NewHub.
type Hub struct {
	level slog.LevelVar

	mu       sync.Mutex
	observer Observer
	// queue holds events not yet handed to the observer. While draining is set one
	// goroutine delivers them in log order, outside mu, so an observer that logs only
	// appends to the queue.
	queue    []Event
	draining bool
}

// NewHub returns a Hub publishing at Info with no observer.
func NewHub() *Hub {
	h := &Hub{}
	h.level.Set(Info.Slog())
	return h
}

// Register installs o, replacing any earlier observer.
func (h *Hub) Register(o Observer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.observer = o
}

// Unregister removes the observer. Later events are dropped.
func (h *Hub) Unregister() {
	h.Register(nil)
}

// SetLevel changes the level events are published at.
func (h *Hub) SetLevel(l Level) error {
	if !l.Valid() {
		return errors.New(errors.KindConfiguration, "invalid log level %d", int(l))
	}
	h.level.Set(l.Slog())
	return nil
}

// Level returns the current publishing level.
func (h *Hub) Level() Level {
	return FromSlog(h.level.Level())
}

func (h *Hub) publish(e Event) {
	h.mu.Lock()
	if h.observer == nil && !h.draining {
		h.mu.Unlock()
		return
	}
	h.queue = append(h.queue, e)
	if h.draining {
		h.mu.Unlock()
		return
	}
	h.draining = true
	finished := false
	defer func() {
		if finished {
			return
		}
		// The observer panicked. Let the next publisher deliver again.
		h.mu.Lock()
		h.draining = false
		h.queue = nil
		h.mu.Unlock()
	}()
	for len(h.queue) > 0 {
		next := h.queue[0]
		h.queue = h.queue[1:]
		o := h.observer
		h.mu.Unlock()
		if o != nil {
			o(next)
		}
		h.mu.Lock()
	}
	h.draining = false
	finished = true
	h.mu.Unlock()
}

// New returns a logger that publishes to hub. If base is not nil, every record is
// also passed to it.
func New(hub *Hub, base slog.Handler) *slog.Logger {
	return slog.New(&handler{hub: hub, base: base})
}

// handler implements slog.Handler on top of a Hub.
type handler struct {
	hub    *Hub
	base   slog.Handler
	attrs  []slog.Attr
	groups []string
}

func (h *handler) Enabled(ctx context.Context, l slog.Level) bool {
	if l >= h.hub.level.Level() {
		return true
	}
	return h.base != nil && h.base.Enabled(ctx, l)
}

func (h *handler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= h.hub.level.Level() {
		h.hub.publish(h.event(r))
	}
	if h.base != nil && h.base.Enabled(ctx, r.Level) {
		return h.base.Handle(ctx, r)
	}
	return nil
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	n := h.clone()
	n.attrs = append(n.attrs, attrs...)
	if h.base != nil {
		n.base = h.base.WithAttrs(attrs)
	}
	return n
}

func (h *handler) WithGroup(name string) slog.Handler {
	n := h.clone()
	n.groups = append(n.groups, name)
	if h.base != nil {
		n.base = h.base.WithGroup(name)
	}
	return n
}

func (h *handler) clone() *handler {
	return &handler{
		hub:    h.hub,
		base:   h.base,
		attrs:  append([]slog.Attr(nil), h.attrs...),
		groups: append([]string(nil), h.groups...),
	}
}

func (h *handler) event(r slog.Record) Event {
	e := Event{Message: r.Message, Level: FromSlog(r.Level)}
	var extra []string
	apply := func(a slog.Attr) bool {
		v := a.Value.Resolve()
		switch a.Key {
		case TagKey:
			e.Tag = v.String()
		case DetailKey:
			e.AdditionalMessage = v.String()
		case ErrorCodeKey:
			if v.Kind() == slog.KindInt64 {
				e.ErrorCode = int(v.Int64())
			}
		default:
			if err, ok := v.Any().(error); ok {
				e.ErrorCode = int(errors.KindOf(err))
				extra = append(extra, err.Error())
				return true
			}
			if a.Key != "" {
				extra = append(extra, fmt.Sprintf("%s=%s", h.qualify(a.Key), v))
			}
		}
		return true
	}
	for _, a := range h.attrs {
		apply(a)
	}
	r.Attrs(apply)
	if e.AdditionalMessage == "" && len(extra) > 0 {
		e.AdditionalMessage = strings.Join(extra, " ")
	}
	return e
}

func (h *handler) qualify(key string) string {
	if len(h.groups) == 0 {
		return key
	}
	return strings.Join(h.groups, ".") + "." + key
}
