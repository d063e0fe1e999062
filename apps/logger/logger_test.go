// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/AzureAD/adal-broker-for-go/apps/errors"
	"github.com/kylelemons/godebug/pretty"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) observe(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) get() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func TestHubDelivery(t *testing.T) {
	hub := NewHub()
	rec := &recorder{}
	hub.Register(rec.observe)

	log := New(hub, nil).With(Tag("registry"))
	log.Info("context created", Detail("https://login.microsoftonline.com/common"))
	log.Warn("refresh failed", ErrorCode(5))
	log.Debug("dropped, below level")
	log.Error("acquire failed", slog.Any("error", errors.New(errors.KindNoTokenFound, "no entry")))

	want := []Event{
		{Tag: "registry", Message: "context created", AdditionalMessage: "https://login.microsoftonline.com/common", Level: Info},
		{Tag: "registry", Message: "refresh failed", Level: Warn, ErrorCode: 5},
		{Tag: "registry", Message: "acquire failed", AdditionalMessage: "NoTokenFound: no entry", Level: Error, ErrorCode: int(errors.KindNoTokenFound)},
	}
	if diff := pretty.Compare(want, rec.get()); diff != "" {
		t.Errorf("TestHubDelivery: -want/+got:\n%s", diff)
	}
}

func TestHubRegistration(t *testing.T) {
	hub := NewHub()
	log := New(hub, nil)

	// No observer is a no-op.
	log.Info("nobody listens")

	first, second := &recorder{}, &recorder{}
	hub.Register(first.observe)
	log.Info("one")
	hub.Register(second.observe)
	log.Info("two")
	hub.Unregister()
	log.Info("three")

	if got := len(first.get()); got != 1 {
		t.Errorf("TestHubRegistration: first observer got %d events, want 1", got)
	}
	if got := len(second.get()); got != 1 {
		t.Errorf("TestHubRegistration: second observer got %d events, want 1", got)
	}
}

func TestHubObserverLogs(t *testing.T) {
	hub := NewHub()
	log := New(hub, nil)
	rec := &recorder{}
	hub.Register(func(e Event) {
		rec.observe(e)
		if e.Tag == "outer" {
			log.Warn("from observer", Tag("inner"))
		}
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		log.Info("hello", Tag("outer"))
		log.Info("after", Tag("next"))
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("TestHubObserverLogs: logging from the observer blocked")
	}

	want := []Event{
		{Tag: "outer", Message: "hello", Level: Info},
		{Tag: "inner", Message: "from observer", Level: Warn},
		{Tag: "next", Message: "after", Level: Info},
	}
	if diff := pretty.Compare(want, rec.get()); diff != "" {
		t.Errorf("TestHubObserverLogs: -want/+got:\n%s", diff)
	}
}

func TestHubObserverPanics(t *testing.T) {
	hub := NewHub()
	log := New(hub, nil)
	hub.Register(func(Event) { panic("observer failed") })

	func() {
		defer func() { _ = recover() }()
		log.Info("boom")
	}()

	rec := &recorder{}
	hub.Register(rec.observe)
	log.Info("still delivered")
	if got := rec.get(); len(got) != 1 || got[0].Message != "still delivered" {
		t.Errorf("TestHubObserverPanics: got %+v, want the event logged after the panic", got)
	}
}

func TestHubSetLevel(t *testing.T) {
	hub := NewHub()
	rec := &recorder{}
	hub.Register(rec.observe)
	log := New(hub, nil)

	if err := hub.SetLevel(Level(9)); err == nil {
		t.Errorf("TestHubSetLevel: SetLevel(9) returned nil error")
	}
	if err := hub.SetLevel(Verbose); err != nil {
		t.Fatalf("TestHubSetLevel: SetLevel(Verbose): %s", err)
	}
	if hub.Level() != Verbose {
		t.Errorf("TestHubSetLevel: Level() = %s, want verbose", hub.Level())
	}

	log.Log(context.Background(), LevelVerbose, "verbose")
	log.Debug("debug")

	got := rec.get()
	if len(got) != 1 || got[0].Level != Verbose {
		t.Errorf("TestHubSetLevel: got %+v, want one verbose event", got)
	}
}

func TestBaseHandler(t *testing.T) {
	var buf bytes.Buffer
	hub := NewHub()
	log := New(hub, slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	log.WithGroup("cache").Debug("lookup", slog.String("key", "k"))

	if !bytes.Contains(buf.Bytes(), []byte(`"cache":{"key":"k"}`)) {
		t.Errorf("TestBaseHandler: base handler output %q missing grouped attribute", buf.String())
	}
}

func TestLevelMapping(t *testing.T) {
	for _, l := range []Level{Error, Warn, Info, Verbose, Debug} {
		if got := FromSlog(l.Slog()); got != l {
			t.Errorf("TestLevelMapping: FromSlog(%s.Slog()) = %s", l, got)
		}
	}
}

func TestParseLevel(t *testing.T) {
	for _, l := range []Level{Error, Warn, Info, Verbose, Debug} {
		got, err := ParseLevel(strings.ToUpper(l.String()))
		if err != nil || got != l {
			t.Errorf("TestParseLevel(%s): got (%s, %v)", l, got, err)
		}
	}
	if _, err := ParseLevel("trace"); err == nil {
		t.Error("TestParseLevel(trace): got err == nil, want err != nil")
	}
}
