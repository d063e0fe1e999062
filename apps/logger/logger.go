// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

/*
Package logger bridges the module's structured logging onto a single observer.

Every component logs through a *slog.Logger built with New. Records at or above the
Hub's level are turned into Events and handed to the registered Observer, in the order
they were logged. The same records can also be sent to a regular slog.Handler, such as
a JSON handler writing to stdout.

	hub := logger.NewHub()
	hub.Register(func(e logger.Event) { fmt.Println(e.Level, e.Message) })
	log := logger.New(hub, slog.NewJSONHandler(os.Stderr, nil))
	log.Info("context created", logger.Tag("registry"))
*/
package logger

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/AzureAD/adal-broker-for-go/apps/errors"
)

// Level is the verbosity of an Event. The ordinals are shared with existing
// observers and must not change.
type Level int

const (
	Error Level = iota
	Warn
	Info
	Verbose
	Debug
)

// LevelVerbose sits between slog.LevelDebug and slog.LevelInfo.
const LevelVerbose = slog.Level(-2)

func (l Level) String() string {
	switch l {
	case Error:
		return "error"
	case Warn:
		return "warn"
	case Info:
		return "info"
	case Verbose:
		return "verbose"
	case Debug:
		return "debug"
	}
	return fmt.Sprintf("Level(%d)", int(l))
}

// ParseLevel returns the Level named s, as returned by Level.String.
func ParseLevel(s string) (Level, error) {
	for l := Error; l <= Debug; l++ {
		if strings.EqualFold(s, l.String()) {
			return l, nil
		}
	}
	return 0, errors.New(errors.KindConfiguration, "unknown log level %q", s)
}

// Valid reports whether l is one of the defined levels.
func (l Level) Valid() bool {
	return l >= Error && l <= Debug
}

// Slog returns the slog.Level l corresponds to.
func (l Level) Slog() slog.Level {
	switch l {
	case Error:
		return slog.LevelError
	case Warn:
		return slog.LevelWarn
	case Info:
		return slog.LevelInfo
	case Verbose:
		return LevelVerbose
	}
	return slog.LevelDebug
}

// FromSlog converts a slog.Level to the closest Level not more verbose than it.
func FromSlog(l slog.Level) Level {
	switch {
	case l >= slog.LevelError:
		return Error
	case l >= slog.LevelWarn:
		return Warn
	case l >= slog.LevelInfo:
		return Info
	case l >= LevelVerbose:
		return Verbose
	}
	return Debug
}

// Attribute keys that fill Event fields.
const (
	TagKey       = "tag"
	DetailKey    = "detail"
	ErrorCodeKey = "error_code"
)

// Tag names the component that logged a record.
func Tag(tag string) slog.Attr {
	return slog.String(TagKey, tag)
}

// Detail carries the additional message of a record.
func Detail(detail string) slog.Attr {
	return slog.String(DetailKey, detail)
}

// ErrorCode sets the numeric error code of a record.
func ErrorCode(code int) slog.Attr {
	return slog.Int(ErrorCodeKey, code)
}

// Event is a single log record as seen by an Observer.
type Event struct {
	Tag               string
	Message           string
	AdditionalMessage string
	Level             Level
	ErrorCode         int
}

// Observer receives events. It is called synchronously and must not block for long.
type Observer func(Event)
