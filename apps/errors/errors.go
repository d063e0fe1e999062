// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package errors holds the error taxonomy reported to callers of the authentication
// context manager. Every failure delivered through a one-shot outcome is an *Error
// carrying a Kind, so callers can branch on the kind instead of parsing messages.
package errors

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/kylelemons/godebug/pretty"
)

var prettyConf = &pretty.Config{IncludeUnexported: false, SkipZeroFields: true, TrackCycles: true}

// Kind classifies a failure.
type Kind int

// The ordinal values are part of the log event contract (Event.ErrorCode), append only.
const (
	// KindUnknown is the catch-all. The message is preserved verbatim.
	KindUnknown Kind = iota
	// KindConfiguration is a bad authority or a context bootstrap failure.
	KindConfiguration
	// KindNoTokenFound means no usable cache entry exists and a refresh was not possible.
	// Callers should fall back to an interactive acquisition.
	KindNoTokenFound
	// KindUserCancelled means the user dismissed the interaction surface.
	KindUserCancelled
	// KindNetwork is a transport failure talking to the identity provider.
	KindNetwork
	// KindServer is an error returned by the identity provider. Code holds the provider's code.
	KindServer
	// KindPermissionDenied means a required platform capability was not granted.
	KindPermissionDenied
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "ConfigurationError"
	case KindNoTokenFound:
		return "NoTokenFound"
	case KindUserCancelled:
		return "UserCancelled"
	case KindNetwork:
		return "NetworkError"
	case KindServer:
		return "ServerError"
	case KindPermissionDenied:
		return "PermissionDenied"
	}
	return "UnknownError"
}

// Error is the error type delivered in failed outcomes.
type Error struct {
	Kind Kind
	// Code is the provider supplied error code, set for KindServer.
	Code string
	// Message is a human readable description.
	Message string
	// Err is the underlying cause, if any.
	Err error
}

// Error implements error.Error().
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Code != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Code, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports a match for another *Error with the same Kind. This lets sentinels
// such as ErrNoTokenFound be used with errors.Is().
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Code == "" && t.Message == "" && t.Err == nil
}

// Verbose implements verboser so wrapped call errors can be dumped.
func (e *Error) Verbose() string {
	if v, ok := e.Err.(verboser); ok {
		return fmt.Sprintf("%s\n%s", e.Error(), v.Verbose())
	}
	return e.Error()
}

// Sentinels for use with errors.Is().
var (
	ErrConfiguration    = &Error{Kind: KindConfiguration}
	ErrNoTokenFound     = &Error{Kind: KindNoTokenFound}
	ErrUserCancelled    = &Error{Kind: KindUserCancelled}
	ErrNetwork          = &Error{Kind: KindNetwork}
	ErrServer           = &Error{Kind: KindServer}
	ErrPermissionDenied = &Error{Kind: KindPermissionDenied}
)

// New creates an *Error of kind with a formatted message.
func New(kind Kind, format string, a ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, a...)}
}

// Wrap wraps err as kind. If err already is an *Error it is returned as is, so the
// first classification wins.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if msg == "" {
		msg = err.Error()
	} else {
		msg = msg + ": " + err.Error()
	}
	return &Error{Kind: kind, Message: msg, Err: err}
}

// Server creates a KindServer error with the provider's code and description.
func Server(code, description string, cause error) *Error {
	return &Error{Kind: KindServer, Code: code, Message: description, Err: cause}
}

// KindOf returns the Kind of err, KindUnknown if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

type verboser interface {
	Verbose() string
}

// Verbose prints the most verbose error that the error message has.
func Verbose(err error) string {
	if v, ok := err.(verboser); ok {
		return v.Verbose()
	}
	log.Printf("NOT VERBOSE ERROR: %T", err)
	return err.Error()
}

// CallErr represents an HTTP call error. Has a Verbose() method that allows getting the
// http.Request and Response objects. Implements error.
type CallErr struct {
	Req  *http.Request
	Resp *http.Response
	Err  error
}

// Errors implements error.Error().
func (e CallErr) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e CallErr) Unwrap() error {
	return e.Err
}

// Verbose prints a versbose error message with the request or response.
func (e CallErr) Verbose() string {
	return fmt.Sprintf("%s:\n\tRequest:\n%s\n\tResponse:\n%s", e.Err, prettyConf.Sprint(e.Req), prettyConf.Sprint(e.Resp))
}
