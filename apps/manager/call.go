// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package manager

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync/atomic"

	"github.com/AzureAD/adal-broker-for-go/apps/errors"
	"github.com/AzureAD/adal-broker-for-go/apps/logger"
)

// Status is how an operation ended.
type Status int

const (
	// StatusSucceeded means Outcome.Value holds the result.
	StatusSucceeded Status = iota + 1
	// StatusFailed means Outcome.Err holds the failure.
	StatusFailed
	// StatusCancelled means the user cancelled. Outcome.Err is a UserCancelled error.
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusSucceeded:
		return "Succeeded"
	case StatusFailed:
		return "Failed"
	case StatusCancelled:
		return "Cancelled"
	}
	return "Pending"
}

// Outcome is the single result of an operation.
type Outcome[T any] struct {
	Status Status
	Value  T
	Err    error
}

// Call is the handle of an operation running in the background. It receives exactly
// one Outcome.
type Call[T any] struct {
	op        string
	log       *slog.Logger
	delivered atomic.Bool
	done      chan struct{}
	out       Outcome[T]
}

func newCall[T any](log *slog.Logger, op string) *Call[T] {
	return &Call[T]{op: op, log: log, done: make(chan struct{})}
}

// Done is closed when the outcome is available.
func (c *Call[T]) Done() <-chan struct{} {
	return c.done
}

// Outcome returns the outcome if it is available.
func (c *Call[T]) Outcome() (Outcome[T], bool) {
	select {
	case <-c.done:
		return c.out, true
	default:
		return Outcome[T]{}, false
	}
}

// Wait blocks until the outcome is available or ctx is done. Giving up on the wait
// does not cancel the operation.
func (c *Call[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-c.done:
		return c.out.Value, c.out.Err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (c *Call[T]) succeed(v T) bool {
	return c.deliver(Outcome[T]{Status: StatusSucceeded, Value: v})
}

// fail delivers err. Errors that are not already classified become UnknownError
// with their message kept.
func (c *Call[T]) fail(err error) bool {
	var e *errors.Error
	if !stderrors.As(err, &e) {
		err = errors.Wrap(errors.KindUnknown, err, "")
	}
	status := StatusFailed
	if errors.KindOf(err) == errors.KindUserCancelled {
		status = StatusCancelled
	}
	return c.deliver(Outcome[T]{Status: status, Err: err})
}

func (c *Call[T]) deliver(o Outcome[T]) bool {
	if !c.delivered.CompareAndSwap(false, true) {
		c.log.Warn("outcome already delivered, dropping", logger.Tag("manager"), slog.String("op", c.op), slog.String("status", o.Status.String()))
		return false
	}
	c.out = o
	close(c.done)
	if o.Err != nil {
		c.log.Info(c.op+" "+o.Status.String(), logger.Tag("manager"), slog.Any("error", o.Err))
	} else {
		c.log.Debug(c.op+" succeeded", logger.Tag("manager"))
	}
	return true
}
