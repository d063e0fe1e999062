// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package workers runs submitted work off the caller's goroutine. Pool runs work
// concurrently up to a limit, Serial runs it one item at a time in submission order.
package workers

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("workers: closed")

// Pool runs functions with bounded concurrency. Submit never blocks.
type Pool struct {
	sem    *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewPool creates a Pool running at most n functions at once. n < 1 is treated as 1.
func NewPool(n int) *Pool {
	if n < 1 {
		n = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{sem: semaphore.NewWeighted(int64(n)), ctx: ctx, cancel: cancel}
}

// Submit schedules fn. If the pool closes before fn gets a slot, fn is not run and
// dropped is called instead, when it is not nil.
func (p *Pool) Submit(fn func(), dropped func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.sem.Acquire(p.ctx, 1); err != nil {
			if dropped != nil {
				dropped()
			}
			return
		}
		defer p.sem.Release(1)
		if p.ctx.Err() != nil {
			if dropped != nil {
				dropped()
			}
			return
		}
		fn()
	}()
	return nil
}

// Close stops accepting work, drops work that has not started and waits for running
// work to return.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	p.cancel()
	p.wg.Wait()
}

// Serial runs functions one at a time on a single goroutine, in the order they were
// submitted. Submit never blocks.
type Serial struct {
	mu     sync.Mutex
	queue  []func()
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

// NewSerial starts the Serial goroutine.
func NewSerial() *Serial {
	s := &Serial{wake: make(chan struct{}, 1), done: make(chan struct{})}
	go s.loop()
	return s
}

// Submit queues fn.
func (s *Serial) Submit(fn func()) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.queue = append(s.queue, fn)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

// Close runs what is already queued, then stops the goroutine.
func (s *Serial) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.closed = true
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
	<-s.done
}

func (s *Serial) loop() {
	defer close(s.done)
	for range s.wake {
		for {
			s.mu.Lock()
			if len(s.queue) == 0 {
				closed := s.closed
				s.mu.Unlock()
				if closed {
					return
				}
				break
			}
			fn := s.queue[0]
			s.queue[0] = nil
			s.queue = s.queue[1:]
			s.mu.Unlock()
			fn()
		}
	}
}
