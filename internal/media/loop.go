package media

import (
	"sync"
)

// A LoopFunc is a long-running function, e.g. a capture loop. It should
// terminate promptly when the quit channel is closed.
type LoopFunc func(quit <-chan struct{})

// A Loop is a wrapper for a long-running function that should only run in a
// single goroutine at any given time. Each call to Start() counts as a "vote"
// in favor of running the function (and Stop() removes a vote). The function
// is actually started when the vote count goes from 0 to 1, and terminated
// when the count goes from 1 to 0. Callers must ensure that each Start() call
// is matched by a corresponding Stop().
//
// Stop does not return until the function has returned, so resources the
// function uses may be released right after.
type Loop struct {
	// The long-running function.
	run LoopFunc

	// Votes in favor of running the loop.
	votes int

	// Closed when Stop() is requested, to trigger run loop exit.
	quit chan struct{}

	// Closed when run loop actually terminates.
	terminated chan struct{}

	sync.Mutex
}

func NewLoop(run LoopFunc) *Loop {
	return &Loop{
		run: run,
	}
}

func (loop *Loop) Start() {
	loop.Lock()
	defer loop.Unlock()

	loop.votes++

	if loop.votes > 1 {
		loop.assertRunning()
		return
	}

	if loop.quit != nil || loop.terminated != nil {
		panic("media.Loop: already running")
	}
	loop.quit = make(chan struct{})
	loop.terminated = make(chan struct{})

	quit, terminated := loop.quit, loop.terminated
	go func() {
		log.Debug("Starting loop")
		loop.run(quit)
		// Close terminated channel to unblock Stop().
		close(terminated)
	}()
}

func (loop *Loop) Stop() {
	loop.Lock()
	defer loop.Unlock()

	loop.assertRunning()

	loop.votes--
	if loop.votes < 0 {
		panic("media.Loop: negative vote count")
	}
	if loop.votes == 0 {
		log.Debug("Stopping loop")
		close(loop.quit)
		<-loop.terminated

		loop.quit = nil
		loop.terminated = nil
	}
}

// Done returns a channel that is closed when the current run returns, either
// on its own or because of Stop. It returns nil if the loop is not running.
func (loop *Loop) Done() <-chan struct{} {
	loop.Lock()
	defer loop.Unlock()
	return loop.terminated
}

// Running reports whether the loop holds at least one vote.
func (loop *Loop) Running() bool {
	loop.Lock()
	defer loop.Unlock()
	return loop.votes > 0
}

func (loop *Loop) assertRunning() {
	if loop.quit == nil || loop.terminated == nil {
		panic("media.Loop: not running")
	}
}
