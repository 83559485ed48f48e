package media

import (
	"sync"
)

// A loopFunc is a long-running function, e.g. a frame pump. It should terminate
// promptly when the quit channel is closed.
type loopFunc func(quit <-chan struct{})

// A singletonLoop runs a loopFunc in at most one goroutine at a time. Each
// start() is a vote for running it and each stop() withdraws one. The loop
// starts when the vote count goes from 0 to 1 and is terminated when it
// returns to 0.
type singletonLoop struct {
	name string
	run  loopFunc

	votes int

	// Closed to request loop exit.
	quit chan struct{}

	// Closed when the loop actually terminates.
	terminated chan struct{}

	sync.Mutex
}

func newSingletonLoop(name string, run loopFunc) *singletonLoop {
	return &singletonLoop{
		name: name,
		run:  run,
	}
}

func (loop *singletonLoop) start() {
	loop.Lock()
	defer loop.Unlock()

	loop.votes++
	if loop.votes > 1 {
		return
	}

	loop.quit = make(chan struct{})
	loop.terminated = make(chan struct{})

	go func(quit, terminated chan struct{}) {
		log.Debug("starting %s", loop.name)
		loop.run(quit)
		close(terminated)
	}(loop.quit, loop.terminated)
}

func (loop *singletonLoop) stop() {
	loop.Lock()
	defer loop.Unlock()

	if loop.votes == 0 {
		log.Warn("%s: stop without start", loop.name)
		return
	}

	loop.votes--
	if loop.votes == 0 {
		log.Debug("stopping %s", loop.name)
		close(loop.quit)
		<-loop.terminated

		loop.quit = nil
		loop.terminated = nil
	}
}

func (loop *singletonLoop) running() bool {
	loop.Lock()
	defer loop.Unlock()
	return loop.quit != nil
}
