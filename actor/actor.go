// Package actor provides the concurrency primitives the node wraps its
// single-writer chain-mutation path in: a bounded command queue feeding one
// goroutine, a semaphore-bounded pool for concurrent read queries, and an
// atomically-swapped snapshot pointer so queries never observe a partial
// block import.
package actor

import (
	"sync/atomic"

	"github.com/umi-network/op-move/core/types"
)

// Snapshot is the read-only view queries execute against: the last block
// the actor committed. Swapped atomically on every import so in-flight
// queries see either the old or the new head, never a mixture.
type Snapshot struct {
	Head   types.Hash
	Number uint64
	Root   types.Hash
}

// Actor serializes chain-mutating commands through one goroutine while
// bounding concurrent read queries to a fixed pool size, per the state
// actor's command/query split.
type Actor struct {
	commands chan func()
	sem      chan struct{}

	snapshot atomic.Pointer[Snapshot]
	closed   atomic.Bool
	shutdown chan struct{}
	done     chan struct{}
}

// New creates an Actor whose command queue holds commandCapacity pending
// commands before Submit blocks, and whose query pool admits at most
// queryLimit concurrent Query calls.
func New(commandCapacity, queryLimit int) *Actor {
	if commandCapacity <= 0 {
		commandCapacity = 1
	}
	if queryLimit <= 0 {
		queryLimit = 1
	}
	return &Actor{
		commands: make(chan func(), commandCapacity),
		sem:      make(chan struct{}, queryLimit),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the actor's single command-processing goroutine.
func (a *Actor) Start() {
	go a.loop()
}

func (a *Actor) loop() {
	defer close(a.done)
	for {
		select {
		case cmd, ok := <-a.commands:
			if !ok {
				return
			}
			cmd()
		case <-a.shutdown:
			a.drain()
			return
		}
	}
}

// drain runs every command already enqueued before the actor stops, so a
// graceful shutdown never silently discards an admitted command.
func (a *Actor) drain() {
	for {
		select {
		case cmd := <-a.commands:
			cmd()
		default:
			return
		}
	}
}

// Submit enqueues cmd and blocks until the actor goroutine has run it to
// completion. Commands are FIFO: cmd will not start until every
// previously-submitted command has finished. Submit returns immediately,
// without running cmd, if the actor has already been asked to shut down.
func (a *Actor) Submit(cmd func()) {
	if a.closed.Load() {
		return
	}
	finished := make(chan struct{})
	select {
	case a.commands <- func() { defer close(finished); cmd() }:
	case <-a.shutdown:
		return
	}
	<-finished
}

// Query runs fn against the current snapshot, bounded by the actor's query
// concurrency limit. Unlike Submit, Query calls may run concurrently with
// each other and with the actor's own command loop.
func (a *Actor) Query(fn func()) {
	a.sem <- struct{}{}
	defer func() { <-a.sem }()
	fn()
}

// LoadSnapshot returns the actor's current read snapshot, or nil before the
// first StoreSnapshot call.
func (a *Actor) LoadSnapshot() *Snapshot {
	return a.snapshot.Load()
}

// StoreSnapshot atomically swaps in a new read snapshot, called by the
// actor's own command loop after each block import.
func (a *Actor) StoreSnapshot(s *Snapshot) {
	a.snapshot.Store(s)
}

// Shutdown signals the actor to stop accepting new commands, drains
// whatever was already enqueued, and waits for the command loop to exit.
// Safe to call more than once.
func (a *Actor) Shutdown() {
	if a.closed.CompareAndSwap(false, true) {
		close(a.shutdown)
	}
	<-a.done
}
