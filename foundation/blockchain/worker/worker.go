// Package worker implements the forging loop of a delegate node.
package worker

import (
	"crypto/ecdsa"
	"sync"
	"time"

	"github.com/ardanlabs/dposledger/foundation/blockchain/signature"
	"github.com/ardanlabs/dposledger/foundation/blockchain/state"
)

// Worker forges a block whenever the slot of the node's delegate comes up.
type Worker struct {
	state     *state.State
	key       *ecdsa.PrivateKey
	publicKey string
	epoch     time.Time
	wg        sync.WaitGroup
	shut      chan struct{}
	forge     chan bool
	evHandler state.EventHandler
}

// Run creates a worker, registers the worker with the state package, and
// starts up all the background processes. A nil key runs a node that never
// forges.
func Run(st *state.State, key *ecdsa.PrivateKey, evHandler state.EventHandler) {
	if evHandler == nil {
		evHandler = func(v string, args ...any) {}
	}

	w := Worker{
		state:     st,
		key:       key,
		epoch:     st.Genesis().Date,
		shut:      make(chan struct{}),
		forge:     make(chan bool, 1),
		evHandler: evHandler,
	}
	if key != nil {
		w.publicKey = signature.PublicKeyHex(key.PublicKey)
	}

	// Register this worker with the state package.
	st.Worker = &w

	// Load the set of operations we need to run.
	operations := []func(){
		w.forgingOperations,
	}

	// Set waitgroup to match the number of G's we need for the set
	// of operations we have.
	g := len(operations)
	w.wg.Add(g)

	// We don't want to return until we know all the G's are up and running.
	hasStarted := make(chan bool)

	// Start all the operational G's.
	for _, op := range operations {
		go func(op func()) {
			defer w.wg.Done()
			hasStarted <- true
			op()
		}(op)
	}

	// Wait for the G's to report they are running.
	for range g {
		<-hasStarted
	}
}

// =============================================================================
// These methods implement the state.Worker interface.

// Shutdown terminates the goroutine performing work.
func (w *Worker) Shutdown() {
	w.evHandler("worker: shutdown: started")
	defer w.evHandler("worker: shutdown: completed")

	w.evHandler("worker: shutdown: terminate goroutines")
	close(w.shut)
	w.wg.Wait()
}

// SignalForge asks for a forging check right away. If there is already a
// signal pending in the channel, just return since a check will happen.
func (w *Worker) SignalForge() {
	select {
	case w.forge <- true:
		w.evHandler("worker: SignalForge: forging signaled")
	default:
	}
}

// =============================================================================

// timestamp returns the seconds elapsed since the genesis date.
func (w *Worker) timestamp() int64 {
	return int64(time.Since(w.epoch) / time.Second)
}

// isShutdown is used to test if a shutdown has been signaled.
func (w *Worker) isShutdown() bool {
	select {
	case <-w.shut:
		return true
	default:
		return false
	}
}
