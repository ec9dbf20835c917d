package openpgp

import (
	"errors"
	"sync"
)

// Worker executes a token's commands the way the device's single GPG fiber
// does: one goroutine, strictly in delivery order, one command running to
// completion before the next is accepted. The request and response channel
// operations stand in for the pair of event flags a card exchanges with its
// transport fiber.
//
// Worker satisfies iso7816.Transmitter, so a host-side Client can drive the
// in-process token exactly like a PC/SC card.
type Worker struct {
	requests  chan []byte
	responses chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// ErrWorkerClosed is returned by Transmit after Close.
var ErrWorkerClosed = errors.New("openpgp: worker closed")

// NewWorker starts the execution goroutine over a token. The worker owns
// the token from here on; direct Process calls must stop.
func NewWorker(t *Token) *Worker {
	w := &Worker{
		requests:  make(chan []byte),
		responses: make(chan []byte),
		done:      make(chan struct{}),
	}

	go func() {
		for {
			select {
			case <-w.done:
				return
			case req := <-w.requests:
				select {
				case w.responses <- t.Process(req):
				case <-w.done:
					return
				}
			}
		}
	}()

	return w
}

// Transmit hands one command APDU to the worker and blocks until its
// response is ready. No cancellation, no timeout: like the device, a
// long-running command simply holds the line.
func (w *Worker) Transmit(cmd []byte) ([]byte, error) {
	select {
	case w.requests <- cmd:
	case <-w.done:
		return nil, ErrWorkerClosed
	}

	select {
	case resp := <-w.responses:
		return resp, nil
	case <-w.done:
		return nil, ErrWorkerClosed
	}
}

// Close stops the worker. In-flight Transmit calls return ErrWorkerClosed.
func (w *Worker) Close() {
	w.closeOnce.Do(func() { close(w.done) })
}
