package machine

import "context"

// An Adapter represents the minimal CNC controller interface.
type Adapter interface {
	Status() Status

	Probes() []ProbeResult
	ResetProbes()

	// Push queues lines for sending.
	Push(lines ...string)

	// Drain blocks until everything pushed has been acknowledged and the
	// machine is idle again.
	Drain(ctx context.Context) error
}
