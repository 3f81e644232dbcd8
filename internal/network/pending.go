package network

import "context"

// Pending reports the asynchronous delivery outcome of one acknowledged
// command. Send returns it immediately; the outcome arrives once the device
// acks the frame, the retry budget is spent, or the connection closes.
type Pending struct {
	name string
	done chan struct{}
	err  error
}

func newPending(name string) *Pending {
	return &Pending{name: name, done: make(chan struct{})}
}

// Done is closed once the delivery outcome is known.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Err returns the delivery outcome. Only valid after Done is closed.
func (p *Pending) Err() error {
	return p.err
}

// Wait blocks until the outcome is known or ctx ends.
func (p *Pending) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// complete settles the outcome. It must be called exactly once; the channel
// tracking maps guarantee a handle is only ever settled by one path.
func (p *Pending) complete(err error) {
	p.err = err
	close(p.done)
}
