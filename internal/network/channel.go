package network

import (
	"time"
)

// inflight is one acknowledged frame awaiting its ACK.
type inflight struct {
	seq      uint8
	wire     []byte
	attempts int
	lastSent time.Time
	pending  *Pending
}

// sendChannel owns one outbound channel's sequence space and, when frames on
// it require acknowledgement, the in-flight retransmit state. It is not
// self-synchronized; the Conn serializes access under its own lock.
type sendChannel struct {
	id      uint8
	seq     uint8
	tracked map[uint8]*inflight
}

func newSendChannel(id uint8) *sendChannel {
	return &sendChannel{id: id}
}

// nextSeq assigns the next sequence number, wrapping modulo 256. Numbers
// still awaiting an ack are skipped so an in-flight frame keeps its sequence
// number to itself until it settles.
func (ch *sendChannel) nextSeq() uint8 {
	for i := 0; i < 256; i++ {
		s := ch.seq
		ch.seq++
		if _, busy := ch.tracked[s]; !busy {
			return s
		}
	}
	s := ch.seq
	ch.seq++
	return s
}

// track registers one transmitted frame as awaiting acknowledgement. The
// frame keeps its sequence number across retransmissions. If the whole
// sequence space was in flight and the number had to be reused, the displaced
// frame's handle is returned so the caller can fail it; it would otherwise
// never settle.
func (ch *sendChannel) track(seq uint8, wire []byte, p *Pending, now time.Time) *Pending {
	if ch.tracked == nil {
		ch.tracked = make(map[uint8]*inflight)
	}
	var displaced *Pending
	if prev, ok := ch.tracked[seq]; ok {
		displaced = prev.pending
	}
	ch.tracked[seq] = &inflight{
		seq:      seq,
		wire:     wire,
		attempts: 1,
		lastSent: now,
		pending:  p,
	}
	return displaced
}

// acknowledge settles the in-flight frame with this sequence number and
// returns its delivery handle, or nil for an unknown or stale ack.
func (ch *sendChannel) acknowledge(seq uint8) *Pending {
	fl, ok := ch.tracked[seq]
	if !ok {
		return nil
	}
	delete(ch.tracked, seq)
	return fl.pending
}

// dueForRetry returns the in-flight frames whose ack wait elapsed at now.
func (ch *sendChannel) dueForRetry(now time.Time, ackTimeout time.Duration) []*inflight {
	var due []*inflight
	for _, fl := range ch.tracked {
		if now.Sub(fl.lastSent) >= ackTimeout {
			due = append(due, fl)
		}
	}
	return due
}

// giveUp drops the in-flight frame after its retry budget is spent and
// returns its delivery handle for failure reporting.
func (ch *sendChannel) giveUp(seq uint8) *Pending {
	return ch.acknowledge(seq)
}

// inFlight reports how many frames on this channel still await an ack.
func (ch *sendChannel) inFlight() int {
	return len(ch.tracked)
}

// recvTracker keeps the per-channel acceptance window for inbound frames.
// A frame is accepted when its sequence number advances, or when it jumped
// far enough backwards to count as a wrap. Exact duplicates and small
// rollbacks are rejected.
type recvTracker struct {
	last uint8
}

// The tracker starts one before zero so a device beginning at seq 0 passes.
func newRecvTracker() *recvTracker {
	return &recvTracker{last: 255}
}

func (t *recvTracker) accept(seq uint8) bool {
	diff := int(seq) - int(t.last)
	ok := diff > 0 || diff <= -10
	if ok {
		t.last = seq
	}
	return ok
}
