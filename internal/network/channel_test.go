package network

import (
	"testing"
	"time"
)

func TestNextSeqWrapsModulo256(t *testing.T) {
	ch := newSendChannel(11)
	for i := 0; i < 600; i++ {
		if got := ch.nextSeq(); got != uint8(i%256) {
			t.Fatalf("call %d: seq = %d, want %d", i, got, i%256)
		}
	}
}

func TestNextSeqSkipsInFlight(t *testing.T) {
	ch := newSendChannel(11)
	first := newPending("test.cmd")
	seq := ch.nextSeq()
	ch.track(seq, []byte{1}, first, time.Now())

	// Wrap the whole sequence space while the first frame still awaits its
	// ack. Its number must not be handed out again.
	for i := 0; i < 255; i++ {
		ch.nextSeq()
	}
	next := ch.nextSeq()
	if next == seq {
		t.Fatalf("seq %d reassigned while still in flight", seq)
	}
	if got := ch.inFlight(); got != 1 {
		t.Fatalf("in flight = %d", got)
	}
	if got := ch.acknowledge(seq); got != first {
		t.Fatalf("acknowledge returned %v, want the original handle", got)
	}
	select {
	case <-first.Done():
		t.Fatal("handle settled before any ack")
	default:
	}
}

func TestTrackReturnsDisplacedHandle(t *testing.T) {
	ch := newSendChannel(11)
	first := newPending("test.cmd")
	second := newPending("test.cmd")

	if got := ch.track(5, []byte{1}, first, time.Now()); got != nil {
		t.Fatalf("fresh track displaced %v", got)
	}
	if got := ch.track(5, []byte{2}, second, time.Now()); got != first {
		t.Fatalf("track returned %v, want the displaced handle", got)
	}
	if got := ch.inFlight(); got != 1 {
		t.Fatalf("in flight = %d", got)
	}
	if got := ch.acknowledge(5); got != second {
		t.Fatalf("acknowledge returned %v, want the newer handle", got)
	}
}

func TestTrackAndAcknowledge(t *testing.T) {
	ch := newSendChannel(11)
	p := newPending("test.cmd")
	ch.track(4, []byte{1, 2, 3}, p, time.Now())

	if got := ch.inFlight(); got != 1 {
		t.Fatalf("in flight = %d", got)
	}
	if got := ch.acknowledge(9); got != nil {
		t.Fatalf("unknown seq acknowledged: %v", got)
	}
	if got := ch.acknowledge(4); got != p {
		t.Fatalf("acknowledge returned %v, want the tracked handle", got)
	}
	if got := ch.acknowledge(4); got != nil {
		t.Fatal("double acknowledge returned a handle")
	}
	if got := ch.inFlight(); got != 0 {
		t.Fatalf("in flight after ack = %d", got)
	}
}

func TestDueForRetry(t *testing.T) {
	ch := newSendChannel(11)
	now := time.Now()
	ch.track(1, []byte{1}, nil, now)
	ch.track(2, []byte{2}, nil, now.Add(-time.Second))

	due := ch.dueForRetry(now, 150*time.Millisecond)
	if len(due) != 1 || due[0].seq != 2 {
		t.Fatalf("due = %+v, want only seq 2", due)
	}
}

func TestGiveUpRemovesInFlight(t *testing.T) {
	ch := newSendChannel(11)
	p := newPending("test.cmd")
	ch.track(7, []byte{1}, p, time.Now())

	if got := ch.giveUp(7); got != p {
		t.Fatalf("giveUp returned %v", got)
	}
	if got := ch.inFlight(); got != 0 {
		t.Fatalf("in flight after give up = %d", got)
	}
}

func TestRecvTrackerAcceptanceWindow(t *testing.T) {
	tr := newRecvTracker()

	// A device starting at 0 passes the initial tracker state.
	if !tr.accept(0) {
		t.Fatal("initial seq 0 rejected")
	}
	if tr.accept(0) {
		t.Fatal("duplicate accepted")
	}
	if !tr.accept(1) {
		t.Fatal("next seq rejected")
	}

	// Small rollbacks are stale retransmissions.
	tr.last = 5
	if tr.accept(0) {
		t.Fatal("small rollback accepted")
	}

	// A jump far enough backwards counts as a wraparound.
	tr.last = 250
	if !tr.accept(3) {
		t.Fatal("wraparound rejected")
	}
	if tr.last != 3 {
		t.Fatalf("tracker did not advance on wrap: %d", tr.last)
	}
}
