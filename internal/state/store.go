// Package state holds the last-known decoded arguments of every command a
// device has reported, keyed project / class / command. The receive path is
// the only writer; any goroutine may read or block until a matching update.
package state

import (
	"errors"
	"sync"
	"time"

	"github.com/danmuck/dronectl/internal/protocol/dict"
)

var (
	ErrTimedOut = errors.New("state: wait timed out")
	ErrClosed   = errors.New("state: store closed")
)

// DefaultWaitTimeout bounds WaitFor when the caller passes no explicit limit.
const DefaultWaitTimeout = 1 * time.Second

// Kind tags the shape of a stored value, fixed by the command's schema.
type Kind uint8

const (
	KindSingle Kind = iota + 1
	KindList
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindSingle:
		return "single"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// Value is the last-known state of one command. Exactly one of Args, Items
// or Keyed is populated, per Kind. Values handed out are deep copies.
type Value struct {
	Kind  Kind
	Args  dict.Args
	Items []dict.Args
	Keyed map[string]dict.Args
}

// Clone returns a deep copy sharing nothing with the receiver.
func (v Value) Clone() Value {
	out := Value{Kind: v.Kind}
	if v.Args != nil {
		out.Args = v.Args.Clone()
	}
	if v.Items != nil {
		out.Items = make([]dict.Args, len(v.Items))
		for i, it := range v.Items {
			out.Items[i] = it.Clone()
		}
	}
	if v.Keyed != nil {
		out.Keyed = make(map[string]dict.Args, len(v.Keyed))
		for k, it := range v.Keyed {
			out.Keyed[k] = it.Clone()
		}
	}
	return out
}

// Predicate filters updates for WaitFor. A nil predicate matches any update.
type Predicate func(Value) bool

type key struct {
	project, class, command string
}

type waiter struct {
	pred Predicate
	ch   chan Value
}

// Store is the concurrent state map. The zero value is not usable; call New.
type Store struct {
	mu      sync.Mutex
	entries map[key]Value
	waiters map[key][]*waiter
	done    chan struct{}
	closed  bool
}

func New() *Store {
	return &Store{
		entries: make(map[key]Value),
		waiters: make(map[key][]*waiter),
		done:    make(chan struct{}),
	}
}

// Apply folds one decoded command into the store and wakes matching waiters.
// Only the network receive path calls this. Updates after Close are dropped.
func (s *Store) Apply(sch *dict.Schema, vals []dict.Value) {
	args := sch.ArgsOf(vals)
	k := key{sch.Project, sch.Class, sch.Command}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	cur := s.entries[k]
	switch sch.List {
	case dict.ListItems:
		cur.Kind = KindList
		cur.Items = append(cur.Items, args)
	case dict.ListMap:
		cur.Kind = KindMap
		if cur.Keyed == nil {
			cur.Keyed = make(map[string]dict.Args)
		}
		cur.Keyed[vals[0].Key()] = args
	default:
		cur = Value{Kind: KindSingle, Args: args}
	}
	s.entries[k] = cur

	pending := s.waiters[k]
	if len(pending) == 0 {
		return
	}
	remaining := pending[:0]
	for _, w := range pending {
		if w.pred != nil && !w.pred(cur) {
			remaining = append(remaining, w)
			continue
		}
		w.ch <- cur.Clone()
	}
	if len(remaining) == 0 {
		delete(s.waiters, k)
	} else {
		s.waiters[k] = remaining
	}
}

// Get returns a deep copy of the command's last-known value, if any.
func (s *Store) Get(project, class, command string) (Value, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.entries[key{project, class, command}]
	if !ok {
		return Value{}, false
	}
	return v.Clone(), true
}

// WaitFor blocks until an Apply for the command satisfies pred, the timeout
// elapses (ErrTimedOut) or the store closes (ErrClosed). Only updates applied
// after the call starts are observed; combine with Get to cover values
// already present. A timeout <= 0 uses DefaultWaitTimeout. Every concurrent
// waiter sees its own copy of a qualifying update.
func (s *Store) WaitFor(project, class, command string, pred Predicate, timeout time.Duration) (Value, error) {
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}
	k := key{project, class, command}
	w := &waiter{pred: pred, ch: make(chan Value, 1)}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Value{}, ErrClosed
	}
	s.waiters[k] = append(s.waiters[k], w)
	s.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case v := <-w.ch:
		return v, nil
	case <-timer.C:
		s.drop(k, w)
		// Apply may have fired between the timeout and the removal.
		select {
		case v := <-w.ch:
			return v, nil
		default:
		}
		return Value{}, ErrTimedOut
	case <-s.done:
		s.drop(k, w)
		return Value{}, ErrClosed
	}
}

func (s *Store) drop(k key, w *waiter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending := s.waiters[k]
	for i, cand := range pending {
		if cand == w {
			s.waiters[k] = append(pending[:i], pending[i+1:]...)
			break
		}
	}
	if len(s.waiters[k]) == 0 {
		delete(s.waiters, k)
	}
}

// Close unblocks every waiter with ErrClosed and drops later updates.
// Close is idempotent.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
}
