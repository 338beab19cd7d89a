package renderer

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while a host's circuit is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is a circuit breaker state.
type State int

const (
	// StateClosed lets every render through.
	StateClosed State = iota
	// StateOpen rejects renders until the cooldown elapses.
	StateOpen
	// StateHalfOpen lets a single trial render through.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// breaker trips after a run of consecutive failures against one host.
type breaker struct {
	mu        sync.Mutex
	state     State
	failures  int
	openedAt  time.Time
	trialBusy bool

	threshold int
	cooldown  time.Duration
	now       func() time.Time
	onChange  func(from, to State)
}

func (b *breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		wait := b.cooldown - b.now().Sub(b.openedAt)
		if wait > 0 {
			return fmt.Errorf("%w: retry after %v", ErrCircuitOpen, wait.Round(time.Second))
		}
		b.transition(StateHalfOpen)
		b.trialBusy = true
		return nil
	case StateHalfOpen:
		if b.trialBusy {
			return fmt.Errorf("%w: trial render in flight", ErrCircuitOpen)
		}
		b.trialBusy = true
		return nil
	default:
		return nil
	}
}

func (b *breaker) record(failed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.trialBusy = false
	if !failed {
		b.failures = 0
		b.transition(StateClosed)
		return
	}

	b.failures++
	if b.state == StateHalfOpen || b.failures >= b.threshold {
		b.openedAt = b.now()
		b.failures = 0
		b.transition(StateOpen)
	}
}

func (b *breaker) transition(to State) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	if b.onChange != nil {
		b.onChange(from, to)
	}
}

// breakerSet keeps one breaker per host.
type breakerSet struct {
	mu        sync.Mutex
	byHost    map[string]*breaker
	threshold int
	cooldown  time.Duration
	now       func() time.Time
	onChange  func(host string, from, to State)
}

func newBreakerSet(threshold int, cooldown time.Duration) *breakerSet {
	return &breakerSet{
		byHost:    make(map[string]*breaker),
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

func (s *breakerSet) get(host string) *breaker {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.byHost[host]
	if !ok {
		b = &breaker{threshold: s.threshold, cooldown: s.cooldown, now: s.now}
		if s.onChange != nil {
			onChange := s.onChange
			b.onChange = func(from, to State) { onChange(host, from, to) }
		}
		s.byHost[host] = b
	}
	return b
}

func (s *breakerSet) state(host string) State {
	b := s.get(host)
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
