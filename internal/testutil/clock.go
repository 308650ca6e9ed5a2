package testutil

import (
	"strconv"
	"sync"
	"time"
)

// StubClock is a photodb.Clock under test control. Each call to Now advances
// it by Step, so durations measured with it are positive. Safe for concurrent use.
type StubClock struct {
	mu   sync.Mutex
	now  time.Time
	Step time.Duration
}

// NewStubClock creates a StubClock that starts at t and ticks by step.
func NewStubClock(t time.Time, step time.Duration) *StubClock {
	return &StubClock{now: t, Step: step}
}

// FixedClock returns a StubClock frozen at 2024-01-15 10:30:00 UTC.
func FixedClock() *StubClock {
	return NewStubClock(FixedTime, 0)
}

// FixedTime is the instant FixedClock reports.
var FixedTime = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.Step)
	return t
}

// StubIDGenerator returns prefix-1, prefix-2, ... Safe for concurrent use.
type StubIDGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewStubIDGenerator creates a generator; an empty prefix means "op".
func NewStubIDGenerator(prefix string) *StubIDGenerator {
	if prefix == "" {
		prefix = "op"
	}
	return &StubIDGenerator{prefix: prefix}
}

func (g *StubIDGenerator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return g.prefix + "-" + strconv.Itoa(g.n)
}
