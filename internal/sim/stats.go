package sim

import (
	"sync"

	"oversight.dev/internal/action"
)

// Counter tallies evaluations by decision.
type Counter struct {
	mu        sync.Mutex
	total     int
	scoreSum  int
	decisions map[action.Decision]int
}

func (c *Counter) Add(d action.Decision, score int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.decisions == nil {
		c.decisions = make(map[action.Decision]int, len(action.Decisions))
	}
	c.total++
	c.scoreSum += score
	c.decisions[d]++
}

type Snapshot struct {
	Total     int
	MeanScore float64
	Decisions map[action.Decision]int
}

func (c *Counter) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{Total: c.total, Decisions: make(map[action.Decision]int, len(action.Decisions))}
	for _, d := range action.Decisions {
		s.Decisions[d] = c.decisions[d]
	}
	if c.total > 0 {
		s.MeanScore = float64(c.scoreSum) / float64(c.total)
	}
	return s
}
