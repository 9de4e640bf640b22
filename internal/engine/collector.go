package engine

import (
	"sync"

	"github.com/sells-group/outreach-cli/internal/model"
)

// Collector gathers batch results. Safe for concurrent use; each slot is written once.
type Collector struct {
	mu       sync.Mutex
	results  []model.SubmissionAttempt
	set      []bool
	outcomes map[model.Outcome]int
}

// NewCollector sizes a collector for n sites.
func NewCollector(n int) *Collector {
	return &Collector{
		results:  make([]model.SubmissionAttempt, n),
		set:      make([]bool, n),
		outcomes: make(map[model.Outcome]int),
	}
}

// Put records the attempt for input index i. Later writes to the same slot are ignored.
func (c *Collector) Put(i int, a model.SubmissionAttempt) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i < 0 || i >= len(c.results) || c.set[i] {
		return
	}
	c.results[i] = a
	c.set[i] = true
	c.outcomes[a.Outcome]++
}

// Results returns the attempts in input order.
func (c *Collector) Results() []model.SubmissionAttempt {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.SubmissionAttempt, len(c.results))
	copy(out, c.results)
	return out
}

// Count returns how many attempts ended with outcome o.
func (c *Collector) Count(o model.Outcome) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outcomes[o]
}

// missing returns the indices no attempt was recorded for.
func (c *Collector) missing() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []int
	for i, ok := range c.set {
		if !ok {
			out = append(out, i)
		}
	}
	return out
}
