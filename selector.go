package dispatch

import (
	"fmt"
	"math/rand"
	"time"
)

// Selector picks one sending server from a candidate list according to a
// load-balancing strategy. It holds no cross-process state: round_robin is
// derived from the clock and least_used from this process's usage counters.
type Selector struct {
	usage *usageTracker
	now   func() time.Time
	randn func(int) int
}

// NewSelector creates a selector. now and randn are injectable for tests;
// nil picks the wall clock and math/rand.
func NewSelector(usage *usageTracker, now func() time.Time, randn func(int) int) *Selector {
	if now == nil {
		now = time.Now
	}
	if randn == nil {
		randn = rand.Intn
	}
	return &Selector{usage: usage, now: now, randn: randn}
}

// Select picks one candidate. The candidate list must be non-empty; an
// empty list is a programming error reported loudly rather than papered
// over with a default.
func (s *Selector) Select(candidates []Server, strategy Strategy, weights map[string]int) (Server, error) {
	if len(candidates) == 0 {
		return Server{}, ErrNoCandidates
	}

	switch strategy {
	case StrategyRoundRobin:
		return s.roundRobin(candidates), nil
	case StrategyWeighted:
		return s.weighted(candidates, weights), nil
	case StrategyLeastUsed:
		return s.leastUsed(candidates), nil
	case StrategyFailover:
		return candidates[0], nil
	default:
		return Server{}, fmt.Errorf("%w: %s", ErrUnknownStrategy, strategy)
	}
}

// roundRobin rotates on the current millisecond. There is no persisted
// cursor, so concurrent processes stay evenly spread without coordination.
func (s *Selector) roundRobin(candidates []Server) Server {
	idx := s.now().UnixMilli() % int64(len(candidates))
	return candidates[idx]
}

// weighted draws a uniform value in [0, totalWeight) and walks the
// candidates accumulating weight until the draw is covered. Servers missing
// from the weight map count as weight 1; an explicit 0 excludes a server.
func (s *Selector) weighted(candidates []Server, weights map[string]int) Server {
	total := 0
	for _, c := range candidates {
		total += weightOf(c, weights)
	}
	if total <= 0 {
		return candidates[0]
	}

	draw := s.randn(total)
	for _, c := range candidates {
		draw -= weightOf(c, weights)
		if draw < 0 {
			return c
		}
	}
	return candidates[len(candidates)-1]
}

// leastUsed picks the candidate with the smallest in-process send counter,
// ties broken by list order.
func (s *Selector) leastUsed(candidates []Server) Server {
	best := candidates[0]
	bestCount := s.usage.SentCount(best.ID)
	for _, c := range candidates[1:] {
		if count := s.usage.SentCount(c.ID); count < bestCount {
			best = c
			bestCount = count
		}
	}
	return best
}

func weightOf(server Server, weights map[string]int) int {
	if weights == nil {
		return 1
	}
	w, ok := weights[server.ID]
	if !ok {
		return 1
	}
	if w < 0 {
		return 0
	}
	return w
}
