package tracker

import "strings"

// DecisionHistory keeps the most recent hill-climb decisions, oldest evicted first
type DecisionHistory struct {
	limit   int
	entries []Decision
}

// NewDecisionHistory creates a history holding at most limit decisions
func NewDecisionHistory(limit int) *DecisionHistory {
	limit = max(limit, 1)
	return &DecisionHistory{
		limit:   limit,
		entries: make([]Decision, 0, limit),
	}
}

// Append records a decision, evicting the oldest once the limit is exceeded
func (h *DecisionHistory) Append(d Decision) {
	if len(h.entries) == h.limit {
		copy(h.entries, h.entries[1:])
		h.entries = h.entries[:h.limit-1]
	}
	h.entries = append(h.entries, d)
}

// Entries returns a copy of the decisions, oldest first
func (h *DecisionHistory) Entries() []Decision {
	out := make([]Decision, len(h.entries))
	copy(out, h.entries)
	return out
}

// Len returns the number of decisions held
func (h *DecisionHistory) Len() int {
	return len(h.entries)
}

// AtOptimum reports whether a full window of decisions nets out to no movement.
// That happens when the climber oscillates around the top or keeps choosing to stay.
func (h *DecisionHistory) AtOptimum() bool {
	if len(h.entries) < h.limit {
		return false
	}
	net := 0
	for _, d := range h.entries {
		switch d {
		case DecisionExtend:
			net++
		case DecisionRetract:
			net--
		}
	}
	return net == 0
}

// Clear drops all decisions
func (h *DecisionHistory) Clear() {
	h.entries = h.entries[:0]
}

// Strings returns the decisions as their names, oldest first
func (h *DecisionHistory) Strings() []string {
	out := make([]string, len(h.entries))
	for i, d := range h.entries {
		out[i] = d.String()
	}
	return out
}

func (h *DecisionHistory) String() string {
	return "[" + strings.Join(h.Strings(), " ") + "]"
}
