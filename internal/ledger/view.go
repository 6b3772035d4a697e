package ledger

import (
	"fmt"
	"strings"

	"oversight.dev/internal/action"
)

// EmptyDigest is returned by RecentText when nothing has been logged.
const EmptyDigest = "No actions logged yet."

const digestItems = 5

// Summary is the recent-N view plus aggregate counts over the whole ledger.
type Summary struct {
	Total    int     `json:"total"`
	Blocked  int     `json:"blocked"`
	Flagged  int     `json:"flagged"`
	Approved int     `json:"approved"`
	Recent   []Entry `json:"recent"`
}

// Tail returns the last n entries; n <= 0 means all of them.
func Tail(entries []Entry, n int) []Entry {
	if n <= 0 || n >= len(entries) {
		return entries
	}
	return entries[len(entries)-n:]
}

// Summarize recounts by full scan; the ledger is bounded by a single process run.
func Summarize(entries []Entry, n int) Summary {
	s := Summary{Total: len(entries)}
	for _, e := range entries {
		switch e.Decision {
		case action.DecisionBlock:
			s.Blocked++
		case action.DecisionFlag:
			s.Flagged++
		}
		if e.Outcome == action.OutcomeApproved {
			s.Approved++
		}
	}
	tail := Tail(entries, n)
	s.Recent = make([]Entry, len(tail))
	copy(s.Recent, tail)
	return s
}

// OutcomeLabel names the outcome of pass and flag entries "none".
func OutcomeLabel(o action.Outcome) string {
	if o == action.OutcomeNone {
		return "none"
	}
	return string(o)
}

func CountByOutcome(entries []Entry) map[string]int {
	counts := map[string]int{
		"none":                          0,
		string(action.OutcomePending):  0,
		string(action.OutcomeApproved): 0,
		string(action.OutcomeDenied):   0,
		string(action.OutcomeBlocked):  0,
	}
	for _, e := range entries {
		counts[OutcomeLabel(e.Outcome)]++
	}
	return counts
}

func CountByDecision(entries []Entry) map[action.Decision]int {
	counts := make(map[action.Decision]int, len(action.Decisions))
	for _, d := range action.Decisions {
		counts[d] = 0
	}
	for _, e := range entries {
		counts[e.Decision]++
	}
	return counts
}

// RecentText renders a short digest for humans: total, decision counts over
// the last n entries and the five most recent actions, newest first.
func RecentText(entries []Entry, n int) string {
	if len(entries) == 0 {
		return EmptyDigest
	}
	window := Tail(entries, n)
	counts := CountByDecision(window)

	var b strings.Builder
	fmt.Fprintf(&b, "Total actions logged: %d\n", len(entries))
	fmt.Fprintf(&b, "Last %d: ", len(window))
	parts := make([]string, 0, len(action.Decisions))
	for _, d := range action.Decisions {
		parts = append(parts, fmt.Sprintf("%d %s", counts[d], d))
	}
	b.WriteString(strings.Join(parts, ", "))
	b.WriteString("\n\nMost recent:")

	recent := Tail(entries, digestItems)
	for i := len(recent) - 1; i >= 0; i-- {
		e := recent[i]
		fmt.Fprintf(&b, "\n• [%s] %s (score %d)", strings.ToUpper(string(e.Decision)), e.Description, e.Score)
	}
	return b.String()
}
