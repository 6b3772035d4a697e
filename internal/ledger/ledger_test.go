package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oversight.dev/internal/action"
	"oversight.dev/internal/risk"
)

func entry(id string, decision action.Decision, score int) Entry {
	return NewEntry(id,
		action.Descriptor{Name: "tool_" + id, Description: "do " + id},
		risk.Assessment{Score: score, Factors: []string{"f"}},
		decision,
		time.Now(),
	)
}

func TestAppendPreservesOrder(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := s.Append(ctx, entry(fmt.Sprintf("e%d", i), action.DecisionPass, 1))
		require.NoError(t, err)
	}
	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i, e := range all {
		assert.Equal(t, fmt.Sprintf("e%d", i), e.ID)
		assert.Equal(t, uint64(i+1), e.Sequence)
	}
	n, _ := s.Len(ctx)
	assert.Equal(t, 5, n)
}

func TestAppendRejectsDuplicateAndBlankIDs(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	_, err := s.Append(ctx, entry("a", action.DecisionPass, 1))
	require.NoError(t, err)

	_, err = s.Append(ctx, entry("a", action.DecisionBlock, 9))
	assert.True(t, errors.Is(err, ErrDuplicate))

	_, err = s.Append(ctx, entry("", action.DecisionPass, 1))
	assert.True(t, errors.Is(err, ErrInvalid))

	got, err := s.Find(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, action.DecisionPass, got.Decision)
}

func TestNewEntryAssignsOutcome(t *testing.T) {
	assert.Equal(t, action.OutcomePending, entry("a", action.DecisionAwait, 7).Outcome)
	assert.Equal(t, action.OutcomeBlocked, entry("b", action.DecisionBlock, 9).Outcome)
	assert.Equal(t, action.OutcomeNone, entry("c", action.DecisionFlag, 5).Outcome)
	assert.Equal(t, action.DomainOther, entry("d", action.DecisionPass, 1).Domain)
	assert.True(t, entry("e", action.DecisionPass, 1).Reversible)
}

func TestSetOutcomeOnlyOnce(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	_, _ = s.Append(ctx, entry("await", action.DecisionAwait, 7))
	_, _ = s.Append(ctx, entry("pass", action.DecisionPass, 1))

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	got, err := s.SetOutcome(ctx, "await", action.OutcomeApproved, at)
	require.NoError(t, err)
	assert.Equal(t, action.OutcomeApproved, got.Outcome)
	require.NotNil(t, got.ResolvedAt)
	assert.True(t, got.ResolvedAt.Equal(at))

	got, err = s.SetOutcome(ctx, "await", action.OutcomeDenied, at.Add(time.Hour))
	assert.True(t, errors.Is(err, ErrNotPending))
	assert.Equal(t, action.OutcomeApproved, got.Outcome)

	_, err = s.SetOutcome(ctx, "pass", action.OutcomeApproved, at)
	assert.True(t, errors.Is(err, ErrNotPending))

	_, err = s.SetOutcome(ctx, "missing", action.OutcomeApproved, at)
	assert.True(t, errors.Is(err, ErrNotFound))
	n, _ := s.Len(ctx)
	assert.Equal(t, 2, n)
}

func TestFindReturnsCopy(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	_, _ = s.Append(ctx, entry("a", action.DecisionPass, 1))

	got, _ := s.Find(ctx, "a")
	got.Factors[0] = "mutated"

	again, _ := s.Find(ctx, "a")
	assert.Equal(t, "f", again.Factors[0])
}

func TestConcurrentAppendsAndReads(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	var wg sync.WaitGroup
	const n = 200
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, _ = s.Append(ctx, entry(fmt.Sprintf("c%d", i), action.DecisionFlag, 5))
		}(i)
		go func() {
			defer wg.Done()
			_, _ = s.List(ctx)
		}()
	}
	wg.Wait()

	all, _ := s.List(ctx)
	require.Len(t, all, n)
	for i, e := range all {
		assert.Equal(t, uint64(i+1), e.Sequence)
	}
}

func TestSummarizeMatchesRecount(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	decisions := []action.Decision{
		action.DecisionPass, action.DecisionFlag, action.DecisionAwait, action.DecisionBlock,
		action.DecisionAwait, action.DecisionFlag, action.DecisionBlock, action.DecisionPass,
	}
	for i, d := range decisions {
		_, _ = s.Append(ctx, entry(fmt.Sprintf("s%d", i), d, 1+i))
	}
	_, _ = s.SetOutcome(ctx, "s2", action.OutcomeApproved, time.Now())
	_, _ = s.SetOutcome(ctx, "s4", action.OutcomeDenied, time.Now())

	all, _ := s.List(ctx)
	sum := Summarize(all, 3)

	var blocked, flagged, approved int
	for _, e := range all {
		if e.Decision == action.DecisionBlock {
			blocked++
		}
		if e.Decision == action.DecisionFlag {
			flagged++
		}
		if e.Outcome == action.OutcomeApproved {
			approved++
		}
	}
	assert.Equal(t, len(all), sum.Total)
	assert.Equal(t, blocked, sum.Blocked)
	assert.Equal(t, flagged, sum.Flagged)
	assert.Equal(t, approved, sum.Approved)
	require.Len(t, sum.Recent, 3)
	assert.Equal(t, "s5", sum.Recent[0].ID)
	assert.Equal(t, "s7", sum.Recent[2].ID)

	byOutcome := CountByOutcome(all)
	assert.Equal(t, 1, byOutcome["approved"])
	assert.Equal(t, 1, byOutcome["denied"])
	assert.Equal(t, 2, byOutcome["blocked"])
	assert.Equal(t, 4, byOutcome["none"])
	assert.Equal(t, 0, byOutcome["pending"])

	byDecision := CountByDecision(all)
	assert.Equal(t, 2, byDecision[action.DecisionPass])
	assert.Equal(t, 2, byDecision[action.DecisionAwait])
}

func TestSummarizeWindowLargerThanLedger(t *testing.T) {
	entries := []Entry{entry("a", action.DecisionPass, 1)}
	assert.Len(t, Summarize(entries, 10).Recent, 1)
	assert.Len(t, Summarize(entries, 0).Recent, 1)
	assert.Len(t, Summarize(nil, 5).Recent, 0)
}

func TestRecentTextEmpty(t *testing.T) {
	assert.Equal(t, EmptyDigest, RecentText(nil, 10))
}

func TestRecentText(t *testing.T) {
	var entries []Entry
	decisions := []action.Decision{
		action.DecisionPass, action.DecisionPass, action.DecisionFlag,
		action.DecisionAwait, action.DecisionBlock, action.DecisionPass, action.DecisionFlag,
	}
	for i, d := range decisions {
		entries = append(entries, entry(fmt.Sprintf("r%d", i), d, i+1))
	}

	text := RecentText(entries, 4)
	assert.True(t, strings.HasPrefix(text, "Total actions logged: 7\n"))
	assert.Contains(t, text, "Last 4: 1 pass, 1 flag, 1 await, 1 block")

	lines := strings.Split(text, "\n")
	var items []string
	for _, l := range lines {
		if strings.HasPrefix(l, "• ") {
			items = append(items, l)
		}
	}
	require.Len(t, items, 5)
	assert.Equal(t, "• [FLAG] do r6 (score 7)", items[0])
	assert.Equal(t, "• [FLAG] do r2 (score 3)", items[4])
}
