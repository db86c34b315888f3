package state

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	contractx "github.com/tanpawarit/Callsight-Conversational-BI-Agent/agent/contract"
)

func testExchange(i int) contractx.Exchange {
	return contractx.Exchange{
		ID:        fmt.Sprintf("ex-%d", i),
		Query:     fmt.Sprintf("question %d", i),
		Route:     contractx.RouteSimpleFacts,
		Answer:    fmt.Sprintf("answer %d", i),
		Timestamp: time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Minute),
	}
}

func TestAppendWithinWindowKeepsEverything(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 8, 25, 10, 0, 0, 0, time.UTC)
	s := NewSession("s1", now)

	for i := 0; i < 3; i++ {
		if err := s.Append(testExchange(i), 10, nil, now); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	if len(s.Exchanges) != 3 {
		t.Fatalf("expected 3 exchanges, got %d", len(s.Exchanges))
	}
	if s.Summary != "" {
		t.Fatalf("expected empty summary, got %q", s.Summary)
	}
	if s.Folds != 0 {
		t.Fatalf("expected 0 folds, got %d", s.Folds)
	}
}

func TestAppendEvictsOldestIntoSummaryExactlyOnce(t *testing.T) {
	t.Parallel()

	const window = 10
	now := time.Date(2025, 8, 25, 10, 0, 0, 0, time.UTC)
	s := NewSession("s1", now)

	for i := 0; i < window+1; i++ {
		if err := s.Append(testExchange(i), window, nil, now); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	if len(s.Exchanges) != window {
		t.Fatalf("expected %d exchanges, got %d", window, len(s.Exchanges))
	}
	if s.Folds != 1 {
		t.Fatalf("expected 1 fold, got %d", s.Folds)
	}
	if !strings.Contains(s.Summary, `q="question 0"`) {
		t.Fatalf("summary should mention the evicted exchange, got %q", s.Summary)
	}
	if strings.Contains(s.Summary, `q="question 1"`) {
		t.Fatalf("summary should not mention retained exchanges, got %q", s.Summary)
	}
	if s.Exchanges[0].ID != "ex-1" {
		t.Fatalf("oldest retained exchange = %s, want ex-1", s.Exchanges[0].ID)
	}
}

func TestAppendFoldsEachEvictionOnce(t *testing.T) {
	t.Parallel()

	const window = 10
	now := time.Date(2025, 8, 25, 10, 0, 0, 0, time.UTC)
	s := NewSession("s1", now)

	for i := 0; i < window+2; i++ {
		if err := s.Append(testExchange(i), window, nil, now); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	if s.Folds != 2 {
		t.Fatalf("expected 2 folds, got %d", s.Folds)
	}
	if got := strings.Count(s.Summary, `q="question 0"`); got != 1 {
		t.Fatalf("exchange 0 folded %d times, want 1", got)
	}
	if got := strings.Count(s.Summary, `q="question 1"`); got != 1 {
		t.Fatalf("exchange 1 folded %d times, want 1", got)
	}
}

func TestAppendRejectsNonPositiveWindow(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 8, 25, 10, 0, 0, 0, time.UTC)
	s := NewSession("s1", now)

	err := s.Append(testExchange(0), 0, nil, now)
	if !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestContextOrderIsInsertionOrder(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 8, 25, 10, 0, 0, 0, time.UTC)
	s := NewSession("s1", now)

	for i := 0; i < 4; i++ {
		if err := s.Append(testExchange(i), 10, nil, now); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	convo := s.Context()
	for i, ex := range convo.Window {
		if ex.ID != fmt.Sprintf("ex-%d", i) {
			t.Fatalf("window[%d] = %s, want ex-%d", i, ex.ID, i)
		}
	}

	// The returned window is a copy; mutating it must not touch the session.
	convo.Window[0].Answer = "mutated"
	if s.Exchanges[0].Answer == "mutated" {
		t.Fatal("Context() must copy the window")
	}
}

func TestDigestFoldTrimsWholeDigestsAtLimit(t *testing.T) {
	t.Parallel()

	fold := DigestFold{MaxLen: 120}
	summary := ""
	for i := 0; i < 10; i++ {
		summary = fold.Fold(summary, testExchange(i))
	}

	if len(summary) > 120 {
		t.Fatalf("summary length %d exceeds limit", len(summary))
	}
	if !strings.Contains(summary, `q="question 9"`) {
		t.Fatalf("newest digest must survive trimming, got %q", summary)
	}
	if strings.Contains(summary, `q="question 0"`) {
		t.Fatalf("oldest digest should be trimmed, got %q", summary)
	}
}

func TestDigestFoldIsDeterministic(t *testing.T) {
	t.Parallel()

	fold := DigestFold{}
	a := fold.Fold("prior", testExchange(1))
	b := fold.Fold("prior", testExchange(1))
	if a != b {
		t.Fatalf("fold not deterministic: %q vs %q", a, b)
	}
}

func TestValidateRejectsInvalidRoute(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 8, 25, 10, 0, 0, 0, time.UTC)
	s := NewSession("s1", now)
	s.Exchanges = append(s.Exchanges, contractx.Exchange{ID: "x", Route: "bogus"})

	if err := s.Validate(); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}
