package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/quothlabs/quoth/internal/domain"
	"github.com/quothlabs/quoth/internal/port/database"
	"github.com/quothlabs/quoth/internal/port/embedder"
)

// mockAnswerer returns a canned answer, failing the first failN calls.
type mockAnswerer struct {
	answer string
	err    error
	failN  int

	calls    int
	passages []string
}

func (m *mockAnswerer) Answer(_ context.Context, _ string, passages []string) (string, error) {
	m.calls++
	m.passages = passages
	if m.err != nil && (m.failN == 0 || m.calls <= m.failN) {
		return "", m.err
	}
	return m.answer, nil
}

func answerFixture(t *testing.T, answerer embedder.Answerer, usage *UsageService, candidates int) *AnswerService {
	t.Helper()
	store := &mockStore{
		matchDocumentsFn: func(context.Context, database.VectorQuery) ([]database.MatchResult, error) {
			return candidatesN(candidates), nil
		},
	}
	retrieval := NewRetrievalService(store, &mockEmbedder{}, nil, usage, testLogger())
	return NewAnswerService(retrieval, answerer, usage, testLogger())
}

func TestAskGeneratesAnswerAndConsumesQuota(t *testing.T) {
	usage := freeUsage(&mockStore{})
	ans := &mockAnswerer{answer: "Auth uses dual-token verification."}
	svc := answerFixture(t, ans, usage, 3)

	resp, err := svc.Ask(context.Background(), "p1", "org-1", "how does auth work", ScopeProject)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if resp.Answer != ans.answer {
		t.Fatalf("answer = %q, want the generated answer", resp.Answer)
	}
	if len(resp.Sources) != 3 {
		t.Fatalf("sources = %d, want 3", len(resp.Sources))
	}
	if resp.TierMessage != "" {
		t.Fatalf("tier message = %q, want none on success", resp.TierMessage)
	}

	after := usage.Check(context.Background(), "p1", LimitRAGAnswer)
	if after.Remaining != 2 {
		t.Fatalf("remaining = %d, want 2 after one answer", after.Remaining)
	}
}

func TestAskCapsPassagesSentToWorker(t *testing.T) {
	ans := &mockAnswerer{answer: "grounded"}
	svc := answerFixture(t, ans, proUsage(&mockStore{}), 20)

	resp, err := svc.Ask(context.Background(), "p1", "org-1", "wide retrieval", ScopeProject)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if len(resp.Sources) != 10 {
		t.Fatalf("sources = %d, want vector-only top 10", len(resp.Sources))
	}
	if len(ans.passages) != answerContextMax {
		t.Fatalf("passages = %d, want %d", len(ans.passages), answerContextMax)
	}
}

func TestAskQuotaExhaustedReturnsSourcesOnly(t *testing.T) {
	usage := freeUsage(&mockStore{})
	for i := 0; i < 3; i++ {
		usage.Increment("p1", LimitRAGAnswer)
	}
	ans := &mockAnswerer{answer: "should not run"}
	svc := answerFixture(t, ans, usage, 2)

	resp, err := svc.Ask(context.Background(), "p1", "org-1", "over quota", ScopeProject)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if ans.calls != 0 {
		t.Fatal("exhausted quota must not call the worker")
	}
	if resp.Answer != "" || len(resp.Sources) != 2 {
		t.Fatalf("expected sources-only response, got %+v", resp)
	}
	if !strings.Contains(resp.TierMessage, "answer limit") {
		t.Fatalf("tier message = %q, want answer-limit notice", resp.TierMessage)
	}
}

func TestAskNilAnswererReturnsSourcesOnly(t *testing.T) {
	svc := answerFixture(t, nil, proUsage(&mockStore{}), 2)

	resp, err := svc.Ask(context.Background(), "p1", "org-1", "no worker configured", ScopeProject)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if resp.Answer != "" || len(resp.Sources) != 2 {
		t.Fatalf("expected sources-only response, got %+v", resp)
	}
	if !strings.Contains(resp.TierMessage, "not configured") {
		t.Fatalf("tier message = %q, want not-configured notice", resp.TierMessage)
	}
}

func TestAskDegradesWhenWorkerFails(t *testing.T) {
	usage := proUsage(&mockStore{})
	ans := &mockAnswerer{err: errors.New("worker rejected the request")}
	svc := answerFixture(t, ans, usage, 2)

	resp, err := svc.Ask(context.Background(), "p1", "org-1", "degrading query", ScopeProject)
	if err != nil {
		t.Fatalf("Ask should degrade, got error: %v", err)
	}
	if ans.calls != 1 {
		t.Fatalf("worker calls = %d, want 1 (no retry on non-retryable)", ans.calls)
	}
	if resp.Answer != "" || len(resp.Sources) != 2 {
		t.Fatalf("expected sources-only response, got %+v", resp)
	}
	if !strings.Contains(resp.TierMessage, "temporarily unavailable") {
		t.Fatalf("tier message = %q, want unavailable notice", resp.TierMessage)
	}
}

func TestAskRetriesRetryableWorkerFailure(t *testing.T) {
	ans := &mockAnswerer{
		answer: "recovered",
		err:    &embedder.ProviderError{Op: "answer", StatusCode: 503, Retryable: true, Err: errors.New("unavailable")},
		failN:  1,
	}
	svc := answerFixture(t, ans, proUsage(&mockStore{}), 1)

	resp, err := svc.Ask(context.Background(), "p1", "org-1", "transient failure", ScopeProject)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if ans.calls != 2 {
		t.Fatalf("worker calls = %d, want 2 (one retry)", ans.calls)
	}
	if resp.Answer != "recovered" {
		t.Fatalf("answer = %q, want the retried answer", resp.Answer)
	}
}

func TestAskNoSourcesSkipsWorker(t *testing.T) {
	ans := &mockAnswerer{answer: "unreachable"}
	svc := answerFixture(t, ans, proUsage(&mockStore{}), 0)

	resp, err := svc.Ask(context.Background(), "p1", "org-1", "nothing indexed", ScopeProject)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if ans.calls != 0 {
		t.Fatal("no sources must not call the worker")
	}
	if resp.Answer != "" || len(resp.Sources) != 0 {
		t.Fatalf("expected empty response, got %+v", resp)
	}
}

func TestAskValidation(t *testing.T) {
	svc := answerFixture(t, &mockAnswerer{}, freeUsage(&mockStore{}), 1)

	_, err := svc.Ask(context.Background(), "p1", "org-1", "  ", ScopeProject)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("blank query: err = %v, want validation", err)
	}
	_, err = svc.Ask(context.Background(), "p1", "org-1", strings.Repeat("q", 1001), ScopeProject)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("oversized query: err = %v, want validation", err)
	}
}
