package session

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
)

// stubExtractor implements Extractor with fixed output for testing the
// reconciler's merge behaviour independent of any backend.
type stubExtractor struct {
	items    []ReconciledItem
	err      error
	jointErr error // fail only when existing context is supplied

	calls        int
	lastExisting []ActionItem
}

func (s *stubExtractor) ExtractActions(ctx context.Context, lines []TranscriptLine, existing []ActionItem) ([]ReconciledItem, error) {
	s.calls++
	s.lastExisting = existing
	if s.err != nil {
		return nil, s.err
	}
	if s.jointErr != nil && existing != nil {
		return nil, s.jointErr
	}
	return s.items, nil
}

func quietLog() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func TestReconcileAppendsNewItems(t *testing.T) {
	stub := &stubExtractor{items: []ReconciledItem{
		{ActionItem: ActionItem{Text: "Finish report by Friday", Assignee: "Bob", Priority: PriorityHigh, Confidence: 0.9}, Disposition: DispositionNew},
	}}
	rec := NewReconciler(stub, 0.7, quietLog())

	merged, changed, failures := rec.Reconcile(context.Background(), nil, nil)
	if len(merged) != 1 || len(changed) != 1 {
		t.Fatalf("merged=%d changed=%d, want 1/1", len(merged), len(changed))
	}
	if failures != 0 {
		t.Errorf("clean pass reported %d failures", failures)
	}
	if merged[0].Text != "Finish report by Friday" {
		t.Errorf("unexpected item %+v", merged[0])
	}
}

func TestReconcileFiltersByConfidence(t *testing.T) {
	stub := &stubExtractor{items: []ReconciledItem{
		{ActionItem: ActionItem{Text: "Low confidence task", Priority: PriorityLow, Confidence: 0.5}, Disposition: DispositionNew},
	}}
	rec := NewReconciler(stub, 0.7, quietLog())

	merged, _, _ := rec.Reconcile(context.Background(), nil, nil)
	if len(merged) != 0 {
		t.Errorf("item below threshold was stored: %+v", merged)
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	stub := &stubExtractor{items: []ReconciledItem{
		{ActionItem: ActionItem{Text: "Review the budget", Priority: PriorityMedium, Confidence: 0.8}, Disposition: DispositionNew},
	}}
	rec := NewReconciler(stub, 0.7, quietLog())

	merged, _, _ := rec.Reconcile(context.Background(), nil, nil)
	merged, changed, _ := rec.Reconcile(context.Background(), nil, merged)
	if len(merged) != 1 {
		t.Errorf("repeated identical pass grew the set to %d items", len(merged))
	}
	if len(changed) != 0 {
		t.Errorf("repeated identical pass reported %d changed items", len(changed))
	}
}

func TestReconcileAppliesUpdatedDisposition(t *testing.T) {
	existing := []ActionItem{
		{Text: "Finish report", Assignee: "", Priority: PriorityMedium, Confidence: 0.8},
	}
	stub := &stubExtractor{items: []ReconciledItem{
		{
			ActionItem:  ActionItem{Text: "Finish report by Friday", Assignee: "Bob", Priority: PriorityHigh, Confidence: 0.9},
			Disposition: DispositionUpdated,
			Replaces:    "Finish report",
		},
	}}
	rec := NewReconciler(stub, 0.7, quietLog())

	merged, changed, _ := rec.Reconcile(context.Background(), nil, existing)
	if len(merged) != 1 {
		t.Fatalf("updated disposition duplicated the item: %d entries", len(merged))
	}
	if merged[0].Assignee != "Bob" || merged[0].Priority != PriorityHigh {
		t.Errorf("existing entry not enriched: %+v", merged[0])
	}
	if len(changed) != 1 {
		t.Errorf("update not reported as changed")
	}
}

func TestReconcileUnmatchedUpdateBecomesNew(t *testing.T) {
	stub := &stubExtractor{items: []ReconciledItem{
		{
			ActionItem:  ActionItem{Text: "Ship the release", Priority: PriorityHigh, Confidence: 0.9},
			Disposition: DispositionUpdated,
			Replaces:    "Some item that never existed",
		},
	}}
	rec := NewReconciler(stub, 0.7, quietLog())

	merged, _, _ := rec.Reconcile(context.Background(), nil, nil)
	if len(merged) != 1 {
		t.Errorf("unmatched update was dropped instead of appended")
	}
}

func TestReconcileFallsBackWithoutContext(t *testing.T) {
	stub := &stubExtractor{
		jointErr: errors.New("backend exploded"),
		items: []ReconciledItem{
			{ActionItem: ActionItem{Text: "Fallback task", Priority: PriorityMedium, Confidence: 0.8}, Disposition: DispositionNew},
		},
	}
	rec := NewReconciler(stub, 0.7, quietLog())

	existing := []ActionItem{{Text: "Old task", Priority: PriorityLow, Confidence: 0.9}}
	merged, _, failures := rec.Reconcile(context.Background(), nil, existing)

	if stub.calls != 2 {
		t.Fatalf("extractor called %d times, want joint + fallback", stub.calls)
	}
	if stub.lastExisting != nil {
		t.Error("fallback pass was given existing context")
	}
	if len(merged) != 2 {
		t.Errorf("got %d items, want existing + fallback", len(merged))
	}
	if failures != 1 {
		t.Errorf("failures = %d, want 1 for failed joint pass", failures)
	}
}

func TestReconcileDoubleFailureKeepsExisting(t *testing.T) {
	stub := &stubExtractor{err: errors.New("backend down")}
	rec := NewReconciler(stub, 0.7, quietLog())

	existing := []ActionItem{{Text: "Keep me", Priority: PriorityMedium, Confidence: 0.9}}
	merged, changed, failures := rec.Reconcile(context.Background(), nil, existing)

	if len(merged) != 1 || merged[0].Text != "Keep me" {
		t.Errorf("existing set was not preserved: %+v", merged)
	}
	if changed != nil {
		t.Errorf("double failure reported changed items: %+v", changed)
	}
	if failures != 2 {
		t.Errorf("failures = %d, want 2 for both passes", failures)
	}
}
