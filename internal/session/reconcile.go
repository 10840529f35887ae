package session

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"
)

// Disposition labels how an extracted item relates to the existing set.
// The judgment is the extractor's; the reconciler only applies it.
type Disposition string

const (
	DispositionNew     Disposition = "new"
	DispositionUpdated Disposition = "updated"
)

// ReconciledItem is an action item as returned by the extraction pass,
// carrying the extractor's disposition. Updated items name the existing
// entry they replace by its text.
type ReconciledItem struct {
	ActionItem
	Disposition Disposition `json:"disposition"`
	Replaces    string      `json:"replaces,omitempty"`
}

// Extractor is the capability the reconciler needs from the derivation
// oracle: jointly analyze new lines against the existing item set. A nil
// existing slice requests a context-free extraction.
type Extractor interface {
	ExtractActions(ctx context.Context, lines []TranscriptLine, existing []ActionItem) ([]ReconciledItem, error)
}

// DefaultConfidenceThreshold filters out low-confidence items before they
// are ever stored.
const DefaultConfidenceThreshold = 0.7

// Reconciler merges newly extracted action items into a session's existing
// set without duplicating entries. It is the single place the confidence
// threshold is applied.
type Reconciler struct {
	extractor Extractor
	threshold float64
	log       *logrus.Logger
}

func NewReconciler(extractor Extractor, threshold float64, log *logrus.Logger) *Reconciler {
	if threshold <= 0 {
		threshold = DefaultConfidenceThreshold
	}
	if log == nil {
		log = logrus.New()
	}
	return &Reconciler{extractor: extractor, threshold: threshold, log: log}
}

// Reconcile runs the extraction pass over newLines in the context of the
// existing set and applies the returned dispositions. It returns the full
// merged set, the items that were added or changed this pass, and the number
// of extraction calls that failed so callers can keep honest oracle counters.
//
// If the joint pass fails, it retries context-free over newLines only, so a
// transient oracle failure degrades to "possibly duplicate items" rather
// than "no items at all". If that also fails the existing set is returned
// unchanged.
func (r *Reconciler) Reconcile(ctx context.Context, newLines []TranscriptLine, existing []ActionItem) (merged, changed []ActionItem, failures int) {
	returned, err := r.extractor.ExtractActions(ctx, newLines, existing)
	if err != nil {
		failures++
		r.log.WithError(err).Warn("joint action-item pass failed, retrying context-free")
		returned, err = r.extractor.ExtractActions(ctx, newLines, nil)
		if err != nil {
			failures++
			r.log.WithError(err).Warn("context-free action-item pass failed, keeping existing items")
			return existing, nil, failures
		}
	}

	merged = append([]ActionItem(nil), existing...)
	for _, item := range returned {
		if item.Confidence < r.threshold {
			continue
		}
		if item.Priority == "" {
			item.Priority = PriorityMedium
		}

		if item.Disposition == DispositionUpdated && item.Replaces != "" {
			if i := indexByText(merged, item.Replaces); i >= 0 {
				if merged[i] != item.ActionItem {
					merged[i] = item.ActionItem
					changed = append(changed, item.ActionItem)
				}
				continue
			}
			// The named entry is gone; treat as new rather than drop it.
		}

		// Exact-text re-extractions converge in place. This is not a
		// similarity heuristic, just a guard so the reconciler itself never
		// introduces duplicates when fed identical input twice.
		if i := indexByText(merged, item.Text); i >= 0 {
			if merged[i] != item.ActionItem {
				merged[i] = item.ActionItem
				changed = append(changed, item.ActionItem)
			}
			continue
		}

		merged = append(merged, item.ActionItem)
		changed = append(changed, item.ActionItem)
	}
	return merged, changed, failures
}

func indexByText(items []ActionItem, text string) int {
	for i, it := range items {
		if strings.EqualFold(it.Text, text) {
			return i
		}
	}
	return -1
}
