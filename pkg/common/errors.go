package common

import (
	"errors"
	"fmt"
)

var (
	// ErrEmbeddingMissing is returned by the candidate generator when the new
	// entity carries no description embedding.
	ErrEmbeddingMissing = errors.New("entity embedding missing")

	// ErrReasonerUnavailable is returned when the reasoner cannot be reached
	// or returns an unparseable decision after retries. Resolution falls back
	// to similarity-only decisions.
	ErrReasonerUnavailable = errors.New("reasoner unavailable")

	// ErrStoreWriteConflict is returned when a transactional write loses a
	// conflict after retries are exhausted.
	ErrStoreWriteConflict = errors.New("store write conflict")

	// ErrSummarizationFailed marks a single community whose summary call
	// failed after retries. It never aborts the surrounding traversal.
	ErrSummarizationFailed = errors.New("summarization failed")
)

// HierarchyError reports a violation of the community-forest invariant.
// It is fatal for the detection run that produced it; the previous hierarchy
// is left untouched.
type HierarchyError struct {
	CommunityID string
	Reason      string
}

func (e *HierarchyError) Error() string {
	return fmt.Sprintf("hierarchy inconsistency at community %s: %s", e.CommunityID, e.Reason)
}
