// Package replay assembles a complete session replay from its paginated
// backend collections. Given a replay id it fetches the root record, the
// recording segments, and the errors from two independent datasets, merges
// them into one read model, derives the associated feedback events, and
// exposes a unified pending/error/success status with a coarse
// invalidate-and-retry operation.
package replay

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// FeedbackTitleLabel marks an error as a user feedback event. Classification
// is a substring match on the error title, not a separate fetch parameter.
const FeedbackTitleLabel = "User Feedback"

// Record is the root replay record that anchors all dependent collections.
// It is immutable once fetched; polling and retry replace it wholesale.
type Record struct {
	ID            string     `json:"id"`
	ProjectSlug   string     `json:"project_slug"`
	StartedAt     *time.Time `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at"`
	CountSegments int        `json:"count_segments"`
	CountErrors   int        `json:"count_errors"`
}

// ReplayError is one error event associated with a replay, from either
// dataset.
type ReplayError struct {
	ID          string `json:"id"`
	IssueID     string `json:"issue.id"`
	Title       string `json:"title"`
	Timestamp   string `json:"timestamp"`
	ProjectSlug string `json:"project.name"`
}

// IsFeedback reports whether the error's title classifies it as a user
// feedback event.
func (e ReplayError) IsFeedback() bool {
	return strings.Contains(e.Title, FeedbackTitleLabel)
}

// FeedbackEvent is a derived record looked up by the ids of feedback-labeled
// errors.
type FeedbackEvent struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

// ParseRecord normalizes a raw backend payload into a Record. The backend
// wraps the record under a top-level "data" field.
func ParseRecord(payload []byte) (*Record, error) {
	var envelope struct {
		Data *Record `json:"data"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("decode replay record: %w", err)
	}
	if envelope.Data == nil || envelope.Data.ID == "" {
		return nil, fmt.Errorf("replay record payload has no data")
	}
	return envelope.Data, nil
}

// ParseErrors decodes a slice of raw error items.
func ParseErrors(items []json.RawMessage) ([]ReplayError, error) {
	errs := make([]ReplayError, 0, len(items))
	for _, item := range items {
		var e ReplayError
		if err := json.Unmarshal(item, &e); err != nil {
			return nil, fmt.Errorf("decode replay error: %w", err)
		}
		errs = append(errs, e)
	}
	return errs, nil
}

// ParseFeedback decodes a slice of raw feedback events.
func ParseFeedback(items []json.RawMessage) ([]FeedbackEvent, error) {
	events := make([]FeedbackEvent, 0, len(items))
	for _, item := range items {
		var f FeedbackEvent
		if err := json.Unmarshal(item, &f); err != nil {
			return nil, fmt.Errorf("decode feedback event: %w", err)
		}
		events = append(events, f)
	}
	return events, nil
}

// MergeErrors concatenates the error collections from both datasets in
// source-priority order: discover initial pages, then the discover overflow
// continuation, then the issue-platform dataset. No deduplication by
// identifier is performed; an error present in both datasets is retained
// twice.
func MergeErrors(discoverInitial, discoverOverflow, platform []ReplayError) []ReplayError {
	merged := make([]ReplayError, 0, len(discoverInitial)+len(discoverOverflow)+len(platform))
	merged = append(merged, discoverInitial...)
	merged = append(merged, discoverOverflow...)
	merged = append(merged, platform...)
	return merged
}

// FeedbackIDs selects the ids of the feedback-labeled errors from a merged
// collection.
func FeedbackIDs(errs []ReplayError) []string {
	var ids []string
	for _, e := range errs {
		if e.IsFeedback() {
			ids = append(ids, e.ID)
		}
	}
	return ids
}
