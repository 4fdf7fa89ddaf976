package blob

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/klimkalender/klimkalender-cms/pkg/event"
)

const (
	ResultBucket = "boulderbot"
	ResultKey    = "botresult.json"
)

// SaveResult stores the candidate batch of a run as JSON.
func SaveResult(ctx context.Context, b Bucket, events []event.CandidateEvent) error {
	if events == nil {
		events = []event.CandidateEvent{}
	}
	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return err
	}
	return b.Put(ctx, ResultBucket, ResultKey, data, "application/json")
}

// LoadResult reads the batch written by the last SaveResult.
func LoadResult(ctx context.Context, b Bucket) ([]event.CandidateEvent, error) {
	data, err := b.Get(ctx, ResultBucket, ResultKey)
	if err != nil {
		return nil, err
	}
	var events []event.CandidateEvent
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", ResultBucket, ResultKey, err)
	}
	return events, nil
}
