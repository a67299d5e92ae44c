// Package report persists per-node training and evaluation metrics.
//
// A report file is a flat JSON object: every training metric maps to the
// ordered list of its per-round values, and test_dice_scores holds the most
// recent evaluation result.
package report

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
)

const TestDiceScoresKey = "test_dice_scores"

// Record is the set of metric values a node reported for one round.
type Record map[string]any

func (r Record) Keys() []string {
	return slices.Sorted(maps.Keys(r))
}

type Report struct {
	Metrics        map[string][]any
	TestDiceScores any
}

// Rounds is the number of rounds accumulated so far.
func (r Report) Rounds() int {
	for _, v := range r.Metrics {
		return len(v)
	}

	return 0
}

func (r Report) MarshalJSON() ([]byte, error) {
	doc := make(map[string]any, len(r.Metrics)+1)
	for k, v := range r.Metrics {
		doc[k] = v
	}
	if r.TestDiceScores != nil {
		doc[TestDiceScoresKey] = r.TestDiceScores
	}

	return json.Marshal(doc)
}

func (r *Report) UnmarshalJSON(data []byte) error {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	r.Metrics = make(map[string][]any, len(doc))
	r.TestDiceScores = nil
	for k, raw := range doc {
		if k == TestDiceScoresKey {
			if err := json.Unmarshal(raw, &r.TestDiceScores); err != nil {
				return fmt.Errorf("invalid %s: %w", k, err)
			}

			continue
		}

		var values []any
		if err := json.Unmarshal(raw, &values); err != nil {
			return fmt.Errorf("metric %s is not a list of rounds: %w", k, err)
		}
		r.Metrics[k] = values
	}

	return nil
}
