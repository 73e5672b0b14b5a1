package classroom

import "encoding/json"

// Per-field byte budget for serialized sequences, held well under the record
// store's field-size ceiling to leave margin for the rest of the record.
const fieldByteBudget = 500_000

// Element caps applied when a serialized sequence exceeds the byte budget.
// Assignments embed images and are far larger per element than students, so
// their cap is much lower.
const (
	maxStudentElements    = 150
	maxAssignmentElements = 20
)

// boundedJSON serializes items and enforces the byte budget. When the
// serialized form exceeds the budget the sequence is truncated to maxElements
// and re-serialized; trailing elements are silently dropped so that a save is
// still issued rather than failed. The cap is a heuristic: a single
// pathologically large element can still exceed the budget, which is an
// accepted risk.
func boundedJSON[T any](items []T, byteBudget, maxElements int) (encoded string, truncated bool, err error) {
	if items == nil {
		items = []T{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return "", false, err
	}
	if len(raw) <= byteBudget {
		return string(raw), false, nil
	}

	if len(items) > maxElements {
		items = items[:maxElements]
	}
	raw, err = json.Marshal(items)
	if err != nil {
		return "", false, err
	}
	return string(raw), true, nil
}
