package classroom

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrInvalidOwner indicates an empty owner identifier.
	ErrInvalidOwner = errors.New("classroom: invalid owner")
	// ErrMissingClassName indicates a class handed to the reconciler without a name.
	ErrMissingClassName = errors.New("classroom: class name is required")
	// ErrInvalidClassID indicates an empty class identifier where one is required.
	ErrInvalidClassID = errors.New("classroom: invalid class id")
)

// FlexID is an entity identifier that tolerates heterogeneous JSON encodings.
// Locally created entities carry numeric timestamp ids; remotely bound
// entities carry opaque string ids. Both normalize to their string form so
// identity comparison is uniform.
type FlexID string

// UnmarshalJSON accepts either a JSON string or a bare numeric literal.
func (id *FlexID) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		*id = ""
		return nil
	}
	if trimmed[0] == '"' {
		var value string
		if err := json.Unmarshal(data, &value); err != nil {
			return err
		}
		*id = FlexID(strings.TrimSpace(value))
		return nil
	}
	var value json.Number
	if err := json.Unmarshal(data, &value); err != nil {
		return fmt.Errorf("classroom: id must be a string or number: %w", err)
	}
	*id = NormalizeID(value.String())
	return nil
}

// MarshalJSON always renders the normalized string form.
func (id FlexID) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(id))
}

// String returns the normalized identifier.
func (id FlexID) String() string {
	return string(id)
}

// IsZero reports whether no identifier is set.
func (id FlexID) IsZero() bool {
	return strings.TrimSpace(string(id)) == ""
}

// NormalizeID maps any raw identifier representation onto its canonical
// string form. Numeric representations lose insignificant fraction digits so
// 1700000000000 and 1.7e12 compare equal.
func NormalizeID(raw string) FlexID {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	if parsed, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return FlexID(strconv.FormatFloat(parsed, 'f', -1, 64))
	}
	return FlexID(trimmed)
}

// PointEntry is one line of a student's point-change log.
type PointEntry struct {
	Label     string `json:"label"`
	Points    int    `json:"points"`
	AtSeconds int64  `json:"at_s"`
}

// Student is one class member with their running score and point history.
type Student struct {
	ID      FlexID       `json:"id"`
	Name    string       `json:"name"`
	Score   int          `json:"score"`
	History []PointEntry `json:"history,omitempty"`
	Avatar  string       `json:"avatar,omitempty"`
}

// AccessCodePair holds the two short login codes issued per student.
type AccessCodePair struct {
	Parent  string `json:"parent"`
	Student string `json:"student"`
}

// Class is one classroom as the UI hands it to the reconciler. The
// submissions sequences are opaque passthrough payloads.
type Class struct {
	ID                 FlexID                    `json:"id,omitempty"`
	Name               string                    `json:"name"`
	Owner              string                    `json:"owner,omitempty"`
	Students           []Student                 `json:"students"`
	Assignments        []json.RawMessage         `json:"assignments,omitempty"`
	Submissions        []json.RawMessage         `json:"submissions,omitempty"`
	StudentAssignments []json.RawMessage         `json:"studentAssignments,omitempty"`
	StudentSubmissions []json.RawMessage         `json:"studentSubmissions,omitempty"`
	AccessCodes        map[string]AccessCodePair `json:"accessCodes,omitempty"`
}

// Validate checks the invariants required before a save.
func (c *Class) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrMissingClassName
	}
	return nil
}

// Behavior card categories. The category is always derived from the sign of
// the card's points; a stored category value is never trusted because editing
// a card can flip the sign.
const (
	CategoryWow  = "wow"
	CategoryNono = "nono"
)

// BehaviorCard is one reward or penalty definition scoped to a class. Label
// is the remote-matching key and is expected to be unique within the class.
type BehaviorCard struct {
	ID       FlexID `json:"id,omitempty"`
	Label    string `json:"label"`
	Points   int    `json:"points"`
	Icon     string `json:"icon,omitempty"`
	Category string `json:"category,omitempty"`
}

// DerivedCategory computes the category from the sign of the card's points.
func (c BehaviorCard) DerivedCategory() string {
	if c.Points > 0 {
		return CategoryWow
	}
	return CategoryNono
}

// Normalized returns a copy with the category recomputed from points.
func (c BehaviorCard) Normalized() BehaviorCard {
	c.Category = c.DerivedCategory()
	return c
}
