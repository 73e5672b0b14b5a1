package classroom

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/MarcoPoloResearchLab/classdeck/backend/internal/store"
)

// Field names of a class record. Structured fields are JSON-serialized text
// blobs because the record store has no nested field types. The behavior-card
// snapshot lives under "tasks" for compatibility with existing records.
const (
	fieldName               = "name"
	fieldOwner              = "owner"
	fieldStudents           = "students"
	fieldTasks              = "tasks"
	fieldAssignments        = "assignments"
	fieldSubmissions        = "submissions"
	fieldStudentAssignments = "studentAssignments"
	fieldStudentSubmissions = "studentSubmissions"
	fieldAccessCodes        = "accessCodes"
)

// Field names of a behavior record.
const (
	fieldClassID  = "classId"
	fieldLabel    = "label"
	fieldPoints   = "points"
	fieldIcon     = "icon"
	fieldCategory = "category"
)

// classFields builds the remote field set for one class. The students and
// assignments sequences pass through the size guard; the behavior-card
// snapshot is written verbatim under "tasks"; access codes are assumed small
// and written unguarded.
func classFields(class *Class, cardsSnapshot []BehaviorCard) (store.Fields, []string, error) {
	truncatedFields := make([]string, 0, 2)

	students, studentsTruncated, err := boundedJSON(class.Students, fieldByteBudget, maxStudentElements)
	if err != nil {
		return nil, nil, fmt.Errorf("classroom: encode students: %w", err)
	}
	if studentsTruncated {
		truncatedFields = append(truncatedFields, fieldStudents)
	}

	assignments, assignmentsTruncated, err := boundedJSON(class.Assignments, fieldByteBudget, maxAssignmentElements)
	if err != nil {
		return nil, nil, fmt.Errorf("classroom: encode assignments: %w", err)
	}
	if assignmentsTruncated {
		truncatedFields = append(truncatedFields, fieldAssignments)
	}

	if cardsSnapshot == nil {
		cardsSnapshot = []BehaviorCard{}
	}
	normalizedCards := make([]BehaviorCard, 0, len(cardsSnapshot))
	for _, card := range cardsSnapshot {
		normalizedCards = append(normalizedCards, card.Normalized())
	}

	fields := store.Fields{
		fieldName:               class.Name,
		fieldOwner:              class.Owner,
		fieldStudents:           students,
		fieldTasks:              mustEncode(normalizedCards),
		fieldAssignments:        assignments,
		fieldSubmissions:        mustEncode(rawSlice(class.Submissions)),
		fieldStudentAssignments: mustEncode(rawSlice(class.StudentAssignments)),
		fieldStudentSubmissions: mustEncode(rawSlice(class.StudentSubmissions)),
		fieldAccessCodes:        mustEncode(accessCodeMap(class.AccessCodes)),
	}
	return fields, truncatedFields, nil
}

// behaviorFields builds the remote field set for one behavior card. The
// category is recomputed from the sign of points at write time.
func behaviorFields(classID string, card BehaviorCard) store.Fields {
	return store.Fields{
		fieldClassID:  classID,
		fieldLabel:    card.Label,
		fieldPoints:   card.Points,
		fieldIcon:     card.Icon,
		fieldCategory: card.DerivedCategory(),
	}
}

// fieldWarning pairs a field name with the decode error that emptied it.
type fieldWarning struct {
	field string
	err   error
}

// classFromRecord reads a class entity back out of a remote record. Malformed
// structured fields degrade to empty defaults; the returned warnings let the
// caller log them without aborting the read.
func classFromRecord(record store.Record) (*Class, []fieldWarning) {
	warnings := make([]fieldWarning, 0, 2)

	class := &Class{
		ID:    NormalizeID(record.ID),
		Name:  stringField(record.Fields, fieldName),
		Owner: stringField(record.Fields, fieldOwner),
	}

	if err := decodeField(record.Fields, fieldStudents, &class.Students); err != nil {
		class.Students = []Student{}
		warnings = append(warnings, fieldWarning{field: fieldStudents, err: err})
	}
	if err := decodeField(record.Fields, fieldAssignments, &class.Assignments); err != nil {
		class.Assignments = nil
		warnings = append(warnings, fieldWarning{field: fieldAssignments, err: err})
	}
	if err := decodeField(record.Fields, fieldSubmissions, &class.Submissions); err != nil {
		class.Submissions = nil
		warnings = append(warnings, fieldWarning{field: fieldSubmissions, err: err})
	}
	if err := decodeField(record.Fields, fieldStudentAssignments, &class.StudentAssignments); err != nil {
		class.StudentAssignments = nil
		warnings = append(warnings, fieldWarning{field: fieldStudentAssignments, err: err})
	}
	if err := decodeField(record.Fields, fieldStudentSubmissions, &class.StudentSubmissions); err != nil {
		class.StudentSubmissions = nil
		warnings = append(warnings, fieldWarning{field: fieldStudentSubmissions, err: err})
	}
	if err := decodeField(record.Fields, fieldAccessCodes, &class.AccessCodes); err != nil {
		class.AccessCodes = map[string]AccessCodePair{}
		warnings = append(warnings, fieldWarning{field: fieldAccessCodes, err: err})
	}
	if class.Students == nil {
		class.Students = []Student{}
	}
	if class.AccessCodes == nil {
		class.AccessCodes = map[string]AccessCodePair{}
	}

	return class, warnings
}

// cardsFromRecord reads the behavior-card snapshot stored on a class record.
func cardsFromRecord(record store.Record) ([]BehaviorCard, []fieldWarning) {
	var cards []BehaviorCard
	if err := decodeField(record.Fields, fieldTasks, &cards); err != nil {
		return []BehaviorCard{}, []fieldWarning{{field: fieldTasks, err: err}}
	}
	if cards == nil {
		cards = []BehaviorCard{}
	}
	return cards, nil
}

// behaviorFromRecord reads one behavior card out of a behavior record. The
// stored category is ignored in favor of the derived one.
func behaviorFromRecord(record store.Record) BehaviorCard {
	card := BehaviorCard{
		ID:     NormalizeID(record.ID),
		Label:  stringField(record.Fields, fieldLabel),
		Points: intField(record.Fields, fieldPoints),
		Icon:   stringField(record.Fields, fieldIcon),
	}
	return card.Normalized()
}

// decodeField unmarshals a JSON text field into out. A missing or empty field
// is not an error; a malformed one is, and the caller substitutes a default.
func decodeField(fields store.Fields, name string, out any) error {
	raw, ok := fields[name]
	if !ok || raw == nil {
		return nil
	}
	text, ok := raw.(string)
	if !ok {
		// Some backends hand structured fields back pre-parsed.
		reencoded, err := json.Marshal(raw)
		if err != nil {
			return err
		}
		text = string(reencoded)
	}
	if text == "" {
		return nil
	}
	return json.Unmarshal([]byte(text), out)
}

func stringField(fields store.Fields, name string) string {
	if value, ok := fields[name].(string); ok {
		return value
	}
	return ""
}

func intField(fields store.Fields, name string) int {
	switch value := fields[name].(type) {
	case int:
		return value
	case int64:
		return int(value)
	case float64:
		return int(value)
	case json.Number:
		parsed, err := value.Int64()
		if err != nil {
			return 0
		}
		return int(parsed)
	case string:
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}

func rawSlice(items []json.RawMessage) []json.RawMessage {
	if items == nil {
		return []json.RawMessage{}
	}
	return items
}

func accessCodeMap(codes map[string]AccessCodePair) map[string]AccessCodePair {
	if codes == nil {
		return map[string]AccessCodePair{}
	}
	return codes
}

// mustEncode is reserved for values built from already-decoded JSON; encoding
// them again cannot fail.
func mustEncode(value any) string {
	encoded, err := json.Marshal(value)
	if err != nil {
		panic(err)
	}
	return string(encoded)
}
