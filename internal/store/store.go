package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Collection names used by the classdeck backend.
const (
	CollectionClasses   = "classes"
	CollectionBehaviors = "behaviors"
)

// PageSize bounds every List call. Owners with more records than this in a
// single collection are out of scope; the stores never paginate past it.
const PageSize = 500

var (
	// ErrRecordNotFound indicates that no record exists for the given identifier.
	ErrRecordNotFound = errors.New("store: record not found")
	// ErrInvalidCollection indicates an empty or unknown collection name.
	ErrInvalidCollection = errors.New("store: invalid collection")
	// ErrInvalidRecordID indicates an empty record identifier.
	ErrInvalidRecordID = errors.New("store: invalid record id")
)

// Fields holds the flat field set of one record. Values are scalar strings,
// numbers, or JSON-serialized text blobs; the store has no nested field types.
type Fields map[string]any

// Record is one stored record with its remote identifier.
type Record struct {
	ID     string
	Fields Fields
}

// Filter restricts a List call to records whose fields equal the given values.
type Filter struct {
	Equals map[string]string
}

// NewEqualsFilter builds a filter on a single field value.
func NewEqualsFilter(field, value string) Filter {
	return Filter{Equals: map[string]string{field: value}}
}

// Matches reports whether the record satisfies every equality clause.
func (f Filter) Matches(record Record) bool {
	for field, want := range f.Equals {
		if fieldAsString(record.Fields[field]) != want {
			return false
		}
	}
	return true
}

// Expression renders the filter in the records API query syntax,
// e.g. (owner='t1' && classId='c2'). Clauses are ordered for stable output.
func (f Filter) Expression() string {
	if len(f.Equals) == 0 {
		return ""
	}
	fields := make([]string, 0, len(f.Equals))
	for field := range f.Equals {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	clauses := make([]string, 0, len(fields))
	for _, field := range fields {
		escaped := strings.ReplaceAll(f.Equals[field], "'", "\\'")
		clauses = append(clauses, fmt.Sprintf("%s='%s'", field, escaped))
	}
	return "(" + strings.Join(clauses, " && ") + ")"
}

// RecordStore is the contract the reconciliation core requires from a record
// backend. Implementations commit each call independently; there are no
// transactions spanning calls.
type RecordStore interface {
	List(ctx context.Context, collection string, filter Filter) ([]Record, error)
	Create(ctx context.Context, collection string, fields Fields) (Record, error)
	Update(ctx context.Context, collection string, recordID string, fields Fields) (Record, error)
	Delete(ctx context.Context, collection string, recordID string) error
}

func fieldAsString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return fmt.Sprintf("%d", v)
	case int64:
		return fmt.Sprintf("%d", v)
	case bool:
		if v {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprintf("%v", v)
	}
}

func validateCollection(collection string) error {
	if strings.TrimSpace(collection) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidCollection)
	}
	return nil
}

func validateRecordID(recordID string) error {
	if strings.TrimSpace(recordID) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidRecordID)
	}
	return nil
}
