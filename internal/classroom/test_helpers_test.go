package classroom

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/MarcoPoloResearchLab/classdeck/backend/internal/store"
)

// fakeStore is an in-memory RecordStore with operation counters and
// injectable per-record failures.
type fakeStore struct {
	records map[string][]store.Record
	nextID  int

	listErr      error
	failUpdateID map[string]error
	failCreateOn map[string]error

	listCalls   int
	createCalls int
	updateCalls int
	deleteCalls int

	createdIDs []string
	updatedIDs []string
	deletedIDs []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		records:      map[string][]store.Record{},
		failUpdateID: map[string]error{},
		failCreateOn: map[string]error{},
	}
}

func (f *fakeStore) seed(collection string, record store.Record) {
	f.records[collection] = append(f.records[collection], record)
}

func (f *fakeStore) List(_ context.Context, collection string, filter store.Filter) ([]store.Record, error) {
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	matched := make([]store.Record, 0)
	for _, record := range f.records[collection] {
		if filter.Matches(record) {
			matched = append(matched, record)
		}
	}
	return matched, nil
}

func (f *fakeStore) Create(_ context.Context, collection string, fields store.Fields) (store.Record, error) {
	f.createCalls++
	if name, ok := fields["name"].(string); ok {
		if err := f.failCreateOn[name]; err != nil {
			return store.Record{}, err
		}
	}
	if label, ok := fields["label"].(string); ok {
		if err := f.failCreateOn[label]; err != nil {
			return store.Record{}, err
		}
	}
	f.nextID++
	record := store.Record{ID: fmt.Sprintf("rec-%d", f.nextID), Fields: fields}
	f.records[collection] = append(f.records[collection], record)
	f.createdIDs = append(f.createdIDs, record.ID)
	return record, nil
}

func (f *fakeStore) Update(_ context.Context, collection string, recordID string, fields store.Fields) (store.Record, error) {
	f.updateCalls++
	if err := f.failUpdateID[recordID]; err != nil {
		return store.Record{}, err
	}
	for i, record := range f.records[collection] {
		if record.ID == recordID {
			f.records[collection][i] = store.Record{ID: recordID, Fields: fields}
			f.updatedIDs = append(f.updatedIDs, recordID)
			return f.records[collection][i], nil
		}
	}
	return store.Record{}, store.ErrRecordNotFound
}

func (f *fakeStore) Delete(_ context.Context, collection string, recordID string) error {
	f.deleteCalls++
	for i, record := range f.records[collection] {
		if record.ID == recordID {
			f.records[collection] = append(f.records[collection][:i], f.records[collection][i+1:]...)
			f.deletedIDs = append(f.deletedIDs, recordID)
			return nil
		}
	}
	return store.ErrRecordNotFound
}

func (f *fakeStore) find(collection, recordID string) (store.Record, bool) {
	for _, record := range f.records[collection] {
		if record.ID == recordID {
			return record, true
		}
	}
	return store.Record{}, false
}

func (f *fakeStore) resetCounters() {
	f.listCalls = 0
	f.createCalls = 0
	f.updateCalls = 0
	f.deleteCalls = 0
	f.createdIDs = nil
	f.updatedIDs = nil
	f.deletedIDs = nil
}

func mustReconciler(t *testing.T, recordStore store.RecordStore) *Reconciler {
	t.Helper()
	reconciler, err := NewReconciler(ReconcilerConfig{Store: recordStore})
	if err != nil {
		t.Fatalf("unexpected reconciler error: %v", err)
	}
	return reconciler
}

func classRecordFields(t *testing.T, name, owner string) store.Fields {
	t.Helper()
	class := &Class{Name: name, Owner: owner}
	fields, _, err := classFields(class, nil)
	if err != nil {
		t.Fatalf("unexpected encode error: %v", err)
	}
	return fields
}

var errBoom = errors.New("boom")
