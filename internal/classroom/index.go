package classroom

import (
	"strings"

	"github.com/MarcoPoloResearchLab/classdeck/backend/internal/store"
)

// remoteIndex resolves local entities against one fetched remote record set.
// It carries two lookup structures: by remote identifier and by a secondary
// key (class name or card label). Secondary keys are assumed unique within
// the fetched scope; on duplicates the first record wins and later ones are
// never reachable through the key, which mirrors the product's behavior.
//
// Each remote record can be claimed at most once per reconciliation pass.
// A second local entity resolving to an already-claimed record gets no match
// and falls through to a create.
type remoteIndex struct {
	byID      map[string]store.Record
	byKey     map[string]store.Record
	claimed   map[string]bool
	fetchedID []string
}

func newRemoteIndex(records []store.Record, keyField string) *remoteIndex {
	index := &remoteIndex{
		byID:      make(map[string]store.Record, len(records)),
		byKey:     make(map[string]store.Record, len(records)),
		claimed:   make(map[string]bool, len(records)),
		fetchedID: make([]string, 0, len(records)),
	}
	for _, record := range records {
		if record.ID == "" {
			continue
		}
		index.byID[record.ID] = record
		index.fetchedID = append(index.fetchedID, record.ID)
		key := normalizeKey(fieldString(record, keyField))
		if key == "" {
			continue
		}
		if _, exists := index.byKey[key]; !exists {
			index.byKey[key] = record
		}
	}
	return index
}

// match resolves one local entity. Matching order: the local id against the
// by-identifier map first, then the secondary key against the by-key map.
// A successful match claims the record for the rest of the pass.
func (x *remoteIndex) match(localID FlexID, key string) (store.Record, bool) {
	if !localID.IsZero() {
		if record, ok := x.byID[localID.String()]; ok && !x.claimed[record.ID] {
			x.claimed[record.ID] = true
			return record, true
		}
	}
	if normalized := normalizeKey(key); normalized != "" {
		if record, ok := x.byKey[normalized]; ok && !x.claimed[record.ID] {
			x.claimed[record.ID] = true
			return record, true
		}
	}
	return store.Record{}, false
}

// claim marks a record identifier as touched without a lookup, used for
// identifiers bound by a create.
func (x *remoteIndex) claim(recordID string) {
	if recordID != "" {
		x.claimed[recordID] = true
	}
}

// unclaimed returns every fetched record identifier that no local entity
// matched, in fetch order. These are the delete-sweep candidates.
func (x *remoteIndex) unclaimed() []string {
	stale := make([]string, 0)
	for _, recordID := range x.fetchedID {
		if !x.claimed[recordID] {
			stale = append(stale, recordID)
		}
	}
	return stale
}

func fieldString(record store.Record, name string) string {
	if value, ok := record.Fields[name].(string); ok {
		return value
	}
	return ""
}

func normalizeKey(key string) string {
	return strings.TrimSpace(key)
}
