package store

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestHTTPStore(t *testing.T, handler http.Handler) *HTTPStore {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	recordStore, err := NewHTTPStore(HTTPStoreConfig{
		BaseURL:    server.URL,
		AuthToken:  "secret-token",
		HTTPClient: server.Client(),
	})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return recordStore
}

func TestHTTPStoreList(t *testing.T) {
	var capturedPath, capturedFilter, capturedPerPage, capturedAuth string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedPath = r.URL.Path
		capturedFilter = r.URL.Query().Get("filter")
		capturedPerPage = r.URL.Query().Get("perPage")
		capturedAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{
				{"id": "r1", "name": "5B", "owner": "t1"},
			},
		})
	})

	recordStore := newTestHTTPStore(t, handler)
	records, err := recordStore.List(context.Background(), CollectionClasses, NewEqualsFilter("owner", "t1"))
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	if capturedPath != "/api/collections/classes/records" {
		t.Fatalf("unexpected path: %s", capturedPath)
	}
	if capturedFilter != "(owner='t1')" {
		t.Fatalf("unexpected filter: %s", capturedFilter)
	}
	if capturedPerPage != "500" {
		t.Fatalf("unexpected perPage: %s", capturedPerPage)
	}
	if capturedAuth != "Bearer secret-token" {
		t.Fatalf("unexpected authorization header: %s", capturedAuth)
	}
	if len(records) != 1 || records[0].ID != "r1" {
		t.Fatalf("unexpected records: %+v", records)
	}
	if records[0].Fields["name"] != "5B" {
		t.Fatalf("identifier must be split out of the fields: %+v", records[0].Fields)
	}
	if _, present := records[0].Fields["id"]; present {
		t.Fatalf("id must not remain in the field set")
	}
}

func TestHTTPStoreCreateBindsIdentifier(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		body["id"] = "server-assigned"
		_ = json.NewEncoder(w).Encode(body)
	})

	recordStore := newTestHTTPStore(t, handler)
	record, err := recordStore.Create(context.Background(), CollectionClasses, Fields{"name": "5B"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if record.ID != "server-assigned" {
		t.Fatalf("unexpected identifier: %s", record.ID)
	}
}

func TestHTTPStoreCreateMissingIdentifierFails(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"name": "5B"})
	})

	recordStore := newTestHTTPStore(t, handler)
	if _, err := recordStore.Create(context.Background(), CollectionClasses, Fields{"name": "5B"}); err == nil {
		t.Fatalf("expected error for response without a record id")
	}
}

func TestHTTPStoreUpdate(t *testing.T) {
	var capturedMethod, capturedPath string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedMethod = r.Method
		capturedPath = r.URL.Path
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "r1", "name": "5B Renamed"})
	})

	recordStore := newTestHTTPStore(t, handler)
	record, err := recordStore.Update(context.Background(), CollectionClasses, "r1", Fields{"name": "5B Renamed"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if capturedMethod != http.MethodPatch {
		t.Fatalf("expected PATCH, got %s", capturedMethod)
	}
	if capturedPath != "/api/collections/classes/records/r1" {
		t.Fatalf("unexpected path: %s", capturedPath)
	}
	if record.Fields["name"] != "5B Renamed" {
		t.Fatalf("unexpected fields: %+v", record.Fields)
	}
}

func TestHTTPStoreDeleteNotFound(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	recordStore := newTestHTTPStore(t, handler)
	err := recordStore.Delete(context.Background(), CollectionClasses, "nope")
	if !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestHTTPStoreServerErrorSurfacesStatus(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "backend down", http.StatusBadGateway)
	})

	recordStore := newTestHTTPStore(t, handler)
	_, err := recordStore.List(context.Background(), CollectionClasses, Filter{})
	if err == nil {
		t.Fatalf("expected error for 502 response")
	}
}
