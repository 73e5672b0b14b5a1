package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultHTTPTimeout = 15 * time.Second

var errMissingBaseURL = errors.New("store: base url is required")

// HTTPStoreConfig configures the client for a hosted records API.
type HTTPStoreConfig struct {
	BaseURL    string
	AuthToken  string
	HTTPClient *http.Client
}

// HTTPStore implements RecordStore against a hosted records API exposing
// per-collection CRUD under /api/collections/{name}/records.
type HTTPStore struct {
	baseURL   string
	authToken string
	client    *http.Client
}

// NewHTTPStore validates configuration and constructs an HTTPStore.
func NewHTTPStore(cfg HTTPStoreConfig) (*HTTPStore, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errMissingBaseURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &HTTPStore{
		baseURL:   base,
		authToken: strings.TrimSpace(cfg.AuthToken),
		client:    client,
	}, nil
}

type listResponse struct {
	Items []map[string]any `json:"items"`
}

// List fetches one page of records matching the filter. The page size is
// fixed at PageSize; records beyond it are not fetched.
func (s *HTTPStore) List(ctx context.Context, collection string, filter Filter) ([]Record, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("perPage", strconv.Itoa(PageSize))
	if expression := filter.Expression(); expression != "" {
		query.Set("filter", expression)
	}
	endpoint := s.recordsURL(collection) + "?" + query.Encode()

	var response listResponse
	if err := s.do(ctx, http.MethodGet, endpoint, nil, &response); err != nil {
		return nil, fmt.Errorf("store: list %s: %w", collection, err)
	}

	records := make([]Record, 0, len(response.Items))
	for _, item := range response.Items {
		records = append(records, recordFromItem(item))
	}
	return records, nil
}

// Create posts a new record and returns it with the server-assigned identifier.
func (s *HTTPStore) Create(ctx context.Context, collection string, fields Fields) (Record, error) {
	if err := validateCollection(collection); err != nil {
		return Record{}, err
	}

	var item map[string]any
	if err := s.do(ctx, http.MethodPost, s.recordsURL(collection), fields, &item); err != nil {
		return Record{}, fmt.Errorf("store: create %s: %w", collection, err)
	}
	record := recordFromItem(item)
	if record.ID == "" {
		return Record{}, fmt.Errorf("store: create %s: response missing record id", collection)
	}
	return record, nil
}

// Update patches an existing record.
func (s *HTTPStore) Update(ctx context.Context, collection string, recordID string, fields Fields) (Record, error) {
	if err := validateCollection(collection); err != nil {
		return Record{}, err
	}
	if err := validateRecordID(recordID); err != nil {
		return Record{}, err
	}

	var item map[string]any
	endpoint := s.recordsURL(collection) + "/" + url.PathEscape(recordID)
	if err := s.do(ctx, http.MethodPatch, endpoint, fields, &item); err != nil {
		return Record{}, fmt.Errorf("store: update %s/%s: %w", collection, recordID, err)
	}
	record := recordFromItem(item)
	if record.ID == "" {
		record.ID = recordID
	}
	return record, nil
}

// Delete removes a record.
func (s *HTTPStore) Delete(ctx context.Context, collection string, recordID string) error {
	if err := validateCollection(collection); err != nil {
		return err
	}
	if err := validateRecordID(recordID); err != nil {
		return err
	}

	endpoint := s.recordsURL(collection) + "/" + url.PathEscape(recordID)
	if err := s.do(ctx, http.MethodDelete, endpoint, nil, nil); err != nil {
		return fmt.Errorf("store: delete %s/%s: %w", collection, recordID, err)
	}
	return nil
}

func (s *HTTPStore) recordsURL(collection string) string {
	return s.baseURL + "/api/collections/" + url.PathEscape(collection) + "/records"
}

func (s *HTTPStore) do(ctx context.Context, method, endpoint string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if s.authToken != "" {
		request.Header.Set("Authorization", "Bearer "+s.authToken)
	}

	response, err := s.client.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close() //nolint:errcheck

	if response.StatusCode == http.StatusNotFound {
		return ErrRecordNotFound
	}
	if response.StatusCode < 200 || response.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(response.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", response.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(response.Body).Decode(out)
}

// recordFromItem splits the remote identifier out of a raw response item.
// Server bookkeeping fields are left in place; the reconciler ignores what it
// does not know.
func recordFromItem(item map[string]any) Record {
	fields := Fields{}
	recordID := ""
	for key, value := range item {
		if key == "id" {
			recordID = fieldAsString(value)
			continue
		}
		fields[key] = value
	}
	return Record{ID: recordID, Fields: fields}
}
