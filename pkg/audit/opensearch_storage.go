package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/opensearch-project/opensearch-go/v2"
)

// DefaultIndex is the index audit events are written to unless overridden
// with WithIndex.
const DefaultIndex = "billing-audit"

// OpenSearchStorage persists audit events in an OpenSearch index. It
// implements Storage, BatchStorage, and StorageCounter, so it works both
// directly and behind an AsyncWriter.
type OpenSearchStorage struct {
	client *opensearch.Client
	index  string
}

var (
	_ Storage        = (*OpenSearchStorage)(nil)
	_ BatchStorage   = (*OpenSearchStorage)(nil)
	_ StorageCounter = (*OpenSearchStorage)(nil)
)

// StorageOption configures OpenSearchStorage.
type StorageOption func(*OpenSearchStorage)

// WithIndex overrides the target index.
func WithIndex(name string) StorageOption {
	return func(s *OpenSearchStorage) { s.index = name }
}

// NewOpenSearchStorage creates the storage over an existing client.
// Panics if client is nil.
func NewOpenSearchStorage(client *opensearch.Client, opts ...StorageOption) *OpenSearchStorage {
	if client == nil {
		panic("audit: opensearch client is required")
	}

	s := &OpenSearchStorage{client: client, index: DefaultIndex}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// indexMapping types every filterable field as keyword so term queries and
// sorting behave without relying on dynamic mapping guesses.
const indexMapping = `{
	"mappings": {
		"properties": {
			"id": {"type": "keyword"},
			"account_id": {"type": "keyword"},
			"action": {"type": "keyword"},
			"provider": {"type": "keyword"},
			"resource": {"type": "keyword"},
			"resource_id": {"type": "keyword"},
			"result": {"type": "keyword"},
			"error": {"type": "text"},
			"metadata": {"type": "object", "dynamic": true},
			"created_at": {"type": "date"}
		}
	}
}`

// EnsureIndex creates the index with explicit mappings when it does not
// exist yet.
func (s *OpenSearchStorage) EnsureIndex(ctx context.Context) error {
	res, err := s.client.Indices.Exists(
		[]string{s.index},
		s.client.Indices.Exists.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("check audit index: %w", err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
	default:
		return fmt.Errorf("check audit index: %s", res.String())
	}

	createRes, err := s.client.Indices.Create(
		s.index,
		s.client.Indices.Create.WithBody(strings.NewReader(indexMapping)),
		s.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("create audit index: %w", err)
	}
	defer createRes.Body.Close()

	if createRes.IsError() {
		return fmt.Errorf("create audit index: %s", createRes.String())
	}
	return nil
}

// Store indexes one event keyed by its ID.
func (s *OpenSearchStorage) Store(ctx context.Context, event Event) error {
	doc, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}

	res, err := s.client.Index(
		s.index,
		bytes.NewReader(doc),
		s.client.Index.WithDocumentID(event.ID),
		s.client.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("store audit event: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("store audit event: %s", res.String())
	}
	return nil
}

// StoreBatch indexes events through the bulk endpoint.
func (s *OpenSearchStorage) StoreBatch(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}

	var body bytes.Buffer
	for _, event := range events {
		meta, err := json.Marshal(map[string]any{"index": map[string]any{"_id": event.ID}})
		if err != nil {
			return fmt.Errorf("encode bulk action: %w", err)
		}
		doc, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("encode audit event: %w", err)
		}
		body.Write(meta)
		body.WriteByte('\n')
		body.Write(doc)
		body.WriteByte('\n')
	}

	res, err := s.client.Bulk(
		bytes.NewReader(body.Bytes()),
		s.client.Bulk.WithIndex(s.index),
		s.client.Bulk.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("bulk store audit events: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("bulk store audit events: %s", res.String())
	}

	var bulkRes struct {
		Errors bool `json:"errors"`
	}
	if err := json.NewDecoder(res.Body).Decode(&bulkRes); err != nil {
		return fmt.Errorf("decode bulk response: %w", err)
	}
	if bulkRes.Errors {
		return fmt.Errorf("bulk store audit events: response reported item errors")
	}
	return nil
}

// Query searches the index, newest first.
func (s *OpenSearchStorage) Query(ctx context.Context, criteria Criteria) ([]Event, error) {
	size := criteria.Limit
	if size <= 0 {
		size = 100
	}

	query := map[string]any{
		"query": buildQuery(criteria),
		"sort":  []any{map[string]any{"created_at": map[string]any{"order": "desc"}}},
		"from":  criteria.Offset,
		"size":  size,
	}
	var body bytes.Buffer
	if err := json.NewEncoder(&body).Encode(query); err != nil {
		return nil, fmt.Errorf("encode audit query: %w", err)
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.index),
		s.client.Search.WithBody(&body),
	)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("query audit events: %s", res.String())
	}

	var searchRes struct {
		Hits struct {
			Hits []struct {
				Source Event `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&searchRes); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	events := make([]Event, 0, len(searchRes.Hits.Hits))
	for _, hit := range searchRes.Hits.Hits {
		events = append(events, hit.Source)
	}
	return events, nil
}

// Count implements StorageCounter through the count endpoint.
func (s *OpenSearchStorage) Count(ctx context.Context, criteria Criteria) (int64, error) {
	var body bytes.Buffer
	if err := json.NewEncoder(&body).Encode(map[string]any{"query": buildQuery(criteria)}); err != nil {
		return 0, fmt.Errorf("encode audit query: %w", err)
	}

	res, err := s.client.Count(
		s.client.Count.WithContext(ctx),
		s.client.Count.WithIndex(s.index),
		s.client.Count.WithBody(&body),
	)
	if err != nil {
		return 0, fmt.Errorf("count audit events: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return 0, fmt.Errorf("count audit events: %s", res.String())
	}

	var countRes struct {
		Count int64 `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&countRes); err != nil {
		return 0, fmt.Errorf("decode count response: %w", err)
	}
	return countRes.Count, nil
}

// buildQuery translates Criteria into a bool filter.
func buildQuery(criteria Criteria) map[string]any {
	filters := make([]any, 0, 6)

	addTerm := func(field, value string) {
		if value != "" {
			filters = append(filters, map[string]any{"term": map[string]any{field: value}})
		}
	}
	addTerm("account_id", criteria.AccountID)
	addTerm("action", criteria.Action)
	addTerm("provider", criteria.Provider)
	addTerm("result", string(criteria.Result))

	if !criteria.From.IsZero() || !criteria.To.IsZero() {
		bounds := map[string]any{}
		if !criteria.From.IsZero() {
			bounds["gte"] = criteria.From
		}
		if !criteria.To.IsZero() {
			bounds["lte"] = criteria.To
		}
		filters = append(filters, map[string]any{"range": map[string]any{"created_at": bounds}})
	}

	if len(filters) == 0 {
		return map[string]any{"match_all": map[string]any{}}
	}
	return map[string]any{"bool": map[string]any{"filter": filters}}
}
