package audit_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/audit"
)

func newSearchClient(t *testing.T, handler http.HandlerFunc) *opensearch.Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := opensearch.NewClient(opensearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return client
}

func TestOpenSearchStorage_Store(t *testing.T) {
	t.Parallel()

	t.Run("indexes by event id", func(t *testing.T) {
		t.Parallel()

		var gotPath string
		var gotDoc map[string]any
		client := newSearchClient(t, func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.Method + " " + r.URL.Path
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotDoc))
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"result":"created"}`))
		})

		storage := audit.NewOpenSearchStorage(client)
		err := storage.Store(context.Background(), audit.Event{
			ID:        "evt-1",
			AccountID: "acc-1",
			Action:    "billing.payment.succeeded",
			Result:    audit.ResultSuccess,
			CreatedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)

		assert.Equal(t, "PUT /billing-audit/_doc/evt-1", gotPath)
		assert.Equal(t, "billing.payment.succeeded", gotDoc["action"])
		assert.Equal(t, "acc-1", gotDoc["account_id"])
	})

	t.Run("server error", func(t *testing.T) {
		t.Parallel()

		client := newSearchClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"boom"}`))
		})

		storage := audit.NewOpenSearchStorage(client)
		err := storage.Store(context.Background(), audit.Event{ID: "evt-1", Action: "billing.payment.failed"})
		assert.ErrorContains(t, err, "store audit event")
	})
}

func TestOpenSearchStorage_StoreBatch(t *testing.T) {
	t.Parallel()

	t.Run("bulk payload", func(t *testing.T) {
		t.Parallel()

		var gotPath string
		var gotBody string
		client := newSearchClient(t, func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.Method + " " + r.URL.Path
			raw, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			gotBody = string(raw)
			_, _ = w.Write([]byte(`{"took":3,"errors":false,"items":[]}`))
		})

		storage := audit.NewOpenSearchStorage(client)
		err := storage.StoreBatch(context.Background(), []audit.Event{
			{ID: "evt-1", Action: "billing.payment.succeeded", Result: audit.ResultSuccess},
			{ID: "evt-2", Action: "billing.payment.failed", Result: audit.ResultFailure},
		})
		require.NoError(t, err)

		assert.Equal(t, "POST /billing-audit/_bulk", gotPath)
		lines := strings.Split(strings.TrimSpace(gotBody), "\n")
		require.Len(t, lines, 4)
		assert.JSONEq(t, `{"index":{"_id":"evt-1"}}`, lines[0])
		assert.Contains(t, lines[1], `"billing.payment.succeeded"`)
		assert.JSONEq(t, `{"index":{"_id":"evt-2"}}`, lines[2])
	})

	t.Run("item errors reported", func(t *testing.T) {
		t.Parallel()

		client := newSearchClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"took":3,"errors":true,"items":[{"index":{"status":400}}]}`))
		})

		storage := audit.NewOpenSearchStorage(client)
		err := storage.StoreBatch(context.Background(), []audit.Event{{ID: "evt-1", Action: "billing.card.updated"}})
		assert.ErrorContains(t, err, "item errors")
	})

	t.Run("empty batch skips the request", func(t *testing.T) {
		t.Parallel()

		client := newSearchClient(t, func(w http.ResponseWriter, r *http.Request) {
			t.Error("unexpected request for empty batch")
		})

		storage := audit.NewOpenSearchStorage(client)
		require.NoError(t, storage.StoreBatch(context.Background(), nil))
	})
}

func TestOpenSearchStorage_Query(t *testing.T) {
	t.Parallel()

	var gotPath string
	var gotQuery struct {
		Query map[string]any `json:"query"`
		Sort  []any          `json:"sort"`
		From  int            `json:"from"`
		Size  int            `json:"size"`
	}
	client := newSearchClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.Method + " " + r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotQuery))
		_, _ = w.Write([]byte(`{
			"hits": {
				"total": {"value": 2},
				"hits": [
					{"_source": {"id": "evt-2", "account_id": "acc-1", "action": "billing.payment.failed", "result": "failure", "created_at": "2025-06-01T13:00:00Z"}},
					{"_source": {"id": "evt-1", "account_id": "acc-1", "action": "billing.payment.succeeded", "result": "success", "created_at": "2025-06-01T12:00:00Z"}}
				]
			}
		}`))
	})

	storage := audit.NewOpenSearchStorage(client)
	events, err := storage.Query(context.Background(), audit.Criteria{
		AccountID: "acc-1",
		Limit:     5,
		Offset:    2,
	})
	require.NoError(t, err)

	assert.Equal(t, "POST /billing-audit/_search", gotPath)
	assert.Equal(t, 2, gotQuery.From)
	assert.Equal(t, 5, gotQuery.Size)

	filter, err := json.Marshal(gotQuery.Query)
	require.NoError(t, err)
	assert.Contains(t, string(filter), `"account_id":"acc-1"`)

	require.Len(t, events, 2)
	assert.Equal(t, "evt-2", events[0].ID)
	assert.Equal(t, audit.ResultFailure, events[0].Result)
	assert.Equal(t, "evt-1", events[1].ID)
}

func TestOpenSearchStorage_Count(t *testing.T) {
	t.Parallel()

	var gotPath string
	client := newSearchClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.Method + " " + r.URL.Path
		_, _ = w.Write([]byte(`{"count":42}`))
	})

	storage := audit.NewOpenSearchStorage(client)
	n, err := storage.Count(context.Background(), audit.Criteria{Action: "billing.payment.failed"})
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
	assert.Equal(t, "POST /billing-audit/_count", gotPath)
}

func TestOpenSearchStorage_EnsureIndex(t *testing.T) {
	t.Parallel()

	t.Run("index already exists", func(t *testing.T) {
		t.Parallel()

		var created bool
		client := newSearchClient(t, func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodHead:
				w.WriteHeader(http.StatusOK)
			default:
				created = true
			}
		})

		storage := audit.NewOpenSearchStorage(client)
		require.NoError(t, storage.EnsureIndex(context.Background()))
		assert.False(t, created)
	})

	t.Run("creates missing index with mappings", func(t *testing.T) {
		t.Parallel()

		var createPath string
		var mapping string
		client := newSearchClient(t, func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodHead:
				w.WriteHeader(http.StatusNotFound)
			case http.MethodPut:
				createPath = r.URL.Path
				raw, err := io.ReadAll(r.Body)
				require.NoError(t, err)
				mapping = string(raw)
				_, _ = w.Write([]byte(`{"acknowledged":true}`))
			default:
				t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
			}
		})

		storage := audit.NewOpenSearchStorage(client)
		require.NoError(t, storage.EnsureIndex(context.Background()))
		assert.Equal(t, "/billing-audit", createPath)
		assert.Contains(t, mapping, `"created_at": {"type": "date"}`)
	})
}

func TestOpenSearchStorage_CustomIndex(t *testing.T) {
	t.Parallel()

	var gotPath string
	client := newSearchClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"result":"created"}`))
	})

	storage := audit.NewOpenSearchStorage(client, audit.WithIndex("billing-audit-staging"))
	require.NoError(t, storage.Store(context.Background(), audit.Event{ID: "evt-1", Action: "billing.card.declined"}))
	assert.Equal(t, "/billing-audit-staging/_doc/evt-1", gotPath)
}

func TestNewOpenSearchStorage_RequiresClient(t *testing.T) {
	t.Parallel()

	assert.PanicsWithValue(t, "audit: opensearch client is required", func() {
		audit.NewOpenSearchStorage(nil)
	})
}
