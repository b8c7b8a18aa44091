package tabular

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modelsentry/internal/domain"
)

func TestSnapshotDecodesModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/databases/AdventureWorks/model", r.URL.Path)
		_ = json.NewEncoder(w).Encode(domain.ModelSnapshot{
			Name: "AdventureWorks",
			Tables: []domain.SnapshotTable{
				{Name: "Sales", Columns: []domain.SnapshotColumn{{Name: "Amount", DataType: "Double"}}},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(time.Second)
	snap, err := c.Snapshot(context.Background(), srv.URL, "AdventureWorks")
	require.NoError(t, err)
	assert.Equal(t, "AdventureWorks", snap.Name)
	require.Len(t, snap.Tables, 1)
	assert.Equal(t, "Sales", snap.Tables[0].Name)
}

func TestSnapshotErrorMapping(t *testing.T) {
	status := http.StatusNotFound
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()

	c := NewClient(time.Second)

	_, err := c.Snapshot(context.Background(), srv.URL, "missing")
	var notFound *domain.NotFoundError
	assert.ErrorAs(t, err, &notFound)

	status = http.StatusInternalServerError
	_, err = c.Snapshot(context.Background(), srv.URL, "AdventureWorks")
	var unavailable *domain.UnavailableError
	assert.ErrorAs(t, err, &unavailable)
}

func TestBaseURLAddsScheme(t *testing.T) {
	assert.Equal(t, "http://localhost:9000", baseURL("localhost:9000"))
	assert.Equal(t, "https://tabular.internal", baseURL("https://tabular.internal/"))
}

func TestUpdateObjectSendsPatch(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/databases/AdventureWorks/objects", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	c := NewClient(time.Second)
	err := c.UpdateObject(context.Background(), srv.URL, "AdventureWorks",
		"Sales[Amount]", "DataType", "Decimal")
	require.NoError(t, err)
	assert.Equal(t, "Sales[Amount]", got["object"])
	assert.Equal(t, "DataType", got["property"])
	assert.Equal(t, "Decimal", got["value"])
}

func TestQueryClientRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/databases/AdventureWorks/query", r.URL.Path)
		var req queryRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Contains(t, req.Query, "EVALUATE")
		_ = json.NewEncoder(w).Encode(queryResponse{
			Columns: []domain.QueryColumn{{Name: "Sales[Amount]", DataType: "Double"}},
			Rows:    []map[string]interface{}{{"Sales[Amount]": 12.5}},
		})
	}))
	defer srv.Close()

	c := NewQueryClient(srv.URL, "AdventureWorks", time.Second)
	result, err := c.Run(context.Background(), "EVALUATE Sales")
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "Sales[Amount]", result.Columns[0].Name)
}

func TestQueryClientRunSurfacesEngineError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(queryResponse{Error: "table 'Nope' not found"})
	}))
	defer srv.Close()

	c := NewQueryClient(srv.URL, "AdventureWorks", time.Second)
	_, err := c.Run(context.Background(), "EVALUATE Nope")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "table 'Nope' not found"))
}

func TestQueryClientCancelToleratesNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewQueryClient(srv.URL, "AdventureWorks", time.Second)
	assert.NoError(t, c.CancelQuery(context.Background(), "exec-1"))
}
