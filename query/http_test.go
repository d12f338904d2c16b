package query

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/tachyon/block"
	"github.com/arloliu/tachyon/labels"
	"github.com/arloliu/tachyon/storage"
)

func testAPIServer(t *testing.T) (*storage.Engine, *httptest.Server) {
	t.Helper()

	engine, err := storage.NewEngine()
	require.NoError(t, err)

	adapter, err := NewAdapter(engine)
	require.NoError(t, err)

	router := mux.NewRouter()
	NewAPI(adapter, nil).Register(router)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return engine, server
}

func getJSON(t *testing.T, url string, wantStatus int) map[string]any {
	t.Helper()

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, wantStatus, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	return body
}

func TestAPI_QueryRange(t *testing.T) {
	engine, server := testAPIServer(t)

	lset := labels.FromStrings("__name__", "cpu_usage", "host", "web-1")
	require.NoError(t, engine.Write(t.Context(), lset, []block.Sample{
		{Timestamp: 10_000, Value: 1.5},
		{Timestamp: 20_000, Value: 2.5},
	}))

	params := url.Values{
		"query": []string{"cpu_usage"},
		"start": []string{"10"},
		"end":   []string{"20"},
		"step":  []string{"10s"},
	}
	body := getJSON(t, server.URL+"/api/v1/query_range?"+params.Encode(), http.StatusOK)

	require.Equal(t, "success", body["status"])

	data := body["data"].(map[string]any)
	require.Equal(t, "matrix", data["resultType"])

	result := data["result"].([]any)
	require.Len(t, result, 1)

	entry := result[0].(map[string]any)
	metric := entry["metric"].(map[string]any)
	require.Equal(t, "cpu_usage", metric["__name__"])
	require.Equal(t, "web-1", metric["host"])

	values := entry["values"].([]any)
	require.Len(t, values, 2)

	first := values[0].([]any)
	require.InDelta(t, 10.0, first[0].(float64), 1e-9)
	require.Equal(t, "1.5", first[1].(string))
}

func TestAPI_InstantQuery(t *testing.T) {
	engine, server := testAPIServer(t)

	lset := labels.FromStrings("__name__", "mem_usage")
	require.NoError(t, engine.Write(t.Context(), lset, []block.Sample{{Timestamp: 10_000, Value: 3}}))

	body := getJSON(t, server.URL+"/api/v1/query?query=mem_usage&time=15", http.StatusOK)
	require.Equal(t, "success", body["status"])

	data := body["data"].(map[string]any)
	require.Equal(t, "vector", data["resultType"])
	require.Len(t, data["result"].([]any), 1)
}

func TestAPI_QueryRejectsBadSelector(t *testing.T) {
	_, server := testAPIServer(t)

	body := getJSON(t, server.URL+"/api/v1/query?query="+url.QueryEscape(`{zone=`), http.StatusBadRequest)
	require.Equal(t, "error", body["status"])
	require.Equal(t, "bad_data", body["errorType"])
}

func TestAPI_Labels(t *testing.T) {
	engine, server := testAPIServer(t)

	lset := labels.FromStrings("__name__", "up", "zone", "a")
	require.NoError(t, engine.Write(t.Context(), lset, []block.Sample{{Timestamp: 1, Value: 1}}))

	body := getJSON(t, server.URL+"/api/v1/labels", http.StatusOK)
	require.Equal(t, []any{"__name__", "zone"}, body["data"])
}

func TestAPI_LabelValues(t *testing.T) {
	engine, server := testAPIServer(t)

	for _, zone := range []string{"b", "a"} {
		lset := labels.FromStrings("__name__", "up", "zone", zone)
		require.NoError(t, engine.Write(t.Context(), lset, []block.Sample{{Timestamp: 1, Value: 1}}))
	}

	body := getJSON(t, server.URL+"/api/v1/label/zone/values", http.StatusOK)
	require.Equal(t, []any{"a", "b"}, body["data"])

	body = getJSON(t, server.URL+"/api/v1/label/nope/values", http.StatusOK)
	require.Equal(t, []any{}, body["data"])
}

func TestAPI_Series(t *testing.T) {
	engine, server := testAPIServer(t)

	for _, zone := range []string{"a", "b"} {
		lset := labels.FromStrings("__name__", "up", "zone", zone)
		require.NoError(t, engine.Write(t.Context(), lset, []block.Sample{{Timestamp: 1, Value: 1}}))
	}

	params := url.Values{"match[]": []string{`up{zone="a"}`}}
	body := getJSON(t, server.URL+"/api/v1/series?"+params.Encode(), http.StatusOK)

	result := body["data"].([]any)
	require.Len(t, result, 1)

	entry := result[0].(map[string]any)
	require.Equal(t, "a", entry["zone"])
}

func TestAPI_SeriesRequiresMatcher(t *testing.T) {
	_, server := testAPIServer(t)

	body := getJSON(t, server.URL+"/api/v1/series", http.StatusBadRequest)
	require.Equal(t, "error", body["status"])
}

func TestSampleValue_MarshalJSON(t *testing.T) {
	data, err := json.Marshal(sampleValue(block.Sample{Timestamp: 1500, Value: 0.25}))
	require.NoError(t, err)
	require.Equal(t, `[1.500,"0.25"]`, string(data))
	require.False(t, strings.Contains(string(data), "e"))
}
