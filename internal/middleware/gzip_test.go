package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gzipped(t *testing.T, s string) *bytes.Buffer {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	return &buf
}

func TestDecompressRequest_WebhookBodyReachesHandler(t *testing.T) {
	payload := `{"event":"transaction.processed","data":{"id":"tx_1","status":"paid","total_amount":10000}}`

	req := httptest.NewRequest(http.MethodPost, "/webhooks/buckpay?site=white", gzipped(t, payload))
	req.Header.Set("Content-Encoding", "gzip")
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	var got map[string]any
	DecompressRequest(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Content-Encoding"))
		assert.Equal(t, int64(-1), r.ContentLength)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "transaction.processed", got["event"])
	assert.Equal(t, "tx_1", got["data"].(map[string]any)["id"])
}

func TestDecompressRequest_PlainBodyUntouched(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/ad-spend", strings.NewReader(`{"amount":"50.00"}`))
	w := httptest.NewRecorder()

	DecompressRequest(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.JSONEq(t, `{"amount":"50.00"}`, string(body))
	})).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDecompressRequest_BrokenBodyIsJSONError(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/blackcat", strings.NewReader("garbage"))
	req.Header.Set("Content-Encoding", "gzip")
	w := httptest.NewRecorder()

	RequestID(DecompressRequest(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("next handler should not be called")
	}))).ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body struct {
		Status string            `json:"status"`
		Error  map[string]string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "error", body.Status)
	assert.Equal(t, "invalid_payload", body.Error["code"])
	assert.NotEmpty(t, body.Error["request_id"])
}

func TestCompressResponse_ReportJSON(t *testing.T) {
	report := `{"status":"ok","data":{"global":{"order_count":2,"gross_amount":200.01}}}`

	tests := []struct {
		name           string
		acceptEncoding string
		wantEncoding   string
	}{
		{name: "dashboard accepts gzip", acceptEncoding: "gzip, deflate, br", wantEncoding: "gzip"},
		{name: "plain client", acceptEncoding: "", wantEncoding: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/reports/summary?period=today", nil)
			req.Header.Set("Accept-Encoding", tt.acceptEncoding)
			w := httptest.NewRecorder()

			CompressResponse(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(report))
			})).ServeHTTP(w, req)

			res := w.Result()
			defer res.Body.Close()

			assert.Equal(t, http.StatusOK, res.StatusCode)
			assert.Equal(t, "application/json", res.Header.Get("Content-Type"))
			assert.Equal(t, tt.wantEncoding, res.Header.Get("Content-Encoding"))

			var reader io.Reader = res.Body
			if tt.wantEncoding == "gzip" {
				gr, err := gzip.NewReader(res.Body)
				require.NoError(t, err)
				defer gr.Close()
				reader = gr
			}
			body, err := io.ReadAll(reader)
			require.NoError(t, err)
			assert.JSONEq(t, report, string(body))
		})
	}
}

func TestCompressResponse_NoContentIsNotCompressed(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()

	CompressResponse(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})).ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Header().Get("Content-Encoding"))
	assert.Zero(t, w.Body.Len())
}
