package ocr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadAPIProviderSubmitAndPoll(t *testing.T) {
	var polls atomic.Int32
	mux := http.NewServeMux()
	var serverURL string

	mux.HandleFunc("POST /vision/v3.2/read/analyze", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("Ocp-Apim-Subscription-Key"))
		w.Header().Set("Operation-Location", serverURL+"/vision/v3.2/read/analyzeResults/op-1")
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("GET /vision/v3.2/read/analyzeResults/op-1", func(w http.ResponseWriter, r *http.Request) {
		if polls.Add(1) < 2 {
			json.NewEncoder(w).Encode(map[string]string{"status": "running"})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "succeeded",
			"analyzeResult": map[string]interface{}{
				"readResults": []map[string]interface{}{
					{"page": 1, "lines": []map[string]string{{"text": "CERTIFICADO"}, {"text": "No. 12345"}}},
					{"page": 2, "lines": []map[string]string{{"text": "firma autorizada"}}},
				},
			},
		})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()
	serverURL = srv.URL

	p := NewReadAPIProvider(srv.URL, "secret", srv.Client(), discardLogger())
	text, cost, err := p.Extract(context.Background(), []byte("fake image"), "cert.png")
	require.NoError(t, err)
	assert.Contains(t, text, "CERTIFICADO")
	assert.Contains(t, text, "firma autorizada")
	assert.InDelta(t, 2*readAPICostPerPage, cost, 1e-9)
	assert.GreaterOrEqual(t, polls.Load(), int32(2))
}

func TestReadAPIProviderSubmitRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := NewReadAPIProvider(srv.URL, "wrong", srv.Client(), discardLogger())
	_, _, err := p.Extract(context.Background(), []byte("img"), "cert.png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
