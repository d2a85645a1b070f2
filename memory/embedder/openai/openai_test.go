package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/travel-memory/memory/embedder/openai"
)

func TestEmbedderDecodesResponse(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"object":"list","model":"m","data":[{"object":"embedding","index":0,"embedding":[0.5,-0.25,1]}],"usage":{"prompt_tokens":3,"total_tokens":3}}`))
	}))
	defer srv.Close()

	e, err := openai.New(openai.Config{
		APIKey:     "test-key",
		BaseURL:    srv.URL + "/v1/",
		Model:      "m",
		Dimensions: 3,
		MaxRetries: 0,
	})
	require.NoError(t, err)

	v, err := e.Embed(context.Background(), "a quiet beach")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, -0.25, 1}, v)
	assert.Equal(t, 3, e.Dimensions())
	assert.Equal(t, "a quiet beach", got["input"])
	assert.Equal(t, "m", got["model"])
}

func TestEmbedderReportsServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"bad input","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	e, err := openai.New(openai.Config{APIKey: "k", BaseURL: srv.URL + "/v1/"})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "x")
	assert.Error(t, err)
}

func TestNewRequiresKey(t *testing.T) {
	_, err := openai.New(openai.Config{})
	assert.Error(t, err)
}
