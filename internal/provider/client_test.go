// ABOUTME: Tests for the messaging provider client
// ABOUTME: Uses httptest to verify the request shape and failure handling

package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string) *Client {
	return New(Config{
		BaseURL:     url,
		AdminUserID: "support-bot",
		Secret:      "sekrit",
	}, nil)
}

func TestClient_SendMessage(t *testing.T) {
	var got sendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/messages/send", r.URL.Path)
		assert.Equal(t, "Bearer sekrit", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]any{"code": 0})
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).SendMessage(context.Background(), "user-1", "hello", 101)
	require.NoError(t, err)

	assert.Equal(t, "support-bot", got.FromUserID)
	assert.Equal(t, "user-1", got.ToUserID)
	assert.Equal(t, "hello", got.Content)
	assert.Equal(t, 101, got.ContentType)
}

func TestClient_SendMessageHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).SendMessage(context.Background(), "user-1", "hello", 101)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestClient_SendMessageProviderRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"code": 40003, "message": "user not found"})
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).SendMessage(context.Background(), "user-x", "hello", 101)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user not found")
}

func TestClient_SendMessageContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := newTestClient(srv.URL).SendMessage(ctx, "user-1", "hello", 101)
	assert.Error(t, err)
}
