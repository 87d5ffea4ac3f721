// ABOUTME: Tests for the Graph API send client
// ABOUTME: Uses httptest to assert request shape and response handling

package messenger

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_SendText(t *testing.T) {
	var gotPath, gotToken string
	var gotBody sendRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotToken = r.URL.Query().Get("access_token")
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &gotBody))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"recipient_id":"psid-9","message_id":"m_abc"}`))
	}))
	defer srv.Close()

	client := NewClient("page-token", srv.URL, nil)

	id, err := client.SendText(context.Background(), "psid-9", "hello there")
	require.NoError(t, err)
	assert.Equal(t, "m_abc", id)

	assert.Equal(t, "/me/messages", gotPath)
	assert.Equal(t, "page-token", gotToken)
	assert.Equal(t, "psid-9", gotBody.Recipient.ID)
	assert.Equal(t, "hello there", gotBody.Message.Text)
}

func TestClient_SendText_GraphError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid OAuth access token","type":"OAuthException","code":190}}`))
	}))
	defer srv.Close()

	client := NewClient("bad-token", srv.URL, nil)

	_, err := client.SendText(context.Background(), "psid-9", "hello")
	require.Error(t, err)
	assert.ErrorContains(t, err, "Invalid OAuth access token")
	assert.ErrorContains(t, err, "190")
}

func TestClient_SendText_OpaqueError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream broke"))
	}))
	defer srv.Close()

	client := NewClient("page-token", srv.URL, nil)

	_, err := client.SendText(context.Background(), "psid-9", "hello")
	require.Error(t, err)
	assert.ErrorContains(t, err, "status 502")
}

func TestClient_SendText_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	client := NewClient("page-token", srv.URL, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.SendText(ctx, "psid-9", "hello")
	assert.Error(t, err)
}
