package process

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collabhub/internal/engine"
)

func TestWebhookPostsEvent(t *testing.T) {
	var got engine.ProcessEvent
	var headers http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	hook := NewWebhook(srv.URL, "s3cret", 0)
	err := hook.Notify(context.Background(), engine.ProcessEvent{
		Type: "observation.sent", ProjectID: 4, EntityID: 9, ActorID: "bob",
		Payload: map[string]any{"content": "Volunteers need gloves"},
	})
	require.NoError(t, err)
	assert.Equal(t, "observation.sent", got.Type)
	assert.Equal(t, int64(9), got.EntityID)
	assert.Equal(t, "Volunteers need gloves", got.Payload["content"])
	assert.Equal(t, "observation.sent", headers.Get("X-Collabhub-Event"))
	assert.Equal(t, "9", headers.Get("X-Collabhub-Entity"))
	assert.Equal(t, "s3cret", headers.Get("X-Collabhub-Secret"))
}

func TestWebhookReportsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "case not found", http.StatusNotFound)
	}))
	defer srv.Close()

	err := NewWebhook(srv.URL, "", 0).Notify(context.Background(), engine.ProcessEvent{Type: "project.created"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404: case not found")
}
