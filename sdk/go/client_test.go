package collabsdk_test

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	collabsdk "collabhub/sdk/go"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestLoginStoresTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/login", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "password", r.PostForm.Get("grant_type"))
		assert.Equal(t, "alice", r.PostForm.Get("username"))
		resp := map[string]string{"access_token": "local-tok", "token_type": "bearer"}
		if r.PostForm.Get("cloud") == "true" {
			resp["cloud_access_token"] = "cloud-tok"
		}
		writeJSON(w, http.StatusOK, resp)
	}))
	defer srv.Close()

	c := collabsdk.New(srv.URL, "")
	_, err := c.Login(context.Background(), "alice", "Secret1!", false)
	require.NoError(t, err)
	assert.True(t, c.Session.HasLocalAuth())
	assert.False(t, c.Session.HasCloudAuth())

	_, err = c.Login(context.Background(), "alice", "Secret1!", true)
	require.NoError(t, err)
	assert.True(t, c.Session.HasCloudAuth())
	assert.Equal(t, "cloud-tok", c.Session.CloudToken())

	c.Logout()
	assert.False(t, c.Session.HasLocalAuth())
	assert.False(t, c.Session.HasCloudAuth())
}

func TestTierGating(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		writeJSON(w, http.StatusOK, []any{})
	}))
	defer srv.Close()

	c := collabsdk.New(srv.URL, "")
	_, err := c.MyProjects(context.Background())
	assert.ErrorIs(t, err, collabsdk.ErrNotAuthenticated)

	c.Session = collabsdk.NewSession("local-tok", "")
	_, err = c.Compromises(context.Background(), collabsdk.CompromiseFilter{})
	assert.ErrorIs(t, err, collabsdk.ErrNotAuthenticated)
	assert.Equal(t, 0, calls)

	_, err = c.MyProjects(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestTokensRouteToTheirTier(t *testing.T) {
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, []any{})
	}))
	defer srv.Close()

	c := collabsdk.New(srv.URL, "")
	c.Session = collabsdk.NewSession("local-tok", "cloud-tok")
	_, err := c.MyProjects(context.Background())
	require.NoError(t, err)
	_, err = c.CollaborationProjects(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Bearer local-tok", "Bearer cloud-tok"}, seen)
}

func TestAPIErrorDecoding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"detail": "validation failed: end_date: must not be before start_date",
			"code":   "validation_failed",
			"fields": map[string]string{"end_date": "must not be before start_date"},
		})
	}))
	defer srv.Close()

	c := collabsdk.New(srv.URL, "")
	c.Session = collabsdk.NewSession("local-tok", "")
	_, err := c.CreateProject(context.Background(), collabsdk.CreateProjectRequest{Name: "x"})
	var apiErr *collabsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Equal(t, "validation_failed", apiErr.Code)
	assert.Equal(t, "must not be before start_date", apiErr.Fields["end_date"])
}

func TestSchemaErrors(t *testing.T) {
	cases := []struct {
		name string
		body any
	}{
		{"wrong type", map[string]any{"id": "seven"}},
		{"unknown status", map[string]any{"id": 1, "name": "p", "owner_id": 2, "status": "paused"}},
		{"bad task", map[string]any{"id": 1, "name": "p", "owner_id": 2, "status": "active",
			"tasks": []map[string]any{{"id": 3, "project_id": 1, "status": "done"}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, tc.body)
			}))
			defer srv.Close()
			c := collabsdk.New(srv.URL, "")
			c.Session = collabsdk.NewSession("local-tok", "")
			_, err := c.GetProject(context.Background(), 1)
			var schemaErr *collabsdk.SchemaError
			assert.ErrorAs(t, err, &schemaErr)
		})
	}
}

func TestSelectionMustBeSelected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"message":    "organization selected",
			"commitment": map[string]any{"id": 1, "task_id": 2, "ong_id": 3, "status": "interested"},
		})
	}))
	defer srv.Close()
	c := collabsdk.New(srv.URL, "")
	c.Session = collabsdk.NewSession("", "cloud-tok")
	_, err := c.SelectOrg(context.Background(), 1, 2, 3)
	var schemaErr *collabsdk.SchemaError
	assert.ErrorAs(t, err, &schemaErr)
}

func TestNetworkError(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	c := collabsdk.New("http://"+addr, "")
	err = c.Health(context.Background())
	var netErr *collabsdk.NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Temporary())
	assert.False(t, errors.Is(err, collabsdk.ErrNotAuthenticated))
}

func TestCloudURLUsedForCloudCalls(t *testing.T) {
	local := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("cloud call reached local server: %s", r.URL.Path)
	}))
	defer local.Close()
	cloud := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/observations/my_observations_ong", r.URL.Path)
		writeJSON(w, http.StatusOK, []any{})
	}))
	defer cloud.Close()

	c := collabsdk.New(local.URL, cloud.URL)
	c.Session = collabsdk.NewSession("local-tok", "cloud-tok")
	items, err := c.MyObservations(context.Background())
	require.NoError(t, err)
	assert.Empty(t, items)
}
