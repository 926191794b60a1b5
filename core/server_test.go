package core_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sessiond/core"
	"sessiond/gateway"
	"sessiond/storage"
)

func setupTestServer(t *testing.T) (http.Handler, *core.SessionManager) {
	t.Helper()

	gw := gateway.NewMockGateway(storage.NewMemoryStore())
	manager := core.NewSessionManager(gw, &core.Config{}, nil, nil)
	t.Cleanup(manager.Close)
	manager.Initialize(context.Background())

	guard := core.NewRouteGuard(core.DefaultRouteClassifier(), "", "")
	server := core.NewServer(manager, guard, nil)
	return server.Routes(), manager
}

func makeRequest(handler http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var bodyReader *bytes.Reader

	switch v := body.(type) {
	case string:
		bodyReader = bytes.NewReader([]byte(v))
	case nil:
		bodyReader = bytes.NewReader([]byte{})
	default:
		jsonBody, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(jsonBody)
	}

	req := httptest.NewRequest(method, path, bodyReader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestHandleHealth(t *testing.T) {
	handler, _ := setupTestServer(t)

	w := makeRequest(handler, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandleGetSession_MockInitialized(t *testing.T) {
	handler, _ := setupTestServer(t)

	w := makeRequest(handler, http.MethodGet, "/session/", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var state core.SessionState
	require.NoError(t, json.NewDecoder(w.Body).Decode(&state))
	require.NotNil(t, state.User)
	assert.Equal(t, gateway.MockEmail, state.User.Email)
	require.NotNil(t, state.Profile)
	assert.False(t, state.Loading)
}

func TestHandleSignIn_InvalidCredentials(t *testing.T) {
	handler, manager := setupTestServer(t)
	require.NoError(t, manager.SignOut(context.Background()))

	reqBody := map[string]string{
		"email":    "a@b.com",
		"password": "wrong",
	}
	w := makeRequest(handler, http.MethodPost, "/session/signin", reqBody)

	assert.Equal(t, http.StatusUnauthorized, w.Code)

	var resp map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "invalid_credentials", resp["error"])

	assert.Nil(t, manager.Snapshot().User)
}

func TestHandleSignIn_MissingFields(t *testing.T) {
	handler, _ := setupTestServer(t)

	w := makeRequest(handler, http.MethodPost, "/session/signin", map[string]string{"email": "a@b.com"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleSignIn_InvalidBody(t *testing.T) {
	handler, _ := setupTestServer(t)

	w := makeRequest(handler, http.MethodPost, "/session/signin", "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleSignOut(t *testing.T) {
	handler, manager := setupTestServer(t)
	require.NotNil(t, manager.Snapshot().User)

	w := makeRequest(handler, http.MethodPost, "/session/signout", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	state := manager.Snapshot()
	assert.Nil(t, state.User)
	assert.Nil(t, state.Profile)
}

func TestHandleUpdateProfile(t *testing.T) {
	handler, _ := setupTestServer(t)

	w := makeRequest(handler, http.MethodPatch, "/session/profile", map[string]string{
		"full_name": "New Name",
	})
	assert.Equal(t, http.StatusOK, w.Code)

	var profile core.UserProfile
	require.NoError(t, json.NewDecoder(w.Body).Decode(&profile))
	assert.Equal(t, "New Name", profile.FullName)
}

func TestHandleUpdateProfile_NotAuthenticated(t *testing.T) {
	handler, manager := setupTestServer(t)
	require.NoError(t, manager.SignOut(context.Background()))

	w := makeRequest(handler, http.MethodPatch, "/session/profile", map[string]string{
		"full_name": "New Name",
	})

	assert.Equal(t, http.StatusUnauthorized, w.Code)

	var resp map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "not_authenticated", resp["error"])
}

func TestHandleResetPassword(t *testing.T) {
	handler, _ := setupTestServer(t)

	w := makeRequest(handler, http.MethodPost, "/session/reset-password", map[string]string{
		"email": gateway.MockEmail,
	})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandleResetPassword_MissingEmail(t *testing.T) {
	handler, _ := setupTestServer(t)

	w := makeRequest(handler, http.MethodPost, "/session/reset-password", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleGuard_RedirectsAuthenticatedFromLogin(t *testing.T) {
	handler, _ := setupTestServer(t)

	w := makeRequest(handler, http.MethodGet, "/guard?path=/login", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var decision core.Decision
	require.NoError(t, json.NewDecoder(w.Body).Decode(&decision))
	assert.Equal(t, core.ActionRedirect, decision.Action)
	assert.Equal(t, core.DefaultLandingPath, decision.Location)
}

func TestHandleGuard_RedirectsUnauthenticatedFromProtected(t *testing.T) {
	handler, manager := setupTestServer(t)
	require.NoError(t, manager.SignOut(context.Background()))

	w := makeRequest(handler, http.MethodGet, "/guard?path=/project-dashboard", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var decision core.Decision
	require.NoError(t, json.NewDecoder(w.Body).Decode(&decision))
	assert.Equal(t, core.ActionRedirect, decision.Action)
	assert.Equal(t, core.DefaultLoginPath, decision.Location)
}

func TestHandleGuard_MissingPath(t *testing.T) {
	handler, _ := setupTestServer(t)

	w := makeRequest(handler, http.MethodGet, "/guard", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
