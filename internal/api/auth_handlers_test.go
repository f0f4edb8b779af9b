package api

import (
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterHandler(t *testing.T) {
	server := setupTestServer(t)

	tests := []struct {
		name       string
		path       string
		body       interface{}
		wantStatus int
		wantError  string
	}{
		{
			name:       "successful registration",
			path:       "/api/v1/auth/register",
			body:       RegisterRequest{Username: "moyo", Password: "Demo@123"},
			wantStatus: http.StatusCreated,
		},
		{
			name:       "duplicate username",
			path:       "/api/v1/auth/register",
			body:       RegisterRequest{Username: "moyo", Password: "Demo@123"},
			wantStatus: http.StatusConflict,
			wantError:  "already exists",
		},
		{
			name:       "signup alias",
			path:       "/api/v1/auth/signup",
			body:       RegisterRequest{Username: "ada", Password: "Demo@123"},
			wantStatus: http.StatusCreated,
		},
		{
			name:       "short password",
			path:       "/api/v1/auth/register",
			body:       RegisterRequest{Username: "tunde", Password: "short"},
			wantStatus: http.StatusBadRequest,
			wantError:  "password",
		},
		{
			name:       "short username",
			path:       "/api/v1/auth/register",
			body:       RegisterRequest{Username: "ab", Password: "Demo@123"},
			wantStatus: http.StatusBadRequest,
			wantError:  "username",
		},
		{
			name:       "missing password",
			path:       "/api/v1/auth/register",
			body:       map[string]string{"username": "kemi"},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, server, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())

			if tt.wantStatus >= http.StatusBadRequest {
				var resp ErrorResponse
				decodeBody(t, w, &resp)
				assert.NotEmpty(t, resp.Error)
				if tt.wantError != "" {
					assert.Contains(t, resp.Error, tt.wantError)
				}
				return
			}

			var user UserInfo
			decodeBody(t, w, &user)
			assert.NotZero(t, user.ID)
			assert.False(t, user.IsGuest)
		})
	}
}

func TestLoginHandler(t *testing.T) {
	server := setupTestServer(t)
	w := doRequest(t, server, http.MethodPost, "/api/v1/auth/register", RegisterRequest{Username: "moyo", Password: "Demo@123"})
	require.Equal(t, http.StatusCreated, w.Code)

	t.Run("success sets session cookie", func(t *testing.T) {
		w := doRequest(t, server, http.MethodPost, "/api/v1/auth/login", LoginRequest{Username: "moyo", Password: "Demo@123"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp LoginResponse
		decodeBody(t, w, &resp)
		assert.NotEmpty(t, resp.Token)
		assert.Equal(t, "moyo", resp.User.Username)
		assert.WithinDuration(t, time.Now().Add(24*time.Hour), resp.ExpiresAt, time.Minute)

		var found bool
		for _, c := range w.Result().Cookies() {
			if c.Name == server.config.JWT.CookieName {
				found = true
				assert.Equal(t, resp.Token, c.Value)
				assert.True(t, c.HttpOnly)
			}
		}
		assert.True(t, found, "session cookie not set")
	})

	t.Run("wrong password", func(t *testing.T) {
		w := doRequest(t, server, http.MethodPost, "/api/v1/auth/login", LoginRequest{Username: "moyo", Password: "nope-nope"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)

		var resp ErrorResponse
		decodeBody(t, w, &resp)
		assert.Contains(t, resp.Error, "invalid credentials")
	})

	t.Run("unknown user", func(t *testing.T) {
		w := doRequest(t, server, http.MethodPost, "/api/v1/auth/login", LoginRequest{Username: "ghost", Password: "Demo@123"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("system user cannot log in", func(t *testing.T) {
		w := doRequest(t, server, http.MethodPost, "/api/v1/auth/login", LoginRequest{Username: "system", Password: "anything"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestAuthMiddleware(t *testing.T) {
	server := setupTestServer(t)
	token := login(t, server, "moyo")

	t.Run("no credentials", func(t *testing.T) {
		w := doRequest(t, server, http.MethodGet, "/api/v1/auth/me", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("malformed header", func(t *testing.T) {
		w := doRequest(t, server, http.MethodGet, "/api/v1/auth/me", nil, func(r *http.Request) {
			r.Header.Set("Authorization", "Token abc")
		})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("invalid token", func(t *testing.T) {
		w := doRequest(t, server, http.MethodGet, "/api/v1/auth/me", nil, withToken("not-a-jwt"))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("bearer token", func(t *testing.T) {
		w := doRequest(t, server, http.MethodGet, "/api/v1/auth/me", nil, withToken(token))
		require.Equal(t, http.StatusOK, w.Code)

		var resp MeResponse
		decodeBody(t, w, &resp)
		assert.True(t, resp.Authenticated)
		assert.Equal(t, authTypeBearer, resp.AuthType)
		assert.Equal(t, "moyo", resp.User.Username)
	})

	t.Run("session cookie", func(t *testing.T) {
		cookie := &http.Cookie{Name: server.config.JWT.CookieName, Value: token}
		w := doRequest(t, server, http.MethodGet, "/api/v1/auth/me", nil, withCookie(cookie))
		require.Equal(t, http.StatusOK, w.Code)

		var resp MeResponse
		decodeBody(t, w, &resp)
		assert.Equal(t, authTypeCookie, resp.AuthType)
	})

	t.Run("expired token", func(t *testing.T) {
		user, err := server.authService.AuthenticateUser("moyo", "Demo@123")
		require.NoError(t, err)

		server.authService.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }
		defer func() { server.authService.now = time.Now }()
		expired, _, err := server.authService.GenerateToken(user)
		require.NoError(t, err)

		w := doRequest(t, server, http.MethodGet, "/api/v1/auth/me", nil, withToken(expired))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestGuestAndLogout(t *testing.T) {
	server := setupTestServer(t)

	w := doRequest(t, server, http.MethodPost, "/api/v1/auth/guest", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp LoginResponse
	decodeBody(t, w, &resp)
	assert.True(t, resp.User.IsGuest)
	assert.Contains(t, resp.User.Username, "guest-")

	w = doRequest(t, server, http.MethodGet, "/api/v1/auth/me", nil, withToken(resp.Token))
	require.Equal(t, http.StatusOK, w.Code)
	var me MeResponse
	decodeBody(t, w, &me)
	assert.True(t, me.User.IsGuest)

	// a second guest is a different user
	w = doRequest(t, server, http.MethodPost, "/api/v1/auth/guest", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var second LoginResponse
	decodeBody(t, w, &second)
	assert.NotEqual(t, resp.User.ID, second.User.ID)

	w = doRequest(t, server, http.MethodPost, "/api/v1/auth/logout", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var cleared bool
	for _, c := range w.Result().Cookies() {
		if c.Name == server.config.JWT.CookieName {
			cleared = c.MaxAge < 0 && c.Value == ""
		}
	}
	assert.True(t, cleared, "session cookie not cleared")
}

func TestAPIKeyHandlers(t *testing.T) {
	server := setupTestServer(t)
	token := login(t, server, "moyo")

	w := doRequest(t, server, http.MethodPost, "/api/v1/keys", CreateAPIKeyRequest{Name: "Phone shortcut"}, withToken(token))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created APIKeyResponse
	decodeBody(t, w, &created)
	assert.Len(t, created.Key, 64)
	assert.Equal(t, "Phone shortcut", created.Name)
	assert.Contains(t, created.Permissions, "tasks:write")

	t.Run("list hides the key", func(t *testing.T) {
		w := doRequest(t, server, http.MethodGet, "/api/v1/keys", nil, withToken(token))
		require.Equal(t, http.StatusOK, w.Code)

		var keys []APIKeyResponse
		decodeBody(t, w, &keys)
		require.Len(t, keys, 1)
		assert.Empty(t, keys[0].Key)
		assert.Equal(t, created.ID, keys[0].ID)
	})

	t.Run("key authenticates", func(t *testing.T) {
		w := doRequest(t, server, http.MethodGet, "/api/v1/auth/me", nil, withAPIKey(created.Key))
		require.Equal(t, http.StatusOK, w.Code)

		var me MeResponse
		decodeBody(t, w, &me)
		assert.Equal(t, authTypeAPIKey, me.AuthType)
		assert.Equal(t, "moyo", me.User.Username)
	})

	t.Run("missing name", func(t *testing.T) {
		w := doRequest(t, server, http.MethodPost, "/api/v1/keys", map[string]string{}, withToken(token))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("other users cannot delete it", func(t *testing.T) {
		other := login(t, server, "ada")
		w := doRequest(t, server, http.MethodDelete, "/api/v1/keys/"+strconv.Itoa(int(created.ID)), nil, withToken(other))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("delete", func(t *testing.T) {
		path := "/api/v1/keys/" + strconv.Itoa(int(created.ID))
		w := doRequest(t, server, http.MethodDelete, path, nil, withToken(token))
		assert.Equal(t, http.StatusNoContent, w.Code)

		w = doRequest(t, server, http.MethodDelete, path, nil, withToken(token))
		assert.Equal(t, http.StatusNotFound, w.Code)

		w = doRequest(t, server, http.MethodGet, "/api/v1/auth/me", nil, withAPIKey(created.Key))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("bad id", func(t *testing.T) {
		w := doRequest(t, server, http.MethodDelete, "/api/v1/keys/abc", nil, withToken(token))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
