package users

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-storefront/internal/apperr"
)

func TestHTTPIdentityProvider_UpdateUser(t *testing.T) {
	var (
		method, path, auth string
		got                Profile
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path, auth = r.Method, r.URL.EscapedPath(), r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	p := NewHTTPIdentityProvider(srv.URL, "s3cret", time.Second)
	err := p.UpdateUser(context.Background(), "idp|1", Profile{Name: "Ada", Email: "ada@example.com"})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPatch, method)
	assert.Equal(t, "/users/idp%7C1", path)
	assert.Equal(t, "Bearer s3cret", auth)
	assert.Equal(t, "Ada", got.Name)
}

func TestHTTPIdentityProvider_DeleteFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewHTTPIdentityProvider(srv.URL, "s3cret", time.Second).DeleteUser(context.Background(), "idp|1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrUpstream))
	assert.Contains(t, err.Error(), "500")
}
