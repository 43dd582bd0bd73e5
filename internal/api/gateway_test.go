package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kzotkin/vaultkeep/internal/models"
)

func newGateway(t *testing.T, handler http.Handler) (*Gateway, *httptest.Server) {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	g, err := New(ts.URL, 0, nil)
	require.NoError(t, err)
	return g, ts
}

func TestSubmitMasterParsesStatus(t *testing.T) {
	g, _ := newGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/", r.URL.Path)
		assert.Equal(t, "hunter2", r.PostFormValue("master"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "2fa_required"})
	}))

	status, err := g.SubmitMaster(context.Background(), "hunter2")

	require.NoError(t, err)
	assert.Equal(t, StatusMFARequired, status)
}

func TestSubmitMasterMalformedReply(t *testing.T) {
	g, _ := newGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not-json"))
	}))

	_, err := g.SubmitMaster(context.Background(), "hunter2")

	require.ErrorIs(t, err, ErrProtocol)
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, ErrSessionExpired},
		{"forbidden", http.StatusForbidden, ErrSessionExpired},
		{"server error", http.StatusInternalServerError, ErrRejected},
		{"not found", http.StatusNotFound, ErrRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, _ := newGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))

			_, err := g.ListCredentials(context.Background())

			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestTransportFailureIsNetworkError(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	g, err := New(ts.URL, 0, nil)
	require.NoError(t, err)
	ts.Close()

	_, err = g.ListCredentials(context.Background())

	require.ErrorIs(t, err, ErrNetwork)
}

func TestSessionCookiePersistsAcrossCalls(t *testing.T) {
	g, _ := newGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			http.SetCookie(w, &http.Cookie{Name: "vault_session", Value: "tok", Path: "/"})
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "2fa_required"})
		case "/api/credentials":
			c, err := r.Cookie("vault_session")
			if err != nil || c.Value != "tok" {
				http.Error(w, "authentication required", http.StatusUnauthorized)
				return
			}
			_ = json.NewEncoder(w).Encode(models.CredentialList{})
		}
	}))

	_, err := g.SubmitMaster(context.Background(), "hunter2")
	require.NoError(t, err)

	_, err = g.ListCredentials(context.Background())
	require.NoError(t, err)
}

func TestListCredentialsDecodesReply(t *testing.T) {
	want := []models.Credential{{Site: "a", Username: "alice", Password: "pw"}}
	g, _ := newGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/credentials", r.URL.Path)
		_ = json.NewEncoder(w).Encode(models.CredentialList{Credentials: want})
	}))

	got, err := g.ListCredentials(context.Background())

	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestEditEscapesSiteKey(t *testing.T) {
	var escaped string
	g, _ := newGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		escaped = r.URL.EscapedPath()
		w.WriteHeader(http.StatusNoContent)
	}))

	err := g.EditCredential(context.Background(), "my site/x", "alice", "pw")

	require.NoError(t, err)
	assert.Equal(t, "/edit/my%20site%2Fx", escaped)
}

func TestDeleteHitsSitePath(t *testing.T) {
	var path string
	g, _ := newGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.EscapedPath()
		assert.Equal(t, http.MethodPost, r.Method)
		w.WriteHeader(http.StatusNoContent)
	}))

	require.NoError(t, g.DeleteCredential(context.Background(), "example.com"))
	assert.Equal(t, "/delete/example.com", path)
}

func TestAddCredentialSendsJSON(t *testing.T) {
	var got models.Credential
	g, _ := newGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/add-credential", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))

	err := g.AddCredential(context.Background(), models.Credential{Site: "a", Username: "alice", Password: "pw"})

	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
}

func TestExportReturnsOpaquePayload(t *testing.T) {
	g, _ := newGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/export", r.URL.Path)
		_, _ = w.Write([]byte("Site: a\n"))
	}))

	data, err := g.Export(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "Site: a\n", string(data))
}
