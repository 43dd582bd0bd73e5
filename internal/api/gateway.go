// Package api implements the HTTP gateway to the vault service. All
// calls share one cookie jar; the session cookie is the only state
// carried between requests.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kzotkin/vaultkeep/internal/models"
)

const (
	pathLogin       = "/"
	pathQRCode      = "/qrcode"
	pathVerify      = "/verify-2fa"
	pathCredentials = "/api/credentials"
	pathAdd         = "/add-credential"
	pathEdit        = "/edit/"
	pathDelete      = "/delete/"
	pathResetVault  = "/reset-vault"
	pathForceReset  = "/force-reset"
	pathExport      = "/export"
	pathLogout      = "/logout"
)

// StatusMFARequired is the only success shape the login endpoint may
// return.
const StatusMFARequired = "2fa_required"

// DefaultTimeout bounds every request; expiry is reported as ErrNetwork.
const DefaultTimeout = 30 * time.Second

const (
	contentForm = "application/x-www-form-urlencoded"
	contentJSON = "application/json"
)

// Gateway performs authenticated HTTP calls against the vault service.
type Gateway struct {
	base   string
	client *http.Client
	log    *zap.Logger
}

// New constructs a Gateway for the given base URL. A non-positive
// timeout selects DefaultTimeout.
func New(baseURL string, timeout time.Duration, log *zap.Logger) (*Gateway, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	return &Gateway{
		base:   strings.TrimRight(baseURL, "/"),
		client: &http.Client{Jar: jar, Timeout: timeout},
		log:    log,
	}, nil
}

// do issues one request and classifies the outcome. The caller owns the
// response body on success.
func (g *Gateway) do(ctx context.Context, method, path, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, g.base+path, body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	reqID := uuid.NewString()
	req.Header.Set("X-Request-ID", reqID)

	resp, err := g.client.Do(req)
	if err != nil {
		g.log.Debug("request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.String("request_id", reqID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%s %s: %w", method, path, ErrNetwork)
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		drain(resp)
		return nil, fmt.Errorf("%s %s: %w", method, path, ErrSessionExpired)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		drain(resp)
		return nil, fmt.Errorf("%s %s: status %d: %w", method, path, resp.StatusCode, ErrRejected)
	}
	return resp, nil
}

// doDiscard is do for endpoints whose success body carries no information.
func (g *Gateway) doDiscard(ctx context.Context, method, path, contentType string, body io.Reader) error {
	resp, err := g.do(ctx, method, path, contentType, body)
	if err != nil {
		return err
	}
	drain(resp)
	return nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

// SubmitMaster posts the candidate master password and returns the
// status field of the reply. Interpreting the status is the session
// controller's job; the contract allows exactly one success shape.
func (g *Gateway) SubmitMaster(ctx context.Context, master string) (string, error) {
	form := url.Values{"master": {master}}
	resp, err := g.do(ctx, http.MethodPost, pathLogin, contentForm, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	defer drain(resp)

	var reply struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return "", fmt.Errorf("login reply: %w", ErrProtocol)
	}
	return reply.Status, nil
}

// FetchQRCode retrieves the TOTP provisioning artifact as a raw PNG.
func (g *Gateway) FetchQRCode(ctx context.Context) ([]byte, error) {
	resp, err := g.do(ctx, http.MethodGet, pathQRCode, "", nil)
	if err != nil {
		return nil, err
	}
	defer drain(resp)

	png, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read qr payload: %w", ErrNetwork)
	}
	return png, nil
}

// VerifyCode submits a TOTP code for the pending session.
func (g *Gateway) VerifyCode(ctx context.Context, code string) error {
	form := url.Values{"code": {code}}
	return g.doDiscard(ctx, http.MethodPost, pathVerify, contentForm, strings.NewReader(form.Encode()))
}

// ListCredentials fetches the full credential list.
func (g *Gateway) ListCredentials(ctx context.Context) ([]models.Credential, error) {
	resp, err := g.do(ctx, http.MethodGet, pathCredentials, "", nil)
	if err != nil {
		return nil, err
	}
	defer drain(resp)

	var reply models.CredentialList
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, fmt.Errorf("credential list reply: %w", ErrProtocol)
	}
	return reply.Credentials, nil
}

// AddCredential creates a new credential.
func (g *Gateway) AddCredential(ctx context.Context, c models.Credential) error {
	b, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode credential: %w", err)
	}
	return g.doDiscard(ctx, http.MethodPost, pathAdd, contentJSON, bytes.NewReader(b))
}

// EditCredential updates the credential keyed by site.
func (g *Gateway) EditCredential(ctx context.Context, site, username, password string) error {
	b, err := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return fmt.Errorf("encode credential: %w", err)
	}
	return g.doDiscard(ctx, http.MethodPost, pathEdit+url.PathEscape(site), contentJSON, bytes.NewReader(b))
}

// DeleteCredential removes the credential keyed by site.
func (g *Gateway) DeleteCredential(ctx context.Context, site string) error {
	return g.doDiscard(ctx, http.MethodPost, pathDelete+url.PathEscape(site), "", nil)
}

// ResetVault clears all server-side credentials; the session survives.
func (g *Gateway) ResetVault(ctx context.Context) error {
	return g.doDiscard(ctx, http.MethodPost, pathResetVault, "", nil)
}

// ForceReset wipes the vault for re-provisioning; the session ends.
func (g *Gateway) ForceReset(ctx context.Context) error {
	return g.doDiscard(ctx, http.MethodPost, pathForceReset, "", nil)
}

// Export downloads the plaintext export. The payload is an opaque file,
// never parsed by the client.
func (g *Gateway) Export(ctx context.Context) ([]byte, error) {
	resp, err := g.do(ctx, http.MethodGet, pathExport, "", nil)
	if err != nil {
		return nil, err
	}
	defer drain(resp)

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read export: %w", ErrNetwork)
	}
	return data, nil
}

// Logout invalidates the server-side session.
func (g *Gateway) Logout(ctx context.Context) error {
	return g.doDiscard(ctx, http.MethodGet, pathLogout, "", nil)
}
