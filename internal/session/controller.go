// Package session owns the authentication lifecycle for one client
// instance: master password submission, TOTP verification, provisioning
// artifact caching, and the two destructive reset operations.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/kzotkin/vaultkeep/internal/api"
	"github.com/kzotkin/vaultkeep/internal/audit"
)

// Phase is the authentication lifecycle state.
type Phase int

const (
	// Unauthenticated is the state before a master password is accepted.
	Unauthenticated Phase = iota
	// MfaPending is the state between password acceptance and code
	// verification.
	MfaPending
	// Authenticated is the only state in which vault contents are
	// reachable.
	Authenticated
)

func (p Phase) String() string {
	switch p {
	case Unauthenticated:
		return "unauthenticated"
	case MfaPending:
		return "mfa_pending"
	case Authenticated:
		return "authenticated"
	}
	return "unknown"
}

// ErrBusy is returned when an auth-affecting request is already in
// flight. At most one is outstanding at a time.
var ErrBusy = errors.New("another request is in flight")

// API is the subset of gateway calls the controller issues.
type API interface {
	SubmitMaster(ctx context.Context, master string) (string, error)
	FetchQRCode(ctx context.Context) ([]byte, error)
	VerifyCode(ctx context.Context, code string) error
	Logout(ctx context.Context) error
	ResetVault(ctx context.Context) error
	ForceReset(ctx context.Context) error
}

// VaultState is the credential state torn down alongside the session.
type VaultState interface {
	Clear()
}

// ConfirmFunc asks the user a yes/no question before a destructive
// action. A declined confirmation is not an error.
type ConfirmFunc func(prompt string) bool

// NotifyFunc surfaces a transient, dismissible notification.
type NotifyFunc func(msg string)

// AuditLog records session actions. A nil log disables auditing.
type AuditLog interface {
	Record(ctx context.Context, action, site, status, note string) error
}

// Phase-scoped failure messages shown to the user.
const (
	msgIncorrectPassword = "Incorrect master password."
	msgUnexpectedReply   = "Unexpected response from server."
	msgInvalidCode       = "Invalid 2FA code."
)

// Config wires a Controller's collaborators.
type Config struct {
	API     API
	Store   VaultState
	Log     *zap.Logger
	Confirm ConfirmFunc
	Notify  NotifyFunc
	Audit   AuditLog
	// OnTeardown fires on every transition out of Authenticated, so the
	// UI can stop polling and close the vault view.
	OnTeardown func()
}

// Controller is the session state machine. States are Unauthenticated,
// MfaPending, and Authenticated; there are no others and no concurrent
// sub-states.
type Controller struct {
	api        API
	store      VaultState
	log        *zap.Logger
	confirm    ConfirmFunc
	notify     NotifyFunc
	audit      AuditLog
	onTeardown func()

	mu        sync.Mutex
	phase     Phase
	lastError string
	artifact  []byte
	inFlight  bool
}

// New constructs a Controller in Unauthenticated.
func New(cfg Config) *Controller {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	return &Controller{
		api:        cfg.API,
		store:      cfg.Store,
		log:        cfg.Log,
		confirm:    cfg.Confirm,
		notify:     cfg.Notify,
		audit:      cfg.Audit,
		onTeardown: cfg.OnTeardown,
	}
}

// Phase reports the current lifecycle phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// LastError reports the failure reason from the last phase-scoped
// operation. Cleared on every successful transition.
func (c *Controller) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}

// SubmitMasterPassword sends the candidate to the login endpoint. The
// contract defines exactly one success shape, "2fa_required". Any other
// reply, including a bare success, is protocol-invalid: there is no
// direct unauthenticated-to-authenticated transition.
func (c *Controller) SubmitMasterPassword(ctx context.Context, candidate string) error {
	if err := c.begin(Unauthenticated); err != nil {
		return err
	}
	defer c.end()

	status, err := c.api.SubmitMaster(ctx, candidate)
	if err != nil {
		c.setError(msgIncorrectPassword)
		c.record(ctx, audit.ActionLogin, "", audit.StatusFailure, "master password rejected")
		return err
	}
	if status != api.StatusMFARequired {
		c.setError(msgUnexpectedReply)
		c.record(ctx, audit.ActionLogin, "", audit.StatusFailure, "unexpected login reply")
		return fmt.Errorf("login status %q: %w", status, api.ErrProtocol)
	}

	c.mu.Lock()
	c.phase = MfaPending
	c.lastError = ""
	c.artifact = nil
	c.mu.Unlock()
	return nil
}

// ProvisioningArtifact returns the QR payload for registering a TOTP
// generator, fetching it on first use and caching it for the rest of the
// MfaPending phase. A fetch failure leaves the artifact absent; it is a
// recoverable condition and callers may simply ask again.
func (c *Controller) ProvisioningArtifact(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	if c.phase != MfaPending {
		c.mu.Unlock()
		return nil, fmt.Errorf("no provisioning artifact in phase %s", c.phase)
	}
	if c.artifact != nil {
		art := c.artifact
		c.mu.Unlock()
		return art, nil
	}
	c.mu.Unlock()

	art, err := c.api.FetchQRCode(ctx)
	if err != nil {
		c.log.Warn("provisioning artifact fetch failed", zap.Error(err))
		return nil, err
	}

	c.mu.Lock()
	// Discard if the phase moved on while the fetch was in flight.
	if c.phase == MfaPending {
		c.artifact = art
	}
	c.mu.Unlock()
	return art, nil
}

// SubmitMfaCode verifies the TOTP code. On acknowledgment the session
// becomes Authenticated and the provisioning artifact is discarded. On
// rejection the artifact is preserved so the user can re-scan without a
// refetch.
func (c *Controller) SubmitMfaCode(ctx context.Context, code string) error {
	if err := c.begin(MfaPending); err != nil {
		return err
	}
	defer c.end()

	if err := c.api.VerifyCode(ctx, code); err != nil {
		c.setError(msgInvalidCode)
		c.record(ctx, audit.ActionLogin, "", audit.StatusFailure, "2fa code rejected")
		return err
	}

	c.mu.Lock()
	c.phase = Authenticated
	c.artifact = nil
	c.lastError = ""
	c.mu.Unlock()
	c.record(ctx, audit.ActionLogin, "", audit.StatusSuccess, "")
	return nil
}

// Logout ends the session. The server call is fire-and-forget: failing
// to invalidate the server-side session must not trap the user in the
// UI, so the controller always ends Unauthenticated.
func (c *Controller) Logout(ctx context.Context) error {
	if err := c.begin(Authenticated); err != nil {
		return err
	}
	defer c.end()

	if err := c.api.Logout(ctx); err != nil {
		c.log.Warn("logout call failed", zap.Error(err))
	}
	c.teardown()
	c.record(ctx, audit.ActionLogout, "", audit.StatusSuccess, "")
	return nil
}

// ForceReset wipes the vault for re-provisioning a lost device. Valid in
// any phase behind a confirmation gate; on success the session always
// ends. Failure surfaces a transient notification and leaves the phase
// alone: this is a side operation, not a phase transition.
func (c *Controller) ForceReset(ctx context.Context) error {
	if err := c.beginAny(); err != nil {
		return err
	}
	defer c.end()

	if c.confirm != nil && !c.confirm("Force reset the vault? This deletes all data and ends the session.") {
		return nil
	}

	if err := c.api.ForceReset(ctx); err != nil {
		c.notifyMsg("Failed to reset the vault.")
		c.record(ctx, audit.ActionForceReset, "", audit.StatusFailure, err.Error())
		return err
	}
	c.record(ctx, audit.ActionForceReset, "", audit.StatusSuccess, "")
	c.teardown()
	return nil
}

// ResetVault clears all stored credentials while staying logged in. The
// session remains authenticated against an empty vault, unlike
// ForceReset which ends it.
func (c *Controller) ResetVault(ctx context.Context) error {
	if err := c.begin(Authenticated); err != nil {
		return err
	}
	defer c.end()

	if c.confirm != nil && !c.confirm("Reset the vault? This deletes all stored credentials.") {
		return nil
	}

	if err := c.api.ResetVault(ctx); err != nil {
		c.notifyMsg("Failed to reset the vault.")
		c.record(ctx, audit.ActionResetVault, "", audit.StatusFailure, err.Error())
		return err
	}
	if c.store != nil {
		c.store.Clear()
	}
	c.record(ctx, audit.ActionResetVault, "", audit.StatusSuccess, "")
	return nil
}

// Invalidate tears the session down after an API call reported the
// auth-failure class, meaning the server no longer honors the cookie.
func (c *Controller) Invalidate() {
	c.log.Info("session invalidated by server")
	c.teardown()
}

// teardown resets to Unauthenticated and discards all session data.
func (c *Controller) teardown() {
	c.mu.Lock()
	wasAuthenticated := c.phase == Authenticated
	c.phase = Unauthenticated
	c.artifact = nil
	c.lastError = ""
	c.mu.Unlock()

	if c.store != nil {
		c.store.Clear()
	}
	if wasAuthenticated && c.onTeardown != nil {
		c.onTeardown()
	}
}

func (c *Controller) begin(want Phase) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != want {
		return fmt.Errorf("operation not valid in phase %s", c.phase)
	}
	return c.beginLocked()
}

func (c *Controller) beginAny() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.beginLocked()
}

func (c *Controller) beginLocked() error {
	if c.inFlight {
		return ErrBusy
	}
	c.inFlight = true
	return nil
}

func (c *Controller) end() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight = false
}

func (c *Controller) setError(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastError = msg
}

func (c *Controller) notifyMsg(msg string) {
	if c.notify != nil {
		c.notify(msg)
	}
}

func (c *Controller) record(ctx context.Context, action, site, status, note string) {
	if c.audit == nil {
		return
	}
	if err := c.audit.Record(ctx, action, site, status, note); err != nil {
		c.log.Warn("audit write failed", zap.Error(err))
	}
}
