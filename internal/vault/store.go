// Package vault owns the client-local view of stored credentials: a
// snapshot kept approximately fresh by polling and mutated optimistically
// on user action. Snapshot replacement is guarded by a monotonically
// increasing sequence number so a slow response can never overwrite
// newer state with stale data.
package vault

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/kzotkin/vaultkeep/internal/api"
	"github.com/kzotkin/vaultkeep/internal/audit"
	"github.com/kzotkin/vaultkeep/internal/models"
)

// API is the subset of gateway calls the store issues.
type API interface {
	ListCredentials(ctx context.Context) ([]models.Credential, error)
	AddCredential(ctx context.Context, c models.Credential) error
	EditCredential(ctx context.Context, site, username, password string) error
	DeleteCredential(ctx context.Context, site string) error
}

// ConfirmFunc asks the user a yes/no question before a destructive
// action. A declined confirmation is not an error.
type ConfirmFunc func(prompt string) bool

// NotifyFunc surfaces a transient, dismissible notification.
type NotifyFunc func(msg string)

// AuditLog records vault actions. A nil log disables auditing.
type AuditLog interface {
	Record(ctx context.Context, action, site, status, note string) error
}

// DeleteFunc substitutes the default deletion path. A delegate owns any
// follow-up refresh itself.
type DeleteFunc func(ctx context.Context, site string) error

// EditBuffer is the single in-progress edit. At most one exists at a
// time; starting a new edit silently discards the previous draft.
type EditBuffer struct {
	TargetSite    string
	DraftUsername string
	DraftPassword string
}

// Config wires a Store's collaborators.
type Config struct {
	API     API
	Log     *zap.Logger
	Confirm ConfirmFunc
	Notify  NotifyFunc
	Audit   AuditLog
	// Delete, when set, replaces the default network deletion path.
	Delete DeleteFunc
}

// Store is the authoritative local view of credentials.
type Store struct {
	api      API
	log      *zap.Logger
	confirm  ConfirmFunc
	notify   NotifyFunc
	audit    AuditLog
	deleteFn DeleteFunc

	onAuthFailure func()

	mu       sync.Mutex
	snapshot []models.Credential
	seq      uint64
	applied  uint64
	visible  bool
	edit     *EditBuffer
}

// New constructs a Store. A nil Confirm applies no confirmation gate;
// interactive callers must supply one.
func New(cfg Config) *Store {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	return &Store{
		api:      cfg.API,
		log:      cfg.Log,
		confirm:  cfg.Confirm,
		notify:   cfg.Notify,
		audit:    cfg.Audit,
		deleteFn: cfg.Delete,
	}
}

// SetAuthFailureHandler registers the callback invoked when a call
// reports the auth-failure class, meaning the session cookie is no
// longer valid server-side.
func (s *Store) SetAuthFailureHandler(fn func()) {
	s.onAuthFailure = fn
}

// begin issues the sequence number for a snapshot-producing request.
func (s *Store) begin() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq
}

// apply installs a snapshot unless one from a later request has already
// been applied. An open edit buffer survives the replacement, but is
// silently abandoned when its row disappeared server-side.
func (s *Store) apply(seq uint64, creds []models.Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq <= s.applied {
		s.log.Debug("discarding stale credential snapshot",
			zap.Uint64("seq", seq),
			zap.Uint64("applied", s.applied),
		)
		return
	}
	s.applied = seq
	s.snapshot = creds
	if s.edit != nil && !containsSite(creds, s.edit.TargetSite) {
		s.edit = nil
	}
}

// Refresh fetches the full credential list and replaces the snapshot
// wholesale. On failure the previous snapshot is retained.
func (s *Store) Refresh(ctx context.Context) error {
	seq := s.begin()
	creds, err := s.api.ListCredentials(ctx)
	if err != nil {
		if !s.handleAuthFailure(err) {
			s.log.Warn("credential refresh failed", zap.Error(err))
		}
		return err
	}
	s.apply(seq, creds)
	return nil
}

// Snapshot returns a copy of the current credential view.
func (s *Store) Snapshot() []models.Credential {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Credential, len(s.snapshot))
	copy(out, s.snapshot)
	return out
}

// Has reports whether a credential for site is present locally.
func (s *Store) Has(site string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return containsSite(s.snapshot, site)
}

// Add sends a creation request and refreshes on success so the view
// matches the server's canonical state, including any server-side
// normalization. Site and username must be present; everything beyond
// presence is server-enforced.
func (s *Store) Add(ctx context.Context, site, username, password string) error {
	if strings.TrimSpace(site) == "" || strings.TrimSpace(username) == "" {
		return errors.New("site and username are required")
	}
	err := s.api.AddCredential(ctx, models.Credential{Site: site, Username: username, Password: password})
	if err != nil {
		if !s.handleAuthFailure(err) {
			s.notifyf("Failed to add credential for %s.", site)
		}
		s.record(ctx, audit.ActionAdd, site, audit.StatusFailure, err.Error())
		return err
	}
	s.record(ctx, audit.ActionAdd, site, audit.StatusSuccess, "")
	return s.Refresh(ctx)
}

// BeginEdit opens an edit buffer for site, prefilled from the snapshot.
// Returns false when the site is not present locally.
func (s *Store) BeginEdit(site string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.snapshot {
		if c.Site == site {
			s.edit = &EditBuffer{
				TargetSite:    site,
				DraftUsername: c.Username,
				DraftPassword: c.Password,
			}
			return true
		}
	}
	return false
}

// Edit returns a copy of the open edit buffer, or nil.
func (s *Store) Edit() *EditBuffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.edit == nil {
		return nil
	}
	buf := *s.edit
	return &buf
}

// SetDraft updates the open buffer's draft values.
func (s *Store) SetDraft(username, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.edit == nil {
		return
	}
	s.edit.DraftUsername = username
	s.edit.DraftPassword = password
}

// CancelEdit discards the buffer immediately, with no network call.
func (s *Store) CancelEdit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edit = nil
}

// SaveEdit sends the update for the open buffer. The buffer closes only
// after the server acknowledges; on failure it stays open for retry.
func (s *Store) SaveEdit(ctx context.Context) error {
	s.mu.Lock()
	if s.edit == nil {
		s.mu.Unlock()
		return errors.New("no edit in progress")
	}
	buf := *s.edit
	s.mu.Unlock()

	err := s.api.EditCredential(ctx, buf.TargetSite, buf.DraftUsername, buf.DraftPassword)
	if err != nil {
		if !s.handleAuthFailure(err) {
			s.notifyf("Failed to update %s.", buf.TargetSite)
		}
		s.record(ctx, audit.ActionEdit, buf.TargetSite, audit.StatusFailure, err.Error())
		return err
	}

	s.mu.Lock()
	if s.edit != nil && s.edit.TargetSite == buf.TargetSite {
		s.edit = nil
	}
	s.mu.Unlock()

	s.record(ctx, audit.ActionEdit, buf.TargetSite, audit.StatusSuccess, "")
	return s.Refresh(ctx)
}

// Delete removes the credential for site after confirmation. A site that
// is not present locally (raced away by a refresh) is a silent no-op
// with no network call. When a delete delegate is configured it replaces
// the default call and owns any follow-up refresh.
func (s *Store) Delete(ctx context.Context, site string) error {
	if !s.Has(site) {
		return nil
	}
	if s.confirm != nil && !s.confirm(fmt.Sprintf("Delete credentials for %s?", site)) {
		return nil
	}

	if s.deleteFn != nil {
		return s.deleteFn(ctx, site)
	}

	if err := s.api.DeleteCredential(ctx, site); err != nil {
		if !s.handleAuthFailure(err) {
			s.notifyf("Failed to delete %s.", site)
		}
		s.record(ctx, audit.ActionDelete, site, audit.StatusFailure, err.Error())
		return err
	}
	s.record(ctx, audit.ActionDelete, site, audit.StatusSuccess, "")
	return s.Refresh(ctx)
}

// SetVisibility controls whether plaintext passwords are rendered.
// Purely local; no security guarantee beyond obscuring the rendered
// value.
func (s *Store) SetVisibility(visible bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visible = visible
}

// Visible reports the current password visibility.
func (s *Store) Visible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visible
}

// Clear drops the snapshot and any open edit buffer. The sequence is
// advanced past every outstanding request so an in-flight response
// cannot resurrect cleared data.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.applied = s.seq
	s.snapshot = nil
	s.edit = nil
}

func (s *Store) handleAuthFailure(err error) bool {
	if errors.Is(err, api.ErrSessionExpired) {
		if s.onAuthFailure != nil {
			s.onAuthFailure()
		}
		return true
	}
	return false
}

func (s *Store) notifyf(format string, args ...any) {
	if s.notify != nil {
		s.notify(fmt.Sprintf(format, args...))
	}
}

func (s *Store) record(ctx context.Context, action, site, status, note string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, action, site, status, note); err != nil {
		s.log.Warn("audit write failed", zap.Error(err))
	}
}

func containsSite(creds []models.Credential, site string) bool {
	for _, c := range creds {
		if c.Site == site {
			return true
		}
	}
	return false
}
