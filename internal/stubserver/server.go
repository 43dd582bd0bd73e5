// Package stubserver provides an in-memory implementation of the vault
// service contract for local development and integration tests. It is
// not a production store: credentials live in a map and vanish on exit.
package stubserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/kzotkin/vaultkeep/internal/middleware"
	"github.com/kzotkin/vaultkeep/internal/models"
)

const sessionCookie = "vault_session"

type sessionState struct {
	verified bool
}

// Server holds the stub vault state.
type Server struct {
	log *zap.Logger

	mu       sync.Mutex
	master   string
	key      *otp.Key
	creds    map[string]models.Credential
	sessions map[string]*sessionState
}

// New creates a stub server. An empty master password means the first
// submitted one is adopted, mirroring first-time setup.
func New(master string, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}
	key, err := newTOTPKey()
	if err != nil {
		return nil, err
	}
	return &Server{
		log:      log,
		master:   master,
		key:      key,
		creds:    map[string]models.Credential{},
		sessions: map[string]*sessionState{},
	}, nil
}

func newTOTPKey() (*otp.Key, error) {
	key, err := totp.Generate(totp.GenerateOpts{Issuer: "vaultkeep", AccountName: "vault"})
	if err != nil {
		return nil, fmt.Errorf("generate totp key: %w", err)
	}
	return key, nil
}

// TOTPSecret exposes the current shared secret so operators can register
// it manually and tests can compute codes.
func (s *Server) TOTPSecret() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key.Secret()
}

// Router builds the HTTP handler implementing the vault contract.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.WithRequestLogging(s.log))

	// Reachable without a session: the login form and the lost-device
	// reset button both live on the login page.
	r.Post("/", s.handleLogin)
	r.Post("/force-reset", s.handleForceReset)

	// Reachable with a pending (unverified) session.
	r.Group(func(r chi.Router) {
		r.Use(s.requireSession(false))
		r.Get("/qrcode", s.handleQRCode)
		r.Post("/verify-2fa", s.handleVerify)
	})

	// Vault routes require a verified session.
	r.Group(func(r chi.Router) {
		r.Use(s.requireSession(true))
		r.Get("/api/credentials", s.handleList)
		r.Post("/add-credential", s.handleAdd)
		r.Post("/edit/{site}", s.handleEdit)
		r.Post("/delete/{site}", s.handleDelete)
		r.Post("/reset-vault", s.handleResetVault)
		r.Get("/export", s.handleExport)
		r.Get("/logout", s.handleLogout)
	})

	return r
}

func (s *Server) requireSession(verified bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := s.session(r)
			if sess == nil || (verified && !sess.verified) {
				http.Error(w, "authentication required", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) session(r *http.Request) *sessionState {
	c, err := r.Cookie(sessionCookie)
	if err != nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[c.Value]
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	master := r.PostFormValue("master")
	if master == "" {
		http.Error(w, "master password required", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	if s.master == "" {
		// First-time setup adopts the submitted master password.
		s.master = master
	}
	ok := master == s.master
	var token string
	if ok {
		token = uuid.NewString()
		s.sessions[token] = &sessionState{}
	}
	s.mu.Unlock()

	if !ok {
		http.Error(w, "incorrect master password", http.StatusUnauthorized)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
	})
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "2fa_required"})
}

// handleQRCode serves the provisioning artifact as a direct PNG.
func (s *Server) handleQRCode(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	uri := s.key.URL()
	s.mu.Unlock()

	png, err := qrcode.Encode(uri, qrcode.Medium, 256)
	if err != nil {
		http.Error(w, "qr encoding failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	code := r.PostFormValue("code")

	s.mu.Lock()
	secret := s.key.Secret()
	s.mu.Unlock()

	if !totp.Validate(code, secret) {
		http.Error(w, "invalid code", http.StatusUnauthorized)
		return
	}

	sess := s.session(r)
	s.mu.Lock()
	sess.verified = true
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := make([]models.Credential, 0, len(s.creds))
	for _, c := range s.creds {
		out = append(out, c)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Site < out[j].Site })

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(models.CredentialList{Credentials: out})
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	var c models.Credential
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(c.Site) == "" || strings.TrimSpace(c.Username) == "" {
		http.Error(w, "site and username are required", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.creds[c.Site] = c
	s.mu.Unlock()
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	site := siteParam(r)
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	_, ok := s.creds[site]
	if ok {
		s.creds[site] = models.Credential{Site: site, Username: body.Username, Password: body.Password}
	}
	s.mu.Unlock()

	if !ok {
		http.Error(w, "no credentials for site", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	site := siteParam(r)

	s.mu.Lock()
	_, ok := s.creds[site]
	delete(s.creds, site)
	s.mu.Unlock()

	if !ok {
		http.Error(w, "no credentials for site", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResetVault(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.creds = map[string]models.Credential{}
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

// handleForceReset wipes everything: credentials, master password,
// sessions, and the TOTP secret. The next login re-provisions the vault.
func (s *Server) handleForceReset(w http.ResponseWriter, r *http.Request) {
	key, err := newTOTPKey()
	if err != nil {
		http.Error(w, "reset failed", http.StatusInternalServerError)
		return
	}

	s.mu.Lock()
	s.creds = map[string]models.Credential{}
	s.sessions = map[string]*sessionState{}
	s.master = ""
	s.key = key
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	sites := make([]string, 0, len(s.creds))
	for site := range s.creds {
		sites = append(sites, site)
	}
	sort.Strings(sites)

	var b strings.Builder
	for _, site := range sites {
		c := s.creds[site]
		fmt.Fprintf(&b, "Site: %s\n  Username: %s\n  Password: %s\n\n", c.Site, c.Username, c.Password)
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="vault_export.txt"`)
	_, _ = w.Write([]byte(b.String()))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(sessionCookie); err == nil {
		s.mu.Lock()
		delete(s.sessions, c.Value)
		s.mu.Unlock()
	}
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "", Path: "/", MaxAge: -1})
	w.WriteHeader(http.StatusOK)
}

func siteParam(r *http.Request) string {
	site := chi.URLParam(r, "site")
	if dec, err := url.PathUnescape(site); err == nil {
		site = dec
	}
	return site
}
