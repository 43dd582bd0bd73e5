// Command vaultkeep is the interactive client shell for the vault
// service: login with master password and TOTP, then manage credentials.
package main

import (
	"bufio"
	"cmp"
	"context"
	"flag"
	"fmt"
	stdlog "log"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kzotkin/vaultkeep/internal/api"
	"github.com/kzotkin/vaultkeep/internal/audit"
	"github.com/kzotkin/vaultkeep/internal/config"
	"github.com/kzotkin/vaultkeep/internal/logger"
	"github.com/kzotkin/vaultkeep/internal/passgen"
	"github.com/kzotkin/vaultkeep/internal/session"
	"github.com/kzotkin/vaultkeep/internal/vault"
)

var (
	version   string
	buildDate string
)

func main() {
	var showVer bool
	flag.BoolVar(&showVer, "version", false, "show build version and date")
	opts := config.Parse()

	if showVer {
		fmt.Printf("vaultkeep\nVersion: %s\nBuild Date: %s\n", cmp.Or(version, "N/A"), cmp.Or(buildDate, "N/A"))
		return
	}

	log := logger.New()
	if err := log.Init(opts.LogLevel); err != nil {
		stdlog.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = log.Log.Sync() }()
	zapLogger := log.Log

	gw, err := api.New(opts.BaseURL, time.Duration(opts.TimeoutSeconds)*time.Second, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed to init gateway", zap.Error(err))
	}

	var rec *audit.Recorder
	if opts.AuditPath != "" {
		rec, err = audit.Open(opts.AuditPath)
		if err != nil {
			zapLogger.Warn("audit log unavailable", zap.Error(err))
			rec = nil
		} else {
			defer func() { _ = rec.Close() }()
		}
	}

	scanner := bufio.NewScanner(os.Stdin)
	confirm := func(prompt string) bool {
		fmt.Printf("%s [y/N]: ", prompt)
		if !scanner.Scan() {
			return false
		}
		ans := strings.ToLower(strings.TrimSpace(scanner.Text()))
		return ans == "y" || ans == "yes"
	}
	notify := func(msg string) {
		fmt.Println(msg)
	}

	storeCfg := vault.Config{API: gw, Log: zapLogger, Confirm: confirm, Notify: notify}
	if rec != nil {
		storeCfg.Audit = rec
	}
	store := vault.New(storeCfg)
	poller := vault.NewPoller(store, time.Duration(opts.PollSeconds)*time.Second, zapLogger)
	defer poller.Stop()

	sessCfg := session.Config{
		API:        gw,
		Store:      store,
		Log:        zapLogger,
		Confirm:    confirm,
		Notify:     notify,
		OnTeardown: poller.Stop,
	}
	if rec != nil {
		sessCfg.Audit = rec
	}
	ctrl := session.New(sessCfg)
	store.SetAuthFailureHandler(ctrl.Invalidate)

	repl(context.Background(), ctrl, store, poller, gw, rec, scanner)
}

// repl runs the interactive shell loop.
func repl(ctx context.Context, ctrl *session.Controller, store *vault.Store, poller *vault.Poller, gw *api.Gateway, rec *audit.Recorder, scanner *bufio.Scanner) {
	fmt.Println("vaultkeep - type 'help' for a list of commands")
	for {
		fmt.Print("vaultkeep> ")
		if !scanner.Scan() {
			break
		}
		args := strings.Fields(strings.TrimSpace(scanner.Text()))
		if len(args) == 0 {
			continue
		}

		switch args[0] {
		case "help":
			printHelp()

		case "status":
			fmt.Println("Phase:", ctrl.Phase())
			if e := ctrl.LastError(); e != "" {
				fmt.Println("Last error:", e)
			}

		case "login":
			master := prompt(scanner, "Master password: ")
			if err := ctrl.SubmitMasterPassword(ctx, master); err != nil {
				fmt.Println(ctrl.LastError())
				continue
			}
			fmt.Println("2FA required. Run 'qr' for the provisioning QR, then 'code <n>'.")

		case "qr":
			art, err := ctrl.ProvisioningArtifact(ctx)
			if err != nil {
				fmt.Println("QR code not available yet, try again.")
				continue
			}
			if err := os.WriteFile("qrcode.png", art, 0o600); err != nil {
				fmt.Println("Failed to write qrcode.png:", err)
				continue
			}
			fmt.Println("Provisioning QR written to qrcode.png, scan it with your authenticator.")

		case "code":
			if len(args) < 2 {
				fmt.Println("Usage: code <6-digit code>")
				continue
			}
			if err := ctrl.SubmitMfaCode(ctx, args[1]); err != nil {
				fmt.Println(ctrl.LastError())
				continue
			}
			fmt.Println("Vault unlocked.")
			_ = store.Refresh(ctx)
			poller.Start(ctx)

		case "list":
			if !authenticated(ctrl) {
				continue
			}
			printCredentials(store)

		case "show":
			store.SetVisibility(true)

		case "hide":
			store.SetVisibility(false)

		case "refresh":
			if !authenticated(ctrl) {
				continue
			}
			if err := store.Refresh(ctx); err != nil {
				fmt.Println("Refresh failed.")
			}

		case "add":
			if !authenticated(ctrl) {
				continue
			}
			site := prompt(scanner, "Site: ")
			username := prompt(scanner, "Username: ")
			password := prompt(scanner, "Password (empty to generate): ")
			if password == "" {
				password = passgen.Generate(12, passgen.Classes{Uppercase: true, Digits: true, Symbols: true})
				fmt.Println("Generated:", password)
			}
			fmt.Println("Strength:", passgen.Score(password))
			if err := store.Add(ctx, site, username, password); err == nil {
				fmt.Println("Credential added.")
			}

		case "edit":
			if !authenticated(ctrl) {
				continue
			}
			if len(args) < 2 {
				fmt.Println("Usage: edit <site>")
				continue
			}
			if !store.BeginEdit(args[1]) {
				fmt.Println("No credential for", args[1])
				continue
			}
			buf := store.Edit()
			username := prompt(scanner, fmt.Sprintf("Username [%s]: ", buf.DraftUsername))
			if username == "" {
				username = buf.DraftUsername
			}
			password := prompt(scanner, "Password (empty keeps current): ")
			if password == "" {
				password = buf.DraftPassword
			}
			store.SetDraft(username, password)
			if err := store.SaveEdit(ctx); err == nil {
				fmt.Println("Credential updated.")
			}

		case "cancel":
			store.CancelEdit()

		case "delete":
			if !authenticated(ctrl) {
				continue
			}
			if len(args) < 2 {
				fmt.Println("Usage: delete <site>")
				continue
			}
			_ = store.Delete(ctx, args[1])

		case "gen":
			length := 12
			classes := passgen.Classes{Uppercase: true, Digits: true, Symbols: true}
			for _, arg := range args[1:] {
				switch arg {
				case "noupper":
					classes.Uppercase = false
				case "nodigits":
					classes.Digits = false
				case "nosymbols":
					classes.Symbols = false
				default:
					if n, err := strconv.Atoi(arg); err == nil {
						length = n
					}
				}
			}
			pw := passgen.Generate(passgen.Clamp(length), classes)
			fmt.Printf("%s  (strength: %s)\n", pw, passgen.Score(pw))

		case "export":
			if !authenticated(ctrl) {
				continue
			}
			data, err := gw.Export(ctx)
			if err != nil {
				fmt.Println("Export failed.")
				continue
			}
			if err := os.WriteFile("vault_export.txt", data, 0o600); err != nil {
				fmt.Println("Failed to write vault_export.txt:", err)
				continue
			}
			fmt.Println("Export written to vault_export.txt")

		case "reset-vault":
			_ = ctrl.ResetVault(ctx)

		case "force-reset":
			_ = ctrl.ForceReset(ctx)

		case "audit":
			if rec == nil {
				fmt.Println("Audit log is disabled.")
				continue
			}
			limit := 20
			if len(args) > 1 {
				if n, err := strconv.Atoi(args[1]); err == nil && n > 0 {
					limit = n
				}
			}
			entries, err := rec.Recent(ctx, limit)
			if err != nil {
				fmt.Println("Failed to read audit log:", err)
				continue
			}
			for _, e := range entries {
				site := ""
				if e.Site != "" {
					site = " | SITE: " + e.Site
				}
				note := ""
				if e.Note != "" {
					note = " (" + e.Note + ")"
				}
				fmt.Printf("[%s] ACTION: %s%s | STATUS: %s%s\n",
					e.Time.Local().Format("2006-01-02 15:04:05"), e.Action, site, e.Status, note)
			}

		case "logout":
			if err := ctrl.Logout(ctx); err == nil {
				fmt.Println("Logged out.")
			}

		case "exit":
			fmt.Println("Bye")
			return

		default:
			fmt.Println("Unknown command. Type 'help' for a list of commands.")
		}
	}
}

func prompt(scanner *bufio.Scanner, label string) string {
	fmt.Print(label)
	if !scanner.Scan() {
		return ""
	}
	return strings.TrimSpace(scanner.Text())
}

// authenticated gates vault commands: credentials are never observable
// before the session reaches the authenticated phase.
func authenticated(ctrl *session.Controller) bool {
	if ctrl.Phase() != session.Authenticated {
		fmt.Println("Please log in first.")
		return false
	}
	return true
}

func printCredentials(store *vault.Store) {
	creds := store.Snapshot()
	if len(creds) == 0 {
		fmt.Println("No credentials found.")
		return
	}
	visible := store.Visible()
	for _, c := range creds {
		password := "••••••••"
		if visible {
			password = c.Password
		}
		fmt.Printf("%s\t%s\t%s\n", c.Site, c.Username, password)
	}
}

func printHelp() {
	fmt.Println(`Available commands:
  status                 show session phase
  login                  submit the master password
  qr                     save the 2FA provisioning QR to qrcode.png
  code <n>               verify the 2FA code
  list                   list credentials
  show | hide            toggle password visibility
  refresh                refresh the credential list now
  add                    add a credential
  edit <site>            edit a credential
  cancel                 discard the open edit
  delete <site>          delete a credential
  gen [len] [noupper|nodigits|nosymbols]  generate a password
  export                 download the vault export
  reset-vault            clear all credentials (stay logged in)
  force-reset            wipe the vault and end the session
  audit [n]              show recent audit entries
  logout                 end the session
  exit                   quit`)
}
