// Command vaultstub runs the in-memory stub vault backend for local
// development.
package main

import (
	"flag"
	stdlog "log"
	"net/http"

	"go.uber.org/zap"

	"github.com/kzotkin/vaultkeep/internal/logger"
	"github.com/kzotkin/vaultkeep/internal/stubserver"
)

func main() {
	var (
		addr   string
		master string
		level  string
	)
	flag.StringVar(&addr, "a", "localhost:5000", "listen address (ip:port)")
	flag.StringVar(&master, "master", "", "master password; empty adopts the first login")
	flag.StringVar(&level, "loglevel", "info", "log level")
	flag.Parse()

	log := logger.New()
	if err := log.Init(level); err != nil {
		stdlog.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = log.Log.Sync() }()
	zapLogger := log.Log

	srv, err := stubserver.New(master, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed to init stub server", zap.Error(err))
	}

	zapLogger.Info("starting stub vault server", zap.String("addr", addr))
	zapLogger.Info("TOTP secret for manual registration", zap.String("secret", srv.TOTPSecret()))

	server := &http.Server{Addr: addr, Handler: srv.Router()}
	if err := server.ListenAndServe(); err != nil {
		zapLogger.Fatal("server stopped", zap.Error(err))
	}
}
