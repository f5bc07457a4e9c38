// Command bioguard is a native messaging host that stores one API credential
// behind a biometric or device-passcode ceremony and serves it to a browser
// extension on request.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/kestelyn/bioguard/auth"
	"github.com/kestelyn/bioguard/guard"
	"github.com/kestelyn/bioguard/secret"
)

const appID = "com.kestelyn.bioguard"

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	// The extension owns stdout, so all logging goes to stderr.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

	authenticator := auth.New()
	store, err := secret.NewStore(authenticator)
	if err != nil {
		logger.Warn("native secret store unavailable, falling back to keyring", "error", err)
		store, err = secret.NewKeyringStore(cfg.Service, authenticator)
		if err != nil {
			logger.Error("no secret store available", "error", err)
			os.Exit(1)
		}
	}

	g := guard.New(store, authenticator, guard.Config{
		Address: cfg.address(),
		Prompt:  cfg.prompt(),
		Logger:  logger,
	})

	if len(os.Args) > 1 && os.Args[1] == "install" {
		if err := install(g, logger); err != nil {
			logger.Error("install failed", "error", err)
			os.Exit(1)
		}
		return
	}

	h := newHost(g, logger)
	if err := h.run(os.Stdin, os.Stdout); err != nil {
		logger.Error("host terminated", "error", err)
		os.Exit(1)
	}
}
