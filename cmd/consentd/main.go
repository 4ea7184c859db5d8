// Command consentd serves the clinic consent kiosk.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gabrielmiguelok/optoconsent/internal/app"
	"github.com/gabrielmiguelok/optoconsent/internal/config"
	"github.com/gabrielmiguelok/optoconsent/pkg/logging"
)

var version = "0.1.0"

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version", "-v", "--version":
			fmt.Printf("consentd v%s\n", version)
			return
		case "help", "-h", "--help":
			printUsage()
			return
		}
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	level, _ := logging.ParseLevel(cfg.LogLevel)
	log := logging.NewSlogLogger(
		logging.WithLevel(level),
		logging.WithFormat(cfg.LogFormat),
	)
	logging.SetDefault(log)

	app.Version = version
	a, err := app.New(cfg, log)
	if err != nil {
		return err
	}
	return a.Run(context.Background())
}

func printUsage() {
	fmt.Printf(`consentd v%s

Usage: consentd [version|help]

Configuration is read from the environment:
  CONSENT_HTTP_ADDR         listen address (default :3000)
  CONSENT_BACKEND_HOST      backend host (default localhost)
  CONSENT_BACKEND_PORT      backend port (default 3030)
  CONSENT_BACKEND_PATH      submission path (default /post)
  CONSENT_BACKEND_SCHEME    http or https (default http)
  CONSENT_SUBMIT_TIMEOUT    submission timeout (default 30s)
  CONSENT_IDLE_TIMEOUT      inactivity before the warning (default 300s)
  CONSENT_IDLE_GRACE        warning before the reset (default 15s)
  CONSENT_ALLOWED_ORIGINS   extra websocket origins, comma separated
  CONSENT_WS_CODEC          json or msgpack (default json)
  CONSENT_WS_MAX_MESSAGE    largest websocket frame in bytes (default 2MiB)
  CONSENT_MAX_SESSIONS      open sessions before the oldest is evicted (default 64)
  CONSENT_SESSION_TTL       silence before a session is dropped (default 5m)
  CONSENT_SHUTDOWN_TIMEOUT  graceful shutdown limit (default 10s)
  CONSENT_AUDIT_LOG         append audit entries to this file
  CONSENT_LOG_LEVEL         debug, info, warn or error (default info)
  CONSENT_LOG_FORMAT        text or json (default text)
`, version)
}
