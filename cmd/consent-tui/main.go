// Command consent-tui fills in a consent form from a terminal at the front
// desk and posts it to the same backend as the kiosk.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gabrielmiguelok/optoconsent/internal/config"
	"github.com/gabrielmiguelok/optoconsent/internal/tui"
	"github.com/gabrielmiguelok/optoconsent/pkg/consent"
	"github.com/gabrielmiguelok/optoconsent/pkg/logging"
	"github.com/gabrielmiguelok/optoconsent/pkg/submit"
)

func main() {
	kind := flag.String("form", string(consent.KindAdult), "form to fill in: adult or child")
	flag.Parse()

	if err := run(consent.Kind(*kind)); err != nil {
		if errors.Is(err, tui.ErrAborted) || errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(kind consent.Kind) error {
	if !kind.Valid() {
		return fmt.Errorf("unknown form %q", kind)
	}
	form, err := consent.LoadForm(kind)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	level, _ := logging.ParseLevel(cfg.LogLevel)
	log := logging.NewSlogLogger(
		logging.WithLevel(level),
		logging.WithFormat(cfg.LogFormat),
		logging.WithOutput(os.Stderr),
	)

	client := submit.NewClient(cfg.BackendURL(),
		submit.WithTimeout(cfg.SubmitTimeout),
		submit.WithLogger(log),
	)
	defer client.CloseIdleConnections()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := &tui.Runner{
		Driver: tui.NewSurveyDriver(os.Stdout),
		Sender: client,
		Logger: log,
	}
	return r.Run(ctx, consent.NewMachine(form))
}
