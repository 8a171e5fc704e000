// Command devtoolkit is a local stand-in for the Identity Toolkit accounts
// API. It lets the storefront API run with IDENTITY_BACKEND=toolkit and real
// RS256 ID token verification without a cloud project.
//
// It is not a full identity provider: only email/password sign-up, sign-in
// and delete are served, and accounts are lost on restart.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap"

	"github.com/eskate/storefront-api/internal/platform/logging"
)

func main() {
	cfg, err := env.ParseAs[settings]()
	if err != nil {
		panic(err)
	}
	log, err := logging.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	emu, err := newEmulator(cfg, log)
	if err != nil {
		log.Fatal("start emulator", zap.Error(err))
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           emu.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("devtoolkit listening",
			zap.String("port", cfg.Port),
			zap.String("issuer", cfg.Issuer),
			zap.String("audience", cfg.Audience),
			zap.String("kid", cfg.KeyID),
			zap.Duration("ttl", cfg.TokenTTL),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("listen", zap.Error(err))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
