// Command cardd serves the card HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"xdao.co/nftcard/config"
	"xdao.co/nftcard/httpapi"
	"xdao.co/nftcard/internal/app"
	"xdao.co/nftcard/model"
	"xdao.co/nftcard/storage/casregistry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stderr))
}

func run(ctx context.Context, args []string, errOut io.Writer) int {
	fs := flag.NewFlagSet("cardd", flag.ContinueOnError)
	fs.SetOutput(errOut)
	cfgPath := fs.String("config", os.Getenv("NFTCARD_CONFIG"), "path to YAML config")
	addr := fs.String("addr", "", "listen address (overrides http.addr)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	if *addr != "" {
		cfg.HTTP.Addr = *addr
	}
	log := cfg.Log.Logger(errOut).With().Str("service", "cardd").Logger()

	a, err := app.Open(ctx, cfg, log, app.Options{Usage: casregistry.UsageDaemon, RequireLedger: true})
	if err != nil {
		log.Error().Err(err).Msg("startup failed")
		return 1
	}
	defer a.Close()
	if a.Account == nil {
		log.Warn().Msg("no wallet configured; minting is disabled")
	}

	gin.SetMode(gin.ReleaseMode)
	router := httpapi.NewRouter(httpapi.Deps{
		Cards:          a.Cards,
		Publisher:      a.Publisher,
		Resolver:       a.Resolver,
		Account:        a.Account,
		Gatherer:       a.Registry,
		Metrics:        a.Metrics,
		Logger:         log,
		MaxUploadBytes: cfg.HTTP.MaxUploadBytes,
		Health:         model.Health{Contract: cfg.Network.Contract, Network: cfg.Network.Name},
	})
	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("ledger", cfg.Ledger.Backend).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server failed")
			return 1
		}
	case <-ctx.Done():
		log.Info().Msg("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.Error().Err(err).Msg("shutdown")
			return 1
		}
	}
	return 0
}
