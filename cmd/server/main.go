package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/Parley/internal/adapters/http"
	"github.com/dkeye/Parley/internal/app"
	"github.com/dkeye/Parley/internal/app/orch"
	"github.com/dkeye/Parley/internal/auth"
	"github.com/dkeye/Parley/internal/config"
	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/dkeye/Parley/internal/storage/badgerstore"
	"github.com/dkeye/Parley/internal/storage/gormstore"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := godotenv.Load(); err == nil {
		log.Info().Msg("loaded .env")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	messages, accounts, closer, err := openStores(cfg.Store)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("failed to open store")
	}
	defer func() {
		if err := closer.Close(); err != nil {
			log.Error().Err(err).Msg("store close")
		}
	}()

	o := orch.New(app.NewRegistry(), app.NewRoomManager(), app.SimplePolicy{}, messages, orch.Options{
		HistoryLimit: cfg.HistoryLimit,
		StoreTimeout: cfg.Store.Timeout,
		RingTimeout:  cfg.Call.RingTimeout,
	})
	authSvc := auth.NewService(accounts, auth.NewPasswordHasher(cfg.BcryptCost))

	r := router.SetupRouter(ctx, cfg, o, authSvc)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("relay server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server error")
		return
	}
	log.Info().Msg("Server exited gracefully")
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func openStores(cfg config.StoreConfig) (core.MessageStore, domain.AccountStore, io.Closer, error) {
	switch cfg.Driver {
	case "badger":
		st, err := badgerstore.Open(cfg.DSN)
		if err != nil {
			return nil, nil, nil, err
		}
		return st, st, st, nil
	default:
		db, err := gormstore.Open(cfg.Driver, cfg.DSN)
		if err != nil {
			return nil, nil, nil, err
		}
		return gormstore.NewMessageRepository(db), gormstore.NewAccountRepository(db),
			closerFunc(func() error { return gormstore.Close(db) }), nil
	}
}
