package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/devaloi/wagertrivia/internal/config"
	"github.com/devaloi/wagertrivia/internal/handler"
	"github.com/devaloi/wagertrivia/internal/hub"
	"github.com/devaloi/wagertrivia/internal/quiz"
	"github.com/devaloi/wagertrivia/internal/sched"
	"github.com/devaloi/wagertrivia/internal/store"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer s.Close()

	bank, err := quiz.Default()
	if err != nil {
		log.Fatalf("quiz: %v", err)
	}

	h := hub.New(cfg, s, bank, sched.Real{})
	go h.Run()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler.NewRouter(h),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("wagertrivia listening on %s (%s store, %d questions)", srv.Addr, cfg.DBDriver, bank.Size())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		h.Stop()
		return err
	})
	if err := g.Wait(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	switch cfg.DBDriver {
	case "sqlite":
		return store.NewSQLite(cfg.DBPath, cfg.InitialBalance)
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL required for the postgres driver")
		}
		return store.NewPostgres(ctx, cfg.DatabaseURL, cfg.InitialBalance)
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER %q", cfg.DBDriver)
	}
}
